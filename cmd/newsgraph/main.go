// Command newsgraph polls regional news feeds, resolves their links into article
// records and serves graph queries over them.
package main

import "github.com/JakeFAU/newsgraph/cmd"

func main() {
	cmd.Execute()
}
