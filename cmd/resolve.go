package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newResolveCmd() *cobra.Command {
	var withHTML bool
	cmd := &cobra.Command{
		Use:   "resolve <url>",
		Short: "Resolve a single link and print its record as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := runtimeFrom(cmd.Context())
			if err != nil {
				return err
			}
			rec, err := rt.app.Resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !withHTML {
				rec.HTML = ""
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(rec); err != nil {
				return fmt.Errorf("write record: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&withHTML, "html", false, "include the cleaned article markup")
	return cmd
}
