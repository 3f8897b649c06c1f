// Package system provides the wall clock used to stamp resolved records.
package system

import "time"

// Clock implements content.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC. Resolution timestamps and the date
// fallback of the normalizer are always UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
