package dedup

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	known map[string]bool
	err   error
}

func (f fakeStore) Exists(_ context.Context, url string) (bool, error) {
	return f.known[url], f.err
}

func TestAlreadyResolved(t *testing.T) {
	t.Parallel()

	d := New(fakeStore{known: map[string]bool{"https://example.com/a": true}}, nil)
	require.True(t, d.AlreadyResolved(context.Background(), "https://example.com/a"))
	require.False(t, d.AlreadyResolved(context.Background(), "https://example.com/b"))
}

func TestAlreadyResolvedFavorsAvailabilityOnStoreError(t *testing.T) {
	t.Parallel()

	d := New(fakeStore{known: map[string]bool{"https://example.com/a": true}, err: errors.New("db down")}, nil)
	require.False(t, d.AlreadyResolved(context.Background(), "https://example.com/a"))
}
