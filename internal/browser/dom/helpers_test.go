package dom

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// mustParse captures markup, failing the test on error.
func mustParse(t *testing.T, markup string) *Snapshot {
	t.Helper()
	s, err := ParseHTML(markup)
	require.NoError(t, err)
	return s
}

// byID finds the element carrying the given id attribute anywhere in the snapshot,
// shadow trees and frames included.
func byID(t *testing.T, s *Snapshot, id string) *Node {
	t.Helper()
	for _, n := range s.byID {
		if n.IsElement() && n.AttrOr("id") == id {
			return n
		}
	}
	require.Failf(t, "element not found", "no element with id %q", id)
	return nil
}
