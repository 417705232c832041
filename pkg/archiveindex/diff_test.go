package archiveindex

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/types"
)

func sorted(ss []string) []string {
	out := append([]string(nil), ss...)
	sort.Strings(out)
	return out
}

func TestDiff(t *testing.T) {
	tests := []struct {
		name            string
		local, remote   types.Index
		wantChanged     []string
		wantDeleted     []string
	}{
		{
			name:        "S1 changed and new entry",
			local:       types.Index{"a": "H1", "b": "H3", "c": "H4"},
			remote:      types.Index{"a": "H1", "b": "H2"},
			wantChanged: []string{"b", "c"},
			wantDeleted: nil,
		},
		{
			name:        "empty remote is all-changed",
			local:       types.Index{"a": "H1", "b": "H2"},
			remote:      types.Index{},
			wantChanged: []string{"a", "b"},
			wantDeleted: nil,
		},
		{
			name:        "empty local is all-deleted",
			local:       types.Index{},
			remote:      types.Index{"a": "H1", "b": "H2"},
			wantChanged: nil,
			wantDeleted: []string{"a", "b"},
		},
		{
			name:        "identical indexes produce an empty diff",
			local:       types.Index{"a": "H1"},
			remote:      types.Index{"a": "H1"},
			wantChanged: nil,
			wantDeleted: nil,
		},
		{
			name:        "both empty",
			local:       types.Index{},
			remote:      types.Index{},
			wantChanged: nil,
			wantDeleted: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Diff(tt.local, tt.remote)
			assert.Equal(t, tt.wantChanged, sortedOrNil(d.Changed))
			assert.Equal(t, tt.wantDeleted, sortedOrNil(d.Deleted))

			// changed ⊆ keys(local), deleted ⊆ keys(remote), disjoint
			for _, p := range d.Changed {
				_, ok := tt.local[p]
				assert.True(t, ok, "changed path %s must be a local key", p)
			}
			for _, p := range d.Deleted {
				_, ok := tt.remote[p]
				assert.True(t, ok, "deleted path %s must be a remote key", p)
			}
		})
	}
}

func sortedOrNil(ss []string) []string {
	if len(ss) == 0 {
		return nil
	}
	return sorted(ss)
}
