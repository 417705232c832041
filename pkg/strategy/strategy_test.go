package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/types"
)

func TestParseTotality(t *testing.T) {
	tests := []struct {
		name        string
		expr        string
		wantBatches []types.BatchCount
		wantCanary  bool
		wantErr     bool
	}{
		{
			name:        "sequential",
			expr:        "sequential",
			wantBatches: []types.BatchCount{{Count: 1}},
			wantCanary:  false,
		},
		{
			name:        "parallel",
			expr:        "parallel",
			wantBatches: []types.BatchCount{{Rest: true}},
			wantCanary:  false,
		},
		{
			name:        "case and whitespace normalized",
			expr:        "  SeQuEntial  ",
			wantBatches: []types.BatchCount{{Count: 1}},
			wantCanary:  false,
		},
		{
			name:        "1+R is canary",
			expr:        "1+R",
			wantBatches: []types.BatchCount{{Count: 1}, {Rest: true}},
			wantCanary:  true,
		},
		{
			name:        "2+3+R is canary",
			expr:        "2+3+R",
			wantBatches: []types.BatchCount{{Count: 2}, {Count: 3}, {Rest: true}},
			wantCanary:  true,
		},
		{
			name:        "rest word form",
			expr:        "2+rest",
			wantBatches: []types.BatchCount{{Count: 2}, {Rest: true}},
			wantCanary:  true,
		},
		{
			name:    "rest not at end rejected",
			expr:    "1+R+2",
			wantErr: true,
		},
		{
			name:    "zero count rejected",
			expr:    "0+1",
			wantErr: true,
		},
		{
			name:    "garbage token rejected",
			expr:    "abc",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Parse(tt.expr)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCanary, s.IsCanary)
			require.Len(t, s.Batches, len(tt.wantBatches))
			for i, b := range tt.wantBatches {
				assert.Equal(t, b, s.Batches[i].Size)
			}
		})
	}
}

func TestDisplayName(t *testing.T) {
	s, err := Parse("1+R")
	require.NoError(t, err)
	assert.Equal(t, "canary (1+R)", s.DisplayName())

	s2, err := Parse("sequential")
	require.NoError(t, err)
	assert.Equal(t, "sequential", s2.DisplayName())
}
