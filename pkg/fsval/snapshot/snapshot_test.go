package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		input   string
		want    Kind
		wantErr bool
	}{
		{"file", KindFile, false},
		{"FILE", KindFile, false},
		{"directory", KindDirectory, false},
		{"dir", KindDirectory, false},
		{" directory ", KindDirectory, false},
		{"", "", true},
		{"symlink", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseKind(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromPaths(t *testing.T) {
	snap := FromPaths("a/", "a/b.txt", "c.tar.gz")

	require.Len(t, snap, 3)
	assert.Equal(t, KindDirectory, snap[0].Kind)
	assert.Equal(t, "a", snap[0].Name)
	assert.Equal(t, KindFile, snap[1].Kind)
	assert.Equal(t, ".txt", snap[1].Extension)
	assert.Equal(t, ".gz", snap[2].Extension)
	assert.Equal(t, []string{"a/", "a/b.txt", "c.tar.gz"}, snap.Paths())
}

func TestSelectPreservesOrder(t *testing.T) {
	snap := FromPaths("z.txt", "a.png", "m.txt", "b/")

	got := snap.Select(func(e Entry) bool { return e.Extension == ".txt" })
	assert.Equal(t, []string{"z.txt", "m.txt"}, got.Paths())
	assert.Equal(t, 4, snap.Len(), "receiver must not change")
}

func TestTotalSize(t *testing.T) {
	snap := Snapshot{
		{Path: "a", Kind: KindFile, Size: 10},
		{Path: "d/", Kind: KindDirectory, Size: 4096},
		{Path: "d/b", Kind: KindFile, Size: 5},
	}
	assert.Equal(t, int64(15), snap.TotalSize())
}
