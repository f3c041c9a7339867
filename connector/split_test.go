package connector

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeFileSplits_TileFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.WriteFile(path, make([]byte, 103), 0666))

	splits, err := MakeFileSplits(path, 4)
	require.NoError(t, err)
	require.Len(t, splits, 4)

	var next int64
	for _, s := range splits {
		fs := s.(*FileSplit)
		assert.Equal(t, next, fs.Start)
		next = fs.Start + fs.Length
	}
	assert.Equal(t, int64(103), next)
	assert.Equal(t, int64(26), splits[0].(*FileSplit).Length)
	assert.Equal(t, int64(25), splits[3].(*FileSplit).Length)
	assert.Equal(t, path+"[0:26]", splits[0].String())
}

func TestMakeFileSplits_Errors(t *testing.T) {
	_, err := MakeFileSplits(filepath.Join(t.TempDir(), "missing"), 2)
	assert.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0666))
	_, err = MakeFileSplits(path, 0)
	assert.Error(t, err)

	whole, err := WholeFileSplit(path)
	require.NoError(t, err)
	assert.Equal(t, &FileSplit{Path: path, Start: 0, Length: 1}, whole)
}
