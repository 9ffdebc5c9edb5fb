package dirscan

import (
	"errors"
	"os"
	"sort"
	"syscall"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, d *Dir) []string {
	t.Helper()
	var names []string
	for {
		name, ok, err := d.Next()
		require.NoError(t, err)
		if !ok {
			return names
		}
		names = append(names, name)
	}
}

func TestDir(t *testing.T) {
	t.Run("Should yield every entry once without recursing", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fs, "/src/a.jpg", []byte("a"), 0o644))
		require.NoError(t, afero.WriteFile(fs, "/src/notes.txt", []byte("n"), 0o644))
		require.NoError(t, afero.WriteFile(fs, "/src/sub/deep.png", []byte("d"), 0o644))

		d, err := Open(fs, "/src/")
		require.NoError(t, err)
		defer d.Close()

		names := collect(t, d)
		sort.Strings(names)
		assert.Equal(t, []string{"a.jpg", "notes.txt", "sub"}, names)
	})

	t.Run("Should read directories larger than one batch", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		for i := 0; i < batchSize*2+3; i++ {
			require.NoError(t, afero.WriteFile(fs, "/big/"+string(rune('a'+i%26))+string(rune('A'+i/26)), nil, 0o644))
		}
		d, err := Open(fs, "/big")
		require.NoError(t, err)
		defer d.Close()
		assert.Len(t, collect(t, d), batchSize*2+3)
	})

	t.Run("Should stay exhausted after the last entry", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, fs.MkdirAll("/empty", 0o755))
		d, err := Open(fs, "/empty")
		require.NoError(t, err)
		defer d.Close()

		_, ok, err := d.Next()
		require.NoError(t, err)
		assert.False(t, ok)
		_, ok, _ = d.Next()
		assert.False(t, ok)
	})

	t.Run("Should fail to open a missing directory", func(t *testing.T) {
		_, err := Open(afero.NewMemMapFs(), "/nope/")
		require.Error(t, err)
		assert.True(t, errors.Is(err, os.ErrNotExist))
	})

	t.Run("Should fail to open a regular file", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fs, "/file", []byte("x"), 0o644))
		_, err := Open(fs, "/file")
		require.Error(t, err)
		assert.True(t, errors.Is(err, syscall.ENOTDIR))
	})

	t.Run("Should allow Close more than once", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, fs.MkdirAll("/d", 0o755))
		d, err := Open(fs, "/d")
		require.NoError(t, err)
		require.NoError(t, d.Close())
		require.NoError(t, d.Close())
		_, ok, err := d.Next()
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
