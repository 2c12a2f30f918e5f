package storage

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSingleFileReadWrite(t *testing.T) {
	fs := afero.NewMemMapFs()
	fset, err := Open(fs, "/downloads", "a.bin", []File{{Path: []string{"a.bin"}, Length: 6}}, false)
	require.NoError(t, err)
	defer fset.Close()

	require.NoError(t, fset.Write(0, []byte("abcdef")))
	got, err := fset.Read(0, 6)
	require.NoError(t, err)
	assert.Equal(t, "abcdef", string(got))

	exists, err := afero.Exists(fs, "/downloads/a.bin")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestMultiFilePathCreation(t *testing.T) {
	fs := afero.NewMemMapFs()
	files := []File{
		{Path: []string{"sub", "x"}, Length: 3},
		{Path: []string{"y"}, Length: 2},
	}
	fset, err := Open(fs, "/downloads", "t", files, true)
	require.NoError(t, err)
	defer fset.Close()

	assert.EqualValues(t, 5, fset.Size())

	dirExists, err := afero.DirExists(fs, "/downloads/t/sub")
	require.NoError(t, err)
	assert.True(t, dirExists)

	fileExists, err := afero.Exists(fs, "/downloads/t/sub/x")
	require.NoError(t, err)
	assert.True(t, fileExists)
}

func TestWriteSpansFileBoundary(t *testing.T) {
	fs := afero.NewMemMapFs()
	files := []File{
		{Path: []string{"a"}, Length: 4},
		{Path: []string{"b"}, Length: 4},
	}
	fset, err := Open(fs, "/d", "t", files, true)
	require.NoError(t, err)
	defer fset.Close()

	require.NoError(t, fset.Write(2, []byte("XXXXXX")))
	got, err := fset.Read(0, 8)
	require.NoError(t, err)
	assert.Equal(t, "\x00\x00XXXXXX", string(got))
}

func TestReadOutOfRange(t *testing.T) {
	fs := afero.NewMemMapFs()
	fset, err := Open(fs, "/d", "a.bin", []File{{Path: []string{"a.bin"}, Length: 4}}, false)
	require.NoError(t, err)
	defer fset.Close()

	_, err = fset.Read(2, 10)
	assert.Error(t, err)
}
