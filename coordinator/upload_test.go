package coordinator

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyon-dev/bitcoord/storage"
)

// an unknown piece index replies empty, with no error.
func TestHandleChunkRequestUnknownIndexRepliesEmpty(t *testing.T) {
	tor := newTestTorrent(2)

	var got ChunkReply
	tor.handleChunkRequest(5, 0, 1, func(r ChunkReply) { got = r })

	assert.Nil(t, got.Err)
	assert.Nil(t, got.Data)
}

// a successful read returns the bytes and accrues uploaded.
func TestHandleChunkRequestSuccessAccruesUploaded(t *testing.T) {
	tor := newTestTorrent(1)
	fs := afero.NewMemMapFs()
	content := []byte("x")
	require.NoError(t, fs.MkdirAll("/d", 0755))
	require.NoError(t, afero.WriteFile(fs, "/d/a.bin", content, 0644))

	files, err := storage.Open(fs, "/d", "a.bin", []storage.File{{Length: 1}}, false)
	require.NoError(t, err)
	tor.files = files

	var got ChunkReply
	tor.handleChunkRequest(0, 0, 1, func(r ChunkReply) { got = r })

	require.NoError(t, got.Err)
	assert.Equal(t, content, got.Data)
	assert.EqualValues(t, 1, tor.Uploaded())
}

func TestHandleChunkRequestReadErrorSurfacesErr(t *testing.T) {
	tor := newTestTorrent(1)
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/d", 0755))
	require.NoError(t, afero.WriteFile(fs, "/d/a.bin", []byte("x"), 0644))

	files, err := storage.Open(fs, "/d", "a.bin", []storage.File{{Length: 1}}, false)
	require.NoError(t, err)
	require.NoError(t, files.Close())
	tor.files = files

	var got ChunkReply
	tor.handleChunkRequest(0, 0, 1, func(r ChunkReply) { got = r })

	assert.Error(t, got.Err)
	assert.Nil(t, got.Data)
	assert.EqualValues(t, 0, tor.Uploaded())
}

func TestHandleChunkRequestNoFilesRepliesEmpty(t *testing.T) {
	tor := newTestTorrent(1)

	var got ChunkReply
	tor.handleChunkRequest(0, 0, 1, func(r ChunkReply) { got = r })

	assert.Nil(t, got.Err)
	assert.Nil(t, got.Data)
}
