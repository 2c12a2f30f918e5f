package metainfo

import (
	"bytes"
	"crypto/sha1"
	"testing"

	marksamman "github.com/marksamman/bencode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func singleFileTorrent(t *testing.T) []byte {
	t.Helper()
	pieces := make([]byte, 40)
	for i := range pieces {
		pieces[i] = byte(i)
	}
	info := map[string]interface{}{
		"name":         "a.bin",
		"length":       int64(6),
		"piece length": int64(4),
		"pieces":       string(pieces),
	}
	top := map[string]interface{}{
		"announce": "http://tracker.example/announce",
		"info":     info,
	}
	return marksamman.Encode(top)
}

func multiFileTorrent(t *testing.T) []byte {
	t.Helper()
	pieces := make([]byte, 40)
	files := []interface{}{
		map[string]interface{}{"length": int64(3), "path": []interface{}{"sub", "x"}},
		map[string]interface{}{"length": int64(2), "path": []interface{}{"y"}},
	}
	info := map[string]interface{}{
		"name":         "t",
		"piece length": int64(4),
		"pieces":       string(pieces),
		"files":        files,
	}
	top := map[string]interface{}{
		"announce": "http://tracker.example/announce",
		"info":     info,
	}
	return marksamman.Encode(top)
}

func TestLoadSingleFile(t *testing.T) {
	data := singleFileTorrent(t)
	plan, err := Load(bytes.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, "a.bin", plan.Name)
	assert.EqualValues(t, 4, plan.PieceLength)
	assert.EqualValues(t, 6, plan.Size)
	assert.Equal(t, 2, plan.NumPieces())
	assert.Equal(t, []string{"http://tracker.example/announce"}, plan.AnnounceURLs)
	require.Len(t, plan.Files, 1)
	assert.Equal(t, []string{"a.bin"}, plan.Files[0].Path)
}

func TestLoadMultiFile(t *testing.T) {
	data := multiFileTorrent(t)
	plan, err := Load(bytes.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, "t", plan.Name)
	assert.EqualValues(t, 5, plan.Size)
	require.Len(t, plan.Files, 2)
	assert.Equal(t, []string{"sub", "x"}, plan.Files[0].Path)
	assert.Equal(t, []string{"y"}, plan.Files[1].Path)
}

func TestLoadRejectsMissingPieceLength(t *testing.T) {
	info := map[string]interface{}{
		"name":   "a.bin",
		"length": int64(6),
		"pieces": string(make([]byte, 20)),
	}
	top := map[string]interface{}{"announce": "x", "info": info}
	_, err := Load(bytes.NewReader(marksamman.Encode(top)))
	assert.Error(t, err)
}

func TestLoadRejectsBadPiecesLength(t *testing.T) {
	info := map[string]interface{}{
		"name":         "a.bin",
		"length":       int64(6),
		"piece length": int64(4),
		"pieces":       string(make([]byte, 21)),
	}
	top := map[string]interface{}{"announce": "x", "info": info}
	_, err := Load(bytes.NewReader(marksamman.Encode(top)))
	assert.Error(t, err)
}

func TestLoadRejectsLengthAndFilesTogether(t *testing.T) {
	info := map[string]interface{}{
		"name":         "a.bin",
		"length":       int64(6),
		"piece length": int64(4),
		"pieces":       string(make([]byte, 20)),
		"files":        []interface{}{map[string]interface{}{"length": int64(1), "path": []interface{}{"x"}}},
	}
	top := map[string]interface{}{"announce": "x", "info": info}
	_, err := Load(bytes.NewReader(marksamman.Encode(top)))
	assert.Error(t, err)
}

func TestAnnounceURLsUnionAndDedup(t *testing.T) {
	got := announceURLs("http://a", [][]string{
		{"http://a", "http://b"},
		{"http://c"},
	})
	assert.Equal(t, []string{"http://a", "http://b", "http://c"}, got)
}

func TestInfoHashRoundTrip(t *testing.T) {
	data := singleFileTorrent(t)
	plan, err := Load(bytes.NewReader(data))
	require.NoError(t, err)

	decoded, err := marksamman.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	canonical := marksamman.Encode(decoded["info"])
	want := sha1.Sum(canonical)
	assert.Equal(t, want, plan.InfoHash)

	ok, err := VerifyInfoHash(data, plan.InfoHash)
	require.NoError(t, err)
	assert.True(t, ok)
}
