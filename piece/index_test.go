package piece

import (
	"crypto/sha1"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyon-dev/bitcoord/metainfo"
	"github.com/halcyon-dev/bitcoord/storage"
)

func buildPlan(content []byte, pieceLength int64) *metainfo.Plan {
	numPieces := (int64(len(content)) + pieceLength - 1) / pieceLength
	hashes := make([]byte, 0, numPieces*20)
	for i := int64(0); i < numPieces; i++ {
		start := i * pieceLength
		end := start + pieceLength
		if end > int64(len(content)) {
			end = int64(len(content))
		}
		sum := sha1.Sum(content[start:end])
		hashes = append(hashes, sum[:]...)
	}
	return &metainfo.Plan{
		Name:        "a.bin",
		PieceLength: pieceLength,
		Size:        int64(len(content)),
		PieceHashes: hashes,
		Files:       []metainfo.File{{Path: []string{"a.bin"}, Length: int64(len(content))}},
	}
}

func TestScanMarksCompleteOnMatchingDisk(t *testing.T) {
	content := []byte("abcdef")
	plan := buildPlan(content, 4)

	fs := afero.NewMemMapFs()
	fset, err := storage.Open(fs, "/d", plan.Name, []storage.File{{Path: []string{plan.Name}, Length: plan.Size}}, false)
	require.NoError(t, err)
	require.NoError(t, fset.Write(0, content))

	idx, err := Build(plan, fset.Files())
	require.NoError(t, err)
	assert.Equal(t, 2, idx.Len())

	complete := Scan(idx, fset)
	assert.ElementsMatch(t, []int{0, 1}, complete)
	assert.Equal(t, Complete, idx.Get(0).State())
	assert.Equal(t, Complete, idx.Get(1).State())
}

func TestScanLeavesEmptyFileNotComplete(t *testing.T) {
	content := []byte("abcdef")
	plan := buildPlan(content, 4)

	fs := afero.NewMemMapFs()
	fset, err := storage.Open(fs, "/d", plan.Name, []storage.File{{Path: []string{plan.Name}, Length: plan.Size}}, false)
	require.NoError(t, err)
	// file left at zero length: no bytes written.

	idx, err := Build(plan, fset.Files())
	require.NoError(t, err)

	complete := Scan(idx, fset)
	assert.Empty(t, complete)
	assert.Equal(t, Idle, idx.Get(0).State())
}

func TestBuildMapsExtentAcrossFiles(t *testing.T) {
	plan := &metainfo.Plan{
		Name:        "t",
		PieceLength: 4,
		Size:        5,
		PieceHashes: make([]byte, 40),
	}
	files := []storage.File{
		{Path: []string{"sub", "x"}, Length: 3, GlobalOffset: 0},
		{Path: []string{"y"}, Length: 2, GlobalOffset: 3},
	}
	idx, err := Build(plan, files)
	require.NoError(t, err)
	require.Equal(t, 2, idx.Len())

	p0 := idx.Get(0)
	assert.EqualValues(t, 4, p0.Length)
	require.Len(t, p0.FileMapping, 2)
	assert.Equal(t, []string{"sub", "x"}, p0.FileMapping[0].File.Path)
	assert.EqualValues(t, 3, p0.FileMapping[0].Length)
	assert.Equal(t, []string{"y"}, p0.FileMapping[1].File.Path)
	assert.EqualValues(t, 1, p0.FileMapping[1].Length)

	p1 := idx.Get(1)
	assert.EqualValues(t, 1, p1.Length)
	require.Len(t, p1.FileMapping, 1)
	assert.Equal(t, []string{"y"}, p1.FileMapping[0].File.Path)
}
