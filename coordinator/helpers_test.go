package coordinator

import (
	"crypto/sha1"
	"math/rand"

	marksamman "github.com/marksamman/bencode"

	"github.com/halcyon-dev/bitcoord/bitfield"
	"github.com/halcyon-dev/bitcoord/metainfo"
	"github.com/halcyon-dev/bitcoord/peer"
	"github.com/halcyon-dev/bitcoord/piece"
)

// singleFileDescriptor bencodes a minimal single-file metainfo
// descriptor whose piece hashes are computed from content, matching
// the shape metainfo_test.go and piece/index_test.go already exercise.
func singleFileDescriptor(name string, content []byte, pieceLength int64) []byte {
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
	info := map[string]interface{}{
		"name":         name,
		"length":       int64(len(content)),
		"piece length": pieceLength,
		"pieces":       string(hashes),
	}
	top := map[string]interface{}{
		"announce": "http://tracker.example/announce",
		"info":     info,
	}
	return marksamman.Encode(top)
}

// multiFileDescriptor bencodes a multi-file descriptor. Piece hashes
// are computed over the zero-filled content implied by each file's
// declared length, since callers of this helper exercise path
// creation, not initial-verification matching.
func multiFileDescriptor(name string, files []struct {
	path   []string
	length int64
}, pieceLength int64) []byte {
	var content []byte
	var total int64
	bencodeFiles := make([]interface{}, 0, len(files))
	for _, f := range files {
		total += f.length
		content = append(content, make([]byte, f.length)...)
		path := make([]interface{}, len(f.path))
		for i, p := range f.path {
			path[i] = p
		}
		bencodeFiles = append(bencodeFiles, map[string]interface{}{
			"length": f.length,
			"path":   path,
		})
	}

	numPieces := (total + pieceLength - 1) / pieceLength
	hashes := make([]byte, 0, numPieces*20)
	for i := int64(0); i < numPieces; i++ {
		start := i * pieceLength
		end := start + pieceLength
		if end > total {
			end = total
		}
		sum := sha1.Sum(content[start:end])
		hashes = append(hashes, sum[:]...)
	}

	info := map[string]interface{}{
		"name":         name,
		"piece length": pieceLength,
		"pieces":       string(hashes),
		"files":        bencodeFiles,
	}
	top := map[string]interface{}{
		"announce": "http://tracker.example/announce",
		"info":     info,
	}
	return marksamman.Encode(top)
}

// newTestTorrent builds a Torrent with numPieces worth of completed
// and active bitfields already allocated, bypassing NewTorrent's
// asynchronous load so handler methods can be exercised directly and
// deterministically (white-box, same package as the production code).
func newTestTorrent(numPieces int) *Torrent {
	plan := &metainfo.Plan{
		Name:        "t",
		PieceLength: 1,
		Size:        int64(numPieces),
		PieceHashes: make([]byte, 20*numPieces),
	}
	idx, err := piece.Build(plan, nil)
	if err != nil {
		panic(err)
	}
	return &Torrent{
		status: Ready,
		// Buffered generously and never drained: these tests call
		// handler methods (recomputeInterest, assignPiece, ...)
		// directly rather than running the command-queue loop, but a
		// Peer's Notify still posts here on every lifecycle event.
		cmdCh:          make(chan func(), 256),
		events:         make(chan Event, eventBufferSize),
		rng:            rand.New(rand.NewSource(1)),
		peers:          peer.NewSet(),
		active:         bitfield.New(numPieces),
		completed:      bitfield.New(numPieces),
		pieces:         idx,
		plan:           plan,
		trackerContrib: make(map[string][2]int),
	}
}
