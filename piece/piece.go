// Package piece implements the Piece Index: the ordered sequence of
// Pieces built from a metainfo Plan, each owning its hash, extent, and
// runtime completion state machine (Idle -> InProgress -> Verifying ->
// Complete, with a transient Corrupt rollback to Idle).
package piece

import (
	"bytes"
	"crypto/sha1"

	mapset "github.com/deckarep/golang-set"
	"github.com/pkg/errors"

	"github.com/halcyon-dev/bitcoord/storage"
)

// BlockSize is the chunk size requested/served over the peer wire,
// the BEP3 convention of 2^14 bytes.
const BlockSize = 16384

// State is a Piece's runtime completion state.
type State int

const (
	Idle State = iota
	InProgress
	Verifying
	Complete
	Corrupt
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case InProgress:
		return "in_progress"
	case Verifying:
		return "verifying"
	case Complete:
		return "complete"
	case Corrupt:
		return "corrupt"
	default:
		return "unknown"
	}
}

// FileMapping is one (file, file_offset, length) triple covering part
// of a piece's extent.
type FileMapping struct {
	File       storage.File
	FileOffset int64
	Length     int64
}

// Piece is the atomic unit of integrity: one entry in the hash list,
// always verified whole.
type Piece struct {
	Index         int
	Offset        int64
	Length        int64
	ExpectedHash  []byte
	FileMapping   []FileMapping

	state       State
	received    mapset.Set // block indices received this InProgress episode
	outstanding mapset.Set // block indices requested but not yet received
	buf         []byte     // accumulated plaintext, length == Length once complete
	contributors mapset.Set // peer identifiers that supplied a chunk this episode
}

func newPiece(index int, offset, length int64, expectedHash []byte, mapping []FileMapping) *Piece {
	return &Piece{
		Index:        index,
		Offset:       offset,
		Length:       length,
		ExpectedHash: expectedHash,
		FileMapping:  mapping,
		state:        Idle,
		received:     mapset.NewSet(),
		outstanding:  mapset.NewSet(),
		contributors: mapset.NewSet(),
		buf:          make([]byte, length),
	}
}

// NumBlocks returns the number of BlockSize chunks that make up the piece.
func (p *Piece) NumBlocks() int {
	n := int(p.Length) / BlockSize
	if int(p.Length)%BlockSize != 0 {
		n++
	}
	return n
}

// BlockLength returns the length of the block at blockIndex, which is
// shorter than BlockSize only for the last block of the piece.
func (p *Piece) BlockLength(blockIndex int) int {
	start := blockIndex * BlockSize
	remaining := int(p.Length) - start
	if remaining > BlockSize {
		return BlockSize
	}
	return remaining
}

// State returns the piece's current runtime state.
func (p *Piece) State() State { return p.state }

// HasRequestedAllChunks reports whether every block of the piece has
// already been requested (outstanding or received) in this episode.
func (p *Piece) HasRequestedAllChunks() bool {
	return p.outstanding.Cardinality()+p.received.Cardinality() >= p.NumBlocks()
}

// NextUnrequestedBlock returns the index of a block that has neither
// been requested nor received, and ok=false if none remain.
func (p *Piece) NextUnrequestedBlock() (blockIndex int, ok bool) {
	for i := 0; i < p.NumBlocks(); i++ {
		if !p.outstanding.Contains(i) && !p.received.Contains(i) {
			return i, true
		}
	}
	return 0, false
}

// MarkRequested transitions Idle -> InProgress on the first request
// and records blockIndex as outstanding.
func (p *Piece) MarkRequested(blockIndex int) {
	if p.state == Idle {
		p.state = InProgress
	}
	p.outstanding.Add(blockIndex)
}

// WriteBlockResult reports the outcome of ReceiveBlock.
type WriteBlockResult struct {
	// AllReceived is true once every block has been received and the
	// piece transitioned to Verifying within this call.
	AllReceived bool
}

// ReceiveBlock records a received block's data and, once every block
// of the piece has arrived, transitions InProgress -> Verifying.
func (p *Piece) ReceiveBlock(peerID string, blockIndex int, data []byte) (WriteBlockResult, error) {
	if blockIndex < 0 || blockIndex >= p.NumBlocks() {
		return WriteBlockResult{}, errors.Errorf("piece %d: block index %d out of range", p.Index, blockIndex)
	}
	if len(data) != p.BlockLength(blockIndex) {
		return WriteBlockResult{}, errors.Errorf("piece %d: block %d wrong length %d, want %d", p.Index, blockIndex, len(data), p.BlockLength(blockIndex))
	}
	copy(p.buf[blockIndex*BlockSize:], data)
	p.outstanding.Remove(blockIndex)
	p.received.Add(blockIndex)
	p.contributors.Add(peerID)

	if p.received.Cardinality() < p.NumBlocks() {
		return WriteBlockResult{}, nil
	}
	p.state = Verifying
	return WriteBlockResult{AllReceived: true}, nil
}

// Verify hashes the piece's accumulated buffer against ExpectedHash.
// On match it transitions Verifying -> Complete and returns the piece
// bytes to persist. On mismatch it transitions Verifying -> Idle,
// discards the received chunks, and returns the set of peer
// identifiers that contributed to the corrupted piece.
func (p *Piece) Verify() (ok bool, data []byte, contributors mapset.Set) {
	sum := sha1.Sum(p.buf)
	if bytes.Equal(sum[:], p.ExpectedHash) {
		p.state = Complete
		return true, p.buf, p.contributors
	}
	contributors = p.contributors
	p.state = Idle
	p.received = mapset.NewSet()
	p.outstanding = mapset.NewSet()
	p.contributors = mapset.NewSet()
	p.buf = make([]byte, p.Length)
	return false, nil, contributors
}

// MarkComplete sets the piece Complete directly from known-good bytes
// on disk, without going through the request/receive cycle. Used by
// the Piece Index's initial verification scan.
func (p *Piece) MarkComplete() {
	p.state = Complete
}

// ResetToIdle clears in-progress chunk tracking without touching disk
// state, used when a peer serving this piece disconnects.
func (p *Piece) ResetToIdle() {
	if p.state == Complete {
		return
	}
	p.state = Idle
	p.received = mapset.NewSet()
	p.outstanding = mapset.NewSet()
	p.contributors = mapset.NewSet()
	p.buf = make([]byte, p.Length)
}
