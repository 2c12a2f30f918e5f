package piece

import (
	"bytes"
	"crypto/sha1"

	"github.com/pkg/errors"

	"github.com/halcyon-dev/bitcoord/metainfo"
	"github.com/halcyon-dev/bitcoord/storage"
)

// Index is the ordered sequence of Pieces built from a metainfo Plan.
type Index struct {
	pieces []*Piece
}

// Build constructs an Index from plan, computing each piece's extent
// and file mapping, but does not read or verify any bytes — call Scan
// for that.
func Build(plan *metainfo.Plan, files []storage.File) (*Index, error) {
	numPieces := plan.NumPieces()
	if numPieces == 0 {
		return nil, errors.New("piece index: zero pieces")
	}
	idx := &Index{pieces: make([]*Piece, numPieces)}

	for i := 0; i < numPieces; i++ {
		offset := int64(i) * plan.PieceLength
		length := plan.PieceLength
		if i == numPieces-1 {
			length = plan.Size - offset
		}
		mapping := mapExtent(files, offset, length)
		idx.pieces[i] = newPiece(i, offset, length, plan.PieceHash(i), mapping)
	}
	return idx, nil
}

// mapExtent returns the (file, file_offset, length) triples covering
// [offset, offset+length) of the flat payload range.
func mapExtent(files []storage.File, offset, length int64) []FileMapping {
	var out []FileMapping
	remaining := length
	pos := offset
	for _, f := range files {
		if remaining <= 0 {
			break
		}
		fileEnd := f.GlobalOffset + f.Length
		if pos >= fileEnd {
			continue
		}
		if pos+remaining <= f.GlobalOffset {
			break
		}
		localStart := pos - f.GlobalOffset
		if localStart < 0 {
			localStart = 0
		}
		chunk := f.Length - localStart
		if chunk > remaining {
			chunk = remaining
		}
		out = append(out, FileMapping{File: f, FileOffset: localStart, Length: chunk})
		pos += chunk
		remaining -= chunk
	}
	return out
}

// Len returns the number of pieces in the index.
func (idx *Index) Len() int { return len(idx.pieces) }

// Get returns the piece at index i.
func (idx *Index) Get(i int) *Piece { return idx.pieces[i] }

// All returns every piece, in index order.
func (idx *Index) All() []*Piece { return idx.pieces }

// Scan sequentially reads and hashes every piece's extent from fs,
// bounding memory to one piece at a time, and marks each piece
// Complete if its on-disk bytes already hash to its expected hash.
// It returns the resulting set of complete piece indices. A read or
// hash failure for a single piece is not fatal to the scan: that
// piece is simply left not-complete.
func Scan(idx *Index, fs storage.FileSet) (completeIndices []int) {
	for _, p := range idx.pieces {
		data, err := fs.Read(p.Offset, p.Length)
		if err != nil {
			continue
		}
		sum := sha1.Sum(data)
		if bytes.Equal(sum[:], p.ExpectedHash) {
			p.MarkComplete()
			completeIndices = append(completeIndices, p.Index)
		}
	}
	return completeIndices
}
