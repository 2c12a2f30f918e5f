package coordinator

import (
	mapset "github.com/deckarep/golang-set"

	"github.com/halcyon-dev/bitcoord/peer"
)

// ReceiveBlock records a chunk delivered by peer id for the given
// piece, re-entering the coordinator's single execution context
// before touching any shared state. It is the entry point the
// peer-wire collaborator calls on an inbound PIECE message.
func (t *Torrent) ReceiveBlock(id peer.Identifier, pieceIndex, blockIndex int, data []byte) {
	t.post(func() { t.onBlockReceived(id, pieceIndex, blockIndex, data) })
}

func (t *Torrent) onBlockReceived(id peer.Identifier, pieceIndex, blockIndex int, data []byte) {
	if t.pieces == nil || pieceIndex < 0 || pieceIndex >= t.pieces.Len() {
		return
	}
	pc := t.pieces.Get(pieceIndex)
	result, err := pc.ReceiveBlock(string(id), blockIndex, data)
	if err != nil {
		// Malformed framing is the peer-wire collaborator's concern to
		// police; the coordinator just declines to record it.
		return
	}
	if p, ok := t.peers.Get(id); ok {
		p.DecrRequests()
	}
	if !result.AllReceived {
		return
	}

	// Hashing is a suspension point; offload and re-enter the command
	// queue with the result.
	go func() {
		ok, buf, contributors := pc.Verify()
		t.post(func() { t.onPieceVerified(pieceIndex, ok, buf, contributors) })
	}()
}

// onPieceVerified implements the Verifying -> Complete/Idle half of
// the piece state machine and, on success, the completion accounting
// and HAVE broadcast.
func (t *Torrent) onPieceVerified(index int, ok bool, data []byte, contributors mapset.Set) {
	if !ok {
		// Corrupt: Verify already discarded the chunk buffer and
		// rolled the piece back to Idle. Clearing active lets other
		// peers pick it back up. No event is emitted for a
		// verification failure.
		if t.active != nil {
			t.active.Set(index, false)
		}
		_ = contributors // surfaced for a host that wants to build banning policy; this core does not act on it.
		return
	}
	if t.files == nil || t.pieces == nil {
		return
	}
	pc := t.pieces.Get(index)
	if err := t.files.Write(pc.Offset, data); err != nil {
		// Persisting failed; the piece is left Complete in memory but
		// unrecorded in `completed`. A future load's verification scan
		// against fresh Piece objects is the recovery path.
		return
	}
	t.completePiece(index, pc.Length)
}

func (t *Torrent) completePiece(index int, length int64) {
	if t.active != nil {
		t.active.Set(index, false)
	}

	t.mu.Lock()
	t.completed.Set(index, true)
	t.downloaded += length
	numPieces := t.completed.Len()
	completedCount := t.completed.Count()
	progress := float64(completedCount) / float64(numPieces)
	justCompleted := completedCount == numPieces && !t.isComplete
	if justCompleted {
		t.isComplete = true
	}
	t.mu.Unlock()

	t.peers.BroadcastHave(index)
	t.emit(Event{Type: EventProgress, Progress: progress})
	if justCompleted {
		t.emit(Event{Type: EventComplete})
	}
}
