package coordinator

import (
	"github.com/halcyon-dev/bitcoord/peer"
	"github.com/halcyon-dev/bitcoord/piece"
)

// recomputeInterest follows whether the peer holds anything we do
// not, re-evaluated on every bitfield mutation. Oscillation across
// repeated calls is acceptable.
func (t *Torrent) recomputeInterest(p *peer.Peer) {
	t.mu.Lock()
	completed := t.completed
	t.mu.Unlock()
	if completed == nil {
		return
	}
	want := p.Bitfield().AndNot(completed)
	p.SetAmInterested(!want.IsEmpty())
}

// assignPiece implements the peer-ready policy: reuse an already-active
// piece the peer can still contribute to, else activate one chosen
// uniformly at random from the peer's non-held, non-active pieces,
// else go idle.
func (t *Torrent) assignPiece(p *peer.Peer) {
	if t.pieces == nil || t.active == nil {
		return
	}

	// 1. Reuse active.
	for _, i := range t.active.SetIndices() {
		if !p.Bitfield().Get(i) {
			continue
		}
		pc := t.pieces.Get(i)
		if !pc.HasRequestedAllChunks() {
			t.activatePiece(p, pc)
			return
		}
	}

	// 2. Activate new.
	t.mu.Lock()
	completed := t.completed
	t.mu.Unlock()
	held := t.active.Or(completed)
	available := p.Bitfield().AndNot(held)
	indices := available.SetIndices()
	if len(indices) > 0 {
		choice := indices[t.rng.Intn(len(indices))]
		t.active.Set(choice, true)
		t.activatePiece(p, t.pieces.Get(choice))
		return
	}

	// 3. Idle.
	if p.NumRequests() == 0 {
		p.SetAmInterested(false)
	}
}

// activatePiece records that pc is now assigned to p. Actually issuing
// the REQUEST message over the wire is the peer-wire collaborator's
// job; the coordinator's contract ends at marking the block
// outstanding and the peer as carrying it.
func (t *Torrent) activatePiece(p *peer.Peer, pc *piece.Piece) {
	blockIndex, ok := pc.NextUnrequestedBlock()
	if !ok {
		return
	}
	pc.MarkRequested(blockIndex)
	p.AddPieceInProgress(pc.Index)
	p.IncrRequests()
}
