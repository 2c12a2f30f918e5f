package coordinator

import (
	"github.com/halcyon-dev/bitcoord/peer"
	"github.com/halcyon-dev/bitcoord/tracker"
	"github.com/halcyon-dev/bitcoord/wire"
)

// AddPeer admits a peer under id, idempotent by identifier. The
// coordinator itself is the peer's Handle, so every lifecycle event
// the peer emits is funnelled back onto this Torrent's single
// execution context via Notify.
func (t *Torrent) AddPeer(id peer.Identifier, link wire.Link) *peer.Peer {
	var result *peer.Peer
	t.do(func() { result = t.admitPeer(id, link) })
	return result
}

// admitPeer is AddPeer's run-loop-internal body, also used by the
// tracker-update handler, which already runs on this Torrent's
// execution context and would deadlock calling AddPeer directly.
func (t *Torrent) admitPeer(id peer.Identifier, link wire.Link) *peer.Peer {
	numPieces := 0
	if t.pieces != nil {
		numPieces = t.pieces.Len()
	}
	candidate := peer.New(id, link, numPieces, t)
	added, _ := t.peers.Add(candidate)
	return added
}

// Notify implements peer.Handle. It is the only entry point a Peer
// uses to reach back into the torrent that admitted it: peers hold
// this interface, never a pointer to *Torrent.
func (t *Torrent) Notify(e peer.Event) {
	t.post(func() { t.handlePeerEvent(e) })
}

func (t *Torrent) handlePeerEvent(e peer.Event) {
	switch e.Type {
	case peer.Connect:
		t.onPeerConnect(e.Peer)
	case peer.Disconnect:
		t.onPeerDisconnect(e.Peer)
	case peer.Updated:
		t.recomputeInterest(e.Peer)
	case peer.Ready:
		t.assignPiece(e.Peer)
	case peer.Choked:
		// is_choked is a flag the coordinator reads, never reacts to:
		// fairness/choking policy is out of this core's scope.
	}
}

// onPeerConnect sends the initial BITFIELD once a peer's handshake
// completes. Every HAVE broadcast to this peer is ordered after this
// send because both travel through the same link in call order.
func (t *Torrent) onPeerConnect(p *peer.Peer) {
	if p.Link() == nil {
		return
	}
	t.mu.Lock()
	completed := t.completed
	t.mu.Unlock()
	if completed == nil {
		return
	}
	p.Link().SendBitfield(completed.ToBytes())
}

// onPeerDisconnect releases every active piece this peer was serving,
// clears its in-progress set, and drops it from the peer set.
func (t *Torrent) onPeerDisconnect(p *peer.Peer) {
	for _, i := range p.PiecesInProgress().ToSlice() {
		index := i.(int)
		p.RemovePieceInProgress(index)
		if t.active != nil {
			t.active.Set(index, false)
		}
		if t.pieces != nil && index < t.pieces.Len() {
			t.pieces.Get(index).ResetToIdle()
		}
	}
	t.peers.Remove(p.ID())
}

// Start begins announcing on every tracker. The callback delivered to
// each tracker's Start carries the originating *tracker.Tracker
// through to the aggregation handler. The callback runs on the
// tracker's own goroutine, so it re-enters the coordinator's
// execution context via post before touching any state.
func (t *Torrent) Start() {
	t.do(func() {
		if t.trackers == nil {
			return
		}
		t.stopped = false
		t.trackers.StartAll(func(tr *tracker.Tracker, resp *tracker.Response) {
			t.post(func() { t.onTrackerUpdate(tr, resp) })
		})
	})
}

// Stop is only meaningful once the torrent is Ready. It stops every
// tracker and disconnects every peer; the Torrent object remains
// usable and Start may be called again.
func (t *Torrent) Stop() {
	var trackers *tracker.Set
	var peers []*peer.Peer
	t.do(func() {
		if t.status != Ready {
			return
		}
		t.stopped = true
		trackers = t.trackers
		peers = t.peers.All()
	})
	if trackers != nil {
		trackers.StopAll()
	}
	for _, p := range peers {
		p.Disconnect()
	}
}
