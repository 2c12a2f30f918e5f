package coordinator

import (
	"github.com/halcyon-dev/bitcoord/peer"
	"github.com/halcyon-dev/bitcoord/tracker"
)

// onTrackerUpdate folds one tracker's announce result into the
// swarm-wide seeders/leechers aggregate and admits any newly
// discovered peers. It runs on the coordinator's own execution
// context, reached via the closure Start hands to every tracker's
// announce loop.
func (t *Torrent) onTrackerUpdate(tr *tracker.Tracker, resp *tracker.Response) {
	prev := t.trackerContrib[tr.URL()]
	t.mu.Lock()
	t.seeders -= prev[0]
	t.leechers -= prev[1]
	t.mu.Unlock()

	if resp == nil {
		// Tracker failure: aggregates are left as they were before the
		// subtraction above cancels out, by re-adding the same prev
		// values, so aggregates are left unchanged.
		t.mu.Lock()
		t.seeders += prev[0]
		t.leechers += prev[1]
		t.mu.Unlock()
		t.emit(Event{Type: EventUpdated})
		return
	}

	t.trackerContrib[tr.URL()] = [2]int{resp.Seeders, resp.Leechers}
	t.mu.Lock()
	t.seeders += resp.Seeders
	t.leechers += resp.Leechers
	isComplete := t.isComplete
	t.mu.Unlock()

	if len(resp.Peers) > 0 && !isComplete {
		for _, candidate := range resp.Peers {
			id := peer.Identifier(candidate.Identifier())
			if _, ok := t.peers.Get(id); ok {
				continue
			}
			t.admitPeer(id, nil)
		}
	}

	t.emit(Event{Type: EventUpdated})
}
