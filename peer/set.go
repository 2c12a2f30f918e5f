package peer

import (
	"sync"
)

// Info is a read-only snapshot of one peer's observable state, used
// to answer the coordinator's list_peers() query without exposing the
// live Peer for mutation.
type Info struct {
	Identifier     Identifier
	Choked         bool
	NumRequests    int
	DownloadRate   int
	UploadRate     int
	AmInterested   bool
	Initialised    bool
}

// Set is the collection of active peers keyed by stable identifier.
// Admission is idempotent: adding an already-known identifier is a
// no-op that returns the existing Peer and ok=false.
type Set struct {
	mu    sync.RWMutex
	peers map[Identifier]*Peer
}

// NewSet constructs an empty Peer Set.
func NewSet() *Set {
	return &Set{peers: make(map[Identifier]*Peer)}
}

// Add admits p if its identifier is not already present. ok reports
// whether p was newly admitted.
func (s *Set) Add(p *Peer) (added *Peer, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, present := s.peers[p.ID()]; present {
		return existing, false
	}
	s.peers[p.ID()] = p
	return p, true
}

// Remove drops the peer with the given identifier, if present.
func (s *Set) Remove(id Identifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.peers, id)
}

// Get returns the peer with the given identifier, if present.
func (s *Set) Get(id Identifier) (*Peer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.peers[id]
	return p, ok
}

// Len returns the number of admitted peers.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.peers)
}

// All returns every admitted peer, in no particular order.
func (s *Set) All() []*Peer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Peer, 0, len(s.peers))
	for _, p := range s.peers {
		out = append(out, p)
	}
	return out
}

// BroadcastHave sends HAVE(pieceIndex) to every initialised peer. The
// message to any single peer is not reordered ahead of the BITFIELD
// already sent to them, since both are written to the same link in
// call order.
func (s *Set) BroadcastHave(pieceIndex int) {
	for _, p := range s.All() {
		if !p.Initialised() || p.Link() == nil {
			continue
		}
		p.Link().SendHave(pieceIndex)
	}
}

// ListInfo answers the coordinator's list_peers() observer query.
func (s *Set) ListInfo() []Info {
	peers := s.All()
	out := make([]Info, 0, len(peers))
	for _, p := range peers {
		out = append(out, Info{
			Identifier:   p.ID(),
			Choked:       p.IsChoked(),
			NumRequests:  p.NumRequests(),
			DownloadRate: p.CurrentDownloadRate(),
			UploadRate:   p.CurrentUploadRate(),
			AmInterested: p.AmInterested(),
			Initialised:  p.Initialised(),
		})
	}
	return out
}

// TotalDownloadRate sums the current download rate across all peers.
func (s *Set) TotalDownloadRate() int {
	total := 0
	for _, p := range s.All() {
		total += p.CurrentDownloadRate()
	}
	return total
}

// TotalUploadRate sums the current upload rate across all peers.
func (s *Set) TotalUploadRate() int {
	total := 0
	for _, p := range s.All() {
		total += p.CurrentUploadRate()
	}
	return total
}
