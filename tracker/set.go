package tracker

import "sync"

// Set owns one Tracker per announce URL and aggregates their
// seeders/leechers contributions.
type Set struct {
	mu       sync.RWMutex
	trackers map[string]*Tracker
}

// NewSet builds a Tracker Set from a list of announce URLs, deduped by
// the caller (metainfo.Plan.AnnounceURLs already dedups). requestf is
// shared across every tracker in the set.
func NewSet(announceURLs []string, requestf func() Request) *Set {
	s := &Set{trackers: make(map[string]*Tracker, len(announceURLs))}
	for _, u := range announceURLs {
		s.trackers[u] = New(u, requestf)
	}
	return s
}

// StartAll starts every tracker's announce loop with a shared
// callback. The callback is invoked once per tracker per attempt, from
// that tracker's own goroutine.
func (s *Set) StartAll(cb Callback) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, tr := range s.trackers {
		tr.Start(cb)
	}
}

// StopAll stops every tracker's announce loop and blocks until all
// have sent their final "stopped" announce.
func (s *Set) StopAll() {
	s.mu.RLock()
	trackers := make([]*Tracker, 0, len(s.trackers))
	for _, tr := range s.trackers {
		trackers = append(trackers, tr)
	}
	s.mu.RUnlock()

	var wg sync.WaitGroup
	for _, tr := range trackers {
		wg.Add(1)
		go func(tr *Tracker) {
			defer wg.Done()
			tr.Stop()
		}(tr)
	}
	wg.Wait()
}

// All returns every tracker in the set, in no particular order.
func (s *Set) All() []*Tracker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Tracker, 0, len(s.trackers))
	for _, tr := range s.trackers {
		out = append(out, tr)
	}
	return out
}

// Len returns the number of trackers in the set.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.trackers)
}

// TotalContribution sums seeders/leechers across every tracker's last
// successful announce. A tracker currently in Error state contributes
// its last-known counts rather than zero, so a transient outage on one
// tracker does not make the whole swarm look empty.
func (s *Set) TotalContribution() (seeders, leechers int) {
	for _, tr := range s.All() {
		trS, trL := tr.Contribution()
		seeders += trS
		leechers += trL
	}
	return seeders, leechers
}
