package tracker

import (
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateStringCoversAllValues(t *testing.T) {
	assert.Equal(t, "stopped", Stopped.String())
	assert.Equal(t, "announcing", Announcing.String())
	assert.Equal(t, "waiting", Waiting.String())
	assert.Equal(t, "error", Error.String())
}

func TestPeerCandidateIdentifier(t *testing.T) {
	c := PeerCandidate{IP: "1.2.3.4", Port: 6881}
	assert.Equal(t, "1.2.3.4:6881", c.Identifier())
}

func TestQueryRejectsUnsupportedScheme(t *testing.T) {
	_, err := query("ftp://example.com/announce", Request{}, "")
	require.Error(t, err)
}

func TestQueryRejectsInvalidURL(t *testing.T) {
	_, err := query("not a url", Request{}, "")
	require.Error(t, err)
}

func TestTrackerStartStopReachesStoppedState(t *testing.T) {
	srv := httptest.NewServer(nil)
	defer srv.Close()

	// No handler registered: every announce fails and the tracker
	// lands in Error before we stop it. Start/Stop must still
	// terminate cleanly.
	tr := New(srv.URL+"/announce", func() Request { return Request{} })

	var mu sync.Mutex
	var calls int
	tr.Start(func(tr *Tracker, resp *Response) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 1
	}, 2*time.Second, 10*time.Millisecond)

	tr.Stop()
	assert.Equal(t, Stopped, tr.State())
}

func TestSetAggregatesContributionAcrossTrackers(t *testing.T) {
	s := NewSet([]string{"udp://a.example:80/announce", "udp://b.example:80/announce"}, func() Request {
		return Request{}
	})
	require.Equal(t, 2, s.Len())

	trackers := s.All()
	trackers[0].seeders, trackers[0].leechers = 3, 1
	trackers[1].seeders, trackers[1].leechers = 5, 2

	seeders, leechers := s.TotalContribution()
	assert.Equal(t, 8, seeders)
	assert.Equal(t, 3, leechers)
}

func TestSetStopAllStopsEveryTracker(t *testing.T) {
	srv := httptest.NewServer(nil)
	defer srv.Close()

	s := NewSet([]string{srv.URL + "/announce"}, func() Request { return Request{} })
	s.StartAll(func(tr *Tracker, resp *Response) {})
	s.StopAll()

	for _, tr := range s.All() {
		assert.Equal(t, Stopped, tr.State())
	}
}
