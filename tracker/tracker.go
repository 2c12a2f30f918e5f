// Package tracker implements the Tracker Set: one Tracker object per
// announce URL, each running its own announce loop over HTTP (BEP3)
// or UDP (BEP15) and surfacing peer candidates and swarm counts to a
// callback.
package tracker

import (
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"
)

// State is a Tracker's announce-loop state.
type State int

const (
	Stopped State = iota
	Announcing
	Waiting
	Error
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Announcing:
		return "announcing"
	case Waiting:
		return "waiting"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// PeerCandidate is one peer address surfaced by an announce response.
type PeerCandidate struct {
	IP   string
	Port uint16
}

// Identifier returns the "ip:port" key a Peer Set admits peers under.
func (c PeerCandidate) Identifier() string {
	return fmt.Sprintf("%s:%d", c.IP, c.Port)
}

// Response is the normalized result of one successful announce.
type Response struct {
	Seeders  int
	Leechers int
	Interval time.Duration
	Peers    []PeerCandidate
}

// Callback receives the result of each announce: resp is nil on
// failure. The tracker records its own error state and leaves it to
// the coordinator to keep its aggregates unchanged in that case.
type Callback func(tr *Tracker, resp *Response)

// Request carries the fields every announce transport sends.
type Request struct {
	InfoHash   [20]byte
	PeerID     [20]byte
	Port       uint16
	Uploaded   int64
	Downloaded int64
	Left       int64
}

const (
	minBackoff = 5 * time.Second
	maxBackoff = 5 * time.Minute
)

// Tracker runs the announce loop for a single announce URL.
type Tracker struct {
	mu sync.Mutex

	url   string
	state State
	err   error

	seeders  int
	leechers int

	key          int32
	numWant      int
	backoff      time.Duration
	stopCh       chan struct{}
	wg           sync.WaitGroup
	announceFunc func(event string) (*Response, error)
}

// New constructs a Tracker for announceURL. requestf supplies the
// announce parameters on each attempt (uploaded/downloaded change
// over the torrent's lifetime, so it is sampled fresh every time).
func New(announceURL string, requestf func() Request) *Tracker {
	tr := &Tracker{
		url:     announceURL,
		state:   Stopped,
		key:     rand.Int31(),
		numWant: 50,
		backoff: minBackoff,
	}
	tr.announceFunc = func(event string) (*Response, error) {
		return query(announceURL, requestf(), event)
	}
	return tr
}

// URL returns the tracker's announce URL.
func (tr *Tracker) URL() string { return tr.url }

// State returns the tracker's current announce-loop state.
func (tr *Tracker) State() State {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.state
}

// LastError returns the most recent announce error message, if any.
func (tr *Tracker) LastError() string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.err == nil {
		return ""
	}
	return tr.err.Error()
}

// Contribution returns this tracker's last-reported seeders/leechers,
// used by the coordinator to maintain its running aggregate.
func (tr *Tracker) Contribution() (seeders, leechers int) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.seeders, tr.leechers
}

// Start begins the announce loop in a background goroutine. cb is
// invoked from that goroutine on every announce attempt, successful
// or not; the coordinator is responsible for re-entering its own
// single-threaded context before touching shared state.
func (tr *Tracker) Start(cb Callback) {
	tr.mu.Lock()
	if tr.state != Stopped {
		tr.mu.Unlock()
		return
	}
	tr.state = Announcing
	tr.stopCh = make(chan struct{})
	stop := tr.stopCh
	tr.mu.Unlock()

	tr.wg.Add(1)
	go tr.loop(cb, stop)
}

func (tr *Tracker) loop(cb Callback, stop chan struct{}) {
	defer tr.wg.Done()

	interval := tr.attempt(cb, "started")
	for {
		select {
		case <-stop:
			tr.attempt(cb, "stopped")
			tr.mu.Lock()
			tr.state = Stopped
			tr.mu.Unlock()
			return
		case <-time.After(interval):
			interval = tr.attempt(cb, "")
		}
	}
}

// attempt runs one announce and returns the wait before the next one.
// On success, the announced interval is used and the error backoff is
// reset. On failure, an exponential backoff capped at maxBackoff is
// used, so a persistently bad tracker cannot be polled in a tight
// loop.
func (tr *Tracker) attempt(cb Callback, event string) time.Duration {
	resp, err := tr.announceFunc(event)
	tr.mu.Lock()
	if err != nil {
		tr.state = Error
		tr.err = err
		backoff := tr.backoff
		tr.backoff *= 2
		if tr.backoff > maxBackoff {
			tr.backoff = maxBackoff
		}
		tr.mu.Unlock()
		cb(tr, nil)
		return backoff
	}
	tr.state = Waiting
	tr.err = nil
	tr.seeders = resp.Seeders
	tr.leechers = resp.Leechers
	tr.backoff = minBackoff
	interval := resp.Interval
	tr.mu.Unlock()
	cb(tr, resp)
	if interval <= 0 {
		interval = minBackoff
	}
	return interval
}

// Stop sends the terminal event=stopped announce and transitions to
// Stopped once the loop goroutine has drained.
func (tr *Tracker) Stop() {
	tr.mu.Lock()
	if tr.state == Stopped {
		tr.mu.Unlock()
		return
	}
	stop := tr.stopCh
	tr.mu.Unlock()
	close(stop)
	tr.wg.Wait()
}

// query dispatches to the HTTP or UDP transport based on URL scheme.
func query(announceURL string, req Request, event string) (*Response, error) {
	switch {
	case strings.HasPrefix(announceURL, "http://"), strings.HasPrefix(announceURL, "https://"):
		return queryHTTP(announceURL, req, event)
	case strings.HasPrefix(announceURL, "udp://"):
		return queryUDP(announceURL, req, event)
	default:
		u, err := url.Parse(announceURL)
		if err != nil || u.Scheme == "" {
			return nil, fmt.Errorf("tracker: invalid announce URL %q", announceURL)
		}
		return nil, fmt.Errorf("tracker: unsupported scheme %q", u.Scheme)
	}
}
