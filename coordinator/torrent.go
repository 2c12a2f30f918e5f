// Package coordinator implements the Torrent coordinator: the state
// machine that owns a single torrent's global state (completed/active
// bitfields, peer set, tracker set, piece index, file set) and
// enforces the policies that bind them together — metainfo parsing,
// per-piece verification at load, peer admission/dismissal, piece
// activation and assignment, chunk upload service, and progress
// accounting.
package coordinator

import (
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/halcyon-dev/bitcoord/bitfield"
	"github.com/halcyon-dev/bitcoord/metainfo"
	"github.com/halcyon-dev/bitcoord/peer"
	"github.com/halcyon-dev/bitcoord/piece"
	"github.com/halcyon-dev/bitcoord/storage"
	"github.com/halcyon-dev/bitcoord/tracker"
)

// Status is the torrent's lifecycle status.
type Status int

const (
	Loading Status = iota
	Ready
	LoadError
)

func (s Status) String() string {
	switch s {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case LoadError:
		return "load_error"
	default:
		return "unknown"
	}
}

// Config carries everything the coordinator needs that is not present
// in the metainfo descriptor: where to store the payload and how to
// identify ourselves to trackers and peers.
type Config struct {
	DownloadPath string
	PeerID       [20]byte
	Port         uint16
	Filesystem   afero.Fs // defaults to afero.NewOsFs() if nil
	RNG          *rand.Rand // defaults to a time-seeded source; tests inject a seed
}

// Torrent owns a single torrent's lifecycle. All mutation runs on one
// logical execution context: a command queue drained by a single `run`
// goroutine, so no two handlers ever touch shared state concurrently.
// The observable snapshot fields are additionally guarded by mu so
// callers on other goroutines can read them without round-tripping
// through the command queue.
type Torrent struct {
	cfg Config

	cmdCh  chan func()
	events chan Event
	rng    *rand.Rand

	mu         sync.Mutex
	status     Status
	lastError  error
	downloaded int64
	uploaded   int64
	seeders    int
	leechers   int
	isComplete bool
	completed  *bitfield.Bitfield // allocated at load, then updated in place under mu by the run loop

	// run-loop-private state: touched only inside closures executed by
	// run(). plan is the exception: finishLoad sets it on the run loop,
	// and Left and trackerRequest also read it, under mu, from other
	// goroutines.
	plan              *metainfo.Plan
	files             storage.FileSet
	pieces            *piece.Index
	active            *bitfield.Bitfield
	peers             *peer.Set
	trackers          *tracker.Set
	trackerContrib    map[string][2]int // url -> last {seeders, leechers}
	stopped           bool
}

// NewTorrent constructs a Torrent in Loading status and kicks off the
// asynchronous load: parse the descriptor, open/create the backing
// files, build the piece index, and bulk-verify on-disk pieces. r is
// read by the load goroutine after NewTorrent returns; it is no longer
// read once EventReady or EventError has been emitted.
func NewTorrent(r io.ReadSeeker, cfg Config) *Torrent {
	if cfg.Filesystem == nil {
		cfg.Filesystem = afero.NewOsFs()
	}
	rng := cfg.RNG
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	t := &Torrent{
		cfg:    cfg,
		status: Loading,
		cmdCh:  make(chan func(), 256),
		events: make(chan Event, eventBufferSize),
		rng:    rng,
		peers:  peer.NewSet(),
	}
	go t.run()
	go t.load(r)
	return t
}

func (t *Torrent) run() {
	for fn := range t.cmdCh {
		fn()
	}
}

// post enqueues fn to run on the coordinator's single execution
// context without waiting for it to run.
func (t *Torrent) post(fn func()) {
	t.cmdCh <- fn
}

// do enqueues fn and blocks until it has run, for callers that need a
// consistent read of run-loop-private state.
func (t *Torrent) do(fn func()) {
	done := make(chan struct{})
	t.cmdCh <- func() {
		fn()
		close(done)
	}
	<-done
}

func (t *Torrent) load(r io.ReadSeeker) {
	plan, err := metainfo.Load(r)
	if err != nil {
		t.post(func() { t.failLoad(errors.Wrap(err, "load metainfo")) })
		return
	}

	fileSet, err := storage.Open(t.cfg.Filesystem, t.cfg.DownloadPath, plan.Name, planFiles(plan), plan.MultiFile)
	if err != nil {
		t.post(func() { t.failLoad(errors.Wrap(err, "open file set")) })
		return
	}

	idx, err := piece.Build(plan, fileSet.Files())
	if err != nil {
		t.post(func() { t.failLoad(errors.Wrap(err, "build piece index")) })
		return
	}

	completeIndices := piece.Scan(idx, fileSet)

	t.post(func() { t.finishLoad(plan, fileSet, idx, completeIndices) })
}

func planFiles(plan *metainfo.Plan) []storage.File {
	out := make([]storage.File, len(plan.Files))
	for i, f := range plan.Files {
		out[i] = storage.File{Path: f.Path, Length: f.Length}
	}
	return out
}

func (t *Torrent) failLoad(err error) {
	t.mu.Lock()
	t.status = LoadError
	t.lastError = err
	t.mu.Unlock()
	t.emit(Event{Type: EventError, Err: err})
}

// finishLoad transitions Loading -> Ready, emitting complete before
// ready if the torrent loaded fully whole.
func (t *Torrent) finishLoad(plan *metainfo.Plan, fileSet storage.FileSet, idx *piece.Index, completeIndices []int) {
	t.plan = plan
	t.files = fileSet
	t.pieces = idx
	t.active = bitfield.New(idx.Len())
	t.trackerContrib = make(map[string][2]int)
	t.trackers = tracker.NewSet(plan.AnnounceURLs, t.trackerRequest)

	completed := bitfield.New(idx.Len())
	for _, i := range completeIndices {
		completed.Set(i, true)
	}

	t.mu.Lock()
	t.plan = plan
	t.completed = completed
	t.status = Ready
	whole := completed.Count() == idx.Len()
	t.isComplete = whole
	t.mu.Unlock()

	if whole {
		t.emit(Event{Type: EventComplete})
	}
	t.emit(Event{Type: EventReady})
}

// InfoHash returns the torrent's 20-byte identity.
func (t *Torrent) InfoHash() [20]byte {
	var h [20]byte
	t.do(func() {
		if t.plan != nil {
			h = t.plan.InfoHash
		}
	})
	return h
}

// Status returns the torrent's current lifecycle status.
func (t *Torrent) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// LastError returns the fatal load error, if status is LoadError.
func (t *Torrent) LastError() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastError
}

// IsComplete reports whether every piece has been verified present.
func (t *Torrent) IsComplete() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isComplete
}

// Downloaded returns bytes acquired this session (excludes bytes
// already on disk at load).
func (t *Torrent) Downloaded() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.downloaded
}

// Uploaded returns total bytes served to peers this session.
func (t *Torrent) Uploaded() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.uploaded
}

// Left returns the number of bytes still needed to complete the
// torrent, for the tracker request's `left` parameter.
func (t *Torrent) Left() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.leftLocked()
}

// leftLocked sums the lengths of the pieces not yet completed, counting
// the last piece at its own (possibly shorter) length. Callers hold mu.
func (t *Torrent) leftLocked() int64 {
	if t.plan == nil || t.completed == nil {
		return 0
	}
	have := int64(0)
	for _, i := range t.completed.SetIndices() {
		if i == t.plan.NumPieces()-1 {
			have += t.plan.Size - int64(i)*t.plan.PieceLength
		} else {
			have += t.plan.PieceLength
		}
	}
	return t.plan.Size - have
}

// CompletedSnapshot returns a copy of the completed-pieces bitfield.
func (t *Torrent) CompletedSnapshot() *bitfield.Bitfield {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.completed == nil {
		return nil
	}
	return t.completed.Clone()
}

// Seeders and Leechers return the swarm's aggregate counts across all
// trackers.
func (t *Torrent) Seeders() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.seeders
}

func (t *Torrent) Leechers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.leechers
}

// trackerRequest supplies the announce parameters shared by every
// tracker in the set.
func (t *Torrent) trackerRequest() tracker.Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	req := tracker.Request{
		PeerID:     t.cfg.PeerID,
		Port:       t.cfg.Port,
		Downloaded: t.downloaded,
		Uploaded:   t.uploaded,
	}
	if t.plan != nil {
		req.InfoHash = t.plan.InfoHash
	}
	req.Left = t.leftLocked()
	return req
}
