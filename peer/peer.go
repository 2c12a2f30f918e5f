// Package peer implements the Peer Set: the collection of active
// peers keyed by stable identifier, each carrying the bitfield,
// interest/choke state, and rate counters the coordinator's policies
// read and mutate.
package peer

import (
	"sync"

	mapset "github.com/deckarep/golang-set"

	"github.com/halcyon-dev/bitcoord/bitfield"
	"github.com/halcyon-dev/bitcoord/wire"
)

// Identifier is a peer's stable key: typically "ip:port", or the
// 20-byte peer_id hex-encoded when the transport supplies one.
type Identifier string

// EventType enumerates the peer lifecycle events the coordinator
// subscribes to, as a narrow typed enum.
type EventType int

const (
	// Connect fires once the peer's handshake completes and it is
	// ready to receive the initial BITFIELD.
	Connect EventType = iota
	// Disconnect fires when the peer's connection ends, for any reason.
	Disconnect
	// Choked fires when the peer's choke-of-us state changes.
	Choked
	// Ready fires when the peer signals capacity for another chunk request.
	Ready
	// Updated fires when the peer's bitfield is mutated or refreshed.
	Updated
)

func (t EventType) String() string {
	switch t {
	case Connect:
		return "connect"
	case Disconnect:
		return "disconnect"
	case Choked:
		return "choked"
	case Ready:
		return "ready"
	case Updated:
		return "updated"
	default:
		return "unknown"
	}
}

// Event is delivered to a peer's Handle on a lifecycle transition.
type Event struct {
	Type EventType
	Peer *Peer
}

// Handle is the opaque, one-directional notification sink a Peer
// holds instead of a pointer back to the torrent that owns it. The
// coordinator implements Handle.
type Handle interface {
	Notify(Event)
}

// Peer is the coordinator's view of one swarm participant.
type Peer struct {
	mu sync.Mutex

	id   Identifier
	link wire.Link

	bitfield         *bitfield.Bitfield
	amInterested     bool
	isChoked         bool
	numRequests      int
	piecesInProgress mapset.Set
	initialised      bool

	download rateMeter
	upload   rateMeter

	handle Handle
}

// New constructs a Peer bound to numPieces bits of bitfield state. It
// is not registered with any Peer Set until AddPeer admits it.
func New(id Identifier, link wire.Link, numPieces int, handle Handle) *Peer {
	return &Peer{
		id:               id,
		link:             link,
		bitfield:         bitfield.New(numPieces),
		piecesInProgress: mapset.NewSet(),
		handle:           handle,
		isChoked:         true,
	}
}

// ID returns the peer's stable identifier.
func (p *Peer) ID() Identifier { return p.id }

// Link returns the peer's outbound wire link.
func (p *Peer) Link() wire.Link { return p.link }

// Bitfield returns the peer's advertised bitfield.
func (p *Peer) Bitfield() *bitfield.Bitfield {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bitfield
}

// SetBitfield replaces the peer's bitfield wholesale (on a BITFIELD
// message) and emits Updated.
func (p *Peer) SetBitfield(bf *bitfield.Bitfield) {
	p.mu.Lock()
	p.bitfield = bf
	p.mu.Unlock()
	p.notify(Updated)
}

// MarkHave sets one bit of the peer's bitfield (on a HAVE message)
// and emits Updated.
func (p *Peer) MarkHave(pieceIndex int) {
	p.mu.Lock()
	p.bitfield.Set(pieceIndex, true)
	p.mu.Unlock()
	p.notify(Updated)
}

// AmInterested reports whether we have told this peer we want a piece
// it has.
func (p *Peer) AmInterested() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.amInterested
}

// SetAmInterested updates our interest flag and, if it changed, tells
// the peer over the wire link.
func (p *Peer) SetAmInterested(interested bool) error {
	p.mu.Lock()
	changed := p.amInterested != interested
	p.amInterested = interested
	p.mu.Unlock()
	if !changed || p.link == nil {
		return nil
	}
	if interested {
		return p.link.SendInterested()
	}
	return p.link.SendNotInterested()
}

// IsChoked reports whether the peer is refusing to serve us.
func (p *Peer) IsChoked() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isChoked
}

// SetChoked updates the peer's choke-of-us state and emits Choked if
// it changed.
func (p *Peer) SetChoked(choked bool) {
	p.mu.Lock()
	changed := p.isChoked != choked
	p.isChoked = choked
	p.mu.Unlock()
	if changed {
		p.notify(Choked)
	}
}

// NumRequests returns the count of outstanding chunk requests.
func (p *Peer) NumRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.numRequests
}

// IncrRequests records that one more chunk request is outstanding.
func (p *Peer) IncrRequests() {
	p.mu.Lock()
	p.numRequests++
	p.mu.Unlock()
}

// DecrRequests records that one outstanding chunk request resolved.
func (p *Peer) DecrRequests() {
	p.mu.Lock()
	if p.numRequests > 0 {
		p.numRequests--
	}
	p.mu.Unlock()
}

// PiecesInProgress returns the set of piece indices this peer is
// currently serving to us.
func (p *Peer) PiecesInProgress() mapset.Set {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.piecesInProgress.Clone()
}

// AddPieceInProgress records that this peer is serving pieceIndex.
func (p *Peer) AddPieceInProgress(pieceIndex int) {
	p.mu.Lock()
	p.piecesInProgress.Add(pieceIndex)
	p.mu.Unlock()
}

// RemovePieceInProgress records that this peer is no longer serving
// pieceIndex, typically because it finished or was dropped.
func (p *Peer) RemovePieceInProgress(pieceIndex int) {
	p.mu.Lock()
	p.piecesInProgress.Remove(pieceIndex)
	p.mu.Unlock()
}

// Initialised reports whether the handshake completed.
func (p *Peer) Initialised() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initialised
}

// MarkInitialised flags the handshake complete and emits Connect.
func (p *Peer) MarkInitialised() {
	p.mu.Lock()
	p.initialised = true
	p.mu.Unlock()
	p.notify(Connect)
}

// SignalReady notifies the coordinator that this peer now has spare
// request capacity, for the piece-selection policy to act on.
func (p *Peer) SignalReady() {
	p.notify(Ready)
}

// RecordDownload accrues bytes received from this peer this tick.
func (p *Peer) RecordDownload(n int) { p.download.addBytes(n) }

// RecordUpload accrues bytes sent to this peer this tick.
func (p *Peer) RecordUpload(n int) { p.upload.addBytes(n) }

// Tick rolls this interval's transfer counts into the smoothed rate.
// The host application calls this on a fixed interval for every peer.
func (p *Peer) Tick() {
	p.download.tick()
	p.upload.tick()
}

// CurrentDownloadRate returns the smoothed download rate.
func (p *Peer) CurrentDownloadRate() int { return p.download.Rate() }

// CurrentUploadRate returns the smoothed upload rate.
func (p *Peer) CurrentUploadRate() int { return p.upload.Rate() }

// Disconnect closes the wire link, if any, and emits Disconnect. It
// does not remove the peer from any Peer Set; that is the set's job.
func (p *Peer) Disconnect() {
	if p.link != nil {
		p.link.Close()
	}
	p.notify(Disconnect)
}

func (p *Peer) notify(t EventType) {
	if p.handle == nil {
		return
	}
	p.handle.Notify(Event{Type: t, Peer: p})
}
