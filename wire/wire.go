// Package wire implements a narrow slice of the BitTorrent peer wire
// protocol: the outbound Link the coordinator and peer layer send
// through (BITFIELD after a peer connects, HAVE after a piece
// completes, interest, choke and block messages), a length-prefixed
// message reader, and the handshake encoding. Connection management,
// per-message-type payload parsing and rate accounting are not
// implemented here.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"
)

// Message IDs, per BEP3.
const (
	Choke         = 0
	Unchoke       = 1
	Interested    = 2
	NotInterested = 3
	Have          = 4
	Bitfield      = 5
	Request       = 6
	Piece         = 7
	Cancel        = 8
	Port          = 9
)

// Link is the narrow outbound interface the coordinator calls into to
// send wire messages to a remote peer. It deliberately excludes an
// outbound REQUEST method: issuing chunk requests is the peer-wire
// collaborator's job, not the coordinator's.
type Link interface {
	SendBitfield(bitfield []byte) error
	SendHave(pieceIndex int) error
	SendChoke() error
	SendUnchoke() error
	SendInterested() error
	SendNotInterested() error
	SendBlock(pieceIndex, begin int, block []byte) error
	Close() error
}

type conn struct {
	c               net.Conn
	timeout         time.Duration
	lastMessageSent time.Time
}

// NewLink wraps a live TCP connection as a Link.
func NewLink(c net.Conn, timeout time.Duration) Link {
	return &conn{c: c, timeout: timeout}
}

func (w *conn) Close() error { return w.c.Close() }

func (w *conn) SendBitfield(bitfield []byte) error {
	buf := &bytes.Buffer{}
	binary.Write(buf, binary.BigEndian, int32(1+len(bitfield)))
	binary.Write(buf, binary.BigEndian, uint8(Bitfield))
	buf.Write(bitfield)
	return w.send(buf.Bytes())
}

func (w *conn) SendHave(pieceIndex int) error {
	buf := &bytes.Buffer{}
	binary.Write(buf, binary.BigEndian, int32(5))
	binary.Write(buf, binary.BigEndian, uint8(Have))
	binary.Write(buf, binary.BigEndian, int32(pieceIndex))
	return w.send(buf.Bytes())
}

func (w *conn) SendChoke() error         { return w.sendSingleByte(Choke) }
func (w *conn) SendUnchoke() error       { return w.sendSingleByte(Unchoke) }
func (w *conn) SendInterested() error    { return w.sendSingleByte(Interested) }
func (w *conn) SendNotInterested() error { return w.sendSingleByte(NotInterested) }

func (w *conn) sendSingleByte(id uint8) error {
	buf := &bytes.Buffer{}
	binary.Write(buf, binary.BigEndian, int32(1))
	binary.Write(buf, binary.BigEndian, id)
	return w.send(buf.Bytes())
}

func (w *conn) SendBlock(pieceIndex, begin int, block []byte) error {
	buf := &bytes.Buffer{}
	binary.Write(buf, binary.BigEndian, int32(9+len(block)))
	binary.Write(buf, binary.BigEndian, uint8(Piece))
	binary.Write(buf, binary.BigEndian, int32(pieceIndex))
	binary.Write(buf, binary.BigEndian, int32(begin))
	buf.Write(block)
	return w.send(buf.Bytes())
}

func (w *conn) send(msg []byte) error {
	w.lastMessageSent = time.Now()
	if w.timeout > 0 {
		w.c.SetWriteDeadline(time.Now().Add(w.timeout))
	}
	_, err := w.c.Write(msg)
	return err
}

// ReadMessage reads one length-prefixed message off r, returning its
// id and payload. A zero-length message is a keep-alive and is
// returned with id 0 and a nil payload.
func ReadMessage(r io.Reader) (id uint8, payload []byte, err error) {
	var length int32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return 0, nil, err
	}
	if length == 0 {
		return 0, nil, nil
	}
	if err := binary.Read(r, binary.BigEndian, &id); err != nil {
		return 0, nil, err
	}
	payload = make([]byte, length-1)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, err
	}
	return id, payload, nil
}

// Handshake is the fixed 68-byte BEP3 handshake layout.
type Handshake struct {
	Len      uint8
	Protocol [19]byte
	Reserved [8]byte
	InfoHash [20]byte
	PeerID   [20]byte
}

// ProtocolName is the pstr field BEP3 requires.
const ProtocolName = "BitTorrent protocol"

// EncodeHandshake serializes a handshake for infoHash/peerID.
func EncodeHandshake(infoHash, peerID []byte) ([]byte, error) {
	if len(infoHash) != 20 || len(peerID) != 20 {
		return nil, fmt.Errorf("wire: info hash and peer id must be 20 bytes")
	}
	h := Handshake{Len: uint8(len(ProtocolName))}
	copy(h.Protocol[:], ProtocolName)
	copy(h.InfoHash[:], infoHash)
	copy(h.PeerID[:], peerID)

	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.BigEndian, h); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeHandshake parses a 68-byte handshake.
func DecodeHandshake(data []byte) (*Handshake, error) {
	if len(data) != 68 {
		return nil, fmt.Errorf("wire: handshake must be 68 bytes, got %d", len(data))
	}
	h := &Handshake{}
	if err := binary.Read(bytes.NewReader(data), binary.BigEndian, h); err != nil {
		return nil, err
	}
	return h, nil
}
