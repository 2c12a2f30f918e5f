package tracker

import (
	"bytes"
	"encoding/binary"
	"io"
	"math/rand"
	"net"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// udpProtocolID is the BEP15 magic constant identifying the first
// connect packet sent to a UDP tracker.
const udpProtocolID uint64 = 0x41727101980

const (
	actionConnect  int32 = 0
	actionAnnounce int32 = 1
)

var eventCodes = map[string]int32{
	"":          0,
	"completed": 1,
	"started":   2,
	"stopped":   3,
}

// queryUDP implements the BEP15 UDP tracker protocol: a connect
// handshake followed by an announce over the same socket.
func queryUDP(announceURL string, req Request, event string) (*Response, error) {
	addr := strings.TrimPrefix(announceURL, "udp://")
	addr = strings.TrimSuffix(addr, "/announce")

	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "resolve tracker address")
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, errors.Wrap(err, "dial tracker")
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(10 * time.Second))

	connID, err := udpConnect(conn)
	if err != nil {
		return nil, err
	}
	return udpAnnounce(conn, connID, req, event)
}

func udpConnect(conn *net.UDPConn) (int64, error) {
	transactionID := rand.Int31()

	buf := &bytes.Buffer{}
	binary.Write(buf, binary.BigEndian, udpProtocolID)
	binary.Write(buf, binary.BigEndian, actionConnect)
	binary.Write(buf, binary.BigEndian, transactionID)
	if _, err := conn.Write(buf.Bytes()); err != nil {
		return 0, errors.Wrap(err, "send connect")
	}

	resp := make([]byte, 16)
	n, err := io.ReadFull(conn, resp)
	if err != nil {
		return 0, errors.Wrap(err, "read connect response")
	}
	if n < 16 {
		return 0, errors.New("tracker: malformed connect response")
	}
	r := bytes.NewReader(resp)
	var action int32
	var gotTransactionID int32
	var connectionID int64
	binary.Read(r, binary.BigEndian, &action)
	binary.Read(r, binary.BigEndian, &gotTransactionID)
	binary.Read(r, binary.BigEndian, &connectionID)
	if action != actionConnect {
		return 0, errors.New("tracker: unexpected action in connect response")
	}
	if gotTransactionID != transactionID {
		return 0, errors.New("tracker: transaction id mismatch")
	}
	return connectionID, nil
}

func udpAnnounce(conn *net.UDPConn, connectionID int64, req Request, event string) (*Response, error) {
	transactionID := rand.Int31()
	key, ok := eventCodes[event]
	if !ok {
		key = 0
	}

	buf := &bytes.Buffer{}
	binary.Write(buf, binary.BigEndian, connectionID)
	binary.Write(buf, binary.BigEndian, actionAnnounce)
	binary.Write(buf, binary.BigEndian, transactionID)
	binary.Write(buf, binary.BigEndian, req.InfoHash)
	binary.Write(buf, binary.BigEndian, req.PeerID)
	binary.Write(buf, binary.BigEndian, req.Downloaded)
	binary.Write(buf, binary.BigEndian, req.Left)
	binary.Write(buf, binary.BigEndian, req.Uploaded)
	binary.Write(buf, binary.BigEndian, key)
	binary.Write(buf, binary.BigEndian, int32(0)) // default IP
	binary.Write(buf, binary.BigEndian, rand.Int31())
	binary.Write(buf, binary.BigEndian, int32(-1)) // numwant: default
	binary.Write(buf, binary.BigEndian, req.Port)
	if _, err := conn.Write(buf.Bytes()); err != nil {
		return nil, errors.Wrap(err, "send announce")
	}

	resp := make([]byte, 20+6*200)
	n, err := conn.Read(resp)
	if err != nil {
		return nil, errors.Wrap(err, "read announce response")
	}
	if n < 20 {
		return nil, errors.New("tracker: malformed announce response")
	}
	r := bytes.NewReader(resp[:n])
	var action, gotTransactionID, interval, leechers, seeders int32
	binary.Read(r, binary.BigEndian, &action)
	binary.Read(r, binary.BigEndian, &gotTransactionID)
	if action != actionAnnounce {
		return nil, errors.New("tracker: unexpected action in announce response")
	}
	if gotTransactionID != transactionID {
		return nil, errors.New("tracker: transaction id mismatch")
	}
	binary.Read(r, binary.BigEndian, &interval)
	binary.Read(r, binary.BigEndian, &leechers)
	binary.Read(r, binary.BigEndian, &seeders)

	peerBytes, _ := io.ReadAll(r)
	peers, err := decodeCompactPeers(peerBytes)
	if err != nil {
		return nil, err
	}

	return &Response{
		Seeders:  int(seeders),
		Leechers: int(leechers),
		Interval: time.Duration(interval) * time.Second,
		Peers:    peers,
	}, nil
}
