package tracker

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	bencode "github.com/jackpal/bencode-go"
	"github.com/pkg/errors"
)

type httpAnnounceResponse struct {
	FailureReason string `bencode:"failure reason"`
	Interval      int32  `bencode:"interval"`
	Complete      int32  `bencode:"complete"`
	Incomplete    int32  `bencode:"incomplete"`
	Peers         string `bencode:"peers"`
}

// queryHTTP implements the BEP3 HTTP tracker announce, requesting a
// compact peer list.
func queryHTTP(announceURL string, req Request, event string) (*Response, error) {
	u, err := url.Parse(announceURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse tracker URL")
	}
	if !u.IsAbs() {
		return nil, errors.New("tracker URL is not absolute")
	}

	q := u.Query()
	q.Set("info_hash", string(req.InfoHash[:]))
	q.Set("peer_id", string(req.PeerID[:]))
	q.Set("port", strconv.Itoa(int(req.Port)))
	q.Set("uploaded", strconv.FormatInt(req.Uploaded, 10))
	q.Set("downloaded", strconv.FormatInt(req.Downloaded, 10))
	q.Set("left", strconv.FormatInt(req.Left, 10))
	q.Set("compact", "1")
	if event != "" {
		q.Set("event", event)
	}
	u.RawQuery = q.Encode()

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Get(u.String())
	if err != nil {
		return nil, errors.Wrap(err, "GET tracker")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("tracker returned status %d", resp.StatusCode)
	}

	var ar httpAnnounceResponse
	if err := bencode.Unmarshal(resp.Body, &ar); err != nil {
		return nil, errors.Wrap(err, "decode tracker response")
	}
	if ar.FailureReason != "" {
		return nil, errors.New(ar.FailureReason)
	}

	peers, err := decodeCompactPeers([]byte(ar.Peers))
	if err != nil {
		return nil, err
	}

	return &Response{
		Seeders:  int(ar.Complete),
		Leechers: int(ar.Incomplete),
		Interval: time.Duration(ar.Interval) * time.Second,
		Peers:    peers,
	}, nil
}

// decodeCompactPeers decodes a BEP23 compact peer list: 6 bytes per
// peer, 4 bytes of big-endian IPv4 address followed by 2 bytes of
// big-endian port.
func decodeCompactPeers(data []byte) ([]PeerCandidate, error) {
	if len(data)%6 != 0 {
		return nil, fmt.Errorf("tracker: compact peer list length %d not a multiple of 6", len(data))
	}
	peers := make([]PeerCandidate, 0, len(data)/6)
	for i := 0; i < len(data); i += 6 {
		ip := net.IPv4(data[i], data[i+1], data[i+2], data[i+3])
		port := uint16(data[i+4])<<8 | uint16(data[i+5])
		peers = append(peers, PeerCandidate{IP: ip.String(), Port: port})
	}
	return peers, nil
}
