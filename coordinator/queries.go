package coordinator

import "github.com/halcyon-dev/bitcoord/tracker"

// PeerInfo is one entry of ListPeers's snapshot, answering the
// list_peers() observer query.
type PeerInfo struct {
	Identifier   string
	Choked       bool
	Requests     int
	DownloadRate int
	UploadRate   int
}

// ListPeers answers list_peers(): a read-only snapshot of every
// admitted peer's observable state.
func (t *Torrent) ListPeers() []PeerInfo {
	var out []PeerInfo
	t.do(func() {
		for _, info := range t.peers.ListInfo() {
			out = append(out, PeerInfo{
				Identifier:   string(info.Identifier),
				Choked:       info.Choked,
				Requests:     info.NumRequests,
				DownloadRate: info.DownloadRate,
				UploadRate:   info.UploadRate,
			})
		}
	})
	return out
}

// TrackerInfo is one entry of ListTrackers's snapshot, answering the
// list_trackers() observer query.
type TrackerInfo struct {
	URL   string
	State tracker.State
	Error string
}

// ListTrackers answers list_trackers().
func (t *Torrent) ListTrackers() []TrackerInfo {
	var out []TrackerInfo
	t.do(func() {
		if t.trackers == nil {
			return
		}
		for _, tr := range t.trackers.All() {
			out = append(out, TrackerInfo{URL: tr.URL(), State: tr.State(), Error: tr.LastError()})
		}
	})
	return out
}

// CalculateDownloadRate answers calculate_download_rate(): the sum of
// every peer's current download rate.
func (t *Torrent) CalculateDownloadRate() int {
	var rate int
	t.do(func() { rate = t.peers.TotalDownloadRate() })
	return rate
}

// CalculateUploadRate answers calculate_upload_rate() analogously.
func (t *Torrent) CalculateUploadRate() int {
	var rate int
	t.do(func() { rate = t.peers.TotalUploadRate() })
	return rate
}
