// Command torrentd hosts a single torrent for the lifetime of the
// process: it loads a .torrent file, opens/verifies the payload under
// a download directory, starts announcing, and logs the coordinator's
// event stream until interrupted. Hosting multiple torrents per
// process is explicitly out of this core's scope.
package main

import (
	"bytes"
	"encoding/binary"
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/halcyon-dev/bitcoord/coordinator"
)

func main() {
	torrentPath := flag.String("torrent", "", "path to a .torrent file")
	downloadPath := flag.String("out", ".", "directory to store the downloaded payload under")
	port := flag.Int("port", 6881, "local port advertised to trackers")
	flag.Parse()

	if *torrentPath == "" {
		log.Fatal("torrentd: -torrent is required")
	}

	f, err := os.Open(*torrentPath)
	if err != nil {
		log.Fatalf("torrentd: open descriptor: %v", err)
	}
	defer f.Close()

	t := coordinator.NewTorrent(f, coordinator.Config{
		DownloadPath: *downloadPath,
		PeerID:       generatePeerID(),
		Port:         uint16(*port),
	})

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)

	for {
		select {
		case e := <-t.Events():
			logEvent(t, e)
			if e.Type == coordinator.EventReady {
				t.Start()
			}
			if e.Type == coordinator.EventError {
				return
			}
		case <-sig:
			t.Stop()
			return
		}
	}
}

func logEvent(t *coordinator.Torrent, e coordinator.Event) {
	switch e.Type {
	case coordinator.EventReady:
		log.Printf("torrent ready: status=%s complete=%v", t.Status(), t.IsComplete())
	case coordinator.EventComplete:
		log.Printf("torrent complete: downloaded=%d", t.Downloaded())
	case coordinator.EventProgress:
		log.Printf("progress: %.1f%%", e.Progress*100)
	case coordinator.EventUpdated:
		log.Printf("tracker update: seeders=%d leechers=%d", t.Seeders(), t.Leechers())
	case coordinator.EventError:
		log.Printf("load error: %v", e.Err)
	}
}

// generatePeerID uses an 8-byte timestamp followed by random padding,
// rather than the Azureus-style client tag most real clients use.
func generatePeerID() [20]byte {
	buf := &bytes.Buffer{}
	binary.Write(buf, binary.BigEndian, time.Now().Unix())
	random := make([]byte, 12)
	rand.Read(random)
	buf.Write(random)
	var id [20]byte
	copy(id[:], buf.Bytes())
	return id
}
