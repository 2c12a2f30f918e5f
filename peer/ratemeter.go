package peer

import (
	"sync"

	underscore "github.com/ahl5esoft/golang-underscore"
)

// ponderationWindow is the number of samples averaged into a rate.
const ponderationWindow = 10

// rateMeter smooths raw per-tick byte counts into a moving-average
// rate, the same reduce-over-a-ring-buffer technique the ambient
// stats collaborator uses.
type rateMeter struct {
	mu       sync.Mutex
	activity [ponderationWindow]int
	i        int
	current  int
	rate     int
}

func sumReduce(acc int, x, _ int) int {
	return acc + x
}

// addBytes accrues bytes transferred since the last Tick.
func (r *rateMeter) addBytes(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current += n
}

// tick rolls the current accrual into the ring buffer and recomputes
// the smoothed rate. It should be called on a fixed interval.
func (r *rateMeter) tick() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activity[r.i] = r.current
	r.current = 0
	r.i = (r.i + 1) % ponderationWindow

	var sum int
	underscore.Chain(r.activity).Reduce(0, sumReduce).Value(&sum)
	r.rate = sum / ponderationWindow
}

// Rate returns the current smoothed rate in bytes/sec-equivalent units
// (bytes per tick interval, averaged over the ponderation window).
func (r *rateMeter) Rate() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rate
}
