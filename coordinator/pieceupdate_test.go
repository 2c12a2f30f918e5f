package coordinator

import (
	"testing"
	"time"

	mapset "github.com/deckarep/golang-set"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyon-dev/bitcoord/peer"
)

// piece completion broadcasts HAVE to every initialised peer,
// clears active, sets completed, and advances downloaded/progress.
func TestCompletePieceBroadcastsHaveAndAccounts(t *testing.T) {
	tor := newTestTorrent(4)
	tor.active.Set(3, true)

	l1 := &mockLink{}
	l1.On("SendHave", 3).Return(nil).Once()
	p1 := peer.New("p1", l1, 4, tor)
	p1.MarkInitialised()

	l2 := &mockLink{}
	l2.On("SendHave", 3).Return(nil).Once()
	p2 := peer.New("p2", l2, 4, tor)
	p2.MarkInitialised()

	notReadyLink := &mockLink{}
	notReady := peer.New("p3", notReadyLink, 4, tor)

	tor.peers.Add(p1)
	tor.peers.Add(p2)
	tor.peers.Add(notReady)

	tor.completePiece(3, int64(tor.pieces.Get(3).Length))

	assert.False(t, tor.active.Get(3))
	assert.True(t, tor.completed.Get(3))
	assert.EqualValues(t, tor.pieces.Get(3).Length, tor.Downloaded())
	assert.False(t, tor.IsComplete())

	l1.AssertExpectations(t)
	l2.AssertExpectations(t)
	notReadyLink.AssertNotCalled(t, "SendHave", 3)
}

// completion fires exactly once across the session.
func TestCompletePieceEmitsCompleteExactlyOnce(t *testing.T) {
	tor := newTestTorrent(1)
	tor.active.Set(0, true)

	tor.completePiece(0, tor.pieces.Get(0).Length)
	e := <-tor.Events()
	assert.Equal(t, EventProgress, e.Type)
	assert.EqualValues(t, 1, e.Progress)
	e = <-tor.Events()
	assert.Equal(t, EventComplete, e.Type)
	assert.True(t, tor.IsComplete())

	select {
	case unexpected := <-tor.Events():
		t.Fatalf("unexpected second event %v", unexpected.Type)
	default:
	}
}

func TestOnBlockReceivedDecrementsRequestsAndTriggersVerify(t *testing.T) {
	tor := newTestTorrent(1)
	pc := tor.pieces.Get(0)
	require.Equal(t, 1, pc.NumBlocks())

	p := peer.New("p", nil, 1, tor)
	p.IncrRequests()
	tor.peers.Add(p)

	tor.onBlockReceived("p", 0, 0, make([]byte, pc.BlockLength(0)))
	assert.Equal(t, 0, p.NumRequests())
	// the verification goroutine posts its result back onto the command queue.
	assert.Eventually(t, func() bool { return len(tor.cmdCh) == 1 }, time.Second, 5*time.Millisecond)
}

func TestOnPieceVerifiedCorruptionClearsActiveNoEvent(t *testing.T) {
	tor := newTestTorrent(1)
	tor.active.Set(0, true)

	tor.onPieceVerified(0, false, nil, mapset.NewSet())

	assert.False(t, tor.active.Get(0))
	assert.False(t, tor.completed.Get(0))
	select {
	case e := <-tor.Events():
		t.Fatalf("unexpected event on corruption: %v", e.Type)
	default:
	}
}
