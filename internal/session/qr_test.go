package session

import (
	"sync/atomic"
	"testing"
	"time"
)

func testQRConfig() QRConfig {
	return QRConfig{
		Expiry:         40 * time.Millisecond,
		PollInterval:   10 * time.Millisecond,
		PollCeiling:    100 * time.Millisecond,
		MaxGenerations: 3,
	}
}

func TestQRTrackerBudgetExhaustion(t *testing.T) {
	tracker := NewQRTracker(testQRConfig(), QRCallbacks{}, nil)
	defer tracker.Cancel()

	for i := 1; i <= 3; i++ {
		if tracker.OnGenerated("code") {
			t.Fatalf("generation %d should be within budget", i)
		}
	}
	if !tracker.OnGenerated("code") {
		t.Fatal("fourth generation should exhaust the budget")
	}
	if got := tracker.Generations(); got != 4 {
		t.Errorf("expected 4 generations recorded, got %d", got)
	}
}

func TestQRTrackerExpiryFires(t *testing.T) {
	var expired atomic.Int32
	tracker := NewQRTracker(testQRConfig(), QRCallbacks{
		OnExpired: func() { expired.Add(1) },
	}, nil)
	defer tracker.Cancel()

	tracker.OnGenerated("code")
	time.Sleep(80 * time.Millisecond)

	if expired.Load() != 1 {
		t.Fatalf("expected exactly one expiry callback, got %d", expired.Load())
	}
}

func TestQRTrackerNewCodeResetsExpiry(t *testing.T) {
	var expired atomic.Int32
	tracker := NewQRTracker(testQRConfig(), QRCallbacks{
		OnExpired: func() { expired.Add(1) },
	}, nil)
	defer tracker.Cancel()

	tracker.OnGenerated("first")
	time.Sleep(25 * time.Millisecond)
	// A fresh code replaces the live timer before it elapses.
	tracker.OnGenerated("second")
	time.Sleep(25 * time.Millisecond)

	if expired.Load() != 0 {
		t.Fatalf("expiry fired despite timer replacement")
	}
}

func TestQRTrackerCancelSuppressesExpiry(t *testing.T) {
	var expired atomic.Int32
	tracker := NewQRTracker(testQRConfig(), QRCallbacks{
		OnExpired: func() { expired.Add(1) },
	}, nil)

	tracker.OnGenerated("code")
	tracker.Cancel()
	time.Sleep(80 * time.Millisecond)

	if expired.Load() != 0 {
		t.Fatalf("expiry fired after cancel")
	}
	if tracker.OnGenerated("late") {
		t.Fatal("cancelled tracker must not report exhaustion")
	}
}

func TestQRTrackerScanDetection(t *testing.T) {
	var hasCreds atomic.Bool
	scanned := make(chan struct{}, 1)

	tracker := NewQRTracker(testQRConfig(), QRCallbacks{
		HasCreds:  func() bool { return hasCreds.Load() },
		OnScanned: func() { scanned <- struct{}{} },
	}, nil)
	defer tracker.Cancel()

	tracker.OnGenerated("code")
	hasCreds.Store(true)

	select {
	case <-scanned:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("scan poll did not detect credentials")
	}
}

func TestQRTrackerPollCeiling(t *testing.T) {
	unscanned := make(chan struct{}, 1)

	tracker := NewQRTracker(testQRConfig(), QRCallbacks{
		HasCreds: func() bool { return false },
		OnUnscan: func() { unscanned <- struct{}{} },
	}, nil)
	defer tracker.Cancel()

	tracker.OnGenerated("code")

	select {
	case <-unscanned:
	case <-time.After(300 * time.Millisecond):
		t.Fatal("scan poll did not give up at the ceiling")
	}
}
