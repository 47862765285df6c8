package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func testHeartbeatConfig() HeartbeatConfig {
	return HeartbeatConfig{
		FirstDelay:  10 * time.Millisecond,
		Interval:    15 * time.Millisecond,
		SafetyDelay: 20 * time.Millisecond,
		SendTimeout: 50 * time.Millisecond,
	}
}

func TestHeartbeatSignalsOnSchedule(t *testing.T) {
	var pings atomic.Int32
	hb := NewHeartbeat(testHeartbeatConfig(),
		func(ctx context.Context) error { pings.Add(1); return nil },
		func() bool { return true },
		nil, nil)
	hb.Start()
	defer hb.Stop()

	time.Sleep(100 * time.Millisecond)

	// First at 10ms, safety at 20ms, then the repeating interval.
	if got := pings.Load(); got < 3 {
		t.Fatalf("expected at least 3 heartbeats, got %d", got)
	}
	attempts, failures := hb.Stats()
	if failures != 0 {
		t.Errorf("expected no failures, got %d", failures)
	}
	if int32(attempts) != pings.Load() {
		t.Errorf("stats attempts %d != pings %d", attempts, pings.Load())
	}
}

func TestHeartbeatPreconditionCancelsSchedule(t *testing.T) {
	var pings atomic.Int32
	hb := NewHeartbeat(testHeartbeatConfig(),
		func(ctx context.Context) error { pings.Add(1); return nil },
		func() bool { return false },
		nil, nil)
	hb.Start()
	defer hb.Stop()

	time.Sleep(100 * time.Millisecond)

	if got := pings.Load(); got != 0 {
		t.Fatalf("expected no pings after failed precondition, got %d", got)
	}
}

func TestHeartbeatFailuresCountedNotFatal(t *testing.T) {
	var pings atomic.Int32
	hb := NewHeartbeat(testHeartbeatConfig(),
		func(ctx context.Context) error {
			pings.Add(1)
			return errors.New("presence failed")
		},
		func() bool { return true },
		nil, nil)
	hb.Start()
	defer hb.Stop()

	time.Sleep(100 * time.Millisecond)

	// Failures must not cancel the schedule.
	if got := pings.Load(); got < 3 {
		t.Fatalf("schedule stopped after failures: only %d pings", got)
	}
	attempts, failures := hb.Stats()
	if attempts != failures {
		t.Errorf("expected all attempts failed, got %d/%d", failures, attempts)
	}
}

func TestHeartbeatAlertFiresOnceAboveThreshold(t *testing.T) {
	var alerts atomic.Int32
	hb := NewHeartbeat(testHeartbeatConfig(),
		func(ctx context.Context) error { return errors.New("presence failed") },
		func() bool { return true },
		func(rate float64) {
			alerts.Add(1)
			if rate <= 0.5 {
				t.Errorf("alert fired at rate %.2f, want > 0.5", rate)
			}
		}, nil)
	hb.Start()
	defer hb.Stop()

	time.Sleep(120 * time.Millisecond)

	if got := alerts.Load(); got != 1 {
		t.Fatalf("expected exactly one alert, got %d", got)
	}
}

func TestHeartbeatStopIsIdempotent(t *testing.T) {
	hb := NewHeartbeat(testHeartbeatConfig(),
		func(ctx context.Context) error { return nil },
		func() bool { return true },
		nil, nil)
	hb.Start()
	hb.Stop()
	hb.Stop()
}
