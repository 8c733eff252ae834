package socketio

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncerBurstCollapsesToOne(t *testing.T) {
	var calls int32

	d := NewBroadcastDebouncer(50*time.Millisecond, func() { atomic.AddInt32(&calls, 1) })
	defer d.Stop()

	// A batch of mounts finishing together
	for i := 0; i < 10; i++ {
		d.Trigger()
	}

	time.Sleep(100 * time.Millisecond)

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("expected 1 broadcast, got %d", got)
	}
}

func TestDebouncerSpacedTriggersExtendWindow(t *testing.T) {
	var calls int32

	d := NewBroadcastDebouncer(50*time.Millisecond, func() { atomic.AddInt32(&calls, 1) })
	defer d.Stop()

	for i := 0; i < 10; i++ {
		d.Trigger()
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(100 * time.Millisecond)

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("expected 1 broadcast for spaced triggers, got %d", got)
	}
}

func TestDebouncerSeparateWindowsFireIndependently(t *testing.T) {
	var calls int32

	d := NewBroadcastDebouncer(50*time.Millisecond, func() { atomic.AddInt32(&calls, 1) })
	defer d.Stop()

	d.Trigger()
	time.Sleep(100 * time.Millisecond)

	d.Trigger()
	time.Sleep(100 * time.Millisecond)

	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("expected 2 broadcasts for separate windows, got %d", got)
	}
}

func TestDebouncerStopPreventsCallbacks(t *testing.T) {
	var calls int32

	d := NewBroadcastDebouncer(50*time.Millisecond, func() { atomic.AddInt32(&calls, 1) })

	d.Trigger()
	d.Stop()
	d.Trigger()

	time.Sleep(100 * time.Millisecond)

	if got := atomic.LoadInt32(&calls); got != 0 {
		t.Errorf("expected 0 broadcasts after stop, got %d", got)
	}
}
