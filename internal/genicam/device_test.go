package genicam

import (
	"testing"
	"time"
)

// TestFramerateTrackerUsesLatestArrivalNotHeapOrder guards against reading
// the newest timestamp back out of array position len-1: container/heap
// only guarantees index 0 is the minimum, so after several Push/Pop cycles
// the array's last slot need not hold the most recent arrival.
func TestFramerateTrackerUsesLatestArrivalNotHeapOrder(t *testing.T) {
	tr := newFramerateTracker()
	base := time.Unix(0, 0)
	// 12 arrivals 100ms apart: the last observe trims the first arrival,
	// and that heap.Pop moves the newest timestamp off the array tail. The
	// 11 surviving arrivals span exactly 1s (10 fps); reading "newest" from
	// the tail instead would give a 900ms span (about 11.1 fps).
	for i := 0; i < 12; i++ {
		tr.observe(base.Add(time.Duration(i) * 100 * time.Millisecond))
	}
	got := tr.fps()
	if got < 9.5 || got > 10.5 {
		t.Fatalf("fps = %v, want ~10", got)
	}
}

func TestFramerateTrackerTrimsOutsideWindow(t *testing.T) {
	tr := newFramerateTracker()
	base := time.Unix(0, 0)
	tr.observe(base)
	tr.observe(base.Add(2 * time.Second))
	// Only the second arrival should remain once the first falls outside
	// the trailing 1s window; fewer than 2 samples means fps reports 0.
	if got := tr.fps(); got != 0 {
		t.Fatalf("fps = %v, want 0 once the old sample is trimmed", got)
	}
}
