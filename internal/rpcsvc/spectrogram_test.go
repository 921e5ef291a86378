package rpcsvc

import "testing"

func TestNextPow2(t *testing.T) {
	cases := map[int]int{0: 1, 1: 1, 2: 2, 3: 4, 4: 4, 5: 8, 1000: 1024}
	for in, want := range cases {
		if got := nextPow2(in); got != want {
			t.Errorf("nextPow2(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestSpectrogramAccumFeedProducesOnWindowFull(t *testing.T) {
	// 8 samples/window at a 1ms interval (windowS=0.008, intervalS=0.001).
	acc := newSpectrogramAccum(0.008, 0.001)
	if acc.windowLen != 8 {
		t.Fatalf("expected windowLen 8, got %d", acc.windowLen)
	}
	samples := []float64{1, 2, 3, 4, 5, 6, 7}
	if _, ready := acc.feed(samples, 0.004, 1_000_000); ready {
		t.Fatal("expected no spectrum until the window fills")
	}
	mag, ready := acc.feed([]float64{8}, 0.004, 1_000_000)
	if !ready {
		t.Fatal("expected a spectrum once the window fills")
	}
	if len(mag) != acc.windowLen/2+1 {
		t.Fatalf("expected %d magnitude bins, got %d", acc.windowLen/2+1, len(mag))
	}
}
