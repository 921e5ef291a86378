package rpcsvc

import "testing"

// TestBinStateScenario6 reproduces §8 scenario 6 literally: samples
// [0,10,-5,3,7] at a 250_000ns interval, bin_ns=1_000_000. The first bin
// (the first 4 samples) emits (min=-5, max=10); the 5th sample starts a new
// bin that has not closed yet.
func TestBinStateScenario6(t *testing.T) {
	var b binState
	b.reset(0, 1_000_000)

	samples := []float64{0, 10, -5, 3, 7}
	var closes []struct{ min, max float64 }
	for _, v := range samples {
		if min, max, closed := b.feed(v, 250_000, 1_000_000); closed {
			closes = append(closes, struct{ min, max float64 }{min, max})
		}
	}

	if len(closes) != 1 {
		t.Fatalf("expected exactly 1 closed bin after 5 samples, got %d", len(closes))
	}
	if closes[0].min != -5 || closes[0].max != 10 {
		t.Fatalf("expected bin (min=-5,max=10), got (min=%v,max=%v)", closes[0].min, closes[0].max)
	}
	if !b.started {
		t.Fatal("expected the 5th sample to have started a fresh bin")
	}
}
