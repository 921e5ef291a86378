package capture

import (
	"bytes"
	"testing"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	w := NewWriter(false)
	w.AppendAnalog("analog/daq0", 1000, 990, 0, []float64{1, 2, 3})
	w.AppendAnalog("analog/daq0", 2000, 1990, 3, []float64{4, 5})
	w.AppendAnalog("xsens/suit0", 1500, 1480, 0, []float64{0.1, 0.2})

	var buf bytes.Buffer
	if err := w.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	r, err := OpenReader(bytes.NewReader(buf.Bytes()), false)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	slabs := r.Slabs()
	if len(slabs) != 3 {
		t.Fatalf("expected 3 slabs, got %d", len(slabs))
	}
	for i := 1; i < len(slabs); i++ {
		if slabs[i].TimeNs < slabs[i-1].TimeNs {
			t.Fatalf("slabs not sorted by TimeNs: %+v", slabs)
		}
	}
	if slabs[0].Node != "analog/daq0" || len(slabs[0].Data) != 3 {
		t.Fatalf("unexpected first slab: %+v", slabs[0])
	}
}

func TestWriterReaderRoundTripDeflate(t *testing.T) {
	w := NewWriter(true)
	w.AppendAnalog("analog/daq0", 1000, 990, 0, []float64{1, 2, 3, 4, 5, 6, 7, 8})

	var buf bytes.Buffer
	if err := w.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	r, err := OpenReader(bytes.NewReader(buf.Bytes()), true)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	slabs := r.Slabs()
	if len(slabs) != 1 || len(slabs[0].Data) != 8 {
		t.Fatalf("unexpected slabs: %+v", slabs)
	}
}

func TestNearestFramerate(t *testing.T) {
	// 1/30s interval in nanoseconds.
	fr := nearestFramerate(33333333)
	if fr != 30 {
		t.Fatalf("expected nearest framerate 30, got %v", fr)
	}
}
