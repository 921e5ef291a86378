package capture

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func TestReplayDeliversInTimeOrder(t *testing.T) {
	w := NewWriter(false)
	w.AppendAnalog("analog/daq0", 0, 0, 0, []float64{1})
	w.AppendAnalog("analog/daq0", int64(5 * time.Millisecond), 0, 1, []float64{2})

	var buf bytes.Buffer
	if err := w.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	r, err := OpenReader(bytes.NewReader(buf.Bytes()), false)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}

	var order []float64
	injectors := map[string]Injector{
		"analog/daq0": func(s Slab) { order = append(order, s.Data[0]) },
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := Replay(ctx, r, injectors); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("unexpected replay order: %v", order)
	}
}

func TestReplayHonorsCancellation(t *testing.T) {
	w := NewWriter(false)
	w.AppendAnalog("analog/daq0", 0, 0, 0, []float64{1})
	w.AppendAnalog("analog/daq0", int64(time.Hour), 0, 1, []float64{2})

	var buf bytes.Buffer
	if err := w.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	r, err := OpenReader(bytes.NewReader(buf.Bytes()), false)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = Replay(ctx, r, map[string]Injector{"analog/daq0": func(Slab) {}})
	if err == nil {
		t.Fatal("expected Replay to return an error when ctx is cancelled mid-stream")
	}
}
