package adapters

import (
	"context"
	"testing"
	"time"

	"github.com/cajigaslab/Thalamus-sub000/internal/graph"
	"github.com/cajigaslab/Thalamus-sub000/internal/obstree"
	"github.com/cajigaslab/Thalamus-sub000/internal/reactor"
)

type fakeInputBackend struct {
	channels   []ChannelSpec
	sampleRate float64
	started    bool
	batches    [][][]float64
	next       int
}

func (b *fakeInputBackend) ConfigureChannels(channels []ChannelSpec, sampleRate float64) error {
	b.channels, b.sampleRate = channels, sampleRate
	return nil
}
func (b *fakeInputBackend) Start() error { b.started = true; return nil }
func (b *fakeInputBackend) Stop() error  { b.started = false; return nil }
func (b *fakeInputBackend) Read(ctx context.Context, samplesPerChannel int) ([][]float64, error) {
	if b.next >= len(b.batches) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	batch := b.batches[b.next]
	b.next++
	return batch, nil
}

func TestInputNodeMirrorsChannelMode(t *testing.T) {
	state := obstree.NewDict()
	backend := &fakeInputBackend{batches: [][][]float64{{{1, 2}, {3, 4}}}}
	channels := []ChannelSpec{{Name: "ai0", Mode: ModeVoltage}, {Name: "ai1", Mode: ModeCurrent}}

	r := reactor.New(8)
	n, err := NewInputNode(r, "daq", backend, channels, 1000, 2, state)
	if err != nil {
		t.Fatalf("NewInputNode: %v", err)
	}
	if n.Name() != "daq" {
		t.Fatalf("unexpected name %q", n.Name())
	}

	v, ok := state.Get("channel_mode")
	if !ok {
		t.Fatal("expected channel_mode to be mirrored into state")
	}
	list := v.List()
	if list.Len() != 2 {
		t.Fatalf("expected 2 channel_mode entries, got %d", list.Len())
	}
	first, _ := list.At(0)
	nameVal, _ := first.Dict().Get("name")
	modeVal, _ := first.Dict().Get("mode")
	if nameVal.String() != "ai0" || modeVal.String() != "voltage" {
		t.Fatalf("unexpected first entry: %v %v", nameVal, modeVal)
	}
	second, _ := list.At(1)
	modeVal2, _ := second.Dict().Get("mode")
	if modeVal2.String() != "current" {
		t.Fatalf("expected second channel mode 'current', got %v", modeVal2)
	}
}

func TestInputNodeAcquireLoopPublishesFrame(t *testing.T) {
	backend := &fakeInputBackend{batches: [][][]float64{{{10, 20}}}}
	channels := []ChannelSpec{{Name: "ai0"}}
	r := reactor.New(8)
	n, err := NewInputNode(r, "daq", backend, channels, 500, 2, nil)
	if err != nil {
		t.Fatalf("NewInputNode: %v", err)
	}

	received := make(chan struct{}, 1)
	n.OnReady(func(node graph.Node) {
		select {
		case received <- struct{}{}:
		default:
		}
	})

	n.Start()
	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a ready signal from acquireLoop")
	}

	frame := n.AnalogFrame()
	if frame == nil || len(frame.Data) != 1 || frame.Data[0][1] != 20 {
		t.Fatalf("unexpected frame: %+v", frame)
	}
	n.Stop()
}
