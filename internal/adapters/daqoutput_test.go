package adapters

import (
	"testing"

	"github.com/cajigaslab/Thalamus-sub000/internal/modality"
	"github.com/cajigaslab/Thalamus-sub000/internal/obstree"
	"github.com/cajigaslab/Thalamus-sub000/internal/reactor"
)

type fakeOutputBackend struct {
	channels []ChannelSpec
	started  bool
	written  [][]float64
}

func (b *fakeOutputBackend) ConfigureChannels(channels []ChannelSpec, sampleRate float64) error {
	b.channels = channels
	return nil
}
func (b *fakeOutputBackend) Start() error { b.started = true; return nil }
func (b *fakeOutputBackend) Stop() error  { b.started = false; return nil }
func (b *fakeOutputBackend) Write(data [][]float64) error {
	b.written = data
	return nil
}

func TestOutputNodeInjectAnalogWritesToBackend(t *testing.T) {
	backend := &fakeOutputBackend{}
	r := reactor.New(4)
	n, err := NewOutputNode(r, "ao", backend, []ChannelSpec{{Name: "ao0", Mode: ModeCurrent}}, 1000, obstree.NewDict())
	if err != nil {
		t.Fatalf("NewOutputNode: %v", err)
	}
	if err := n.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !backend.started {
		t.Fatal("expected backend to be started")
	}

	n.InjectAnalog(&modality.AnalogFrame{Data: [][]float64{{1, 2, 3}}})
	if len(backend.written) != 1 || backend.written[0][2] != 3 {
		t.Fatalf("unexpected written data: %v", backend.written)
	}

	if err := n.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if backend.started {
		t.Fatal("expected backend to be stopped")
	}
}

func TestOutputNodeInjectAnalogNilFrameIsNoop(t *testing.T) {
	backend := &fakeOutputBackend{}
	r := reactor.New(4)
	n, err := NewOutputNode(r, "ao", backend, nil, 1000, nil)
	if err != nil {
		t.Fatalf("NewOutputNode: %v", err)
	}
	n.InjectAnalog(nil)
	if backend.written != nil {
		t.Fatalf("expected no write for a nil frame, got %v", backend.written)
	}
}
