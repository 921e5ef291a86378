package rpcsvc

import (
	"context"
	"encoding/json"
	"math"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	"github.com/cajigaslab/Thalamus-sub000/internal/graph"
	"github.com/cajigaslab/Thalamus-sub000/internal/modality"
)

// SpectrogramRequest names a source node, channel selection, the analysis
// window length, and hop length (§4.4 "Spectrogram").
type SpectrogramRequest struct {
	NodeSelector
	WindowS float64 `json:"window_s"`
	HopS    float64 `json:"hop_s"`
}

// SpectrogramResponse carries one channel's half-spectrum.
type SpectrogramResponse struct {
	Channel      string    `json:"channel"`
	Magnitude    []float64 `json:"magnitude"`
	MaxFrequency float64   `json:"max_frequency"`
	Last         bool      `json:"last,omitempty"`
}

// nextPow2 returns the smallest power of two >= n.
func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// spectrogramAccum buffers samples for one channel until a full analysis
// window is available, applies a Hamming window, and runs a real FFT via
// gonum.org/v1/gonum/dsp/fourier — the FFT library carried in from the rest
// of the retrieval pack's signal-processing stack (gonum is already a
// teacher dependency for matrix work; fourier/window are siblings in the
// same module).
type spectrogramAccum struct {
	samples     []float64
	windowLen   int
	hopLen      int
	intervalNs  int64
	fft         *fourier.FFT
}

func newSpectrogramAccum(windowS, intervalS float64) *spectrogramAccum {
	n := nextPow2(int(math.Round(windowS / intervalS)))
	if n < 2 {
		n = 2
	}
	return &spectrogramAccum{windowLen: n, fft: fourier.NewFFT(n)}
}

// feed appends samples and, once a full window is buffered, returns one
// windowed-and-transformed magnitude spectrum plus true; at most one
// spectrum is produced per call. It then drops hop_s worth of samples from
// the front of the buffer. When the hop is at least as long as the buffer,
// the buffer is cleared and the rest of the hop is not carried over to
// later calls.
func (a *spectrogramAccum) feed(samples []float64, hopS float64, intervalNs int64) ([]float64, bool) {
	a.intervalNs = intervalNs
	a.samples = append(a.samples, samples...)
	if len(a.samples) < a.windowLen {
		return nil, false
	}
	hopLen := int(math.Round(hopS / (float64(intervalNs) / 1e9)))
	if hopLen < 1 {
		hopLen = 1
	}
	frame := append([]float64(nil), a.samples[:a.windowLen]...)
	window.Hamming(frame)
	coeffs := a.fft.Coefficients(nil, frame)
	mag := make([]float64, len(coeffs))
	for i, c := range coeffs {
		mag[i] = math.Hypot(real(c), imag(c))
	}
	if hopLen >= len(a.samples) {
		a.samples = a.samples[:0]
	} else {
		a.samples = append(a.samples[:0], a.samples[hopLen:]...)
	}
	return mag, true
}

// handleSpectrogram implements the Spectrogram RPC (§4.4).
func (s *Service) handleSpectrogram(c *Conn, e Envelope) {
	var req SpectrogramRequest
	if err := json.Unmarshal(e.Payload, &req); err != nil {
		sendError(c, "SpectrogramResponse", e.ID, err)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n, ok := resolveNode(ctx, s.Reactor, s.Graph, req.Node, modality.Analog)
	if !ok {
		s.emitSpectrogramLast(c, e.ID)
		return
	}
	an, ok := n.(modality.Analog)
	if !ok {
		s.emitSpectrogramLast(c, e.ID)
		return
	}

	accums := map[int]*spectrogramAccum{}
	done := make(chan struct{})
	var closeOnce sync.Once
	closeDone := func() { closeOnce.Do(func() { close(done) }) }

	disconnect := attachReady(n, func(graph.Node) {
		frame := an.AnalogFrame()
		if frame == nil {
			return
		}
		idx, ready := selectChannels(req.NodeSelector, frame)
		if !ready {
			return
		}
		for _, i := range idx {
			acc, ok := accums[i]
			if !ok {
				intervalS := float64(frame.SampleIntervalNs[i]) / 1e9
				acc = newSpectrogramAccum(req.WindowS, intervalS)
				accums[i] = acc
			}
			mag, closed := acc.feed(frame.Data[i], req.HopS, frame.SampleIntervalNs[i])
			if !closed {
				continue
			}
			intervalS := float64(frame.SampleIntervalNs[i]) / 1e9
			resp := SpectrogramResponse{
				Channel:      frame.ChannelNames[i],
				Magnitude:    mag,
				MaxFrequency: 0.5 / intervalS,
			}
			if err := c.Send(Envelope{Type: "SpectrogramResponse", ID: e.ID, Payload: marshalOrNil(resp)}); err != nil {
				closeDone()
				return
			}
		}
	})
	defer disconnect()

	select {
	case <-done:
	case <-s.Reactor.StopSignal():
	}
	s.emitSpectrogramLast(c, e.ID)
}

func (s *Service) emitSpectrogramLast(c *Conn, id uint64) {
	_ = c.Send(Envelope{Type: "SpectrogramResponse", ID: id, Payload: marshalOrNil(SpectrogramResponse{Last: true})})
}
