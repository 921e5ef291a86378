package rpcsvc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cajigaslab/Thalamus-sub000/internal/graph"
	"github.com/cajigaslab/Thalamus-sub000/internal/modality"
)

// maxChunkBytes is the wire chunk ceiling for ImageSubscribe (§4.4, §8
// "image chunker"): frames larger than this are split across multiple
// messages, exactly one of which has Last=true.
const maxChunkBytes = 524288

// ImageRequest adds an optional framerate cap to NodeSelector (§4.4).
type ImageRequest struct {
	NodeSelector
	FramerateCap float64 `json:"framerate_cap,omitempty"`
}

// ImageChunk is one wire message of a (possibly split) image frame.
type ImageChunk struct {
	Width         int             `json:"width,omitempty"`
	Height        int             `json:"height,omitempty"`
	Format        modality.ImageFormat `json:"format,omitempty"`
	Data          []byte          `json:"data,omitempty"`
	Last          bool            `json:"last"`
	StreamDone    bool            `json:"stream_done,omitempty"`
}

// chunkFrame splits a single image frame's concatenated plane bytes into
// ≤maxChunkBytes pieces, satisfying the §8 invariant:
// "exactly ceil(B/524288) wire messages are produced, exactly one has
// last=true, and the concatenation of their data equals the source planes
// in plane-major order."
func chunkFrame(f *modality.ImageFrame) []ImageChunk {
	var flat []byte
	for _, p := range f.Planes {
		flat = append(flat, p...)
	}
	if len(flat) == 0 {
		return []ImageChunk{{Width: f.Width, Height: f.Height, Format: f.Format, Last: true}}
	}
	n := (len(flat) + maxChunkBytes - 1) / maxChunkBytes
	chunks := make([]ImageChunk, 0, n)
	for i := 0; i < n; i++ {
		start := i * maxChunkBytes
		end := start + maxChunkBytes
		if end > len(flat) {
			end = len(flat)
		}
		chunks = append(chunks, ImageChunk{
			Width: f.Width, Height: f.Height, Format: f.Format,
			Data: flat[start:end], Last: i == n-1,
		})
	}
	return chunks
}

// handleImageSubscribe implements ImageSubscribe (§4.4, §8 scenarios 2-3):
// honors an optional framerate cap by forwarding a frame only when at least
// 1/cap seconds have passed since the last forwarded frame (arrivals are not
// counted over a trailing window), and chunks each forwarded frame.
func (s *Service) handleImageSubscribe(c *Conn, e Envelope) {
	var req ImageRequest
	if err := json.Unmarshal(e.Payload, &req); err != nil {
		sendError(c, "ImageChunk", e.ID, err)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n, ok := resolveNode(ctx, s.Reactor, s.Graph, req.Node, modality.Image)
	if !ok {
		s.emitImageLast(c, e.ID)
		return
	}
	img, ok := n.(modality.Image)
	if !ok {
		s.emitImageLast(c, e.ID)
		return
	}

	var minInterval time.Duration
	if req.FramerateCap > 0 {
		minInterval = time.Duration(float64(time.Second) / req.FramerateCap)
	}
	var lastSent time.Time
	done := make(chan struct{})

	disconnect := attachReady(n, func(graph.Node) {
		now := time.Now()
		if minInterval > 0 && !lastSent.IsZero() && now.Sub(lastSent) < minInterval {
			return
		}
		frame := img.ImageFrame()
		if frame == nil {
			return
		}
		lastSent = now
		for _, chunk := range chunkFrame(frame) {
			if err := c.Send(Envelope{Type: "ImageChunk", ID: e.ID, Payload: marshalOrNil(chunk)}); err != nil {
				select {
				case <-done:
				default:
					close(done)
				}
				return
			}
		}
	})
	defer disconnect()

	select {
	case <-done:
	case <-s.Reactor.StopSignal():
	}
	s.emitImageLast(c, e.ID)
}

func (s *Service) emitImageLast(c *Conn, id uint64) {
	_ = c.Send(Envelope{Type: "ImageChunk", ID: id, Payload: marshalOrNil(ImageChunk{Last: true, StreamDone: true})})
}
