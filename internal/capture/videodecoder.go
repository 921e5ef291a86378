package capture

import "sort"

// broadcastFramerates is the fixed list of framerates video decoders snap
// a declared frame interval to, the same nearest-match table
// `original_source/src/hydrate.cpp`'s RecordReader builds before
// constructing a VideoDecoder.
var broadcastFramerates = []float64{23.976, 24, 25, 29.97, 30, 50, 59.94, 60}

func nearestFramerate(intervalNs int64) float64 {
	if intervalNs <= 0 {
		return broadcastFramerates[len(broadcastFramerates)/2]
	}
	target := 1e9 / float64(intervalNs)
	best := broadcastFramerates[0]
	bestDiff := abs64(target - best)
	for _, f := range broadcastFramerates[1:] {
		if d := abs64(target - f); d < bestDiff {
			best, bestDiff = f, d
		}
	}
	return best
}

func abs64(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// VideoDecoder decodes a compressed (MPEG1/MPEG4) payload stream into
// decoded Gray8 frames, preserving arrival order. Implementations are
// pluggable so the replay reader never links a concrete codec library
// directly (§4.5 "Video decoder map").
type VideoDecoder interface {
	// Decode feeds one compressed payload and returns zero or more decoded
	// frames it produced as a result (a decoder may buffer several packets
	// before yielding a frame, e.g. across B-frame reordering).
	Decode(payload []byte) ([]DecodedFrame, error)
	// Flush drains any frames buffered inside the decoder, called once the
	// source stream ends.
	Flush() []DecodedFrame
}

// DecodedFrame is one Gray8 frame produced by a VideoDecoder.
type DecodedFrame struct {
	Width, Height int
	Gray8         []byte
}

// DecoderFactory constructs a VideoDecoder for one node's image stream,
// given its declared dimensions, the framerate nearest-matched from its
// frame interval, and the source format (MPEG1 or MPEG4).
type DecoderFactory func(width, height int, framerate float64, format int) (VideoDecoder, error)

// VideoDecoderMap lazily creates and caches one VideoDecoder per node,
// mirroring `original_source/src/hydrate.cpp`'s `video_decoders` map keyed
// by record.node().
type VideoDecoderMap struct {
	factory  DecoderFactory
	decoders map[string]VideoDecoder
}

// NewVideoDecoderMap builds an empty map using factory to construct
// decoders on first use.
func NewVideoDecoderMap(factory DecoderFactory) *VideoDecoderMap {
	return &VideoDecoderMap{factory: factory, decoders: make(map[string]VideoDecoder)}
}

// Decode routes rec (an Image record with format MPEG1 or MPEG4) to the
// node's decoder, creating it lazily from the record's declared width,
// height, and frame interval on first use.
func (m *VideoDecoderMap) Decode(rec Record) ([]DecodedFrame, error) {
	dec, ok := m.decoders[rec.Node]
	if !ok {
		fr := nearestFramerate(rec.FrameIntervalNs)
		var err error
		dec, err = m.factory(rec.Width, rec.Height, fr, rec.Format)
		if err != nil {
			return nil, err
		}
		m.decoders[rec.Node] = dec
	}
	var payload []byte
	if len(rec.Planes) > 0 {
		payload = rec.Planes[0]
	}
	return dec.Decode(payload)
}

// Flush drains every cached decoder, in a deterministic node-name order so
// replay output is reproducible across runs of the same capture file.
func (m *VideoDecoderMap) Flush() map[string][]DecodedFrame {
	names := make([]string, 0, len(m.decoders))
	for name := range m.decoders {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make(map[string][]DecodedFrame, len(names))
	for _, name := range names {
		out[name] = m.decoders[name].Flush()
	}
	return out
}
