// Package capture implements the wire record schema, the compressed-stream
// demultiplexer, a chunked capture-file writer standing in for the HDF5
// writer spec.md's replay component reads from, and the hydration/replay
// reader itself (§4.5, §6).
package capture

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// Kind discriminates the capture log's record union (§6).
type Kind int

const (
	KindAnalog Kind = iota
	KindMotion
	KindImage
	KindText
	KindArbitrary
	KindCompressed
)

// Span mirrors rpcsvc.Span on the wire so a capture file's AnalogFrame
// records need no conversion when replayed straight back out a subscription.
type Span struct {
	Name  string `json:"name"`
	Begin int    `json:"begin"`
	End   int    `json:"end"`
}

// Record is one length-prefixed entry in a capture log (§6). Node is a
// top-level field on every record kind; only the fields relevant to Kind
// are populated.
type Record struct {
	Kind   Kind   `json:"kind"`
	Node   string `json:"node"`
	TimeNs int64  `json:"time_ns"`

	// AnalogFrame
	Data            []float64 `json:"data,omitempty"`
	Spans           []Span    `json:"spans,omitempty"`
	SampleIntervals []int64   `json:"sample_intervals,omitempty"`

	// MotionFrame
	Segments []MotionSegment `json:"segments,omitempty"`
	PoseName string          `json:"pose_name,omitempty"`

	// ImageFrame
	Width           int      `json:"width,omitempty"`
	Height          int      `json:"height,omitempty"`
	Format          int      `json:"format,omitempty"`
	Planes          [][]byte `json:"planes,omitempty"`
	BigEndian       bool     `json:"big_endian,omitempty"`
	FrameIntervalNs int64    `json:"frame_interval_ns,omitempty"`
	Last            bool     `json:"last,omitempty"`

	// TextEvent
	Text string `json:"text,omitempty"`

	// ArbitraryEvent
	Payload []byte `json:"payload,omitempty"`

	// Compressed
	StreamID  int    `json:"stream_id,omitempty"`
	InnerSize int    `json:"inner_size,omitempty"`
	Deflated  []byte `json:"deflated,omitempty"`
}

// MotionSegment is the wire shape of modality.Segment.
type MotionSegment struct {
	FrameNumber     int64   `json:"frame_number"`
	SegmentID       int     `json:"segment_id"`
	TimeWithinFrame int64   `json:"time_within_frame"`
	PX              float64 `json:"px"`
	PY              float64 `json:"py"`
	PZ              float64 `json:"pz"`
	QW              float64 `json:"qw"`
	QX              float64 `json:"qx"`
	QY              float64 `json:"qy"`
	QZ              float64 `json:"qz"`
	PoseName        string  `json:"pose_name"`
	Actor           uint8   `json:"actor"`
}

// WriteRecord appends one (u64 be size, size bytes of JSON) entry to w, the
// capture log framing of §6.
func WriteRecord(w io.Writer, r Record) error {
	body, err := json.Marshal(r)
	if err != nil {
		return err
	}
	var hdr [8]byte
	binary.BigEndian.PutUint64(hdr[:], uint64(len(body)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// ReadRecord reads one length-prefixed record from r. io.EOF is returned
// verbatim when r is exhausted at a record boundary.
func ReadRecord(r io.Reader) (Record, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Record{}, err
	}
	size := binary.BigEndian.Uint64(hdr[:])
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return Record{}, fmt.Errorf("capture: short record body: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}
