package capture

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// streamState is the per-stream_id inflate state the demultiplexer keeps
// (§4.5): the raw deflated bytes seen so far, how many inflated bytes have
// already been handed out, and the append-only tail of inflated bytes not
// yet consumed by a complete inner record.
//
// Re-inflating from the start of the raw stream on every Feed call is
// simpler and safer than threading a live flate.Reader through partial
// writes (which needs an io.Pipe plus a reader goroutine to avoid
// deadlocking on the zlib header read); it costs O(n^2) total work across
// a capture file's compressed stream, which is acceptable for an offline
// replay reader.
type streamState struct {
	raw       bytes.Buffer
	delivered int
	tail      bytes.Buffer
}

// Demux implements the Compressed-record demultiplexer described in §4.5:
// per stream_id it keeps an inflate state and an append-only byte buffer.
// A Compressed record declares the size of the next inflated record; once
// the buffer holds at least that many bytes, exactly one inner record is
// parsed out and size bytes are dropped from the buffer (§8 scenario 5).
type Demux struct {
	streams map[int]*streamState
}

// NewDemux creates an empty demultiplexer.
func NewDemux() *Demux {
	return &Demux{streams: make(map[int]*streamState)}
}

func (d *Demux) stream(id int) *streamState {
	s, ok := d.streams[id]
	if !ok {
		s = &streamState{}
		d.streams[id] = s
	}
	return s
}

// Feed processes one Compressed record, returning every inner record that
// became fully available as a result — zero or one per call, since each
// Compressed record declares exactly one inner record's size (§4.5).
func (d *Demux) Feed(rec Record) ([]Record, error) {
	if rec.Kind != KindCompressed {
		return nil, fmt.Errorf("capture: Feed called with non-Compressed record kind %d", rec.Kind)
	}
	s := d.stream(rec.StreamID)
	s.raw.Write(rec.Deflated)

	zr, err := zlib.NewReader(bytes.NewReader(s.raw.Bytes()))
	if err != nil {
		// Header not yet complete; nothing new is available.
		return nil, nil
	}
	inflated, err := io.ReadAll(zr)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	if len(inflated) > s.delivered {
		s.tail.Write(inflated[s.delivered:])
		s.delivered = len(inflated)
	}

	if rec.InnerSize <= 0 || s.tail.Len() < rec.InnerSize {
		return nil, nil
	}
	inner := make([]byte, rec.InnerSize)
	copy(inner, s.tail.Bytes()[:rec.InnerSize])
	remainder := append([]byte(nil), s.tail.Bytes()[rec.InnerSize:]...)
	s.tail.Reset()
	s.tail.Write(remainder)

	var r Record
	if err := json.Unmarshal(inner, &r); err != nil {
		return nil, err
	}
	return []Record{r}, nil
}
