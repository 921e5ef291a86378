package capture

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/klauspost/compress/zlib"
)

// TestDemuxBuffersUntilInnerSizeReady exercises §8 scenario 5: a Compressed
// stream whose inner record declares a fixed size and whose deflate
// payload arrives split across several outer packets should yield exactly
// one inner record once enough inflated bytes exist, leaving the remainder
// buffered for the next call.
func TestDemuxBuffersUntilInnerSizeReady(t *testing.T) {
	inner := Record{Kind: KindText, Node: "evt0", TimeNs: 7, Text: "hello"}
	innerBytes, err := json.Marshal(inner)
	if err != nil {
		t.Fatalf("marshal inner: %v", err)
	}
	innerSize := len(innerBytes)

	// Trailing bytes after the one complete inner record; any filler is
	// fine since the test only checks how much stays buffered.
	trailer := bytes.Repeat([]byte{'x'}, 40)
	plaintext := append(append([]byte(nil), innerBytes...), trailer...)

	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	if _, err := zw.Write(plaintext); err != nil {
		t.Fatalf("zlib write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zlib close: %v", err)
	}
	raw := compressed.Bytes()

	// Split the compressed bytes into 3 chunks to emulate 3 outer
	// Compressed packets arriving in sequence.
	third := len(raw) / 3
	chunks := [][]byte{raw[:third], raw[third : 2*third], raw[2*third:]}

	demux := NewDemux()
	var produced []Record
	for _, c := range chunks {
		out, err := demux.Feed(Record{Kind: KindCompressed, StreamID: 1, InnerSize: innerSize, Deflated: c})
		if err != nil {
			t.Fatalf("Feed: %v", err)
		}
		produced = append(produced, out...)
	}

	if len(produced) != 1 {
		t.Fatalf("expected exactly 1 inner record produced across all chunks, got %d", len(produced))
	}
	if produced[0].Text != "hello" {
		t.Fatalf("decoded inner record mismatch: %+v", produced[0])
	}

	s := demux.streams[1]
	if s.tail.Len() != len(trailer) {
		t.Fatalf("expected %d trailing buffered bytes, got %d", len(trailer), s.tail.Len())
	}
}
