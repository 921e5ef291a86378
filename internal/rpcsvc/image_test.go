package rpcsvc

import (
	"testing"

	"github.com/cajigaslab/Thalamus-sub000/internal/modality"
)

// TestChunkFrameInvariant exercises §8's image-chunker invariant and its
// scenario 3 literal example: a 1280x720 RGB8 frame (payload 2,764,800 B)
// yields exactly ceil(2764800/524288) = 6 chunks, exactly one last=true,
// and the concatenation equals the source bytes in plane order.
func TestChunkFrameInvariant(t *testing.T) {
	payload := make([]byte, 1280*720*3)
	for i := range payload {
		payload[i] = byte(i)
	}
	frame := &modality.ImageFrame{Width: 1280, Height: 720, Format: modality.FormatRGB8, Planes: [][]byte{payload}}

	chunks := chunkFrame(frame)
	if len(chunks) != 6 {
		t.Fatalf("expected 6 chunks, got %d", len(chunks))
	}
	lastCount := 0
	var reassembled []byte
	for _, c := range chunks {
		if c.Last {
			lastCount++
		}
		reassembled = append(reassembled, c.Data...)
	}
	if lastCount != 1 {
		t.Fatalf("expected exactly 1 last=true chunk, got %d", lastCount)
	}
	if !chunks[len(chunks)-1].Last {
		t.Fatal("expected the final chunk to be the one marked last")
	}
	if len(reassembled) != len(payload) {
		t.Fatalf("reassembled length %d != source length %d", len(reassembled), len(payload))
	}
	for i := range payload {
		if reassembled[i] != payload[i] {
			t.Fatalf("reassembled byte mismatch at %d", i)
			break
		}
	}
}

// TestChunkFrameSingleMessage exercises §8 scenario 2: a 640x480 Gray8
// image (307200 B) fits in one chunk.
func TestChunkFrameSingleMessage(t *testing.T) {
	payload := make([]byte, 640*480)
	frame := &modality.ImageFrame{Width: 640, Height: 480, Format: modality.FormatGray8, Planes: [][]byte{payload}}
	chunks := chunkFrame(frame)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if !chunks[0].Last {
		t.Fatal("expected the single chunk to be last=true")
	}
	if len(chunks[0].Data) != 307200 {
		t.Fatalf("expected 307200 bytes, got %d", len(chunks[0].Data))
	}
}
