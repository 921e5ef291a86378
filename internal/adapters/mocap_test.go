package adapters

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/cajigaslab/Thalamus-sub000/internal/modality"
)

func buildDatagram(sampleCounter, timeCode uint32, segments [][7]float32) []byte {
	payload := make([]byte, len(segments)*segmentRecordLen)
	for i, seg := range segments {
		rec := payload[i*segmentRecordLen : (i+1)*segmentRecordLen]
		binary.BigEndian.PutUint32(rec[0:4], uint32(i))
		for f := 0; f < 7; f++ {
			binary.BigEndian.PutUint32(rec[4+4*f:8+4*f], math.Float32bits(seg[f]))
		}
	}
	buf := make([]byte, datagramHeaderLen+len(payload))
	copy(buf[:6], datagramMagic)
	binary.BigEndian.PutUint32(buf[sampleCounterOff:], sampleCounter)
	binary.BigEndian.PutUint32(buf[timeCodeOff:], timeCode)
	binary.BigEndian.PutUint16(buf[payloadSizeOff:], uint16(len(payload)))
	copy(buf[datagramHeaderLen:], payload)
	return buf
}

func TestParseDatagramRoundTrip(t *testing.T) {
	segs := [][7]float32{
		{1, 2, 3, 1, 0, 0, 0},
		{4, 5, 6, 0, 1, 0, 0},
	}
	buf := buildDatagram(42, 7, segs)

	sampleCounter, timeCode, parsed, ok := parseDatagram(buf)
	if !ok {
		t.Fatal("expected parseDatagram to succeed")
	}
	if sampleCounter != 42 || timeCode != 7 {
		t.Fatalf("unexpected header fields: %d %d", sampleCounter, timeCode)
	}
	if len(parsed) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(parsed))
	}
	if parsed[0].SegmentID != 0 || parsed[0].Position.X != 1 || parsed[0].Position.Z != 3 {
		t.Fatalf("unexpected first segment: %+v", parsed[0])
	}
	if parsed[1].SegmentID != 1 || parsed[1].Rotation.X != 1 {
		t.Fatalf("unexpected second segment: %+v", parsed[1])
	}
}

func TestParseDatagramRejectsWrongMagic(t *testing.T) {
	buf := make([]byte, datagramHeaderLen)
	copy(buf, "BOGUS!")
	if _, _, _, ok := parseDatagram(buf); ok {
		t.Fatal("expected parseDatagram to reject a non-MXTP02 packet")
	}
}

func TestFingerRangeNormalize(t *testing.T) {
	var r fingerRange
	if got := r.normalize(5); got != 0 {
		t.Fatalf("expected first sample to normalize to 0, got %v", got)
	}
	if got := r.normalize(10); got != 1 {
		t.Fatalf("expected max-so-far to normalize to 1, got %v", got)
	}
	if got := r.normalize(7.5); got != 0.5 {
		t.Fatalf("expected midpoint to normalize to 0.5, got %v", got)
	}
}

func TestMocapNodeDeriveDistances(t *testing.T) {
	n := &MocapNode{
		pairs:  []FingerPair{{Name: "thumb", Tip: 1, Base: 0}},
		ranges: make([]fingerRange, 1),
	}
	segs := []modality.Segment{
		{SegmentID: 0, Position: modality.Vec3{X: 0, Y: 0, Z: 0}},
		{SegmentID: 1, Position: modality.Vec3{X: 3, Y: 4, Z: 0}},
	}
	values := n.deriveDistances(segs)
	if len(values) != 1 || values[0] != 0 {
		t.Fatalf("expected first observation to normalize to 0, got %v", values)
	}
	segs[1].Position.X = 6
	segs[1].Position.Y = 8
	values = n.deriveDistances(segs)
	if values[0] != 1 {
		t.Fatalf("expected a new max distance to normalize to 1, got %v", values)
	}
}
