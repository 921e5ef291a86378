package capture

import (
	"bytes"
	"testing"
)

func TestWriteReadRecordRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := Record{Kind: KindAnalog, Node: "daq0", TimeNs: 123, Data: []float64{1, 2, 3}, Spans: []Span{{Name: "ch0", Begin: 0, End: 3}}}
	if err := WriteRecord(&buf, want); err != nil {
		t.Fatalf("WriteRecord: %v", err)
	}
	got, err := ReadRecord(&buf)
	if err != nil {
		t.Fatalf("ReadRecord: %v", err)
	}
	if got.Node != want.Node || got.TimeNs != want.TimeNs || len(got.Data) != len(want.Data) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestReadRecordEOF(t *testing.T) {
	if _, err := ReadRecord(&bytes.Buffer{}); err == nil {
		t.Fatal("expected error reading from empty buffer")
	}
}
