package adapters

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"strings"
	"testing"
)

func TestParseFetchHeader(t *testing.T) {
	nchans, nsamples, fromCount, err := parseFetchHeader("BINARY_DATA 3 100 uint64(4000)")
	if err != nil {
		t.Fatalf("parseFetchHeader: %v", err)
	}
	if nchans != 3 || nsamples != 100 || fromCount != 4000 {
		t.Fatalf("unexpected parse: %d %d %d", nchans, nsamples, fromCount)
	}
}

func TestParseFetchHeaderRejectsMalformed(t *testing.T) {
	if _, _, _, err := parseFetchHeader("BINARY_DATA oops"); err == nil {
		t.Fatal("expected an error for a malformed header")
	}
}

// TestDeinterleaveRecoversChannelMajorSamples builds a channel-interleaved
// int16-LE buffer the way spikeglx_node.cpp lays out a fetch payload (sample
// s, channel c at byte offset 2*(s*nchans+c)) and checks deinterleave
// recovers each channel's samples in order, without a pool.
func TestDeinterleaveRecoversChannelMajorSamples(t *testing.T) {
	const nchans, nsamples = 3, 4
	raw := make([]byte, 2*nchans*nsamples)
	want := make([][]int16, nchans)
	for c := range want {
		want[c] = make([]int16, nsamples)
	}
	n := int16(0)
	for s := 0; s < nsamples; s++ {
		for c := 0; c < nchans; c++ {
			n++
			want[c][s] = n
			i := 2 * (s*nchans + c)
			binary.LittleEndian.PutUint16(raw[i:], uint16(n))
		}
	}

	got := deinterleave(raw, nchans, nsamples, nil)
	for c := range want {
		for s := range want[c] {
			if got[c][s] != want[c][s] {
				t.Fatalf("channel %d sample %d: got %d, want %d", c, s, got[c][s], want[c][s])
			}
		}
	}
}

// TestFetchReadsNoDataReply checks that the "ERROR FETCH: No data" reply,
// read as a line and trimmed of its line ending, starts with the
// neuralNoData prefix that fetch tests for.
func TestFetchReadsNoDataReply(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("ERROR FETCH: No data\n")
	r := bufio.NewReader(&buf)
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("ReadString: %v", err)
	}
	if !strings.HasPrefix(strings.TrimRight(line, "\r\n"), neuralNoData) {
		t.Fatalf("unexpected line: %q", line)
	}
}
