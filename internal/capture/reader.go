package capture

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/klauspost/compress/flate"
)

// Slab is one decoded, ready-to-inject chunk of a node's recorded samples,
// alongside the index triple it was stored under (§4.5).
type Slab struct {
	Node                  string
	TimeNs                int64
	CumulativeSampleCount int64
	RemoteTimeNs          int64
	Data                  []float64
}

// Reader parses a capture file written by Writer.WriteTo and exposes every
// node's slabs in arrival-time order, grouped the way §4.4's Replay step
// expects: node names carrying an "analog/" or "xsens/" group prefix.
type Reader struct {
	deflate bool
	slabs   []Slab
}

// OpenReader parses the whole capture file from r into memory. deflate
// must match the value the file was written with, since the on-disk format
// carries no per-file flag for it (mirroring the writer's caller-supplied
// setting rather than self-describing compression, to keep the format a
// single two-pass index+payload layout).
func OpenReader(r io.Reader, deflate bool) (*Reader, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	buf := bytes.NewReader(raw)

	nodeCount, err := readU32(buf)
	if err != nil {
		return nil, err
	}

	type nodeIndex struct {
		name    string
		entries []slabIndexEntry
	}
	nodes := make([]nodeIndex, 0, nodeCount)
	for i := uint32(0); i < nodeCount; i++ {
		nameLen, err := readU32(buf)
		if err != nil {
			return nil, err
		}
		nameBytes := make([]byte, nameLen)
		if _, err := io.ReadFull(buf, nameBytes); err != nil {
			return nil, ErrTruncated
		}
		slabCount, err := readU32(buf)
		if err != nil {
			return nil, err
		}
		entries := make([]slabIndexEntry, 0, slabCount)
		for j := uint32(0); j < slabCount; j++ {
			var e slabIndexEntry
			vals := make([]int64, 5)
			for k := range vals {
				if err := binary.Read(buf, binary.BigEndian, &vals[k]); err != nil {
					return nil, ErrTruncated
				}
			}
			e.timeNs, e.cumulativeSampleCount, e.remoteTimeNs, e.offset, e.length = vals[0], vals[1], vals[2], vals[3], vals[4]
			entries = append(entries, e)
		}
		nodes = append(nodes, nodeIndex{name: string(nameBytes), entries: entries})
	}

	// Remaining bytes are each node's payload region, concatenated in the
	// same node order the index was written in.
	rdr := &Reader{deflate: deflate}
	for _, n := range nodes {
		payloadStart, _ := buf.Seek(0, io.SeekCurrent)
		var maxEnd int64
		for _, e := range n.entries {
			if e.offset+e.length > maxEnd {
				maxEnd = e.offset + e.length
			}
		}
		payload := make([]byte, maxEnd)
		if _, err := io.ReadFull(buf, payload); err != nil {
			return nil, ErrTruncated
		}
		_ = payloadStart
		for _, e := range n.entries {
			chunk := payload[e.offset : e.offset+e.length]
			data, err := decodeSlab(chunk, rdr.deflate)
			if err != nil {
				return nil, err
			}
			rdr.slabs = append(rdr.slabs, Slab{
				Node:                  n.name,
				TimeNs:                e.timeNs,
				CumulativeSampleCount: e.cumulativeSampleCount,
				RemoteTimeNs:          e.remoteTimeNs,
				Data:                  data,
			})
		}
	}

	sort.SliceStable(rdr.slabs, func(i, j int) bool { return rdr.slabs[i].TimeNs < rdr.slabs[j].TimeNs })
	return rdr, nil
}

// Slabs returns every decoded slab across every node, sorted by wire time —
// the merged ordering §4.4's Replay step walks.
func (r *Reader) Slabs() []Slab { return r.slabs }

func decodeSlab(chunk []byte, deflated bool) ([]float64, error) {
	raw := chunk
	if deflated {
		fr := flate.NewReader(bytes.NewReader(chunk))
		defer fr.Close()
		decoded, err := io.ReadAll(fr)
		if err != nil {
			return nil, err
		}
		raw = decoded
	}
	if len(raw)%8 != 0 {
		return nil, fmt.Errorf("capture: slab payload length %d not a multiple of 8", len(raw))
	}
	data := make([]float64, len(raw)/8)
	if err := binary.Read(bytes.NewReader(raw), binary.BigEndian, data); err != nil {
		return nil, err
	}
	return data, nil
}

func readU32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, ErrTruncated
	}
	return binary.BigEndian.Uint32(b[:]), nil
}
