package capture

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/klauspost/compress/flate"
)

// slab is one contiguous write of samples for a node, indexed by the triple
// §4.5 requires: the wire time of the slab's first sample, the running
// total of samples emitted for this node so far, and the time the remote
// source stamped the slab (which can lag or lead the local wire time).
type slab struct {
	timeNs                int64
	cumulativeSampleCount int64
	remoteTimeNs          int64
	data                  []float64
}

type nodeStream struct {
	name  string
	slabs []slab
}

// Writer is the capture file writer `internal/capture/h5writer.go` carries
// in place of an HDF5 binding: per-node chunked datasets with a per-slab
// index, written in two passes (index table sized and laid out first, then
// slab payloads appended at the offsets the index records), with optional
// per-slab DEFLATE compression, the chunked-write shape
// `original_source/`'s LJH-style writer uses without its fixed record
// format.
type Writer struct {
	mu      sync.Mutex
	nodes   map[string]*nodeStream
	order   []string
	deflate bool
}

// NewWriter creates a capture file writer. When deflate is true, every
// slab's sample data is stored DEFLATE-compressed.
func NewWriter(deflate bool) *Writer {
	return &Writer{nodes: make(map[string]*nodeStream), deflate: deflate}
}

// AppendAnalog records one slab of samples for node, to be written out by
// WriteTo.
func (w *Writer) AppendAnalog(node string, timeNs, remoteTimeNs, cumulativeSampleCount int64, data []float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ns, ok := w.nodes[node]
	if !ok {
		ns = &nodeStream{name: node}
		w.nodes[node] = ns
		w.order = append(w.order, node)
	}
	cp := append([]float64(nil), data...)
	ns.slabs = append(ns.slabs, slab{timeNs: timeNs, cumulativeSampleCount: cumulativeSampleCount, remoteTimeNs: remoteTimeNs, data: cp})
}

// slabIndexEntry is one row of a node's per-slab index (§4.5).
type slabIndexEntry struct {
	timeNs                int64
	cumulativeSampleCount int64
	remoteTimeNs          int64
	offset                int64
	length                int64
}

// WriteTo serializes every appended node stream to w. The file layout is:
//   u32 node count
//   per node: u32 name length, name bytes, u32 slab count,
//             slab count * (i64 time_ns, i64 cumulative_sample_count,
//                           i64 remote_time_ns, i64 offset, i64 length)
//   per node, per slab (in index order): payload bytes at the recorded
//             offset (relative to the start of that node's payload region)
//
// The index is sized and laid out in a first pass over encoded payload
// lengths before any payload bytes are written, so a reader can seek
// directly to a slab without scanning — the two-pass sizing §4.5 calls for.
func (w *Writer) WriteTo(dst io.Writer) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	names := append([]string(nil), w.order...)
	sort.Strings(names)

	type encodedNode struct {
		name    string
		entries []slabIndexEntry
		payload []byte
	}
	encoded := make([]encodedNode, 0, len(names))

	// Pass 1: encode every slab's payload bytes and compute offsets.
	for _, name := range names {
		ns := w.nodes[name]
		var payload bytes.Buffer
		entries := make([]slabIndexEntry, 0, len(ns.slabs))
		for _, sl := range ns.slabs {
			buf, err := encodeSlab(sl.data, w.deflate)
			if err != nil {
				return err
			}
			entries = append(entries, slabIndexEntry{
				timeNs:                sl.timeNs,
				cumulativeSampleCount: sl.cumulativeSampleCount,
				remoteTimeNs:          sl.remoteTimeNs,
				offset:                int64(payload.Len()),
				length:                int64(len(buf)),
			})
			payload.Write(buf)
		}
		encoded = append(encoded, encodedNode{name: name, entries: entries, payload: payload.Bytes()})
	}

	// Pass 2: write the whole index table, then every node's payload.
	if err := writeU32(dst, uint32(len(encoded))); err != nil {
		return err
	}
	for _, n := range encoded {
		if err := writeU32(dst, uint32(len(n.name))); err != nil {
			return err
		}
		if _, err := dst.Write([]byte(n.name)); err != nil {
			return err
		}
		if err := writeU32(dst, uint32(len(n.entries))); err != nil {
			return err
		}
		for _, e := range n.entries {
			for _, v := range []int64{e.timeNs, e.cumulativeSampleCount, e.remoteTimeNs, e.offset, e.length} {
				if err := binary.Write(dst, binary.BigEndian, v); err != nil {
					return err
				}
			}
		}
	}
	for _, n := range encoded {
		if _, err := dst.Write(n.payload); err != nil {
			return err
		}
	}
	return nil
}

func encodeSlab(data []float64, deflated bool) ([]byte, error) {
	var raw bytes.Buffer
	if err := binary.Write(&raw, binary.BigEndian, data); err != nil {
		return nil, err
	}
	if !deflated {
		return raw.Bytes(), nil
	}
	var out bytes.Buffer
	fw, err := flate.NewWriter(&out, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(raw.Bytes()); err != nil {
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func writeU32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

// ErrTruncated is returned by the reader when a file ends mid-record.
var ErrTruncated = fmt.Errorf("capture: truncated capture file")
