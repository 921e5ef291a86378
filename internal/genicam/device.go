package genicam

// #include <dlfcn.h>
// #include <stdint.h>
//
// // Trampolines for the handful of GenTL calls the device open/stream
// // sequence actually drives (§4.3 step 4). Each wraps a resolved function
// // pointer with the C signature GenTL documents; Go cannot call through a
// // bare unsafe.Pointer without one of these per distinct signature.
// typedef int32_t (*gc_simple_fn)(void*);
// typedef int32_t (*gc_read_port_fn)(void*, uint64_t, void*, uint64_t*);
// typedef int32_t (*gc_write_port_fn)(void*, uint64_t, const void*, uint64_t*);
// typedef int32_t (*ds_announce_fn)(void*, void*, uint64_t, void**);
// typedef int32_t (*ds_queue_fn)(void*, void*);
// typedef int32_t (*event_get_data_fn)(void*, void*, uint64_t*, uint32_t);
//
// static int32_t call_simple(void *fn, void *h) {
//   return ((gc_simple_fn)fn)(h);
// }
// static int32_t call_read_port(void *fn, void *h, uint64_t addr, void *buf, uint64_t *len) {
//   return ((gc_read_port_fn)fn)(h, addr, buf, len);
// }
// static int32_t call_write_port(void *fn, void *h, uint64_t addr, const void *buf, uint64_t *len) {
//   return ((gc_write_port_fn)fn)(h, addr, buf, len);
// }
// static int32_t call_announce(void *fn, void *h, void *base, uint64_t size, void **bufh) {
//   return ((ds_announce_fn)fn)(h, base, size, bufh);
// }
// static int32_t call_queue(void *fn, void *h, void *bufh) {
//   return ((ds_queue_fn)fn)(h, bufh);
// }
// static int32_t call_event_get_data(void *fn, void *h, void *buf, uint64_t *size, uint32_t timeout_ms) {
//   return ((event_get_data_fn)fn)(h, buf, size, timeout_ms);
// }
import "C"

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"
	"unsafe"

	"github.com/cajigaslab/Thalamus-sub000/internal/modality"
	"github.com/cajigaslab/Thalamus-sub000/internal/reactor"
)

const genTLOK = 0

// portAdapter implements PortIO against a loaded GenTL module's remote
// device handle, so a Table constructed by ParseRegisterXML can issue real
// GCReadPort/GCWritePort calls (§4.3 step 3).
type portAdapter struct {
	m      *Module
	handle unsafe.Pointer
}

func (p *portAdapter) ReadPort(address int64, length int) ([]byte, error) {
	fn, ok := p.m.Symbol("GCReadPort")
	if !ok {
		return nil, fmt.Errorf("genicam: module %s has no GCReadPort", p.m.Path)
	}
	buf := make([]byte, length)
	size := C.uint64_t(length)
	rc := C.call_read_port(fn, p.handle, C.uint64_t(address), unsafe.Pointer(&buf[0]), &size)
	const genTLErrNoData = -1008 // GC_ERR_NO_DATA
	if rc == genTLErrNoData {
		return nil, &NoDataError{}
	}
	if rc != genTLOK {
		return nil, fmt.Errorf("genicam: GCReadPort at 0x%x failed, rc=%d", address, int(rc))
	}
	return buf[:size], nil
}

func (p *portAdapter) WritePort(address int64, data []byte) error {
	fn, ok := p.m.Symbol("GCWritePort")
	if !ok {
		return fmt.Errorf("genicam: module %s has no GCWritePort", p.m.Path)
	}
	size := C.uint64_t(len(data))
	var ptr unsafe.Pointer
	if len(data) > 0 {
		ptr = unsafe.Pointer(&data[0])
	}
	rc := C.call_write_port(fn, p.handle, C.uint64_t(address), ptr, &size)
	if rc != genTLOK {
		return fmt.Errorf("genicam: GCWritePort failed, rc=%d", int(rc))
	}
	return nil
}

// frameTimes is a trailing-1-second min-heap of frame arrival timestamps
// (in monotonic nanoseconds), used to observe the live framerate without
// keeping an unbounded history (§4.3 step 5: "observed framerate over the
// trailing one-second window").
type frameTimes []int64

func (h frameTimes) Len() int            { return len(h) }
func (h frameTimes) Less(i, j int) bool  { return h[i] < h[j] }
func (h frameTimes) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *frameTimes) Push(x interface{}) { *h = append(*h, x.(int64)) }
func (h *frameTimes) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// framerateTracker maintains the trailing window and reports fps on demand.
// latest tracks the most recent arrival directly rather than reading it
// back out of the heap: container/heap only guarantees times[0] is the
// minimum, not that the last array slot holds the maximum, so the span
// between oldest and newest must come from the timestamp observe() was
// actually called with.
type framerateTracker struct {
	mu     sync.Mutex
	window time.Duration
	times  frameTimes
	latest int64
}

func newFramerateTracker() *framerateTracker {
	return &framerateTracker{window: time.Second}
}

func (f *framerateTracker) observe(now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ns := now.UnixNano()
	heap.Push(&f.times, ns)
	if ns > f.latest {
		f.latest = ns
	}
	cutoff := now.Add(-f.window).UnixNano()
	for f.times.Len() > 0 && f.times[0] < cutoff {
		heap.Pop(&f.times)
	}
}

func (f *framerateTracker) fps() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.times.Len() < 2 {
		return 0
	}
	span := time.Duration(f.latest-f.times[0]) * time.Nanosecond
	if span <= 0 {
		return 0
	}
	return float64(f.times.Len()-1) / span.Seconds()
}

// Device owns one opened GenTL remote device: its register table, buffer
// ring, and a dedicated event-pump goroutine that posts every delivered
// frame onto the reactor rather than touching node state directly (§4.3
// step 4, "vendor callback threads must never touch node state directly").
type Device struct {
	r        *reactor.Reactor
	module   *Module
	handle   unsafe.Pointer
	table    *Table
	fps      *framerateTracker
	bufSize  int
	buffers  [][]byte
	bufHandles []unsafe.Pointer

	onFrame func(*modality.ImageFrame, time.Time)

	streamCancel context.CancelFunc
	pumpDone     chan struct{}
}

// OpenDevice performs the device-open sequence (§4.3 step 1-2): fetch the
// port-URL payload, extract the embedded XML, parse the register map, and
// bind it to live GCReadPort/GCWritePort calls through the module.
func OpenDevice(r *reactor.Reactor, m *Module, deviceHandle unsafe.Pointer, portURLPayload []byte) (*Device, error) {
	xmlDoc, err := ExtractXMLMember(portURLPayload)
	if err != nil {
		return nil, fmt.Errorf("genicam: extracting register XML: %w", err)
	}
	port := &portAdapter{m: m, handle: deviceHandle}
	table, err := ParseRegisterXML(xmlDoc, port)
	if err != nil {
		return nil, fmt.Errorf("genicam: parsing register XML: %w", err)
	}
	return &Device{
		r:      r,
		module: m,
		handle: deviceHandle,
		table:  table,
		fps:    newFramerateTracker(),
	}, nil
}

// Table exposes the device's register symbol table for direct Get/Set
// access from the node's RPC surface.
func (d *Device) Table() *Table { return d.table }

// FPS returns the trailing-1-second observed framerate.
func (d *Device) FPS() float64 { return d.fps.fps() }

// AnnounceBuffers allocates and announces count buffers of bufSize bytes
// each via DSAnnounceBuffer, the step that must precede DSQueueBuffer/
// DSStartAcquisition (§4.3 step 4).
func (d *Device) AnnounceBuffers(dataStreamHandle unsafe.Pointer, count, bufSize int) error {
	announce, ok := d.module.Symbol("DSAnnounceBuffer")
	if !ok {
		return fmt.Errorf("genicam: module missing DSAnnounceBuffer")
	}
	queue, ok := d.module.Symbol("DSQueueBuffer")
	if !ok {
		return fmt.Errorf("genicam: module missing DSQueueBuffer")
	}
	d.bufSize = bufSize
	d.buffers = make([][]byte, count)
	d.bufHandles = make([]unsafe.Pointer, count)
	for i := 0; i < count; i++ {
		buf := make([]byte, bufSize)
		d.buffers[i] = buf
		var bufHandle unsafe.Pointer
		rc := C.call_announce(announce, dataStreamHandle, unsafe.Pointer(&buf[0]), C.uint64_t(bufSize), &bufHandle)
		if rc != genTLOK {
			return fmt.Errorf("genicam: DSAnnounceBuffer failed for buffer %d, rc=%d", i, int(rc))
		}
		d.bufHandles[i] = bufHandle
		if rc := C.call_queue(queue, dataStreamHandle, bufHandle); rc != genTLOK {
			return fmt.Errorf("genicam: DSQueueBuffer failed for buffer %d, rc=%d", i, int(rc))
		}
	}
	return nil
}

// RevokeBuffers calls DSRevokeBuffer for every previously announced buffer,
// the mirror operation to AnnounceBuffers (§4.3 step 4 teardown).
func (d *Device) RevokeBuffers(dataStreamHandle unsafe.Pointer) error {
	revoke, ok := d.module.Symbol("DSRevokeBuffer")
	if !ok {
		return fmt.Errorf("genicam: module missing DSRevokeBuffer")
	}
	for i, bh := range d.bufHandles {
		var outBase unsafe.Pointer
		if rc := C.call_announce(revoke, dataStreamHandle, nil, 0, &outBase); rc != genTLOK {
			_ = bh
			return fmt.Errorf("genicam: DSRevokeBuffer failed for buffer %d, rc=%d", i, int(rc))
		}
	}
	d.buffers = nil
	d.bufHandles = nil
	return nil
}

// StartStreaming starts acquisition and launches the dedicated event-pump
// goroutine (§4.3 step 4) that blocks in EventGetData and posts each
// delivered frame to the reactor via onFrame, rather than invoking node
// callbacks directly from the vendor thread.
func (d *Device) StartStreaming(dataStreamHandle, eventHandle unsafe.Pointer, decode func([]byte) *modality.ImageFrame, onFrame func(*modality.ImageFrame, time.Time)) error {
	start, ok := d.module.Symbol("DSStartAcquisition")
	if !ok {
		return fmt.Errorf("genicam: module missing DSStartAcquisition")
	}
	if rc := C.call_simple(start, dataStreamHandle); rc != genTLOK {
		return fmt.Errorf("genicam: DSStartAcquisition failed, rc=%d", int(rc))
	}
	d.onFrame = onFrame

	ctx, cancel := context.WithCancel(context.Background())
	d.streamCancel = cancel
	d.pumpDone = make(chan struct{})

	eventGetData, ok := d.module.Symbol("EventGetData")
	if !ok {
		cancel()
		return fmt.Errorf("genicam: module missing EventGetData")
	}

	go d.eventPump(ctx, eventGetData, eventHandle, decode)
	return nil
}

// eventPump is the dedicated vendor-callback thread: it never touches node
// or graph state, only Posts a closure to the reactor for each frame
// (§4.3 step 4, §5 concurrency model).
func (d *Device) eventPump(ctx context.Context, eventGetData unsafe.Pointer, eventHandle unsafe.Pointer, decode func([]byte) *modality.ImageFrame) {
	defer close(d.pumpDone)
	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		size := C.uint64_t(len(buf))
		rc := C.call_event_get_data(eventGetData, eventHandle, unsafe.Pointer(&buf[0]), &size, 1000)
		if rc != genTLOK {
			continue
		}
		arrived := time.Now()
		payload := append([]byte(nil), buf[:size]...)
		frame := decode(payload)
		if frame == nil {
			continue
		}
		d.fps.observe(arrived)
		cb := d.onFrame
		d.r.Post(func() {
			if cb != nil {
				cb(frame, arrived)
			}
		})
	}
}

// StopStreaming cancels the event pump, waits for it to exit, and calls
// DSStopAcquisition.
func (d *Device) StopStreaming(dataStreamHandle unsafe.Pointer) error {
	if d.streamCancel != nil {
		d.streamCancel()
		<-d.pumpDone
	}
	stop, ok := d.module.Symbol("DSStopAcquisition")
	if !ok {
		return fmt.Errorf("genicam: module missing DSStopAcquisition")
	}
	if rc := C.call_simple(stop, dataStreamHandle); rc != genTLOK {
		return fmt.Errorf("genicam: DSStopAcquisition failed, rc=%d", int(rc))
	}
	return nil
}
