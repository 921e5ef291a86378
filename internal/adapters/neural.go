package adapters

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cajigaslab/Thalamus-sub000/internal/graph"
	"github.com/cajigaslab/Thalamus-sub000/internal/modality"
	"github.com/cajigaslab/Thalamus-sub000/internal/reactor"
)

// neuralHeaderPrefix is the ASCII status line a fetch reply starts with,
// e.g. "BINARY_DATA 4 1000 uint64(40000)", mirroring the sscanf format
// string in `original_source/src/spikeglx_node.cpp`'s stream coroutine.
const neuralHeaderPrefix = "BINARY_DATA"

// neuralNoData is the error line returned for an empty fetch window.
const neuralNoData = "ERROR FETCH: No data"

// NeuralClient is the TCP transport for a neural-acquisition leaf device: a
// single socket shared by every input, serialized through a Turnstile the
// way `spikeglx_node.cpp`'s CoTurnstile gives each coroutine exclusive use
// of the wire before the next FETCH is issued.
type NeuralClient struct {
	conn *net.TCPConn
	r    *bufio.Reader
	gate *Turnstile
}

// DialNeuralClient opens the command/response TCP connection.
func DialNeuralClient(addr string) (*NeuralClient, error) {
	c, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	tc, ok := c.(*net.TCPConn)
	if !ok {
		return nil, fmt.Errorf("adapters: expected *net.TCPConn, got %T", c)
	}
	return &NeuralClient{conn: tc, r: bufio.NewReader(tc), gate: NewTurnstile()}, nil
}

// Close closes the underlying socket.
func (c *NeuralClient) Close() error { return c.conn.Close() }

// fetch issues one FETCH command for the given input and returns the
// deinterleaved per-channel samples and the device's running sample count,
// running the full command/response exchange inside one turnstile turn so
// concurrent inputs never interleave bytes on the wire.
func (c *NeuralClient) fetch(ctx context.Context, input NeuralInput, offset uint64, pool *reactor.Pool) ([][]int16, uint64, error) {
	turn := c.gate.Wait()
	defer turn.Done()

	cmd := fmt.Sprintf("FETCH %d %d 50000 %s\n", input.DeviceIndex, offset, input.Subset)
	if dl, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(dl)
	}
	if _, err := c.conn.Write([]byte(cmd)); err != nil {
		return nil, 0, err
	}

	line, err := c.r.ReadString('\n')
	if err != nil {
		return nil, 0, err
	}
	line = strings.TrimRight(line, "\r\n")
	if strings.HasPrefix(line, neuralNoData) {
		return nil, offset, nil
	}
	if !strings.HasPrefix(line, neuralHeaderPrefix) {
		return nil, 0, fmt.Errorf("adapters: unexpected fetch header %q", line)
	}

	nchans, nsamples, fromCount, err := parseFetchHeader(line)
	if err != nil {
		return nil, 0, err
	}

	totalBytes := 2 * nchans * nsamples
	raw := make([]byte, totalBytes)
	if _, err := readFull(c.r, raw); err != nil {
		return nil, 0, err
	}

	data := deinterleave(raw, nchans, nsamples, pool)
	return data, fromCount + uint64(nsamples), nil
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// parseFetchHeader parses "BINARY_DATA <nchans> <nsamples> uint64(<count>)".
func parseFetchHeader(line string) (nchans, nsamples int, fromCount uint64, err error) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return 0, 0, 0, fmt.Errorf("adapters: malformed fetch header %q", line)
	}
	nchans, err = strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, 0, err
	}
	nsamples, err = strconv.Atoi(fields[2])
	if err != nil {
		return 0, 0, 0, err
	}
	if len(fields) >= 4 {
		inner := strings.TrimSuffix(strings.TrimPrefix(fields[3], "uint64("), ")")
		fromCount, _ = strconv.ParseUint(inner, 10, 64)
	}
	return nchans, nsamples, fromCount, nil
}

// deinterleave splits a sample-interleaved int16-LE byte buffer (sample s of
// channel c at byte offset 2*(s*nchans+c)) into nchans slices of nsamples
// each. Channels are grouped into bands of nchans/4 (at least one channel),
// one task per band, run across pool when it is non-nil and inline
// otherwise.
func deinterleave(raw []byte, nchans, nsamples int, pool *reactor.Pool) [][]int16 {
	data := make([][]int16, nchans)
	for c := range data {
		data[c] = make([]int16, nsamples)
	}
	if nchans == 0 {
		return data
	}
	bandSize := nchans / 4
	if bandSize < 1 {
		bandSize = 1
	}
	var fns []func()
	for start := 0; start < nchans; start += bandSize {
		start := start
		end := start + bandSize
		if end > nchans {
			end = nchans
		}
		fns = append(fns, func() {
			for ch := start; ch < end; ch++ {
				for s := 0; s < nsamples; s++ {
					i := 2 * (s*nchans + ch)
					if i+1 >= len(raw) {
						break
					}
					data[ch][s] = int16(uint16(raw[i]) | uint16(raw[i+1])<<8)
				}
			}
		})
	}
	if pool != nil {
		pool.SubmitAndWait(fns...)
	} else {
		for _, fn := range fns {
			fn()
		}
	}
	return data
}

// NeuralInput names one fetchable stream on the device (an NI card or an
// IMEC probe index, per spikeglx_node.cpp's Device enum), with an optional
// channel subset expression passed through to the FETCH command verbatim.
type NeuralInput struct {
	Name        string
	DeviceIndex int
	Subset      string
}

// NeuralNode is the neural-acquisition reference adapter (§4.6), polling
// one or more NeuralInputs over a shared NeuralClient on a fixed tick.
type NeuralNode struct {
	*graph.Base
	r      *reactor.Reactor
	pool   *reactor.Pool
	client *NeuralClient
	inputs []NeuralInput
	period time.Duration

	offsets []uint64

	mu    sync.Mutex
	frame *modality.AnalogFrame

	cancel context.CancelFunc
	done   chan struct{}
}

// NewNeuralNode constructs a node that fetches every input once per tick,
// interleaving one FETCH per input per tick so no single input starves the
// turnstile.
func NewNeuralNode(r *reactor.Reactor, pool *reactor.Pool, name string, client *NeuralClient, inputs []NeuralInput, period time.Duration) *NeuralNode {
	n := &NeuralNode{
		r: r, pool: pool, client: client, inputs: inputs, period: period,
		offsets: make([]uint64, len(inputs)),
		done:    make(chan struct{}),
	}
	n.Base = graph.NewBase(name, modality.Analog)
	return n
}

// Start launches the per-tick fetch loop.
func (n *NeuralNode) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel
	go n.fetchLoop(ctx)
}

func (n *NeuralNode) fetchLoop(ctx context.Context) {
	defer close(n.done)
	ticker := time.NewTicker(n.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		n.fetchOnce(ctx)
	}
}

// fetchOnce issues one FETCH per configured input, in order, each
// serialized through the client's turnstile.
func (n *NeuralNode) fetchOnce(ctx context.Context) {
	var names []string
	var rows [][]float64
	intervalNs := n.period.Nanoseconds()
	for i, in := range n.inputs {
		data, next, err := n.client.fetch(ctx, in, n.offsets[i], n.pool)
		if err != nil {
			return
		}
		n.offsets[i] = next
		for ch, samples := range data {
			names = append(names, fmt.Sprintf("%s:%d", in.Name, ch))
			rows = append(rows, int16ToFloat64(samples))
		}
	}
	if len(rows) == 0 {
		return
	}
	frame := &modality.AnalogFrame{
		ChannelNames:     names,
		Data:             rows,
		SampleIntervalNs: repeatInterval(intervalNs, len(rows)),
	}
	n.r.Post(func() {
		n.mu.Lock()
		n.frame = frame
		n.mu.Unlock()
		n.Publish(n, time.Now())
	})
}

func int16ToFloat64(in []int16) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}

// Stop ends the fetch loop.
func (n *NeuralNode) Stop() {
	if n.cancel != nil {
		n.cancel()
	}
	<-n.done
}

// AnalogFrame satisfies modality.Analog.
func (n *NeuralNode) AnalogFrame() *modality.AnalogFrame {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.frame
}
