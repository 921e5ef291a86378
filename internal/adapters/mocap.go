package adapters

import (
	"context"
	"encoding/binary"
	"math"
	"net"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/cajigaslab/Thalamus-sub000/internal/graph"
	"github.com/cajigaslab/Thalamus-sub000/internal/modality"
	"github.com/cajigaslab/Thalamus-sub000/internal/reactor"
)

// datagramMagic is the packet type tag `original_source/src/xsens_node.cpp`
// checks for ("MXTP02") before parsing a segment payload; any other packet
// is dropped.
const datagramMagic = "MXTP02"

const (
	datagramHeaderLen  = 24
	segmentRecordLen   = 32
	sampleCounterOff   = 6
	timeCodeOff        = 12
	payloadSizeOff     = 22
)

// parseDatagram decodes one MVN-style UDP frame into its segments, mirroring
// Segment::parse byte-for-byte: a 24-byte header followed by N 32-byte
// big-endian segment records (segment_id u32 + position xyz + rotation
// wxyz, all float32).
func parseDatagram(buf []byte) (sampleCounter, timeCode uint32, segments []modality.Segment, ok bool) {
	if len(buf) < datagramHeaderLen || string(buf[:6]) != datagramMagic {
		return 0, 0, nil, false
	}
	sampleCounter = binary.BigEndian.Uint32(buf[sampleCounterOff:])
	timeCode = binary.BigEndian.Uint32(buf[timeCodeOff:])
	payloadSize := binary.BigEndian.Uint16(buf[payloadSizeOff:])
	pos := datagramHeaderLen
	end := pos + int(payloadSize)
	if end > len(buf) {
		end = len(buf)
	}
	for pos+segmentRecordLen <= end {
		rec := buf[pos : pos+segmentRecordLen]
		seg := modality.Segment{
			FrameNumber: int64(sampleCounter),
			SegmentID:   int(binary.BigEndian.Uint32(rec[0:4])),
			Position: modality.Vec3{
				X: float64(math.Float32frombits(binary.BigEndian.Uint32(rec[4:8]))),
				Y: float64(math.Float32frombits(binary.BigEndian.Uint32(rec[8:12]))),
				Z: float64(math.Float32frombits(binary.BigEndian.Uint32(rec[12:16]))),
			},
			Rotation: modality.Quaternion{
				W: float64(math.Float32frombits(binary.BigEndian.Uint32(rec[16:20]))),
				X: float64(math.Float32frombits(binary.BigEndian.Uint32(rec[20:24]))),
				Y: float64(math.Float32frombits(binary.BigEndian.Uint32(rec[24:28]))),
				Z: float64(math.Float32frombits(binary.BigEndian.Uint32(rec[28:32]))),
			},
		}
		segments = append(segments, seg)
		pos += segmentRecordLen
	}
	return sampleCounter, timeCode, segments, true
}

// FingerPair names two segment indices (fingertip, base) whose distance is
// tracked as a derived, min/max-normalized analog channel, generalizing the
// five fixed hand_offset pairs `xsens_node.cpp`'s Impl::on_receive computes
// for its per-hand "pinch" metric.
type FingerPair struct {
	Name string
	Tip  int
	Base int
}

type fingerRange struct {
	have     bool
	min, max float64
}

func (r *fingerRange) normalize(v float64) float64 {
	if !r.have {
		r.min, r.max = v, v
		r.have = true
	} else if v < r.min {
		r.min = v
	} else if v > r.max {
		r.max = v
	}
	if r.max == r.min {
		return 0
	}
	return (v - r.min) / (r.max - r.min)
}

// MocapNode is the UDP motion-capture adapter (§4.6 "motion capture"): it
// parses MVN-style segment datagrams and additionally publishes derived
// pose-distance analog channels, one per configured FingerPair.
type MocapNode struct {
	*graph.Base
	r     *reactor.Reactor
	conn  *net.UDPConn
	pairs []FingerPair

	mu     sync.Mutex
	motion *modality.MotionFrame
	analog *modality.AnalogFrame
	ranges []fingerRange

	cancel context.CancelFunc
	done   chan struct{}
}

// NewMocapNode binds a UDP listener at addr (e.g. ":9763") and returns a
// node publishing both MotionCapture and Analog facets.
func NewMocapNode(r *reactor.Reactor, name, addr string, pairs []FingerPair) (*MocapNode, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	// Motion-capture suits stream many actors' segments at high rate;
	// raise the kernel receive buffer so a scheduling hiccup on the
	// receive goroutine doesn't drop datagrams before ReadFromUDP runs.
	if err := raiseRecvBuffer(conn, 4<<20); err != nil {
		conn.Close()
		return nil, err
	}
	n := &MocapNode{
		r:      r,
		conn:   conn,
		pairs:  pairs,
		ranges: make([]fingerRange, len(pairs)),
		done:   make(chan struct{}),
	}
	n.Base = graph.NewBase(name, modality.MotionCapture|modality.Analog)
	return n, nil
}

// Start launches the receive loop.
func (n *MocapNode) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel
	go n.receiveLoop(ctx)
}

func (n *MocapNode) receiveLoop(ctx context.Context) {
	defer close(n.done)
	buf := make([]byte, 65536)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		_ = n.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		read, _, err := n.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return
		}
		sampleCounter, timeCode, segs, ok := parseDatagram(buf[:read])
		if !ok {
			continue
		}
		for i := range segs {
			segs[i].TimeWithinFrame = int64(timeCode)
		}
		motion := &modality.MotionFrame{Segments: segs}
		values := n.deriveDistances(segs)
		analog := &modality.AnalogFrame{
			ChannelNames:     pairNames(n.pairs),
			Data:             valuesAsRows(values),
			SampleIntervalNs: repeatInterval(0, len(n.pairs)),
		}
		_ = sampleCounter
		n.r.Post(func() {
			n.mu.Lock()
			n.motion = motion
			n.analog = analog
			n.mu.Unlock()
			n.Publish(n, time.Now())
		})
	}
}

// deriveDistances computes, for each configured FingerPair, the normalized
// tip-to-base segment distance for this frame. Runs off the reactor, on the
// UDP receive goroutine, touching only n.ranges which that goroutine owns
// exclusively between Start and Stop. The tip-minus-base displacement is
// formed as a gonum VecDense and measured with mat.Norm, the same
// mat.Vector/mat.Dense idiom the teacher's off/ package uses for its
// projector linear algebra, generalized here from an n-basis projection to
// a 3-vector Euclidean norm.
func (n *MocapNode) deriveDistances(segs []modality.Segment) []float64 {
	byID := make(map[int]modality.Vec3, len(segs))
	for _, s := range segs {
		byID[s.SegmentID] = s.Position
	}
	out := make([]float64, len(n.pairs))
	for i, p := range n.pairs {
		tip, tok := byID[p.Tip]
		base, bok := byID[p.Base]
		if !tok || !bok {
			continue
		}
		delta := mat.NewVecDense(3, []float64{tip.X - base.X, tip.Y - base.Y, tip.Z - base.Z})
		dist := mat.Norm(delta, 2)
		out[i] = n.ranges[i].normalize(dist)
	}
	return out
}

func pairNames(pairs []FingerPair) []string {
	names := make([]string, len(pairs))
	for i, p := range pairs {
		names[i] = p.Name
	}
	return names
}

func valuesAsRows(values []float64) [][]float64 {
	rows := make([][]float64, len(values))
	for i, v := range values {
		rows[i] = []float64{v}
	}
	return rows
}

// Stop terminates the receive loop and closes the socket.
func (n *MocapNode) Stop() {
	if n.cancel != nil {
		n.cancel()
	}
	<-n.done
	_ = n.conn.Close()
}

// MotionFrame satisfies modality.MoCap.
func (n *MocapNode) MotionFrame() *modality.MotionFrame {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.motion
}

// AnalogFrame satisfies modality.Analog with the derived pose-distance
// channels.
func (n *MocapNode) AnalogFrame() *modality.AnalogFrame {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.analog
}
