// Package modality defines the polymorphic facets a graph node may
// implement — analog, motion-capture, image, and text (§3, §4.3 of the
// spec) — plus the frame types each facet publishes.
package modality

// Mask is the bitmask a node declares for the facets it implements.
type Mask uint8

const (
	Analog Mask = 1 << iota
	MotionCapture
	Image
	Text
)

func (m Mask) Has(f Mask) bool { return m&f != 0 }

func (m Mask) String() string {
	s := ""
	if m.Has(Analog) {
		s += "A"
	}
	if m.Has(MotionCapture) {
		s += "M"
	}
	if m.Has(Image) {
		s += "I"
	}
	if m.Has(Text) {
		s += "T"
	}
	if s == "" {
		return "-"
	}
	return s
}

// AnalogFrame is a non-copying view over the most recent publish: for each
// channel, a contiguous slice of samples valid until the next ready signal
// on the same node.
type AnalogFrame struct {
	ChannelNames     []string
	Data             [][]float64 // per-channel samples
	SampleIntervalNs []int64     // per-channel, nanoseconds
}

func (f *AnalogFrame) Nchan() int { return len(f.Data) }

// Analog is implemented by nodes that publish multichannel sample data.
type Analog interface {
	AnalogFrame() *AnalogFrame
}

// Quaternion is a (w,x,y,z) rotation.
type Quaternion struct{ W, X, Y, Z float64 }

// Vec3 is a position.
type Vec3 struct{ X, Y, Z float64 }

// Segment is one tracked joint within a motion-capture frame. SegmentID is
// stable across frames for a given physical joint.
type Segment struct {
	FrameNumber     int64
	SegmentID       int
	TimeWithinFrame int64 // nanoseconds
	Position        Vec3
	Rotation        Quaternion
	PoseName        string
	Actor           uint8
}

// MotionFrame is an ordered sequence of Segments.
type MotionFrame struct {
	Segments []Segment
	PoseName string
}

// MoCap is implemented by nodes that publish motion-capture frames.
type MoCap interface {
	MotionFrame() *MotionFrame
}

// ImageFormat enumerates the supported pixel formats (§3).
type ImageFormat int

const (
	FormatGray8 ImageFormat = iota
	FormatGray16
	FormatRGB8
	FormatRGB16
	FormatYUYV422
	FormatYUV420P
	FormatYUVJ420P
	FormatMPEG1
	FormatMPEG4
)

// PlaneCount returns 1 for packed formats, 3 for planar YUV.
func (f ImageFormat) PlaneCount() int {
	switch f {
	case FormatYUV420P, FormatYUVJ420P:
		return 3
	default:
		return 1
	}
}

// BytesPerPixel is used by chunkers/decoders to size plane buffers for
// packed formats; planar formats compute plane sizes directly from
// width/height and chroma subsampling instead.
func (f ImageFormat) BytesPerPixel() int {
	switch f {
	case FormatGray8, FormatYUYV422:
		return 1
	case FormatGray16, FormatRGB16:
		return 2
	case FormatRGB8:
		return 3
	default:
		return 0
	}
}

// ImageFrame is one published video frame, possibly split across multiple
// wire chunks by the transport layer (Last marks the terminal chunk there).
type ImageFrame struct {
	Width, Height  int
	Format         ImageFormat
	Planes         [][]byte
	BigEndian      bool // endianness flag, relevant for 16-bit formats
	Last           bool
	FrameIntervalNs int64
}

// Image is implemented by nodes that publish video frames.
type Image interface {
	ImageFrame() *ImageFrame
}

// Text is implemented by nodes that publish a single string per frame.
type Text interface {
	TextFrame() string
}

// AnalogSink is implemented by nodes that accept injected analog frames —
// the inverse of Analog, used by InjectAnalog and capture replay (§4.4
// "Inject-analog", §4.5 "Replay"). Injection always runs on the reactor
// goroutine, synchronously with the caller awaiting completion.
type AnalogSink interface {
	InjectAnalog(f *AnalogFrame)
}

// ImageSink is the image-frame analogue of AnalogSink, used by replay.
type ImageSink interface {
	InjectImage(f *ImageFrame)
}

// MotionSink is the motion-frame analogue of AnalogSink, used by replay.
type MotionSink interface {
	InjectMotion(f *MotionFrame)
}
