// Package event defines the typed event variants emitted by the stream
// decoder and the packet/container shapes they are grouped into.
package event

import "fmt"

// Kind identifies which of the four concurrent event streams a packet
// belongs to.
type Kind int

const (
	KindPolarity Kind = iota
	KindSpecial
	KindFrame
	KindIMU6
)

func (k Kind) String() string {
	switch k {
	case KindPolarity:
		return "polarity"
	case KindSpecial:
		return "special"
	case KindFrame:
		return "frame"
	case KindIMU6:
		return "imu6"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Polarity is ON or OFF.
type Polarity bool

const (
	PolarityOff Polarity = false
	PolarityOn  Polarity = true
)

// PolarityEvent is a single DVS address event.
type PolarityEvent struct {
	TSUs     int32
	X        uint16
	Y        uint16
	Polarity Polarity
	Valid    bool
}

// SpecialType enumerates the recognized special/control markers.
type SpecialType int

const (
	SpecialTimestampReset SpecialType = iota
	SpecialExternalInputRising
	SpecialExternalInputFalling
	SpecialExternalInputPulse
	SpecialDVSRowOnly
)

// SpecialEvent is a control/marker event on the special stream. Data is
// only meaningful for SpecialDVSRowOnly, where it carries the stranded Y
// address.
type SpecialEvent struct {
	TSUs  uint32
	Type  SpecialType
	Data  uint32
	Valid bool
}

// FrameEvent is one APS readout, with a dense row-major pixel buffer.
type FrameEvent struct {
	TSStartOfFrame     int32
	TSEndOfFrame       int32
	TSStartOfExposure  int32
	TSEndOfExposure    int32
	Width              int
	Height             int
	Channels           int
	Pixels             []uint16 // len == Width*Height*Channels, row-major
	Valid              bool
}

// IMU6Event is one inertial sample: 3-axis accel (g), 3-axis gyro (°/s),
// temperature (°C).
type IMU6Event struct {
	TSUs        int32
	AccelX      float32
	AccelY      float32
	AccelZ      float32
	GyroX       float32
	GyroY       float32
	GyroZ       float32
	Temperature float32
	Valid       bool
}

// Packet is a typed, growable, insertion-ordered sequence of events of one
// kind. Position tracks the next free slot; Capacity bounds it.
type Packet struct {
	Kind       Kind
	Source     int16
	Capacity   int
	Position   int
	Polarity   []PolarityEvent
	Special    []SpecialEvent
	Frames     []FrameEvent
	IMU6       []IMU6Event
}

// NewPolarityPacket allocates an empty polarity packet of the given capacity.
func NewPolarityPacket(capacity int, source int16) *Packet {
	return &Packet{Kind: KindPolarity, Source: source, Capacity: capacity, Polarity: make([]PolarityEvent, capacity)}
}

// NewSpecialPacket allocates an empty special packet of the given capacity.
func NewSpecialPacket(capacity int, source int16) *Packet {
	return &Packet{Kind: KindSpecial, Source: source, Capacity: capacity, Special: make([]SpecialEvent, capacity)}
}

// NewFramePacket allocates an empty frame packet. Each slot's pixel buffer
// is preallocated to sensorW*sensorH*channels, the sensor's maximum frame
// size; an individual frame may use a smaller window of it.
func NewFramePacket(capacity int, source int16, sensorW, sensorH, channels int) *Packet {
	p := &Packet{Kind: KindFrame, Source: source, Capacity: capacity, Frames: make([]FrameEvent, capacity)}
	for i := range p.Frames {
		p.Frames[i].Pixels = make([]uint16, sensorW*sensorH*channels)
	}
	return p
}

// NewIMU6Packet allocates an empty IMU6 packet of the given capacity.
func NewIMU6Packet(capacity int, source int16) *Packet {
	return &Packet{Kind: KindIMU6, Source: source, Capacity: capacity, IMU6: make([]IMU6Event, capacity)}
}

// ValidatePolarity marks the event at p.Position valid and advances
// Position. It is the only path by which a polarity event becomes visible
// to consumers.
func (p *Packet) ValidatePolarity(e PolarityEvent) {
	e.Valid = true
	p.Polarity[p.Position] = e
	p.Position++
}

// ValidateSpecial marks the event at p.Position valid and advances Position.
func (p *Packet) ValidateSpecial(e SpecialEvent) {
	e.Valid = true
	p.Special[p.Position] = e
	p.Position++
}

// ValidateFrame marks the frame at p.Position valid and advances Position.
// Call this only when the frame's column/row counts are consistent; an
// inconsistent frame should still advance the position (via SkipFrame) but
// must never be validated.
func (p *Packet) ValidateFrame() {
	p.Frames[p.Position].Valid = true
	p.Position++
}

// SkipFrame advances Position without validating, for a frame whose
// integrity check failed.
func (p *Packet) SkipFrame() {
	p.Position++
}

// CurrentFrame returns a pointer to the in-progress frame at p.Position, for
// the decoder to fill in as APS symbols arrive.
func (p *Packet) CurrentFrame() *FrameEvent {
	return &p.Frames[p.Position]
}

// ValidateIMU6 marks the event at p.Position valid and advances Position.
func (p *Packet) ValidateIMU6(e IMU6Event) {
	e.Valid = true
	p.IMU6[p.Position] = e
	p.Position++
}

// Container is the unit handed to the consumer per commit cycle: up to one
// packet per stream, produced atomically.
type Container struct {
	Polarity *Packet
	Special  *Packet
	Frame    *Packet
	IMU6     *Packet
}

// Empty reports whether the container carries no packets at all.
func (c *Container) Empty() bool {
	return c.Polarity == nil && c.Special == nil && c.Frame == nil && c.IMU6 == nil
}
