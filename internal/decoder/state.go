// Package decoder implements the protocol state machine that turns
// 16-bit wire symbols into typed events across four concurrent streams,
// and the per-stream commit policy that seals in-flight packets onto a
// sink.
package decoder

import (
	"log"

	"daviscore/internal/config"
	"daviscore/internal/event"
)

// ChipID identifies the sensor variant, which changes a handful of decode
// branches (DAVIS208 polarity inversion, DAVISRGB reset/signal ordering and
// sub-pixel interleave).
type ChipID int

const (
	ChipDAVIS240 ChipID = iota
	ChipDAVIS128
	ChipDAVIS208
	ChipDAVIS346
	ChipDAVISRGB
)

// adcDepth is the ADC bit depth DAVIS-class APS readout normalizes against;
// pixel values are left-shifted by (16-adcDepth) to fill a uint16.
const adcDepth = 10

type readoutPhase int

const (
	readoutReset readoutPhase = iota
	readoutSignal
)

// Geometry is the decoder's static device description, established once
// at Open by probing the camera's config channel directly.
type Geometry struct {
	ChipID ChipID

	DVSWidth  int
	DVSHeight int
	APSWidth  int
	APSHeight int
	Channels  int // 1 or 4

	DVSInvertXY bool
	APSInvertXY bool
	APSFlipX    bool
	APSFlipY    bool

	APSWindowX0 int
	APSWindowY0 int

	// Source tags every packet this decoder allocates, for consumers that
	// multiplex several device handles.
	Source int16
}

// Sink is the destination a sealed packet is committed to. *ring.Ring
// satisfies this.
type Sink interface {
	Put(*event.Container) bool
}

// Decoder is the single-owner protocol state machine. Only the
// acquisition goroutine may call Decode; it is not safe for concurrent use.
type Decoder struct {
	Geometry

	cfg    *config.Runtime
	sink   Sink
	logger *log.Logger

	wrapAdd    uint32
	currentTS  int32
	lastTS     int32

	dvsLastY uint16
	dvsGotY  bool
	dvsTS    int32

	currentReadout readoutPhase
	countX         [2]int
	countY         [2]int
	globalShutter  bool
	resetRead      bool
	apsIgnoreEvents bool
	rgbOffset      int
	rgbIncreasing  bool
	resetScratch   []uint16

	imuCount        int
	imuTmpU8        uint8
	imuIgnoreEvents bool
	imuEvent        event.IMU6Event
	accelScale      float32
	gyroScale       float32

	forceCommitAll bool

	polarity *event.Packet
	special  *event.Packet
	frame    *event.Packet
	imu6     *event.Packet
}

// New builds a decoder for the given geometry, reading the initial
// per-stream packet sizes from cfg. logger defaults to log.Default() if nil.
func New(geom Geometry, cfg *config.Runtime, sink Sink, logger *log.Logger) *Decoder {
	if logger == nil {
		logger = log.Default()
	}
	d := &Decoder{
		Geometry:     geom,
		cfg:          cfg,
		sink:         sink,
		logger:       logger,
		resetScratch: make([]uint16, geom.APSWidth*geom.APSHeight*geom.Channels),
		accelScale:   16384,
		gyroScale:    131.072,
	}
	d.polarity = event.NewPolarityPacket(int(cfg.MaxPolaritySize.Load()), geom.Source)
	d.special = event.NewSpecialPacket(int(cfg.MaxSpecialSize.Load()), geom.Source)
	d.frame = event.NewFramePacket(int(cfg.MaxFrameSize.Load()), geom.Source, geom.APSWidth, geom.APSHeight, geom.Channels)
	d.imu6 = event.NewIMU6Packet(int(cfg.MaxIMU6Size.Load()), geom.Source)
	return d
}

func (d *Decoder) logf(format string, args ...any) {
	d.logger.Printf(format, args...)
}

func signedU16(hi, lo uint8) int16 {
	return int16(uint16(hi)<<8 | uint16(lo))
}
