// Package davis is the public acquisition API: open a camera, start/stop
// streaming, read back committed event containers, and tune runtime
// configuration while streaming.
package davis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"daviscore/internal/config"
	"daviscore/internal/configchannel"
	"daviscore/internal/decoder"
	"daviscore/internal/event"
	"daviscore/internal/ring"
	"daviscore/internal/transport"
)

// ErrNoData is returned by DataGet in non-blocking mode when the ring has
// nothing committed yet.
var ErrNoData = errors.New("davis: no data available")

// Info describes the opened camera's fixed geometry and identity. It is
// filled in during Open by probing the config channel directly, since the
// device itself exposes no separate info/state initialization call.
type Info struct {
	ChipID        decoder.ChipID
	SerialNumber  string
	LogicRevision int
	DVSWidth      int
	DVSHeight     int
	APSWidth      int
	APSHeight     int
}

// Device is a single opened DAVIS camera. Open returns one; Close tears it
// down. DataStart/DataStop toggle the acquisition goroutine; DataGet reads
// committed containers off the ring.
type Device struct {
	info Info
	cfg  *config.Runtime

	tr  transport.Reader
	ch  *configchannel.Channel
	dec *decoder.Decoder
	rng *ring.Ring
	sts *statsSink

	logger *log.Logger

	mu        sync.Mutex
	streaming bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// Open claims a USB device matching sel, probes its geometry over the
// config channel, and returns a ready-to-stream Device.
func Open(sel transport.Selector, logger *log.Logger) (*Device, error) {
	if logger == nil {
		logger = log.Default()
	}

	tr, err := transport.Open(sel, logger)
	if err != nil {
		return nil, fmt.Errorf("davis: open: %w", err)
	}

	ch := configchannel.New(tr)
	geom, info, err := probeGeometry(ch)
	if err != nil {
		tr.Close()
		return nil, fmt.Errorf("davis: probe geometry: %w", err)
	}
	geom.Source = 0

	cfg := config.NewRuntime()
	rng := ring.New(int(cfg.RingSize.Load()))
	sts := newStatsSink(rng)
	dec := decoder.New(geom, cfg, sts, logger)

	return &Device{
		info:   info,
		cfg:    cfg,
		tr:     tr,
		ch:     ch,
		dec:    dec,
		rng:    rng,
		sts:    sts,
		logger: logger,
	}, nil
}

// registers addressed on the config channel's module 0 ("chip info").
const (
	moduleChipInfo     uint8 = 0
	paramChipID        uint8 = 0
	paramDVSSizeX      uint8 = 1
	paramDVSSizeY      uint8 = 2
	paramAPSSizeX      uint8 = 3
	paramAPSSizeY      uint8 = 4
	paramLogicRevision uint8 = 5

	moduleDVSInfo           uint8 = 1
	paramDVSOrientationInfo uint8 = 0

	moduleAPSInfo           uint8 = 2
	paramAPSOrientationInfo uint8 = 0
	paramAPSWindowX0        uint8 = 1
	paramAPSWindowY0        uint8 = 2
)

// orientation-info register bits, shared by the DVS and APS orientation
// registers; the DVS register only ever sets invertXY.
const (
	orientationInvertXY uint32 = 0x04
	orientationFlipX    uint32 = 0x02
	orientationFlipY    uint32 = 0x01
)

// requiredLogicRevision is the minimum FPGA logic revision this decoder's
// wire-protocol assumptions were validated against. Open fails fatally
// below it rather than risk silently misparsing the bitstream.
const requiredLogicRevision = 7017

func probeGeometry(ch *configchannel.Channel) (decoder.Geometry, Info, error) {
	chipIDVal, err := ch.Get(moduleChipInfo, paramChipID)
	if err != nil {
		return decoder.Geometry{}, Info{}, err
	}
	logicRev, err := ch.Get(moduleChipInfo, paramLogicRevision)
	if err != nil {
		return decoder.Geometry{}, Info{}, err
	}
	if logicRev < requiredLogicRevision {
		return decoder.Geometry{}, Info{}, fmt.Errorf(
			"davis: device logic revision %d too old, at least %d required", logicRev, requiredLogicRevision)
	}
	dvsW, err := ch.Get(moduleChipInfo, paramDVSSizeX)
	if err != nil {
		return decoder.Geometry{}, Info{}, err
	}
	dvsH, err := ch.Get(moduleChipInfo, paramDVSSizeY)
	if err != nil {
		return decoder.Geometry{}, Info{}, err
	}
	apsW, err := ch.Get(moduleChipInfo, paramAPSSizeX)
	if err != nil {
		return decoder.Geometry{}, Info{}, err
	}
	apsH, err := ch.Get(moduleChipInfo, paramAPSSizeY)
	if err != nil {
		return decoder.Geometry{}, Info{}, err
	}
	dvsOrient, err := ch.Get(moduleDVSInfo, paramDVSOrientationInfo)
	if err != nil {
		return decoder.Geometry{}, Info{}, err
	}
	apsOrient, err := ch.Get(moduleAPSInfo, paramAPSOrientationInfo)
	if err != nil {
		return decoder.Geometry{}, Info{}, err
	}
	apsWindowX0, err := ch.Get(moduleAPSInfo, paramAPSWindowX0)
	if err != nil {
		return decoder.Geometry{}, Info{}, err
	}
	apsWindowY0, err := ch.Get(moduleAPSInfo, paramAPSWindowY0)
	if err != nil {
		return decoder.Geometry{}, Info{}, err
	}

	chipID := decoder.ChipID(chipIDVal)
	channels := 1
	if chipID == decoder.ChipDAVISRGB {
		channels = 4
	}

	geom := decoder.Geometry{
		ChipID:      chipID,
		DVSWidth:    int(dvsW),
		DVSHeight:   int(dvsH),
		APSWidth:    int(apsW),
		APSHeight:   int(apsH),
		Channels:    channels,
		DVSInvertXY: dvsOrient&orientationInvertXY != 0,
		APSInvertXY: apsOrient&orientationInvertXY != 0,
		APSFlipX:    apsOrient&orientationFlipX != 0,
		APSFlipY:    apsOrient&orientationFlipY != 0,
		APSWindowX0: int(apsWindowX0),
		APSWindowY0: int(apsWindowY0),
	}
	info := Info{
		ChipID:        chipID,
		LogicRevision: int(logicRev),
		DVSWidth:      int(dvsW),
		DVSHeight:     int(dvsH),
		APSWidth:      int(apsW),
		APSHeight:     int(apsH),
	}
	return geom, info, nil
}

// InfoGet returns the camera's fixed identity and geometry.
func (d *Device) InfoGet() Info {
	return d.info
}

// ConfigGet reads one runtime configuration cell by name.
func (d *Device) ConfigGet(name string) (int64, error) {
	cell, err := d.cell(name)
	if err != nil {
		return 0, err
	}
	return cell.Load(), nil
}

// ConfigSet writes one runtime configuration cell by name. usb_buffer_size
// takes effect at the next DataStart. ring_size is read only when Open
// creates the ring, so writing it does not resize the ring of an opened
// Device; usb_buffer_number is not read by the acquisition loop.
func (d *Device) ConfigSet(name string, value int64) error {
	cell, err := d.cell(name)
	if err != nil {
		return err
	}
	cell.Store(value)
	return nil
}

func (d *Device) cell(name string) (*atomic.Int64, error) {
	switch name {
	case "ring_size":
		return &d.cfg.RingSize, nil
	case "usb_buffer_number":
		return &d.cfg.USBBufferNumber, nil
	case "usb_buffer_size":
		return &d.cfg.USBBufferSize, nil
	case "max_polarity_size":
		return &d.cfg.MaxPolaritySize, nil
	case "max_special_size":
		return &d.cfg.MaxSpecialSize, nil
	case "max_frame_size":
		return &d.cfg.MaxFrameSize, nil
	case "max_imu6_size":
		return &d.cfg.MaxIMU6Size, nil
	case "max_polarity_interval_us":
		return &d.cfg.MaxPolarityIntervalUs, nil
	case "max_special_interval_us":
		return &d.cfg.MaxSpecialIntervalUs, nil
	case "max_frame_interval_us":
		return &d.cfg.MaxFrameIntervalUs, nil
	case "max_imu6_interval_us":
		return &d.cfg.MaxIMU6IntervalUs, nil
	default:
		return nil, fmt.Errorf("davis: unknown config parameter %q", name)
	}
}

// DataStart begins the acquisition goroutine: it reads raw USB buffers
// and feeds them to the decoder until DataStop or Close.
func (d *Device) DataStart() error {
	return d.DataStartNotify(nil, nil)
}

// DataStartNotify is DataStart plus the notify_increase/notify_decrease
// hooks named by the consumer-facing data_start operation: increase fires
// on every successful ring Put, decrease on every successful Get (and on
// the final drain at DataStop), each exactly once per container
// transition. Hooks must be reentrant and non-blocking; either may be nil.
func (d *Device) DataStartNotify(increase, decrease func()) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.streaming {
		return fmt.Errorf("davis: data acquisition already started")
	}

	d.rng.SetNotifiers(increase, decrease)

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.streaming = true

	d.wg.Add(1)
	go d.acquireLoop(ctx)
	return nil
}

func (d *Device) acquireLoop(ctx context.Context) {
	defer d.wg.Done()
	bufSize := int(d.cfg.USBBufferSize.Load())
	buf := make([]byte, bufSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		n, err := d.tr.ReadInto(ctx, buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.logger.Printf("davis: read error: %v", err)
			continue
		}
		if n > 0 {
			d.dec.Decode(buf[:n])
		}
	}
}

// DataStop halts the acquisition goroutine and waits for it to exit.
func (d *Device) DataStop() error {
	d.mu.Lock()
	if !d.streaming {
		d.mu.Unlock()
		return fmt.Errorf("davis: data acquisition not started")
	}
	cancel := d.cancel
	d.streaming = false
	d.mu.Unlock()

	cancel()
	d.wg.Wait()
	d.rng.Drain()
	return nil
}

// DataGet returns the next committed container. In blocking mode (the
// consumer's BlockingMode config cell) it busy-retries until one is
// available or ctx is cancelled. In non-blocking mode it never blocks: an
// empty ring returns ErrNoData immediately.
func (d *Device) DataGet(ctx context.Context) (*event.Container, error) {
	if !d.cfg.BlockingMode.Load() {
		if c, ok := d.rng.Get(); ok {
			return c, nil
		}
		return nil, ErrNoData
	}
	for {
		if c, ok := d.rng.Get(); ok {
			return c, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
	}
}

// Stats reports ring depth, per-stream commit/drop counters, and each
// stream's last committed timestamp, for debug/introspection tooling.
func (d *Device) Stats() Stats {
	return Stats{
		RingDepth:    d.rng.Len(),
		RingCapacity: d.rng.Cap(),
		Polarity:     d.sts.polarity.snapshot(),
		Special:      d.sts.special.snapshot(),
		Frame:        d.sts.frame.snapshot(),
		IMU6:         d.sts.imu6.snapshot(),
	}
}

// Close stops acquisition if running and releases the USB device.
func (d *Device) Close() error {
	d.mu.Lock()
	streaming := d.streaming
	d.mu.Unlock()
	if streaming {
		d.DataStop()
	}
	return d.tr.Close()
}
