// Package transport wraps the USB bulk-transfer link to a DAVIS camera
// using gousb: open the first device with the given VID/PID, check its
// bus/address, claim the bulk interface, and hand back a stream of raw
// buffers.
package transport

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/gousb"
)

// Default vendor/product IDs for the iniVation DAVIS family.
const (
	DefaultVendorID  = gousb.ID(0x152A)
	DefaultProductID = gousb.ID(0x841A)

	bulkInEndpoint  = 0x86
	bulkOutEndpoint = 0x02
	controlTimeout  = 1000
)

// USBTransport owns one claimed USB interface and its bulk-IN endpoint.
// Not safe for concurrent Read/Close; Control* may be called from any
// goroutine while a read loop is idle between buffers.
type USBTransport struct {
	ctx    *gousb.Context
	dev    *gousb.Device
	cfg    *gousb.Config
	iface  *gousb.Interface
	done   func()
	inEP   *gousb.InEndpoint
	logger *log.Logger

	mu     sync.Mutex
	closed bool
}

// Selector narrows which attached device to open.
type Selector struct {
	Bus          int
	Address      int
	SerialNumber string
	VendorID     gousb.ID
	ProductID    gousb.ID
}

// Open claims the first attached device matching sel's vendor/product ID
// (the DAVIS defaults when those are zero). A non-zero Bus or Address that
// this device does not match makes Open fail; other attached devices with
// the same vendor/product ID are not tried. SerialNumber is not matched.
func Open(sel Selector, logger *log.Logger) (*USBTransport, error) {
	if logger == nil {
		logger = log.Default()
	}
	if sel.VendorID == 0 {
		sel.VendorID = DefaultVendorID
	}
	if sel.ProductID == 0 {
		sel.ProductID = DefaultProductID
	}

	ctx := gousb.NewContext()
	dev, err := ctx.OpenDeviceWithVIDPID(sel.VendorID, sel.ProductID)
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("transport: open device %v:%v: %w", sel.VendorID, sel.ProductID, err)
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("transport: no device found for %v:%v", sel.VendorID, sel.ProductID)
	}

	if sel.Bus != 0 && dev.Desc.Bus != sel.Bus {
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("transport: device found but bus %d != requested %d", dev.Desc.Bus, sel.Bus)
	}
	if sel.Address != 0 && dev.Desc.Address != sel.Address {
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("transport: device found but address %d != requested %d", dev.Desc.Address, sel.Address)
	}

	if err := dev.SetAutoDetach(true); err != nil {
		logger.Printf("transport: SetAutoDetach failed (continuing): %v", err)
	}

	cfg, err := dev.Config(1)
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("transport: claim config 1: %w", err)
	}
	iface, done, err := cfg.Interface(0, 0)
	if err != nil {
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("transport: claim interface 0: %w", err)
	}
	inEP, err := iface.InEndpoint(bulkInEndpoint)
	if err != nil {
		done()
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("transport: open bulk-in endpoint: %w", err)
	}

	return &USBTransport{
		ctx:    ctx,
		dev:    dev,
		cfg:    cfg,
		iface:  iface,
		done:   done,
		inEP:   inEP,
		logger: logger,
	}, nil
}

// ReadInto blocks until the device delivers a buffer or ctx is cancelled,
// returning the number of bytes read. buf should be sized to the
// configured USB buffer size (config.Runtime.USBBufferSize).
func (t *USBTransport) ReadInto(ctx context.Context, buf []byte) (int, error) {
	n, err := t.inEP.ReadContext(ctx, buf)
	if err != nil {
		return n, fmt.Errorf("transport: bulk read: %w", err)
	}
	return n, nil
}

// ControlGet issues a vendor IN control transfer to read a device register
// (configchannel.Channel uses this for module/parameter gets).
func (t *USBTransport) ControlGet(request uint8, value, index uint16, length int) ([]byte, error) {
	buf := make([]byte, length)
	n, err := t.dev.Control(gousb.ControlIn|gousb.ControlVendor|gousb.ControlDevice, request, value, index, buf)
	if err != nil {
		return nil, fmt.Errorf("transport: control get: %w", err)
	}
	return buf[:n], nil
}

// ControlSet issues a vendor OUT control transfer to write a device
// register.
func (t *USBTransport) ControlSet(request uint8, value, index uint16, data []byte) error {
	_, err := t.dev.Control(gousb.ControlOut|gousb.ControlVendor|gousb.ControlDevice, request, value, index, data)
	if err != nil {
		return fmt.Errorf("transport: control set: %w", err)
	}
	return nil
}

// Close releases the interface, device, and context. Safe to call more
// than once.
func (t *USBTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.done()
	t.cfg.Close()
	t.dev.Close()
	t.ctx.Close()
	return nil
}
