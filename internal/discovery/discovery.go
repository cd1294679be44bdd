// Package discovery scans the local USB bus for attached DAVIS cameras:
// enumerate candidates, then fan out a bounded number of concurrent
// probes to read back each one's serial number.
package discovery

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/gousb"
)

// Info describes one attached camera found during a scan.
type Info struct {
	Bus          int
	Address      int
	VendorID     gousb.ID
	ProductID    gousb.ID
	SerialNumber string
}

// maxConcurrentProbes bounds how many devices are interrogated for a
// serial number at once.
const maxConcurrentProbes = 8

// Scan enumerates all USB devices matching vendorID/productID and probes
// each concurrently for its serial number string descriptor. ctx bounds
// the whole scan.
func Scan(ctx context.Context, vendorID, productID gousb.ID) ([]Info, error) {
	usbCtx := gousb.NewContext()
	defer usbCtx.Close()

	var candidates []*gousb.Device
	devs, err := usbCtx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == vendorID && desc.Product == productID
	})
	if err != nil {
		return nil, fmt.Errorf("discovery: enumerate devices: %w", err)
	}
	candidates = devs
	defer func() {
		for _, d := range candidates {
			d.Close()
		}
	}()

	results := make([]Info, len(candidates))
	sem := make(chan struct{}, maxConcurrentProbes)
	var wg sync.WaitGroup

	for i, dev := range candidates {
		wg.Add(1)
		go func(i int, dev *gousb.Device) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}
			results[i] = probe(dev, vendorID, productID)
		}(i, dev)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return nil, fmt.Errorf("discovery: scan cancelled: %w", ctx.Err())
	}

	return results, nil
}

func probe(dev *gousb.Device, vendorID, productID gousb.ID) Info {
	info := Info{
		Bus:       dev.Desc.Bus,
		Address:   dev.Desc.Address,
		VendorID:  vendorID,
		ProductID: productID,
	}
	if serial, err := dev.SerialNumber(); err == nil {
		info.SerialNumber = serial
	}
	return info
}
