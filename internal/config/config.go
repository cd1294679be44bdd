// Package config holds the acquisition core's tunables: consumer-side
// atomic knobs for ring sizing, buffer counts, and per-stream commit
// thresholds, plus the device selection overrides an operator can set
// through the environment.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
)

// Defaults for acquisition-core tunables: small rings, bounded per-stream
// packets, short commit intervals for low-latency streams.
const (
	DefaultRingSize          = 64
	DefaultUSBBufferNumber   = 8
	DefaultUSBBufferSize     = 4096
	DefaultMaxPolaritySize   = 4096
	DefaultMaxSpecialSize    = 128
	DefaultMaxFrameSize      = 4
	DefaultMaxIMU6Size       = 8
	DefaultMaxPolarityIntvUs = 5000
	DefaultMaxSpecialIntvUs  = 1000
	DefaultMaxFrameIntvUs    = 50000
	DefaultMaxIMU6IntvUs     = 5000
)

// Runtime is the set of atomic configuration cells the producer reads on
// each relevant boundary and the consumer may write at any time. The USB
// buffer size is read when DataStart launches the acquisition loop; ring
// capacity is read once, when davis.Open creates the ring, and the USB
// buffer number is not read by the acquisition loop. Per-stream interval
// limits are read on every commit check; per-stream size limits apply to
// the next packet allocated after a commit.
type Runtime struct {
	RingSize        atomic.Int64
	BlockingMode    atomic.Bool
	USBBufferNumber atomic.Int64
	USBBufferSize   atomic.Int64

	MaxPolaritySize atomic.Int64
	MaxSpecialSize  atomic.Int64
	MaxFrameSize    atomic.Int64
	MaxIMU6Size     atomic.Int64

	MaxPolarityIntervalUs atomic.Int64
	MaxSpecialIntervalUs  atomic.Int64
	MaxFrameIntervalUs    atomic.Int64
	MaxIMU6IntervalUs     atomic.Int64
}

// NewRuntime returns a Runtime preloaded with the package defaults.
func NewRuntime() *Runtime {
	r := &Runtime{}
	r.RingSize.Store(DefaultRingSize)
	r.USBBufferNumber.Store(DefaultUSBBufferNumber)
	r.USBBufferSize.Store(DefaultUSBBufferSize)
	r.MaxPolaritySize.Store(DefaultMaxPolaritySize)
	r.MaxSpecialSize.Store(DefaultMaxSpecialSize)
	r.MaxFrameSize.Store(DefaultMaxFrameSize)
	r.MaxIMU6Size.Store(DefaultMaxIMU6Size)
	r.MaxPolarityIntervalUs.Store(DefaultMaxPolarityIntvUs)
	r.MaxSpecialIntervalUs.Store(DefaultMaxSpecialIntvUs)
	r.MaxFrameIntervalUs.Store(DefaultMaxFrameIntvUs)
	r.MaxIMU6IntervalUs.Store(DefaultMaxIMU6IntvUs)
	return r
}

// DeviceSelector narrows which USB device davis.Open should bind to; zero
// values mean "no restriction" on that field. transport.Open checks Bus and
// Address only; SerialNumber is not matched.
type DeviceSelector struct {
	Bus          int
	Address      int
	SerialNumber string
}

// LoadDeviceSelector reads DAVIS_BUS / DAVIS_ADDRESS / DAVIS_SERIAL from a
// .env file (if present in the project root) and the environment, the
// environment taking precedence.
func LoadDeviceSelector() DeviceSelector {
	var sel DeviceSelector

	projectRoot := findProjectRoot()
	envPath := filepath.Join(projectRoot, ".env")
	if data, err := os.ReadFile(envPath); err == nil {
		parseEnvFile(string(data), &sel)
	}

	if v := os.Getenv("DAVIS_BUS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			sel.Bus = n
		}
	}
	if v := os.Getenv("DAVIS_ADDRESS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			sel.Address = n
		}
	}
	if v := os.Getenv("DAVIS_SERIAL"); v != "" {
		sel.SerialNumber = v
	}

	return sel
}

func parseEnvFile(content string, sel *DeviceSelector) {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		switch key {
		case "DAVIS_BUS":
			if n, err := strconv.Atoi(value); err == nil {
				sel.Bus = n
			}
		case "DAVIS_ADDRESS":
			if n, err := strconv.Atoi(value); err == nil {
				sel.Address = n
			}
		case "DAVIS_SERIAL":
			sel.SerialNumber = value
		}
	}
}

func findProjectRoot() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	for {
		if _, err := os.Stat(filepath.Join(cwd, "go.mod")); err == nil {
			return cwd
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			return cwd
		}
		cwd = parent
	}
}
