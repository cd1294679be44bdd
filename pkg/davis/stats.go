package davis

import (
	"sync/atomic"

	"daviscore/internal/event"
	"daviscore/internal/ring"
)

// StreamStats is one stream's running commit/drop counters.
type StreamStats struct {
	Commits        int64
	Drops          int64
	LastCommitTSUs int64
}

// Stats is the debug/introspection snapshot returned by Device.Stats.
type Stats struct {
	RingDepth    int
	RingCapacity int
	Polarity     StreamStats
	Special      StreamStats
	Frame        StreamStats
	IMU6         StreamStats
}

type streamCounters struct {
	commits        atomic.Int64
	drops          atomic.Int64
	lastCommitTSUs atomic.Int64
}

func (c *streamCounters) snapshot() StreamStats {
	return StreamStats{
		Commits:        c.commits.Load(),
		Drops:          c.drops.Load(),
		LastCommitTSUs: c.lastCommitTSUs.Load(),
	}
}

// statsSink wraps the ring so every packet the decoder commits is counted
// per stream before being handed to the SPSC exchange. It satisfies
// decoder.Sink.
type statsSink struct {
	rng *ring.Ring

	polarity streamCounters
	special  streamCounters
	frame    streamCounters
	imu6     streamCounters
}

func newStatsSink(rng *ring.Ring) *statsSink {
	return &statsSink{rng: rng}
}

func (s *statsSink) Put(c *event.Container) bool {
	counters, tsUs := s.counterFor(c)
	ok := s.rng.Put(c)
	if counters == nil {
		return ok
	}
	if ok {
		counters.commits.Add(1)
		counters.lastCommitTSUs.Store(tsUs)
	} else {
		counters.drops.Add(1)
	}
	return ok
}

func (s *statsSink) counterFor(c *event.Container) (*streamCounters, int64) {
	switch {
	case c.Polarity != nil:
		return &s.polarity, lastPolarityTS(c.Polarity)
	case c.Special != nil:
		return &s.special, lastSpecialTS(c.Special)
	case c.Frame != nil:
		return &s.frame, lastFrameTS(c.Frame)
	case c.IMU6 != nil:
		return &s.imu6, lastIMU6TS(c.IMU6)
	default:
		return nil, 0
	}
}

func lastPolarityTS(p *event.Packet) int64 {
	if p.Position == 0 {
		return 0
	}
	return int64(p.Polarity[p.Position-1].TSUs)
}

func lastSpecialTS(p *event.Packet) int64 {
	if p.Position == 0 {
		return 0
	}
	return int64(p.Special[p.Position-1].TSUs)
}

func lastFrameTS(p *event.Packet) int64 {
	if p.Position == 0 {
		return 0
	}
	return int64(p.Frames[p.Position-1].TSEndOfFrame)
}

func lastIMU6TS(p *event.Packet) int64 {
	if p.Position == 0 {
		return 0
	}
	return int64(p.IMU6[p.Position-1].TSUs)
}
