package decoder

import (
	"runtime"

	"daviscore/internal/event"
)

// commitCheck is run after every decoded word. Each stream is sealed
// independently: a commit never bundles more than one stream's packet
// into a single container, even when a timestamp reset forces all four
// at once.
func (d *Decoder) commitCheck() {
	d.maybeCommitPolarity()
	d.maybeCommitSpecial()
	d.maybeCommitFrame()
	d.maybeCommitIMU6()
	d.forceCommitAll = false
}

func (d *Decoder) maybeCommitPolarity() {
	p := d.polarity
	force := d.forceCommitAll
	full := p.Position >= p.Capacity
	stale := p.Position > 0 && intervalExceeded(p, d.cfg.MaxPolarityIntervalUs.Load())
	if !force && !full && !stale {
		return
	}
	d.attemptCommit(p, false)
	d.polarity = event.NewPolarityPacket(int(d.cfg.MaxPolaritySize.Load()), d.Source)
}

func (d *Decoder) maybeCommitSpecial() {
	p := d.special
	force := d.forceCommitAll
	full := p.Position >= p.Capacity
	stale := p.Position > 0 && intervalExceeded(p, d.cfg.MaxSpecialIntervalUs.Load())
	if !force && !full && !stale {
		return
	}
	// A timestamp-reset marker must never be dropped, so a force-commit on
	// the special stream spins until the ring accepts it.
	d.attemptCommit(p, force)
	d.special = event.NewSpecialPacket(int(d.cfg.MaxSpecialSize.Load()), d.Source)
}

func (d *Decoder) maybeCommitFrame() {
	p := d.frame
	force := d.forceCommitAll
	full := p.Position >= p.Capacity
	stale := p.Position > 0 && intervalExceeded(p, d.cfg.MaxFrameIntervalUs.Load())
	if !force && !full && !stale {
		return
	}
	d.attemptCommit(p, false)
	d.frame = event.NewFramePacket(int(d.cfg.MaxFrameSize.Load()), d.Source, d.APSWidth, d.APSHeight, d.Channels)
	d.apsIgnoreEvents = true
}

func (d *Decoder) maybeCommitIMU6() {
	p := d.imu6
	force := d.forceCommitAll
	full := p.Position >= p.Capacity
	stale := p.Position > 0 && intervalExceeded(p, d.cfg.MaxIMU6IntervalUs.Load())
	if !force && !full && !stale {
		return
	}
	d.attemptCommit(p, false)
	d.imu6 = event.NewIMU6Packet(int(d.cfg.MaxIMU6Size.Load()), d.Source)
	d.imuIgnoreEvents = true
}

// attemptCommit seals a packet onto the sink. An empty packet is dropped
// silently (nothing to deliver). force spin-retries on a full ring rather
// than dropping; every other stream drops-and-logs instead of blocking the
// decode loop.
func (d *Decoder) attemptCommit(p *event.Packet, force bool) bool {
	if p.Position == 0 {
		return true
	}
	c := packetContainer(p)
	for {
		if d.sink.Put(c) {
			return true
		}
		if !force {
			d.logf("ALERT: ring full, dropping %d %s events", p.Position, streamName(p.Kind))
			return false
		}
		runtime.Gosched()
	}
}

func packetContainer(p *event.Packet) *event.Container {
	c := &event.Container{}
	switch p.Kind {
	case event.KindPolarity:
		c.Polarity = p
	case event.KindSpecial:
		c.Special = p
	case event.KindFrame:
		c.Frame = p
	case event.KindIMU6:
		c.IMU6 = p
	}
	return c
}

func streamName(k event.Kind) string {
	switch k {
	case event.KindPolarity:
		return "polarity"
	case event.KindSpecial:
		return "special"
	case event.KindFrame:
		return "frame"
	case event.KindIMU6:
		return "imu6"
	default:
		return "unknown"
	}
}

// intervalExceeded reports whether a packet's oldest-to-current timestamp
// span has exceeded its stream's max commit interval. Each stream stores
// timestamps in its own event slice, so this dispatches on the first
// recorded event rather than holding a generic field on Packet.
func intervalExceeded(p *event.Packet, maxIntervalUs int64) bool {
	if maxIntervalUs <= 0 || p.Position == 0 {
		return false
	}
	first, last, ok := firstLastTS(p)
	if !ok {
		return false
	}
	return int64(last)-int64(first) >= maxIntervalUs
}

func firstLastTS(p *event.Packet) (first, last int64, ok bool) {
	switch p.Kind {
	case event.KindPolarity:
		if p.Position == 0 {
			return 0, 0, false
		}
		return int64(p.Polarity[0].TSUs), int64(p.Polarity[p.Position-1].TSUs), true
	case event.KindSpecial:
		if p.Position == 0 {
			return 0, 0, false
		}
		return int64(p.Special[0].TSUs), int64(p.Special[p.Position-1].TSUs), true
	case event.KindFrame:
		if p.Position == 0 {
			return 0, 0, false
		}
		return int64(p.Frames[0].TSStartOfExposure), int64(p.Frames[p.Position-1].TSStartOfExposure), true
	case event.KindIMU6:
		if p.Position == 0 {
			return 0, 0, false
		}
		return int64(p.IMU6[0].TSUs), int64(p.IMU6[p.Position-1].TSUs), true
	default:
		return 0, 0, false
	}
}
