package decoder

import (
	"bytes"
	"encoding/binary"
	"log"
	"strings"
	"testing"

	"daviscore/internal/config"
	"daviscore/internal/event"
)

type captureSink struct {
	containers []*event.Container
}

func (s *captureSink) Put(c *event.Container) bool {
	s.containers = append(s.containers, c)
	return true
}

func words(ws ...uint16) []byte {
	buf := make([]byte, len(ws)*2)
	for i, w := range ws {
		binary.LittleEndian.PutUint16(buf[i*2:], w)
	}
	return buf
}

func newTestDecoder(sink Sink) *Decoder {
	geom := Geometry{
		ChipID:    ChipDAVIS240,
		DVSWidth:  240,
		DVSHeight: 180,
		APSWidth:  240,
		APSHeight: 180,
		Channels:  1,
		Source:    1,
	}
	cfg := config.NewRuntime()
	return New(geom, cfg, sink, nil)
}

// A single DVS address event (timestamp symbol, y address, x address/ON)
// produces exactly one validated polarity event.
func TestSingleDVSAddressEventProducesPolarityEvent(t *testing.T) {
	sink := &captureSink{}
	d := newTestDecoder(sink)

	d.Decode(words(0x8005, 0x1002, 0x3010))
	// force a flush so we can inspect it
	d.forceCommitAll = true
	d.commitCheck()

	if len(sink.containers) == 0 {
		t.Fatal("expected at least one committed container")
	}
	var found *event.PolarityEvent
	for _, c := range sink.containers {
		if c.Polarity != nil && c.Polarity.Position > 0 {
			found = &c.Polarity.Polarity[0]
		}
	}
	if found == nil {
		t.Fatal("expected a validated polarity event")
	}
	if found.TSUs != 5 || found.X != 16 || found.Y != 2 || found.Polarity != event.PolarityOn || !found.Valid {
		t.Fatalf("unexpected polarity event: %+v", *found)
	}
}

// A DVS row address (Y) with no matching column (X) before the next row
// address arrives is stranded: it must surface as a SpecialDVSRowOnly
// event carrying the stranded row in Data, rather than being silently
// dropped or paired with the wrong column.
func TestRowOnlyDVSYAddressProducesSpecialRowOnlyEvent(t *testing.T) {
	sink := &captureSink{}
	d := newTestDecoder(sink)

	d.Decode(words(0x8005, 0x1002, 0x1003)) // ts symbol, y=2, y=3 (no x in between)
	d.forceCommitAll = true
	d.commitCheck()

	var found *event.SpecialEvent
	for _, c := range sink.containers {
		if c.Special == nil {
			continue
		}
		for i := 0; i < c.Special.Position; i++ {
			if c.Special.Special[i].Type == event.SpecialDVSRowOnly {
				found = &c.Special.Special[i]
			}
		}
	}
	if found == nil {
		t.Fatal("expected a SpecialDVSRowOnly event for the stranded row address")
	}
	if found.Data != 2 || !found.Valid {
		t.Fatalf("unexpected row-only event: %+v", *found)
	}
}

// A frame whose reset-phase and signal-phase column counts don't match the
// frame width must not be validated, but must still advance position so
// the stream doesn't desynchronize.
func TestFrameEndColumnMismatchSkipsValidation(t *testing.T) {
	sink := &captureSink{}
	d := newTestDecoder(sink)

	ws := []uint16{
		0x8000, // ts symbol
		0x0008, // aps frame start: global shutter, reset read
		0x000B, // reset-column start
		0x000D, // column end (only 1 of 240 reset columns seen)
		0x000C, // signal-column start
		0x000D, // column end (only 1 of 240 signal columns seen)
		0x000A, // frame end
	}
	d.Decode(words(ws...))
	d.forceCommitAll = true
	d.commitCheck()

	var found *event.FrameEvent
	for _, c := range sink.containers {
		if c.Frame != nil && c.Frame.Position > 0 {
			found = &c.Frame.Frames[0]
		}
	}
	if found == nil {
		t.Fatal("expected the mismatched frame to still advance position")
	}
	if found.Valid {
		t.Fatal("expected a column-count mismatch to skip validation, not silently succeed")
	}
}

// Two consecutive 15-bit timestamp symbols, the exact words 0xE001 then
// 0x8000. Both words have bit 15 set, so the decoder's sole timestamp/code
// discriminator (bit 15 high means timestamp symbol, checked before any
// code extraction) classifies both as ordinary timestamp symbols rather
// than routing 0xE001 through the code-7 wrap path — only words with bit
// 15 clear (0x7000-0x7FFF) reach code 7. current_ts drops from 0x6001 to
// 0, which must log a monotonicity violation but not stop decoding.
func TestTimestampSymbolsE001Then8000LogMonotonicityViolation(t *testing.T) {
	sink := &captureSink{}
	d := newTestDecoder(sink)
	var logBuf bytes.Buffer
	d.logger = log.New(&logBuf, "", 0)

	d.Decode(words(0xE001, 0x8000))

	if d.lastTS != 0x6001 {
		t.Fatalf("last_ts = %#x, want 0x6001", d.lastTS)
	}
	if d.currentTS != 0 {
		t.Fatalf("current_ts = %#x, want 0", d.currentTS)
	}
	if !strings.Contains(logBuf.String(), "non-monotonic timestamp") {
		t.Fatalf("expected a monotonicity violation to be logged, got log %q", logBuf.String())
	}
}

// The real wrap word is code 7 with bit 15 clear: 0x7001 (code=7, data=1)
// advances wrap_add by 0x8000. A following timestamp symbol of value 0
// then reads back as current_ts = wrap_add = 0x8000, with no monotonicity
// violation.
func TestWrapAdvancesTimestampBase(t *testing.T) {
	sink := &captureSink{}
	d := newTestDecoder(sink)
	var logBuf bytes.Buffer
	d.logger = log.New(&logBuf, "", 0)

	d.Decode(words(0x7001, 0x8000))

	if d.currentTS != 0x8000 {
		t.Fatalf("current_ts = %#x, want 0x8000", d.currentTS)
	}
	if strings.Contains(logBuf.String(), "non-monotonic timestamp") {
		t.Fatalf("expected no monotonicity violation, got log %q", logBuf.String())
	}
}

// An IMU start, scale config (accel_idx=0, gyro_idx=0), 14 misc-8 bytes,
// then IMU end produces exactly one validated IMU6 event.
func TestCompleteIMUSampleProducesIMU6Event(t *testing.T) {
	sink := &captureSink{}
	d := newTestDecoder(sink)

	ws := []uint16{0x8000, 0x0005} // timestamp symbol, imu start
	ws = append(ws, 0x0010)        // imu scale config: accel_idx=0 gyro_idx=0 -> data=16
	raw := []uint8{
		0x10, 0x00, // accelX = 0x1000
		0x02, 0x00, // accelY = 0x0200
		0x00, 0x10, // accelZ = 0x0010
		0x01, 0x2c, // temperature
		0x00, 0x05, // gyroX
		0x00, 0x06, // gyroY
		0x00, 0x07, // gyroZ
	}
	for _, b := range raw {
		ws = append(ws, uint16(0x5000|uint16(b)))
	}
	ws = append(ws, 0x0007) // imu end

	d.Decode(words(ws...))
	d.forceCommitAll = true
	d.commitCheck()

	var found *event.IMU6Event
	for _, c := range sink.containers {
		if c.IMU6 != nil && c.IMU6.Position > 0 {
			found = &c.IMU6.IMU6[0]
		}
	}
	if found == nil {
		t.Fatal("expected a validated imu6 event")
	}
	if !found.Valid {
		t.Fatal("expected imu6 event to be marked valid")
	}

	// accel_idx=0, gyro_idx=0 select the default full-scale: accel/16384,
	// gyro/131.072. Temperature is signed_u16/340 + 36.53.
	const accelScale, gyroScale = 16384, 131.072
	wantAccelX := float32(int16(0x1000)) / accelScale
	wantAccelY := float32(int16(0x0200)) / accelScale
	wantAccelZ := float32(int16(0x0010)) / accelScale
	wantTemp := float32(int16(0x012c))/340.0 + 36.53
	wantGyroX := float32(int16(0x0005)) / gyroScale
	wantGyroY := float32(int16(0x0006)) / gyroScale
	wantGyroZ := float32(int16(0x0007)) / gyroScale

	if found.AccelX != wantAccelX || found.AccelY != wantAccelY || found.AccelZ != wantAccelZ {
		t.Fatalf("unexpected accel: got (%v,%v,%v) want (%v,%v,%v)",
			found.AccelX, found.AccelY, found.AccelZ, wantAccelX, wantAccelY, wantAccelZ)
	}
	if found.Temperature != wantTemp {
		t.Fatalf("unexpected temperature: got %v want %v", found.Temperature, wantTemp)
	}
	if found.GyroX != wantGyroX || found.GyroY != wantGyroY || found.GyroZ != wantGyroZ {
		t.Fatalf("unexpected gyro: got (%v,%v,%v) want (%v,%v,%v)",
			found.GyroX, found.GyroY, found.GyroZ, wantGyroX, wantGyroY, wantGyroZ)
	}
}

// An incomplete IMU sample (fewer than 14 misc-8 bytes before IMU end)
// must not be validated.
func TestIncompleteIMUSampleDiscarded(t *testing.T) {
	sink := &captureSink{}
	d := newTestDecoder(sink)

	ws := []uint16{0x0005, 0x0010, 0x5000 | 0x12, 0x5000 | 0x34, 0x0007}
	d.Decode(words(ws...))
	d.forceCommitAll = true
	d.commitCheck()

	for _, c := range sink.containers {
		if c.IMU6 != nil && c.IMU6.Position > 0 {
			t.Fatal("expected no validated imu6 event from an incomplete sample")
		}
	}
}

// Arbitrary byte input, including malformed codes and an odd trailing
// byte, must never panic.
func TestDecodeNeverPanicsOnArbitraryInput(t *testing.T) {
	sink := &captureSink{}
	d := newTestDecoder(sink)
	inputs := [][]byte{
		nil,
		{0x01},
		{0xFF, 0xFF, 0xFF},
		words(0x6000, 0x6FFF, 0x4000, 0x4FFF, 0x0000, 0x000F, 0x0010, 0x001F),
	}
	for _, in := range inputs {
		d.Decode(in)
	}
}

// A timestamp reset must force-commit every stream: the special stream's
// reset marker spins on a full ring rather than being dropped, and every
// other stream (here, 3 primed polarity events) commits alongside it in
// the same force-commit cycle.
func TestTimestampResetForceCommitsSpecialStreamAndPolarityEvents(t *testing.T) {
	sink := &specialStallSink{stallSpecialFor: 2}
	d := newTestDecoder(sink)

	// Prime 3 polarity events before the reset.
	d.Decode(words(0x8001, 0x1000, 0x3000, 0x1001, 0x3001, 0x1002, 0x3002))
	// ts symbol, special sub-event 1 = reset
	d.Decode(words(0x8005, 0x0001))

	if sink.specialPutAttempts <= sink.stallSpecialFor {
		t.Fatalf("expected the special stream's force-commit to retry until accepted, got %d attempts", sink.specialPutAttempts)
	}

	var gotPolarity *event.Packet
	var gotSpecial bool
	for _, c := range sink.containers {
		if c.Polarity != nil && c.Polarity.Position == 3 {
			gotPolarity = c.Polarity
		}
		if c.Special != nil {
			gotSpecial = true
		}
	}
	if gotPolarity == nil {
		t.Fatal("expected the 3 primed polarity events to commit alongside the forced reset")
	}
	if !gotSpecial {
		t.Fatal("expected the timestamp-reset special event to commit")
	}
}

// specialStallSink rejects the special stream's first stallSpecialFor Put
// attempts (simulating a full ring) while accepting every other stream's
// commit immediately, so a force-commit's spin-retry can be exercised
// without also stalling the streams that must not block.
type specialStallSink struct {
	containers         []*event.Container
	specialPutAttempts int
	stallSpecialFor    int
}

func (s *specialStallSink) Put(c *event.Container) bool {
	if c.Special != nil {
		s.specialPutAttempts++
		if s.specialPutAttempts <= s.stallSpecialFor {
			return false
		}
	}
	s.containers = append(s.containers, c)
	return true
}

// Monotonicity violations must be logged but must not stop decoding.
func TestNonMonotonicTimestampLogsAndContinues(t *testing.T) {
	sink := &captureSink{}
	d := newTestDecoder(sink)
	var logBuf bytes.Buffer
	d.logger = log.New(&logBuf, "", 0)

	d.Decode(words(0x8100, 0x8005)) // ts=256 then ts=5: goes backwards
	d.forceCommitAll = true
	d.commitCheck()

	if !strings.Contains(logBuf.String(), "non-monotonic timestamp") {
		t.Fatalf("expected a monotonicity violation to be logged, got log %q", logBuf.String())
	}
	// the backwards timestamp is accepted, not rejected
	if d.currentTS != 5 {
		t.Fatalf("current_ts = %d, want 5", d.currentTS)
	}
}
