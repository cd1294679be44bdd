package decoder

import (
	"encoding/binary"
	"math"

	"daviscore/internal/event"
)

// Decode consumes a raw byte buffer delivered by the transport. A
// trailing odd byte is truncated and logged; every complete 16-bit
// little-endian word is dispatched and, after each word, the commit
// policy is checked for all four streams.
func (d *Decoder) Decode(buf []byte) {
	if len(buf)%2 != 0 {
		d.logf("ALERT: truncating trailing odd byte (buffer length %d)", len(buf))
		buf = buf[:len(buf)-1]
	}
	for i := 0; i+2 <= len(buf); i += 2 {
		word := binary.LittleEndian.Uint16(buf[i : i+2])
		d.decodeWord(word)
		d.commitCheck()
	}
}

func (d *Decoder) decodeWord(word uint16) {
	if word&0x8000 != 0 {
		d.timestampSymbol(word)
		return
	}
	code := int((word >> 12) & 0x7)
	data := int(word & 0x0FFF)
	d.handleCode(code, data)
}

func (d *Decoder) timestampSymbol(raw uint16) {
	v := uint32(raw & 0x7FFF)
	d.lastTS = d.currentTS
	d.currentTS = int32(d.wrapAdd + v)
	d.checkMonotonic()
}

func (d *Decoder) checkMonotonic() {
	if d.currentTS < d.lastTS {
		d.logf("ALERT: non-monotonic timestamp %d < %d", d.currentTS, d.lastTS)
	}
}

func (d *Decoder) handleCode(code, data int) {
	switch code {
	case 0:
		d.specialSubEvent(data)
	case 1:
		d.dvsYAddress(data)
	case 2:
		d.dvsXAddress(data, event.PolarityOff)
	case 3:
		d.dvsXAddress(data, event.PolarityOn)
	case 4:
		d.apsADCSample(data)
	case 5:
		d.misc8(data)
	case 7:
		d.wrap(data)
	default:
		d.logf("ERROR: unknown code %d (data %d), dropping", code, data)
	}
}

func (d *Decoder) wrap(data int) {
	d.wrapAdd += 0x8000 * uint32(data)
	d.lastTS = d.currentTS
	d.currentTS = int32(d.wrapAdd)
	d.checkMonotonic()
}

// --- Special sub-events (code 0) ---

func (d *Decoder) specialSubEvent(data int) {
	switch {
	case data == 0:
		d.logf("ERROR: reserved special sub-event 0, dropping")
	case data == 1:
		d.timestampReset()
	case data == 2:
		d.emitSpecial(event.SpecialExternalInputFalling)
	case data == 3:
		d.emitSpecial(event.SpecialExternalInputRising)
	case data == 4:
		d.emitSpecial(event.SpecialExternalInputPulse)
	case data == 5:
		d.imuStart()
	case data == 7:
		d.imuEnd()
	case data == 8:
		d.apsFrameStart(true, true)
	case data == 9:
		d.apsFrameStart(false, true)
	case data == 10:
		d.apsFrameEnd()
	case data == 11:
		d.apsResetColumnStart()
	case data == 12:
		d.apsSignalColumnStart()
	case data == 13:
		d.apsColumnEnd()
	case data == 14:
		d.apsFrameStart(true, false)
		d.frame.CurrentFrame().TSStartOfExposure = d.currentTS
	case data == 15:
		d.apsFrameStart(false, false)
		d.frame.CurrentFrame().TSStartOfExposure = d.currentTS
	case data >= 16 && data <= 31:
		d.imuScaleConfig(data)
	default:
		d.logf("ERROR: unknown special sub-event %d, dropping", data)
	}
}

func (d *Decoder) timestampReset() {
	d.wrapAdd = 0
	d.currentTS = 0
	d.lastTS = 0
	d.dvsTS = 0
	d.special.ValidateSpecial(event.SpecialEvent{TSUs: math.MaxUint32, Type: event.SpecialTimestampReset})
	d.forceCommitAll = true
}

func (d *Decoder) emitSpecial(t event.SpecialType) {
	d.special.ValidateSpecial(event.SpecialEvent{TSUs: uint32(d.currentTS), Type: t})
}

// --- DVS (codes 1,2,3) ---

func (d *Decoder) dvsYAddress(data int) {
	if data >= d.DVSHeight {
		d.logf("ALERT: dvs row address %d out of range (height %d), dropping", data, d.DVSHeight)
		return
	}
	if d.dvsGotY {
		d.special.ValidateSpecial(event.SpecialEvent{
			TSUs: uint32(d.dvsTS),
			Type: event.SpecialDVSRowOnly,
			Data: uint32(d.dvsLastY),
		})
	}
	d.dvsLastY = uint16(data)
	d.dvsGotY = true
	d.dvsTS = d.currentTS
}

func (d *Decoder) dvsXAddress(data int, pol event.Polarity) {
	if data >= d.DVSWidth {
		d.logf("ALERT: dvs column address %d out of range (width %d), dropping", data, d.DVSWidth)
		return
	}
	if d.ChipID == ChipDAVIS208 && data < 192 {
		pol = !pol
	}
	x := uint16(data)
	y := d.dvsLastY
	if d.DVSInvertXY {
		x, y = y, x
	}
	d.polarity.ValidatePolarity(event.PolarityEvent{TSUs: d.dvsTS, X: x, Y: y, Polarity: pol})
	d.dvsGotY = false
}

// --- APS (code 4, plus frame/column sub-events of code 0) ---

func (d *Decoder) apsFrameStart(globalShutter, resetRead bool) {
	d.apsIgnoreEvents = false
	d.globalShutter = globalShutter
	d.resetRead = resetRead
	d.currentReadout = readoutReset
	d.countX = [2]int{0, 0}
	d.countY = [2]int{0, 0}

	f := d.frame.CurrentFrame()
	pixels := f.Pixels
	*f = event.FrameEvent{Pixels: pixels}
	f.TSStartOfFrame = d.currentTS
	f.Width = d.APSWidth
	f.Height = d.APSHeight
	f.Channels = d.Channels
}

func (d *Decoder) apsFrameEnd() {
	if d.apsIgnoreEvents {
		return
	}
	f := d.frame.CurrentFrame()
	f.TSEndOfFrame = d.currentTS

	wantReset := 0
	if d.resetRead {
		wantReset = f.Width
	}
	ok := true
	if d.countX[readoutReset] != wantReset {
		d.logf("ERROR: frame reset-phase column count %d != expected %d", d.countX[readoutReset], wantReset)
		ok = false
	}
	if d.countX[readoutSignal] != f.Width {
		d.logf("ERROR: frame signal-phase column count %d != expected %d", d.countX[readoutSignal], f.Width)
		ok = false
	}
	if ok {
		d.frame.ValidateFrame()
	} else {
		d.frame.SkipFrame()
	}
}

func (d *Decoder) apsResetColumnStart() {
	d.currentReadout = readoutReset
	d.countY[readoutReset] = 0
	d.rgbOffset = 1
	d.rgbIncreasing = true
	if !d.globalShutter && d.countX[readoutReset] == 0 {
		d.frame.CurrentFrame().TSStartOfExposure = d.currentTS
	}
}

func (d *Decoder) apsSignalColumnStart() {
	d.currentReadout = readoutSignal
	d.countY[readoutSignal] = 0
	d.rgbOffset = 1
	d.rgbIncreasing = true
	if d.countX[readoutSignal] == 0 {
		d.frame.CurrentFrame().TSEndOfExposure = d.currentTS
	}
}

func (d *Decoder) apsColumnEnd() {
	f := d.frame.CurrentFrame()
	if d.countY[d.currentReadout] != f.Height {
		d.logf("ERROR: column y-count %d != frame height %d", d.countY[d.currentReadout], f.Height)
	}
	d.countX[d.currentReadout]++
	if d.globalShutter && d.currentReadout == readoutReset && d.countX[readoutReset] == f.Width {
		f.TSStartOfExposure = d.currentTS
	}
}

func (d *Decoder) apsADCSample(data int) {
	if d.apsIgnoreEvents {
		return
	}
	f := d.frame.CurrentFrame()
	phase := d.currentReadout
	if d.countY[phase] >= f.Height {
		return
	}

	x := d.countX[phase]
	if d.APSFlipX {
		x = f.Width - 1 - x
	}
	y := d.countY[phase]
	if d.APSFlipY {
		y = f.Height - 1 - y
	}
	if d.ChipID == ChipDAVISRGB {
		y += d.rgbOffset
	}
	if d.APSInvertXY {
		x, y = y, x
	}

	abs := (y+d.APSWindowY0)*d.APSWidth + (x + d.APSWindowX0)
	pos := y*f.Width + x
	if abs < 0 || abs >= len(d.resetScratch) || pos < 0 || pos >= len(f.Pixels) {
		d.logf("ERROR: aps sample address out of range (x=%d y=%d)", x, y)
		d.countY[phase]++
		return
	}

	storeInScratch := phase == readoutReset
	if d.ChipID == ChipDAVISRGB && d.globalShutter {
		storeInScratch = phase == readoutSignal
	}

	if storeInScratch {
		d.resetScratch[abs] = uint16(data)
	} else {
		var diff int
		if d.ChipID == ChipDAVISRGB && d.globalShutter {
			diff = data - int(d.resetScratch[abs])
		} else {
			diff = int(d.resetScratch[abs]) - data
		}
		if diff < 0 {
			diff = 0
		}
		f.Pixels[pos] = uint16(diff) << (16 - adcDepth)
	}

	d.countY[phase]++
	if d.ChipID == ChipDAVISRGB {
		d.advanceRGBOffset()
	}
}

// advanceRGBOffset steps the sub-pixel offset used by DAVISRGB's Bayer
// interleave: it climbs by 2 per sample until it reaches 321, then
// descends by 3 per sample.
func (d *Decoder) advanceRGBOffset() {
	if d.rgbIncreasing {
		d.rgbOffset += 2
		if d.rgbOffset >= 321 {
			d.rgbIncreasing = false
			d.rgbOffset -= 3
		}
	} else {
		d.rgbOffset -= 3
	}
}

// --- IMU (special sub-events 5/7/16..31, code 5 bytes) ---

func (d *Decoder) imuStart() {
	d.imuIgnoreEvents = false
	d.imuCount = 0
	d.imuEvent = event.IMU6Event{TSUs: d.currentTS}
}

func (d *Decoder) imuEnd() {
	if d.imuIgnoreEvents {
		return
	}
	if d.imuCount == 14 {
		d.imu6.ValidateIMU6(d.imuEvent)
	} else {
		d.logf("INFO: discarding incomplete imu sample (count=%d)", d.imuCount)
	}
}

func (d *Decoder) imuScaleConfig(data int) {
	gyroIdx := data & 0x3
	accelIdx := (data >> 2) & 0x3
	d.accelScale = 65536.0 / (4.0 * float32(int(1)<<uint(accelIdx)))
	d.gyroScale = 65536.0 / (500.0 * float32(int(1)<<uint(gyroIdx)))
	if d.imuCount != 0 {
		d.logf("ALERT: imu scale config arrived with missed start (count=%d)", d.imuCount)
	}
	d.imuCount = 1
}

func (d *Decoder) misc8(data int) {
	subCode := (data >> 8) & 0xF
	if subCode != 0 {
		d.logf("ERROR: unknown misc8 sub-code %d, dropping", subCode)
		return
	}
	d.imuMisc8(uint8(data & 0xFF))
}

func (d *Decoder) imuMisc8(b uint8) {
	count := d.imuCount
	if count == 0 {
		d.logf("ALERT: imu byte with no scale config received, assuming count=1")
		count = 1
	}
	switch count {
	case 1, 3, 5, 7, 9, 11, 13:
		d.imuTmpU8 = b
	case 2:
		d.imuEvent.AccelX = float32(signedU16(d.imuTmpU8, b)) / d.accelScale
	case 4:
		d.imuEvent.AccelY = float32(signedU16(d.imuTmpU8, b)) / d.accelScale
	case 6:
		d.imuEvent.AccelZ = float32(signedU16(d.imuTmpU8, b)) / d.accelScale
	case 8:
		d.imuEvent.Temperature = float32(signedU16(d.imuTmpU8, b))/340.0 + 36.53
	case 10:
		d.imuEvent.GyroX = float32(signedU16(d.imuTmpU8, b)) / d.gyroScale
	case 12:
		d.imuEvent.GyroY = float32(signedU16(d.imuTmpU8, b)) / d.gyroScale
	case 14:
		d.imuEvent.GyroZ = float32(signedU16(d.imuTmpU8, b)) / d.gyroScale
	default:
		d.logf("ERROR: imu byte arrived in unexpected state %d, dropping", count)
	}
	if count < 14 {
		d.imuCount = count + 1
	} else {
		d.imuCount = 14
	}
}
