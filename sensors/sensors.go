// Package sensors encodes the tracker's slow sensor readings into their
// packet field representations: RTD temperature with fault sentinels and
// the battery ADC level.
package sensors

import "github.com/chewxy/math32"

// MAX31865 fault status bits, as reported by the RTD front-end.
const (
	FaultHighThresh uint8 = 0x80 // RTD above the high fault threshold
	FaultLowThresh  uint8 = 0x40 // RTD below the low fault threshold
	FaultRefInLow   uint8 = 0x20 // REFIN- > 0.85 * Vbias
	FaultRefInHigh  uint8 = 0x10 // REFIN- < 0.85 * Vbias, FORCE- open
	FaultRTDInLow   uint8 = 0x08 // RTDIN- < 0.85 * Vbias, FORCE- open
	FaultOvUv       uint8 = 0x04 // over/under voltage
)

// Temperature field sentinels, one per fault bit. They sit inside the
// encoding's numeric range but decode to implausible magnitudes (1, 1.5
// and 2 degC exactly), and consumers treat them as "measurement invalid",
// never as readings.
const (
	SentinelHighThresh int16 = 320
	SentinelLowThresh  int16 = -320
	SentinelRefInLow   int16 = 480
	SentinelRefInHigh  int16 = -480
	SentinelRTDInLow   int16 = 640
	SentinelOvUv       int16 = -640
)

// Temperature is the RTD collaborator: a single read returning degrees
// Celsius and the raw fault bitmask (0 when the conversion is valid).
type Temperature interface {
	ReadTemperature() (degC float32, fault uint8)
}

// Battery is the battery monitor collaborator returning the raw 12-bit
// ADC reading (0-4096).
type Battery interface {
	ReadBattery() uint16
}

// FormatTemperature encodes a temperature reading for the packet: degC
// times 320, rounded. Any fault bit forces the matching sentinel,
// independent of the analog value that came with it.
func FormatTemperature(degC float32, fault uint8) int16 {
	switch {
	case fault&FaultHighThresh != 0:
		return SentinelHighThresh
	case fault&FaultLowThresh != 0:
		return SentinelLowThresh
	case fault&FaultRefInLow != 0:
		return SentinelRefInLow
	case fault&FaultRefInHigh != 0:
		return SentinelRefInHigh
	case fault&FaultRTDInLow != 0:
		return SentinelRTDInLow
	case fault&FaultOvUv != 0:
		return SentinelOvUv
	}
	return int16(math32.Round(degC * 320))
}

// IsSentinel reports whether an encoded temperature is one of the fault
// sentinels.
func IsSentinel(temp int16) bool {
	switch temp {
	case SentinelHighThresh, SentinelLowThresh,
		SentinelRefInLow, SentinelRefInHigh,
		SentinelRTDInLow, SentinelOvUv:
		return true
	}
	return false
}

// FormatBattery maps the raw 12-bit ADC reading linearly onto 0-255.
func FormatBattery(raw uint16) uint8 {
	if raw > 4096 {
		raw = 4096
	}
	return uint8(uint32(raw) * 255 / 4096)
}
