// Package telemetry defines the fixed binary record exchanged between the
// tracker and receiver firmware. The layout is the one true compatibility
// surface of the radio link: field order, widths and scale factors must
// match byte-for-byte on both ends.
package telemetry

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// Packet is the telemetry record, in wire order. All multi-byte fields are
// little-endian and there is no padding between fields.
type Packet struct {
	SN      uint16 // tracker serial number
	Counter uint16 // sequence counter, incremented once per fix
	Time    uint32 // unix epoch seconds
	Lat     int32  // degrees * 1e7
	Lon     int32  // degrees * 1e7
	Alt     int32  // mm above mean sea level
	VSpeed  int16  // cm/s, positive up
	ESpeed  int16  // cm/s
	NSpeed  int16  // cm/s
	Sats    uint8  // satellites in view
	Temp    int16  // degC * 320, or an RTD fault sentinel
	RH      uint8  // %RH * 2 (0-200), RHInvalid when measurement failed
	Battery uint8  // raw ADC 0-4096 mapped onto 0-255
}

// Size is the exact encoded size of a Packet in bytes.
const Size = 31

// RHInvalid is the reserved humidity value meaning "measurement failed",
// distinct from an encoded 0 %RH.
const RHInvalid = 255

// ErrBadLength is returned when decoding a buffer whose length does not
// equal Size.
var ErrBadLength = errors.New("telemetry: buffer length does not match packet size")

// MarshalBinary encodes the packet into its fixed wire layout.
func (p *Packet) MarshalBinary() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, Size))
	if err := binary.Write(buf, binary.LittleEndian, p); err != nil {
		return nil, errors.Wrap(err, "unable to encode telemetry packet")
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a buffer of exactly Size bytes into the packet.
// A buffer of any other length is rejected, never truncated or zero-padded.
func (p *Packet) UnmarshalBinary(data []byte) error {
	if len(data) != Size {
		return errors.Wrapf(ErrBadLength, "got %d bytes, want %d", len(data), Size)
	}
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, p); err != nil {
		return errors.Wrap(err, "unable to decode telemetry packet")
	}
	return nil
}

// Latitude returns the position latitude in degrees.
func (p *Packet) Latitude() float64 { return float64(p.Lat) * 1e-7 }

// Longitude returns the position longitude in degrees.
func (p *Packet) Longitude() float64 { return float64(p.Lon) * 1e-7 }

// AltitudeMeters returns the altitude above mean sea level in meters.
func (p *Packet) AltitudeMeters() float64 { return float64(p.Alt) * 1e-3 }

// Temperature returns the air temperature in degC. Fault sentinels decode
// to their sentinel magnitudes (e.g. 320 -> 1.0) and must be screened with
// the sensors package before physical use.
func (p *Packet) Temperature() float32 { return float32(p.Temp) / 320.0 }

// Humidity returns the relative humidity in percent, or NaN when the
// measurement failed.
func (p *Packet) Humidity() float32 {
	if p.RH == RHInvalid {
		return float32(math.NaN())
	}
	return float32(p.RH) * 0.5
}

// BatteryVolts returns the battery voltage assuming the firmware's 3.3 V
// ADC reference.
func (p *Packet) BatteryVolts() float32 { return float32(p.Battery) * 3.3 / 255.0 }

// TimeOfDay renders the packet time as HH:MM:SS UTC.
func (p *Packet) TimeOfDay() string {
	day := p.Time % 86400
	return fmt.Sprintf("%02d:%02d:%02d", day/3600, (day%3600)/60, day%60)
}
