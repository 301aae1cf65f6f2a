package telemetry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketSize(t *testing.T) {
	p := Packet{}
	data, err := p.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, Size, len(data))
}

func TestRoundTrip(t *testing.T) {
	p := Packet{
		SN:      12345,
		Counter: 42,
		Time:    1700000000,
		Lat:     525200000,
		Lon:     134050000,
		Alt:     15000,
		VSpeed:  150,
		ESpeed:  -23,
		NSpeed:  310,
		Sats:    9,
		Temp:    6816,
		RH:      49,
		Battery: 201,
	}
	data, err := p.MarshalBinary()
	require.NoError(t, err)

	decoded := Packet{}
	require.NoError(t, decoded.UnmarshalBinary(data))
	assert.Equal(t, p, decoded)
}

func TestRoundTripExtremes(t *testing.T) {
	for _, p := range []Packet{
		{},
		{
			SN:      math.MaxUint16,
			Counter: math.MaxUint16,
			Time:    math.MaxUint32,
			Lat:     math.MaxInt32,
			Lon:     math.MaxInt32,
			Alt:     math.MaxInt32,
			VSpeed:  math.MaxInt16,
			ESpeed:  math.MaxInt16,
			NSpeed:  math.MaxInt16,
			Sats:    math.MaxUint8,
			Temp:    math.MaxInt16,
			RH:      200,
			Battery: math.MaxUint8,
		},
		{
			Lat:    math.MinInt32,
			Lon:    math.MinInt32,
			Alt:    math.MinInt32,
			VSpeed: math.MinInt16,
			ESpeed: math.MinInt16,
			NSpeed: math.MinInt16,
			Temp:   math.MinInt16,
			RH:     RHInvalid,
		},
		{Lat: -349337500, Lon: -581655000, VSpeed: -412, Temp: -640},
	} {
		data, err := p.MarshalBinary()
		require.NoError(t, err)
		decoded := Packet{}
		require.NoError(t, decoded.UnmarshalBinary(data))
		assert.Equal(t, p, decoded)
	}
}

func TestWireLayout(t *testing.T) {
	p := Packet{
		SN:      0x3039, // 12345
		Counter: 0x0102,
		Time:    0x0a0b0c0d,
		Lat:     1,
		Lon:     -1,
		Sats:    7,
		Temp:    -320,
		RH:      255,
		Battery: 0x55,
	}
	data, err := p.MarshalBinary()
	require.NoError(t, err)

	// little-endian, packed, field order as transmitted
	assert.Equal(t, []byte{0x39, 0x30}, data[0:2], "SN")
	assert.Equal(t, []byte{0x02, 0x01}, data[2:4], "counter")
	assert.Equal(t, []byte{0x0d, 0x0c, 0x0b, 0x0a}, data[4:8], "time")
	assert.Equal(t, []byte{0x01, 0x00, 0x00, 0x00}, data[8:12], "lat")
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xff}, data[12:16], "lon")
	assert.Equal(t, byte(7), data[26], "sats")
	assert.Equal(t, []byte{0xc0, 0xfe}, data[27:29], "temp")
	assert.Equal(t, byte(0xff), data[29], "rh")
	assert.Equal(t, byte(0x55), data[30], "battery")
}

func TestUnmarshalRejectsBadLength(t *testing.T) {
	p := Packet{}
	assert.ErrorIs(t, p.UnmarshalBinary(make([]byte, Size-1)), ErrBadLength)
	assert.ErrorIs(t, p.UnmarshalBinary(make([]byte, Size+1)), ErrBadLength)
	assert.ErrorIs(t, p.UnmarshalBinary(nil), ErrBadLength)
}

func TestPhysicalAccessors(t *testing.T) {
	p := Packet{
		Lat:     525200000,
		Lon:     134050000,
		Alt:     15000,
		Time:    1700000000, // 22:13:20 UTC
		Temp:    6816,
		RH:      99,
		Battery: 255,
	}
	assert.InDelta(t, 52.52, p.Latitude(), 1e-9)
	assert.InDelta(t, 13.405, p.Longitude(), 1e-9)
	assert.InDelta(t, 15.0, p.AltitudeMeters(), 1e-9)
	assert.InDelta(t, 21.3, p.Temperature(), 1e-3)
	assert.InDelta(t, 49.5, p.Humidity(), 1e-6)
	assert.InDelta(t, 3.3, p.BatteryVolts(), 1e-6)
	assert.Equal(t, "22:13:20", p.TimeOfDay())

	p.RH = RHInvalid
	assert.True(t, math.IsNaN(float64(p.Humidity())))
}
