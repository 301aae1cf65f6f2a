// Package radio abstracts the point-to-point LoRa link between tracker and
// receiver. The physical layer is out of scope: Params is a fixed set of
// channel parameters handed to Begin, and implementations only have to
// honor the asynchronous transmit/receive contract of Channel.
package radio

import "fmt"

// Code is a radio driver status code, numbered like the transceiver
// library the firmware uses: zero is success, failures are negative.
type Code int

const (
	ErrNone          Code = 0
	ErrUnknown       Code = -1
	ErrChipNotFound  Code = -2
	ErrPacketTooLong Code = -4
	ErrTxTimeout     Code = -5
	ErrRxTimeout     Code = -6
	ErrCRCMismatch   Code = -7
	ErrInvalidFreq   Code = -12
	ErrBusy          Code = -16
)

func (c Code) String() string {
	switch c {
	case ErrNone:
		return "ok"
	case ErrChipNotFound:
		return "chip not found"
	case ErrPacketTooLong:
		return "packet too long"
	case ErrTxTimeout:
		return "tx timeout"
	case ErrRxTimeout:
		return "rx timeout"
	case ErrCRCMismatch:
		return "crc mismatch"
	case ErrInvalidFreq:
		return "invalid frequency"
	case ErrBusy:
		return "busy"
	}
	return fmt.Sprintf("error %d", int(c))
}

// Params are the fixed channel parameters. Both ends of the link must use
// identical values.
type Params struct {
	FreqMHz         float64
	BandwidthKHz    float64
	SpreadingFactor int
	CodingRate      int
	SyncWord        byte
	PowerDBm        int
	PreambleLen     int
}

// DefaultParams returns the flight configuration of the 434 MHz link.
func DefaultParams() Params {
	return Params{
		FreqMHz:         434.0,
		BandwidthKHz:    62.5,
		SpreadingFactor: 9,
		CodingRate:      8,
		SyncWord:        0x12,
		PowerDBm:        10,
		PreambleLen:     8,
	}
}

// Channel is one end of the radio link.
//
// Transmit and StartReceive are asynchronous: completion or arrival is
// signalled through the callback registered with OnDone, which runs in
// interrupt context (another goroutine, or the transmitting call itself
// for in-process channels) and must only set flags. After an arrival the
// consumer reads the payload with PacketLength and ReadData, then re-arms
// with StartReceive.
type Channel interface {
	Begin(Params) Code
	OnDone(func())

	Transmit([]byte) Code
	FinishTransmit() Code

	StartReceive() Code
	PacketLength() int
	ReadData([]byte) Code

	// RSSI of the most recently received packet, in dBm. Link-quality
	// metadata, read at decode time, never transmitted over the air.
	RSSI() float32
}
