// Package humidity measures relative humidity with a two-capacitor
// relaxation-oscillator bridge: one frequency sample against a known
// reference capacitor, one against the sensing capacitor, and a
// temperature-compensated conversion of their ratio.
package humidity

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Mika-1818/ReSonde/freqcap"
)

// CalibrationState selects which capacitor dominates the oscillator.
type CalibrationState uint8

const (
	// Reference selects the known calibration capacitor. It is the
	// relay's rest position.
	Reference CalibrationState = iota
	// Sensing selects the humidity-dependent sensor capacitor.
	Sensing
)

// Relay drives the bridge calibration relay.
type Relay interface {
	Set(CalibrationState)
}

// State is the bridge measurement phase, for observation in tests and logs.
type State uint8

const (
	StateIdle State = iota
	StateCalibrating
	StateSensing
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCalibrating:
		return "calibrating"
	case StateSensing:
		return "sensing"
	case StateDone:
		return "done"
	}
	return "unknown"
}

// to allow testing without real stabilization delays
var sleep = time.Sleep

// Bridge sequences one humidity measurement: reference frequency, sensing
// frequency, conversion. It owns the capture engine's enable window so the
// capture interrupt only runs while a measurement is in progress.
type Bridge struct {
	engine      *freqcap.Engine
	relay       Relay
	settle      time.Duration // relay/oscillator stabilization delay
	readTimeout time.Duration
	consts      Constants

	state  State
	prevRH float32 // last good reading in percent, for temperature compensation
}

// NewBridge returns a bridge over the given capture engine and relay.
// settle is applied after each relay change before reading frequency.
func NewBridge(engine *freqcap.Engine, relay Relay, settle, readTimeout time.Duration, consts Constants) *Bridge {
	return &Bridge{
		engine:      engine,
		relay:       relay,
		settle:      settle,
		readTimeout: readTimeout,
		consts:      consts,
	}
}

// State returns the current measurement phase.
func (b *Bridge) State() State { return b.state }

// Measure runs one full measurement cycle synchronously and returns the
// encoded humidity byte, or Invalid if either frequency read times out.
// tempC is the compensation temperature from the RTD. On any outcome the
// engine ends up disabled and the relay back in its Reference rest
// position.
func (b *Bridge) Measure(tempC float32) uint8 {
	b.state = StateCalibrating
	b.engine.Enable()
	b.relay.Set(Reference)
	sleep(b.settle)
	fRef, err := b.engine.Read(b.readTimeout)
	if err != nil {
		log.WithField("err", err).Warn("humidity: reference measurement failed")
		return b.abort()
	}

	b.state = StateSensing
	b.relay.Set(Sensing)
	// restart the batch so the sensing average cannot include intervals
	// captured before the relay switched
	b.engine.Enable()
	sleep(b.settle)
	fRH, err := b.engine.Read(b.readTimeout)
	if err != nil {
		log.WithField("err", err).Warn("humidity: sensing measurement failed")
		return b.abort()
	}

	b.state = StateDone
	b.engine.Disable()
	b.relay.Set(Reference)

	rh := b.consts.Convert(float32(fRef), float32(fRH), tempC, b.prevRH)
	if rh != Invalid {
		b.prevRH = float32(rh) / 2
	}
	b.state = StateIdle
	return rh
}

// abort disables the engine and restores the relay rest position, so a
// failed cycle cannot leave the bridge physically inconsistent.
func (b *Bridge) abort() uint8 {
	b.state = StateDone
	b.engine.Disable()
	b.relay.Set(Reference)
	b.state = StateIdle
	return Invalid
}
