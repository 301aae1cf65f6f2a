// Package tracker implements the balloon-side telemetry pipeline: one
// packet gathered, built and transmitted per position fix.
package tracker

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Mika-1818/ReSonde/radio"
	"github.com/Mika-1818/ReSonde/sensors"
	"github.com/Mika-1818/ReSonde/telemetry"
)

var (
	// ErrNavigationInit means the GNSS module failed to start. The
	// tracker cannot work without it; callers must restart, never limp on.
	ErrNavigationInit = errors.New("tracker: navigation module failed to start")
	// ErrRadioInit means the radio channel failed to start; equally fatal.
	ErrRadioInit = errors.New("tracker: radio channel failed to start")
)

// State is the pipeline phase, for observation in tests and logs.
type State uint8

const (
	WaitFix State = iota
	BuildPacket
	TxPending
	TxDone
)

func (s State) String() string {
	switch s {
	case WaitFix:
		return "wait-fix"
	case BuildPacket:
		return "build-packet"
	case TxPending:
		return "tx-pending"
	case TxDone:
		return "tx-done"
	}
	return "unknown"
}

// HumiditySource runs one synchronous humidity measurement cycle,
// compensated with the given temperature, and returns the encoded byte.
// *humidity.Bridge is the production implementation.
type HumiditySource interface {
	Measure(tempC float32) uint8
}

// Config are the pipeline's tunables.
type Config struct {
	SerialNumber uint16
	// OverwritePending selects what happens to a fix that arrives while a
	// transmission is still in flight: false drops the stale fix (the
	// default), true rebuilds the packet and transmits it as soon as the
	// in-flight one finishes. The two tracker firmware builds differ
	// here, so it is a configuration choice rather than a constant.
	OverwritePending bool
	// PollInterval is the main-loop pacing of Run. Zero means 1 ms.
	PollInterval time.Duration
}

// Pipeline drives the WAIT_FIX -> BUILD_PACKET -> TX_PENDING -> TX_DONE
// cycle. Exactly one packet is ever in flight; there is no retry of a
// failed transmission.
type Pipeline struct {
	cfg    Config
	nav    Navigation
	rtd    sensors.Temperature
	batt   sensors.Battery
	bridge HumiditySource
	ch     radio.Channel

	packet       telemetry.Packet
	state        State
	txDone       atomic.Bool // set from the radio completion interrupt
	inFlight     bool
	pendingFresh bool
}

// New assembles a pipeline; Begin must be called before Run.
func New(cfg Config, nav Navigation, rtd sensors.Temperature, batt sensors.Battery, bridge HumiditySource, ch radio.Channel) *Pipeline {
	return &Pipeline{
		cfg:    cfg,
		nav:    nav,
		rtd:    rtd,
		batt:   batt,
		bridge: bridge,
		ch:     ch,
	}
}

// Begin initializes the radio channel and registers the completion
// interrupt. A failure here is fatal for the whole tracker.
func (p *Pipeline) Begin(params radio.Params) error {
	if code := p.ch.Begin(params); code != radio.ErrNone {
		return errors.Wrapf(ErrRadioInit, "code %v", code)
	}
	p.ch.OnDone(func() { p.txDone.Store(true) })
	p.packet.SN = p.cfg.SerialNumber
	p.state = WaitFix
	return nil
}

// Run executes Step until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	poll := p.cfg.PollInterval
	if poll == 0 {
		poll = time.Millisecond
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		p.Step()
		time.Sleep(poll)
	}
}

// Step runs one main-loop iteration: service a finished transmission if
// the interrupt flagged one, then handle a new fix if one is ready.
func (p *Pipeline) Step() {
	if p.txDone.CompareAndSwap(true, false) {
		p.state = TxDone
		if code := p.ch.FinishTransmit(); code == radio.ErrNone {
			log.WithField("counter", p.packet.Counter).Debug("transmission finished")
		} else {
			log.WithField("code", code).Error("transmission failed")
		}
		p.inFlight = false
		p.state = WaitFix
		if p.pendingFresh {
			// overwrite policy: the packet rebuilt during the previous
			// transmission goes out now
			p.pendingFresh = false
			p.startTX()
			return
		}
	}

	if !p.nav.FixReady() {
		return
	}

	if p.inFlight {
		if p.cfg.OverwritePending {
			p.buildPacket()
			p.pendingFresh = true
		} else {
			log.Debug("fix dropped, transmission still pending")
		}
		return
	}

	p.buildPacket()
	p.startTX()
}

// State returns the current pipeline phase.
func (p *Pipeline) State() State { return p.state }

// Packet returns a copy of the most recently built packet.
func (p *Pipeline) Packet() telemetry.Packet { return p.packet }

func (p *Pipeline) buildPacket() {
	p.state = BuildPacket
	p.packet.Counter++
	p.packet.Time = p.nav.UnixTime()
	p.packet.Lat = p.nav.Latitude()
	p.packet.Lon = p.nav.Longitude()
	p.packet.Alt = p.nav.AltitudeMSL()
	down, east, north := p.nav.NedVelocities()
	p.packet.VSpeed = cmPerSec(-down)
	p.packet.ESpeed = cmPerSec(east)
	p.packet.NSpeed = cmPerSec(north)
	p.packet.Sats = p.nav.Satellites()

	degC, fault := p.rtd.ReadTemperature()
	p.packet.Temp = sensors.FormatTemperature(degC, fault)
	// the bridge is compensated with the temperature exactly as it went
	// into the packet, sentinel encodings included
	p.packet.RH = p.bridge.Measure(float32(p.packet.Temp) / 320.0)
	p.packet.Battery = sensors.FormatBattery(p.batt.ReadBattery())
}

func (p *Pipeline) startTX() {
	buf, err := p.packet.MarshalBinary()
	if err != nil {
		log.WithField("err", err).Error("unable to encode packet")
		return
	}
	p.state = TxPending
	if code := p.ch.Transmit(buf); code != radio.ErrNone {
		// reported, not retried; the pipeline proceeds to the next fix
		log.WithField("code", code).Error("transmission failed to start")
		p.state = WaitFix
		return
	}
	p.inFlight = true
	log.WithField("counter", p.packet.Counter).Debug("transmission started")
}

// cmPerSec converts a mm/s velocity component to the packet's cm/s scale.
func cmPerSec(mmPerSec int32) int16 {
	return int16(math.Round(float64(mmPerSec) / 10.0))
}
