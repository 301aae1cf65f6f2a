package tracker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/Mika-1818/ReSonde/freqcap"
	"github.com/Mika-1818/ReSonde/humidity"
)

// Bench simulations: synthetic collaborators so the full pipeline can run
// on a desk without GNSS, RTD or bridge hardware.

// SimNav produces an ascending-balloon track, one fix per period.
type SimNav struct {
	period time.Duration
	next   time.Time

	lat, lon int32
	alt      int32
	climb    int32 // mm/s
	sats     uint8
	now      uint32
}

// NewSimNav returns a simulated GNSS producing fixes at the given period,
// climbing from 120 m over Berlin at 5 m/s.
func NewSimNav(period time.Duration) *SimNav {
	return &SimNav{
		period: period,
		lat:    525200000,
		lon:    134050000,
		alt:    120000,
		climb:  5000,
		sats:   9,
	}
}

func (n *SimNav) FixReady() bool {
	now := time.Now()
	if n.next.IsZero() {
		n.next = now
	}
	if now.Before(n.next) {
		return false
	}
	n.next = n.next.Add(n.period)

	n.alt += int32(float64(n.climb) * n.period.Seconds())
	n.lat += 120
	n.lon += 80
	n.now = uint32(now.Unix())
	return true
}

func (n *SimNav) UnixTime() uint32    { return n.now }
func (n *SimNav) Latitude() int32     { return n.lat }
func (n *SimNav) Longitude() int32    { return n.lon }
func (n *SimNav) AltitudeMSL() int32  { return n.alt }
func (n *SimNav) Satellites() uint8   { return n.sats }
func (n *SimNav) NedVelocities() (down, east, north int32) {
	return -n.climb, 1200, 800
}

// SimEnv plays both the RTD and the battery monitor: temperature ramps
// down towards the tropopause and back, the battery drains slowly.
type SimEnv struct {
	temp     float32
	cooling  bool
	battery  uint16
}

func NewSimEnv() *SimEnv {
	return &SimEnv{temp: 20, cooling: true, battery: 3600}
}

func (e *SimEnv) ReadTemperature() (float32, uint8) {
	if e.cooling {
		e.temp -= 0.5
	} else {
		e.temp += 0.5
	}
	if e.temp <= -55 {
		e.cooling = false
	} else if e.temp >= 20 {
		e.cooling = true
	}
	return e.temp, 0
}

func (e *SimEnv) ReadBattery() uint16 {
	if e.battery > 2400 {
		e.battery--
	}
	return e.battery
}

// SimRelay is a bridge relay whose position the simulated oscillator can
// observe.
type SimRelay struct {
	state atomic.Int32
}

func (r *SimRelay) Set(s humidity.CalibrationState) {
	r.state.Store(int32(s))
}

func (r *SimRelay) State() humidity.CalibrationState {
	return humidity.CalibrationState(r.state.Load())
}

// SimOscillator feeds the capture engine with edges whose spacing depends
// on the relay position, like the real bridge: a fixed reference frequency
// and a slowly wandering sensing frequency.
type SimOscillator struct {
	engine  *freqcap.Engine
	relay   *SimRelay
	clockHz float64
	refHz   float64
	rhHz    float64
	drift   float64
}

// NewSimOscillator simulates a bridge around the given engine: refHz when
// the relay selects the reference capacitor, rhHz on the sensing side.
func NewSimOscillator(engine *freqcap.Engine, relay *SimRelay, clockHz uint32, refHz, rhHz float64) *SimOscillator {
	return &SimOscillator{
		engine:  engine,
		relay:   relay,
		clockHz: float64(clockHz),
		refHz:   refHz,
		rhHz:    rhHz,
		drift:   -2,
	}
}

// Run emits edges until the context is cancelled. Call it on its own
// goroutine; it stands in for the input-capture interrupt source.
func (o *SimOscillator) Run(ctx context.Context) {
	var tick uint32
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		o.engine.Edge(tick)

		f := o.refHz
		if o.relay.State() == humidity.Sensing {
			f = o.rhHz
			o.rhHz += o.drift
			if o.rhHz < o.refHz*0.85 || o.rhHz > o.refHz*0.98 {
				o.drift = -o.drift
			}
		}
		tick += uint32(o.clockHz / f)
		time.Sleep(100 * time.Microsecond)
	}
}
