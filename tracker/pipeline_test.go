package tracker

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mika-1818/ReSonde/freqcap"
	"github.com/Mika-1818/ReSonde/humidity"
	"github.com/Mika-1818/ReSonde/radio"
	"github.com/Mika-1818/ReSonde/telemetry"
)

type stubNav struct {
	fixes             int
	time              uint32
	lat, lon, alt     int32
	down, east, north int32
	sats              uint8
}

func (n *stubNav) FixReady() bool {
	if n.fixes > 0 {
		n.fixes--
		return true
	}
	return false
}
func (n *stubNav) UnixTime() uint32   { return n.time }
func (n *stubNav) Latitude() int32    { return n.lat }
func (n *stubNav) Longitude() int32   { return n.lon }
func (n *stubNav) AltitudeMSL() int32 { return n.alt }
func (n *stubNav) Satellites() uint8  { return n.sats }
func (n *stubNav) NedVelocities() (int32, int32, int32) {
	return n.down, n.east, n.north
}

type stubRTD struct {
	degC  float32
	fault uint8
}

func (r *stubRTD) ReadTemperature() (float32, uint8) { return r.degC, r.fault }

type stubBatt struct{ raw uint16 }

func (b *stubBatt) ReadBattery() uint16 { return b.raw }

type stubBridge struct {
	rh    uint8
	temps []float32
}

func (b *stubBridge) Measure(tempC float32) uint8 {
	b.temps = append(b.temps, tempC)
	return b.rh
}

type stubChannel struct {
	beginCode radio.Code
	txCode    radio.Code
	onDone    func()
	transmits [][]byte
}

func (c *stubChannel) Begin(radio.Params) radio.Code { return c.beginCode }
func (c *stubChannel) OnDone(fn func())              { c.onDone = fn }
func (c *stubChannel) Transmit(data []byte) radio.Code {
	if c.txCode != radio.ErrNone {
		return c.txCode
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	c.transmits = append(c.transmits, cp)
	return radio.ErrNone
}
func (c *stubChannel) FinishTransmit() radio.Code { return radio.ErrNone }
func (c *stubChannel) StartReceive() radio.Code   { return radio.ErrNone }
func (c *stubChannel) PacketLength() int          { return 0 }
func (c *stubChannel) ReadData([]byte) radio.Code { return radio.ErrRxTimeout }
func (c *stubChannel) RSSI() float32              { return 0 }

func TestBuildAndTransmit(t *testing.T) {
	nav := &stubNav{
		fixes: 1,
		time:  1700000000,
		lat:   525200000, lon: 134050000, alt: 15000,
		down: -1500, east: -230, north: 3100,
		sats: 9,
	}
	ch := &stubChannel{}
	p := New(Config{SerialNumber: 12345}, nav, &stubRTD{degC: 21.3}, &stubBatt{raw: 3227}, &stubBridge{rh: 49}, ch)
	require.NoError(t, p.Begin(radio.DefaultParams()))

	p.Step()
	require.Len(t, ch.transmits, 1)
	assert.Equal(t, TxPending, p.State())

	want := telemetry.Packet{
		SN:      12345,
		Counter: 1,
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
		Battery: 200,
	}
	assert.Equal(t, want, p.Packet())

	decoded := telemetry.Packet{}
	require.NoError(t, decoded.UnmarshalBinary(ch.transmits[0]))
	assert.Equal(t, want, decoded)

	// no new fix: the pipeline must not transmit again
	ch.onDone()
	p.Step()
	p.Step()
	assert.Len(t, ch.transmits, 1)
	assert.Equal(t, WaitFix, p.State())
}

func TestFixDroppedWhileTransmissionPending(t *testing.T) {
	nav := &stubNav{fixes: 1, sats: 5}
	ch := &stubChannel{}
	p := New(Config{SerialNumber: 1}, nav, &stubRTD{}, &stubBatt{}, &stubBridge{}, ch)
	require.NoError(t, p.Begin(radio.DefaultParams()))

	p.Step()
	require.Len(t, ch.transmits, 1)
	assert.Equal(t, uint16(1), p.Packet().Counter)

	// a second fix while the first transmission is still in flight
	nav.fixes = 1
	p.Step()
	assert.Len(t, ch.transmits, 1, "stale fix must not queue a transmission")
	assert.Equal(t, uint16(1), p.Packet().Counter, "dropped fix must not touch the packet")

	// completion arrives; nothing further to send
	ch.onDone()
	p.Step()
	assert.Len(t, ch.transmits, 1)
}

func TestOverwritePendingPolicy(t *testing.T) {
	nav := &stubNav{fixes: 1, alt: 1000}
	ch := &stubChannel{}
	p := New(Config{SerialNumber: 1, OverwritePending: true}, nav, &stubRTD{}, &stubBatt{}, &stubBridge{}, ch)
	require.NoError(t, p.Begin(radio.DefaultParams()))

	p.Step()
	require.Len(t, ch.transmits, 1)

	nav.fixes = 1
	nav.alt = 2000
	p.Step()
	assert.Len(t, ch.transmits, 1, "rebuilt packet waits for the in-flight one")
	assert.Equal(t, uint16(2), p.Packet().Counter)

	ch.onDone()
	p.Step()
	require.Len(t, ch.transmits, 2, "rebuilt packet goes out after completion")
	decoded := telemetry.Packet{}
	require.NoError(t, decoded.UnmarshalBinary(ch.transmits[1]))
	assert.Equal(t, int32(2000), decoded.Alt)
}

func TestRadioInitFailureIsFatal(t *testing.T) {
	ch := &stubChannel{beginCode: radio.ErrChipNotFound}
	p := New(Config{}, &stubNav{}, &stubRTD{}, &stubBatt{}, &stubBridge{}, ch)
	err := p.Begin(radio.DefaultParams())
	assert.ErrorIs(t, err, ErrRadioInit)
}

func TestFailedTransmitStartIsNotRetried(t *testing.T) {
	nav := &stubNav{fixes: 1}
	ch := &stubChannel{txCode: radio.ErrTxTimeout}
	p := New(Config{}, nav, &stubRTD{}, &stubBatt{}, &stubBridge{}, ch)
	require.NoError(t, p.Begin(radio.DefaultParams()))

	p.Step()
	assert.Empty(t, ch.transmits)
	assert.Equal(t, WaitFix, p.State())

	// the next fix proceeds normally
	ch.txCode = radio.ErrNone
	nav.fixes = 1
	p.Step()
	assert.Len(t, ch.transmits, 1)
}

func TestRTDFaultSentinelFlowsIntoCompensation(t *testing.T) {
	nav := &stubNav{fixes: 1}
	bridge := &stubBridge{rh: 80}
	p := New(Config{}, nav, &stubRTD{degC: 99, fault: 0x80}, &stubBatt{}, bridge, &stubChannel{})
	require.NoError(t, p.Begin(radio.DefaultParams()))

	p.Step()
	assert.Equal(t, int16(320), p.Packet().Temp, "high-threshold fault encodes its sentinel")
	require.Len(t, bridge.temps, 1)
	assert.Equal(t, float32(1.0), bridge.temps[0],
		"compensation uses the encoded field as stored, sentinel included")
}

// scriptedRelay lets the test oscillator follow the bridge's relay.
type scriptedRelay struct {
	mu      sync.Mutex
	current humidity.CalibrationState
	history []humidity.CalibrationState
}

func (r *scriptedRelay) Set(s humidity.CalibrationState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = s
	r.history = append(r.history, s)
}

func (r *scriptedRelay) get() humidity.CalibrationState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// TestEndToEndScenario runs the full tracker stack over a loopback radio:
// real capture engine, real bridge, deterministic oscillator, and checks
// the transmitted bytes decode bit-exact on the receiving end.
func TestEndToEndScenario(t *testing.T) {
	engine := freqcap.New(1800000, 10, 100*time.Millisecond)
	relay := &scriptedRelay{}
	bridge := humidity.NewBridge(engine, relay, time.Millisecond, 500*time.Millisecond, humidity.DefaultConstants())

	// 90 ticks at 1.8 MHz -> exactly 20 kHz reference,
	// 100 ticks -> exactly 18 kHz sensing
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		var tick uint32
		for {
			select {
			case <-stop:
				return
			default:
			}
			engine.Edge(tick)
			if relay.get() == humidity.Reference {
				tick += 90
			} else {
				tick += 100
			}
			time.Sleep(100 * time.Microsecond)
		}
	}()

	nav := &stubNav{
		fixes: 1,
		time:  1700000000,
		lat:   525200000, lon: 134050000, alt: 15000,
		down: -1500, east: -230, north: 3100,
		sats: 9,
	}

	txc, rxc := radio.NewLoopbackPair()
	var arrived atomic.Bool
	rxc.OnDone(func() { arrived.Store(true) })
	require.Equal(t, radio.ErrNone, rxc.Begin(radio.DefaultParams()))
	require.Equal(t, radio.ErrNone, rxc.StartReceive())

	p := New(Config{SerialNumber: 12345}, nav, &stubRTD{degC: 21.3}, &stubBatt{raw: 3227}, bridge, txc)
	require.NoError(t, p.Begin(radio.DefaultParams()))

	p.Step()
	require.True(t, arrived.Load(), "packet must have crossed the link")

	require.Equal(t, telemetry.Size, rxc.PacketLength())
	buf := make([]byte, telemetry.Size)
	require.Equal(t, radio.ErrNone, rxc.ReadData(buf))

	decoded := telemetry.Packet{}
	require.NoError(t, decoded.UnmarshalBinary(buf))
	assert.Equal(t, telemetry.Packet{
		SN:      12345,
		Counter: 1,
		Time:    1700000000,
		Lat:     525200000,
		Lon:     134050000,
		Alt:     15000,
		VSpeed:  150,
		ESpeed:  -23,
		NSpeed:  310,
		Sats:    9,
		Temp:    6816, // 21.3 degC * 320
		RH:      49,   // f_ref 20 kHz, f_rh 18 kHz per the conversion
		Battery: 200,
	}, decoded)

	assert.Equal(t, humidity.Reference, relay.history[len(relay.history)-1])
}
