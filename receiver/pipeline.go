// Package receiver implements the ground-side pipeline: wait for the
// radio's arrival interrupt, decode the fixed telemetry record, attach
// link quality, and hand the result to the registered consumers.
package receiver

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Mika-1818/ReSonde/radio"
	"github.com/Mika-1818/ReSonde/telemetry"
)

// ErrRadioInit means the radio channel failed to start listening; the
// receiver is useless without it.
var ErrRadioInit = errors.New("receiver: radio channel failed to start")

// Reading is one successfully decoded packet plus its out-of-band
// link-quality metadata.
type Reading struct {
	Packet     telemetry.Packet
	RSSI       float32 // dBm, read at decode time, not transmitted
	ReceivedAt time.Time
}

// Consumer receives each decoded reading exactly once. Delivery is
// best-effort: a consumer error is logged and never retried.
type Consumer interface {
	Consume(Reading) error
}

// ConsumerFunc adapts a function to the Consumer interface.
type ConsumerFunc func(Reading) error

func (f ConsumerFunc) Consume(r Reading) error { return f(r) }

// to allow testing
var now = time.Now

// Pipeline is the receiver main loop.
type Pipeline struct {
	ch        radio.Channel
	consumers []Consumer
	arrived   atomic.Bool // set from the radio arrival interrupt
}

// New assembles a pipeline; Begin must be called before Run.
func New(ch radio.Channel, consumers ...Consumer) *Pipeline {
	return &Pipeline{ch: ch, consumers: consumers}
}

// AddConsumer registers another consumer of decoded readings.
func (p *Pipeline) AddConsumer(c Consumer) {
	p.consumers = append(p.consumers, c)
}

// Begin initializes the channel and starts listening. A failure is fatal.
func (p *Pipeline) Begin(params radio.Params) error {
	if code := p.ch.Begin(params); code != radio.ErrNone {
		return errors.Wrapf(ErrRadioInit, "begin: code %v", code)
	}
	p.ch.OnDone(func() { p.arrived.Store(true) })
	if code := p.ch.StartReceive(); code != radio.ErrNone {
		return errors.Wrapf(ErrRadioInit, "start receive: code %v", code)
	}
	return nil
}

// Run executes Step until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		p.Step()
		time.Sleep(time.Millisecond)
	}
}

// Step services one arrival if the interrupt flagged one: read the
// buffer, re-arm reception, decode, fan out.
func (p *Pipeline) Step() {
	if !p.arrived.CompareAndSwap(true, false) {
		return
	}

	n := p.ch.PacketLength()
	buf := make([]byte, n)
	code := p.ch.ReadData(buf)
	rssi := p.ch.RSSI()
	p.ch.StartReceive()

	switch code {
	case radio.ErrNone:
	case radio.ErrCRCMismatch:
		log.Warn("packet discarded: crc mismatch")
		return
	default:
		log.WithField("code", code).Error("unable to read packet from radio")
		return
	}

	pkt := telemetry.Packet{}
	if err := pkt.UnmarshalBinary(buf); err != nil {
		log.WithField("err", err).Warn("packet discarded")
		return
	}

	r := Reading{Packet: pkt, RSSI: rssi, ReceivedAt: now()}
	log.WithField("counter", pkt.Counter).WithField("rssi", rssi).Debug("packet received")
	for _, c := range p.consumers {
		if err := c.Consume(r); err != nil {
			log.WithField("err", err).Warn("consumer failed")
		}
	}
}
