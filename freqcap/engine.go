// Package freqcap turns a stream of edge-timestamp interrupts from the
// humidity bridge oscillator into an averaged frequency estimate.
//
// One goroutine plays the role of the input-capture interrupt and calls
// Edge; the main loop calls Enable/Disable/Read. Shared state is a set of
// single-word atomics in single-producer/single-consumer discipline; the
// accumulator itself is touched only by the producer, and Enable requests
// a reset through an epoch counter the producer applies on its next edge.
// The producer may publish a fresh batch between the reader's loads of the
// ready flag and the batch words; that staleness window is at most one
// batch and is accepted.
package freqcap

import (
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// ErrNoSignal is returned by Read when no full batch of edges arrived in
// time: a disconnected sensor or a stalled oscillator, not a zero reading.
var ErrNoSignal = errors.New("freqcap: no signal on capture input")

const pollInterval = time.Millisecond

// Engine accumulates batches of edge intervals. One Engine exists per
// device; it is created at startup and handed to the humidity bridge.
type Engine struct {
	clockHz    uint32
	batchSize  uint32
	staleAfter time.Duration

	armed atomic.Bool
	epoch atomic.Uint32 // bumped by Enable to request an accumulator reset

	// accumulator, written only from the edge interrupt goroutine
	seenEpoch uint32
	primed    bool
	lastTick  uint32
	sum       uint64
	count     uint32

	// frozen batch handed off to Read; a newer batch overwrites an
	// unread one, the reader always sees the latest complete batch
	readySum atomic.Uint64
	readyN   atomic.Uint32
	ready    atomic.Bool

	lastEdge atomic.Int64 // unix nanos of the most recent edge
}

// New returns an engine for a capture timer running at clockHz whose
// batches average batchSize consecutive edge intervals. A batch is
// declared lost if no edge arrives within staleAfter.
func New(clockHz uint32, batchSize int, staleAfter time.Duration) *Engine {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Engine{
		clockHz:    clockHz,
		batchSize:  uint32(batchSize),
		staleAfter: staleAfter,
	}
}

// Enable arms edge capture and resets the batch accumulator. Calling it on
// an already-armed engine just restarts the batch, discarding anything
// accumulated so far.
func (e *Engine) Enable() {
	e.epoch.Add(1)
	e.ready.Store(false)
	e.lastEdge.Store(time.Now().UnixNano())
	e.armed.Store(true)
}

// Disable de-arms edge capture; subsequent edges are ignored.
func (e *Engine) Disable() {
	e.armed.Store(false)
}

// Edge records one rising edge of the oscillator at the given hardware
// tick count. Called from the interrupt goroutine. The unsigned interval
// subtraction self-corrects across counter rollover.
func (e *Engine) Edge(tick uint32) {
	if !e.armed.Load() {
		return
	}
	e.lastEdge.Store(time.Now().UnixNano())
	if ep := e.epoch.Load(); ep != e.seenEpoch {
		e.seenEpoch = ep
		e.primed = false
		e.sum = 0
		e.count = 0
	}
	if !e.primed {
		// first edge after a reset only seeds the interval reference
		e.primed = true
		e.lastTick = tick
		return
	}
	interval := tick - e.lastTick
	e.lastTick = tick
	e.sum += uint64(interval)
	e.count++
	if e.count == e.batchSize {
		e.readySum.Store(e.sum)
		e.readyN.Store(e.count)
		e.ready.Store(true)
		e.sum = 0
		e.count = 0
	}
}

// Read polls for a ready batch up to the given timeout and returns its
// average frequency in Hz, (clockHz * N) / sum(intervals). It returns
// ErrNoSignal if the timeout elapses first, or earlier if the last edge is
// already older than the staleness window. Reading consumes the batch;
// accumulation of the next one is already under way.
func (e *Engine) Read(timeout time.Duration) (float64, error) {
	deadline := time.Now().Add(timeout)
	for {
		if e.ready.Load() {
			n := e.readyN.Load()
			sum := e.readySum.Load()
			e.ready.Store(false)
			if sum == 0 {
				return 0, errors.Wrap(ErrNoSignal, "zero-length batch")
			}
			return float64(e.clockHz) * float64(n) / float64(sum), nil
		}
		now := time.Now()
		if now.Sub(time.Unix(0, e.lastEdge.Load())) > e.staleAfter {
			return 0, errors.Wrap(ErrNoSignal, "edge capture stalled")
		}
		if now.After(deadline) {
			return 0, errors.Wrap(ErrNoSignal, "batch incomplete at deadline")
		}
		time.Sleep(pollInterval)
	}
}
