package radio

import "sync"

// Loopback is one end of an in-process radio link, used on the bench and
// in tests. Delivery is immediate: the peer's arrival callback and the
// local completion callback run on the transmitting goroutine, standing in
// for the two interrupts. A packet transmitted while the peer is not
// listening is lost, as it would be on air.
type Loopback struct {
	peer *Loopback

	mu            sync.Mutex
	onDone        func()
	listening     bool
	pending       []byte
	pendingCRCErr bool
	corruptNext   bool
	rssi          float32
}

// NewLoopbackPair returns two connected loopback endpoints.
func NewLoopbackPair() (*Loopback, *Loopback) {
	a := &Loopback{rssi: -42}
	b := &Loopback{rssi: -42}
	a.peer = b
	b.peer = a
	return a, b
}

func (l *Loopback) Begin(p Params) Code {
	if p.FreqMHz <= 0 {
		return ErrInvalidFreq
	}
	return ErrNone
}

func (l *Loopback) OnDone(fn func()) {
	l.mu.Lock()
	l.onDone = fn
	l.mu.Unlock()
}

func (l *Loopback) Transmit(data []byte) Code {
	if len(data) > 255 {
		return ErrPacketTooLong
	}
	cp := make([]byte, len(data))
	copy(cp, data)

	p := l.peer
	p.mu.Lock()
	var arrival func()
	if p.listening {
		p.pending = cp
		p.pendingCRCErr = p.corruptNext
		p.corruptNext = false
		p.listening = false
		arrival = p.onDone
	}
	p.mu.Unlock()
	if arrival != nil {
		arrival()
	}

	l.mu.Lock()
	done := l.onDone
	l.mu.Unlock()
	if done != nil {
		done()
	}
	return ErrNone
}

func (l *Loopback) FinishTransmit() Code { return ErrNone }

func (l *Loopback) StartReceive() Code {
	l.mu.Lock()
	l.listening = true
	l.pending = nil
	l.pendingCRCErr = false
	l.mu.Unlock()
	return ErrNone
}

func (l *Loopback) PacketLength() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

func (l *Loopback) ReadData(buf []byte) Code {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pending == nil {
		return ErrRxTimeout
	}
	if l.pendingCRCErr {
		l.pending = nil
		l.pendingCRCErr = false
		return ErrCRCMismatch
	}
	copy(buf, l.pending)
	return ErrNone
}

func (l *Loopback) RSSI() float32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rssi
}

// SetRSSI sets the link-quality value reported for received packets.
func (l *Loopback) SetRSSI(dbm float32) {
	l.mu.Lock()
	l.rssi = dbm
	l.mu.Unlock()
}

// CorruptNext makes the next packet delivered to this endpoint report a
// CRC mismatch instead of its payload.
func (l *Loopback) CorruptNext() {
	l.mu.Lock()
	l.corruptNext = true
	l.mu.Unlock()
}
