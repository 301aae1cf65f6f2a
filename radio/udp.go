package radio

import (
	"net"
	"sync"

	log "github.com/sirupsen/logrus"
)

const udpBufSize = 256

// UDP carries the radio link over datagrams, one packet per datagram, so a
// tracker and a receiver process can interoperate on a bench without RF
// hardware. Channel parameters are accepted for interface parity but have
// no effect on a socket; RSSI is a fixed bench value.
type UDP struct {
	laddr string
	raddr string

	mu        sync.Mutex
	conn      *net.UDPConn
	remote    *net.UDPAddr
	onDone    func()
	listening bool
	pending   []byte
	started   bool
	rssi      float32
}

// NewUDP returns a UDP channel bound to laddr. raddr is the peer to
// transmit to; it may be empty for a receive-only endpoint.
func NewUDP(laddr, raddr string) *UDP {
	return &UDP{laddr: laddr, raddr: raddr, rssi: -42}
}

func (u *UDP) Begin(p Params) Code {
	if p.FreqMHz <= 0 {
		return ErrInvalidFreq
	}
	addr, err := net.ResolveUDPAddr("udp", u.laddr)
	if err != nil {
		log.WithField("err", err).Error("udp channel: unable to resolve local address")
		return ErrChipNotFound
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		log.WithField("err", err).Error("udp channel: unable to bind")
		return ErrChipNotFound
	}
	if err = conn.SetWriteBuffer(udpBufSize * 2); err != nil {
		log.WithField("err", err).Warn("udp channel: unable to set OS write buffer")
	}

	var remote *net.UDPAddr
	if u.raddr != "" {
		if remote, err = net.ResolveUDPAddr("udp", u.raddr); err != nil {
			_ = conn.Close()
			log.WithField("err", err).Error("udp channel: unable to resolve remote address")
			return ErrChipNotFound
		}
	}

	u.mu.Lock()
	u.conn = conn
	u.remote = remote
	u.mu.Unlock()
	return ErrNone
}

// LocalAddr returns the bound address, once Begin has succeeded.
func (u *UDP) LocalAddr() net.Addr {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.conn.LocalAddr()
}

func (u *UDP) OnDone(fn func()) {
	u.mu.Lock()
	u.onDone = fn
	u.mu.Unlock()
}

func (u *UDP) Transmit(data []byte) Code {
	if len(data) > udpBufSize {
		return ErrPacketTooLong
	}
	u.mu.Lock()
	conn, remote, done := u.conn, u.remote, u.onDone
	u.mu.Unlock()
	if conn == nil || remote == nil {
		return ErrUnknown
	}
	if _, err := conn.WriteToUDP(data, remote); err != nil {
		log.WithField("err", err).Error("udp channel: transmit failed")
		return ErrTxTimeout
	}
	// completion interrupt
	if done != nil {
		go done()
	}
	return ErrNone
}

func (u *UDP) FinishTransmit() Code { return ErrNone }

func (u *UDP) StartReceive() Code {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.conn == nil {
		return ErrUnknown
	}
	u.listening = true
	u.pending = nil
	if u.started {
		return ErrNone
	}
	u.started = true
	go u.readLoop(u.conn)
	return ErrNone
}

func (u *UDP) readLoop(conn *net.UDPConn) {
	buf := make([]byte, udpBufSize)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			// closed socket ends the goroutine
			return
		}
		cp := make([]byte, n)
		copy(cp, buf[:n])

		u.mu.Lock()
		var arrival func()
		if u.listening {
			u.pending = cp
			u.listening = false
			arrival = u.onDone
		}
		u.mu.Unlock()
		if arrival != nil {
			arrival()
		}
	}
}

func (u *UDP) PacketLength() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.pending)
}

func (u *UDP) ReadData(buf []byte) Code {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.pending == nil {
		return ErrRxTimeout
	}
	copy(buf, u.pending)
	return ErrNone
}

func (u *UDP) RSSI() float32 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.rssi
}

// Close shuts the socket down and stops the receive goroutine.
func (u *UDP) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.conn == nil {
		return nil
	}
	return u.conn.Close()
}
