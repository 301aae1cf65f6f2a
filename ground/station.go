// Package ground reads telemetry lines from a receiver board attached
// over a serial port and feeds them to the same consumers the native
// receive pipeline uses.
package ground

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.bug.st/serial"

	"github.com/Mika-1818/ReSonde/receiver"
	"github.com/Mika-1818/ReSonde/telemetry"
)

var openPort = func(name string, mode *serial.Mode) (serial.Port, error) {
	return serial.Open(name, mode)
}

var now = time.Now

// Station owns the serial link to the receiver board. It implements
// Retryable so Retry can reopen the port when the board is unplugged.
type Station struct {
	portName  string
	baudRate  int
	port      serial.Port
	consumers []receiver.Consumer
}

func NewStation(portName string, baudRate int) *Station {
	return &Station{
		portName: portName,
		baudRate: baudRate,
	}
}

// AddConsumer registers a sink for parsed readings. Not safe to call
// after Start.
func (s *Station) AddConsumer(c receiver.Consumer) {
	s.consumers = append(s.consumers, c)
}

func (s *Station) Name() string { return "ground station" }

func (s *Station) Open() error {
	port, err := openPort(s.portName, &serial.Mode{BaudRate: s.baudRate})
	if err != nil {
		return errors.Wrapf(err, "unable to open serial port %s", s.portName)
	}
	s.port = port
	return nil
}

func (s *Station) Close() error {
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return errors.Wrap(err, "unable to close serial port")
}

// Start reads lines from the port until it fails or ctx is cancelled.
func (s *Station) Start(ctx context.Context) error {
	if s.port == nil {
		return errors.New("serial port not open")
	}
	return s.run(ctx, s.port)
}

func (s *Station) run(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		reading, err := ParseLine(line)
		if err != nil {
			log.WithField("err", err).WithField("line", line).Warn("discarding unparsable line")
			continue
		}
		for _, c := range s.consumers {
			if err := c.Consume(reading); err != nil {
				log.WithField("err", err).Error("consumer failed")
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "serial read failed")
	}
	return errors.New("serial port closed")
}

// ParseLine decodes one comma-separated telemetry line as printed by
// the receiver: the thirteen packet fields followed by the RSSI.
func ParseLine(line string) (receiver.Reading, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 14 {
		return receiver.Reading{}, errors.Errorf("expected 14 fields, got %d", len(fields))
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	var (
		p   telemetry.Packet
		err error
	)
	if p.SN, err = parseU16(fields[0]); err == nil {
		p.Counter, err = parseU16(fields[1])
	}
	if err == nil {
		p.Time, err = parseU32(fields[2])
	}
	if err == nil {
		p.Lat, err = parseI32(fields[3])
	}
	if err == nil {
		p.Lon, err = parseI32(fields[4])
	}
	if err == nil {
		p.Alt, err = parseI32(fields[5])
	}
	if err == nil {
		p.VSpeed, err = parseI16(fields[6])
	}
	if err == nil {
		p.ESpeed, err = parseI16(fields[7])
	}
	if err == nil {
		p.NSpeed, err = parseI16(fields[8])
	}
	if err == nil {
		p.Sats, err = parseU8(fields[9])
	}
	if err == nil {
		p.Temp, err = parseI16(fields[10])
	}
	if err == nil {
		p.RH, err = parseU8(fields[11])
	}
	if err == nil {
		p.Battery, err = parseU8(fields[12])
	}
	if err != nil {
		return receiver.Reading{}, err
	}
	rssi, err := strconv.ParseFloat(fields[13], 32)
	if err != nil {
		return receiver.Reading{}, errors.Wrap(err, "unable to parse RSSI")
	}
	return receiver.Reading{
		Packet:     p,
		RSSI:       float32(rssi),
		ReceivedAt: now(),
	}, nil
}

func parseU8(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 10, 8)
	return uint8(v), errors.Wrapf(err, "unable to parse %q", s)
}

func parseU16(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 10, 16)
	return uint16(v), errors.Wrapf(err, "unable to parse %q", s)
}

func parseU32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	return uint32(v), errors.Wrapf(err, "unable to parse %q", s)
}

func parseI16(s string) (int16, error) {
	v, err := strconv.ParseInt(s, 10, 16)
	return int16(v), errors.Wrapf(err, "unable to parse %q", s)
}

func parseI32(s string) (int32, error) {
	v, err := strconv.ParseInt(s, 10, 32)
	return int32(v), errors.Wrapf(err, "unable to parse %q", s)
}
