package receiver

import (
	"fmt"
	"io"
	"sync"

	"github.com/pkg/errors"
)

// CSVWriter renders each reading as one comma-separated line of raw wire
// values plus RSSI, the format the receiver board prints on its serial
// console for the ground-station software.
type CSVWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{w: w}
}

func (c *CSVWriter) Consume(r Reading) error {
	p := &r.Packet
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.w, "%d, %d, %d, %d, %d, %d, %d, %d, %d, %d, %d, %d, %d, %.2f\n",
		p.SN, p.Counter, p.Time, p.Lat, p.Lon, p.Alt,
		p.VSpeed, p.ESpeed, p.NSpeed, p.Sats, p.Temp, p.RH, p.Battery,
		r.RSSI)
	return errors.Wrap(err, "unable to write csv line")
}
