// Package uplink forwards decoded telemetry to the dashboard's upload
// endpoint. Forwarding is fire-and-forget: a reading that cannot be queued
// or posted is dropped, never retried, and never blocks reception.
package uplink

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Mika-1818/ReSonde/receiver"
)

// Config is the uplink's TOML configuration.
type Config struct {
	URL string
}

// HTTP posts one JSON document per reading, the payload layout the
// dashboard's upload API expects: raw wire integers plus RSSI.
type HTTP struct {
	Config *Config

	client  *http.Client
	fwdChan chan receiver.Reading
}

// payload field names are part of the upload API; do not rename.
type payload struct {
	SN      uint16  `json:"sn"`
	Counter uint16  `json:"counter"`
	Time    uint32  `json:"time"`
	Lat     int32   `json:"lat"`
	Lon     int32   `json:"lon"`
	Alt     int32   `json:"alt"`
	VSpeed  int16   `json:"vSpeed"`
	ESpeed  int16   `json:"eSpeed"`
	NSpeed  int16   `json:"nSpeed"`
	Sats    uint8   `json:"sats"`
	Temp    int16   `json:"temp"`
	RH      uint8   `json:"rh"`
	Battery uint8   `json:"battery"`
	RSSI    float32 `json:"rssi"`
}

// NewHTTP loads the configuration file from the directory of the running
// binary and returns a ready uplink.
func NewHTTP(fileName string) (*HTTP, error) {
	dir, err := filepath.Abs(filepath.Dir(os.Args[0]))
	if err != nil {
		return nil, errors.Wrap(err, "unable to determine binary location")
	}
	file, err := os.Open(filepath.Join(dir, fileName))
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open file %s", fileName)
	}
	defer file.Close()
	return NewHTTPFromReader(file)
}

// NewHTTPFromReader decodes a TOML configuration and returns a ready
// uplink.
func NewHTTPFromReader(configReader io.Reader) (*HTTP, error) {
	config := Config{}
	if _, err := toml.NewDecoder(configReader).Decode(&config); err != nil {
		return nil, errors.Wrap(err, "unable to load uplink configuration")
	}
	if config.URL == "" {
		return nil, errors.New("uplink configuration has no URL")
	}
	return NewHTTPWithURL(config.URL), nil
}

// NewHTTPWithURL returns an uplink posting to the given endpoint.
func NewHTTPWithURL(url string) *HTTP {
	return &HTTP{
		Config:  &Config{URL: url},
		client:  &http.Client{Timeout: 10 * time.Second},
		fwdChan: make(chan receiver.Reading, 1),
	}
}

// Consume queues a reading for upload. It never blocks: if the previous
// reading is still being posted, the new one is dropped.
func (u *HTTP) Consume(r receiver.Reading) error {
	select {
	case u.fwdChan <- r:
	default:
		// if channel is full, skip
	}
	return nil
}

// Start drains the queue until the context is cancelled. Run it on its
// own goroutine.
func (u *HTTP) Start(ctx context.Context) error {
	limiter := time.Tick(100 * time.Millisecond)
	for {
		<-limiter
		select {
		case r := <-u.fwdChan:
			if err := u.post(ctx, r); err != nil {
				log.Error("unable to forward telemetry to server ", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (u *HTTP) post(ctx context.Context, r receiver.Reading) error {
	p := &r.Packet
	body, err := json.Marshal(payload{
		SN:      p.SN,
		Counter: p.Counter,
		Time:    p.Time,
		Lat:     p.Lat,
		Lon:     p.Lon,
		Alt:     p.Alt,
		VSpeed:  p.VSpeed,
		ESpeed:  p.ESpeed,
		NSpeed:  p.NSpeed,
		Sats:    p.Sats,
		Temp:    p.Temp,
		RH:      p.RH,
		Battery: p.Battery,
		RSSI:    r.RSSI,
	})
	if err != nil {
		return errors.Wrap(err, "unable to encode upload payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.Config.URL, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "unable to build upload request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "unable to post telemetry")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Errorf("upload rejected with status %s", resp.Status)
	}
	return nil
}
