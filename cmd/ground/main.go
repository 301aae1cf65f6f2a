// The ground command tails a receiver board over a serial port, parses
// its CSV telemetry lines and fans them out to the flight log and the
// tracking site. The serial link is reopened whenever it drops.
package main

import (
	"context"
	"flag"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Mika-1818/ReSonde/flightlog"
	"github.com/Mika-1818/ReSonde/ground"
	"github.com/Mika-1818/ReSonde/uplink"
)

func main() {
	configFile := flag.String("config", "ground.yaml", "configuration file")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	log.SetLevel(log.InfoLevel)
	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	cfg, err := ground.LoadConfig(*configFile)
	if err != nil {
		log.Fatal("unable to load configuration: ", err)
	}

	station := ground.NewStation(cfg.Port, cfg.BaudRate)

	var up *uplink.HTTP
	if cfg.UplinkURL != "" {
		up = uplink.NewHTTPWithURL(cfg.UplinkURL)
		station.AddConsumer(up)
	}
	if cfg.FlightLog != "" {
		store, err := flightlog.Open(cfg.FlightLog)
		if err != nil {
			log.Fatal("unable to open flight log: ", err)
		}
		defer store.Close()
		station.AddConsumer(store)
	}

	log.WithField("port", cfg.Port).
		WithField("baud", cfg.BaudRate).
		Info("ground station started")

	g, ctx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		return ground.Retry(ctx, station)
	})
	if up != nil {
		g.Go(func() error {
			return up.Start(ctx)
		})
	}
	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Fatal("ground station stopped: ", err)
	}
}
