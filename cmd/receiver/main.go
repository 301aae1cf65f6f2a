// The receiver command listens for telemetry packets on a UDP bench
// channel, prints each packet as a CSV line, and optionally logs it to
// SQLite and forwards it to a tracking site.
package main

import (
	"context"
	"flag"
	"os"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Mika-1818/ReSonde/flightlog"
	"github.com/Mika-1818/ReSonde/radio"
	"github.com/Mika-1818/ReSonde/receiver"
	"github.com/Mika-1818/ReSonde/uplink"
)

func main() {
	listenAddr := flag.String("listen", ":9737", "local UDP address of the bench radio")
	logPath := flag.String("flightlog", "", "SQLite flight log path; empty disables logging")
	uplinkConfig := flag.String("uplink", "", "uplink configuration file; empty disables uploads")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	log.SetLevel(log.InfoLevel)
	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	ch := radio.NewUDP(*listenAddr, "")
	pipeline := receiver.New(ch, receiver.NewCSVWriter(os.Stdout))

	var up *uplink.HTTP
	if *uplinkConfig != "" {
		var err error
		if up, err = uplink.NewHTTP(*uplinkConfig); err != nil {
			log.Fatal("unable to load uplink: ", err)
		}
		pipeline.AddConsumer(up)
	}
	if *logPath != "" {
		store, err := flightlog.Open(*logPath)
		if err != nil {
			log.Fatal("unable to open flight log: ", err)
		}
		defer store.Close()
		pipeline.AddConsumer(store)
	}

	if err := pipeline.Begin(radio.DefaultParams()); err != nil {
		log.Fatal("unable to start pipeline: ", err)
	}
	log.WithField("listen", *listenAddr).Info("receiver started")

	g, ctx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		return pipeline.Run(ctx)
	})
	if up != nil {
		g.Go(func() error {
			return up.Start(ctx)
		})
	}
	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Fatal("receiver stopped: ", err)
	}
}
