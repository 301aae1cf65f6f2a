// The tracker command runs the balloon-side pipeline on a bench: a
// simulated GNSS fix source, environment and humidity oscillator drive
// the real packet building code, and packets leave over a UDP channel
// standing in for the LoRa radio.
package main

import (
	"context"
	"flag"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Mika-1818/ReSonde/freqcap"
	"github.com/Mika-1818/ReSonde/humidity"
	"github.com/Mika-1818/ReSonde/radio"
	"github.com/Mika-1818/ReSonde/tracker"
)

func main() {
	configFile := flag.String("config", "tracker.toml", "configuration file, relative to the binary")
	listenAddr := flag.String("listen", ":0", "local UDP address of the bench radio")
	peerAddr := flag.String("peer", "127.0.0.1:9737", "receiver UDP address")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	log.SetLevel(log.InfoLevel)
	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	cfg, err := tracker.LoadConfig(*configFile)
	if err != nil {
		log.Fatal("unable to load configuration: ", err)
	}

	engine := freqcap.New(cfg.Humidity.ClockHz, cfg.Humidity.BatchSize,
		time.Duration(cfg.Humidity.StaleMS)*time.Millisecond)
	relay := &tracker.SimRelay{}
	bridge := humidity.NewBridge(engine, relay,
		time.Duration(cfg.Humidity.SettleMS)*time.Millisecond,
		time.Duration(cfg.Humidity.ReadTimeoutMS)*time.Millisecond,
		cfg.HumidityConstants())

	fixPeriod := time.Second
	if cfg.FixRateHz > 0 {
		fixPeriod = time.Second / time.Duration(cfg.FixRateHz)
	}
	nav := tracker.NewSimNav(fixPeriod)
	env := tracker.NewSimEnv()
	osc := tracker.NewSimOscillator(engine, relay, cfg.Humidity.ClockHz, 20000, 18500)

	ch := radio.NewUDP(*listenAddr, *peerAddr)
	pipeline := tracker.New(tracker.Config{
		SerialNumber:     cfg.SerialNumber,
		OverwritePending: cfg.OverwritePending,
	}, nav, env, env, bridge, ch)

	if err := pipeline.Begin(cfg.RadioParams()); err != nil {
		// GNSS or radio failure means the flight hardware would
		// restart; the bench build just exits non-zero.
		log.Fatal("unable to start pipeline: ", err)
	}
	log.WithField("sn", cfg.SerialNumber).
		WithField("peer", *peerAddr).
		Info("tracker started")

	g, ctx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		osc.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return pipeline.Run(ctx)
	})
	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Fatal("pipeline stopped: ", err)
	}
}
