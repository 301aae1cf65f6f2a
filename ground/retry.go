package ground

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var retrySleep = time.Second

// Retryable is a link to the ground station hardware that can drop and
// be reopened, such as a serial port that disappears when the receiver
// board is unplugged.
type Retryable interface {
	Open() error
	Close() error
	Start(ctx context.Context) error
	Name() string
}

// Retry runs r, reopening it whenever it fails, until ctx is cancelled.
func Retry(ctx context.Context, r Retryable) error {
	errStarting := errors.New("starting")
	err := errStarting
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil {
			if err != errStarting {
				log.WithField("err", err).Errorf("%s: reconnecting due to error", r.Name())
				if err = r.Close(); err != nil {
					log.WithField("err", err).Warnf("%s: unable to close", r.Name())
				}
				time.Sleep(retrySleep)
			}
			err = r.Open()
			if err != nil {
				continue
			}
		}
		err = r.Start(ctx)
	}
}
