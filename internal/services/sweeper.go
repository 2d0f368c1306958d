package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/AnshRaj112/neighbourwatch-backend/internal/metrics"
)

const sweepTimeout = time.Minute

// ShareSweeper deletes expired location shares.
type ShareSweeper interface {
	DeleteExpiredLocationShares(ctx context.Context) (int64, error)
}

// Sweeper runs the expired-share sweep on a cron schedule. Runs are not
// serialized against externally triggered sweeps; overlapping deletes of
// the same documents are harmless.
type Sweeper struct {
	store ShareSweeper
	log   logrus.FieldLogger
	cron  *cron.Cron
}

func NewSweeper(store ShareSweeper, log logrus.FieldLogger) *Sweeper {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Sweeper{store: store, log: log.WithField("component", "sweeper")}
}

// Sweep deletes every expired share once and returns the count.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	deleted, err := s.store.DeleteExpiredLocationShares(ctx)
	if err != nil {
		return 0, err
	}
	metrics.SharesSwept.Add(float64(deleted))
	return deleted, nil
}

// Start schedules Sweep with a standard cron expression or a descriptor
// such as "@every 15m".
func (s *Sweeper) Start(schedule string) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{s.log})))
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()
		if _, err := s.Sweep(ctx); err != nil {
			s.log.WithError(err).Error("scheduled location share sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	s.cron = c
	c.Start()
	s.log.WithField("schedule", schedule).Info("✅ Location share sweep scheduled")
	return nil
}

// cronLogger routes cron's scheduler messages through logrus.
type cronLogger struct {
	log logrus.FieldLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(cronFields(keysAndValues)).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithFields(cronFields(keysAndValues)).WithError(err).Error("cron: " + msg)
}

func cronFields(keysAndValues []interface{}) logrus.Fields {
	fields := make(logrus.Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}
