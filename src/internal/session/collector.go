package session

import (
	"context"
	"time"

	"session-store-svc/src/internal/models"

	"github.com/sirupsen/logrus"
)

// Collector runs Store garbage collection on a fixed interval.
type Collector struct {
	store    *Store
	interval time.Duration
}

func NewCollector(store *Store, interval time.Duration) *Collector {
	return &Collector{
		store:    store,
		interval: interval,
	}
}

// Run collects once per interval until ctx is done. A failed pass is logged
// and retried on the next tick.
func (c *Collector) Run(ctx context.Context) {
	if c.interval <= 0 {
		logrus.Warn("Session collector disabled: interval is not positive")
		return
	}

	logrus.WithField("interval", c.interval.String()).Info("Session collector started")

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Info("Session collector stopped")
			return
		case <-ticker.C:
			c.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single collection pass with the current time as cutoff.
func (c *Collector) RunOnce(ctx context.Context) int64 {
	removed, err := c.store.gc(ctx, 0, models.ServiceSessionCollector)
	if err != nil {
		logrus.WithError(err).Warn("Session collector pass failed")
		return 0
	}
	return removed
}
