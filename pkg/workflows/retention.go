package workflows

import (
	"context"
	"sync"
	"time"

	"github.com/glueops/tools-api/pkg/store"
	"github.com/sirupsen/logrus"
)

// Janitor periodically deletes dispatch receipts older than the retention window.
type Janitor interface {
	Start(ctx context.Context) error
	Stop() error
}

type janitor struct {
	log       logrus.FieldLogger
	store     store.Store
	retention time.Duration
	interval  time.Duration
	now       func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ Janitor = (*janitor)(nil)

// NewJanitor creates a Janitor. A non-positive retentionDays keeps receipts forever.
func NewJanitor(log logrus.FieldLogger, st store.Store, retentionDays int, interval time.Duration) Janitor {
	return &janitor{
		log:       log.WithField("component", "janitor"),
		store:     st,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		interval:  interval,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Start launches the cleanup loop.
func (j *janitor) Start(ctx context.Context) error {
	if j.retention <= 0 || j.interval <= 0 {
		j.log.Info("Dispatch retention disabled")

		return nil
	}

	ctx, j.cancel = context.WithCancel(ctx)

	j.log.WithFields(logrus.Fields{
		"retention":        j.retention,
		"cleanup_interval": j.interval,
	}).Info("Starting dispatch history cleanup")

	j.wg.Add(1)

	go func() {
		defer j.wg.Done()

		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := j.sweep(ctx); err != nil {
					j.log.WithError(err).Error("Failed to clean up old dispatches")
				}
			}
		}
	}()

	return nil
}

// Stop waits for the cleanup loop to exit.
func (j *janitor) Stop() error {
	if j.cancel != nil {
		j.cancel()
	}

	j.wg.Wait()

	return nil
}

// sweep deletes finished receipts created before the retention cutoff.
func (j *janitor) sweep(ctx context.Context) (int64, error) {
	cutoff := j.now().Add(-j.retention)

	count, err := j.store.DeleteOldDispatches(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	if count > 0 {
		j.log.WithFields(logrus.Fields{
			"deleted": count,
			"cutoff":  cutoff,
		}).Info("Cleaned up old dispatches")
	}

	return count, nil
}
