package services

import (
	"context"
	"time"

	"github.com/CarMarket/pushsync/tokentable"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	// CleanupSpec runs the purge daily at 03:00 UTC.
	CleanupSpec = "0 3 * * *"
	// InactiveTokenRetention is how long a superseded token row is kept.
	InactiveTokenRetention = 30 * 24 * time.Hour
)

// CleanupScheduler hard-deletes push token rows that have been inactive
// longer than the retention period.
type CleanupScheduler struct {
	cron      *cron.Cron
	tokens    tokentable.Table
	retention time.Duration
	now       func() time.Time
}

func NewCleanupScheduler(tokens tokentable.Table) *CleanupScheduler {
	return &CleanupScheduler{
		cron:      cron.New(cron.WithLocation(time.UTC)),
		tokens:    tokens,
		retention: InactiveTokenRetention,
		now:       time.Now,
	}
}

func (s *CleanupScheduler) Start() error {
	_, err := s.cron.AddFunc(CleanupSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := s.PurgeInactiveTokens(ctx); err != nil {
			zap.S().Errorw("push token cleanup failed", "error", err)
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	zap.S().Infow("push token cleanup scheduled", "spec", CleanupSpec)
	return nil
}

// Stop waits for a running purge to finish.
func (s *CleanupScheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *CleanupScheduler) PurgeInactiveTokens(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.retention)
	n, err := s.tokens.PurgeInactive(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	zap.S().Infow("purged inactive push tokens", "count", n, "before", cutoff)
	return n, nil
}
