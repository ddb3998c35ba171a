package reminder

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Purger deletes ledger records older than a cutoff.
type Purger interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sweeper enforces notification retention.
type Sweeper struct {
	ledger    Purger
	retention time.Duration
	logger    *zap.Logger
}

func NewSweeper(ledger Purger, retention time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{ledger: ledger, retention: retention, logger: logger.Named("cleanup")}
}

// Run deletes every notification created before now minus the retention.
func (s *Sweeper) Run(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Add(-s.retention)
	deleted, err := s.ledger.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error("notification cleanup failed", zap.Time("cutoff", cutoff), zap.Error(err))
		return 0, err
	}
	s.logger.Info("notification cleanup finished", zap.Time("cutoff", cutoff), zap.Int64("deleted", deleted))
	return deleted, nil
}
