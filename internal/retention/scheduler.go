// Package retention prunes persisted trigger history once a day.
package retention

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// PruneFunc deletes everything older than before and reports how many rows went.
type PruneFunc func(ctx context.Context, before time.Time) (int64, error)

type MidnightPruner struct {
	Prune     PruneFunc
	Retention time.Duration
	Timeout   time.Duration
	Logger    *zap.Logger

	now func() time.Time
}

func NewMidnightPruner(prune PruneFunc, retention time.Duration, logger *zap.Logger) *MidnightPruner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MidnightPruner{
		Prune:     prune,
		Retention: retention,
		Timeout:   time.Minute,
		Logger:    logger,
		now:       time.Now,
	}
}

// Start runs the prune once right away, then at every UTC midnight until ctx is done.
func (m *MidnightPruner) Start(ctx context.Context) {
	go func() {
		m.runOnce(ctx)

		timer := time.NewTimer(time.Until(nextMidnight(m.now())))
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
			m.runOnce(ctx)
			timer.Reset(time.Until(nextMidnight(m.now())))
		}
	}()
}

func (m *MidnightPruner) runOnce(ctx context.Context) {
	if m.Retention <= 0 {
		return
	}
	cutoff := m.now().Add(-m.Retention)

	ctx, cancel := context.WithTimeout(ctx, m.Timeout)
	defer cancel()

	n, err := m.Prune(ctx, cutoff)
	if err != nil {
		m.Logger.Warn("trigger history prune failed", zap.Time("before", cutoff), zap.Error(err))
		return
	}
	m.Logger.Info("trigger history pruned", zap.Time("before", cutoff), zap.Int64("rows", n))
}

func nextMidnight(now time.Time) time.Time {
	return now.UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
}
