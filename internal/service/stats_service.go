package service

import (
	"context"

	"go.uber.org/zap"
)

// StatsSource exposes table totals.
type StatsSource interface {
	Stats(ctx context.Context) (users int64, referrals int64, err error)
}

// Stats is a point-in-time snapshot of the record store.
type Stats struct {
	Users     int64
	Referrals int64
}

// StatsService reports how many users and referrals the bot has recorded.
type StatsService struct {
	source StatsSource
	logger *zap.Logger
}

func NewStatsService(source StatsSource, logger *zap.Logger) *StatsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsService{source: source, logger: logger}
}

func (s *StatsService) Snapshot(ctx context.Context) (Stats, error) {
	users, referrals, err := s.source.Stats(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Users: users, Referrals: referrals}, nil
}

// LogSnapshot writes the current totals to the log.
func (s *StatsService) LogSnapshot(ctx context.Context) error {
	stats, err := s.Snapshot(ctx)
	if err != nil {
		return err
	}
	s.logger.Info("referral stats",
		zap.Int64("users", stats.Users),
		zap.Int64("referrals", stats.Referrals),
	)
	return nil
}
