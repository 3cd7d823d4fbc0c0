package usecase

import (
	"context"

	"github.com/rs/zerolog"

	"telegram-bot-hosting/internal/domain/model"
	"telegram-bot-hosting/internal/domain/ports/repository"
)

// PlatformStats is the super-admin dashboard snapshot.
type PlatformStats struct {
	Users       int `json:"users"`
	TrialUsers  int `json:"trial_users"`
	PaidUsers   int `json:"paid_users"`
	Bots        int `json:"bots"`
}

var _ StatsUseCase = (*statsUC)(nil)

type StatsUseCase interface {
	Platform(ctx context.Context) (*PlatformStats, error)
}

type statsUC struct {
	users repository.UserRepository
	bots  repository.UserBotRepository
	log   *zerolog.Logger
}

func NewStatsUseCase(users repository.UserRepository, bots repository.UserBotRepository, logger *zerolog.Logger) *statsUC {
	return &statsUC{users: users, bots: bots, log: logger}
}

func (s *statsUC) Platform(ctx context.Context) (*PlatformStats, error) {
	users, err := s.users.CountUsers(ctx, repository.NoTX)
	if err != nil {
		return nil, err
	}
	trial, err := s.users.CountByStatus(ctx, repository.NoTX, model.SubscriptionTrial)
	if err != nil {
		return nil, err
	}
	paid, err := s.users.CountByStatus(ctx, repository.NoTX, model.SubscriptionPaid)
	if err != nil {
		return nil, err
	}
	bots, err := s.bots.CountBots(ctx, repository.NoTX)
	if err != nil {
		return nil, err
	}
	return &PlatformStats{Users: users, TrialUsers: trial, PaidUsers: paid, Bots: bots}, nil
}
