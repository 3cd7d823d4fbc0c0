package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"telegram-bot-hosting/internal/domain"
	"telegram-bot-hosting/internal/domain/model"
	"telegram-bot-hosting/internal/domain/ports/repository"
)

var _ SubscriberUseCase = (*subscriberUC)(nil)

// SubscriberUseCase tracks the audience of each hosted bot.
type SubscriberUseCase interface {
	// Join upserts the subscriber on first contact or join request.
	// Returning subscribers are reactivated in place.
	Join(ctx context.Context, botID string, userID, chatID int64, firstName, lastName, username string) (*model.Subscriber, bool, error)
	// Confirm enters the funnel, anchoring all step delays at now.
	Confirm(ctx context.Context, botID string, userID int64) (int, error)
	// Leave deactivates the subscriber; pending funnel rows stay and are
	// still attempted, so an actual block is recorded at send time.
	Leave(ctx context.Context, botID string, userID int64) error
	Get(ctx context.Context, botID string, userID int64) (*model.Subscriber, error)
	CountActive(ctx context.Context, botID string) (int, error)
}

type subscriberUC struct {
	subs   repository.SubscriberRepository
	funnel FunnelUseCase
	log    *zerolog.Logger
}

func NewSubscriberUseCase(subs repository.SubscriberRepository, funnel FunnelUseCase, logger *zerolog.Logger) *subscriberUC {
	return &subscriberUC{subs: subs, funnel: funnel, log: logger}
}

func (s *subscriberUC) Join(ctx context.Context, botID string, userID, chatID int64, firstName, lastName, username string) (*model.Subscriber, bool, error) {
	existing, err := s.subs.Find(ctx, repository.NoTX, botID, userID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, false, err
	}
	if existing != nil {
		changed := !existing.IsActive ||
			existing.FirstName != firstName || existing.LastName != lastName || existing.Username != username
		existing.IsActive = true
		existing.FirstName = firstName
		existing.LastName = lastName
		existing.Username = username
		if changed {
			if err := s.subs.Save(ctx, repository.NoTX, existing); err != nil {
				return nil, false, err
			}
		}
		return existing, false, nil
	}

	sub, err := model.NewSubscriber(botID, userID, chatID, firstName, lastName, username)
	if err != nil {
		return nil, false, err
	}
	if err := s.subs.Save(ctx, repository.NoTX, sub); err != nil {
		return nil, false, err
	}
	s.log.Info().Str("bot_id", botID).Int64("user_id", userID).Msg("subscriber joined")
	return sub, true, nil
}

func (s *subscriberUC) Confirm(ctx context.Context, botID string, userID int64) (int, error) {
	return s.funnel.Enter(ctx, botID, userID, time.Now())
}

func (s *subscriberUC) Leave(ctx context.Context, botID string, userID int64) error {
	return s.subs.SetActive(ctx, repository.NoTX, botID, userID, false)
}

func (s *subscriberUC) Get(ctx context.Context, botID string, userID int64) (*model.Subscriber, error) {
	return s.subs.Find(ctx, repository.NoTX, botID, userID)
}

func (s *subscriberUC) CountActive(ctx context.Context, botID string) (int, error) {
	return s.subs.CountActive(ctx, repository.NoTX, botID)
}
