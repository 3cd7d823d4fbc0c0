package fleet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"telegram-bot-hosting/internal/domain/model"
	"telegram-bot-hosting/internal/domain/ports/adapter"
	"telegram-bot-hosting/internal/domain/ports/repository"
	"telegram-bot-hosting/internal/infra/metrics"
	"telegram-bot-hosting/internal/infra/sched"
	infratg "telegram-bot-hosting/internal/infra/telegram"
	"telegram-bot-hosting/internal/usecase"
)

const stopWait = 5 * time.Second

type handle struct {
	runtime     *Runtime
	cancel      context.CancelFunc
	done        chan struct{}
	fingerprint string
}

// Supervisor keeps one Runtime per runnable bot. Reconcile converges the
// running set against the store: spawns newcomers, stops vanished rows and
// pushes config changes into live runtimes without restarting them.
type Supervisor struct {
	bots     repository.UserBotRepository
	deps     Deps
	interval time.Duration
	log      *zerolog.Logger

	mu      sync.Mutex
	running map[string]*handle
	baseCtx context.Context
}

func NewSupervisor(bots repository.UserBotRepository, deps Deps, interval time.Duration, logger *zerolog.Logger) *Supervisor {
	compLog := logger.With().Str("component", "Supervisor").Logger()
	return &Supervisor{
		bots:     bots,
		deps:     deps,
		interval: interval,
		log:      &compLog,
		running:  map[string]*handle{},
		baseCtx:  context.Background(),
	}
}

// Run reconciles immediately, then on every tick, until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	s.log.Info().Dur("interval", s.interval).Msg("starting fleet supervisor")
	s.reconcile(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("stopping fleet supervisor")
			s.stopAll()
			return ctx.Err()
		case <-ticker.C:
			s.reconcile(ctx)
		}
	}
}

func (s *Supervisor) reconcile(ctx context.Context) {
	want, err := s.bots.ListRunnable(ctx, repository.NoTX)
	if err != nil {
		s.log.Error().Err(err).Msg("reconcile list failed")
		return
	}
	wantByID := make(map[string]*model.UserBot, len(want))
	for _, b := range want {
		wantByID[b.BotID] = b
	}

	s.mu.Lock()
	var toStop []string
	for id := range s.running {
		if _, ok := wantByID[id]; !ok {
			toStop = append(toStop, id)
		}
	}
	var toStart []*model.UserBot
	for id, b := range wantByID {
		h, ok := s.running[id]
		if !ok {
			toStart = append(toStart, b)
			continue
		}
		if fp := b.ConfigFingerprint(); fp != h.fingerprint {
			h.runtime.UpdateConfig(b)
			h.fingerprint = fp
			s.log.Info().Str("bot_id", id).Msg("config pushed")
		}
	}
	s.mu.Unlock()

	for _, id := range toStop {
		s.StopBot(id)
	}
	for _, b := range toStart {
		if err := s.StartBot(ctx, b); err != nil {
			s.log.Warn().Err(err).Str("bot_id", b.BotID).Msg("spawn failed")
		}
	}

	s.mu.Lock()
	metrics.SetBotsRunning(len(s.running))
	s.mu.Unlock()
}

// StartBot spawns a runtime for the bot. Spawn failure marks the row
// errored so reconcile does not retry it forever.
func (s *Supervisor) StartBot(ctx context.Context, bot *model.UserBot) error {
	s.mu.Lock()
	if _, ok := s.running[bot.BotID]; ok {
		s.mu.Unlock()
		return nil
	}
	base := s.baseCtx
	s.mu.Unlock()

	client, err := infratg.NewClient(bot.Token)
	if err != nil {
		if serr := s.bots.SetRunState(ctx, repository.NoTX, bot.BotID, model.BotStatusError, false); serr != nil {
			s.log.Error().Err(serr).Str("bot_id", bot.BotID).Msg("mark errored failed")
		}
		return fmt.Errorf("connect bot %s: %w", bot.BotID, err)
	}

	runCtx, cancel := context.WithCancel(base)
	rt := NewRuntime(bot, client, s.deps, s.log)
	h := &handle{runtime: rt, cancel: cancel, done: make(chan struct{}), fingerprint: bot.ConfigFingerprint()}

	s.mu.Lock()
	s.running[bot.BotID] = h
	s.mu.Unlock()

	go func() {
		defer close(h.done)
		err := rt.Run(runCtx)
		s.mu.Lock()
		delete(s.running, bot.BotID)
		s.mu.Unlock()
		if err != nil && !errors.Is(err, context.Canceled) {
			s.log.Error().Err(err).Str("bot_id", bot.BotID).Msg("runtime died")
			if serr := s.bots.SetRunState(context.Background(), repository.NoTX, bot.BotID, model.BotStatusError, false); serr != nil {
				s.log.Error().Err(serr).Str("bot_id", bot.BotID).Msg("mark errored failed")
			}
		}
	}()
	return nil
}

// StopBot cancels the runtime and waits briefly for in-flight sends.
func (s *Supervisor) StopBot(botID string) {
	s.mu.Lock()
	h, ok := s.running[botID]
	s.mu.Unlock()
	if !ok {
		return
	}
	h.cancel()
	select {
	case <-h.done:
	case <-time.After(stopWait):
		s.log.Warn().Str("bot_id", botID).Msg("runtime stop timed out")
	}
}

// RestartBot bounces one runtime, reloading its row first.
func (s *Supervisor) RestartBot(ctx context.Context, botID string) error {
	bot, err := s.bots.FindByID(ctx, repository.NoTX, botID)
	if err != nil {
		return err
	}
	s.StopBot(botID)
	return s.StartBot(ctx, bot)
}

// SenderFor resolves the live transport of a running bot for the dispatchers.
func (s *Supervisor) SenderFor(botID string) (adapter.Sender, bool) {
	s.mu.Lock()
	h, ok := s.running[botID]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	return h.runtime.Sender(), true
}

// Running reports whether a bot currently has a live runtime.
func (s *Supervisor) Running(botID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[botID]
	return ok
}

func (s *Supervisor) stopAll() {
	s.mu.Lock()
	handles := make([]*handle, 0, len(s.running))
	for _, h := range s.running {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	for _, h := range handles {
		h.cancel()
	}
	deadline := time.After(stopWait)
	for _, h := range handles {
		select {
		case <-h.done:
		case <-deadline:
			return
		}
	}
}

var (
	_ usecase.FleetController = (*Supervisor)(nil)
	_ sched.SenderResolver    = (*Supervisor)(nil)
)
