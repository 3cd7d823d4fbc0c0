// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"telegram-bot-hosting/internal/application"
	"telegram-bot-hosting/internal/config"
	"telegram-bot-hosting/internal/fleet"
	"telegram-bot-hosting/internal/infra/ai"
	pg "telegram-bot-hosting/internal/infra/db/postgres"
	"telegram-bot-hosting/internal/infra/logging"
	"telegram-bot-hosting/internal/infra/metrics"
	"telegram-bot-hosting/internal/infra/payment"
	red "telegram-bot-hosting/internal/infra/redis"
	"telegram-bot-hosting/internal/infra/sched"
	tele "telegram-bot-hosting/internal/infra/telegram"
	"telegram-bot-hosting/internal/infra/web"
	"telegram-bot-hosting/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "developer mode (console logs, test payments)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		stdlog.Fatalf("config: %v", err)
	}

	log := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		log.Warn().Msg("dev mode enabled")
	}
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connect failed")
	}
	defer pool.Close()
	if err := pg.Migrate(ctx, pool, log); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connect failed")
	}
	defer redisClient.Close()
	wizards := red.NewWizardStateRepo(redisClient)
	limiter := red.NewRateLimiter(redisClient)

	// ---- Repositories ----
	userRepo := pg.NewUserRepo(pool)
	botRepo := pg.NewUserBotRepo(pool)
	subRepo := pg.NewSubscriberRepo(pool)
	funnelRepo := pg.NewFunnelRepo(pool)
	scheduledRepo := pg.NewScheduledMessageRepo(pool)
	broadcastRepo := pg.NewBroadcastRepo(pool)
	convRepo := pg.NewConversationRepo(pool)
	referralRepo := pg.NewReferralRepo(pool)
	adminBroadcastRepo := pg.NewAdminBroadcastRepo(pool)
	txm := pg.NewTxManager(pool)

	// ---- AI bridge: detection order openai -> chatforyou -> protalk ----
	bridge := ai.NewBridge(log,
		ai.NewOpenAIAdapter(cfg.AI.DefaultModel),
		ai.NewChatForYouAdapter(cfg.AI.ChatForYouURL, cfg.AI.RequestTimeout),
		ai.NewProTalkAdapter(cfg.AI.ProTalkURL, cfg.AI.RequestTimeout),
	)

	// ---- Master bot transport ----
	masterClient, err := tele.NewClient(cfg.MasterBot.Token)
	if err != nil {
		log.Fatal().Err(err).Msg("master bot token rejected")
	}

	// ---- Use cases ----
	userUC := usecase.NewUserUseCase(userRepo, referralRepo, txm, cfg.Subscription.TrialEnabled, log)
	statsUC := usecase.NewStatsUseCase(userRepo, botRepo, log)
	funnelUC := usecase.NewFunnelUseCase(funnelRepo, scheduledRepo, subRepo, txm, log)
	subscriberUC := usecase.NewSubscriberUseCase(subRepo, funnelUC, log)
	broadcastUC := usecase.NewBroadcastUseCase(broadcastRepo, subRepo, txm, log)
	gateway := payment.NewRobokassaGateway(&cfg.Robokassa)

	// The facade is the owner notifier, but it needs botUC; botUC needs the
	// access gate which needs the notifier. Wire bottom-up, attach later.
	accessUC := usecase.NewAccessUseCase(userRepo, botRepo, txm, nil, cfg.Subscription.TrialDays, log)
	botUC := usecase.NewBotUseCase(botRepo, accessUC, tele.TokenProber{}, bridge, txm, log)
	paymentUC := usecase.NewPaymentUseCase(
		userRepo, botRepo, referralRepo, txm, gateway, redisClient, nil,
		cfg.Subscription.PaidDays, cfg.Subscription.TokensPerPurchase,
		cfg.Robokassa.PaymentAmount, cfg.Robokassa.TokensAmount, log,
	)
	conversationUC := usecase.NewConversationUseCase(convRepo, accessUC, bridge, log)
	adminBroadcastUC := usecase.NewAdminBroadcastUseCase(
		userRepo, adminBroadcastRepo, masterClient, cfg.Dispatch.GlobalRate, log,
	)

	facade := application.NewMasterFacade(
		masterClient, userUC, botUC, paymentUC, statsUC, adminBroadcastUC, wizards,
		cfg.MasterBot.AdminChatID, cfg.Subscription.TrialEnabled, cfg.Subscription.TrialDays, log,
	)
	accessUC.SetNotifier(facade)
	paymentUC.SetNotifier(facade)

	// ---- Fleet ----
	deps := fleet.Deps{
		Subs:          subscriberUC,
		Conversations: conversationUC,
		Funnel:        funnelUC,
		Broadcasts:    broadcastUC,
		Bots:          botUC,
		Wizards:       wizards,
		Limiter:       limiter,
	}
	supervisor := fleet.NewSupervisor(botRepo, deps, cfg.Dispatch.ReconcileInterval, log)
	botUC.SetFleet(supervisor)

	// ---- Long-lived tasks ----
	master := fleet.NewMasterRuntime(masterClient, facade, cfg.MasterBot.Workers, log)
	go func() { _ = master.Run(ctx) }()
	go func() { _ = supervisor.Run(ctx) }()

	funnelDispatcher := sched.NewFunnelDispatcher(
		scheduledRepo, funnelRepo, subRepo, supervisor,
		cfg.Dispatch.FunnelInterval, cfg.Dispatch.FunnelBatch, cfg.Dispatch.PerBotSendGap, log,
	)
	go func() { _ = funnelDispatcher.Run(ctx) }()

	broadcastDispatcher := sched.NewBroadcastDispatcher(
		broadcastRepo, broadcastUC, supervisor,
		cfg.Dispatch.BroadcastInterval, cfg.Dispatch.BroadcastBatch, cfg.Dispatch.GlobalRate, log,
	)
	go func() { _ = broadcastDispatcher.Run(ctx) }()

	expiry := sched.NewExpiryWorker(time.Hour, userRepo, facade, cfg.Subscription.TrialDays, log)
	go func() { _ = expiry.Run(ctx) }()

	server := web.NewServer(cfg.Web.Port, gateway, paymentUC, statsUC, cfg.Web.JWTSecret, log)
	go func() {
		if err := server.Run(ctx); err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("web server stopped")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	log.Info().Msg("shutdown requested")
	cancel()
	time.Sleep(2 * time.Second)
}
