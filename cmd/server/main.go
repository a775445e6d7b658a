package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"botsmith/internal/api"
	"botsmith/internal/config"
	"botsmith/internal/conversation"
	"botsmith/internal/crypto"
	"botsmith/internal/metrics"
	"botsmith/internal/providers/registry"
	"botsmith/internal/queue"
	"botsmith/internal/ratelimit"
	"botsmith/internal/relay"
	"botsmith/internal/storage"
	"botsmith/internal/telegram"
	"botsmith/internal/worker"
)

func main() {
	rotateKeys := flag.Bool("rotate-keys", false, "re-encrypt stored owner contacts under the current master key and exit")
	flag.Parse()

	// a missing .env is fine; the environment may already be populated
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setupLogger(cfg.Log.Level)
	log.Info().
		Str("addr", cfg.HTTP.ListenAddr).
		Str("db_driver", cfg.DB.Driver).
		Str("session_store", cfg.Session.Store).
		Bool("telegram", cfg.Telegram.Enabled()).
		Msg("starting botsmith")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cryptoManager, err := crypto.NewManager(cfg.Crypto.CurrentKeyID, cfg.Crypto.Keys)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize crypto manager")
	}

	store, err := storage.Open(ctx, storage.Options{
		Driver:      cfg.DB.Driver,
		DSN:         cfg.DB.DSN,
		AutoMigrate: cfg.DB.AutoMigrate,
		PublicURL:   cfg.HTTP.PublicURL,
		Crypto:      cryptoManager,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize storage")
	}
	defer store.Close()

	if *rotateKeys {
		n, err := store.RotateOwnerContacts(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("key rotation failed")
		}
		log.Info().Int("rows", n).Str("key_id", cryptoManager.CurrentKeyID()).Msg("owner contacts re-encrypted")
		return
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Msg("failed to connect redis")
		}
		defer rdb.Close()
	}

	m := metrics.Global()

	gateway, err := registry.NewGateway(registry.BuildOptions{
		LLM:        cfg.LLM,
		HTTPClient: &http.Client{Timeout: cfg.LLM.Timeout},
	}, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build provider gateway")
	}
	for _, p := range gateway.ListProviders() {
		log.Info().Str("provider", p.ID).Bool("available", p.Available).Msg("llm provider registered")
	}

	var sessions conversation.SessionStore
	if cfg.Session.Store == config.SessionStoreRedis {
		sessions = conversation.NewRedisStore(rdb, cfg.Session.TTL)
	} else {
		mem := conversation.NewMemoryStore(cfg.Session.TTL)
		go mem.Run(ctx, cfg.Session.SweepInterval)
		sessions = mem
	}
	wizard := conversation.NewManager(sessions, store, conversation.ManagerConfig{
		DefaultModel:   cfg.Chatbot.DefaultModel,
		DefaultOwnerID: cfg.Chatbot.DefaultOwnerID,
	}, log.Logger)

	chat := relay.NewChatService(store, gateway, relay.ServiceConfig{
		Base:         ctx,
		LLMTimeout:   cfg.LLM.Timeout,
		DefaultModel: cfg.Chatbot.DefaultModel,
	}, log.Logger)

	var limiter *ratelimit.Limiter
	wsCfg := relay.HandlerConfig{
		Base:           ctx,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	}
	if cfg.Rate.PerHour > 0 {
		limiter = ratelimit.New(rdb, cfg.Rate.PerHour)
		wsCfg.Limiter = limiter
	}
	wsHandler := relay.NewHandler(chat, relay.NewHub(log.Logger), wsCfg, log.Logger)

	errCh := make(chan error, 4)
	deps := api.Deps{
		Wizard:    wizard,
		Store:     store,
		Providers: gateway,
		WS:        wsHandler,
	}

	var updater *ext.Updater
	if cfg.Telegram.Enabled() {
		updater, err = startTelegram(ctx, cfg, rdb, store, chat, limiter, m, &deps, errCh)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to start telegram")
		}
	}

	srv := api.NewServer(deps, api.Config{
		PublicURL:      cfg.HTTP.PublicURL,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		HealthPath:     cfg.HTTP.HealthPath,
		MetricsPath:    cfg.HTTP.MetricsPath,
		DefaultOwnerID: cfg.Chatbot.DefaultOwnerID,
	}, log.Logger)
	httpServer := &http.Server{
		Addr:              cfg.HTTP.ListenAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTP.ListenAddr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("runtime error")
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if updater != nil {
		if err := updater.Stop(); err != nil {
			log.Error().Err(err).Msg("failed to stop updater")
		}
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to stop http server")
	}

	log.Info().Msg("stopped")
}

// startTelegram wires update ingress (polling, or a webhook mounted on the API
// router) and the relay worker pool.
func startTelegram(ctx context.Context, cfg *config.Config, rdb *redis.Client, store *storage.Store, chat *relay.ChatService, limiter *ratelimit.Limiter, m *metrics.Metrics, deps *api.Deps, errCh chan<- error) (*ext.Updater, error) {
	tg := cfg.Telegram
	bot, err := gotgbot.NewBot(tg.BotToken, nil)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %s", sanitizeTelegramErr(err, tg.BotToken))
	}
	log.Info().Str("bot_username", bot.User.Username).Int64("bot_id", bot.User.Id).Msg("telegram bot initialized")

	logTelegramErr := func(err error) {
		log.Error().Str("component", "telegram").Msg(sanitizeTelegramErr(err, tg.BotToken))
	}

	jobQueue := queue.NewStreamQueue(rdb, tg.QueueStream, tg.QueueGroup, tg.ConsumerName, tg.QueueBlock)
	if err := jobQueue.EnsureGroup(ctx); err != nil {
		return nil, err
	}

	dispatcher := ext.NewDispatcher(&ext.DispatcherOpts{
		MaxRoutines:      100,
		UnhandledErrFunc: logTelegramErr,
		Processor: telegram.Processor{
			Dedupe:  ratelimit.NewDeduplicator(rdb, cfg.Redis.UpdateTTL),
			Metrics: m,
			Logger:  log.Logger,
		},
	})
	service := telegram.NewService(telegram.Config{
		Chatbots:       store,
		Queue:          jobQueue,
		RateLimiter:    limiter,
		Redis:          rdb,
		Logger:         log.Logger,
		Metrics:        m,
		BotUsername:    bot.User.Username,
		DefaultOwnerID: cfg.Chatbot.DefaultOwnerID,
	})
	service.Register(dispatcher)
	updater := ext.NewUpdater(dispatcher, &ext.UpdaterOpts{
		UnhandledErrFunc: logTelegramErr,
	})

	if tg.WebhookURL == "" {
		if err := updater.StartPolling(bot, &ext.PollingOpts{
			EnableWebhookDeletion: true,
			DropPendingUpdates:    true,
			GetUpdatesOpts: &gotgbot.GetUpdatesOpts{
				Timeout: 50,
				RequestOpts: &gotgbot.RequestOpts{
					Timeout: 60 * time.Second,
				},
			},
		}); err != nil {
			return nil, fmt.Errorf("start polling: %w", err)
		}
		log.Info().Msg("telegram polling started")
	} else {
		path := tg.SecretPath
		if path == "" {
			path = "telegram"
		}
		if err := updater.AddWebhook(bot, path, &ext.AddWebhookOpts{SecretToken: tg.SecretToken}); err != nil {
			return nil, fmt.Errorf("configure webhook handler: %w", err)
		}
		webhookURL := strings.TrimSuffix(tg.WebhookURL, "/") + "/" + path
		if _, err := bot.SetWebhook(webhookURL, &gotgbot.SetWebhookOpts{
			SecretToken: tg.SecretToken,
		}); err != nil {
			return nil, fmt.Errorf("set telegram webhook: %s", sanitizeTelegramErr(err, tg.BotToken))
		}
		log.Info().Str("webhook_url", webhookURL).Msg("telegram webhook registered")
		deps.Telegram = updater.GetHandlerFunc("/")
		deps.TelegramPath = path
	}

	w := worker.New(worker.Config{
		Sender:        bot,
		Replier:       chat,
		Queue:         jobQueue,
		MaxJobRetries: tg.MaxRetries,
		Logger:        log.Logger,
		Metrics:       m,
	})
	go func() {
		if err := w.Start(ctx, tg.Concurrency); err != nil && ctx.Err() == nil {
			errCh <- fmt.Errorf("relay worker failed: %w", err)
		}
	}()
	log.Info().Int("concurrency", tg.Concurrency).Str("consumer", jobQueue.Consumer()).Msg("relay worker started")

	return updater, nil
}

func setupLogger(level string) {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(parseLogLevel(level))
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func sanitizeTelegramErr(err error, token string) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if strings.TrimSpace(token) == "" {
		return msg
	}

	msg = strings.ReplaceAll(msg, token, "<redacted-token>")
	if idx := strings.Index(token, ":"); idx > 0 {
		botID := token[:idx]
		msg = strings.ReplaceAll(msg, "/bot"+botID+":", "/bot<redacted>:")
		msg = strings.ReplaceAll(msg, "bot"+botID+"/", "bot<redacted>/")
	}
	return msg
}
