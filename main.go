package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngmod/internal/audit"
	"github.com/iamwavecut/ngmod/internal/bot"
	"github.com/iamwavecut/ngmod/internal/config"
	"github.com/iamwavecut/ngmod/internal/db"
	"github.com/iamwavecut/ngmod/internal/db/redis"
	"github.com/iamwavecut/ngmod/internal/db/sqlite"
	"github.com/iamwavecut/ngmod/internal/event"
	"github.com/iamwavecut/ngmod/internal/filter"
	"github.com/iamwavecut/ngmod/internal/handlers"
	"github.com/iamwavecut/ngmod/internal/i18n"
	"github.com/iamwavecut/ngmod/internal/infra"
	"github.com/iamwavecut/ngmod/internal/lifecycle"
	"github.com/iamwavecut/ngmod/internal/moderation"
	"github.com/iamwavecut/ngmod/internal/observability"
)

const serviceName = "ngmod"

func main() {
	cfg, err := config.Load()
	log.SetFormatter(&config.NbFormatter{})
	log.SetOutput(os.Stdout)
	if err != nil {
		log.WithField("error", err.Error()).Fatalln("cant load config")
	}
	log.SetLevel(log.Level(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go infra.GoRecoverable(-1, "monitor_executable", func() {
		select {
		case _, ok := <-infra.MonitorExecutable(ctx):
			if ok {
				log.Warn("executable file was modified, shutting down")
				cancel()
			}
		case <-ctx.Done():
		}
	})

	if err := run(ctx, cfg); err != nil {
		log.WithField("error", err.Error()).Errorln("bot stopped")
		cancel()
		os.Exit(1)
	}
	log.Info("bye")
}

func run(ctx context.Context, cfg config.Config) error {
	lang := cfg.DefaultLanguage
	if !i18n.Supported(lang) {
		log.WithField("lang", lang).Warn("no catalog for language, falling back to en")
		lang = "en"
	}
	log.WithField("lang", i18n.GetLanguageName(lang)).Info("moderation language")

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.WithField("error", err.Error()).Warn("cant close store")
		}
	}()

	wordsPath, err := infra.ResolvePath(cfg.DotPath, cfg.Moderation.WordsPath)
	if err != nil {
		return err
	}
	matcher, err := filter.Load(wordsPath)
	if err != nil {
		return errors.WithMessage(err, "load prohibited words")
	}
	log.WithField("terms", matcher.Len()).Info("prohibited words loaded")

	botAPI, err := api.NewBotAPI(cfg.TelegramAPIToken)
	if err != nil {
		return errors.WithMessage(err, "cant initialize bot api")
	}
	if log.Level(cfg.LogLevel) == log.TraceLevel {
		botAPI.Debug = true
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)
	app := lifecycle.NewRuntime()
	app.Register("tracing", observability.NewTracing(serviceName))

	var exec moderation.Executor = bot.NewExecutor(botAPI, cfg.Moderation.ActionTimeout, cfg.Moderation.AuditChatID)
	if cfg.AuditFile != "" {
		auditPath, err := infra.ResolvePath(cfg.DotPath, cfg.AuditFile)
		if err != nil {
			return err
		}
		if _, err := infra.EnsureDir(filepath.Dir(auditPath)); err != nil {
			return err
		}
		auditLogger, err := audit.NewFileLogger(auditPath)
		if err != nil {
			return errors.WithMessage(err, "open audit file")
		}
		journal := audit.NewJournal(exec, auditLogger)
		app.Register("audit", journal)
		exec = journal
	}
	exec = metrics.Instrument(exec)

	scheduler := event.NewScheduler()
	app.Register("scheduler", scheduler)

	authz := bot.NewAuthorizer(botAPI, botAPI.Self.ID, cfg.Moderation.OperatorID, cfg.Moderation.ActionTimeout, cfg.Moderation.AdminCacheTTL)
	engine := moderation.NewEngine(store, matcher, authz, exec, scheduler, moderation.Settings{
		MaxViolations: cfg.Moderation.MaxViolations,
		BanDuration:   cfg.Moderation.BanDuration,
		WarningTTL:    cfg.Moderation.WarningTTL,
		Language:      lang,
	}, moderation.WithObserver(metrics))

	processor := bot.NewUpdateProcessor(
		botAPI.Self.UserName,
		handlers.NewFilter(engine, exec),
		handlers.NewCommands(engine, exec),
	)
	dispatcher := bot.NewDispatcher(processor, cfg.Workers)
	app.Register("poller", bot.NewPoller(botAPI, dispatcher, cfg.PollTimeout, botAPI.Buffer))

	if cfg.MetricsAddr != "" {
		app.Register("metrics", observability.NewServer(cfg.MetricsAddr, registry))
	}

	log.WithFields(log.Fields{
		"bot":     botAPI.Self.UserName,
		"driver":  cfg.Store.Driver,
		"workers": cfg.Workers,
	}).Info("moderation bot started")
	return app.Run(ctx, cfg.ShutdownTimeout)
}

func openStore(ctx context.Context, cfg config.Config) (db.Store, error) {
	openCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	switch cfg.Store.Driver {
	case config.StoreDriverRedis:
		store, err := redis.NewRedisClient(openCtx, cfg.Store.RedisURL)
		if err != nil {
			return nil, errors.WithMessage(err, "open redis store")
		}
		return store, nil
	default:
		dir, err := infra.EnsureDir(cfg.DotPath)
		if err != nil {
			return nil, err
		}
		store, err := sqlite.NewSQLiteClient(openCtx, dir, cfg.Store.DBName)
		if err != nil {
			return nil, errors.WithMessage(err, "open sqlite store")
		}
		return store, nil
	}
}
