// Package main contains the entrypoint for the civic reporting service.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"

	"github.com/edgard/civicbot/internal/bot"
	"github.com/edgard/civicbot/internal/bot/handlers"
	"github.com/edgard/civicbot/internal/bot/tasks"
	"github.com/edgard/civicbot/internal/budget"
	"github.com/edgard/civicbot/internal/classify"
	"github.com/edgard/civicbot/internal/config"
	"github.com/edgard/civicbot/internal/database"
	"github.com/edgard/civicbot/internal/geocode"
	"github.com/edgard/civicbot/internal/health"
	"github.com/edgard/civicbot/internal/ledger"
	"github.com/edgard/civicbot/internal/llm"
	"github.com/edgard/civicbot/internal/logger"
	"github.com/edgard/civicbot/internal/mail"
	"github.com/edgard/civicbot/internal/metrics"
	"github.com/edgard/civicbot/internal/monitor"
	"github.com/edgard/civicbot/internal/notify"
	"github.com/edgard/civicbot/internal/photo"
	"github.com/edgard/civicbot/internal/pipeline"
	"github.com/edgard/civicbot/internal/ratelimit"
	"github.com/edgard/civicbot/internal/statefile"
	"github.com/edgard/civicbot/internal/tweet"
	"github.com/edgard/civicbot/internal/twitter"
	"github.com/edgard/civicbot/internal/usage"
)

const probeTimeout = time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run wires every component, serves until a signal arrives and returns the
// process exit code.
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	slog.SetDefault(log)
	gin.SetMode(gin.ReleaseMode)
	metrics.Register()

	loc, err := cfg.AI.Location()
	if err != nil {
		log.Error("Invalid timezone", "timezone", cfg.AI.Timezone, "error", err)
		return 1
	}
	clock := clockwork.NewRealClock()

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	var state statefile.Store
	switch cfg.State.Backend {
	case "database":
		state = statefile.NewDBStore(store)
	default:
		state = statefile.NewFileStore(cfg.State.Dir)
	}

	photos, err := photo.New(ctx, cfg.Storage)
	if err != nil {
		log.Error("Failed to initialize photo storage", "backend", cfg.Storage.Backend, "error", err)
		return 1
	}

	gateway, err := llm.New(ctx, cfg.LLM, log)
	if err != nil {
		log.Error("Failed to initialize language model", "provider", cfg.LLM.Provider, "error", err)
		return 1
	}

	limiter := usage.NewLimiter(state, cfg.AI.DailyLimit, loc, clock, log)
	metrics.AIUsageUsed.Set(float64(limiter.Stats(ctx).Used))
	tracker := ratelimit.NewTracker(state, nil, clock, log)
	processed := ledger.New(state, cfg.Monitor.LedgerRetention, clock)
	geocoder := geocode.NewClient(cfg.Geocoder, clock, log)
	classifier := classify.New(gateway, limiter, cfg.LLM.Timeout, log)

	var notifier pipeline.Notifier
	if transport, err := mail.New(cfg.Email); err != nil {
		if cfg.Email.Enabled {
			log.Warn("Email enabled but transport unavailable", "error", err)
		}
	} else {
		notifier = notify.New(cfg.Email, transport, gateway, photos, cfg.LLM.Timeout, log)
	}

	var poster tweet.Poster
	var monitorAPI monitor.API
	if client, err := twitter.NewClient(cfg.Twitter); err != nil {
		log.Info("Twitter credentials not configured", "simulate", cfg.Twitter.Simulate)
	} else {
		poster = client
		monitorAPI = client
	}

	composer := tweet.NewComposer(gateway, geocoder, cfg.Twitter.CivicHandle, cfg.Twitter.ICCCHandle,
		cfg.Twitter.StaleHandles, cfg.LLM.Timeout, log)
	publisher := tweet.NewPublisher(tweet.Options{
		Simulate:       cfg.Twitter.Simulate,
		DailyLimit:     cfg.Twitter.DailyLimit,
		Location:       loc,
		MediaMaxBytes:  cfg.Twitter.MediaMaxBytes,
		MediaMaxPixels: cfg.Twitter.MediaMaxPixels,
	}, composer, poster, tracker, store, photos, clock, log)

	pipe := pipeline.New(pipeline.Options{
		ClassificationEnabled: cfg.AI.ClassificationEnabled,
		EmailEnabled:          cfg.Email.Enabled,
		AutoTweet:             cfg.Twitter.AutoTweet,
		BackgroundTimeout:     cfg.Pipeline.BackgroundTimeout,
	}, store, classifier, notifier, publisher, clock, log)

	replyHandles := []string{cfg.Twitter.CivicHandle}
	if cfg.Twitter.ICCCHandle != "" {
		replyHandles = append(replyHandles, cfg.Twitter.ICCCHandle)
	}
	mon := monitor.New(monitor.Options{
		Handles:       cfg.Monitor.Handles,
		ReplyHandles:  replyHandles,
		RecencyWindow: cfg.Monitor.RecencyWindow,
		MaxReplies:    cfg.Monitor.MaxRepliesPerRun,
		ReplyDelay:    cfg.Monitor.ReplyDelay,
		MaxResults:    cfg.Monitor.MaxResults,
	}, monitorAPI, tracker, processed, clock, log)

	hDeps := handlers.HandlerDeps{
		Logger:   log,
		Config:   cfg,
		Store:    store,
		Photos:   photos,
		Pipeline: pipe,
		Usage:    limiter,
		Tracker:  tracker,
		Monitor:  mon,
		Budgets:  budget.NewCatalog(cfg.Budgets.Path, log),
		Health:   newHealthChecker(cfg, store, gateway, clock),
		Clock:    clock,
	}
	tDeps := tasks.TaskDeps{
		Logger:  log,
		Store:   store,
		Monitor: mon,
		Ledger:  processed,
		Tracker: tracker,
		Config:  cfg,
	}

	sched, err := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tDeps), loc, clock)
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}
	app := bot.NewBot(log, cfg, handlers.NewRouter(hDeps), sched, pipe)

	log.Info("Starting civicbot",
		"addr", cfg.Server.Addr,
		"llm_provider", cfg.LLM.Provider,
		"classification", cfg.AI.ClassificationEnabled,
		"email", cfg.Email.Enabled,
		"simulate_twitter", cfg.Twitter.Simulate,
		"auto_tweet", cfg.Twitter.AutoTweet)

	if err := app.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Service stopped due to error", "error", err)
		return 1
	}
	return 0
}

// newHealthChecker registers the dependency probes shown on /api/health.
func newHealthChecker(cfg *config.Config, store database.Store, gateway llm.Gateway, clock clockwork.Clock) *health.Checker {
	checker := health.NewChecker(probeTimeout, clock)
	checker.Add("database", store.Ping)

	var smtpProbe health.Probe
	if cfg.Email.Enabled && cfg.Email.Transport == "smtp" {
		smtpProbe = health.TCPProbe(net.JoinHostPort(cfg.Email.Host, strconv.Itoa(cfg.Email.Port)))
	}
	checker.Add("smtp", smtpProbe)

	var gatewayProbe health.Probe
	if p, ok := gateway.(interface{ Ping(context.Context) error }); ok {
		gatewayProbe = p.Ping
	}
	checker.Add("gateway", gatewayProbe)

	return checker
}
