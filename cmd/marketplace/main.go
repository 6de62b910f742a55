package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"marketplace/internal/config"
	"marketplace/internal/domain"
	"marketplace/internal/events"
	"marketplace/internal/http/handlers"
	"marketplace/internal/ledger"
	applog "marketplace/internal/log"
	"marketplace/internal/repos"
	"marketplace/internal/services"
	"marketplace/internal/telemetry"
)

const serviceName = "marketplace"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "marketplace:", err)
		os.Exit(1)
	}
}

// run returns instead of exiting so deferred cleanup (telemetry flush, event
// sink drain, database close) always happens.
func run() (err error) {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log, err := applog.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer func() { _ = log.Sync() }()

	otelCore, _, meter, shutdownTelemetry, err := telemetry.Setup(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	defer shutdownTelemetry(context.Background())
	log = zap.New(zapcore.NewTee(log.Core(), otelCore))
	applog.SetBase(log)
	defer func() {
		if err != nil {
			log.Error("marketplace stopped", zap.Error(err))
		}
	}()

	metrics, err := telemetry.NewMetrics(meter)
	if err != nil {
		return fmt.Errorf("create metrics: %w", err)
	}

	db, err := repos.OpenDB(cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("open database %s: %w", cfg.DBDSN, err)
	}
	defer db.Close()

	seeds := repos.ParseSeedAccounts(cfg.SeedAccounts)
	if cfg.OwnerAPIKey != "" {
		seeds = append(seeds, repos.SeedAccount{Address: cfg.OwnerAddress, Key: cfg.OwnerAPIKey})
	} else {
		log.Warn("OWNER_API_KEY not set; owner routes need a seeded or registered key")
	}
	if err := repos.SeedAccounts(ctx, db, seeds); err != nil {
		return fmt.Errorf("seed accounts: %w", err)
	}

	store := repos.NewLedgerRepo(db)
	accounts := repos.NewAccountRepo(db)
	l, err := ledger.New(ctx, domain.NewAddress(cfg.OwnerAddress),
		ledger.WithStore(store),
		ledger.WithWallet(accounts),
		ledger.WithLogger(log.Named("ledger")),
		ledger.WithMetrics(metrics),
		ledger.WithDuplicatePolicy(cfg.DuplicatePolicy),
		ledger.WithStockPolicy(cfg.StockPolicy),
		ledger.WithProjectName(cfg.ProjectName),
	)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}

	if len(cfg.KafkaBrokers) > 0 {
		if err := events.EnsureTopic(ctx, cfg.KafkaBrokers[0], cfg.KafkaTopic, 3, 1); err != nil {
			log.Warn("failed to create topic (may already exist)", zap.String("topic", cfg.KafkaTopic), zap.Error(err))
		}
		sink := events.NewSink(events.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic),
			l.ProjectName(), l.Owner(), 1024, log.Named("events"), metrics)
		sink.Start(context.WithoutCancel(ctx))
		cancel := l.Subscribe(sink.Observe)
		defer func() {
			cancel()
			if err := sink.Close(); err != nil {
				log.Warn("event sink close", zap.Error(err))
			}
		}()
		log.Info("publishing ledger events", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}

	market := services.NewMarketService(l, accounts, log.Named("market"), metrics)
	deps := handlers.NewDeps(l, accounts, market, store)

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		BodyLimit:             1 << 20, // 1 MiB
		ErrorHandler:          handlers.ErrorHandler,
	})

	// ---------- Middlewares ----------
	app.Use(fiberrecover.New())
	app.Use(requestid.New())
	app.Use(otelfiber.Middleware())
	app.Use(logger.New())
	app.Use(helmet.New())
	app.Use(limiter.New(limiter.Config{
		Max:        120,
		Expiration: time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/healthz"
		},
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.global.hit", nil)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded, retry soon"})
		},
	}))

	handlers.Mount(app, deps)

	go func() {
		<-ctx.Done()
		log.Info("shutting down marketplace...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = app.ShutdownWithContext(shutdownCtx)
	}()

	addr := ":" + cfg.Port
	log.Info("marketplace listening",
		zap.String("addr", addr),
		zap.String("project", l.ProjectName()),
		zap.String("owner", l.Owner().String()),
	)
	if err := app.Listen(addr); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
