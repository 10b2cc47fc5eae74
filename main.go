package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"

	"github.com/mrkagelui/metamock/handle"
	"github.com/mrkagelui/metamock/handle/inbound"
	"github.com/mrkagelui/metamock/handle/message"
	"github.com/mrkagelui/metamock/sim"
	"github.com/mrkagelui/metamock/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error("run failed", "err", err)
		os.Exit(1)
	}
	slog.Info("completed")
	os.Exit(0)
}

type config struct {
	Port            int           `envconfig:"PORT" default:"4000"`
	ServiceName     string        `envconfig:"SERVICE_NAME" default:"mock-meta-provider"`
	WebhookURL      string        `envconfig:"WEBHOOK_URL" default:"http://api:3000/webhooks/mock-meta"`
	WebhookTimeout  time.Duration `envconfig:"WEBHOOK_TIMEOUT" default:"5s"`
	FailureRate     float64       `envconfig:"FAILURE_RATE" default:"0.3"`
	DelayMaxMs      int           `envconfig:"DELAY_MAX_MS" default:"2000"`
	DuplicateRate   float64       `envconfig:"DUPLICATE_RATE" default:"0.2"`
	OutOfOrderRate  float64       `envconfig:"OUT_OF_ORDER_RATE" default:"0.15"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	LogLevel        slog.Level    `envconfig:"LOG_LEVEL" default:"info"`
}

func run() error {
	// a missing .env is fine, the environment alone is enough.
	_ = godotenv.Load()

	var cfg config
	if err := envconfig.Process("", &cfg); err != nil {
		return fmt.Errorf("processing env: %v", err)
	}
	lg := slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: cfg.LogLevel}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	simCfg := sim.NewConfig(sim.Settings{
		FailureRate:    cfg.FailureRate,
		DuplicateRate:  cfg.DuplicateRate,
		OutOfOrderRate: cfg.OutOfOrderRate,
		DelayMaxMs:     cfg.DelayMaxMs,
	})
	st := store.NewStore()
	dispatcher := inbound.NewDispatcher(simCfg, lg, cfg.WebhookURL, cfg.WebhookTimeout)

	gin.SetMode(gin.ReleaseMode)
	h := handle.NewHandler(
		lg,
		message.NewMessenger(simCfg, st, lg),
		dispatcher,
		st,
		simCfg,
		cfg.ServiceName,
	)
	srv := newServer(cfg.Port, h.Router())

	s := simCfg.Get()
	lg.Info("mock provider started",
		slog.String("service", cfg.ServiceName),
		slog.Int("port", cfg.Port),
		slog.String("webhook_url", cfg.WebhookURL),
		slog.Float64("failure_rate", s.FailureRate),
		slog.Float64("duplicate_rate", s.DuplicateRate),
		slog.Float64("out_of_order_rate", s.OutOfOrderRate),
		slog.Int("delay_max_ms", s.DelayMaxMs),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving: %v", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		lg.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %v", err)
		}
		// deliveries still waiting past the timeout die with the process.
		if err := dispatcher.Wait(shutdownCtx); err != nil {
			lg.Warn("abandoning in-flight webhooks", slog.String("err", err.Error()))
		}
		return nil
	})

	return g.Wait()
}
