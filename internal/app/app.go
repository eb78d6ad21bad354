package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"mail-chain-analyzer/internal/cache"
	"mail-chain-analyzer/internal/config"
	"mail-chain-analyzer/internal/db"
	"mail-chain-analyzer/internal/handlers"
	"mail-chain-analyzer/internal/ingest"
	"mail-chain-analyzer/internal/logging"
	"mail-chain-analyzer/internal/mailbox"
	"mail-chain-analyzer/internal/metrics"
	"mail-chain-analyzer/internal/repository"
	"mail-chain-analyzer/internal/scheduler"
	"mail-chain-analyzer/internal/server"
)

const shutdownTimeout = 30 * time.Second

// Run initializes and starts the application
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	if err := logging.Setup(cfg.Log); err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}

	logrus.Info("Starting Mail Chain Analyzer")

	dbConn, err := db.Init(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	repo := repository.New(dbConn)

	var finder handlers.RecordFinder = repo
	if cfg.Redis.Addr != "" {
		store, err := cache.NewRedisStore(cfg.Redis)
		if err != nil {
			logrus.Warnf("Record cache disabled: %v", err)
		} else {
			defer store.Close()
			finder = cache.NewRecordCache(repo, store, cfg.Redis.TTL)
			logrus.Infof("Record cache enabled at %s", cfg.Redis.Addr)
		}
	}

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)

	orch := ingest.New(repo, ingest.Options{
		Subject: cfg.IMAP.Subject,
		Workers: cfg.Ingest.Workers,
	}, m)

	mgr := mailbox.NewManager(mailbox.NewIMAPDialer(cfg.IMAP), orch, mailbox.Options{
		Mailbox:        cfg.IMAP.Mailbox,
		ReconnectDelay: cfg.IMAP.ReconnectDelay,
	}, m)

	sched := scheduler.NewScheduler(cfg.Stats.Schedule, repo, m)

	h := handlers.NewHandlers(repo, finder, mgr, sched, handlers.Options{
		Subject:     cfg.IMAP.Subject,
		TestAddress: cfg.IMAP.DisplayAddress(),
	})
	router := server.SetupRouter(h, cfg.Server.AllowedOrigins())
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sched.RunOnce(ctx); err != nil {
		logrus.Warnf("Initial stats refresh failed: %v", err)
	}
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"mailbox": cfg.IMAP.Mailbox,
		"address": cfg.IMAP.DisplayAddress(),
		"subject": cfg.IMAP.Subject,
		"oauth2":  cfg.IMAP.UseOAuth2(),
	}).Info("Watching mailbox")

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return mgr.Run(gctx)
	})

	g.Go(func() error {
		logrus.Infof("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logrus.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := sched.Stop(); err != nil {
			logrus.Errorf("Failed to stop scheduler: %v", err)
		}
		sched.Wait()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logrus.Errorf("HTTP server shutdown error: %v", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logrus.Info("Server stopped gracefully")
	return nil
}
