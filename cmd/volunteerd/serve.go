package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/volunteerd/internal/auth"
	"github.com/dukerupert/volunteerd/internal/backup"
	"github.com/dukerupert/volunteerd/internal/broker"
	"github.com/dukerupert/volunteerd/internal/config"
	"github.com/dukerupert/volunteerd/internal/database"
	"github.com/dukerupert/volunteerd/internal/email"
	"github.com/dukerupert/volunteerd/internal/events"
	"github.com/dukerupert/volunteerd/internal/handler"
	"github.com/dukerupert/volunteerd/internal/logging"
	"github.com/dukerupert/volunteerd/internal/push"
	"github.com/dukerupert/volunteerd/internal/server"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
}

func serve(cfg *config.Config) error {
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	var publishers []events.Publisher
	if cfg.BrokerEnabled() {
		pub, err := broker.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger.With("component", "broker"))
		if err != nil {
			return fmt.Errorf("connect broker: %w", err)
		}
		defer pub.Close()
		publishers = append(publishers, pub)
	}

	mailer := email.NewClient(cfg.PostmarkToken, cfg.FromEmail, cfg.BaseURL)
	if !cfg.EmailEnabled() {
		logger.Info("email disabled, no postmark token configured")
	}

	var pushService *push.Service
	var vapid handler.VAPIDKeySource
	if cfg.PushEnabled() {
		pushService = push.NewService(cfg.Push.VAPIDPublicKey, cfg.Push.VAPIDPrivateKey, cfg.Push.Subscriber)
		vapid = pushService
	} else {
		logger.Info("push reminders disabled, no VAPID keys configured")
	}

	srv := server.New(db, server.Config{
		Tokens:         auth.NewTokens(cfg.TokenSecret),
		Mailer:         mailer,
		Publishers:     publishers,
		RSVPRateLimit:  cfg.RSVPRateLimit,
		RSVPRateWindow: cfg.RSVPRateWindow,
		OriginPatterns: []string{hostOf(cfg.BaseURL)},
		VAPID:          vapid,
	}, logger)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Background maintenance
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()
	if cfg.CompletionSweepInterval > 0 {
		go sweep(sweepCtx, srv, cfg.CompletionSweepInterval, logger)
	}
	if cfg.BackupEnabled() && cfg.Backup.Interval > 0 {
		a, err := newArchiver(cfg)
		if err != nil {
			return err
		}
		go scheduleBackups(sweepCtx, a, db, cfg.Backup.Interval, cfg.Backup.Retention, logger.With("component", "backup"))
	}
	if pushService != nil && cfg.Push.ReminderInterval > 0 {
		reminderLogger := logger.With("component", "reminders")
		reminders := push.NewReminders(pushService, srv.PushSubscriptions(), cfg.Push.ReminderLead, reminderLogger)
		go remind(sweepCtx, reminders, cfg.Push.ReminderInterval, reminderLogger)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("volunteerd starting", "addr", httpServer.Addr, "base_url", cfg.BaseURL)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("shutting down")
	sweepCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	srv.Shutdown()
	return nil
}

// sweep closes out opportunities whose end time has passed and trims the
// rate limiter.
func sweep(ctx context.Context, srv *server.Server, every time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			n, err := srv.Opportunities().MarkCompleted(ctx, now)
			if err != nil {
				logger.Error("mark completed opportunities", "error", err)
			} else if n > 0 {
				logger.Info("marked opportunities completed", "count", n)
				srv.Events().Publish(ctx, events.New(events.EntityOpportunity, events.ActionCompleted, 0, map[string]any{"count": n}))
			}
			srv.RateLimiter().Cleanup()
		case <-ctx.Done():
			return
		}
	}
}

func scheduleBackups(ctx context.Context, a *backup.Archiver, db *sql.DB, every, retention time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := a.Run(ctx, db); err != nil {
				logger.Error("scheduled backup failed", "error", err)
				continue
			}
			if retention > 0 {
				if _, err := a.Prune(ctx, retention); err != nil {
					logger.Error("prune backups", "error", err)
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func remind(ctx context.Context, r *push.Reminders, every time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			n, err := r.Tick(ctx)
			if err != nil {
				logger.Error("send reminders", "error", err)
			} else if n > 0 {
				logger.Info("sent reminders", "volunteers", n)
			}
		case <-ctx.Done():
			return
		}
	}
}
