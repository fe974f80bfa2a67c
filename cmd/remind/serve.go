package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/remind/internal/auth"
	"github.com/dukerupert/remind/internal/backup"
	"github.com/dukerupert/remind/internal/billing"
	"github.com/dukerupert/remind/internal/categorize"
	"github.com/dukerupert/remind/internal/config"
	"github.com/dukerupert/remind/internal/database"
	"github.com/dukerupert/remind/internal/middleware"
	"github.com/dukerupert/remind/internal/notify"
	"github.com/dukerupert/remind/internal/notify/email"
	"github.com/dukerupert/remind/internal/notify/push"
	"github.com/dukerupert/remind/internal/notify/sms"
	"github.com/dukerupert/remind/internal/realtime"
	"github.com/dukerupert/remind/internal/server"
	"github.com/dukerupert/remind/internal/voice"
)

func serve(cfg config.Application) error {
	logger := slog.Default()

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	stores := server.NewStores(db)
	hub := realtime.NewHub(logger.With("component", "websocket"))
	categorizer := categorize.New(0)

	pushSvc := push.NewService(cfg.Push.VAPIDPublicKey, cfg.Push.VAPIDPrivateKey, cfg.Push.Subject)
	dispatcher := notify.NewDispatcher(stores.History, logger.With("component", "dispatch"),
		notify.NewPushChannel(pushSvc, stores.Push, logger.With("component", "push")),
		notify.NewEmailChannel(email.NewClient(cfg.Email.PostmarkToken, cfg.Email.From)),
		notify.NewSMSChannel(sms.NewClient(cfg.SMS.AccountSID, cfg.SMS.AuthToken, cfg.SMS.From)),
	)
	for _, ch := range []string{"push", "email", "sms"} {
		if !dispatcher.Configured(ch) {
			logger.Warn("notification channel not configured", "channel", ch)
		}
	}

	billingClient := billing.NewClient(billing.Config{
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		PriceID:       cfg.Stripe.PriceID,
		BaseURL:       cfg.Server.BaseURL,
	})
	if !billingClient.Configured() {
		logger.Warn("stripe not configured, billing endpoints disabled")
	}

	var limiter middleware.Limiter = middleware.NewRateLimiter()
	if cfg.RateLimit.Backend == "sqlite" {
		limiter = stores.RateLimit
	}

	srv := server.New(cfg, db, stores, server.Services{
		Tokens:      auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		Hub:         hub,
		Categorizer: categorizer,
		Push:        pushSvc,
		Dispatcher:  dispatcher,
		Billing:     billingClient,
		Voice:       voice.NewService(stores.Users, stores.Events, categorizer, hub, cfg.Voice.Triggers, logger.With("component", "voice")),
		Limiter:     limiter,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheduler := notify.NewScheduler(stores.Reminders, dispatcher, hub, cfg.Scheduler.Interval, logger.With("component", "scheduler"))
	scheduler.Start(ctx)
	defer scheduler.Stop()

	backups := backup.NewManager(backupConfig(cfg), db, stores.Backups, logger.With("component", "backup"))
	backups.Start(ctx)
	defer backups.Stop()

	// Expire rate limit counters
	go func() {
		ticker := time.NewTicker(cfg.RateLimit.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				limiter.Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", httpServer.Addr, "base_url", cfg.Server.BaseURL)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func backupConfig(cfg config.Application) backup.Config {
	return backup.Config{
		S3: backup.S3Config{
			Endpoint:  cfg.Backup.S3Endpoint,
			Bucket:    cfg.Backup.S3Bucket,
			Region:    cfg.Backup.S3Region,
			AccessKey: cfg.Backup.S3AccessKey,
			SecretKey: cfg.Backup.S3SecretKey,
		},
		Passphrase: cfg.Backup.Passphrase,
		Interval:   cfg.Backup.Interval,
		Retention:  cfg.Backup.Retention,
	}
}
