package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"salonledger/backend/internal/aggregate"
	"salonledger/backend/internal/cache"
	"salonledger/backend/internal/config"
	"salonledger/backend/internal/httpapi"
	"salonledger/backend/internal/notify"
	"salonledger/backend/internal/service"
	"salonledger/backend/internal/store"
	"salonledger/backend/internal/store/memory"
	pgstore "salonledger/backend/internal/store/postgres"
)

var rootCmd = &cobra.Command{
	Use:          "salonledger",
	Short:        "Salon receipt ledger API",
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the postgres schema and exit",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	serveCmd.Flags().Bool("migrate", false, "Apply the postgres schema before serving")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL must be set to run migrations")
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	pg, err := pgstore.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pg.Close()

	if err := pg.Migrate(ctx); err != nil {
		return err
	}
	log.Println("schema applied")
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		return fmt.Errorf("invalid security configuration: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	migrate, _ := cmd.Flags().GetBool("migrate")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		if migrate {
			if err := pg.Migrate(ctx); err != nil {
				_ = pg.Close()
				return err
			}
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Println("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Println("repository: in-memory")
	}

	reportCache := cache.ReportCache(cache.NoopReportCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisReportCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using noop cache", err)
		} else {
			reportCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("cache: redis")
		}
	} else {
		log.Println("cache: noop")
	}

	notifier := notify.Notifier(notify.NoopNotifier{})
	if cfg.NotificationsConfigured() {
		notifier = notify.NewOneSignalNotifier(cfg.OneSignalAppID, cfg.OneSignalRESTAPIKey, cfg.OneSignalAPIURL)
		log.Println("notifications: onesignal")
	} else {
		log.Println("notifications: disabled")
	}
	dispatcher := notify.NewDispatcher(repo, notifier, time.Duration(cfg.NotifyTimeoutSeconds)*time.Second)

	reports := aggregate.NewEngine(repo, reportCache, time.Duration(cfg.ReportCacheTTLSeconds)*time.Second, loc)
	svc := service.New(repo, reports, dispatcher)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin)
	api.SetLoginRate(cfg.LoginAttemptsPerMinute)
	if cfg.MetricsEnabled {
		api.EnableMetrics()
	}

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("salon ledger listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	dispatcher.Wait()

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
	return nil
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.OneSignalAppID != "" && cfg.OneSignalRESTAPIKey == "" {
		return fmt.Errorf("ONESIGNAL_REST_API_KEY must be set when ONESIGNAL_APP_ID is")
	}
	return nil
}
