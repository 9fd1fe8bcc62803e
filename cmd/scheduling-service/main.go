package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/medrex/booking/internal/scheduling"
	"github.com/medrex/booking/pkg/config"
	"github.com/medrex/booking/pkg/database"
	"github.com/medrex/booking/pkg/interfaces"
	"github.com/medrex/booking/pkg/logger"
	"github.com/medrex/booking/pkg/monitoring"
	"github.com/medrex/booking/pkg/types"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "scheduling-service",
		Short: "Doctor availability and booking service",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	return config.Load()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the scheduling HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			return runServer(cfg)
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the booking schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			log := logger.New(cfg.LogLevel)

			db, err := database.NewConnection(&cfg.Database, log)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			return db.CreateSchema(ctx)
		},
	}
}

func tokenCmd() *cobra.Command {
	var (
		userID string
		role   string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed development token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			actor := types.Actor{ID: userID, Role: types.UserRole(strings.ToUpper(role))}
			if actor.ID == "" || !actor.Role.Valid() {
				return fmt.Errorf("a user id and one of PATIENT, DOCTOR or ADMIN are required")
			}
			token, err := scheduling.NewTokenValidator(cfg.JWT).IssueToken(actor, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User id")
	cmd.Flags().StringVar(&role, "role", string(types.RolePatient), "User role")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	return cmd
}

func runServer(cfg *config.Config) error {
	log := logger.New(cfg.LogLevel)
	metrics := monitoring.NewMetricsCollector(scheduling.ServiceName)

	var (
		store    interfaces.Store
		dbHealth monitoring.HealthChecker
	)
	switch cfg.Store.Driver {
	case config.StoreDriverMemory:
		log.WithComponent("main").Warn("Using in-memory store; data is lost on restart")
		store = scheduling.NewMemoryStore()
	default:
		db, err := database.NewConnection(&cfg.Database, log)
		if err != nil {
			return err
		}
		if err := db.CreateSchema(context.Background()); err != nil {
			db.Close()
			return err
		}
		store = scheduling.NewRepository(db, log, metrics)
		dbHealth = monitoring.NewDatabaseHealthChecker(db.DB)
	}

	var (
		sink        interfaces.NotificationSink = scheduling.NewLogSink(log)
		redisClient *redis.Client
	)
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		sink = scheduling.NewRedisSink(redisClient, cfg.Redis.NotificationChannel)
	}

	service, err := scheduling.New(cfg, log, store, sink, scheduling.WithServiceMetrics(metrics))
	if err != nil {
		return err
	}
	if dbHealth != nil {
		service.Health().RegisterChecker("database", dbHealth)
	}
	if redisClient != nil {
		service.Health().RegisterChecker("redis", monitoring.NewPingHealthChecker(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}, true))
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- service.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.WithError(err).Error("Scheduling Service failed")
		}
		return err
	case <-quit:
	}

	log.Info("Shutting down Scheduling Service...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var errs []error
	if err := service.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		log.WithError(err).Error("Error during shutdown")
		return err
	}
	log.Info("Scheduling Service stopped")
	return nil
}
