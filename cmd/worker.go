package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/quillon/docresearch/config"
	"github.com/quillon/docresearch/internal/provider"
	"github.com/quillon/docresearch/internal/research"
	"github.com/quillon/docresearch/internal/store"
	"github.com/quillon/docresearch/internal/vectorstore"
	"github.com/quillon/docresearch/internal/worker"
)

func workerCMD() *cobra.Command {
	var cfgPath string
	var cmd = &cobra.Command{
		Use:   "worker",
		Short: "Run a standalone research worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			dsn, err := cfg.Postgres.DSN()
			if err != nil {
				return err
			}
			st, err := store.NewWithDSN(ctx, dsn)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}

			if cfg.Redis.Host == "" || cfg.Redis.Port == "" {
				return fmt.Errorf("redis not configured (redis.host/port)")
			}
			rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr(), Password: cfg.Redis.Password, DB: cfg.Redis.DB})
			if err := rdb.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis ping: %w", err)
			}
			defer func() { _ = rdb.Close() }()

			chunks, err := vectorstore.NewClient(cfg.VectorStore)
			if err != nil {
				return err
			}

			name := fmt.Sprintf("worker-%s", uuid.NewString()[:8])
			logger := log.New(os.Stdout, "["+name+"] ", log.LstdFlags)
			orch := research.NewOrchestrator(logger, st, st, chunks, nil, provider.Options{
				Timeout:     cfg.Research.ProviderTimeout,
				MaxTokens:   cfg.Research.MaxTokens,
				Temperature: cfg.Research.Temperature,
			})

			runner := worker.NewRunner(logger, rdb, cfg.Redis.TriggerList, orch)
			return runner.Start(ctx)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config)")

	return cmd
}
