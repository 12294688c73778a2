package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"chainScope/internal/config"
	"chainScope/internal/decoder"
	"chainScope/internal/indexer"
	"chainScope/internal/intake"
	"chainScope/internal/notify"
	"chainScope/internal/store"
)

func main() {
	root := &cobra.Command{
		Use:          "sidecar",
		Short:        "Chain indexing sidecar",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the ingestion loop",
		RunE:  runSidecar,
	}

	runCmd.Flags().String("pg-host", "localhost", "Postgres host")
	runCmd.Flags().Uint32("pg-port", 5432, "Postgres port")
	runCmd.Flags().String("pg-database", "postgres", "Postgres database")
	runCmd.Flags().String("pg-user", "postgres", "Postgres user")
	runCmd.Flags().String("pg-password", "", "Postgres password")
	runCmd.Flags().String("pg-schema", "public", "Postgres schema")
	runCmd.Flags().String("node-env", "development", "environment (production, development, test)")
	runCmd.Flags().String("chain-id", "mainnet", "chain id (mainnet, testnet)")
	runCmd.Flags().String("source", "-", "node event JSONL source, - for stdin")
	runCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	runCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	runCmd.Flags().String("decode-errors", "./data/decode_errors.jsonl", "decode errors JSONL")
	runCmd.Flags().Int("max-retries", 5, "maximum transient retry attempts")
	runCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	runCmd.Flags().Int("subscriber-buffer", 256, "notifier queue depth per subscriber")
	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(runCmd)
	root.AddCommand(newMigrateCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runSidecar(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.New(ctx, cfg.DSN(), logger)
	if err != nil {
		return fmt.Errorf("connect store: %w", err)
	}
	defer db.Close()

	notifier := notify.New(logger)
	defer notifier.Close()

	checkpoint := intake.NewCheckpointStore(cfg.Checkpoint, cfg.CheckpointEnabled)
	journal := intake.NewJournal(cfg.DecodeErrors)

	ix := indexer.New(indexer.Config{
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		Checkpoint:   checkpoint,
		Journal:      journal,
	}, storageAdapter{db}, decoder.New(cfg.Chain), notifier, logger)

	var fromOffset uint64
	if cp, ok, err := checkpoint.Load(); err != nil {
		return err
	} else if ok {
		fromOffset = cp.LastAppliedOffset
		logger.Info("resume from checkpoint", zap.Uint64("last_applied_offset", fromOffset))
	}

	source := intake.NewSource(cfg.Source, logger)

	logger.Info("sidecar start",
		zap.String("pg_host", cfg.PGHost),
		zap.String("pg_database", cfg.PGDatabase),
		zap.String("pg_schema", cfg.PGSchema),
		zap.String("chain_id", string(cfg.Chain)),
		zap.String("source", cfg.Source),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
		zap.Int("max_retries", cfg.MaxRetries),
	)

	return runLoop(ctx, source, ix, fromOffset, logger)
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
