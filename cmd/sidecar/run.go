package main

import (
	"context"

	"go.uber.org/zap"

	"chainScope/internal/indexer"
	"chainScope/internal/intake"
	"chainScope/internal/model"
	"chainScope/internal/store"
)

// storageAdapter narrows the concrete store to the indexer's interface.
type storageAdapter struct {
	store *store.Store
}

func (a storageAdapter) Begin(ctx context.Context) (indexer.StorageTx, error) {
	return a.store.Begin(ctx)
}

// runLoop wires the intake stream into the ingestion loop. The source
// goroutine closes the channel when the stream ends; shutdown waits for the
// in-flight batch before returning.
func runLoop(ctx context.Context, source *intake.Source, ix *indexer.Indexer, fromOffset uint64, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	messages := make(chan *model.NewBlockMessage)

	streamErr := make(chan error, 1)
	go func() {
		streamErr <- source.Stream(ctx, messages, fromOffset)
	}()

	runErr := ix.Run(ctx, messages)
	cancel()

	if err := <-streamErr; err != nil && runErr == nil && err != context.Canceled {
		return err
	}
	if runErr != nil && runErr != context.Canceled {
		return runErr
	}

	logger.Info("ingestion drained")
	return nil
}
