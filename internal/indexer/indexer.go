package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"chainScope/internal/decoder"
	"chainScope/internal/model"
)

// Storage opens ingestion transactions.
type Storage interface {
	Begin(ctx context.Context) (StorageTx, error)
}

// StorageTx is the write surface of one ingestion transaction.
type StorageTx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	ChainTip(ctx context.Context) (model.ChainTip, bool, error)
	BlocksAt(ctx context.Context, height uint64, indexBlockHash []byte) ([]*model.Block, error)
	InsertBlock(ctx context.Context, b *model.Block) (int64, error)
	InsertTx(ctx context.Context, tx *model.Tx) error
	InsertStxEvents(ctx context.Context, events []*model.StxEvent) error
	InsertFtEvents(ctx context.Context, events []*model.FtEvent) error
	InsertNftEvents(ctx context.Context, events []*model.NftEvent) error
	InsertContractLogs(ctx context.Context, events []*model.ContractLog) error
	InsertSmartContracts(ctx context.Context, contracts []*model.SmartContract) error
	RestoreOrphanedChain(ctx context.Context, indexBlockHash []byte) (model.ReorgCounts, error)
}

// Notifier receives post-commit updates.
type Notifier interface {
	PublishBlock(b *model.Block)
	PublishTx(tx *model.Tx)
}

// Checkpointer records the last applied intake offset.
type Checkpointer interface {
	Save(offset uint64) error
}

// Journal records rejected messages.
type Journal interface {
	Append(rec model.DecodeErrorRecord) error
}

// Config holds runtime settings for the ingestion loop.
type Config struct {
	MaxRetries   int
	RetryBackoff time.Duration

	// Optional collaborators.
	Checkpoint Checkpointer
	Journal    Journal
}

// Indexer drives ingestion: one message, one committed batch, one
// notification round.
type Indexer struct {
	cfg      Config
	storage  Storage
	decoder  *decoder.Decoder
	notifier Notifier
	logger   *zap.Logger
}

// Result describes one ingestion outcome.
type Result struct {
	// Applied is false when the block was already indexed and the batch
	// committed as a no-op.
	Applied bool
	// Restored counts canonical flips performed by reorg handling.
	Restored model.ReorgCounts
}

// New builds an Indexer with its dependencies.
func New(cfg Config, storage Storage, dec *decoder.Decoder, notifier Notifier, logger *zap.Logger) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	return &Indexer{
		cfg:      cfg,
		storage:  storage,
		decoder:  dec,
		notifier: notifier,
		logger:   logger,
	}
}

// Run consumes block messages until the source closes or the context ends.
// Messages are processed strictly in arrival order; notifications for one
// batch are emitted before the next message is read.
func (ix *Indexer) Run(ctx context.Context, source <-chan *model.NewBlockMessage) error {
	if ix.storage == nil {
		return fmt.Errorf("storage is nil")
	}
	if ix.decoder == nil {
		return fmt.Errorf("decoder is nil")
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-source:
			if !ok {
				return nil
			}
			if err := ix.process(ctx, msg); err != nil {
				return err
			}
		}
	}
}

func (ix *Indexer) process(ctx context.Context, msg *model.NewBlockMessage) error {
	batch, err := ix.decoder.DecodeBlockMessage(msg)
	if err != nil {
		var de *model.DecodeError
		if errors.As(err, &de) {
			ix.logger.Error("message rejected",
				zap.Uint64("offset", msg.Offset),
				zap.Uint64("block_height", msg.BlockHeight),
				zap.Error(err),
			)
			ix.journalDecodeError(msg, err)
			return ix.saveCheckpoint(msg.Offset)
		}
		return err
	}

	res, err := ix.Ingest(ctx, batch)
	if err != nil {
		if errors.Is(err, model.ErrParentMissing) {
			ix.logger.Error("out-of-order block, waiting for replay",
				zap.Uint64("block_height", batch.Block.BlockHeight),
				zap.String("parent_index_block_hash", hexutil.Encode(batch.Block.ParentIndexBlockHash)),
			)
			return nil
		}
		return err
	}

	if !res.Applied {
		ix.logger.Debug("duplicate block ignored",
			zap.Uint64("block_height", batch.Block.BlockHeight),
			zap.String("index_block_hash", hexutil.Encode(batch.Block.IndexBlockHash)),
		)
	}
	return ix.saveCheckpoint(msg.Offset)
}

// Ingest writes one decoded batch in a single transaction, retrying transient
// store failures, then emits post-commit notifications.
func (ix *Indexer) Ingest(ctx context.Context, batch *model.BlockBatch) (Result, error) {
	var res Result
	attempt := 0
	op := func() error {
		attempt++
		r, err := ix.ingestOnce(ctx, batch)
		if err != nil {
			if model.IsTransient(err) {
				ix.logger.Warn("transient ingest failure",
					zap.Int("attempt", attempt),
					zap.Uint64("block_height", batch.Block.BlockHeight),
					zap.Error(err),
				)
				return err
			}
			return backoff.Permanent(err)
		}
		res = r
		return nil
	}

	ebo := backoff.NewExponentialBackOff()
	ebo.InitialInterval = ix.cfg.RetryBackoff
	bo := backoff.WithContext(backoff.WithMaxRetries(ebo, uint64(ix.cfg.MaxRetries)), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return Result{}, fmt.Errorf("ingest block %d: %w", batch.Block.BlockHeight, err)
	}

	if res.Applied {
		ix.notifyBatch(batch)
	}
	return res, nil
}

func (ix *Indexer) ingestOnce(ctx context.Context, batch *model.BlockBatch) (Result, error) {
	tx, err := ix.storage.Begin(ctx)
	if err != nil {
		return Result{}, err
	}
	defer tx.Rollback(ctx)

	tip, hasTip, err := tx.ChainTip(ctx)
	if err != nil {
		return Result{}, err
	}

	restored, err := ix.handleReorg(ctx, tx, batch.Block, tip, hasTip)
	if err != nil {
		return Result{}, err
	}

	canonical := !hasTip || batch.Block.BlockHeight > tip.BlockHeight
	batch.SetCanonical(canonical)

	rows, err := tx.InsertBlock(ctx, batch.Block)
	if err != nil {
		return Result{}, err
	}
	if rows == 0 {
		if err := tx.Commit(ctx); err != nil {
			return Result{}, err
		}
		return Result{Applied: false, Restored: restored}, nil
	}

	for _, btx := range batch.Txs {
		if err := tx.InsertTx(ctx, btx.Tx); err != nil {
			return Result{}, err
		}
		if err := tx.InsertStxEvents(ctx, btx.StxEvents); err != nil {
			return Result{}, err
		}
		if err := tx.InsertFtEvents(ctx, btx.FtEvents); err != nil {
			return Result{}, err
		}
		if err := tx.InsertNftEvents(ctx, btx.NftEvents); err != nil {
			return Result{}, err
		}
		if err := tx.InsertContractLogs(ctx, btx.ContractLogs); err != nil {
			return Result{}, err
		}
		if err := tx.InsertSmartContracts(ctx, btx.Contracts); err != nil {
			return Result{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Result{}, err
	}
	return Result{Applied: true, Restored: restored}, nil
}

// handleReorg decides canonicality for an incoming block. The longest known
// chain wins; ties at equal height keep the already-canonical side. When the
// incoming block extends a non-canonical branch past the tip, the whole
// branch is restored.
func (ix *Indexer) handleReorg(ctx context.Context, tx StorageTx, block *model.Block, tip model.ChainTip, hasTip bool) (model.ReorgCounts, error) {
	var counts model.ReorgCounts
	if block.BlockHeight <= 1 {
		return counts, nil
	}

	parents, err := tx.BlocksAt(ctx, block.BlockHeight-1, block.ParentIndexBlockHash)
	if err != nil {
		return counts, err
	}
	if len(parents) == 0 {
		return counts, fmt.Errorf("%w: block %d wants parent %s",
			model.ErrParentMissing, block.BlockHeight, hexutil.Encode(block.ParentIndexBlockHash))
	}
	if len(parents) > 1 {
		return counts, fmt.Errorf("%w: %d rows for parent %s",
			model.ErrSchemaCorruption, len(parents), hexutil.Encode(block.ParentIndexBlockHash))
	}

	parent := parents[0]
	if parent.Canonical {
		return counts, nil
	}

	if !hasTip || block.BlockHeight > tip.BlockHeight {
		counts, err = tx.RestoreOrphanedChain(ctx, parent.IndexBlockHash)
		if err != nil {
			return counts, err
		}
		ix.logger.Info("restored orphaned chain",
			zap.Uint64("new_tip_height", block.BlockHeight),
			zap.Int64("blocks", counts.Blocks),
			zap.Int64("txs", counts.Txs),
			zap.Int64("stx_events", counts.StxEvents),
			zap.Int64("ft_events", counts.FtEvents),
			zap.Int64("nft_events", counts.NftEvents),
			zap.Int64("contract_logs", counts.ContractLogs),
			zap.Int64("smart_contracts", counts.SmartContracts),
		)
	}
	return counts, nil
}

// notifyBatch emits post-commit updates: the block first, then transactions
// in ascending tx_index.
func (ix *Indexer) notifyBatch(batch *model.BlockBatch) {
	if ix.notifier == nil {
		return
	}
	ix.notifier.PublishBlock(batch.Block)
	for _, btx := range batch.Txs {
		ix.notifier.PublishTx(btx.Tx)
	}
}

func (ix *Indexer) journalDecodeError(msg *model.NewBlockMessage, err error) {
	if ix.cfg.Journal == nil {
		return
	}
	rec := model.DecodeErrorRecord{
		Offset:      msg.Offset,
		BlockHash:   hexutil.Encode(msg.BlockHash),
		BlockHeight: msg.BlockHeight,
		Error:       err.Error(),
	}
	if jerr := ix.cfg.Journal.Append(rec); jerr != nil {
		ix.logger.Warn("journal append failed", zap.Error(jerr))
	}
}

func (ix *Indexer) saveCheckpoint(offset uint64) error {
	if ix.cfg.Checkpoint == nil {
		return nil
	}
	if err := ix.cfg.Checkpoint.Save(offset); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}
