package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"chainScope/internal/model"
)

// Tx is one ingestion transaction. All writes are idempotent: conflicting
// rows are left untouched so redelivered batches commit as no-ops.
type Tx struct {
	tx     pgx.Tx
	logger *zap.Logger
}

// Commit finishes the transaction and releases its connection.
func (t *Tx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

// Rollback aborts the transaction. Safe to call after Commit.
func (t *Tx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if err == nil || errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

// InsertBlock writes one block row. Returns 0 rows affected when the
// index_block_hash is already present.
func (t *Tx) InsertBlock(ctx context.Context, b *model.Block) (int64, error) {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO blocks (
			block_hash, index_block_hash, parent_index_block_hash, parent_block_hash,
			parent_microblock, block_height, burn_block_time, canonical
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (index_block_hash) DO NOTHING
	`,
		[]byte(b.BlockHash),
		[]byte(b.IndexBlockHash),
		[]byte(b.ParentIndexBlockHash),
		[]byte(b.ParentBlockHash),
		[]byte(b.ParentMicroblock),
		int64(b.BlockHeight),
		int64(b.BurnBlockTime),
		b.Canonical,
	)
	if err != nil {
		return 0, fmt.Errorf("insert block: %w", err)
	}
	return tag.RowsAffected(), nil
}

// InsertTx writes one transaction row with its payload union columns.
func (t *Tx) InsertTx(ctx context.Context, tx *model.Tx) error {
	var (
		tokenTransferRecipient *string
		tokenTransferAmount    *int64
		tokenTransferMemo      []byte
		contractID             *string
		contractSource         *string
		callContractID         *string
		callFunctionName       *string
		callFunctionArgs       []byte
		poisonHeader1          []byte
		poisonHeader2          []byte
		coinbasePayload        []byte
	)
	switch tx.TypeID {
	case model.TxTypeTokenTransfer:
		amount := int64(tx.TokenTransfer.Amount)
		tokenTransferRecipient = &tx.TokenTransfer.RecipientAddress
		tokenTransferAmount = &amount
		tokenTransferMemo = tx.TokenTransfer.Memo
	case model.TxTypeSmartContract:
		contractID = &tx.SmartContract.ContractID
		contractSource = &tx.SmartContract.SourceCode
	case model.TxTypeContractCall:
		callContractID = &tx.ContractCall.ContractID
		callFunctionName = &tx.ContractCall.FunctionName
		callFunctionArgs = tx.ContractCall.FunctionArgs
	case model.TxTypePoisonMicroblock:
		poisonHeader1 = tx.PoisonMicroblock.MicroblockHeader1
		poisonHeader2 = tx.PoisonMicroblock.MicroblockHeader2
	case model.TxTypeCoinbase:
		coinbasePayload = tx.Coinbase.Payload
	default:
		return fmt.Errorf("insert tx: unknown type id %d", tx.TypeID)
	}

	_, err := t.tx.Exec(ctx, `
		INSERT INTO txs (
			tx_id, tx_index, index_block_hash, block_hash, block_height, burn_block_time,
			type_id, status, canonical, post_conditions, fee_rate, sender_address,
			origin_hash_mode, sponsored,
			token_transfer_recipient_address, token_transfer_amount, token_transfer_memo,
			smart_contract_contract_id, smart_contract_source_code,
			contract_call_contract_id, contract_call_function_name, contract_call_function_args,
			poison_microblock_header_1, poison_microblock_header_2,
			coinbase_payload
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25
		)
		ON CONFLICT (tx_id, index_block_hash) DO NOTHING
	`,
		[]byte(tx.TxID),
		int32(tx.TxIndex),
		[]byte(tx.IndexBlockHash),
		[]byte(tx.BlockHash),
		int64(tx.BlockHeight),
		int64(tx.BurnBlockTime),
		int16(tx.TypeID),
		int16(tx.Status),
		tx.Canonical,
		[]byte(tx.PostConditions),
		int64(tx.FeeRate),
		tx.SenderAddress,
		int16(tx.OriginHashMode),
		tx.Sponsored,
		tokenTransferRecipient,
		tokenTransferAmount,
		tokenTransferMemo,
		contractID,
		contractSource,
		callContractID,
		callFunctionName,
		callFunctionArgs,
		poisonHeader1,
		poisonHeader2,
		coinbasePayload,
	)
	if err != nil {
		return fmt.Errorf("insert tx: %w", err)
	}
	return nil
}

// InsertStxEvents writes native token events in one batch.
func (t *Tx) InsertStxEvents(ctx context.Context, events []*model.StxEvent) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(`
			INSERT INTO stx_events (
				event_index, tx_id, tx_index, block_height, index_block_hash,
				canonical, asset_event_type_id, sender, recipient, amount
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (event_index, tx_id, index_block_hash) DO NOTHING
		`,
			int64(e.EventIndex),
			[]byte(e.TxID),
			int32(e.TxIndex),
			int64(e.BlockHeight),
			[]byte(e.IndexBlockHash),
			e.Canonical,
			int16(e.AssetEventType),
			nullable(e.Sender),
			nullable(e.Recipient),
			int64(e.Amount),
		)
	}
	if err := t.sendBatch(ctx, batch, len(events)); err != nil {
		return fmt.Errorf("insert stx events: %w", err)
	}
	return nil
}

// InsertFtEvents writes fungible token events in one batch. Amounts travel
// as decimal strings into numeric(78,0).
func (t *Tx) InsertFtEvents(ctx context.Context, events []*model.FtEvent) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(`
			INSERT INTO ft_events (
				event_index, tx_id, tx_index, block_height, index_block_hash,
				canonical, asset_event_type_id, asset_identifier, sender, recipient, amount
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::numeric)
			ON CONFLICT (event_index, tx_id, index_block_hash) DO NOTHING
		`,
			int64(e.EventIndex),
			[]byte(e.TxID),
			int32(e.TxIndex),
			int64(e.BlockHeight),
			[]byte(e.IndexBlockHash),
			e.Canonical,
			int16(e.AssetEventType),
			e.AssetIdentifier,
			nullable(e.Sender),
			nullable(e.Recipient),
			e.Amount.Dec(),
		)
	}
	if err := t.sendBatch(ctx, batch, len(events)); err != nil {
		return fmt.Errorf("insert ft events: %w", err)
	}
	return nil
}

// InsertNftEvents writes non-fungible token events in one batch.
func (t *Tx) InsertNftEvents(ctx context.Context, events []*model.NftEvent) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(`
			INSERT INTO nft_events (
				event_index, tx_id, tx_index, block_height, index_block_hash,
				canonical, asset_event_type_id, asset_identifier, sender, recipient, value
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (event_index, tx_id, index_block_hash) DO NOTHING
		`,
			int64(e.EventIndex),
			[]byte(e.TxID),
			int32(e.TxIndex),
			int64(e.BlockHeight),
			[]byte(e.IndexBlockHash),
			e.Canonical,
			int16(e.AssetEventType),
			e.AssetIdentifier,
			nullable(e.Sender),
			nullable(e.Recipient),
			[]byte(e.Value),
		)
	}
	if err := t.sendBatch(ctx, batch, len(events)); err != nil {
		return fmt.Errorf("insert nft events: %w", err)
	}
	return nil
}

// InsertContractLogs writes contract print events in one batch.
func (t *Tx) InsertContractLogs(ctx context.Context, events []*model.ContractLog) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(`
			INSERT INTO contract_logs (
				event_index, tx_id, tx_index, block_height, index_block_hash,
				canonical, contract_identifier, topic, value
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (event_index, tx_id, index_block_hash) DO NOTHING
		`,
			int64(e.EventIndex),
			[]byte(e.TxID),
			int32(e.TxIndex),
			int64(e.BlockHeight),
			[]byte(e.IndexBlockHash),
			e.Canonical,
			e.ContractIdentifier,
			e.Topic,
			[]byte(e.Value),
		)
	}
	if err := t.sendBatch(ctx, batch, len(events)); err != nil {
		return fmt.Errorf("insert contract logs: %w", err)
	}
	return nil
}

// InsertSmartContracts writes deployed contract rows in one batch.
func (t *Tx) InsertSmartContracts(ctx context.Context, contracts []*model.SmartContract) error {
	if len(contracts) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, c := range contracts {
		batch.Queue(`
			INSERT INTO smart_contracts (
				tx_id, contract_id, block_height, index_block_hash,
				source_code, abi, canonical
			) VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (contract_id, index_block_hash) DO NOTHING
		`,
			[]byte(c.TxID),
			c.ContractID,
			int64(c.BlockHeight),
			[]byte(c.IndexBlockHash),
			c.SourceCode,
			nullable(c.ABI),
			c.Canonical,
		)
	}
	if err := t.sendBatch(ctx, batch, len(contracts)); err != nil {
		return fmt.Errorf("insert smart contracts: %w", err)
	}
	return nil
}

func (t *Tx) sendBatch(ctx context.Context, batch *pgx.Batch, n int) error {
	br := t.tx.SendBatch(ctx, batch)
	defer br.Close()
	for i := 0; i < n; i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return br.Close()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
