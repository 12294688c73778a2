package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/jackc/pgx/v5"

	"chainScope/internal/model"
)

type scanner interface {
	Scan(dest ...any) error
}

func scanBlock(row scanner) (*model.Block, error) {
	var (
		b      model.Block
		height int64
		burn   int64
	)
	var blockHash, indexHash, parentIndexHash, parentHash, parentMicro []byte
	err := row.Scan(&blockHash, &indexHash, &parentIndexHash, &parentHash, &parentMicro, &height, &burn, &b.Canonical)
	if err != nil {
		return nil, fmt.Errorf("scan block: %w", err)
	}
	b.BlockHash = blockHash
	b.IndexBlockHash = indexHash
	b.ParentIndexBlockHash = parentIndexHash
	b.ParentBlockHash = parentHash
	b.ParentMicroblock = parentMicro
	b.BlockHeight = uint64(height)
	b.BurnBlockTime = uint64(burn)
	return &b, nil
}

const blockColumns = `block_hash, index_block_hash, parent_index_block_hash, parent_block_hash,
	parent_microblock, block_height, burn_block_time, canonical`

// GetBlockByHash returns the canonical block with the given content hash.
func (s *Store) GetBlockByHash(ctx context.Context, blockHash []byte) (*model.Block, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+blockColumns+`
		FROM blocks
		WHERE block_hash = $1 AND canonical = true
		LIMIT 1
	`, blockHash)
	b, err := scanBlock(row)
	if err != nil {
		if unwrapNoRows(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

// ListBlocks pages the canonical chain from the tip downward and returns the
// total canonical block count.
func (s *Store) ListBlocks(ctx context.Context, limit, offset int) ([]*model.Block, int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+blockColumns+`, COUNT(*) OVER() AS total
		FROM blocks
		WHERE canonical = true
		ORDER BY block_height DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list blocks: %w", err)
	}
	defer rows.Close()

	var (
		out   []*model.Block
		total int64
	)
	for rows.Next() {
		var (
			b      model.Block
			height int64
			burn   int64
		)
		var blockHash, indexHash, parentIndexHash, parentHash, parentMicro []byte
		if err := rows.Scan(&blockHash, &indexHash, &parentIndexHash, &parentHash, &parentMicro,
			&height, &burn, &b.Canonical, &total); err != nil {
			return nil, 0, fmt.Errorf("scan block: %w", err)
		}
		b.BlockHash = blockHash
		b.IndexBlockHash = indexHash
		b.ParentIndexBlockHash = parentIndexHash
		b.ParentBlockHash = parentHash
		b.ParentMicroblock = parentMicro
		b.BlockHeight = uint64(height)
		b.BurnBlockTime = uint64(burn)
		out = append(out, &b)
	}
	return out, total, rows.Err()
}

// GetBlockTxIDs returns the canonical tx ids of a block in tx_index order.
func (s *Store) GetBlockTxIDs(ctx context.Context, indexBlockHash []byte) ([]hexutil.Bytes, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tx_id FROM txs
		WHERE index_block_hash = $1 AND canonical = true
		ORDER BY tx_index ASC
	`, indexBlockHash)
	if err != nil {
		return nil, fmt.Errorf("block tx ids: %w", err)
	}
	defer rows.Close()

	var out []hexutil.Bytes
	for rows.Next() {
		var id []byte
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan tx id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

const txColumns = `tx_id, tx_index, index_block_hash, block_hash, block_height, burn_block_time,
	type_id, status, canonical, post_conditions, fee_rate, sender_address, origin_hash_mode, sponsored,
	token_transfer_recipient_address, token_transfer_amount, token_transfer_memo,
	smart_contract_contract_id, smart_contract_source_code,
	contract_call_contract_id, contract_call_function_name, contract_call_function_args,
	poison_microblock_header_1, poison_microblock_header_2, coinbase_payload`

func scanTx(row scanner, extra ...any) (*model.Tx, error) {
	var (
		tx             model.Tx
		txID           []byte
		txIndex        int32
		indexHash      []byte
		blockHash      []byte
		height         int64
		burn           int64
		typeID         int16
		status         int16
		postConditions []byte
		feeRate        int64
		hashMode       int16

		ttRecipient *string
		ttAmount    *int64
		ttMemo      []byte
		scID        *string
		scSource    *string
		ccID        *string
		ccFn        *string
		ccArgs      []byte
		pmHeader1   []byte
		pmHeader2   []byte
		cbPayload   []byte
	)
	dest := []any{
		&txID, &txIndex, &indexHash, &blockHash, &height, &burn,
		&typeID, &status, &tx.Canonical, &postConditions, &feeRate, &tx.SenderAddress, &hashMode, &tx.Sponsored,
		&ttRecipient, &ttAmount, &ttMemo,
		&scID, &scSource,
		&ccID, &ccFn, &ccArgs,
		&pmHeader1, &pmHeader2, &cbPayload,
	}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, fmt.Errorf("scan tx: %w", err)
	}

	tx.TxID = txID
	tx.TxIndex = uint32(txIndex)
	tx.IndexBlockHash = indexHash
	tx.BlockHash = blockHash
	tx.BlockHeight = uint64(height)
	tx.BurnBlockTime = uint64(burn)
	tx.TypeID = model.TxTypeID(typeID)
	tx.Status = model.TxStatus(status)
	tx.PostConditions = postConditions
	tx.FeeRate = uint64(feeRate)
	tx.OriginHashMode = uint8(hashMode)

	switch tx.TypeID {
	case model.TxTypeTokenTransfer:
		tx.TokenTransfer = &model.TokenTransferPayload{Memo: ttMemo}
		if ttRecipient != nil {
			tx.TokenTransfer.RecipientAddress = *ttRecipient
		}
		if ttAmount != nil {
			tx.TokenTransfer.Amount = uint64(*ttAmount)
		}
	case model.TxTypeSmartContract:
		tx.SmartContract = &model.SmartContractPayload{}
		if scID != nil {
			tx.SmartContract.ContractID = *scID
		}
		if scSource != nil {
			tx.SmartContract.SourceCode = *scSource
		}
	case model.TxTypeContractCall:
		tx.ContractCall = &model.ContractCallPayload{FunctionArgs: ccArgs}
		if ccID != nil {
			tx.ContractCall.ContractID = *ccID
		}
		if ccFn != nil {
			tx.ContractCall.FunctionName = *ccFn
		}
	case model.TxTypePoisonMicroblock:
		tx.PoisonMicroblock = &model.PoisonMicroblockPayload{
			MicroblockHeader1: pmHeader1,
			MicroblockHeader2: pmHeader2,
		}
	case model.TxTypeCoinbase:
		tx.Coinbase = &model.CoinbasePayload{Payload: cbPayload}
	}
	return &tx, nil
}

// GetTxByID returns the canonical transaction with the given id.
func (s *Store) GetTxByID(ctx context.Context, txID []byte) (*model.Tx, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+txColumns+`
		FROM txs
		WHERE tx_id = $1 AND canonical = true
		LIMIT 1
	`, txID)
	tx, err := scanTx(row)
	if err != nil {
		if unwrapNoRows(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return tx, true, nil
}

// ListTxs pages canonical transactions newest first, optionally filtered by
// payload type.
func (s *Store) ListTxs(ctx context.Context, limit, offset int, typeFilter []model.TxTypeID) ([]*model.Tx, int64, error) {
	filter := make([]int16, 0, len(typeFilter))
	for _, t := range typeFilter {
		filter = append(filter, int16(t))
	}

	query := `
		SELECT ` + txColumns + `, COUNT(*) OVER() AS total
		FROM txs
		WHERE canonical = true`
	args := []any{}
	if len(filter) > 0 {
		query += ` AND type_id = ANY($3)`
		args = append(args, limit, offset, filter)
	} else {
		args = append(args, limit, offset)
	}
	query += `
		ORDER BY block_height DESC, tx_index DESC
		LIMIT $1 OFFSET $2`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list txs: %w", err)
	}
	defer rows.Close()

	var (
		out   []*model.Tx
		total int64
	)
	for rows.Next() {
		tx, err := scanTx(rows, &total)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, tx)
	}
	return out, total, rows.Err()
}

// GetAddressTxs pages canonical transactions where the address is the sender
// or a token transfer recipient, newest first, with a windowed total.
func (s *Store) GetAddressTxs(ctx context.Context, address string, limit, offset int) ([]*model.Tx, int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+txColumns+`, COUNT(*) OVER() AS total
		FROM txs
		WHERE canonical = true
		  AND (sender_address = $1 OR token_transfer_recipient_address = $1)
		ORDER BY block_height DESC, tx_index DESC
		LIMIT $2 OFFSET $3
	`, address, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("address txs: %w", err)
	}
	defer rows.Close()

	var (
		out   []*model.Tx
		total int64
	)
	for rows.Next() {
		tx, err := scanTx(rows, &total)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, tx)
	}
	return out, total, rows.Err()
}

// GetTxEvents returns a transaction's events across all four kinds, merged
// and sorted by event_index. Rows are matched on tx id and index block hash
// only; the canonical flag is not filtered, so the events of a non-canonical
// block are returned as well.
func (s *Store) GetTxEvents(ctx context.Context, txID, indexBlockHash []byte) ([]model.TxEvent, error) {
	var events []model.TxEvent

	stx, err := s.txStxEvents(ctx, txID, indexBlockHash)
	if err != nil {
		return nil, err
	}
	events = append(events, stx...)

	ft, err := s.txFtEvents(ctx, txID, indexBlockHash)
	if err != nil {
		return nil, err
	}
	events = append(events, ft...)

	nft, err := s.txNftEvents(ctx, txID, indexBlockHash)
	if err != nil {
		return nil, err
	}
	events = append(events, nft...)

	logs, err := s.txContractLogs(ctx, txID, indexBlockHash)
	if err != nil {
		return nil, err
	}
	events = append(events, logs...)

	sort.Slice(events, func(i, j int) bool { return events[i].EventIdx() < events[j].EventIdx() })
	return events, nil
}

func unwrapNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
