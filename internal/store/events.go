package store

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	"chainScope/internal/model"
)

func (s *Store) txStxEvents(ctx context.Context, txID, indexBlockHash []byte) ([]model.TxEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_index, tx_id, tx_index, block_height, index_block_hash,
		       canonical, asset_event_type_id, sender, recipient, amount
		FROM stx_events
		WHERE tx_id = $1 AND index_block_hash = $2
	`, txID, indexBlockHash)
	if err != nil {
		return nil, fmt.Errorf("tx stx events: %w", err)
	}
	defer rows.Close()

	var out []model.TxEvent
	for rows.Next() {
		var (
			e          model.StxEvent
			eventIndex int64
			txIndex    int32
			height     int64
			eventType  int16
			sender     *string
			recipient  *string
			amount     int64
			id         []byte
			indexHash  []byte
		)
		if err := rows.Scan(&eventIndex, &id, &txIndex, &height, &indexHash,
			&e.Canonical, &eventType, &sender, &recipient, &amount); err != nil {
			return nil, fmt.Errorf("scan stx event: %w", err)
		}
		e.EventIndex = uint32(eventIndex)
		e.TxID = id
		e.TxIndex = uint32(txIndex)
		e.BlockHeight = uint64(height)
		e.IndexBlockHash = indexHash
		e.AssetEventType = model.AssetEventType(eventType)
		e.Amount = uint64(amount)
		if sender != nil {
			e.Sender = *sender
		}
		if recipient != nil {
			e.Recipient = *recipient
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *Store) txFtEvents(ctx context.Context, txID, indexBlockHash []byte) ([]model.TxEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_index, tx_id, tx_index, block_height, index_block_hash,
		       canonical, asset_event_type_id, asset_identifier, sender, recipient, amount::text
		FROM ft_events
		WHERE tx_id = $1 AND index_block_hash = $2
	`, txID, indexBlockHash)
	if err != nil {
		return nil, fmt.Errorf("tx ft events: %w", err)
	}
	defer rows.Close()

	var out []model.TxEvent
	for rows.Next() {
		var (
			e          model.FtEvent
			eventIndex int64
			txIndex    int32
			height     int64
			eventType  int16
			sender     *string
			recipient  *string
			amount     string
			id         []byte
			indexHash  []byte
		)
		if err := rows.Scan(&eventIndex, &id, &txIndex, &height, &indexHash,
			&e.Canonical, &eventType, &e.AssetIdentifier, &sender, &recipient, &amount); err != nil {
			return nil, fmt.Errorf("scan ft event: %w", err)
		}
		parsed, err := uint256.FromDecimal(amount)
		if err != nil {
			return nil, fmt.Errorf("parse ft amount %q: %w", amount, err)
		}
		e.EventIndex = uint32(eventIndex)
		e.TxID = id
		e.TxIndex = uint32(txIndex)
		e.BlockHeight = uint64(height)
		e.IndexBlockHash = indexHash
		e.AssetEventType = model.AssetEventType(eventType)
		e.Amount = parsed
		if sender != nil {
			e.Sender = *sender
		}
		if recipient != nil {
			e.Recipient = *recipient
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *Store) txNftEvents(ctx context.Context, txID, indexBlockHash []byte) ([]model.TxEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_index, tx_id, tx_index, block_height, index_block_hash,
		       canonical, asset_event_type_id, asset_identifier, sender, recipient, value
		FROM nft_events
		WHERE tx_id = $1 AND index_block_hash = $2
	`, txID, indexBlockHash)
	if err != nil {
		return nil, fmt.Errorf("tx nft events: %w", err)
	}
	defer rows.Close()

	var out []model.TxEvent
	for rows.Next() {
		var (
			e          model.NftEvent
			eventIndex int64
			txIndex    int32
			height     int64
			eventType  int16
			sender     *string
			recipient  *string
			id         []byte
			indexHash  []byte
			value      []byte
		)
		if err := rows.Scan(&eventIndex, &id, &txIndex, &height, &indexHash,
			&e.Canonical, &eventType, &e.AssetIdentifier, &sender, &recipient, &value); err != nil {
			return nil, fmt.Errorf("scan nft event: %w", err)
		}
		e.EventIndex = uint32(eventIndex)
		e.TxID = id
		e.TxIndex = uint32(txIndex)
		e.BlockHeight = uint64(height)
		e.IndexBlockHash = indexHash
		e.AssetEventType = model.AssetEventType(eventType)
		e.Value = value
		if sender != nil {
			e.Sender = *sender
		}
		if recipient != nil {
			e.Recipient = *recipient
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *Store) txContractLogs(ctx context.Context, txID, indexBlockHash []byte) ([]model.TxEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_index, tx_id, tx_index, block_height, index_block_hash,
		       canonical, contract_identifier, topic, value
		FROM contract_logs
		WHERE tx_id = $1 AND index_block_hash = $2
	`, txID, indexBlockHash)
	if err != nil {
		return nil, fmt.Errorf("tx contract logs: %w", err)
	}
	defer rows.Close()

	var out []model.TxEvent
	for rows.Next() {
		var (
			e          model.ContractLog
			eventIndex int64
			txIndex    int32
			height     int64
			id         []byte
			indexHash  []byte
			value      []byte
		)
		if err := rows.Scan(&eventIndex, &id, &txIndex, &height, &indexHash,
			&e.Canonical, &e.ContractIdentifier, &e.Topic, &value); err != nil {
			return nil, fmt.Errorf("scan contract log: %w", err)
		}
		e.EventIndex = uint32(eventIndex)
		e.TxID = id
		e.TxIndex = uint32(txIndex)
		e.BlockHeight = uint64(height)
		e.IndexBlockHash = indexHash
		e.Value = value
		out = append(out, &e)
	}
	return out, rows.Err()
}
