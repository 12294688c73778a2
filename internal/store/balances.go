package store

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	"chainScope/internal/model"
)

// GetStxBalance aggregates canonical native token events for an address.
// Balance = received - sent; only canonical rows participate, so a reorg
// changes the result without any row deletion.
func (s *Store) GetStxBalance(ctx context.Context, address string) (model.StxBalance, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE sender = $1), 0)::text AS total_sent,
			COALESCE(SUM(amount) FILTER (WHERE recipient = $1), 0)::text AS total_received
		FROM stx_events
		WHERE canonical = true AND (sender = $1 OR recipient = $1)
	`, address)

	var sentText, receivedText string
	if err := row.Scan(&sentText, &receivedText); err != nil {
		return model.StxBalance{}, fmt.Errorf("stx balance: %w", err)
	}
	sent, received, balance, err := balanceTriple(sentText, receivedText)
	if err != nil {
		return model.StxBalance{}, fmt.Errorf("stx balance: %w", err)
	}
	return model.StxBalance{Balance: balance, TotalSent: sent, TotalReceived: received}, nil
}

// GetFtBalances aggregates canonical fungible token events for an address,
// one entry per asset identifier.
func (s *Store) GetFtBalances(ctx context.Context, address string) (map[string]model.FtBalance, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT asset_identifier,
			COALESCE(SUM(amount) FILTER (WHERE sender = $1), 0)::text AS total_sent,
			COALESCE(SUM(amount) FILTER (WHERE recipient = $1), 0)::text AS total_received
		FROM ft_events
		WHERE canonical = true AND (sender = $1 OR recipient = $1)
		GROUP BY asset_identifier
	`, address)
	if err != nil {
		return nil, fmt.Errorf("ft balances: %w", err)
	}
	defer rows.Close()

	out := make(map[string]model.FtBalance)
	for rows.Next() {
		var asset, sentText, receivedText string
		if err := rows.Scan(&asset, &sentText, &receivedText); err != nil {
			return nil, fmt.Errorf("scan ft balance: %w", err)
		}
		sent, received, balance, err := balanceTriple(sentText, receivedText)
		if err != nil {
			return nil, fmt.Errorf("ft balance %s: %w", asset, err)
		}
		out[asset] = model.FtBalance{Balance: balance, TotalSent: sent, TotalReceived: received}
	}
	return out, rows.Err()
}

// GetNftCounts aggregates canonical non-fungible token events for an address,
// one entry per asset identifier. Count = received - sent.
func (s *Store) GetNftCounts(ctx context.Context, address string) (map[string]model.NftCount, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT asset_identifier,
			COUNT(*) FILTER (WHERE sender = $1) AS total_sent,
			COUNT(*) FILTER (WHERE recipient = $1) AS total_received
		FROM nft_events
		WHERE canonical = true AND (sender = $1 OR recipient = $1)
		GROUP BY asset_identifier
	`, address)
	if err != nil {
		return nil, fmt.Errorf("nft counts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]model.NftCount)
	for rows.Next() {
		var (
			asset          string
			sent, received int64
		)
		if err := rows.Scan(&asset, &sent, &received); err != nil {
			return nil, fmt.Errorf("scan nft count: %w", err)
		}
		out[asset] = model.NftCount{Count: received - sent, TotalSent: sent, TotalReceived: received}
	}
	return out, rows.Err()
}

// GetAddressAssetEvents pages canonical asset events touching an address
// across all three asset kinds, newest first. The total counts every
// canonical asset event for the address, not just the returned page.
func (s *Store) GetAddressAssetEvents(ctx context.Context, address string, limit, offset int) ([]model.TxEvent, int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT kind, event_index, tx_id, tx_index, block_height, index_block_hash,
		       asset_event_type_id, asset_identifier, sender, recipient, amount, value,
		       COUNT(*) OVER() AS total
		FROM (
			SELECT 'stx' AS kind, event_index, tx_id, tx_index, block_height, index_block_hash,
			       asset_event_type_id, NULL::text AS asset_identifier, sender, recipient,
			       amount::text AS amount, NULL::bytea AS value
			FROM stx_events
			WHERE canonical = true AND (sender = $1 OR recipient = $1)
			UNION ALL
			SELECT 'ft', event_index, tx_id, tx_index, block_height, index_block_hash,
			       asset_event_type_id, asset_identifier, sender, recipient,
			       amount::text, NULL::bytea
			FROM ft_events
			WHERE canonical = true AND (sender = $1 OR recipient = $1)
			UNION ALL
			SELECT 'nft', event_index, tx_id, tx_index, block_height, index_block_hash,
			       asset_event_type_id, asset_identifier, sender, recipient,
			       NULL::text, value
			FROM nft_events
			WHERE canonical = true AND (sender = $1 OR recipient = $1)
		) asset_events
		ORDER BY block_height DESC, event_index DESC
		LIMIT $2 OFFSET $3
	`, address, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("address asset events: %w", err)
	}
	defer rows.Close()

	var (
		out   []model.TxEvent
		total int64
	)
	for rows.Next() {
		var (
			kind       string
			eventIndex int64
			txID       []byte
			txIndex    int32
			height     int64
			indexHash  []byte
			eventType  int16
			asset      *string
			sender     *string
			recipient  *string
			amount     *string
			value      []byte
		)
		if err := rows.Scan(&kind, &eventIndex, &txID, &txIndex, &height, &indexHash,
			&eventType, &asset, &sender, &recipient, &amount, &value, &total); err != nil {
			return nil, 0, fmt.Errorf("scan address asset event: %w", err)
		}

		event, err := buildAssetEvent(kind, eventIndex, txID, txIndex, height, indexHash,
			eventType, asset, sender, recipient, amount, value)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, event)
	}
	return out, total, rows.Err()
}

func buildAssetEvent(kind string, eventIndex int64, txID []byte, txIndex int32, height int64,
	indexHash []byte, eventType int16, asset, sender, recipient, amount *string, value []byte) (model.TxEvent, error) {

	deref := func(p *string) string {
		if p == nil {
			return ""
		}
		return *p
	}

	switch kind {
	case "stx":
		var amt uint64
		if amount != nil {
			parsed, err := uint256.FromDecimal(*amount)
			if err != nil {
				return nil, fmt.Errorf("parse stx amount %q: %w", *amount, err)
			}
			amt = parsed.Uint64()
		}
		return &model.StxEvent{
			EventIndex:     uint32(eventIndex),
			TxID:           txID,
			TxIndex:        uint32(txIndex),
			BlockHeight:    uint64(height),
			IndexBlockHash: indexHash,
			Canonical:      true,
			AssetEventType: model.AssetEventType(eventType),
			Sender:         deref(sender),
			Recipient:      deref(recipient),
			Amount:         amt,
		}, nil
	case "ft":
		amt := uint256.NewInt(0)
		if amount != nil {
			parsed, err := uint256.FromDecimal(*amount)
			if err != nil {
				return nil, fmt.Errorf("parse ft amount %q: %w", *amount, err)
			}
			amt = parsed
		}
		return &model.FtEvent{
			EventIndex:      uint32(eventIndex),
			TxID:            txID,
			TxIndex:         uint32(txIndex),
			BlockHeight:     uint64(height),
			IndexBlockHash:  indexHash,
			Canonical:       true,
			AssetEventType:  model.AssetEventType(eventType),
			AssetIdentifier: deref(asset),
			Sender:          deref(sender),
			Recipient:       deref(recipient),
			Amount:          amt,
		}, nil
	case "nft":
		return &model.NftEvent{
			EventIndex:      uint32(eventIndex),
			TxID:            txID,
			TxIndex:         uint32(txIndex),
			BlockHeight:     uint64(height),
			IndexBlockHash:  indexHash,
			Canonical:       true,
			AssetEventType:  model.AssetEventType(eventType),
			AssetIdentifier: deref(asset),
			Sender:          deref(sender),
			Recipient:       deref(recipient),
			Value:           value,
		}, nil
	default:
		return nil, fmt.Errorf("unknown asset event kind %q", kind)
	}
}

func balanceTriple(sentText, receivedText string) (sent, received, balance *uint256.Int, err error) {
	sent, err = uint256.FromDecimal(sentText)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("parse total sent %q: %w", sentText, err)
	}
	received, err = uint256.FromDecimal(receivedText)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("parse total received %q: %w", receivedText, err)
	}
	balance = new(uint256.Int).Sub(received, sent)
	return sent, received, balance, nil
}
