package store

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"chainScope/internal/model"
)

// ChainTip returns the highest canonical block, if any block is indexed yet.
func (t *Tx) ChainTip(ctx context.Context) (model.ChainTip, bool, error) {
	var tip model.ChainTip
	var height int64
	row := t.tx.QueryRow(ctx, `
		SELECT block_height, block_hash, index_block_hash
		FROM blocks
		WHERE canonical = true
		ORDER BY block_height DESC
		LIMIT 1
	`)
	var blockHash, indexBlockHash []byte
	if err := row.Scan(&height, &blockHash, &indexBlockHash); err != nil {
		if err == pgx.ErrNoRows {
			return tip, false, nil
		}
		return tip, false, fmt.Errorf("chain tip: %w", err)
	}
	tip.BlockHeight = uint64(height)
	tip.BlockHash = blockHash
	tip.IndexBlockHash = indexBlockHash
	return tip, true, nil
}

// BlocksAt returns the blocks at a height whose index_block_hash matches.
// Used for parent lookups; more than one row means the unique key is broken.
func (t *Tx) BlocksAt(ctx context.Context, height uint64, indexBlockHash []byte) ([]*model.Block, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT block_hash, index_block_hash, parent_index_block_hash, parent_block_hash,
		       parent_microblock, block_height, burn_block_time, canonical
		FROM blocks
		WHERE block_height = $1 AND index_block_hash = $2
	`, int64(height), indexBlockHash)
	if err != nil {
		return nil, fmt.Errorf("blocks at height %d: %w", height, err)
	}
	defer rows.Close()

	var out []*model.Block
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// MarkEntitiesCanonical flips the canonical flag on every non-block entity
// sharing the index block hash. Rows already at the target flag are left
// untouched so counts reflect actual flips.
func (t *Tx) MarkEntitiesCanonical(ctx context.Context, indexBlockHash []byte, canonical bool) (model.ReorgCounts, error) {
	var counts model.ReorgCounts

	updates := []struct {
		table string
		dest  *int64
	}{
		{"txs", &counts.Txs},
		{"stx_events", &counts.StxEvents},
		{"ft_events", &counts.FtEvents},
		{"nft_events", &counts.NftEvents},
		{"contract_logs", &counts.ContractLogs},
		{"smart_contracts", &counts.SmartContracts},
	}
	for _, u := range updates {
		tag, err := t.tx.Exec(ctx,
			fmt.Sprintf(`UPDATE %s SET canonical = $2 WHERE index_block_hash = $1 AND canonical != $2`, u.table),
			indexBlockHash, canonical,
		)
		if err != nil {
			return counts, fmt.Errorf("mark %s canonical=%t: %w", u.table, canonical, err)
		}
		*u.dest = tag.RowsAffected()
	}
	return counts, nil
}

// RestoreOrphanedChain promotes the named block to canonical, demotes any
// competing canonical block at its height, flips the entities on both sides,
// and walks toward genesis until it reaches a canonical ancestor.
func (t *Tx) RestoreOrphanedChain(ctx context.Context, indexBlockHash []byte) (model.ReorgCounts, error) {
	var counts model.ReorgCounts
	if err := t.restoreOrphanedChain(ctx, indexBlockHash, &counts); err != nil {
		return counts, err
	}
	return counts, nil
}

func (t *Tx) restoreOrphanedChain(ctx context.Context, indexBlockHash []byte, counts *model.ReorgCounts) error {
	rows, err := t.tx.Query(ctx, `
		SELECT block_height, parent_index_block_hash
		FROM blocks
		WHERE index_block_hash = $1
	`, indexBlockHash)
	if err != nil {
		return fmt.Errorf("restore lookup: %w", err)
	}
	var (
		found           int
		height          int64
		parentIndexHash []byte
	)
	for rows.Next() {
		found++
		if err := rows.Scan(&height, &parentIndexHash); err != nil {
			rows.Close()
			return fmt.Errorf("restore lookup scan: %w", err)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("restore lookup: %w", err)
	}
	if found != 1 {
		return fmt.Errorf("%w: %d blocks for index block hash %s", model.ErrSchemaCorruption, found, hexutil.Encode(indexBlockHash))
	}

	tag, err := t.tx.Exec(ctx, `
		UPDATE blocks SET canonical = true
		WHERE index_block_hash = $1 AND canonical = false
	`, indexBlockHash)
	if err != nil {
		return fmt.Errorf("restore block: %w", err)
	}
	counts.Blocks += tag.RowsAffected()

	orphanRows, err := t.tx.Query(ctx, `
		SELECT index_block_hash FROM blocks
		WHERE block_height = $1 AND canonical = true AND index_block_hash != $2
	`, height, indexBlockHash)
	if err != nil {
		return fmt.Errorf("find competing blocks: %w", err)
	}
	var orphans [][]byte
	for orphanRows.Next() {
		var hash []byte
		if err := orphanRows.Scan(&hash); err != nil {
			orphanRows.Close()
			return fmt.Errorf("scan competing block: %w", err)
		}
		orphans = append(orphans, hash)
	}
	orphanRows.Close()
	if err := orphanRows.Err(); err != nil {
		return fmt.Errorf("find competing blocks: %w", err)
	}

	for _, orphan := range orphans {
		tag, err := t.tx.Exec(ctx, `
			UPDATE blocks SET canonical = false WHERE index_block_hash = $1
		`, orphan)
		if err != nil {
			return fmt.Errorf("orphan block: %w", err)
		}
		counts.Blocks += tag.RowsAffected()

		orphanCounts, err := t.MarkEntitiesCanonical(ctx, orphan, false)
		if err != nil {
			return err
		}
		counts.Add(orphanCounts)
		t.logger.Debug("orphaned competing block",
			zap.String("index_block_hash", hexutil.Encode(orphan)),
			zap.Int64("block_height", height),
		)
	}

	restoredCounts, err := t.MarkEntitiesCanonical(ctx, indexBlockHash, true)
	if err != nil {
		return err
	}
	counts.Add(restoredCounts)

	parents, err := t.BlocksAt(ctx, uint64(height-1), parentIndexHash)
	if err != nil {
		return err
	}
	if len(parents) > 1 {
		return fmt.Errorf("%w: %d parents at height %d", model.ErrSchemaCorruption, len(parents), height-1)
	}
	if len(parents) == 1 && !parents[0].Canonical {
		return t.restoreOrphanedChain(ctx, parents[0].IndexBlockHash, counts)
	}
	return nil
}
