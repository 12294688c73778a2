package indexer

import (
	"bytes"
	"context"
	"fmt"

	"chainScope/internal/model"
)

// fakeDB mirrors the store's canonical-chain semantics in memory so the
// ingestion logic can be exercised without Postgres. Begin snapshots the
// state; Commit swaps it back in, Rollback discards it.
type fakeDB struct {
	state    *fakeState
	beginErr []error
}

type fakeState struct {
	blocks    []model.Block
	txs       []model.Tx
	stx       []model.StxEvent
	ft        []model.FtEvent
	nft       []model.NftEvent
	logs      []model.ContractLog
	contracts []model.SmartContract
}

func newFakeDB() *fakeDB {
	return &fakeDB{state: &fakeState{}}
}

func (s *fakeState) clone() *fakeState {
	c := &fakeState{}
	c.blocks = append(c.blocks, s.blocks...)
	c.txs = append(c.txs, s.txs...)
	c.stx = append(c.stx, s.stx...)
	c.ft = append(c.ft, s.ft...)
	c.nft = append(c.nft, s.nft...)
	c.logs = append(c.logs, s.logs...)
	c.contracts = append(c.contracts, s.contracts...)
	return c
}

func (db *fakeDB) Begin(ctx context.Context) (StorageTx, error) {
	if len(db.beginErr) > 0 {
		err := db.beginErr[0]
		db.beginErr = db.beginErr[1:]
		if err != nil {
			return nil, err
		}
	}
	return &fakeTx{db: db, state: db.state.clone()}, nil
}

// canonicalStxBalance sums canonical stx events the way the balance query
// does: received minus sent.
func (db *fakeDB) canonicalStxBalance(address string) int64 {
	var balance int64
	for _, e := range db.state.stx {
		if !e.Canonical {
			continue
		}
		if e.Recipient == address {
			balance += int64(e.Amount)
		}
		if e.Sender == address {
			balance -= int64(e.Amount)
		}
	}
	return balance
}

func (db *fakeDB) canonicalBlocksAtHeight(height uint64) []model.Block {
	var out []model.Block
	for _, b := range db.state.blocks {
		if b.BlockHeight == height && b.Canonical {
			out = append(out, b)
		}
	}
	return out
}

func (db *fakeDB) blockByIndexHash(hash []byte) (model.Block, bool) {
	for _, b := range db.state.blocks {
		if bytes.Equal(b.IndexBlockHash, hash) {
			return b, true
		}
	}
	return model.Block{}, false
}

type fakeTx struct {
	db    *fakeDB
	state *fakeState
	done  bool
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.db.state = t.state
	t.done = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	t.done = true
	return nil
}

func (t *fakeTx) ChainTip(ctx context.Context) (model.ChainTip, bool, error) {
	var tip model.ChainTip
	found := false
	for _, b := range t.state.blocks {
		if b.Canonical && (!found || b.BlockHeight > tip.BlockHeight) {
			tip = model.ChainTip{
				BlockHeight:    b.BlockHeight,
				BlockHash:      b.BlockHash,
				IndexBlockHash: b.IndexBlockHash,
			}
			found = true
		}
	}
	return tip, found, nil
}

func (t *fakeTx) BlocksAt(ctx context.Context, height uint64, indexBlockHash []byte) ([]*model.Block, error) {
	var out []*model.Block
	for i := range t.state.blocks {
		b := t.state.blocks[i]
		if b.BlockHeight == height && bytes.Equal(b.IndexBlockHash, indexBlockHash) {
			copied := b
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (t *fakeTx) InsertBlock(ctx context.Context, b *model.Block) (int64, error) {
	for _, existing := range t.state.blocks {
		if bytes.Equal(existing.IndexBlockHash, b.IndexBlockHash) {
			return 0, nil
		}
	}
	t.state.blocks = append(t.state.blocks, *b)
	return 1, nil
}

func (t *fakeTx) InsertTx(ctx context.Context, tx *model.Tx) error {
	for _, existing := range t.state.txs {
		if bytes.Equal(existing.TxID, tx.TxID) && bytes.Equal(existing.IndexBlockHash, tx.IndexBlockHash) {
			return nil
		}
	}
	t.state.txs = append(t.state.txs, *tx)
	return nil
}

func (t *fakeTx) InsertStxEvents(ctx context.Context, events []*model.StxEvent) error {
	for _, e := range events {
		dup := false
		for _, existing := range t.state.stx {
			if existing.EventIndex == e.EventIndex && bytes.Equal(existing.TxID, e.TxID) &&
				bytes.Equal(existing.IndexBlockHash, e.IndexBlockHash) {
				dup = true
				break
			}
		}
		if !dup {
			t.state.stx = append(t.state.stx, *e)
		}
	}
	return nil
}

func (t *fakeTx) InsertFtEvents(ctx context.Context, events []*model.FtEvent) error {
	for _, e := range events {
		t.state.ft = append(t.state.ft, *e)
	}
	return nil
}

func (t *fakeTx) InsertNftEvents(ctx context.Context, events []*model.NftEvent) error {
	for _, e := range events {
		t.state.nft = append(t.state.nft, *e)
	}
	return nil
}

func (t *fakeTx) InsertContractLogs(ctx context.Context, events []*model.ContractLog) error {
	for _, e := range events {
		t.state.logs = append(t.state.logs, *e)
	}
	return nil
}

func (t *fakeTx) InsertSmartContracts(ctx context.Context, contracts []*model.SmartContract) error {
	for _, c := range contracts {
		t.state.contracts = append(t.state.contracts, *c)
	}
	return nil
}

func (t *fakeTx) RestoreOrphanedChain(ctx context.Context, indexBlockHash []byte) (model.ReorgCounts, error) {
	var counts model.ReorgCounts
	if err := t.restore(indexBlockHash, &counts); err != nil {
		return counts, err
	}
	return counts, nil
}

func (t *fakeTx) restore(indexBlockHash []byte, counts *model.ReorgCounts) error {
	var target *model.Block
	found := 0
	for i := range t.state.blocks {
		if bytes.Equal(t.state.blocks[i].IndexBlockHash, indexBlockHash) {
			target = &t.state.blocks[i]
			found++
		}
	}
	if found != 1 {
		return fmt.Errorf("%w: %d blocks for index block hash", model.ErrSchemaCorruption, found)
	}

	if !target.Canonical {
		target.Canonical = true
		counts.Blocks++
	}

	for i := range t.state.blocks {
		sibling := &t.state.blocks[i]
		if sibling.BlockHeight == target.BlockHeight && sibling.Canonical &&
			!bytes.Equal(sibling.IndexBlockHash, indexBlockHash) {
			sibling.Canonical = false
			counts.Blocks++
			t.markEntities(sibling.IndexBlockHash, false, counts)
		}
	}

	t.markEntities(indexBlockHash, true, counts)

	for i := range t.state.blocks {
		parent := &t.state.blocks[i]
		if parent.BlockHeight == target.BlockHeight-1 &&
			bytes.Equal(parent.IndexBlockHash, target.ParentIndexBlockHash) && !parent.Canonical {
			return t.restore(parent.IndexBlockHash, counts)
		}
	}
	return nil
}

func (t *fakeTx) markEntities(indexBlockHash []byte, canonical bool, counts *model.ReorgCounts) {
	for i := range t.state.txs {
		if bytes.Equal(t.state.txs[i].IndexBlockHash, indexBlockHash) && t.state.txs[i].Canonical != canonical {
			t.state.txs[i].Canonical = canonical
			counts.Txs++
		}
	}
	for i := range t.state.stx {
		if bytes.Equal(t.state.stx[i].IndexBlockHash, indexBlockHash) && t.state.stx[i].Canonical != canonical {
			t.state.stx[i].Canonical = canonical
			counts.StxEvents++
		}
	}
	for i := range t.state.ft {
		if bytes.Equal(t.state.ft[i].IndexBlockHash, indexBlockHash) && t.state.ft[i].Canonical != canonical {
			t.state.ft[i].Canonical = canonical
			counts.FtEvents++
		}
	}
	for i := range t.state.nft {
		if bytes.Equal(t.state.nft[i].IndexBlockHash, indexBlockHash) && t.state.nft[i].Canonical != canonical {
			t.state.nft[i].Canonical = canonical
			counts.NftEvents++
		}
	}
	for i := range t.state.logs {
		if bytes.Equal(t.state.logs[i].IndexBlockHash, indexBlockHash) && t.state.logs[i].Canonical != canonical {
			t.state.logs[i].Canonical = canonical
			counts.ContractLogs++
		}
	}
	for i := range t.state.contracts {
		if bytes.Equal(t.state.contracts[i].IndexBlockHash, indexBlockHash) && t.state.contracts[i].Canonical != canonical {
			t.state.contracts[i].Canonical = canonical
			counts.SmartContracts++
		}
	}
}

// recordingNotifier captures the post-commit update stream.
type recordingNotifier struct {
	updates []string
}

func (n *recordingNotifier) PublishBlock(b *model.Block) {
	n.updates = append(n.updates, fmt.Sprintf("block:%d", b.BlockHeight))
}

func (n *recordingNotifier) PublishTx(tx *model.Tx) {
	n.updates = append(n.updates, fmt.Sprintf("tx:%d:%d", tx.BlockHeight, tx.TxIndex))
}
