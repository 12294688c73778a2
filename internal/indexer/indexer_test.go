package indexer

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chainScope/internal/decoder"
	"chainScope/internal/model"
	"chainScope/internal/stacks"
)

func hash32(tag byte) hexutil.Bytes {
	return bytes.Repeat([]byte{tag}, 32)
}

func txID(tag byte) hexutil.Bytes {
	return bytes.Repeat([]byte{tag}, 32)
}

// mkBatch builds a decoded batch for a block identified by tag whose parent
// is identified by parentTag.
func mkBatch(height uint64, tag, parentTag byte, txs ...*model.BatchTx) *model.BlockBatch {
	block := &model.Block{
		BlockHash:            hash32(tag),
		IndexBlockHash:       hash32(tag),
		ParentIndexBlockHash: hash32(parentTag),
		ParentBlockHash:      hash32(parentTag),
		BlockHeight:          height,
		BurnBlockTime:        1700000000 + height,
		Canonical:            true,
	}
	for _, btx := range txs {
		btx.Tx.IndexBlockHash = block.IndexBlockHash
		btx.Tx.BlockHash = block.BlockHash
		btx.Tx.BlockHeight = height
		for _, e := range btx.StxEvents {
			e.IndexBlockHash = block.IndexBlockHash
			e.BlockHeight = height
		}
	}
	return &model.BlockBatch{Block: block, Txs: txs}
}

// mkTransfer builds a coinbase-free token transfer tx with one stx event.
func mkTransfer(idTag byte, txIndex uint32, sender, recipient string, amount uint64) *model.BatchTx {
	tx := &model.Tx{
		TxID:          txID(idTag),
		TxIndex:       txIndex,
		TypeID:        model.TxTypeTokenTransfer,
		Status:        model.TxStatusSuccess,
		Canonical:     true,
		SenderAddress: sender,
		TokenTransfer: &model.TokenTransferPayload{
			RecipientAddress: recipient,
			Amount:           amount,
			Memo:             make([]byte, 34),
		},
	}
	event := &model.StxEvent{
		EventIndex:     0,
		TxID:           tx.TxID,
		TxIndex:        txIndex,
		Canonical:      true,
		AssetEventType: model.AssetEventTransfer,
		Sender:         sender,
		Recipient:      recipient,
		Amount:         amount,
	}
	return &model.BatchTx{Tx: tx, StxEvents: []*model.StxEvent{event}}
}

func newTestIndexer(db *fakeDB, ntf Notifier) *Indexer {
	cfg := Config{MaxRetries: 2, RetryBackoff: time.Millisecond}
	return New(cfg, db, decoder.New(stacks.ChainMainnet), ntf, zap.NewNop())
}

func ingestAll(t *testing.T, ix *Indexer, batches ...*model.BlockBatch) {
	t.Helper()
	for _, b := range batches {
		_, err := ix.Ingest(context.Background(), b)
		require.NoError(t, err)
	}
}

func assertSingleCanonicalPerHeight(t *testing.T, db *fakeDB, maxHeight uint64) {
	t.Helper()
	for h := uint64(1); h <= maxHeight; h++ {
		require.Len(t, db.canonicalBlocksAtHeight(h), 1, "height %d", h)
	}
}

func TestLinearExtension(t *testing.T) {
	db := newFakeDB()
	ix := newTestIndexer(db, nil)

	ingestAll(t, ix,
		mkBatch(1, 0x01, 0x00),
		mkBatch(2, 0x02, 0x01),
		mkBatch(3, 0x03, 0x02),
	)

	assertSingleCanonicalPerHeight(t, db, 3)
	tx, err := db.Begin(context.Background())
	require.NoError(t, err)
	tip, ok, err := tx.ChainTip(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(3), tip.BlockHeight)
}

func TestSiblingAtTipStoredNonCanonical(t *testing.T) {
	db := newFakeDB()
	ix := newTestIndexer(db, nil)

	ingestAll(t, ix,
		mkBatch(1, 0x01, 0x00),
		mkBatch(2, 0x02, 0x01),
		mkBatch(2, 0x22, 0x01), // sibling of height 2
	)

	canonical, ok := db.blockByIndexHash(hash32(0x02))
	require.True(t, ok)
	require.True(t, canonical.Canonical)

	sibling, ok := db.blockByIndexHash(hash32(0x22))
	require.True(t, ok)
	require.False(t, sibling.Canonical)

	assertSingleCanonicalPerHeight(t, db, 2)
}

func TestOneBlockForkVictory(t *testing.T) {
	db := newFakeDB()
	ix := newTestIndexer(db, nil)

	const addr = "SP000000000000000000002Q6VF78"

	ingestAll(t, ix,
		mkBatch(1, 0x01, 0x00),
		mkBatch(2, 0x02, 0x01, mkTransfer(0xa0, 0, "SENDER", addr, 100)),
		mkBatch(2, 0x22, 0x01),
	)
	require.Equal(t, int64(100), db.canonicalStxBalance(addr))

	// Child of the orphaned sibling takes the fork past the tip.
	res, err := ix.Ingest(context.Background(), mkBatch(3, 0x33, 0x22))
	require.NoError(t, err)
	require.True(t, res.Applied)
	require.Equal(t, int64(2), res.Restored.Blocks, "sibling promoted, old block orphaned")
	require.Equal(t, int64(1), res.Restored.Txs)
	require.Equal(t, int64(1), res.Restored.StxEvents)

	oldBlock, _ := db.blockByIndexHash(hash32(0x02))
	require.False(t, oldBlock.Canonical)
	newSibling, _ := db.blockByIndexHash(hash32(0x22))
	require.True(t, newSibling.Canonical)
	child, _ := db.blockByIndexHash(hash32(0x33))
	require.True(t, child.Canonical)

	// Transactions and events followed their block (I3); the balance
	// reflects only the now-canonical chain, with no rows deleted.
	for _, tx := range db.state.txs {
		if bytes.Equal(tx.IndexBlockHash, hash32(0x02)) {
			require.False(t, tx.Canonical)
		}
	}
	require.Equal(t, int64(0), db.canonicalStxBalance(addr))
	require.Len(t, db.state.stx, 1, "reorg must not delete rows")

	assertSingleCanonicalPerHeight(t, db, 3)
}

func TestDeepReorg(t *testing.T) {
	db := newFakeDB()
	ix := newTestIndexer(db, nil)

	// Canonical chain 1..5.
	ingestAll(t, ix,
		mkBatch(1, 0x01, 0x00),
		mkBatch(2, 0x02, 0x01),
		mkBatch(3, 0x03, 0x02),
		mkBatch(4, 0x04, 0x03),
		mkBatch(5, 0x05, 0x04),
	)

	// Competing branch 2'..5' stays orphaned while it trails the tip.
	ingestAll(t, ix,
		mkBatch(2, 0x12, 0x01),
		mkBatch(3, 0x13, 0x12),
		mkBatch(4, 0x14, 0x13),
		mkBatch(5, 0x15, 0x14),
	)
	for _, tag := range []byte{0x12, 0x13, 0x14, 0x15} {
		b, ok := db.blockByIndexHash(hash32(tag))
		require.True(t, ok)
		require.False(t, b.Canonical, "branch block %#02x before overtaking", tag)
	}

	// 6' extends the branch past the tip: restoration walks 5'..2'.
	res, err := ix.Ingest(context.Background(), mkBatch(6, 0x16, 0x15))
	require.NoError(t, err)
	require.Equal(t, int64(8), res.Restored.Blocks, "four promoted, four orphaned")

	for _, tag := range []byte{0x01, 0x12, 0x13, 0x14, 0x15, 0x16} {
		b, _ := db.blockByIndexHash(hash32(tag))
		require.True(t, b.Canonical, "chain block %#02x", tag)
	}
	for _, tag := range []byte{0x02, 0x03, 0x04, 0x05} {
		b, _ := db.blockByIndexHash(hash32(tag))
		require.False(t, b.Canonical, "orphaned block %#02x", tag)
	}
	assertSingleCanonicalPerHeight(t, db, 6)
}

func TestIdempotentRedelivery(t *testing.T) {
	db := newFakeDB()
	ntf := &recordingNotifier{}
	ix := newTestIndexer(db, ntf)

	batch := mkBatch(1, 0x01, 0x00, mkTransfer(0xa0, 0, "A", "B", 7))

	res, err := ix.Ingest(context.Background(), batch)
	require.NoError(t, err)
	require.True(t, res.Applied)
	require.Equal(t, []string{"block:1", "tx:1:0"}, ntf.updates)

	redelivered := mkBatch(1, 0x01, 0x00, mkTransfer(0xa0, 0, "A", "B", 7))
	res, err = ix.Ingest(context.Background(), redelivered)
	require.NoError(t, err)
	require.False(t, res.Applied)

	// Zero additional writes and zero additional notifications.
	require.Len(t, db.state.blocks, 1)
	require.Len(t, db.state.txs, 1)
	require.Len(t, db.state.stx, 1)
	require.Equal(t, []string{"block:1", "tx:1:0"}, ntf.updates)
}

func TestNotificationOrder(t *testing.T) {
	db := newFakeDB()
	ntf := &recordingNotifier{}
	ix := newTestIndexer(db, ntf)

	ingestAll(t, ix, mkBatch(1, 0x01, 0x00,
		mkTransfer(0xa0, 0, "A", "B", 1),
		mkTransfer(0xa1, 1, "B", "C", 2),
		mkTransfer(0xa2, 2, "C", "D", 3),
	))

	require.Equal(t, []string{"block:1", "tx:1:0", "tx:1:1", "tx:1:2"}, ntf.updates)
}

func TestParentMissing(t *testing.T) {
	db := newFakeDB()
	ix := newTestIndexer(db, nil)

	ingestAll(t, ix, mkBatch(1, 0x01, 0x00))

	_, err := ix.Ingest(context.Background(), mkBatch(3, 0x03, 0x99))
	require.ErrorIs(t, err, model.ErrParentMissing)

	// Nothing was committed for the rejected batch.
	_, ok := db.blockByIndexHash(hash32(0x03))
	require.False(t, ok)
}

func TestSchemaCorruptionOnDuplicateParents(t *testing.T) {
	db := newFakeDB()
	ix := newTestIndexer(db, nil)

	ingestAll(t, ix, mkBatch(1, 0x01, 0x00))

	// Simulate a broken unique key: two rows for the same chain position.
	dup := db.state.blocks[0]
	db.state.blocks = append(db.state.blocks, dup)

	_, err := ix.Ingest(context.Background(), mkBatch(2, 0x02, 0x01))
	require.ErrorIs(t, err, model.ErrSchemaCorruption)
}

func TestTransientErrorRetried(t *testing.T) {
	db := newFakeDB()
	ix := newTestIndexer(db, nil)

	db.beginErr = []error{&pgconn.PgError{Code: "40001", Message: "serialization failure"}}

	res, err := ix.Ingest(context.Background(), mkBatch(1, 0x01, 0x00))
	require.NoError(t, err)
	require.True(t, res.Applied)
}

func TestPermanentErrorNotRetried(t *testing.T) {
	db := newFakeDB()
	ix := newTestIndexer(db, nil)

	boom := errors.New("column does not exist")
	db.beginErr = []error{boom, nil}

	_, err := ix.Ingest(context.Background(), mkBatch(1, 0x01, 0x00))
	require.ErrorIs(t, err, boom)
	require.Empty(t, db.state.blocks)
}

// rawCoinbaseTx builds minimal valid wire bytes for Run tests.
func rawCoinbaseTx() []byte {
	var buf bytes.Buffer
	buf.WriteByte(0x00)                                  // version
	_ = binary.Write(&buf, binary.BigEndian, uint32(1))  // chain id
	buf.WriteByte(0x04)                                  // standard auth
	buf.WriteByte(0x00)                                  // p2pkh
	buf.Write(make([]byte, 20))                          // signer
	_ = binary.Write(&buf, binary.BigEndian, uint64(0))  // nonce
	_ = binary.Write(&buf, binary.BigEndian, uint64(10)) // fee
	buf.WriteByte(0x00)                                  // key encoding
	buf.Write(make([]byte, 65))                          // signature
	buf.WriteByte(0x01)                                  // anchor mode
	buf.WriteByte(0x01)                                  // post condition mode
	_ = binary.Write(&buf, binary.BigEndian, uint32(0))  // no post conditions
	buf.WriteByte(0x04)                                  // coinbase
	buf.Write(make([]byte, 32))
	return buf.Bytes()
}

type memCheckpoint struct {
	offsets []uint64
}

func (c *memCheckpoint) Save(offset uint64) error {
	c.offsets = append(c.offsets, offset)
	return nil
}

type memJournal struct {
	records []model.DecodeErrorRecord
}

func (j *memJournal) Append(rec model.DecodeErrorRecord) error {
	j.records = append(j.records, rec)
	return nil
}

func TestRunDropsBadMessagesAndContinues(t *testing.T) {
	db := newFakeDB()
	checkpoint := &memCheckpoint{}
	journal := &memJournal{}

	cfg := Config{MaxRetries: 1, RetryBackoff: time.Millisecond, Checkpoint: checkpoint, Journal: journal}
	ix := New(cfg, db, decoder.New(stacks.ChainMainnet), nil, zap.NewNop())

	source := make(chan *model.NewBlockMessage, 2)
	source <- &model.NewBlockMessage{ // malformed: short block hash
		BlockHash:   []byte{0x01},
		BlockHeight: 1,
		Offset:      1,
	}
	source <- &model.NewBlockMessage{
		BlockHash:            hash32(0x01),
		IndexBlockHash:       hash32(0x01),
		ParentIndexBlockHash: hash32(0x00),
		ParentBlockHash:      hash32(0x00),
		BlockHeight:          1,
		Transactions:         []model.TxMessage{{RawTx: rawCoinbaseTx(), Success: true}},
		Offset:               2,
	}
	close(source)

	err := ix.Run(context.Background(), source)
	require.NoError(t, err)

	require.Len(t, journal.records, 1)
	require.Equal(t, uint64(1), journal.records[0].Offset)
	require.Equal(t, []uint64{1, 2}, checkpoint.offsets)
	require.Len(t, db.state.blocks, 1)
	require.Len(t, db.state.txs, 1)
}
