package model

// BlockBatch is one decoded block message, ready for a single ingestion
// transaction.
type BlockBatch struct {
	Block *Block
	Txs   []*BatchTx
}

// BatchTx groups a transaction with the rows it produces.
type BatchTx struct {
	Tx           *Tx
	StxEvents    []*StxEvent
	FtEvents     []*FtEvent
	NftEvents    []*NftEvent
	ContractLogs []*ContractLog
	Contracts    []*SmartContract
}

// SetCanonical applies one canonical flag across the whole batch.
func (b *BlockBatch) SetCanonical(canonical bool) {
	b.Block.Canonical = canonical
	for _, tx := range b.Txs {
		tx.Tx.Canonical = canonical
		for _, e := range tx.StxEvents {
			e.Canonical = canonical
		}
		for _, e := range tx.FtEvents {
			e.Canonical = canonical
		}
		for _, e := range tx.NftEvents {
			e.Canonical = canonical
		}
		for _, e := range tx.ContractLogs {
			e.Canonical = canonical
		}
		for _, c := range tx.Contracts {
			c.Canonical = canonical
		}
	}
}

// ReorgCounts tallies rows whose canonical flag flipped during a chain
// restoration, per table.
type ReorgCounts struct {
	Blocks         int64
	Txs            int64
	StxEvents      int64
	FtEvents       int64
	NftEvents      int64
	ContractLogs   int64
	SmartContracts int64
}

// Add accumulates another set of counts.
func (c *ReorgCounts) Add(o ReorgCounts) {
	c.Blocks += o.Blocks
	c.Txs += o.Txs
	c.StxEvents += o.StxEvents
	c.FtEvents += o.FtEvents
	c.NftEvents += o.NftEvents
	c.ContractLogs += o.ContractLogs
	c.SmartContracts += o.SmartContracts
}

// Total is the sum across all tables.
func (c ReorgCounts) Total() int64 {
	return c.Blocks + c.Txs + c.StxEvents + c.FtEvents + c.NftEvents + c.ContractLogs + c.SmartContracts
}
