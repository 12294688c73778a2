package model

import "github.com/ethereum/go-ethereum/common/hexutil"

// Block is one anchored block row. IndexBlockHash identifies a chain position
// uniquely; BlockHash can repeat across forks.
type Block struct {
	BlockHash            hexutil.Bytes `json:"block_hash"`
	IndexBlockHash       hexutil.Bytes `json:"index_block_hash"`
	ParentIndexBlockHash hexutil.Bytes `json:"parent_index_block_hash"`
	ParentBlockHash      hexutil.Bytes `json:"parent_block_hash"`
	ParentMicroblock     hexutil.Bytes `json:"parent_microblock"`
	BlockHeight          uint64        `json:"block_height"`
	BurnBlockTime        uint64        `json:"burn_block_time"`
	Canonical            bool          `json:"canonical"`
}

// ChainTip is the highest canonical block.
type ChainTip struct {
	BlockHeight    uint64
	BlockHash      hexutil.Bytes
	IndexBlockHash hexutil.Bytes
}
