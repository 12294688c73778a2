package model

import "github.com/ethereum/go-ethereum/common/hexutil"

// SmartContract is a deployed contract row.
type SmartContract struct {
	TxID           hexutil.Bytes `json:"tx_id"`
	ContractID     string        `json:"contract_id"`
	BlockHeight    uint64        `json:"block_height"`
	IndexBlockHash hexutil.Bytes `json:"index_block_hash"`
	SourceCode     string        `json:"source_code"`
	ABI            string        `json:"abi,omitempty"`
	Canonical      bool          `json:"canonical"`
}
