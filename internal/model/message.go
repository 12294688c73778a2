package model

import "github.com/ethereum/go-ethereum/common/hexutil"

// NewBlockMessage is one node event describing an anchored block and its
// transactions. Delivery is at-least-once; duplicates are absorbed by
// idempotent inserts downstream.
type NewBlockMessage struct {
	BlockHash            hexutil.Bytes `json:"block_hash"`
	IndexBlockHash       hexutil.Bytes `json:"index_block_hash"`
	ParentIndexBlockHash hexutil.Bytes `json:"parent_index_block_hash"`
	ParentBlockHash      hexutil.Bytes `json:"parent_block_hash"`
	ParentMicroblock     hexutil.Bytes `json:"parent_microblock"`
	BlockHeight          uint64        `json:"block_height"`
	BurnBlockTime        uint64        `json:"burn_block_time"`
	Transactions         []TxMessage   `json:"transactions"`

	// Offset is the position of this message in the intake stream. Set by
	// the source, never serialized.
	Offset uint64 `json:"-"`
}

// TxMessage carries one transaction of a block message: its raw wire bytes,
// execution outcome, and the events it produced.
type TxMessage struct {
	RawTx       hexutil.Bytes  `json:"raw_tx"`
	Success     bool           `json:"success"`
	TxIndex     uint32         `json:"tx_index"`
	ContractABI string         `json:"contract_abi,omitempty"`
	Events      []EventMessage `json:"events"`
}

// Event kind tags used on the wire.
const (
	EventKindStxAsset    = "stx_asset"
	EventKindFtAsset     = "ft_asset"
	EventKindNftAsset    = "nft_asset"
	EventKindContractLog = "contract_log"
)

// EventMessage is one execution event in wire form. Kind selects which of the
// optional fields are meaningful.
type EventMessage struct {
	EventIndex uint32 `json:"event_index"`
	Kind       string `json:"kind"`

	// Asset events.
	AssetEventType  string        `json:"asset_event_type,omitempty"`
	AssetIdentifier string        `json:"asset_identifier,omitempty"`
	Sender          string        `json:"sender,omitempty"`
	Recipient       string        `json:"recipient,omitempty"`
	Amount          string        `json:"amount,omitempty"`
	Value           hexutil.Bytes `json:"value,omitempty"`

	// Contract log events.
	ContractIdentifier string `json:"contract_identifier,omitempty"`
	Topic              string `json:"topic,omitempty"`
}
