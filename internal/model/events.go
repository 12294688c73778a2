package model

import (
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// AssetEventType discriminates transfer, mint, and burn asset events.
type AssetEventType int16

const (
	AssetEventTransfer AssetEventType = 1
	AssetEventMint     AssetEventType = 2
	AssetEventBurn     AssetEventType = 3
)

func (t AssetEventType) String() string {
	switch t {
	case AssetEventTransfer:
		return "transfer"
	case AssetEventMint:
		return "mint"
	case AssetEventBurn:
		return "burn"
	default:
		return "unknown"
	}
}

// TxEvent is one of the four event kinds recorded during transaction
// execution. The set of implementations is closed.
type TxEvent interface {
	EventIdx() uint32
}

// StxEvent is a native token transfer, mint, or burn.
type StxEvent struct {
	EventIndex     uint32         `json:"event_index"`
	TxID           hexutil.Bytes  `json:"tx_id"`
	TxIndex        uint32         `json:"tx_index"`
	BlockHeight    uint64         `json:"block_height"`
	IndexBlockHash hexutil.Bytes  `json:"index_block_hash"`
	Canonical      bool           `json:"canonical"`
	AssetEventType AssetEventType `json:"asset_event_type_id"`
	Sender         string         `json:"sender,omitempty"`
	Recipient      string         `json:"recipient,omitempty"`
	Amount         uint64         `json:"amount"`
}

func (e *StxEvent) EventIdx() uint32 { return e.EventIndex }

// FtEvent is a fungible token transfer, mint, or burn. Amounts are u128.
type FtEvent struct {
	EventIndex      uint32         `json:"event_index"`
	TxID            hexutil.Bytes  `json:"tx_id"`
	TxIndex         uint32         `json:"tx_index"`
	BlockHeight     uint64         `json:"block_height"`
	IndexBlockHash  hexutil.Bytes  `json:"index_block_hash"`
	Canonical       bool           `json:"canonical"`
	AssetEventType  AssetEventType `json:"asset_event_type_id"`
	AssetIdentifier string         `json:"asset_identifier"`
	Sender          string         `json:"sender,omitempty"`
	Recipient       string         `json:"recipient,omitempty"`
	Amount          *uint256.Int   `json:"amount"`
}

func (e *FtEvent) EventIdx() uint32 { return e.EventIndex }

// NftEvent is a non-fungible token transfer, mint, or burn. Value holds the
// serialized token identity.
type NftEvent struct {
	EventIndex      uint32         `json:"event_index"`
	TxID            hexutil.Bytes  `json:"tx_id"`
	TxIndex         uint32         `json:"tx_index"`
	BlockHeight     uint64         `json:"block_height"`
	IndexBlockHash  hexutil.Bytes  `json:"index_block_hash"`
	Canonical       bool           `json:"canonical"`
	AssetEventType  AssetEventType `json:"asset_event_type_id"`
	AssetIdentifier string         `json:"asset_identifier"`
	Sender          string         `json:"sender,omitempty"`
	Recipient       string         `json:"recipient,omitempty"`
	Value           hexutil.Bytes  `json:"value"`
}

func (e *NftEvent) EventIdx() uint32 { return e.EventIndex }

// ContractLog is a print event emitted by a smart contract.
type ContractLog struct {
	EventIndex         uint32        `json:"event_index"`
	TxID               hexutil.Bytes `json:"tx_id"`
	TxIndex            uint32        `json:"tx_index"`
	BlockHeight        uint64        `json:"block_height"`
	IndexBlockHash     hexutil.Bytes `json:"index_block_hash"`
	Canonical          bool          `json:"canonical"`
	ContractIdentifier string        `json:"contract_identifier"`
	Topic              string        `json:"topic"`
	Value              hexutil.Bytes `json:"value"`
}

func (e *ContractLog) EventIdx() uint32 { return e.EventIndex }
