package model

import "github.com/ethereum/go-ethereum/common/hexutil"

// TxTypeID discriminates the transaction payload variant.
type TxTypeID int16

const (
	TxTypeTokenTransfer    TxTypeID = 0
	TxTypeSmartContract    TxTypeID = 1
	TxTypeContractCall     TxTypeID = 2
	TxTypePoisonMicroblock TxTypeID = 3
	TxTypeCoinbase         TxTypeID = 4
)

func (t TxTypeID) String() string {
	switch t {
	case TxTypeTokenTransfer:
		return "token_transfer"
	case TxTypeSmartContract:
		return "smart_contract"
	case TxTypeContractCall:
		return "contract_call"
	case TxTypePoisonMicroblock:
		return "poison_microblock"
	case TxTypeCoinbase:
		return "coinbase"
	default:
		return "unknown"
	}
}

// TxStatus is the execution status of a transaction.
type TxStatus int16

const (
	TxStatusPending TxStatus = 0
	TxStatusSuccess TxStatus = 1
	TxStatusFailed  TxStatus = 2
)

// Tx is one transaction row. The payload pointers form a union gated by TypeID;
// exactly one of them is set.
type Tx struct {
	TxID           hexutil.Bytes `json:"tx_id"`
	TxIndex        uint32        `json:"tx_index"`
	IndexBlockHash hexutil.Bytes `json:"index_block_hash"`
	BlockHash      hexutil.Bytes `json:"block_hash"`
	BlockHeight    uint64        `json:"block_height"`
	BurnBlockTime  uint64        `json:"burn_block_time"`
	TypeID         TxTypeID      `json:"type_id"`
	Status         TxStatus      `json:"status"`
	Canonical      bool          `json:"canonical"`
	PostConditions hexutil.Bytes `json:"post_conditions"`
	FeeRate        uint64        `json:"fee_rate"`
	SenderAddress  string        `json:"sender_address"`
	OriginHashMode uint8         `json:"origin_hash_mode"`
	Sponsored      bool          `json:"sponsored"`

	TokenTransfer    *TokenTransferPayload    `json:"token_transfer,omitempty"`
	SmartContract    *SmartContractPayload    `json:"smart_contract,omitempty"`
	ContractCall     *ContractCallPayload     `json:"contract_call,omitempty"`
	PoisonMicroblock *PoisonMicroblockPayload `json:"poison_microblock,omitempty"`
	Coinbase         *CoinbasePayload         `json:"coinbase,omitempty"`
}

// TokenTransferPayload moves native tokens to a recipient principal.
type TokenTransferPayload struct {
	RecipientAddress string        `json:"recipient_address"`
	Amount           uint64        `json:"amount"`
	Memo             hexutil.Bytes `json:"memo"`
}

// SmartContractPayload deploys a contract under the sender's namespace.
type SmartContractPayload struct {
	ContractID string `json:"contract_id"`
	SourceCode string `json:"source_code"`
}

// ContractCallPayload invokes a public function on a deployed contract.
type ContractCallPayload struct {
	ContractID   string        `json:"contract_id"`
	FunctionName string        `json:"function_name"`
	FunctionArgs hexutil.Bytes `json:"function_args"`
}

// PoisonMicroblockPayload carries two conflicting microblock headers.
type PoisonMicroblockPayload struct {
	MicroblockHeader1 hexutil.Bytes `json:"microblock_header_1"`
	MicroblockHeader2 hexutil.Bytes `json:"microblock_header_2"`
}

// CoinbasePayload is the 32-byte coinbase blob.
type CoinbasePayload struct {
	Payload hexutil.Bytes `json:"payload"`
}
