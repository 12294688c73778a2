package decoder

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"chainScope/internal/model"
	"chainScope/internal/stacks"
)

// Authorization types on the wire.
const (
	authStandard  byte = 0x04
	authSponsored byte = 0x05
)

// Principal type tags on the wire.
const (
	principalStandard byte = 0x05
	principalContract byte = 0x06
)

const (
	memoLength            = 34
	coinbasePayloadLength = 32
	maxNameLength         = 128
)

// Decoder converts node block messages into normalized batches. Pure; the
// chain selects address versions for sender derivation.
type Decoder struct {
	chain stacks.Chain
}

func New(chain stacks.Chain) *Decoder {
	return &Decoder{chain: chain}
}

// DecodeBlockMessage parses one block message into a batch ready for a single
// ingestion transaction. Any malformed field rejects the whole message.
func (d *Decoder) DecodeBlockMessage(msg *model.NewBlockMessage) (*model.BlockBatch, error) {
	if err := checkHash(msg.BlockHash, "block_hash"); err != nil {
		return nil, err
	}
	if err := checkHash(msg.IndexBlockHash, "index_block_hash"); err != nil {
		return nil, err
	}
	if err := checkHash(msg.ParentIndexBlockHash, "parent_index_block_hash"); err != nil {
		return nil, err
	}
	if err := checkHash(msg.ParentBlockHash, "parent_block_hash"); err != nil {
		return nil, err
	}
	if msg.BlockHeight == 0 {
		return nil, model.NewDecodeError(0, "block_height must be positive")
	}

	block := &model.Block{
		BlockHash:            msg.BlockHash,
		IndexBlockHash:       msg.IndexBlockHash,
		ParentIndexBlockHash: msg.ParentIndexBlockHash,
		ParentBlockHash:      msg.ParentBlockHash,
		ParentMicroblock:     msg.ParentMicroblock,
		BlockHeight:          msg.BlockHeight,
		BurnBlockTime:        msg.BurnBlockTime,
		Canonical:            true,
	}

	txMsgs := make([]model.TxMessage, len(msg.Transactions))
	copy(txMsgs, msg.Transactions)
	sort.Slice(txMsgs, func(i, j int) bool { return txMsgs[i].TxIndex < txMsgs[j].TxIndex })

	batch := &model.BlockBatch{Block: block, Txs: make([]*model.BatchTx, 0, len(txMsgs))}
	for _, txMsg := range txMsgs {
		entry, err := d.decodeTx(block, txMsg)
		if err != nil {
			return nil, fmt.Errorf("tx_index %d: %w", txMsg.TxIndex, err)
		}
		batch.Txs = append(batch.Txs, entry)
	}
	return batch, nil
}

func (d *Decoder) decodeTx(block *model.Block, txMsg model.TxMessage) (*model.BatchTx, error) {
	tx, err := d.ParseRawTx(txMsg.RawTx)
	if err != nil {
		return nil, err
	}

	tx.TxID = TxID(txMsg.RawTx)
	tx.TxIndex = txMsg.TxIndex
	tx.IndexBlockHash = block.IndexBlockHash
	tx.BlockHash = block.BlockHash
	tx.BlockHeight = block.BlockHeight
	tx.BurnBlockTime = block.BurnBlockTime
	tx.Canonical = true
	if txMsg.Success {
		tx.Status = model.TxStatusSuccess
	} else {
		tx.Status = model.TxStatusFailed
	}

	entry := &model.BatchTx{Tx: tx}
	if tx.TypeID == model.TxTypeSmartContract {
		entry.Contracts = append(entry.Contracts, &model.SmartContract{
			TxID:           tx.TxID,
			ContractID:     tx.SmartContract.ContractID,
			BlockHeight:    block.BlockHeight,
			IndexBlockHash: block.IndexBlockHash,
			SourceCode:     tx.SmartContract.SourceCode,
			ABI:            txMsg.ContractABI,
			Canonical:      true,
		})
	}

	events := make([]model.EventMessage, len(txMsg.Events))
	copy(events, txMsg.Events)
	sort.Slice(events, func(i, j int) bool { return events[i].EventIndex < events[j].EventIndex })

	seen := make(map[uint32]struct{}, len(events))
	for _, ev := range events {
		if _, dup := seen[ev.EventIndex]; dup {
			return nil, model.NewDecodeError(0, "duplicate event_index %d", ev.EventIndex)
		}
		seen[ev.EventIndex] = struct{}{}
		if err := d.decodeEvent(entry, block, tx, ev); err != nil {
			return nil, err
		}
	}
	return entry, nil
}

func (d *Decoder) decodeEvent(entry *model.BatchTx, block *model.Block, tx *model.Tx, ev model.EventMessage) error {
	switch ev.Kind {
	case model.EventKindStxAsset:
		typ, err := parseAssetEventType(ev)
		if err != nil {
			return err
		}
		amount, err := strconv.ParseUint(ev.Amount, 10, 64)
		if err != nil {
			return model.NewDecodeError(0, "event %d: invalid stx amount %q", ev.EventIndex, ev.Amount)
		}
		entry.StxEvents = append(entry.StxEvents, &model.StxEvent{
			EventIndex:     ev.EventIndex,
			TxID:           tx.TxID,
			TxIndex:        tx.TxIndex,
			BlockHeight:    block.BlockHeight,
			IndexBlockHash: block.IndexBlockHash,
			Canonical:      true,
			AssetEventType: typ,
			Sender:         ev.Sender,
			Recipient:      ev.Recipient,
			Amount:         amount,
		})

	case model.EventKindFtAsset:
		typ, err := parseAssetEventType(ev)
		if err != nil {
			return err
		}
		if ev.AssetIdentifier == "" {
			return model.NewDecodeError(0, "event %d: ft event missing asset_identifier", ev.EventIndex)
		}
		amount, err := uint256.FromDecimal(ev.Amount)
		if err != nil {
			return model.NewDecodeError(0, "event %d: invalid ft amount %q", ev.EventIndex, ev.Amount)
		}
		entry.FtEvents = append(entry.FtEvents, &model.FtEvent{
			EventIndex:      ev.EventIndex,
			TxID:            tx.TxID,
			TxIndex:         tx.TxIndex,
			BlockHeight:     block.BlockHeight,
			IndexBlockHash:  block.IndexBlockHash,
			Canonical:       true,
			AssetEventType:  typ,
			AssetIdentifier: ev.AssetIdentifier,
			Sender:          ev.Sender,
			Recipient:       ev.Recipient,
			Amount:          amount,
		})

	case model.EventKindNftAsset:
		typ, err := parseAssetEventType(ev)
		if err != nil {
			return err
		}
		if ev.AssetIdentifier == "" {
			return model.NewDecodeError(0, "event %d: nft event missing asset_identifier", ev.EventIndex)
		}
		if len(ev.Value) == 0 {
			return model.NewDecodeError(0, "event %d: nft event missing value", ev.EventIndex)
		}
		entry.NftEvents = append(entry.NftEvents, &model.NftEvent{
			EventIndex:      ev.EventIndex,
			TxID:            tx.TxID,
			TxIndex:         tx.TxIndex,
			BlockHeight:     block.BlockHeight,
			IndexBlockHash:  block.IndexBlockHash,
			Canonical:       true,
			AssetEventType:  typ,
			AssetIdentifier: ev.AssetIdentifier,
			Sender:          ev.Sender,
			Recipient:       ev.Recipient,
			Value:           ev.Value,
		})

	case model.EventKindContractLog:
		if ev.ContractIdentifier == "" || ev.Topic == "" {
			return model.NewDecodeError(0, "event %d: contract log missing identifier or topic", ev.EventIndex)
		}
		entry.ContractLogs = append(entry.ContractLogs, &model.ContractLog{
			EventIndex:         ev.EventIndex,
			TxID:               tx.TxID,
			TxIndex:            tx.TxIndex,
			BlockHeight:        block.BlockHeight,
			IndexBlockHash:     block.IndexBlockHash,
			Canonical:          true,
			ContractIdentifier: ev.ContractIdentifier,
			Topic:              ev.Topic,
			Value:              ev.Value,
		})

	default:
		return model.NewDecodeError(0, "event %d: unknown event kind %q", ev.EventIndex, ev.Kind)
	}
	return nil
}

func parseAssetEventType(ev model.EventMessage) (model.AssetEventType, error) {
	var typ model.AssetEventType
	switch ev.AssetEventType {
	case "transfer":
		typ = model.AssetEventTransfer
	case "mint":
		typ = model.AssetEventMint
	case "burn":
		typ = model.AssetEventBurn
	default:
		return 0, model.NewDecodeError(0, "event %d: unknown asset event type %q", ev.EventIndex, ev.AssetEventType)
	}

	needSender := typ == model.AssetEventTransfer || typ == model.AssetEventBurn
	needRecipient := typ == model.AssetEventTransfer || typ == model.AssetEventMint
	if needSender && ev.Sender == "" {
		return 0, model.NewDecodeError(0, "event %d: %s requires a sender", ev.EventIndex, typ)
	}
	if needRecipient && ev.Recipient == "" {
		return 0, model.NewDecodeError(0, "event %d: %s requires a recipient", ev.EventIndex, typ)
	}
	return typ, nil
}

// ParseRawTx decodes the binary transaction wire format. The returned Tx has
// its authorization and payload fields populated; block placement fields are
// filled in by the caller.
func (d *Decoder) ParseRawTx(raw []byte) (*model.Tx, error) {
	r := &reader{buf: raw}

	if _, err := r.u8("version"); err != nil {
		return nil, err
	}
	if _, err := r.u32("chain id"); err != nil {
		return nil, err
	}

	authType, err := r.u8("auth type")
	if err != nil {
		return nil, err
	}
	if authType != authStandard && authType != authSponsored {
		return nil, model.NewDecodeError(r.pos-1, "unknown auth type %#02x", authType)
	}
	sponsored := authType == authSponsored

	origin, err := d.parseSpendingCondition(r)
	if err != nil {
		return nil, err
	}
	feeRate := origin.fee
	if sponsored {
		sponsor, err := d.parseSpendingCondition(r)
		if err != nil {
			return nil, err
		}
		feeRate = sponsor.fee
	}

	anchorMode, err := r.u8("anchor mode")
	if err != nil {
		return nil, err
	}
	if anchorMode < 1 || anchorMode > 3 {
		return nil, model.NewDecodeError(r.pos-1, "invalid anchor mode %#02x", anchorMode)
	}
	postConditionMode, err := r.u8("post condition mode")
	if err != nil {
		return nil, err
	}
	if postConditionMode != 1 && postConditionMode != 2 {
		return nil, model.NewDecodeError(r.pos-1, "invalid post condition mode %#02x", postConditionMode)
	}

	postConditions, err := parsePostConditions(r)
	if err != nil {
		return nil, err
	}

	sender, err := d.senderAddress(origin)
	if err != nil {
		return nil, model.NewDecodeError(0, "derive sender: %v", err)
	}

	tx := &model.Tx{
		PostConditions: postConditions,
		FeeRate:        feeRate,
		SenderAddress:  sender,
		OriginHashMode: origin.hashMode,
		Sponsored:      sponsored,
	}
	if err := d.parsePayload(r, tx); err != nil {
		return nil, err
	}
	if r.remaining() != 0 {
		return nil, model.NewDecodeError(r.pos, "%d trailing bytes after payload", r.remaining())
	}
	return tx, nil
}

type spendingCondition struct {
	hashMode uint8
	signer   []byte
	nonce    uint64
	fee      uint64
}

func (d *Decoder) parseSpendingCondition(r *reader) (spendingCondition, error) {
	var cond spendingCondition

	hashMode, err := r.u8("hash mode")
	if err != nil {
		return cond, err
	}
	if hashMode > stacks.HashModeP2WSH {
		return cond, model.NewDecodeError(r.pos-1, "unknown hash mode %#02x", hashMode)
	}
	cond.hashMode = hashMode

	if cond.signer, err = r.take(20, "signer hash"); err != nil {
		return cond, err
	}
	if cond.nonce, err = r.u64("nonce"); err != nil {
		return cond, err
	}
	if cond.fee, err = r.u64("fee rate"); err != nil {
		return cond, err
	}

	singleSig := hashMode == stacks.HashModeP2PKH || hashMode == stacks.HashModeP2WPKH
	if singleSig {
		keyEncoding, err := r.u8("key encoding")
		if err != nil {
			return cond, err
		}
		if keyEncoding > 1 {
			return cond, model.NewDecodeError(r.pos-1, "invalid key encoding %#02x", keyEncoding)
		}
		if _, err := r.take(65, "signature"); err != nil {
			return cond, err
		}
		return cond, nil
	}

	fieldCount, err := r.u32("auth field count")
	if err != nil {
		return cond, err
	}
	for i := uint32(0); i < fieldCount; i++ {
		fieldID, err := r.u8("auth field id")
		if err != nil {
			return cond, err
		}
		switch fieldID {
		case 0x00, 0x01:
			if _, err := r.take(33, "auth field public key"); err != nil {
				return cond, err
			}
		case 0x02, 0x03:
			if _, err := r.take(65, "auth field signature"); err != nil {
				return cond, err
			}
		default:
			return cond, model.NewDecodeError(r.pos-1, "unknown auth field id %#02x", fieldID)
		}
	}
	if _, err := r.u16("signature count"); err != nil {
		return cond, err
	}
	return cond, nil
}

func (d *Decoder) senderAddress(cond spendingCondition) (string, error) {
	version, err := stacks.VersionForHashMode(cond.hashMode, d.chain)
	if err != nil {
		return "", err
	}
	return stacks.EncodeAddress(version, cond.signer)
}

// parsePostConditions captures the serialized post-condition region raw: the
// item count followed by u32 length-prefixed condition blobs.
func parsePostConditions(r *reader) ([]byte, error) {
	start := r.pos
	count, err := r.u32("post condition count")
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < count; i++ {
		if _, err := r.lpBytes32("post condition"); err != nil {
			return nil, err
		}
	}
	out := make([]byte, r.pos-start)
	copy(out, r.buf[start:r.pos])
	return out, nil
}

func (d *Decoder) parsePayload(r *reader, tx *model.Tx) error {
	typeID, err := r.u8("payload type")
	if err != nil {
		return err
	}

	switch model.TxTypeID(typeID) {
	case model.TxTypeTokenTransfer:
		tx.TypeID = model.TxTypeTokenTransfer
		recipient, err := d.parsePrincipal(r)
		if err != nil {
			return err
		}
		amount, err := r.u64("transfer amount")
		if err != nil {
			return err
		}
		memo, err := r.take(memoLength, "memo")
		if err != nil {
			return err
		}
		tx.TokenTransfer = &model.TokenTransferPayload{
			RecipientAddress: recipient,
			Amount:           amount,
			Memo:             append([]byte(nil), memo...),
		}

	case model.TxTypeSmartContract:
		tx.TypeID = model.TxTypeSmartContract
		name, err := r.lpString8("contract name")
		if err != nil {
			return err
		}
		if err := checkName(name, r.pos); err != nil {
			return err
		}
		code, err := r.lpBytes32("contract code body")
		if err != nil {
			return err
		}
		tx.SmartContract = &model.SmartContractPayload{
			ContractID: tx.SenderAddress + "." + name,
			SourceCode: string(code),
		}

	case model.TxTypeContractCall:
		tx.TypeID = model.TxTypeContractCall
		version, err := r.u8("contract address version")
		if err != nil {
			return err
		}
		hash, err := r.take(20, "contract address hash")
		if err != nil {
			return err
		}
		addr, err := stacks.EncodeAddress(version, hash)
		if err != nil {
			return model.NewDecodeError(r.pos-20, "contract address: %v", err)
		}
		name, err := r.lpString8("contract name")
		if err != nil {
			return err
		}
		if err := checkName(name, r.pos); err != nil {
			return err
		}
		fn, err := r.lpString8("function name")
		if err != nil {
			return err
		}
		if err := checkName(fn, r.pos); err != nil {
			return err
		}

		argStart := r.pos
		argCount, err := r.u32("function arg count")
		if err != nil {
			return err
		}
		for i := uint32(0); i < argCount; i++ {
			if _, err := r.lpBytes32("function arg"); err != nil {
				return err
			}
		}
		args := make([]byte, r.pos-argStart)
		copy(args, r.buf[argStart:r.pos])

		tx.ContractCall = &model.ContractCallPayload{
			ContractID:   addr + "." + name,
			FunctionName: fn,
			FunctionArgs: args,
		}

	case model.TxTypePoisonMicroblock:
		tx.TypeID = model.TxTypePoisonMicroblock
		header1, err := r.lpBytes32("microblock header 1")
		if err != nil {
			return err
		}
		header2, err := r.lpBytes32("microblock header 2")
		if err != nil {
			return err
		}
		tx.PoisonMicroblock = &model.PoisonMicroblockPayload{
			MicroblockHeader1: append([]byte(nil), header1...),
			MicroblockHeader2: append([]byte(nil), header2...),
		}

	case model.TxTypeCoinbase:
		tx.TypeID = model.TxTypeCoinbase
		payload, err := r.take(coinbasePayloadLength, "coinbase payload")
		if err != nil {
			return err
		}
		tx.Coinbase = &model.CoinbasePayload{Payload: append([]byte(nil), payload...)}

	default:
		return model.NewDecodeError(r.pos-1, "unknown payload type %#02x", typeID)
	}
	return nil
}

// parsePrincipal reads a standard or contract principal and renders it as a
// textual address, with ".name" appended for contract principals.
func (d *Decoder) parsePrincipal(r *reader) (string, error) {
	tag, err := r.u8("principal type")
	if err != nil {
		return "", err
	}
	if tag != principalStandard && tag != principalContract {
		return "", model.NewDecodeError(r.pos-1, "unknown principal type %#02x", tag)
	}
	version, err := r.u8("principal version")
	if err != nil {
		return "", err
	}
	hash, err := r.take(20, "principal hash")
	if err != nil {
		return "", err
	}
	addr, err := stacks.EncodeAddress(version, hash)
	if err != nil {
		return "", model.NewDecodeError(r.pos-21, "principal: %v", err)
	}
	if tag == principalContract {
		name, err := r.lpString8("principal contract name")
		if err != nil {
			return "", err
		}
		if err := checkName(name, r.pos); err != nil {
			return "", err
		}
		addr = addr + "." + name
	}
	return addr, nil
}

func checkHash(b hexutil.Bytes, field string) error {
	if len(b) != 32 {
		return model.NewDecodeError(0, "%s must be 32 bytes, got %d", field, len(b))
	}
	return nil
}

func checkName(name string, pos int) error {
	if name == "" || len(name) > maxNameLength {
		return model.NewDecodeError(pos, "invalid name length %d", len(name))
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		ok := c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-' || c == '_'
		if !ok {
			return model.NewDecodeError(pos, "invalid character %q in name", c)
		}
	}
	if c := name[0]; !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
		return model.NewDecodeError(pos, "name must start with a letter")
	}
	return nil
}
