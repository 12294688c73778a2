package decoder

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
)

// TxID derives the transaction identifier from the raw wire bytes.
func TxID(raw []byte) []byte {
	sum := sha512.Sum512_256(raw)
	return sum[:]
}

// EventID is a stable fingerprint for one event:
// sha256(uint32BE(eventIndex) || txID)[16:32].
func EventID(eventIndex uint32, txID []byte) []byte {
	buf := make([]byte, 4, 4+len(txID))
	binary.BigEndian.PutUint32(buf, eventIndex)
	sum := sha256.Sum256(append(buf, txID...))
	return sum[16:32]
}
