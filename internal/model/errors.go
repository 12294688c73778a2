package model

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
)

// DecodeError reports a malformed block message. The whole message is
// rejected; decode failures are never retried.
type DecodeError struct {
	Offset int
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode failed at offset %d: %s", e.Offset, e.Reason)
}

// NewDecodeError builds a DecodeError at a payload offset.
func NewDecodeError(offset int, format string, args ...any) *DecodeError {
	return &DecodeError{Offset: offset, Reason: fmt.Sprintf(format, args...)}
}

// ErrParentMissing means a block arrived whose parent is not indexed yet.
// Indicates out-of-order delivery; upstream should replay.
var ErrParentMissing = errors.New("parent block not indexed")

// ErrSchemaCorruption means a unique key matched more than one row, or a row
// that must exist is gone. Ingestion halts for operator intervention.
var ErrSchemaCorruption = errors.New("chain state corrupted")

// DecodeErrorRecord is the journal entry written for a rejected message.
type DecodeErrorRecord struct {
	Offset      uint64 `json:"offset"`
	BlockHash   string `json:"block_hash"`
	BlockHeight uint64 `json:"block_height"`
	TxIndex     uint32 `json:"tx_index"`
	Error       string `json:"error"`
}

// IsTransient reports whether an ingestion error is worth retrying: I/O
// failures, timeouts, and serialization conflicts. Decode, parent-missing,
// and corruption errors are never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var de *DecodeError
	if errors.As(err, &de) {
		return false
	}
	if errors.Is(err, ErrParentMissing) || errors.Is(err, ErrSchemaCorruption) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Connection exceptions (class 08), serialization failure, deadlock.
		if len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08" {
			return true
		}
		switch pgErr.Code {
		case "40001", "40P01", "57P03":
			return true
		}
		return false
	}
	if pgconn.SafeToRetry(err) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)
}
