package storage

import (
	"encoding/hex"
	"errors"
	"strings"

	"vostore/internal/storage/keys"
)

// Error kinds. Every *Error carries exactly one of these as its Kind, and
// callers branch with errors.Is.
var (
	// ErrDecode: stored bytes are malformed or truncated.
	ErrDecode = errors.New("decode error")
	// ErrValidation: bytes decode but describe a state this version does not
	// understand.
	ErrValidation = errors.New("validation error")
	// ErrIntegrity: a full scan hit an undecodable row and was aborted.
	// Always wraps an ErrDecode or ErrValidation error.
	ErrIntegrity = errors.New("integrity fault")
	// ErrBackend: the substrate failed.
	ErrBackend = errors.New("backend error")
	// ErrTxDone: the transaction was already committed or rolled back.
	ErrTxDone = errors.New("transaction already closed")
)

// Error describes a failed storage operation on one table.
type Error struct {
	Op    string
	Table keys.TableKind
	Key   []byte
	Kind  error
	Err   error
}

// NewError builds an *Error of the given kind.
func NewError(op string, kind error, table keys.TableKind, key []byte, err error) *Error {
	return &Error{Op: op, Table: table, Key: key, Kind: kind, Err: err}
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func (e *Error) Error() string {
	var buf strings.Builder
	buf.WriteString("storage: ")
	if e.Op != "" {
		buf.WriteString(e.Op)
		if e.Table != 0 {
			buf.WriteByte(' ')
		}
	}
	if e.Table != 0 {
		buf.WriteString(e.Table.String())
	}
	if e.Key != nil {
		buf.WriteByte('/')
		buf.WriteString(hex.EncodeToString(e.Key))
	}
	buf.WriteString(": ")
	buf.WriteString(e.Kind.Error())
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}
