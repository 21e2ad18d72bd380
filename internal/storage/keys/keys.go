// Package keys encodes composite table keys. Every key starts with a
// fixed-width big-endian partition key, so plain byte comparison orders rows
// by partition first and a partition's rows are contiguous on disk.
//
// Field encodings are part of the on-disk format and must not change
// without a migration:
//
//	partition key   8 bytes, big-endian
//	string          uvarint length, UTF-8 bytes
//	bytes           uvarint length, raw bytes
package keys

import (
	"bytes"
	"fmt"

	"vostore/internal/identifiers"
)

// TableKind tags a table's key namespace. Each kind lives in its own bucket
// of the substrate, so keys never collide across kinds.
type TableKind uint8

const (
	ServiceStatus TableKind = iota + 1
)

var tableBuckets = map[TableKind][]byte{
	ServiceStatus: []byte("service_status"),
}

// Bucket returns the substrate namespace of the table. It panics on an
// unregistered kind.
func (k TableKind) Bucket() []byte {
	b, ok := tableBuckets[k]
	if !ok {
		panic(fmt.Sprintf("keys: unknown table kind %d", uint8(k)))
	}
	return b
}

func (k TableKind) String() string {
	if b, ok := tableBuckets[k]; ok {
		return string(b)
	}
	return fmt.Sprintf("table(%d)", uint8(k))
}

// TableKey is a typed key that knows its table and its byte encoding.
// Partially built keys encode only their leading fields.
type TableKey interface {
	Table() TableKind
	AppendTo(buf []byte) []byte
}

// Serialize encodes a key into a fresh slice.
func Serialize(k TableKey) []byte {
	return k.AppendTo(nil)
}

// TableScan is a byte range over one table. Start is inclusive, End is
// exclusive; a nil bound is open.
type TableScan struct {
	Table TableKind
	Start []byte
	End   []byte
}

// FullScan covers every row of the table.
func FullScan(table TableKind) TableScan {
	return TableScan{Table: table}
}

// PartitionKeyRange covers all rows whose partition key lies in rng.
func PartitionKeyRange(table TableKind, rng identifiers.PartitionKeyRange) TableScan {
	if rng.IsEmpty() {
		// Start == End selects nothing.
		start := AppendPartitionKey(nil, rng.Start)
		return TableScan{Table: table, Start: start, End: start}
	}
	scan := TableScan{Table: table, Start: AppendPartitionKey(nil, rng.Start)}
	if rng.End != identifiers.MaxPartitionKey {
		scan.End = AppendPartitionKey(nil, rng.End+1)
	}
	return scan
}

// KeyPrefix covers all rows whose encoded key starts with the encoding of k.
func KeyPrefix(k TableKey) TableScan {
	prefix := Serialize(k)
	return TableScan{Table: k.Table(), Start: prefix, End: prefixSuccessor(prefix)}
}

// Contains reports whether key falls inside the scan bounds.
func (s TableScan) Contains(key []byte) bool {
	if s.Start != nil && bytes.Compare(key, s.Start) < 0 {
		return false
	}
	if s.End != nil && bytes.Compare(key, s.End) >= 0 {
		return false
	}
	return true
}

// prefixSuccessor returns the smallest byte string greater than every
// string prefixed by p, or nil if p is empty or all 0xFF.
func prefixSuccessor(p []byte) []byte {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] != 0xFF {
			out := make([]byte, i+1)
			copy(out, p[:i+1])
			out[i]++
			return out
		}
	}
	return nil
}
