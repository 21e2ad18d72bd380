// Package export streams status table rows between stores.
//
// A stream is a msgpack header followed by chunks of at most chunkSize rows
// and a final empty chunk marked End. A stream without the End chunk is
// truncated and Import rejects it.
package export

import (
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/vmihailenco/msgpack/v5"

	"vostore/internal/identifiers"
	"vostore/internal/logging"
	"vostore/internal/storage/keys"
	"vostore/internal/storage/statustable"
)

const formatVersion = 1

// DefaultChunkSize is used when a caller passes a non-positive chunk size.
const DefaultChunkSize = 512

var logger = logging.For("export")

// ErrTruncated is returned by Import for a stream that ends before its End
// chunk.
var ErrTruncated = errors.New("export stream truncated")

type header struct {
	Version int    `msgpack:"v"`
	Table   string `msgpack:"table"`
}

type chunk struct {
	Rows []record `msgpack:"rows"`
	End  bool     `msgpack:"end,omitempty"`
}

type record struct {
	PartitionKey uint64 `msgpack:"pk"`
	Name         string `msgpack:"name"`
	Key          []byte `msgpack:"key"`
	InvocationID []byte `msgpack:"inv,omitempty"`
}

// Stats counts what a stream carried.
type Stats struct {
	Rows   int
	Chunks int
}

func toRecord(row statustable.Row) record {
	r := record{PartitionKey: uint64(row.PartitionKey), Name: row.Name, Key: row.Key}
	if !row.Status.IsUnlocked() {
		r.InvocationID = row.Status.InvocationID.Bytes()
	}
	return r
}

func (r record) status() (statustable.VirtualObjectStatus, error) {
	if len(r.InvocationID) == 0 {
		return statustable.Unlocked, nil
	}
	id, err := identifiers.InvocationIDFromBytes(r.InvocationID)
	if err != nil {
		return statustable.Unlocked, err
	}
	status := statustable.LockedBy(id)
	if err := status.Validate(); err != nil {
		return statustable.Unlocked, err
	}
	return status, nil
}

// Export drains rows into w. It stops at the first error the sequence
// yields, so a scan integrity fault fails the export instead of producing a
// partial stream that looks complete.
func Export(w io.Writer, rows iter.Seq2[statustable.Row, error], chunkSize int) (Stats, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	enc := msgpack.GetEncoder()
	defer msgpack.PutEncoder(enc)
	enc.Reset(w)

	var stats Stats
	if err := enc.Encode(header{Version: formatVersion, Table: keys.ServiceStatus.String()}); err != nil {
		return stats, fmt.Errorf("writing export header: %w", err)
	}

	buf := make([]record, 0, chunkSize)
	flush := func(end bool) error {
		if len(buf) == 0 && !end {
			return nil
		}
		if err := enc.Encode(chunk{Rows: buf, End: end}); err != nil {
			return fmt.Errorf("writing export chunk %d: %w", stats.Chunks, err)
		}
		stats.Rows += len(buf)
		if len(buf) > 0 {
			stats.Chunks++
		}
		buf = buf[:0]
		return nil
	}

	for row, err := range rows {
		if err != nil {
			return stats, fmt.Errorf("reading rows: %w", err)
		}
		buf = append(buf, toRecord(row))
		if len(buf) == chunkSize {
			if err := flush(false); err != nil {
				return stats, err
			}
		}
	}
	if err := flush(false); err != nil {
		return stats, err
	}
	if err := flush(true); err != nil {
		return stats, err
	}
	logger.Info("export finished", "rows", stats.Rows, "chunks", stats.Chunks)
	return stats, nil
}

// Import replays a stream written by Export into table. Pass a table over a
// transaction to make the transfer atomic.
func Import(r io.Reader, table statustable.Table) (Stats, error) {
	dec := msgpack.GetDecoder()
	defer msgpack.PutDecoder(dec)
	dec.Reset(r)

	var stats Stats
	var h header
	if err := dec.Decode(&h); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return stats, ErrTruncated
		}
		return stats, fmt.Errorf("reading export header: %w", err)
	}
	if h.Version != formatVersion {
		return stats, fmt.Errorf("unsupported export version %d", h.Version)
	}
	if h.Table != keys.ServiceStatus.String() {
		return stats, fmt.Errorf("export holds table %q, want %q", h.Table, keys.ServiceStatus)
	}

	for {
		var c chunk
		if err := dec.Decode(&c); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return stats, ErrTruncated
			}
			return stats, fmt.Errorf("reading export chunk %d: %w", stats.Chunks, err)
		}
		for _, rec := range c.Rows {
			status, err := rec.status()
			if err != nil {
				return stats, fmt.Errorf("row %d: %w", stats.Rows, err)
			}
			id := identifiers.NewServiceIDWithPartitionKey(identifiers.PartitionKey(rec.PartitionKey), rec.Name, rec.Key)
			if err := table.PutVirtualObjectStatus(id, status); err != nil {
				return stats, fmt.Errorf("importing %s: %w", id, err)
			}
			stats.Rows++
		}
		if len(c.Rows) > 0 {
			stats.Chunks++
		}
		if c.End {
			break
		}
	}
	logger.Info("import finished", "rows", stats.Rows, "chunks", stats.Chunks)
	return stats, nil
}
