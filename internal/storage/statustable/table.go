// Package statustable persists the lock status of virtual objects.
//
// Unlocked, by far the most common state, is stored as the absence of a
// row: writing it deletes the row and reading a missing row returns it.
package statustable

import (
	"encoding/hex"
	"iter"

	"vostore/internal/identifiers"
	"vostore/internal/logging"
	"vostore/internal/storage"
	"vostore/internal/storage/keys"
	"vostore/pkg/proto"
)

var logger = logging.For("statustable")

// ReadOnlyTable is the read capability of the status table.
type ReadOnlyTable interface {
	GetVirtualObjectStatus(id identifiers.ServiceID) (VirtualObjectStatus, error)
}

// Table adds mutation to ReadOnlyTable.
type Table interface {
	ReadOnlyTable
	PutVirtualObjectStatus(id identifiers.ServiceID, status VirtualObjectStatus) error
	DeleteVirtualObjectStatus(id identifiers.ServiceID) error
}

// Row is one decoded, fully owned table row.
type Row struct {
	PartitionKey identifiers.PartitionKey
	Name         string
	Key          []byte
	Status       VirtualObjectStatus
}

func (r Row) ServiceID() identifiers.ServiceID {
	return identifiers.NewServiceIDWithPartitionKey(r.PartitionKey, r.Name, r.Key)
}

// Reader reads the status table through any storage handle.
type Reader struct {
	r storage.Reader
}

var _ ReadOnlyTable = (*Reader)(nil)

func NewReadOnly(r storage.Reader) *Reader {
	return &Reader{r: r}
}

func (t *Reader) GetVirtualObjectStatus(id identifiers.ServiceID) (VirtualObjectStatus, error) {
	return getStatus(t.r, id)
}

// AllVirtualObjectStatus yields every row whose partition key lies in rng,
// ordered by encoded key. The sequence can be ranged over once.
//
// A row that fails to decode aborts the scan: the sequence yields one
// error matching storage.ErrIntegrity plus the underlying class
// (storage.ErrDecode or storage.ErrValidation) and ends. Rows are never
// skipped, because consumers such as partition export must see all state
// or fail.
func (t *Reader) AllVirtualObjectStatus(rng identifiers.PartitionKeyRange) iter.Seq2[Row, error] {
	return scanStatus(t.r, rng)
}

// Writer reads and mutates the status table.
type Writer struct {
	Reader
	w storage.Writer
}

var _ Table = (*Writer)(nil)

func New(w storage.Writer) *Writer {
	return &Writer{Reader: Reader{r: w}, w: w}
}

func (t *Writer) PutVirtualObjectStatus(id identifiers.ServiceID, status VirtualObjectStatus) error {
	return putStatus(t.w, id, status)
}

func (t *Writer) DeleteVirtualObjectStatus(id identifiers.ServiceID) error {
	return deleteStatus(t.w, id)
}

func getStatus(r storage.Reader, id identifiers.ServiceID) (VirtualObjectStatus, error) {
	key := KeyFor(id)
	return storage.GetBlocking(r, key, func(value []byte, found bool) (VirtualObjectStatus, error) {
		if !found {
			return Unlocked, nil
		}
		return decodeStatus("get", keys.Serialize(key), value)
	})
}

func putStatus(w storage.Writer, id identifiers.ServiceID, status VirtualObjectStatus) error {
	key := KeyFor(id)
	if status.IsUnlocked() {
		logger.Debug("unlocking virtual object", "service", id.Name, "pk", uint64(id.PartitionKey()))
		return w.DeleteKey(key)
	}
	if err := status.Validate(); err != nil {
		return storage.NewError("put", storage.ErrValidation, keys.ServiceStatus, keys.Serialize(key), err)
	}
	logger.Debug("locking virtual object", "service", id.Name, "pk", uint64(id.PartitionKey()), "invocation", status.InvocationID.String())
	return w.PutKV(key, ToWire(status).Marshal())
}

func deleteStatus(w storage.Writer, id identifiers.ServiceID) error {
	return w.DeleteKey(KeyFor(id))
}

func decodeStatus(op string, key, value []byte) (VirtualObjectStatus, error) {
	var msg proto.VirtualObjectStatus
	if err := msg.Unmarshal(value); err != nil {
		return Unlocked, storage.NewError(op, storage.ErrDecode, keys.ServiceStatus, key, err)
	}
	status, err := FromWire(&msg)
	if err != nil {
		return Unlocked, storage.NewError(op, storage.ErrValidation, keys.ServiceStatus, key, err)
	}
	return status, nil
}

func decodeRow(key, value []byte) (Row, error) {
	k, err := DeserializeServiceStatusKey(key)
	if err != nil {
		return Row{}, storage.NewError("scan", storage.ErrDecode, keys.ServiceStatus, key, err)
	}
	status, err := decodeStatus("scan", key, value)
	if err != nil {
		return Row{}, err
	}
	return Row{
		PartitionKey: k.PartitionKey,
		Name:         k.ServiceName,
		Key:          k.ServiceKey,
		Status:       status,
	}, nil
}

func scanStatus(r storage.Reader, rng identifiers.PartitionKeyRange) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		raw, err := r.IteratorFrom(keys.PartitionKeyRange(keys.ServiceStatus, rng))
		if err != nil {
			yield(Row{}, err)
			return
		}
		it := storage.NewOwnedIterator(raw)
		defer func() { _ = it.Close() }()

		for {
			key, value, ok := it.Next()
			if !ok {
				break
			}
			row, err := decodeRow(key, value)
			if err != nil {
				logger.Error("virtual object status scan aborted", "range", rng.String(), "key", hex.EncodeToString(key), "err", err)
				yield(Row{}, storage.NewError("scan", storage.ErrIntegrity, keys.ServiceStatus, key, err))
				return
			}
			if !yield(row, nil) {
				return
			}
		}
		if err := it.Err(); err != nil {
			yield(Row{}, err)
		}
	}
}
