// Package identifiers defines entity identities and partitioning for the
// runtime: partition keys, virtual object ids and invocation ids.
package identifiers

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// PartitionKey shards entities. It is always the first field of a table key.
type PartitionKey uint64

// MaxPartitionKey is the upper end of the partition key space.
const MaxPartitionKey = PartitionKey(math.MaxUint64)

// PartitionKeyFor derives the partition key of the entity (name, key).
// The same entity always lands on the same partition.
func PartitionKeyFor(name string, key []byte) PartitionKey {
	var lenBuf [binary.MaxVarintLen64]byte
	d := xxhash.New()
	n := binary.PutUvarint(lenBuf[:], uint64(len(name)))
	_, _ = d.Write(lenBuf[:n])
	_, _ = d.WriteString(name)
	_, _ = d.Write(key)
	return PartitionKey(d.Sum64())
}

// ServiceID addresses one virtual object instance.
type ServiceID struct {
	Name string
	Key  []byte

	partitionKey PartitionKey
}

// NewServiceID builds an id and derives its partition key.
func NewServiceID(name string, key []byte) ServiceID {
	return ServiceID{Name: name, Key: key, partitionKey: PartitionKeyFor(name, key)}
}

// NewServiceIDWithPartitionKey builds an id with an explicit partition key,
// as read back from storage.
func NewServiceIDWithPartitionKey(pk PartitionKey, name string, key []byte) ServiceID {
	return ServiceID{Name: name, Key: key, partitionKey: pk}
}

func (id ServiceID) PartitionKey() PartitionKey { return id.partitionKey }

func (id ServiceID) String() string {
	return fmt.Sprintf("%s/%x", id.Name, id.Key)
}

// InvocationID globally identifies one invocation.
type InvocationID uuid.UUID

// NilInvocationID is the zero id. It never identifies a real invocation.
var NilInvocationID InvocationID

// NewInvocationID returns a fresh time-ordered (v7) id.
func NewInvocationID() InvocationID {
	return InvocationID(uuid.Must(uuid.NewV7()))
}

// ParseInvocationID parses the canonical textual form.
func ParseInvocationID(s string) (InvocationID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return NilInvocationID, fmt.Errorf("parsing invocation id: %w", err)
	}
	return InvocationID(u), nil
}

// InvocationIDFromBytes accepts exactly 16 raw bytes.
func InvocationIDFromBytes(b []byte) (InvocationID, error) {
	u, err := uuid.FromBytes(b)
	if err != nil {
		return NilInvocationID, fmt.Errorf("invocation id from bytes: %w", err)
	}
	return InvocationID(u), nil
}

func (id InvocationID) Bytes() []byte {
	b := make([]byte, len(id))
	copy(b, id[:])
	return b
}

func (id InvocationID) IsNil() bool { return id == NilInvocationID }

func (id InvocationID) String() string { return uuid.UUID(id).String() }

// ServiceInvocationID identifies one invocation targeting one virtual object.
type ServiceInvocationID struct {
	ServiceID    ServiceID
	InvocationID InvocationID
}

// NewServiceInvocationID derives the service id from (name, key).
func NewServiceInvocationID(name string, key []byte, invocationID InvocationID) ServiceInvocationID {
	return ServiceInvocationID{ServiceID: NewServiceID(name, key), InvocationID: invocationID}
}

func (id ServiceInvocationID) PartitionKey() PartitionKey { return id.ServiceID.PartitionKey() }

func (id ServiceInvocationID) String() string {
	return fmt.Sprintf("%s-%s", id.ServiceID, id.InvocationID)
}
