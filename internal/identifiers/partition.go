package identifiers

import (
	"errors"
	"fmt"
)

// PartitionKeyRange is an inclusive range of partition keys. It is empty
// when Start > End.
type PartitionKeyRange struct {
	Start PartitionKey
	End   PartitionKey
}

// FullPartitionKeyRange covers the whole key space.
var FullPartitionKeyRange = PartitionKeyRange{Start: 0, End: MaxPartitionKey}

// SinglePartitionKey is the range [pk, pk].
func SinglePartitionKey(pk PartitionKey) PartitionKeyRange {
	return PartitionKeyRange{Start: pk, End: pk}
}

func (r PartitionKeyRange) IsEmpty() bool { return r.Start > r.End }

func (r PartitionKeyRange) Contains(pk PartitionKey) bool {
	return pk >= r.Start && pk <= r.End
}

func (r PartitionKeyRange) String() string {
	return fmt.Sprintf("[%d, %d]", r.Start, r.End)
}

// PartitionID numbers the partitions of a FixedPartitionTable.
type PartitionID uint16

var ErrUnknownPartition = errors.New("unknown partition")

// FixedPartitionTable splits the partition key space into Count contiguous
// ranges of (almost) equal size. The last partition absorbs the remainder.
type FixedPartitionTable struct {
	Count uint16
}

// NewFixedPartitionTable returns a table with at least one partition.
func NewFixedPartitionTable(count uint16) FixedPartitionTable {
	if count == 0 {
		count = 1
	}
	return FixedPartitionTable{Count: count}
}

func (t FixedPartitionTable) width() uint64 {
	if t.Count <= 1 {
		return 0
	}
	return uint64(MaxPartitionKey)/uint64(t.Count) + 1
}

// PartitionFor returns the partition owning pk.
func (t FixedPartitionTable) PartitionFor(pk PartitionKey) PartitionID {
	w := t.width()
	if w == 0 {
		return 0
	}
	p := uint64(pk) / w
	if p >= uint64(t.Count) {
		p = uint64(t.Count) - 1
	}
	return PartitionID(p)
}

// RangeFor returns the inclusive key range of a partition.
func (t FixedPartitionTable) RangeFor(id PartitionID) (PartitionKeyRange, error) {
	count := t.Count
	if count == 0 {
		count = 1
	}
	if uint16(id) >= count {
		return PartitionKeyRange{}, fmt.Errorf("%w: %d (table has %d)", ErrUnknownPartition, id, count)
	}
	w := t.width()
	if w == 0 {
		return FullPartitionKeyRange, nil
	}
	start := PartitionKey(uint64(id) * w)
	end := MaxPartitionKey
	if uint16(id) < count-1 {
		end = PartitionKey(uint64(id+1)*w - 1)
	}
	return PartitionKeyRange{Start: start, End: end}, nil
}
