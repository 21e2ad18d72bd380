// Package proto holds the persisted wire messages. They follow the protobuf
// wire format so the schema can evolve by adding fields:
//
//	message VirtualObjectStatus {
//	  message Unlocked {}
//	  message Locked { bytes invocation_id = 1; }
//	  oneof status {
//	    Unlocked unlocked = 1;
//	    Locked locked = 2;
//	  }
//	}
//
// Field numbers are fixed forever.
package proto

import (
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	statusUnlockedField protowire.Number = 1
	statusLockedField   protowire.Number = 2

	lockedInvocationIDField protowire.Number = 1
)

// VirtualObjectStatus is the stored form of a virtual object's lock status.
// At most one of Unlocked and Locked is set; decoding a message that carries
// both keeps the last one, as protobuf oneofs do.
type VirtualObjectStatus struct {
	Unlocked *VirtualObjectStatus_Unlocked
	Locked   *VirtualObjectStatus_Locked
}

type VirtualObjectStatus_Unlocked struct{}

type VirtualObjectStatus_Locked struct {
	InvocationId []byte
}

func (m *VirtualObjectStatus) GetLocked() *VirtualObjectStatus_Locked {
	if m == nil {
		return nil
	}
	return m.Locked
}

func (m *VirtualObjectStatus) GetUnlocked() *VirtualObjectStatus_Unlocked {
	if m == nil {
		return nil
	}
	return m.Unlocked
}

func (m *VirtualObjectStatus_Locked) GetInvocationId() []byte {
	if m == nil {
		return nil
	}
	return m.InvocationId
}

// Marshal encodes the message. It never fails.
func (m *VirtualObjectStatus) Marshal() []byte {
	return m.MarshalAppend(nil)
}

func (m *VirtualObjectStatus) MarshalAppend(b []byte) []byte {
	if m == nil {
		return b
	}
	switch {
	case m.Locked != nil:
		b = protowire.AppendTag(b, statusLockedField, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Locked.marshalAppend(nil))
	case m.Unlocked != nil:
		b = protowire.AppendTag(b, statusUnlockedField, protowire.BytesType)
		b = protowire.AppendBytes(b, nil)
	}
	return b
}

func (m *VirtualObjectStatus_Locked) marshalAppend(b []byte) []byte {
	if len(m.InvocationId) > 0 {
		b = protowire.AppendTag(b, lockedInvocationIDField, protowire.BytesType)
		b = protowire.AppendBytes(b, m.InvocationId)
	}
	return b
}

// Unmarshal decodes b into m, replacing its contents. Unknown fields are
// skipped; malformed input fails with a protowire parse error.
func (m *VirtualObjectStatus) Unmarshal(b []byte) error {
	*m = VirtualObjectStatus{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == statusUnlockedField && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			if err := consumeFields(v, skipField); err != nil {
				return 0, err
			}
			m.Unlocked, m.Locked = &VirtualObjectStatus_Unlocked{}, nil
			return n, nil
		case num == statusLockedField && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			locked := &VirtualObjectStatus_Locked{}
			if err := locked.unmarshal(v); err != nil {
				return 0, err
			}
			m.Unlocked, m.Locked = nil, locked
			return n, nil
		}
		return skipField(num, typ, b)
	})
}

func (m *VirtualObjectStatus_Locked) unmarshal(b []byte) error {
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == lockedInvocationIDField && typ == protowire.BytesType {
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			m.InvocationId = append([]byte(nil), v...)
			return n, nil
		}
		return skipField(num, typ, b)
	})
}

// consumeFields walks the fields of one message. fn consumes the value that
// follows each tag and reports how many bytes it used.
func consumeFields(b []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		n, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

func skipField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	n := protowire.ConsumeFieldValue(num, typ, b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	return n, nil
}
