package statustable

import (
	"fmt"

	"vostore/internal/identifiers"
	"vostore/pkg/proto"
)

// VirtualObjectStatus tells whether a virtual object is currently locked by
// an invocation. The zero value is Unlocked.
type VirtualObjectStatus struct {
	Locked       bool
	InvocationID identifiers.InvocationID
}

// Unlocked is the sentinel status. It is never stored: an unlocked object
// has no row.
var Unlocked = VirtualObjectStatus{}

// LockedBy returns the status of an object held by invocation id.
func LockedBy(id identifiers.InvocationID) VirtualObjectStatus {
	return VirtualObjectStatus{Locked: true, InvocationID: id}
}

func (s VirtualObjectStatus) IsUnlocked() bool { return !s.Locked }

func (s VirtualObjectStatus) String() string {
	if s.IsUnlocked() {
		return "unlocked"
	}
	return "locked(" + s.InvocationID.String() + ")"
}

// Validate reports a status that could not be read back once stored.
func (s VirtualObjectStatus) Validate() error {
	if s.Locked && s.InvocationID.IsNil() {
		return &ValidationError{Reason: "locked: nil invocation id"}
	}
	return nil
}

// ValidationError reports a well-formed wire message that does not describe
// a status this version understands.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid virtual object status: " + e.Reason
}

// ToWire converts a status to its stored message.
func ToWire(s VirtualObjectStatus) *proto.VirtualObjectStatus {
	if s.IsUnlocked() {
		return &proto.VirtualObjectStatus{Unlocked: &proto.VirtualObjectStatus_Unlocked{}}
	}
	return &proto.VirtualObjectStatus{
		Locked: &proto.VirtualObjectStatus_Locked{InvocationId: s.InvocationID.Bytes()},
	}
}

// FromWire validates a decoded message.
func FromWire(m *proto.VirtualObjectStatus) (VirtualObjectStatus, error) {
	switch {
	case m.GetLocked() != nil:
		raw := m.GetLocked().GetInvocationId()
		id, err := identifiers.InvocationIDFromBytes(raw)
		if err != nil {
			return Unlocked, &ValidationError{Reason: fmt.Sprintf("locked: invocation id has %d bytes", len(raw))}
		}
		status := LockedBy(id)
		if err := status.Validate(); err != nil {
			return Unlocked, err
		}
		return status, nil
	case m.GetUnlocked() != nil:
		return Unlocked, nil
	default:
		return Unlocked, &ValidationError{Reason: "status not set"}
	}
}
