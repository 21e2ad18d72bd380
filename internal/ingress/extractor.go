package ingress

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"
)

// ErrExtractorNotFound is returned by a KeyExtractor that has no rule for
// the requested service method.
var ErrExtractorNotFound = errors.New("key extractor not found")

// KeyExtractor derives the virtual object key of a request from its payload.
type KeyExtractor interface {
	Extract(service, method string, payload []byte) ([]byte, error)
}

// KeyRule tells a Registry where a method keeps its key.
type KeyRule struct {
	// Unkeyed methods get a fresh random key per request.
	Unkeyed bool
	// Field is the protobuf field holding the key when Unkeyed is false.
	Field protowire.Number
}

func UnkeyedRule() KeyRule { return KeyRule{Unkeyed: true} }

func FieldRule(n protowire.Number) KeyRule { return KeyRule{Field: n} }

type methodRef struct {
	service, method string
}

// Registry is a KeyExtractor backed by per-method rules. It is safe for
// concurrent use.
type Registry struct {
	mu    sync.RWMutex
	rules map[methodRef]KeyRule
}

var _ KeyExtractor = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{rules: make(map[methodRef]KeyRule)}
}

// Register sets the rule for one method, replacing any previous one.
func (r *Registry) Register(service, method string, rule KeyRule) error {
	if !rule.Unkeyed && !rule.Field.IsValid() {
		return fmt.Errorf("register %s/%s: invalid key field %d", service, method, rule.Field)
	}
	r.mu.Lock()
	r.rules[methodRef{service, method}] = rule
	r.mu.Unlock()
	return nil
}

func (r *Registry) Extract(service, method string, payload []byte) ([]byte, error) {
	r.mu.RLock()
	rule, ok := r.rules[methodRef{service, method}]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrExtractorNotFound
	}
	if rule.Unkeyed {
		id := uuid.New()
		return id[:], nil
	}
	return extractField(payload, rule.Field)
}

// extractField returns the value of field num. Length-delimited fields yield
// their contents and varint fields their encoded bytes. A missing field is
// the empty key. Repeated occurrences resolve to the last, as protobuf
// merging does for scalars.
func extractField(payload []byte, num protowire.Number) ([]byte, error) {
	var key []byte
	for len(payload) > 0 {
		n, typ, l := protowire.ConsumeTag(payload)
		if l < 0 {
			return nil, fmt.Errorf("parsing tag: %w", protowire.ParseError(l))
		}
		payload = payload[l:]

		m := protowire.ConsumeFieldValue(n, typ, payload)
		if m < 0 {
			return nil, fmt.Errorf("parsing field %d: %w", n, protowire.ParseError(m))
		}
		if n == num {
			switch typ {
			case protowire.BytesType:
				v, _ := protowire.ConsumeBytes(payload)
				key = v
			case protowire.VarintType:
				key = payload[:m]
			default:
				return nil, fmt.Errorf("key field %d has wire type %d", num, typ)
			}
		}
		payload = payload[m:]
	}
	if key == nil {
		return []byte{}, nil
	}
	return bytes.Clone(key), nil
}
