// Package ingress turns external requests into service invocations and
// routes their responses back.
package ingress

import (
	"errors"
	"fmt"

	"vostore/internal/identifiers"
)

// SpanContext links an invocation to the trace of the request that caused
// it. The zero value means no parent.
type SpanContext struct {
	TraceID string
	SpanID  string
}

// ResponseSink names the ingress waiting for the result of an invocation.
type ResponseSink struct {
	IngressID string
}

// ServiceInvocation is a routed request targeting one virtual object.
type ServiceInvocation struct {
	ID         identifiers.ServiceInvocationID
	MethodName string
	Argument   []byte
	// ResponseSink is nil for one-way invocations.
	ResponseSink *ResponseSink
	SpanContext  SpanContext
}

type UnknownServiceMethodError struct {
	Service, Method string
}

func (e *UnknownServiceMethodError) Error() string {
	return fmt.Sprintf("unknown service method %s/%s", e.Service, e.Method)
}

type KeyExtractionError struct {
	Service, Method string
	Err             error
}

func (e *KeyExtractionError) Error() string {
	return fmt.Sprintf("extracting key of %s/%s: %v", e.Service, e.Method, e.Err)
}

func (e *KeyExtractionError) Unwrap() error { return e.Err }

// ServiceInvocationFactory builds invocations from raw requests.
type ServiceInvocationFactory interface {
	Create(service, method string, payload []byte, sink *ResponseSink, span SpanContext) (ServiceInvocation, error)
}

// InvocationFactory keys requests with a KeyExtractor and stamps each one
// with a fresh time-ordered invocation id.
type InvocationFactory struct {
	extractor KeyExtractor
	newID     func() identifiers.InvocationID
}

var _ ServiceInvocationFactory = (*InvocationFactory)(nil)

func NewInvocationFactory(extractor KeyExtractor) *InvocationFactory {
	return &InvocationFactory{extractor: extractor, newID: identifiers.NewInvocationID}
}

func (f *InvocationFactory) Create(service, method string, payload []byte, sink *ResponseSink, span SpanContext) (ServiceInvocation, error) {
	key, err := f.extractor.Extract(service, method, payload)
	if err != nil {
		if errors.Is(err, ErrExtractorNotFound) {
			return ServiceInvocation{}, &UnknownServiceMethodError{Service: service, Method: method}
		}
		return ServiceInvocation{}, &KeyExtractionError{Service: service, Method: method, Err: err}
	}
	return ServiceInvocation{
		ID:           identifiers.NewServiceInvocationID(service, key, f.newID()),
		MethodName:   method,
		Argument:     payload,
		ResponseSink: sink,
		SpanContext:  span,
	}, nil
}
