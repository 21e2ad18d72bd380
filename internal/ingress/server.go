package ingress

import (
	"context"
	"errors"

	"vostore/internal/identifiers"
)

// ErrServerStopped is returned to callers whose request was still pending
// when the server loop exited.
var ErrServerStopped = errors.New("ingress server stopped")

// Result is what a caller of Server.Call gets back.
type Result struct {
	ID      identifiers.ServiceInvocationID
	Payload []byte
}

type request struct {
	service, method string
	payload         []byte
	span            SpanContext
	oneWay          bool
	reply           chan reply
}

type reply struct {
	res Result
	err error
}

// Server is an in-process ingress. It turns calls into service invocations,
// forwards them on an outbound channel and matches responses coming back
// through a ResponseDispatcherLoop to the waiting callers.
type Server struct {
	id         string
	factory    ServiceInvocationFactory
	dispatcher *ResponseDispatcherLoop
	out        chan<- ServiceInvocation

	requests chan request
	done     chan struct{}
}

func NewServer(id string, factory ServiceInvocationFactory, dispatcher *ResponseDispatcherLoop, out chan<- ServiceInvocation) *Server {
	return &Server{
		id:         id,
		factory:    factory,
		dispatcher: dispatcher,
		out:        out,
		requests:   make(chan request),
		done:       make(chan struct{}),
	}
}

// Call invokes a method and waits for its response.
func (s *Server) Call(ctx context.Context, service, method string, payload []byte, span SpanContext) (Result, error) {
	return s.submit(ctx, request{service: service, method: method, payload: payload, span: span})
}

// Send invokes a method without waiting for a response. It returns once the
// invocation has been forwarded.
func (s *Server) Send(ctx context.Context, service, method string, payload []byte, span SpanContext) (identifiers.ServiceInvocationID, error) {
	res, err := s.submit(ctx, request{service: service, method: method, payload: payload, span: span, oneWay: true})
	return res.ID, err
}

func (s *Server) submit(ctx context.Context, req request) (Result, error) {
	req.reply = make(chan reply, 1)
	select {
	case s.requests <- req:
	case <-s.done:
		return Result{}, ErrServerStopped
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	select {
	case r := <-req.reply:
		return r.res, r.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Run serves requests until ctx is cancelled or the dispatcher closes this
// server's sink.
func (s *Server) Run(ctx context.Context) error {
	responses, err := s.dispatcher.Register(ctx, s.id)
	if err != nil {
		close(s.done)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	pending := make(map[identifiers.InvocationID]chan reply)
	defer func() {
		close(s.done)
		s.dispatcher.Unregister(s.id)
		for _, ch := range pending {
			ch <- reply{err: ErrServerStopped}
		}
	}()

	sink := &ResponseSink{IngressID: s.id}
	for {
		select {
		case req := <-s.requests:
			var rs *ResponseSink
			if !req.oneWay {
				rs = sink
			}
			inv, err := s.factory.Create(req.service, req.method, req.payload, rs, req.span)
			if err != nil {
				logger.Debug("rejecting request", "service", req.service, "method", req.method, "err", err)
				req.reply <- reply{err: err}
				continue
			}
			select {
			case s.out <- inv:
			case <-ctx.Done():
				req.reply <- reply{err: ErrServerStopped}
				return nil
			}
			if req.oneWay {
				req.reply <- reply{res: Result{ID: inv.ID}}
				continue
			}
			pending[inv.ID.InvocationID] = req.reply

		case resp, ok := <-responses:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return ErrDispatcherStopped
			}
			ch, found := pending[resp.ID.InvocationID]
			if !found {
				logger.Warn("response for unknown invocation", "invocation", resp.ID.String())
				continue
			}
			delete(pending, resp.ID.InvocationID)
			ch <- reply{res: Result{ID: resp.ID, Payload: resp.Payload}, err: resp.Err}

		case <-ctx.Done():
			return nil
		}
	}
}
