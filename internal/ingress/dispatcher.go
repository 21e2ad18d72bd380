package ingress

import (
	"context"
	"errors"

	"vostore/internal/identifiers"
	"vostore/internal/logging"
)

var logger = logging.For("ingress")

// ErrDispatcherStopped is returned when registering with a dispatcher whose
// loop has exited.
var ErrDispatcherStopped = errors.New("response dispatcher stopped")

// Response is the outcome of an invocation addressed to a ResponseSink.
type Response struct {
	Sink    ResponseSink
	ID      identifiers.ServiceInvocationID
	Payload []byte
	Err     error
}

const sinkBuffer = 64

// ResponseDispatcherLoop routes responses to the ingress that is waiting for
// them. A single goroutine owns the sink map and every operation goes
// through a channel.
type ResponseDispatcherLoop struct {
	responses  chan Response
	register   chan registerReq
	unregister chan string
	done       chan struct{}
}

type registerReq struct {
	ingressID string
	result    chan chan Response
}

func NewResponseDispatcherLoop() *ResponseDispatcherLoop {
	return &ResponseDispatcherLoop{
		responses:  make(chan Response, sinkBuffer),
		register:   make(chan registerReq),
		unregister: make(chan string),
		done:       make(chan struct{}),
	}
}

// Dispatch queues a response for routing.
func (d *ResponseDispatcherLoop) Dispatch(ctx context.Context, resp Response) error {
	select {
	case d.responses <- resp:
		return nil
	case <-d.done:
		return ErrDispatcherStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Register claims the sink named ingressID. The returned channel receives
// its responses and is closed on Unregister or when the loop stops.
// Registering an id twice replaces the earlier channel and closes it.
func (d *ResponseDispatcherLoop) Register(ctx context.Context, ingressID string) (<-chan Response, error) {
	req := registerReq{ingressID: ingressID, result: make(chan chan Response, 1)}
	select {
	case d.register <- req:
	case <-d.done:
		return nil, ErrDispatcherStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return <-req.result, nil
}

func (d *ResponseDispatcherLoop) Unregister(ingressID string) {
	select {
	case d.unregister <- ingressID:
	case <-d.done:
	}
}

// Run owns the sink map until ctx is cancelled. It may be called once.
func (d *ResponseDispatcherLoop) Run(ctx context.Context) error {
	sinks := make(map[string]chan Response)
	defer func() {
		close(d.done)
		for _, ch := range sinks {
			close(ch)
		}
	}()

	for {
		select {
		case req := <-d.register:
			if old, ok := sinks[req.ingressID]; ok {
				close(old)
			}
			ch := make(chan Response, sinkBuffer)
			sinks[req.ingressID] = ch
			req.result <- ch

		case id := <-d.unregister:
			if ch, ok := sinks[id]; ok {
				delete(sinks, id)
				close(ch)
			}

		case resp := <-d.responses:
			ch, ok := sinks[resp.Sink.IngressID]
			if !ok {
				logger.Warn("dropping response for unknown sink", "sink", resp.Sink.IngressID, "invocation", resp.ID.String())
				continue
			}
			select {
			case ch <- resp:
			default:
				logger.Warn("dropping response, sink full", "sink", resp.Sink.IngressID, "invocation", resp.ID.String())
			}

		case <-ctx.Done():
			return nil
		}
	}
}
