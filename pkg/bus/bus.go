// Package bus is the request/reply transport between the queue executor and
// remote workers.
package bus

import (
	"context"
	"errors"
	"sync"
)

// ErrNoResponders indicates that nobody is subscribed to the subject
var ErrNoResponders = errors.New("no responders available for request")

// ErrAlreadyResponded is returned by a second Respond on the same request
var ErrAlreadyResponded = errors.New("request already answered")

// Request is one delivered request. It may be answered from any goroutine,
// after the handler that received it has returned.
type Request struct {
	Data []byte

	once    sync.Once
	respond func([]byte) error
}

// NewRequest wraps data with the function that sends its reply.
func NewRequest(data []byte, respond func([]byte) error) *Request {
	return &Request{Data: data, respond: respond}
}

// Respond sends the reply. Only the first call is delivered.
func (r *Request) Respond(data []byte) error {
	err := ErrAlreadyResponded
	r.once.Do(func() {
		err = r.respond(data)
	})
	return err
}

// Handler receives requests. Transports deliver to a subscription one
// request at a time, so a handler that does slow work must hand the
// request off and respond later. A request that is never answered looks
// like a timeout to the requester.
type Handler func(ctx context.Context, req *Request)

// Replying adapts a synchronous function into a Handler. A non-nil error
// leaves the request unanswered.
func Replying(fn func(ctx context.Context, data []byte) ([]byte, error)) Handler {
	return func(ctx context.Context, req *Request) {
		reply, err := fn(ctx, req.Data)
		if err != nil {
			return
		}
		_ = req.Respond(reply)
	}
}

// Subscription is an active handler registration
type Subscription interface {
	Unsubscribe() error
}

// Bus delivers correlated requests to one subscriber of a queue group
type Bus interface {
	// Request sends data to subject and waits for a single reply until ctx is done
	Request(ctx context.Context, subject string, data []byte) ([]byte, error)

	// Subscribe serves requests on subject. Subscribers sharing a queue
	// name split the load.
	Subscribe(subject, queue string, h Handler) (Subscription, error)

	Close() error
}
