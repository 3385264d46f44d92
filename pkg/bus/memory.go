package bus

import (
	"context"
	"fmt"
	"sync"

	pyerrors "github.com/wehubfusion/Pythia/pkg/errors"
)

// inboxSize mirrors the pending buffer of a NATS subscription
const inboxSize = 64

// MemoryBus is an in-process Bus. Like NATS, each subscription receives its
// requests one at a time on its own delivery goroutine; requests rotate
// between the subscribers of a subject.
type MemoryBus struct {
	mu     sync.Mutex
	subs   map[string][]*memorySub
	next   map[string]int
	closed bool
	wg     sync.WaitGroup
}

var _ Bus = (*MemoryBus)(nil)

type memorySub struct {
	bus     *MemoryBus
	subject string
	handler Handler
	inbox   chan *Request
	done    chan struct{}
	stop    sync.Once
}

func (s *memorySub) deliver() {
	defer s.bus.wg.Done()
	for {
		select {
		case req := <-s.inbox:
			s.handler(context.Background(), req)
		case <-s.done:
			return
		}
	}
}

func (s *memorySub) Unsubscribe() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	subs := s.bus.subs[s.subject]
	for i, sub := range subs {
		if sub == s {
			s.bus.subs[s.subject] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	s.stop.Do(func() { close(s.done) })
	return nil
}

// NewMemory creates an empty in-process bus.
func NewMemory() *MemoryBus {
	return &MemoryBus{
		subs: make(map[string][]*memorySub),
		next: make(map[string]int),
	}
}

// Request implements Bus. A request its handler never answers ends in a
// timeout when ctx does.
func (b *MemoryBus) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, pyerrors.ErrNotConnected
	}
	subs := b.subs[subject]
	if len(subs) == 0 {
		b.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNoResponders, subject)
	}
	sub := subs[b.next[subject]%len(subs)]
	b.next[subject]++
	b.mu.Unlock()

	replies := make(chan []byte, 1)
	req := NewRequest(append([]byte(nil), data...), func(reply []byte) error {
		replies <- reply
		return nil
	})

	select {
	case sub.inbox <- req:
	case <-sub.done:
		return nil, fmt.Errorf("%w: %s", ErrNoResponders, subject)
	case <-ctx.Done():
		return nil, b.ctxErr(ctx, subject)
	}

	select {
	case reply := <-replies:
		return reply, nil
	case <-ctx.Done():
		return nil, b.ctxErr(ctx, subject)
	}
}

func (b *MemoryBus) ctxErr(ctx context.Context, subject string) error {
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%w: request on %s: %w", pyerrors.ErrTimeout, subject, ctx.Err())
	}
	return ctx.Err()
}

// Subscribe implements Bus. The queue name is accepted for interface
// compatibility; every subscriber of a subject shares one group.
func (b *MemoryBus) Subscribe(subject, queue string, h Handler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, pyerrors.ErrNotConnected
	}
	sub := &memorySub{
		bus:     b,
		subject: subject,
		handler: h,
		inbox:   make(chan *Request, inboxSize),
		done:    make(chan struct{}),
	}
	b.subs[subject] = append(b.subs[subject], sub)

	b.wg.Add(1)
	go sub.deliver()
	return sub, nil
}

// Close stops accepting requests and waits for delivery goroutines to
// finish their current request.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	b.closed = true
	all := b.subs
	b.subs = make(map[string][]*memorySub)
	b.mu.Unlock()

	for _, subs := range all {
		for _, s := range subs {
			s.stop.Do(func() { close(s.done) })
		}
	}
	b.wg.Wait()
	return nil
}
