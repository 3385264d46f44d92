package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	natsclient "github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/wehubfusion/Pythia/internal/nats"
	pyerrors "github.com/wehubfusion/Pythia/pkg/errors"
)

// NATSBus implements Bus with core NATS request/reply and queue subscriptions.
//
// Example usage:
//
//	b := bus.NewNATS(nats.DefaultConnectionConfig("nats://localhost:4222"), logger)
//	if err := b.Connect(ctx); err != nil {
//	    logger.Fatal("Failed to connect", zap.Error(err))
//	}
//	defer b.Close()
type NATSBus struct {
	conn   *natsclient.Conn
	config *nats.ConnectionConfig
	logger *zap.Logger
	mu     sync.RWMutex
}

var _ Bus = (*NATSBus)(nil)

// NewNATS creates a bus with custom connection configuration. Connect must
// be called before use.
func NewNATS(config *nats.ConnectionConfig, logger *zap.Logger) *NATSBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSBus{
		config: config,
		logger: logger,
	}
}

// Connect establishes the connection to the NATS server.
func (b *NATSBus) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn != nil && b.conn.IsConnected() {
		return nil
	}

	conn, err := nats.Connect(ctx, b.config, b.logger)
	if err != nil {
		return pyerrors.NewError("CONNECTION_FAILED", "failed to connect to NATS", err)
	}
	b.conn = conn
	return nil
}

// Request implements Bus.
func (b *NATSBus) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	conn, err := b.connection()
	if err != nil {
		return nil, err
	}

	msg, err := conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		switch {
		case errors.Is(err, natsclient.ErrNoResponders):
			return nil, fmt.Errorf("%w: %s", ErrNoResponders, subject)
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, natsclient.ErrTimeout):
			return nil, fmt.Errorf("%w: request on %s: %w", pyerrors.ErrTimeout, subject, err)
		}
		return nil, fmt.Errorf("request on %s: %w", subject, err)
	}
	return msg.Data, nil
}

// Subscribe implements Bus. nats.go runs the callback on the
// subscription's single dispatch goroutine, so h must not block on work.
func (b *NATSBus) Subscribe(subject, queue string, h Handler) (Subscription, error) {
	conn, err := b.connection()
	if err != nil {
		return nil, err
	}

	sub, err := conn.QueueSubscribe(subject, queue, func(m *natsclient.Msg) {
		h(context.Background(), NewRequest(m.Data, func(reply []byte) error {
			if err := m.Respond(reply); err != nil {
				b.logger.Error("failed to respond",
					zap.String("subject", subject),
					zap.Error(err))
				return err
			}
			return nil
		}))
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", subject, err)
	}
	return sub, nil
}

// Close drains in-flight messages and closes the connection.
func (b *NATSBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn == nil {
		return nil
	}
	err := nats.Close(b.conn)
	b.conn = nil
	if err != nil {
		return pyerrors.NewError("CLOSE_FAILED", "failed to close connection", err)
	}
	return nil
}

// IsConnected returns true if the bus is currently connected.
func (b *NATSBus) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return nats.IsConnected(b.conn)
}

func (b *NATSBus) connection() (*natsclient.Conn, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !nats.IsConnected(b.conn) {
		return nil, pyerrors.ErrNotConnected
	}
	return b.conn, nil
}
