package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pyerrors "github.com/wehubfusion/Pythia/pkg/errors"
)

func echo(prefix string) Handler {
	return Replying(func(ctx context.Context, data []byte) ([]byte, error) {
		return append([]byte(prefix), data...), nil
	})
}

func TestMemoryRequestReply(t *testing.T) {
	b := NewMemory()
	defer b.Close()

	_, err := b.Subscribe("tasks", "workers", echo("re:"))
	require.NoError(t, err)

	reply, err := b.Request(context.Background(), "tasks", []byte("ping"))
	require.NoError(t, err)
	assert.Equal(t, "re:ping", string(reply))
}

func TestMemoryNoResponders(t *testing.T) {
	b := NewMemory()
	defer b.Close()

	_, err := b.Request(context.Background(), "tasks", nil)
	assert.ErrorIs(t, err, ErrNoResponders)
}

func TestMemoryRotatesSubscribers(t *testing.T) {
	b := NewMemory()
	defer b.Close()

	var a, c atomic.Int32
	_, err := b.Subscribe("s", "q", Replying(func(ctx context.Context, data []byte) ([]byte, error) { a.Add(1); return nil, nil }))
	require.NoError(t, err)
	_, err = b.Subscribe("s", "q", Replying(func(ctx context.Context, data []byte) ([]byte, error) { c.Add(1); return nil, nil }))
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := b.Request(context.Background(), "s", nil)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), a.Load())
	assert.Equal(t, int32(2), c.Load())
}

func TestMemoryTimeout(t *testing.T) {
	b := NewMemory()
	defer b.Close()

	release := make(chan struct{})
	_, err := b.Subscribe("slow", "q", Replying(func(ctx context.Context, data []byte) ([]byte, error) {
		<-release
		return nil, nil
	}))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = b.Request(ctx, "slow", nil)
	close(release)
	assert.ErrorIs(t, err, pyerrors.ErrTimeout)
}

func TestMemoryHandlerErrorLooksLikeTimeout(t *testing.T) {
	b := NewMemory()
	defer b.Close()

	_, err := b.Subscribe("bad", "q", Replying(func(ctx context.Context, data []byte) ([]byte, error) {
		return nil, errors.New("boom")
	}))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = b.Request(ctx, "bad", nil)
	assert.ErrorIs(t, err, pyerrors.ErrTimeout)
}

func TestMemoryDeliversSerially(t *testing.T) {
	b := NewMemory()
	defer b.Close()

	var active, peak atomic.Int32
	_, err := b.Subscribe("s", "q", Replying(func(ctx context.Context, data []byte) ([]byte, error) {
		n := active.Add(1)
		if n > peak.Load() {
			peak.Store(n)
		}
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
		return data, nil
	}))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := b.Request(context.Background(), "s", []byte("x"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), peak.Load())
}

func TestMemoryRespondAfterHandlerReturns(t *testing.T) {
	b := NewMemory()
	defer b.Close()

	started := make(chan struct{}, 2)
	release := make(chan struct{})
	_, err := b.Subscribe("s", "q", func(ctx context.Context, req *Request) {
		go func() {
			started <- struct{}{}
			<-release
			assert.NoError(t, req.Respond(req.Data))
			assert.ErrorIs(t, req.Respond(nil), ErrAlreadyResponded)
		}()
	})
	require.NoError(t, err)

	replies := make(chan string, 2)
	for _, msg := range []string{"a", "b"} {
		go func(msg string) {
			reply, err := b.Request(context.Background(), "s", []byte(msg))
			assert.NoError(t, err)
			replies <- string(reply)
		}(msg)
	}

	// both requests are in flight although delivery is serial
	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(time.Second):
			t.Fatal("second request was not delivered while the first was pending")
		}
	}
	close(release)
	assert.ElementsMatch(t, []string{"a", "b"}, []string{<-replies, <-replies})
}

func TestMemoryUnsubscribeAndClose(t *testing.T) {
	b := NewMemory()

	sub, err := b.Subscribe("s", "q", echo(""))
	require.NoError(t, err)
	require.NoError(t, sub.Unsubscribe())

	_, err = b.Request(context.Background(), "s", nil)
	assert.ErrorIs(t, err, ErrNoResponders)

	require.NoError(t, b.Close())
	_, err = b.Request(context.Background(), "s", nil)
	assert.ErrorIs(t, err, pyerrors.ErrNotConnected)
	_, err = b.Subscribe("s", "q", echo(""))
	assert.ErrorIs(t, err, pyerrors.ErrNotConnected)
}

func TestNATSBusNotConnected(t *testing.T) {
	b := NewNATS(nil, nil)

	_, err := b.Request(context.Background(), "s", nil)
	assert.ErrorIs(t, err, pyerrors.ErrNotConnected)
	_, err = b.Subscribe("s", "q", echo(""))
	assert.ErrorIs(t, err, pyerrors.ErrNotConnected)
	assert.False(t, b.IsConnected())
	assert.NoError(t, b.Close())
}
