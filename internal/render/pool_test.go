package render

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-pipeline/internal/resilience"
)

// The tests below exercise checkout/checkin without driving a real browser:
// fn never calls chromedp.Run, so no Chrome process is launched.

func TestPool_BoundsConcurrency(t *testing.T) {
	p := NewPool(PoolConfig{Size: 2, WaitTimeout: 5 * time.Second})
	defer p.Close()

	var active, peak int64
	done := make(chan error, 4)
	for range 4 {
		go func() {
			done <- p.WithPage(context.Background(), func(_ context.Context) error {
				cur := atomic.AddInt64(&active, 1)
				for {
					old := atomic.LoadInt64(&peak)
					if cur <= old || atomic.CompareAndSwapInt64(&peak, old, cur) {
						break
					}
				}
				time.Sleep(50 * time.Millisecond)
				atomic.AddInt64(&active, -1)
				return nil
			})
		}()
	}
	for range 4 {
		require.NoError(t, <-done)
	}
	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(2))
}

func TestPool_CheckoutTimeout(t *testing.T) {
	p := NewPool(PoolConfig{Size: 1, WaitTimeout: 50 * time.Millisecond})
	defer p.Close()

	blocked := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = p.WithPage(context.Background(), func(_ context.Context) error {
			close(blocked)
			<-release
			return nil
		})
	}()
	<-blocked

	err := p.WithPage(context.Background(), func(_ context.Context) error { return nil })
	close(release)
	require.Error(t, err)
	assert.Equal(t, resilience.FailureRender, resilience.KindOf(err))
}

func TestPool_ReleasedOnError(t *testing.T) {
	p := NewPool(PoolConfig{Size: 1, WaitTimeout: time.Second})
	defer p.Close()

	err := p.WithPage(context.Background(), func(_ context.Context) error {
		return errors.New("navigation exploded")
	})
	require.Error(t, err)

	// The slot must be free again.
	err = p.WithPage(context.Background(), func(_ context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestPool_CrashRetriesOnce(t *testing.T) {
	p := NewPool(PoolConfig{Size: 1, WaitTimeout: time.Second})
	defer p.Close()

	var calls int
	err := p.WithPage(context.Background(), func(_ context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("chrome failed to start: exec")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestIsCrash(t *testing.T) {
	assert.True(t, isCrash(errors.New("chrome failed to start: no usable sandbox")))
	assert.True(t, isCrash(errors.New("websocket: close 1006")))
	assert.False(t, isCrash(errors.New("net::ERR_NAME_NOT_RESOLVED")))
	assert.False(t, isCrash(nil))
}
