package workers

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/fibreflow/internal/common"
)

func TestPool_BoundsConcurrency(t *testing.T) {
	pool := NewPool(3, 0, arbor.NewLogger())
	ctx := context.Background()

	var running, peak, completed int32

	for i := 0; i < 10; i++ {
		err := pool.Submit(ctx, "test", func(ctx context.Context) {
			now := atomic.AddInt32(&running, 1)
			for {
				old := atomic.LoadInt32(&peak)
				if now <= old || atomic.CompareAndSwapInt32(&peak, old, now) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			atomic.AddInt32(&completed, 1)
		})
		require.NoError(t, err)
	}
	pool.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3), "no more than maxWorkers tasks may run at once")
	assert.Equal(t, int32(10), atomic.LoadInt32(&completed))
	assert.Equal(t, int32(0), atomic.LoadInt32(&running))
}

func TestPool_SubmitHonorsContext(t *testing.T) {
	pool := NewPool(1, 0, arbor.NewLogger())

	// Occupy the single slot
	blocked := make(chan struct{})
	err := pool.Submit(context.Background(), "holder", func(ctx context.Context) {
		<-blocked
	})
	require.NoError(t, err)

	// The next submit cannot get a slot and must give up with the context
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = pool.Submit(ctx, "starved", func(ctx context.Context) {
		t.Error("task must not run after the context expired")
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(blocked)
	pool.Wait()
}

func TestPool_RecoversPanickingTask(t *testing.T) {
	// Keep the crash report out of the package directory
	prevDir := common.CrashLogDir
	common.CrashLogDir = t.TempDir()
	defer func() { common.CrashLogDir = prevDir }()

	pool := NewPool(2, 0, arbor.NewLogger())
	ctx := context.Background()

	err := pool.Submit(ctx, "bad", func(ctx context.Context) {
		panic("portal adapter exploded")
	})
	require.NoError(t, err)
	pool.Wait()

	// The slot freed by the panicked task is usable again
	var ran atomic.Bool
	err = pool.Submit(ctx, "good", func(ctx context.Context) {
		ran.Store(true)
	})
	require.NoError(t, err)
	pool.Wait()

	assert.True(t, ran.Load())
}

func TestPool_RateLimitSpacesSubmissions(t *testing.T) {
	// Burst equals maxWorkers (1), so the second submit waits for a token
	pool := NewPool(1, 10, arbor.NewLogger())
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		err := pool.Submit(ctx, "timed", func(ctx context.Context) {})
		require.NoError(t, err)
	}
	pool.Wait()

	// Three submits at 10/s: the wait for tokens spans at least ~200ms
	// minus scheduling slack
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}
