package workers

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/fibreflow/internal/common"
)

// Pool runs dispatch tasks with bounded concurrency and a shared
// outbound rate limit, so a large pending batch cannot stampede the
// worker fleet.
type Pool struct {
	sem     chan struct{}
	limiter *rate.Limiter
	wg      sync.WaitGroup
	logger  arbor.ILogger
}

// NewPool creates a dispatch pool. ratePerSec of zero disables the
// rate limit; maxWorkers bounds concurrent tasks.
func NewPool(maxWorkers int, ratePerSec float64, logger arbor.ILogger) *Pool {
	if maxWorkers <= 0 {
		maxWorkers = 5
	}

	var limiter *rate.Limiter
	if ratePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerSec), maxWorkers)
	}

	return &Pool{
		sem:     make(chan struct{}, maxWorkers),
		limiter: limiter,
		logger:  logger,
	}
}

// Submit blocks until a slot and a rate token are available, then runs
// the task in its own goroutine. Panics inside a task are recovered so
// one bad dispatch cannot take down the scheduler tick.
func (p *Pool) Submit(ctx context.Context, name string, task func(ctx context.Context)) error {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			<-p.sem
			return err
		}
	}

	p.wg.Add(1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				stack := common.GetStackTrace()
				p.logger.Error().
					Str("task", name).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", stack).
					Msg("Recovered from panic in dispatch task - writing crash file")
				common.WriteCrashFile(r, stack)
			}
			<-p.sem
			p.wg.Done()
		}()

		task(ctx)
	}()

	return nil
}

// Wait blocks until every submitted task has finished
func (p *Pool) Wait() {
	p.wg.Wait()
}
