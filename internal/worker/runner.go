// Package worker consumes research trigger wakeups and drives the
// orchestrator. The API pushes a team id onto a redis list for every
// submission; the worker pops ids and calls ProcessNext, so submission
// returns immediately while processing happens out of band.
package worker

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var processNextTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "docresearch_process_next_total",
	Help: "ProcessNext invocations by outcome.",
}, []string{"outcome"})

// Processor is the orchestrator surface the worker drives.
type Processor interface {
	ProcessNext(ctx context.Context, teamID string) error
}

// Trigger publishes team wakeups onto the shared redis list.
type Trigger struct {
	rdb  *redis.Client
	list string
}

// NewTrigger builds a Trigger around an existing redis client.
func NewTrigger(rdb *redis.Client, list string) *Trigger {
	return &Trigger{rdb: rdb, list: list}
}

// Fire enqueues one wakeup for the team. Losing a wakeup is recoverable:
// any later Fire for the same team drains the whole backlog because
// ProcessNext claims the oldest pending request each time it runs.
func (t *Trigger) Fire(ctx context.Context, teamID string) error {
	return t.rdb.LPush(ctx, t.list, teamID).Err()
}

// Runner blocks on the trigger list and processes wakeups one at a time.
type Runner struct {
	logger *log.Logger
	rdb    *redis.Client
	list   string
	proc   Processor
}

// NewRunner constructs a Runner.
func NewRunner(logger *log.Logger, rdb *redis.Client, list string, proc Processor) *Runner {
	if logger == nil {
		logger = log.New(log.Writer(), "[WORKER] ", log.LstdFlags)
	}
	return &Runner{logger: logger, rdb: rdb, list: list, proc: proc}
}

// Start blocks, consuming wakeups until the context is cancelled. Processing
// errors are logged and counted, never fatal to the loop: the failed request
// keeps its checkpoint and waits for a new trigger.
func (r *Runner) Start(ctx context.Context) error {
	r.logger.Printf("worker starting; consuming trigger list %q", r.list)
	for {
		select {
		case <-ctx.Done():
			r.logger.Printf("worker stopping: %v", ctx.Err())
			return nil
		default:
		}

		res, err := r.rdb.BRPop(ctx, 5*time.Second, r.list).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			r.logger.Printf("error reading trigger list: %v", err)
			time.Sleep(time.Second)
			continue
		}
		if len(res) < 2 {
			continue
		}
		teamID := res[1]

		if err := r.proc.ProcessNext(ctx, teamID); err != nil {
			processNextTotal.WithLabelValues("error").Inc()
			r.logger.Printf("error processing team %s: %v", teamID, err)
			continue
		}
		processNextTotal.WithLabelValues("ok").Inc()
	}
}
