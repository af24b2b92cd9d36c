package transfer

import (
	"context"
	"sync"

	"github.com/bitrise-io/go-utils/v2/log"
)

// Scheduler runs a queue of transfer units under a bounded concurrency limit.
type Scheduler struct {
	concurrency int
	logger      log.Logger
}

// NewScheduler creates a scheduler with the given concurrency cap (minimum 1).
func NewScheduler(concurrency int, logger log.Logger) *Scheduler {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = log.NewLogger()
	}
	return &Scheduler{concurrency: concurrency, logger: logger}
}

// Run admits queued units in FIFO order, keeping at most the configured number
// in flight; whenever one settles the next queued unit is admitted. A unit's
// failure never blocks or cancels its siblings: failures are captured in the
// result slice, which preserves submission order regardless of completion
// order. Run returns once every unit has settled.
func (s *Scheduler) Run(ctx context.Context, units []*Unit) []Result {
	results := make([]Result, len(units))
	semaphore := make(chan struct{}, s.concurrency)

	var wg sync.WaitGroup
	for i, unit := range units {
		// Acquiring before spawning keeps admission order deterministic.
		semaphore <- struct{}{}

		wg.Add(1)
		go func(index int, unit *Unit) {
			defer func() {
				<-semaphore
				wg.Done()
			}()
			results[index] = unit.Run(ctx)
		}(i, unit)
	}
	wg.Wait()

	return results
}
