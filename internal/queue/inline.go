package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// InlineDispatcher runs matching on a goroutine in this process. Used when
// no Redis is configured and in development.
type InlineDispatcher struct {
	mu      sync.RWMutex
	runner  MatchRunner
	timeout time.Duration
	wg      sync.WaitGroup
	logger  *logrus.Logger
}

// NewInlineDispatcher creates an inline dispatcher. Attach the runner before use.
func NewInlineDispatcher(timeout time.Duration, logger *logrus.Logger) *InlineDispatcher {
	return &InlineDispatcher{timeout: timeout, logger: logger}
}

// Attach sets the runner. The booking service needs a dispatcher to be
// built, so the runner is attached afterwards.
func (d *InlineDispatcher) Attach(runner MatchRunner) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.runner = runner
}

// Dispatch starts matching for bookingID and returns immediately. The pass
// runs detached from ctx so it outlives the request that triggered it.
func (d *InlineDispatcher) Dispatch(ctx context.Context, bookingID uuid.UUID) error {
	d.mu.RLock()
	runner := d.runner
	d.mu.RUnlock()
	if runner == nil {
		return errors.New("inline dispatcher has no runner attached")
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		runCtx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := runner.RunMatching(runCtx, bookingID); err != nil {
			d.logger.WithFields(logrus.Fields{
				"booking_id": bookingID,
				"error":      err.Error(),
			}).Error("Inline matching failed")
		}
	}()
	return nil
}

// Wait blocks until every dispatched pass has finished
func (d *InlineDispatcher) Wait() {
	d.wg.Wait()
}
