package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// TypeBookingMatch is the task type that runs partner matching for one booking
const TypeBookingMatch = "booking:match"

// QueueMatching is the asynq queue matching tasks are enqueued on
const QueueMatching = "matching"

// MatchRunner runs one matching pass. The booking service implements it.
type MatchRunner interface {
	RunMatching(ctx context.Context, bookingID uuid.UUID) error
}

// MatchPayload is the body of a booking:match task
type MatchPayload struct {
	BookingID uuid.UUID `json:"booking_id"`
}

// NewMatchTask builds the task for bookingID
func NewMatchTask(bookingID uuid.UUID, opts ...asynq.Option) (*asynq.Task, error) {
	b, err := json.Marshal(MatchPayload{BookingID: bookingID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeBookingMatch, b, opts...), nil
}

// AsynqDispatcher enqueues matching onto Redis so it survives restarts and
// is retried on failure
type AsynqDispatcher struct {
	client   *asynq.Client
	maxRetry int
	logger   *logrus.Logger
}

// NewAsynqDispatcher creates a dispatcher backed by the given Redis
func NewAsynqDispatcher(redisOpt asynq.RedisClientOpt, maxRetry int, logger *logrus.Logger) *AsynqDispatcher {
	return &AsynqDispatcher{
		client:   asynq.NewClient(redisOpt),
		maxRetry: maxRetry,
		logger:   logger,
	}
}

// Dispatch enqueues a matching pass for bookingID
func (d *AsynqDispatcher) Dispatch(ctx context.Context, bookingID uuid.UUID) error {
	task, err := NewMatchTask(bookingID,
		asynq.MaxRetry(d.maxRetry),
		asynq.Queue(QueueMatching),
		asynq.Timeout(time.Minute),
	)
	if err != nil {
		return fmt.Errorf("failed to build match task: %w", err)
	}

	info, err := d.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("failed to enqueue match task: %w", err)
	}

	d.logger.WithFields(logrus.Fields{
		"booking_id": bookingID,
		"task_id":    info.ID,
		"queue":      info.Queue,
	}).Debug("Matching task enqueued")
	return nil
}

// Close releases the Redis connection
func (d *AsynqDispatcher) Close() error {
	return d.client.Close()
}

// MatchWorker consumes booking:match tasks
type MatchWorker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *logrus.Logger
}

// NewMatchWorker creates a worker that hands each task to runner
func NewMatchWorker(redisOpt asynq.RedisClientOpt, concurrency int, runner MatchRunner, logger *logrus.Logger) *MatchWorker {
	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				QueueMatching: 1,
			},
			Logger: logger,
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeBookingMatch, HandleMatchTask(runner, logger))

	return &MatchWorker{server: srv, mux: mux, logger: logger}
}

// Start begins processing in the background
func (w *MatchWorker) Start() error {
	w.logger.Info("[MatchWorker] Starting matching worker...")
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start matching worker: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight tasks and stops the worker
func (w *MatchWorker) Shutdown() {
	w.server.Shutdown()
	w.logger.Info("[MatchWorker] ✓ Matching worker stopped")
}

// HandleMatchTask decodes a booking:match task and runs matching. A
// malformed payload is not retried.
func HandleMatchTask(runner MatchRunner, logger *logrus.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var p MatchPayload
		if err := json.Unmarshal(task.Payload(), &p); err != nil {
			logger.WithError(err).Error("[MatchWorker] Invalid match payload")
			return fmt.Errorf("invalid match payload: %v: %w", err, asynq.SkipRetry)
		}
		if p.BookingID == uuid.Nil {
			return fmt.Errorf("match payload without booking id: %w", asynq.SkipRetry)
		}

		if err := runner.RunMatching(ctx, p.BookingID); err != nil {
			logger.WithFields(logrus.Fields{
				"booking_id": p.BookingID,
				"error":      err.Error(),
			}).Warn("[MatchWorker] Matching failed, will retry")
			return err
		}
		return nil
	}
}
