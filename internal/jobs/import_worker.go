package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"catalog-service/internal/importer"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultImportQueueKey is the Redis list holding queued run ids
const DefaultImportQueueKey = "catalog:imports:queue"

// ImportQueue is a Redis list of run ids waiting for a worker
type ImportQueue struct {
	client *redis.Client
	key    string
}

func NewImportQueue(client *redis.Client, key string) *ImportQueue {
	if key == "" {
		key = DefaultImportQueueKey
	}
	return &ImportQueue{client: client, key: key}
}

// Enqueue queues a run for processing
func (q *ImportQueue) Enqueue(ctx context.Context, importID uuid.UUID) error {
	if err := q.client.LPush(ctx, q.key, importID.String()).Err(); err != nil {
		return fmt.Errorf("failed to enqueue import run: %w", err)
	}
	return nil
}

// Dequeue waits up to timeout for the oldest queued run. ok is false when the
// wait timed out.
func (q *ImportQueue) Dequeue(ctx context.Context, timeout time.Duration) (id uuid.UUID, ok bool, err error) {
	res, err := q.client.BRPop(ctx, timeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, err
	}
	// res is [key, value]
	id, err = uuid.Parse(res[1])
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("malformed import id %q in queue: %w", res[1], err)
	}
	return id, true, nil
}

// RunProcessor processes one import run
type RunProcessor interface {
	Run(ctx context.Context, runID uuid.UUID) (*importer.RunSummary, error)
}

// ImportWorker takes runs off the queue and processes them one at a time
type ImportWorker struct {
	queue       *ImportQueue
	processor   RunProcessor
	logger      *logrus.Entry
	pollTimeout time.Duration
	stopCh      chan struct{}
}

func NewImportWorker(queue *ImportQueue, processor RunProcessor, logger *logrus.Logger) *ImportWorker {
	return &ImportWorker{
		queue:       queue,
		processor:   processor,
		logger:      logger.WithField("component", "import-worker"),
		pollTimeout: 5 * time.Second,
		stopCh:      make(chan struct{}),
	}
}

// Start processes queued runs until Stop is called or ctx is done
func (w *ImportWorker) Start(ctx context.Context) {
	w.logger.Info("Import worker started")

	for {
		select {
		case <-w.stopCh:
			w.logger.Info("Import worker stopped")
			return
		case <-ctx.Done():
			w.logger.Info("Import worker context cancelled")
			return
		default:
		}

		id, ok, err := w.queue.Dequeue(ctx, w.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.WithError(err).Error("Failed to read import queue")
			time.Sleep(time.Second)
			continue
		}
		if !ok {
			continue
		}

		w.process(ctx, id)
	}
}

// Stop signals the worker to stop after the current run
func (w *ImportWorker) Stop() {
	close(w.stopCh)
}

func (w *ImportWorker) process(ctx context.Context, id uuid.UUID) {
	logger := w.logger.WithField("importID", id)

	summary, err := w.processor.Run(ctx, id)
	if err != nil {
		if errors.Is(err, importer.ErrRunNotClaimable) {
			logger.Info("Import run already claimed, skipping")
			return
		}
		logger.WithError(err).Error("Import run failed")
		return
	}

	logger.WithFields(logrus.Fields{
		"status":          summary.Status,
		"totalRows":       summary.TotalRows,
		"totalRowSuccess": summary.TotalRowSuccess,
	}).Info("Import run processed")
}
