// Package worker archives job lifecycle events consumed from RabbitMQ.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/jobpipe/internal/worker/domain"
)

// Consumer is the broker side of the worker. *rabbitmq.Client implements it.
type Consumer interface {
	Qos(prefetchCount int) error
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
}

// Store persists archived events.
type Store interface {
	InsertEvent(ctx context.Context, event domain.JobEvent) (bool, error)
}

// Config holds worker configuration
type Config struct {
	Logger        *slog.Logger
	Consumer      Consumer
	Store         Store
	WorkerID      string
	QueueName     string
	Concurrency   int
	PrefetchCount int
}

// Worker consumes job events and archives them with a pool of goroutines
type Worker struct {
	logger            *slog.Logger
	consumer          Consumer
	storage           Store
	workerID          string
	rabbitMQQueueName string
	concurrency       int
	prefetchCount     int

	jobsChan chan *eventMessage
	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// eventMessage is a parsed delivery handed to the pool.
type eventMessage struct {
	Event    domain.JobEvent
	Delivery amqp.Delivery
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) (*Worker, error) {
	if cfg.Consumer == nil || cfg.Store == nil {
		return nil, errors.New("worker requires a consumer and a store")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	prefetch := cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = concurrency
	}
	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = "job-event-archiver"
	}

	return &Worker{
		logger:            logger,
		consumer:          cfg.Consumer,
		storage:           cfg.Store,
		workerID:          workerID,
		rabbitMQQueueName: cfg.QueueName,
		concurrency:       concurrency,
		prefetchCount:     prefetch,
		jobsChan:          make(chan *eventMessage),
		stopChan:          make(chan struct{}),
	}, nil
}

// Start consumes until ctx is canceled, Stop is called or the broker closes
// the delivery channel. It returns after every in-flight event is settled.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Int("prefetch_count", w.prefetchCount),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	w.spawnWorkerPool(ctx)
	w.startMessageDispatcher(ctx, deliveries)

	close(w.jobsChan)
	w.wg.Wait()

	w.logger.Info("Worker stopped", slog.String("worker_id", w.workerID))
	return nil
}

// Stop asks Start to return. It is safe to call more than once.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.logger.Info("Stopping worker...")
		close(w.stopChan)
	})
}
