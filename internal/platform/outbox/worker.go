package outbox

import (
	"context"
	"log/slog"
	"time"

	"certify/internal/platform/kafka/producer"
	"certify/pkg/platform/circuit"
)

// Publisher delivers one message to the broker.
type Publisher interface {
	Produce(ctx context.Context, msg *producer.Message) error
}

// Worker polls the outbox and publishes pending entries.
type Worker struct {
	store        Store
	publisher    Publisher
	topic        string
	batchSize    int
	pollInterval time.Duration
	drainTimeout time.Duration
	metrics      *Metrics
	breaker      *circuit.Breaker
	logger       *slog.Logger
	now          func() time.Time
}

// Option configures the Worker.
type Option func(*Worker)

// WithTopic sets the Kafka topic for publishing.
func WithTopic(topic string) Option {
	return func(w *Worker) {
		w.topic = topic
	}
}

// WithBatchSize sets the maximum number of entries to fetch per poll.
func WithBatchSize(size int) Option {
	return func(w *Worker) {
		if size > 0 {
			w.batchSize = size
		}
	}
}

// WithPollInterval sets the interval between polls.
func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.pollInterval = interval
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

// WithBreaker guards publishing with a circuit breaker. While it is open the
// worker leaves entries pending instead of hammering the broker.
func WithBreaker(b *circuit.Breaker) Option {
	return func(w *Worker) {
		w.breaker = b
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

// WithClock overrides time.Now for processed timestamps.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		w.now = now
	}
}

// NewWorker creates a new outbox worker.
func NewWorker(store Store, publisher Publisher, opts ...Option) *Worker {
	w := &Worker{
		store:        store,
		publisher:    publisher,
		topic:        "certify.credentials.added",
		batchSize:    100,
		pollInterval: 100 * time.Millisecond,
		drainTimeout: 10 * time.Second,
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run polls until ctx is cancelled, then drains what is left with a
// bounded timeout. It always returns nil so it can sit in an errgroup.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.drain()
			return nil
		case <-ticker.C:
			if _, err := w.ProcessBatch(ctx); err != nil && ctx.Err() == nil {
				w.logger.ErrorContext(ctx, "failed to fetch outbox entries", "error", err)
			}
		}
	}
}

// ProcessBatch publishes one batch of pending entries and returns how many
// were published and marked. Entries that fail stay pending for the next poll.
func (w *Worker) ProcessBatch(ctx context.Context) (int, error) {
	entries, err := w.store.FetchUnprocessed(ctx, w.batchSize)
	if err != nil {
		w.metrics.incFailures()
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}
	w.metrics.observeBatch(len(entries))

	published := 0
	for i, entry := range entries {
		if w.breaker != nil && !w.breaker.Allow() {
			w.metrics.addDeferred(len(entries) - i)
			break
		}
		err := w.publishEntry(ctx, entry)
		if w.breaker != nil {
			w.breaker.Record(err)
		}
		if err != nil {
			w.logger.ErrorContext(ctx, "failed to publish outbox entry",
				"id", entry.ID,
				"event_type", entry.EventType,
				"error", err,
			)
			w.metrics.incFailures()
			continue
		}
		if err := w.store.MarkProcessed(ctx, entry.ID, w.now()); err != nil {
			// Published but not marked: it will be re-published and consumers dedupe on the key.
			w.logger.ErrorContext(ctx, "failed to mark entry as processed", "id", entry.ID, "error", err)
			continue
		}
		w.metrics.incPublished()
		published++
	}
	return published, nil
}

func (w *Worker) publishEntry(ctx context.Context, entry *Entry) error {
	start := time.Now()
	msg := &producer.Message{
		Topic: w.topic,
		Key:   []byte(entry.ID.String()),
		Value: entry.Payload,
		Headers: map[string]string{
			"aggregate_type": entry.AggregateType,
			"aggregate_id":   entry.AggregateID,
			"event_type":     entry.EventType,
		},
	}
	if err := w.publisher.Produce(ctx, msg); err != nil {
		return err
	}
	w.metrics.observePublish(time.Since(start).Seconds())
	return nil
}

func (w *Worker) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), w.drainTimeout)
	defer cancel()

	w.logger.Info("draining outbox worker")
	for {
		n, err := w.ProcessBatch(ctx)
		if err != nil {
			w.logger.Error("failed to fetch entries during drain", "error", err)
			return
		}
		if n == 0 {
			return
		}
	}
}

// UpdateMetrics refreshes the pending depth gauge.
func (w *Worker) UpdateMetrics(ctx context.Context) error {
	if w.metrics == nil {
		return nil
	}
	count, err := w.store.CountPending(ctx)
	if err != nil {
		return err
	}
	w.metrics.setPending(count)
	return nil
}
