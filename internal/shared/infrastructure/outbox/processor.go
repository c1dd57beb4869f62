package outbox

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/felixgeelhaar/almanac/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/almanac/pkg/observability"
)

// ProcessorConfig holds configuration for the outbox processor.
type ProcessorConfig struct {
	PollInterval     time.Duration
	BatchSize        int
	MaxRetries       int
	RetryBackoffBase time.Duration
	RetryBackoffMax  time.Duration
}

// DefaultProcessorConfig returns sensible defaults.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		PollInterval:     100 * time.Millisecond,
		BatchSize:        100,
		MaxRetries:       5,
		RetryBackoffBase: 1 * time.Second,
		RetryBackoffMax:  1 * time.Minute,
	}
}

// Processor relays outbox messages to a publisher. A message is published
// at least once; one that keeps failing is retried with exponential
// backoff and dead-lettered after MaxRetries attempts.
type Processor struct {
	repo      Repository
	publisher eventbus.Publisher
	config    ProcessorConfig
	logger    *slog.Logger
	metrics   observability.Metrics

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	wg      sync.WaitGroup

	published atomic.Uint64
	failed    atomic.Uint64
	dead      atomic.Uint64

	statsMu sync.Mutex
	last    batchStats
}

type batchStats struct {
	processedAt time.Time
	oldest      time.Time
	err         string
	errAt       time.Time
}

// NewProcessor creates a new outbox processor.
func NewProcessor(repo Repository, publisher eventbus.Publisher, config ProcessorConfig, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		repo:      repo,
		publisher: publisher,
		config:    config,
		logger:    logger,
		metrics:   observability.NoopMetrics{},
	}
}

// WithMetrics records published and failed messages per routing key.
func (p *Processor) WithMetrics(metrics observability.Metrics) *Processor {
	if metrics != nil {
		p.metrics = metrics
	}
	return p
}

// Start polls the outbox in the background until Stop is called or ctx is
// done. Starting a running processor is a no-op.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	p.running = true
	p.stop = make(chan struct{})

	p.wg.Add(1)
	go p.run(ctx, p.stop)

	p.logger.Info("outbox processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize,
	)
	return nil
}

// Stop waits for the current batch to finish. Stopping a stopped
// processor is a no-op.
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stop)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("outbox processor stopped")
}

// IsRunning returns true if the processor is running.
func (p *Processor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Processor) run(ctx context.Context, stop <-chan struct{}) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if _, err := p.processBatch(ctx); err != nil {
				p.logger.Error("failed to process outbox batch", "error", err)
			}
		}
	}
}

// ProcessOnce relays one batch.
func (p *Processor) ProcessOnce(ctx context.Context) error {
	_, err := p.processBatch(ctx)
	return err
}

// Drain relays batches until nothing due is left and returns how many
// messages were published or dead-lettered. Messages waiting on a retry
// backoff are left for a later pass.
func (p *Processor) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		settled, err := p.processBatch(ctx)
		total += settled
		if err != nil || settled == 0 {
			return total, err
		}
	}
}

// processBatch returns the number of messages published or dead-lettered.
func (p *Processor) processBatch(ctx context.Context) (int, error) {
	messages, err := p.repo.GetUnpublished(ctx, p.config.BatchSize)
	if err != nil {
		p.recordError(err)
		return 0, err
	}
	p.recordBatch(messages)

	settled := 0
	for _, msg := range messages {
		if err := ctx.Err(); err != nil {
			return settled, err
		}
		if p.relay(ctx, msg) {
			settled++
		}
	}
	return settled, nil
}

// relay publishes msg and records the outcome. It reports whether msg
// left the queue.
func (p *Processor) relay(ctx context.Context, msg *Message) bool {
	tag := observability.T("routing_key", msg.RoutingKey)
	pubErr := p.publisher.Publish(ctx, msg.RoutingKey, msg.Payload)
	if pubErr == nil {
		if err := p.repo.MarkPublished(ctx, msg.ID); err != nil {
			p.logger.Error("failed to mark message as published", "id", msg.ID, "event_id", msg.EventID, "error", err)
			return false
		}
		p.published.Add(1)
		p.metrics.Counter(observability.MetricEventsPublished, 1, tag)
		return true
	}

	p.metrics.Counter(observability.MetricEventsFailed, 1, tag)
	p.recordError(pubErr)
	p.logger.Warn("failed to publish message",
		"id", msg.ID,
		"routing_key", msg.RoutingKey,
		"event_id", msg.EventID,
		"attempt", msg.RetryCount+1,
		messageMetadata(msg),
		"error", pubErr,
	)

	if p.exhausted(msg) {
		p.dead.Add(1)
		if err := p.repo.MarkDead(ctx, msg.ID, pubErr.Error()); err != nil {
			p.logger.Error("failed to mark message as dead-lettered", "id", msg.ID, "error", err)
			return false
		}
		return true
	}

	p.failed.Add(1)
	nextRetryAt := time.Now().Add(p.retryBackoff(msg.RetryCount + 1))
	if err := p.repo.MarkFailed(ctx, msg.ID, pubErr.Error(), nextRetryAt); err != nil {
		p.logger.Error("failed to mark message as failed", "id", msg.ID, "error", err)
	}
	return false
}

func (p *Processor) exhausted(msg *Message) bool {
	return p.config.MaxRetries <= 0 || msg.LastAttempt(p.config.MaxRetries)
}

// retryBackoff doubles from RetryBackoffBase per attempt, capped at
// RetryBackoffMax.
func (p *Processor) retryBackoff(attempt int) time.Duration {
	base := p.config.RetryBackoffBase
	if base <= 0 {
		base = time.Second
	}
	ceiling := p.config.RetryBackoffMax
	if ceiling <= 0 {
		ceiling = time.Minute
	}
	shift := min(max(attempt, 1)-1, 30)
	backoff := base << shift
	if backoff <= 0 || backoff > ceiling {
		return ceiling
	}
	return backoff
}

// messageMetadata renders the stored event metadata as a log group.
func messageMetadata(msg *Message) slog.Attr {
	var meta eventbus.EventMetadata
	if len(msg.Metadata) > 0 {
		_ = json.Unmarshal(msg.Metadata, &meta)
	}
	return slog.Group("metadata",
		"source", meta.Source,
		"correlation_id", meta.CorrelationID,
		"causation_id", meta.CausationID,
	)
}

// Stats reports relay counters since the processor was created.
type Stats struct {
	IsRunning       bool
	PublishedCount  uint64
	FailedCount     uint64
	DeadCount       uint64
	LagSeconds      float64
	LastError       string
	LastErrorAt     *time.Time
	LastProcessedAt *time.Time
	OldestMessageAt *time.Time
}

// GetStats returns current processor statistics. Lag is measured from the
// oldest message of the last batch.
func (p *Processor) GetStats() Stats {
	stats := Stats{
		IsRunning:      p.IsRunning(),
		PublishedCount: p.published.Load(),
		FailedCount:    p.failed.Load(),
		DeadCount:      p.dead.Load(),
	}

	p.statsMu.Lock()
	last := p.last
	p.statsMu.Unlock()

	stats.LastError = last.err
	stats.LastErrorAt = timeOrNil(last.errAt)
	stats.LastProcessedAt = timeOrNil(last.processedAt)
	stats.OldestMessageAt = timeOrNil(last.oldest)
	if !last.oldest.IsZero() {
		stats.LagSeconds = last.processedAt.Sub(last.oldest).Seconds()
	}
	return stats
}

func (p *Processor) recordError(err error) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.last.err = err.Error()
	p.last.errAt = time.Now()
}

func (p *Processor) recordBatch(messages []*Message) {
	var oldest time.Time
	for _, msg := range messages {
		if oldest.IsZero() || msg.CreatedAt.Before(oldest) {
			oldest = msg.CreatedAt
		}
	}

	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.last.processedAt = time.Now()
	p.last.oldest = oldest
}

func timeOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
