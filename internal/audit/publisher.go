package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"compliance/internal/platform/kafka/producer"
	id "compliance/pkg/domain"
	"compliance/pkg/requestcontext"
)

// ErrPublisherClosed is returned by Emit once Close has been called.
var ErrPublisherClosed = errors.New("audit publisher closed")

// Publisher appends audit entries. Callers treat it as best-effort: an error
// from Emit is logged by the caller and never undoes the domain mutation.
type Publisher struct {
	store   Store
	entries chan Entry
	wg      sync.WaitGroup
	logger  *slog.Logger
	async   bool

	mu     sync.RWMutex
	closed bool

	mirror      producer.Publisher
	mirrorTopic string
}

// PublisherOption configures the Publisher.
type PublisherOption func(*Publisher)

// WithAsyncBuffer enables async processing with the specified buffer size.
// Entries are queued and persisted in a background goroutine.
func WithAsyncBuffer(size int) PublisherOption {
	return func(p *Publisher) {
		if size > 0 {
			p.entries = make(chan Entry, size)
			p.async = true
		}
	}
}

// WithPublisherLogger sets a logger for async and mirror error reporting.
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithKafkaMirror copies every persisted entry to a Kafka topic for
// downstream compliance archives. Mirror failures are logged only.
func WithKafkaMirror(pub producer.Publisher, topic string) PublisherOption {
	return func(p *Publisher) {
		if pub != nil && topic != "" {
			p.mirror = pub
			p.mirrorTopic = topic
		}
	}
}

func NewPublisher(store Store, opts ...PublisherOption) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	if p.async {
		p.wg.Add(1)
		go p.processEntries()
	}
	return p
}

func (p *Publisher) processEntries() {
	defer p.wg.Done()
	for entry := range p.entries {
		if err := p.persist(context.Background(), entry); err != nil && p.logger != nil {
			p.logger.Error("failed to persist audit entry",
				"error", err,
				"action_type", entry.ActionType,
				"record_id", entry.RecordID,
			)
		}
	}
}

// Close shuts down the async publisher and waits for pending entries to drain.
// It is safe to call more than once; later Emits return ErrPublisherClosed.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if p.async && p.entries != nil {
		close(p.entries)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// Emit stamps id, time and request id when absent, then appends the entry.
func (p *Publisher) Emit(ctx context.Context, entry Entry) error {
	if entry.ID.IsNil() {
		entry.ID = id.NewAuditEntryID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = requestcontext.Now(ctx)
	}
	if entry.RequestID == "" {
		entry.RequestID = requestcontext.RequestID(ctx)
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		if p.logger != nil {
			p.logger.WarnContext(ctx, "audit publisher closed, entry dropped",
				"action_type", entry.ActionType,
				"record_id", entry.RecordID,
			)
		}
		return ErrPublisherClosed
	}
	if p.async {
		select {
		case p.entries <- entry:
			return nil
		default:
			if p.logger != nil {
				p.logger.Warn("audit buffer full, entry dropped",
					"action_type", entry.ActionType,
					"record_id", entry.RecordID,
				)
			}
			return nil
		}
	}
	return p.persist(ctx, entry)
}

func (p *Publisher) persist(ctx context.Context, entry Entry) error {
	if err := p.store.Append(ctx, entry); err != nil {
		return err
	}
	p.mirrorEntry(ctx, entry)
	return nil
}

func (p *Publisher) mirrorEntry(ctx context.Context, entry Entry) {
	if p.mirror == nil {
		return
	}
	payload, err := json.Marshal(entry)
	if err == nil {
		err = p.mirror.Produce(ctx, &producer.Message{
			Topic: p.mirrorTopic,
			Key:   []byte(entry.TenantID.String()),
			Value: payload,
			Headers: map[string]string{
				"action_type": string(entry.ActionType),
				"entity_name": entry.EntityName,
			},
		})
	}
	if err != nil && p.logger != nil {
		p.logger.WarnContext(ctx, "failed to mirror audit entry",
			"error", err,
			"action_type", entry.ActionType,
			"topic", p.mirrorTopic,
		)
	}
}
