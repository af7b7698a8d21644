package audit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compliance/internal/platform/kafka/producer"
	id "compliance/pkg/domain"
	"compliance/pkg/requestcontext"
)

type recordingProducer struct {
	mu   sync.Mutex
	msgs []*producer.Message
	err  error
}

func (p *recordingProducer) Produce(_ context.Context, msg *producer.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return p.err
}

type failingStore struct{ InMemoryStore }

func (*failingStore) Append(context.Context, Entry) error { return errors.New("disk full") }

func TestPublisher_EmitStampsDefaults(t *testing.T) {
	store := NewInMemoryStore()
	pub := NewPublisher(store)
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(requestcontext.WithRequestID(context.Background(), "req-42"), now)

	require.NoError(t, pub.Emit(ctx, Entry{TenantID: id.TenantID(uuid.New()), ActionType: ActionConsent}))

	all := store.All()
	require.Len(t, all, 1)
	assert.False(t, all[0].ID.IsNil())
	assert.Equal(t, now, all[0].CreatedAt)
	assert.Equal(t, "req-42", all[0].RequestID)
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(10), WithPublisherLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	for i := 0; i < 5; i++ {
		require.NoError(t, pub.Emit(context.Background(), Entry{ActionType: ActionAnonymization}))
	}
	pub.Close()
	assert.Len(t, store.All(), 5)
}

func TestPublisher_EmitAfterClose(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("async", func(t *testing.T) {
		store := NewInMemoryStore()
		pub := NewPublisher(store, WithAsyncBuffer(4), WithPublisherLogger(logger))
		pub.Close()

		require.NotPanics(t, func() {
			err := pub.Emit(context.Background(), Entry{ActionType: ActionAnonymization})
			assert.ErrorIs(t, err, ErrPublisherClosed)
		})
		assert.Empty(t, store.All())
		require.NotPanics(t, pub.Close)
	})

	t.Run("sync", func(t *testing.T) {
		store := NewInMemoryStore()
		pub := NewPublisher(store)
		pub.Close()

		err := pub.Emit(context.Background(), Entry{ActionType: ActionConsent})
		assert.ErrorIs(t, err, ErrPublisherClosed)
		assert.Empty(t, store.All())
	})

	t.Run("concurrent emit and close", func(t *testing.T) {
		pub := NewPublisher(NewInMemoryStore(), WithAsyncBuffer(8), WithPublisherLogger(logger))
		var wg sync.WaitGroup
		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = pub.Emit(context.Background(), Entry{ActionType: ActionAnonymization})
			}()
		}
		pub.Close()
		wg.Wait()
	})
}

func TestPublisher_KafkaMirror(t *testing.T) {
	t.Run("mirrors persisted entries", func(t *testing.T) {
		kafka := &recordingProducer{}
		pub := NewPublisher(NewInMemoryStore(), WithKafkaMirror(kafka, "compliance.audit"))
		tenant := id.TenantID(uuid.New())

		require.NoError(t, pub.Emit(context.Background(), Entry{TenantID: tenant, ActionType: ActionRectification, EntityName: EntitySubject}))

		require.Len(t, kafka.msgs, 1)
		msg := kafka.msgs[0]
		assert.Equal(t, "compliance.audit", msg.Topic)
		assert.Equal(t, tenant.String(), string(msg.Key))
		assert.Equal(t, "rectification", msg.Headers["action_type"])
		var decoded map[string]any
		require.NoError(t, json.Unmarshal(msg.Value, &decoded))
		assert.Equal(t, "subjects", decoded["entity_name"])
	})

	t.Run("mirror failure does not fail emit", func(t *testing.T) {
		kafka := &recordingProducer{err: errors.New("broker down")}
		pub := NewPublisher(NewInMemoryStore(), WithKafkaMirror(kafka, "compliance.audit"),
			WithPublisherLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
		assert.NoError(t, pub.Emit(context.Background(), Entry{ActionType: ActionConsent}))
	})

	t.Run("store failure skips the mirror and surfaces", func(t *testing.T) {
		kafka := &recordingProducer{}
		pub := NewPublisher(&failingStore{}, WithKafkaMirror(kafka, "compliance.audit"))
		assert.Error(t, pub.Emit(context.Background(), Entry{ActionType: ActionConsent}))
		assert.Empty(t, kafka.msgs)
	})
}
