package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/joseph3559/letrents-backend/pkg/config"
	"github.com/joseph3559/letrents-backend/pkg/db/models"
	"github.com/joseph3559/letrents-backend/pkg/enums"
	"github.com/joseph3559/letrents-backend/pkg/logger"
	"github.com/joseph3559/letrents-backend/pkg/outbox"
	"github.com/joseph3559/letrents-backend/pkg/outbox/registry"
)

type fakeRepo struct {
	pending   []models.OutboxEvent
	published []uuid.UUID
	failed    map[uuid.UUID]int
	fetchErr  error
}

func (f *fakeRepo) FetchUnpublished(limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if len(f.pending) > limit {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

func (f *fakeRepo) MarkPublished(id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailed(id uuid.UUID, _ error) error {
	if f.failed == nil {
		f.failed = map[uuid.UUID]int{}
	}
	f.failed[id]++
	return nil
}

type fakePubSub struct{}

func (fakePubSub) Ping(context.Context) error            { return nil }
func (fakePubSub) Publisher(string) *gcppubsub.Publisher { return nil }

type fakeResult struct {
	err error
}

func (r fakeResult) Get(context.Context) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return "server-id", nil
}

type fakePublisher struct {
	err      error
	messages []*gcppubsub.Message
}

func (p *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	p.messages = append(p.messages, msg)
	return fakeResult{err: p.err}
}

func publisherConfig() *config.Config {
	return &config.Config{
		Outbox: config.OutboxConfig{BatchSize: 10, PollIntervalMS: 10, MaxAttempts: 3},
		PubSub: config.PubSubConfig{NotificationTopic: "lr-notification-events"},
	}
}

func newPublisherService(t *testing.T, repo *fakeRepo, pub *fakePublisher) *Service {
	t.Helper()
	cfg := publisherConfig()
	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	svc, err := NewService(ServiceParams{
		Config:     cfg,
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
		PubSub:     fakePubSub{},
		Repository: repo,
		Registry:   eventRegistry,
		PublisherFactory: func(string) publisher {
			return pub
		},
	})
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return svc
}

func settledEvent(t *testing.T) models.OutboxEvent {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"paymentId": uuid.NewString(),
		"invoiceId": uuid.NewString(),
	})
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.OutboxEventPaymentSettled,
		AggregateType: enums.OutboxAggregatePayment,
		AggregateID:   uuid.New(),
		Payload:       payload,
		CreatedAt:     time.Now().UTC(),
	}
}

func TestProcessBatchPublishesAndMarks(t *testing.T) {
	event := settledEvent(t)
	repo := &fakeRepo{pending: []models.OutboxEvent{event}}
	pub := &fakePublisher{}

	processed, err := newPublisherService(t, repo, pub).processBatch(context.Background())
	if err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if !processed {
		t.Fatal("expected batch to report work done")
	}
	if len(repo.published) != 1 || repo.published[0] != event.ID {
		t.Fatalf("expected event marked published, got %v", repo.published)
	}
	if len(pub.messages) != 1 {
		t.Fatalf("expected one message published, got %d", len(pub.messages))
	}
	if got := pub.messages[0].Attributes["event_type"]; got != string(enums.OutboxEventPaymentSettled) {
		t.Fatalf("unexpected event_type attribute %q", got)
	}
}

func TestProcessBatchMarksFailedOnRetryableError(t *testing.T) {
	event := settledEvent(t)
	repo := &fakeRepo{pending: []models.OutboxEvent{event}}
	pub := &fakePublisher{err: errors.New("deadline exceeded")}

	if _, err := newPublisherService(t, repo, pub).processBatch(context.Background()); err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if len(repo.published) != 0 {
		t.Fatalf("failed event must not be marked published, got %v", repo.published)
	}
	if repo.failed[event.ID] != 1 {
		t.Fatalf("expected one failure recorded, got %d", repo.failed[event.ID])
	}
}

func TestProcessBatchPoisonsUnsupportedEventType(t *testing.T) {
	event := settledEvent(t)
	event.EventType = enums.OutboxEventType("bogus.event")
	repo := &fakeRepo{pending: []models.OutboxEvent{event}}
	pub := &fakePublisher{}

	if _, err := newPublisherService(t, repo, pub).processBatch(context.Background()); err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if len(pub.messages) != 0 {
		t.Fatal("undecodable event must not reach the publisher")
	}
	// MaxAttempts is 3 in the test config; the row must be failed past it.
	if repo.failed[event.ID] != 3 {
		t.Fatalf("expected failures up to the attempt ceiling, got %d", repo.failed[event.ID])
	}
}

func TestProcessBatchNoWork(t *testing.T) {
	repo := &fakeRepo{}
	processed, err := newPublisherService(t, repo, &fakePublisher{}).processBatch(context.Background())
	if err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if processed {
		t.Fatal("empty batch must report no work")
	}
}
