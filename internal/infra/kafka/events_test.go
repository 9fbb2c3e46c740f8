package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap/zaptest"

	"github.com/DFE-Digital/get-an-identity-sub003/internal/core/domain"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/infra/config"
)

type fakeAsyncProducer struct {
	input  chan *sarama.ProducerMessage
	errors chan *sarama.ProducerError
}

func newFakeAsyncProducer() *fakeAsyncProducer {
	return &fakeAsyncProducer{
		input:  make(chan *sarama.ProducerMessage, 1),
		errors: make(chan *sarama.ProducerError, 1),
	}
}

func (f *fakeAsyncProducer) AsyncClose() {}

func (f *fakeAsyncProducer) Close() error { return nil }

func (f *fakeAsyncProducer) Input() chan<- *sarama.ProducerMessage { return f.input }

func (f *fakeAsyncProducer) Successes() <-chan *sarama.ProducerMessage { return nil }

func (f *fakeAsyncProducer) Errors() <-chan *sarama.ProducerError { return f.errors }

func (f *fakeAsyncProducer) IsTransactional() bool { return false }

func (f *fakeAsyncProducer) BeginTxn() error { return nil }

func (f *fakeAsyncProducer) CommitTxn() error { return nil }

func (f *fakeAsyncProducer) AbortTxn() error { return nil }

func (f *fakeAsyncProducer) AddOffsetsToTxn(offsets map[string][]*sarama.PartitionOffsetMetadata, groupID string) error {
	return nil
}

func (f *fakeAsyncProducer) AddMessageToTxn(msg *sarama.ConsumerMessage, groupID string, metadata *string) error {
	return nil
}

func (f *fakeAsyncProducer) TxnStatus() sarama.ProducerTxnStatusFlag {
	return sarama.ProducerTxnStatusFlag(0)
}

func newTestPublisher(t *testing.T, asyncProducer *fakeAsyncProducer) *EventPublisher {
	t.Helper()

	producer := &Producer{
		producer: asyncProducer,
		logger:   zaptest.NewLogger(t),
		cfg: config.KafkaSettings{
			TopicPrefix: "idp",
		},
		errChan: make(chan error, 1),
		done:    make(chan struct{}),
	}

	return NewEventPublisher(producer, config.AppSettings{
		Name: "get-an-identity",
		Env:  "test",
	}, zaptest.NewLogger(t))
}

func TestPublishJourneyCompleted(t *testing.T) {
	asyncProducer := newFakeAsyncProducer()
	publisher := newTestPublisher(t, asyncProducer)

	completedAt := time.Date(2026, 8, 14, 12, 0, 0, 0, time.UTC)
	event := domain.JourneyCompletedEvent{
		EventID:            "event-123",
		JourneyID:          "journey-456",
		ClientID:           "client-789",
		UserID:             "user-1",
		EmailVerified:      true,
		RegistrationNumber: "1234567",
		CompletedAt:        completedAt,
		Metadata:           map[string]any{"source": "unit-test"},
	}

	if err := publisher.PublishJourneyCompleted(context.Background(), event); err != nil {
		t.Fatalf("PublishJourneyCompleted returned error: %v", err)
	}

	select {
	case msg := <-asyncProducer.input:
		if msg.Topic != "idp.journey.completed" {
			t.Fatalf("unexpected topic: %s", msg.Topic)
		}

		bytes, err := msg.Value.Encode()
		if err != nil {
			t.Fatalf("Value.Encode returned error: %v", err)
		}

		var envelope map[string]any
		if err := json.Unmarshal(bytes, &envelope); err != nil {
			t.Fatalf("failed to unmarshal envelope: %v", err)
		}

		if got := envelope["event_type"]; got != "idp.journey.completed" {
			t.Fatalf("unexpected event_type: %v", got)
		}
		if got := envelope["journey_id"]; got != event.JourneyID {
			t.Fatalf("unexpected journey_id: %v", got)
		}

		timestamp, ok := envelope["timestamp"].(string)
		if !ok {
			t.Fatalf("timestamp not a string: %T", envelope["timestamp"])
		}
		if timestamp != completedAt.Format(time.RFC3339Nano) {
			t.Fatalf("unexpected timestamp: %s", timestamp)
		}

		payload, ok := envelope["payload"].(map[string]any)
		if !ok {
			t.Fatalf("payload not an object: %T", envelope["payload"])
		}
		if got := payload["registration_number"]; got != event.RegistrationNumber {
			t.Fatalf("unexpected registration_number: %v", got)
		}
	default:
		t.Fatal("expected a message on the producer input channel")
	}
}

func TestPublishCodeIssued_CancelledContext(t *testing.T) {
	// Zero-capacity input channel so publish must wait on the context.
	asyncProducer := newFakeAsyncProducer()
	asyncProducer.input = make(chan *sarama.ProducerMessage)
	publisher := newTestPublisher(t, asyncProducer)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	event := domain.CodeIssuedEvent{
		EventID:           "event-1",
		JourneyID:         "journey-1",
		MaskedDestination: "a***@b.com",
		Channel:           "email",
		IssuedAt:          time.Now().UTC(),
	}

	if err := publisher.PublishCodeIssued(ctx, event); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func TestProducerTopicName(t *testing.T) {
	producer := &Producer{cfg: config.KafkaSettings{TopicPrefix: "idp"}}

	if got := producer.TopicName("idp.code.issued"); got != "idp.code.issued" {
		t.Fatalf("prefixed event type mangled: %s", got)
	}
	if got := producer.TopicName("code.issued"); got != "idp.code.issued" {
		t.Fatalf("unexpected topic name: %s", got)
	}
}
