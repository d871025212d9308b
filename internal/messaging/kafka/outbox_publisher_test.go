package kafka

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
)

func TestOutboxPublisher_Publish(t *testing.T) {
	t.Parallel()

	enqueued := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "saga-123" || msg.Topic != TopicReturnEvents {
			return fmt.Errorf("unexpected key/topic %s/%s", key, msg.Topic)
		}
		headers := headerMap(msg)
		if headers[HeaderMessageID] != "outbox-1" || headers[HeaderAggregateType] != "saga" {
			return fmt.Errorf("unexpected headers %v", headers)
		}

		raw, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var envelope outboxEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return err
		}
		if envelope.AggregateID != "saga-123" || envelope.EventType != "saga.completed" || !envelope.EnqueuedAt.Equal(enqueued) {
			return fmt.Errorf("unexpected envelope %+v", envelope)
		}
		if string(envelope.Payload) != `{"return_id":"ret-1"}` {
			return fmt.Errorf("unexpected payload %s", envelope.Payload)
		}
		return nil
	})

	producer := NewProducerFromSync(mockProducer, log.WithField("component", "kafka-outbox-publisher-test"))
	publisher := NewOutboxPublisher(producer, "")
	require.Equal(t, TopicReturnEvents, publisher.Topic())

	err := publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: "saga",
		AggregateID:   "saga-123",
		EventType:     "saga.completed",
		Payload:       []byte(`{"return_id":"ret-1"}`),
		CreatedAt:     enqueued,
	})
	require.NoError(t, err)
	require.NoError(t, mockProducer.Close())
}

func TestOutboxPublisher_InvalidPayloadAndKeyFallback(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, _ := msg.Key.Encode()
		if string(key) != "outbox-9" {
			return fmt.Errorf("expected outbox id as key, got %s", key)
		}
		raw, _ := msg.Value.Encode()
		var envelope outboxEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return err
		}
		if string(envelope.Payload) != `{}` {
			return fmt.Errorf("expected empty object payload, got %s", envelope.Payload)
		}
		return nil
	})

	publisher := NewOutboxPublisher(NewProducerFromSync(mockProducer, nil), TopicDeadLetter)
	require.NoError(t, publisher.Publish(domain.OutboxMessage{ID: "outbox-9", EventType: "defects.bulk_processed", Payload: []byte("garbage")}))
	require.NoError(t, mockProducer.Close())
}

func TestOutboxPublisher_PublishProducerError(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	publisher := NewOutboxPublisher(NewProducerFromSync(mockProducer, nil), TopicReturnEvents)

	err := publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-2",
		AggregateType: "saga",
		AggregateID:   "saga-234",
		EventType:     "saga.failed",
	})
	require.Error(t, err)
	require.NoError(t, mockProducer.Close())
}

func TestOutboxPublisher_PublishNilProducer(t *testing.T) {
	t.Parallel()

	publisher := NewOutboxPublisher(nil, TopicReturnEvents)
	require.ErrorIs(t, publisher.Publish(domain.OutboxMessage{ID: "outbox-3"}), errPublisherNotInitialized)
}
