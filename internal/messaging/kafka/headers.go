package kafka

import "github.com/IBM/sarama"

// Заголовки Kafka-записей: потребители фильтруют и дедуплицируют по ним, не разбирая тело.
const (
	HeaderEventType     = "event-type"
	HeaderMessageID     = "message-id"
	HeaderAggregateType = "aggregate-type"
	HeaderSchemaVersion = "schema-version"
)

// Headers: заголовки одной записи.
type Headers map[string]string

// headered реализуют события, которые сами знают свои заголовки.
type headered interface {
	KafkaHeaders() Headers
}

func (h Headers) records() []sarama.RecordHeader {
	if len(h) == 0 {
		return nil
	}
	out := make([]sarama.RecordHeader, 0, len(h))
	for k, v := range h {
		if v == "" {
			continue
		}
		out = append(out, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}
	return out
}
