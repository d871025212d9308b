package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/retailops/internal/messaging/kafka"
)

// initKafkaProducer создаёт producer, если брокеры заданы.
// Без брокеров возвращает nil, nil: outbox-воркер не запускается, события остаются в timeline.
func initKafkaProducer(cfg Config, logger *log.Entry) (*kafka.Producer, error) {
	brokers := cfg.Brokers()
	if len(brokers) == 0 {
		logger.Info("kafka brokers not configured, saga events stay in timeline only")
		return nil, nil
	}

	producer, err := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:    brokers,
		ClientID:   cfg.KafkaClientID,
		MaxRetries: cfg.KafkaMaxRetries,
	}, logger.WithField("component", "kafka-producer"))
	if err != nil {
		logger.WithError(err).WithField("brokers", brokers).Warn("kafka unavailable, continuing without event publishing")
		return nil, err
	}

	logger.WithFields(log.Fields{
		"brokers":   brokers,
		"client_id": cfg.KafkaClientID,
		"topics":    []string{kafka.TopicSagaEvents, kafka.TopicReturnEvents, kafka.TopicDeadLetter},
	}).Info("kafka producer initialized")
	return producer, nil
}

func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}
	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
		return
	}
	logger.Info("kafka producer closed")
}
