package queue

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/IBM/sarama"

	"newsbrief/types"
)

// Notice announces one freshly stored Pending record to the research
// worker. The worker re-reads the record from the database; the notice
// only carries enough to route and log.
type Notice struct {
	ExternalID string    `json:"external_id"`
	Title      string    `json:"title"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Producer publishes Pending-record notices.
type Producer struct {
	producer sarama.SyncProducer
	topic    string
}

// NewProducer connects a synchronous producer. Sync keeps the hand-off
// simple: a returned nil means the broker has the notice.
func NewProducer(brokers []string, topic string) (*Producer, error) {
	config := sarama.NewConfig()
	config.Version = sarama.V3_6_0_0
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return &Producer{producer: producer, topic: topic}, nil
}

// PublishPending sends one notice per selected record.
func (p *Producer) PublishPending(records []*types.StoredRecord) error {
	for _, rec := range records {
		notice := Notice{
			ExternalID: rec.ExternalID,
			Title:      rec.Title,
			EnqueuedAt: time.Now(),
		}
		payload, err := json.Marshal(notice)
		if err != nil {
			return err
		}

		partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
			Topic: p.topic,
			Key:   sarama.StringEncoder(rec.ExternalID),
			Value: sarama.ByteEncoder(payload),
		})
		if err != nil {
			return fmt.Errorf("failed to publish notice for %s: %w", rec.ExternalID, err)
		}
		log.Printf("Published pending notice %s (partition=%d, offset=%d)", rec.ExternalID, partition, offset)
	}
	return nil
}

// Close shuts the producer down.
func (p *Producer) Close() error {
	return p.producer.Close()
}
