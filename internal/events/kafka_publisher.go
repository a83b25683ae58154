package events

import (
	"context"
	"encoding/json"
	"time"

	gerrors "github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"

	"compensation-service/internal/models"
)

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer          MessageWriter
	commissionTopic string
	tierTopic       string
}

func NewKafkaPublisher(brokers []string, commissionTopic, tierTopic string) *KafkaPublisher {
	return NewKafkaPublisherWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}, commissionTopic, tierTopic)
}

func NewKafkaPublisherWithWriter(w MessageWriter, commissionTopic, tierTopic string) *KafkaPublisher {
	return &KafkaPublisher{writer: w, commissionTopic: commissionTopic, tierTopic: tierTopic}
}

// PublishCommissions writes one message per commission keyed by referrer, so a
// referrer's events stay ordered within a partition.
func (k *KafkaPublisher) PublishCommissions(ctx context.Context, cs []models.Commission) error {
	if len(cs) == 0 {
		return nil
	}
	now := time.Now()
	msgs := make([]kafka.Message, 0, len(cs))
	for _, c := range cs {
		v, err := json.Marshal(NewCommissionCreated(c))
		if err != nil {
			return gerrors.Wrapf(err, "marshal commission %s", c.ID)
		}
		msgs = append(msgs, kafka.Message{
			Topic: k.commissionTopic,
			Key:   []byte(c.ReferrerID),
			Value: v,
			Time:  now,
		})
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return gerrors.Wrap(err, "write commission events")
	}
	return nil
}

func (k *KafkaPublisher) PublishTierChanged(ctx context.Context, e TierChanged) error {
	v, err := json.Marshal(e)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return k.writer.WriteMessages(ctx, kafka.Message{
		Topic: k.tierTopic,
		Key:   []byte(e.MemberID),
		Value: v,
		Time:  time.Now(),
	})
}

func (k *KafkaPublisher) Close() error {
	return k.writer.Close()
}
