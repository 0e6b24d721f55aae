package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer the gateway needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaGateway publishes delivery requests to a topic consumed by the
// email/SMS delivery service. Messages are keyed by credential so all codes
// for one identity stay ordered on a partition.
type KafkaGateway struct {
	writer MessageWriter
	now    func() time.Time
}

type deliveryPayload struct {
	Channel      Channel   `json:"channel"`
	Destination  string    `json:"destination"`
	Code         string    `json:"code"`
	Purpose      string    `json:"purpose"`
	CredentialID string    `json:"credential_id"`
	RequestedAt  time.Time `json:"requested_at"`
}

// NewKafkaWriter builds a writer for topic on brokers.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
}

// NewKafkaGateway wraps w. Use [NewKafkaWriter] for a production writer.
func NewKafkaGateway(w MessageWriter) *KafkaGateway {
	return &KafkaGateway{writer: w, now: time.Now}
}

func (g *KafkaGateway) Send(ctx context.Context, msg Message) error {
	data, err := json.Marshal(deliveryPayload{
		Channel:      msg.Channel,
		Destination:  msg.Destination,
		Code:         msg.Code,
		Purpose:      msg.Purpose,
		CredentialID: msg.CredentialID,
		RequestedAt:  g.now().UTC(),
	})
	if err != nil {
		return err
	}

	if err := g.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.CredentialID),
		Value: data,
		Time:  g.now(),
		Headers: []kafka.Header{
			{Key: "channel", Value: []byte(msg.Channel)},
		},
	}); err != nil {
		return fmt.Errorf("kafka publish: %w", err)
	}
	return nil
}
