package kafkanotify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"MediMind/internal/config"
	"MediMind/internal/domain"
	"MediMind/internal/notification"
)

const eventType = "medication.reminder"

// Writer is the subset of *kafka.Writer the notifier needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Event is the payload published for each reminder. Downstream consumers
// own delivery to the user.
type Event struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	ScheduleID   string    `json:"schedule_id"`
	UserID       string    `json:"user_id"`
	Recipient    string    `json:"recipient"`
	MedicineName string    `json:"medicine_name"`
	Dosage       string    `json:"dosage"`
	Period       string    `json:"period"`
	Subject      string    `json:"subject"`
	Text         string    `json:"text"`
	Timestamp    time.Time `json:"timestamp"`
}

// Notifier publishes reminder events to a Kafka topic.
type Notifier struct {
	writer Writer
	topic  string
	now    func() time.Time
	logger *zap.Logger
}

var _ notification.Channel = (*Notifier)(nil)

// NewWriter builds a synchronous writer acknowledged by all replicas.
func NewWriter(cfg config.KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
	}
}

// NewNotifier wraps a writer. A nil writer is built from cfg.
func NewNotifier(cfg config.KafkaConfig, writer Writer, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if writer == nil {
		writer = NewWriter(cfg)
	}
	return &Notifier{
		writer: writer,
		topic:  cfg.Topic,
		now:    time.Now,
		logger: logger.With(zap.String("component", "kafka")),
	}
}

// Name implements notification.Channel.
func (n *Notifier) Name() string { return "kafka" }

// SendReminder publishes one event keyed by the schedule id, so reminders of a
// schedule stay ordered within a partition.
func (n *Notifier) SendReminder(ctx context.Context, reminder domain.Reminder) error {
	msg, err := notification.Render(reminder)
	if err != nil {
		return err
	}

	event := Event{
		ID:           uuid.NewString(),
		Type:         eventType,
		ScheduleID:   reminder.ScheduleID,
		UserID:       reminder.UserID,
		Recipient:    reminder.Recipient,
		MedicineName: reminder.MedicineName,
		Dosage:       reminder.Dosage,
		Period:       reminder.Period.String(),
		Subject:      msg.Subject,
		Text:         msg.Text,
		Timestamp:    n.now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal reminder event: %w", err)
	}

	key := reminder.ScheduleID
	if key == "" {
		key = event.ID
	}
	message := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(eventType)},
			{Key: "event-id", Value: []byte(event.ID)},
		},
	}

	if err := n.writer.WriteMessages(ctx, message); err != nil {
		return fmt.Errorf("publish reminder event: %w", err)
	}
	n.logger.Debug("reminder event published",
		zap.String("event_id", event.ID),
		zap.String("schedule_id", reminder.ScheduleID),
		zap.String("topic", n.topic),
	)
	return nil
}

// Close flushes and closes the writer.
func (n *Notifier) Close() error {
	return n.writer.Close()
}
