package notify

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/bharathbbg/parcel-hub/internal/config"
	"github.com/bharathbbg/parcel-hub/internal/model"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// envelope is the payload published for the notification service.
type envelope struct {
	ID        string             `json:"id"`
	CreatedAt time.Time          `json:"created_at"`
	Payload   model.Notification `json:"payload"`
}

// KafkaNotifier publishes notifications to a topic. Writes are asynchronous;
// delivery failures are only logged.
type KafkaNotifier struct {
	writer messageWriter
	log    *zap.Logger
}

func NewKafkaNotifier(cfg config.KafkaConfig, log *zap.Logger) *KafkaNotifier {
	log = log.Named("notify")
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.NotificationTopic,
		Balancer:     &kafka.Hash{},
		Async:        true,
		BatchTimeout: 50 * time.Millisecond,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Warn("notification delivery failed", zap.Int("messages", len(messages)), zap.Error(err))
			}
		},
	}
	return &KafkaNotifier{writer: w, log: log}
}

func (n *KafkaNotifier) Notify(ctx context.Context, msg model.Notification) error {
	data, err := json.Marshal(envelope{ID: uuid.New().String(), CreatedAt: time.Now().UTC(), Payload: msg})
	if err != nil {
		return err
	}
	// keyed by user so one user's notifications stay ordered
	return n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(msg.UserID, 10)),
		Value: data,
	})
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

// LogNotifier only logs notifications. It is used when no broker is configured.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log.Named("notify")}
}

func (n *LogNotifier) Notify(_ context.Context, msg model.Notification) error {
	n.log.Info("notification", zap.Int64("user_id", msg.UserID), zap.String("title", msg.Title),
		zap.String("message", msg.Message))
	return nil
}

func (n *LogNotifier) Close() error { return nil }
