package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"

	"quiz-runner/internal/domain"
)

// completedEvent mirrors domain.Event with a typed results payload.
type completedEvent struct {
	SessionID string         `json:"sessionId"`
	QuizID    string         `json:"quizId"`
	Payload   domain.Results `json:"payload"`
}

// LogCompletions logs a summary line for every completed session until ctx is
// done or the subscription closes.
func LogCompletions(ctx context.Context, subscriber message.Subscriber, topic string, logger *slog.Logger) error {
	if topic == "" {
		topic = DefaultTopic
	}
	messages, err := subscriber.Subscribe(ctx, topic)
	if err != nil {
		return err
	}
	for msg := range messages {
		if msg.Metadata.Get("event_type") == string(domain.EventSessionCompleted) {
			var event completedEvent
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				logger.Warn("decode completed session event failed", "message_id", msg.UUID, "error", err)
			} else {
				logger.Info("quiz session finished",
					"session_id", event.SessionID,
					"quiz_id", event.QuizID,
					"score", event.Payload.Score,
					"accuracy", event.Payload.Accuracy,
					"badge", event.Payload.Badge.Text)
			}
		}
		msg.Ack()
	}
	return nil
}
