package events

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-runner/internal/domain"
)

func TestPublisherSendsEventWithMetadata(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	pubsub := NewGoChannel(logger)
	defer pubsub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	messages, err := pubsub.Subscribe(ctx, DefaultTopic)
	require.NoError(t, err)

	publisher := NewPublisher(pubsub, "", logger)
	event := domain.Event{
		ID:         "evt-1",
		Type:       domain.EventPowerUpActivated,
		SessionID:  "s1",
		QuizID:     "quiz-1",
		OccurredAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Payload:    domain.ExtraTime,
	}
	require.NoError(t, publisher.Publish(ctx, event))

	select {
	case msg := <-messages:
		msg.Ack()
		assert.Equal(t, "evt-1", msg.UUID)
		assert.Equal(t, "powerup.activated", msg.Metadata.Get("event_type"))
		assert.Equal(t, "s1", msg.Metadata.Get("session_id"))
		var decoded domain.Event
		require.NoError(t, json.Unmarshal(msg.Payload, &decoded))
		assert.Equal(t, "extraTime", decoded.Payload)
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
}

func TestLogCompletionsLogsFinishedSessions(t *testing.T) {
	var buf syncBuffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	pubsub := NewGoChannel(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- LogCompletions(ctx, pubsub, "", logger) }()

	publisher := NewPublisher(pubsub, "", logger)
	results := domain.Results{Score: 45, Accuracy: 80, Badge: domain.Badge{Level: "expert", Text: "Expert Level!"}}

	require.Eventually(t, func() bool {
		_ = publisher.Publish(ctx, domain.Event{
			ID:        "evt-" + time.Now().Format(time.RFC3339Nano),
			Type:      domain.EventSessionCompleted,
			SessionID: "s1",
			QuizID:    "quiz-1",
			Payload:   results,
		})
		return strings.Contains(buf.String(), "quiz session finished")
	}, 5*time.Second, 50*time.Millisecond)

	assert.Contains(t, buf.String(), "score=45")
	require.NoError(t, pubsub.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop after close")
	}
}

func TestFanoutPublishesToEveryTarget(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	first, second := NewGoChannel(logger), NewGoChannel(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	firstMsgs, err := first.Subscribe(ctx, "topic")
	require.NoError(t, err)
	secondMsgs, err := second.Subscribe(ctx, "topic")
	require.NoError(t, err)

	fanout := Fanout{NewPublisher(first, "topic", logger), NewPublisher(second, "topic", logger)}
	defer fanout.Close()
	require.NoError(t, fanout.Publish(ctx, domain.Event{ID: "evt-2", Type: domain.EventSessionStarted, SessionID: "s2"}))

	for _, messages := range []<-chan *message.Message{firstMsgs, secondMsgs} {
		select {
		case msg := <-messages:
			msg.Ack()
			assert.Equal(t, "session.started", msg.Metadata.Get("event_type"))
		case <-ctx.Done():
			t.Fatal("timed out waiting for fan-out")
		}
	}
}
