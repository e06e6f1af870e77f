package domain

import "time"

// EventType names a session lifecycle event.
type EventType string

const (
	EventSessionStarted   EventType = "session.started"
	EventAnswerRevealed   EventType = "answer.revealed"
	EventPowerUpActivated EventType = "powerup.activated"
	EventSessionCompleted EventType = "session.completed"
)

// Event is published on every externally visible session transition.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	SessionID  string    `json:"sessionId"`
	QuizID     string    `json:"quizId"`
	OccurredAt time.Time `json:"occurredAt"`
	Payload    any       `json:"payload,omitempty"`
}
