package domain

import "errors"

var (
	// ErrSessionNotFound is returned when no session exists for the given id.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrInvalidQuiz indicates loaded quiz content failed validation.
	ErrInvalidQuiz = errors.New("invalid quiz content")
	// ErrNoQuestions is returned when a quiz without questions is loaded.
	ErrNoQuestions = errors.New("quiz has no questions")
	// ErrAlreadyLoaded is returned when a session is loaded twice.
	ErrAlreadyLoaded = errors.New("quiz session already loaded")
	// ErrNotStarted is returned for play actions while the session is still loading.
	ErrNotStarted = errors.New("quiz session not started")
	// ErrInputLocked is returned while answer feedback is displayed.
	ErrInputLocked = errors.New("input locked until next question")
	// ErrNotRevealing is returned when advancing without a revealed answer.
	ErrNotRevealing = errors.New("no answer awaiting advance")
	// ErrSessionComplete is returned for play actions after the last question.
	ErrSessionComplete = errors.New("quiz session complete")
	// ErrSessionNotComplete is returned when results are requested too early.
	ErrSessionNotComplete = errors.New("quiz session not complete")
	// ErrUnknownPowerUp indicates an unsupported power-up kind.
	ErrUnknownPowerUp = errors.New("unknown power-up")
)
