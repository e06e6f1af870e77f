package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"quiz-runner/internal/domain"
)

// DefaultSessionTTL is how long a session may go untouched before Sweep ends it.
const DefaultSessionTTL = 30 * time.Minute

// SessionRepository abstracts where live sessions are kept (in-memory, Redis, etc).
type SessionRepository interface {
	Save(runner *Runner)
	Get(sessionID string) (*Runner, bool)
	Delete(sessionID string)
	List() []*Runner
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizLoader fetches quiz content from a question source.
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizValidator rejects malformed quiz content before play.
type QuizValidator interface {
	ValidateQuiz(quiz domain.Quiz) error
}

// ServiceOption customizes a QuizService.
type ServiceOption func(*QuizService)

// WithRules overrides scoring and timing rules.
func WithRules(rules Rules) ServiceOption {
	return func(s *QuizService) { s.rules = rules.WithDefaults() }
}

// WithScheduler replaces the wall-clock scheduler.
func WithScheduler(scheduler Scheduler) ServiceOption {
	return func(s *QuizService) { s.scheduler = scheduler }
}

func WithEventSink(events EventSink) ServiceOption {
	return func(s *QuizService) { s.events = events }
}

func WithValidator(validator QuizValidator) ServiceOption {
	return func(s *QuizService) { s.validator = validator }
}

func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *QuizService) { s.logger = logger }
}

// WithSessionTTL sets the idle time after which Sweep ends a session.
// Zero or negative disables sweeping.
func WithSessionTTL(ttl time.Duration) ServiceOption {
	return func(s *QuizService) { s.sessionTTL = ttl }
}

// WithClock replaces time.Now for session activity tracking.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *QuizService) { s.now = now }
}

// QuizService contains the quiz session use cases.
type QuizService struct {
	sessions  SessionRepository
	quizzes   QuizRepository
	validator QuizValidator
	rules     Rules
	scheduler Scheduler
	events    EventSink
	logger    *slog.Logger
	newID     func() string

	sessionTTL time.Duration
	now        func() time.Time
}

func NewQuizService(store SessionRepository, quizzes QuizRepository, opts ...ServiceOption) *QuizService {
	s := &QuizService{
		sessions:  store,
		quizzes:   quizzes,
		rules:     DefaultRules(),
		scheduler: ClockScheduler{},
		logger:    slog.Default(),
		newID:     uuid.NewString,

		sessionTTL: DefaultSessionTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start creates a session and loads its quiz. When the quiz cannot be
// fetched the returned snapshot stays in the loading phase with the error
// attached, and the session is dropped from the repository. There is no
// retry; callers start a new session instead.
func (s *QuizService) Start(ctx context.Context, quizID string) (domain.State, error) {
	session := NewSession(s.newID(), quizID, s.rules)
	runner := NewRunner(session, s.scheduler, s.events, s.logger)
	runner.now = s.now
	runner.Touch()
	s.sessions.Save(runner)

	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err == nil && s.validator != nil {
		err = s.validator.ValidateQuiz(quiz)
	}
	if err == nil {
		err = runner.Start(ctx, quiz)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "error loading quiz data",
			"session_id", session.ID(), "quiz_id", quizID, "error", err)
		runner.Fail(err)
		state := runner.Snapshot()
		s.End(ctx, session.ID())
		return state, fmt.Errorf("load quiz %s: %w", quizID, err)
	}
	return runner.Snapshot(), nil
}

// Answer submits an option for the current question. domain.NoAnswer is
// scored like a timeout.
func (s *QuizService) Answer(ctx context.Context, sessionID string, optionID domain.ID) (domain.AnswerOutcome, error) {
	runner, err := s.runner(sessionID)
	if err != nil {
		return domain.AnswerOutcome{}, err
	}
	return runner.Answer(ctx, optionID)
}

// ActivatePowerUp applies a power-up to the current question. activated is
// false when the request was rejected by the power-up rules.
func (s *QuizService) ActivatePowerUp(ctx context.Context, sessionID string, kind domain.PowerUpKind) (state domain.State, activated bool, err error) {
	runner, err := s.runner(sessionID)
	if err != nil {
		return domain.State{}, false, err
	}
	activated, err = runner.ActivatePowerUp(ctx, kind)
	if err != nil {
		return domain.State{}, false, err
	}
	return runner.Snapshot(), activated, nil
}

// State returns the current snapshot of a session.
func (s *QuizService) State(_ context.Context, sessionID string) (domain.State, error) {
	runner, err := s.runner(sessionID)
	if err != nil {
		return domain.State{}, err
	}
	return runner.Snapshot(), nil
}

// Results returns the summary of a completed session.
func (s *QuizService) Results(_ context.Context, sessionID string) (domain.Results, error) {
	runner, err := s.runner(sessionID)
	if err != nil {
		return domain.Results{}, err
	}
	return runner.Session().Results()
}

// Subscribe returns a channel that receives state snapshots for a session.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *QuizService) Subscribe(_ context.Context, sessionID string) (<-chan domain.State, func(), error) {
	runner, err := s.runner(sessionID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := runner.Session().Subscribe()
	return ch, cancel, nil
}

// Restart discards a session and starts a fresh one on the same quiz.
func (s *QuizService) Restart(ctx context.Context, sessionID string) (domain.State, error) {
	runner, err := s.runner(sessionID)
	if err != nil {
		return domain.State{}, err
	}
	quizID := runner.QuizID()
	s.End(ctx, sessionID)
	return s.Start(ctx, quizID)
}

// End stops a session's timers and forgets it.
func (s *QuizService) End(_ context.Context, sessionID string) {
	runner, ok := s.sessions.Get(sessionID)
	if !ok {
		return
	}
	runner.Stop()
	s.sessions.Delete(sessionID)
}

// Sweep ends every session that has seen no activity for the session TTL
// and reports how many were removed. Completion counts as activity, so a
// finished session stays readable for one TTL.
func (s *QuizService) Sweep(ctx context.Context) int {
	if s.sessionTTL <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.sessionTTL)
	removed := 0
	for _, runner := range s.sessions.List() {
		if !runner.LastActive().Before(cutoff) {
			continue
		}
		s.End(ctx, runner.ID())
		removed++
	}
	if removed > 0 {
		s.logger.InfoContext(ctx, "swept idle sessions", "removed", removed)
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *QuizService) RunSweeper(ctx context.Context, interval time.Duration) error {
	if s.sessionTTL <= 0 || interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

func (s *QuizService) runner(sessionID string) (*Runner, error) {
	runner, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	runner.Touch()
	return runner, nil
}
