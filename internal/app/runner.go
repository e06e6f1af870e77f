package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"quiz-runner/internal/domain"
)

// EventSink receives session lifecycle events.
type EventSink interface {
	Publish(ctx context.Context, event domain.Event) error
}

// Runner owns a Session and its single pending timer: either the next
// countdown tick or the advance after an answer is revealed. Every
// reschedule bumps a generation so superseded callbacks become no-ops.
type Runner struct {
	session   *Session
	rules     Rules
	scheduler Scheduler
	events    EventSink
	logger    *slog.Logger
	now       func() time.Time

	mu         sync.Mutex
	gen        uint64
	timer      Timer
	stopped    bool
	lastActive time.Time
}

// NewRunner wires a session to a scheduler. events may be nil.
func NewRunner(session *Session, scheduler Scheduler, events EventSink, logger *slog.Logger) *Runner {
	if scheduler == nil {
		scheduler = ClockScheduler{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		session:   session,
		rules:     session.rules,
		scheduler: scheduler,
		events:    events,
		logger:    logger.With("session_id", session.ID(), "quiz_id", session.QuizID()),
		now:       time.Now,
	}
}

func (r *Runner) ID() string { return r.session.ID() }

func (r *Runner) QuizID() string { return r.session.QuizID() }

// Session exposes the underlying state machine.
func (r *Runner) Session() *Session { return r.session }

// Touch marks the session as used now.
func (r *Runner) Touch() {
	r.mu.Lock()
	r.lastActive = r.now()
	r.mu.Unlock()
}

// LastActive reports the last caller activity or completion.
func (r *Runner) LastActive() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastActive
}

// Snapshot returns the current session state.
func (r *Runner) Snapshot() domain.State { return r.session.Snapshot() }

// Start loads the quiz and begins the countdown for the first question.
func (r *Runner) Start(ctx context.Context, quiz domain.Quiz) error {
	r.mu.Lock()
	if err := r.session.Load(quiz); err != nil {
		r.mu.Unlock()
		return err
	}
	r.scheduleLocked(r.rules.TickInterval, r.tick)
	r.mu.Unlock()

	state := r.session.Snapshot()
	r.logger.InfoContext(ctx, "quiz session started", "questions", state.TotalQuestions)
	r.publish(ctx, domain.EventSessionStarted, state)
	return nil
}

// Fail records a load failure; the session keeps showing as loading.
func (r *Runner) Fail(err error) {
	r.session.Fail(err)
}

// Answer submits a choice and schedules the advance after the reveal delay.
// The pending countdown tick is cancelled.
func (r *Runner) Answer(ctx context.Context, optionID domain.ID) (domain.AnswerOutcome, error) {
	r.mu.Lock()
	outcome, err := r.session.SubmitAnswer(optionID)
	if err != nil {
		r.mu.Unlock()
		return domain.AnswerOutcome{}, err
	}
	r.scheduleLocked(r.rules.RevealDelay, r.advance)
	r.mu.Unlock()

	r.publish(ctx, domain.EventAnswerRevealed, outcome)
	return outcome, nil
}

// ActivatePowerUp applies a power-up. Extra time restarts the countdown tick so
// the bonus is never shortened by a partially elapsed interval.
func (r *Runner) ActivatePowerUp(ctx context.Context, kind domain.PowerUpKind) (bool, error) {
	r.mu.Lock()
	ok, err := r.session.ActivatePowerUp(kind)
	if ok && kind == domain.ExtraTime {
		r.scheduleLocked(r.rules.TickInterval, r.tick)
	}
	r.mu.Unlock()

	if ok {
		r.publish(ctx, domain.EventPowerUpActivated, kind)
	}
	return ok, err
}

// Stop cancels pending timers and releases subscribers.
func (r *Runner) Stop() {
	r.mu.Lock()
	r.stopped = true
	r.gen++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.mu.Unlock()
	r.session.Close()
}

func (r *Runner) scheduleLocked(d time.Duration, fn func(gen uint64)) {
	if r.stopped {
		return
	}
	if r.timer != nil {
		r.timer.Stop()
	}
	r.gen++
	gen := r.gen
	r.timer = r.scheduler.AfterFunc(d, func() { fn(gen) })
}

func (r *Runner) tick(gen uint64) {
	r.mu.Lock()
	if gen != r.gen || r.stopped {
		r.mu.Unlock()
		return
	}
	r.timer = nil
	outcome, err := r.session.Tick()
	if err != nil {
		r.mu.Unlock()
		return
	}
	if outcome != nil {
		r.scheduleLocked(r.rules.RevealDelay, r.advance)
	} else {
		r.scheduleLocked(r.rules.TickInterval, r.tick)
	}
	r.mu.Unlock()

	if outcome != nil {
		r.logger.Debug("question timed out", "question_id", outcome.QuestionID)
		r.publish(context.Background(), domain.EventAnswerRevealed, *outcome)
	}
}

func (r *Runner) advance(gen uint64) {
	r.mu.Lock()
	if gen != r.gen || r.stopped {
		r.mu.Unlock()
		return
	}
	r.timer = nil
	phase, err := r.session.Advance()
	if err != nil {
		r.mu.Unlock()
		return
	}
	switch phase {
	case domain.PhaseInProgress:
		r.scheduleLocked(r.rules.TickInterval, r.tick)
	case domain.PhaseComplete:
		r.lastActive = r.now()
	}
	r.mu.Unlock()

	if phase != domain.PhaseComplete {
		return
	}
	results, err := r.session.Results()
	if err != nil {
		return
	}
	r.logger.Info("quiz session complete", "score", results.Score, "accuracy", results.Accuracy)
	r.publish(context.Background(), domain.EventSessionCompleted, results)
}

func (r *Runner) publish(ctx context.Context, typ domain.EventType, payload any) {
	if r.events == nil {
		return
	}
	event := domain.Event{
		ID:         uuid.NewString(),
		Type:       typ,
		SessionID:  r.session.ID(),
		QuizID:     r.session.QuizID(),
		OccurredAt: r.now(),
		Payload:    payload,
	}
	if err := r.events.Publish(ctx, event); err != nil {
		r.logger.WarnContext(ctx, "publish session event failed", "event_type", typ, "error", err)
	}
}
