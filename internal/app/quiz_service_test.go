package app_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"quiz-runner/internal/app"
	"quiz-runner/internal/domain"
	"quiz-runner/internal/infra/memory"
)

// stillScheduler never fires; service tests drive sessions by hand.
type stillScheduler struct{}

type stillTimer struct{}

func (stillTimer) Stop() bool { return true }

func (stillScheduler) AfterFunc(time.Duration, func()) app.Timer { return stillTimer{} }

type rejectAll struct{}

func (rejectAll) ValidateQuiz(domain.Quiz) error { return domain.ErrInvalidQuiz }

func TestStartAndAnswer(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService()

	state, err := service.Start(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if state.Phase != domain.PhaseInProgress || state.Title != "Arithmetic" || state.TotalQuestions != 2 {
		t.Fatalf("unexpected start state %+v", state)
	}

	outcome, err := service.Answer(ctx, state.SessionID, "o2")
	if err != nil {
		t.Fatalf("answer failed: %v", err)
	}
	if !outcome.Correct || outcome.Awarded != 10 || outcome.TotalScore != 10 {
		t.Fatalf("expected 10 points for a correct answer, got %+v", outcome)
	}

	if _, err := service.Answer(ctx, state.SessionID, "o2"); !errors.Is(err, domain.ErrInputLocked) {
		t.Fatalf("expected input locked, got %v", err)
	}
	if _, err := service.Results(ctx, state.SessionID); !errors.Is(err, domain.ErrSessionNotComplete) {
		t.Fatalf("expected results to wait for completion, got %v", err)
	}
}

func TestSubscribeReceivesUpdates(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService()

	state, err := service.Start(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	ch, cancel, err := service.Subscribe(ctx, state.SessionID)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer cancel()

	<-ch // initial snapshot

	if _, _, err := service.ActivatePowerUp(ctx, state.SessionID, domain.Hint); err != nil {
		t.Fatalf("power-up failed: %v", err)
	}

	select {
	case update := <-ch:
		if update.ActivePowerUp != domain.Hint || len(update.HintOptionIDs) != 1 || update.HintOptionIDs[0] != "o2" {
			t.Fatalf("expected hint update, got %+v", update)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for update")
	}
}

func TestActivatePowerUpReportsRejection(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService()
	state, _ := service.Start(ctx, "quiz-1")

	if _, ok, err := service.ActivatePowerUp(ctx, state.SessionID, domain.DoublePoints); err != nil || !ok {
		t.Fatalf("expected activation, got ok=%v err=%v", ok, err)
	}
	got, ok, err := service.ActivatePowerUp(ctx, state.SessionID, domain.ExtraTime)
	if err != nil || ok {
		t.Fatalf("expected rejection while doublePoints is active, got ok=%v err=%v", ok, err)
	}
	if got.TimeRemaining != app.DefaultTimeLimit {
		t.Fatalf("rejected extraTime must not change the timer, got %d", got.TimeRemaining)
	}
}

func TestStartFailureReportsAndDropsSession(t *testing.T) {
	ctx := context.Background()
	service, store := newTestService()

	state, err := service.Start(ctx, "missing")
	if !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected quiz not found, got %v", err)
	}
	if state.Phase != domain.PhaseLoading || state.LoadError == "" {
		t.Fatalf("expected loading state with error, got %+v", state)
	}
	if store.Len() != 0 {
		t.Fatalf("failed session should not stay registered, got %d", store.Len())
	}
	if _, err := service.Answer(ctx, state.SessionID, "o1"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session not found, got %v", err)
	}
}

func TestFailedAndFinishedSessionsAreReleased(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	store := memory.NewSessionStore()
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(sampleQuizzes()), time.Minute)
	service := app.NewQuizService(store, quizzes,
		app.WithRules(app.Rules{TimeLimit: 1, TickInterval: time.Millisecond, RevealDelay: time.Millisecond}),
		app.WithSessionTTL(time.Minute),
		app.WithClock(clock.Now),
		app.WithLogger(discardLogger()))

	for i := 0; i < 100; i++ {
		if _, err := service.Start(ctx, "missing"); err == nil {
			t.Fatalf("expected start %d to fail", i)
		}
	}
	if store.Len() != 0 {
		t.Fatalf("failed starts retained %d sessions", store.Len())
	}

	var ids []string
	for i := 0; i < 5; i++ {
		state, err := service.Start(ctx, "quiz-1")
		if err != nil {
			t.Fatalf("start failed: %v", err)
		}
		ids = append(ids, state.SessionID)
	}
	deadline := time.Now().Add(5 * time.Second)
	for _, id := range ids {
		for {
			state, err := service.State(ctx, id)
			if err != nil {
				t.Fatalf("state failed: %v", err)
			}
			if state.Phase == domain.PhaseComplete {
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("session %s did not time out to completion", id)
			}
			time.Sleep(time.Millisecond)
		}
	}
	if store.Len() != 5 {
		t.Fatalf("expected finished sessions readable until the ttl, got %d", store.Len())
	}
	if removed := service.Sweep(ctx); removed != 0 {
		t.Fatalf("sweep before ttl removed %d", removed)
	}

	clock.Advance(2 * time.Minute)
	if removed := service.Sweep(ctx); removed != 5 {
		t.Fatalf("expected 5 swept sessions, got %d", removed)
	}
	if store.Len() != 0 {
		t.Fatalf("expected no retained sessions, got %d", store.Len())
	}
}

func TestSweepKeepsActiveSessions(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	store := memory.NewSessionStore()
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(sampleQuizzes()), time.Minute)
	service := app.NewQuizService(store, quizzes,
		app.WithScheduler(stillScheduler{}),
		app.WithSessionTTL(time.Minute),
		app.WithClock(clock.Now),
		app.WithLogger(discardLogger()))

	idle, _ := service.Start(ctx, "quiz-1")
	busy, _ := service.Start(ctx, "quiz-1")

	clock.Advance(45 * time.Second)
	if _, err := service.Answer(ctx, busy.SessionID, "o2"); err != nil {
		t.Fatalf("answer failed: %v", err)
	}
	clock.Advance(30 * time.Second)

	if removed := service.Sweep(ctx); removed != 1 {
		t.Fatalf("expected only the idle session swept, got %d", removed)
	}
	if _, err := service.State(ctx, idle.SessionID); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("idle session should be gone, got %v", err)
	}
	if _, err := service.State(ctx, busy.SessionID); err != nil {
		t.Fatalf("active session should remain, got %v", err)
	}
}

func TestSweepDisabledWithoutTTL(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	store := memory.NewSessionStore()
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(sampleQuizzes()), time.Minute)
	service := app.NewQuizService(store, quizzes,
		app.WithScheduler(stillScheduler{}),
		app.WithSessionTTL(0),
		app.WithClock(clock.Now),
		app.WithLogger(discardLogger()))

	_, _ = service.Start(ctx, "quiz-1")
	clock.Advance(24 * time.Hour)
	if removed := service.Sweep(ctx); removed != 0 || store.Len() != 1 {
		t.Fatalf("expected nothing swept, removed=%d len=%d", removed, store.Len())
	}
	if err := service.RunSweeper(ctx, time.Millisecond); err != nil {
		t.Fatalf("disabled sweeper should return immediately, got %v", err)
	}
}

func TestStartRejectsInvalidQuiz(t *testing.T) {
	store := memory.NewSessionStore()
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(sampleQuizzes()), time.Minute)
	service := app.NewQuizService(store, quizzes,
		app.WithScheduler(stillScheduler{}),
		app.WithValidator(rejectAll{}),
		app.WithLogger(discardLogger()))

	state, err := service.Start(context.Background(), "quiz-1")
	if !errors.Is(err, domain.ErrInvalidQuiz) {
		t.Fatalf("expected invalid quiz, got %v", err)
	}
	if state.Phase != domain.PhaseLoading {
		t.Fatalf("expected loading, got %s", state.Phase)
	}
}

func TestRestartAndEnd(t *testing.T) {
	ctx := context.Background()
	service, store := newTestService()

	first, _ := service.Start(ctx, "quiz-1")
	if _, err := service.Answer(ctx, first.SessionID, "o2"); err != nil {
		t.Fatalf("answer failed: %v", err)
	}

	second, err := service.Restart(ctx, first.SessionID)
	if err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	if second.SessionID == first.SessionID || second.Score != 0 || second.QuizID != "quiz-1" {
		t.Fatalf("expected a fresh session on the same quiz, got %+v", second)
	}
	if _, err := service.State(ctx, first.SessionID); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("old session should be gone, got %v", err)
	}

	service.End(ctx, second.SessionID)
	if store.Len() != 0 {
		t.Fatalf("expected no sessions, got %d", store.Len())
	}
	if _, err := service.Restart(ctx, second.SessionID); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestResultsAfterCompletion(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSessionStore()
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(sampleQuizzes()), time.Minute)
	service := app.NewQuizService(store, quizzes,
		app.WithRules(app.Rules{RevealDelay: time.Millisecond, TickInterval: time.Hour}),
		app.WithLogger(discardLogger()))

	state, _ := service.Start(ctx, "quiz-1")
	updates, cancel, _ := service.Subscribe(ctx, state.SessionID)
	defer cancel()

	answers := []domain.ID{"o2", "x"}
	next := 0
	deadline := time.After(5 * time.Second)
	for {
		select {
		case st := <-updates:
			if st.Phase == domain.PhaseInProgress && st.QuestionIndex == next && next < len(answers) {
				if _, err := service.Answer(ctx, state.SessionID, answers[next]); err != nil {
					t.Fatalf("answer %d failed: %v", next, err)
				}
				next++
			}
			if st.Phase != domain.PhaseComplete {
				continue
			}
			results, err := service.Results(ctx, state.SessionID)
			if err != nil {
				t.Fatalf("results failed: %v", err)
			}
			if results.Score != 10 || results.Accuracy != 50 || results.CorrectAnswers != 1 {
				t.Fatalf("unexpected results %+v", results)
			}
			return
		case <-deadline:
			t.Fatalf("session did not complete")
		}
	}
}

func TestUnknownSession(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService()

	if _, err := service.State(ctx, "nope"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, _, err := service.Subscribe(ctx, "nope"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	service.End(ctx, "nope")
}

func newTestService() (*app.QuizService, *memory.SessionStore) {
	store := memory.NewSessionStore()
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(sampleQuizzes()), time.Minute)
	service := app.NewQuizService(store, quizzes,
		app.WithScheduler(stillScheduler{}),
		app.WithLogger(discardLogger()))
	return service, store
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "Arithmetic",
			Topic: "math",
			Questions: []domain.Question{
				{
					ID:          "q1",
					Description: "What is 2 + 2?",
					Options: []domain.Option{
						{ID: "o1", Description: "3"},
						{ID: "o2", Description: "4", IsCorrect: true},
						{ID: "o3", Description: "5"},
					},
				},
				{
					ID:          "q2",
					Description: "What is 10 / 2?",
					Options: []domain.Option{
						{ID: "o1", Description: "5", IsCorrect: true},
						{ID: "o2", Description: "2"},
					},
				},
			},
		},
	}
}
