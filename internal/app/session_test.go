package app

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-runner/internal/domain"
)

func TestSessionStreakBonusAndCompletion(t *testing.T) {
	s := loadedSession(t, fiveQuestionQuiz())

	for i := 0; i < 4; i++ {
		answerAndAdvance(t, s, "right")
	}
	state := s.Snapshot()
	assert.Equal(t, 45, state.Score)
	assert.Equal(t, 4, state.Streak)

	outcome, err := s.SubmitAnswer("wrong")
	require.NoError(t, err)
	assert.False(t, outcome.Correct)
	assert.Equal(t, 0, outcome.Awarded)
	phase, err := s.Advance()
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseComplete, phase)

	state = s.Snapshot()
	assert.Equal(t, 45, state.Score)
	assert.Equal(t, 0, state.Streak)
	assert.Equal(t, 4, state.CorrectAnswers)
	assert.Equal(t, 1, state.IncorrectAnswers)
	assert.Equal(t, 5, state.QuestionIndex)
	assert.Nil(t, state.Question)

	results, err := s.Results()
	require.NoError(t, err)
	assert.Equal(t, 80.0, results.Accuracy)
	assert.Equal(t, 4, results.BestStreak)
	assert.Equal(t, 0, results.FinalStreak)
	assert.Equal(t, "Expert Level!", results.Badge.Text)
	require.Len(t, results.Review, 5)
	assert.Equal(t, 15, results.Review[3].Awarded)
	assert.Equal(t, "Wrong", results.Review[4].Chosen)
	assert.Equal(t, "Right", results.Review[4].CorrectAnswer)
}

func TestSessionExtraTimeAddsBonus(t *testing.T) {
	s := loadedSession(t, fiveQuestionQuiz())
	for i := 0; i < 10; i++ {
		_, err := s.Tick()
		require.NoError(t, err)
	}
	require.Equal(t, 20, s.Snapshot().TimeRemaining)

	ok, err := s.ActivatePowerUp(domain.ExtraTime)
	require.NoError(t, err)
	require.True(t, ok)

	state := s.Snapshot()
	assert.Equal(t, 30, state.TimeRemaining)
	assert.Equal(t, 1, state.PowerUps[domain.ExtraTime].RemainingUses)
	assert.True(t, state.PowerUps[domain.ExtraTime].Active)
	assert.Equal(t, domain.ExtraTime, state.ActivePowerUp)
}

func TestSessionDoublePointsWithStreakBonus(t *testing.T) {
	s := loadedSession(t, fiveQuestionQuiz())
	for i := 0; i < 3; i++ {
		answerAndAdvance(t, s, "right")
	}

	ok, err := s.ActivatePowerUp(domain.DoublePoints)
	require.NoError(t, err)
	require.True(t, ok)

	outcome, err := s.SubmitAnswer("right")
	require.NoError(t, err)
	assert.Equal(t, 25, outcome.Awarded)
	assert.Equal(t, 55, outcome.TotalScore)

	state := s.Snapshot()
	assert.Empty(t, state.ActivePowerUp)
	assert.False(t, state.PowerUps[domain.DoublePoints].Active)
	assert.Equal(t, 1, state.PowerUps[domain.DoublePoints].RemainingUses)
}

func TestSessionDoublePointsOnWrongAnswerScoresZero(t *testing.T) {
	s := loadedSession(t, fiveQuestionQuiz())
	_, err := s.ActivatePowerUp(domain.DoublePoints)
	require.NoError(t, err)

	outcome, err := s.SubmitAnswer("wrong")
	require.NoError(t, err)
	assert.Equal(t, 0, outcome.Awarded)
	assert.Equal(t, 1, s.Snapshot().PowerUps[domain.DoublePoints].RemainingUses, "uses are not refunded")
}

func TestSessionOnlyOnePowerUpAtATime(t *testing.T) {
	s := loadedSession(t, fiveQuestionQuiz())

	ok, err := s.ActivatePowerUp(domain.Hint)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.ActivatePowerUp(domain.ExtraTime)
	require.NoError(t, err)
	assert.False(t, ok)

	state := s.Snapshot()
	assert.Equal(t, domain.Hint, state.ActivePowerUp)
	assert.Equal(t, 2, state.PowerUps[domain.ExtraTime].RemainingUses)
	assert.Equal(t, 30, state.TimeRemaining)
	assert.Equal(t, []domain.ID{"right"}, state.HintOptionIDs)
}

func TestSessionPowerUpUsesNeverGoNegative(t *testing.T) {
	s := loadedSession(t, fiveQuestionQuiz())

	for i := 0; i < 2; i++ {
		ok, err := s.ActivatePowerUp(domain.Hint)
		require.NoError(t, err)
		require.True(t, ok)
		answerAndAdvance(t, s, "right")
	}
	ok, err := s.ActivatePowerUp(domain.Hint)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, s.Snapshot().PowerUps[domain.Hint].RemainingUses)
	assert.Empty(t, s.Snapshot().HintOptionIDs)
}

func TestSessionUnknownPowerUp(t *testing.T) {
	s := loadedSession(t, fiveQuestionQuiz())
	ok, err := s.ActivatePowerUp("teleport")
	assert.False(t, ok)
	assert.ErrorIs(t, err, domain.ErrUnknownPowerUp)
}

func TestSessionTimeoutMatchesNoAnswer(t *testing.T) {
	timedOut := loadedSession(t, fiveQuestionQuiz())
	var outcome *domain.AnswerOutcome
	for i := 0; i < DefaultTimeLimit; i++ {
		var err error
		outcome, err = timedOut.Tick()
		require.NoError(t, err)
		if i < DefaultTimeLimit-1 {
			require.Nil(t, outcome)
		}
	}
	require.NotNil(t, outcome)
	assert.True(t, outcome.TimedOut)

	skipped := loadedSession(t, fiveQuestionQuiz())
	manual, err := skipped.SubmitAnswer(domain.NoAnswer)
	require.NoError(t, err)

	assert.Equal(t, manual, *outcome)
	a, b := timedOut.Snapshot(), skipped.Snapshot()
	assert.Equal(t, b.Score, a.Score)
	assert.Equal(t, b.Streak, a.Streak)
	assert.Equal(t, b.IncorrectAnswers, a.IncorrectAnswers)
	assert.Equal(t, domain.PhaseRevealing, a.Phase)
	assert.Equal(t, 0, a.TimeRemaining)
}

func TestSessionUnknownOptionIsIncorrect(t *testing.T) {
	s := loadedSession(t, fiveQuestionQuiz())
	answerAndAdvance(t, s, "right")

	outcome, err := s.SubmitAnswer("does-not-exist")
	require.NoError(t, err)
	assert.False(t, outcome.Correct)
	assert.False(t, outcome.TimedOut)
	assert.Equal(t, 0, s.Snapshot().Streak)
	assert.Equal(t, domain.ID("right"), outcome.CorrectOptionID)
}

func TestSessionInputLockedUntilAdvance(t *testing.T) {
	s := loadedSession(t, fiveQuestionQuiz())
	_, err := s.SubmitAnswer("right")
	require.NoError(t, err)

	state := s.Snapshot()
	assert.True(t, state.InputLocked)
	require.NotNil(t, state.LastOutcome)
	assert.True(t, state.LastOutcome.Correct)

	_, err = s.SubmitAnswer("right")
	assert.ErrorIs(t, err, domain.ErrInputLocked)
	_, err = s.Tick()
	assert.ErrorIs(t, err, domain.ErrInputLocked)
	ok, err := s.ActivatePowerUp(domain.Hint)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Advance()
	require.NoError(t, err)
	state = s.Snapshot()
	assert.False(t, state.InputLocked)
	assert.Equal(t, 1, state.QuestionIndex)
	assert.Equal(t, DefaultTimeLimit, state.TimeRemaining)
	assert.Nil(t, state.LastOutcome)

	_, err = s.Advance()
	assert.ErrorIs(t, err, domain.ErrNotRevealing)
}

func TestSessionCompleteRejectsInput(t *testing.T) {
	s := loadedSession(t, quizWith(1))
	answerAndAdvance(t, s, "right")

	_, err := s.SubmitAnswer("right")
	assert.ErrorIs(t, err, domain.ErrSessionComplete)
	_, err = s.Tick()
	assert.ErrorIs(t, err, domain.ErrSessionComplete)
	ok, err := s.ActivatePowerUp(domain.ExtraTime)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSessionLoad(t *testing.T) {
	s := NewSession("s1", "quiz-1", DefaultRules())

	_, err := s.SubmitAnswer("right")
	assert.ErrorIs(t, err, domain.ErrNotStarted)
	_, err = s.Results()
	assert.ErrorIs(t, err, domain.ErrSessionNotComplete)

	err = s.Load(domain.Quiz{Title: "Empty"})
	assert.ErrorIs(t, err, domain.ErrNoQuestions)
	state := s.Snapshot()
	assert.Equal(t, domain.PhaseLoading, state.Phase)
	assert.Equal(t, domain.ErrNoQuestions.Error(), state.LoadError)

	require.NoError(t, s.Load(fiveQuestionQuiz()))
	state = s.Snapshot()
	assert.Equal(t, domain.PhaseInProgress, state.Phase)
	assert.Empty(t, state.LoadError)
	assert.Equal(t, "Five", state.Title)
	assert.Equal(t, 0, state.QuestionIndex)
	assert.Equal(t, DefaultTimeLimit, state.TimeRemaining)
	require.NotNil(t, state.Question)
	assert.Len(t, state.Question.Options, 2)

	assert.ErrorIs(t, s.Load(fiveQuestionQuiz()), domain.ErrAlreadyLoaded)
}

func TestSessionFailKeepsLoading(t *testing.T) {
	s := NewSession("s1", "quiz-1", DefaultRules())
	s.Fail(domain.ErrQuizNotFound)

	state := s.Snapshot()
	assert.Equal(t, domain.PhaseLoading, state.Phase)
	assert.Equal(t, domain.ErrQuizNotFound.Error(), state.LoadError)
}

func TestSessionResultsTimestamps(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	s := NewSessionWithClock("s1", "quiz-1", DefaultRules(), clock)
	require.NoError(t, s.Load(quizWith(1)))

	now = now.Add(time.Minute)
	answerAndAdvance(t, s, "wrong")

	results, err := s.Results()
	require.NoError(t, err)
	assert.Equal(t, time.Minute, results.CompletedAt.Sub(results.StartedAt))
	assert.Equal(t, 0.0, results.Accuracy)
	assert.Equal(t, "Keep Improving!", results.Badge.Text)
}

func TestSessionSubscribeReceivesSnapshots(t *testing.T) {
	s := loadedSession(t, fiveQuestionQuiz())
	updates, cancel := s.Subscribe()
	defer cancel()

	initial := <-updates
	assert.Equal(t, DefaultTimeLimit, initial.TimeRemaining)

	_, err := s.Tick()
	require.NoError(t, err)
	next := <-updates
	assert.Equal(t, DefaultTimeLimit-1, next.TimeRemaining)

	// a slow subscriber only keeps the freshest snapshots
	for i := 0; i < 20; i++ {
		_, err := s.Tick()
		require.NoError(t, err)
	}
	var last domain.State
	for len(updates) > 0 {
		last = <-updates
	}
	assert.Equal(t, DefaultTimeLimit-21, last.TimeRemaining)

	cancel()
	_, open := <-updates
	assert.False(t, open)
}

func TestSessionCloseReleasesSubscribers(t *testing.T) {
	s := loadedSession(t, fiveQuestionQuiz())
	updates, cancel := s.Subscribe()
	<-updates

	s.Close()
	_, open := <-updates
	assert.False(t, open)
	cancel()
}

func TestSessionSubscribeAfterCloseReturnsClosedChannel(t *testing.T) {
	s := loadedSession(t, fiveQuestionQuiz())
	s.Close()

	updates, cancel := s.Subscribe()
	defer cancel()

	final, ok := <-updates
	require.True(t, ok, "expected the final snapshot")
	assert.Equal(t, "s1", final.SessionID)
	_, open := <-updates
	assert.False(t, open)
	assert.Empty(t, s.subscribers)
}

func TestSessionHintListsEveryCorrectOption(t *testing.T) {
	quiz := domain.Quiz{ID: "quiz-1", Title: "Pairs", Questions: []domain.Question{{
		ID:          "1",
		Description: "Which are prime?",
		Options: []domain.Option{
			{ID: "two", Description: "2", IsCorrect: true},
			{ID: "four", Description: "4"},
			{ID: "five", Description: "5", IsCorrect: true},
		},
	}}}
	s := loadedSession(t, quiz)

	ok, err := s.ActivatePowerUp(domain.Hint)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []domain.ID{"two", "five"}, s.Snapshot().HintOptionIDs)

	outcome, err := s.SubmitAnswer("five")
	require.NoError(t, err)
	assert.True(t, outcome.Correct)
}

func loadedSession(t *testing.T, quiz domain.Quiz) *Session {
	t.Helper()
	s := NewSession("s1", "quiz-1", DefaultRules())
	require.NoError(t, s.Load(quiz))
	return s
}

func answerAndAdvance(t *testing.T, s *Session, optionID domain.ID) {
	t.Helper()
	_, err := s.SubmitAnswer(optionID)
	require.NoError(t, err)
	_, err = s.Advance()
	require.NoError(t, err)
}

func fiveQuestionQuiz() domain.Quiz {
	quiz := quizWith(5)
	quiz.Title = "Five"
	return quiz
}

func quizWith(n int) domain.Quiz {
	quiz := domain.Quiz{ID: "quiz-1", Title: "Quiz", Topic: "Testing"}
	for i := 1; i <= n; i++ {
		quiz.Questions = append(quiz.Questions, domain.Question{
			ID:          domain.ID(fmt.Sprint(i)),
			Description: fmt.Sprintf("Question %d", i),
			Options: []domain.Option{
				{ID: "wrong", Description: "Wrong"},
				{ID: "right", Description: "Right", IsCorrect: true},
			},
		})
	}
	return quiz
}
