package app

import (
	"sync"
	"time"

	"quiz-runner/internal/domain"
)

// Session is the state machine of one quiz attempt. It has no timers of its
// own; a Runner drives Tick and Advance.
type Session struct {
	id     string
	quizID string
	rules  Rules
	now    func() time.Time

	mu          sync.RWMutex
	phase       domain.Phase
	loadErr     error
	quiz        domain.Quiz
	index       int
	score       int
	streak      int
	bestStreak  int
	correct     int
	incorrect   int
	timeLeft    int
	powerUps    map[domain.PowerUpKind]domain.PowerUp
	active      domain.PowerUpKind
	last        *domain.AnswerOutcome
	answers     []domain.AnswerOutcome
	startedAt   time.Time
	completedAt time.Time
	subscribers map[chan domain.State]struct{}
	closed      bool
}

// NewSession creates a session in the loading phase.
func NewSession(id, quizID string, rules Rules) *Session {
	return NewSessionWithClock(id, quizID, rules, time.Now)
}

// NewSessionWithClock allows deterministic timestamps in tests.
func NewSessionWithClock(id, quizID string, rules Rules, now func() time.Time) *Session {
	rules = rules.WithDefaults()
	powerUps := make(map[domain.PowerUpKind]domain.PowerUp, len(domain.PowerUpKinds))
	for _, kind := range domain.PowerUpKinds {
		powerUps[kind] = domain.PowerUp{RemainingUses: rules.PowerUpUses}
	}
	return &Session{
		id:          id,
		quizID:      quizID,
		rules:       rules,
		now:         now,
		phase:       domain.PhaseLoading,
		timeLeft:    rules.TimeLimit,
		powerUps:    powerUps,
		subscribers: make(map[chan domain.State]struct{}),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) QuizID() string { return s.quizID }

// Phase reports the current lifecycle phase.
func (s *Session) Phase() domain.Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// Load moves a loading session to the first question.
func (s *Session) Load(quiz domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != domain.PhaseLoading {
		return domain.ErrAlreadyLoaded
	}
	if len(quiz.Questions) == 0 {
		s.loadErr = domain.ErrNoQuestions
		s.broadcastLocked()
		return domain.ErrNoQuestions
	}

	s.quiz = quiz
	s.phase = domain.PhaseInProgress
	s.loadErr = nil
	s.index = 0
	s.score = 0
	s.streak = 0
	s.timeLeft = s.rules.TimeLimit
	s.startedAt = s.now()
	s.broadcastLocked()
	return nil
}

// Fail records a load failure. The session stays in the loading phase.
func (s *Session) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != domain.PhaseLoading {
		return
	}
	s.loadErr = err
	s.broadcastLocked()
}

// SubmitAnswer scores the current question and locks input until Advance.
// An unknown option id, or NoAnswer, counts as incorrect.
func (s *Session) SubmitAnswer(optionID domain.ID) (domain.AnswerOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.playableLocked(); err != nil {
		return domain.AnswerOutcome{}, err
	}
	outcome := s.revealLocked(optionID)
	s.broadcastLocked()
	return outcome, nil
}

// Tick counts the timer down by one. When it reaches zero the question is
// revealed exactly as SubmitAnswer(NoAnswer) would, and the outcome is returned.
func (s *Session) Tick() (*domain.AnswerOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.playableLocked(); err != nil {
		return nil, err
	}
	if s.timeLeft > 0 {
		s.timeLeft--
	}
	if s.timeLeft > 0 {
		s.broadcastLocked()
		return nil, nil
	}
	outcome := s.revealLocked(domain.NoAnswer)
	s.broadcastLocked()
	return &outcome, nil
}

// Advance leaves the revealing phase: on to the next question with a fresh
// timer, or to complete after the last one.
func (s *Session) Advance() (domain.Phase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != domain.PhaseRevealing {
		return s.phase, domain.ErrNotRevealing
	}
	s.last = nil
	if s.index+1 < len(s.quiz.Questions) {
		s.index++
		s.timeLeft = s.rules.TimeLimit
		s.phase = domain.PhaseInProgress
	} else {
		s.index = len(s.quiz.Questions)
		s.phase = domain.PhaseComplete
		s.completedAt = s.now()
	}
	s.broadcastLocked()
	return s.phase, nil
}

// ActivatePowerUp consumes one use of kind. It reports false, without error,
// when another power-up is active, the kind is exhausted, or the question is
// not accepting input.
func (s *Session) ActivatePowerUp(kind domain.PowerUpKind) (bool, error) {
	if !kind.Valid() {
		return false, domain.ErrUnknownPowerUp
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != domain.PhaseInProgress || s.active != "" {
		return false, nil
	}
	slot := s.powerUps[kind]
	if slot.RemainingUses <= 0 {
		return false, nil
	}
	slot.RemainingUses--
	slot.Active = true
	s.powerUps[kind] = slot
	s.active = kind
	if kind == domain.ExtraTime {
		s.timeLeft += s.rules.ExtraTimeBonus
	}
	s.broadcastLocked()
	return true, nil
}

// Snapshot returns the current state.
func (s *Session) Snapshot() domain.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Results summarizes a completed session.
func (s *Session) Results() (domain.Results, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.phase != domain.PhaseComplete {
		return domain.Results{}, domain.ErrSessionNotComplete
	}

	total := len(s.quiz.Questions)
	acc := accuracy(s.correct, total)
	used := make(map[domain.PowerUpKind]int, len(s.powerUps))
	for kind, slot := range s.powerUps {
		used[kind] = s.rules.PowerUpUses - slot.RemainingUses
	}

	review := make([]domain.ReviewItem, 0, len(s.answers))
	for _, answer := range s.answers {
		question := s.quiz.Questions[answer.QuestionIndex]
		item := domain.ReviewItem{
			Question: question.Description,
			Correct:  answer.Correct,
			TimedOut: answer.TimedOut,
			Awarded:  answer.Awarded,
		}
		if chosen, ok := question.Option(answer.OptionID); ok {
			item.Chosen = chosen.Description
		}
		if right, ok := question.CorrectOption(); ok {
			item.CorrectAnswer = right.Description
		}
		review = append(review, item)
	}

	return domain.Results{
		SessionID:        s.id,
		QuizID:           s.quizID,
		Title:            s.quiz.Title,
		Topic:            s.quiz.Topic,
		Score:            s.score,
		TotalQuestions:   total,
		CorrectAnswers:   s.correct,
		IncorrectAnswers: s.incorrect,
		Accuracy:         acc,
		BestStreak:       s.bestStreak,
		FinalStreak:      s.streak,
		PowerUpsUsed:     used,
		Badge:            badgeFor(acc),
		Review:           review,
		StartedAt:        s.startedAt,
		CompletedAt:      s.completedAt,
	}, nil
}

func (s *Session) playableLocked() error {
	switch s.phase {
	case domain.PhaseInProgress:
		return nil
	case domain.PhaseRevealing:
		return domain.ErrInputLocked
	case domain.PhaseComplete:
		return domain.ErrSessionComplete
	default:
		return domain.ErrNotStarted
	}
}

// revealLocked applies scoring for the current question and enters the
// revealing phase. Scoring reads the streak and power-ups as they stand
// before this answer.
func (s *Session) revealLocked(optionID domain.ID) domain.AnswerOutcome {
	question := s.quiz.Questions[s.index]
	chosen, found := question.Option(optionID)
	correct := found && chosen.IsCorrect

	awarded := pointsFor(s.rules, correct, s.streak, s.active == domain.DoublePoints)
	s.score += awarded
	if correct {
		s.streak++
		s.correct++
		if s.streak > s.bestStreak {
			s.bestStreak = s.streak
		}
	} else {
		s.streak = 0
		s.incorrect++
	}

	// Power-ups last for a single question; uses are not refunded.
	for kind, slot := range s.powerUps {
		slot.Active = false
		s.powerUps[kind] = slot
	}
	s.active = ""

	outcome := domain.AnswerOutcome{
		QuestionID:    question.ID,
		QuestionIndex: s.index,
		OptionID:      optionID,
		Correct:       correct,
		TimedOut:      optionID == domain.NoAnswer,
		Awarded:       awarded,
		TotalScore:    s.score,
		Streak:        s.streak,
	}
	if right, ok := question.CorrectOption(); ok {
		outcome.CorrectOptionID = right.ID
	}
	s.last = &outcome
	s.answers = append(s.answers, outcome)
	s.phase = domain.PhaseRevealing
	return outcome
}

// Close drops every subscriber. Used when the session is discarded.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
}

// Subscribe returns a channel of state snapshots, starting with the current one.
// The caller must invoke the returned cancel function to avoid leaks. On a
// closed session the channel yields the final snapshot and is already closed.
func (s *Session) Subscribe() (<-chan domain.State, func()) {
	ch := make(chan domain.State, 8)

	s.mu.Lock()
	if s.closed {
		ch <- s.snapshotLocked()
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	s.subscribers[ch] = struct{}{}
	initial := s.snapshotLocked()
	s.mu.Unlock()

	ch <- initial

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) broadcastLocked() {
	if len(s.subscribers) == 0 {
		return
	}
	state := s.snapshotLocked()
	for ch := range s.subscribers {
		select {
		case ch <- state:
		default:
			// Slow subscriber: replace its oldest snapshot with the newest.
			select {
			case <-ch:
			default:
			}
			ch <- state
		}
	}
}

func (s *Session) snapshotLocked() domain.State {
	powerUps := make(map[domain.PowerUpKind]domain.PowerUp, len(s.powerUps))
	for kind, slot := range s.powerUps {
		powerUps[kind] = slot
	}

	state := domain.State{
		SessionID:        s.id,
		QuizID:           s.quizID,
		Title:            s.quiz.Title,
		Topic:            s.quiz.Topic,
		Phase:            s.phase,
		QuestionIndex:    s.index,
		TotalQuestions:   len(s.quiz.Questions),
		Score:            s.score,
		Streak:           s.streak,
		BestStreak:       s.bestStreak,
		CorrectAnswers:   s.correct,
		IncorrectAnswers: s.incorrect,
		TimeRemaining:    s.timeLeft,
		ActivePowerUp:    s.active,
		PowerUps:         powerUps,
		InputLocked:      s.phase != domain.PhaseInProgress,
	}
	if s.loadErr != nil {
		state.LoadError = s.loadErr.Error()
	}
	if s.last != nil {
		last := *s.last
		state.LastOutcome = &last
	}
	if s.index < len(s.quiz.Questions) {
		question := s.quiz.Questions[s.index]
		view := &domain.QuestionView{
			ID:          question.ID,
			Description: question.Description,
			Options:     make([]domain.OptionView, 0, len(question.Options)),
		}
		for _, opt := range question.Options {
			view.Options = append(view.Options, domain.OptionView{ID: opt.ID, Description: opt.Description})
		}
		state.Question = view
		if s.active == domain.Hint {
			for _, right := range question.CorrectOptions() {
				state.HintOptionIDs = append(state.HintOptionIDs, right.ID)
			}
		}
	}
	return state
}
