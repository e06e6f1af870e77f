package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// ID identifies questions and options. Quiz sources emit either JSON strings or
// numbers for ids, so both decode into the same string form.
type ID string

// NoAnswer is submitted when the countdown expires without a choice.
const NoAnswer ID = ""

func (id *ID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// Option represents a possible answer for a question.
type Option struct {
	ID          ID     `json:"id" validate:"required"`
	Description string `json:"description" validate:"required"`
	IsCorrect   bool   `json:"is_correct"`
}

// Question models an MCQ question. The first correct option is the scored answer.
type Question struct {
	ID          ID       `json:"id" validate:"required"`
	Description string   `json:"description" validate:"required"`
	Options     []Option `json:"options" validate:"min=1,unique=ID,dive"`
}

// Option looks up an option of the question by id.
func (q Question) Option(id ID) (Option, bool) {
	if id == NoAnswer {
		return Option{}, false
	}
	for _, opt := range q.Options {
		if opt.ID == id {
			return opt, true
		}
	}
	return Option{}, false
}

// CorrectOptions returns every option marked correct, in listed order.
func (q Question) CorrectOptions() []Option {
	var out []Option
	for _, opt := range q.Options {
		if opt.IsCorrect {
			out = append(out, opt)
		}
	}
	return out
}

// CorrectOption returns the first correct option. It is reported as the
// answer after a reveal; choosing any correct option still scores.
func (q Question) CorrectOption() (Option, bool) {
	for _, opt := range q.Options {
		if opt.IsCorrect {
			return opt, true
		}
	}
	return Option{}, false
}

// Quiz is the payload served by a question source.
type Quiz struct {
	ID        string     `json:"id,omitempty"`
	Title     string     `json:"title"`
	Topic     string     `json:"topic"`
	Questions []Question `json:"questions" validate:"min=1,unique=ID,dive"`
}

// PowerUpKind names one of the consumable power-ups.
type PowerUpKind string

const (
	DoublePoints PowerUpKind = "doublePoints"
	ExtraTime    PowerUpKind = "extraTime"
	Hint         PowerUpKind = "hint"
)

// PowerUpKinds lists every power-up in display order.
var PowerUpKinds = []PowerUpKind{DoublePoints, ExtraTime, Hint}

// Valid reports whether k is a known power-up.
func (k PowerUpKind) Valid() bool {
	switch k {
	case DoublePoints, ExtraTime, Hint:
		return true
	}
	return false
}

// ParsePowerUpKind converts client input into a PowerUpKind.
func ParsePowerUpKind(raw string) (PowerUpKind, error) {
	kind := PowerUpKind(raw)
	if !kind.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownPowerUp, raw)
	}
	return kind, nil
}

// PowerUp is the inventory slot of a single power-up kind.
type PowerUp struct {
	RemainingUses int  `json:"remainingUses"`
	Active        bool `json:"active"`
}

// Phase is the lifecycle position of a quiz session.
type Phase string

const (
	PhaseLoading    Phase = "loading"
	PhaseInProgress Phase = "in_progress"
	// PhaseRevealing shows answer feedback; input is locked until the advance.
	PhaseRevealing Phase = "revealing"
	PhaseComplete  Phase = "complete"
)

// OptionView is an option as shown to a player, without its correctness flag.
type OptionView struct {
	ID          ID     `json:"id"`
	Description string `json:"description"`
}

// QuestionView is the current question as shown to a player.
type QuestionView struct {
	ID          ID           `json:"id"`
	Description string       `json:"description"`
	Options     []OptionView `json:"options"`
}

// AnswerOutcome summarizes the scoring of one question.
type AnswerOutcome struct {
	QuestionID      ID   `json:"questionId"`
	QuestionIndex   int  `json:"questionIndex"`
	OptionID        ID   `json:"optionId,omitempty"`
	CorrectOptionID ID   `json:"correctOptionId"`
	Correct         bool `json:"correct"`
	TimedOut        bool `json:"timedOut"`
	Awarded         int  `json:"awarded"`
	TotalScore      int  `json:"totalScore"`
	Streak          int  `json:"streak"`
}

// State is a point-in-time snapshot of a session for the presentation layer.
type State struct {
	SessionID        string                  `json:"sessionId"`
	QuizID           string                  `json:"quizId"`
	Title            string                  `json:"title"`
	Topic            string                  `json:"topic"`
	Phase            Phase                   `json:"phase"`
	LoadError        string                  `json:"loadError,omitempty"`
	QuestionIndex    int                     `json:"questionIndex"`
	TotalQuestions   int                     `json:"totalQuestions"`
	Question         *QuestionView           `json:"question,omitempty"`
	Score            int                     `json:"score"`
	Streak           int                     `json:"streak"`
	BestStreak       int                     `json:"bestStreak"`
	CorrectAnswers   int                     `json:"correctAnswers"`
	IncorrectAnswers int                     `json:"incorrectAnswers"`
	TimeRemaining    int                     `json:"timeRemaining"`
	ActivePowerUp    PowerUpKind             `json:"activePowerUp,omitempty"`
	PowerUps         map[PowerUpKind]PowerUp `json:"powerUps"`
	HintOptionIDs    []ID                    `json:"hintOptionIds,omitempty"`
	LastOutcome      *AnswerOutcome          `json:"lastOutcome,omitempty"`
	InputLocked      bool                    `json:"inputLocked"`
}

// Badge is the achievement shown on the results summary.
type Badge struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

// ReviewItem is one row of the post-quiz answer review.
type ReviewItem struct {
	Question      string `json:"question"`
	Chosen        string `json:"chosen,omitempty"`
	CorrectAnswer string `json:"correctAnswer"`
	Correct       bool   `json:"correct"`
	TimedOut      bool   `json:"timedOut"`
	Awarded       int    `json:"awarded"`
}

// Results is the final summary of a completed session.
type Results struct {
	SessionID        string              `json:"sessionId"`
	QuizID           string              `json:"quizId"`
	Title            string              `json:"title"`
	Topic            string              `json:"topic"`
	Score            int                 `json:"score"`
	TotalQuestions   int                 `json:"totalQuestions"`
	CorrectAnswers   int                 `json:"correctAnswers"`
	IncorrectAnswers int                 `json:"incorrectAnswers"`
	Accuracy         float64             `json:"accuracy"`
	BestStreak       int                 `json:"bestStreak"`
	FinalStreak      int                 `json:"finalStreak"`
	PowerUpsUsed     map[PowerUpKind]int `json:"powerUpsUsed"`
	Badge            Badge               `json:"badge"`
	Review           []ReviewItem        `json:"review"`
	StartedAt        time.Time           `json:"startedAt"`
	CompletedAt      time.Time           `json:"completedAt"`
}
