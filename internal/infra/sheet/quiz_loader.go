package sheet

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"quiz-runner/internal/domain"
)

const (
	// QuestionsSheet holds one row per option:
	// question_id | question | option_id | option | is_correct
	QuestionsSheet = "questions"
	// QuizSheet holds key/value rows such as "title" and "topic".
	QuizSheet = "quiz"
)

// QuizLoader reads quizzes from <dir>/<quizID>.xlsx workbooks.
type QuizLoader struct {
	dir string
}

func NewQuizLoader(dir string) *QuizLoader {
	return &QuizLoader{dir: dir}
}

func (l *QuizLoader) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	if quizID == "" || filepath.Base(quizID) != quizID || strings.HasPrefix(quizID, ".") {
		return domain.Quiz{}, fmt.Errorf("quiz %q: %w", quizID, domain.ErrQuizNotFound)
	}

	f, err := excelize.OpenFile(filepath.Join(l.dir, quizID+".xlsx"))
	if errors.Is(err, fs.ErrNotExist) {
		return domain.Quiz{}, fmt.Errorf("quiz %s: %w", quizID, domain.ErrQuizNotFound)
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("open quiz workbook: %w", err)
	}
	defer f.Close()

	quiz, err := Parse(f)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("quiz %s: %w", quizID, err)
	}
	quiz.ID = quizID
	return quiz, nil
}

// Parse converts an open workbook into a quiz. Consecutive rows sharing a
// question id form one question; the first of them carries the question text.
func Parse(f *excelize.File) (domain.Quiz, error) {
	var quiz domain.Quiz

	if meta, err := f.GetRows(QuizSheet); err == nil {
		for _, row := range meta {
			if len(row) < 2 {
				continue
			}
			switch strings.ToLower(strings.TrimSpace(row[0])) {
			case "title":
				quiz.Title = strings.TrimSpace(row[1])
			case "topic":
				quiz.Topic = strings.TrimSpace(row[1])
			}
		}
	}

	rows, err := f.GetRows(QuestionsSheet)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("read %s sheet: %w", QuestionsSheet, err)
	}
	for i, row := range rows {
		if i == 0 && isHeader(row) {
			continue
		}
		cells := make([]string, 5)
		copy(cells, row)
		for j := range cells {
			cells[j] = strings.TrimSpace(cells[j])
		}
		if cells[0] == "" && cells[2] == "" {
			continue
		}

		correct, err := parseFlag(cells[4])
		if err != nil {
			return domain.Quiz{}, fmt.Errorf("row %d: %w", i+1, err)
		}

		questionID := domain.ID(cells[0])
		n := len(quiz.Questions)
		if n == 0 || quiz.Questions[n-1].ID != questionID {
			quiz.Questions = append(quiz.Questions, domain.Question{
				ID:          questionID,
				Description: cells[1],
			})
			n++
		}
		quiz.Questions[n-1].Options = append(quiz.Questions[n-1].Options, domain.Option{
			ID:          domain.ID(cells[2]),
			Description: cells[3],
			IsCorrect:   correct,
		})
	}
	return quiz, nil
}

func isHeader(row []string) bool {
	return len(row) > 0 && strings.EqualFold(strings.TrimSpace(row[0]), "question_id")
}

func parseFlag(raw string) (bool, error) {
	switch strings.ToLower(raw) {
	case "", "0", "no", "n":
		return false, nil
	case "x", "yes", "y":
		return true, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid is_correct value %q", raw)
	}
	return v, nil
}
