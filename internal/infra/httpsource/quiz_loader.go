package httpsource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"quiz-runner/internal/domain"
)

// QuizIDPlaceholder in the source URL is replaced with the requested quiz id.
const QuizIDPlaceholder = "{quizId}"

// QuizLoader fetches quiz data from a remote quiz-data endpoint with a single
// GET. Failures are returned as-is; there is no retry.
type QuizLoader struct {
	client *http.Client
	url    string
}

// NewQuizLoader builds a loader for rawURL, e.g. https://example.com/quiz-data/{quizId}.
// A URL without the placeholder serves the same quiz for every id.
func NewQuizLoader(rawURL string, client *http.Client) *QuizLoader {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &QuizLoader{client: client, url: rawURL}
}

func (l *QuizLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	target := strings.ReplaceAll(l.url, QuizIDPlaceholder, url.PathEscape(quizID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("build quiz request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("fetch quiz: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.Quiz{}, fmt.Errorf("fetch quiz %s: %w", quizID, domain.ErrQuizNotFound)
	case resp.StatusCode != http.StatusOK:
		return domain.Quiz{}, fmt.Errorf("fetch quiz %s: unexpected status %d", quizID, resp.StatusCode)
	}

	var quiz domain.Quiz
	if err := json.NewDecoder(resp.Body).Decode(&quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("decode quiz: %w", err)
	}
	if quiz.ID == "" {
		quiz.ID = quizID
	}
	return quiz, nil
}
