package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"quiz-runner/internal/app"
	"quiz-runner/internal/config"
	"quiz-runner/internal/domain"
	"quiz-runner/internal/logging"
)

// NewPlayCmd runs a quiz in the terminal.
func NewPlayCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "play [quizId]",
		Short: "Play a quiz in the terminal",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			// keep the terminal for the game; only warnings reach stderr
			if cfg.Log.Level == "" {
				cfg.Log.Level = "warn"
			}
			logger := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)

			s, err := buildStack(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer s.Close()

			p := &player{service: s.service, in: cmd.InOrStdin(), out: cmd.OutOrStdout()}
			var catalog []string
			if s.catalog != nil {
				catalog = s.catalog.QuizIDs()
			}
			quizID := cfg.Quiz.Default
			if len(args) == 1 {
				quizID = args[0]
			}
			return p.Play(cmd.Context(), quizID, catalog)
		},
	}
}

// player is the terminal front-end: home screen, question loop and results.
type player struct {
	service *app.QuizService
	in      io.Reader
	out     io.Writer
}

// Play runs quizzes until the player quits or declines to play again.
func (p *player) Play(ctx context.Context, quizID string, catalog []string) error {
	if quizID == "" && len(catalog) > 0 {
		quizID = catalog[0]
	}
	if quizID == "" {
		return errors.New("no quiz selected; pass a quiz id")
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(p.in)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()

	if len(catalog) > 0 {
		fmt.Fprintf(p.out, "Available quizzes: %s\n", strings.Join(catalog, ", "))
	}
	fmt.Fprintln(p.out, "Answer with the option number. Power-ups: d = double points, e = extra time, h = hint. q quits.")

	for {
		results, err := p.playOnce(ctx, quizID, lines)
		if err != nil {
			return err
		}
		if results == nil {
			fmt.Fprintln(p.out, "Bye!")
			return nil
		}
		p.renderResults(*results)

		fmt.Fprint(p.out, "Play again? [y/N] ")
		select {
		case line, ok := <-lines:
			if !ok || !strings.EqualFold(line, "y") {
				fmt.Fprintln(p.out)
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// round tracks what the terminal has shown for one session.
type round struct {
	sessionID string
	current   domain.State
	shown     int
	answered  int
	pending   []string
	eof       bool
}

func (r *round) accepting() bool {
	return r.current.Phase == domain.PhaseInProgress && r.current.QuestionIndex != r.answered
}

// playOnce plays a single session. A nil result means the player quit.
func (p *player) playOnce(ctx context.Context, quizID string, lines <-chan string) (*domain.Results, error) {
	state, err := p.service.Start(ctx, quizID)
	if state.SessionID != "" {
		defer p.service.End(context.Background(), state.SessionID)
	}
	if err != nil {
		fmt.Fprintf(p.out, "Error loading quiz data: %v\n", err)
		return nil, err
	}
	updates, cancel, err := p.service.Subscribe(ctx, state.SessionID)
	if err != nil {
		return nil, err
	}
	defer cancel()

	fmt.Fprintf(p.out, "\n== %s ==\nTopic: %s | %d questions\n", state.Title, state.Topic, state.TotalQuestions)
	r := &round{sessionID: state.SessionID, shown: -1, answered: -1}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case st, ok := <-updates:
			if !ok {
				return nil, nil
			}
			r.current = st
			switch st.Phase {
			case domain.PhaseComplete:
				results, err := p.service.Results(ctx, r.sessionID)
				if err != nil {
					return nil, err
				}
				return &results, nil
			case domain.PhaseRevealing:
				if out := st.LastOutcome; out != nil && out.TimedOut && r.answered != out.QuestionIndex {
					r.answered = out.QuestionIndex
					fmt.Fprintf(p.out, "Time's up! The answer was %s.\n", optionLabel(st.Question, out.CorrectOptionID))
				}
			case domain.PhaseInProgress:
				if st.QuestionIndex != r.shown {
					r.shown = st.QuestionIndex
					p.renderQuestion(st)
				}
				if quit := p.drain(ctx, r); quit {
					return nil, nil
				}
			}
		case line, ok := <-lines:
			if !ok {
				r.eof = true
				lines = nil
			} else {
				r.pending = append(r.pending, line)
			}
			if quit := p.drain(ctx, r); quit {
				return nil, nil
			}
		}
	}
}

// drain applies queued input while the current question accepts it. It
// reports true when the player quit.
func (p *player) drain(ctx context.Context, r *round) bool {
	for len(r.pending) > 0 && r.accepting() {
		line := r.pending[0]
		r.pending = r.pending[1:]
		quit, retry := p.handle(ctx, r, line)
		if quit {
			return true
		}
		if retry {
			r.pending = append([]string{line}, r.pending...)
			break
		}
	}
	return r.eof && len(r.pending) == 0 && r.accepting()
}

// handle applies one line of input. retry is set when the line arrived while
// input was locked and should be applied to the next question.
func (p *player) handle(ctx context.Context, r *round, line string) (quit, retry bool) {
	switch strings.ToLower(line) {
	case "":
		return false, false
	case "q", "quit":
		return true, false
	case "d", "e", "h":
		kind := map[string]domain.PowerUpKind{"d": domain.DoublePoints, "e": domain.ExtraTime, "h": domain.Hint}[strings.ToLower(line)]
		state, activated, err := p.service.ActivatePowerUp(ctx, r.sessionID, kind)
		if err != nil {
			fmt.Fprintf(p.out, "Power-up failed: %v\n", err)
			return false, false
		}
		if !activated {
			fmt.Fprintf(p.out, "%s is not available right now.\n", kind)
			return false, false
		}
		r.current = state
		switch kind {
		case domain.Hint:
			labels := make([]string, 0, len(state.HintOptionIDs))
			for _, id := range state.HintOptionIDs {
				labels = append(labels, optionLabel(state.Question, id))
			}
			fmt.Fprintf(p.out, "Hint: the answer is %s.\n", strings.Join(labels, " or "))
		case domain.ExtraTime:
			fmt.Fprintf(p.out, "Extra time! %ds left.\n", state.TimeRemaining)
		default:
			fmt.Fprintln(p.out, "Double points on this question!")
		}
		return false, false
	}

	n, err := strconv.Atoi(line)
	question := r.current.Question
	if err != nil || question == nil || n < 1 || n > len(question.Options) {
		fmt.Fprintln(p.out, "Choose an option number, d/e/h for a power-up, or q to quit.")
		return false, false
	}
	outcome, err := p.service.Answer(ctx, r.sessionID, question.Options[n-1].ID)
	if errors.Is(err, domain.ErrInputLocked) {
		return false, true
	}
	if err != nil {
		fmt.Fprintf(p.out, "Answer rejected: %v\n", err)
		return false, false
	}
	r.answered = outcome.QuestionIndex
	if outcome.Correct {
		fmt.Fprintf(p.out, "Correct! +%d (score %d, streak %d)\n", outcome.Awarded, outcome.TotalScore, outcome.Streak)
	} else {
		fmt.Fprintf(p.out, "Wrong. The answer was %s. (score %d)\n", optionLabel(question, outcome.CorrectOptionID), outcome.TotalScore)
	}
	return false, false
}

func (p *player) renderQuestion(st domain.State) {
	q := st.Question
	if q == nil {
		return
	}
	fmt.Fprintf(p.out, "\nQuestion %d/%d  score %d  streak %d  time %ds\n%s\n",
		st.QuestionIndex+1, st.TotalQuestions, st.Score, st.Streak, st.TimeRemaining, q.Description)
	for i, opt := range q.Options {
		fmt.Fprintf(p.out, "  %d) %s\n", i+1, opt.Description)
	}
	var inventory []string
	for _, kind := range domain.PowerUpKinds {
		inventory = append(inventory, fmt.Sprintf("%s x%d", kind, st.PowerUps[kind].RemainingUses))
	}
	fmt.Fprintf(p.out, "Power-ups: %s\n> ", strings.Join(inventory, ", "))
}

func (p *player) renderResults(res domain.Results) {
	fmt.Fprintf(p.out, "\n== Results: %s ==\n%s\n", res.Title, res.Badge.Text)
	fmt.Fprintf(p.out, "Score: %d\nCorrect: %d  Incorrect: %d  Accuracy: %.1f%%\nBest streak: %d\n",
		res.Score, res.CorrectAnswers, res.IncorrectAnswers, res.Accuracy, res.BestStreak)
	var used []string
	for _, kind := range domain.PowerUpKinds {
		used = append(used, fmt.Sprintf("%s %d", kind, res.PowerUpsUsed[kind]))
	}
	fmt.Fprintf(p.out, "Power-ups used: %s\n", strings.Join(used, ", "))
	fmt.Fprintln(p.out, "Answers:")
	for i, item := range res.Review {
		mark := "x"
		if item.Correct {
			mark = "ok"
		}
		chosen := item.Chosen
		if item.TimedOut {
			chosen = "(no answer)"
		}
		fmt.Fprintf(p.out, "  %d. [%s] %s -> %s (answer: %s, +%d)\n", i+1, mark, item.Question, chosen, item.CorrectAnswer, item.Awarded)
	}
}

func optionLabel(q *domain.QuestionView, id domain.ID) string {
	if q == nil {
		return string(id)
	}
	for i, opt := range q.Options {
		if opt.ID == id {
			return fmt.Sprintf("%d) %s", i+1, opt.Description)
		}
	}
	return string(id)
}
