package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/xuri/excelize/v2"

	"quiz-runner/internal/config"
	pgstore "quiz-runner/internal/infra/postgres"
	"quiz-runner/internal/infra/sheet"
	"quiz-runner/internal/logging"
	"quiz-runner/internal/validation"
)

// NewImportCmd loads a quiz workbook into the postgres quiz store.
func NewImportCmd(configPath *string) *cobra.Command {
	var quizID string
	cmd := &cobra.Command{
		Use:   "import <workbook.xlsx>",
		Short: "Import a quiz workbook into postgres",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}
			logger := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)

			f, err := excelize.OpenFile(args[0])
			if err != nil {
				return fmt.Errorf("open workbook: %w", err)
			}
			defer f.Close()

			quiz, err := sheet.Parse(f)
			if err != nil {
				return err
			}
			quiz.ID = quizID
			if quiz.ID == "" {
				quiz.ID = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			}
			if err := validation.New().ValidateQuiz(quiz); err != nil {
				return err
			}

			if err := runMigrations(cmd.Context(), cfg, logger); err != nil {
				return err
			}
			db := pgstore.OpenDB(cfg.Postgres.URL)
			defer db.Close()
			if err := pgstore.NewQuizStore(db).SaveQuiz(cmd.Context(), quiz); err != nil {
				return err
			}
			logger.Info("quiz imported", "quiz_id", quiz.ID, "questions", len(quiz.Questions))
			return nil
		},
	}
	cmd.Flags().StringVar(&quizID, "id", "", "quiz id (defaults to the workbook file name)")
	return cmd
}
