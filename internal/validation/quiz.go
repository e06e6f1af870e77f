package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"quiz-runner/internal/domain"
)

// Validator checks quiz content loaded from a question source.
type Validator struct {
	validate *validator.Validate
}

// New creates a validator with the quiz rules registered.
func New() *Validator {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterStructValidation(questionRules, domain.Question{})
	return &Validator{validate: validate}
}

// ValidateQuiz reports every violation wrapped in domain.ErrInvalidQuiz.
func (v *Validator) ValidateQuiz(quiz domain.Quiz) error {
	err := v.validate.Struct(quiz)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", domain.ErrInvalidQuiz, err)
	}
	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		problems = append(problems, describe(fe))
	}
	return fmt.Errorf("%w: %s", domain.ErrInvalidQuiz, strings.Join(problems, "; "))
}

// questionRules requires at least one correct option per question.
func questionRules(sl validator.StructLevel) {
	question := sl.Current().Interface().(domain.Question)
	if len(question.Options) == 0 {
		return
	}
	if _, ok := question.CorrectOption(); !ok {
		sl.ReportError(question.Options, "Options", "options", "one_correct", "")
	}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Namespace() + " is required"
	case "min":
		return fe.Namespace() + " needs at least " + fe.Param() + " entries"
	case "unique":
		return fe.Namespace() + " ids must be unique"
	case "one_correct":
		return fe.Namespace() + " needs a correct option"
	default:
		return fe.Namespace() + " failed " + fe.Tag()
	}
}
