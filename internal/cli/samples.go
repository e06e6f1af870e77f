package cli

import "quiz-runner/internal/domain"

// sampleQuizzes is the built-in question set served by the static source.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"genetics": {
			ID:    "genetics",
			Title: "Genetics and Evolution",
			Topic: "Biology",
			Questions: []domain.Question{
				question("1", "Which molecule carries genetic information in most living organisms?",
					"DNA", "ATP", "Glucose", "Collagen"),
				question("2", "Who proposed the theory of evolution by natural selection?",
					"Charles Darwin", "Gregor Mendel", "Louis Pasteur", "Isaac Newton"),
				question("3", "What are alternative forms of the same gene called?",
					"Alleles", "Codons", "Ribosomes", "Chromatids"),
				question("4", "Which base pairs with adenine in DNA?",
					"Thymine", "Cytosine", "Guanine", "Uracil"),
				question("5", "Structures with a shared ancestry but different functions are called?",
					"Homologous structures", "Analogous structures", "Vestigial organs", "Convergent traits"),
			},
		},
		"arithmetic": {
			ID:    "arithmetic",
			Title: "Quick Arithmetic",
			Topic: "Math",
			Questions: []domain.Question{
				question("1", "What is 7 x 8?", "56", "54", "64", "48"),
				question("2", "What is 144 / 12?", "12", "14", "11", "13"),
				question("3", "What is 15 + 27?", "42", "32", "43", "41"),
			},
		},
	}
}

// question builds a question from its correct answer and the distractors.
func question(id, description, correct string, wrong ...string) domain.Question {
	options := []domain.Option{{ID: "a", Description: correct, IsCorrect: true}}
	for i, text := range wrong {
		options = append(options, domain.Option{ID: domain.ID(string(rune('b' + i))), Description: text})
	}
	// rotate so the correct answer is not always listed first
	shift := int(id[0]-'0') % len(options)
	rotated := make([]domain.Option, 0, len(options))
	rotated = append(rotated, options[shift:]...)
	rotated = append(rotated, options[:shift]...)
	return domain.Question{ID: domain.ID(id), Description: description, Options: rotated}
}
