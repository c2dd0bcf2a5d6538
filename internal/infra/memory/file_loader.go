package memory

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"trivia-show-service/internal/domain"
)

//go:embed sample_questions.yaml
var sampleQuestions []byte

// FileQuestionLoader reads banks from a YAML document keyed by question type:
//
//	mc:
//	  - id: mc-1
//	    question: ...
//	buzzer:
//	  - ...
type FileQuestionLoader struct {
	path string
}

func NewFileQuestionLoader(path string) *FileQuestionLoader {
	return &FileQuestionLoader{path: path}
}

func (l *FileQuestionLoader) LoadQuestions(_ context.Context, typ domain.QuestionType) ([]domain.Question, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read questions file: %w", err)
	}
	banks, err := ParseBanks(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", l.path, err)
	}
	return banks[typ], nil
}

// SampleBanks returns the built-in demo banks.
func SampleBanks() map[domain.QuestionType][]domain.Question {
	banks, err := ParseBanks(sampleQuestions)
	if err != nil {
		panic(fmt.Sprintf("embedded sample questions: %v", err))
	}
	return banks
}

// NewSampleQuestionLoader serves the built-in demo banks.
func NewSampleQuestionLoader() *StaticQuestionLoader {
	return NewStaticQuestionLoader(SampleBanks())
}

// ParseBanks decodes a YAML bank document. The type of each question is
// taken from the key it is listed under.
func ParseBanks(data []byte) (map[domain.QuestionType][]domain.Question, error) {
	var raw map[string][]domain.Question
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	banks := make(map[domain.QuestionType][]domain.Question, len(raw))
	for key, questions := range raw {
		typ, err := domain.ParseQuestionType(key)
		if err != nil {
			return nil, err
		}
		for i := range questions {
			questions[i].Type = typ
		}
		banks[typ] = questions
	}
	return banks, nil
}
