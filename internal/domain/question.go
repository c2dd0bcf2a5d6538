package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// QuestionType tags the question variant. A round carries one type.
type QuestionType string

const (
	QuestionMC       QuestionType = "mc"
	QuestionBuzzer   QuestionType = "buzzer"
	QuestionSequence QuestionType = "sequence"
	QuestionLink     QuestionType = "link"
)

// ParseQuestionType rejects unknown variants.
func ParseQuestionType(raw string) (QuestionType, error) {
	switch t := QuestionType(strings.ToLower(strings.TrimSpace(raw))); t {
	case QuestionMC, QuestionBuzzer, QuestionSequence, QuestionLink:
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown type %q", ErrInvalidQuestion, raw)
}

// BuzzerDriven reports whether questions of this type are resolved by a buzz race.
func (t QuestionType) BuzzerDriven() bool {
	return t == QuestionBuzzer || t == QuestionSequence || t == QuestionLink
}

// Progressive reports whether questions of this type reveal steps one by one.
func (t QuestionType) Progressive() bool {
	return t == QuestionSequence || t == QuestionLink
}

// Step is one clue of a sequence or link question.
type Step struct {
	Text  string `json:"text,omitempty" yaml:"text,omitempty"`
	Image string `json:"image,omitempty" yaml:"image,omitempty"`
}

// Question is the tagged union of all variants. Validate enforces which
// fields each variant requires:
//
//	mc:            Choices (>=2), Answer one of Choices, optional TimeLimit
//	buzzer:        Answer
//	sequence/link: Steps (>=1), Answer, optional Title and InitialVisible
type Question struct {
	ID             string       `json:"id" yaml:"id"`
	Type           QuestionType `json:"type" yaml:"type"`
	Prompt         string       `json:"question" yaml:"question"`
	Choices        []string     `json:"choices,omitempty" yaml:"choices,omitempty"`
	Answer         string       `json:"answer,omitempty" yaml:"answer,omitempty"`
	Title          string       `json:"title,omitempty" yaml:"title,omitempty"`
	Steps          []Step       `json:"steps,omitempty" yaml:"steps,omitempty"`
	InitialVisible int          `json:"initialVisible,omitempty" yaml:"initialVisible,omitempty"`
	TimeLimit      int          `json:"timeLimit,omitempty" yaml:"timeLimit,omitempty"` // seconds, mc only
	Points         int          `json:"points,omitempty" yaml:"points,omitempty"`
	Buzzer         bool         `json:"buzzer" yaml:"-"`
}

// Validate checks the variant-specific fields and normalizes derived ones.
func (q *Question) Validate() error {
	t, err := ParseQuestionType(string(q.Type))
	if err != nil {
		return err
	}
	q.Type = t
	if strings.TrimSpace(q.ID) == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidQuestion)
	}
	if q.Points < 0 || q.TimeLimit < 0 {
		return fmt.Errorf("%w: negative points or time limit", ErrInvalidQuestion)
	}

	switch t {
	case QuestionMC:
		if len(q.Choices) < 2 {
			return fmt.Errorf("%w: mc question %s needs at least two choices", ErrInvalidQuestion, q.ID)
		}
		if !q.HasChoice(q.Answer) {
			return fmt.Errorf("%w: mc answer for %s is not a choice", ErrInvalidQuestion, q.ID)
		}
		if q.Steps != nil || q.InitialVisible != 0 {
			return fmt.Errorf("%w: mc question %s carries steps", ErrInvalidQuestion, q.ID)
		}
	case QuestionBuzzer:
		if strings.TrimSpace(q.Answer) == "" {
			return fmt.Errorf("%w: buzzer question %s has no answer", ErrInvalidQuestion, q.ID)
		}
		if len(q.Choices) > 0 || len(q.Steps) > 0 || q.TimeLimit != 0 {
			return fmt.Errorf("%w: buzzer question %s carries mc or step fields", ErrInvalidQuestion, q.ID)
		}
	case QuestionSequence, QuestionLink:
		if len(q.Steps) == 0 {
			return fmt.Errorf("%w: %s question %s has no steps", ErrInvalidQuestion, t, q.ID)
		}
		for i, s := range q.Steps {
			if s.Text == "" && s.Image == "" {
				return fmt.Errorf("%w: step %d of %s is empty", ErrInvalidQuestion, i, q.ID)
			}
		}
		if q.InitialVisible < 0 || q.InitialVisible > len(q.Steps) {
			return fmt.Errorf("%w: initialVisible out of range for %s", ErrInvalidQuestion, q.ID)
		}
		if strings.TrimSpace(q.Answer) == "" {
			return fmt.Errorf("%w: %s question %s has no answer", ErrInvalidQuestion, t, q.ID)
		}
		if len(q.Choices) > 0 || q.TimeLimit != 0 {
			return fmt.Errorf("%w: %s question %s carries mc fields", ErrInvalidQuestion, t, q.ID)
		}
	}
	q.Buzzer = t.BuzzerDriven()
	return nil
}

// HasChoice reports whether value is one of the choices.
func (q Question) HasChoice(value string) bool {
	for _, c := range q.Choices {
		if c == value {
			return true
		}
	}
	return false
}

// Redacted returns a copy safe for players and the presenter: the answer,
// title and hidden steps are removed.
func (q Question) Redacted() Question {
	out := q
	out.Answer = ""
	out.Title = ""
	if len(q.Steps) > 0 {
		out.Steps = make([]Step, len(q.Steps))
		for i := range out.Steps {
			out.Steps[i] = Step{}
		}
	}
	out.Choices = append([]string(nil), q.Choices...)
	return out
}

// DecodeQuestion parses and validates a question arriving at the boundary.
func DecodeQuestion(raw json.RawMessage) (Question, error) {
	var q Question
	if err := json.Unmarshal(raw, &q); err != nil {
		return Question{}, fmt.Errorf("%w: %v", ErrInvalidQuestion, err)
	}
	if err := q.Validate(); err != nil {
		return Question{}, err
	}
	return q, nil
}
