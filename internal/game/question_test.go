package game

import (
	"errors"
	"testing"
	"time"

	"trivia-show-service/internal/domain"
)

var t0 = time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)

func mcQuestion(id string) domain.Question {
	return domain.Question{
		ID:      id,
		Type:    domain.QuestionMC,
		Prompt:  "2 + 2?",
		Choices: []string{"3", "4", "5"},
		Answer:  "4",
	}
}

func buzzerQuestion(id string) domain.Question {
	return domain.Question{ID: id, Type: domain.QuestionBuzzer, Prompt: "Fe?", Answer: "Iron"}
}

func sequenceQuestion(id string) domain.Question {
	return domain.Question{
		ID:             id,
		Type:           domain.QuestionSequence,
		Prompt:         "What comes next?",
		Title:          "Squares",
		Answer:         "25",
		InitialVisible: 1,
		Steps:          []domain.Step{{Text: "1"}, {Text: "4"}, {Text: "9"}},
	}
}

func TestSubmitAnswerCompletesRoster(t *testing.T) {
	qs := newQuestionSession(mcQuestion("q1"), t0, 20*time.Second)
	roster := []string{"a", "b"}

	all, err := qs.SubmitAnswer("a", "4", t0.Add(time.Second), roster)
	if err != nil || all {
		t.Fatalf("first answer: all=%v err=%v", all, err)
	}
	if _, err := qs.SubmitAnswer("a", "3", t0.Add(2*time.Second), roster); !errors.Is(err, domain.ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}
	if sub, _ := qs.Submission("a"); sub.Value != "4" {
		t.Fatalf("first answer must stick, got %q", sub.Value)
	}
	all, err = qs.SubmitAnswer("b", "5", t0.Add(3*time.Second), roster)
	if err != nil || !all {
		t.Fatalf("second answer should complete the roster: all=%v err=%v", all, err)
	}
	if !qs.Stopped() || !qs.AllAnswered() {
		t.Fatalf("clock should stop once everyone answered")
	}
}

func TestSubmitAnswerRejections(t *testing.T) {
	qs := newQuestionSession(mcQuestion("q1"), t0, 10*time.Second)
	roster := []string{"a"}

	if _, err := qs.SubmitAnswer("a", "42", t0, roster); !errors.Is(err, domain.ErrInvalidAnswer) {
		t.Fatalf("expected ErrInvalidAnswer, got %v", err)
	}
	if _, err := qs.SubmitAnswer("a", "4", t0.Add(10*time.Second), roster); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected deadline rejection, got %v", err)
	}
	if qs.Submitted("a") {
		t.Fatalf("rejected answers must not be recorded")
	}

	buzz := newQuestionSession(buzzerQuestion("b1"), t0, 0)
	if _, err := buzz.SubmitAnswer("a", "Iron", t0, roster); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("buzzer questions take no submissions, got %v", err)
	}
}

func TestQuestionTimeLimitOverridesDefault(t *testing.T) {
	q := mcQuestion("q1")
	q.TimeLimit = 5
	qs := newQuestionSession(q, t0, 20*time.Second)
	if !qs.Deadline.Equal(t0.Add(5 * time.Second)) {
		t.Fatalf("expected per-question time limit, got %v", qs.Deadline.Sub(t0))
	}
	if got := qs.Remaining(t0.Add(2400 * time.Millisecond)); got != 3 {
		t.Fatalf("expected 3s remaining (rounded), got %d", got)
	}

	untimed := newQuestionSession(buzzerQuestion("b1"), t0, 20*time.Second)
	if !untimed.Deadline.IsZero() {
		t.Fatalf("buzzer questions are untimed")
	}
}

func TestRevealAnswerConditions(t *testing.T) {
	roster := []string{"a", "b"}
	qs := newQuestionSession(mcQuestion("q1"), t0, 10*time.Second)
	_, _ = qs.SubmitAnswer("a", "4", t0, roster)

	if _, err := qs.RevealAnswer(t0.Add(time.Second), roster, 10); !errors.Is(err, domain.ErrRevealTooEarly) {
		t.Fatalf("expected ErrRevealTooEarly, got %v", err)
	}
	if qs.Revealed() {
		t.Fatalf("a rejected reveal must not mark the question revealed")
	}

	defaults, err := qs.RevealAnswer(t0.Add(10*time.Second), roster, 10)
	if err != nil {
		t.Fatalf("reveal after deadline: %v", err)
	}
	if defaults["a"] != 10 || defaults["b"] != 0 {
		t.Fatalf("unexpected defaults %v", defaults)
	}
	if _, err := qs.RevealAnswer(t0.Add(11*time.Second), roster, 10); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("second reveal should fail, got %v", err)
	}
}

func TestRevealAnswerAfterBuzz(t *testing.T) {
	qs := newQuestionSession(buzzerQuestion("b1"), t0, 0)
	if qs.CanReveal(t0) {
		t.Fatalf("an untouched buzzer question cannot be revealed")
	}
	_ = qs.Buzzer().Buzz("a")
	defaults, err := qs.RevealAnswer(t0, []string{"a", "b"}, 10)
	if err != nil {
		t.Fatalf("reveal after buzz: %v", err)
	}
	if defaults["a"] != 0 || len(defaults) != 2 {
		t.Fatalf("buzzer defaults are zero for the whole roster, got %v", defaults)
	}
}

func TestSequenceSteps(t *testing.T) {
	qs := newQuestionSession(sequenceQuestion("s1"), t0, 0)
	if got := len(qs.VisibleSteps()); got != 1 {
		t.Fatalf("expected one initially visible step, got %d", got)
	}
	if _, err := qs.RevealSequenceAnswer(t0, []string{"a"}, 10); !errors.Is(err, domain.ErrRevealTooEarly) {
		t.Fatalf("expected ErrRevealTooEarly with hidden steps, got %v", err)
	}
	for want := 1; want < 3; want++ {
		idx, err := qs.RevealNextStep()
		if err != nil || idx != want {
			t.Fatalf("reveal step: idx=%d err=%v, want %d", idx, err, want)
		}
	}
	if _, err := qs.RevealNextStep(); !errors.Is(err, domain.ErrNoMoreSteps) {
		t.Fatalf("expected ErrNoMoreSteps, got %v", err)
	}
	if _, err := qs.RevealSequenceAnswer(t0, []string{"a"}, 10); err != nil {
		t.Fatalf("reveal with every step visible: %v", err)
	}
	if _, err := qs.RevealNextStep(); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("steps cannot be revealed after the answer, got %v", err)
	}
}

func TestRevealSequenceAnswerShowsAllSteps(t *testing.T) {
	qs := newQuestionSession(sequenceQuestion("s1"), t0, 0)
	_ = qs.Buzzer().Buzz("a")
	if _, err := qs.RevealSequenceAnswer(t0, []string{"a"}, 10); err != nil {
		t.Fatalf("reveal after buzz: %v", err)
	}
	if got := len(qs.VisibleSteps()); got != 3 {
		t.Fatalf("reveal should expose every step, got %d", got)
	}
}

func TestDefaultScores(t *testing.T) {
	q := mcQuestion("q1")
	q.Points = 25
	subs := map[string]Submission{
		"a": {PlayerID: "a", Value: "4"},
		"b": {PlayerID: "b", Value: "3"},
	}
	got := DefaultScores(q, subs, []string{"a", "b", "c"}, 10)
	if got["a"] != 25 || got["b"] != 0 || got["c"] != 0 || len(got) != 3 {
		t.Fatalf("unexpected scores %v", got)
	}
}
