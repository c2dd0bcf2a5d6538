package mongo

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson"

	"trivia-show-service/internal/domain"
)

func TestQuestionDocRoundTripsThroughBSON(t *testing.T) {
	q := domain.Question{
		ID:             "seq-1",
		Type:           domain.QuestionSequence,
		Prompt:         "What comes next?",
		Answer:         "25",
		Title:          "Squares",
		Steps:          []domain.Step{{Text: "1"}, {Text: "4"}, {Image: "/img/9.png"}},
		InitialVisible: 1,
	}

	raw, err := bson.Marshal(fromDomain(q, 3))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var doc questionDoc
	if err := bson.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc.Position != 3 {
		t.Fatalf("expected position 3, got %d", doc.Position)
	}

	got := doc.toDomain()
	if err := got.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got.ID != q.ID || got.Answer != q.Answer || len(got.Steps) != 3 || got.Steps[2].Image != "/img/9.png" {
		t.Fatalf("unexpected question: %+v", got)
	}
}
