package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"trivia-show-service/internal/domain"
)

// questionDoc is the stored shape of a question.
type questionDoc struct {
	ID             string        `bson:"_id"`
	Type           string        `bson:"type"`
	Position       int           `bson:"position"`
	Prompt         string        `bson:"question"`
	Choices        []string      `bson:"choices,omitempty"`
	Answer         string        `bson:"answer,omitempty"`
	Title          string        `bson:"title,omitempty"`
	Steps          []domain.Step `bson:"steps,omitempty"`
	InitialVisible int           `bson:"initialVisible,omitempty"`
	TimeLimit      int           `bson:"timeLimit,omitempty"`
	Points         int           `bson:"points,omitempty"`
}

func (d questionDoc) toDomain() domain.Question {
	return domain.Question{
		ID:             d.ID,
		Type:           domain.QuestionType(d.Type),
		Prompt:         d.Prompt,
		Choices:        d.Choices,
		Answer:         d.Answer,
		Title:          d.Title,
		Steps:          d.Steps,
		InitialVisible: d.InitialVisible,
		TimeLimit:      d.TimeLimit,
		Points:         d.Points,
	}
}

func fromDomain(q domain.Question, position int) questionDoc {
	return questionDoc{
		ID:             q.ID,
		Type:           string(q.Type),
		Position:       position,
		Prompt:         q.Prompt,
		Choices:        q.Choices,
		Answer:         q.Answer,
		Title:          q.Title,
		Steps:          q.Steps,
		InitialVisible: q.InitialVisible,
		TimeLimit:      q.TimeLimit,
		Points:         q.Points,
	}
}

// QuestionLoader reads question banks from a Mongo collection.
type QuestionLoader struct {
	collection *mongo.Collection
}

func NewQuestionLoader(client *mongo.Client, database, collection string) *QuestionLoader {
	return &QuestionLoader{collection: client.Database(database).Collection(collection)}
}

func (l *QuestionLoader) LoadQuestions(ctx context.Context, typ domain.QuestionType) ([]domain.Question, error) {
	opts := options.Find().SetSort(bson.D{{Key: "position", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := l.collection.Find(ctx, bson.M{"type": string(typ)}, opts)
	if err != nil {
		return nil, fmt.Errorf("find questions: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []questionDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	bank := make([]domain.Question, 0, len(docs))
	for _, d := range docs {
		bank = append(bank, d.toDomain())
	}
	return bank, nil
}

// Seed upserts the banks into the collection, keeping each bank's order.
func (l *QuestionLoader) Seed(ctx context.Context, banks map[domain.QuestionType][]domain.Question) (int, error) {
	var models []mongo.WriteModel
	for typ, bank := range banks {
		for i, q := range bank {
			q.Type = typ
			if err := q.Validate(); err != nil {
				return 0, err
			}
			models = append(models, mongo.NewReplaceOneModel().
				SetFilter(bson.M{"_id": q.ID}).
				SetReplacement(fromDomain(q, i)).
				SetUpsert(true))
		}
	}
	if len(models) == 0 {
		return 0, nil
	}
	if _, err := l.collection.BulkWrite(ctx, models); err != nil {
		return 0, fmt.Errorf("seed questions: %w", err)
	}
	return len(models), nil
}
