package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"trivia-show-service/internal/domain"
	"trivia-show-service/internal/infra/postgres/migrations"
)

// QuestionRow is the questions table as bun sees it.
type QuestionRow struct {
	bun.BaseModel `bun:"table:questions,alias:q"`

	ID       string          `bun:"id,pk"`
	Type     string          `bun:"type,notnull"`
	Position int             `bun:"position,notnull"`
	Data     json.RawMessage `bun:"data,type:jsonb,notnull"`
}

// OpenDB opens a bun handle over the pgdriver connector.
func OpenDB(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

// Migrate applies every pending migration.
func Migrate(ctx context.Context, db *bun.DB) error {
	migrator := migrate.NewMigrator(db, migrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		return err
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		return err
	}
	return nil
}

// Seed upserts the banks, keeping each bank's order in position. It
// returns the number of rows written.
func Seed(ctx context.Context, db *bun.DB, banks map[domain.QuestionType][]domain.Question) (int, error) {
	types := make([]string, 0, len(banks))
	for typ := range banks {
		types = append(types, string(typ))
	}
	sort.Strings(types)

	var rows []QuestionRow
	for _, typ := range types {
		for i, q := range banks[domain.QuestionType(typ)] {
			if err := q.Validate(); err != nil {
				return 0, err
			}
			data, err := json.Marshal(q)
			if err != nil {
				return 0, fmt.Errorf("marshal question %s: %w", q.ID, err)
			}
			rows = append(rows, QuestionRow{ID: q.ID, Type: typ, Position: i, Data: data})
		}
	}
	if len(rows) == 0 {
		return 0, nil
	}

	_, err := db.NewInsert().
		Model(&rows).
		On("CONFLICT (id) DO UPDATE").
		Set("type = EXCLUDED.type").
		Set("position = EXCLUDED.position").
		Set("data = EXCLUDED.data").
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("seed questions: %w", err)
	}
	return len(rows), nil
}
