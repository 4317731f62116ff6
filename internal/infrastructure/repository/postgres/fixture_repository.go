package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/House-of-Events/Annabeth/internal/domain/fixture"
	qb "github.com/House-of-Events/Annabeth/internal/platform/querybuilder"
)

type FixtureRepository struct {
	db *sqlx.DB
}

func NewFixtureRepository(db *sqlx.DB) *FixtureRepository {
	return &FixtureRepository{db: db}
}

// ListDue runs one SELECT with both window bounds bound as parameters, so
// every row is compared against the same instant.
func (r *FixtureRepository) ListDue(ctx context.Context, w fixture.Window) ([]fixture.Fixture, error) {
	query, args, err := buildListDueQuery(w)
	if err != nil {
		return nil, fmt.Errorf("build select due fixtures query: %w", err)
	}

	var rows []fixtureTableModel
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select due fixtures: %w", err)
	}

	out := make([]fixture.Fixture, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *FixtureRepository) MarkProcessed(ctx context.Context, ids []int64, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query, args, err := buildMarkProcessedQuery(ids, at)
	if err != nil {
		return 0, fmt.Errorf("build mark fixtures processed query: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("mark fixtures processed: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("read affected rows: %w", err)
	}
	return affected, nil
}

func buildListDueQuery(w fixture.Window) (string, []any, error) {
	return qb.Select(fixtureColumns...).
		From(fixturesTable).
		Where(
			qb.Eq("processed", false),
			qb.IsNull("date_deleted"),
			qb.Between("date_time", w.From.UTC(), w.To.UTC()),
		).
		OrderBy("date_time ASC", "id ASC").
		ToSQL()
}

// The processed = false guard keeps date_processed write-once when two runs overlap.
func buildMarkProcessedQuery(ids []int64, at time.Time) (string, []any, error) {
	at = at.UTC()
	return qb.Update(fixturesTable).
		Set("processed", true).
		Set("date_processed", at).
		Set("updated_at", at).
		Where(
			qb.Expr("id = ANY(?)", pq.Int64Array(ids)),
			qb.Eq("processed", false),
			qb.IsNull("date_deleted"),
		).
		ToSQL()
}
