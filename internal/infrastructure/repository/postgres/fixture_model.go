package postgres

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/House-of-Events/Annabeth/internal/domain/fixture"
)

const fixturesTable = "fixtures"

var fixtureColumns = []string{
	"id",
	"sport_type",
	"fixture_data",
	"date_time",
	"match_id",
	"processed",
	"date_processed",
	"date_deleted",
}

type fixtureTableModel struct {
	ID            int64          `db:"id"`
	SportType     string         `db:"sport_type"`
	FixtureData   []byte         `db:"fixture_data"`
	DateTime      time.Time      `db:"date_time"`
	MatchID       sql.NullString `db:"match_id"`
	Processed     bool           `db:"processed"`
	DateProcessed *time.Time     `db:"date_processed"`
	DateDeleted   *time.Time     `db:"date_deleted"`
}

func (m fixtureTableModel) toDomain() fixture.Fixture {
	out := fixture.Fixture{
		ID:            m.ID,
		SportType:     m.SportType,
		MatchID:       m.MatchID.String,
		DateTime:      m.DateTime.UTC(),
		Processed:     m.Processed,
		DateProcessed: m.DateProcessed,
		DateDeleted:   m.DateDeleted,
	}
	if len(m.FixtureData) > 0 {
		out.Data = json.RawMessage(m.FixtureData)
	}
	return out
}
