package notification

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/House-of-Events/Annabeth/internal/domain/fixture"
)

func TestNewMessage(t *testing.T) {
	t.Parallel()

	kickoff := time.Date(2026, 3, 1, 15, 0, 0, 0, time.FixedZone("WIB", 7*3600))
	dispatchedAt := time.Date(2026, 3, 1, 7, 30, 0, 0, time.UTC)
	f := fixture.Fixture{
		ID:        7,
		SportType: " football ",
		MatchID:   "soc_ars_che_02042000",
		Data:      json.RawMessage(`{"home_team":"Arsenal","away_team":"Chelsea"}`),
		DateTime:  kickoff,
	}

	msg := NewMessage(f, "run-1", dispatchedAt, time.Hour)

	assert.Equal(t, int64(7), msg.FixtureID)
	assert.Equal(t, "football", msg.SportType)
	assert.Equal(t, "football", msg.FixtureType)
	assert.Equal(t, time.UTC, msg.DateTime.Location())
	assert.True(t, msg.DateTime.Equal(kickoff))
	assert.True(t, msg.InformAt.Equal(kickoff.Add(-time.Hour)))
	assert.JSONEq(t, `{"home_team":"Arsenal","away_team":"Chelsea"}`, string(msg.FixtureData))
	require.NoError(t, msg.Validate())
}

func TestNewMessage_EmptyDataBecomesObject(t *testing.T) {
	t.Parallel()

	msg := NewMessage(fixture.Fixture{ID: 1, SportType: "f1", MatchID: "m1", DateTime: time.Now()}, "", time.Now(), 0)
	assert.Equal(t, `{}`, string(msg.FixtureData))
}

func TestMessage_Validate(t *testing.T) {
	t.Parallel()

	valid := Message{
		FixtureID:    1,
		MatchID:      "m1",
		SportType:    "tennis",
		FixtureData:  json.RawMessage(`{}`),
		DateTime:     time.Now(),
		DispatchedAt: time.Now(),
	}
	require.NoError(t, valid.Validate())

	missingSport := valid
	missingSport.SportType = ""
	assert.Error(t, missingSport.Validate())

	missingMatch := valid
	missingMatch.MatchID = ""
	assert.Error(t, missingMatch.Validate())

	badData := valid
	badData.FixtureData = json.RawMessage(`{"home":`)
	err := badData.Validate()
	var payloadErr *InvalidPayloadError
	require.True(t, errors.As(err, &payloadErr), "expected InvalidPayloadError, got %v", err)
}

func TestMessage_DedupKey(t *testing.T) {
	t.Parallel()

	msg := Message{FixtureID: 42, SportType: "formula 1/2025"}
	got := msg.DedupKey()
	if strings.ContainsAny(got, " /:") {
		t.Fatalf("dedup key must be broker safe, got=%q", got)
	}
	if got != "fixture-formula-1-2025-42" {
		t.Fatalf("unexpected dedup key: %q", got)
	}

	if got := (Message{FixtureID: 1}).DedupKey(); got != "fixture-unknown-1" {
		t.Fatalf("unexpected fallback dedup key: %q", got)
	}
}
