package notification

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/House-of-Events/Annabeth/internal/domain/fixture"
)

var (
	dedupUnsafeCharRegex = regexp.MustCompile(`[^a-zA-Z0-9_-]`)
	validate             = validator.New(validator.WithRequiredStructEnabled())
)

// Message is the queue payload produced for one fixture.
type Message struct {
	FixtureID int64  `json:"fixture_id" validate:"required,gt=0"`
	MatchID   string `json:"match_id" validate:"required"`
	SportType string `json:"sport_type" validate:"required"`
	// FixtureType mirrors SportType; existing consumers still read this key.
	FixtureType  string          `json:"fixture_type"`
	FixtureData  json.RawMessage `json:"fixture_data"`
	DateTime     time.Time       `json:"date_time" validate:"required"`
	InformAt     time.Time       `json:"inform_at"`
	DispatchedAt time.Time       `json:"dispatch_timestamp" validate:"required"`
	RunID        string          `json:"run_id,omitempty"`
}

// Receipt identifies a published message on the broker side.
type Receipt struct {
	MessageID string
}

// Publisher sends one message to the notification queue.
type Publisher interface {
	Publish(ctx context.Context, msg Message) (Receipt, error)
	Close() error
}

// NewMessage builds the payload for f. informLead is how long before
// kickoff consumers should notify users.
func NewMessage(f fixture.Fixture, runID string, dispatchedAt time.Time, informLead time.Duration) Message {
	data := f.Data
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}
	kickoff := f.DateTime.UTC()
	sport := strings.TrimSpace(f.SportType)

	return Message{
		FixtureID:    f.ID,
		MatchID:      strings.TrimSpace(f.MatchID),
		SportType:    sport,
		FixtureType:  sport,
		FixtureData:  data,
		DateTime:     kickoff,
		InformAt:     kickoff.Add(-informLead),
		DispatchedAt: dispatchedAt.UTC(),
		RunID:        runID,
	}
}

func (m Message) Validate() error {
	if err := validate.Struct(m); err != nil {
		return err
	}
	if len(m.FixtureData) > 0 && !json.Valid(m.FixtureData) {
		return &InvalidPayloadError{FixtureID: m.FixtureID}
	}
	return nil
}

// DedupKey is stable for a fixture across runs, so brokers that support
// deduplication can collapse redeliveries.
func (m Message) DedupKey() string {
	sport := strings.TrimSpace(m.SportType)
	if sport == "" {
		sport = "unknown"
	}
	sport = dedupUnsafeCharRegex.ReplaceAllString(sport, "-")
	return "fixture-" + sport + "-" + strconv.FormatInt(m.FixtureID, 10)
}

type InvalidPayloadError struct {
	FixtureID int64
}

func (e *InvalidPayloadError) Error() string {
	return "fixture_data is not valid json for fixture " + strconv.FormatInt(e.FixtureID, 10)
}
