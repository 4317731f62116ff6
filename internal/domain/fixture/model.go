package fixture

import (
	"encoding/json"
	"sort"
	"time"
)

// Fixture is one scheduled sporting event and its dispatch state.
type Fixture struct {
	ID        int64
	SportType string
	MatchID   string
	// Data is the event payload (teams, venue, ...). It is forwarded as-is.
	Data          json.RawMessage
	DateTime      time.Time
	Processed     bool
	DateProcessed *time.Time
	DateDeleted   *time.Time
}

// Deleted reports whether the fixture carries a soft-delete marker.
func (f Fixture) Deleted() bool {
	return f.DateDeleted != nil
}

// Due reports whether the fixture qualifies for dispatch in w.
func (f Fixture) Due(w Window) bool {
	return !f.Processed && !f.Deleted() && w.Contains(f.DateTime)
}

// IDs returns the identifiers of items in order.
func IDs(items []Fixture) []int64 {
	out := make([]int64, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID)
	}
	return out
}

// CountBySport groups fixtures per sport_type. It is a reporting view only.
func CountBySport(items []Fixture) map[string]int {
	out := make(map[string]int)
	for _, item := range items {
		out[item.SportType]++
	}
	return out
}

// SortByDateTime orders fixtures by scheduled time, then id.
func SortByDateTime(items []Fixture) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].DateTime.Equal(items[j].DateTime) {
			return items[i].DateTime.Before(items[j].DateTime)
		}
		return items[i].ID < items[j].ID
	})
}
