package fixture

import (
	"testing"
	"time"
)

func TestWindow_ContainsIsInclusive(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w := NewWindow(now, time.Hour)

	cases := []struct {
		name string
		at   time.Time
		want bool
	}{
		{name: "lower bound", at: now, want: true},
		{name: "upper bound", at: now.Add(time.Hour), want: true},
		{name: "inside", at: now.Add(10 * time.Minute), want: true},
		{name: "just before", at: now.Add(-time.Nanosecond), want: false},
		{name: "just after", at: now.Add(time.Hour + time.Nanosecond), want: false},
		{name: "other zone same instant", at: now.In(time.FixedZone("WIB", 7*3600)), want: true},
	}
	for _, tc := range cases {
		if got := w.Contains(tc.at); got != tc.want {
			t.Fatalf("%s: Contains(%s) = %v, want %v", tc.name, tc.at, got, tc.want)
		}
	}
}

func TestNewWindow_NormalizesToUTC(t *testing.T) {
	t.Parallel()

	local := time.Date(2026, 3, 1, 5, 0, 0, 0, time.FixedZone("PST", -8*3600))
	w := NewWindow(local, 30*time.Minute)

	if w.From.Location() != time.UTC {
		t.Fatalf("expected UTC window start, got %s", w.From.Location())
	}
	if w.Horizon() != 30*time.Minute {
		t.Fatalf("unexpected horizon: %s", w.Horizon())
	}
}

func TestFixture_Due(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w := NewWindow(now, time.Hour)
	deletedAt := now.Add(-time.Hour)

	if !(Fixture{DateTime: now.Add(10 * time.Minute)}).Due(w) {
		t.Fatalf("expected in-window fixture to be due")
	}
	if (Fixture{DateTime: now.Add(10 * time.Minute), Processed: true}).Due(w) {
		t.Fatalf("processed fixture must not be due")
	}
	if (Fixture{DateTime: now.Add(10 * time.Minute), DateDeleted: &deletedAt}).Due(w) {
		t.Fatalf("deleted fixture must not be due")
	}
}

func TestCountBySportAndSort(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	items := []Fixture{
		{ID: 3, SportType: "football", DateTime: base.Add(20 * time.Minute)},
		{ID: 2, SportType: "tennis", DateTime: base.Add(5 * time.Minute)},
		{ID: 1, SportType: "football", DateTime: base.Add(5 * time.Minute)},
	}

	counts := CountBySport(items)
	if counts["football"] != 2 || counts["tennis"] != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}

	SortByDateTime(items)
	got := IDs(items)
	want := []int64{1, 2, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected order: got=%v want=%v", got, want)
		}
	}
}
