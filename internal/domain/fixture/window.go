package fixture

import "time"

// Window is the [From, To] range of scheduled times selected by one run.
// Both ends are inclusive and always in UTC.
type Window struct {
	From time.Time
	To   time.Time
}

func NewWindow(now time.Time, horizon time.Duration) Window {
	from := now.UTC()
	return Window{From: from, To: from.Add(horizon)}
}

func (w Window) Contains(t time.Time) bool {
	t = t.UTC()
	return !t.Before(w.From) && !t.After(w.To)
}

func (w Window) Horizon() time.Duration {
	return w.To.Sub(w.From)
}
