package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/House-of-Events/Annabeth/internal/domain/fixture"
)

// FixtureRepository keeps fixtures in process. It applies the same window
// and marking rules as the postgres store.
type FixtureRepository struct {
	mu     sync.RWMutex
	items  map[int64]fixture.Fixture
	nextID int64
}

func NewFixtureRepository(fixtures []fixture.Fixture) *FixtureRepository {
	r := &FixtureRepository{items: make(map[int64]fixture.Fixture, len(fixtures))}
	for _, item := range fixtures {
		r.Insert(item)
	}
	return r
}

// Insert stores item and returns its id. A zero id is assigned the next free one.
func (r *FixtureRepository) Insert(item fixture.Fixture) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if item.ID == 0 {
		r.nextID++
		item.ID = r.nextID
	} else if item.ID > r.nextID {
		r.nextID = item.ID
	}
	r.items[item.ID] = cloneFixture(item)
	return item.ID
}

func (r *FixtureRepository) Get(id int64) (fixture.Fixture, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[id]
	if !ok {
		return fixture.Fixture{}, false
	}
	return cloneFixture(item), true
}

// SoftDelete sets date_deleted, mirroring the upstream ingestion process.
func (r *FixtureRepository) SoftDelete(id int64, at time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[id]
	if !ok {
		return false
	}
	deletedAt := at.UTC()
	item.DateDeleted = &deletedAt
	r.items[id] = item
	return true
}

func (r *FixtureRepository) ListDue(ctx context.Context, w fixture.Window) ([]fixture.Fixture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]fixture.Fixture, 0)
	for _, item := range r.items {
		if item.Due(w) {
			out = append(out, cloneFixture(item))
		}
	}
	fixture.SortByDateTime(out)
	return out, nil
}

func (r *FixtureRepository) MarkProcessed(ctx context.Context, ids []int64, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	processedAt := at.UTC()
	var affected int64
	for _, id := range ids {
		item, ok := r.items[id]
		if !ok || item.Processed || item.Deleted() {
			continue
		}
		item.Processed = true
		item.DateProcessed = &processedAt
		r.items[id] = item
		affected++
	}
	return affected, nil
}

func cloneFixture(item fixture.Fixture) fixture.Fixture {
	if item.Data != nil {
		item.Data = append(json.RawMessage(nil), item.Data...)
	}
	if item.DateProcessed != nil {
		v := *item.DateProcessed
		item.DateProcessed = &v
	}
	if item.DateDeleted != nil {
		v := *item.DateDeleted
		item.DateDeleted = &v
	}
	return item
}
