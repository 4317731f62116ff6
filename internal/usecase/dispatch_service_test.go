package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/House-of-Events/Annabeth/internal/domain/fixture"
	"github.com/House-of-Events/Annabeth/internal/domain/notification"
	"github.com/House-of-Events/Annabeth/internal/infrastructure/repository/memory"
	fixturemock "github.com/House-of-Events/Annabeth/internal/mocks/domain/fixture"
	notificationmock "github.com/House-of-Events/Annabeth/internal/mocks/domain/notification"
	"github.com/House-of-Events/Annabeth/internal/platform/id"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu        sync.Mutex
	failIDs   map[int64]error
	published []notification.Message
	onPublish func(ctx context.Context, msg notification.Message)
}

func (p *recordingPublisher) Publish(ctx context.Context, msg notification.Message) (notification.Receipt, error) {
	if p.onPublish != nil {
		p.onPublish(ctx, msg)
	}
	if err, ok := p.failIDs[msg.FixtureID]; ok {
		return notification.Receipt{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, msg)
	return notification.Receipt{MessageID: fmt.Sprintf("msg-%d", msg.FixtureID)}, nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) publishedIDs() []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]int64, 0, len(p.published))
	for _, msg := range p.published {
		out = append(out, msg.FixtureID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func newTestService(repo fixture.Repository, publisher notification.Publisher, cfg DispatchServiceConfig) *DispatchService {
	if cfg.MaxConcurrency == 0 {
		cfg.MaxConcurrency = 4
	}
	return NewDispatchService(repo, publisher, cfg, nil,
		WithClock(func() time.Time { return testNow }),
		WithIDGenerator(id.Static("run-test")),
	)
}

func dueFixture(id int64, sport string, offset time.Duration) fixture.Fixture {
	return fixture.Fixture{
		ID:        id,
		SportType: sport,
		MatchID:   fmt.Sprintf("match-%d", id),
		DateTime:  testNow.Add(offset),
	}
}

func TestDispatchService_Run_SelectsOnlyWindowFixtures(t *testing.T) {
	t.Parallel()

	repo := memory.NewFixtureRepository([]fixture.Fixture{
		dueFixture(1, "football", 10*time.Minute),
		dueFixture(2, "football", 90*time.Minute),
		dueFixture(3, "football", -5*time.Minute),
	})
	publisher := &recordingPublisher{}

	summary, err := newTestService(repo, publisher, DispatchServiceConfig{Horizon: time.Hour}).Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Selected)
	assert.Equal(t, []int64{1}, publisher.publishedIDs())
	assert.Equal(t, int64(1), summary.Marked)
	assert.True(t, summary.WindowStart.Equal(testNow))
	assert.True(t, summary.WindowEnd.Equal(testNow.Add(time.Hour)))

	item, _ := repo.Get(1)
	assert.True(t, item.Processed)
	require.NotNil(t, item.DateProcessed)
	assert.True(t, item.DateProcessed.Equal(testNow))
	for _, id := range []int64{2, 3} {
		other, _ := repo.Get(id)
		assert.False(t, other.Processed, "fixture %d must stay unprocessed", id)
	}
}

func TestDispatchService_Run_ExcludesDeletedFixtures(t *testing.T) {
	t.Parallel()

	deletedAt := testNow.Add(-time.Hour)
	deleted := dueFixture(1, "tennis", 15*time.Minute)
	deleted.DateDeleted = &deletedAt
	repo := memory.NewFixtureRepository([]fixture.Fixture{deleted})
	publisher := &recordingPublisher{}

	summary, err := newTestService(repo, publisher, DispatchServiceConfig{}).Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Selected)
	assert.Empty(t, publisher.publishedIDs())
}

func TestDispatchService_Run_PartialFailureIsIsolated(t *testing.T) {
	t.Parallel()

	repo := memory.NewFixtureRepository([]fixture.Fixture{
		dueFixture(1, "football", 5*time.Minute),
		dueFixture(2, "cricket", 10*time.Minute),
		dueFixture(3, "tennis", 15*time.Minute),
	})
	publisher := &recordingPublisher{failIDs: map[int64]error{2: errors.New("queue rejected message")}}

	summary, err := newTestService(repo, publisher, DispatchServiceConfig{}).Run(context.Background(), RunOptions{})
	require.NoError(t, err, "per-fixture failures must not fail the run")

	assert.Equal(t, 2, summary.Successful)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, int64(2), summary.Failures[0].FixtureID)
	assert.Equal(t, "cricket", summary.Failures[0].SportType)
	assert.Contains(t, summary.Failures[0].Error, "queue rejected message")
	assert.Equal(t, []int64{1, 3}, publisher.publishedIDs())

	for id, want := range map[int64]bool{1: true, 2: false, 3: true} {
		item, _ := repo.Get(id)
		assert.Equal(t, want, item.Processed, "fixture %d processed", id)
		assert.Equal(t, want, item.DateProcessed != nil, "fixture %d date_processed", id)
	}
}

func TestDispatchService_Run_MarksOnlyDeliveredIDs(t *testing.T) {
	t.Parallel()

	repo := fixturemock.NewRepository(t)
	publisher := notificationmock.NewPublisher(t)

	items := []fixture.Fixture{dueFixture(11, "football", 5*time.Minute), dueFixture(12, "football", 6*time.Minute)}
	repo.On("ListDue", mock.Anything, fixture.NewWindow(testNow, time.Hour)).Return(items, nil).Once()
	publisher.On("Publish", mock.Anything, mock.MatchedBy(func(m notification.Message) bool { return m.FixtureID == 11 })).
		Return(notification.Receipt{MessageID: "a"}, nil).Once()
	publisher.On("Publish", mock.Anything, mock.MatchedBy(func(m notification.Message) bool { return m.FixtureID == 12 })).
		Return(notification.Receipt{}, errors.New("throttled")).Once()
	repo.On("MarkProcessed", mock.Anything, []int64{11}, testNow).Return(int64(1), nil).Once()

	summary, err := newTestService(repo, publisher, DispatchServiceConfig{}).Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Successful)
	assert.Equal(t, 1, summary.Failed)
}

func TestDispatchService_Run_IsIdempotent(t *testing.T) {
	t.Parallel()

	repo := memory.NewFixtureRepository([]fixture.Fixture{
		dueFixture(1, "football", 5*time.Minute),
		dueFixture(2, "basketball", 30*time.Minute),
	})
	publisher := &recordingPublisher{}
	svc := newTestService(repo, publisher, DispatchServiceConfig{})

	first, err := svc.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, first.Selected)

	second, err := svc.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Selected)
	assert.Len(t, publisher.publishedIDs(), 2)
}

func TestDispatchService_Run_RetriesFailedFixtureOnNextRun(t *testing.T) {
	t.Parallel()

	repo := memory.NewFixtureRepository([]fixture.Fixture{dueFixture(1, "football", 5*time.Minute)})
	publisher := &recordingPublisher{failIDs: map[int64]error{1: errors.New("unavailable")}}
	svc := newTestService(repo, publisher, DispatchServiceConfig{})

	first, err := svc.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Failed)

	delete(publisher.failIDs, 1)
	second, err := svc.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, second.Successful)
	assert.Equal(t, int64(1), second.Marked)
}

func TestDispatchService_Run_SelectFailure(t *testing.T) {
	t.Parallel()

	repo := fixturemock.NewRepository(t)
	publisher := notificationmock.NewPublisher(t)
	repo.On("ListDue", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused")).Once()

	_, err := newTestService(repo, publisher, DispatchServiceConfig{}).Run(context.Background(), RunOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSelectFixtures), "expected ErrSelectFixtures, got %v", err)
}

func TestDispatchService_Run_MarkFailureKeepsSummary(t *testing.T) {
	t.Parallel()

	repo := fixturemock.NewRepository(t)
	publisher := &recordingPublisher{}
	repo.On("ListDue", mock.Anything, mock.Anything).Return([]fixture.Fixture{dueFixture(5, "f1", time.Minute)}, nil).Once()
	repo.On("MarkProcessed", mock.Anything, []int64{5}, testNow).Return(int64(0), errors.New("deadlock detected")).Once()

	summary, err := newTestService(repo, publisher, DispatchServiceConfig{}).Run(context.Background(), RunOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMarkFixtures), "expected ErrMarkFixtures, got %v", err)
	assert.Equal(t, 1, summary.Successful)
	assert.Equal(t, int64(0), summary.Marked)
	assert.Equal(t, []int64{5}, publisher.publishedIDs())
}

func TestDispatchService_Run_NoFixturesSkipsMarking(t *testing.T) {
	t.Parallel()

	repo := fixturemock.NewRepository(t)
	publisher := notificationmock.NewPublisher(t)
	repo.On("ListDue", mock.Anything, mock.Anything).Return([]fixture.Fixture{}, nil).Once()

	summary, err := newTestService(repo, publisher, DispatchServiceConfig{}).Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Selected)
	assert.Equal(t, "run-test", summary.RunID)
	assert.NotNil(t, summary.Failures)
}

func TestDispatchService_Run_DryRun(t *testing.T) {
	t.Parallel()

	repo := memory.NewFixtureRepository([]fixture.Fixture{
		dueFixture(1, "football", 40*time.Minute),
		dueFixture(2, "tennis", 20*time.Minute),
	})
	publisher := notificationmock.NewPublisher(t)

	summary, err := newTestService(repo, publisher, DispatchServiceConfig{}).Run(context.Background(), RunOptions{DryRun: true})
	require.NoError(t, err)
	assert.True(t, summary.DryRun)
	require.Len(t, summary.Due, 2)
	assert.Equal(t, int64(2), summary.Due[0].FixtureID)
	assert.Equal(t, map[string]int{"football": 1, "tennis": 1}, summary.BySport)

	item, _ := repo.Get(1)
	assert.False(t, item.Processed)
}

func TestDispatchService_Run_HorizonOverride(t *testing.T) {
	t.Parallel()

	repo := memory.NewFixtureRepository([]fixture.Fixture{dueFixture(1, "football", 90*time.Minute)})
	publisher := &recordingPublisher{}

	summary, err := newTestService(repo, publisher, DispatchServiceConfig{}).Run(context.Background(), RunOptions{Horizon: 2 * time.Hour})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Selected)
}

func TestDispatchService_Run_MarksDeliveredAfterCancellation(t *testing.T) {
	t.Parallel()

	repo := memory.NewFixtureRepository([]fixture.Fixture{
		dueFixture(1, "football", 5*time.Minute),
		dueFixture(2, "football", 10*time.Minute),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	publisher := &recordingPublisher{
		onPublish: func(_ context.Context, msg notification.Message) {
			if msg.FixtureID == 1 {
				cancel()
			}
		},
	}

	summary, err := newTestService(repo, publisher, DispatchServiceConfig{MaxConcurrency: 1, MarkTimeout: time.Second}).Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Successful)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, int64(1), summary.Marked)

	item, _ := repo.Get(1)
	assert.True(t, item.Processed, "delivered fixture must be marked even after cancellation")
	other, _ := repo.Get(2)
	assert.False(t, other.Processed)
}
