package app

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/House-of-Events/Annabeth/internal/config"
	"github.com/House-of-Events/Annabeth/internal/domain/fixture"
	"github.com/House-of-Events/Annabeth/internal/domain/notification"
	"github.com/House-of-Events/Annabeth/internal/infrastructure/repository/memory"
	fixturemock "github.com/House-of-Events/Annabeth/internal/mocks/domain/fixture"
	notificationmock "github.com/House-of-Events/Annabeth/internal/mocks/domain/notification"
	"github.com/House-of-Events/Annabeth/internal/platform/id"
	"github.com/House-of-Events/Annabeth/internal/platform/logging"
	"github.com/House-of-Events/Annabeth/internal/usecase"
)

var appTestNow = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

func testConfig() config.Config {
	return config.Config{
		ServiceName: "fixture-dispatcher",
		Dispatch: config.DispatchConfig{
			Horizon:        time.Hour,
			MaxConcurrency: 2,
			PublishTimeout: time.Second,
			MarkTimeout:    time.Second,
			InformLead:     time.Hour,
		},
		Queue: config.QueueConfig{Driver: config.QueueDriverLog},
	}
}

func staticOpener(session *Session) SessionOpener {
	return func(context.Context, config.Config, *logging.Logger, bool) (*Session, error) {
		return session, nil
	}
}

func TestRuntime_RunOnceWithDemoFixtures(t *testing.T) {
	rt := NewRuntime(testConfig(), logging.NewNop(),
		WithDemoFixtures(appTestNow),
		WithServiceOptions(
			usecase.WithClock(func() time.Time { return appTestNow }),
			usecase.WithIDGenerator(id.Static("run-demo")),
		),
	)

	summary, err := rt.RunOnce(context.Background(), usecase.RunOptions{})
	require.NoError(t, err)
	require.Equal(t, "run-demo", summary.RunID)
	require.Equal(t, 4, summary.Selected)
	require.Equal(t, 4, summary.Successful)
	require.Equal(t, 0, summary.Failed)
	require.Equal(t, int64(4), summary.Marked)

	again, err := rt.RunOnce(context.Background(), usecase.RunOptions{})
	require.NoError(t, err)
	require.Equal(t, 0, again.Selected, "marked fixtures must not be selected twice")
}

func TestRuntime_DryRunSkipsPublisher(t *testing.T) {
	var gotWithPublisher bool
	repo := memory.NewFixtureRepository(memory.SeedFixtures(appTestNow))
	rt := NewRuntime(testConfig(), logging.NewNop(),
		WithSessionOpener(func(_ context.Context, _ config.Config, _ *logging.Logger, withPublisher bool) (*Session, error) {
			gotWithPublisher = withPublisher
			return NewSession(repo, nil), nil
		}),
		WithServiceOptions(usecase.WithClock(func() time.Time { return appTestNow })),
	)

	summary, err := rt.RunOnce(context.Background(), usecase.RunOptions{DryRun: true})
	require.NoError(t, err)
	require.False(t, gotWithPublisher)
	require.True(t, summary.DryRun)
	require.Len(t, summary.Due, 4)

	due, err := repo.ListDue(context.Background(), fixture.NewWindow(appTestNow, time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 4, "dry run must not mark anything")
}

func TestRuntime_CloseErrorSurfacesOnlyWhenRunSucceeded(t *testing.T) {
	t.Run("successful run returns close error", func(t *testing.T) {
		repo := memory.NewFixtureRepository(nil)
		publisher := notificationmock.NewPublisher(t)
		publisher.On("Close").Return(errors.New("connection reset")).Once()

		rt := NewRuntime(testConfig(), logging.NewNop(), WithSessionOpener(staticOpener(NewSession(repo, publisher))))
		_, err := rt.RunOnce(context.Background(), usecase.RunOptions{})
		require.Error(t, err)
		require.Contains(t, err.Error(), "close publisher")
	})

	t.Run("failed run keeps its own error", func(t *testing.T) {
		repo := fixturemock.NewRepository(t)
		repo.On("ListDue", mock.Anything, mock.Anything).Return(nil, errors.New("relation does not exist")).Once()
		publisher := notificationmock.NewPublisher(t)
		publisher.On("Close").Return(errors.New("connection reset")).Once()

		rt := NewRuntime(testConfig(), logging.NewNop(), WithSessionOpener(staticOpener(NewSession(repo, publisher))))
		_, err := rt.RunOnce(context.Background(), usecase.RunOptions{})
		require.Error(t, err)
		require.True(t, errors.Is(err, usecase.ErrSelectFixtures))
		require.NotContains(t, err.Error(), "close publisher")
	})
}

func TestRuntime_OpenFailureIsDependencyError(t *testing.T) {
	rt := NewRuntime(testConfig(), logging.NewNop(),
		WithSessionOpener(func(context.Context, config.Config, *logging.Logger, bool) (*Session, error) {
			return nil, errors.New("dial tcp: connection refused")
		}),
	)

	_, err := rt.RunOnce(context.Background(), usecase.RunOptions{})
	require.Error(t, err)
	require.True(t, errors.Is(err, usecase.ErrDependencyUnavailable))

	_, err = rt.Ping(context.Background())
	require.True(t, errors.Is(err, usecase.ErrDependencyUnavailable))
}

func TestRuntime_PingWithoutDatabase(t *testing.T) {
	rt := NewRuntime(testConfig(), logging.NewNop(), WithDemoFixtures(appTestNow))

	_, err := rt.Ping(context.Background())
	require.NoError(t, err)
}

func TestSession_CloseWithoutPublisher(t *testing.T) {
	session := NewSession(memory.NewFixtureRepository(nil), nil)
	require.NoError(t, session.Close(nil))

	var nilSession *Session
	require.NoError(t, nilSession.Close(nil))
}

func TestPublisherOptionsMapping(t *testing.T) {
	cfg := testConfig()
	cfg.Queue = config.QueueConfig{
		Driver:                 config.QueueDriverKafka,
		CircuitEnabled:         true,
		CircuitFailureCount:    3,
		CircuitOpenTimeout:     20 * time.Second,
		CircuitHalfOpenMaxReqs: 2,
	}
	cfg.Kafka = config.KafkaConfig{Brokers: []string{"kafka:9092"}, Topic: "fixtures-daily", ClientID: "dispatcher"}

	opts := publisherOptions(cfg)
	require.Equal(t, config.QueueDriverKafka, opts.Driver)
	require.Equal(t, []string{"kafka:9092"}, opts.Kafka.Brokers)
	require.True(t, opts.Breaker.Enabled)
	require.Equal(t, 3, opts.Breaker.FailureThreshold)
	require.Equal(t, 2, opts.Breaker.HalfOpenMaxReq)
	require.Equal(t, time.Second, opts.PublishTimeout)
}

var _ notification.Publisher = (*notificationmock.Publisher)(nil)
