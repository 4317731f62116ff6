package app

import (
	"context"
	"time"

	crerr "github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	"github.com/uptrace/opentelemetry-go-extra/otelsqlx"

	"github.com/House-of-Events/Annabeth/internal/config"
	"github.com/House-of-Events/Annabeth/internal/domain/fixture"
	"github.com/House-of-Events/Annabeth/internal/domain/notification"
	"github.com/House-of-Events/Annabeth/internal/infrastructure/jobqueue"
	"github.com/House-of-Events/Annabeth/internal/infrastructure/repository/postgres"
	"github.com/House-of-Events/Annabeth/internal/platform/logging"
	"github.com/House-of-Events/Annabeth/internal/usecase"
)

// Session holds the store and queue connections for one invocation.
type Session struct {
	Fixtures  fixture.Repository
	Publisher notification.Publisher

	db *sqlx.DB
}

// SessionOpener opens the connections a run needs. The publisher is skipped
// when withPublisher is false (dry runs and connectivity checks).
type SessionOpener func(ctx context.Context, cfg config.Config, logger *logging.Logger, withPublisher bool) (*Session, error)

func NewSession(fixtures fixture.Repository, publisher notification.Publisher) *Session {
	return &Session{Fixtures: fixtures, Publisher: publisher}
}

func openPostgresSession(ctx context.Context, cfg config.Config, logger *logging.Logger, withPublisher bool) (*Session, error) {
	db, err := openDB(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	session := &Session{Fixtures: postgres.NewFixtureRepository(db), db: db}

	if withPublisher {
		publisher, err := jobqueue.New(ctx, publisherOptions(cfg), logger)
		if err != nil {
			_ = session.Close(logger)
			return nil, err
		}
		session.Publisher = publisher
	}
	return session, nil
}

func openDB(ctx context.Context, cfg config.Config, logger *logging.Logger) (*sqlx.DB, error) {
	dsn := normalizeDBURL(cfg.DBURL, cfg.DBDisablePreparedBinary)
	dbName := dbNameFromURL(dsn)

	db, err := otelsqlx.Open("postgres", dsn,
		otelsql.WithDBSystem("postgresql"),
		otelsql.WithDBName(dbName),
		otelsql.WithQueryFormatter(formatDBQueryForTrace),
	)
	if err != nil {
		return nil, crerr.Wrap(err, "open postgres")
	}
	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)

	started := time.Now()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, crerr.Wrap(err, "ping postgres")
	}
	logger.Debug("postgres connected", "db_name", dbName, "latency_ms", time.Since(started).Milliseconds())
	return db, nil
}

func publisherOptions(cfg config.Config) jobqueue.Options {
	return jobqueue.Options{
		Driver: cfg.Queue.Driver,
		SQS: jobqueue.SQSPublisherConfig{
			QueueURL:        cfg.SQS.QueueURL,
			Region:          cfg.SQS.Region,
			Endpoint:        cfg.SQS.Endpoint,
			AccessKeyID:     cfg.SQS.AccessKeyID,
			SecretAccessKey: cfg.SQS.SecretAccessKey,
		},
		QStash: jobqueue.QStashPublisherConfig{
			BaseURL:   cfg.QStash.BaseURL,
			Token:     cfg.QStash.Token,
			TargetURL: cfg.QStash.TargetURL,
			Retries:   cfg.QStash.Retries,
		},
		Kafka: jobqueue.KafkaPublisherConfig{
			Brokers:  cfg.Kafka.Brokers,
			Topic:    cfg.Kafka.Topic,
			ClientID: cfg.Kafka.ClientID,
		},
		Breaker: jobqueue.BreakerConfig{
			Enabled:          cfg.Queue.CircuitEnabled,
			FailureThreshold: cfg.Queue.CircuitFailureCount,
			OpenTimeout:      cfg.Queue.CircuitOpenTimeout,
			HalfOpenMaxReq:   cfg.Queue.CircuitHalfOpenMaxReqs,
		},
		PublishTimeout: cfg.Dispatch.PublishTimeout,
	}
}

// Ping checks store connectivity. Sessions without a database report healthy.
func (s *Session) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return nil
	}
	if err := s.db.PingContext(ctx); err != nil {
		return crerr.Mark(crerr.Wrap(err, "ping postgres"), usecase.ErrDependencyUnavailable)
	}
	return nil
}

// Close releases the publisher first, then the database.
func (s *Session) Close(logger *logging.Logger) error {
	if s == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}

	var errs []error
	if s.Publisher != nil {
		if err := s.Publisher.Close(); err != nil {
			logger.Error("close publisher failed", "error", err)
			errs = append(errs, crerr.Wrap(err, "close publisher"))
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			logger.Error("close postgres failed", "error", err)
			errs = append(errs, crerr.Wrap(err, "close postgres"))
		}
	}
	return crerr.Join(errs...)
}
