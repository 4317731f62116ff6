package usecase

import "github.com/cockroachdb/errors"

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrSelectFixtures        = errors.New("select fixtures")
	ErrMarkFixtures          = errors.New("mark fixtures processed")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)
