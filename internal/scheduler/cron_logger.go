package scheduler

import "github.com/House-of-Events/Annabeth/internal/platform/logging"

// cronLogger adapts logging.Logger to cron.Logger. cron's info lines are
// chatty, so they go to debug.
type cronLogger struct {
	logger *logging.Logger
}

func newCronLogger(logger *logging.Logger) cronLogger {
	return cronLogger{logger: logger.With("component", "cron")}
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
