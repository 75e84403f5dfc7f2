package peer

import (
	"github.com/pion/logging"
	"go.uber.org/zap"
)

// zapLoggerFactory routes pion's internal logging into zap. Trace maps to
// Debug since zap has no lower level.
type zapLoggerFactory struct {
	log *zap.SugaredLogger
}

func (f zapLoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return zapLeveledLogger{log: f.log.Named("pion").With("scope", scope)}
}

type zapLeveledLogger struct {
	log *zap.SugaredLogger
}

func (l zapLeveledLogger) Trace(msg string)                  { l.log.Debug(msg) }
func (l zapLeveledLogger) Tracef(format string, args ...any) { l.log.Debugf(format, args...) }
func (l zapLeveledLogger) Debug(msg string)                  { l.log.Debug(msg) }
func (l zapLeveledLogger) Debugf(format string, args ...any) { l.log.Debugf(format, args...) }
func (l zapLeveledLogger) Info(msg string)                   { l.log.Info(msg) }
func (l zapLeveledLogger) Infof(format string, args ...any)  { l.log.Infof(format, args...) }
func (l zapLeveledLogger) Warn(msg string)                   { l.log.Warn(msg) }
func (l zapLeveledLogger) Warnf(format string, args ...any)  { l.log.Warnf(format, args...) }
func (l zapLeveledLogger) Error(msg string)                  { l.log.Error(msg) }
func (l zapLeveledLogger) Errorf(format string, args ...any) { l.log.Errorf(format, args...) }
