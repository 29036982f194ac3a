package logging

import "go.uber.org/zap"

// Leveled is a key/value logger for libraries that take one, such as
// go-retryablehttp.
type Leveled interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type sugared struct {
	s *zap.SugaredLogger
}

// NewLeveled adapts a zap logger to Leveled.
func NewLeveled(l *zap.Logger) Leveled {
	if l == nil {
		l = zap.NewNop()
	}
	return &sugared{s: l.Sugar()}
}

func (l *sugared) Debug(msg string, keysAndValues ...interface{}) { l.s.Debugw(msg, keysAndValues...) }
func (l *sugared) Info(msg string, keysAndValues ...interface{})  { l.s.Infow(msg, keysAndValues...) }
func (l *sugared) Warn(msg string, keysAndValues ...interface{})  { l.s.Warnw(msg, keysAndValues...) }
func (l *sugared) Error(msg string, keysAndValues ...interface{}) { l.s.Errorw(msg, keysAndValues...) }
