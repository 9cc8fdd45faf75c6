package boulder

import (
	"go.uber.org/zap"

	"boulder/internal/engine"
)

// Logger is the structured logging surface a caller can supply via
// WithLogger: printf-style Infof for routine events, Fatalf for conditions
// the engine cannot recover from.
type Logger interface {
	Infof(format string, args ...any)
	Fatalf(format string, args ...any)
}

var _ engine.Logger = (*zapLogger)(nil)

// zapLogger adapts a *zap.SugaredLogger to the Logger interface; it backs
// the default logger used when no WithLogger option is supplied.
type zapLogger struct {
	s *zap.SugaredLogger
}

func (l *zapLogger) Infof(format string, args ...any)  { l.s.Infof(format, args...) }
func (l *zapLogger) Fatalf(format string, args ...any) { l.s.Fatalf(format, args...) }

func newDefaultLogger() Logger {
	z, err := zap.NewProduction()
	if err != nil {
		return &zapLogger{s: zap.NewNop().Sugar()}
	}
	return &zapLogger{s: z.Sugar()}
}
