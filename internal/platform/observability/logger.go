package observability

import (
	"context"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tidynest/api/internal/platform/requestctx"
)

const defaultLogLevel = "info"

func logLevelFromEnv() zap.AtomicLevel {
	level := zap.NewAtomicLevel()
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("API_LOG_LEVEL")))
	if raw == "" {
		raw = strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL")))
	}
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		_ = level.UnmarshalText([]byte(defaultLogLevel))
	}
	return level
}

// NewLogger constructs a JSON zap logger. Field names follow the Cloud
// Logging convention so severity filtering works in the console.
func NewLogger() (*zap.Logger, error) {
	cfg := zap.Config{
		Level:    logLevelFromEnv(),
		Encoding: "json",
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey: "message",
			TimeKey:    "timestamp",
			LevelKey:   "severity",
			EncodeTime: zapcore.RFC3339NanoTimeEncoder,
			EncodeLevel: func(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
				enc.AppendString(strings.ToUpper(level.String()))
			},
			CallerKey:     "caller",
			StacktraceKey: "stacktrace",
		},
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: true,
	}

	return cfg.Build()
}

// WithLogger injects the logger into the provided context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return requestctx.WithLogger(ctx, logger)
}

// FromContext retrieves the logger from context, defaulting to a no-op logger.
func FromContext(ctx context.Context) *zap.Logger {
	return requestctx.Logger(ctx)
}

// PrintfAdapter adapts zap to printf-style logging interfaces.
type PrintfAdapter struct {
	logger *zap.SugaredLogger
}

// NewPrintfAdapter creates a PrintfAdapter backed by the supplied logger.
func NewPrintfAdapter(logger *zap.Logger) PrintfAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return PrintfAdapter{logger: logger.Sugar()}
}

// Printf implements the Printf-style logging expected by legacy interfaces.
func (a PrintfAdapter) Printf(format string, args ...any) {
	a.logger.Infof(format, args...)
}
