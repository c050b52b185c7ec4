package observability

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process logger. Level comes from LOG_LEVEL unless debug
// is set. Each extra path (e.g. weatherbot.log) receives a copy of stderr output.
func NewLogger(debug bool, extraPaths ...string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.Level = parseLogLevel(os.Getenv("LOG_LEVEL"))
	if debug {
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	for _, p := range extraPaths {
		if p = strings.TrimSpace(p); p != "" {
			config.OutputPaths = append(config.OutputPaths, p)
			config.ErrorOutputPaths = append(config.ErrorOutputPaths, p)
		}
	}

	return config.Build()
}

func parseLogLevel(s string) zap.AtomicLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return zap.NewAtomicLevelAt(zap.DebugLevel)
	case "WARN":
		return zap.NewAtomicLevelAt(zap.WarnLevel)
	case "ERROR":
		return zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	}
}
