package observability

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggerOptions selects the level and encoding of the process logger.
type LoggerOptions struct {
	Level string
	// Console switches to the human-readable development encoder.
	Console bool
	Fields  []zap.Field
}

// LoggerOptionsFromEnv reads STOREFRONT_LOG_LEVEL (LOG_LEVEL is honoured as a fallback) and
// STOREFRONT_LOG_FORMAT=console. The logger is built before configuration is loaded, so these
// are read directly from the environment.
func LoggerOptionsFromEnv() LoggerOptions {
	level := os.Getenv("STOREFRONT_LOG_LEVEL")
	if strings.TrimSpace(level) == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	return LoggerOptions{
		Level:   level,
		Console: strings.EqualFold(strings.TrimSpace(os.Getenv("STOREFRONT_LOG_FORMAT")), "console"),
	}
}

// NewLogger builds a zap logger. JSON output uses Cloud Logging key names (severity, message,
// timestamp) so entries are parsed without an agent-side mapping.
func NewLogger(opts LoggerOptions) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.TrimSpace(opts.Level))
	if err != nil {
		level = zapcore.InfoLevel
	}

	var cfg zap.Config
	if opts.Console {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Sampling = nil
		cfg.EncoderConfig.MessageKey = "message"
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.LevelKey = "severity"
		cfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.OutputPaths = []string{"stdout"}
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.DisableStacktrace = true

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	if len(opts.Fields) > 0 {
		logger = logger.With(opts.Fields...)
	}
	return logger, nil
}
