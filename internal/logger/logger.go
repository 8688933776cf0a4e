package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger. Console output is meant for an operator
// watching a run; json is meant for log shipping from scheduled runs.
func New(json bool, debug bool) (*zap.Logger, error) {
	return build(json, debug).Build()
}

func build(json, debug bool) zap.Config {
	encoder := zapcore.EncoderConfig{
		MessageKey:     "step",
		LevelKey:       "level",
		TimeKey:        "time",
		CallerKey:      "caller",
		StacktraceKey:  "stacktrace",
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.RFC3339TimeEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}

	cfg := zap.Config{
		Encoding:          "console",
		Level:             zap.NewAtomicLevelAt(zapcore.InfoLevel),
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
		EncoderConfig:     encoder,
		DisableStacktrace: !debug,
	}

	if json {
		cfg.Encoding = "json"
		cfg.InitialFields = map[string]any{"app": "job-harvester"}
	} else {
		cfg.EncoderConfig.EncodeLevel = zapcore.LowercaseColorLevelEncoder
	}

	if debug {
		cfg.Level.SetLevel(zapcore.DebugLevel)
	}

	return cfg
}
