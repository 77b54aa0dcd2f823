package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Level    string // debug, info, warn, error
	Encoding string // json or console
}

// New builds the process logger. Unknown levels fall back to info, unknown encodings to json.
func New(cfg Config) (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	name := strings.ToLower(cfg.Level)
	if name == "" {
		name = "info"
	}
	if err := level.UnmarshalText([]byte(name)); err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %q, using info\n", cfg.Level)
		level.SetLevel(zap.InfoLevel)
	}

	encoding := strings.ToLower(cfg.Encoding)
	encoderCfg := zap.NewProductionEncoderConfig()
	if encoding == "console" {
		encoderCfg = zap.NewDevelopmentEncoderConfig()
	} else {
		encoding = "json"
	}
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	zc := zap.Config{
		Level:             level,
		DisableCaller:     true,
		DisableStacktrace: true,
		Encoding:          encoding,
		EncoderConfig:     encoderCfg,
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
	}
	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}
