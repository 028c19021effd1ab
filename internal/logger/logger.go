package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger. Format "console" gives human-readable
// output; anything else is JSON.
func New(level, format string) *zap.Logger {
	atomic := zap.NewAtomicLevel()
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		atomic.SetLevel(zapcore.DebugLevel)
	case "warn":
		atomic.SetLevel(zapcore.WarnLevel)
	case "error":
		atomic.SetLevel(zapcore.ErrorLevel)
	default:
		atomic.SetLevel(zapcore.InfoLevel)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "ts"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if format == "console" {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), atomic)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
}
