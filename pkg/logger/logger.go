// Package logger provides opinionated logging capabilities for the sensei runtime
package logger

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger returns a console logger writing to stdout.
func NewLogger(debug bool) *zap.Logger {
	return NewLoggerWithWriters(debug, os.Stdout)
}

// NewJSONLogger returns a logger with a JSON encoder, used by long running
// services whose output is collected by a log shipper.
func NewJSONLogger(debug bool, writers ...io.Writer) *zap.Logger {
	return newLogger(debug, zapcore.NewJSONEncoder(encoderConfig(false)), writers...)
}

func NewLoggerWithWriters(debug bool, writers ...io.Writer) *zap.Logger {
	return newLogger(debug, zapcore.NewConsoleEncoder(encoderConfig(true)), writers...)
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

func encoderConfig(color bool) zapcore.EncoderConfig {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if color {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	return encoderConfig
}

func newLogger(debug bool, encoder zapcore.Encoder, writers ...io.Writer) *zap.Logger {
	// Set log level
	level := zap.InfoLevel
	if debug {
		level = zap.DebugLevel
	}

	if len(writers) == 0 {
		writers = []io.Writer{os.Stdout}
	}

	syncers := make([]zapcore.WriteSyncer, 0, len(writers))
	for _, writer := range writers {
		syncers = append(syncers, zapcore.AddSync(writer))
	}

	core := zapcore.NewCore(
		encoder,
		zapcore.NewMultiWriteSyncer(syncers...),
		level,
	)

	return zap.New(core, zap.AddCaller())
}
