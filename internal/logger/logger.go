package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log is the process-wide logger. It is a no-op until Init is called so
// packages and tests can log unconditionally.
var Log = zap.NewNop()

// Init builds a JSON logger at the given level. When file is not empty the
// output is also written to a size-rotated log file.
func Init(level, file string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encCfg)

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), lvl),
	}
	if file != "" {
		rotating := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(rotating), lvl))
	}

	Log = zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	return nil
}

// Sync flushes buffered entries; call it before exit.
func Sync() {
	_ = Log.Sync()
}

// Error is a shorthand for zap.Error.
func Error(err error) zap.Field {
	return zap.Error(err)
}

// String is a shorthand for zap.String.
func String(key, value string) zap.Field {
	return zap.String(key, value)
}

// Int64 is a shorthand for zap.Int64.
func Int64(key string, value int64) zap.Field {
	return zap.Int64(key, value)
}

// Uint is a shorthand for zap.Uint.
func Uint(key string, value uint) zap.Field {
	return zap.Uint(key, value)
}
