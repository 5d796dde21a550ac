package common

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig selects level and destination of a server log.
type LogConfig struct {
	Level      string
	File       string // empty means stderr
	MaxSize    int    // megabytes
	MaxBackups int
	MaxAge     int // days
}

// NewLogger builds the sugared logger handed down to every component of a process.
func NewLogger(cfg LogConfig) (*zap.SugaredLogger, error) {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(cfg.Level))); err != nil {
			return nil, err
		}
	}

	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeTime = zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05.000000")
	enc.EncodeLevel = zapcore.CapitalLevelEncoder

	var ws zapcore.WriteSyncer
	if cfg.File == "" {
		ws = zapcore.Lock(os.Stderr)
	} else {
		ws = zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    orDefault(cfg.MaxSize, 64),
			MaxBackups: orDefault(cfg.MaxBackups, 4),
			MaxAge:     orDefault(cfg.MaxAge, 7),
		})
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), ws, level)
	return zap.New(core, zap.AddCaller()).Sugar(), nil
}

// MustNewLogger panics where NewLogger fails, for process entry points.
func MustNewLogger(cfg LogConfig) *zap.SugaredLogger {
	lg, err := NewLogger(cfg)
	if err != nil {
		panic(err)
	}
	return lg
}

// OrNop returns lg, or a logger that drops everything when lg is nil.
func OrNop(lg *zap.SugaredLogger) *zap.SugaredLogger {
	if lg == nil {
		return zap.NewNop().Sugar()
	}
	return lg
}

func orDefault(v, d int) int {
	if v <= 0 {
		return d
	}
	return v
}
