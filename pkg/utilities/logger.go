package utilities

import (
	"fmt"
	"os"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logger settings. Fields are read from LOG_* environment variables.
type Config struct {
	Level  string        `env:"LOG_LEVEL"`
	Dev    bool          `env:"LOG_DEV"`
	File   string        `env:"LOG_FILE"`
	MaxAge time.Duration `env:"LOG_MAX_AGE" envDefault:"168h"`
}

func levelFromString(l string) zapcore.Level {
	switch l {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Init initializes and returns a *zap.Logger. When cfg.File is set, output is
// also written to a daily rotated file next to a symlink named cfg.File.
func Init(cfg Config) (*zap.Logger, error) {
	lvl := cfg.Level
	if lvl == "" {
		if cfg.Dev {
			lvl = "debug"
		} else {
			lvl = "info"
		}
	}

	sink, err := writeSyncer(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Dev {
		encoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
		core := zapcore.NewCore(encoder, sink, levelFromString(lvl))
		return zap.New(core, zap.Development(), zap.AddCaller(), zap.AddStacktrace(zapcore.WarnLevel)), nil
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), sink, levelFromString(lvl))
	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	return zap.New(core, opts...), nil
}

func writeSyncer(cfg Config) (zapcore.WriteSyncer, error) {
	stdout := zapcore.AddSync(os.Stdout)
	if cfg.File == "" {
		return stdout, nil
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 7 * 24 * time.Hour
	}
	rl, err := rotatelogs.New(
		cfg.File+".%Y%m%d",
		rotatelogs.WithLinkName(cfg.File),
		rotatelogs.WithMaxAge(maxAge),
		rotatelogs.WithRotationTime(24*time.Hour),
	)
	if err != nil {
		return nil, fmt.Errorf("rotate logs: %w", err)
	}
	return zapcore.NewMultiWriteSyncer(stdout, zapcore.AddSync(rl)), nil
}
