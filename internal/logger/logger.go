// Package logger holds the process zap logger and request-scoped loggers.
//
// Init is called once from main. Handlers and services use From(ctx), which
// falls back to the process logger when no scoped logger was attached.
package logger

import (
	"context"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	// Env is "dev" (colored console) or "prod" (JSON).
	Env         string
	Level       string
	ServiceName string
}

var instance atomic.Pointer[zap.Logger]

// Init builds the process logger, replacing any default installed by an
// earlier L call.
func Init(cfg Config) {
	instance.Store(build(cfg))
}

// L returns the process logger, installing a dev logger at info level when
// Init has not run yet.
func L() *zap.Logger {
	if l := instance.Load(); l != nil {
		return l
	}
	instance.CompareAndSwap(nil, build(Config{Env: "dev", Level: "info"}))
	return instance.Load()
}

func Named(name string) *zap.Logger {
	return L().Named(name)
}

func Sync() error {
	l := instance.Load()
	if l == nil {
		return nil
	}
	return l.Sync()
}

type ctxKey struct{}

func ToContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

func From(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return L()
	}
	if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return L()
}

func build(cfg Config) *zap.Logger {
	level := parseLevel(cfg.Level)

	var zcfg zap.Config
	opts := []zap.Option{zap.AddCaller()}
	if strings.EqualFold(cfg.Env, "prod") {
		zcfg = zap.NewProductionConfig()
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	} else {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zcfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		zcfg.DisableStacktrace = true
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	l, err := zcfg.Build(opts...)
	if err != nil {
		l, _ = zap.NewProduction()
	}
	if cfg.ServiceName != "" {
		l = l.With(zap.String("service", cfg.ServiceName))
	}
	return l
}

func parseLevel(lvl string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
