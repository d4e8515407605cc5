package main

import (
	"context"
	"io"
	"log/slog"
	"os"

	glog "github.com/goliatone/go-logger/glog"
)

// slogLogger writes glog calls through a slog handler.
type slogLogger struct {
	base *slog.Logger
	ctx  context.Context
}

func newLogger(w io.Writer, debug bool) *slogLogger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return &slogLogger{
		base: slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})),
		ctx:  context.Background(),
	}
}

func (l *slogLogger) Trace(msg string, args ...any) {
	l.base.Log(l.ctx, slog.LevelDebug-4, msg, args...)
}

func (l *slogLogger) Debug(msg string, args ...any) { l.base.DebugContext(l.ctx, msg, args...) }
func (l *slogLogger) Info(msg string, args ...any)  { l.base.InfoContext(l.ctx, msg, args...) }
func (l *slogLogger) Warn(msg string, args ...any)  { l.base.WarnContext(l.ctx, msg, args...) }
func (l *slogLogger) Error(msg string, args ...any) { l.base.ErrorContext(l.ctx, msg, args...) }

func (l *slogLogger) Fatal(msg string, args ...any) {
	l.base.ErrorContext(l.ctx, msg, args...)
	os.Exit(1)
}

func (l *slogLogger) WithContext(ctx context.Context) glog.Logger {
	if ctx == nil {
		return l
	}
	return &slogLogger{base: l.base, ctx: ctx}
}

type slogProvider struct {
	root *slogLogger
}

func (p slogProvider) GetLogger(name string) glog.Logger {
	return &slogLogger{base: p.root.base.With("logger", name), ctx: p.root.ctx}
}

var (
	_ glog.Logger         = (*slogLogger)(nil)
	_ glog.LoggerProvider = slogProvider{}
)
