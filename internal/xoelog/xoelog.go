// Package xoelog provides the structured logger used across the bridge:
// the FSM, the device pipelines, the NBD session, and the management
// interface all log through here rather than through fmt or the
// top-level "log" package.
package xoelog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// Level mirrors slog's levels without exposing slog to callers that only
// need Debug/Info/Warn/Error.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// Config controls the process-wide logger.
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stdout, stderr, or a file path
}

var (
	currentLevel  atomic.Int32
	currentFormat atomic.Value // "text" or "json"

	mu       sync.RWMutex
	handler  slog.Handler
	slogger  *slog.Logger
	output   io.Writer = os.Stdout
	useColor bool
)

func init() {
	currentLevel.Store(int32(LevelInfo))
	currentFormat.Store("text")
	if f, ok := output.(*os.File); ok {
		useColor = isTerminal(f.Fd())
	}
	reconfigure()
}

func toSlogLevel(l Level) slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func reconfigure() {
	mu.Lock()
	defer mu.Unlock()

	levelVar := new(slog.LevelVar)
	levelVar.Set(toSlogLevel(Level(currentLevel.Load())))
	opts := &slog.HandlerOptions{Level: levelVar}

	format, _ := currentFormat.Load().(string)
	if format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = newTextHandler(output, opts, useColor)
	}
	slogger = slog.New(handler)
}

// Init applies cfg to the process-wide logger. Called once at startup from
// cmd/xoebridge; safe to call again in tests.
func Init(cfg Config) error {
	if cfg.Output != "" {
		mu.Lock()
		var w io.Writer
		var color bool
		switch strings.ToLower(cfg.Output) {
		case "stdout", "":
			w, color = os.Stdout, isTerminal(os.Stdout.Fd())
		case "stderr":
			w, color = os.Stderr, isTerminal(os.Stderr.Fd())
		default:
			f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				mu.Unlock()
				return fmt.Errorf("open log file %q: %w", cfg.Output, err)
			}
			w, color = f, false
		}
		output, useColor = w, color
		mu.Unlock()
	}
	if cfg.Level != "" {
		SetLevel(cfg.Level)
	}
	if cfg.Format != "" {
		SetFormat(cfg.Format)
	}
	return nil
}

// InitWithWriter points the logger at w, bypassing file/std stream resolution.
// Used by tests that want to capture output.
func InitWithWriter(w io.Writer, level, format string) {
	mu.Lock()
	output, useColor = w, false
	mu.Unlock()
	if level != "" {
		SetLevel(level)
	}
	if format != "" {
		SetFormat(format)
	}
}

// SetLevel sets the minimum level; unrecognized values are ignored.
func SetLevel(level string) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		currentLevel.Store(int32(LevelDebug))
	case "INFO":
		currentLevel.Store(int32(LevelInfo))
	case "WARN":
		currentLevel.Store(int32(LevelWarn))
	case "ERROR":
		currentLevel.Store(int32(LevelError))
	default:
		return
	}
	reconfigure()
}

// SetFormat switches between "text" and "json"; unrecognized values are ignored.
func SetFormat(format string) {
	format = strings.ToLower(format)
	if format != "text" && format != "json" {
		return
	}
	currentFormat.Store(format)
	reconfigure()
}

func current() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return slogger
}

func Debug(msg string, args ...any) {
	if LevelDebug < Level(currentLevel.Load()) {
		return
	}
	current().Debug(msg, args...)
}

func Info(msg string, args ...any) {
	if LevelInfo < Level(currentLevel.Load()) {
		return
	}
	current().Info(msg, args...)
}

func Warn(msg string, args ...any) {
	if LevelWarn < Level(currentLevel.Load()) {
		return
	}
	current().Warn(msg, args...)
}

func Error(msg string, args ...any) {
	current().Error(msg, args...)
}

// contextKey scopes values stashed on a context.Context to this package.
type contextKey struct{}

var sessionKey = contextKey{}

// SessionFields is the handful of attributes worth stamping on every log
// line for the lifetime of one connection: a serial bridge run, an NBD
// session, or a management session.
type SessionFields struct {
	SessionID string
	ClientIP  string
	Component string // "serial", "usb", "nbd", "mgmt", "server"
}

func (f SessionFields) args() []any {
	return []any{
		"session_id", f.SessionID,
		"client_ip", f.ClientIP,
		"component", f.Component,
	}
}

// WithSession returns a context carrying f; retrieve it with DebugCtx etc.
func WithSession(ctx context.Context, f SessionFields) context.Context {
	return context.WithValue(ctx, sessionKey, f)
}

func fromContext(ctx context.Context) (SessionFields, bool) {
	f, ok := ctx.Value(sessionKey).(SessionFields)
	return f, ok
}

func DebugCtx(ctx context.Context, msg string, args ...any) {
	if LevelDebug < Level(currentLevel.Load()) {
		return
	}
	current().Debug(msg, withSessionArgs(ctx, args)...)
}

func InfoCtx(ctx context.Context, msg string, args ...any) {
	if LevelInfo < Level(currentLevel.Load()) {
		return
	}
	current().Info(msg, withSessionArgs(ctx, args)...)
}

func WarnCtx(ctx context.Context, msg string, args ...any) {
	if LevelWarn < Level(currentLevel.Load()) {
		return
	}
	current().Warn(msg, withSessionArgs(ctx, args)...)
}

func ErrorCtx(ctx context.Context, msg string, args ...any) {
	current().Error(msg, withSessionArgs(ctx, args)...)
}

func withSessionArgs(ctx context.Context, args []any) []any {
	f, ok := fromContext(ctx)
	if !ok {
		return args
	}
	return append(append([]any{}, f.args()...), args...)
}
