// Package log provides the module-scoped structured logger used across
// powsim: callers ask for a logger named after their subsystem and log
// key/value pairs against it.
package log

import (
	"os"
	"sync"

	colorable "github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Module names used to scope loggers to a subsystem.
const (
	ModuleChain    = "chain"
	ModuleMempool  = "mempool"
	ModuleNode     = "node"
	ModuleNetwork  = "network"
	ModuleWorld    = "world"
	ModuleAdmin    = "admin"
	ModuleMetrics  = "metrics"
	ModuleDemo     = "demo"
	ModuleCmd      = "cmd"
)

var (
	baseOnce sync.Once
	base     *zap.Logger
)

func root() *zap.Logger {
	baseOnce.Do(func() {
		enc := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
			TimeKey:        "t",
			LevelKey:       "lvl",
			NameKey:        "module",
			MessageKey:     "msg",
			CallerKey:      "",
			StacktraceKey:  "",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
		})
		var w zapcore.WriteSyncer
		if isatty.IsTerminal(os.Stderr.Fd()) {
			w = zapcore.AddSync(colorable.NewColorableStderr())
		} else {
			w = zapcore.AddSync(os.Stderr)
		}
		core := zapcore.NewCore(enc, w, zapcore.DebugLevel)
		base = zap.New(core)
	})
	return base
}

// Logger is a module-scoped structured logger.
type Logger struct {
	s *zap.SugaredLogger
}

// NewModuleLogger returns a Logger scoped to the given subsystem name.
func NewModuleLogger(module string) *Logger {
	return &Logger{s: root().Named(module).Sugar()}
}

func (l *Logger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l *Logger) Info(msg string, kv ...interface{})  { l.s.Infow(msg, kv...) }
func (l *Logger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
func (l *Logger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }

// Crit logs at fatal severity and terminates the process. Reserved for
// internal invariant violations: a mined block rejected by its own
// chain indicates a bug, not a recoverable condition.
func (l *Logger) Crit(msg string, kv ...interface{}) { l.s.Fatalw(msg, kv...) }
