package env

import (
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Level is a console method name.
type Level string

const (
	LevelDebug Level = "debug"
	LevelLog   Level = "log"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Console receives the module's console output.
type Console interface {
	Write(level Level, args []Value)
}

// FormatArgs joins console arguments the way a console prints them: strings
// verbatim, everything else through DebugString.
func FormatArgs(args []Value) string {
	parts := make([]string, len(args))
	for i, a := range args {
		if s, ok := a.(string); ok {
			parts[i] = s
			continue
		}
		parts[i] = DebugString(a)
	}
	return strings.Join(parts, " ")
}

// ZapConsole writes console output to a zap logger.
type ZapConsole struct {
	logger *zap.Logger
}

// NewZapConsole creates a console backed by l. A nil logger uses the
// package logger.
func NewZapConsole(l *zap.Logger) *ZapConsole {
	if l == nil {
		l = Logger()
	}
	return &ZapConsole{logger: l.Named("console")}
}

// Write implements Console.
func (c *ZapConsole) Write(level Level, args []Value) {
	msg := FormatArgs(args)
	field := zap.String("method", string(level))
	switch level {
	case LevelDebug:
		c.logger.Debug(msg, field)
	case LevelWarn:
		c.logger.Warn(msg, field)
	case LevelError:
		c.logger.Error(msg, field)
	default:
		c.logger.Info(msg, field)
	}
}

// Entry is one recorded console call.
type Entry struct {
	Level   Level
	Args    []Value
	Message string
}

// RecordingConsole keeps console output in memory.
type RecordingConsole struct {
	mu      sync.Mutex
	entries []Entry
}

// NewRecordingConsole creates an empty recording console.
func NewRecordingConsole() *RecordingConsole {
	return &RecordingConsole{}
}

// Write implements Console.
func (c *RecordingConsole) Write(level Level, args []Value) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, Entry{
		Level:   level,
		Args:    args,
		Message: FormatArgs(args),
	})
}

// Entries returns a copy of the recorded entries.
func (c *RecordingConsole) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Reset discards recorded entries.
func (c *RecordingConsole) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = nil
}

// Tee fans console output out to several consoles.
func Tee(consoles ...Console) Console {
	return teeConsole(consoles)
}

type teeConsole []Console

func (t teeConsole) Write(level Level, args []Value) {
	for _, c := range t {
		c.Write(level, args)
	}
}
