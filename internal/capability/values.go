package capability

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"
)

// Capability keys injected by Extend.
const (
	KeyRequire        = "require"
	KeySetTimeout     = "setTimeout"
	KeySetInterval    = "setInterval"
	KeySetImmediate   = "setImmediate"
	KeyClearTimeout   = "clearTimeout"
	KeyClearInterval  = "clearInterval"
	KeyClearImmediate = "clearImmediate"
	KeyBuffer         = "Buffer"
	KeyDirname        = "__dirname"
	KeyFilename       = "__filename"
	KeyConsole        = "console"
	KeyProcess        = "process"
	// KeyRecurse re-invokes the running task. Granted from PermRestricted up.
	KeyRecurse = "recurse"
)

// Loader resolves a module by name, returning nil when the name is not
// allowed or unknown.
type Loader func(name string) any

// SetTimeoutFunc schedules fn after d. Also used for setInterval.
type SetTimeoutFunc func(fn func(), d time.Duration) Timer

// SetImmediateFunc schedules fn as soon as pending work allows.
type SetImmediateFunc func(fn func()) Timer

// ClearFunc cancels a timer. Nil timers are ignored.
type ClearFunc func(t Timer)

// RecurseFunc re-invokes the current task with args and delivers the
// outcome to cb.
type RecurseFunc func(args []any, cb func(err error, results ...any))

// Console writes task output to the structured logger.
type Console struct {
	logger *slog.Logger
}

// NewConsole returns a Console logging through logger.
func NewConsole(logger *slog.Logger) *Console {
	return &Console{logger: logger}
}

func (c *Console) Log(args ...any) { c.logger.Info(sprint(args)) }
func (c *Console) Info(args ...any) { c.logger.Info(sprint(args)) }
func (c *Console) Debug(args ...any) { c.logger.Debug(sprint(args)) }
func (c *Console) Warn(args ...any) { c.logger.Warn(sprint(args)) }
func (c *Console) Error(args ...any) { c.logger.Error(sprint(args)) }

func sprint(args []any) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = fmt.Sprint(a)
	}
	return strings.Join(parts, " ")
}

// Buffer converts between strings and bytes.
type Buffer struct{}

// From encodes s into bytes; enc is "utf8" (default), "hex" or "base64".
func (Buffer) From(s string, enc string) ([]byte, error) {
	switch strings.ToLower(enc) {
	case "", "utf8", "utf-8":
		return []byte(s), nil
	case "hex":
		return hex.DecodeString(s)
	case "base64":
		return base64.StdEncoding.DecodeString(s)
	}
	return nil, fmt.Errorf("unknown encoding %q", enc)
}

// ToString decodes b; enc is "utf8" (default), "hex" or "base64".
func (Buffer) ToString(b []byte, enc string) (string, error) {
	switch strings.ToLower(enc) {
	case "", "utf8", "utf-8":
		return string(b), nil
	case "hex":
		return hex.EncodeToString(b), nil
	case "base64":
		return base64.StdEncoding.EncodeToString(b), nil
	}
	return "", fmt.Errorf("unknown encoding %q", enc)
}

// ByteLength returns the UTF-8 length of s.
func (Buffer) ByteLength(s string) int { return len(s) }

// Concat joins byte slices.
func (Buffer) Concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Process exposes the host process. Granted only to PermUnrestricted.
type Process struct {
	Env      map[string]string
	Pid      int
	Platform string
	Arch     string
	Argv     []string
	started  time.Time
}

// NewProcess snapshots the current process.
func NewProcess() *Process {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return &Process{
		Env:      env,
		Pid:      os.Getpid(),
		Platform: runtime.GOOS,
		Arch:     runtime.GOARCH,
		Argv:     os.Args,
		started:  time.Now(),
	}
}

// Hrtime returns [seconds, nanoseconds] since the process snapshot was taken.
func (p *Process) Hrtime() []int64 {
	d := time.Since(p.started)
	return []int64{int64(d / time.Second), int64(d % time.Second)}
}

// Cwd returns the working directory, or "" when it cannot be determined.
func (p *Process) Cwd() string {
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return wd
}

// Uptime returns seconds since the snapshot.
func (p *Process) Uptime() float64 {
	return time.Since(p.started).Seconds()
}
