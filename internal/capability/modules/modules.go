// Package modules provides the Go-backed modules a task can load through
// its capability loader.
package modules

import (
	"log/slog"
	"net/http"
	"sort"
	"time"
)

// Table maps module names to module objects.
type Table map[string]any

// Names returns the module names in sorted order.
func (t Table) Names() []string {
	names := make([]string, 0, len(t))
	for n := range t {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Builtin returns the default module table. The "fs" and "child_process"
// modules reach the host and are only resolvable by unrestricted loaders.
func Builtin(logger *slog.Logger) Table {
	client := &http.Client{Timeout: 30 * time.Second}
	return Table{
		"path":           Path{},
		"os":             OS{},
		"util":           Util{},
		"url":            URL{},
		"zlib":           Zlib{},
		"http":           &HTTP{client: client},
		"https":          &HTTP{client: client, secure: true},
		"events":         Events{},
		"stream":         Stream{},
		"string_decoder": StringDecoders{},
		"fs":             FS{},
		"child_process":  &ChildProcess{logger: logger.With("component", "child-process")},
	}
}
