package modules

import (
	"os"
	"path/filepath"
	"runtime"
)

// Path mirrors the usual path helpers on top of path/filepath.
type Path struct{}

func (Path) Sep() string { return string(filepath.Separator) }
func (Path) Join(parts ...string) string { return filepath.Join(parts...) }
func (Path) Basename(p string) string { return filepath.Base(p) }
func (Path) Dirname(p string) string { return filepath.Dir(p) }
func (Path) Extname(p string) string { return filepath.Ext(p) }
func (Path) Normalize(p string) string { return filepath.Clean(p) }
func (Path) IsAbsolute(p string) bool { return filepath.IsAbs(p) }

// Relative returns the path of to relative to from.
func (Path) Relative(from, to string) (string, error) {
	return filepath.Rel(from, to)
}

// Resolve joins parts and makes the result absolute against the working directory.
func (Path) Resolve(parts ...string) (string, error) {
	return filepath.Abs(filepath.Join(parts...))
}

// OS reports host identity. It exposes no filesystem access.
type OS struct{}

func (OS) Platform() string { return runtime.GOOS }
func (OS) Arch() string { return runtime.GOARCH }
func (OS) Cpus() int { return runtime.NumCPU() }
func (OS) Tmpdir() string { return os.TempDir() }

func (OS) EOL() string {
	if runtime.GOOS == "windows" {
		return "\r\n"
	}
	return "\n"
}

func (OS) Hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "localhost"
	}
	return h
}
