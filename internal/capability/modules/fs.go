package modules

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"time"
)

// FS reads and writes host files.
type FS struct{}

func (FS) ReadFileSync(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (FS) WriteFileSync(path string, data string) error {
	return os.WriteFile(path, []byte(data), 0o644)
}

func (FS) ExistsSync(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (FS) ReaddirSync(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names, nil
}

// ChildProcess runs host commands.
type ChildProcess struct {
	logger *slog.Logger
}

// ExecSync runs name with args and returns its combined output. Commands are
// killed after one minute.
func (c *ChildProcess) ExecSync(name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	c.logger.Debug("exec", "command", name, "args", args)
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	return string(out), err
}
