package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/me/supertask/internal/capability"
	"github.com/me/supertask/internal/config"
	"github.com/me/supertask/internal/engine"
	"github.com/me/supertask/internal/server"
	"github.com/me/supertask/internal/task"
	"github.com/me/supertask/pkg/model"
)

const doubleJS = `module.exports = function(a, done) { done(null, a * 2) }`

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// startTestServer starts a server over a fresh engine and returns its URL.
func startTestServer(t *testing.T) string {
	t.Helper()
	eng, err := engine.New(config.DefaultEngineConfig(), discard())
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	t.Cleanup(eng.Stop)
	eng.RegisterLocal("echo", func(_ capability.Context, args []any, done task.Callback) { done(nil, args...) })
	eng.RegisterLocal("fail", func(_ capability.Context, _ []any, done task.Callback) { done(errors.New("disk full")) })

	ts := httptest.NewServer(server.New(config.DefaultServerConfig(), eng, discard()).Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	root := NewRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(append([]string{"--log-level", "error"}, args...))

	err := root.Execute()
	return buf.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseArgs(t *testing.T) {
	got := parseArgs([]string{"2", "bob", `{"a":1}`, "true", `"quoted"`})
	want := []any{2.0, "bob", map[string]any{"a": 1.0}, true, "quoted"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("parseArgs mismatch (-want +got):\n%s", diff)
	}
}

func TestParseContext(t *testing.T) {
	m, err := parseContext(`{"region":"eu"}`)
	if err != nil || m["region"] != "eu" {
		t.Errorf("parseContext = %v, %v", m, err)
	}
	if m, err := parseContext(""); err != nil || m != nil {
		t.Errorf("empty context = %v, %v; want nil, nil", m, err)
	}
	if _, err := parseContext("[1]"); err == nil {
		t.Error("array context accepted, want error")
	}
}

func TestClient_Routes(t *testing.T) {
	c := NewClient(startTestServer(t), discard())
	ctx := context.Background()

	tasks, pg, err := c.ListTasks(ctx, model.ListOptions{Limit: 1, Kind: model.KindLocal})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Name != "echo" || pg == nil || !pg.HasMore || pg.Total != 2 {
		t.Errorf("ListTasks = %v, %+v", tasks, pg)
	}

	res, err := c.InvokeTask(ctx, "echo", model.InvokeRequest{Args: []any{"hi", 2.0}}, time.Second)
	if err != nil {
		t.Fatalf("InvokeTask: %v", err)
	}
	if diff := cmp.Diff([]any{"hi", 2.0}, res.Results); diff != "" || res.Error != "" {
		t.Errorf("InvokeTask mismatch (-want +got):\n%s error=%q", diff, res.Error)
	}

	info, err := c.UpdateEngine(ctx, model.EngineUpdate{Concurrency: ptr(3)})
	if err != nil || info.Concurrency != 3 {
		t.Errorf("UpdateEngine = %+v, %v", info, err)
	}

	err = c.RemoveTask(ctx, "missing")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrNotFound {
		t.Errorf("RemoveTask(missing) err = %v, want NOT_FOUND", err)
	}
	if _, err := c.Task(ctx, "missing"); !errors.As(err, &apiErr) {
		t.Errorf("Task(missing) err = %v, want *model.APIError", err)
	}
}

func ptr[T any](v T) *T { return &v }

func TestTasksCommands(t *testing.T) {
	url := startTestServer(t)
	dir := t.TempDir()
	src := writeFile(t, dir, "double.js", doubleJS)

	out, err := runCLI(t, "--server", url, "tasks", "register", "double", "--file", src, "--permission", "restricted")
	if err != nil {
		t.Fatalf("register: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Task registered: double (js, restricted)") {
		t.Errorf("register output: %s", out)
	}

	out, err = runCLI(t, "--server", url, "tasks", "invoke", "double", "21")
	if err != nil {
		t.Fatalf("invoke: %v\n%s", err, out)
	}
	if !strings.Contains(out, "42") {
		t.Errorf("invoke output: %s", out)
	}

	out, err = runCLI(t, "--server", url, "tasks", "list")
	if err != nil {
		t.Fatalf("list: %v\n%s", err, out)
	}
	for _, want := range []string{"NAME", "double", "echo", "fail", "restricted"} {
		if !strings.Contains(out, want) {
			t.Errorf("list output missing %q: %s", want, out)
		}
	}

	out, err = runCLI(t, "--server", url, "tasks", "list", "--kind", "foreign")
	if err != nil || strings.Contains(out, "echo") {
		t.Errorf("list --kind foreign: %v\n%s", err, out)
	}

	out, err = runCLI(t, "--server", url, "tasks", "get", "double")
	if err != nil {
		t.Fatalf("get: %v\n%s", err, out)
	}
	if !strings.Contains(out, "foreign") || !strings.Contains(out, "Rounds:") {
		t.Errorf("get output: %s", out)
	}

	if _, err := runCLI(t, "--server", url, "tasks", "invoke", "fail"); err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("invoke fail err = %v, want disk full", err)
	}

	if _, err := runCLI(t, "--server", url, "tasks", "remove", "double"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := runCLI(t, "--server", url, "tasks", "get", "double"); err == nil || !strings.Contains(err.Error(), "NOT_FOUND") {
		t.Errorf("get after remove err = %v, want NOT_FOUND", err)
	}
}

func TestEngineCommands(t *testing.T) {
	url := startTestServer(t)

	out, err := runCLI(t, "--server", url, "engine")
	if err != nil {
		t.Fatalf("engine: %v\n%s", err, out)
	}
	if !strings.Contains(out, "1,000") {
		t.Errorf("engine output: %s", out)
	}

	out, err = runCLI(t, "--server", url, "engine", "set", "--concurrency", "5", "--timeout", "250ms")
	if err != nil {
		t.Fatalf("engine set: %v\n%s", err, out)
	}
	if !strings.Contains(out, "250ms") {
		t.Errorf("engine set output: %s", out)
	}

	if _, err := runCLI(t, "--server", url, "engine", "set", "--level", "9"); err == nil {
		t.Error("engine set --level 9 succeeded, want error")
	}
}

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "double.js", doubleJS)
	manifest := writeFile(t, dir, "manifest.yaml", "tasks:\n  - {name: double, file: double.js}\n")

	out, err := runCLI(t, "run", "--manifest", manifest, "double", "4")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	if !strings.Contains(out, "8") {
		t.Errorf("run output: %s", out)
	}

	if _, err := runCLI(t, "run", "--manifest", manifest, "missing"); err == nil {
		t.Error("run missing task succeeded, want error")
	}
	if _, err := runCLI(t, "run", "double"); err == nil {
		t.Error("run without manifest succeeded, want error")
	}
}

func TestRunCommand_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "double.js", doubleJS)
	writeFile(t, dir, "manifest.yaml", "tasks:\n  - {name: double, file: double.js}\n")
	conf := writeFile(t, dir, "supertask.toml", "manifest = \"manifest.yaml\"\n\n[engine]\nconcurrency = 2\n")

	out, err := runCLI(t, "--config", conf, "run", "double", "5")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	if !strings.Contains(out, "10") {
		t.Errorf("run output: %s", out)
	}
}

func TestServe(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "double.js", doubleJS)

	c := config.Default()
	c.Server.Addr = "127.0.0.1:0"
	c.Manifest = writeFile(t, dir, "manifest.yaml", "tasks:\n  - {name: double, file: double.js}\n")
	c.Watch = true

	ctx, cancel := context.WithCancel(context.Background())
	addrCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() { errCh <- serve(ctx, c, discard(), func(addr string) { addrCh <- addr }) }()

	var addr string
	select {
	case addr = <-addrCh:
	case err := <-errCh:
		t.Fatalf("serve: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server never became ready")
	}

	resp, err := http.Get("http://" + addr + "/api/v1/tasks/double")
	if err != nil {
		t.Fatalf("GET task: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET task status = %d, want 200", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("serve returned %v, want nil", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}
}
