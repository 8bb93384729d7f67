package remote

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/me/supertask/internal/capability"
	"github.com/me/supertask/internal/config"
	"github.com/me/supertask/internal/engine"
	"github.com/me/supertask/internal/server"
	"github.com/me/supertask/internal/task"
	"github.com/me/supertask/pkg/model"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	e, err := engine.New(config.DefaultEngineConfig(), discard())
	require.NoError(t, err)
	t.Cleanup(e.Stop)
	return e
}

// peer starts a server over a fresh engine with a few tasks registered.
func peer(t *testing.T) *httptest.Server {
	t.Helper()
	e := newEngine(t)
	_, err := e.RegisterLocal("add", func(_ capability.Context, args []any, done task.Callback) {
		sum := 0.0
		for _, a := range args {
			sum += a.(float64)
		}
		done(nil, sum)
	})
	require.NoError(t, err)
	_, err = e.RegisterLocal("region", func(ctx capability.Context, _ []any, done task.Callback) {
		_, hasDir := ctx[capability.KeyDirname]
		done(nil, ctx["region"], hasDir)
	})
	require.NoError(t, err)
	_, err = e.RegisterLocal("fail", func(_ capability.Context, _ []any, done task.Callback) {
		done(errors.New("disk full"), "partial")
	})
	require.NoError(t, err)

	ts := httptest.NewServer(server.New(config.DefaultServerConfig(), e, discard()))
	t.Cleanup(ts.Close)
	return ts
}

type outcome struct {
	err     error
	results []any
}

func call(t *testing.T, e *engine.Engine, name string, ctx capability.Context, args ...any) outcome {
	t.Helper()
	ch := make(chan outcome, 1)
	require.NoError(t, e.Apply(name, ctx, args, func(err error, results ...any) {
		ch <- outcome{err, results}
	}))
	select {
	case o := <-ch:
		return o
	case <-time.After(10 * time.Second):
		t.Fatal("callback never called")
	}
	return outcome{}
}

func TestClient_Invoke(t *testing.T) {
	ts := peer(t)
	c := NewClient(ts.URL+"/", discard())
	assert.Equal(t, ts.URL, c.BaseURL())

	res, err := c.Invoke(context.Background(), "add", []any{1, 2.5}, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Error)
	assert.Equal(t, []any{3.5}, res.Results)

	_, err = c.Invoke(context.Background(), "missing", nil, nil)
	var apiErr *model.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, model.ErrNotFound, apiErr.Code)
}

func TestHandler_SharedTaskRoundTrip(t *testing.T) {
	ts := peer(t)
	c := NewClient(ts.URL, discard(), WithTimeout(5*time.Second))
	local := newEngine(t)

	for _, name := range []string{"add", "region", "fail"} {
		_, err := local.RegisterShared(name, nil, c.Handler())
		require.NoError(t, err)
	}

	o := call(t, local, "add", nil, 2, 3)
	require.NoError(t, o.err)
	assert.Equal(t, []any{5.0}, o.results)

	o = call(t, local, "region", capability.Context{"region": "eu", "secret": func() {}})
	require.NoError(t, o.err)
	assert.Equal(t, []any{"eu", true}, o.results, "peer sets its own __dirname")

	o = call(t, local, "fail", nil)
	require.EqualError(t, o.err, "disk full")
	assert.Equal(t, []any{"partial"}, o.results)

	info := local.Get("add").Info()
	assert.Equal(t, 1, info.Stats.ExecutionRounds)
}

func TestHandler_UnreachablePeer(t *testing.T) {
	ts := httptest.NewServer(nil)
	url := ts.URL
	ts.Close()

	local := newEngine(t)
	_, err := local.RegisterShared("gone", nil, NewClient(url, discard(), WithTimeout(time.Second)).Handler())
	require.NoError(t, err)

	o := call(t, local, "gone", nil)
	require.Error(t, o.err)
	assert.Contains(t, o.err.Error(), "invoke gone")
}

func TestHandler_MarkRemote(t *testing.T) {
	ts := peer(t)
	local := newEngine(t)
	h, err := local.RegisterLocal("add", func(_ capability.Context, _ []any, done task.Callback) {
		done(nil, "local")
	})
	require.NoError(t, err)

	assert.Equal(t, []any{"local"}, call(t, local, "add", nil, 1).results)

	h.MarkRemote(NewClient(ts.URL, discard()).Handler())
	assert.Equal(t, model.KindShared, h.Kind())
	assert.Equal(t, []any{1.0}, call(t, local, "add", nil, 1).results)
}
