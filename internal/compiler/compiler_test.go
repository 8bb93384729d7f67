package compiler

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/me/supertask/internal/capability"
	"github.com/me/supertask/internal/task"
	"github.com/me/supertask/pkg/model"
)

type stubCompiler struct {
	calls int
	err   error
}

func (s *stubCompiler) Compile(src task.Source, _ capability.Context, _ Options) (task.Func, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return func(_ capability.Context, _ []any, done task.Callback) { done(nil, src.Text) }, nil
}

func testRegistry() *Registry {
	return NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegistry_DispatchesByLang(t *testing.T) {
	r := testRegistry()
	js := &stubCompiler{}
	r.Register(js, "js", "javascript")

	assert.True(t, r.Supports("JavaScript"))
	assert.Equal(t, []string{"javascript", "js"}, r.Languages())

	fn, err := r.Compile(task.Source{Lang: "JS", Text: "body"}, nil, Options{Name: "t"})
	require.NoError(t, err)
	var got []any
	fn(nil, nil, func(err error, results ...any) { got = results })
	assert.Equal(t, []any{"body"}, got)
	assert.Equal(t, 1, js.calls)
}

func TestRegistry_UnknownLang(t *testing.T) {
	r := testRegistry()
	_, err := r.Compile(task.Source{Lang: "cobol"}, nil, Options{Name: "old"})

	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "old", cerr.Task)
	assert.ErrorIs(t, err, model.ErrCompile)
}

func TestError_WrapsCause(t *testing.T) {
	cause := errors.New("unexpected token")
	err := error(&Error{Task: "t", Lang: "js", Reason: "syntax error", Cause: cause})
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, model.ErrCompile)
	assert.Equal(t, "compile t (js): syntax error: unexpected token", err.Error())
}
