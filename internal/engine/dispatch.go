package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/me/supertask/internal/optimizer"
	"github.com/me/supertask/pkg/model"
)

// drainTick runs on the loop goroutine. It reorders the backlog when the
// optimization level asks for it, dispatches one batch and posts a
// continuation tick behind any pending loop work if jobs remain.
func (e *Engine) drainTick() {
	e.mu.Lock()
	e.busy = false
	n := min(len(e.backlog), e.freeSlotsLocked())
	reordered := e.optimizeLocked(n)

	batch := make([]*job, n)
	copy(batch, e.backlog[:n])
	clear(e.backlog[:n])
	e.backlog = e.backlog[n:]
	e.inFlight += n
	if e.reclaim {
		e.occupied += n
	}
	remaining := len(e.backlog)
	timeout := e.timeout
	schedule := e.scheduleLocked()
	e.mu.Unlock()

	for _, j := range batch {
		e.dispatch(j, timeout)
	}
	if schedule {
		e.post(e.drainTick)
	}
	if n > 0 {
		e.logger.Debug("tick", "dispatched", n, "remaining", remaining, "reordered", reordered)
	}
	if e.observer != nil {
		e.observer(TickReport{Dispatched: n, Remaining: remaining, Reordered: reordered})
	}

	e.mu.Lock()
	e.notifyIdleLocked()
	e.mu.Unlock()
}

// optimizeLocked reorders the backlog in place according to the level.
func (e *Engine) optimizeLocked(batch int) bool {
	switch {
	case e.level <= optimizer.LevelO0, len(e.backlog) < 2:
		return false
	case e.level == optimizer.LevelO1 && len(e.backlog) <= batch:
		return false
	}
	samples := make([]optimizer.Sample, len(e.backlog))
	for i, j := range e.backlog {
		st := j.task.Stats()
		samples[i] = optimizer.Sample{
			Index:                i,
			AverageExecutionTime: st.AverageExecutionTime,
			ExecutionRounds:      float64(st.ExecutionRounds),
			Priority:             j.task.Priority(),
		}
	}
	sorted := e.optimizer.Optimize(samples, e.level, e.flags)
	reordered := make([]*job, len(sorted))
	for i, s := range sorted {
		reordered[i] = e.backlog[s.Index]
	}
	e.backlog = reordered
	return true
}

// dispatch starts one job on the loop goroutine.
func (e *Engine) dispatch(j *job, timeout time.Duration) {
	tr := &tracker{e: e, j: j}
	tr.started = j.task.Begin()
	if e.reclaim {
		tr.slot = &slot{e: e, jobID: j.id}
		tr.slot.timer = time.AfterFunc(timeout, tr.slot.expire)
	}

	run := func() { j.fn(j.ctx, j.args, tr.done) }
	if j.task.Kind() == model.KindShared {
		if h := j.task.Handler(); h != nil {
			name := j.task.Name()
			run = func() { h(name, j.ctx, j.args, tr.done) }
		}
	}
	if !j.task.Sandboxed() {
		run()
		return
	}
	defer func() {
		if p := recover(); p != nil {
			err := &model.RuntimeError{Task: j.task.Name(), Cause: panicError(p)}
			e.logger.Warn("task failed", "task", j.task.Name(), "job_id", j.id, "error", err.Cause)
			tr.done(err)
		}
	}()
	run()
}

func panicError(p any) error {
	if err, ok := p.(error); ok {
		return err
	}
	return fmt.Errorf("%v", p)
}

// tracker is the single-use completion latch of a dispatched job.
type tracker struct {
	e       *Engine
	j       *job
	started time.Time
	slot    *slot
	once    sync.Once
}

func (t *tracker) done(err error, results ...any) {
	first := false
	t.once.Do(func() { first = true })
	if !first {
		t.e.logger.Warn("callback called more than once", "task", t.j.task.Name(), "job_id", t.j.id)
		return
	}

	d := t.j.task.Complete(t.started)
	if t.slot != nil {
		t.slot.timer.Stop()
		t.slot.release()
	}
	t.e.logger.Debug("job completed", "task", t.j.task.Name(), "job_id", t.j.id, "duration", d, "error", err)

	t.e.mu.Lock()
	t.e.inFlight--
	t.e.notifyIdleLocked()
	t.e.mu.Unlock()

	t.j.cb(err, results...)
}

// slot is a concurrency slot held by a job in reclaim mode. It is freed by
// whichever of completion and timeout comes first.
type slot struct {
	e     *Engine
	jobID string
	timer *time.Timer
	once  sync.Once
}

func (s *slot) expire() {
	s.e.logger.Debug("slot reclaimed", "job_id", s.jobID)
	s.release()
}

func (s *slot) release() {
	s.once.Do(func() {
		s.e.mu.Lock()
		s.e.occupied--
		schedule := s.e.scheduleLocked()
		s.e.mu.Unlock()
		if schedule {
			s.e.post(s.e.drainTick)
		}
	})
}
