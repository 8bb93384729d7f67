package model

import "time"

// NoPriority marks a task that expressed no ordering preference.
const NoPriority = -1.0

// NoSamples is the AverageExecutionTime of a task that never completed a call.
const NoSamples = -1.0

// TaskStats holds the execution statistics of a task.
type TaskStats struct {
	LastStarted  time.Time     `json:"last_started,omitempty"`
	LastDuration time.Duration `json:"last_duration_ns"`
	// AverageExecutionTime is the running mean in nanoseconds over
	// ExecutionRounds completed calls, or NoSamples.
	AverageExecutionTime float64 `json:"average_execution_time_ns"`
	ExecutionRounds      int     `json:"execution_rounds"`
}

// TaskInfo is a point-in-time view of a registered task.
type TaskInfo struct {
	Name           string         `json:"name"`
	Kind           Kind           `json:"kind"`
	Lang           string         `json:"lang,omitempty"`
	Compiled       bool           `json:"compiled"`
	Module         bool           `json:"module"`
	Sandboxed      bool           `json:"sandboxed"`
	Remote         bool           `json:"remote"`
	Permission     Permission     `json:"permission"`
	Priority       float64        `json:"priority"`
	DefaultContext map[string]any `json:"default_context,omitempty"`
	Stats          TaskStats      `json:"stats"`
}

// InvokeRequest is the body of an invocation over the HTTP API.
type InvokeRequest struct {
	Args    []any          `json:"args"`
	Context map[string]any `json:"context,omitempty"`
}

// InvokeResult carries the callback arguments of a completed invocation.
type InvokeResult struct {
	Error   string `json:"error,omitempty"`
	Results []any  `json:"results"`
}

// RegisterRequest describes a source task registered over the HTTP API.
type RegisterRequest struct {
	Name       string         `json:"name"`
	Kind       Kind           `json:"kind,omitempty"`
	Lang       string         `json:"lang,omitempty"`
	Source     string         `json:"source"`
	Permission *Permission    `json:"permission,omitempty"`
	Module     *bool          `json:"module,omitempty"`
	Priority   *float64       `json:"priority,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
}

// UpdateRequest changes the settings of a registered task. Nil fields are left alone.
type UpdateRequest struct {
	Permission *Permission    `json:"permission,omitempty"`
	Module     *bool          `json:"module,omitempty"`
	Sandboxed  *bool          `json:"sandboxed,omitempty"`
	Priority   *float64       `json:"priority,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
}

// EngineInfo describes the engine's tunables and load.
type EngineInfo struct {
	Concurrency       int    `json:"concurrency"`
	Timeout           string `json:"timeout"`
	Reclaim           bool   `json:"reclaim"`
	Strict            bool   `json:"strict"`
	OptimizationLevel int    `json:"optimization_level"`
	OptimizationFlags uint   `json:"optimization_flags"`
	Backlog           int    `json:"backlog"`
	InFlight          int    `json:"in_flight"`
	Tasks             int    `json:"tasks"`
}

// EngineUpdate changes engine tunables. Nil fields are left alone.
type EngineUpdate struct {
	Concurrency       *int    `json:"concurrency,omitempty"`
	Timeout           *string `json:"timeout,omitempty"`
	OptimizationLevel *int    `json:"optimization_level,omitempty"`
	OptimizationFlags *uint   `json:"optimization_flags,omitempty"`
}
