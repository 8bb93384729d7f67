// Package optimizer reorders pending jobs by a normalized, weighted composite
// score computed from their tasks' execution statistics.
package optimizer

import (
	"fmt"

	"github.com/me/supertask/internal/hybridsort"
	"github.com/me/supertask/pkg/model"
)

// Level selects how aggressively the engine reorders its backlog.
type Level int

const (
	// LevelO0 disables optimization: no scoring, no sort.
	LevelO0 Level = iota
	// LevelO1 reorders only when the backlog exceeds one dispatch batch.
	LevelO1
	// LevelO2 reorders before every batch.
	LevelO2
	// LevelO3 is LevelO2 with the priority property added to the score.
	LevelO3
)

// Flag is a bit mask adjusting scoring direction and sort strategy.
type Flag uint

const (
	// FlagAETDesc orders by average execution time descending.
	FlagAETDesc Flag = 1 << iota
	// FlagRoundsDesc orders by execution rounds descending.
	FlagRoundsDesc
	// FlagPriorityDesc orders by priority descending.
	FlagPriorityDesc
	// FlagSortBucketOnly forces the partitioning sort.
	FlagSortBucketOnly
	// FlagSortNativeOnly forces the native sort.
	FlagSortNativeOnly
)

// Field names a numeric property of a Sample.
type Field int

const (
	FieldAverageExecutionTime Field = iota
	FieldExecutionRounds
	FieldPriority
)

func (f Field) String() string {
	switch f {
	case FieldAverageExecutionTime:
		return "averageExecutionTime"
	case FieldExecutionRounds:
		return "executionRounds"
	case FieldPriority:
		return "priority"
	}
	return fmt.Sprintf("field(%d)", int(f))
}

// Property is one weighted scoring criterion. Weight is in [0, 1].
type Property struct {
	Field  Field
	Weight float64
	// Desc is the mask bit that flips this property to descending order.
	Desc Flag
}

// Sample is the view of one pending job used for scoring.
type Sample struct {
	// Index identifies the job in the caller's backlog.
	Index                int
	AverageExecutionTime float64
	ExecutionRounds      float64
	Priority             float64
	Score                float64
}

func (s *Sample) value(f Field) float64 {
	switch f {
	case FieldAverageExecutionTime:
		return s.AverageExecutionTime
	case FieldExecutionRounds:
		return s.ExecutionRounds
	case FieldPriority:
		return s.Priority
	}
	return 0
}

// DefaultProperties weights average execution time 80% and execution rounds 20%.
func DefaultProperties() []Property {
	return []Property{
		{Field: FieldAverageExecutionTime, Weight: 0.80, Desc: FlagAETDesc},
		{Field: FieldExecutionRounds, Weight: 0.20, Desc: FlagRoundsDesc},
	}
}

// DefaultPriorityProperty is appended to the properties at LevelO3.
func DefaultPriorityProperty() Property {
	return Property{Field: FieldPriority, Weight: 0.5, Desc: FlagPriorityDesc}
}

// Optimizer scores and sorts samples.
type Optimizer struct {
	Properties []Property
	// Priority is added to Properties at LevelO3.
	Priority Property
}

// New returns an Optimizer with the default properties.
func New() *Optimizer {
	return &Optimizer{
		Properties: DefaultProperties(),
		Priority:   DefaultPriorityProperty(),
	}
}

func (o *Optimizer) properties(level Level) []Property {
	if level < LevelO3 {
		return o.Properties
	}
	for _, p := range o.Properties {
		if p.Field == FieldPriority {
			return o.Properties
		}
	}
	props := make([]Property, 0, len(o.Properties)+1)
	props = append(props, o.Properties...)
	return append(props, o.Priority)
}

type bounds struct {
	min, max float64
	seen     bool
}

// Optimize returns samples ordered ascending by composite score. At LevelO0
// the input is returned untouched and no score is computed.
//
// A priority equal to model.NoPriority is left out of the min/max scan and
// scores the property's full weight, so a task without a priority never scores
// better than a task that set one, whatever the direction.
func (o *Optimizer) Optimize(samples []Sample, level Level, mask Flag) []Sample {
	if level <= LevelO0 || len(samples) == 0 {
		return samples
	}
	props := o.properties(level)

	ranges := make([]bounds, len(props))
	for i := range samples {
		for p, prop := range props {
			v := samples[i].value(prop.Field)
			if prop.Field == FieldPriority && v == model.NoPriority {
				continue
			}
			b := &ranges[p]
			if !b.seen {
				b.min, b.max, b.seen = v, v, true
				continue
			}
			if v < b.min {
				b.min = v
			}
			if v > b.max {
				b.max = v
			}
		}
	}

	for i := range samples {
		score := 0.0
		for p, prop := range props {
			v := samples[i].value(prop.Field)
			if prop.Field == FieldPriority && v == model.NoPriority {
				score += prop.Weight
				continue
			}
			score += normalize(v, ranges[p], mask&prop.Desc != 0) * prop.Weight
		}
		samples[i].Score = score
	}

	return hybridsort.Sort(samples, func(a, b Sample) bool {
		return a.Score < b.Score
	}, strategy(mask))
}

// normalize maps v into [0, 1] within b; desc swaps the roles of min and max.
// A range without variance contributes 0.
func normalize(v float64, b bounds, desc bool) float64 {
	span := b.max - b.min
	if !b.seen || span == 0 {
		return 0
	}
	if desc {
		return (b.max - v) / span
	}
	return (v - b.min) / span
}

func strategy(mask Flag) hybridsort.Strategy {
	switch {
	case mask&FlagSortBucketOnly != 0:
		return hybridsort.StrategyBucket
	case mask&FlagSortNativeOnly != 0:
		return hybridsort.StrategyNative
	}
	return hybridsort.StrategyAuto
}

// ParseLevel converts 0-3 or "O0".."O3" into a Level.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "0", "O0", "o0":
		return LevelO0, nil
	case "1", "O1", "o1":
		return LevelO1, nil
	case "2", "O2", "o2":
		return LevelO2, nil
	case "3", "O3", "o3":
		return LevelO3, nil
	}
	return LevelO0, fmt.Errorf("unknown optimization level %q", s)
}
