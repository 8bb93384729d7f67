package optimizer

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/me/supertask/pkg/model"
)

func aetOnly() *Optimizer {
	return &Optimizer{
		Properties: []Property{{Field: FieldAverageExecutionTime, Weight: 1, Desc: FlagAETDesc}},
		Priority:   DefaultPriorityProperty(),
	}
}

func aetSamples(values ...float64) []Sample {
	out := make([]Sample, len(values))
	for i, v := range values {
		out[i] = Sample{Index: i, AverageExecutionTime: v}
	}
	return out
}

func aets(samples []Sample) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s.AverageExecutionTime
	}
	return out
}

func TestOptimize_Ascending(t *testing.T) {
	got := aetOnly().Optimize(aetSamples(5300, 1200, 2000), LevelO1, 0)
	if diff := cmp.Diff([]float64{1200, 2000, 5300}, aets(got)); diff != "" {
		t.Errorf("ascending (-want +got):\n%s", diff)
	}
}

func TestOptimize_Descending(t *testing.T) {
	got := aetOnly().Optimize(aetSamples(5300, 1200, 2000), LevelO1, FlagAETDesc)
	if diff := cmp.Diff([]float64{5300, 2000, 1200}, aets(got)); diff != "" {
		t.Errorf("descending (-want +got):\n%s", diff)
	}
}

func TestOptimize_LevelO0Untouched(t *testing.T) {
	in := aetSamples(5300, 1200, 2000)
	got := aetOnly().Optimize(in, LevelO0, FlagAETDesc)
	if diff := cmp.Diff([]float64{5300, 1200, 2000}, aets(got)); diff != "" {
		t.Errorf("O0 order (-want +got):\n%s", diff)
	}
	for _, s := range got {
		if s.Score != 0 {
			t.Errorf("O0 scored sample %d: %v", s.Index, s.Score)
		}
	}
}

func TestOptimize_ForcedStrategiesAgree(t *testing.T) {
	values := []float64{9, 3, 7, 1, 5, 8, 2}
	bucket := aetOnly().Optimize(aetSamples(values...), LevelO2, FlagSortBucketOnly)
	native := aetOnly().Optimize(aetSamples(values...), LevelO2, FlagSortNativeOnly)
	if diff := cmp.Diff(aets(bucket), aets(native)); diff != "" {
		t.Errorf("bucket vs native (-bucket +native):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{1, 2, 3, 5, 7, 8, 9}, aets(bucket)); diff != "" {
		t.Errorf("order (-want +got):\n%s", diff)
	}
}

func TestOptimize_NoVarianceScoresZero(t *testing.T) {
	got := New().Optimize([]Sample{
		{Index: 0, AverageExecutionTime: 10, ExecutionRounds: 4},
		{Index: 1, AverageExecutionTime: 10, ExecutionRounds: 4},
	}, LevelO2, 0)
	for _, s := range got {
		if s.Score != 0 {
			t.Errorf("sample %d score = %v, want 0", s.Index, s.Score)
		}
	}
}

func TestOptimize_WeightedComposite(t *testing.T) {
	samples := []Sample{
		{Index: 0, AverageExecutionTime: 100, ExecutionRounds: 0},
		{Index: 1, AverageExecutionTime: 0, ExecutionRounds: 10},
		{Index: 2, AverageExecutionTime: 50, ExecutionRounds: 5},
	}
	got := New().Optimize(samples, LevelO2, 0)

	scores := map[int]float64{}
	for _, s := range got {
		scores[s.Index] = s.Score
	}
	want := map[int]float64{0: 0.80, 1: 0.20, 2: 0.50}
	for idx, w := range want {
		if d := scores[idx] - w; d > 1e-9 || d < -1e-9 {
			t.Errorf("score[%d] = %v, want %v", idx, scores[idx], w)
		}
	}
	order := []int{got[0].Index, got[1].Index, got[2].Index}
	if diff := cmp.Diff([]int{1, 2, 0}, order); diff != "" {
		t.Errorf("order (-want +got):\n%s", diff)
	}
}

func TestOptimize_UnsetPriorityExcludedFromRange(t *testing.T) {
	o := &Optimizer{Priority: Property{Field: FieldPriority, Weight: 1, Desc: FlagPriorityDesc}}
	samples := []Sample{
		{Index: 0, Priority: model.NoPriority},
		{Index: 1, Priority: 10},
		{Index: 2, Priority: 0},
		{Index: 3, Priority: 5},
	}

	asc := o.Optimize(append([]Sample(nil), samples...), LevelO3, 0)
	if diff := cmp.Diff([]int{2, 3}, indexes(asc)[:2]); diff != "" {
		t.Errorf("ascending head (-want +got):\n%s", diff)
	}
	// Priority 5 lands exactly mid-range: the sentinel did not stretch the range down to -1.
	for _, s := range asc {
		switch s.Index {
		case 3:
			if s.Score != 0.5 {
				t.Errorf("priority 5 score = %v, want 0.5", s.Score)
			}
		case 0:
			if s.Score != 1 {
				t.Errorf("unset priority score = %v, want full weight", s.Score)
			}
		}
	}

	desc := o.Optimize(append([]Sample(nil), samples...), LevelO3, FlagPriorityDesc)
	if diff := cmp.Diff([]int{1, 3}, indexes(desc)[:2]); diff != "" {
		t.Errorf("descending head (-want +got):\n%s", diff)
	}
	for _, s := range desc {
		if s.Index == 0 && s.Score != 1 {
			t.Errorf("unset priority score (desc) = %v, want full weight", s.Score)
		}
	}
}

func TestOptimize_PriorityOnlyAtO3(t *testing.T) {
	o := New()
	if got := len(o.properties(LevelO2)); got != 2 {
		t.Errorf("O2 properties = %d, want 2", got)
	}
	if got := len(o.properties(LevelO3)); got != 3 {
		t.Errorf("O3 properties = %d, want 3", got)
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]Level{"0": LevelO0, "O1": LevelO1, "o2": LevelO2, "3": LevelO3} {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseLevel("O9"); err == nil {
		t.Error("expected error for O9")
	}
}

func indexes(samples []Sample) []int {
	out := make([]int, len(samples))
	for i, s := range samples {
		out[i] = s.Index
	}
	return out
}
