package hybridsort

import (
	"math/rand"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func intLess(a, b int) bool { return a < b }

func TestSort_SmallInputsUnchanged(t *testing.T) {
	for _, s := range []Strategy{StrategyAuto, StrategyBucket, StrategyNative} {
		if got := Sort([]int{}, intLess, s); len(got) != 0 {
			t.Errorf("%v: empty input = %v", s, got)
		}
		one := []int{42}
		got := Sort(one, intLess, s)
		if len(got) != 1 || got[0] != 42 || &got[0] != &one[0] {
			t.Errorf("%v: single-element input not returned as is", s)
		}
	}
}

func TestChoose(t *testing.T) {
	tests := []struct {
		n    int
		s    Strategy
		want Strategy
	}{
		{0, StrategyAuto, StrategyBucket},
		{Threshold, StrategyAuto, StrategyBucket},
		{Threshold + 1, StrategyAuto, StrategyNative},
		{10, StrategyNative, StrategyNative},
		{10000, StrategyBucket, StrategyBucket},
	}
	for _, tt := range tests {
		if got := Choose(tt.n, tt.s); got != tt.want {
			t.Errorf("Choose(%d, %v) = %v, want %v", tt.n, tt.s, got, tt.want)
		}
	}
}

func TestSort_StrategiesAgree(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, n := range []int{2, 3, 17, 250, Threshold, Threshold + 1, 2000} {
		input := make([]int, n)
		for i := range input {
			input[i] = rng.Intn(n/2 + 1)
		}
		want := slices.Clone(input)
		slices.Sort(want)

		gotBucket := Sort(slices.Clone(input), intLess, StrategyBucket)
		gotNative := Sort(slices.Clone(input), intLess, StrategyNative)
		gotAuto := Sort(slices.Clone(input), intLess, StrategyAuto)

		if diff := cmp.Diff(want, gotBucket); diff != "" {
			t.Errorf("n=%d bucket mismatch (-want +got):\n%s", n, diff)
		}
		if diff := cmp.Diff(gotBucket, gotNative); diff != "" {
			t.Errorf("n=%d bucket vs native (-bucket +native):\n%s", n, diff)
		}
		if diff := cmp.Diff(want, gotAuto); diff != "" {
			t.Errorf("n=%d auto mismatch (-want +got):\n%s", n, diff)
		}
	}
}

func TestSort_CustomComparator(t *testing.T) {
	type job struct {
		name  string
		score float64
	}
	jobs := []job{{"c", 0.9}, {"a", 0.1}, {"b", 0.5}}
	desc := func(x, y job) bool { return x.score > y.score }

	for _, s := range []Strategy{StrategyBucket, StrategyNative} {
		got := Sort(slices.Clone(jobs), desc, s)
		names := []string{got[0].name, got[1].name, got[2].name}
		if diff := cmp.Diff([]string{"c", "b", "a"}, names); diff != "" {
			t.Errorf("%v (-want +got):\n%s", s, diff)
		}
	}
}

func TestBucket_DoesNotMutateInput(t *testing.T) {
	input := []int{3, 1, 2}
	got := Sort(input, intLess, StrategyBucket)
	if diff := cmp.Diff([]int{3, 1, 2}, input); diff != "" {
		t.Errorf("input mutated (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1, 2, 3}, got); diff != "" {
		t.Errorf("result (-want +got):\n%s", diff)
	}
}
