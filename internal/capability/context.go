// Package capability builds the execution context handed to a task: the
// caller's values plus the ambient capabilities its permission tier grants.
package capability

// Context maps global names to the values a task can reach. Values are
// treated as immutable once a Context is shared; derive new contexts with
// Merge, Clone or Builder.Extend.
type Context map[string]any

// Clone returns a shallow copy of c. A nil Context clones to an empty one.
func (c Context) Clone() Context {
	out := make(Context, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Merge deep-merges src over dst into a new Context. Keys in src win; when
// both sides hold a nested map the maps are merged recursively. Neither input
// is modified.
func Merge(dst, src Context) Context {
	out := dst.Clone()
	for k, v := range src {
		if cur, ok := out[k]; ok {
			if a, ok := asMap(cur); ok {
				if b, ok := asMap(v); ok {
					out[k] = map[string]any(Merge(a, b))
					continue
				}
			}
		}
		out[k] = v
	}
	return out
}

func asMap(v any) (Context, bool) {
	switch m := v.(type) {
	case Context:
		return m, true
	case map[string]any:
		return Context(m), true
	}
	return nil, false
}

// Data returns the entries of c that are plain data (strings, numbers, bools,
// nil and nested maps/slices of those), dropping capabilities such as funcs.
func (c Context) Data() map[string]any {
	out := make(map[string]any, len(c))
	for k, v := range c {
		if d, ok := plain(v); ok {
			out[k] = d
		}
	}
	return out
}

func plain(v any) (any, bool) {
	switch x := v.(type) {
	case nil, string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return x, true
	case Context:
		return x.Data(), true
	case map[string]any:
		return Context(x).Data(), true
	case []any:
		out := make([]any, 0, len(x))
		for _, e := range x {
			if d, ok := plain(e); ok {
				out = append(out, d)
			}
		}
		return out, true
	case []string:
		return x, true
	}
	return nil, false
}

// Plain reports whether v is plain data and returns it with nested
// capabilities dropped.
func Plain(v any) (any, bool) {
	return plain(v)
}
