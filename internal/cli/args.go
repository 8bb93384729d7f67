package cli

import (
	"encoding/json"
	"fmt"
	"io"
)

// parseArgs decodes each argument as JSON, falling back to the raw string,
// so that `run add 2 3` passes numbers and `run greet bob` passes "bob".
func parseArgs(raw []string) []any {
	out := make([]any, len(raw))
	for i, s := range raw {
		var v any
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			v = s
		}
		out[i] = v
	}
	return out
}

// parseContext decodes a JSON object given on the command line.
func parseContext(s string) (map[string]any, error) {
	if s == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("--context must be a JSON object: %w", err)
	}
	return m, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
