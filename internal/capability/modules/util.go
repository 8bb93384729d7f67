package modules

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"reflect"
)

// Util offers formatting helpers.
type Util struct{}

// Format is fmt.Sprintf.
func (Util) Format(format string, args ...any) string {
	return fmt.Sprintf(format, args...)
}

// Inspect renders v as indented JSON, falling back to %#v.
func (Util) Inspect(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%#v", v)
	}
	return string(data)
}

// IsDeepStrictEqual reports reflect.DeepEqual(a, b).
func (Util) IsDeepStrictEqual(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

// URL parses and resolves URLs.
type URL struct{}

// Parse splits raw into its components.
func (URL) Parse(raw string) (map[string]any, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	query := make(map[string]any, len(u.Query()))
	for k, v := range u.Query() {
		if len(v) == 1 {
			query[k] = v[0]
		} else {
			query[k] = v
		}
	}
	return map[string]any{
		"href":     u.String(),
		"protocol": u.Scheme,
		"host":     u.Host,
		"hostname": u.Hostname(),
		"port":     u.Port(),
		"pathname": u.Path,
		"search":   u.RawQuery,
		"hash":     u.Fragment,
		"query":    query,
	}, nil
}

// Resolve resolves ref against base.
func (URL) Resolve(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(r).String(), nil
}

// Zlib compresses and decompresses synchronously. Inputs may be strings or byte slices.
type Zlib struct{}

func (Zlib) GzipSync(data any) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(toBytes(data)); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (Zlib) GunzipSync(data any) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(toBytes(data)))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (Zlib) DeflateSync(data any) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(toBytes(data)); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (Zlib) InflateSync(data any) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(toBytes(data)))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func toBytes(v any) []byte {
	switch b := v.(type) {
	case nil:
		return nil
	case []byte:
		return b
	case string:
		return []byte(b)
	case []any:
		out := make([]byte, 0, len(b))
		for _, e := range b {
			switch n := e.(type) {
			case int64:
				out = append(out, byte(n))
			case float64:
				out = append(out, byte(n))
			case int:
				out = append(out, byte(n))
			}
		}
		return out
	}
	return []byte(fmt.Sprint(v))
}
