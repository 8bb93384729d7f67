// Package manifest declares source and remote tasks in a YAML file and keeps
// an engine's registry in step with it.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/me/supertask/pkg/model"
)

// Manifest is a parsed task manifest.
type Manifest struct {
	Tasks []TaskSpec `yaml:"tasks"`

	// Path is the file the manifest was loaded from.
	Path string `yaml:"-"`
}

// TaskSpec declares one task.
//
// A foreign task needs source or file. A shared task needs remote; its
// source, if any, is the local body used while no remote is set.
type TaskSpec struct {
	Name       string         `yaml:"name"`
	Kind       string         `yaml:"kind,omitempty"`
	Lang       string         `yaml:"lang,omitempty"`
	Source     string         `yaml:"source,omitempty"`
	File       string         `yaml:"file,omitempty"`
	Permission string         `yaml:"permission,omitempty"`
	Module     *bool          `yaml:"module,omitempty"`
	Sandboxed  *bool          `yaml:"sandboxed,omitempty"`
	Priority   *float64       `yaml:"priority,omitempty"`
	Context    map[string]any `yaml:"context,omitempty"`
	Remote     string         `yaml:"remote,omitempty"`
}

// Load reads and validates the manifest at path. Task files are resolved
// relative to the manifest and read into Source.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.Path = path

	dir := filepath.Dir(path)
	for i := range m.Tasks {
		ts := &m.Tasks[i]
		if ts.File == "" {
			continue
		}
		file := ts.File
		if !filepath.IsAbs(file) {
			file = filepath.Join(dir, file)
		}
		src, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("task %s: %w", ts.Name, err)
		}
		ts.File = file
		ts.Source = string(src)
		if ts.Lang == "" {
			ts.Lang = langFromExt(file)
		}
	}
	return m, nil
}

// Parse decodes and validates manifest YAML. Unknown fields are rejected.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks every task spec and reports all problems at once.
func (m *Manifest) Validate() error {
	var errs []error
	seen := make(map[string]bool, len(m.Tasks))
	for i, ts := range m.Tasks {
		if strings.TrimSpace(ts.Name) == "" {
			errs = append(errs, fmt.Errorf("tasks[%d]: name is required", i))
			continue
		}
		if seen[ts.Name] {
			errs = append(errs, fmt.Errorf("task %s: declared twice", ts.Name))
		}
		seen[ts.Name] = true
		if err := ts.validate(); err != nil {
			errs = append(errs, fmt.Errorf("task %s: %w", ts.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (ts TaskSpec) validate() error {
	kind, err := ts.kind()
	if err != nil {
		return err
	}
	if ts.Source != "" && ts.File != "" {
		return errors.New("source and file are mutually exclusive")
	}
	switch kind {
	case model.KindLocal:
		return errors.New("local tasks are registered in code, not in a manifest")
	case model.KindForeign:
		if ts.Source == "" && ts.File == "" {
			return errors.New("foreign task needs source or file")
		}
		if ts.Remote != "" {
			return errors.New("remote is only valid on shared tasks")
		}
	case model.KindShared:
		if ts.Remote == "" {
			return errors.New("shared task needs remote")
		}
	}
	if _, err := ts.permission(); err != nil {
		return err
	}
	return nil
}

// kind defaults to shared when remote is set and to foreign otherwise.
func (ts TaskSpec) kind() (model.Kind, error) {
	if ts.Kind == "" {
		if ts.Remote != "" {
			return model.KindShared, nil
		}
		return model.KindForeign, nil
	}
	return model.ParseKind(ts.Kind)
}

func (ts TaskSpec) permission() (*model.Permission, error) {
	if ts.Permission == "" {
		return nil, nil
	}
	p, err := model.ParsePermission(ts.Permission)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (ts TaskSpec) lang() string {
	if ts.Lang != "" {
		return ts.Lang
	}
	return "js"
}

func langFromExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".go":
		return "go"
	default:
		return "js"
	}
}
