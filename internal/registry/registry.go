// Copyright 2025 James Ross
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Func is the execution signature every registered operation implements.
// The coordinator dispatches by name only; operation implementations
// themselves are out of scope beyond this contract.
type Func func(a, b float64) (float64, error)

// Registry is a one-shot, startup-built, read-only map of operation name
// to execution function. No hot-reload: the set of
// allowed operations is fixed for the process lifetime and the Job.operation
// CHECK constraint is derived from this exact set at startup.
type Registry struct {
	ops map[string]Func
}

// builtins ships a small default operation set -- enough to dispatch and
// test against, since elaborate operation implementations are explicitly
// out of scope.
func builtins() map[string]Func {
	return map[string]Func{
		"sum": func(a, b float64) (float64, error) { return a + b, nil },
		"difference": func(a, b float64) (float64, error) { return a - b, nil },
		"product": func(a, b float64) (float64, error) { return a * b, nil },
		"quotient": func(a, b float64) (float64, error) {
			if b == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			return a / b, nil
		},
	}
}

// Load builds a Registry from the built-in operation set plus any
// manifest files found under dir matching include/exclude globs. Manifest
// files are one-line-per-operation text files naming operations already
// known to the process (a minimal stand-in for a real plugin-loading
// mechanism, whose actual execution bodies are out of scope); scanning
// uses filepath.WalkDir plus doublestar.PathMatch include/exclude globs.
func Load(dir string, include, exclude []string) (*Registry, error) {
	ops := builtins()

	if dir == "" {
		return newRegistry(ops)
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return newRegistry(ops)
	}

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			return nil
		}
		if len(include) > 0 {
			matched := false
			for _, g := range include {
				if ok, _ := doublestar.PathMatch(g, rel); ok {
					matched = true
					break
				}
			}
			if !matched {
				return nil
			}
		}
		for _, g := range exclude {
			if ok, _ := doublestar.PathMatch(g, rel); ok {
				return nil
			}
		}

		names, readErr := readManifest(path)
		if readErr != nil {
			return fmt.Errorf("read manifest %s: %w", path, readErr)
		}
		for _, name := range names {
			if _, ok := ops[name]; !ok {
				return fmt.Errorf("manifest %s names unknown operation %q", path, name)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return newRegistry(ops)
}

func readManifest(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, nil
}

func newRegistry(ops map[string]Func) (*Registry, error) {
	if len(ops) == 0 {
		return nil, fmt.Errorf("operation registry is empty")
	}
	return &Registry{ops: ops}, nil
}

// Names returns the registered operation names, sorted for stable output
// (used both by GET /operations and to build the Job.operation CHECK
// constraint deterministically).
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Contains reports whether name is a registered operation.
func (r *Registry) Contains(name string) bool {
	_, ok := r.ops[name]
	return ok
}

// Execute dispatches to the named operation's function. Returns
// ErrUnknownOperation if name isn't registered -- calls this
// "should be impossible" because the Job.operation CHECK constraint
// already excludes it, so this is a defensive fallback, not a reachable
// request-time error.
func (r *Registry) Execute(name string, a, b float64) (float64, error) {
	fn, ok := r.ops[name]
	if !ok {
		return 0, ErrUnknownOperation
	}
	return fn(a, b)
}
