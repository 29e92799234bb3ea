package exercise

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Registry is the immutable set of known exercises. Safe for concurrent reads.
type Registry struct {
	byID  map[string]Config
	order []string
}

// NewRegistry builds a registry from the built-ins plus extra definitions.
// Every definition is validated; duplicate ids are rejected.
func NewRegistry(extra ...Config) (*Registry, error) {
	r := &Registry{byID: make(map[string]Config)}
	for _, c := range append(Builtins(), extra...) {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.byID[c.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalid, c.ID)
		}
		r.byID[c.ID] = c
		r.order = append(r.order, c.ID)
	}
	return r, nil
}

// Lookup returns the exercise for id, or the baseline when id is unknown.
func (r *Registry) Lookup(id string) Config {
	if c, ok := r.byID[id]; ok {
		return c
	}
	return r.byID[BaselineID]
}

// Resolve is Lookup that also reports whether id was known.
func (r *Registry) Resolve(id string) (Config, bool) {
	c, ok := r.byID[id]
	if !ok {
		return r.byID[BaselineID], false
	}
	return c, true
}

// List returns every exercise in registration order.
func (r *Registry) List() []Config {
	out := make([]Config, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// IDs returns the sorted exercise ids.
func (r *Registry) IDs() []string {
	ids := append([]string(nil), r.order...)
	sort.Strings(ids)
	return ids
}

type definitionsFile struct {
	Exercises []Config `yaml:"exercises"`
}

// LoadFile reads extra exercise definitions from a YAML file of the form
//
//	exercises:
//	  - id: squat
//	    name: Squat
//	    rules:
//	      - {name: knee_angle, a: RHip, vertex: RKnee, b: RAnkle, valid: {min: 70, max: 170}, checkpoint: contracted}
//	    phases:
//	      gate: knee_angle
//	      sequence:
//	        - {name: extended, enter: {op: above, degrees: 160}}
//	        - {name: contracted, enter: {op: below, degrees: 100}}
//
// An empty path returns no definitions.
func LoadFile(path string) ([]Config, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("exercise definitions %s: %w", path, err)
		}
		return nil, fmt.Errorf("failed to read exercise definitions: %w", err)
	}

	var f definitionsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse exercise definitions: %w", err)
	}
	return f.Exercises, nil
}
