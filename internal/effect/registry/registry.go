package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Kind string

const (
	KindFilterGraph   Kind = "filter-graph"
	KindFramePipeline Kind = "frame-pipeline"
)

// framePipelineImpls is the closed set of compiled-in frame-pipeline
// implementations. A manifest naming any other frame-pipeline id fails the
// registry load, and with it process startup.
var framePipelineImpls = map[string]bool{
	"scanner-darkly": true,
}

type ParamSpec struct {
	Type    string   `yaml:"type"` // float, int, enum
	Min     float64  `yaml:"min"`
	Max     float64  `yaml:"max"`
	Default any      `yaml:"default"`
	Values  []string `yaml:"values,omitempty"`
}

// Descriptor describes one effect. Owned by the registry, read-only to
// consumers.
type Descriptor struct {
	Name      string               `yaml:"-"`
	Kind      Kind                 `yaml:"kind"`
	Filter    string               `yaml:"filter,omitempty"`
	KeepAudio bool                 `yaml:"keep_audio,omitempty"`
	Params    map[string]ParamSpec `yaml:"params,omitempty"`
}

type manifest struct {
	Version string                 `yaml:"version"`
	Effects map[string]*Descriptor `yaml:"effects"`
}

// Registry maps effect ids to descriptors. Loaded once at startup from the
// manifest file; immutable for the worker's lifetime.
type Registry struct {
	effects map[string]*Descriptor
}

type NotFoundError struct {
	EffectID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("effect %q not found in registry", e.EffectID)
}

// Load reads and checks the manifest. Any defect here is startup-fatal by
// contract: a worker with a bad manifest must not serve jobs.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if len(m.Effects) == 0 {
		return nil, fmt.Errorf("manifest %s declares no effects", path)
	}

	for id, d := range m.Effects {
		d.Name = id
		switch d.Kind {
		case KindFilterGraph:
			if d.Filter == "" {
				return nil, fmt.Errorf("effect %q: filter-graph effect with empty filter", id)
			}
		case KindFramePipeline:
			if !framePipelineImpls[id] {
				return nil, fmt.Errorf("effect %q: no compiled-in frame-pipeline implementation", id)
			}
		default:
			return nil, fmt.Errorf("effect %q: unknown kind %q", id, d.Kind)
		}
		for name, spec := range d.Params {
			if err := checkSpec(name, spec); err != nil {
				return nil, fmt.Errorf("effect %q: %w", id, err)
			}
		}
	}

	return &Registry{effects: m.Effects}, nil
}

func checkSpec(name string, spec ParamSpec) error {
	switch spec.Type {
	case "float", "int":
		if spec.Min > spec.Max {
			return fmt.Errorf("param %q: min %v greater than max %v", name, spec.Min, spec.Max)
		}
		if _, err := toFloat(spec.Default); err != nil {
			return fmt.Errorf("param %q: bad default: %w", name, err)
		}
	case "enum":
		if len(spec.Values) == 0 {
			return fmt.Errorf("param %q: enum with no values", name)
		}
		def, ok := spec.Default.(string)
		if !ok || !contains(spec.Values, def) {
			return fmt.Errorf("param %q: default %v not in enum values", name, spec.Default)
		}
	default:
		return fmt.Errorf("param %q: unknown type %q", name, spec.Type)
	}
	return nil
}

// Resolve returns the descriptor for an effect id.
func (r *Registry) Resolve(effectID string) (*Descriptor, error) {
	d, ok := r.effects[effectID]
	if !ok {
		return nil, &NotFoundError{EffectID: effectID}
	}
	return d, nil
}

// HasFramePipeline reports whether any frame-pipeline effect is declared,
// which decides whether the edge model must be loaded at startup.
func (r *Registry) HasFramePipeline() bool {
	for _, d := range r.effects {
		if d.Kind == KindFramePipeline {
			return true
		}
	}
	return false
}

func contains(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
