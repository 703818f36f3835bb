package registry

import (
	"fmt"

	"github.com/reelfx/reelfx-processing-service/internal/domain/entity"
)

// Params holds validated effect parameters: every declared key is present,
// numeric values are inside [min,max], enum values are members of the set.
type Params map[string]any

func (p Params) Float(name string) float64 {
	v, _ := toFloat(p[name])
	return v
}

func (p Params) Int(name string) int {
	v, _ := toFloat(p[name])
	return int(v)
}

func (p Params) String(name string) string {
	s, _ := p[name].(string)
	return s
}

// Validate merges overrides into the effect's declared schema. Unknown keys
// are ignored for forward compatibility, missing keys take declared
// defaults, out-of-range numerics are clamped, type mismatches are rejected
// as permanent errors.
func (r *Registry) Validate(effectID string, overrides map[string]any) (Params, error) {
	d, err := r.Resolve(effectID)
	if err != nil {
		return nil, err
	}

	out := make(Params, len(d.Params))
	for name, spec := range d.Params {
		raw, present := overrides[name]
		if !present {
			raw = spec.Default
		}

		switch spec.Type {
		case "float", "int":
			f, err := toFloat(raw)
			if err != nil {
				return nil, entity.Permanent("param %q: %v", name, err)
			}
			if f < spec.Min {
				f = spec.Min
			}
			if f > spec.Max {
				f = spec.Max
			}
			if spec.Type == "int" {
				out[name] = int(f)
			} else {
				out[name] = f
			}
		case "enum":
			s, ok := raw.(string)
			if !ok {
				return nil, entity.Permanent("param %q: expected string, got %T", name, raw)
			}
			if !contains(spec.Values, s) {
				return nil, entity.Permanent("param %q: %q not one of %v", name, s, spec.Values)
			}
			out[name] = s
		}
	}
	return out, nil
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case nil:
		return 0, fmt.Errorf("missing numeric value")
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
}
