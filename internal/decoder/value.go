package decoder

import (
	"fmt"
	"math"

	"github.com/ghalamif/AegisWatch/internal/domain"
)

// ParseValue converts a configuration scalar (as produced by the YAML
// decoder) into a value of the kind field type t decodes to. It is used for
// thresholds and default values so they always match the field's kind.
func ParseValue(t FieldType, raw any) (domain.Value, error) {
	kind := t.Kind()
	switch kind {
	case domain.KindUInt:
		n, err := asInt(raw)
		if err != nil {
			return domain.Value{}, err
		}
		if n < 0 {
			return domain.Value{}, fmt.Errorf("%v is negative, %s is unsigned", raw, t)
		}
		return domain.UInt(uint64(n)), nil
	case domain.KindInt:
		n, err := asInt(raw)
		if err != nil {
			return domain.Value{}, err
		}
		return domain.Int(n), nil
	case domain.KindFloat:
		f, err := asFloat(raw)
		if err != nil {
			return domain.Value{}, err
		}
		return domain.Float(float32(f)), nil
	case domain.KindDouble:
		f, err := asFloat(raw)
		if err != nil {
			return domain.Value{}, err
		}
		return domain.Double(f), nil
	case domain.KindBool:
		b, ok := raw.(bool)
		if !ok {
			return domain.Value{}, fmt.Errorf("%v (%T) is not a boolean", raw, raw)
		}
		return domain.Bool(b), nil
	case domain.KindText:
		s, ok := raw.(string)
		if !ok {
			return domain.Value{}, fmt.Errorf("%v (%T) is not text", raw, raw)
		}
		return domain.Text(s), nil
	default:
		return domain.Value{}, fmt.Errorf("field type %q has no value kind", t)
	}
}

func asInt(raw any) (int64, error) {
	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("%d overflows", v)
		}
		return int64(v), nil
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("%v is not an integer", v)
		}
		return int64(v), nil
	default:
		return 0, fmt.Errorf("%v (%T) is not an integer", raw, raw)
	}
}

func asFloat(raw any) (float64, error) {
	switch v := raw.(type) {
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case float64:
		return v, nil
	default:
		return 0, fmt.Errorf("%v (%T) is not a number", raw, raw)
	}
}
