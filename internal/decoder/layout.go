package decoder

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/ghalamif/AegisWatch/internal/domain"
)

// FieldType names a physical or logical field encoding.
type FieldType string

const (
	TypeUnsignedInt   FieldType = "unsigned_int"
	TypeSignedInt     FieldType = "signed_int"
	TypeFloatFixed    FieldType = "float_fixed"
	TypeFloatMantissa FieldType = "float_mantissa"
	TypeDouble        FieldType = "double"
	TypeBoolean       FieldType = "boolean"
	TypeCharArray     FieldType = "char_array"
	TypeBitField      FieldType = "bit_field"
)

// Kind is the value kind a field of this type decodes to.
func (t FieldType) Kind() domain.Kind {
	switch t {
	case TypeUnsignedInt, TypeBitField:
		return domain.KindUInt
	case TypeSignedInt:
		return domain.KindInt
	case TypeFloatFixed, TypeFloatMantissa:
		return domain.KindFloat
	case TypeDouble:
		return domain.KindDouble
	case TypeBoolean:
		return domain.KindBool
	case TypeCharArray:
		return domain.KindText
	default:
		return domain.KindInvalid
	}
}

// BitSpec is a logical sub-field packed into a bit_field.
type BitSpec struct {
	Name  string    `yaml:"name"`
	Type  FieldType `yaml:"type"`
	Mask  uint64    `yaml:"mask"`
	Shift uint      `yaml:"shift"`
}

// FieldSpec is one physical field of a frame. Fields are laid out back to back.
type FieldSpec struct {
	Name  string    `yaml:"name"`
	Type  FieldType `yaml:"type"`
	Size  int       `yaml:"size"`
	Scale float64   `yaml:"scale"`
	Bits  []BitSpec `yaml:"bits"`
}

// Layout describes the binary frame of one sensor model.
type Layout struct {
	Endianness string      `yaml:"endianness"`
	Fields     []FieldSpec `yaml:"fields"`
}

// Validate checks sizes, names and bit specs.
func (l *Layout) Validate() error {
	var errs []error
	switch strings.ToLower(l.Endianness) {
	case "", "little", "big":
	default:
		errs = append(errs, fmt.Errorf("endianness %q must be little or big", l.Endianness))
	}
	if len(l.Fields) == 0 {
		errs = append(errs, errors.New("layout has no fields"))
	}

	names := make(map[string]struct{})
	claim := func(name string) {
		if name == "" {
			errs = append(errs, errors.New("field with empty name"))
			return
		}
		if _, dup := names[name]; dup {
			errs = append(errs, fmt.Errorf("field %q declared twice", name))
		}
		names[name] = struct{}{}
	}

	for _, f := range l.Fields {
		if f.Type == TypeBitField {
			if len(f.Bits) == 0 {
				errs = append(errs, fmt.Errorf("bit_field %q has no bits", f.Name))
			}
			for _, b := range f.Bits {
				claim(b.Name)
				if b.Type != TypeUnsignedInt && b.Type != TypeBoolean {
					errs = append(errs, fmt.Errorf("bit %q: type %q not allowed in a bit_field", b.Name, b.Type))
				}
				if b.Mask == 0 {
					errs = append(errs, fmt.Errorf("bit %q: mask must be non-zero", b.Name))
				}
				if b.Shift >= 64 {
					errs = append(errs, fmt.Errorf("bit %q: shift %d out of range", b.Name, b.Shift))
				}
			}
		} else {
			claim(f.Name)
		}
		if err := validateSize(f); err != nil {
			errs = append(errs, err)
		}
		if f.Type == TypeFloatMantissa && (f.Scale == 0 || math.IsNaN(f.Scale) || math.IsInf(f.Scale, 0)) {
			errs = append(errs, fmt.Errorf("float_mantissa %q needs a finite non-zero scale", f.Name))
		}
	}
	return errors.Join(errs...)
}

func validateSize(f FieldSpec) error {
	switch f.Type {
	case TypeUnsignedInt, TypeSignedInt, TypeFloatMantissa, TypeBitField:
		switch f.Size {
		case 1, 2, 4, 8:
			return nil
		}
		return fmt.Errorf("field %q: size %d must be 1, 2, 4 or 8", f.Name, f.Size)
	case TypeFloatFixed:
		if f.Size != 4 {
			return fmt.Errorf("float_fixed %q: size must be 4", f.Name)
		}
	case TypeDouble:
		if f.Size != 8 {
			return fmt.Errorf("double %q: size must be 8", f.Name)
		}
	case TypeBoolean, TypeCharArray:
		if f.Size < 1 {
			return fmt.Errorf("field %q: size must be positive", f.Name)
		}
	default:
		return fmt.Errorf("field %q: unsupported type %q", f.Name, f.Type)
	}
	return nil
}
