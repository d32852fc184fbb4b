// Package decoder turns raw sensor frames into typed field values according
// to a Layout: fixed-size integers, IEEE floats, scaled mantissa floats,
// booleans, fixed-length text and bit-fields split into named sub-fields.
package decoder

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/ghalamif/AegisWatch/internal/domain"
	"github.com/ghalamif/AegisWatch/internal/ports"
)

// ErrTruncated is reported for every field that lies past the end of a frame.
var ErrTruncated = errors.New("frame truncated")

// Descriptor describes one logical field produced by a Decoder. Bit-field
// sub-fields are flattened into their own descriptors.
type Descriptor struct {
	Name string
	Type FieldType
	Kind domain.Kind
}

// Decoder decodes frames of a single Layout. It is safe for concurrent use.
type Decoder struct {
	fields []FieldSpec
	order  binary.ByteOrder
	descs  []Descriptor
	size   int
}

// New validates the layout and prepares a decoder for it.
func New(layout Layout) (*Decoder, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	d := &Decoder{
		fields: append([]FieldSpec(nil), layout.Fields...),
		order:  binary.LittleEndian,
	}
	if strings.EqualFold(layout.Endianness, "big") {
		d.order = binary.BigEndian
	}
	for _, f := range d.fields {
		d.size += f.Size
		if f.Type == TypeBitField {
			for _, b := range f.Bits {
				d.descs = append(d.descs, Descriptor{Name: b.Name, Type: b.Type, Kind: b.Type.Kind()})
			}
			continue
		}
		d.descs = append(d.descs, Descriptor{Name: f.Name, Type: f.Type, Kind: f.Type.Kind()})
	}
	return d, nil
}

// Fields lists the logical fields in layout order.
func (d *Decoder) Fields() []Descriptor {
	return append([]Descriptor(nil), d.descs...)
}

// Size is the expected frame length in bytes.
func (d *Decoder) Size() int { return d.size }

// Decode returns every field that could be decoded. Fields that could not be
// decoded are reported in the joined error and left out of the result.
func (d *Decoder) Decode(payload []byte) ([]domain.FieldUpdate, error) {
	out := make([]domain.FieldUpdate, 0, len(d.descs))
	var errs []error
	offset := 0
	for _, f := range d.fields {
		start := offset
		offset += f.Size
		if offset > len(payload) {
			errs = append(errs, fmt.Errorf("field %s at offset %d (+%d): %w", f.Name, start, f.Size, ErrTruncated))
			continue
		}
		raw := payload[start:offset]

		if f.Type == TypeBitField {
			word := d.readUint(raw)
			for _, b := range f.Bits {
				v := (word & b.Mask) >> b.Shift
				if b.Type == TypeBoolean {
					out = append(out, domain.FieldUpdate{Name: b.Name, Value: domain.Bool(v != 0)})
				} else {
					out = append(out, domain.FieldUpdate{Name: b.Name, Value: domain.UInt(v)})
				}
			}
			continue
		}

		v, err := d.decodeField(f, raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("field %s: %w", f.Name, err))
			continue
		}
		out = append(out, domain.FieldUpdate{Name: f.Name, Value: v})
	}
	return out, errors.Join(errs...)
}

func (d *Decoder) decodeField(f FieldSpec, raw []byte) (domain.Value, error) {
	switch f.Type {
	case TypeUnsignedInt:
		return domain.UInt(d.readUint(raw)), nil
	case TypeSignedInt:
		return domain.Int(d.readInt(raw)), nil
	case TypeFloatFixed:
		return domain.Float(math.Float32frombits(d.order.Uint32(raw))), nil
	case TypeFloatMantissa:
		return domain.Float(float32(float64(d.readInt(raw)) * f.Scale)), nil
	case TypeDouble:
		return domain.Double(math.Float64frombits(d.order.Uint64(raw))), nil
	case TypeBoolean:
		return domain.Bool(anyNonZero(raw)), nil
	case TypeCharArray:
		return domain.Text(string(bytes.TrimRight(raw, "\x00"))), nil
	default:
		return domain.Value{}, fmt.Errorf("unsupported type %q", f.Type)
	}
}

func anyNonZero(raw []byte) bool {
	for _, b := range raw {
		if b != 0 {
			return true
		}
	}
	return false
}

func (d *Decoder) readUint(raw []byte) uint64 {
	switch len(raw) {
	case 1:
		return uint64(raw[0])
	case 2:
		return uint64(d.order.Uint16(raw))
	case 4:
		return uint64(d.order.Uint32(raw))
	default:
		return d.order.Uint64(raw)
	}
}

func (d *Decoder) readInt(raw []byte) int64 {
	switch len(raw) {
	case 1:
		return int64(int8(raw[0]))
	case 2:
		return int64(int16(d.order.Uint16(raw)))
	case 4:
		return int64(int32(d.order.Uint32(raw)))
	default:
		return int64(d.order.Uint64(raw))
	}
}

var _ ports.Decoder = (*Decoder)(nil)
