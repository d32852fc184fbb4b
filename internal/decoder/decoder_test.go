package decoder

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/ghalamif/AegisWatch/internal/domain"
)

func envLayout(endian string) Layout {
	return Layout{
		Endianness: endian,
		Fields: []FieldSpec{
			{Name: "temp", Type: TypeSignedInt, Size: 2},
			{Name: "hum", Type: TypeUnsignedInt, Size: 1},
			{Name: "pressure", Type: TypeFloatMantissa, Size: 2, Scale: 0.5},
			{Name: "status", Type: TypeBitField, Size: 1, Bits: []BitSpec{
				{Name: "door", Type: TypeBoolean, Mask: 0x01},
				{Name: "mode", Type: TypeUnsignedInt, Mask: 0x0e, Shift: 1},
			}},
			{Name: "ratio", Type: TypeFloatFixed, Size: 4},
			{Name: "energy", Type: TypeDouble, Size: 8},
			{Name: "armed", Type: TypeBoolean, Size: 1},
			{Name: "label", Type: TypeCharArray, Size: 6},
		},
	}
}

func envFrame(order binary.AppendByteOrder) []byte {
	buf := make([]byte, 0, 25)
	buf = order.AppendUint16(buf, uint16(0xfff6)) // -10
	buf = append(buf, 55)
	buf = order.AppendUint16(buf, 2026) // 1013.0
	buf = append(buf, 0x0b)             // door=1 mode=5
	buf = order.AppendUint32(buf, math.Float32bits(0.25))
	buf = order.AppendUint64(buf, math.Float64bits(1234.5))
	buf = append(buf, 1)
	buf = append(buf, []byte("hall\x00\x00")...)
	return buf
}

func TestDecodeAllFieldTypes(t *testing.T) {
	for _, tc := range []struct {
		endian string
		order  binary.AppendByteOrder
	}{
		{"little", binary.LittleEndian},
		{"big", binary.BigEndian},
	} {
		dec, err := New(envLayout(tc.endian))
		if err != nil {
			t.Fatalf("new decoder: %v", err)
		}
		if dec.Size() != 25 {
			t.Fatalf("expected frame size 25, got %d", dec.Size())
		}

		fields, err := dec.Decode(envFrame(tc.order))
		if err != nil {
			t.Fatalf("%s: decode: %v", tc.endian, err)
		}

		want := map[string]domain.Value{
			"temp":     domain.Int(-10),
			"hum":      domain.UInt(55),
			"pressure": domain.Float(1013),
			"door":     domain.Bool(true),
			"mode":     domain.UInt(5),
			"ratio":    domain.Float(0.25),
			"energy":   domain.Double(1234.5),
			"armed":    domain.Bool(true),
			"label":    domain.Text("hall"),
		}
		if len(fields) != len(want) {
			t.Fatalf("%s: expected %d fields, got %d", tc.endian, len(want), len(fields))
		}
		for _, f := range fields {
			w, ok := want[f.Name]
			if !ok {
				t.Fatalf("unexpected field %s", f.Name)
			}
			if c, err := f.Value.Compare(w); err != nil || c != 0 {
				t.Fatalf("%s: field %s = %s, want %s (%v)", tc.endian, f.Name, f.Value, w, err)
			}
		}
	}
}

func TestDecodeTruncatedFrameKeepsLeadingFields(t *testing.T) {
	dec, err := New(envLayout("little"))
	if err != nil {
		t.Fatalf("new decoder: %v", err)
	}
	frame := envFrame(binary.LittleEndian)[:6]

	fields, err := dec.Decode(frame)
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.Name)
	}
	if len(names) != 5 || names[0] != "temp" || names[4] != "mode" {
		t.Fatalf("expected temp..mode to survive truncation, got %v", names)
	}
}

func TestFieldsFlattensBitFields(t *testing.T) {
	dec, err := New(envLayout(""))
	if err != nil {
		t.Fatalf("new decoder: %v", err)
	}
	descs := dec.Fields()
	if len(descs) != 9 {
		t.Fatalf("expected 9 logical fields, got %d", len(descs))
	}
	if descs[3].Name != "door" || descs[3].Kind != domain.KindBool {
		t.Fatalf("unexpected descriptor %+v", descs[3])
	}
	if descs[2].Kind != domain.KindFloat {
		t.Fatalf("mantissa fields decode to float, got %s", descs[2].Kind)
	}
}

func TestLayoutValidation(t *testing.T) {
	cases := map[string]Layout{
		"empty":        {},
		"bad size":     {Fields: []FieldSpec{{Name: "a", Type: TypeUnsignedInt, Size: 3}}},
		"bad float":    {Fields: []FieldSpec{{Name: "a", Type: TypeFloatFixed, Size: 8}}},
		"no scale":     {Fields: []FieldSpec{{Name: "a", Type: TypeFloatMantissa, Size: 2}}},
		"dup name":     {Fields: []FieldSpec{{Name: "a", Type: TypeBoolean, Size: 1}, {Name: "a", Type: TypeBoolean, Size: 1}}},
		"bad bit":      {Fields: []FieldSpec{{Name: "f", Type: TypeBitField, Size: 1, Bits: []BitSpec{{Name: "b", Type: TypeDouble, Mask: 1}}}}},
		"zero mask":    {Fields: []FieldSpec{{Name: "f", Type: TypeBitField, Size: 1, Bits: []BitSpec{{Name: "b", Type: TypeBoolean}}}}},
		"endianness":   {Endianness: "middle", Fields: []FieldSpec{{Name: "a", Type: TypeBoolean, Size: 1}}},
		"unknown type": {Fields: []FieldSpec{{Name: "a", Type: "decimal", Size: 1}}},
	}
	for name, layout := range cases {
		if _, err := New(layout); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestParseValue(t *testing.T) {
	ok := []struct {
		typ  FieldType
		raw  any
		want domain.Value
	}{
		{TypeUnsignedInt, 30, domain.UInt(30)},
		{TypeSignedInt, -4, domain.Int(-4)},
		{TypeSignedInt, 12.0, domain.Int(12)},
		{TypeFloatMantissa, 3, domain.Float(3)},
		{TypeDouble, 2.5, domain.Double(2.5)},
		{TypeBoolean, true, domain.Bool(true)},
		{TypeCharArray, "ok", domain.Text("ok")},
		{TypeBitField, 7, domain.UInt(7)},
	}
	for _, tc := range ok {
		got, err := ParseValue(tc.typ, tc.raw)
		if err != nil {
			t.Fatalf("ParseValue(%s, %v): %v", tc.typ, tc.raw, err)
		}
		if c, err := got.Compare(tc.want); err != nil || c != 0 {
			t.Fatalf("ParseValue(%s, %v) = %s, want %s", tc.typ, tc.raw, got, tc.want)
		}
	}

	bad := []struct {
		typ FieldType
		raw any
	}{
		{TypeUnsignedInt, -1},
		{TypeSignedInt, 1.5},
		{TypeSignedInt, "10"},
		{TypeBoolean, 1},
		{TypeCharArray, 3},
		{"decimal", 1},
	}
	for _, tc := range bad {
		if _, err := ParseValue(tc.typ, tc.raw); err == nil {
			t.Fatalf("ParseValue(%s, %v) should fail", tc.typ, tc.raw)
		}
	}
}
