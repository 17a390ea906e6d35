// Package arrowconv bridges the compiler's type and schema descriptors to
// Apache Arrow, the columnar format execution layers materialize results
// into. Conversion is one-way: the compiler never reads Arrow metadata back.
package arrowconv

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/quarryql/quarry/internal/datatype"
)

// ToArrow converts a compiler data type to the equivalent Arrow type.
func ToArrow(t datatype.DataType) (arrow.DataType, error) {
	switch dt := t.(type) {
	case datatype.Null:
		return arrow.Null, nil
	case datatype.Boolean:
		return arrow.FixedWidthTypes.Boolean, nil
	case datatype.Integer:
		return integerType(dt)
	case datatype.Float:
		switch dt.Width {
		case 32:
			return arrow.PrimitiveTypes.Float32, nil
		case 64:
			return arrow.PrimitiveTypes.Float64, nil
		}
		return nil, fmt.Errorf("arrowconv: unsupported float width %d", dt.Width)
	case datatype.Decimal:
		return &arrow.Decimal128Type{
			Precision: int32(dt.Precision),
			Scale:     int32(dt.Scale),
		}, nil
	case datatype.String:
		return arrow.BinaryTypes.String, nil
	case datatype.Binary:
		return arrow.BinaryTypes.Binary, nil
	case datatype.Date:
		return arrow.FixedWidthTypes.Date32, nil
	case datatype.Time:
		return arrow.FixedWidthTypes.Time64us, nil
	case datatype.Timestamp:
		unit, err := timeUnit(dt.Unit)
		if err != nil {
			return nil, err
		}
		return &arrow.TimestampType{Unit: unit, TimeZone: dt.TimeZone}, nil
	case datatype.Interval:
		return arrow.FixedWidthTypes.Duration_us, nil
	case datatype.Array:
		elem, err := ToArrow(dt.Elem)
		if err != nil {
			return nil, err
		}
		return arrow.ListOf(elem), nil
	case datatype.Map:
		key, err := ToArrow(dt.Key)
		if err != nil {
			return nil, err
		}
		value, err := ToArrow(dt.Value)
		if err != nil {
			return nil, err
		}
		return arrow.MapOf(key, value), nil
	case datatype.Struct:
		fields := make([]arrow.Field, 0, len(dt.Fields))
		for _, f := range dt.Fields {
			ft, err := ToArrow(f.Type)
			if err != nil {
				return nil, err
			}
			fields = append(fields, arrow.Field{Name: f.Name, Type: ft, Nullable: true})
		}
		return arrow.StructOf(fields...), nil
	default:
		return nil, fmt.Errorf("arrowconv: unsupported type %s", t.Name())
	}
}

func integerType(t datatype.Integer) (arrow.DataType, error) {
	if t.Signed {
		switch t.Width {
		case 8:
			return arrow.PrimitiveTypes.Int8, nil
		case 16:
			return arrow.PrimitiveTypes.Int16, nil
		case 32:
			return arrow.PrimitiveTypes.Int32, nil
		case 64:
			return arrow.PrimitiveTypes.Int64, nil
		}
	} else {
		switch t.Width {
		case 8:
			return arrow.PrimitiveTypes.Uint8, nil
		case 16:
			return arrow.PrimitiveTypes.Uint16, nil
		case 32:
			return arrow.PrimitiveTypes.Uint32, nil
		case 64:
			return arrow.PrimitiveTypes.Uint64, nil
		}
	}
	return nil, fmt.Errorf("arrowconv: unsupported integer width %d", t.Width)
}

func timeUnit(u datatype.TimeUnit) (arrow.TimeUnit, error) {
	switch u {
	case datatype.UnitSecond:
		return arrow.Second, nil
	case datatype.UnitMilli:
		return arrow.Millisecond, nil
	case datatype.UnitMicro:
		return arrow.Microsecond, nil
	case datatype.UnitNano:
		return arrow.Nanosecond, nil
	default:
		return 0, fmt.Errorf("arrowconv: unknown time unit %q", u)
	}
}

// ToArrowField converts a schema field.
func ToArrowField(f datatype.Field) (arrow.Field, error) {
	t, err := ToArrow(f.Type)
	if err != nil {
		return arrow.Field{}, fmt.Errorf("field %s: %w", f.Name, err)
	}
	return arrow.Field{Name: f.Name, Type: t, Nullable: f.Nullable}, nil
}

// ToArrowSchema converts a full schema, preserving field order.
func ToArrowSchema(s *datatype.Schema) (*arrow.Schema, error) {
	fields := make([]arrow.Field, 0, s.Len())
	for _, f := range s.Fields() {
		af, err := ToArrowField(f)
		if err != nil {
			return nil, err
		}
		fields = append(fields, af)
	}
	return arrow.NewSchema(fields, nil), nil
}
