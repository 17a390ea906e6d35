package datatype

import (
	"fmt"
	"strconv"
	"strings"
)

// Parse converts a canonical type name back into a DataType. It accepts
// exactly the forms produced by Name, plus the aliases "bool" and "int".
//
// Examples:
//
//	Parse("int64")
//	Parse("decimal(38,9)")
//	Parse("timestamp(us,\"UTC\")")
//	Parse("array<struct<a: int64, b: string>>")
//
// Parse is how catalog files name column types; it is the inverse of Name
// up to alias spelling.
func Parse(s string) (DataType, error) {
	p := &typeParser{input: s}
	t, err := p.parseType()
	if err != nil {
		return nil, err
	}
	p.skipSpaces()
	if p.pos != len(p.input) {
		return nil, fmt.Errorf("parse type %q: trailing input at offset %d", s, p.pos)
	}
	return t, nil
}

// MustParse is Parse that panics on error. Intended for fixed types in
// tests and examples.
func MustParse(s string) DataType {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

type typeParser struct {
	input string
	pos   int
}

func (p *typeParser) skipSpaces() {
	for p.pos < len(p.input) && p.input[p.pos] == ' ' {
		p.pos++
	}
}

func (p *typeParser) peek() byte {
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func (p *typeParser) expect(c byte) error {
	p.skipSpaces()
	if p.peek() != c {
		return fmt.Errorf("parse type %q: expected %q at offset %d", p.input, string(c), p.pos)
	}
	p.pos++
	return nil
}

func (p *typeParser) ident() string {
	p.skipSpaces()
	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' {
			p.pos++
			continue
		}
		break
	}
	return p.input[start:p.pos]
}

func (p *typeParser) number() (int, error) {
	p.skipSpaces()
	start := p.pos
	for p.pos < len(p.input) && p.input[p.pos] >= '0' && p.input[p.pos] <= '9' {
		p.pos++
	}
	if start == p.pos {
		return 0, fmt.Errorf("parse type %q: expected number at offset %d", p.input, start)
	}
	return strconv.Atoi(p.input[start:p.pos])
}

func (p *typeParser) quoted() (string, error) {
	p.skipSpaces()
	if p.peek() != '"' {
		return "", fmt.Errorf("parse type %q: expected quoted string at offset %d", p.input, p.pos)
	}
	p.pos++
	start := p.pos
	for p.pos < len(p.input) && p.input[p.pos] != '"' {
		p.pos++
	}
	if p.pos >= len(p.input) {
		return "", fmt.Errorf("parse type %q: unterminated string", p.input)
	}
	s := p.input[start:p.pos]
	p.pos++
	return s, nil
}

func (p *typeParser) parseType() (DataType, error) {
	name := strings.ToLower(p.ident())
	switch name {
	case "null":
		return Null{}, nil
	case "boolean", "bool":
		return Boolean{}, nil
	case "int8", "int16", "int32", "int64", "uint8", "uint16", "uint32", "uint64":
		signed := !strings.HasPrefix(name, "u")
		widthStr := strings.TrimPrefix(strings.TrimPrefix(name, "u"), "int")
		width, _ := strconv.Atoi(widthStr)
		return Integer{Width: width, Signed: signed}, nil
	case "int":
		return Int64, nil
	case "float32", "float64":
		width, _ := strconv.Atoi(strings.TrimPrefix(name, "float"))
		return Float{Width: width}, nil
	case "string":
		return String{}, nil
	case "binary":
		return Binary{}, nil
	case "date":
		return Date{}, nil
	case "time":
		return Time{}, nil
	case "interval":
		return Interval{}, nil
	case "decimal":
		if err := p.expect('('); err != nil {
			return nil, err
		}
		prec, err := p.number()
		if err != nil {
			return nil, err
		}
		if err := p.expect(','); err != nil {
			return nil, err
		}
		scale, err := p.number()
		if err != nil {
			return nil, err
		}
		if err := p.expect(')'); err != nil {
			return nil, err
		}
		return Decimal{Precision: prec, Scale: scale}, nil
	case "timestamp":
		t := Timestamp{Unit: UnitMicro}
		p.skipSpaces()
		if p.peek() != '(' {
			return t, nil
		}
		p.pos++
		unit := TimeUnit(p.ident())
		switch unit {
		case UnitSecond, UnitMilli, UnitMicro, UnitNano:
			t.Unit = unit
		default:
			return nil, fmt.Errorf("parse type %q: unknown time unit %q", p.input, unit)
		}
		p.skipSpaces()
		if p.peek() == ',' {
			p.pos++
			tz, err := p.quoted()
			if err != nil {
				return nil, err
			}
			t.TimeZone = tz
		}
		if err := p.expect(')'); err != nil {
			return nil, err
		}
		return t, nil
	case "array":
		if err := p.expect('<'); err != nil {
			return nil, err
		}
		elem, err := p.parseType()
		if err != nil {
			return nil, err
		}
		if err := p.expect('>'); err != nil {
			return nil, err
		}
		return Array{Elem: elem}, nil
	case "map":
		if err := p.expect('<'); err != nil {
			return nil, err
		}
		key, err := p.parseType()
		if err != nil {
			return nil, err
		}
		if err := p.expect(','); err != nil {
			return nil, err
		}
		val, err := p.parseType()
		if err != nil {
			return nil, err
		}
		if err := p.expect('>'); err != nil {
			return nil, err
		}
		return Map{Key: key, Value: val}, nil
	case "struct":
		if err := p.expect('<'); err != nil {
			return nil, err
		}
		var fields []StructField
		for {
			fname := p.ident()
			if fname == "" {
				return nil, fmt.Errorf("parse type %q: expected field name at offset %d", p.input, p.pos)
			}
			if err := p.expect(':'); err != nil {
				return nil, err
			}
			ft, err := p.parseType()
			if err != nil {
				return nil, err
			}
			fields = append(fields, StructField{Name: fname, Type: ft})
			p.skipSpaces()
			if p.peek() == ',' {
				p.pos++
				continue
			}
			break
		}
		if err := p.expect('>'); err != nil {
			return nil, err
		}
		return Struct{Fields: fields}, nil
	case "":
		return nil, fmt.Errorf("parse type %q: expected type name at offset %d", p.input, p.pos)
	default:
		return nil, fmt.Errorf("parse type %q: unknown type %q", p.input, name)
	}
}
