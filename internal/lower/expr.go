package lower

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/quarryql/quarry/internal/datatype"
	"github.com/quarryql/quarry/internal/ir"
)

// resolver turns a column reference into qualified SQL text.
type resolver func(*ir.ColumnRef) (string, error)

// inputResolver qualifies every reference with the single input's alias.
// Name-based resolution is sound here: construction already proved each
// reference names a column of the input's output schema.
func (p *Printer) inputResolver(alias string) resolver {
	d := p.Dialect()
	return func(c *ir.ColumnRef) (string, error) {
		return alias + "." + d.Quote(c.Name()), nil
	}
}

var binarySpelling = map[ir.BinaryOp]string{
	ir.OpAdd: "+",
	ir.OpSub: "-",
	ir.OpMul: "*",
	ir.OpDiv: "/",
	ir.OpMod: "%",
	ir.OpEq:  "=",
	ir.OpNe:  "<>",
	ir.OpLt:  "<",
	ir.OpLe:  "<=",
	ir.OpGt:  ">",
	ir.OpGe:  ">=",
	ir.OpAnd: "AND",
	ir.OpOr:  "OR",
}

func isIntegerType(t datatype.DataType) bool {
	_, ok := t.(datatype.Integer)
	return ok
}

func (p *Printer) expr(v ir.Value, res resolver) (string, error) {
	switch e := v.(type) {
	case *ir.Literal:
		return renderLiteral(e)
	case *ir.ColumnRef:
		return res(e)
	case *ir.UnaryExpr:
		return p.unary(e, res)
	case *ir.BinaryExpr:
		return p.binary(e, res)
	case *ir.AggCall:
		return p.aggCall(e, res)
	case *ir.WindowExpr:
		return p.window(e, res)
	default:
		return "", fmt.Errorf("lower: unknown value kind %s", v.Kind())
	}
}

func (p *Printer) unary(e *ir.UnaryExpr, res resolver) (string, error) {
	if e.Op() == ir.OpRandom {
		// The seed shapes node identity, not the rendered call; SQL
		// engines draw from their own generators.
		return p.Dialect().RandomFunc + "()", nil
	}
	operand, err := p.expr(e.Operand(), res)
	if err != nil {
		return "", err
	}
	switch e.Op() {
	case ir.OpNot:
		return "(NOT " + operand + ")", nil
	case ir.OpNeg:
		return "(-" + operand + ")", nil
	case ir.OpAbs:
		return "abs(" + operand + ")", nil
	case ir.OpIsNull:
		return "(" + operand + " IS NULL)", nil
	default:
		return "", fmt.Errorf("lower: unknown unary operator %q", e.Op())
	}
}

func (p *Printer) binary(e *ir.BinaryExpr, res resolver) (string, error) {
	left, err := p.expr(e.Left(), res)
	if err != nil {
		return "", err
	}
	right, err := p.expr(e.Right(), res)
	if err != nil {
		return "", err
	}
	if e.Op() == ir.OpConcat {
		if p.Dialect().ConcatFunc {
			return "concat(" + left + ", " + right + ")", nil
		}
		return "(" + left + " || " + right + ")", nil
	}
	// Division over two integers must not truncate: the node's result type
	// is a float, so one operand is promoted before the engine divides.
	if e.Op() == ir.OpDiv && isIntegerType(e.Left().Type()) && isIntegerType(e.Right().Type()) {
		left = "CAST(" + left + " AS " + p.Dialect().FloatCast + ")"
	}
	sp, ok := binarySpelling[e.Op()]
	if !ok {
		return "", fmt.Errorf("lower: unknown binary operator %q", e.Op())
	}
	return "(" + left + " " + sp + " " + right + ")", nil
}

func (p *Printer) aggCall(e *ir.AggCall, res resolver) (string, error) {
	if e.Arg() == nil {
		return "count(*)", nil
	}
	arg, err := p.expr(e.Arg(), res)
	if err != nil {
		return "", err
	}
	return string(e.Func()) + "(" + arg + ")", nil
}

func (p *Printer) window(e *ir.WindowExpr, res resolver) (string, error) {
	if !p.backend.Supports(CapWindow) {
		return "", &UnsupportedOperationError{Backend: p.backend.Name, Operation: "window functions"}
	}
	call := string(e.Func()) + "("
	if e.Arg() != nil {
		arg, err := p.expr(e.Arg(), res)
		if err != nil {
			return "", err
		}
		call += arg
	} else if e.Func() == ir.WinCount {
		call += "*"
	}
	call += ")"

	var over []string
	if parts := e.PartitionBy(); len(parts) > 0 {
		texts := make([]string, 0, len(parts))
		for _, part := range parts {
			text, err := p.expr(part, res)
			if err != nil {
				return "", err
			}
			texts = append(texts, text)
		}
		over = append(over, "PARTITION BY "+strings.Join(texts, ", "))
	}
	if keys := e.OrderBy(); len(keys) > 0 {
		text, err := p.sortKeys(keys, res)
		if err != nil {
			return "", err
		}
		over = append(over, "ORDER BY "+text)
	}
	return call + " OVER (" + strings.Join(over, " ") + ")", nil
}

func renderLiteral(l *ir.Literal) (string, error) {
	switch v := l.Value().(type) {
	case nil:
		return "NULL", nil
	case bool:
		if v {
			return "TRUE", nil
		}
		return "FALSE", nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		s := strconv.FormatFloat(v, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return s, nil
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'", nil
	case []byte:
		return "X'" + hex.EncodeToString(v) + "'", nil
	default:
		return "", fmt.Errorf("lower: unsupported literal value %T", v)
	}
}
