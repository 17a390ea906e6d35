package cli

import (
	"bytes"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/quarryql/quarry/internal/catalog"
	"github.com/quarryql/quarry/internal/ir"
)

// Pipeline is the YAML shape of a deferred query: a source table and a
// sequence of steps applied in order. Expressions are structured nodes
// rather than parsed strings, so the file format carries no SQL dialect.
type Pipeline struct {
	From  string `yaml:"from"`
	Steps []Step `yaml:"steps"`
}

// Step holds exactly one operation; the populated field selects it.
type Step struct {
	Filter    *ExprNode      `yaml:"filter,omitempty"`
	Project   []FieldNode    `yaml:"project,omitempty"`
	Aggregate *AggregateStep `yaml:"aggregate,omitempty"`
	Join      *JoinStep      `yaml:"join,omitempty"`
	Sort      []SortNode     `yaml:"sort,omitempty"`
	Limit     *LimitStep     `yaml:"limit,omitempty"`
	Union     *SetStep       `yaml:"union,omitempty"`
	Intersect *SetStep       `yaml:"intersect,omitempty"`
	Except    *SetStep       `yaml:"except,omitempty"`
}

// ExprNode is one expression in a pipeline file. Exactly one of the
// variant groups may be set: a column reference, a literal, an operator
// with operands, or a window specification.
type ExprNode struct {
	Column string `yaml:"column,omitempty"`

	Int         *int64   `yaml:"int,omitempty"`
	Float       *float64 `yaml:"float,omitempty"`
	Str         *string  `yaml:"str,omitempty"`
	Bool        *bool    `yaml:"bool,omitempty"`
	NullLiteral bool     `yaml:"null_literal,omitempty"`

	Op      string    `yaml:"op,omitempty"`
	Left    *ExprNode `yaml:"left,omitempty"`
	Right   *ExprNode `yaml:"right,omitempty"`
	Operand *ExprNode `yaml:"operand,omitempty"`

	Window *WindowNode `yaml:"window,omitempty"`
}

// FieldNode names an output column. A nil Expr means "the input column of
// the same name".
type FieldNode struct {
	Name string    `yaml:"name"`
	Expr *ExprNode `yaml:"expr,omitempty"`
}

// WindowNode is a window function specification inside a projection.
type WindowNode struct {
	Func        string      `yaml:"func"`
	Arg         *ExprNode   `yaml:"arg,omitempty"`
	PartitionBy []*ExprNode `yaml:"partition_by,omitempty"`
	OrderBy     []SortNode  `yaml:"order_by,omitempty"`
}

// SortNode is one ordering term. By is a column-name shorthand for Expr.
type SortNode struct {
	By   string    `yaml:"by,omitempty"`
	Expr *ExprNode `yaml:"expr,omitempty"`
	Desc bool      `yaml:"desc,omitempty"`
}

// AggregateStep groups and reduces. Group keys default their expression to
// the input column of the same name.
type AggregateStep struct {
	GroupBy []FieldNode `yaml:"group_by,omitempty"`
	Aggs    []AggNode   `yaml:"aggs,omitempty"`
}

// AggNode is one reduction. Arg may be omitted only for count.
type AggNode struct {
	Name string    `yaml:"name"`
	Func string    `yaml:"func"`
	Arg  *ExprNode `yaml:"arg,omitempty"`
}

// JoinStep joins the pipeline so far against a catalog table. In the ON
// expression, columns of the accumulated left side resolve under the
// "left" qualifier and the joined table's columns under its table name;
// unambiguous bare names resolve directly.
type JoinStep struct {
	Kind  string    `yaml:"kind,omitempty"` // defaults to inner
	Table string    `yaml:"table"`
	On    *ExprNode `yaml:"on,omitempty"`
}

// LimitStep truncates the row stream.
type LimitStep struct {
	Count  int64 `yaml:"count"`
	Offset int64 `yaml:"offset,omitempty"`
}

// SetStep combines the pipeline so far with a nested pipeline.
type SetStep struct {
	Pipeline Pipeline `yaml:"pipeline"`
	All      bool     `yaml:"all,omitempty"`
}

// ParsePipeline decodes a pipeline file. Unknown YAML keys are rejected so
// a typoed step name fails loudly instead of decoding to an empty step.
func ParsePipeline(data []byte) (*Pipeline, error) {
	var p Pipeline
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("parsing pipeline: %w", err)
	}
	if p.From == "" {
		return nil, errors.New("pipeline: missing source table (from)")
	}
	return &p, nil
}

// Build constructs the expression tree the pipeline describes, resolving
// table and column names against cat. Construction errors carry the
// 1-based step index.
func (p *Pipeline) Build(cat *catalog.Catalog) (ir.Relation, error) {
	rel, err := buildFrom(p.From, cat)
	if err != nil {
		return nil, err
	}
	for i := range p.Steps {
		next, err := p.Steps[i].apply(rel, cat)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		rel = next
	}
	return rel, nil
}

func buildFrom(name string, cat *catalog.Catalog) (ir.Relation, error) {
	t, err := cat.Table(name)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Step) apply(input ir.Relation, cat *catalog.Catalog) (ir.Relation, error) {
	set := 0
	for _, present := range []bool{
		s.Filter != nil, s.Project != nil, s.Aggregate != nil, s.Join != nil,
		s.Sort != nil, s.Limit != nil, s.Union != nil, s.Intersect != nil,
		s.Except != nil,
	} {
		if present {
			set++
		}
	}
	if set != 1 {
		return nil, fmt.Errorf("a step must hold exactly one operation, found %d", set)
	}

	switch {
	case s.Filter != nil:
		return buildFilter(input, s.Filter)
	case s.Project != nil:
		return buildProjection(input, s.Project)
	case s.Aggregate != nil:
		return buildAggregation(input, s.Aggregate)
	case s.Join != nil:
		return buildJoin(input, s.Join, cat)
	case s.Sort != nil:
		return buildSort(input, s.Sort)
	case s.Limit != nil:
		return ir.NewLimit(input, s.Limit.Count, s.Limit.Offset)
	case s.Union != nil:
		return buildSetOp(input, ir.SetUnion, s.Union, cat)
	case s.Intersect != nil:
		return buildSetOp(input, ir.SetIntersect, s.Intersect, cat)
	default:
		return buildSetOp(input, ir.SetExcept, s.Except, cat)
	}
}

func inputScope(rel ir.Relation) (*ir.Scope, error) {
	sc := ir.NewScope()
	if err := sc.AddRelation("", rel); err != nil {
		return nil, err
	}
	return sc, nil
}

func buildFilter(input ir.Relation, pred *ExprNode) (ir.Relation, error) {
	sc, err := inputScope(input)
	if err != nil {
		return nil, err
	}
	v, err := buildValue(pred, sc)
	if err != nil {
		return nil, err
	}
	return ir.NewFilter(input, v)
}

func buildProjection(input ir.Relation, fields []FieldNode) (ir.Relation, error) {
	sc, err := inputScope(input)
	if err != nil {
		return nil, err
	}
	exprs := make([]ir.NamedValue, 0, len(fields))
	for _, f := range fields {
		if f.Name == "" {
			return nil, errors.New("projection field missing a name")
		}
		v, err := buildField(f, sc)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		exprs = append(exprs, ir.NamedValue{Name: f.Name, Value: v})
		// Later fields may reference this alias; input columns of the
		// same name stay bound to their original meaning.
		if _, rerr := sc.Resolve(f.Name); rerr != nil {
			var unbound *ir.UnboundColumnError
			if errors.As(rerr, &unbound) {
				if derr := sc.Define(f.Name, v); derr != nil {
					return nil, derr
				}
			}
		}
	}
	return ir.NewProjection(input, exprs)
}

func buildField(f FieldNode, sc *ir.Scope) (ir.Value, error) {
	if f.Expr == nil {
		return sc.Resolve(f.Name)
	}
	return buildValue(f.Expr, sc)
}

func buildAggregation(input ir.Relation, step *AggregateStep) (ir.Relation, error) {
	sc, err := inputScope(input)
	if err != nil {
		return nil, err
	}
	groupBy := make([]ir.NamedValue, 0, len(step.GroupBy))
	for _, f := range step.GroupBy {
		if f.Name == "" {
			return nil, errors.New("group key missing a name")
		}
		v, err := buildField(f, sc)
		if err != nil {
			return nil, fmt.Errorf("group key %s: %w", f.Name, err)
		}
		groupBy = append(groupBy, ir.NamedValue{Name: f.Name, Value: v})
	}
	aggs := make([]ir.NamedValue, 0, len(step.Aggs))
	for _, a := range step.Aggs {
		if a.Name == "" {
			return nil, errors.New("reduction missing a name")
		}
		var arg ir.Value
		if a.Arg != nil {
			arg, err = buildValue(a.Arg, sc)
			if err != nil {
				return nil, fmt.Errorf("reduction %s: %w", a.Name, err)
			}
		}
		call, err := ir.NewAgg(ir.AggFunc(a.Func), arg)
		if err != nil {
			return nil, fmt.Errorf("reduction %s: %w", a.Name, err)
		}
		aggs = append(aggs, ir.NamedValue{Name: a.Name, Value: call})
	}
	return ir.NewAggregation(input, groupBy, aggs)
}

func buildJoin(input ir.Relation, step *JoinStep, cat *catalog.Catalog) (ir.Relation, error) {
	kind := ir.JoinKind(step.Kind)
	if step.Kind == "" {
		kind = ir.JoinInner
	}
	right, err := cat.Table(step.Table)
	if err != nil {
		return nil, err
	}
	var on ir.Value
	if step.On != nil {
		sc := ir.NewScope()
		if err := sc.AddRelation("left", input); err != nil {
			return nil, err
		}
		if err := sc.AddRelation(step.Table, right); err != nil {
			return nil, err
		}
		on, err = buildValue(step.On, sc)
		if err != nil {
			return nil, err
		}
	}
	return ir.NewJoin(kind, input, right, on)
}

func buildSort(input ir.Relation, nodes []SortNode) (ir.Relation, error) {
	sc, err := inputScope(input)
	if err != nil {
		return nil, err
	}
	keys, err := buildSortKeys(nodes, sc)
	if err != nil {
		return nil, err
	}
	return ir.NewSort(input, keys)
}

func buildSortKeys(nodes []SortNode, sc *ir.Scope) ([]ir.SortKey, error) {
	keys := make([]ir.SortKey, 0, len(nodes))
	for _, n := range nodes {
		var (
			v   ir.Value
			err error
		)
		switch {
		case n.By != "" && n.Expr != nil:
			return nil, fmt.Errorf("sort key %q: by and expr are mutually exclusive", n.By)
		case n.By != "":
			v, err = sc.Resolve(n.By)
		case n.Expr != nil:
			v, err = buildValue(n.Expr, sc)
		default:
			return nil, errors.New("sort key missing by or expr")
		}
		if err != nil {
			return nil, err
		}
		keys = append(keys, ir.SortKey{Expr: v, Desc: n.Desc})
	}
	return keys, nil
}

func buildSetOp(left ir.Relation, kind ir.SetOpKind, step *SetStep, cat *catalog.Catalog) (ir.Relation, error) {
	right, err := step.Pipeline.Build(cat)
	if err != nil {
		return nil, fmt.Errorf("%s operand: %w", kind, err)
	}
	return ir.NewSetOp(kind, left, right, step.All)
}

func buildValue(n *ExprNode, sc *ir.Scope) (ir.Value, error) {
	if n == nil {
		return nil, errors.New("missing expression")
	}
	switch {
	case n.Column != "":
		return sc.Resolve(n.Column)
	case n.Int != nil:
		return ir.Int(*n.Int), nil
	case n.Float != nil:
		return ir.Float(*n.Float), nil
	case n.Str != nil:
		return ir.Str(*n.Str), nil
	case n.Bool != nil:
		return ir.Bool(*n.Bool), nil
	case n.NullLiteral:
		return ir.NullLiteral(), nil
	case n.Window != nil:
		return buildWindow(n.Window, sc)
	case n.Op != "" && n.Operand != nil:
		operand, err := buildValue(n.Operand, sc)
		if err != nil {
			return nil, err
		}
		return ir.NewUnary(ir.UnaryOp(n.Op), operand)
	case n.Op != "":
		left, err := buildValue(n.Left, sc)
		if err != nil {
			return nil, err
		}
		right, err := buildValue(n.Right, sc)
		if err != nil {
			return nil, err
		}
		return ir.NewBinary(ir.BinaryOp(n.Op), left, right)
	default:
		return nil, errors.New("empty expression node")
	}
}

func buildWindow(w *WindowNode, sc *ir.Scope) (ir.Value, error) {
	var (
		arg ir.Value
		err error
	)
	if w.Arg != nil {
		arg, err = buildValue(w.Arg, sc)
		if err != nil {
			return nil, err
		}
	}
	partitionBy := make([]ir.Value, 0, len(w.PartitionBy))
	for _, pn := range w.PartitionBy {
		v, err := buildValue(pn, sc)
		if err != nil {
			return nil, err
		}
		partitionBy = append(partitionBy, v)
	}
	orderBy, err := buildSortKeys(w.OrderBy, sc)
	if err != nil {
		return nil, err
	}
	return ir.NewWindow(ir.WindowFunc(w.Func), arg, partitionBy, orderBy)
}
