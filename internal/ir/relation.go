package ir

import (
	"fmt"
	"strconv"

	"github.com/quarryql/quarry/internal/datatype"
)

// passthroughInput returns the input of a relation that exposes its input's
// columns unchanged (filter, sort, limit), or nil. Column references remain
// valid across these nodes, so origin checking follows them transitively.
func passthroughInput(r Relation) Relation {
	switch t := r.(type) {
	case *Filter:
		return t.input
	case *Sort:
		return t.input
	case *Limit:
		return t.input
	default:
		return nil
	}
}

// originSet collects the fingerprints of every relation whose columns are
// addressable from the given inputs.
func originSet(inputs ...Relation) map[string]bool {
	seen := make(map[string]bool)
	for _, in := range inputs {
		for r := in; r != nil; r = passthroughInput(r) {
			seen[r.Fingerprint()] = true
		}
	}
	return seen
}

// validateRefs checks that every column reference beneath v resolves to one
// of the given relational inputs. A reference into a relation outside the
// accessible scope fails with UnboundColumnError listing the columns that
// are visible.
func validateRefs(v Value, inputs ...Relation) error {
	allowed := originSet(inputs...)
	for _, ref := range ColumnRefs(v) {
		if !allowed[ref.rel.Fingerprint()] {
			var candidates []string
			for _, in := range inputs {
				candidates = append(candidates, in.Schema().Names()...)
			}
			return newUnboundColumnError(ref.name, candidates)
		}
	}
	return nil
}

// Table is a leaf relation: a named base table with a caller-supplied
// schema. The compiler never infers schemas from live data.
type Table struct {
	fp     string
	name   string
	schema *datatype.Schema
}

// NewTable builds a base table reference.
func NewTable(name string, schema *datatype.Schema) (*Table, error) {
	if name == "" {
		return nil, fmt.Errorf("table name must not be empty")
	}
	if schema == nil || schema.Len() == 0 {
		return nil, fmt.Errorf("table %q requires a non-empty schema", name)
	}
	t := &Table{name: name, schema: schema}
	t.fp = fingerprint(KindTable, []string{canonicalName(name), schema.String()})
	return t, nil
}

func (t *Table) node()                    {}
func (t *Table) relationNode()            {}
func (t *Table) Kind() Kind               { return KindTable }
func (t *Table) Fingerprint() string      { return t.fp }
func (t *Table) Schema() *datatype.Schema { return t.schema }

// Name returns the base table name.
func (t *Table) Name() string { return t.name }

// Projection narrows a relation to an ordered list of named value
// expressions. The output schema is exactly the declared list, in declared
// order.
type Projection struct {
	fp     string
	input  Relation
	exprs  []NamedValue
	schema *datatype.Schema
}

// NewProjection builds a projection over input. Expressions may reference
// input's columns (and, through filters and sorts, the columns of the
// relations beneath them). Reductions are rejected: they only make sense
// under an Aggregation.
func NewProjection(input Relation, exprs []NamedValue) (*Projection, error) {
	if len(exprs) == 0 {
		return nil, &SchemaMismatchError{Op: "projection", Message: "expression list must not be empty"}
	}
	fields := make([]datatype.Field, len(exprs))
	for i, nv := range exprs {
		if nv.Name == "" {
			return nil, &SchemaMismatchError{Op: "projection", Message: fmt.Sprintf("expression %d has no output name", i)}
		}
		if nv.Value == nil {
			return nil, fmt.Errorf("projection expression %q is nil", nv.Name)
		}
		if ContainsAgg(nv.Value) {
			return nil, &TypeError{Op: "projection", Message: fmt.Sprintf("expression %q uses an aggregate outside an aggregation context", nv.Name)}
		}
		if err := validateRefs(nv.Value, input); err != nil {
			return nil, err
		}
		fields[i] = datatype.Field{Name: nv.Name, Type: nv.Value.Type(), Nullable: nv.Value.Nullable()}
	}
	schema, err := datatype.NewSchema(fields)
	if err != nil {
		return nil, &SchemaMismatchError{Op: "projection", Message: err.Error()}
	}
	p := &Projection{input: input, exprs: append([]NamedValue(nil), exprs...), schema: schema}
	params := make([]string, len(exprs))
	children := []Node{input}
	for i, nv := range p.exprs {
		params[i] = canonicalName(nv.Name)
		children = append(children, nv.Value)
	}
	p.fp = fingerprint(KindProjection, params, children...)
	return p, nil
}

func (p *Projection) node()                    {}
func (p *Projection) relationNode()            {}
func (p *Projection) Kind() Kind               { return KindProjection }
func (p *Projection) Fingerprint() string      { return p.fp }
func (p *Projection) Schema() *datatype.Schema { return p.schema }

// Input returns the projected relation.
func (p *Projection) Input() Relation { return p.input }

// Exprs returns the ordered output expressions.
func (p *Projection) Exprs() []NamedValue { return append([]NamedValue(nil), p.exprs...) }

// Expr returns the expression producing the named output column.
func (p *Projection) Expr(name string) (Value, bool) {
	for _, nv := range p.exprs {
		if nv.Name == name {
			return nv.Value, true
		}
	}
	return nil, false
}

// Filter keeps the rows of its input for which a boolean predicate holds.
// Its schema is its input's schema, unchanged.
type Filter struct {
	fp        string
	input     Relation
	predicate Value
}

// NewFilter builds a filter over input.
func NewFilter(input Relation, predicate Value) (*Filter, error) {
	if predicate == nil {
		return nil, fmt.Errorf("filter predicate is nil")
	}
	if _, ok := predicate.Type().(datatype.Boolean); !ok {
		return nil, newTypeError("filter", "predicate must be boolean", predicate.Type())
	}
	if ContainsAgg(predicate) {
		return nil, &TypeError{Op: "filter", Message: "predicate uses an aggregate; filter over an aggregation's output instead"}
	}
	if ContainsWindow(predicate) {
		return nil, &TypeError{Op: "filter", Message: "predicate must not contain a window expression"}
	}
	if err := validateRefs(predicate, input); err != nil {
		return nil, err
	}
	f := &Filter{input: input, predicate: predicate}
	f.fp = fingerprint(KindFilter, nil, input, predicate)
	return f, nil
}

func (f *Filter) node()                    {}
func (f *Filter) relationNode()            {}
func (f *Filter) Kind() Kind               { return KindFilter }
func (f *Filter) Fingerprint() string      { return f.fp }
func (f *Filter) Schema() *datatype.Schema { return f.input.Schema() }

// Input returns the filtered relation.
func (f *Filter) Input() Relation { return f.input }

// Predicate returns the boolean predicate.
func (f *Filter) Predicate() Value { return f.predicate }

// Aggregation groups its input by key expressions and computes named
// reductions per group. The output schema is the group keys followed by the
// reductions, in declared order.
type Aggregation struct {
	fp      string
	input   Relation
	groupBy []NamedValue
	aggs    []NamedValue
	schema  *datatype.Schema
}

// NewAggregation builds an aggregation. Every reduction entry must be a
// top-level AggCall; group keys must be reduction-free.
func NewAggregation(input Relation, groupBy, aggs []NamedValue) (*Aggregation, error) {
	if len(groupBy)+len(aggs) == 0 {
		return nil, &SchemaMismatchError{Op: "aggregation", Message: "requires at least one group key or reduction"}
	}
	fields := make([]datatype.Field, 0, len(groupBy)+len(aggs))
	for _, nv := range groupBy {
		if nv.Name == "" || nv.Value == nil {
			return nil, &SchemaMismatchError{Op: "aggregation", Message: "group key requires a name and an expression"}
		}
		if ContainsAgg(nv.Value) || ContainsWindow(nv.Value) {
			return nil, &TypeError{Op: "aggregation", Message: fmt.Sprintf("group key %q must not contain a reduction or window", nv.Name)}
		}
		if err := validateRefs(nv.Value, input); err != nil {
			return nil, err
		}
		fields = append(fields, datatype.Field{Name: nv.Name, Type: nv.Value.Type(), Nullable: nv.Value.Nullable()})
	}
	for _, nv := range aggs {
		if nv.Name == "" || nv.Value == nil {
			return nil, &SchemaMismatchError{Op: "aggregation", Message: "reduction requires a name and an expression"}
		}
		call, ok := nv.Value.(*AggCall)
		if !ok {
			return nil, &TypeError{Op: "aggregation", Message: fmt.Sprintf("reduction %q must be an aggregate call", nv.Name)}
		}
		if call.arg != nil {
			if ContainsAgg(call.arg) || ContainsWindow(call.arg) {
				return nil, &TypeError{Op: "aggregation", Message: fmt.Sprintf("reduction %q argument must not nest reductions or windows", nv.Name)}
			}
			if err := validateRefs(call.arg, input); err != nil {
				return nil, err
			}
		}
		fields = append(fields, datatype.Field{Name: nv.Name, Type: call.typ, Nullable: call.nullable})
	}
	schema, err := datatype.NewSchema(fields)
	if err != nil {
		return nil, &SchemaMismatchError{Op: "aggregation", Message: err.Error()}
	}
	a := &Aggregation{
		input:   input,
		groupBy: append([]NamedValue(nil), groupBy...),
		aggs:    append([]NamedValue(nil), aggs...),
		schema:  schema,
	}
	params := []string{strconv.Itoa(len(groupBy))}
	children := []Node{input}
	for _, nv := range a.groupBy {
		params = append(params, canonicalName(nv.Name))
		children = append(children, nv.Value)
	}
	for _, nv := range a.aggs {
		params = append(params, canonicalName(nv.Name))
		children = append(children, nv.Value)
	}
	a.fp = fingerprint(KindAggregation, params, children...)
	return a, nil
}

func (a *Aggregation) node()                    {}
func (a *Aggregation) relationNode()            {}
func (a *Aggregation) Kind() Kind               { return KindAggregation }
func (a *Aggregation) Fingerprint() string      { return a.fp }
func (a *Aggregation) Schema() *datatype.Schema { return a.schema }

// Input returns the grouped relation.
func (a *Aggregation) Input() Relation { return a.input }

// GroupBy returns the ordered group keys.
func (a *Aggregation) GroupBy() []NamedValue { return append([]NamedValue(nil), a.groupBy...) }

// Aggs returns the ordered reductions.
func (a *Aggregation) Aggs() []NamedValue { return append([]NamedValue(nil), a.aggs...) }

// IsGroupKey reports whether the named output column is a group key (as
// opposed to a reduction).
func (a *Aggregation) IsGroupKey(name string) bool {
	for _, nv := range a.groupBy {
		if nv.Name == name {
			return true
		}
	}
	return false
}

// JoinKind selects join semantics.
type JoinKind string

const (
	JoinInner JoinKind = "inner"
	JoinLeft  JoinKind = "left"
	JoinRight JoinKind = "right"
	JoinOuter JoinKind = "outer"
	JoinCross JoinKind = "cross"
)

// joinOrigin records which side an output column came from and its name
// there, so lowering can address it without re-deriving the rename.
type joinOrigin struct {
	right bool
	col   string
}

// Join combines two relations. Same-named columns from the right side are
// suffixed "_right" in the output schema; the join predicate itself is
// unaffected, since its references are table-scoped by construction.
type Join struct {
	fp          string
	left, right Relation
	kind        JoinKind
	on          Value
	schema      *datatype.Schema
	origins     []joinOrigin
}

// NewJoin builds a join. The predicate's column references must be
// satisfiable from exactly the union of the two input scopes; a cross join
// takes no predicate.
func NewJoin(kind JoinKind, left, right Relation, on Value) (*Join, error) {
	switch kind {
	case JoinInner, JoinLeft, JoinRight, JoinOuter, JoinCross:
	default:
		return nil, fmt.Errorf("unknown join kind %q", kind)
	}
	if kind == JoinCross {
		if on != nil {
			return nil, &TypeError{Op: "join", Message: "cross join takes no predicate"}
		}
	} else {
		if on == nil {
			return nil, &TypeError{Op: "join", Message: fmt.Sprintf("%s join requires a predicate", kind)}
		}
		if _, ok := on.Type().(datatype.Boolean); !ok {
			return nil, newTypeError("join", "predicate must be boolean", on.Type())
		}
		if ContainsAgg(on) || ContainsWindow(on) {
			return nil, &TypeError{Op: "join", Message: "predicate must not contain reductions or windows"}
		}
		if err := validateRefs(on, left, right); err != nil {
			return nil, err
		}
	}

	leftNullable := kind == JoinRight || kind == JoinOuter
	rightNullable := kind == JoinLeft || kind == JoinOuter

	var fields []datatype.Field
	var origins []joinOrigin
	for _, f := range left.Schema().Fields() {
		fields = append(fields, datatype.Field{Name: f.Name, Type: f.Type, Nullable: f.Nullable || leftNullable})
		origins = append(origins, joinOrigin{right: false, col: f.Name})
	}
	for _, f := range right.Schema().Fields() {
		name := f.Name
		if _, taken := left.Schema().Lookup(name); taken {
			name += "_right"
		}
		fields = append(fields, datatype.Field{Name: name, Type: f.Type, Nullable: f.Nullable || rightNullable})
		origins = append(origins, joinOrigin{right: true, col: f.Name})
	}
	schema, err := datatype.NewSchema(fields)
	if err != nil {
		return nil, &SchemaMismatchError{Op: "join", Left: left.Schema(), Right: right.Schema(), Message: err.Error()}
	}

	j := &Join{left: left, right: right, kind: kind, on: on, schema: schema, origins: origins}
	children := []Node{left, right}
	if on != nil {
		children = append(children, on)
	}
	j.fp = fingerprint(KindJoin, []string{string(kind)}, children...)
	return j, nil
}

func (j *Join) node()                    {}
func (j *Join) relationNode()            {}
func (j *Join) Kind() Kind               { return KindJoin }
func (j *Join) Fingerprint() string      { return j.fp }
func (j *Join) Schema() *datatype.Schema { return j.schema }

// Left returns the left input.
func (j *Join) Left() Relation { return j.left }

// Right returns the right input.
func (j *Join) Right() Relation { return j.right }

// JoinKind returns the join semantics tag.
func (j *Join) JoinKind() JoinKind { return j.kind }

// On returns the join predicate, nil for cross joins.
func (j *Join) On() Value { return j.on }

// Origin maps an output column name to the side it came from and its name
// there.
func (j *Join) Origin(name string) (side Relation, col string, ok bool) {
	i := j.schema.Position(name)
	if i < 0 {
		return nil, "", false
	}
	o := j.origins[i]
	if o.right {
		return j.right, o.col, true
	}
	return j.left, o.col, true
}

// SetOpKind tags a set operation.
type SetOpKind string

const (
	SetUnion     SetOpKind = "union"
	SetIntersect SetOpKind = "intersect"
	SetExcept    SetOpKind = "except"
)

// SetOp combines two schema-compatible relations by union, intersection or
// difference. All selects bag semantics (UNION ALL) where the backend
// supports it; it applies to unions only.
type SetOp struct {
	fp          string
	kind        SetOpKind
	all         bool
	left, right Relation
	schema      *datatype.Schema
}

// NewSetOp builds a set operation. Field counts must match and types must
// pairwise unify; the output adopts the left-hand schema's names.
func NewSetOp(kind SetOpKind, left, right Relation, all bool) (*SetOp, error) {
	switch kind {
	case SetUnion, SetIntersect, SetExcept:
	default:
		return nil, fmt.Errorf("unknown set operation %q", kind)
	}
	if all && kind != SetUnion {
		return nil, &SchemaMismatchError{Op: string(kind), Message: "bag semantics is only defined for union"}
	}
	schema, err := datatype.UnifySchemas(left.Schema(), right.Schema())
	if err != nil {
		return nil, &SchemaMismatchError{Op: string(kind), Left: left.Schema(), Right: right.Schema(), Message: err.Error()}
	}
	s := &SetOp{kind: kind, all: all, left: left, right: right, schema: schema}
	s.fp = fingerprint(KindSetOp, []string{string(kind), strconv.FormatBool(all)}, left, right)
	return s, nil
}

func (s *SetOp) node()                    {}
func (s *SetOp) relationNode()            {}
func (s *SetOp) Kind() Kind               { return KindSetOp }
func (s *SetOp) Fingerprint() string      { return s.fp }
func (s *SetOp) Schema() *datatype.Schema { return s.schema }

// SetKind returns the set operation tag.
func (s *SetOp) SetKind() SetOpKind { return s.kind }

// All reports bag semantics (UNION ALL).
func (s *SetOp) All() bool { return s.all }

// Left returns the left input.
func (s *SetOp) Left() Relation { return s.left }

// Right returns the right input.
func (s *SetOp) Right() Relation { return s.right }

// Sort orders its input by a list of (key, direction) terms. Its schema is
// its input's schema, unchanged.
type Sort struct {
	fp    string
	input Relation
	keys  []SortKey
}

// NewSort builds a sort over input.
func NewSort(input Relation, keys []SortKey) (*Sort, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("sort requires at least one key")
	}
	for i, k := range keys {
		if k.Expr == nil {
			return nil, fmt.Errorf("sort key %d is nil", i)
		}
		if !datatype.IsComparable(k.Expr.Type()) {
			return nil, newTypeError("sort", "key is not orderable", k.Expr.Type())
		}
		if ContainsAgg(k.Expr) || ContainsWindow(k.Expr) {
			return nil, &TypeError{Op: "sort", Message: "key must not contain reductions or windows"}
		}
		if err := validateRefs(k.Expr, input); err != nil {
			return nil, err
		}
	}
	s := &Sort{input: input, keys: append([]SortKey(nil), keys...)}
	params := make([]string, len(keys))
	children := []Node{input}
	for i, k := range s.keys {
		params[i] = strconv.FormatBool(k.Desc)
		children = append(children, k.Expr)
	}
	s.fp = fingerprint(KindSort, params, children...)
	return s, nil
}

func (s *Sort) node()                    {}
func (s *Sort) relationNode()            {}
func (s *Sort) Kind() Kind               { return KindSort }
func (s *Sort) Fingerprint() string      { return s.fp }
func (s *Sort) Schema() *datatype.Schema { return s.input.Schema() }

// Input returns the sorted relation.
func (s *Sort) Input() Relation { return s.input }

// Keys returns the ordered sort terms.
func (s *Sort) Keys() []SortKey { return append([]SortKey(nil), s.keys...) }

// Limit truncates its input to count rows after skipping offset rows.
type Limit struct {
	fp     string
	input  Relation
	count  int64
	offset int64
}

// NewLimit builds a row limit over input.
func NewLimit(input Relation, count, offset int64) (*Limit, error) {
	if count < 0 {
		return nil, fmt.Errorf("limit count must not be negative: %d", count)
	}
	if offset < 0 {
		return nil, fmt.Errorf("limit offset must not be negative: %d", offset)
	}
	l := &Limit{input: input, count: count, offset: offset}
	l.fp = fingerprint(KindLimit, []string{strconv.FormatInt(count, 10), strconv.FormatInt(offset, 10)}, input)
	return l, nil
}

func (l *Limit) node()                    {}
func (l *Limit) relationNode()            {}
func (l *Limit) Kind() Kind               { return KindLimit }
func (l *Limit) Fingerprint() string      { return l.fp }
func (l *Limit) Schema() *datatype.Schema { return l.input.Schema() }

// Input returns the limited relation.
func (l *Limit) Input() Relation { return l.input }

// Count returns the maximum number of rows produced.
func (l *Limit) Count() int64 { return l.count }

// Offset returns the number of leading rows skipped.
func (l *Limit) Offset() int64 { return l.offset }

// RelationInputs returns the direct relational children of r in a fixed
// order. Leaves (tables) have none.
func RelationInputs(r Relation) []Relation {
	switch t := r.(type) {
	case *Table:
		return nil
	case *Projection:
		return []Relation{t.input}
	case *Filter:
		return []Relation{t.input}
	case *Aggregation:
		return []Relation{t.input}
	case *Join:
		return []Relation{t.left, t.right}
	case *SetOp:
		return []Relation{t.left, t.right}
	case *Sort:
		return []Relation{t.input}
	case *Limit:
		return []Relation{t.input}
	default:
		return nil
	}
}
