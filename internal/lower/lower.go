package lower

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/quarryql/quarry/internal/datatype"
	"github.com/quarryql/quarry/internal/ir"
)

// RenderedQuery is the product of lowering: dialect SQL plus the output
// schema the query produces when executed.
type RenderedQuery struct {
	SQL     string
	Schema  *datatype.Schema
	Dialect string
}

// Lower renders root as a single SQL statement for the backend. The walk is
// pure and synchronous; all memoization lives on the per-call printer, so
// concurrent Lower calls over shared trees need no locks.
func Lower(root ir.Relation, b *Backend) (*RenderedQuery, error) {
	if root == nil {
		return nil, fmt.Errorf("lower: nil relation")
	}
	if b == nil {
		return nil, fmt.Errorf("lower: nil backend")
	}
	p := &Printer{backend: b, memo: make(map[string]string)}
	sql, err := p.Select(root)
	if err != nil {
		return nil, err
	}
	return &RenderedQuery{SQL: sql, Schema: root.Schema(), Dialect: b.Dialect.Name}, nil
}

// Printer renders relations for one Lower call. Rendered text is memoized
// by node fingerprint, so a subtree shared across the plan is rendered
// once. Aliases are handed out in first-rendered order, which makes output
// deterministic for structurally equal inputs.
type Printer struct {
	backend *Backend
	memo    map[string]string
	next    int
}

// Dialect returns the target dialect.
func (p *Printer) Dialect() Dialect { return p.backend.Dialect }

func (p *Printer) alias() string {
	a := "t" + strconv.Itoa(p.next)
	p.next++
	return a
}

// Select renders rel as a complete SELECT statement.
func (p *Printer) Select(rel ir.Relation) (string, error) {
	if sql, ok := p.memo[rel.Fingerprint()]; ok {
		return sql, nil
	}
	var (
		sql string
		err error
	)
	if tr := p.backend.Translators[rel.Kind()]; tr != nil {
		sql, err = tr(p, rel)
	} else {
		sql, err = p.selectFor(rel)
	}
	if err != nil {
		return "", err
	}
	p.memo[rel.Fingerprint()] = sql
	return sql, nil
}

// FromItem renders rel as a FROM clause item with a fresh alias. Tables
// render bare; everything else becomes a parenthesized subquery.
func (p *Printer) FromItem(rel ir.Relation) (item, alias string, err error) {
	alias = p.alias()
	if t, ok := rel.(*ir.Table); ok {
		return p.Dialect().Quote(t.Name()) + " AS " + alias, alias, nil
	}
	sql, err := p.Select(rel)
	if err != nil {
		return "", "", err
	}
	return "(" + sql + ") AS " + alias, alias, nil
}

// Value renders v with every column reference qualified by alias.
func (p *Printer) Value(v ir.Value, alias string) (string, error) {
	return p.expr(v, p.inputResolver(alias))
}

func (p *Printer) selectFor(rel ir.Relation) (string, error) {
	switch t := rel.(type) {
	case *ir.Table:
		return "SELECT * FROM " + p.Dialect().Quote(t.Name()) + " AS " + p.alias(), nil
	case *ir.Projection:
		return p.selectProjection(t)
	case *ir.Filter:
		return p.selectFilter(t)
	case *ir.Aggregation:
		return p.selectAggregation(t)
	case *ir.Join:
		return p.selectJoin(t)
	case *ir.SetOp:
		return p.selectSetOp(t)
	case *ir.Sort:
		return p.selectSort(t)
	case *ir.Limit:
		return p.selectLimit(t)
	default:
		return "", fmt.Errorf("lower: unknown relation kind %s", rel.Kind())
	}
}

func (p *Printer) selectProjection(t *ir.Projection) (string, error) {
	from, alias, err := p.FromItem(t.Input())
	if err != nil {
		return "", err
	}
	res := p.inputResolver(alias)
	parts := make([]string, 0, len(t.Exprs()))
	for _, nv := range t.Exprs() {
		text, err := p.expr(nv.Value, res)
		if err != nil {
			return "", err
		}
		parts = append(parts, p.outputColumn(text, nv, alias))
	}
	return "SELECT " + strings.Join(parts, ", ") + " FROM " + from, nil
}

// outputColumn appends an AS clause unless the expression is a bare
// reference that already carries the output name.
func (p *Printer) outputColumn(text string, nv ir.NamedValue, alias string) string {
	if c, ok := nv.Value.(*ir.ColumnRef); ok && c.Name() == nv.Name {
		return text
	}
	return text + " AS " + p.Dialect().Quote(nv.Name)
}

func (p *Printer) selectFilter(t *ir.Filter) (string, error) {
	from, alias, err := p.FromItem(t.Input())
	if err != nil {
		return "", err
	}
	pred, err := p.Value(t.Predicate(), alias)
	if err != nil {
		return "", err
	}
	return "SELECT * FROM " + from + " WHERE " + pred, nil
}

func (p *Printer) selectAggregation(t *ir.Aggregation) (string, error) {
	from, alias, err := p.FromItem(t.Input())
	if err != nil {
		return "", err
	}
	res := p.inputResolver(alias)

	var cols, groups []string
	for _, nv := range t.GroupBy() {
		text, err := p.expr(nv.Value, res)
		if err != nil {
			return "", err
		}
		cols = append(cols, p.outputColumn(text, nv, alias))
		groups = append(groups, text)
	}
	for _, nv := range t.Aggs() {
		text, err := p.expr(nv.Value, res)
		if err != nil {
			return "", err
		}
		cols = append(cols, text+" AS "+p.Dialect().Quote(nv.Name))
	}

	sql := "SELECT " + strings.Join(cols, ", ") + " FROM " + from
	if len(groups) > 0 {
		sql += " GROUP BY " + strings.Join(groups, ", ")
	}
	return sql, nil
}

var joinKeyword = map[ir.JoinKind]string{
	ir.JoinInner: "INNER JOIN",
	ir.JoinLeft:  "LEFT JOIN",
	ir.JoinRight: "RIGHT JOIN",
	ir.JoinOuter: "FULL JOIN",
	ir.JoinCross: "CROSS JOIN",
}

func (p *Printer) selectJoin(t *ir.Join) (string, error) {
	switch t.JoinKind() {
	case ir.JoinRight:
		if !p.backend.Supports(CapRightJoin) {
			return "", &UnsupportedOperationError{Backend: p.backend.Name, Operation: "right joins"}
		}
	case ir.JoinOuter:
		if !p.backend.Supports(CapFullOuterJoin) {
			return "", &UnsupportedOperationError{Backend: p.backend.Name, Operation: "full outer joins"}
		}
	}

	lFrom, lAlias, err := p.FromItem(t.Left())
	if err != nil {
		return "", err
	}
	rFrom, rAlias, err := p.FromItem(t.Right())
	if err != nil {
		return "", err
	}

	d := p.Dialect()
	cols := make([]string, 0, t.Schema().Len())
	for _, f := range t.Schema().Fields() {
		side, col, ok := t.Origin(f.Name)
		if !ok {
			return "", fmt.Errorf("lower: join column %q has no origin", f.Name)
		}
		alias := lAlias
		if side == t.Right() {
			alias = rAlias
		}
		text := alias + "." + d.Quote(col)
		if col != f.Name {
			text += " AS " + d.Quote(f.Name)
		}
		cols = append(cols, text)
	}

	sql := "SELECT " + strings.Join(cols, ", ") + " FROM " + lFrom + " " + joinKeyword[t.JoinKind()] + " " + rFrom
	if on := t.On(); on != nil {
		left := closure(t.Left())
		text, err := p.expr(on, func(c *ir.ColumnRef) (string, error) {
			if left[c.Rel().Fingerprint()] {
				return lAlias + "." + d.Quote(c.Name()), nil
			}
			return rAlias + "." + d.Quote(c.Name()), nil
		})
		if err != nil {
			return "", err
		}
		sql += " ON " + text
	}
	return sql, nil
}

var setKeyword = map[ir.SetOpKind]string{
	ir.SetUnion:     "UNION",
	ir.SetIntersect: "INTERSECT",
	ir.SetExcept:    "EXCEPT",
}

func (p *Printer) selectSetOp(t *ir.SetOp) (string, error) {
	switch t.SetKind() {
	case ir.SetIntersect:
		if !p.backend.Supports(CapSetIntersect) {
			return "", &UnsupportedOperationError{Backend: p.backend.Name, Operation: "INTERSECT"}
		}
	case ir.SetExcept:
		if !p.backend.Supports(CapSetExcept) {
			return "", &UnsupportedOperationError{Backend: p.backend.Name, Operation: "EXCEPT"}
		}
	}

	// Operands wrap in their own derived tables: a bare set operation over
	// statements carrying ORDER BY or LIMIT is not portable.
	lFrom, _, err := p.FromItem(t.Left())
	if err != nil {
		return "", err
	}
	rFrom, _, err := p.FromItem(t.Right())
	if err != nil {
		return "", err
	}
	kw := setKeyword[t.SetKind()]
	if t.All() {
		kw += " ALL"
	}
	return "SELECT * FROM " + lFrom + " " + kw + " SELECT * FROM " + rFrom, nil
}

func (p *Printer) selectSort(t *ir.Sort) (string, error) {
	from, alias, err := p.FromItem(t.Input())
	if err != nil {
		return "", err
	}
	keys, err := p.sortKeys(t.Keys(), p.inputResolver(alias))
	if err != nil {
		return "", err
	}
	return "SELECT * FROM " + from + " ORDER BY " + keys, nil
}

func (p *Printer) sortKeys(keys []ir.SortKey, res resolver) (string, error) {
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		text, err := p.expr(k.Expr, res)
		if err != nil {
			return "", err
		}
		if k.Desc {
			text += " DESC"
		} else {
			text += " ASC"
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, ", "), nil
}

func (p *Printer) selectLimit(t *ir.Limit) (string, error) {
	from, _, err := p.FromItem(t.Input())
	if err != nil {
		return "", err
	}
	if p.Dialect().FetchLimit {
		return fmt.Sprintf("SELECT * FROM %s OFFSET %d ROWS FETCH NEXT %d ROWS ONLY",
			from, t.Offset(), t.Count()), nil
	}
	sql := fmt.Sprintf("SELECT * FROM %s LIMIT %d", from, t.Count())
	if t.Offset() > 0 {
		sql += fmt.Sprintf(" OFFSET %d", t.Offset())
	}
	return sql, nil
}

// closure collects the fingerprints of rel and everything addressable
// beneath it through schema-preserving nodes.
func closure(rel ir.Relation) map[string]bool {
	set := make(map[string]bool)
	for r := rel; r != nil; {
		set[r.Fingerprint()] = true
		switch t := r.(type) {
		case *ir.Filter:
			r = t.Input()
		case *ir.Sort:
			r = t.Input()
		case *ir.Limit:
			r = t.Input()
		default:
			r = nil
		}
	}
	return set
}
