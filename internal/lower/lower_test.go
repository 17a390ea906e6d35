package lower

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarryql/quarry/internal/datatype"
	"github.com/quarryql/quarry/internal/ir"
)

func ordersTable(t *testing.T) *ir.Table {
	t.Helper()
	tbl, err := ir.NewTable("orders", datatype.MustSchema(
		datatype.Field{Name: "id", Type: datatype.Int64},
		datatype.Field{Name: "customer", Type: datatype.String{}},
		datatype.Field{Name: "amount", Type: datatype.Float64},
		datatype.Field{Name: "region", Type: datatype.String{}},
	))
	require.NoError(t, err)
	return tbl
}

func customersTable(t *testing.T) *ir.Table {
	t.Helper()
	tbl, err := ir.NewTable("customers", datatype.MustSchema(
		datatype.Field{Name: "cust_id", Type: datatype.Int64},
		datatype.Field{Name: "name", Type: datatype.String{}},
		datatype.Field{Name: "credit", Type: datatype.Float64},
	))
	require.NoError(t, err)
	return tbl
}

func col(t *testing.T, rel ir.Relation, name string) *ir.ColumnRef {
	t.Helper()
	c, err := ir.Column(rel, name)
	require.NoError(t, err)
	return c
}

func binary(t *testing.T, op ir.BinaryOp, l, r ir.Value) ir.Value {
	t.Helper()
	v, err := ir.NewBinary(op, l, r)
	require.NoError(t, err)
	return v
}

func filterProjection(t *testing.T) ir.Relation {
	t.Helper()
	tbl := ordersTable(t)
	f, err := ir.NewFilter(tbl, binary(t, ir.OpGt, col(t, tbl, "amount"), ir.Float(100)))
	require.NoError(t, err)
	eur, err := ir.NewBinary(ir.OpMul, col(t, f, "amount"), ir.Float(0.9))
	require.NoError(t, err)
	p, err := ir.NewProjection(f, []ir.NamedValue{
		{Name: "id", Value: col(t, f, "id")},
		{Name: "amount_eur", Value: eur},
	})
	require.NoError(t, err)
	return p
}

func TestLower_FilterProjectionShape(t *testing.T) {
	q, err := Lower(filterProjection(t), SQLite())
	require.NoError(t, err)

	assert.Equal(t, "sqlite", q.Dialect)
	assert.Equal(t, []string{"id", "amount_eur"}, q.Schema.Names())
	assert.Equal(t,
		`SELECT t0."id", (t0."amount" * 0.9) AS "amount_eur" FROM (SELECT * FROM "orders" AS t1 WHERE (t1."amount" > 100.0)) AS t0`,
		q.SQL)
}

func TestLower_SameTreeSameSQL(t *testing.T) {
	a, err := Lower(filterProjection(t), Postgres())
	require.NoError(t, err)
	b, err := Lower(filterProjection(t), Postgres())
	require.NoError(t, err)
	assert.Equal(t, a.SQL, b.SQL)
}

func TestLower_SharedSubtreeRendersOnce(t *testing.T) {
	tbl := ordersTable(t)
	base, err := ir.NewFilter(tbl, binary(t, ir.OpGt, col(t, tbl, "amount"), ir.Float(10)))
	require.NoError(t, err)

	left, err := ir.NewProjection(base, []ir.NamedValue{
		{Name: "region", Value: col(t, base, "region")},
		{Name: "amount", Value: col(t, base, "amount")},
	})
	require.NoError(t, err)
	sum, err := ir.NewAgg(ir.AggSum, col(t, base, "amount"))
	require.NoError(t, err)
	right, err := ir.NewAggregation(base,
		[]ir.NamedValue{{Name: "grp", Value: col(t, base, "region")}},
		[]ir.NamedValue{{Name: "total", Value: sum}},
	)
	require.NoError(t, err)
	on := binary(t, ir.OpEq, col(t, left, "region"), col(t, right, "grp"))
	join, err := ir.NewJoin(ir.JoinInner, left, right, on)
	require.NoError(t, err)

	q, err := Lower(join, SQLite())
	require.NoError(t, err)

	// Both sides sit on the same filtered scan; its memoized text appears
	// verbatim under each, inner aliases included.
	scan := `SELECT * FROM "orders" AS t2 WHERE (t2."amount" > 10.0)`
	assert.Equal(t, 2, strings.Count(q.SQL, scan), q.SQL)
}

func TestLower_AliasesAreFreshPerOccurrence(t *testing.T) {
	orders := ordersTable(t)
	customers := customersTable(t)
	on := binary(t, ir.OpEq, col(t, orders, "id"), col(t, customers, "cust_id"))
	join, err := ir.NewJoin(ir.JoinInner, orders, customers, on)
	require.NoError(t, err)

	q, err := Lower(join, Postgres())
	require.NoError(t, err)
	assert.Contains(t, q.SQL, `"orders" AS t0`)
	assert.Contains(t, q.SQL, `"customers" AS t1`)
	assert.Contains(t, q.SQL, `ON (t0."id" = t1."cust_id")`)
}

func TestLower_JoinRenamesCollidingColumns(t *testing.T) {
	orders := ordersTable(t)
	more := ordersTable(t)
	second, err := ir.NewTable("orders_2024", more.Schema())
	require.NoError(t, err)
	on := binary(t, ir.OpEq, col(t, orders, "id"), col(t, second, "id"))
	join, err := ir.NewJoin(ir.JoinInner, orders, second, on)
	require.NoError(t, err)

	q, err := Lower(join, Postgres())
	require.NoError(t, err)
	assert.Contains(t, q.SQL, `t1."id" AS "id_right"`)
	_, ok := q.Schema.Lookup("id_right")
	assert.True(t, ok)
}

func TestLower_LimitSpellingPerDialect(t *testing.T) {
	tbl := ordersTable(t)
	lim, err := ir.NewLimit(tbl, 10, 5)
	require.NoError(t, err)

	ansi, err := Lower(lim, ANSI())
	require.NoError(t, err)
	assert.Contains(t, ansi.SQL, "OFFSET 5 ROWS FETCH NEXT 10 ROWS ONLY")

	lite, err := Lower(lim, SQLite())
	require.NoError(t, err)
	assert.Contains(t, lite.SQL, "LIMIT 10 OFFSET 5")
}

func TestLower_ConcatSpellingPerDialect(t *testing.T) {
	tbl := ordersTable(t)
	cat := binary(t, ir.OpConcat, col(t, tbl, "customer"), col(t, tbl, "region"))
	p, err := ir.NewProjection(tbl, []ir.NamedValue{{Name: "label", Value: cat}})
	require.NoError(t, err)

	pg, err := Lower(p, Postgres())
	require.NoError(t, err)
	assert.Contains(t, pg.SQL, `(t0."customer" || t0."region")`)

	ch, err := Lower(p, ClickHouse())
	require.NoError(t, err)
	assert.Contains(t, ch.SQL, "concat(t0.`customer`, t0.`region`)")
}

func TestLower_IntegerDivisionPromotes(t *testing.T) {
	tbl := ordersTable(t)
	half, err := ir.NewBinary(ir.OpDiv, col(t, tbl, "id"), ir.Int(2))
	require.NoError(t, err)
	p, err := ir.NewProjection(tbl, []ir.NamedValue{{Name: "half", Value: half}})
	require.NoError(t, err)

	q, err := Lower(p, SQLite())
	require.NoError(t, err)
	assert.Contains(t, q.SQL, `(CAST(t0."id" AS REAL) / 2)`)
}

func TestLower_UnsupportedJoinKind(t *testing.T) {
	orders := ordersTable(t)
	customers := customersTable(t)
	on := binary(t, ir.OpEq, col(t, orders, "id"), col(t, customers, "cust_id"))
	join, err := ir.NewJoin(ir.JoinRight, orders, customers, on)
	require.NoError(t, err)

	_, err = Lower(join, SQLite())
	require.Error(t, err)
	assert.True(t, IsUnsupported(err))
	assert.Contains(t, err.Error(), "sqlite")

	// The same tree renders fine on a target that has the capability.
	_, err = Lower(join, Postgres())
	assert.NoError(t, err)
}

func TestLower_UnsupportedWindow(t *testing.T) {
	tbl := ordersTable(t)
	rn, err := ir.NewWindow(ir.WinRowNumber, nil,
		[]ir.Value{col(t, tbl, "region")},
		[]ir.SortKey{{Expr: col(t, tbl, "amount"), Desc: true}},
	)
	require.NoError(t, err)
	p, err := ir.NewProjection(tbl, []ir.NamedValue{{Name: "rn", Value: rn}})
	require.NoError(t, err)

	narrow := &Backend{
		Name:         "narrow",
		Dialect:      SQLite().Dialect,
		Capabilities: capabilitySet(CapWindow),
	}
	_, err = Lower(p, narrow)
	require.Error(t, err)
	assert.True(t, IsUnsupported(err))
}

func TestLower_TranslatorOverride(t *testing.T) {
	tbl := ordersTable(t)
	lim, err := ir.NewLimit(tbl, 10, 5)
	require.NoError(t, err)

	custom := &Backend{
		Name:         "mysqlish",
		Dialect:      SQLite().Dialect,
		Capabilities: capabilitySet(),
		Translators: map[ir.Kind]Translator{
			ir.KindLimit: func(p *Printer, rel ir.Relation) (string, error) {
				l := rel.(*ir.Limit)
				from, _, err := p.FromItem(l.Input())
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("SELECT * FROM %s LIMIT %d, %d", from, l.Offset(), l.Count()), nil
			},
		},
	}
	q, err := Lower(lim, custom)
	require.NoError(t, err)
	assert.Contains(t, q.SQL, "LIMIT 5, 10")
}

func TestLower_SetOpWrapsOperands(t *testing.T) {
	tbl := ordersTable(t)
	a, err := ir.NewProjection(tbl, []ir.NamedValue{{Name: "region", Value: col(t, tbl, "region")}})
	require.NoError(t, err)
	b, err := ir.NewProjection(tbl, []ir.NamedValue{{Name: "region", Value: col(t, tbl, "region")}})
	require.NoError(t, err)
	union, err := ir.NewSetOp(ir.SetUnion, a, b, true)
	require.NoError(t, err)

	q, err := Lower(union, SQLite())
	require.NoError(t, err)
	assert.Contains(t, q.SQL, "UNION ALL")
	assert.Equal(t, 2, strings.Count(q.SQL, "SELECT * FROM (SELECT"))
}

func TestLower_NilArguments(t *testing.T) {
	_, err := Lower(nil, SQLite())
	require.Error(t, err)
	_, err = Lower(ordersTable(t), nil)
	require.Error(t, err)
}

func TestRegistry_BuiltinsPresent(t *testing.T) {
	for _, name := range []string{"ansi", "sqlite", "postgres", "clickhouse"} {
		b, ok := Get(name)
		require.True(t, ok, name)
		assert.Equal(t, name, b.Name)
	}
	assert.Subset(t, Names(), []string{"ansi", "clickhouse", "postgres", "sqlite"})
}

func TestRegistry_RejectsDuplicates(t *testing.T) {
	assert.Error(t, Register(SQLite()))
	assert.Error(t, Register(nil))
	assert.Error(t, Register(&Backend{}))
}
