package lower

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarryql/quarry/internal/ir"
	"github.com/quarryql/quarry/internal/rewrite"
)

// openRef seeds an in-memory SQLite database used as the reference engine:
// if the rewritten tree and the original tree disagree anywhere, they
// disagree here.
func openRef(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	stmts := []string{
		`CREATE TABLE orders (id INTEGER, customer TEXT, amount REAL, region TEXT)`,
		`CREATE TABLE customers (cust_id INTEGER, name TEXT, credit REAL)`,
		`INSERT INTO orders VALUES
			(1, 'ann', 50.0, 'west'),
			(2, 'bob', 120.0, 'east'),
			(3, 'cat', 200.0, 'west'),
			(4, 'dan', 80.0, 'east'),
			(5, 'eve', 5.0, 'north')`,
		`INSERT INTO customers VALUES
			(1, 'ann', 10.0),
			(2, 'bob', 3.0),
			(3, 'cat', 4.5),
			(6, 'fox', 9.0)`,
	}
	for _, s := range stmts {
		_, err := db.Exec(s)
		require.NoError(t, err)
	}
	return db
}

// fetchSorted runs query and returns its rows as sorted strings, one per
// row. Sorting removes row-order differences the rewrites are allowed to
// introduce.
func fetchSorted(t *testing.T, db *sql.DB, query string) []string {
	t.Helper()
	rows, err := db.Query(query)
	require.NoError(t, err, query)
	defer rows.Close()

	cols, err := rows.Columns()
	require.NoError(t, err)

	var out []string
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		require.NoError(t, rows.Scan(ptrs...))
		parts := make([]string, len(vals))
		for i, v := range vals {
			parts[i] = fmt.Sprint(v)
		}
		out = append(out, strings.Join(parts, "|"))
	}
	require.NoError(t, rows.Err())
	sort.Strings(out)
	return out
}

// assertRewriteEquivalent lowers root before and after rewriting and checks
// the reference engine returns the same rows for both.
func assertRewriteEquivalent(t *testing.T, root ir.Relation) {
	t.Helper()
	db := openRef(t)

	raw, err := Lower(root, SQLite())
	require.NoError(t, err)

	res, err := rewrite.Rewrite(root, rewrite.Options{})
	require.NoError(t, err)
	require.NotEmpty(t, res.Applied, "rewrite should change this tree")
	opt, err := Lower(res.Root, SQLite())
	require.NoError(t, err)

	assert.Equal(t, fetchSorted(t, db, raw.SQL), fetchSorted(t, db, opt.SQL),
		"raw: %s\nrewritten: %s", raw.SQL, opt.SQL)
}

func TestRewriteEquivalence_DeadColumns(t *testing.T) {
	tbl := ordersTable(t)
	wide, err := ir.NewProjection(tbl, []ir.NamedValue{
		{Name: "id", Value: col(t, tbl, "id")},
		{Name: "amount", Value: col(t, tbl, "amount")},
		{Name: "region", Value: col(t, tbl, "region")},
	})
	require.NoError(t, err)
	f, err := ir.NewFilter(wide, binary(t, ir.OpGt, col(t, wide, "id"), ir.Int(2)))
	require.NoError(t, err)
	root, err := ir.NewProjection(f, []ir.NamedValue{
		{Name: "total", Value: col(t, f, "amount")},
	})
	require.NoError(t, err)

	assertRewriteEquivalent(t, root)
}

func TestRewriteEquivalence_AggregationSplit(t *testing.T) {
	tbl := ordersTable(t)
	sum, err := ir.NewAgg(ir.AggSum, col(t, tbl, "amount"))
	require.NoError(t, err)
	agg, err := ir.NewAggregation(tbl,
		[]ir.NamedValue{{Name: "region", Value: col(t, tbl, "region")}},
		[]ir.NamedValue{{Name: "total", Value: sum}},
	)
	require.NoError(t, err)
	keyCond := binary(t, ir.OpEq, col(t, agg, "region"), ir.Str("west"))
	aggCond := binary(t, ir.OpGt, col(t, agg, "total"), ir.Float(100))
	root, err := ir.NewFilter(agg, binary(t, ir.OpAnd, keyCond, aggCond))
	require.NoError(t, err)

	assertRewriteEquivalent(t, root)
}

func TestRewriteEquivalence_JoinSplit(t *testing.T) {
	orders := ordersTable(t)
	customers := customersTable(t)
	on := binary(t, ir.OpEq, col(t, orders, "id"), col(t, customers, "cust_id"))
	join, err := ir.NewJoin(ir.JoinInner, orders, customers, on)
	require.NoError(t, err)

	leftOnly := binary(t, ir.OpGt, col(t, join, "amount"), ir.Float(10))
	rightOnly := binary(t, ir.OpLt, col(t, join, "credit"), ir.Float(5))
	mixed := binary(t, ir.OpGt, col(t, join, "amount"), col(t, join, "credit"))
	pred := binary(t, ir.OpAnd, binary(t, ir.OpAnd, leftOnly, rightOnly), mixed)
	root, err := ir.NewFilter(join, pred)
	require.NoError(t, err)

	assertRewriteEquivalent(t, root)
}

func TestRewriteEquivalence_PredicateFolding(t *testing.T) {
	tbl := ordersTable(t)
	cond := binary(t, ir.OpGe, col(t, tbl, "amount"), ir.Float(80))
	root, err := ir.NewFilter(tbl, binary(t, ir.OpAnd, ir.Bool(true), cond))
	require.NoError(t, err)

	assertRewriteEquivalent(t, root)
}
