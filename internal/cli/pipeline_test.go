package cli

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarryql/quarry/internal/catalog"
	"github.com/quarryql/quarry/internal/datatype"
	"github.com/quarryql/quarry/internal/ir"
)

func shopCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.LoadDir("testdata/catalog")
	require.NoError(t, err)
	return cat
}

func TestParsePipeline_RejectsUnknownKeys(t *testing.T) {
	_, err := ParsePipeline([]byte(`
from: orders
steps:
  - fliter: {column: amount}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fliter")
}

func TestParsePipeline_MissingFrom(t *testing.T) {
	_, err := ParsePipeline([]byte(`steps: []`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "from")
}

func TestPipelineBuild_FullShape(t *testing.T) {
	data, err := os.ReadFile("testdata/orders_pipeline.yaml")
	require.NoError(t, err)
	p, err := ParsePipeline(data)
	require.NoError(t, err)

	root, err := p.Build(shopCatalog(t))
	require.NoError(t, err)

	limit, ok := root.(*ir.Limit)
	require.True(t, ok)
	assert.Equal(t, int64(10), limit.Count())

	sort, ok := limit.Input().(*ir.Sort)
	require.True(t, ok)
	require.Len(t, sort.Keys(), 1)
	assert.True(t, sort.Keys()[0].Desc)

	agg, ok := sort.Input().(*ir.Aggregation)
	require.True(t, ok)
	assert.Equal(t, []string{"region", "total", "orders"}, agg.Schema().Names())

	join, ok := agg.Input().(*ir.Join)
	require.True(t, ok)
	assert.Equal(t, ir.JoinInner, join.JoinKind())

	_, ok = join.Left().(*ir.Filter)
	require.True(t, ok)
}

func TestPipelineBuild_ProjectionAliasChaining(t *testing.T) {
	p, err := ParsePipeline([]byte(`
from: orders
steps:
  - project:
      - name: net
        expr: {op: "*", left: {column: amount}, right: {float: 0.9}}
      - name: big
        expr: {op: ">", left: {column: net}, right: {float: 100.0}}
`))
	require.NoError(t, err)

	root, err := p.Build(shopCatalog(t))
	require.NoError(t, err)

	assert.Equal(t, []string{"net", "big"}, root.Schema().Names())
	big, ok := root.Schema().Lookup("big")
	require.True(t, ok)
	assert.True(t, datatype.Equal(datatype.Boolean{}, big.Type))
}

func TestPipelineBuild_UnboundColumn(t *testing.T) {
	p, err := ParsePipeline([]byte(`
from: orders
steps:
  - filter: {op: "=", left: {column: nope}, right: {int: 1}}
`))
	require.NoError(t, err)

	_, err = p.Build(shopCatalog(t))
	require.Error(t, err)
	var unbound *ir.UnboundColumnError
	require.True(t, errors.As(err, &unbound))
	assert.Equal(t, "nope", unbound.Name)
	assert.Contains(t, unbound.Candidates, "amount")
}

func TestPipelineBuild_StepMustHoldOneOperation(t *testing.T) {
	p, err := ParsePipeline([]byte(`
from: orders
steps:
  - filter: {op: ">", left: {column: amount}, right: {int: 1}}
    limit: {count: 5}
`))
	require.NoError(t, err)

	_, err = p.Build(shopCatalog(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one operation")
}

func TestPipelineBuild_JoinQualifiedNames(t *testing.T) {
	p, err := ParsePipeline([]byte(`
from: orders
steps:
  - join:
      table: customers
      on:
        op: "="
        left: {column: left.id}
        right: {column: customers.cust_id}
`))
	require.NoError(t, err)

	root, err := p.Build(shopCatalog(t))
	require.NoError(t, err)
	join, ok := root.(*ir.Join)
	require.True(t, ok)
	assert.Equal(t, ir.JoinInner, join.JoinKind())
}

func TestPipelineBuild_SetOpNestedPipeline(t *testing.T) {
	p, err := ParsePipeline([]byte(`
from: orders
steps:
  - project:
      - {name: id}
  - union:
      all: true
      pipeline:
        from: customers
        steps:
          - project:
              - name: id
                expr: {column: cust_id}
`))
	require.NoError(t, err)

	root, err := p.Build(shopCatalog(t))
	require.NoError(t, err)
	setop, ok := root.(*ir.SetOp)
	require.True(t, ok)
	assert.Equal(t, ir.SetUnion, setop.SetKind())
	assert.True(t, setop.All())
	assert.Equal(t, []string{"id"}, setop.Schema().Names())
}

func TestPipelineBuild_WindowExpression(t *testing.T) {
	p, err := ParsePipeline([]byte(`
from: orders
steps:
  - project:
      - name: customer
      - name: rn
        expr:
          window:
            func: row_number
            partition_by: [{column: region}]
            order_by: [{by: amount, desc: true}]
`))
	require.NoError(t, err)

	root, err := p.Build(shopCatalog(t))
	require.NoError(t, err)
	proj, ok := root.(*ir.Projection)
	require.True(t, ok)
	rn, ok := proj.Expr("rn")
	require.True(t, ok)
	win, ok := rn.(*ir.WindowExpr)
	require.True(t, ok)
	assert.Equal(t, ir.WinRowNumber, win.Func())
	assert.Len(t, win.PartitionBy(), 1)
}

func TestPipelineBuild_UnknownTable(t *testing.T) {
	p, err := ParsePipeline([]byte(`from: warehouse`))
	require.NoError(t, err)

	_, err = p.Build(shopCatalog(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "warehouse")
}
