package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarryql/quarry/internal/datatype"
)

func TestNewProjection_SchemaDeterminism(t *testing.T) {
	tbl := testTable(t)
	id, _ := Column(tbl, "id")
	amount, _ := Column(tbl, "amount")
	double, _ := NewBinary(OpMul, amount, Float(2))

	p, err := NewProjection(tbl, []NamedValue{
		{Name: "doubled", Value: double},
		{Name: "id", Value: id},
	})
	require.NoError(t, err)

	// Field order exactly matches declared order; count matches the list.
	assert.Equal(t, []string{"doubled", "id"}, p.Schema().Names())
	assert.Equal(t, 2, p.Schema().Len())
	assert.True(t, datatype.Equal(datatype.Float64, p.Schema().Field(0).Type))
}

func TestNewProjection_RejectsDuplicateNames(t *testing.T) {
	tbl := testTable(t)
	id, _ := Column(tbl, "id")

	_, err := NewProjection(tbl, []NamedValue{
		{Name: "id", Value: id},
		{Name: "id", Value: id},
	})
	require.Error(t, err)
	assert.True(t, IsSchemaMismatch(err))
}

func TestNewProjection_RejectsBareAggregate(t *testing.T) {
	tbl := testTable(t)
	id, _ := Column(tbl, "id")
	sum, _ := NewAgg(AggSum, id)

	_, err := NewProjection(tbl, []NamedValue{{Name: "total", Value: sum}})
	require.Error(t, err)
	assert.True(t, IsTypeError(err))
	assert.Contains(t, err.Error(), "aggregation context")
}

func TestNewProjection_RejectsForeignColumns(t *testing.T) {
	tbl := testTable(t)
	other, err := NewTable("other", datatype.MustSchema(
		datatype.Field{Name: "x", Type: datatype.Int64},
	))
	require.NoError(t, err)
	x, _ := Column(other, "x")

	_, err = NewProjection(tbl, []NamedValue{{Name: "x", Value: x}})
	require.Error(t, err)
	assert.True(t, IsUnboundColumn(err))
}

func TestNewProjection_SeesThroughFilter(t *testing.T) {
	tbl := testTable(t)
	id, _ := Column(tbl, "id")
	pred, _ := NewBinary(OpGt, id, Int(5))
	f, err := NewFilter(tbl, pred)
	require.NoError(t, err)

	// References to the table beneath the filter remain addressable.
	p, err := NewProjection(f, []NamedValue{{Name: "id", Value: id}})
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, p.Schema().Names())
}

func TestNewFilter_RequiresBoolean(t *testing.T) {
	tbl := testTable(t)
	id, _ := Column(tbl, "id")

	_, err := NewFilter(tbl, id)
	require.Error(t, err)
	assert.True(t, IsTypeError(err))

	pred, _ := NewBinary(OpGt, id, Int(5))
	f, err := NewFilter(tbl, pred)
	require.NoError(t, err)
	assert.True(t, f.Schema().Equal(tbl.Schema()), "filter passes its input schema through")
}

func TestNewAggregation(t *testing.T) {
	tbl := testTable(t)
	name, _ := Column(tbl, "name")
	amount, _ := Column(tbl, "amount")
	sum, _ := NewAgg(AggSum, amount)
	count, _ := NewAgg(AggCount, nil)

	agg, err := NewAggregation(tbl,
		[]NamedValue{{Name: "name", Value: name}},
		[]NamedValue{{Name: "total", Value: sum}, {Name: "n", Value: count}},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "total", "n"}, agg.Schema().Names())
	assert.True(t, agg.IsGroupKey("name"))
	assert.False(t, agg.IsGroupKey("total"))

	f, ok := agg.Schema().Lookup("n")
	require.True(t, ok)
	assert.False(t, f.Nullable)
}

func TestNewAggregation_RejectsNonAggReduction(t *testing.T) {
	tbl := testTable(t)
	amount, _ := Column(tbl, "amount")

	_, err := NewAggregation(tbl, nil, []NamedValue{{Name: "x", Value: amount}})
	require.Error(t, err)
	assert.True(t, IsTypeError(err))
}

func TestNewAggregation_RejectsAggInGroupKey(t *testing.T) {
	tbl := testTable(t)
	amount, _ := Column(tbl, "amount")
	sum, _ := NewAgg(AggSum, amount)

	_, err := NewAggregation(tbl, []NamedValue{{Name: "k", Value: sum}}, nil)
	require.Error(t, err)
	assert.True(t, IsTypeError(err))
}

func joinFixtures(t *testing.T) (*Table, *Table) {
	t.Helper()
	left, err := NewTable("users", datatype.MustSchema(
		datatype.Field{Name: "id", Type: datatype.Int64},
		datatype.Field{Name: "name", Type: datatype.String{}},
	))
	require.NoError(t, err)
	right, err := NewTable("orders", datatype.MustSchema(
		datatype.Field{Name: "id", Type: datatype.Int64},
		datatype.Field{Name: "amount", Type: datatype.Float64},
	))
	require.NoError(t, err)
	return left, right
}

func TestNewJoin_SchemaMergeAndOrigins(t *testing.T) {
	left, right := joinFixtures(t)
	lid, _ := Column(left, "id")
	rid, _ := Column(right, "id")
	on, _ := NewBinary(OpEq, lid, rid)

	j, err := NewJoin(JoinInner, left, right, on)
	require.NoError(t, err)

	// Right-side duplicate gets the _right suffix.
	assert.Equal(t, []string{"id", "name", "id_right", "amount"}, j.Schema().Names())

	side, col, ok := j.Origin("id_right")
	require.True(t, ok)
	assert.Equal(t, "id", col)
	assert.True(t, Equal(right, side))

	side, col, ok = j.Origin("name")
	require.True(t, ok)
	assert.Equal(t, "name", col)
	assert.True(t, Equal(left, side))
}

func TestNewJoin_OuterNullability(t *testing.T) {
	left, right := joinFixtures(t)
	lid, _ := Column(left, "id")
	rid, _ := Column(right, "id")
	on, _ := NewBinary(OpEq, lid, rid)

	j, err := NewJoin(JoinLeft, left, right, on)
	require.NoError(t, err)
	f, _ := j.Schema().Lookup("amount")
	assert.True(t, f.Nullable, "left join makes right-side columns nullable")
	f, _ = j.Schema().Lookup("name")
	assert.False(t, f.Nullable)
}

func TestNewJoin_PredicateScope(t *testing.T) {
	left, right := joinFixtures(t)
	stranger, err := NewTable("stranger", datatype.MustSchema(
		datatype.Field{Name: "z", Type: datatype.Int64},
	))
	require.NoError(t, err)
	z, _ := Column(stranger, "z")
	lid, _ := Column(left, "id")
	on, _ := NewBinary(OpEq, lid, z)

	_, err = NewJoin(JoinInner, left, right, on)
	require.Error(t, err)
	assert.True(t, IsUnboundColumn(err), "predicate may only reference the two join inputs")
}

func TestNewJoin_CrossTakesNoPredicate(t *testing.T) {
	left, right := joinFixtures(t)
	j, err := NewJoin(JoinCross, left, right, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, j.Schema().Len())

	lid, _ := Column(left, "id")
	rid, _ := Column(right, "id")
	on, _ := NewBinary(OpEq, lid, rid)
	_, err = NewJoin(JoinCross, left, right, on)
	require.Error(t, err)

	_, err = NewJoin(JoinInner, left, right, nil)
	require.Error(t, err, "inner join requires a predicate")
}

func TestNewSetOp(t *testing.T) {
	a, err := NewTable("a", datatype.MustSchema(
		datatype.Field{Name: "id", Type: datatype.Int32},
		datatype.Field{Name: "v", Type: datatype.String{}},
	))
	require.NoError(t, err)
	b, err := NewTable("b", datatype.MustSchema(
		datatype.Field{Name: "ident", Type: datatype.Int64},
		datatype.Field{Name: "val", Type: datatype.String{}},
	))
	require.NoError(t, err)

	u, err := NewSetOp(SetUnion, a, b, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "v"}, u.Schema().Names(), "output adopts left-hand names")
	assert.True(t, datatype.Equal(datatype.Int64, u.Schema().Field(0).Type))

	// Incompatible shapes fail with a schema mismatch carrying both sides.
	c, err := NewTable("c", datatype.MustSchema(
		datatype.Field{Name: "only", Type: datatype.Int64},
	))
	require.NoError(t, err)
	_, err = NewSetOp(SetUnion, a, c, false)
	require.Error(t, err)
	assert.True(t, IsSchemaMismatch(err))
	var se *SchemaMismatchError
	require.ErrorAs(t, err, &se)
	assert.NotNil(t, se.Left)
	assert.NotNil(t, se.Right)

	_, err = NewSetOp(SetExcept, a, b, true)
	require.Error(t, err, "bag semantics is union-only")
}

func TestNewSortAndLimit(t *testing.T) {
	tbl := testTable(t)
	id, _ := Column(tbl, "id")
	tags, _ := Column(tbl, "tags")

	s, err := NewSort(tbl, []SortKey{{Expr: id, Desc: true}})
	require.NoError(t, err)
	assert.True(t, s.Schema().Equal(tbl.Schema()))

	_, err = NewSort(tbl, []SortKey{{Expr: tags}})
	require.Error(t, err)
	assert.True(t, IsTypeError(err), "struct keys are not orderable")

	l, err := NewLimit(s, 10, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(10), l.Count())
	assert.Equal(t, int64(5), l.Offset())

	_, err = NewLimit(s, -1, 0)
	require.Error(t, err)
}

func TestScope_Resolution(t *testing.T) {
	left, right := joinFixtures(t)

	sc := NewScope()
	require.NoError(t, sc.AddRelation("users", left))
	require.NoError(t, sc.AddRelation("orders", right))

	// Unique bare names resolve directly.
	v, err := sc.Resolve("amount")
	require.NoError(t, err)
	assert.Equal(t, "amount", v.(*ColumnRef).Name())

	// Duplicated bare names require qualification.
	_, err = sc.Resolve("id")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous")

	v, err = sc.Resolve("users.id")
	require.NoError(t, err)
	assert.True(t, Equal(left, v.(*ColumnRef).Rel()))

	// Unknown names carry the candidate list.
	_, err = sc.Resolve("wat")
	require.Error(t, err)
	assert.True(t, IsUnboundColumn(err))
}

func TestScope_AliasChaining(t *testing.T) {
	tbl := testTable(t)
	sc := NewScope()
	require.NoError(t, sc.AddRelation("t", tbl))

	amount, err := sc.Resolve("amount")
	require.NoError(t, err)
	doubled, err := NewBinary(OpMul, amount, Float(2))
	require.NoError(t, err)
	require.NoError(t, sc.Define("doubled", doubled))

	// A later expression in the same projection list sees the alias.
	got, err := sc.Resolve("doubled")
	require.NoError(t, err)
	assert.True(t, Equal(doubled, got))

	require.Error(t, sc.Define("doubled", doubled), "rebinding is rejected")
}
