package query

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/TabRi/internal/errs"
	"github.com/koustreak/TabRi/internal/repository"
	"github.com/koustreak/TabRi/internal/schema"
	"github.com/koustreak/TabRi/internal/tabular"
)

// seedOrders loads nine orders: totals 10..90, alternating status, customers
// cust-1..cust-3 round-robin.
func seedOrders(t *testing.T) *repository.Repository {
	t.Helper()

	reg := schema.NewRegistry()
	reg.MustRegister(&schema.Table{
		Name:        "Orders",
		StorageName: "orders",
		PrimaryKey:  "order_id",
		Fields: []schema.FieldSpec{
			{Name: "order_id", Type: schema.TypeString, AutoGenerate: true},
			{Name: "customer_id", Type: schema.TypeString, Required: true},
			{Name: "total", Type: schema.TypeNumber, Min: schema.Float(0)},
			{Name: "status", Type: schema.TypeEnum, Values: []string{"pending", "shipped"}},
			{Name: "notes", Type: schema.TypeText},
		},
	})

	db, err := repository.Open(reg, tabular.NewMemStore(), nil)
	require.NoError(t, err)
	require.NoError(t, db.Init(context.Background()))

	orders := db.MustRepo("Orders")
	for i := 1; i <= 9; i++ {
		status := "pending"
		if i%2 == 0 {
			status = "shipped"
		}
		_, err := orders.Create(context.Background(), tabular.Record{
			"customer_id": fmt.Sprintf("cust-%d", (i-1)%3+1),
			"total":       float64(i * 10),
			"status":      status,
			"notes":       fmt.Sprintf("order number %d", i),
		})
		require.NoError(t, err)
	}
	return orders
}

func TestBuilder_WhereAndIsCommutative(t *testing.T) {
	orders := seedOrders(t)
	ctx := context.Background()

	a, err := New(orders).
		Where("status", "=", "pending").
		Where("total", ">=", 50).
		Get(ctx)
	require.NoError(t, err)

	b, err := New(orders).
		Where("total", ">=", 50).
		Where("status", "=", "pending").
		Get(ctx)
	require.NoError(t, err)

	assert.Equal(t, a, b, "condition order must not change the result")
	require.Len(t, a, 3) // totals 50, 70, 90
	for _, rec := range a {
		assert.Equal(t, "pending", rec["status"])
		assert.GreaterOrEqual(t, rec["total"].(float64), float64(50))
	}
}

func TestBuilder_Operators(t *testing.T) {
	orders := seedOrders(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		field string
		op    string
		value any
		want  int
	}{
		{"equals", "status", "=", "shipped", 4},
		{"not equals", "status", "!=", "shipped", 5},
		{"angle-bracket not equals", "status", "<>", "shipped", 5},
		{"less than", "total", "<", 30, 2},
		{"less or equal", "total", "<=", 30, 3},
		{"greater than", "total", ">", 80, 1},
		{"greater or equal", "total", ">=", 80, 2},
		{"contains", "notes", "CONTAINS", "number 4", 1},
		{"number as int condition", "total", "=", 40, 1},
		{"number as string condition", "total", "=", "40", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := New(orders).Where(tt.field, tt.op, tt.value).Get(ctx)
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestBuilder_PredicateHelpers(t *testing.T) {
	orders := seedOrders(t)
	ctx := context.Background()

	t.Run("in and not in", func(t *testing.T) {
		got, err := New(orders).WhereIn("total", 10, 30, 999).Get(ctx)
		require.NoError(t, err)
		assert.Len(t, got, 2)

		got, err = New(orders).WhereNotIn("customer_id", "cust-1", "cust-2").Get(ctx)
		require.NoError(t, err)
		assert.Len(t, got, 3)

		got, err = New(orders).WhereIn("total").Get(ctx)
		require.NoError(t, err)
		assert.Empty(t, got, "an empty IN list matches nothing")
	})

	t.Run("between is inclusive", func(t *testing.T) {
		got, err := New(orders).WhereBetween("total", 30, 50).Get(ctx)
		require.NoError(t, err)
		assert.Len(t, got, 3) // 30, 40, 50
	})

	t.Run("prefix and suffix", func(t *testing.T) {
		got, err := New(orders).WhereStartsWith("notes", "ORDER", false).Get(ctx)
		require.NoError(t, err)
		assert.Len(t, got, 9, "case-insensitive prefix")

		got, err = New(orders).WhereStartsWith("notes", "ORDER", true).Get(ctx)
		require.NoError(t, err)
		assert.Empty(t, got, "case-sensitive prefix")

		got, err = New(orders).WhereEndsWith("notes", "number 7", true).Get(ctx)
		require.NoError(t, err)
		assert.Len(t, got, 1)

		got, err = New(orders).WhereContains("notes", "NUMBER 3", false).Get(ctx)
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})

	t.Run("null and not null", func(t *testing.T) {
		_, err := orders.Create(ctx, tabular.Record{"customer_id": "cust-9", "total": 5})
		require.NoError(t, err)

		n, err := New(orders).WhereNull("notes").Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n, "only the note-less order matches")

		n, err = New(orders).WhereNotNull("notes").Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 9, n)
	})

	t.Run("helpers AND with operator conditions", func(t *testing.T) {
		got, err := New(orders).
			Where("status", "=", "pending").
			WhereBetween("total", 10, 50).
			Get(ctx)
		require.NoError(t, err)
		assert.Len(t, got, 3) // 10, 30, 50
	})
}

func TestBuilder_InvalidInputSurfacesAtExecution(t *testing.T) {
	orders := seedOrders(t)
	ctx := context.Background()

	t.Run("bad operator", func(t *testing.T) {
		_, err := New(orders).Where("total", "~=", 10).Get(ctx)
		require.Error(t, err)
		assert.True(t, errs.IsInvalidInput(err))
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := New(orders).Where("nope", "=", 10).Get(ctx)
		require.Error(t, err)
		assert.True(t, errs.IsInvalidInput(err))
	})

	t.Run("unknown sort field", func(t *testing.T) {
		_, err := New(orders).OrderBy("nope", Asc).Get(ctx)
		require.Error(t, err)
		assert.True(t, errs.IsInvalidInput(err))
	})
}

func TestBuilder_OrderBySingleKey(t *testing.T) {
	orders := seedOrders(t)
	ctx := context.Background()

	got, err := New(orders).
		OrderBy("status", Asc).
		OrderBy("total", Desc). // replaces the status key
		Get(ctx)
	require.NoError(t, err)
	require.Len(t, got, 9)
	assert.Equal(t, float64(90), got[0]["total"])
	assert.Equal(t, float64(10), got[8]["total"])
}

func TestBuilder_OffsetLimitSelect(t *testing.T) {
	orders := seedOrders(t)
	ctx := context.Background()

	got, err := New(orders).
		OrderBy("total", Asc).
		Offset(2).
		Limit(3).
		Select("total", "status").
		Get(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, float64(30), got[0]["total"])
	assert.Equal(t, float64(50), got[2]["total"])
	for _, rec := range got {
		assert.Len(t, rec, 2, "projection keeps only selected fields")
		assert.NotContains(t, rec, "order_id")
	}
}

func TestBuilder_OffsetPastEnd(t *testing.T) {
	orders := seedOrders(t)

	got, err := New(orders).Offset(100).Get(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBuilder_FirstIsSoftOnNoMatch(t *testing.T) {
	orders := seedOrders(t)
	ctx := context.Background()

	rec, err := New(orders).Where("total", ">", 1000).First(ctx)
	require.NoError(t, err)
	assert.Nil(t, rec)

	rec, err = New(orders).OrderBy("total", Desc).First(ctx)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, float64(90), rec["total"])
}

func TestBuilder_CountIgnoresLimitAndKeepsBuilderUsable(t *testing.T) {
	orders := seedOrders(t)
	ctx := context.Background()

	b := New(orders).Where("status", "=", "pending").Limit(2)

	n, err := b.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n, "count ignores the limit")

	got, err := b.Get(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 2, "the limit still applies to a later Get")
}

func TestBuilder_Exists(t *testing.T) {
	orders := seedOrders(t)
	ctx := context.Background()

	ok, err := New(orders).Where("total", "=", 40).Exists(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = New(orders).Where("total", "=", 41).Exists(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBuilder_Paginate(t *testing.T) {
	orders := seedOrders(t)
	ctx := context.Background()

	t.Run("middle page", func(t *testing.T) {
		page, err := New(orders).OrderBy("total", Asc).Paginate(ctx, 2, 4)
		require.NoError(t, err)

		assert.Equal(t, 9, page.TotalCount)
		assert.Equal(t, 3, page.TotalPages)
		assert.True(t, page.HasNext)
		assert.True(t, page.HasPrev)
		require.Len(t, page.Data, 4)
		assert.Equal(t, float64(50), page.Data[0]["total"])
	})

	t.Run("last page is short", func(t *testing.T) {
		page, err := New(orders).OrderBy("total", Asc).Paginate(ctx, 3, 4)
		require.NoError(t, err)

		require.Len(t, page.Data, 1)
		assert.Equal(t, float64(90), page.Data[0]["total"])
		assert.False(t, page.HasNext)
		assert.True(t, page.HasPrev)
	})

	t.Run("page past the end", func(t *testing.T) {
		page, err := New(orders).Paginate(ctx, 9, 4)
		require.NoError(t, err)
		assert.Empty(t, page.Data)
		assert.False(t, page.HasNext)
	})

	t.Run("invalid arguments", func(t *testing.T) {
		_, err := New(orders).Paginate(ctx, 0, 4)
		require.Error(t, err)
		assert.True(t, errs.IsInvalidInput(err))
	})
}
