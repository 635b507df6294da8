package orders

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/TabRi/internal/errs"
	"github.com/koustreak/TabRi/internal/repository"
	"github.com/koustreak/TabRi/internal/schema"
	"github.com/koustreak/TabRi/internal/tabular"
)

func newService(t *testing.T) (*Service, *repository.DB) {
	t.Helper()

	reg := schema.NewRegistry()
	require.NoError(t, Register(reg))

	db, err := repository.Open(reg, tabular.NewMemStore(), nil)
	require.NoError(t, err)
	require.NoError(t, db.Init(context.Background()))

	svc, err := New(db, nil)
	require.NoError(t, err)
	return svc, db
}

func newCustomer(t *testing.T, db *repository.DB, email string, creditLimit float64) string {
	t.Helper()
	rec, err := db.MustRepo("Customers").Create(context.Background(), tabular.Record{
		"email":        email,
		"credit_limit": creditLimit,
	})
	require.NoError(t, err)
	return rec["customer_id"].(string)
}

func TestService_PlaceOrder(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()
	custID := newCustomer(t, db, "ada@example.com", 1000)

	res, err := svc.PlaceOrder(ctx, custID, []LineItem{
		{SKU: "WIDGET", Quantity: 2, UnitPrice: 50},
		{SKU: "GADGET", Quantity: 1, UnitPrice: 150},
	})
	require.NoError(t, err)

	assert.Equal(t, float64(250), res.Order["total_amount"], "total is the sum of the lines")
	assert.Equal(t, StatusPending, res.Order["status"])
	require.Len(t, res.Items, 2)
	require.Len(t, res.Steps, 3)
	for _, step := range res.Steps {
		assert.NoError(t, step.Err)
		assert.Equal(t, "create", step.Action)
	}

	order, items, err := svc.OrderWithItems(ctx, res.Order["order_id"].(string))
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Len(t, items, 2)
}

func TestService_PlaceOrder_Preconditions(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()
	custID := newCustomer(t, db, "ada@example.com", 100)

	tests := []struct {
		name     string
		customer string
		lines    []LineItem
		check    func(error) bool
	}{
		{
			name:     "unknown customer",
			customer: "ghost",
			lines:    []LineItem{{SKU: "X", Quantity: 1, UnitPrice: 1}},
			check:    errs.IsNotFound,
		},
		{
			name:     "no line items",
			customer: custID,
			check:    errs.IsInvalidInput,
		},
		{
			name:     "non-positive quantity",
			customer: custID,
			lines:    []LineItem{{SKU: "X", Quantity: 0, UnitPrice: 1}},
			check:    errs.IsInvalidInput,
		},
		{
			name:     "over the credit limit",
			customer: custID,
			lines:    []LineItem{{SKU: "X", Quantity: 3, UnitPrice: 50}},
			check:    errs.IsInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.PlaceOrder(ctx, tt.customer, tt.lines)
			require.Error(t, err)
			assert.True(t, tt.check(err))
			assert.Empty(t, res.Steps, "preconditions fail before any write")
		})
	}

	n, err := db.MustRepo("Orders").Count(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n, "nothing was written")
}

func TestService_PlaceOrder_NoLimitMeansNoCeiling(t *testing.T) {
	svc, db := newService(t)
	custID := newCustomer(t, db, "ada@example.com", 0)

	res, err := svc.PlaceOrder(context.Background(), custID, []LineItem{
		{SKU: "BIG", Quantity: 1, UnitPrice: 1_000_000},
	})
	require.NoError(t, err)
	assert.Equal(t, float64(1_000_000), res.Order["total_amount"])
}

func TestService_PlaceOrder_CompensatesOnItemFailure(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()
	custID := newCustomer(t, db, "ada@example.com", 0)

	// The empty SKU passes the service preconditions but fails the schema's
	// required check, after the order and the first item are committed.
	res, err := svc.PlaceOrder(ctx, custID, []LineItem{
		{SKU: "GOOD", Quantity: 1, UnitPrice: 10},
		{SKU: "", Quantity: 1, UnitPrice: 10},
	})
	require.Error(t, err)
	assert.True(t, errs.IsValidation(err))
	assert.Nil(t, res.Order)
	assert.Nil(t, res.Items)

	// order create, item create, failed item create, two compensations
	var compensations int
	for _, step := range res.Steps {
		if step.Action == "compensate" {
			compensations++
			assert.NoError(t, step.Err)
		}
	}
	assert.Equal(t, 2, compensations)

	n, err := db.MustRepo("Orders").Count(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n, "the order was compensated away")

	n, err = db.MustRepo("OrderItems").Count(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n, "the committed item was compensated away")
}

func TestService_UpdateStatus(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()
	custID := newCustomer(t, db, "ada@example.com", 0)

	place := func(t *testing.T) string {
		t.Helper()
		res, err := svc.PlaceOrder(ctx, custID, []LineItem{{SKU: "X", Quantity: 1, UnitPrice: 1}})
		require.NoError(t, err)
		return res.Order["order_id"].(string)
	}

	t.Run("normal transition", func(t *testing.T) {
		id := place(t)
		rec, err := svc.UpdateStatus(ctx, id, StatusShipped)
		require.NoError(t, err)
		assert.Equal(t, StatusShipped, rec["status"])
	})

	t.Run("missing order is soft", func(t *testing.T) {
		rec, err := svc.UpdateStatus(ctx, "ghost", StatusShipped)
		require.NoError(t, err)
		assert.Nil(t, rec)
	})

	t.Run("cancelled is terminal", func(t *testing.T) {
		id := place(t)
		_, err := svc.CancelOrder(ctx, id)
		require.NoError(t, err)

		_, err = svc.UpdateStatus(ctx, id, StatusPending)
		require.Error(t, err)
		assert.True(t, errs.IsConflict(err))
	})

	t.Run("delivered cannot be cancelled", func(t *testing.T) {
		id := place(t)
		_, err := svc.UpdateStatus(ctx, id, StatusDelivered)
		require.NoError(t, err)

		_, err = svc.CancelOrder(ctx, id)
		require.Error(t, err)
		assert.True(t, errs.IsConflict(err))
	})

	t.Run("same status is a no-op", func(t *testing.T) {
		id := place(t)
		rec, err := svc.UpdateStatus(ctx, id, StatusPending)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, rec["status"])
	})

	t.Run("unknown status is rejected by the schema", func(t *testing.T) {
		id := place(t)
		_, err := svc.UpdateStatus(ctx, id, "teleported")
		require.Error(t, err)
		assert.True(t, errs.IsValidation(err))
	})
}
