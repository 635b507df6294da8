// Package orders composes the customer, order, and order-item repositories
// into multi-table business operations.
//
// The backing stores have no transactions, so a multi-write operation is a
// saga: preconditions are checked before anything is written, the parent is
// written before its children, and when a child write fails the earlier
// writes are compensated with best-effort deletes. Every step — including
// the compensations — is recorded in the returned Result, so callers see
// exactly what committed instead of being promised atomicity.
package orders

import (
	"context"

	"github.com/koustreak/TabRi/internal/errs"
	"github.com/koustreak/TabRi/internal/logger"
	"github.com/koustreak/TabRi/internal/repository"
	"github.com/koustreak/TabRi/internal/schema"
	"github.com/koustreak/TabRi/internal/tabular"
)

// Order status values.
const (
	StatusPending   = "pending"
	StatusShipped   = "shipped"
	StatusDelivered = "delivered"
	StatusCancelled = "cancelled"
)

// Register adds the three tables this service operates on to reg. Call it
// before repository.Open.
func Register(reg *schema.Registry) error {
	tables := []*schema.Table{
		{
			Name:        "Customers",
			StorageName: "customers",
			PrimaryKey:  "customer_id",
			Fields: []schema.FieldSpec{
				{Name: "customer_id", Type: schema.TypeString, AutoGenerate: true},
				{Name: "email", Type: schema.TypeEmail, Required: true, Unique: true},
				{Name: "name", Type: schema.TypeString},
				{Name: "credit_limit", Type: schema.TypeNumber, Min: schema.Float(0)},
				{Name: "created_at", Type: schema.TypeTimestamp, AutoGenerate: true},
			},
		},
		{
			Name:        "Orders",
			StorageName: "orders",
			PrimaryKey:  "order_id",
			Fields: []schema.FieldSpec{
				{Name: "order_id", Type: schema.TypeString, AutoGenerate: true},
				{
					Name: "customer_id", Type: schema.TypeString, Required: true,
					ForeignKey: &schema.ForeignKey{Table: "Customers", Field: "customer_id", OnDelete: schema.DeleteRestrict},
				},
				{Name: "total_amount", Type: schema.TypeNumber, Min: schema.Float(0)},
				{
					Name: "status", Type: schema.TypeEnum, Default: StatusPending,
					Values: []string{StatusPending, StatusShipped, StatusDelivered, StatusCancelled},
				},
				{Name: "created_at", Type: schema.TypeTimestamp, AutoGenerate: true},
				{Name: "updated_at", Type: schema.TypeTimestamp, AutoUpdate: true},
			},
		},
		{
			Name:        "OrderItems",
			StorageName: "order_items",
			PrimaryKey:  "item_id",
			Fields: []schema.FieldSpec{
				{Name: "item_id", Type: schema.TypeString, AutoGenerate: true},
				{
					Name: "order_id", Type: schema.TypeString, Required: true,
					ForeignKey: &schema.ForeignKey{Table: "Orders", Field: "order_id", OnDelete: schema.DeleteCascade},
				},
				{Name: "sku", Type: schema.TypeString, Required: true},
				{Name: "quantity", Type: schema.TypeNumber, Required: true, Min: schema.Float(1)},
				{Name: "unit_price", Type: schema.TypeNumber, Required: true, Min: schema.Float(0)},
			},
		},
	}
	for _, t := range tables {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// LineItem is one order line in a PlaceOrder call.
type LineItem struct {
	SKU       string
	Quantity  float64
	UnitPrice float64
}

// Step records one write (or compensating delete) of a saga.
type Step struct {
	// Action is what was attempted: "create" or "compensate".
	Action string

	// Table and ID identify the affected record.
	Table string
	ID    any

	// Err is nil when the step succeeded.
	Err error
}

// Result reports a PlaceOrder saga. When Err on the call is non-nil, Steps
// shows which writes had already committed and whether their compensating
// deletes succeeded.
type Result struct {
	Order tabular.Record
	Items []tabular.Record
	Steps []Step
}

// Service implements order workflows over three repositories.
type Service struct {
	customers *repository.Repository
	orders    *repository.Repository
	items     *repository.Repository
	log       *logger.Logger
}

// New wires a Service from an opened DB. The Customers, Orders, and
// OrderItems tables must be registered (see Register).
func New(db *repository.DB, log *logger.Logger) (*Service, error) {
	customers, err := db.Repo("Customers")
	if err != nil {
		return nil, err
	}
	orders, err := db.Repo("Orders")
	if err != nil {
		return nil, err
	}
	items, err := db.Repo("OrderItems")
	if err != nil {
		return nil, err
	}
	return &Service{
		customers: customers,
		orders:    orders,
		items:     items,
		log:       logger.OrNop(log),
	}, nil
}

// PlaceOrder creates one order and its line items for a customer.
//
// Preconditions, checked before any write: the customer exists, at least one
// line item is given, and — when the customer has a positive credit limit —
// the order total stays within it.
//
// Writes run parent-first. If a line item fails, the order and the items
// written so far are deleted best-effort and the Result records each
// compensation; the original failure is returned.
func (s *Service) PlaceOrder(ctx context.Context, customerID string, lines []LineItem) (*Result, error) {
	res := &Result{}

	if len(lines) == 0 {
		return res, errs.New(errs.ErrKindInvalidInput, "an order needs at least one line item")
	}

	customer, err := s.customers.FindByID(ctx, customerID)
	if err != nil {
		return res, err
	}
	if customer == nil {
		return res, errs.Newf(errs.ErrKindNotFound, "customer %q does not exist", customerID)
	}

	var total float64
	for i, line := range lines {
		if line.Quantity <= 0 || line.UnitPrice < 0 {
			return res, errs.Newf(errs.ErrKindInvalidInput,
				"line %d: quantity must be positive and unit price non-negative", i)
		}
		total += line.Quantity * line.UnitPrice
	}

	if limit, ok := tabular.ToNumber(customer["credit_limit"]); ok && limit > 0 && total > limit {
		return res, errs.Newf(errs.ErrKindInvalidInput,
			"order total %.2f exceeds customer credit limit %.2f", total, limit)
	}

	order, err := s.orders.Create(ctx, tabular.Record{
		"customer_id":  customerID,
		"total_amount": total,
	})
	res.Steps = append(res.Steps, Step{Action: "create", Table: "Orders", Err: err})
	if err != nil {
		return res, err
	}
	orderID := order["order_id"]
	res.Steps[len(res.Steps)-1].ID = orderID
	res.Order = order

	for i, line := range lines {
		item, err := s.items.Create(ctx, tabular.Record{
			"order_id":   orderID,
			"sku":        line.SKU,
			"quantity":   line.Quantity,
			"unit_price": line.UnitPrice,
		})
		step := Step{Action: "create", Table: "OrderItems", Err: err}
		if item != nil {
			step.ID = item["item_id"]
		}
		res.Steps = append(res.Steps, step)

		if err != nil {
			s.log.With().Any("order_id", orderID).Int("line", i).Err(err).Logger().
				Warn("line item failed, compensating")
			s.compensate(ctx, res)
			res.Order = nil
			res.Items = nil
			return res, err
		}
		res.Items = append(res.Items, item)
	}

	s.log.With().Any("order_id", orderID).Int("items", len(res.Items)).
		Any("total", total).Logger().Info("order placed")
	return res, nil
}

// compensate deletes, in reverse order, every record the saga created.
// Deleting the order last lets its CASCADE sweep up any item the item-level
// deletes missed. Failures are recorded and logged, never retried.
func (s *Service) compensate(ctx context.Context, res *Result) {
	for i := len(res.Steps) - 1; i >= 0; i-- {
		step := res.Steps[i]
		if step.Err != nil || step.ID == nil {
			continue
		}
		repo := s.orders
		if step.Table == "OrderItems" {
			repo = s.items
		}
		_, err := repo.Delete(ctx, step.ID)
		res.Steps = append(res.Steps, Step{Action: "compensate", Table: step.Table, ID: step.ID, Err: err})
		if err != nil {
			s.log.With().Str("table", step.Table).Any("id", step.ID).Err(err).Logger().
				Error("compensating delete failed, record is orphaned")
		}
	}
}

// UpdateStatus moves an order to a new status, enforcing the transition
// rules: a cancelled order never changes again, and a delivered order cannot
// be cancelled. Returns the updated order, or nil when the order id does not
// exist.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, status string) (tabular.Record, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, nil
	}

	current, _ := order["status"].(string)
	if err := checkTransition(current, status); err != nil {
		return nil, err
	}

	updated, err := s.orders.Update(ctx, orderID, tabular.Record{"status": status})
	if err != nil {
		return nil, err
	}
	s.log.With().Str("order_id", orderID).Str("from", current).Str("to", status).Logger().
		Info("order status changed")
	return updated, nil
}

// CancelOrder is UpdateStatus to cancelled.
func (s *Service) CancelOrder(ctx context.Context, orderID string) (tabular.Record, error) {
	return s.UpdateStatus(ctx, orderID, StatusCancelled)
}

// OrderWithItems loads an order and its line items in one call. A missing
// order returns (nil, nil, nil).
func (s *Service) OrderWithItems(ctx context.Context, orderID string) (tabular.Record, []tabular.Record, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil || order == nil {
		return nil, nil, err
	}
	items, err := s.items.FindBy(ctx, "order_id", orderID)
	if err != nil {
		return nil, nil, err
	}
	return order, items, nil
}

// checkTransition enforces the status rules shared by every caller.
func checkTransition(from, to string) error {
	if from == to {
		return nil
	}
	if from == StatusCancelled {
		return errs.Newf(errs.ErrKindConflict,
			"a cancelled order cannot change status (attempted %s)", to)
	}
	if from == StatusDelivered && to == StatusCancelled {
		return errs.New(errs.ErrKindConflict, "a delivered order cannot be cancelled")
	}
	return nil
}
