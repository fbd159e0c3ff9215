package orders

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var ErrInvalidPayment = errors.New("invalid installment payment")

// Invalidator drops locally cached reads after a write.
type Invalidator interface {
	Invalidate()
}

// Transition is the outcome of a status update.
type Transition struct {
	OrderID string
	From    Status
	To      Status
	// Commission is set only when this transition computed it.
	Commission *float64
	SellerID   string
	// Bare is true when the commission path failed and only the status was
	// written.
	Bare bool
}

type ServiceOptions struct {
	FallbackRate decimal.Decimal
	// Producer names this service in published events.
	Producer string
	Now      func() time.Time
}

// Service owns the order write operations.
type Service struct {
	store    Store
	detector *StyleDetector
	catalog  Catalog
	events   Publisher
	cache    Invalidator

	fallbackRate decimal.Decimal
	producer     string
	now          func() time.Time
}

// NewService wires the write side. events and cache may be nil.
func NewService(store Store, detector *StyleDetector, catalog Catalog, events Publisher, cache Invalidator, opts ServiceOptions) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Producer == "" {
		opts.Producer = "order-api"
	}
	return &Service{
		store:        store,
		detector:     detector,
		catalog:      catalog,
		events:       events,
		cache:        cache,
		fallbackRate: opts.FallbackRate,
		producer:     opts.Producer,
		now:          opts.Now,
	}
}

// UpdateStatus moves an order to status. Entering Entregue computes the
// seller commission when none is set and the commission is not manual. If
// that path fails for any reason only the status is written.
func (s *Service) UpdateStatus(ctx context.Context, id string, status Status) (Transition, error) {
	if !status.Valid() {
		return Transition{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	t, err := s.transition(ctx, id, status)
	if err != nil {
		log.Printf("status %s for order %s: %v; writing status only", status, id, err)
		if err := s.store.Update(ctx, id, Row{"status": string(status)}); err != nil {
			return Transition{}, fmt.Errorf("update status: %w", err)
		}
		t = Transition{OrderID: id, To: status, Bare: true}
	}

	s.publish(ctx, TopicOrderStatusChanged, EventOrderStatusChanged, id, statusPayload(t))
	return t, nil
}

func (s *Service) transition(ctx context.Context, id string, status Status) (Transition, error) {
	row, err := s.store.GetByID(ctx, id, nil)
	if err != nil {
		return Transition{}, err
	}
	if row == nil {
		return Transition{}, ErrNotFound
	}
	style, err := s.detector.Detect(ctx)
	if err != nil {
		return Transition{}, err
	}
	current := ToDomain(row)
	if !CanTransition(current.Status, status) {
		return Transition{}, ErrInvalidStatus
	}

	t := Transition{OrderID: id, From: current.Status, To: status, SellerID: current.SellerID}
	patch := Patch{Status: &status}

	if status == StatusDelivered {
		sellerID, sellerName := current.SellerID, current.SellerName
		if sellerID == "" && sellerName != "" {
			seller, ok, err := s.catalog.FindSellerByName(ctx, sellerName)
			if err != nil {
				return Transition{}, fmt.Errorf("find seller %q: %w", sellerName, err)
			}
			if ok {
				sellerID, sellerName = seller.ID, seller.Name
			}
		}

		if !current.IsCommissionManual && current.Commission <= 0 && sellerID != "" {
			commission := ComputeCommission(current.Items, s.productConfigs(ctx, current.Items), s.fallbackRate).InexactFloat64()
			patch.Commission = &commission
			t.Commission = &commission
			if sellerID != current.SellerID {
				patch.SellerID = &sellerID
			}
			if sellerName != current.SellerName {
				patch.SellerName = &sellerName
			}
			t.SellerID = sellerID
		}
	}

	payload := FilterColumns(ToRow(patch, style), ColumnsOf(row))
	if err := s.store.Update(ctx, id, payload); err != nil {
		return Transition{}, err
	}
	return t, nil
}

// productConfigs looks up the commission settings of items. A failed lookup
// is logged and treated as "nothing configured".
func (s *Service) productConfigs(ctx context.Context, items []Item) map[string]CommissionConfig {
	seen := make(map[string]bool, len(items))
	ids := make([]string, 0, len(items))
	for _, it := range items {
		if it.ID == "" || seen[it.ID] {
			continue
		}
		seen[it.ID] = true
		ids = append(ids, it.ID)
	}
	if len(ids) == 0 {
		return nil
	}
	configs, err := s.catalog.ProductCommissions(ctx, ids)
	if err != nil {
		log.Printf("product commissions lookup failed (ignored): %v", err)
		return nil
	}
	return configs
}

// MoveToTrash soft deletes the order.
func (s *Service) MoveToTrash(ctx context.Context, id string) error {
	if err := s.store.Update(ctx, id, Row{"status": string(StatusDeleted)}); err != nil {
		return fmt.Errorf("move to trash: %w", err)
	}
	s.publish(ctx, TopicOrderStatusChanged, EventOrderStatusChanged, id, OrderStatusChangedPayload{OrderID: id, To: StatusDeleted})
	return nil
}

// Delete removes the order for good.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	s.publish(ctx, TopicOrderUpdated, EventOrderDeleted, id, OrderDeletedPayload{OrderID: id, Permanent: true})
	return nil
}

// RecordInstallmentPayment adds p to installment number of the order and
// returns the updated installment.
func (s *Service) RecordInstallmentPayment(ctx context.Context, id string, number int, p Payment) (Installment, error) {
	if p.Amount <= 0 || math.IsNaN(p.Amount) || math.IsInf(p.Amount, 0) {
		return Installment{}, fmt.Errorf("%w: amount must be positive", ErrInvalidPayment)
	}
	style, err := s.detector.Detect(ctx)
	if err != nil {
		return Installment{}, fmt.Errorf("detect schema: %w", err)
	}
	column := style.Column("installmentDetails")

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Date == "" {
		p.Date = s.now().UTC().Format(time.RFC3339)
	}

	// The read and the write share one row lock so concurrent payments on
	// the same order all land.
	var inst Installment
	err = s.store.ModifyColumn(ctx, id, column, func(current any) (any, error) {
		details := ToDomain(Row{column: current}).InstallmentDetails
		idx := -1
		for i := range details {
			if details[i].InstallmentNumber == number {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("%w: installment %d not found", ErrInvalidPayment, number)
		}
		inst = details[idx]
		inst.PaidAmount += p.Amount
		inst.Status = DeriveInstallmentStatus(inst.Amount, inst.PaidAmount)
		inst.Payments = append(append([]Payment{}, inst.Payments...), p)
		details[idx] = inst
		return details, nil
	})
	if err != nil {
		return Installment{}, fmt.Errorf("record payment: %w", err)
	}
	s.publish(ctx, TopicOrderUpdated, EventOrderUpdated, id, OrderUpdatedPayload{OrderID: id, Fields: []string{column}})
	return inst, nil
}

// UpdateDetails writes the set fields of p that the live table has.
func (s *Service) UpdateDetails(ctx context.Context, id string, p Patch) error {
	if p.Status != nil && !p.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, *p.Status)
	}
	p.ID = nil
	style, err := s.detector.Detect(ctx)
	if err != nil {
		return fmt.Errorf("detect schema: %w", err)
	}
	payload := FilterColumns(ToRow(p, style), s.detector.Columns(ctx))
	if len(payload) == 0 {
		return nil
	}
	if err := s.store.Update(ctx, id, payload); err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	fields := make([]string, 0, len(payload))
	for k := range payload {
		fields = append(fields, k)
	}
	if p.Status != nil {
		s.publish(ctx, TopicOrderStatusChanged, EventOrderStatusChanged, id, OrderStatusChangedPayload{OrderID: id, To: *p.Status})
		return nil
	}
	s.publish(ctx, TopicOrderUpdated, EventOrderUpdated, id, OrderUpdatedPayload{OrderID: id, Fields: fields})
	return nil
}

// publish runs after every successful write: the local hot cache is dropped
// and the other instances are told through the bus.
func (s *Service) publish(ctx context.Context, topic, eventType, id string, payload any) {
	if s.cache != nil {
		s.cache.Invalidate()
	}
	if s.events == nil {
		return
	}
	s.events.Publish(topic, NewEnvelope(eventType, s.producer, TraceID(ctx), id, payload))
}

func statusPayload(t Transition) OrderStatusChangedPayload {
	p := OrderStatusChangedPayload{OrderID: t.OrderID, From: t.From, To: t.To, SellerID: t.SellerID}
	if t.Commission != nil {
		p.Commission = *t.Commission
	}
	return p
}

type traceKey struct{}

// WithTraceID tags ctx with the request id carried into published events.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceKey{}).(string)
	return id
}
