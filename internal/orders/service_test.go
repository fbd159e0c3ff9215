package orders_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/mock/gomock"

	"github.com/ariefcatur/go-orders-readpath/internal/orders"
	mock_orders "github.com/ariefcatur/go-orders-readpath/internal/orders/mocks"
	"github.com/ariefcatur/go-orders-readpath/internal/orders/orderstest"
)

type countingInvalidator struct {
	mu sync.Mutex
	n  int
}

func (c *countingInvalidator) Invalidate() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store     *orderstest.MemStore
	catalog   *mock_orders.MockCatalog
	publisher *mock_orders.MockPublisher
	cache     *countingInvalidator
	svc       *orders.Service
}

func newFixture(t *testing.T, rows ...orders.Row) *fixture {
	ctrl := gomock.NewController(t)
	f := &fixture{
		store:     orderstest.New(rows...),
		catalog:   mock_orders.NewMockCatalog(ctrl),
		publisher: mock_orders.NewMockPublisher(ctrl),
		cache:     &countingInvalidator{},
	}
	f.svc = orders.NewService(f.store, orders.NewStyleDetector(f.store), f.catalog, f.publisher, f.cache, orders.ServiceOptions{
		FallbackRate: decimal.NewFromInt(5),
		Producer:     "order-api-test",
		Now:          func() time.Time { return fixedNow },
	})
	return f
}

func compactOrder() orders.Row {
	return orders.Row{
		"id":     "ord-1",
		"date":   "2025-01-10",
		"status": "Processando",
		"items": []any{
			map[string]any{"id": "p1", "quantity": 2.0, "price": "R$ 1.234,56"},
		},
		"sellerId":           "",
		"sellerName":         "Ana",
		"commission":         0.0,
		"isCommissionManual": false,
		"observations":       "",
		"installmentDetails": []any{
			map[string]any{"installmentNumber": 1.0, "amount": 100.0, "paidAmount": 0.0, "status": "Pendente", "payments": []any{}},
			map[string]any{"installmentNumber": 2.0, "amount": 100.0, "paidAmount": 0.0, "status": "Pendente", "payments": []any{}},
		},
	}
}

func segmentedOrder() orders.Row {
	return orders.Row{
		"id":                   "ord-2",
		"date":                 "2025-01-11",
		"status":               "Pendente",
		"items":                `[{"id":"p1","quantity":2,"price":50}]`,
		"seller_id":            nil,
		"seller_name":          "Bruno",
		"commission":           nil,
		"is_commission_manual": false,
	}
}

func decodePayload[T any](t *testing.T, env orders.Envelope) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(env.Payload, &v); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	return v
}

func TestUpdateStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("delivered computes fallback commission when product lookup fails", func(t *testing.T) {
		f := newFixture(t, compactOrder())
		f.catalog.EXPECT().FindSellerByName(gomock.Any(), "Ana").Return(orders.Seller{ID: "u-7", Name: "Ana"}, true, nil)
		f.catalog.EXPECT().ProductCommissions(gomock.Any(), []string{"p1"}).Return(nil, errors.New("products table locked"))
		var published orders.Envelope
		f.publisher.EXPECT().Publish(orders.TopicOrderStatusChanged, gomock.Any()).Do(func(_ string, env orders.Envelope) { published = env })

		tr, err := f.svc.UpdateStatus(ctx, "ord-1", orders.StatusDelivered)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tr.Bare || tr.Commission == nil || *tr.Commission != 123.456 || tr.SellerID != "u-7" {
			t.Fatalf("unexpected transition %+v", tr)
		}
		row := f.store.Row("ord-1")
		if row["status"] != "Entregue" || row["commission"] != 123.456 || row["sellerId"] != "u-7" {
			t.Fatalf("unexpected stored row %v", row)
		}

		p := decodePayload[orders.OrderStatusChangedPayload](t, published)
		if published.EventType != orders.EventOrderStatusChanged || published.Producer != "order-api-test" || published.CorrelationID != "ord-1" {
			t.Fatalf("unexpected envelope %+v", published)
		}
		if p.From != orders.StatusProcessing || p.To != orders.StatusDelivered || p.Commission != 123.456 {
			t.Fatalf("unexpected payload %+v", p)
		}
		if f.cache.n != 1 {
			t.Fatalf("expected one invalidation, got %d", f.cache.n)
		}
	})

	t.Run("manual commission is never recomputed", func(t *testing.T) {
		row := compactOrder()
		row["sellerId"] = "u-7"
		row["isCommissionManual"] = true
		f := newFixture(t, row)
		f.publisher.EXPECT().Publish(orders.TopicOrderStatusChanged, gomock.Any())

		tr, err := f.svc.UpdateStatus(ctx, "ord-1", orders.StatusDelivered)
		if err != nil {
			t.Fatal(err)
		}
		if tr.Commission != nil || f.store.Row("ord-1")["commission"] != 0.0 {
			t.Fatalf("manual commission touched: %+v %v", tr, f.store.Row("ord-1"))
		}
	})

	t.Run("existing commission is kept", func(t *testing.T) {
		row := compactOrder()
		row["sellerId"] = "u-7"
		row["commission"] = 50.0
		f := newFixture(t, row)
		f.publisher.EXPECT().Publish(gomock.Any(), gomock.Any())

		if _, err := f.svc.UpdateStatus(ctx, "ord-1", orders.StatusDelivered); err != nil {
			t.Fatal(err)
		}
		if got := f.store.Row("ord-1")["commission"]; got != 50.0 {
			t.Fatalf("expected commission to stay 50, got %v", got)
		}
	})

	t.Run("segmented row resolves seller and uses fixed config", func(t *testing.T) {
		f := newFixture(t, segmentedOrder())
		f.catalog.EXPECT().FindSellerByName(gomock.Any(), "Bruno").Return(orders.Seller{ID: "u-9", Name: "Bruno"}, true, nil)
		f.catalog.EXPECT().ProductCommissions(gomock.Any(), []string{"p1"}).Return(map[string]orders.CommissionConfig{
			"p1": {Type: orders.CommissionFixed, Value: decimal.NewFromInt(10)},
		}, nil)
		f.publisher.EXPECT().Publish(orders.TopicOrderStatusChanged, gomock.Any())

		if _, err := f.svc.UpdateStatus(ctx, "ord-2", orders.StatusDelivered); err != nil {
			t.Fatal(err)
		}
		row := f.store.Row("ord-2")
		if row["seller_id"] != "u-9" || row["commission"] != 20.0 || row["status"] != "Entregue" {
			t.Fatalf("unexpected stored row %v", row)
		}
		if _, ok := row["sellerId"]; ok {
			t.Fatalf("compact column written to a segmented table: %v", row)
		}
	})

	t.Run("unknown seller skips commission", func(t *testing.T) {
		f := newFixture(t, compactOrder())
		f.catalog.EXPECT().FindSellerByName(gomock.Any(), "Ana").Return(orders.Seller{}, false, nil)
		f.publisher.EXPECT().Publish(gomock.Any(), gomock.Any())

		tr, err := f.svc.UpdateStatus(ctx, "ord-1", orders.StatusDelivered)
		if err != nil || tr.Commission != nil || tr.Bare {
			t.Fatalf("unexpected transition %+v (%v)", tr, err)
		}
	})

	t.Run("seller lookup failure writes status only", func(t *testing.T) {
		f := newFixture(t, compactOrder())
		f.catalog.EXPECT().FindSellerByName(gomock.Any(), "Ana").Return(orders.Seller{}, false, errors.New("users table gone"))
		f.publisher.EXPECT().Publish(orders.TopicOrderStatusChanged, gomock.Any())

		tr, err := f.svc.UpdateStatus(ctx, "ord-1", orders.StatusDelivered)
		if err != nil {
			t.Fatalf("bare update must succeed: %v", err)
		}
		if !tr.Bare || tr.To != orders.StatusDelivered {
			t.Fatalf("expected bare transition, got %+v", tr)
		}
		row := f.store.Row("ord-1")
		if row["status"] != "Entregue" || row["commission"] != 0.0 || row["sellerId"] != "" {
			t.Fatalf("unexpected stored row %v", row)
		}
	})

	t.Run("other statuses skip the catalog", func(t *testing.T) {
		f := newFixture(t, compactOrder())
		f.publisher.EXPECT().Publish(gomock.Any(), gomock.Any())

		if _, err := f.svc.UpdateStatus(ctx, "ord-1", orders.StatusCancelled); err != nil {
			t.Fatal(err)
		}
		if f.store.Row("ord-1")["status"] != "Cancelado" {
			t.Fatalf("status not written: %v", f.store.Row("ord-1"))
		}
	})

	t.Run("missing order", func(t *testing.T) {
		f := newFixture(t, compactOrder())

		_, err := f.svc.UpdateStatus(ctx, "nope", orders.StatusDelivered)
		if !errors.Is(err, orders.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if f.cache.n != 0 {
			t.Fatal("failed writes must not invalidate")
		}
	})

	t.Run("invalid status", func(t *testing.T) {
		f := newFixture(t, compactOrder())

		_, err := f.svc.UpdateStatus(ctx, "ord-1", orders.Status("Voando"))
		if !errors.Is(err, orders.ErrInvalidStatus) {
			t.Fatalf("expected ErrInvalidStatus, got %v", err)
		}
		if f.store.Calls("Update") != 0 {
			t.Fatal("invalid status must not write")
		}
	})
}

func TestRecordInstallmentPayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, compactOrder())
	f.publisher.EXPECT().Publish(orders.TopicOrderUpdated, gomock.Any()).Times(2)

	inst, err := f.svc.RecordInstallmentPayment(ctx, "ord-1", 2, orders.Payment{Amount: 40, Method: "pix"})
	if err != nil {
		t.Fatal(err)
	}
	if inst.Status != orders.InstallmentPartial || inst.PaidAmount != 40 || len(inst.Payments) != 1 {
		t.Fatalf("unexpected installment %+v", inst)
	}
	if inst.Payments[0].ID == "" || inst.Payments[0].Date != "2025-03-01T12:00:00Z" {
		t.Fatalf("payment defaults not applied: %+v", inst.Payments[0])
	}

	inst, err = f.svc.RecordInstallmentPayment(ctx, "ord-1", 2, orders.Payment{ID: "pay-2", Amount: 60})
	if err != nil {
		t.Fatal(err)
	}
	if inst.Status != orders.InstallmentPaid || inst.PaidAmount != 100 || len(inst.Payments) != 2 {
		t.Fatalf("unexpected installment %+v", inst)
	}

	details := orders.ToDomain(f.store.Row("ord-1")).InstallmentDetails
	if details[0].Status != orders.InstallmentPending || details[1].Status != orders.InstallmentPaid {
		t.Fatalf("unexpected stored installments %+v", details)
	}

	t.Run("rejects bad input", func(t *testing.T) {
		for _, tc := range []struct {
			number int
			amount float64
		}{
			{1, 0},
			{1, -5},
			{9, 10},
		} {
			_, err := f.svc.RecordInstallmentPayment(ctx, "ord-1", tc.number, orders.Payment{Amount: tc.amount})
			if !errors.Is(err, orders.ErrInvalidPayment) {
				t.Errorf("installment %d amount %v: expected ErrInvalidPayment, got %v", tc.number, tc.amount, err)
			}
		}
		if _, err := f.svc.RecordInstallmentPayment(ctx, "nope", 1, orders.Payment{Amount: 1}); !errors.Is(err, orders.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestRecordInstallmentPayment_ConcurrentPaymentsAllLand(t *testing.T) {
	f := newFixture(t, compactOrder())
	f.publisher.EXPECT().Publish(orders.TopicOrderUpdated, gomock.Any()).Times(2)

	// Both payments reach the store before either of them writes.
	var arrived sync.WaitGroup
	arrived.Add(2)
	f.store.Hook = func(method string) {
		if method == "ModifyColumn" {
			arrived.Done()
			arrived.Wait()
		}
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.RecordInstallmentPayment(context.Background(), "ord-1", 1, orders.Payment{Amount: 30})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}

	inst := orders.ToDomain(f.store.Row("ord-1")).InstallmentDetails[0]
	if inst.PaidAmount != 60 || len(inst.Payments) != 2 || inst.Status != orders.InstallmentPartial {
		t.Fatalf("a concurrent payment was lost: %+v", inst)
	}
}

func TestUpdateDetails(t *testing.T) {
	ctx := context.Background()

	t.Run("drops columns the table does not have", func(t *testing.T) {
		f := newFixture(t, compactOrder())
		var published orders.Envelope
		f.publisher.EXPECT().Publish(orders.TopicOrderUpdated, gomock.Any()).Do(func(_ string, env orders.Envelope) { published = env })

		id := "ord-hijack"
		err := f.svc.UpdateDetails(ctx, "ord-1", orders.Patch{
			ID:           &id,
			Observations: ptr("deixar na portaria"),
			TrackingCode: ptr("BR1"),
		})
		if err != nil {
			t.Fatal(err)
		}
		row := f.store.Row("ord-1")
		if row == nil || row["observations"] != "deixar na portaria" {
			t.Fatalf("observations not written: %v", row)
		}
		if _, ok := row["trackingCode"]; ok {
			t.Fatalf("unknown column written: %v", row)
		}
		p := decodePayload[orders.OrderUpdatedPayload](t, published)
		if len(p.Fields) != 1 || p.Fields[0] != "observations" {
			t.Fatalf("unexpected fields %v", p.Fields)
		}
	})

	t.Run("nothing left to write is a no-op", func(t *testing.T) {
		f := newFixture(t, compactOrder())

		if err := f.svc.UpdateDetails(ctx, "ord-1", orders.Patch{TrackingCode: ptr("BR1")}); err != nil {
			t.Fatal(err)
		}
		if f.store.Calls("Update") != 0 {
			t.Fatal("empty payload must not reach the store")
		}
	})

	t.Run("status goes through the status topic", func(t *testing.T) {
		f := newFixture(t, compactOrder())
		f.publisher.EXPECT().Publish(orders.TopicOrderStatusChanged, gomock.Any())

		status := orders.StatusCancelled
		if err := f.svc.UpdateDetails(ctx, "ord-1", orders.Patch{Status: &status}); err != nil {
			t.Fatal(err)
		}
	})
}

func TestTrashAndDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, compactOrder())
	f.publisher.EXPECT().Publish(orders.TopicOrderStatusChanged, gomock.Any())
	f.publisher.EXPECT().Publish(orders.TopicOrderUpdated, gomock.Any()).Do(func(_ string, env orders.Envelope) {
		if env.EventType != orders.EventOrderDeleted {
			t.Errorf("expected delete event, got %s", env.EventType)
		}
	})

	if err := f.svc.MoveToTrash(ctx, "ord-1"); err != nil {
		t.Fatal(err)
	}
	if f.store.Row("ord-1")["status"] != string(orders.StatusDeleted) {
		t.Fatalf("expected trashed order, got %v", f.store.Row("ord-1"))
	}
	if err := f.svc.Delete(ctx, "ord-1"); err != nil {
		t.Fatal(err)
	}
	if f.store.Row("ord-1") != nil {
		t.Fatal("order still present after delete")
	}
	if err := f.svc.Delete(ctx, "ord-1"); !errors.Is(err, orders.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := f.svc.MoveToTrash(ctx, "ord-1"); !errors.Is(err, orders.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if f.cache.n != 2 {
		t.Fatalf("expected two invalidations, got %d", f.cache.n)
	}
}

func ptr[T any](v T) *T { return &v }
