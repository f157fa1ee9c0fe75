package checkout

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shopflow/backend/internal/domain"
	"github.com/shopflow/backend/internal/paypal"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeCart struct {
	mu    sync.Mutex
	lines map[string][]domain.CartLine
}

func newFakeCart() *fakeCart {
	return &fakeCart{lines: make(map[string][]domain.CartLine)}
}

func (f *fakeCart) ListByUser(_ context.Context, userID string) ([]domain.CartLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.CartLine(nil), f.lines[userID]...), nil
}

func (f *fakeCart) clear(userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.lines, userID)
}

func (f *fakeCart) count(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.lines[userID])
}

func (f *fakeCart) add(userID string, line domain.CartLine) {
	f.mu.Lock()
	defer f.mu.Unlock()
	line.UserID = userID
	f.lines[userID] = append(f.lines[userID], line)
}

type fakePrices map[string]int64

func (f fakePrices) PriceCents(_ context.Context, productID string) (int64, error) {
	price, ok := f[productID]
	if !ok {
		return 0, fmt.Errorf("no such product %s", productID)
	}
	return price, nil
}

type fakeLedger struct {
	mu       sync.Mutex
	orders   map[string]*domain.Order
	payments map[string]*domain.PaymentRecord
	cart     *fakeCart
}

func newFakeLedger(cart *fakeCart) *fakeLedger {
	return &fakeLedger{
		orders:   make(map[string]*domain.Order),
		payments: make(map[string]*domain.PaymentRecord),
		cart:     cart,
	}
}

func (f *fakeLedger) Create(_ context.Context, order *domain.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	order.ID = uuid.New().String()
	for i := range order.Details {
		order.Details[i].ID = uuid.New().String()
		order.Details[i].OrderID = order.ID
	}
	clone := *order
	f.orders[order.ID] = &clone
	return nil
}

func (f *fakeLedger) GetByID(_ context.Context, id string) (*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok {
		return nil, nil
	}
	clone := *order
	return &clone, nil
}

func (f *fakeLedger) TransitionStatus(_ context.Context, id string, from, to domain.OrderStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok || order.Status != from {
		return false, nil
	}
	order.Status = to
	return true, nil
}

func (f *fakeLedger) SetGatewayOrderID(_ context.Context, id, gatewayOrderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if order, ok := f.orders[id]; ok {
		order.GatewayOrderID = gatewayOrderID
	}
	return nil
}

func (f *fakeLedger) Complete(_ context.Context, orderID, userID string, payment *domain.PaymentRecord) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[orderID]
	if !ok || order.Status != domain.OrderStatusAwaitingApproval {
		return false, nil
	}
	order.Status = domain.OrderStatusCompleted
	payment.ID = uuid.New().String()
	payment.OrderID = orderID
	f.payments[orderID] = payment
	f.cart.clear(userID)
	return true, nil
}

func (f *fakeLedger) orderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

func (f *fakeLedger) singleOrder(t *testing.T) *domain.Order {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.orders) != 1 {
		t.Fatalf("expected exactly 1 order, got %d", len(f.orders))
	}
	for _, order := range f.orders {
		clone := *order
		return &clone
	}
	return nil
}

type fakeGateway struct {
	mu            sync.Mutex
	created       map[string]int64 // gateway order id -> amount
	references    map[string]string
	statuses      map[string]string
	createErr     error
	createBlocked chan struct{} // closed to release blocked CreateOrder calls
	createEntered chan struct{} // signalled once per CreateOrder call
	createCalls   int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		created:    make(map[string]int64),
		references: make(map[string]string),
		statuses:   make(map[string]string),
	}
}

func (f *fakeGateway) CreateOrder(_ context.Context, orderID string, amountCents int64) (paypal.RemotePayment, error) {
	f.mu.Lock()
	f.createCalls++
	entered := f.createEntered
	blocked := f.createBlocked
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if blocked != nil {
		<-blocked
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return paypal.RemotePayment{}, f.createErr
	}
	gatewayID := "GW-" + orderID
	f.created[gatewayID] = amountCents
	f.references[gatewayID] = orderID
	f.statuses[gatewayID] = "CREATED"
	return paypal.RemotePayment{GatewayOrderID: gatewayID, ApprovalURL: "https://gateway.test/approve/" + gatewayID}, nil
}

func (f *fakeGateway) VerifyOrder(_ context.Context, gatewayOrderID string) (paypal.Verification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.statuses[gatewayOrderID]
	if !ok {
		return paypal.Verification{}, paypal.ErrUnavailable
	}
	return paypal.Verification{
		OrderID:     f.references[gatewayOrderID],
		AmountCents: f.created[gatewayOrderID],
		Status:      status,
		Approved:    status == "COMPLETED" || status == "APPROVED",
	}, nil
}

func (f *fakeGateway) setStatus(gatewayOrderID, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[gatewayOrderID] = status
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []domain.OrderCompletedEvent
}

func (p *capturingPublisher) Publish(_ context.Context, _ string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event.(domain.OrderCompletedEvent))
	return nil
}

type staticEmails map[string]string

func (s staticEmails) EmailByID(_ context.Context, id string) (string, error) {
	return s[id], nil
}

type fixture struct {
	cart      *fakeCart
	ledger    *fakeLedger
	gateway   *fakeGateway
	publisher *capturingPublisher
	svc       *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cart := newFakeCart()
	ledger := newFakeLedger(cart)
	gateway := newFakeGateway()
	publisher := &capturingPublisher{}

	prices := fakePrices{"prod-catalog": 999}
	emails := staticEmails{"user-1": "user-1@example.com"}

	svc, err := NewService(cart, prices, ledger, gateway, publisher, emails, testLogger())
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	return &fixture{cart: cart, ledger: ledger, gateway: gateway, publisher: publisher, svc: svc}
}

func TestCheckout(t *testing.T) {
	t.Run("empty cart fails without creating an order", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.Checkout(t.Context(), "user-1")
		if !errors.Is(err, ErrEmptyCart) {
			t.Fatalf("expected ErrEmptyCart, got %v", err)
		}
		if f.ledger.orderCount() != 0 {
			t.Errorf("expected no orders, got %d", f.ledger.orderCount())
		}
	})

	t.Run("snapshots cart into order and details", func(t *testing.T) {
		f := newFixture(t)
		f.cart.add("user-1", domain.CartLine{ProductID: "prod-5", Quantity: 2, UnitPriceCents: 1000})
		f.cart.add("user-1", domain.CartLine{ProductID: "prod-9", Quantity: 1, UnitPriceCents: 2500})

		url, err := f.svc.Checkout(t.Context(), "user-1")
		if err != nil {
			t.Fatalf("checkout failed: %v", err)
		}
		if url == "" {
			t.Fatal("expected an approval URL")
		}

		order := f.ledger.singleOrder(t)
		if order.TotalCents != 4500 {
			t.Errorf("expected total 4500 cents, got %d", order.TotalCents)
		}
		if len(order.Details) != 2 {
			t.Fatalf("expected 2 detail rows, got %d", len(order.Details))
		}
		prices := map[string]int64{}
		for _, d := range order.Details {
			prices[d.ProductID] = d.UnitPriceCents
		}
		if prices["prod-5"] != 1000 || prices["prod-9"] != 2500 {
			t.Errorf("unexpected frozen unit prices: %v", prices)
		}
		if order.Status != domain.OrderStatusAwaitingApproval {
			t.Errorf("expected AwaitingGatewayApproval, got %s", order.Status)
		}
		if f.cart.count("user-1") != 2 {
			t.Errorf("cart must stay intact until the gateway confirms, got %d lines", f.cart.count("user-1"))
		}
	})

	t.Run("zero captured price falls back to catalog price", func(t *testing.T) {
		f := newFixture(t)
		f.cart.add("user-1", domain.CartLine{ProductID: "prod-catalog", Quantity: 3, UnitPriceCents: 0})

		_, err := f.svc.Checkout(t.Context(), "user-1")
		if err != nil {
			t.Fatalf("checkout failed: %v", err)
		}

		order := f.ledger.singleOrder(t)
		if order.TotalCents != 3*999 {
			t.Errorf("expected total %d, got %d", 3*999, order.TotalCents)
		}
		if order.Details[0].UnitPriceCents != 999 {
			t.Errorf("expected frozen catalog price 999, got %d", order.Details[0].UnitPriceCents)
		}
	})

	t.Run("gateway failure leaves order awaiting approval", func(t *testing.T) {
		f := newFixture(t)
		f.cart.add("user-1", domain.CartLine{ProductID: "prod-5", Quantity: 1, UnitPriceCents: 1000})
		f.gateway.createErr = fmt.Errorf("%w: connection refused", paypal.ErrUnavailable)

		_, err := f.svc.Checkout(t.Context(), "user-1")
		if !errors.Is(err, paypal.ErrUnavailable) {
			t.Fatalf("expected ErrUnavailable, got %v", err)
		}

		order := f.ledger.singleOrder(t)
		if order.Status != domain.OrderStatusAwaitingApproval {
			t.Errorf("expected order to stay AwaitingGatewayApproval, got %s", order.Status)
		}
		if f.cart.count("user-1") != 1 {
			t.Error("cart must be untouched after a gateway failure")
		}
	})

	t.Run("concurrent checkouts by the same user create one order", func(t *testing.T) {
		f := newFixture(t)
		f.cart.add("user-1", domain.CartLine{ProductID: "prod-5", Quantity: 2, UnitPriceCents: 1000})

		f.gateway.createEntered = make(chan struct{}, 2)
		f.gateway.createBlocked = make(chan struct{})

		results := make(chan error, 2)
		go func() {
			_, err := f.svc.Checkout(context.Background(), "user-1")
			results <- err
		}()

		// wait until the first checkout is inside the gateway call, then race
		// a second one against it
		<-f.gateway.createEntered
		go func() {
			_, err := f.svc.Checkout(context.Background(), "user-1")
			results <- err
		}()

		time.Sleep(50 * time.Millisecond)
		close(f.gateway.createBlocked)

		for i := 0; i < 2; i++ {
			if err := <-results; err != nil {
				t.Fatalf("checkout %d failed: %v", i, err)
			}
		}

		if got := f.ledger.orderCount(); got != 1 {
			t.Fatalf("expected exactly 1 order from racing checkouts, got %d", got)
		}
	})
}

func TestConfirmPayment(t *testing.T) {
	startCheckout := func(t *testing.T, f *fixture) (orderID, gatewayOrderID string) {
		t.Helper()
		f.cart.add("user-1", domain.CartLine{ProductID: "prod-5", Quantity: 2, UnitPriceCents: 1000})
		f.cart.add("user-1", domain.CartLine{ProductID: "prod-9", Quantity: 1, UnitPriceCents: 2500})
		if _, err := f.svc.Checkout(t.Context(), "user-1"); err != nil {
			t.Fatalf("checkout failed: %v", err)
		}
		order := f.ledger.singleOrder(t)
		return order.ID, order.GatewayOrderID
	}

	t.Run("completes order, records payment, clears cart", func(t *testing.T) {
		f := newFixture(t)
		orderID, gatewayOrderID := startCheckout(t, f)
		f.gateway.setStatus(gatewayOrderID, "COMPLETED")

		if err := f.svc.ConfirmPayment(t.Context(), gatewayOrderID); err != nil {
			t.Fatalf("confirmation failed: %v", err)
		}

		order, _ := f.ledger.GetByID(t.Context(), orderID)
		if order.Status != domain.OrderStatusCompleted {
			t.Errorf("expected Completed, got %s", order.Status)
		}
		payment := f.ledger.payments[orderID]
		if payment == nil {
			t.Fatal("expected a payment record")
		}
		if payment.AmountCents != 4500 {
			t.Errorf("expected settled amount 4500, got %d", payment.AmountCents)
		}
		if f.cart.count("user-1") != 0 {
			t.Error("expected cart to be cleared after confirmed payment")
		}
		if len(f.publisher.events) != 1 {
			t.Fatalf("expected 1 completed event, got %d", len(f.publisher.events))
		}
		if f.publisher.events[0].Email != "user-1@example.com" {
			t.Errorf("expected event email to be resolved, got %q", f.publisher.events[0].Email)
		}
	})

	t.Run("duplicate confirmation is a no-op", func(t *testing.T) {
		f := newFixture(t)
		orderID, gatewayOrderID := startCheckout(t, f)
		f.gateway.setStatus(gatewayOrderID, "COMPLETED")

		if err := f.svc.ConfirmPayment(t.Context(), gatewayOrderID); err != nil {
			t.Fatalf("first confirmation failed: %v", err)
		}
		if err := f.svc.ConfirmPayment(t.Context(), gatewayOrderID); err != nil {
			t.Fatalf("second confirmation must succeed, got %v", err)
		}

		if len(f.ledger.payments) != 1 {
			t.Fatalf("expected exactly 1 payment record, got %d", len(f.ledger.payments))
		}
		order, _ := f.ledger.GetByID(t.Context(), orderID)
		if order.Status != domain.OrderStatusCompleted {
			t.Errorf("expected Completed after both calls, got %s", order.Status)
		}
		if len(f.publisher.events) != 1 {
			t.Errorf("expected 1 completed event, got %d", len(f.publisher.events))
		}
	})

	t.Run("unapproved status mutates nothing", func(t *testing.T) {
		f := newFixture(t)
		orderID, gatewayOrderID := startCheckout(t, f)
		// gateway still reports CREATED

		err := f.svc.ConfirmPayment(t.Context(), gatewayOrderID)
		if !errors.Is(err, ErrPaymentUnverified) {
			t.Fatalf("expected ErrPaymentUnverified, got %v", err)
		}

		order, _ := f.ledger.GetByID(t.Context(), orderID)
		if order.Status != domain.OrderStatusAwaitingApproval {
			t.Errorf("expected AwaitingGatewayApproval unchanged, got %s", order.Status)
		}
		if len(f.ledger.payments) != 0 {
			t.Errorf("expected no payment records, got %d", len(f.ledger.payments))
		}
		if f.cart.count("user-1") != 2 {
			t.Error("cart must survive a failed verification")
		}
	})

	t.Run("unknown gateway order is unverified", func(t *testing.T) {
		f := newFixture(t)

		err := f.svc.ConfirmPayment(t.Context(), "GW-unknown")
		if !errors.Is(err, ErrPaymentUnverified) {
			t.Fatalf("expected ErrPaymentUnverified, got %v", err)
		}
	})

	t.Run("verified order missing locally is not found", func(t *testing.T) {
		f := newFixture(t)
		f.gateway.created["GW-ghost"] = 100
		f.gateway.references["GW-ghost"] = "no-such-order"
		f.gateway.statuses["GW-ghost"] = "COMPLETED"

		err := f.svc.ConfirmPayment(t.Context(), "GW-ghost")
		if !errors.Is(err, ErrOrderNotFound) {
			t.Fatalf("expected ErrOrderNotFound, got %v", err)
		}
	})

	t.Run("lines added after checkout survive until the callback", func(t *testing.T) {
		f := newFixture(t)
		_, gatewayOrderID := startCheckout(t, f)

		f.cart.add("user-1", domain.CartLine{ProductID: "prod-late", Quantity: 1, UnitPriceCents: 100})
		f.cart.add("user-2", domain.CartLine{ProductID: "prod-5", Quantity: 1, UnitPriceCents: 1000})

		f.gateway.setStatus(gatewayOrderID, "COMPLETED")
		if err := f.svc.ConfirmPayment(t.Context(), gatewayOrderID); err != nil {
			t.Fatalf("confirmation failed: %v", err)
		}

		// the wipe is user-scoped: everything of user-1 goes, user-2 is untouched
		if f.cart.count("user-1") != 0 {
			t.Errorf("expected user-1 cart cleared, got %d lines", f.cart.count("user-1"))
		}
		if f.cart.count("user-2") != 1 {
			t.Errorf("expected user-2 cart untouched, got %d lines", f.cart.count("user-2"))
		}
	})
}

func TestCancelPayment(t *testing.T) {
	startCheckout := func(t *testing.T, f *fixture) (orderID, gatewayOrderID string) {
		t.Helper()
		f.cart.add("user-1", domain.CartLine{ProductID: "prod-5", Quantity: 1, UnitPriceCents: 1000})
		if _, err := f.svc.Checkout(t.Context(), "user-1"); err != nil {
			t.Fatalf("checkout failed: %v", err)
		}
		order := f.ledger.singleOrder(t)
		return order.ID, order.GatewayOrderID
	}

	t.Run("cancels awaiting order and keeps the cart", func(t *testing.T) {
		f := newFixture(t)
		orderID, gatewayOrderID := startCheckout(t, f)

		if err := f.svc.CancelPayment(t.Context(), gatewayOrderID); err != nil {
			t.Fatalf("cancel failed: %v", err)
		}

		order, _ := f.ledger.GetByID(t.Context(), orderID)
		if order.Status != domain.OrderStatusCancelled {
			t.Errorf("expected Cancelled, got %s", order.Status)
		}
		if f.cart.count("user-1") != 1 {
			t.Error("cart must survive a cancellation so the user can retry")
		}
	})

	t.Run("does not cancel a completed order", func(t *testing.T) {
		f := newFixture(t)
		orderID, gatewayOrderID := startCheckout(t, f)
		f.gateway.setStatus(gatewayOrderID, "COMPLETED")
		if err := f.svc.ConfirmPayment(t.Context(), gatewayOrderID); err != nil {
			t.Fatalf("confirmation failed: %v", err)
		}

		_ = f.svc.CancelPayment(t.Context(), gatewayOrderID)

		order, _ := f.ledger.GetByID(t.Context(), orderID)
		if order.Status != domain.OrderStatusCompleted {
			t.Errorf("expected Completed to be terminal, got %s", order.Status)
		}
	})

	t.Run("verification failure applies no transition", func(t *testing.T) {
		f := newFixture(t)
		orderID, _ := startCheckout(t, f)

		err := f.svc.CancelPayment(t.Context(), "GW-unknown")
		if !errors.Is(err, ErrPaymentUnverified) {
			t.Fatalf("expected ErrPaymentUnverified, got %v", err)
		}

		order, _ := f.ledger.GetByID(t.Context(), orderID)
		if order.Status != domain.OrderStatusAwaitingApproval {
			t.Errorf("expected AwaitingGatewayApproval unchanged, got %s", order.Status)
		}
	})
}
