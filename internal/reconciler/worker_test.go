package reconciler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopflow/backend/internal/checkout"
	"github.com/shopflow/backend/internal/domain"
	"github.com/shopflow/backend/internal/paypal"
)

type fakeOrders struct {
	stuck          []domain.Order
	stuckErr       error
	abandoned      int64
	abandonedCalls int
}

func (f *fakeOrders) FindStuck(context.Context, time.Duration) ([]domain.Order, error) {
	return f.stuck, f.stuckErr
}

func (f *fakeOrders) CancelAbandoned(context.Context, time.Duration) (int64, error) {
	f.abandonedCalls++
	return f.abandoned, nil
}

type fakeResolver struct {
	confirmErr map[string]error
	cancelErr  map[string]error
	confirmed  []string
	cancelled  []string
}

func (f *fakeResolver) ConfirmPayment(_ context.Context, token string) error {
	f.confirmed = append(f.confirmed, token)
	return f.confirmErr[token]
}

func (f *fakeResolver) CancelPayment(_ context.Context, token string) error {
	f.cancelled = append(f.cancelled, token)
	return f.cancelErr[token]
}

func newWorker(orders *fakeOrders, resolver *fakeResolver) *Worker {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewWorker(orders, resolver, time.Minute, 5*time.Minute, logger)
}

func TestSweep(t *testing.T) {
	t.Run("confirms stuck orders against the gateway", func(t *testing.T) {
		orders := &fakeOrders{stuck: []domain.Order{
			{ID: "order-1", GatewayOrderID: "GW-1"},
			{ID: "order-2", GatewayOrderID: "GW-2"},
		}}
		resolver := &fakeResolver{}

		newWorker(orders, resolver).Sweep(t.Context())

		if len(resolver.confirmed) != 2 {
			t.Fatalf("expected 2 confirmation attempts, got %d", len(resolver.confirmed))
		}
		if len(resolver.cancelled) != 0 {
			t.Errorf("expected no cancellations, got %v", resolver.cancelled)
		}
	})

	t.Run("cancels orders the gateway reports unapproved", func(t *testing.T) {
		orders := &fakeOrders{stuck: []domain.Order{{ID: "order-1", GatewayOrderID: "GW-1"}}}
		resolver := &fakeResolver{
			confirmErr: map[string]error{
				"GW-1": fmt.Errorf("%w: gateway status CREATED", checkout.ErrPaymentUnverified),
			},
		}

		newWorker(orders, resolver).Sweep(t.Context())

		if len(resolver.cancelled) != 1 || resolver.cancelled[0] != "GW-1" {
			t.Fatalf("expected GW-1 cancelled, got %v", resolver.cancelled)
		}
	})

	t.Run("leaves orders alone when the gateway is unreachable", func(t *testing.T) {
		orders := &fakeOrders{stuck: []domain.Order{{ID: "order-1", GatewayOrderID: "GW-1"}}}
		resolver := &fakeResolver{
			confirmErr: map[string]error{
				"GW-1": fmt.Errorf("%w: %w: connection refused", checkout.ErrPaymentUnverified, paypal.ErrUnavailable),
			},
		}

		newWorker(orders, resolver).Sweep(t.Context())

		if len(resolver.cancelled) != 0 {
			t.Errorf("an unreachable gateway must not trigger cancellation, got %v", resolver.cancelled)
		}
	})

	t.Run("always runs the abandoned order pass", func(t *testing.T) {
		orders := &fakeOrders{abandoned: 3}
		resolver := &fakeResolver{}

		newWorker(orders, resolver).Sweep(t.Context())

		if orders.abandonedCalls != 1 {
			t.Errorf("expected 1 abandoned pass, got %d", orders.abandonedCalls)
		}
	})

	t.Run("listing failure skips the whole pass", func(t *testing.T) {
		orders := &fakeOrders{stuckErr: fmt.Errorf("connection reset")}
		resolver := &fakeResolver{}

		newWorker(orders, resolver).Sweep(t.Context())

		if len(resolver.confirmed) != 0 || orders.abandonedCalls != 0 {
			t.Error("expected no work after a listing failure")
		}
	})
}

func TestRunStopsOnCancel(t *testing.T) {
	orders := &fakeOrders{}
	resolver := &fakeResolver{}
	worker := NewWorker(orders, resolver, time.Millisecond, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after context cancellation")
	}
}
