// Package reconciler closes the loop on orders whose gateway callback never
// arrived. Browsers get closed, redirects get lost; the order row is the
// durable record, so a periodic sweep asks the gateway what actually happened
// and applies the same transitions the callback handlers would have.
package reconciler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopflow/backend/internal/checkout"
	"github.com/shopflow/backend/internal/domain"
	"github.com/shopflow/backend/internal/paypal"
)

type OrderSource interface {
	FindStuck(ctx context.Context, olderThan time.Duration) ([]domain.Order, error)
	CancelAbandoned(ctx context.Context, olderThan time.Duration) (int64, error)
}

type PaymentResolver interface {
	ConfirmPayment(ctx context.Context, token string) error
	CancelPayment(ctx context.Context, token string) error
}

type Worker struct {
	orders   OrderSource
	payments PaymentResolver
	interval time.Duration
	after    time.Duration
	logger   *slog.Logger
}

func NewWorker(orders OrderSource, payments PaymentResolver, interval, after time.Duration, logger *slog.Logger) *Worker {
	return &Worker{
		orders:   orders,
		payments: payments,
		interval: interval,
		after:    after,
		logger:   logger,
	}
}

// Run sweeps on a fixed interval until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("reconciler started", "interval", w.interval, "after", w.after)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("reconciler stopped")
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep runs one reconciliation pass. Orders that reached the gateway are
// resolved against its reported status; orders that never obtained a gateway
// id have nothing to reconcile against and are cancelled outright.
func (w *Worker) Sweep(ctx context.Context) {
	stuck, err := w.orders.FindStuck(ctx, w.after)
	if err != nil {
		w.logger.Error("failed to list stuck orders", "error", err)
		return
	}

	for _, order := range stuck {
		w.resolve(ctx, order)
	}

	cancelled, err := w.orders.CancelAbandoned(ctx, w.after)
	if err != nil {
		w.logger.Error("failed to cancel abandoned orders", "error", err)
		return
	}
	if cancelled > 0 {
		w.logger.Info("cancelled abandoned orders", "count", cancelled)
	}
}

func (w *Worker) resolve(ctx context.Context, order domain.Order) {
	err := w.payments.ConfirmPayment(ctx, order.GatewayOrderID)
	if err == nil {
		w.logger.Info("reconciled stuck order as completed", "order_id", order.ID)
		return
	}

	if errors.Is(err, paypal.ErrUnavailable) || errors.Is(err, paypal.ErrAuth) {
		// gateway unreachable, leave the order for the next sweep
		w.logger.Warn("gateway unreachable during reconciliation", "error", err, "order_id", order.ID)
		return
	}

	if errors.Is(err, checkout.ErrPaymentUnverified) {
		if cancelErr := w.payments.CancelPayment(ctx, order.GatewayOrderID); cancelErr != nil {
			w.logger.Warn("failed to cancel unapproved order", "error", cancelErr, "order_id", order.ID)
			return
		}
		w.logger.Info("reconciled stuck order as cancelled", "order_id", order.ID)
		return
	}

	w.logger.Error("failed to reconcile stuck order", "error", err, "order_id", order.ID)
}
