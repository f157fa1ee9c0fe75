package checkout

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	"github.com/shopflow/backend/internal/domain"
	"github.com/shopflow/backend/internal/paypal"
)

type CartStore interface {
	ListByUser(ctx context.Context, userID string) ([]domain.CartLine, error)
}

type PriceSource interface {
	PriceCents(ctx context.Context, productID string) (int64, error)
}

type OrderLedger interface {
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	TransitionStatus(ctx context.Context, id string, from, to domain.OrderStatus) (bool, error)
	SetGatewayOrderID(ctx context.Context, id, gatewayOrderID string) error
	Complete(ctx context.Context, orderID, userID string, payment *domain.PaymentRecord) (bool, error)
}

type Gateway interface {
	CreateOrder(ctx context.Context, orderID string, amountCents int64) (paypal.RemotePayment, error)
	VerifyOrder(ctx context.Context, gatewayOrderID string) (paypal.Verification, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, event any) error
}

type UserDirectory interface {
	EmailByID(ctx context.Context, id string) (string, error)
}

// Service drives a cart through order creation, gateway hand-off and the
// asynchronous callback reconciliation. Gateway round trips run outside any
// database transaction.
type Service struct {
	cart     CartStore
	catalog  PriceSource
	orders   OrderLedger
	gateway  Gateway
	producer EventPublisher
	users    UserDirectory
	logger   *slog.Logger

	// Collapses concurrent checkout attempts by the same user so one cart
	// cannot be snapshotted into two orders at once.
	inflight singleflight.Group

	checkoutsStarted metric.Int64Counter
	paymentsCaptured metric.Int64Counter
}

func NewService(cart CartStore, catalog PriceSource, orders OrderLedger, gateway Gateway, producer EventPublisher, users UserDirectory, logger *slog.Logger) (*Service, error) {
	meter := otel.Meter("checkout")

	checkoutsStarted, err := meter.Int64Counter("checkout.orders_started",
		metric.WithDescription("Orders created from cart snapshots"))
	if err != nil {
		return nil, err
	}

	paymentsCaptured, err := meter.Int64Counter("checkout.payments_captured",
		metric.WithDescription("Payments confirmed by the gateway and recorded locally"))
	if err != nil {
		return nil, err
	}

	return &Service{
		cart:             cart,
		catalog:          catalog,
		orders:           orders,
		gateway:          gateway,
		producer:         producer,
		users:            users,
		logger:           logger,
		checkoutsStarted: checkoutsStarted,
		paymentsCaptured: paymentsCaptured,
	}, nil
}

// Checkout snapshots the user's cart into a durable order and hands payment
// collection to the gateway. It returns the URL the buyer must visit to
// approve the payment. The cart is left intact until the gateway confirms.
func (s *Service) Checkout(ctx context.Context, userID string) (string, error) {
	result, err, _ := s.inflight.Do(userID, func() (any, error) {
		return s.checkout(ctx, userID)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (s *Service) checkout(ctx context.Context, userID string) (string, error) {
	lines, err := s.cart.ListByUser(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("load cart: %w", err)
	}
	if len(lines) == 0 {
		return "", ErrEmptyCart
	}

	order := &domain.Order{
		UserID:    userID,
		Status:    domain.OrderStatusCreated,
		OrderDate: time.Now().UTC(),
	}

	for _, line := range lines {
		price := line.UnitPriceCents
		if price == 0 {
			// a captured price of exactly zero means "unset"
			price, err = s.catalog.PriceCents(ctx, line.ProductID)
			if err != nil {
				return "", fmt.Errorf("resolve price for product %s: %w", line.ProductID, err)
			}
		}

		order.Details = append(order.Details, domain.OrderDetail{
			ProductID:      line.ProductID,
			Quantity:       line.Quantity,
			UnitPriceCents: price,
		})
		order.TotalCents += int64(line.Quantity) * price
	}

	if err := s.orders.Create(ctx, order); err != nil {
		return "", fmt.Errorf("create order: %w", err)
	}
	s.checkoutsStarted.Add(ctx, 1)

	if _, err := s.orders.TransitionStatus(ctx, order.ID, domain.OrderStatusCreated, domain.OrderStatusAwaitingApproval); err != nil {
		return "", fmt.Errorf("transition order %s: %w", order.ID, err)
	}

	// The gateway round trip happens after the local transaction committed;
	// on failure the order stays AwaitingGatewayApproval for reconciliation.
	remote, err := s.gateway.CreateOrder(ctx, order.ID, order.TotalCents)
	if err != nil {
		s.logger.Error("gateway order creation failed", "error", err, "order_id", order.ID)
		return "", err
	}

	if err := s.orders.SetGatewayOrderID(ctx, order.ID, remote.GatewayOrderID); err != nil {
		return "", fmt.Errorf("store gateway order id for %s: %w", order.ID, err)
	}

	s.logger.Info("checkout started",
		"order_id", order.ID,
		"user_id", userID,
		"total_cents", order.TotalCents,
		"gateway_order_id", remote.GatewayOrderID,
	)

	return remote.ApprovalURL, nil
}

// ConfirmPayment reconciles a gateway success callback. The token is only a
// lookup key; proof of payment comes from the gateway's own status endpoint.
// Safe to invoke more than once for the same order.
func (s *Service) ConfirmPayment(ctx context.Context, token string) error {
	verification, err := s.gateway.VerifyOrder(ctx, token)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPaymentUnverified, err)
	}
	if !verification.Approved {
		return fmt.Errorf("%w: gateway status %s", ErrPaymentUnverified, verification.Status)
	}

	order, err := s.orders.GetByID(ctx, verification.OrderID)
	if err != nil {
		return fmt.Errorf("load order %s: %w", verification.OrderID, err)
	}
	if order == nil {
		return ErrOrderNotFound
	}

	if order.Status == domain.OrderStatusCompleted {
		// duplicate callback; the first delivery already settled everything
		return nil
	}
	if order.Status != domain.OrderStatusAwaitingApproval {
		return ErrOrderStateConflict
	}

	payment := &domain.PaymentRecord{
		Method:      "paypal",
		Status:      domain.PaymentStatusCompleted,
		AmountCents: verification.AmountCents,
		PaidAt:      time.Now().UTC(),
	}

	completed, err := s.orders.Complete(ctx, order.ID, order.UserID, payment)
	if err != nil {
		return fmt.Errorf("complete order %s: %w", order.ID, err)
	}
	if !completed {
		// lost a race with a concurrent duplicate; success if it finished
		fresh, err := s.orders.GetByID(ctx, order.ID)
		if err != nil {
			return fmt.Errorf("reload order %s: %w", order.ID, err)
		}
		if fresh != nil && fresh.Status == domain.OrderStatusCompleted {
			return nil
		}
		return ErrOrderStateConflict
	}

	s.paymentsCaptured.Add(ctx, 1)
	s.logger.Info("payment captured",
		"order_id", order.ID,
		"user_id", order.UserID,
		"amount_cents", payment.AmountCents,
	)

	s.publishCompleted(ctx, order)
	return nil
}

// CancelPayment reconciles a gateway cancel callback. The local transition is
// applied only when the gateway confirms the transaction did not complete.
func (s *Service) CancelPayment(ctx context.Context, token string) error {
	verification, err := s.gateway.VerifyOrder(ctx, token)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPaymentUnverified, err)
	}
	if verification.Approved {
		// the gateway says money moved; leave the order for the success path
		return ErrOrderStateConflict
	}

	cancelled, err := s.orders.TransitionStatus(ctx, verification.OrderID,
		domain.OrderStatusAwaitingApproval, domain.OrderStatusCancelled)
	if err != nil {
		return fmt.Errorf("cancel order %s: %w", verification.OrderID, err)
	}
	if cancelled {
		s.logger.Info("order cancelled", "order_id", verification.OrderID)
	}

	return nil
}

func (s *Service) publishCompleted(ctx context.Context, order *domain.Order) {
	if s.producer == nil {
		return
	}

	email := ""
	if s.users != nil {
		resolved, err := s.users.EmailByID(ctx, order.UserID)
		if err != nil {
			s.logger.Error("failed to resolve user email", "error", err, "user_id", order.UserID)
		} else {
			email = resolved
		}
	}

	event := domain.OrderCompletedEvent{
		OrderID:    order.ID,
		UserID:     order.UserID,
		Email:      email,
		TotalCents: order.TotalCents,
		Timestamp:  time.Now().UTC(),
	}
	if err := s.producer.Publish(ctx, order.ID, event); err != nil {
		s.logger.Error("failed to publish order completed event", "error", err, "order_id", order.ID)
	}
}
