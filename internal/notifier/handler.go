// Package notifier consumes order completed events and sends confirmation
// emails through the external email service.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/shopflow/backend/internal/domain"
	"github.com/shopflow/backend/internal/paypal"
)

type EmailHandler struct {
	emailServiceURL string
	httpClient      *http.Client
	logger          *slog.Logger
}

func NewEmailHandler(emailServiceURL string, client *http.Client, logger *slog.Logger) *EmailHandler {
	return &EmailHandler{
		emailServiceURL: emailServiceURL,
		httpClient:      client,
		logger:          logger,
	}
}

type emailRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (h *EmailHandler) Handle(ctx context.Context, payload []byte) error {
	var event domain.OrderCompletedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order completed event: %w", err)
	}

	h.logger.Info("processing order completed event", "order_id", event.OrderID, "user_id", event.UserID)

	if event.Email == "" {
		// nothing to deliver to, drop the event
		h.logger.Warn("order completed event carries no email address", "order_id", event.OrderID)
		return nil
	}

	if err := h.sendConfirmationEmail(ctx, event); err != nil {
		h.logger.Error("failed to send confirmation email", "error", err, "order_id", event.OrderID)
		return fmt.Errorf("send confirmation email: %w", err)
	}

	h.logger.Info("confirmation email sent", "order_id", event.OrderID)
	return nil
}

func (h *EmailHandler) sendConfirmationEmail(ctx context.Context, event domain.OrderCompletedEvent) error {
	email := emailRequest{
		To:      event.Email,
		Subject: fmt.Sprintf("Order %s confirmed", event.OrderID),
		Body: fmt.Sprintf("Your payment of $%s for order %s was received. Thank you for shopping with us!",
			paypal.FormatAmount(event.TotalCents), event.OrderID),
	}

	data, err := json.Marshal(email)
	if err != nil {
		return fmt.Errorf("marshal email request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.emailServiceURL+"/send", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("email service returned status %d", resp.StatusCode)
	}

	return nil
}
