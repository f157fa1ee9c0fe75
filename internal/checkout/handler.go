package checkout

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shopflow/backend/internal/auth"
	"github.com/shopflow/backend/internal/paypal"
)

// RedirectTargets are the frontend pages the payment callbacks send the buyer
// to. The backend never renders the final message itself.
type RedirectTargets struct {
	Success string
	Failure string
	Cancel  string
}

type Handler struct {
	svc       *Service
	redirects RedirectTargets
	logger    *slog.Logger
}

func NewHandler(svc *Service, redirects RedirectTargets, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, redirects: redirects, logger: logger}
}

type checkoutResponse struct {
	PaymentURL string `json:"payment_url"`
}

// HandleCheckout starts a checkout for the authenticated user. The user id
// comes from the verified token, never from the request body.
func (h *Handler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFrom(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	paymentURL, err := h.svc.Checkout(r.Context(), identity.UserID)
	if err != nil {
		h.logger.Error("checkout failed", "error", err, "user_id", identity.UserID)
		switch {
		case errors.Is(err, ErrEmptyCart):
			h.writeError(w, http.StatusBadRequest, "cart is empty")
		case errors.Is(err, paypal.ErrAuth),
			errors.Is(err, paypal.ErrOrderCreate),
			errors.Is(err, paypal.ErrProtocol),
			errors.Is(err, paypal.ErrUnavailable):
			h.writeError(w, http.StatusBadGateway, "payment gateway unavailable")
		default:
			h.writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, checkoutResponse{PaymentURL: paymentURL})
}

// HandleSuccess is the gateway's return redirect. Verification failures send
// the buyer to the failure page; no state is mutated for them.
func (h *Handler) HandleSuccess(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Redirect(w, r, h.redirects.Failure, http.StatusFound)
		return
	}

	if err := h.svc.ConfirmPayment(r.Context(), token); err != nil {
		h.logger.Error("payment confirmation failed", "error", err, "token", token)
		http.Redirect(w, r, h.redirects.Failure, http.StatusFound)
		return
	}

	http.Redirect(w, r, h.redirects.Success, http.StatusFound)
}

// HandleCancel always redirects to the cancel page; the local transition is
// best-effort and never blocks the buyer.
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token != "" {
		if err := h.svc.CancelPayment(r.Context(), token); err != nil {
			h.logger.Warn("payment cancellation not applied", "error", err, "token", token)
		}
	}

	http.Redirect(w, r, h.redirects.Cancel, http.StatusFound)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
