package cart

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/shopflow/backend/internal/auth"
	"github.com/shopflow/backend/internal/catalog"
	"github.com/shopflow/backend/internal/domain"
)

type Handler struct {
	repo    *CartRepository
	catalog *catalog.ProductRepository
	logger  *slog.Logger
}

func NewHandler(repo *CartRepository, catalog *catalog.ProductRepository, logger *slog.Logger) *Handler {
	return &Handler{repo: repo, catalog: catalog, logger: logger}
}

type addRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	// Optional price override from the storefront; zero means "use the
	// catalog price of record".
	UnitPriceCents int64 `json:"unit_price_cents"`
}

func (h *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFrom(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req addRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProductID == "" {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Quantity <= 0 {
		req.Quantity = 1
	}

	product, err := h.catalog.GetByID(r.Context(), req.ProductID)
	if err != nil {
		h.logger.Error("failed to look up product", "error", err, "product_id", req.ProductID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if product == nil {
		h.writeError(w, http.StatusNotFound, "product not found")
		return
	}

	price := req.UnitPriceCents
	if price == 0 {
		price = product.PriceCents
	}

	line := &domain.CartLine{
		UserID:         identity.UserID,
		ProductID:      product.ID,
		Name:           product.Name,
		UnitPriceCents: price,
		Quantity:       req.Quantity,
		Image:          product.Image,
	}

	if err := h.repo.Add(r.Context(), line); err != nil {
		h.logger.Error("failed to add cart line", "error", err, "user_id", identity.UserID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("cart line added", "user_id", identity.UserID, "product_id", product.ID, "quantity", req.Quantity)
	h.writeJSON(w, http.StatusCreated, line)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFrom(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	lines, err := h.repo.ListByUser(r.Context(), identity.UserID)
	if err != nil {
		h.logger.Error("failed to list cart", "error", err, "user_id", identity.UserID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, lines)
}

type updateRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFrom(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	id := r.PathValue("id")
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Quantity <= 0 {
		h.writeError(w, http.StatusBadRequest, "quantity must be positive")
		return
	}

	updated, err := h.repo.UpdateQuantity(r.Context(), id, identity.UserID, req.Quantity)
	if err != nil {
		h.logger.Error("failed to update cart line", "error", err, "id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !updated {
		h.writeError(w, http.StatusNotFound, "cart line not found")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFrom(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	removed, err := h.repo.Remove(r.Context(), r.PathValue("id"), identity.UserID)
	if err != nil {
		h.logger.Error("failed to remove cart line", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !removed {
		h.writeError(w, http.StatusNotFound, "cart line not found")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (h *Handler) HandleClear(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFrom(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := h.repo.Clear(r.Context(), identity.UserID); err != nil {
		h.logger.Error("failed to clear cart", "error", err, "user_id", identity.UserID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
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
