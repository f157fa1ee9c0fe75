package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

var (
	ErrAuth        = errors.New("gateway authentication failed")
	ErrOrderCreate = errors.New("gateway order creation failed")
	ErrProtocol    = errors.New("gateway protocol error")
	ErrUnavailable = errors.New("gateway unavailable")
)

type Config struct {
	BaseURL   string
	ClientID  string
	Secret    string
	ReturnURL string
	CancelURL string
}

// Client wraps the gateway's OAuth token exchange, order-creation call and
// order-lookup call. Responses are decoded into typed structs so a missing
// field is a decode-time failure, not a runtime surprise downstream.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	return &Client{cfg: cfg, httpClient: httpClient, logger: logger}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

type link struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

type wireAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type purchaseUnit struct {
	ReferenceID string     `json:"reference_id"`
	Amount      wireAmount `json:"amount"`
}

type orderResponse struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	Links         []link         `json:"links"`
	PurchaseUnits []purchaseUnit `json:"purchase_units"`
}

type createOrderRequest struct {
	Intent             string         `json:"intent"`
	PurchaseUnits      []purchaseUnit `json:"purchase_units"`
	ApplicationContext appContext     `json:"application_context"`
}

type appContext struct {
	ReturnURL string `json:"return_url"`
	CancelURL string `json:"cancel_url"`
}

// RemotePayment is the outcome of a successful order-creation call.
type RemotePayment struct {
	GatewayOrderID string
	ApprovalURL    string
}

// Verification is the gateway's own view of a transaction, read back from its
// lookup endpoint. Approved is true only for the COMPLETED and APPROVED
// terminal statuses; anything else is absence of proof, not an error.
type Verification struct {
	OrderID     string
	AmountCents int64
	Status      string
	Approved    bool
}

// CreateOrder registers a payment intent for the given order and returns the
// URL the buyer must be sent to for approval.
func (c *Client) CreateOrder(ctx context.Context, orderID string, amountCents int64) (RemotePayment, error) {
	accessToken, err := c.authenticate(ctx)
	if err != nil {
		return RemotePayment{}, err
	}

	reqBody := createOrderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []purchaseUnit{{
			ReferenceID: orderID,
			Amount:      wireAmount{CurrencyCode: "USD", Value: FormatAmount(amountCents)},
		}},
		ApplicationContext: appContext{
			ReturnURL: c.cfg.ReturnURL,
			CancelURL: c.cfg.CancelURL,
		},
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return RemotePayment{}, fmt.Errorf("marshal order request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v2/checkout/orders", bytes.NewReader(data))
	if err != nil {
		return RemotePayment{}, fmt.Errorf("create order request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return RemotePayment{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return RemotePayment{}, fmt.Errorf("%w: status %d", ErrOrderCreate, resp.StatusCode)
	}

	var order orderResponse
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return RemotePayment{}, fmt.Errorf("%w: decode order response: %v", ErrProtocol, err)
	}

	// The gateway may reorder its link list; only the relation name is stable.
	approvalURL := ""
	for _, l := range order.Links {
		if l.Rel == "approve" {
			approvalURL = l.Href
			break
		}
	}
	if approvalURL == "" || order.ID == "" {
		return RemotePayment{}, fmt.Errorf("%w: no approve link in response", ErrProtocol)
	}

	c.logger.Info("gateway order created", "gateway_order_id", order.ID, "reference_id", orderID)
	return RemotePayment{GatewayOrderID: order.ID, ApprovalURL: approvalURL}, nil
}

// VerifyOrder re-authenticates and reads the transaction back from the
// gateway's lookup endpoint. Callback query parameters are never trusted as
// proof of payment on their own.
func (c *Client) VerifyOrder(ctx context.Context, gatewayOrderID string) (Verification, error) {
	accessToken, err := c.authenticate(ctx)
	if err != nil {
		return Verification{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/v2/checkout/orders/"+gatewayOrderID, nil)
	if err != nil {
		return Verification{}, fmt.Errorf("create lookup request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Verification{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Verification{}, fmt.Errorf("%w: lookup status %d", ErrUnavailable, resp.StatusCode)
	}

	var order orderResponse
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return Verification{}, fmt.Errorf("%w: decode lookup response: %v", ErrProtocol, err)
	}
	if len(order.PurchaseUnits) == 0 {
		return Verification{}, fmt.Errorf("%w: no purchase units in lookup response", ErrProtocol)
	}

	unit := order.PurchaseUnits[0]
	amountCents, err := ParseAmount(unit.Amount.Value)
	if err != nil {
		return Verification{}, fmt.Errorf("%w: bad amount %q", ErrProtocol, unit.Amount.Value)
	}

	return Verification{
		OrderID:     unit.ReferenceID,
		AmountCents: amountCents,
		Status:      order.Status,
		Approved:    order.Status == "COMPLETED" || order.Status == "APPROVED",
	}, nil
}

func (c *Client) authenticate(ctx context.Context) (string, error) {
	body := strings.NewReader("grant_type=client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/oauth2/token", body)
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.Secret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuth, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: token status %d", ErrAuth, resp.StatusCode)
	}

	var token tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil || token.AccessToken == "" {
		return "", fmt.Errorf("%w: no access token in response", ErrAuth)
	}

	return token.AccessToken, nil
}
