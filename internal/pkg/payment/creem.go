package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ManuelReschke/PayFox/app/models"
)

const defaultCreemAPIBaseURL = "https://api.creem.io"

// CreemConfig holds the Creem credentials bound at construction.
type CreemConfig struct {
	APIKey        string
	WebhookSecret string
	ProductID     string
	SuccessURL    string
	APIBaseURL    string
}

// CreemProvider implements Provider plus ReturnURLVerifier on top of the
// Creem checkout API.
type CreemProvider struct {
	cfg        CreemConfig
	httpClient *http.Client
}

func NewCreemProvider(cfg CreemConfig) *CreemProvider {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultCreemAPIBaseURL
	}
	return &CreemProvider{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (p *CreemProvider) ID() string {
	return models.PaymentProviderCreem
}

// HandleWebhook verifies the HMAC-SHA256 signature computed over the
// untouched raw body.
func (p *CreemProvider) HandleWebhook(req WebhookRequest) (*Event, error) {
	signature := req.Header("Creem-Signature")
	if signature == "" {
		return nil, ErrMissingHeaders
	}
	if p.cfg.WebhookSecret == "" {
		return nil, errors.New("creem: webhook secret is not configured")
	}

	mac := hmac.New(sha256.New, []byte(p.cfg.WebhookSecret))
	mac.Write(req.Body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		return nil, ErrSignatureInvalid
	}

	var notification struct {
		ID        string `json:"id"`
		EventType string `json:"eventType"`
		CreatedAt int64  `json:"created_at"`
		Object    struct {
			ID        string `json:"id"`
			RequestID string `json:"request_id"`
			Order     struct {
				ID       string `json:"id"`
				Amount   int64  `json:"amount"`
				Currency string `json:"currency"`
				Status   string `json:"status"`
			} `json:"order"`
			Metadata map[string]string `json:"metadata"`
		} `json:"object"`
	}
	if err := json.Unmarshal(req.Body, &notification); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	out := &Event{
		Provider:        models.PaymentProviderCreem,
		ProviderEventID: notification.ID,
		Type:            notification.EventType,
		Kind:            EventKindIgnored,
		ExternalOrderID: notification.Object.Order.ID,
		OrderRef:        creemOrderRef(notification.Object.RequestID, notification.Object.Metadata),
		Amount:          notification.Object.Order.Amount,
		Currency:        notification.Object.Order.Currency,
		OccurredAt:      time.Now(),
		Raw:             append([]byte(nil), req.Body...),
	}
	if notification.CreatedAt > 0 {
		out.OccurredAt = time.UnixMilli(notification.CreatedAt)
	}

	switch notification.EventType {
	case "checkout.completed":
		if notification.Object.Order.Status == "paid" {
			out.Kind = EventKindPaid
		}
	case "refund.created":
		out.Kind = EventKindRefund
	case "checkout.expired":
		out.Kind = EventKindCanceled
	}

	return out, nil
}

// VerifyReturnURL validates the signed query string Creem appends to the
// browser redirect after checkout. Redirect URLs are attacker-observable
// and replayable, so this only ever confirms UI success; the webhook
// path stays the sole authority for state changes.
func (p *CreemProvider) VerifyReturnURL(fullURL string) (*ReturnInfo, error) {
	u, err := url.Parse(fullURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	q := u.Query()
	signature := strings.TrimSpace(q.Get("signature"))
	if signature == "" {
		return nil, ErrSignatureInvalid
	}

	// Signature covers every non-signature param in redirect order, with
	// the API key appended as salt.
	var parts []string
	for _, key := range []string{"checkout_id", "order_id", "customer_id", "subscription_id", "product_id", "request_id"} {
		if v := q.Get(key); v != "" {
			parts = append(parts, key+"="+v)
		}
	}
	parts = append(parts, "salt="+p.cfg.APIKey)
	digest := sha256.Sum256([]byte(strings.Join(parts, "|")))
	expected := hex.EncodeToString(digest[:])
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		return nil, ErrSignatureInvalid
	}

	return &ReturnInfo{
		CheckoutID:      q.Get("checkout_id"),
		ExternalOrderID: q.Get("order_id"),
		OrderRef:        q.Get("request_id"),
	}, nil
}

func (p *CreemProvider) CreateCheckout(ctx context.Context, params CheckoutParams) (*Checkout, error) {
	body, err := json.Marshal(map[string]any{
		"product_id":  p.cfg.ProductID,
		"request_id":  params.OrderID,
		"success_url": p.cfg.SuccessURL,
		"metadata": map[string]string{
			"order_id": params.OrderID,
			"user_id":  fmt.Sprintf("%d", params.UserID),
		},
	})
	if err != nil {
		return nil, err
	}

	respBody, err := p.doRequest(ctx, http.MethodPost, "/v1/checkouts", body)
	if err != nil {
		return nil, err
	}

	var resp struct {
		ID          string `json:"id"`
		CheckoutURL string `json:"checkout_url"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("creem checkout response: %w", err)
	}
	if resp.CheckoutURL == "" {
		return nil, errors.New("creem checkout response missing checkout_url")
	}
	return &Checkout{ExternalOrderID: resp.ID, PayURL: resp.CheckoutURL}, nil
}

func (p *CreemProvider) QueryOrder(ctx context.Context, externalOrderID string) (*OrderStatus, error) {
	respBody, err := p.doRequest(ctx, http.MethodGet, "/v1/checkouts?checkout_id="+url.QueryEscape(externalOrderID), nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Order  struct {
			Amount   int64  `json:"amount"`
			Currency string `json:"currency"`
		} `json:"order"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("creem checkout query response: %w", err)
	}

	status := models.OrderStatusPending
	switch resp.Status {
	case "completed", "paid":
		status = models.OrderStatusPaid
	case "expired":
		status = models.OrderStatusCanceled
	}

	return &OrderStatus{
		ExternalOrderID: resp.ID,
		Status:          status,
		Amount:          resp.Order.Amount,
		Currency:        resp.Order.Currency,
	}, nil
}

// CloseOrder is not supported by the Creem API; checkouts expire server
// side. Callers must get a hard failure, never a silent success.
func (p *CreemProvider) CloseOrder(ctx context.Context, externalOrderID string) error {
	return fmt.Errorf("creem close order %s: %w", externalOrderID, ErrNotImplemented)
}

func (p *CreemProvider) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(p.cfg.APIBaseURL, "/")+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("creem api %s %s failed: status=%d body=%s", method, path, resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

func creemOrderRef(requestID string, metadata map[string]string) string {
	if requestID != "" {
		return requestID
	}
	return metadata["order_id"]
}
