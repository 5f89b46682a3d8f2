package payment

import (
	"context"
	"strings"
	"time"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/internal/pkg/env"
)

// CheckoutParams describes a checkout to be created at the provider.
// OrderID is our own PaymentOrder id and travels to the provider as the
// client/merchant reference so webhooks can be correlated back.
type CheckoutParams struct {
	OrderID     string
	UserID      uint
	Amount      int64
	Currency    string
	Credits     int64
	PlanID      string
	Description string
}

// Checkout is the provider-side result of checkout creation.
type Checkout struct {
	ExternalOrderID string
	// PayURL is the hosted checkout URL (Stripe, Creem) or the code_url
	// to render as a QR code (WeChat native pay).
	PayURL string
}

// OrderStatus is the provider's view of an order, used by manual
// lifecycle management of abandoned checkouts.
type OrderStatus struct {
	ExternalOrderID string
	Status          string
	Amount          int64
	Currency        string
	PaidAt          *time.Time
}

// WebhookRequest carries the raw, unmodified request bytes plus headers.
// Signature computation is byte-exact; the body must never be
// re-serialized before verification.
type WebhookRequest struct {
	Body    []byte
	Headers map[string]string
}

// Header returns a header value by case-insensitive name.
func (r WebhookRequest) Header(name string) string {
	if v, ok := r.Headers[name]; ok {
		return strings.TrimSpace(v)
	}
	for k, v := range r.Headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// Event kinds after normalization. Only paid and refund events are
// ledger-affecting; everything else is acknowledged without mutation.
const (
	EventKindPaid     = "paid"
	EventKindRefund   = "refund"
	EventKindCanceled = "canceled"
	EventKindIgnored  = "ignored"
)

// Event is a verified, decoded webhook event. Instances only exist after
// the provider-specific signature check has passed.
type Event struct {
	Provider        string
	ProviderEventID string
	Type            string
	Kind            string
	ExternalOrderID string
	// OrderRef is our PaymentOrder id when the provider echoed it back.
	OrderRef   string
	UserID     uint
	Amount     int64
	Currency   string
	OccurredAt time.Time
	Raw        []byte
}

// LedgerAffecting reports whether processing this event may mutate the
// ledger or subscription state.
func (e *Event) LedgerAffecting() bool {
	return e.Kind == EventKindPaid || e.Kind == EventKindRefund
}

// DedupeKey derives the idempotency key for this event. It is scoped by
// kind so a paid event and a refund event for the same order dedupe
// independently, and falls back to the provider event id when no order
// reference is available.
func (e *Event) DedupeKey() string {
	if e.ExternalOrderID != "" {
		return e.Kind + ":" + e.ExternalOrderID
	}
	return "event:" + e.ProviderEventID
}

// Provider is the closed capability set shared by all payment backends.
// Construction is pure configuration binding; implementations hold no
// shared mutable state.
type Provider interface {
	ID() string
	CreateCheckout(ctx context.Context, params CheckoutParams) (*Checkout, error)
	QueryOrder(ctx context.Context, externalOrderID string) (*OrderStatus, error)
	CloseOrder(ctx context.Context, externalOrderID string) error
	// HandleWebhook verifies raw payload bytes and returns a trusted
	// event, or an error from the verification taxonomy. Adapters fail
	// closed: absent or malformed signatures are always rejected.
	HandleWebhook(req WebhookRequest) (*Event, error)
}

// ReturnURLVerifier is implemented by providers that sign the browser
// redirect back from checkout. Verification only confirms UI success;
// it never mutates ledger or subscription state.
type ReturnURLVerifier interface {
	VerifyReturnURL(fullURL string) (*ReturnInfo, error)
}

// ReturnInfo is the decoded, verified content of a signed return URL.
type ReturnInfo struct {
	CheckoutID      string
	ExternalOrderID string
	OrderRef        string
}

// Config holds the immutable per-provider credentials bound once at
// construction time.
type Config struct {
	Stripe StripeConfig
	Wechat WechatConfig
	Creem  CreemConfig
}

// ConfigFromEnv loads provider credentials from the environment.
func ConfigFromEnv() Config {
	return Config{
		Stripe: StripeConfig{
			SecretKey:     env.GetEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: env.GetEnv("STRIPE_WEBHOOK_SECRET", ""),
			SuccessURL:    env.GetEnv("STRIPE_SUCCESS_URL", ""),
			CancelURL:     env.GetEnv("STRIPE_CANCEL_URL", ""),
		},
		Wechat: WechatConfig{
			MchID:             env.GetEnv("WECHAT_MCH_ID", ""),
			AppID:             env.GetEnv("WECHAT_APP_ID", ""),
			CertSerialNo:      env.GetEnv("WECHAT_CERT_SERIAL", ""),
			PrivateKeyPEM:     env.GetEnv("WECHAT_PRIVATE_KEY", ""),
			PlatformSerialNo:  env.GetEnv("WECHAT_PLATFORM_SERIAL", ""),
			PlatformPublicPEM: env.GetEnv("WECHAT_PLATFORM_PUBLIC_KEY", ""),
			APIv3Key:          env.GetEnv("WECHAT_APIV3_KEY", ""),
			NotifyURL:         env.GetEnv("WECHAT_NOTIFY_URL", ""),
			APIBaseURL:        env.GetEnv("WECHAT_API_BASE_URL", defaultWechatAPIBaseURL),
		},
		Creem: CreemConfig{
			APIKey:        env.GetEnv("CREEM_API_KEY", ""),
			WebhookSecret: env.GetEnv("CREEM_WEBHOOK_SECRET", ""),
			SuccessURL:    env.GetEnv("CREEM_SUCCESS_URL", ""),
			APIBaseURL:    env.GetEnv("CREEM_API_BASE_URL", defaultCreemAPIBaseURL),
		},
	}
}

// New returns the provider implementation for an id. Unknown ids fail at
// construction, never as a runtime dispatch failure.
func New(providerID string, cfg Config) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(providerID)) {
	case models.PaymentProviderStripe:
		return NewStripeProvider(cfg.Stripe), nil
	case models.PaymentProviderWechat:
		return NewWechatProvider(cfg.Wechat), nil
	case models.PaymentProviderCreem:
		return NewCreemProvider(cfg.Creem), nil
	default:
		return nil, ErrUnsupportedProvider
	}
}
