package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ManuelReschke/PayFox/app/models"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

// Timestamp tolerance for webhook replay protection.
const stripeWebhookTolerance = 5 * time.Minute

// StripeConfig holds the Stripe credentials bound at construction.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
}

// StripeProvider implements Provider on top of Stripe Checkout.
type StripeProvider struct {
	cfg StripeConfig
	sc  *client.API
}

func NewStripeProvider(cfg StripeConfig) *StripeProvider {
	sc := &client.API{}
	sc.Init(cfg.SecretKey, nil)
	return &StripeProvider{cfg: cfg, sc: sc}
}

func (p *StripeProvider) ID() string {
	return models.PaymentProviderStripe
}

func (p *StripeProvider) CreateCheckout(ctx context.Context, params CheckoutParams) (*Checkout, error) {
	sessParams := &stripe.CheckoutSessionParams{
		Params:            stripe.Params{Context: ctx},
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(p.cfg.SuccessURL),
		CancelURL:         stripe.String(p.cfg.CancelURL),
		ClientReferenceID: stripe.String(params.OrderID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(params.Currency),
					UnitAmount: stripe.Int64(params.Amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(params.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{"order_id": params.OrderID},
		},
	}
	sessParams.AddMetadata("order_id", params.OrderID)
	sessParams.AddMetadata("user_id", fmt.Sprintf("%d", params.UserID))

	sess, err := p.sc.CheckoutSessions.New(sessParams)
	if err != nil {
		return nil, fmt.Errorf("stripe checkout session create failed: %w", err)
	}
	return &Checkout{ExternalOrderID: sess.ID, PayURL: sess.URL}, nil
}

func (p *StripeProvider) QueryOrder(ctx context.Context, externalOrderID string) (*OrderStatus, error) {
	sess, err := p.sc.CheckoutSessions.Get(externalOrderID, &stripe.CheckoutSessionParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, fmt.Errorf("stripe checkout session retrieve failed: %w", err)
	}

	status := models.OrderStatusPending
	var paidAt *time.Time
	switch sess.PaymentStatus {
	case stripe.CheckoutSessionPaymentStatusPaid:
		status = models.OrderStatusPaid
		t := time.Unix(sess.Created, 0)
		paidAt = &t
	case stripe.CheckoutSessionPaymentStatusUnpaid:
		if sess.Status == stripe.CheckoutSessionStatusExpired {
			status = models.OrderStatusCanceled
		}
	}

	return &OrderStatus{
		ExternalOrderID: sess.ID,
		Status:          status,
		Amount:          sess.AmountTotal,
		Currency:        string(sess.Currency),
		PaidAt:          paidAt,
	}, nil
}

// CloseOrder is deliberately unimplemented for Stripe: checkout sessions
// expire on their own and forcing expiry here has no uniform semantics.
// Callers must get a hard failure, never a silent success.
func (p *StripeProvider) CloseOrder(ctx context.Context, externalOrderID string) error {
	return fmt.Errorf("stripe close order %s: %w", externalOrderID, ErrNotImplemented)
}

func (p *StripeProvider) HandleWebhook(req WebhookRequest) (*Event, error) {
	sigHeader := req.Header("Stripe-Signature")
	if sigHeader == "" {
		return nil, ErrMissingHeaders
	}

	event, err := webhook.ConstructEventWithOptions(req.Body, sigHeader, p.cfg.WebhookSecret, webhook.ConstructEventOptions{
		Tolerance:                stripeWebhookTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if errors.Is(err, webhook.ErrTooOld) {
			return nil, ErrStaleTimestamp
		}
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	out := &Event{
		Provider:        models.PaymentProviderStripe,
		ProviderEventID: event.ID,
		Type:            string(event.Type),
		Kind:            EventKindIgnored,
		OccurredAt:      time.Unix(event.Created, 0),
		Raw:             append([]byte(nil), req.Body...),
	}

	switch string(event.Type) {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		out.ExternalOrderID = sess.ID
		out.OrderRef = stripeOrderRef(sess.ClientReferenceID, sess.Metadata)
		out.Amount = sess.AmountTotal
		out.Currency = string(sess.Currency)
		// Completed sessions with deferred payment methods are not paid
		// yet; only payment_status=paid may touch the ledger.
		if sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
			out.Kind = EventKindPaid
		}
	case "checkout.session.expired":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		out.ExternalOrderID = sess.ID
		out.OrderRef = stripeOrderRef(sess.ClientReferenceID, sess.Metadata)
		out.Kind = EventKindCanceled
	case "charge.refunded":
		var ch stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		// The order reference travels on payment intent metadata set at
		// checkout creation. Refunds without it are acknowledged only.
		if ref := ch.Metadata["order_id"]; ref != "" {
			out.OrderRef = ref
			out.Kind = EventKindRefund
			out.Amount = ch.AmountRefunded
			out.Currency = string(ch.Currency)
		}
	}

	return out, nil
}

func stripeOrderRef(clientReferenceID string, metadata map[string]string) string {
	if clientReferenceID != "" {
		return clientReferenceID
	}
	return metadata["order_id"]
}
