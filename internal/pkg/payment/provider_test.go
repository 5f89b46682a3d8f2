package payment

import (
	"errors"
	"testing"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "stripe", want: "stripe"},
		{in: "wechat", want: "wechat"},
		{in: "creem", want: "creem"},
		{in: " Stripe ", want: "stripe"},
		{in: "CREEM", want: "creem"},
	}

	for _, tt := range tests {
		p, err := New(tt.in, Config{})
		if err != nil {
			t.Fatalf("New(%q) returned error: %v", tt.in, err)
		}
		if p.ID() != tt.want {
			t.Fatalf("New(%q).ID() = %q, want %q", tt.in, p.ID(), tt.want)
		}
	}
}

func TestNewProviderUnknown(t *testing.T) {
	for _, id := range []string{"paypal", "", "strip"} {
		if _, err := New(id, Config{}); !errors.Is(err, ErrUnsupportedProvider) {
			t.Fatalf("New(%q) error = %v, want ErrUnsupportedProvider", id, err)
		}
	}
}

func TestEventDedupeKey(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
		want string
	}{
		{
			name: "paid with order id",
			ev:   Event{Kind: EventKindPaid, ExternalOrderID: "cs_123", ProviderEventID: "evt_1"},
			want: "paid:cs_123",
		},
		{
			name: "refund for same order dedupes independently",
			ev:   Event{Kind: EventKindRefund, ExternalOrderID: "cs_123", ProviderEventID: "evt_2"},
			want: "refund:cs_123",
		},
		{
			name: "no order id falls back to event id",
			ev:   Event{Kind: EventKindRefund, ProviderEventID: "evt_3"},
			want: "event:evt_3",
		},
	}

	for _, tt := range tests {
		if got := tt.ev.DedupeKey(); got != tt.want {
			t.Fatalf("%s: DedupeKey() = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestEventLedgerAffecting(t *testing.T) {
	tests := []struct {
		kind string
		want bool
	}{
		{kind: EventKindPaid, want: true},
		{kind: EventKindRefund, want: true},
		{kind: EventKindCanceled, want: false},
		{kind: EventKindIgnored, want: false},
	}

	for _, tt := range tests {
		ev := Event{Kind: tt.kind}
		if got := ev.LedgerAffecting(); got != tt.want {
			t.Fatalf("LedgerAffecting() for kind %q = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestWebhookRequestHeaderCaseInsensitive(t *testing.T) {
	req := WebhookRequest{Headers: map[string]string{
		"stripe-signature": " t=1,v1=abc ",
	}}

	if got := req.Header("Stripe-Signature"); got != "t=1,v1=abc" {
		t.Fatalf("Header() = %q, want trimmed value via case-insensitive lookup", got)
	}
	if got := req.Header("Missing-Header"); got != "" {
		t.Fatalf("Header() for absent name = %q, want empty", got)
	}
}

func TestIsNonRetryable(t *testing.T) {
	for _, err := range []error{ErrSignatureInvalid, ErrStaleTimestamp, ErrMissingHeaders, ErrDecryptionFailed, ErrMalformedPayload} {
		if !IsNonRetryable(err) {
			t.Fatalf("IsNonRetryable(%v) = false, want true", err)
		}
	}
	if IsNonRetryable(errors.New("connection refused")) {
		t.Fatalf("transient errors must stay retryable")
	}
	if IsNonRetryable(ErrNotImplemented) {
		t.Fatalf("ErrNotImplemented is not a verification failure")
	}
}
