package payment

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"
)

const (
	wechatTestAPIv3Key = "0123456789abcdef0123456789abcdef"
	wechatTestSerial   = "PLATFORM_SERIAL_1"
	wechatTestNonce    = "123456789012"
)

func newWechatTestKeypair(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("key generation failed: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("public key marshal failed: %v", err)
	}
	pubPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
	return key, pubPEM
}

func wechatSign(t *testing.T, key *rsa.PrivateKey, timestamp, nonce string, body []byte) string {
	t.Helper()
	digest := sha256.Sum256([]byte(timestamp + "\n" + nonce + "\n" + string(body) + "\n"))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		t.Fatalf("signing failed: %v", err)
	}
	return base64.StdEncoding.EncodeToString(sig)
}

func wechatEncryptResource(t *testing.T, apiv3Key, nonce, associatedData string, plaintext []byte) string {
	t.Helper()
	block, err := aes.NewCipher([]byte(apiv3Key))
	if err != nil {
		t.Fatalf("cipher setup failed: %v", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		t.Fatalf("gcm setup failed: %v", err)
	}
	ct := aead.Seal(nil, []byte(nonce), plaintext, []byte(associatedData))
	return base64.StdEncoding.EncodeToString(ct)
}

func wechatNotificationBody(t *testing.T, eventType string, plaintext []byte) []byte {
	t.Helper()
	ciphertext := wechatEncryptResource(t, wechatTestAPIv3Key, wechatTestNonce, "transaction", plaintext)
	return []byte(fmt.Sprintf(
		`{"id":"wx-evt-1","create_time":"%s","event_type":"%s","resource":{"algorithm":"AEAD_AES_256_GCM","ciphertext":"%s","nonce":"%s","associated_data":"transaction","original_type":"transaction"}}`,
		time.Now().Format(time.RFC3339), eventType, ciphertext, wechatTestNonce))
}

func wechatHeaders(t *testing.T, key *rsa.PrivateKey, body []byte, at time.Time) map[string]string {
	t.Helper()
	ts := strconv.FormatInt(at.Unix(), 10)
	return map[string]string{
		"Wechatpay-Signature": wechatSign(t, key, ts, "nonce-1", body),
		"Wechatpay-Timestamp": ts,
		"Wechatpay-Nonce":     "nonce-1",
		"Wechatpay-Serial":    wechatTestSerial,
	}
}

func newTestWechatProvider(pubPEM string) *WechatProvider {
	return NewWechatProvider(WechatConfig{
		MchID:             "1900000001",
		AppID:             "wx8888888888888888",
		PlatformSerialNo:  wechatTestSerial,
		PlatformPublicPEM: pubPEM,
		APIv3Key:          wechatTestAPIv3Key,
	})
}

func TestWechatHandleWebhookPaid(t *testing.T) {
	key, pubPEM := newWechatTestKeypair(t)
	p := newTestWechatProvider(pubPEM)

	plaintext := []byte(`{"out_trade_no":"order-1","transaction_id":"wx-tx-1","trade_state":"SUCCESS","success_time":"2026-08-01T10:00:00+08:00","amount":{"total":990,"currency":"CNY"}}`)
	body := wechatNotificationBody(t, "TRANSACTION.SUCCESS", plaintext)

	ev, err := p.HandleWebhook(WebhookRequest{Body: body, Headers: wechatHeaders(t, key, body, time.Now())})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Kind != EventKindPaid {
		t.Fatalf("kind = %q, want paid", ev.Kind)
	}
	if ev.ExternalOrderID != "order-1" || ev.OrderRef != "order-1" {
		t.Fatalf("unexpected correlation: external=%q ref=%q", ev.ExternalOrderID, ev.OrderRef)
	}
	if ev.Amount != 990 || ev.Currency != "CNY" {
		t.Fatalf("unexpected amount: %d %s", ev.Amount, ev.Currency)
	}
}

func TestWechatHandleWebhookNotYetSuccessfulIgnored(t *testing.T) {
	key, pubPEM := newWechatTestKeypair(t)
	p := newTestWechatProvider(pubPEM)

	plaintext := []byte(`{"out_trade_no":"order-1","trade_state":"USERPAYING","amount":{"total":990,"currency":"CNY"}}`)
	body := wechatNotificationBody(t, "TRANSACTION.SUCCESS", plaintext)

	ev, err := p.HandleWebhook(WebhookRequest{Body: body, Headers: wechatHeaders(t, key, body, time.Now())})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Kind != EventKindIgnored {
		t.Fatalf("kind = %q, want ignored", ev.Kind)
	}
}

func TestWechatHandleWebhookRefund(t *testing.T) {
	key, pubPEM := newWechatTestKeypair(t)
	p := newTestWechatProvider(pubPEM)

	plaintext := []byte(`{"out_trade_no":"order-1","refund_id":"wx-rf-1","amount":{"refund":990,"currency":"CNY"}}`)
	body := wechatNotificationBody(t, "REFUND.SUCCESS", plaintext)

	ev, err := p.HandleWebhook(WebhookRequest{Body: body, Headers: wechatHeaders(t, key, body, time.Now())})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Kind != EventKindRefund {
		t.Fatalf("kind = %q, want refund", ev.Kind)
	}
	if ev.OrderRef != "order-1" || ev.Amount != 990 {
		t.Fatalf("unexpected refund: ref=%q amount=%d", ev.OrderRef, ev.Amount)
	}
}

func TestWechatHandleWebhookMissingHeaders(t *testing.T) {
	key, pubPEM := newWechatTestKeypair(t)
	p := newTestWechatProvider(pubPEM)

	plaintext := []byte(`{"out_trade_no":"order-1","trade_state":"SUCCESS","amount":{"total":990,"currency":"CNY"}}`)
	body := wechatNotificationBody(t, "TRANSACTION.SUCCESS", plaintext)

	for _, drop := range []string{"Wechatpay-Signature", "Wechatpay-Timestamp", "Wechatpay-Nonce", "Wechatpay-Serial"} {
		headers := wechatHeaders(t, key, body, time.Now())
		delete(headers, drop)
		if _, err := p.HandleWebhook(WebhookRequest{Body: body, Headers: headers}); !errors.Is(err, ErrMissingHeaders) {
			t.Fatalf("dropping %s: error = %v, want ErrMissingHeaders", drop, err)
		}
	}
}

func TestWechatHandleWebhookTamperedBody(t *testing.T) {
	key, pubPEM := newWechatTestKeypair(t)
	p := newTestWechatProvider(pubPEM)

	plaintext := []byte(`{"out_trade_no":"order-1","trade_state":"SUCCESS","amount":{"total":990,"currency":"CNY"}}`)
	body := wechatNotificationBody(t, "TRANSACTION.SUCCESS", plaintext)
	headers := wechatHeaders(t, key, body, time.Now())

	tampered := append([]byte(nil), body...)
	tampered[len(tampered)-2] = 'X'
	if _, err := p.HandleWebhook(WebhookRequest{Body: tampered, Headers: headers}); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("error = %v, want ErrSignatureInvalid", err)
	}
}

func TestWechatHandleWebhookStaleTimestamp(t *testing.T) {
	key, pubPEM := newWechatTestKeypair(t)
	p := newTestWechatProvider(pubPEM)

	plaintext := []byte(`{"out_trade_no":"order-1","trade_state":"SUCCESS","amount":{"total":990,"currency":"CNY"}}`)
	body := wechatNotificationBody(t, "TRANSACTION.SUCCESS", plaintext)
	headers := wechatHeaders(t, key, body, time.Now().Add(-10*time.Minute))

	if _, err := p.HandleWebhook(WebhookRequest{Body: body, Headers: headers}); !errors.Is(err, ErrStaleTimestamp) {
		t.Fatalf("error = %v, want ErrStaleTimestamp", err)
	}
}

func TestWechatHandleWebhookUnknownSerial(t *testing.T) {
	key, pubPEM := newWechatTestKeypair(t)
	p := newTestWechatProvider(pubPEM)

	plaintext := []byte(`{"out_trade_no":"order-1","trade_state":"SUCCESS","amount":{"total":990,"currency":"CNY"}}`)
	body := wechatNotificationBody(t, "TRANSACTION.SUCCESS", plaintext)
	headers := wechatHeaders(t, key, body, time.Now())
	headers["Wechatpay-Serial"] = "SOMETHING_ELSE"

	if _, err := p.HandleWebhook(WebhookRequest{Body: body, Headers: headers}); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("error = %v, want ErrSignatureInvalid", err)
	}
}

func TestWechatHandleWebhookWrongAPIv3Key(t *testing.T) {
	key, pubPEM := newWechatTestKeypair(t)
	p := NewWechatProvider(WechatConfig{
		MchID:             "1900000001",
		PlatformSerialNo:  wechatTestSerial,
		PlatformPublicPEM: pubPEM,
		APIv3Key:          "ffffffffffffffffffffffffffffffff",
	})

	plaintext := []byte(`{"out_trade_no":"order-1","trade_state":"SUCCESS","amount":{"total":990,"currency":"CNY"}}`)
	body := wechatNotificationBody(t, "TRANSACTION.SUCCESS", plaintext)

	if _, err := p.HandleWebhook(WebhookRequest{Body: body, Headers: wechatHeaders(t, key, body, time.Now())}); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("error = %v, want ErrDecryptionFailed", err)
	}
}

func TestParseRSAKeys(t *testing.T) {
	key, pubPEM := newWechatTestKeypair(t)

	if _, err := parseRSAPublicKey(pubPEM); err != nil {
		t.Fatalf("PKIX public key should parse: %v", err)
	}

	pkcs1 := string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}))
	if _, err := parseRSAPrivateKey(pkcs1); err != nil {
		t.Fatalf("PKCS1 private key should parse: %v", err)
	}

	pkcs8, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("pkcs8 marshal failed: %v", err)
	}
	if _, err := parseRSAPrivateKey(string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: pkcs8}))); err != nil {
		t.Fatalf("PKCS8 private key should parse: %v", err)
	}

	if _, err := parseRSAPrivateKey("not a key"); err == nil {
		t.Fatalf("garbage private key must not parse")
	}
	if _, err := parseRSAPublicKey(""); err == nil {
		t.Fatalf("empty public key must not parse")
	}
}
