package payment

import (
	"bytes"
	"context"
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/google/uuid"
)

const defaultWechatAPIBaseURL = "https://api.mch.weixin.qq.com"

// Timestamp tolerance for webhook replay protection.
const wechatWebhookTolerance = 5 * time.Minute

// WechatConfig holds the WeChat Pay v3 merchant credentials bound at
// construction. Keys are PEM encoded; the platform key may be either a
// bare public key or the platform certificate.
type WechatConfig struct {
	MchID             string
	AppID             string
	CertSerialNo      string
	PrivateKeyPEM     string
	PlatformSerialNo  string
	PlatformPublicPEM string
	APIv3Key          string
	NotifyURL         string
	APIBaseURL        string
}

// WechatProvider implements Provider on top of WeChat Pay v3 native pay.
type WechatProvider struct {
	cfg         WechatConfig
	httpClient  *http.Client
	privateKey  *rsa.PrivateKey
	platformKey *rsa.PublicKey
}

func NewWechatProvider(cfg WechatConfig) *WechatProvider {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultWechatAPIBaseURL
	}
	p := &WechatProvider{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	if key, err := parseRSAPrivateKey(cfg.PrivateKeyPEM); err == nil {
		p.privateKey = key
	}
	if key, err := parseRSAPublicKey(cfg.PlatformPublicPEM); err == nil {
		p.platformKey = key
	}
	return p
}

func (p *WechatProvider) ID() string {
	return models.PaymentProviderWechat
}

// HandleWebhook verifies the platform signature over
// timestamp\nnonce\nbody\n and decrypts the AEAD-protected resource.
// All four wechatpay-* headers must be present before any verification
// is attempted.
func (p *WechatProvider) HandleWebhook(req WebhookRequest) (*Event, error) {
	signature := req.Header("Wechatpay-Signature")
	timestamp := req.Header("Wechatpay-Timestamp")
	nonce := req.Header("Wechatpay-Nonce")
	serial := req.Header("Wechatpay-Serial")
	if signature == "" || timestamp == "" || nonce == "" || serial == "" {
		return nil, ErrMissingHeaders
	}
	if p.platformKey == nil {
		return nil, errors.New("wechat: platform public key is not configured")
	}
	if p.cfg.PlatformSerialNo != "" && serial != p.cfg.PlatformSerialNo {
		return nil, fmt.Errorf("%w: unknown platform serial %s", ErrSignatureInvalid, serial)
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad timestamp header", ErrSignatureInvalid)
	}
	if d := time.Since(time.Unix(ts, 0)); d > wechatWebhookTolerance || d < -wechatWebhookTolerance {
		return nil, ErrStaleTimestamp
	}

	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return nil, fmt.Errorf("%w: signature is not base64", ErrSignatureInvalid)
	}
	message := timestamp + "\n" + nonce + "\n" + string(req.Body) + "\n"
	digest := sha256.Sum256([]byte(message))
	if err := rsa.VerifyPKCS1v15(p.platformKey, crypto.SHA256, digest[:], sig); err != nil {
		return nil, ErrSignatureInvalid
	}

	var notification struct {
		ID         string `json:"id"`
		CreateTime string `json:"create_time"`
		EventType  string `json:"event_type"`
		Resource   struct {
			Algorithm      string `json:"algorithm"`
			Ciphertext     string `json:"ciphertext"`
			Nonce          string `json:"nonce"`
			AssociatedData string `json:"associated_data"`
			OriginalType   string `json:"original_type"`
		} `json:"resource"`
	}
	if err := json.Unmarshal(req.Body, &notification); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	plaintext, err := decryptAESGCM(
		p.cfg.APIv3Key,
		notification.Resource.Nonce,
		notification.Resource.AssociatedData,
		notification.Resource.Ciphertext,
	)
	if err != nil {
		// Non-retryable: usually a rotated or mistyped APIv3 key, which
		// needs a credential investigation, not a redelivery.
		log.Printf("wechat webhook %s: resource decryption failed: %v", notification.ID, err)
		return nil, ErrDecryptionFailed
	}

	out := &Event{
		Provider:        models.PaymentProviderWechat,
		ProviderEventID: notification.ID,
		Type:            notification.EventType,
		Kind:            EventKindIgnored,
		OccurredAt:      time.Now(),
		Raw:             append([]byte(nil), req.Body...),
	}
	if t, err := time.Parse(time.RFC3339, notification.CreateTime); err == nil {
		out.OccurredAt = t
	}

	switch notification.EventType {
	case "TRANSACTION.SUCCESS":
		var tx wechatTransaction
		if err := json.Unmarshal(plaintext, &tx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		out.ExternalOrderID = tx.OutTradeNo
		out.OrderRef = tx.OutTradeNo
		out.Amount = tx.Amount.Total
		out.Currency = tx.Amount.Currency
		if tx.TradeState == "SUCCESS" {
			out.Kind = EventKindPaid
		}
		if t, err := time.Parse(time.RFC3339, tx.SuccessTime); err == nil {
			out.OccurredAt = t
		}
	case "REFUND.SUCCESS":
		var refund struct {
			OutTradeNo string `json:"out_trade_no"`
			RefundID   string `json:"refund_id"`
			Amount     struct {
				Refund   int64  `json:"refund"`
				Currency string `json:"currency"`
			} `json:"amount"`
		}
		if err := json.Unmarshal(plaintext, &refund); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		out.ExternalOrderID = refund.OutTradeNo
		out.OrderRef = refund.OutTradeNo
		out.Amount = refund.Amount.Refund
		out.Currency = refund.Amount.Currency
		out.Kind = EventKindRefund
	}

	return out, nil
}

type wechatTransaction struct {
	OutTradeNo    string `json:"out_trade_no"`
	TransactionID string `json:"transaction_id"`
	TradeState    string `json:"trade_state"`
	SuccessTime   string `json:"success_time"`
	Amount        struct {
		Total    int64  `json:"total"`
		Currency string `json:"currency"`
	} `json:"amount"`
}

// CreateCheckout opens a native-pay transaction. The out_trade_no sent to
// WeChat is our own order id, so webhook correlation needs no extra
// metadata channel.
func (p *WechatProvider) CreateCheckout(ctx context.Context, params CheckoutParams) (*Checkout, error) {
	body, err := json.Marshal(map[string]any{
		"appid":        p.cfg.AppID,
		"mchid":        p.cfg.MchID,
		"description":  params.Description,
		"out_trade_no": params.OrderID,
		"notify_url":   p.cfg.NotifyURL,
		"amount": map[string]any{
			"total":    params.Amount,
			"currency": strings.ToUpper(params.Currency),
		},
	})
	if err != nil {
		return nil, err
	}

	respBody, _, err := p.doSigned(ctx, http.MethodPost, "/v3/pay/transactions/native", body)
	if err != nil {
		return nil, err
	}

	var resp struct {
		CodeURL string `json:"code_url"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("wechat native pay response: %w", err)
	}
	if resp.CodeURL == "" {
		return nil, errors.New("wechat native pay response missing code_url")
	}
	return &Checkout{ExternalOrderID: params.OrderID, PayURL: resp.CodeURL}, nil
}

func (p *WechatProvider) QueryOrder(ctx context.Context, externalOrderID string) (*OrderStatus, error) {
	path := fmt.Sprintf("/v3/pay/transactions/out-trade-no/%s?mchid=%s", externalOrderID, p.cfg.MchID)
	respBody, _, err := p.doSigned(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var tx wechatTransaction
	if err := json.Unmarshal(respBody, &tx); err != nil {
		return nil, fmt.Errorf("wechat order query response: %w", err)
	}

	status := models.OrderStatusPending
	var paidAt *time.Time
	switch tx.TradeState {
	case "SUCCESS":
		status = models.OrderStatusPaid
		if t, err := time.Parse(time.RFC3339, tx.SuccessTime); err == nil {
			paidAt = &t
		}
	case "CLOSED", "REVOKED":
		status = models.OrderStatusCanceled
	case "PAYERROR":
		status = models.OrderStatusFailed
	case "REFUND":
		status = models.OrderStatusRefunded
	}

	return &OrderStatus{
		ExternalOrderID: tx.OutTradeNo,
		Status:          status,
		Amount:          tx.Amount.Total,
		Currency:        tx.Amount.Currency,
		PaidAt:          paidAt,
	}, nil
}

// CloseOrder closes an unpaid transaction so abandoned checkouts cannot
// complete later. WeChat answers 204 on success.
func (p *WechatProvider) CloseOrder(ctx context.Context, externalOrderID string) error {
	body, err := json.Marshal(map[string]string{"mchid": p.cfg.MchID})
	if err != nil {
		return err
	}
	path := fmt.Sprintf("/v3/pay/transactions/out-trade-no/%s/close", externalOrderID)
	_, status, err := p.doSigned(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	if status != http.StatusNoContent && status != http.StatusOK {
		return fmt.Errorf("wechat close order: unexpected status %d", status)
	}
	return nil
}

// doSigned performs an authenticated request against the v3 API with the
// WECHATPAY2-SHA256-RSA2048 authorization scheme.
func (p *WechatProvider) doSigned(ctx context.Context, method, pathWithQuery string, body []byte) ([]byte, int, error) {
	if p.privateKey == nil {
		return nil, 0, errors.New("wechat: merchant private key is not configured")
	}

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	nonce := strings.ReplaceAll(uuid.NewString(), "-", "")
	message := method + "\n" + pathWithQuery + "\n" + timestamp + "\n" + nonce + "\n" + string(body) + "\n"
	digest := sha256.Sum256([]byte(message))
	sig, err := rsa.SignPKCS1v15(rand.Reader, p.privateKey, crypto.SHA256, digest[:])
	if err != nil {
		return nil, 0, fmt.Errorf("wechat request signing failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(p.cfg.APIBaseURL, "/")+pathWithQuery, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf(
		`WECHATPAY2-SHA256-RSA2048 mchid="%s",nonce_str="%s",signature="%s",timestamp="%s",serial_no="%s"`,
		p.cfg.MchID, nonce, base64.StdEncoding.EncodeToString(sig), timestamp, p.cfg.CertSerialNo,
	))

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode, fmt.Errorf("wechat api %s %s failed: status=%d body=%s", method, pathWithQuery, resp.StatusCode, string(respBody))
	}
	return respBody, resp.StatusCode, nil
}

// decryptAESGCM opens a WeChat Pay v3 encrypted resource with the
// merchant APIv3 key (AES-256-GCM, base64 ciphertext).
func decryptAESGCM(apiv3Key, nonce, associatedData, ciphertextB64 string) ([]byte, error) {
	if len(apiv3Key) != 32 {
		return nil, errors.New("apiv3 key must be 32 bytes")
	}
	ciphertext, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher([]byte(apiv3Key))
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return aead.Open(nil, []byte(nonce), ciphertext, []byte(associatedData))
}

func parseRSAPrivateKey(pemData string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		if rsaKey, ok := key.(*rsa.PrivateKey); ok {
			return rsaKey, nil
		}
		return nil, errors.New("private key is not RSA")
	}
	return x509.ParsePKCS1PrivateKey(block.Bytes)
}

func parseRSAPublicKey(pemData string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	if block.Type == "CERTIFICATE" {
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, err
		}
		if key, ok := cert.PublicKey.(*rsa.PublicKey); ok {
			return key, nil
		}
		return nil, errors.New("certificate key is not RSA")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not RSA")
	}
	return rsaKey, nil
}
