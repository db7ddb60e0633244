package powertranz

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	paymentdomain "github.com/saasfoundry/tenantops/internal/payment/domain"
)

const (
	signatureHeader = "X-Powertranz-Signature"
	chargeTimeout   = 10 * time.Second
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "powertranz"
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.Adapter, error) {
	secret, ok := readString(cfg.Config, "webhook_secret")
	if !ok || strings.TrimSpace(secret) == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}

	baseURL, _ := readString(cfg.Config, "base_url")
	gatewayID, _ := readString(cfg.Config, "gateway_id")
	gatewayPassword, _ := readString(cfg.Config, "gateway_password")

	return &Adapter{
		webhookSecret:   strings.TrimSpace(secret),
		baseURL:         strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		gatewayID:       strings.TrimSpace(gatewayID),
		gatewayPassword: strings.TrimSpace(gatewayPassword),
		client:          &http.Client{Timeout: chargeTimeout},
	}, nil
}

type Adapter struct {
	webhookSecret   string
	baseURL         string
	gatewayID       string
	gatewayPassword string
	client          *http.Client
}

// Verify checks the HMAC-SHA256 hex signature computed over the exact
// raw payload bytes. Any altered byte fails the comparison.
func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	signature := strings.TrimSpace(headers.Get(signatureHeader))
	if signature == "" {
		return paymentdomain.ErrAuthenticationFailed
	}

	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return paymentdomain.ErrAuthenticationFailed
	}
	return nil
}

type webhookPayload struct {
	RecurringIdentifier   string  `json:"recurringIdentifier"`
	TransactionIdentifier string  `json:"transactionIdentifier"`
	Status                string  `json:"status"`
	Amount                float64 `json:"amount"`
	CurrencyCode          string  `json:"currencyCode"`
	PaymentDate           string  `json:"paymentDate"`
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.WebhookEvent, error) {
	var body webhookPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}

	recurringID := strings.TrimSpace(body.RecurringIdentifier)
	transactionID := strings.TrimSpace(body.TransactionIdentifier)
	if recurringID == "" || transactionID == "" {
		return nil, paymentdomain.ErrInvalidPayload
	}

	status := strings.ToLower(strings.TrimSpace(body.Status))
	switch status {
	case "success", "approved", "paid":
		status = paymentdomain.EventStatusSuccess
	case "failed", "declined", "error":
		status = paymentdomain.EventStatusFailed
	default:
		return nil, paymentdomain.ErrInvalidPayload
	}

	currency := strings.ToUpper(strings.TrimSpace(body.CurrencyCode))
	if currency == "" {
		return nil, paymentdomain.ErrInvalidPayload
	}

	paymentDate, err := parsePaymentDate(body.PaymentDate)
	if err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}

	return &paymentdomain.WebhookEvent{
		Provider:              a.providerName(),
		RecurringIdentifier:   recurringID,
		TransactionIdentifier: transactionID,
		Status:                status,
		Amount:                toMinorUnits(body.Amount),
		Currency:              currency,
		PaymentDate:           paymentDate,
		RawPayload:            payload,
	}, nil
}

type chargeRequest struct {
	TransactionIdentifier string  `json:"TransactionIdentifier"`
	TotalAmount           float64 `json:"TotalAmount"`
	CurrencyCode          string  `json:"CurrencyCode"`
	Tokenize              bool    `json:"Tokenize"`
	CardToken             string  `json:"CardToken"`
}

type chargeResponse struct {
	Approved              bool   `json:"Approved"`
	TransactionIdentifier string `json:"TransactionIdentifier"`
	IsoResponseCode       string `json:"IsoResponseCode"`
	ResponseMessage       string `json:"ResponseMessage"`
}

// Charge posts a tokenized sale. The gateway quotes amounts in major
// units, so minor units are converted on the way out.
func (a *Adapter) Charge(ctx context.Context, req paymentdomain.ChargeRequest) (*paymentdomain.ChargeResult, error) {
	if a.baseURL == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}

	body, err := json.Marshal(chargeRequest{
		TransactionIdentifier: req.Reference,
		TotalAmount:           toMajorUnits(req.Amount),
		CurrencyCode:          strings.ToUpper(req.Currency),
		Tokenize:              false,
		CardToken:             req.TokenRef,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", paymentdomain.ErrExternalCallFailed, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/Sale", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", paymentdomain.ErrExternalCallFailed, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("PowerTranz-PowerTranzId", a.gatewayID)
	httpReq.Header.Set("PowerTranz-PowerTranzPassword", a.gatewayPassword)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", paymentdomain.ErrExternalCallFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: http %d", paymentdomain.ErrExternalCallFailed, resp.StatusCode)
	}

	var decoded chargeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", paymentdomain.ErrExternalCallFailed, err)
	}

	return &paymentdomain.ChargeResult{
		Approved:     decoded.Approved,
		GatewayTxID:  decoded.TransactionIdentifier,
		ResponseCode: decoded.IsoResponseCode,
		Message:      decoded.ResponseMessage,
	}, nil
}

func (a *Adapter) providerName() string { return "powertranz" }

func parsePaymentDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, paymentdomain.ErrInvalidPayload
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, paymentdomain.ErrInvalidPayload
}

func toMinorUnits(major float64) int64 {
	return int64(major*100 + 0.5)
}

func toMajorUnits(minor int64) float64 {
	return float64(minor) / 100
}

func readString(config map[string]any, key string) (string, bool) {
	if config == nil {
		return "", false
	}
	value, ok := config[key]
	if !ok {
		return "", false
	}
	text, ok := value.(string)
	return text, ok
}
