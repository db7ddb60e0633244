package powertranz

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	paymentdomain "github.com/saasfoundry/tenantops/internal/payment/domain"
)

func signPayload(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func samplePayload(t *testing.T) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"recurringIdentifier":   "PT-REC-001",
		"transactionIdentifier": "PT-TX-777",
		"status":                "success",
		"amount":                29.00,
		"currencyCode":          "usd",
		"paymentDate":           "2026-03-15",
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return payload
}

func TestVerifySignature(t *testing.T) {
	secret := "s3cr3t"
	payload := samplePayload(t)

	headers := http.Header{}
	headers.Set("X-Powertranz-Signature", signPayload(secret, payload))

	adapter := &Adapter{webhookSecret: secret}
	if err := adapter.Verify(context.Background(), payload, headers); err != nil {
		t.Fatalf("expected valid signature, got error: %v", err)
	}

	headers.Set("X-Powertranz-Signature", signPayload("wrong", payload))
	if err := adapter.Verify(context.Background(), payload, headers); !errors.Is(err, paymentdomain.ErrAuthenticationFailed) {
		t.Fatalf("expected ErrAuthenticationFailed, got %v", err)
	}
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	secret := "s3cr3t"
	payload := samplePayload(t)

	headers := http.Header{}
	headers.Set("X-Powertranz-Signature", signPayload(secret, payload))

	tampered := append([]byte(nil), payload...)
	tampered[len(tampered)-2] = 'X'

	adapter := &Adapter{webhookSecret: secret}
	if err := adapter.Verify(context.Background(), tampered, headers); !errors.Is(err, paymentdomain.ErrAuthenticationFailed) {
		t.Fatalf("expected ErrAuthenticationFailed on tampered payload, got %v", err)
	}
}

func TestVerifyRejectsMissingHeader(t *testing.T) {
	adapter := &Adapter{webhookSecret: "s3cr3t"}
	if err := adapter.Verify(context.Background(), samplePayload(t), http.Header{}); !errors.Is(err, paymentdomain.ErrAuthenticationFailed) {
		t.Fatalf("expected ErrAuthenticationFailed, got %v", err)
	}
}

func TestParseWebhookEvent(t *testing.T) {
	adapter := &Adapter{webhookSecret: "s3cr3t"}

	event, err := adapter.Parse(context.Background(), samplePayload(t))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.RecurringIdentifier != "PT-REC-001" {
		t.Fatalf("recurring identifier = %q", event.RecurringIdentifier)
	}
	if event.TransactionIdentifier != "PT-TX-777" {
		t.Fatalf("transaction identifier = %q", event.TransactionIdentifier)
	}
	if event.Status != paymentdomain.EventStatusSuccess {
		t.Fatalf("status = %q", event.Status)
	}
	if event.Amount != 2900 {
		t.Fatalf("amount = %d, want 2900", event.Amount)
	}
	if event.Currency != "USD" {
		t.Fatalf("currency = %q", event.Currency)
	}
	if want := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC); !event.PaymentDate.Equal(want) {
		t.Fatalf("payment date = %v, want %v", event.PaymentDate, want)
	}
}

func TestParseRejectsMissingIdentifiers(t *testing.T) {
	adapter := &Adapter{webhookSecret: "s3cr3t"}

	tests := []struct {
		name    string
		payload string
	}{
		{"missing recurring identifier", `{"transactionIdentifier":"tx","status":"failed","amount":1,"currencyCode":"USD","paymentDate":"2026-03-15"}`},
		{"missing transaction identifier", `{"recurringIdentifier":"rec","status":"failed","amount":1,"currencyCode":"USD","paymentDate":"2026-03-15"}`},
		{"unknown status", `{"recurringIdentifier":"rec","transactionIdentifier":"tx","status":"maybe","amount":1,"currencyCode":"USD","paymentDate":"2026-03-15"}`},
		{"not json", `not-json`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := adapter.Parse(context.Background(), []byte(tc.payload)); !errors.Is(err, paymentdomain.ErrInvalidPayload) {
				t.Fatalf("expected ErrInvalidPayload, got %v", err)
			}
		})
	}
}

func TestChargeApproved(t *testing.T) {
	var gotPath string
	var gotBody chargeRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.Header.Get("PowerTranz-PowerTranzId") != "ptid" {
			t.Errorf("missing gateway id header")
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(chargeResponse{
			Approved:              true,
			TransactionIdentifier: "PT-TX-900",
			IsoResponseCode:       "00",
			ResponseMessage:       "Approved",
		})
	}))
	defer server.Close()

	adapter := &Adapter{
		webhookSecret:   "s3cr3t",
		baseURL:         server.URL,
		gatewayID:       "ptid",
		gatewayPassword: "ptpwd",
		client:          server.Client(),
	}

	result, err := adapter.Charge(context.Background(), paymentdomain.ChargeRequest{
		Reference: "REC-1-5",
		TokenRef:  "tok_abc",
		Amount:    2900,
		Currency:  "usd",
	})
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	if gotPath != "/api/Sale" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotBody.TotalAmount != 29.00 {
		t.Fatalf("total amount = %v, want 29.00", gotBody.TotalAmount)
	}
	if gotBody.CardToken != "tok_abc" || gotBody.Tokenize {
		t.Fatalf("unexpected request body %+v", gotBody)
	}
	if !result.Approved || result.GatewayTxID != "PT-TX-900" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestChargeDeclined(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chargeResponse{
			Approved:        false,
			IsoResponseCode: "05",
			ResponseMessage: "Do not honor",
		})
	}))
	defer server.Close()

	adapter := &Adapter{
		webhookSecret: "s3cr3t",
		baseURL:       server.URL,
		client:        server.Client(),
	}

	result, err := adapter.Charge(context.Background(), paymentdomain.ChargeRequest{
		Reference: "REC-1-6",
		TokenRef:  "tok_abc",
		Amount:    500,
		Currency:  "USD",
	})
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	if result.Approved {
		t.Fatal("expected decline")
	}
	if result.ResponseCode != "05" {
		t.Fatalf("response code = %q", result.ResponseCode)
	}
}

func TestChargeUnreachableGateway(t *testing.T) {
	adapter := &Adapter{
		webhookSecret: "s3cr3t",
		baseURL:       "http://127.0.0.1:1",
		client:        &http.Client{Timeout: time.Second},
	}

	_, err := adapter.Charge(context.Background(), paymentdomain.ChargeRequest{
		Reference: "REC-1-7",
		TokenRef:  "tok_abc",
		Amount:    500,
		Currency:  "USD",
	})
	if !errors.Is(err, paymentdomain.ErrExternalCallFailed) {
		t.Fatalf("expected ErrExternalCallFailed, got %v", err)
	}
}

func TestFactoryRequiresWebhookSecret(t *testing.T) {
	factory := NewFactory()
	if _, err := factory.NewAdapter(paymentdomain.AdapterConfig{Config: map[string]any{}}); !errors.Is(err, paymentdomain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	adapter, err := factory.NewAdapter(paymentdomain.AdapterConfig{Config: map[string]any{
		"webhook_secret": "s3cr3t",
		"base_url":       "https://staging.ptranz.com/Api",
	}})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	if adapter == nil {
		t.Fatal("expected adapter")
	}
}
