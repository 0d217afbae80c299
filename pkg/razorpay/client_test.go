package razorpay

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/resellkart/resellkart-backend/pkg/config"
	"github.com/resellkart/resellkart-backend/pkg/logger"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient(context.Background(), config.RazorpayConfig{
		KeyID:         "rzp_test_key",
		KeySecret:     "key_secret",
		WebhookSecret: "webhook_secret",
	}, logger.New(logger.Options{ServiceName: "test"}))
	if err != nil {
		t.Fatalf("unexpected client error: %v", err)
	}
	return client
}

func signWith(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestClient_VerifyPaymentSignature(t *testing.T) {
	client := newTestClient(t)
	valid := signWith("key_secret", []byte("order_Nx12abc|pay_Nx34def"))

	if !client.VerifyPaymentSignature("order_Nx12abc", "pay_Nx34def", valid) {
		t.Fatal("valid signature rejected")
	}
	if client.VerifyPaymentSignature("order_Nx12abc", "pay_Nx34def", "deadbeef") {
		t.Fatal("bad signature accepted")
	}
	if client.VerifyPaymentSignature("order_other", "pay_Nx34def", valid) {
		t.Fatal("signature for another order accepted")
	}
}

func TestClient_VerifyWebhookSignature(t *testing.T) {
	client := newTestClient(t)
	body := []byte(`{"event":"payment.captured","payload":{}}`)
	valid := signWith("webhook_secret", body)

	if !client.VerifyWebhookSignature(body, valid) {
		t.Fatal("valid signature rejected")
	}
	if client.VerifyWebhookSignature([]byte(`{"event":"payment.captured","payload": {}}`), valid) {
		t.Fatal("re-serialized body accepted")
	}
}

func TestNewClientValidation(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test"})

	if _, err := NewClient(context.Background(), config.RazorpayConfig{
		KeySecret:     "key_secret",
		WebhookSecret: "webhook_secret",
	}, logg); err == nil {
		t.Fatal("expected key id validation error")
	}
	if _, err := NewClient(context.Background(), config.RazorpayConfig{
		KeyID:     "rzp_test_key",
		KeySecret: "key_secret",
	}, logg); err == nil {
		t.Fatal("expected webhook secret validation error")
	}
}
