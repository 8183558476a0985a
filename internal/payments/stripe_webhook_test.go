package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"
)

const testWebhookSecret = "whsec_test_secret"

func signPayload(t *testing.T, payload []byte) string {
	t.Helper()
	timestamp := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	fmt.Fprintf(mac, "%d.%s", timestamp, payload)
	return fmt.Sprintf("t=%d,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}

func TestStripeWebhookVerifierDecodesCheckoutCompleted(t *testing.T) {
	verifier, err := NewStripeWebhookVerifier(testWebhookSecret)
	if err != nil {
		t.Fatalf("NewStripeWebhookVerifier: %v", err)
	}

	payload := []byte(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"data": {
			"object": {
				"id": "cs_test_1",
				"amount_total": 8505,
				"currency": "usd",
				"metadata": {"clientSessionId": "sess-1"}
			}
		}
	}`)

	event, err := verifier.VerifyWebhook(payload, signPayload(t, payload))
	if err != nil {
		t.Fatalf("VerifyWebhook: %v", err)
	}
	if event.Type != "checkout.session.completed" {
		t.Fatalf("unexpected type %q", event.Type)
	}
	if event.CheckoutID != "cs_test_1" {
		t.Fatalf("unexpected checkout id %q", event.CheckoutID)
	}
	if event.AmountTotal != 8505 {
		t.Fatalf("unexpected amount %d", event.AmountTotal)
	}
	if event.Currency != "USD" {
		t.Fatalf("unexpected currency %q", event.Currency)
	}
	if event.Metadata["clientSessionId"] != "sess-1" {
		t.Fatalf("metadata missing: %v", event.Metadata)
	}
}

func TestStripeWebhookVerifierRejectsBadSignature(t *testing.T) {
	verifier, err := NewStripeWebhookVerifier(testWebhookSecret)
	if err != nil {
		t.Fatalf("NewStripeWebhookVerifier: %v", err)
	}

	payload := []byte(`{"id":"evt_2","type":"checkout.session.completed","data":{"object":{}}}`)
	if _, err := verifier.VerifyWebhook(payload, "t=1,v1=deadbeef"); !errors.Is(err, ErrWebhookSignature) {
		t.Fatalf("expected ErrWebhookSignature, got %v", err)
	}
}

func TestStripeWebhookVerifierPassesUnknownTypesThrough(t *testing.T) {
	verifier, err := NewStripeWebhookVerifier(testWebhookSecret)
	if err != nil {
		t.Fatalf("NewStripeWebhookVerifier: %v", err)
	}

	payload := []byte(`{"id":"evt_3","type":"charge.updated","data":{"object":{}}}`)
	event, err := verifier.VerifyWebhook(payload, signPayload(t, payload))
	if err != nil {
		t.Fatalf("VerifyWebhook: %v", err)
	}
	if event.Type != "charge.updated" || event.CheckoutID != "" {
		t.Fatalf("unexpected event %+v", event)
	}
}
