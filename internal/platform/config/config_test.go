package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Sessions.TTL != defaultSessionTTL {
		t.Errorf("unexpected default session ttl: %s", cfg.Sessions.TTL)
	}
	if cfg.Sessions.HistoryDepth != defaultHistoryDepth {
		t.Errorf("unexpected default history depth: %d", cfg.Sessions.HistoryDepth)
	}
	if cfg.Sessions.AutosaveDelay != defaultAutosaveDelay {
		t.Errorf("unexpected default autosave delay: %s", cfg.Sessions.AutosaveDelay)
	}
	if cfg.Checkout.Currency != "USD" {
		t.Errorf("expected default currency USD, got %s", cfg.Checkout.Currency)
	}
	if cfg.Leads.RatePerMinute != defaultLeadRatePerMinute {
		t.Errorf("unexpected default lead rate: %d", cfg.Leads.RatePerMinute)
	}
	if cfg.Events.OrderTopic != defaultOrderTopic {
		t.Errorf("unexpected default order topic: %s", cfg.Events.OrderTopic)
	}
	if !cfg.Features.AllowPromotionCodes {
		t.Errorf("expected promotion codes enabled by default")
	}
	if cfg.Idempotency.Header != defaultIdempotencyHeader {
		t.Errorf("expected default idempotency header, got %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.TTL != defaultIdempotencyTTL {
		t.Errorf("unexpected default idempotency ttl: %s", cfg.Idempotency.TTL)
	}
	if cfg.Idempotency.CleanupInterval != defaultIdempotencyInterval {
		t.Errorf("unexpected default cleanup interval: %s", cfg.Idempotency.CleanupInterval)
	}
	if cfg.Idempotency.CleanupBatchSize != defaultIdempotencyBatchSize {
		t.Errorf("unexpected default cleanup batch size: %d", cfg.Idempotency.CleanupBatchSize)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":                  "9090",
		"API_SERVER_READ_TIMEOUT":          "20s",
		"API_SERVER_WRITE_TIMEOUT":         "25s",
		"API_SERVER_IDLE_TIMEOUT":          "2m",
		"API_FIRESTORE_PROJECT_ID":         "tidynest-prod",
		"API_STRIPE_API_KEY":               "secret://stripe/api",
		"API_STRIPE_WEBHOOK_SECRET":        "secret://stripe/webhook",
		"API_CHECKOUT_SUCCESS_URL":         "https://tidynest.example.com/booking/confirmed",
		"API_CHECKOUT_CANCEL_URL":          "https://tidynest.example.com/cart",
		"API_CHECKOUT_CURRENCY":            "CAD",
		"API_LEADS_WEBHOOK_URL":            "secret://leads/webhook",
		"API_LEADS_TIMEOUT":                "5s",
		"API_LEADS_RATE_PER_MIN":           "10",
		"API_EVENTS_ORDER_TOPIC":           "orders-prod",
		"API_SESSIONS_TTL":                 "48h",
		"API_SESSIONS_HISTORY_DEPTH":       "25",
		"API_SESSIONS_AUTOSAVE_DELAY":      "250ms",
		"API_FEATURE_PROMOTION_CODES":      "false",
		"API_IDEMPOTENCY_HEADER":           "X-Idem-Key",
		"API_IDEMPOTENCY_TTL":              "48h",
		"API_IDEMPOTENCY_CLEANUP_INTERVAL": "30m",
		"API_IDEMPOTENCY_CLEANUP_BATCH":    "500",
	}

	secrets := map[string]string{
		"secret://stripe/api":     "sk_live_key",
		"secret://stripe/webhook": "whsec_live",
		"secret://leads/webhook":  "https://hooks.example.com/leads",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected idle timeout: %s", cfg.Server.IdleTimeout)
	}
	if cfg.Stripe.APIKey != "sk_live_key" {
		t.Errorf("expected resolved stripe api key, got %s", cfg.Stripe.APIKey)
	}
	if cfg.Stripe.WebhookSecret != "whsec_live" {
		t.Errorf("expected resolved webhook secret, got %s", cfg.Stripe.WebhookSecret)
	}
	if cfg.Checkout.Currency != "CAD" {
		t.Errorf("unexpected currency %s", cfg.Checkout.Currency)
	}
	if cfg.Leads.WebhookURL != "https://hooks.example.com/leads" {
		t.Errorf("expected resolved leads webhook, got %s", cfg.Leads.WebhookURL)
	}
	if cfg.Leads.Timeout != 5*time.Second {
		t.Errorf("unexpected lead timeout %s", cfg.Leads.Timeout)
	}
	if cfg.Leads.RatePerMinute != 10 {
		t.Errorf("unexpected lead rate %d", cfg.Leads.RatePerMinute)
	}
	if cfg.Events.ProjectID != "tidynest-prod" {
		t.Errorf("expected events project to fall back to firestore project, got %s", cfg.Events.ProjectID)
	}
	if cfg.Events.OrderTopic != "orders-prod" {
		t.Errorf("unexpected order topic %s", cfg.Events.OrderTopic)
	}
	if cfg.Sessions.TTL != 48*time.Hour {
		t.Errorf("unexpected session ttl %s", cfg.Sessions.TTL)
	}
	if cfg.Sessions.HistoryDepth != 25 {
		t.Errorf("unexpected history depth %d", cfg.Sessions.HistoryDepth)
	}
	if cfg.Sessions.AutosaveDelay != 250*time.Millisecond {
		t.Errorf("unexpected autosave delay %s", cfg.Sessions.AutosaveDelay)
	}
	if cfg.Features.AllowPromotionCodes {
		t.Errorf("expected promotion codes disabled")
	}
	if cfg.Idempotency.Header != "X-Idem-Key" {
		t.Errorf("unexpected idempotency header %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.TTL != 48*time.Hour {
		t.Errorf("unexpected idempotency ttl %s", cfg.Idempotency.TTL)
	}
	if cfg.Idempotency.CleanupInterval != 30*time.Minute {
		t.Errorf("unexpected cleanup interval %s", cfg.Idempotency.CleanupInterval)
	}
	if cfg.Idempotency.CleanupBatchSize != 500 {
		t.Errorf("unexpected cleanup batch size %d", cfg.Idempotency.CleanupBatchSize)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_SERVER_PORT=7070\nAPI_FIRESTORE_PROJECT_ID=tidynest-dot\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if cfg.Firestore.ProjectID != "tidynest-dot" {
		t.Errorf("expected firestore project from dotenv, got %s", cfg.Firestore.ProjectID)
	}
}

func TestLoadRequiresCheckoutURLsWithStripeKey(t *testing.T) {
	env := map[string]string{
		"API_STRIPE_API_KEY": "sk_test_key",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	fields := validation.Fields()
	if len(fields) != 2 {
		t.Fatalf("expected 2 missing fields, got %v", fields)
	}
}

func TestLoadRejectsZeroHistoryDepth(t *testing.T) {
	env := map[string]string{
		"API_SESSIONS_HISTORY_DEPTH": "0",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	if _, ok := err.(*ValidationError); !ok {
		t.Fatalf("expected ValidationError, got %T", err)
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := map[string]string{
		"API_STRIPE_API_KEY":       "secret://missing",
		"API_CHECKOUT_SUCCESS_URL": "https://example.com/ok",
		"API_CHECKOUT_CANCEL_URL":  "https://example.com/cancel",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected secret resolution error, got nil")
	}
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("unexpected secret ref %s", secretErr.Ref)
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_FIRESTORE_PROJECT_ID=dot-project\nAPI_SECRET_FALLBACK_FILE=.dot.local\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}

	t.Setenv("API_FIRESTORE_PROJECT_ID", "os-project")
	t.Setenv("API_SECRET_PROJECT_IDS", "prod=project-prod")

	overrides := map[string]string{
		"API_FIRESTORE_PROJECT_ID": "override-project",
		"API_SECRET_VERSION_PINS":  "secret://stripe/api=5",
	}

	values, err := EnvironmentValues(WithEnvFile(envPath), WithEnvMap(overrides))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}

	if got := values["API_FIRESTORE_PROJECT_ID"]; got != "override-project" {
		t.Fatalf("expected override project, got %s", got)
	}
	if got := values["API_SECRET_FALLBACK_FILE"]; got != ".dot.local" {
		t.Fatalf("expected dotenv fallback file, got %s", got)
	}
	if got := values["API_SECRET_PROJECT_IDS"]; got != "prod=project-prod" {
		t.Fatalf("expected system env project map, got %s", got)
	}
	if got := values["API_SECRET_VERSION_PINS"]; got != "secret://stripe/api=5" {
		t.Fatalf("expected override version pin, got %s", got)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	_, err := Load(context.Background(),
		WithEnvMap(map[string]string{}),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("Stripe.WebhookSecret"),
	)
	if err == nil {
		t.Fatal("expected missing secrets error, got nil")
	}
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %T", err)
	}
	expectedRedacted := redactSecretName("Stripe.WebhookSecret")
	if got := missing.RedactedNames(); len(got) != 1 || got[0] != expectedRedacted {
		t.Fatalf("unexpected redacted names %v", got)
	}
}

func TestLoadMissingRequiredSecretsPanic(t *testing.T) {
	defer func() {
		rec := recover()
		if rec == nil {
			t.Fatal("expected panic when required secrets missing")
		}
		missing, ok := rec.(*MissingSecretsError)
		if !ok {
			t.Fatalf("expected MissingSecretsError panic, got %T", rec)
		}
		if len(missing.Names()) != 1 || missing.Names()[0] != "Stripe.WebhookSecret" {
			t.Fatalf("unexpected missing secrets %v", missing.Names())
		}
	}()

	Load(context.Background(),
		WithEnvMap(map[string]string{}),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("Stripe.WebhookSecret"),
		WithPanicOnMissingSecrets(),
	)
}

func TestLoadSupportsLegacySecretScheme(t *testing.T) {
	env := map[string]string{
		"API_LEADS_WEBHOOK_URL": "sm://leads/webhook",
	}

	secrets := map[string]string{
		"secret://leads/webhook": "https://hooks.example.com/legacy",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", &SecretError{Ref: ref, Err: errors.New("not found")}
	})

	cfg, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithSecretResolver(resolver),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Leads.WebhookURL != "https://hooks.example.com/legacy" {
		t.Fatalf("expected legacy secret, got %s", cfg.Leads.WebhookURL)
	}
}
