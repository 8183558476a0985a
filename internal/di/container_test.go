package di

import (
	"context"
	"testing"
	"time"

	domain "github.com/tidynest/api/internal/domain"
	"github.com/tidynest/api/internal/payments"
	"github.com/tidynest/api/internal/platform/config"
	"github.com/tidynest/api/internal/repositories/memory"
)

func testConfig() config.Config {
	return config.Config{
		Sessions: config.SessionsConfig{
			TTL:           time.Hour,
			HistoryDepth:  50,
			AutosaveDelay: 500 * time.Millisecond,
		},
	}
}

func memoryRepositories() Repositories {
	store := memory.NewSessionStore()
	return Repositories{
		Carts:      store,
		SavedCarts: store,
		PendingOps: store,
		Autosaves:  store,
	}
}

func TestNewContainerBuildsCoreServices(t *testing.T) {
	container, err := NewContainer(context.Background(), Dependencies{
		Config:       testConfig(),
		Repositories: memoryRepositories(),
	})
	if err != nil {
		t.Fatalf("NewContainer: %v", err)
	}

	if container.Services.Catalog == nil {
		t.Error("expected catalog service")
	}
	if container.Services.Quotes == nil {
		t.Error("expected quote engine")
	}
	if container.Services.Cart == nil {
		t.Error("expected cart service")
	}
	if container.Services.CartHealth == nil {
		t.Error("expected cart health analyzer")
	}
	if container.Services.Checkout != nil {
		t.Error("checkout should be absent without a payment provider")
	}
	if container.Services.Leads != nil {
		t.Error("leads should be absent without a webhook url")
	}
}

func TestNewContainerWiresOptionalServices(t *testing.T) {
	cfg := testConfig()
	cfg.Leads.WebhookURL = "https://hooks.example.com/leads"

	container, err := NewContainer(context.Background(), Dependencies{
		Config:          cfg,
		Repositories:    memoryRepositories(),
		PaymentProvider: stubProvider{},
		OrderPublisher:  stubPublisher{},
	})
	if err != nil {
		t.Fatalf("NewContainer: %v", err)
	}

	if container.Services.Checkout == nil {
		t.Error("expected checkout service with provider and publisher")
	}
	if container.Services.Leads == nil {
		t.Error("expected lead forwarder with webhook url")
	}
}

func TestNewContainerRequiresCartRepository(t *testing.T) {
	_, err := NewContainer(context.Background(), Dependencies{Config: testConfig()})
	if err == nil {
		t.Fatal("expected error without repositories")
	}
}

type stubProvider struct{}

func (stubProvider) CreateCheckoutSession(context.Context, payments.CheckoutSessionRequest) (payments.CheckoutSession, error) {
	return payments.CheckoutSession{}, nil
}

type stubPublisher struct{}

func (stubPublisher) PublishOrderEvent(context.Context, domain.OrderEvent) (string, error) {
	return "", nil
}
