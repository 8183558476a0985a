package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/oklog/ulid/v2"

	"github.com/tidynest/api/internal/payments"
	"github.com/tidynest/api/internal/platform/config"
	"github.com/tidynest/api/internal/repositories"
	"github.com/tidynest/api/internal/services"
)

// Repositories bundles the persistence ports the service layer depends on.
// The in-memory session store satisfies all four; durable alternatives may
// replace individual fields.
type Repositories struct {
	Carts      repositories.CartRepository
	SavedCarts repositories.SavedCartRepository
	PendingOps repositories.PendingOpRepository
	Autosaves  repositories.AutosaveRepository
}

// Services bundles the service-layer contracts that handlers rely upon.
// Concrete implementations are assembled via dependency injection in NewContainer.
type Services struct {
	Catalog    services.CatalogService
	Quotes     services.QuoteEngine
	Cart       services.CartService
	CartHealth services.CartHealthService
	Checkout   services.CheckoutService
	Leads      services.LeadService
}

// Dependencies carries the external collaborators needed to assemble services.
type Dependencies struct {
	Config          config.Config
	Repositories    Repositories
	PaymentProvider payments.Provider
	OrderPublisher  services.OrderEventPublisher
	LeadClient      *resty.Client
	IDGenerator     func() string
	Clock           func() time.Time
	Logger          func(context.Context, string, map[string]any)
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories Repositories
	Services     Services
}

// NewContainer constructs the runtime dependencies. Checkout and lead
// forwarding are optional; they are skipped when the payment provider or
// webhook URL is absent so local development can run without credentials.
func NewContainer(_ context.Context, deps Dependencies) (*Container, error) {
	if deps.Repositories.Carts == nil {
		return nil, errors.New("cart repository is required")
	}

	svc, err := buildServices(deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       deps.Config,
		Repositories: deps.Repositories,
		Services:     svc,
	}, nil
}

func buildServices(deps Dependencies) (Services, error) {
	var svc Services

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	svc.Catalog = services.NewStaticCatalog()

	quotes, err := services.NewQuotePricingEngine(services.QuotePricingEngineDeps{
		Catalog: svc.Catalog,
		Logger:  deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build pricing engine: %w", err)
	}
	svc.Quotes = quotes

	cart, err := services.NewSessionCartService(services.SessionCartServiceDeps{
		Carts:         deps.Repositories.Carts,
		SavedCarts:    deps.Repositories.SavedCarts,
		PendingOps:    deps.Repositories.PendingOps,
		Autosaves:     deps.Repositories.Autosaves,
		IDGenerator:   idGen,
		Clock:         clock,
		Logger:        deps.Logger,
		HistoryDepth:  deps.Config.Sessions.HistoryDepth,
		AutosaveDelay: deps.Config.Sessions.AutosaveDelay,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Cart = cart

	health, err := services.NewCartHealthAnalyzer(services.CartHealthAnalyzerDeps{
		Carts: cart,
		Clock: clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart health analyzer: %w", err)
	}
	svc.CartHealth = health

	if deps.PaymentProvider != nil && deps.OrderPublisher != nil {
		checkout, err := services.NewCheckoutOrchestrator(services.CheckoutOrchestratorDeps{
			Carts:     cart,
			Provider:  deps.PaymentProvider,
			Publisher: deps.OrderPublisher,
			Clock:     clock,
			Logger:    deps.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build checkout service: %w", err)
		}
		svc.Checkout = checkout
	}

	if deps.Config.Leads.WebhookURL != "" {
		leads, err := services.NewLeadForwarder(services.LeadForwarderDeps{
			WebhookURL: deps.Config.Leads.WebhookURL,
			Timeout:    deps.Config.Leads.Timeout,
			Client:     deps.LeadClient,
			Clock:      clock,
			Logger:     deps.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build lead forwarder: %w", err)
		}
		svc.Leads = leads
	}

	return svc, nil
}
