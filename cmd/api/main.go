package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tidynest/api/internal/di"
	domain "github.com/tidynest/api/internal/domain"
	"github.com/tidynest/api/internal/handlers"
	"github.com/tidynest/api/internal/payments"
	"github.com/tidynest/api/internal/platform/config"
	pfirestore "github.com/tidynest/api/internal/platform/firestore"
	"github.com/tidynest/api/internal/platform/idempotency"
	"github.com/tidynest/api/internal/platform/jobs"
	"github.com/tidynest/api/internal/platform/observability"
	"github.com/tidynest/api/internal/platform/secrets"
	firestoreRepo "github.com/tidynest/api/internal/repositories/firestore"
	"github.com/tidynest/api/internal/repositories/memory"
	"github.com/tidynest/api/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	eventLog := eventLogger(logger.Named("services"))

	store := memory.NewSessionStore(memory.WithTTL(cfg.Sessions.TTL))
	repos := di.Repositories{
		Carts:      store,
		SavedCarts: store,
		PendingOps: store,
		Autosaves:  store,
	}

	var idempotencyStore idempotency.Store = idempotency.NewMemoryStore()

	var firestoreProvider *pfirestore.Provider
	if strings.TrimSpace(cfg.Firestore.ProjectID) != "" {
		firestoreProvider = pfirestore.NewProvider(cfg.Firestore)
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := firestoreProvider.Close(closeCtx); err != nil {
				logger.Warn("firestore close error", zap.Error(err))
			}
		}()

		client, err := firestoreProvider.Client(ctx)
		if err != nil {
			logger.Fatal("failed to initialise firestore client", zap.Error(err))
		}

		savedCarts, err := firestoreRepo.NewSavedCartRepository(firestoreProvider)
		if err != nil {
			logger.Fatal("failed to initialise saved cart repository", zap.Error(err))
		}
		repos.SavedCarts = savedCarts
		idempotencyStore = idempotency.NewFirestoreStore(client)
	}

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	var cleanupTicker *time.Ticker
	if cfg.Idempotency.CleanupInterval > 0 {
		cleanupTicker = time.NewTicker(cfg.Idempotency.CleanupInterval)
		cleanupWG.Add(1)
		go func() {
			defer cleanupWG.Done()
			cleanupLogger := logger.Named("idempotency")
			for {
				select {
				case <-cleanupTicker.C:
					runCtx, cancel := context.WithTimeout(cleanupCtx, time.Minute)
					removed, err := idempotencyStore.CleanupExpired(runCtx, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize)
					cancel()
					if err != nil {
						cleanupLogger.Error("idempotency cleanup error", zap.Error(err))
						continue
					}
					if removed > 0 {
						cleanupLogger.Info("idempotency cleanup removed records", zap.Int("count", removed))
					}
				case <-cleanupCtx.Done():
					return
				}
			}
		}()
	}

	var orderPublisher services.OrderEventPublisher
	var pubsubClient *pubsub.Client
	if projectID := strings.TrimSpace(cfg.Events.ProjectID); projectID != "" {
		pubsubClient, err = pubsub.NewClient(ctx, projectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()

		topic := pubsubClient.Topic(cfg.Events.OrderTopic)
		orderPublisher, err = jobs.NewPubSubOrderPublisher(topic)
		if err != nil {
			logger.Fatal("failed to initialise order publisher", zap.Error(err))
		}
	} else {
		orderPublisher = logOrderPublisher{logger: logger.Named("orders")}
	}

	var paymentProvider payments.Provider
	var webhookVerifier payments.WebhookVerifier
	if strings.TrimSpace(cfg.Stripe.APIKey) != "" {
		paymentProvider, err = payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey: cfg.Stripe.APIKey,
			Logger: eventLog,
			Clock:  time.Now,
		})
		if err != nil {
			logger.Fatal("failed to initialise stripe provider", zap.Error(err))
		}

		if strings.TrimSpace(cfg.Stripe.WebhookSecret) != "" {
			webhookVerifier, err = payments.NewStripeWebhookVerifier(cfg.Stripe.WebhookSecret)
			if err != nil {
				logger.Fatal("failed to initialise stripe webhook verifier", zap.Error(err))
			}
		} else {
			logger.Warn("stripe webhook secret not configured; webhook endpoint disabled")
		}
	} else {
		logger.Warn("stripe api key not configured; checkout endpoints disabled")
	}

	container, err := di.NewContainer(ctx, di.Dependencies{
		Config:          cfg,
		Repositories:    repos,
		PaymentProvider: paymentProvider,
		OrderPublisher:  orderPublisher,
		Clock:           time.Now,
		Logger:          eventLog,
	})
	if err != nil {
		logger.Fatal("failed to assemble services", zap.Error(err))
	}

	healthOpts := []handlers.HealthOption{
		handlers.WithHealthBuildInfo(buildInfoFromEnv(envValues, startedAt)),
	}
	if firestoreProvider != nil {
		provider := firestoreProvider
		healthOpts = append(healthOpts, handlers.WithReadinessCheck("firestore", func(ctx context.Context) error {
			client, err := provider.Client(ctx)
			if err != nil {
				return err
			}
			iter := client.Collections(ctx)
			_, err = iter.Next()
			if errors.Is(err, iterator.Done) {
				return nil
			}
			return err
		}))
	}
	healthOpts = append(healthOpts, handlers.WithReadinessCheck("secretManager", func(ctx context.Context) error {
		const secretHealthReference = "secret://system/healthz?version=latest"
		_, err := fetcher.Resolve(ctx, secretHealthReference)
		if err == nil {
			return nil
		}
		if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
			return nil
		}
		return err
	}))

	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)

	traceProject := strings.TrimSpace(cfg.Firestore.ProjectID)
	if traceProject == "" {
		traceProject = strings.TrimSpace(cfg.Events.ProjectID)
	}

	opts := []handlers.Option{
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.TraceMiddleware(traceProject),
			observability.RequestLoggerMiddleware(),
			observability.RecoveryMiddleware(logger),
			idempotencyMiddleware,
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(healthOpts...)),
		handlers.WithCatalogRoutes(handlers.NewCatalogHandlers(container.Services.Catalog).Routes),
		handlers.WithQuoteRoutes(handlers.NewQuoteHandlers(container.Services.Quotes).Routes),
		handlers.WithCartRoutes(handlers.NewCartHandlers(container.Services.Cart, container.Services.CartHealth).Routes),
	}

	if container.Services.Checkout != nil {
		checkoutHandlers := handlers.NewCheckoutHandlers(container.Services.Checkout,
			handlers.WithCheckoutRedirects(cfg.Checkout.SuccessURL, cfg.Checkout.CancelURL),
		)
		opts = append(opts, handlers.WithCheckoutRoutes(checkoutHandlers.Routes))
	}
	if container.Services.Leads != nil {
		leadHandlers := handlers.NewLeadHandlers(container.Services.Leads,
			handlers.WithLeadRateLimit(cfg.Leads.RatePerMinute),
		)
		opts = append(opts, handlers.WithLeadRoutes(leadHandlers.Routes))
	}
	if webhookVerifier != nil && container.Services.Checkout != nil {
		webhookHandlers := handlers.NewWebhookHandlers(webhookVerifier, container.Services.Checkout, eventLog)
		opts = append(opts, handlers.WithWebhookRoutes(webhookHandlers.Routes))
	}

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("tidynest api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	if cleanupTicker != nil {
		cleanupTicker.Stop()
	}
	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// eventLogger adapts zap to the event/fields logging func the service layer expects.
func eventLogger(logger *zap.Logger) func(context.Context, string, map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug("service log", zFields...)
	}
}

// logOrderPublisher stands in for Pub/Sub when no events project is configured.
type logOrderPublisher struct {
	logger *zap.Logger
}

func (p logOrderPublisher) PublishOrderEvent(_ context.Context, event domain.OrderEvent) (string, error) {
	p.logger.Info("order event",
		zap.String("type", event.Type),
		zap.String("sessionId", event.SessionID),
		zap.String("checkoutId", event.CheckoutID),
		zap.Int64("amountTotal", event.AmountTotal),
	)
	return event.CheckoutID, nil
}

func buildInfoFromEnv(env map[string]string, started time.Time) handlers.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(env["API_ENVIRONMENT"])
	if environment == "" {
		environment = "local"
	}
	return handlers.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		if value, ok := env[key]; ok {
			return strings.TrimSpace(value)
		}
		return ""
	}

	envLabel := strings.ToLower(lookup("API_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIRESTORE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}
	credentialsFile := lookup("API_SECRET_CREDENTIALS_FILE")

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if projectMap := parseKeyValueList(lookup("API_SECRET_PROJECT_IDS")); len(projectMap) > 0 {
		opts = append(opts, secrets.WithProjectMap(projectMap))
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if pins := parseKeyValueList(lookup("API_SECRET_VERSION_PINS")); len(pins) > 0 {
		opts = append(opts, secrets.WithVersionPins(pins))
	}
	if credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists the config fields that must resolve to non-empty
// values before the server starts. Stripe credentials become mandatory once
// checkout is enabled via the API key env var.
func requiredSecretNames(env map[string]string) []string {
	var required []string
	if strings.TrimSpace(env["API_STRIPE_API_KEY"]) != "" {
		required = append(required, "Stripe.APIKey", "Stripe.WebhookSecret")
	}
	if extra := strings.TrimSpace(env["API_REQUIRED_SECRETS"]); extra != "" {
		for _, name := range strings.Split(extra, ",") {
			if trimmed := strings.TrimSpace(name); trimmed != "" {
				required = append(required, trimmed)
			}
		}
	}
	return required
}

func parseKeyValueList(raw string) map[string]string {
	values := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" || value == "" {
			continue
		}
		values[key] = value
	}
	return values
}
