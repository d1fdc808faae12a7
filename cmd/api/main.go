package main

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"shopify-auth-gateway/internal/application"
	"shopify-auth-gateway/internal/application/webhook_handlers"
	"shopify-auth-gateway/internal/config"
	"shopify-auth-gateway/internal/domain"
	"shopify-auth-gateway/internal/infrastructure/encryption"
	authmiddleware "shopify-auth-gateway/internal/infrastructure/middleware"
	"shopify-auth-gateway/internal/infrastructure/queue"
	"shopify-auth-gateway/internal/infrastructure/repository"
	shopifyinfra "shopify-auth-gateway/internal/infrastructure/shopify"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const bouncePath = "/auth/token-refresh"

var shopDomainPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]*\.myshopify\.com$`)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if err := godotenv.Load(); err != nil {
		logger.Warn().Msg("⚠️  Warning: .env file not found")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to MongoDB
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to MongoDB")
	}
	defer client.Disconnect(context.Background())

	db := client.Database(cfg.MongoDatabase)

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	if cfg.EncryptionKey == "" {
		logger.Fatal().Msg("ENCRYPTION_KEY environment variable is required")
	}
	encryptionService, err := encryption.NewService(cfg.EncryptionKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize encryption service")
	}

	// Repositories
	shopRepo := repository.NewMongoShopRepository(db, encryptionService)

	// Shopify infrastructure
	tokenEndpoint := shopifyinfra.NewTokenEndpoint(cfg.APIKey, cfg.APISecret, logger)
	rateLimiter := shopifyinfra.NewRateLimiter(logger)
	adminClient := shopifyinfra.NewAdminClient(cfg.APIKey, cfg.APISecret, logger)

	embeddedVerifier := shopifyinfra.NewSessionTokenVerifier(domain.ProtocolEmbeddedApp, cfg.APIKey, cfg.APISecret)
	adminExtVerifier := shopifyinfra.NewSessionTokenVerifier(domain.ProtocolAdminUIExtension, cfg.APIKey, cfg.APISecret)
	customerExtVerifier := shopifyinfra.NewSessionTokenVerifier(domain.ProtocolCustomerAccountUIExtension, cfg.APIKey, cfg.APISecret)
	proxyVerifier := shopifyinfra.NewAppProxyVerifier(cfg.APISecret, cfg.ProxyTimestampTolerance)
	webhookVerifier := shopifyinfra.NewWebhookVerifier(cfg.APISecret)
	flowVerifier := shopifyinfra.NewFlowActionVerifier(cfg.APISecret)

	// Application services
	tokenService := application.NewTokenService(shopRepo, tokenEndpoint, cfg.TokenExchangeMode, cfg.LogTokenLifecycle, logger)
	graphqlClient := shopifyinfra.NewGraphQLClient(cfg.APIVersion, tokenService, rateLimiter, logger)
	subscriptionService := application.NewWebhookSubscriptionService(adminClient, cfg.WebhookTopics, cfg.AppURL, logger)
	cleanupService := application.NewCleanupService(shopRepo, cfg.RetentionDays, logger)

	authService := application.NewAuthService(
		shopRepo, tokenService,
		embeddedVerifier, adminExtVerifier, customerExtVerifier, proxyVerifier, webhookVerifier, flowVerifier,
		logger,
	)
	authService.OnFirstInstall(func(shop *domain.Shop) {
		go func() {
			bootCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := subscriptionService.EnsureSubscriptions(bootCtx, shop); err != nil {
				logger.Error().Err(err).Str("shop", shop.Domain).Msg("Webhook subscription bootstrap failed")
			}
		}()
	})

	// Webhook pipeline
	jobQueue := queue.NewRedisQueue(redisClient, logger)
	dispatcher := application.NewWebhookDispatcher(cfg.WebhookRoutes, jobQueue, logger)

	worker := queue.NewWorker(redisClient, []string{cfg.DefaultWebhookQueue, "gdpr"}, logger)
	worker.Register(webhook_handlers.NewAppUninstalledHandler(shopRepo, logger))
	worker.Register(webhook_handlers.NewShopRedactHandler(shopRepo, logger))
	worker.Register(webhook_handlers.NewCustomersRedactHandler(nil, logger))
	worker.Register(webhook_handlers.NewCustomersDataRequestHandler(nil, logger))
	worker.Start(ctx)

	// Retention sweep
	sweeper := cron.New()
	if _, err := sweeper.AddFunc("@daily", func() {
		sweepCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := cleanupService.PurgeUninstalledShops(sweepCtx); err != nil {
			logger.Error().Err(err).Msg("Retention sweep failed")
		}
	}); err != nil {
		logger.Fatal().Err(err).Msg("Failed to schedule retention sweep")
	}
	sweeper.Start()
	defer sweeper.Stop()

	auth := authmiddleware.NewAuth(authService, bouncePath, logger)

	// Setup router
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	r.Get("/swagger/doc.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		http.ServeFile(w, r, "./docs/swagger.json")
	})
	r.Get(bouncePath, bounceHandler(cfg.APIKey, logger))
	r.Get("/auth/error", authErrorHandler(logger))

	// Embedded app surface
	r.Group(func(r chi.Router) {
		r.Use(auth.Protocol(domain.ProtocolEmbeddedApp))
		r.Get("/", appPageHandler(cfg.APIKey, logger))
		r.Get("/api/shop", shopInfoHandler(logger))
		r.Post("/api/graphql", graphqlProxyHandler(graphqlClient, logger))
	})

	// UI extension surfaces
	r.Group(func(r chi.Router) {
		r.Use(auth.Protocol(domain.ProtocolAdminUIExtension))
		r.Post("/api/extension/admin", extensionHandler(logger))
	})
	r.Group(func(r chi.Router) {
		r.Use(auth.Protocol(domain.ProtocolCustomerAccountUIExtension))
		r.Post("/api/extension/customer-account", extensionHandler(logger))
	})

	// App proxy surface
	r.Group(func(r chi.Router) {
		r.Use(auth.Protocol(domain.ProtocolAppProxy))
		r.HandleFunc("/proxy/*", proxyHandler(logger))
	})

	// Flow action surface
	r.Group(func(r chi.Router) {
		r.Use(auth.Protocol(domain.ProtocolFlowAction))
		r.Post("/flow/action", flowActionHandler(logger))
	})

	// Webhook receiver
	r.Group(func(r chi.Router) {
		r.Use(auth.Protocol(domain.ProtocolWebhook))
		r.Post("/webhooks/*", webhookHandler(dispatcher, logger))
	})

	server := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("port", cfg.Port).Msg("Starting API server")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("Failed to start server")
	}
	worker.Wait()
}

var bounceTemplate = template.Must(template.New("bounce").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta name="shopify-api-key" content="{{.APIKey}}">
  <script src="https://cdn.shopify.com/shopifycloud/app-bridge.js"></script>
</head>
<body></body>
</html>`))

var appPageTemplate = template.Must(template.New("app").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta name="shopify-api-key" content="{{.APIKey}}">
  <script src="https://cdn.shopify.com/shopifycloud/app-bridge.js"></script>
  <title>Shopify Auth Gateway</title>
</head>
<body>
  <p>Authenticated as {{.Shop}}.</p>
</body>
</html>`))

var errorPageTemplate = template.Must(template.New("error").Parse(`<!DOCTYPE html>
<html>
<head><title>Authentication error</title></head>
<body>
  <p>Something went wrong while authenticating your shop. Open the app again
  from your Shopify admin.</p>
</body>
</html>`))

func authErrorHandler(logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusBadRequest)
		if err := errorPageTemplate.Execute(w, nil); err != nil {
			logger.Error().Err(err).Msg("Failed to render error page")
		}
	}
}

// bounceHandler serves the session token bounce page. App Bridge reads the
// shopify-reload query parameter, mints a fresh session token and replays
// the original document request.
func bounceHandler(apiKey string, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shop := r.URL.Query().Get("shop")
		if !shopDomainPattern.MatchString(shop) {
			http.Redirect(w, r, "/auth/error", http.StatusFound)
			return
		}

		w.Header().Set("Content-Type", "text/html")
		if err := bounceTemplate.Execute(w, map[string]string{"APIKey": apiKey}); err != nil {
			logger.Error().Err(err).Msg("Failed to render bounce page")
		}
	}
}

func appPageHandler(apiKey string, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shop := domain.ShopFromContext(r.Context())

		w.Header().Set("Content-Type", "text/html")
		err := appPageTemplate.Execute(w, map[string]string{"APIKey": apiKey, "Shop": shop.Domain})
		if err != nil {
			logger.Error().Err(err).Msg("Failed to render app page")
		}
	}
}

// shopInfoHandler returns the authenticated shop's install state. Token
// values never leave the server.
func shopInfoHandler(logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shop := domain.ShopFromContext(r.Context())
		if shop == nil {
			http.Error(w, "no shop in context", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"shop":              shop.Domain,
			"installed":         shop.IsInstalled(),
			"hasAccessToken":    shop.AccessToken != "",
			"tokenRefreshCount": shop.TokenRefreshCount,
			"installedAt":       shop.InstalledAt,
		})
	}
}

// graphqlProxyHandler forwards a GraphQL operation to the Admin API using
// the shop's stored access token.
func graphqlProxyHandler(client *shopifyinfra.GraphQLClient, logger zerolog.Logger) http.HandlerFunc {
	type request struct {
		Query     string         `json:"query"`
		Variables map[string]any `json:"variables"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		shop := domain.ShopFromContext(r.Context())
		if shop == nil {
			http.Error(w, "no shop in context", http.StatusInternalServerError)
			return
		}

		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		data, err := client.Execute(r.Context(), shop, req.Query, req.Variables)
		if err != nil {
			writeGraphQLError(w, shop.Domain, err, logger)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"data": json.RawMessage(data)})
	}
}

// writeGraphQLError maps Admin API failures onto client responses. A dead
// token lineage becomes a 401 with requiresRefresh so the frontend starts
// a fresh session token exchange.
func writeGraphQLError(w http.ResponseWriter, shopDomain string, err error, logger zerolog.Logger) {
	var refreshRequired *domain.TokenRefreshRequiredError
	if errors.As(err, &refreshRequired) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{
			"error":           "token refresh required",
			"requiresRefresh": true,
			"shop":            shopDomain,
		})
		return
	}

	var gqlErr *shopifyinfra.GraphQLError
	var userErr *shopifyinfra.GraphQLUserError
	if errors.As(err, &gqlErr) || errors.As(err, &userErr) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"error": err.Error()})
		return
	}

	logger.Error().Err(err).Str("shop", shopDomain).Msg("GraphQL proxy request failed")
	http.Error(w, "upstream request failed", http.StatusBadGateway)
}

func extensionHandler(logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := domain.IdentityFromContext(r.Context())

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"shop":   identity.ShopDomain,
			"userId": identity.ExtensionUserID,
		})
	}
}

func proxyHandler(logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := domain.IdentityFromContext(r.Context())

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"shop":             identity.ShopDomain,
			"loggedInCustomer": identity.CustomerID,
		})
	}
}

func flowActionHandler(logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := domain.IdentityFromContext(r.Context())

		logger.Info().
			Str("shop", identity.ShopDomain).
			Msg("Flow action received")

		w.WriteHeader(http.StatusOK)
	}
}

// webhookHandler dispatches a verified webhook delivery onto the job
// queue. The HMAC check already ran in middleware; the body was restored
// by the verifier.
func webhookHandler(dispatcher *application.WebhookDispatcher, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := domain.IdentityFromContext(r.Context())
		if identity == nil {
			http.Error(w, "no identity in context", http.StatusInternalServerError)
			return
		}

		topic := r.Header.Get("X-Shopify-Topic")
		if topic == "" {
			http.Error(w, "Missing X-Shopify-Topic header", http.StatusBadRequest)
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request body", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		job, err := dispatcher.Dispatch(r.Context(), topic, identity.ShopDomain, payload)
		if err != nil {
			logger.Error().
				Err(err).
				Str("topic", topic).
				Str("shop", identity.ShopDomain).
				Msg("Failed to dispatch webhook")

			// Non-2xx makes Shopify retry the delivery.
			http.Error(w, "Failed to process webhook event", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if job == nil {
			json.NewEncoder(w).Encode(map[string]string{"status": "ignored"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "queued"})
	}
}
