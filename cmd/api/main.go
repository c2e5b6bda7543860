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

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hopehand/api/internal/domain"
	"github.com/hopehand/api/internal/handlers"
	"github.com/hopehand/api/internal/payments"
	"github.com/hopehand/api/internal/platform/auth"
	"github.com/hopehand/api/internal/platform/config"
	pfirestore "github.com/hopehand/api/internal/platform/firestore"
	"github.com/hopehand/api/internal/platform/idempotency"
	"github.com/hopehand/api/internal/platform/jobs"
	"github.com/hopehand/api/internal/platform/mail"
	"github.com/hopehand/api/internal/platform/observability"
	"github.com/hopehand/api/internal/platform/secrets"
	platformstorage "github.com/hopehand/api/internal/platform/storage"
	"github.com/hopehand/api/internal/repositories"
	firestoreRepo "github.com/hopehand/api/internal/repositories/firestore"
	"github.com/hopehand/api/internal/services"
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

	requiredSecrets := requiredSecretNames(envValues)
	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecrets...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	var archiver services.CallbackArchiver
	if bucket := strings.TrimSpace(cfg.Storage.WebhookArchiveBucket); bucket != "" {
		storageClient, err := cloudstorage.NewClient(ctx)
		if err != nil {
			logger.Fatal("failed to initialise storage client", zap.Error(err))
		}
		defer func() {
			if err := storageClient.Close(); err != nil {
				logger.Warn("storage close error", zap.Error(err))
			}
		}()
		archiver, err = platformstorage.NewArchiver(storageClient, bucket)
		if err != nil {
			logger.Fatal("failed to initialise callback archiver", zap.Error(err))
		}
	} else {
		logger.Warn("webhook archive bucket not configured; confirmation payloads will not be retained")
	}

	var publisher services.PaymentEventPublisher
	var eventsTopic *pubsub.Topic
	if topicName := strings.TrimSpace(cfg.Events.Topic); topicName != "" {
		pubsubClient, err := pubsub.NewClient(ctx, eventsProjectID(cfg))
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		eventsTopic = pubsubClient.Topic(topicName)
		defer eventsTopic.Stop()
		publisher, err = jobs.NewPubSubPaymentEventPublisher(eventsTopic)
		if err != nil {
			logger.Fatal("failed to initialise payment event publisher", zap.Error(err))
		}
	} else {
		logger.Warn("events topic not configured; payment lifecycle events will not be published")
	}

	systemService, err := newSystemService(ctx, firestoreClient, fetcher, eventsTopic, buildInfo)
	if err != nil {
		logger.Warn("health: system service init failed", zap.Error(err))
	}

	idempotencyStore := idempotency.NewFirestoreStore(firestoreClient)
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)

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

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier, auth.WithUserGetter(firebaseVerifier))

	ledgerRepo, err := firestoreRepo.NewPaymentOrderRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise payment order repository", zap.Error(err))
	}
	emailLogRepo, err := firestoreRepo.NewEmailLogRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise email log repository", zap.Error(err))
	}
	profileRepo, err := firestoreRepo.NewUserProfileRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise user profile repository", zap.Error(err))
	}

	registry, err := newProviderRegistry(cfg, logger.Named("payments"))
	if err != nil {
		logger.Fatal("failed to initialise payment providers", zap.Error(err))
	}

	paymentService, err := services.NewPaymentService(services.PaymentServiceDeps{
		Ledger:     ledgerRepo,
		Providers:  registry,
		Publisher:  publisher,
		Archiver:   archiver,
		ReturnURL:  donationReturnURL(cfg),
		ConfirmURL: confirmationURL(cfg),
		Clock:      time.Now,
		Logger:     newEventLogger(logger.Named("payments")),
	})
	if err != nil {
		logger.Fatal("failed to initialise payment service", zap.Error(err))
	}

	sender, err := mail.NewSMTPSender(mail.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
	if err != nil {
		logger.Fatal("failed to initialise smtp sender", zap.Error(err))
	}
	emailService, err := services.NewEmailService(services.EmailServiceDeps{
		Profiles:        profileRepo,
		Log:             emailLogRepo,
		Sender:          sender,
		SystemPrincipal: cfg.App.SystemPrincipal,
		Clock:           time.Now,
		Logger:          newEventLogger(logger.Named("email")),
	})
	if err != nil {
		logger.Fatal("failed to initialise email service", zap.Error(err))
	}

	paymentHandlers := handlers.NewPaymentHandlers(authenticator, paymentService)
	emailHandlers := handlers.NewEmailHandlers(authenticator, emailService)
	webhookHandlers := handlers.NewWebhookHandlers(paymentService)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(systemService),
	)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithPaymentRoutes(paymentHandlers.Routes),
		handlers.WithPaymentMiddlewares(idempotencyMiddleware),
		handlers.WithEmailRoutes(emailHandlers.Routes),
		handlers.WithWebhookRoutes(webhookHandlers.Routes),
	)
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
		serverLogger.Info("hopehand api listening")
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

// newProviderRegistry builds the card, wallet, and redirect adapters and keys
// them by provider. Sandbox endpoints are used outside production.
func newProviderRegistry(cfg config.Config, logger *zap.Logger) (*payments.Registry, error) {
	if strings.TrimSpace(cfg.PSP.StripeAPIKey) == "" {
		return nil, errors.New("stripe api key is required")
	}
	if strings.TrimSpace(cfg.PSP.PayPalClientID) == "" || strings.TrimSpace(cfg.PSP.PayPalSecret) == "" {
		return nil, errors.New("paypal client credentials are required")
	}
	if strings.TrimSpace(cfg.PSP.NetopiaPublicKey) == "" || strings.TrimSpace(cfg.PSP.NetopiaPrivateKey) == "" {
		return nil, errors.New("netopia key pair is required")
	}

	stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
		APIKey: cfg.PSP.StripeAPIKey,
		Logger: newEventLogger(logger.Named("stripe")),
		Clock:  time.Now,
	})
	if err != nil {
		return nil, err
	}

	paypalBase := payments.PayPalSandboxBaseURL
	netopiaBase := payments.NetopiaSandboxBaseURL
	if cfg.App.IsProduction() {
		paypalBase = payments.PayPalLiveBaseURL
		netopiaBase = payments.NetopiaLiveBaseURL
	}

	paypalProvider, err := payments.NewPayPalProvider(payments.PayPalProviderConfig{
		ClientID:     cfg.PSP.PayPalClientID,
		ClientSecret: cfg.PSP.PayPalSecret,
		BaseURL:      paypalBase,
		Logger:       newEventLogger(logger.Named("paypal")),
	})
	if err != nil {
		return nil, err
	}

	netopiaProvider, err := payments.NewNetopiaProvider(payments.NetopiaProviderConfig{
		PublicKey:  cfg.PSP.NetopiaPublicKey,
		PrivateKey: cfg.PSP.NetopiaPrivateKey,
		BaseURL:    netopiaBase,
		Logger:     newEventLogger(logger.Named("netopia")),
	})
	if err != nil {
		return nil, err
	}

	return payments.NewRegistry(map[domain.PaymentProvider]payments.Provider{
		domain.ProviderCard:     stripeProvider,
		domain.ProviderWallet:   paypalProvider,
		domain.ProviderRedirect: netopiaProvider,
	})
}

func newEventLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug("event log", zFields...)
	}
}

func donationReturnURL(cfg config.Config) string {
	return strings.TrimRight(strings.TrimSpace(cfg.App.BaseURL), "/") + "/donations/return"
}

func confirmationURL(cfg config.Config) string {
	return strings.TrimRight(strings.TrimSpace(cfg.App.BaseURL), "/") + "/webhooks/netopia"
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.App.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func newSystemService(ctx context.Context, client *firestore.Client, fetcher *secrets.Fetcher, topic *pubsub.Topic, build services.BuildInfo) (services.SystemService, error) {
	checks := make([]repositories.DependencyCheck, 0, 4)
	if client != nil {
		c := client
		checks = append(checks, repositories.DependencyCheck{
			Name:    "firestore",
			Timeout: 1500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				iter := c.Collections(ctx)
				_, err := iter.Next()
				if errors.Is(err, iterator.Done) {
					return nil
				}
				return err
			},
		})
	}
	if fetcher != nil {
		const secretHealthReference = "secret://system/healthz?version=latest"
		checks = append(checks, repositories.DependencyCheck{
			Name:    "secretManager",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				_, err := fetcher.Resolve(ctx, secretHealthReference)
				if err == nil {
					return nil
				}
				if st, ok := status.FromError(err); ok {
					switch st.Code() {
					case codes.NotFound:
						return nil
					}
				}
				return err
			},
		})
	}
	if topic != nil {
		t := topic
		checks = append(checks, repositories.DependencyCheck{
			Name:    "pubsub",
			Timeout: 1500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				exists, err := t.Exists(ctx)
				if err != nil {
					return err
				}
				if !exists {
					return fmt.Errorf("topic %s does not exist", t.ID())
				}
				return nil
			},
		})
	}
	if len(checks) == 0 {
		return nil, errors.New("health: no dependency checks configured")
	}
	repo, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return nil, err
	}
	return services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: repo,
		Clock:            time.Now,
		Build:            build,
	})
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func eventsProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firestore.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firebase.ProjectID)
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

	envLabel := strings.ToLower(lookup("API_APP_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}
	credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE")

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists the config fields that must resolve to non-empty
// values. Each entry is conditional on the operator having configured the
// corresponding environment variable at all.
func requiredSecretNames(env map[string]string) []string {
	if env == nil {
		return nil
	}
	required := make([]string, 0, 4)
	if strings.TrimSpace(env["API_PSP_STRIPE_API_KEY"]) != "" {
		required = append(required, "PSP.StripeAPIKey")
	}
	if strings.TrimSpace(env["API_PSP_PAYPAL_SECRET"]) != "" {
		required = append(required, "PSP.PayPalSecret")
	}
	if strings.TrimSpace(env["API_PSP_NETOPIA_PRIVATE_KEY"]) != "" {
		required = append(required, "PSP.NetopiaPrivateKey")
	}
	if strings.TrimSpace(env["API_SMTP_PASSWORD"]) != "" {
		required = append(required, "SMTP.Password")
	}
	return required
}
