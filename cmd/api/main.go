// Command api serves the Stockline inventory HTTP API.
package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/stockline/api/internal/di"
	"github.com/stockline/api/internal/handlers"
	"github.com/stockline/api/internal/platform/auth"
	"github.com/stockline/api/internal/platform/barcode"
	"github.com/stockline/api/internal/platform/config"
	"github.com/stockline/api/internal/platform/idempotency"
	"github.com/stockline/api/internal/platform/observability"
	platformstorage "github.com/stockline/api/internal/platform/storage"
	"github.com/stockline/api/internal/platform/warehouse"
	"github.com/stockline/api/internal/services"
)

const (
	shutdownGrace     = 10 * time.Second
	closeTimeout      = 5 * time.Second
	sweepRunTimeout   = time.Minute
	defaultVersion    = "dev"
	defaultCommitSHA  = "unknown"
	defaultDeployment = "local"
)

func main() {
	base, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	logger := base.Named("api")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(observability.WithLogger(ctx, logger), logger)
	stop()
	if err != nil {
		logger.Error("api stopped", zap.Error(err))
		_ = base.Sync()
		os.Exit(1)
	}
	_ = base.Sync()
}

// run wires every dependency, serves until ctx ends and then drains in-flight requests.
func run(ctx context.Context, logger *zap.Logger) error {
	startedAt := time.Now().UTC()

	env, err := config.EnvironmentValues()
	if err != nil {
		return fmt.Errorf("read environment: %w", err)
	}
	fetcher, err := newSecretFetcher(ctx, logger, env)
	if err != nil {
		return fmt.Errorf("secret fetcher: %w", err)
	}
	defer closeQuietly(logger, "secret fetcher", fetcher.Close)

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(env)...),
	)
	var missing *config.MissingSecretsError
	if errors.As(err, &missing) {
		logger.Error("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	build := buildInfo(env, cfg, startedAt)
	collab := di.Collaborators{Logger: logger, Build: build, Clock: time.Now}

	be, err := openBackend(ctx, cfg, fetcher, logger, &collab)
	if err != nil {
		return err
	}
	defer be.close()

	if err := attachCollaborators(ctx, cfg, logger, &collab); err != nil {
		return err
	}

	container, err := di.NewContainer(ctx, cfg, be.registry, collab)
	if err != nil {
		return fmt.Errorf("services: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		closeQuietly(logger, "repositories", func() error { return container.Close(closeCtx) })
	}()

	router, err := newRouter(ctx, cfg, logger, build, container.Services, be.idempotency)
	if err != nil {
		return err
	}
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("stockline api listening", zap.String("addr", server.Addr), zap.String("backend", cfg.Firestore.Backend))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down; draining requests")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if every := cfg.Idempotency.CleanupInterval; every > 0 {
		g.Go(func() error {
			sweepIdempotency(gctx, logger.Named("idempotency"), be.idempotency, every, cfg.Idempotency.CleanupBatchSize)
			return nil
		})
	}
	return g.Wait()
}

// attachCollaborators adds the clients both backends share.
func attachCollaborators(ctx context.Context, cfg config.Config, logger *zap.Logger, collab *di.Collaborators) error {
	signer, err := newUploadSigner(ctx, cfg.Storage)
	switch {
	case err != nil:
		return fmt.Errorf("storage signer: %w", err)
	case signer == nil:
		logger.Warn("storage signer not configured; upload urls disabled")
	default:
		client, err := platformstorage.NewClient(signer)
		if err != nil {
			return fmt.Errorf("signed url client: %w", err)
		}
		collab.Signer = client
	}

	warehouses, err := warehouse.NewClient(cfg.Warehouse)
	if err != nil {
		return fmt.Errorf("warehouse client: %w", err)
	}
	collab.Warehouses = warehouses
	collab.Barcodes = barcode.NewGenerator()
	collab.Metrics = observability.NewMutationRecorder(nil, logger.Named("metrics"))
	return nil
}

func newRouter(ctx context.Context, cfg config.Config, logger *zap.Logger, build services.BuildInfo, svc di.Services, store idempotency.Store) (http.Handler, error) {
	verifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		return nil, fmt.Errorf("firebase verifier: %w", err)
	}
	projectID := cmp.Or(strings.TrimSpace(cfg.Firebase.ProjectID), strings.TrimSpace(cfg.Firestore.ProjectID))
	httpLogger := logger.Named("http")

	products := handlers.NewProductHandlers(svc.Products, svc.Queries)
	inventory := handlers.NewInventoryHandlers(svc.Queries, svc.Inventory,
		handlers.WithExportRateLimit(cfg.Inventory.ExportRateLimit, cfg.Inventory.ExportRateWindow),
	)
	abc := handlers.NewABCHandlers(svc.ABC)
	routes := []handlers.RouteRegistrar{
		products.Routes,
		inventory.Routes,
		handlers.NewSupplierHandlers(svc.Suppliers).Routes,
		abc.Routes,
		handlers.NewProductListHandlers(svc.Lists).Routes,
	}
	if svc.Assets != nil {
		routes = append(routes, handlers.NewAssetHandlers(svc.Assets).Routes)
	}

	opts := []handlers.Option{
		handlers.WithMiddlewares(
			observability.ContextLogger(httpLogger),
			observability.TraceMiddleware(projectID),
			observability.RecoveryMiddleware(httpLogger),
			observability.AccessLog(projectID),
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(
			handlers.WithHealthBuildInfo(build),
			handlers.WithHealthSystemService(svc.System),
		)),
		handlers.WithAPIMiddlewares(
			auth.NewAuthenticator(verifier).RequireFirebaseAuth(),
			idempotency.Middleware(store,
				idempotency.WithHeader(cfg.Idempotency.Header),
				idempotency.WithTTL(cfg.Idempotency.TTL),
				idempotency.WithMethods(http.MethodPost),
				idempotency.WithOptionalKey(),
				idempotency.WithLogger(logger.Named("idempotency")),
			),
		),
		handlers.WithRoutes(routes...),
	}
	if oidc := newOIDCMiddleware(logger.Named("auth"), cfg.Security.OIDC); oidc != nil {
		opts = append(opts,
			handlers.WithInternalMiddlewares(oidc),
			handlers.WithInternalRoutes(abc.InternalRoutes),
		)
	}
	return handlers.NewRouter(opts...), nil
}

// sweepIdempotency deletes expired idempotency records every interval until ctx ends.
func sweepIdempotency(ctx context.Context, logger *zap.Logger, store idempotency.Store, every time.Duration, batch int) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		runCtx, cancel := context.WithTimeout(ctx, sweepRunTimeout)
		removed, err := store.CleanupExpired(runCtx, time.Now().UTC(), batch)
		cancel()
		switch {
		case err != nil:
			logger.Error("idempotency cleanup error", zap.Error(err))
		case removed > 0:
			logger.Info("idempotency cleanup removed records", zap.Int("count", removed))
		}
	}
}

func newOIDCMiddleware(logger *zap.Logger, cfg config.OIDCConfig) func(http.Handler) http.Handler {
	if strings.TrimSpace(cfg.JWKSURL) == "" {
		return nil
	}
	policy := auth.OIDCPolicy{Audience: cfg.Audience, Issuers: cfg.Issuers, ServiceAccounts: cfg.ServiceAccounts}
	if strings.TrimSpace(policy.Audience) == "" {
		logger.Warn("OIDC audience not configured; internal routes will reject requests")
	}
	if len(policy.ServiceAccounts) == 0 {
		logger.Warn("no OIDC service account allow-list; any token for the audience is accepted")
	}

	printf := observability.NewPrintfAdapter(logger.Named("oidc"))
	validator := auth.NewOIDCValidator(
		auth.NewJWKSCache(cfg.JWKSURL, auth.WithJWKSLogger(printf)),
		policy,
		auth.WithOIDCLogger(printf),
		auth.WithOIDCMetrics(observability.NewAuthMetrics(nil, logger)),
	)
	return validator.Middleware()
}

// newUploadSigner prefers a key file and falls back to IAM signBlob. Neither set means no signer.
func newUploadSigner(ctx context.Context, cfg config.StorageConfig) (platformstorage.Signer, error) {
	if path := strings.TrimSpace(cfg.SignerCredentialsFile); path != "" {
		return platformstorage.LoadKeySigner(path)
	}
	if email := strings.TrimSpace(cfg.SignerServiceAccount); email != "" {
		return platformstorage.NewIAMSigner(ctx, email)
	}
	return nil, nil
}

func buildInfo(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	return services.BuildInfo{
		Version:     cmp.Or(strings.TrimSpace(env["API_BUILD_VERSION"]), defaultVersion),
		CommitSHA:   cmp.Or(strings.TrimSpace(env["API_BUILD_COMMIT_SHA"]), defaultCommitSHA),
		Environment: cmp.Or(strings.TrimSpace(cfg.Security.Environment), defaultDeployment),
		StartedAt:   started,
	}
}

func closeQuietly(logger *zap.Logger, what string, fn func() error) {
	if err := fn(); err != nil {
		logger.Warn(what+" close error", zap.Error(err))
	}
}
