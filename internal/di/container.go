package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/stockline/api/internal/platform/config"
	"github.com/stockline/api/internal/platform/observability"
	"github.com/stockline/api/internal/repositories"
	"github.com/stockline/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Products  services.ProductService
	Queries   services.QueryService
	Counters  services.CounterService
	Suppliers services.SupplierService
	ABC       services.ABCService
	Lists     services.ProductListService
	Inventory services.InventoryService
	// Assets is nil when no upload signer is configured.
	Assets services.AssetService
	System services.SystemService
}

// Collaborators are the external systems the services talk to. Only Warehouses and Barcodes
// are mandatory; the rest degrade to no-ops when nil.
type Collaborators struct {
	Warehouses services.WarehouseGateway
	Barcodes   services.BarcodeGenerator
	AssetStore services.AssetStore
	Signer     services.UploadSigner
	Events     services.ProductEventPublisher
	Metrics    services.MutationRecorder
	Logger     *zap.Logger
	Build      services.BuildInfo
	Clock      func() time.Time
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides the Firestore
// registry, while tests and local runs can supply the in-memory one.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, collab Collaborators) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	if collab.Warehouses == nil {
		return nil, errors.New("warehouse gateway is required")
	}
	if collab.Barcodes == nil {
		return nil, errors.New("barcode generator is required")
	}
	if collab.Logger == nil {
		collab.Logger = zap.NewNop()
	}
	if collab.Clock == nil {
		collab.Clock = time.Now
	}

	svc, err := buildServices(ctx, reg, cfg, collab)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, collab Collaborators) (Services, error) {
	var svc Services
	logger := collab.Logger

	counterSvc, err := services.NewCounterService(services.CounterServiceDeps{
		Repository:       reg.Counters(),
		ProductIDPrefix:  cfg.Inventory.ProductIDPrefix,
		ProductIDPadding: cfg.Inventory.ProductIDPadding,
		ProductIDCounter: cfg.Inventory.ProductIDCounter,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build counter service: %w", err)
	}
	svc.Counters = counterSvc

	productSvc, err := services.NewProductService(services.ProductServiceDeps{
		SharedItems: reg.SharedItems(),
		Variants:    reg.Variants(),
		UnitOfWork:  reg,
		Counters:    counterSvc,
		Assets:      collab.AssetStore,
		Barcodes:    collab.Barcodes,
		Events:      collab.Events,
		Metrics:     collab.Metrics,
		Clock:       collab.Clock,
		Logger:      observability.EventLogger(logger, "products"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build product service: %w", err)
	}
	svc.Products = productSvc

	querySvc, err := services.NewQueryService(services.QueryServiceDeps{
		SharedItems:  reg.SharedItems(),
		Variants:     reg.Variants(),
		Warehouses:   collab.Warehouses,
		DefaultLimit: cfg.Inventory.DefaultPageLimit,
		MaxLimit:     cfg.Inventory.MaxPageLimit,
		Logger:       observability.EventLogger(logger, "queries"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build query service: %w", err)
	}
	svc.Queries = querySvc

	supplierSvc, err := services.NewSupplierService(services.SupplierServiceDeps{
		Suppliers:  reg.Suppliers(),
		Variants:   reg.Variants(),
		UnitOfWork: reg,
		Metrics:    collab.Metrics,
		Clock:      collab.Clock,
		Logger:     observability.EventLogger(logger, "suppliers"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build supplier service: %w", err)
	}
	svc.Suppliers = supplierSvc

	abcSvc, err := services.NewABCService(services.ABCServiceDeps{
		Classifications: reg.ABCClassifications(),
		Variants:        reg.Variants(),
		InventoryLogs:   reg.InventoryLogs(),
		UnitOfWork:      reg,
		Metrics:         collab.Metrics,
		Clock:           collab.Clock,
		Logger:          observability.EventLogger(logger, "abc"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build abc service: %w", err)
	}
	svc.ABC = abcSvc

	listSvc, err := services.NewProductListService(services.ProductListServiceDeps{
		Lists:   reg.ProductLists(),
		Metrics: collab.Metrics,
		Clock:   collab.Clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build product list service: %w", err)
	}
	svc.Lists = listSvc

	inventorySvc, err := services.NewInventoryService(services.InventoryServiceDeps{
		Variants:      reg.Variants(),
		InventoryLogs: reg.InventoryLogs(),
		UnitOfWork:    reg,
		Warehouses:    collab.Warehouses,
		Events:        collab.Events,
		Metrics:       collab.Metrics,
		Clock:         collab.Clock,
		Logger:        observability.EventLogger(logger, "inventory"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build inventory service: %w", err)
	}
	svc.Inventory = inventorySvc

	if collab.Signer != nil {
		assetSvc, err := services.NewAssetService(services.AssetServiceDeps{
			Signer:      collab.Signer,
			SharedItems: reg.SharedItems(),
			Bucket:      cfg.Storage.AssetsBucket,
			Expiry:      cfg.Storage.UploadURLExpiry,
			Clock:       collab.Clock,
			Logger:      observability.EventLogger(logger, "assets"),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build asset service: %w", err)
		}
		svc.Assets = assetSvc
	}

	if healthRepo := reg.Health(); healthRepo != nil {
		build := collab.Build
		if build.Environment == "" {
			build.Environment = cfg.Security.Environment
		}
		if build.StartedAt.IsZero() {
			build.StartedAt = collab.Clock().UTC()
		}
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            collab.Clock,
			Build:            build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}
