package main

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/stockline/api/internal/di"
	"github.com/stockline/api/internal/platform/config"
	pfirestore "github.com/stockline/api/internal/platform/firestore"
	"github.com/stockline/api/internal/platform/idempotency"
	"github.com/stockline/api/internal/platform/jobs"
	"github.com/stockline/api/internal/platform/secrets"
	platformstorage "github.com/stockline/api/internal/platform/storage"
	"github.com/stockline/api/internal/repositories"
	firestoreRepo "github.com/stockline/api/internal/repositories/firestore"
	"github.com/stockline/api/internal/repositories/memory"
)

// backend is the selected persistence plus whatever must be closed on exit.
type backend struct {
	registry    repositories.Registry
	idempotency idempotency.Store
	closers     []func()
}

func (be *backend) onClose(fn func()) { be.closers = append(be.closers, fn) }

func (be *backend) close() {
	for i := len(be.closers) - 1; i >= 0; i-- {
		be.closers[i]()
	}
}

func openBackend(ctx context.Context, cfg config.Config, fetcher *secrets.Fetcher, logger *zap.Logger, collab *di.Collaborators) (*backend, error) {
	if cfg.Firestore.Backend == config.StoreBackendMemory {
		logger.Warn("using in-memory store; data is lost on restart")
		health, err := repositories.NewDependencyHealthRepository(memoryChecks())
		if err != nil {
			return nil, fmt.Errorf("health repository: %w", err)
		}
		return &backend{registry: memory.NewRegistry(nil, health), idempotency: idempotency.NewMemoryStore()}, nil
	}

	be := &backend{}
	if err := be.openFirestore(ctx, cfg, fetcher, logger, collab); err != nil {
		be.close()
		return nil, err
	}
	return be, nil
}

func (be *backend) openFirestore(ctx context.Context, cfg config.Config, fetcher *secrets.Fetcher, logger *zap.Logger, collab *di.Collaborators) error {
	provider := pfirestore.NewProvider(cfg.Firestore)
	client, err := provider.Client(ctx)
	if err != nil {
		return fmt.Errorf("firestore client: %w", err)
	}

	storageClient, err := cloudstorage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("storage client: %w", err)
	}
	be.onClose(func() { closeQuietly(logger, "storage", storageClient.Close) })
	copier, err := platformstorage.NewCopier(storageClient)
	if err != nil {
		return fmt.Errorf("storage copier: %w", err)
	}
	if collab.AssetStore, err = platformstorage.NewAssetStore(copier, cfg.Storage.AssetsBucket); err != nil {
		return fmt.Errorf("asset store: %w", err)
	}

	topic, err := be.openEventTopic(ctx, cfg, logger, collab)
	if err != nil {
		return err
	}

	opts := []firestoreRepo.RegistryOption{
		firestoreRepo.WithTxOptions(
			pfirestore.WithTxAttempts(cfg.Inventory.TxAttempts),
			pfirestore.WithTxTimeout(cfg.Inventory.TxTimeout),
		),
	}
	checks := firestoreChecks(client, fetcher, topic, storageClient.Bucket(cfg.Storage.AssetsBucket))
	if health, err := repositories.NewDependencyHealthRepository(checks); err != nil {
		logger.Warn("dependency checks unavailable", zap.Error(err))
	} else {
		opts = append(opts, firestoreRepo.WithHealthRepository(health))
	}
	if be.registry, err = firestoreRepo.NewRegistry(provider, opts...); err != nil {
		return fmt.Errorf("firestore repositories: %w", err)
	}
	be.idempotency = idempotency.NewFirestoreStore(client,
		idempotency.WithTxOptions(pfirestore.WithTxAttempts(cfg.Inventory.TxAttempts)),
	)
	return nil
}

// openEventTopic returns nil when no product events topic is configured.
func (be *backend) openEventTopic(ctx context.Context, cfg config.Config, logger *zap.Logger, collab *di.Collaborators) (*pubsub.Topic, error) {
	name := strings.TrimSpace(cfg.PubSub.ProductEventsTopic)
	if name == "" {
		return nil, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}
	topic := client.Topic(name)
	be.onClose(func() {
		topic.Stop()
		closeQuietly(logger, "pubsub", client.Close)
	})
	publisher, err := jobs.NewPubSubProductEventPublisher(topic, jobs.WithEventSource(cfg.Security.Environment))
	if err != nil {
		return nil, fmt.Errorf("product event publisher: %w", err)
	}
	collab.Events = publisher
	return topic, nil
}
