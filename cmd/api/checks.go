package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/stockline/api/internal/platform/secrets"
	"github.com/stockline/api/internal/repositories"
)

// healthSecretRef is probed to prove Secret Manager answers. NotFound still counts as up.
const healthSecretRef = "secret://system-healthz"

func memoryChecks() []repositories.DependencyCheck {
	return []repositories.DependencyCheck{{Name: "memory", Check: func(context.Context) error { return nil }}}
}

// firestoreChecks probes each configured dependency. A nil topic or fetcher is skipped.
func firestoreChecks(client *firestore.Client, fetcher *secrets.Fetcher, topic *pubsub.Topic, bucket *cloudstorage.BucketHandle) []repositories.DependencyCheck {
	var checks []repositories.DependencyCheck
	add := func(name string, timeout time.Duration, check func(context.Context) error) {
		checks = append(checks, repositories.DependencyCheck{Name: name, Timeout: timeout, Check: check})
	}

	if client != nil {
		add("firestore", 1500*time.Millisecond, func(ctx context.Context) error {
			_, err := client.Collections(ctx).Next()
			if errors.Is(err, iterator.Done) {
				return nil
			}
			return err
		})
	}
	if fetcher != nil {
		add("secretManager", time.Second, func(ctx context.Context) error {
			if _, err := fetcher.Resolve(ctx, healthSecretRef); err != nil && status.Code(err) != codes.NotFound {
				return err
			}
			return nil
		})
	}
	if topic != nil {
		add("pubsub", time.Second, func(ctx context.Context) error {
			ok, err := topic.Exists(ctx)
			switch {
			case err != nil:
				return err
			case !ok:
				return fmt.Errorf("topic %s not found", topic.ID())
			}
			return nil
		})
	}
	if bucket != nil {
		add("storage", time.Second, func(ctx context.Context) error {
			_, err := bucket.Attrs(ctx)
			return err
		})
	}
	return checks
}
