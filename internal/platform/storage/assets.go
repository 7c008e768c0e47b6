package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"
)

const defaultAssetConcurrency = 8

// ObjectAPI is the subset of object operations the asset store needs. Copier implements it.
type ObjectAPI interface {
	CopyObject(ctx context.Context, src, dst ObjectRef) error
	DeleteObject(ctx context.Context, ref ObjectRef) error
}

// AssetStore deletes and duplicates product images and documents referenced by URL.
type AssetStore struct {
	objects     ObjectAPI
	bucket      string
	concurrency int
	now         func() time.Time
}

// AssetStoreOption customises AssetStore behaviour.
type AssetStoreOption func(*AssetStore)

// WithAssetConcurrency caps parallel object operations.
func WithAssetConcurrency(n int) AssetStoreOption {
	return func(s *AssetStore) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithAssetClock injects the clock used to stamp copy ids.
func WithAssetClock(now func() time.Time) AssetStoreOption {
	return func(s *AssetStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewAssetStore constructs an AssetStore writing copies into bucket.
func NewAssetStore(objects ObjectAPI, bucket string, opts ...AssetStoreOption) (*AssetStore, error) {
	if objects == nil {
		return nil, errors.New("asset store: object api is required")
	}
	if bucket == "" {
		return nil, errors.New("asset store: bucket is required")
	}
	s := &AssetStore{
		objects:     objects,
		bucket:      bucket,
		concurrency: defaultAssetConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// DeleteImages removes every Cloud Storage object referenced by urls.
// URLs outside Cloud Storage are skipped.
func (s *AssetStore) DeleteImages(ctx context.Context, urls []string) error {
	if len(urls) == 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, raw := range urls {
		ref, err := ParseObjectURL(raw)
		if errors.Is(err, ErrForeignURL) {
			continue
		}
		if err != nil {
			return err
		}
		g.Go(func() error {
			if err := s.objects.DeleteObject(gctx, ref); err != nil {
				return fmt.Errorf("asset store: delete %s: %w", ref.URL(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// DuplicateImages copies each object under a fresh key and returns the new URLs in input order.
// URLs outside Cloud Storage are returned unchanged. When any copy fails the copies already
// made are removed before the error is returned.
func (s *AssetStore) DuplicateImages(ctx context.Context, urls []string) ([]string, error) {
	if len(urls) == 0 {
		return nil, nil
	}
	out := make([]string, len(urls))
	copied := make([]bool, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, raw := range urls {
		src, err := ParseObjectURL(raw)
		if errors.Is(err, ErrForeignURL) {
			out[i] = raw
			continue
		}
		if err != nil {
			return nil, err
		}
		object, err := BuildObjectPath(PurposeCopy, PathParams{AssetID: s.newID(), FileName: src.FileName()})
		if err != nil {
			return nil, err
		}
		dst := ObjectRef{Bucket: s.bucket, Object: object, Style: src.Style}
		g.Go(func() error {
			if err := s.objects.CopyObject(gctx, src, dst); err != nil {
				return fmt.Errorf("asset store: copy %s: %w", src.URL(), err)
			}
			out[i] = dst.URL()
			copied[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		var made []string
		for i, ok := range copied {
			if ok {
				made = append(made, out[i])
			}
		}
		// Copies made before the failure are removed even when ctx is already cancelled.
		_ = s.DeleteImages(context.WithoutCancel(ctx), made)
		return nil, err
	}
	return out, nil
}

func (s *AssetStore) newID() string {
	return ulid.MustNew(ulid.Timestamp(s.now()), ulid.DefaultEntropy()).String()
}
