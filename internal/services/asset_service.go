package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	pstorage "github.com/stockline/api/internal/platform/storage"
	"github.com/stockline/api/internal/repositories"
)

const (
	defaultMaxImageSize        = int64(10 * 1024 * 1024) // 10 MiB
	defaultMaxDocSize          = int64(25 * 1024 * 1024) // 25 MiB
	assetLoggerEventValidation = "asset.upload.validate"
	assetLoggerEventIssued     = "asset.upload.issued"

	AssetKindImage = "image"
	AssetKindDoc   = "doc"
)

var (
	// ErrAssetInvalidInput indicates the caller provided an invalid argument.
	ErrAssetInvalidInput = errors.New("asset: invalid input")
	// ErrAssetUnavailable indicates signing is not configured or failed.
	ErrAssetUnavailable = errors.New("asset: signing unavailable")
)

// UploadSigner issues signed object upload URLs.
type UploadSigner interface {
	SignedUploadURL(ctx context.Context, bucket, object string, opts pstorage.UploadOptions) (pstorage.SignedURLResult, error)
}

// AssetServiceDeps wires dependencies for the asset service implementation.
type AssetServiceDeps struct {
	Signer      UploadSigner
	SharedItems repositories.SharedItemRepository
	Bucket      string
	Expiry      time.Duration
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type assetService struct {
	signer UploadSigner
	shared repositories.SharedItemRepository
	bucket string
	expiry time.Duration
	clock  func() time.Time
	newID  func() string
	logger eventLogger
}

type assetKindPolicy struct {
	purpose      pstorage.AssetPurpose
	contentTypes []string
	maxSize      int64
}

var assetKindPolicies = map[string]assetKindPolicy{
	AssetKindImage: {
		purpose:      pstorage.PurposeProductImage,
		contentTypes: []string{"image/png", "image/jpeg", "image/webp", "image/gif", "image/svg+xml"},
		maxSize:      defaultMaxImageSize,
	},
	AssetKindDoc: {
		purpose: pstorage.PurposeProductDoc,
		contentTypes: []string{
			"application/pdf",
			"text/csv",
			"text/plain",
			"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
			"image/*",
		},
		maxSize: defaultMaxDocSize,
	},
}

// NewAssetService constructs an AssetService backed by the provided dependencies.
func NewAssetService(deps AssetServiceDeps) (AssetService, error) {
	if deps.Signer == nil {
		return nil, errors.New("asset service: signer is required")
	}
	if deps.SharedItems == nil {
		return nil, errors.New("asset service: shared item repository is required")
	}
	bucket := strings.TrimSpace(deps.Bucket)
	if bucket == "" {
		return nil, errors.New("asset service: bucket is required")
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &assetService{
		signer: deps.Signer,
		shared: deps.SharedItems,
		bucket: bucket,
		expiry: deps.Expiry,
		clock:  utcClock(deps.Clock),
		newID:  idGen,
		logger: ensureLogger(deps.Logger),
	}, nil
}

// IssueUploadURL signs a PUT for a new product asset. The returned AssetURL is what the
// client stores in the product's images or docs once the upload finishes.
func (s *assetService) IssueUploadURL(ctx context.Context, cmd UploadURLCommand) (UploadURL, error) {
	params, err := validateUploadInput(cmd, s.clock)
	if err != nil {
		return UploadURL{}, err
	}
	s.logger(ctx, assetLoggerEventValidation, map[string]any{
		"sharedKey": params.sharedKey,
		"kind":      params.kind,
		"size":      params.size,
	})

	if _, err := s.shared.Get(ctx, params.sharedKey); err != nil {
		return UploadURL{}, mapRepositoryError(err)
	}

	object, err := pstorage.BuildObjectPath(params.policy.purpose, pstorage.PathParams{
		ProductKey: params.sharedKey,
		AssetID:    s.newID(),
		FileName:   params.fileName,
	})
	if err != nil {
		return UploadURL{}, fmt.Errorf("%w: %v", ErrAssetInvalidInput, err)
	}

	signed, err := s.signer.SignedUploadURL(ctx, s.bucket, object, pstorage.UploadOptions{
		Method:              "PUT",
		ContentType:         params.contentType,
		AllowedContentTypes: params.policy.contentTypes,
		MaxSize:             params.policy.maxSize,
		ExpiresIn:           s.expiry,
	})
	if err != nil {
		return UploadURL{}, fmt.Errorf("%w: %v", ErrAssetUnavailable, err)
	}

	ref := pstorage.ObjectRef{Bucket: s.bucket, Object: object, Style: pstorage.StylePath}
	s.logger(ctx, assetLoggerEventIssued, map[string]any{
		"sharedKey": params.sharedKey,
		"object":    object,
		"expiresAt": signed.ExpiresAt,
	})
	return UploadURL{
		URL:       signed.URL,
		Method:    signed.Method,
		Headers:   signed.Headers,
		ExpiresAt: signed.ExpiresAt,
		AssetURL:  ref.URL(),
	}, nil
}

type uploadParams struct {
	sharedKey   string
	kind        string
	policy      assetKindPolicy
	fileName    string
	contentType string
	size        int64
}

func validateUploadInput(cmd UploadURLCommand, clock func() time.Time) (uploadParams, error) {
	sharedKey := strings.TrimSpace(cmd.SharedKey)
	if sharedKey == "" {
		return uploadParams{}, fmt.Errorf("%w: product key is required", ErrAssetInvalidInput)
	}
	kind := strings.ToLower(strings.TrimSpace(cmd.Kind))
	if kind == "" {
		kind = AssetKindImage
	}
	policy, ok := assetKindPolicies[kind]
	if !ok {
		return uploadParams{}, fmt.Errorf("%w: asset kind %q not allowed", ErrAssetInvalidInput, cmd.Kind)
	}

	contentType := strings.ToLower(strings.TrimSpace(cmd.ContentType))
	if contentType == "" {
		return uploadParams{}, fmt.Errorf("%w: contentType is required", ErrAssetInvalidInput)
	}
	if !pstorage.ContentTypeAllowed(contentType, policy.contentTypes) {
		return uploadParams{}, fmt.Errorf("%w: contentType %q not allowed for kind %q", ErrAssetInvalidInput, contentType, kind)
	}

	if cmd.Size <= 0 {
		return uploadParams{}, fmt.Errorf("%w: size must be positive", ErrAssetInvalidInput)
	}
	if cmd.Size > policy.maxSize {
		return uploadParams{}, fmt.Errorf("%w: size exceeds maximum (%d)", ErrAssetInvalidInput, policy.maxSize)
	}

	fileName := path.Base(strings.TrimSpace(cmd.FileName))
	if fileName == "" || fileName == "." || fileName == "/" {
		fileName = fmt.Sprintf("%s_%d", kind, clock().UnixNano())
	}

	return uploadParams{
		sharedKey:   sharedKey,
		kind:        kind,
		policy:      policy,
		fileName:    fileName,
		contentType: contentType,
		size:        cmd.Size,
	}, nil
}
