package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

const (
	defaultUploadURLExpiry = 15 * time.Minute
	maxUploadURLExpiry     = time.Hour
)

var (
	errNoSigner           = errors.New("storage: signer is required")
	errInvalidBucket      = errors.New("storage: bucket name is required")
	errInvalidObject      = errors.New("storage: object name is required")
	errMethodNotAllowed   = errors.New("storage: HTTP method not allowed for uploads")
	errContentTypeMissing = errors.New("storage: content type is required for uploads")
	errContentTypeDenied  = errors.New("storage: content type not allowed")
	errMD5Required        = errors.New("storage: content MD5 is required for uploads")
	errMD5Invalid         = errors.New("storage: content MD5 must be base64 encoded")
	errExpiryTooLong      = errors.New("storage: expiry exceeds permitted maximum")
)

// Client issues V4 signed URLs that let a browser upload a product asset straight to the
// bucket. The signature pins content type, optional MD5, and the size range.
type Client struct {
	signer Signer
	now    func() time.Time
}

type ClientOption func(*Client)

func WithClock(clock func() time.Time) ClientOption {
	return func(c *Client) {
		if clock != nil {
			c.now = clock
		}
	}
}

func NewClient(signer Signer, opts ...ClientOption) (*Client, error) {
	if signer == nil || strings.TrimSpace(signer.Email()) == "" {
		return nil, errNoSigner
	}
	c := &Client{signer: signer, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// UploadOptions describe the upload a signed URL permits. Method defaults to PUT and
// ExpiresIn to fifteen minutes, capped at an hour.
type UploadOptions struct {
	Method              string
	ContentType         string
	ContentMD5          string
	RequireMD5          bool
	AllowedContentTypes []string
	MaxSize             int64
	ExpiresIn           time.Duration
}

// SignedURLResult carries the URL and the headers the uploader must send with it.
type SignedURLResult struct {
	URL       string
	Method    string
	ExpiresAt time.Time
	Headers   map[string]string
}

func (o UploadOptions) normalised() (UploadOptions, error) {
	o.Method = strings.ToUpper(strings.TrimSpace(o.Method))
	switch o.Method {
	case "":
		o.Method = http.MethodPut
	case http.MethodPut, http.MethodPost:
	default:
		return o, errMethodNotAllowed
	}

	o.ContentType = strings.TrimSpace(o.ContentType)
	if o.ContentType == "" {
		return o, errContentTypeMissing
	}
	if len(o.AllowedContentTypes) > 0 && !ContentTypeAllowed(o.ContentType, o.AllowedContentTypes) {
		return o, errContentTypeDenied
	}

	o.ContentMD5 = strings.TrimSpace(o.ContentMD5)
	switch {
	case o.ContentMD5 == "" && o.RequireMD5:
		return o, errMD5Required
	case o.ContentMD5 != "":
		if _, err := base64.StdEncoding.DecodeString(o.ContentMD5); err != nil {
			return o, errMD5Invalid
		}
	}

	if o.ExpiresIn <= 0 {
		o.ExpiresIn = defaultUploadURLExpiry
	}
	if o.ExpiresIn > maxUploadURLExpiry {
		return o, errExpiryTooLong
	}
	return o, nil
}

func (c *Client) SignedUploadURL(ctx context.Context, bucket, object string, opts UploadOptions) (SignedURLResult, error) {
	if c == nil {
		return SignedURLResult{}, errNoSigner
	}
	if bucket = strings.TrimSpace(bucket); bucket == "" {
		return SignedURLResult{}, errInvalidBucket
	}
	if object = strings.TrimSpace(object); object == "" {
		return SignedURLResult{}, errInvalidObject
	}
	opts, err := opts.normalised()
	if err != nil {
		return SignedURLResult{}, err
	}

	headers := map[string]string{"Content-Type": opts.ContentType}
	if opts.ContentMD5 != "" {
		headers["Content-MD5"] = opts.ContentMD5
	}
	var signedHeaders []string
	if opts.MaxSize > 0 {
		sizeRange := "0," + strconv.FormatInt(opts.MaxSize, 10)
		headers["x-goog-content-length-range"] = sizeRange
		signedHeaders = append(signedHeaders, "x-goog-content-length-range:"+sizeRange)
	}

	expiresAt := c.now().Add(opts.ExpiresIn)
	url, err := storage.SignedURL(bucket, object, &storage.SignedURLOptions{
		GoogleAccessID: c.signer.Email(),
		Scheme:         storage.SigningSchemeV4,
		Method:         opts.Method,
		ContentType:    opts.ContentType,
		MD5:            opts.ContentMD5,
		Headers:        signedHeaders,
		Expires:        expiresAt,
		SignBytes: func(payload []byte) ([]byte, error) {
			return c.signer.SignBytes(ctx, payload)
		},
	})
	if err != nil {
		return SignedURLResult{}, fmt.Errorf("storage: sign upload url: %w", err)
	}
	return SignedURLResult{URL: url, Method: opts.Method, ExpiresAt: expiresAt, Headers: headers}, nil
}

// ContentTypeAllowed matches the media type of contentType, ignoring parameters, against
// exact entries, "type/*" wildcards and "*".
func ContentTypeAllowed(contentType string, allowed []string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	major, _, _ := strings.Cut(mediaType, "/")
	for _, candidate := range allowed {
		switch candidate = strings.ToLower(strings.TrimSpace(candidate)); {
		case candidate == "*", candidate == mediaType, candidate == major+"/*":
			return true
		}
	}
	return false
}
