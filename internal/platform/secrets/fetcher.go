package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultCacheTTL     = 10 * time.Minute
	defaultFallbackFile = ".secrets.local"
)

var newSecretManagerClient = func(ctx context.Context, opts ...option.ClientOption) (*secretmanager.Client, error) {
	return secretmanager.NewClient(ctx, opts...)
}

// SecretAccessor is the subset of the Secret Manager client the fetcher uses.
type SecretAccessor interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher resolves secret references such as the warehouse service API key. Values come from
// Secret Manager and are cached for a TTL so rotations propagate. When Secret Manager is not
// reachable or not permitted, a dotenv style fallback file serves local development.
type Fetcher struct {
	client     SecretAccessor
	ownsClient bool
	logger     *zap.Logger

	env      string
	project  string
	projects map[string]string
	pins     map[string]string
	retry    gax.CallOption
	ttl      time.Duration
	now      func() time.Time

	fallbackPath string
	fallback     func() (map[string]string, error)

	flight singleflight.Group
	mu     sync.RWMutex
	cache  map[string]cached

	latency metric.Float64Histogram
	lookups metric.Int64Counter
}

type cached struct {
	value     string
	expiresAt time.Time
}

type settings struct {
	logger     *zap.Logger
	env        string
	project    string
	projects   map[string]string
	pins       map[string]string
	fallback   string
	ttl        time.Duration
	backoff    gax.Backoff
	meter      metric.Meter
	client     SecretAccessor
	clientOpts []option.ClientOption
	now        func() time.Time
}

type Option func(*settings)

func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithEnvironment selects the entry of the project map and of "env:" version pins.
func WithEnvironment(env string) Option {
	return func(s *settings) { s.env = strings.ToLower(strings.TrimSpace(env)) }
}

func WithDefaultProject(projectID string) Option {
	return func(s *settings) { s.project = strings.TrimSpace(projectID) }
}

// WithProjectMap maps environments to the project holding their secrets.
func WithProjectMap(m map[string]string) Option {
	return func(s *settings) { s.projects = m }
}

// WithVersionPins maps secret names, optionally prefixed "env:", to versions used when a
// reference names none.
func WithVersionPins(pins map[string]string) Option {
	return func(s *settings) { s.pins = pins }
}

// WithFallbackFile sets the dotenv file consulted when Secret Manager is unavailable. Keys
// are secret names, with "NAME.VERSION" for a specific version.
func WithFallbackFile(path string) Option {
	return func(s *settings) { s.fallback = strings.TrimSpace(path) }
}

// WithCacheTTL bounds how long a resolved value is reused.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *settings) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithRetryBackoff(backoff gax.Backoff) Option {
	return func(s *settings) { s.backoff = backoff }
}

func WithMeter(m metric.Meter) Option {
	return func(s *settings) { s.meter = m }
}

func WithSecretManagerClient(client SecretAccessor) Option {
	return func(s *settings) { s.client = client }
}

func WithClientOptions(opts ...option.ClientOption) Option {
	return func(s *settings) { s.clientOpts = append(s.clientOpts, opts...) }
}

func withClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// NewFetcher builds a Fetcher. A Secret Manager client that cannot be created leaves the
// fetcher in fallback-only mode rather than failing.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	s := settings{
		logger:   zap.NewNop(),
		env:      "local",
		fallback: defaultFallbackFile,
		ttl:      defaultCacheTTL,
		backoff:  gax.Backoff{Initial: 100 * time.Millisecond, Max: 2 * time.Second, Multiplier: 2},
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	if s.meter == nil {
		s.meter = otel.GetMeterProvider().Meter("github.com/stockline/api/internal/platform/secrets")
	}

	f := &Fetcher{
		client:       s.client,
		logger:       s.logger,
		env:          s.env,
		project:      s.project,
		projects:     s.projects,
		pins:         s.pins,
		ttl:          s.ttl,
		now:          s.now,
		fallbackPath: s.fallback,
		cache:        make(map[string]cached),
		retry: gax.WithRetry(func() gax.Retryer {
			return gax.OnCodes([]codes.Code{codes.Unavailable, codes.ResourceExhausted}, s.backoff)
		}),
	}
	f.fallback = sync.OnceValues(f.readFallback)

	var err error
	if f.latency, err = s.meter.Float64Histogram("secrets.resolve.latency", metric.WithUnit("ms")); err != nil {
		s.logger.Warn("secrets: latency metric unavailable", zap.Error(err))
	}
	if f.lookups, err = s.meter.Int64Counter("secrets.resolve.count"); err != nil {
		s.logger.Warn("secrets: lookup metric unavailable", zap.Error(err))
	}

	if f.client == nil {
		client, err := newSecretManagerClient(ctx, s.clientOpts...)
		if err != nil {
			s.logger.Warn("secrets: secret manager unavailable, using fallback file only", zap.Error(err))
		} else {
			f.client = client
			f.ownsClient = true
		}
	}
	return f, nil
}

func (f *Fetcher) Close() error {
	if f.ownsClient && f.client != nil {
		return f.client.Close()
	}
	return nil
}

// Resolve returns the value behind ref.
func (f *Fetcher) Resolve(ctx context.Context, raw string) (string, error) {
	start := f.now()
	ref, err := ParseRef(raw)
	if err != nil {
		return "", err
	}
	version := f.version(ref)
	key := ref.Name + "#" + version

	f.mu.RLock()
	hit, ok := f.cache[key]
	f.mu.RUnlock()
	if ok && f.now().Before(hit.expiresAt) {
		f.observe(ctx, "cache", start)
		return hit.value, nil
	}

	v, err, _ := f.flight.Do(key, func() (any, error) {
		value, source, err := f.load(ctx, ref, version)
		if err != nil {
			return "", err
		}
		f.mu.Lock()
		f.cache[key] = cached{value: value, expiresAt: f.now().Add(f.ttl)}
		f.mu.Unlock()
		f.observe(ctx, source, start)
		return value, nil
	})
	if err != nil {
		f.observe(ctx, "error", start)
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops every cached version of ref.
func (f *Fetcher) Invalidate(raw string) {
	ref, err := ParseRef(raw)
	if err != nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for key := range f.cache {
		if strings.HasPrefix(key, ref.Name+"#") {
			delete(f.cache, key)
		}
	}
}

func (f *Fetcher) load(ctx context.Context, ref Ref, version string) (string, string, error) {
	project := f.projectFor(ref)
	if f.client != nil && project != "" {
		resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
			Name: ref.resource(project, version),
		}, f.retry)
		if err == nil {
			return string(resp.GetPayload().GetData()), "secret_manager", nil
		}
		if !fallbackAllowed(err) {
			return "", "", fmt.Errorf("secrets: access %s: %w", ref, err)
		}
		f.logger.Debug("secrets: secret manager refused, trying fallback", zap.String("secret", ref.Name), zap.Error(err))
	}

	values, err := f.fallback()
	if err != nil {
		return "", "", err
	}
	for _, key := range fallbackKeys(ref.Name, version) {
		if value, ok := values[key]; ok {
			return value, "fallback", nil
		}
	}
	return "", "", fmt.Errorf("secrets: %s not found in secret manager or %s", ref, f.fallbackPath)
}

func (f *Fetcher) version(ref Ref) string {
	if ref.Version != "" {
		return ref.Version
	}
	if pin := strings.TrimSpace(f.pins[f.env+":"+ref.Name]); pin != "" {
		return pin
	}
	if pin := strings.TrimSpace(f.pins[ref.Name]); pin != "" {
		return pin
	}
	return latestVersion
}

func (f *Fetcher) projectFor(ref Ref) string {
	if ref.Project != "" {
		return ref.Project
	}
	if id := strings.TrimSpace(f.projects[f.env]); id != "" {
		return id
	}
	return f.project
}

func (f *Fetcher) readFallback() (map[string]string, error) {
	if f.fallbackPath == "" {
		return map[string]string{}, nil
	}
	values, err := godotenv.Read(f.fallbackPath)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("secrets: read fallback %s: %w", f.fallbackPath, err)
	}
	return values, nil
}

// fallbackKeys lists dotenv keys for name, most specific first. Dotenv keys cannot hold
// hyphens, so those are also tried as underscores.
func fallbackKeys(name, version string) []string {
	names := []string{name}
	if alt := strings.ReplaceAll(name, "-", "_"); alt != name {
		names = append(names, alt)
	}
	keys := make([]string, 0, 2*len(names))
	for _, n := range names {
		keys = append(keys, n+"."+version)
	}
	return append(keys, names...)
}

func fallbackAllowed(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	}
	return false
}

func (f *Fetcher) observe(ctx context.Context, source string, start time.Time) {
	attrs := metric.WithAttributes(attribute.String("source", source))
	if f.latency != nil {
		f.latency.Record(ctx, float64(f.now().Sub(start))/float64(time.Millisecond), attrs)
	}
	if f.lookups != nil {
		f.lookups.Add(ctx, 1, attrs)
	}
}
