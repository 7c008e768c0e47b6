package main

import (
	"cmp"
	"context"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/stockline/api/internal/platform/secrets"
)

const defaultSecretFallbackFile = ".secrets.local"

// newSecretFetcher reads its settings straight from env because the fetcher has to exist
// before config.Load can resolve secret references.
func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	get := func(key string) string { return strings.TrimSpace(env[key]) }

	opts := []secrets.Option{
		secrets.WithEnvironment(strings.ToLower(cmp.Or(get("API_SECURITY_ENVIRONMENT"), defaultDeployment))),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(cmp.Or(get("API_SECRET_FALLBACK_FILE"), defaultSecretFallbackFile)),
	}
	if project := cmp.Or(get("API_SECRETS_PROJECT_ID"), get("API_FIREBASE_PROJECT_ID")); project != "" {
		opts = append(opts, secrets.WithDefaultProject(project))
	}
	if projects := parsePairs(get("API_SECRET_PROJECT_IDS"), strings.ToLower); len(projects) > 0 {
		opts = append(opts, secrets.WithProjectMap(projects))
	}
	if pins := secretVersionPins(get("API_SECRET_VERSION_PINS")); len(pins) > 0 {
		opts = append(opts, secrets.WithVersionPins(pins))
	}
	if file := get("API_FIREBASE_CREDENTIALS_FILE"); file != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(file)))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists config fields that must resolve at startup. The warehouse key only
// counts when it is given as a secret reference.
func requiredSecretNames(env map[string]string) []string {
	var required []string
	if secrets.IsRef(env["WAREHOUSE_SERVICE_API_KEY"]) {
		required = append(required, "Warehouse.APIKey")
	}
	return required
}

// parsePairs reads "k1=v1,k2=v2", skipping entries that lack either half.
func parsePairs(raw string, normaliseKey func(string) string) map[string]string {
	out := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(entry, "=")
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if normaliseKey != nil {
			key = normaliseKey(key)
		}
		if ok && key != "" && value != "" {
			out[key] = value
		}
	}
	return out
}

// secretVersionPins reads "name=version" or "env:name=version". A key written as a secret
// reference is reduced to its name.
func secretVersionPins(raw string) map[string]string {
	pins := make(map[string]string)
	for key, version := range parsePairs(raw, nil) {
		var env string
		if !secrets.IsRef(key) {
			if before, after, ok := strings.Cut(key, ":"); ok && !strings.HasPrefix(after, "//") {
				env, key = strings.ToLower(strings.TrimSpace(before))+":", strings.TrimSpace(after)
			}
		}
		if secrets.IsRef(key) {
			ref, err := secrets.ParseRef(key)
			if err != nil {
				continue
			}
			key = ref.Name
		}
		pins[env+key] = version
	}
	return pins
}
