package secrets

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	pkgsecrets "github.com/stridehq/sportiva-adapter/pkg/secrets"
)

// platformSuffix is the last path segment of every Sportiva secret name.
const platformSuffix = "sportiva"

// AWSResolver resolves per-club service-account credentials from AWS Secrets
// Manager, caching results locally to reduce API calls.
//
// Secret naming convention: {env}/{clubID}/sportiva
type AWSResolver struct {
	logger   *zap.Logger
	env      string
	provider pkgsecrets.Provider
	cache    *pkgsecrets.Cache[pkgsecrets.Credentials]
}

// NewAWSResolver constructs a per-club credential resolver.
func NewAWSResolver(
	logger *zap.Logger,
	env string,
	provider pkgsecrets.Provider,
	cache *pkgsecrets.Cache[pkgsecrets.Credentials],
) *AWSResolver {
	return &AWSResolver{
		logger:   logger,
		env:      env,
		provider: provider,
		cache:    cache,
	}
}

// secretName builds the AWS Secrets Manager key for a club.
func (r *AWSResolver) secretName(clubID string) string {
	return strings.ToLower(fmt.Sprintf("%s/%s/%s", r.env, clubID, platformSuffix))
}

// Resolve fetches or caches the service-account credentials for a club.
func (r *AWSResolver) Resolve(ctx context.Context, clubID string) (pkgsecrets.Credentials, error) {
	key := strings.ToLower(clubID)

	// --- check in-memory cache first ---
	if creds, ok := r.cache.Get(key); ok {
		return creds, nil
	}

	// --- fetch from AWS Secrets Manager ---
	secretName := r.secretName(clubID)
	secretMap, err := r.provider.GetSecret(ctx, secretName)
	if err != nil {
		r.logger.Warn("aws.secret_fetch_failed",
			zap.String("key", secretName),
			zap.Error(err))
		return pkgsecrets.Credentials{}, fmt.Errorf("resolve credentials for club %q: %w", clubID, err)
	}

	creds := pkgsecrets.Credentials{
		Username: secretMap["username"],
		Password: secretMap["password"],
	}
	if creds.Username == "" || creds.Password == "" {
		return pkgsecrets.Credentials{}, fmt.Errorf("secret %q missing username or password", secretName)
	}

	// --- cache locally for next time ---
	r.cache.Put(key, creds)

	r.logger.Info("aws.club_credentials_resolved",
		zap.String("club", clubID),
	)
	return creds, nil
}

// DiscoverClubs lists all club IDs that have secrets configured in AWS Secrets Manager.
// It searches for secrets matching the prefix "{env}/" and ending with "/sportiva",
// then extracts club IDs from the middle segment.
func (r *AWSResolver) DiscoverClubs(ctx context.Context) ([]string, error) {
	prefix := strings.ToLower(fmt.Sprintf("%s/", r.env))
	suffix := "/" + platformSuffix

	names, err := r.provider.ListSecrets(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("discover clubs: %w", err)
	}

	var clubs []string
	for _, name := range names {
		lower := strings.ToLower(name)
		if !strings.HasSuffix(lower, suffix) {
			continue
		}
		// Extract club ID: "{env}/{clubID}/sportiva" → clubID
		trimmed := strings.TrimPrefix(lower, prefix)
		trimmed = strings.TrimSuffix(trimmed, suffix)
		if trimmed != "" && !strings.Contains(trimmed, "/") {
			clubs = append(clubs, trimmed)
		}
	}

	r.logger.Info("aws.clubs_discovered",
		zap.Int("count", len(clubs)),
		zap.Strings("clubs", clubs),
	)
	return clubs, nil
}
