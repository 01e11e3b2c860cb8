package security

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/shoplane/commerce-core/internal/domain"
	"github.com/shoplane/commerce-core/internal/ports"
)

const keyCacheKey = "identity:jwks"

// VerifierConfig binds the verifier to one trusted identity provider.
type VerifierConfig struct {
	JWKSURL  string
	Issuer   string
	Audience string
	CacheTTL time.Duration
}

// JWKSVerifier validates RS256 bearer tokens against the provider's published
// signing keys. Keys are cached with a bounded TTL (shared cache plus an
// in-process copy); on an unknown kid the verifier refetches once and retries
// before failing. Every failure path yields domain.ErrUnauthenticated --
// the verifier fails closed, never default-allow.
type JWKSVerifier struct {
	cfg    VerifierConfig
	client *http.Client
	cache  ports.KeyCache
	logger *slog.Logger

	mu        sync.Mutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

func NewJWKSVerifier(cfg VerifierConfig, client *http.Client, cache ports.KeyCache, logger *slog.Logger) (*JWKSVerifier, error) {
	if cfg.JWKSURL == "" || cfg.Issuer == "" || cfg.Audience == "" {
		return nil, errors.New("verifier requires jwks url, issuer and audience")
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 15 * time.Minute
	}
	if client == nil {
		client = &http.Client{Timeout: 8 * time.Second}
	}
	return &JWKSVerifier{
		cfg:    cfg,
		client: client,
		cache:  cache,
		logger: logger,
		keys:   map[string]*rsa.PublicKey{},
	}, nil
}

type tokenClaims struct {
	Email string   `json:"email"`
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

func (v *JWKSVerifier) Verify(ctx context.Context, rawToken string) (domain.Principal, error) {
	if rawToken == "" {
		return domain.Principal{}, fmt.Errorf("%w: missing bearer token", domain.ErrUnauthenticated)
	}

	principal, err := v.verifyOnce(ctx, rawToken, false)
	if err == nil {
		return principal, nil
	}
	// Key rotation shows up as an unknown kid or a bad signature against a
	// stale key set; one forced refetch is allowed before failing closed.
	if errors.Is(err, errUnknownKey) {
		principal, retryErr := v.verifyOnce(ctx, rawToken, true)
		if retryErr == nil {
			return principal, nil
		}
		err = retryErr
	}
	v.logger.WarnContext(ctx, "token verification failed",
		"module", "security",
		"layer", "adapter",
		"operation", "verify_token",
		"outcome", "failure",
		"error", err,
	)
	return domain.Principal{}, fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
}

var errUnknownKey = errors.New("signing key not found")

func (v *JWKSVerifier) verifyOnce(ctx context.Context, rawToken string, forceRefresh bool) (domain.Principal, error) {
	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(rawToken, claims, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		key, err := v.signingKey(ctx, kid, forceRefresh)
		if err != nil {
			return nil, err
		}
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.cfg.Issuer),
		jwt.WithAudience(v.cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30*time.Second),
	)
	if err != nil {
		if errors.Is(err, errUnknownKey) {
			return domain.Principal{}, errUnknownKey
		}
		return domain.Principal{}, err
	}
	if !parsed.Valid || claims.Subject == "" {
		return domain.Principal{}, errors.New("invalid token claims")
	}

	roles := make([]domain.Role, 0, len(claims.Roles))
	for _, raw := range claims.Roles {
		if role := domain.ParseRole(raw); role != domain.RoleAnonymous {
			roles = append(roles, role)
		}
	}

	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time.UTC()
	}
	return domain.Principal{
		Subject:   claims.Subject,
		Email:     claims.Email,
		Roles:     roles,
		ExpiresAt: expiresAt,
	}, nil
}

func (v *JWKSVerifier) signingKey(ctx context.Context, kid string, forceRefresh bool) (*rsa.PublicKey, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	fresh := time.Since(v.fetchedAt) < v.cfg.CacheTTL
	if !forceRefresh && fresh {
		if key, ok := v.keys[kid]; ok {
			return key, nil
		}
	}

	if err := v.refreshLocked(ctx, forceRefresh); err != nil {
		// A stale key set is still usable when the provider is unreachable
		// and the kid is known; anything else fails closed.
		if key, ok := v.keys[kid]; ok && !forceRefresh {
			return key, nil
		}
		return nil, err
	}

	if key, ok := v.keys[kid]; ok {
		return key, nil
	}
	return nil, errUnknownKey
}

// refreshLocked reloads the key set, preferring the shared cache unless the
// caller demands a provider roundtrip. Caller holds v.mu.
func (v *JWKSVerifier) refreshLocked(ctx context.Context, bypassCache bool) error {
	if !bypassCache && v.cache != nil {
		if raw, err := v.cache.Get(ctx, keyCacheKey); err == nil && len(raw) > 0 {
			if keys, err := parseJWKS(raw); err == nil && len(keys) > 0 {
				v.keys = keys
				v.fetchedAt = time.Now().UTC()
				return nil
			}
		}
	}

	raw, err := v.fetchJWKS(ctx)
	if err != nil {
		return err
	}
	keys, err := parseJWKS(raw)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return errors.New("provider returned empty key set")
	}
	v.keys = keys
	v.fetchedAt = time.Now().UTC()
	if v.cache != nil {
		if err := v.cache.Set(ctx, keyCacheKey, raw, v.cfg.CacheTTL); err != nil {
			v.logger.WarnContext(ctx, "jwks cache write failed",
				"module", "security",
				"layer", "adapter",
				"operation", "cache_jwks",
				"outcome", "failure",
				"error", err,
			)
		}
	}
	return nil
}

func (v *JWKSVerifier) fetchJWKS(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.cfg.JWKSURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build jwks request: %w", err)
	}
	res, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch jwks: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch jwks: unexpected status %d", res.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read jwks body: %w", err)
	}
	return raw, nil
}

type jwksDocument struct {
	Keys []struct {
		Kid string `json:"kid"`
		Kty string `json:"kty"`
		Use string `json:"use"`
		N   string `json:"n"`
		E   string `json:"e"`
	} `json:"keys"`
}

func parseJWKS(raw []byte) (map[string]*rsa.PublicKey, error) {
	var doc jwksDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse jwks: %w", err)
	}
	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || (k.Use != "" && k.Use != "sig") {
			continue
		}
		nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
		if err != nil {
			continue
		}
		eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
		if err != nil {
			continue
		}
		keys[k.Kid] = &rsa.PublicKey{
			N: new(big.Int).SetBytes(nBytes),
			E: int(new(big.Int).SetBytes(eBytes).Int64()),
		}
	}
	return keys, nil
}
