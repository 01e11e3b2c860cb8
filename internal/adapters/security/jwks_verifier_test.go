package security

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/shoplane/commerce-core/internal/domain"
)

const (
	testIssuer   = "https://id.test"
	testAudience = "commerce-core"
)

type memKeyCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (c *memKeyCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data[key], nil
}

func (c *memKeyCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		c.data = map[string][]byte{}
	}
	c.data[key] = value
	return nil
}

// jwksProvider is a fake identity provider: it serves a JWKS document and
// signs tokens with whichever key is currently active.
type jwksProvider struct {
	mu     sync.Mutex
	kid    string
	key    *rsa.PrivateKey
	server *httptest.Server
	hits   int
}

func newJWKSProvider(t *testing.T) *jwksProvider {
	t.Helper()
	p := &jwksProvider{}
	p.rotate(t, "key-1")
	p.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.hits++
		doc := map[string]any{
			"keys": []map[string]string{{
				"kid": p.kid,
				"kty": "RSA",
				"use": "sig",
				"n":   base64.RawURLEncoding.EncodeToString(p.key.PublicKey.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(p.key.PublicKey.E)).Bytes()),
			}},
		}
		_ = json.NewEncoder(w).Encode(doc)
	}))
	t.Cleanup(p.server.Close)
	return p
}

func (p *jwksProvider) rotate(t *testing.T, kid string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.kid = kid
	p.key = key
}

type claimsOverride func(jwt.MapClaims)

func (p *jwksProvider) sign(t *testing.T, overrides ...claimsOverride) string {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	claims := jwt.MapClaims{
		"sub":   "sub-123",
		"email": "user@example.com",
		"roles": []string{"customer"},
		"iss":   testIssuer,
		"aud":   testAudience,
		"exp":   time.Now().Add(time.Hour).Unix(),
		"iat":   time.Now().Unix(),
	}
	for _, o := range overrides {
		o(claims)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = p.kid
	signed, err := token.SignedString(p.key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func newVerifier(t *testing.T, p *jwksProvider) *JWKSVerifier {
	t.Helper()
	v, err := NewJWKSVerifier(VerifierConfig{
		JWKSURL:  p.server.URL,
		Issuer:   testIssuer,
		Audience: testAudience,
		CacheTTL: time.Minute,
	}, p.server.Client(), &memKeyCache{}, slog.Default())
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	return v
}

func TestVerifyValidToken(t *testing.T) {
	t.Parallel()

	p := newJWKSProvider(t)
	v := newVerifier(t, p)

	principal, err := v.Verify(context.Background(), p.sign(t))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if principal.Subject != "sub-123" || principal.Email != "user@example.com" {
		t.Fatalf("unexpected principal: %+v", principal)
	}
	if !principal.HasRole(domain.RoleCustomer) {
		t.Fatalf("expected customer role, got %v", principal.Roles)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	t.Parallel()

	p := newJWKSProvider(t)
	v := newVerifier(t, p)

	raw := p.sign(t, func(c jwt.MapClaims) {
		c["exp"] = time.Now().Add(-time.Hour).Unix()
	})
	if _, err := v.Verify(context.Background(), raw); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for expired token, got %v", err)
	}
}

func TestVerifyRejectsWrongAudienceAndIssuer(t *testing.T) {
	t.Parallel()

	p := newJWKSProvider(t)
	v := newVerifier(t, p)
	ctx := context.Background()

	raw := p.sign(t, func(c jwt.MapClaims) { c["aud"] = "someone-else" })
	if _, err := v.Verify(ctx, raw); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for wrong audience, got %v", err)
	}
	raw = p.sign(t, func(c jwt.MapClaims) { c["iss"] = "https://rogue.test" })
	if _, err := v.Verify(ctx, raw); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for wrong issuer, got %v", err)
	}
}

func TestVerifyRejectsGarbageToken(t *testing.T) {
	t.Parallel()

	p := newJWKSProvider(t)
	v := newVerifier(t, p)

	for _, raw := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := v.Verify(context.Background(), raw); !errors.Is(err, domain.ErrUnauthenticated) {
			t.Fatalf("expected ErrUnauthenticated for %q, got %v", raw, err)
		}
	}
}

func TestVerifyUnknownRolesAreDropped(t *testing.T) {
	t.Parallel()

	p := newJWKSProvider(t)
	v := newVerifier(t, p)

	raw := p.sign(t, func(c jwt.MapClaims) {
		c["roles"] = []string{"customer", "superuser", "root"}
	})
	principal, err := v.Verify(context.Background(), raw)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if len(principal.Roles) != 1 || principal.Roles[0] != domain.RoleCustomer {
		t.Fatalf("unknown role claims must not map to privileges: %v", principal.Roles)
	}
}

func TestVerifyRefetchesOnKeyRotation(t *testing.T) {
	t.Parallel()

	p := newJWKSProvider(t)
	v := newVerifier(t, p)
	ctx := context.Background()

	if _, err := v.Verify(ctx, p.sign(t)); err != nil {
		t.Fatalf("verify before rotation: %v", err)
	}

	// Rotate the provider's key. The cached key set is now stale; the
	// verifier must do one forced refetch and accept the new signature.
	p.rotate(t, "key-2")
	if _, err := v.Verify(ctx, p.sign(t)); err != nil {
		t.Fatalf("verify after rotation: %v", err)
	}
}

func TestVerifyUsesCachedKeysBetweenCalls(t *testing.T) {
	t.Parallel()

	p := newJWKSProvider(t)
	v := newVerifier(t, p)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := v.Verify(ctx, p.sign(t)); err != nil {
			t.Fatalf("verify %d: %v", i, err)
		}
	}
	p.mu.Lock()
	hits := p.hits
	p.mu.Unlock()
	if hits != 1 {
		t.Fatalf("expected a single jwks fetch within the TTL, got %d", hits)
	}
}
