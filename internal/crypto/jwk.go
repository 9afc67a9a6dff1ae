package crypto

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"time"
)

// WellKnownJWKSPath is where an identity provider publishes its public
// keys, relative to its canonical origin.
const WellKnownJWKSPath = "/.well-known/jwks.json"

// ErrKeyNotFound indicates the issuer's key set holds no key with the
// requested ID. Distinct from transport failures so the verifier can
// treat it as a signature problem rather than an infrastructure one.
var ErrKeyNotFound = errors.New("crypto: key not found")

// KeyProvider resolves an issuer's verification key by key ID.
type KeyProvider interface {
	VerificationKey(ctx context.Context, issuer, kid string) (*rsa.PublicKey, error)
}

// JWKSFetcher fetches and caches issuer key sets from their well-known
// endpoints. It is how a relying party obtains IdP verification keys
// without any synchronous per-assertion call to the IdP.
type JWKSFetcher struct {
	cache      map[string]*cachedJWKS
	mu         sync.RWMutex
	httpClient *http.Client
	cacheTTL   time.Duration
}

type cachedJWKS struct {
	jwks      JWKS
	fetchedAt time.Time
}

// NewJWKSFetcher creates a JWKS fetcher with caching.
func NewJWKSFetcher(cacheTTL time.Duration) *JWKSFetcher {
	return &JWKSFetcher{
		cache: make(map[string]*cachedJWKS),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		cacheTTL: cacheTTL,
	}
}

// VerificationKey resolves the RS256 verification key for (issuer, kid).
// On an unknown kid it refetches once, so key rotation at the IdP takes
// effect without waiting out the cache TTL.
func (f *JWKSFetcher) VerificationKey(ctx context.Context, issuer, kid string) (*rsa.PublicKey, error) {
	jwks, err := f.fetch(ctx, issuer, false)
	if err != nil {
		return nil, err
	}

	key, err := jwks.KeyByID(kid)
	if err != nil {
		jwks, err = f.fetch(ctx, issuer, true)
		if err != nil {
			return nil, err
		}
		key, err = jwks.KeyByID(kid)
		if err != nil {
			return nil, err
		}
	}

	return key.ToRSAPublicKey()
}

// fetch retrieves the issuer's JWKS, serving from cache unless force is
// set or the cached copy has aged out.
func (f *JWKSFetcher) fetch(ctx context.Context, issuer string, force bool) (*JWKS, error) {
	if !force {
		f.mu.RLock()
		if cached, exists := f.cache[issuer]; exists {
			if time.Since(cached.fetchedAt) < f.cacheTTL {
				jwks := cached.jwks
				f.mu.RUnlock()
				return &jwks, nil
			}
		}
		f.mu.RUnlock()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, issuer+WellKnownJWKSPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build JWKS request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read JWKS response: %w", err)
	}

	var jwks JWKS
	if err := json.Unmarshal(body, &jwks); err != nil {
		return nil, fmt.Errorf("failed to parse JWKS: %w", err)
	}

	f.mu.Lock()
	f.cache[issuer] = &cachedJWKS{
		jwks:      jwks,
		fetchedAt: time.Now(),
	}
	f.mu.Unlock()

	return &jwks, nil
}

// KeyByID finds a key in the JWKS by key ID.
func (jwks *JWKS) KeyByID(kid string) (*JWK, error) {
	for _, key := range jwks.Keys {
		if key.Kid == kid {
			return &key, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
}

// ToRSAPublicKey converts the JWK to an RSA public key.
func (jwk *JWK) ToRSAPublicKey() (*rsa.PublicKey, error) {
	if jwk.Kty != "RSA" {
		return nil, fmt.Errorf("unsupported key type: %s", jwk.Kty)
	}
	if jwk.N == "" || jwk.E == "" {
		return nil, errors.New("missing RSA key parameters")
	}

	nBytes, err := base64.RawURLEncoding.DecodeString(jwk.N)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}

	eBytes, err := base64.RawURLEncoding.DecodeString(jwk.E)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	n := new(big.Int).SetBytes(nBytes)
	e := 0
	for _, b := range eBytes {
		e = e*256 + int(b)
	}

	return &rsa.PublicKey{N: n, E: e}, nil
}
