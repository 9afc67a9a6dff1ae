package crypto

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
	"sync"
	"time"
)

// KeySet manages the identity provider's RSA signing key.
type KeySet struct {
	key       *rsa.PrivateKey
	keyID     string
	createdAt time.Time
	mu        sync.RWMutex
}

// NewKeySet generates a fresh 2048-bit RSA key set.
func NewKeySet() (*KeySet, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}

	return &KeySet{
		key:       key,
		keyID:     keyIDFor(&key.PublicKey),
		createdAt: time.Now(),
	}, nil
}

// LoadKeySetPEM restores a key set from a PKCS#8 or PKCS#1 PEM block.
func LoadKeySetPEM(pemData []byte) (*KeySet, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, errors.New("invalid PEM private key")
	}

	var key *rsa.PrivateKey
	switch block.Type {
	case "RSA PRIVATE KEY":
		parsed, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		key = parsed
	case "PRIVATE KEY":
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		rsaKey, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("unsupported private key type")
		}
		key = rsaKey
	default:
		return nil, fmt.Errorf("unsupported private key type %s", block.Type)
	}

	return &KeySet{
		key:       key,
		keyID:     keyIDFor(&key.PublicKey),
		createdAt: time.Now(),
	}, nil
}

// LoadOrCreateKeySet loads the key set from path, generating and saving a
// new one when the file does not exist. Restarting the IdP must not
// invalidate assertions already in flight.
func LoadOrCreateKeySet(path string) (*KeySet, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return LoadKeySetPEM(data)
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	ks, err := NewKeySet()
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, ks.PrivatePEM(), 0600); err != nil {
		return nil, fmt.Errorf("failed to save key file: %w", err)
	}
	return ks, nil
}

// PrivatePEM encodes the private key as a PKCS#8 PEM block.
func (ks *KeySet) PrivatePEM() []byte {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	der, _ := x509.MarshalPKCS8PrivateKey(ks.key)
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
}

// PrivateKey returns the current signing key.
func (ks *KeySet) PrivateKey() *rsa.PrivateKey {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return ks.key
}

// PublicKey returns the current verification key.
func (ks *KeySet) PublicKey() *rsa.PublicKey {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return &ks.key.PublicKey
}

// KeyID returns the current key identifier.
func (ks *KeySet) KeyID() string {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return ks.keyID
}

// Rotate generates a new signing key. Relying parties pick the new key up
// through the published JWKS; assertions signed with the old key fail
// verification from this point on.
func (ks *KeySet) Rotate() error {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return fmt.Errorf("failed to generate RSA key: %w", err)
	}

	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.key = key
	ks.keyID = keyIDFor(&key.PublicKey)
	ks.createdAt = time.Now()
	return nil
}

// CreatedAt returns when the current key was created or loaded.
func (ks *KeySet) CreatedAt() time.Time {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return ks.createdAt
}

// VerificationKey resolves the verification key by key ID, implementing
// KeyProvider for closed deployments and tests where the relying party
// holds the IdP key set directly. The issuer argument is ignored.
func (ks *KeySet) VerificationKey(ctx context.Context, issuer, kid string) (*rsa.PublicKey, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	if kid != ks.keyID {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
	}
	return &ks.key.PublicKey, nil
}

// JWK represents a JSON Web Key (RSA signature keys only).
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use,omitempty"`
	Kid string `json:"kid,omitempty"`
	Alg string `json:"alg,omitempty"`
	N   string `json:"n,omitempty"` // Modulus
	E   string `json:"e,omitempty"` // Exponent
}

// JWKS represents a JSON Web Key Set.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// PublicJWKS returns the public keys in JWKS format for the well-known
// endpoint.
func (ks *KeySet) PublicJWKS() JWKS {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	return JWKS{Keys: []JWK{jwkFor(&ks.key.PublicKey, ks.keyID)}}
}

func jwkFor(pub *rsa.PublicKey, kid string) JWK {
	return JWK{
		Kty: "RSA",
		Use: "sig",
		Kid: kid,
		Alg: "RS256",
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}

// keyIDFor derives a stable key identifier from the JWK thumbprint
// (RFC 7638), so a key reloaded from disk keeps its ID.
func keyIDFor(pub *rsa.PublicKey) string {
	jwk := jwkFor(pub, "")
	canonical := map[string]string{
		"e":   jwk.E,
		"kty": jwk.Kty,
		"n":   jwk.N,
	}
	data, _ := json.Marshal(canonical)
	hash := sha256.Sum256(data)
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// RandomHex returns n cryptographically random bytes, hex-encoded.
func RandomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
