package crypto

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeySetPEMRoundTrip(t *testing.T) {
	ks, err := NewKeySet()
	require.NoError(t, err)

	restored, err := LoadKeySetPEM(ks.PrivatePEM())
	require.NoError(t, err)

	// The key ID is derived from the key material, so it survives a
	// save/load cycle.
	assert.Equal(t, ks.KeyID(), restored.KeyID())
	assert.Equal(t, ks.PublicKey().N, restored.PublicKey().N)
}

func TestLoadOrCreateKeySet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idp.pem")

	first, err := LoadOrCreateKeySet(path)
	require.NoError(t, err)

	second, err := LoadOrCreateKeySet(path)
	require.NoError(t, err)

	assert.Equal(t, first.KeyID(), second.KeyID())
}

func TestRotateChangesKeyID(t *testing.T) {
	ks, err := NewKeySet()
	require.NoError(t, err)

	before := ks.KeyID()
	require.NoError(t, ks.Rotate())
	assert.NotEqual(t, before, ks.KeyID())
}

func TestMintAndVerify(t *testing.T) {
	ks, err := NewKeySet()
	require.NoError(t, err)

	signer := NewSigner(ks, "https://idp.example", 10*time.Minute)
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	signer.SetClock(func() time.Time { return issued })

	token, err := signer.Mint("alice@example.com", "https://rp.example:8443")
	require.NoError(t, err)

	issuer, kid, err := PeekAssertion(token)
	require.NoError(t, err)
	assert.Equal(t, "https://idp.example", issuer)
	assert.Equal(t, ks.KeyID(), kid)

	claims, err := VerifyAssertion(token, ks.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, "https://rp.example:8443", claims.Origin)
	assert.Equal(t, "https://idp.example", claims.Issuer)
	assert.True(t, claims.IssuedAt.Equal(issued))
	assert.True(t, claims.ExpiresAt.Equal(issued.Add(10*time.Minute)))
	assert.Len(t, claims.Nonce, 32) // 16 random bytes, hex
}

func TestVerifyAssertionWrongKey(t *testing.T) {
	ks, err := NewKeySet()
	require.NoError(t, err)
	other, err := NewKeySet()
	require.NoError(t, err)

	signer := NewSigner(ks, "https://idp.example", 10*time.Minute)
	token, err := signer.Mint("alice@example.com", "https://rp.example")
	require.NoError(t, err)

	_, err = VerifyAssertion(token, other.PublicKey())
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestVerifyAssertionMalformed(t *testing.T) {
	ks, err := NewKeySet()
	require.NoError(t, err)

	_, _, err = PeekAssertion("not-a-jwt")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = VerifyAssertion("still.not.valid", ks.PublicKey())
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestJWKSRoundTrip(t *testing.T) {
	ks, err := NewKeySet()
	require.NoError(t, err)

	jwks := ks.PublicJWKS()
	require.Len(t, jwks.Keys, 1)
	assert.Equal(t, "RSA", jwks.Keys[0].Kty)
	assert.Equal(t, "RS256", jwks.Keys[0].Alg)
	assert.Equal(t, ks.KeyID(), jwks.Keys[0].Kid)

	// Survive serialization the way the well-known endpoint emits it.
	data, err := json.Marshal(jwks)
	require.NoError(t, err)
	var parsed JWKS
	require.NoError(t, json.Unmarshal(data, &parsed))

	key, err := parsed.KeyByID(ks.KeyID())
	require.NoError(t, err)
	pub, err := key.ToRSAPublicKey()
	require.NoError(t, err)
	assert.Equal(t, ks.PublicKey().N, pub.N)
	assert.Equal(t, ks.PublicKey().E, pub.E)

	_, err = parsed.KeyByID("missing")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestKeySetAsKeyProvider(t *testing.T) {
	ks, err := NewKeySet()
	require.NoError(t, err)

	pub, err := ks.VerificationKey(context.Background(), "https://idp.example", ks.KeyID())
	require.NoError(t, err)
	assert.Equal(t, ks.PublicKey(), pub)

	_, err = ks.VerificationKey(context.Background(), "https://idp.example", "other")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}
