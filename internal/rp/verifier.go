// Package rp implements the relying-party side of the protocol: verifying
// assertions offline and guarding against replay.
package rp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ParleSec/LetsAuth/internal/crypto"
	"github.com/ParleSec/LetsAuth/internal/email"
	"github.com/ParleSec/LetsAuth/internal/origin"
	"github.com/ParleSec/LetsAuth/internal/store"
)

// Reason identifies why an assertion was rejected. All reasons fold into
// one user-visible failure; they stay distinct internally because they
// indicate different threat classes.
type Reason string

const (
	ReasonMalformed         Reason = "malformed_assertion"
	ReasonUnknownIssuer     Reason = "unknown_issuer"
	ReasonBadSignature      Reason = "bad_signature"
	ReasonInvalidEmail      Reason = "invalid_email"
	ReasonAudienceMismatch  Reason = "audience_mismatch"
	ReasonMalformedLifetime Reason = "malformed_lifetime"
	ReasonNotYetValid       Reason = "not_yet_valid"
	ReasonExpired           Reason = "expired"
	ReasonReplayed          Reason = "replayed_assertion"
)

// RejectedError is returned for every protocol-level assertion rejection.
type RejectedError struct {
	Reason Reason
}

func (e *RejectedError) Error() string {
	return "assertion rejected: " + string(e.Reason)
}

func reject(reason Reason) error {
	return &RejectedError{Reason: reason}
}

// Verifier validates assertions against this relying party's identity
// and consumes their nonces.
type Verifier struct {
	keys   crypto.KeyProvider
	ledger store.NonceLedger
	issuer string // expected canonical IdP origin
	origin string // this RP's own canonical origin
	skew   time.Duration
	now    func() time.Time
}

// NewVerifier creates a verifier trusting the IdP at issuerBaseURL, for a
// relying party served at ownBaseURL. Both URLs are canonicalized so the
// later equality checks compare like with like.
func NewVerifier(keys crypto.KeyProvider, ledger store.NonceLedger, issuerBaseURL, ownBaseURL string, skew time.Duration) (*Verifier, error) {
	issuer, err := origin.Canonicalize(issuerBaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid issuer base URL: %w", err)
	}
	own, err := origin.Canonicalize(ownBaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid own base URL: %w", err)
	}

	return &Verifier{
		keys:   keys,
		ledger: ledger,
		issuer: issuer,
		origin: own,
		skew:   skew,
		now:    time.Now,
	}, nil
}

// SetClock overrides the time source (useful for tests).
func (v *Verifier) SetClock(fn func() time.Time) {
	if fn != nil {
		v.now = fn
	}
}

// Verify validates the serialized assertion and, on success, returns the
// authenticated email address. Checks run in a fixed order, short-
// circuiting on the first failure: authenticity before any semantic
// field is trusted, and the nonce is consumed only after everything else
// has passed, so a forged or malformed assertion never burns a slot in
// the ledger.
func (v *Verifier) Verify(ctx context.Context, assertion string) (string, error) {
	issuer, kid, err := crypto.PeekAssertion(assertion)
	if err != nil {
		return "", reject(ReasonMalformed)
	}

	if issuer != v.issuer {
		return "", reject(ReasonUnknownIssuer)
	}

	key, err := v.keys.VerificationKey(ctx, issuer, kid)
	if err != nil {
		if errors.Is(err, crypto.ErrKeyNotFound) {
			return "", reject(ReasonBadSignature)
		}
		// Key distribution failure: fail closed, but retryable.
		return "", fmt.Errorf("%w: resolve verification key: %v", store.ErrUnavailable, err)
	}

	claims, err := crypto.VerifyAssertion(assertion, key)
	if err != nil {
		if errors.Is(err, crypto.ErrMalformed) {
			return "", reject(ReasonMalformed)
		}
		return "", reject(ReasonBadSignature)
	}

	if !email.Valid(claims.Email) {
		return "", reject(ReasonInvalidEmail)
	}

	if claims.Origin != v.origin {
		return "", reject(ReasonAudienceMismatch)
	}

	if !claims.IssuedAt.Before(claims.ExpiresAt) {
		return "", reject(ReasonMalformedLifetime)
	}

	now := v.now()
	if now.Before(claims.IssuedAt.Add(-v.skew)) {
		return "", reject(ReasonNotYetValid)
	}
	if now.After(claims.ExpiresAt.Add(v.skew)) {
		return "", reject(ReasonExpired)
	}

	added, err := v.ledger.AddIfAbsent(ctx, claims.Email, claims.Nonce)
	if err != nil {
		return "", err
	}
	if !added {
		return "", reject(ReasonReplayed)
	}

	// The nonce must outlive the assertion, or a forgotten nonce would
	// reopen the replay window.
	ttl := claims.ExpiresAt.Add(2 * v.skew).Sub(now)
	if err := v.ledger.ExtendTTL(ctx, claims.Email, ttl); err != nil {
		return "", err
	}

	return claims.Email, nil
}
