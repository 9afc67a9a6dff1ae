package crypto

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Assertion parse/verify errors. Callers distinguish a token that is not a
// well-formed JWT from one whose signature does not check out.
var (
	ErrMalformed    = errors.New("crypto: malformed assertion")
	ErrBadSignature = errors.New("crypto: bad assertion signature")
)

// nonceBytes sizes the per-assertion replay nonce (128 bits minimum).
const nonceBytes = 16

// AssertionClaims carries the fields of an email-ownership assertion.
type AssertionClaims struct {
	Email     string
	Origin    string // audience: the RP origin the assertion is bound to
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Nonce     string
}

// Signer mints email-ownership assertions as RS256-signed JWTs.
type Signer struct {
	keySet   *KeySet
	issuer   string
	lifetime time.Duration
	now      func() time.Time
}

// NewSigner creates an assertion signer for the given canonical issuer
// origin and assertion lifetime.
func NewSigner(keySet *KeySet, issuer string, lifetime time.Duration) *Signer {
	return &Signer{
		keySet:   keySet,
		issuer:   issuer,
		lifetime: lifetime,
		now:      time.Now,
	}
}

// SetClock overrides the time source (useful for tests).
func (s *Signer) SetClock(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

// Issuer returns the canonical issuer origin embedded into assertions.
func (s *Signer) Issuer() string {
	return s.issuer
}

// Mint creates a signed assertion binding email to the given RP origin.
func (s *Signer) Mint(email, origin string) (string, error) {
	nonce, err := RandomHex(nonceBytes)
	if err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	now := s.now()
	claims := jwt.MapClaims{
		"iss":   s.issuer,
		"aud":   origin,
		"email": email,
		"iat":   now.Unix(),
		"exp":   now.Add(s.lifetime).Unix(),
		"jti":   nonce,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.keySet.KeyID()

	return token.SignedString(s.keySet.PrivateKey())
}

// PeekAssertion decodes the assertion without verifying its signature,
// returning the claimed issuer and key ID. The verifier needs both to pick
// the verification key; nothing else may be trusted before the signature
// check.
func PeekAssertion(tokenString string) (issuer, kid string, err error) {
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return "", "", ErrMalformed
	}

	issuer, err = token.Claims.GetIssuer()
	if err != nil {
		return "", "", ErrMalformed
	}
	kid, _ = token.Header["kid"].(string)
	return issuer, kid, nil
}

// VerifyAssertion checks the RS256 signature with the given key and
// extracts the claims. Temporal validation is deliberately left to the
// caller: freshness, lifetime ordering and skew produce distinct rejection
// reasons there.
func VerifyAssertion(tokenString string, key any) (*AssertionClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithoutClaimsValidation(),
	)
	token, err := parser.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, ErrMalformed
		}
		return nil, ErrBadSignature
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrMalformed
	}

	out := &AssertionClaims{}
	out.Email, _ = mapClaims["email"].(string)
	out.Nonce, _ = mapClaims["jti"].(string)
	if iss, err := mapClaims.GetIssuer(); err == nil {
		out.Issuer = iss
	}
	if aud, err := mapClaims.GetAudience(); err == nil && len(aud) > 0 {
		out.Origin = aud[0]
	}
	if iat, err := mapClaims.GetIssuedAt(); err == nil && iat != nil {
		out.IssuedAt = iat.Time
	}
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}
