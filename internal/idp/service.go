// Package idp implements the identity-provider side of the protocol:
// issuing authentication requests and redeeming confirmation tokens into
// signed assertions.
package idp

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/ParleSec/LetsAuth/internal/crypto"
	"github.com/ParleSec/LetsAuth/internal/delivery"
	"github.com/ParleSec/LetsAuth/internal/email"
	"github.com/ParleSec/LetsAuth/internal/origin"
	"github.com/ParleSec/LetsAuth/internal/store"
	"github.com/ParleSec/LetsAuth/pkg/models"
)

var (
	// ErrInvalidInput indicates a malformed email or endpoint at
	// issuance. User-correctable; no state is created.
	ErrInvalidInput = errors.New("idp: invalid input")

	// ErrInvalidToken indicates a confirmation that cannot be redeemed:
	// unknown, expired, already used, or mismatched token. The user must
	// restart at issuance.
	ErrInvalidToken = errors.New("idp: invalid or expired token")
)

const (
	// tokenBytes sizes the confirmation token. The token is the sole
	// secret protecting the confirmation step, so it gets the full 128
	// bits.
	tokenBytes = 16

	tokenHexLen = 2 * tokenBytes
)

// Service implements issuance and confirmation over a pending-request
// store. Handlers stay stateless; all shared state lives in the store.
type Service struct {
	store      store.PendingStore
	signer     *crypto.Signer
	sink       delivery.Sink
	baseURL    string
	pendingTTL time.Duration
}

// NewService creates the IdP service. baseURL is the externally reachable
// base of this IdP, used to build confirmation links.
func NewService(st store.PendingStore, signer *crypto.Signer, sink delivery.Sink, baseURL string, pendingTTL time.Duration) *Service {
	return &Service{
		store:      st,
		signer:     signer,
		sink:       sink,
		baseURL:    baseURL,
		pendingTTL: pendingTTL,
	}
}

// IssueResult reports a successfully issued authentication request.
type IssueResult struct {
	Email  string
	Origin string
	Link   string
}

// Issue begins a login: it validates the input, stores a pending request
// and hands the confirmation link to the delivery sink. Re-issuing for
// the same (email, origin) replaces the pending request, so only the most
// recently sent link can be redeemed.
func (s *Service) Issue(ctx context.Context, addr, endpoint string) (*IssueResult, error) {
	if !email.Valid(addr) {
		return nil, fmt.Errorf("%w: invalid email address", ErrInvalidInput)
	}

	orig, err := origin.Canonicalize(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid endpoint", ErrInvalidInput)
	}

	token, err := crypto.RandomHex(tokenBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	err = s.store.Put(ctx, &models.PendingAuthRequest{
		Email:     addr,
		Origin:    orig,
		Token:     token,
		Endpoint:  endpoint,
		CreatedAt: time.Now(),
	}, s.pendingTTL)
	if err != nil {
		return nil, err
	}

	query := url.Values{
		"email":  {addr},
		"origin": {orig},
		"token":  {token},
	}
	link := s.baseURL + "/confirm?" + query.Encode()

	body, err := delivery.RenderMessage(delivery.Params{
		Email:      addr,
		Where:      hostnameOf(orig),
		Link:       link,
		Expiration: s.pendingTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render confirmation mail: %w", err)
	}
	if err := s.sink.Deliver(ctx, addr, "Confirm your sign-in", body); err != nil {
		return nil, fmt.Errorf("failed to deliver confirmation mail: %w", err)
	}

	return &IssueResult{Email: addr, Origin: orig, Link: link}, nil
}

// Confirm redeems a confirmation token exactly once and mints a signed
// assertion. The caller-supplied origin is re-canonicalized before the
// lookup so alternate encodings of the same origin cannot dodge the key.
func (s *Service) Confirm(ctx context.Context, addr, rawOrigin, token string) (*models.ConfirmResponse, error) {
	if !email.Valid(addr) || !validTokenSyntax(token) {
		return nil, fmt.Errorf("%w: invalid parameters", ErrInvalidInput)
	}

	orig, err := origin.Canonicalize(rawOrigin)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid origin", ErrInvalidInput)
	}

	// The single atomic take is the whole exactly-once guarantee: a
	// racing confirmation for the same link observes an absent record.
	record, err := s.store.TakeAndDelete(ctx, addr, orig)
	if err != nil {
		return nil, err
	}
	if record == nil || subtle.ConstantTimeCompare([]byte(record.Token), []byte(token)) != 1 {
		return nil, ErrInvalidToken
	}

	assertion, err := s.signer.Mint(addr, orig)
	if err != nil {
		return nil, fmt.Errorf("failed to mint assertion: %w", err)
	}

	return &models.ConfirmResponse{
		Where:     hostnameOf(orig),
		Endpoint:  record.Endpoint,
		Assertion: assertion,
	}, nil
}

func validTokenSyntax(token string) bool {
	if len(token) != tokenHexLen {
		return false
	}
	for _, r := range token {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

func hostnameOf(orig string) string {
	u, err := url.Parse(orig)
	if err != nil {
		return orig
	}
	return u.Hostname()
}
