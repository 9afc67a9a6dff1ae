// Package store provides the two TTL-bound stores backing the protocol:
// the IdP-side pending-request store and the RP-side nonce ledger.
//
// TakeAndDelete and AddIfAbsent are the load-bearing operations. Each must
// be a single indivisible store operation so that a confirmation token or
// an assertion nonce is usable at most once, even under concurrent
// redemption attempts.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ParleSec/LetsAuth/pkg/models"
)

// ErrUnavailable indicates an infrastructure failure of the underlying
// store. Callers must fail closed: deny authentication, never treat it as
// success.
var ErrUnavailable = errors.New("store: unavailable")

// PendingStore holds in-flight authentication requests keyed by
// (email, origin).
type PendingStore interface {
	// Put upserts a pending request and resets its TTL. A second Put for
	// the same (email, origin) replaces the prior record.
	Put(ctx context.Context, req *models.PendingAuthRequest, ttl time.Duration) error

	// TakeAndDelete atomically reads and removes the record for
	// (email, origin). It returns (nil, nil) when the record is absent or
	// expired. If two calls race for the same key, at most one observes
	// the record.
	TakeAndDelete(ctx context.Context, email, origin string) (*models.PendingAuthRequest, error)
}

// NonceLedger tracks consumed assertion nonces per email address.
type NonceLedger interface {
	// AddIfAbsent atomically inserts nonce into the email's set. It
	// returns true when the nonce was inserted (first use) and false when
	// it was already present (replay). A freshly created set carries a
	// conservative initial TTL until ExtendTTL sizes it precisely.
	AddIfAbsent(ctx context.Context, email, nonce string) (bool, error)

	// ExtendTTL pushes the expiry of the email's nonce set out to at
	// least now+ttl. It never shortens a longer remaining lifetime.
	ExtendTTL(ctx context.Context, email string, ttl time.Duration) error
}
