package store

import (
	"context"
	"sync"
	"time"

	"github.com/ParleSec/LetsAuth/pkg/models"
)

// initialNonceTTL bounds the lifetime of a nonce set that was created but
// never sized by ExtendTTL. It covers the longest assertion validity window
// plus clock skew on both ends.
const initialNonceTTL = 20 * time.Minute

const sweepInterval = time.Minute

type pendingEntry struct {
	req       models.PendingAuthRequest
	expiresAt time.Time
}

type nonceEntry struct {
	nonces    map[string]struct{}
	expiresAt time.Time
}

// Memory is an in-memory implementation of PendingStore and NonceLedger
// for single-process deployments. Entries expire lazily on access and are
// swept periodically in the background.
type Memory struct {
	mu      sync.Mutex
	pending map[string]pendingEntry
	ledger  map[string]nonceEntry
	now     func() time.Time
	done    chan struct{}
}

// NewMemory creates an in-memory store and starts its background sweeper.
func NewMemory() *Memory {
	m := &Memory{
		pending: make(map[string]pendingEntry),
		ledger:  make(map[string]nonceEntry),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go m.sweep()
	return m
}

// Close stops the background sweeper.
func (m *Memory) Close() error {
	close(m.done)
	return nil
}

func (m *Memory) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			now := m.now()
			m.mu.Lock()
			for key, e := range m.pending {
				if now.After(e.expiresAt) {
					delete(m.pending, key)
				}
			}
			for email, e := range m.ledger {
				if now.After(e.expiresAt) {
					delete(m.ledger, email)
				}
			}
			m.mu.Unlock()
		}
	}
}

func pendingKey(email, origin string) string {
	return email + ":" + origin
}

// Put upserts the pending request and resets its TTL.
func (m *Memory) Put(ctx context.Context, req *models.PendingAuthRequest, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[pendingKey(req.Email, req.Origin)] = pendingEntry{
		req:       *req,
		expiresAt: m.now().Add(ttl),
	}
	return nil
}

// TakeAndDelete removes and returns the pending request for
// (email, origin), or (nil, nil) when absent or expired.
func (m *Memory) TakeAndDelete(ctx context.Context, email, origin string) (*models.PendingAuthRequest, error) {
	key := pendingKey(email, origin)

	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.pending[key]
	if !ok {
		return nil, nil
	}
	delete(m.pending, key)
	if m.now().After(e.expiresAt) {
		return nil, nil
	}
	req := e.req
	return &req, nil
}

// AddIfAbsent inserts nonce into the email's set, reporting whether it was
// newly inserted.
func (m *Memory) AddIfAbsent(ctx context.Context, email, nonce string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	e, ok := m.ledger[email]
	if ok && now.After(e.expiresAt) {
		ok = false
	}
	if !ok {
		e = nonceEntry{
			nonces:    make(map[string]struct{}),
			expiresAt: now.Add(initialNonceTTL),
		}
	}
	if _, exists := e.nonces[nonce]; exists {
		return false, nil
	}
	e.nonces[nonce] = struct{}{}
	m.ledger[email] = e
	return true, nil
}

// ExtendTTL pushes the expiry of the email's nonce set out to at least
// now+ttl.
func (m *Memory) ExtendTTL(ctx context.Context, email string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.ledger[email]
	if !ok {
		return nil
	}
	if deadline := m.now().Add(ttl); deadline.After(e.expiresAt) {
		e.expiresAt = deadline
		m.ledger[email] = e
	}
	return nil
}
