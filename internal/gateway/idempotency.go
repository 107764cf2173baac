package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/zerog-labs/x402-facilitator/internal/protocol"
)

// requestStatus is the outcome of an idempotency cache lookup.
type requestStatus int

const (
	// statusNew means no cached reply and no in-flight request; the
	// caller proceeds and is now marked in-flight.
	statusNew requestStatus = iota
	// statusCached means a stored reply exists within TTL.
	statusCached
	// statusInFlight means another request with the same fingerprint is
	// currently processing.
	statusInFlight
)

// cachedReply is a stored HTTP response, replayed byte for byte so that
// retried requests observe identical bodies, timestamps included.
type cachedReply struct {
	Status int
	Body   []byte
}

// idempotencyCache deduplicates payment requests by fingerprint. A second
// request arriving while the first is still processing parks on a channel
// and replays the stored reply instead of re-entering the handler, which
// keeps a retried settle from submitting a second chain transaction.
type idempotencyCache struct {
	mu       sync.Mutex
	replies  map[string]*cachedReply
	expiry   map[string]time.Time
	inFlight map[string]chan struct{}
	ttl      time.Duration
}

func newIdempotencyCache(ttl time.Duration) *idempotencyCache {
	return &idempotencyCache{
		replies:  make(map[string]*cachedReply),
		expiry:   make(map[string]time.Time),
		inFlight: make(map[string]chan struct{}),
		ttl:      ttl,
	}
}

// CheckAndMark atomically checks the cache and marks the key as in-flight
// when it has to be processed.
//
// Returns:
//   - statusCached + reply when a stored reply exists within TTL
//   - statusInFlight + wait channel when another request is processing
//   - statusNew + done channel when this request should proceed
//
// The done channel must be handed back through Complete or Fail.
func (c *idempotencyCache) CheckAndMark(key string) (requestStatus, *cachedReply, chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if expiry, exists := c.expiry[key]; exists {
		if time.Now().Before(expiry) {
			if reply, ok := c.replies[key]; ok {
				return statusCached, reply, nil
			}
		}
		delete(c.replies, key)
		delete(c.expiry, key)
	}

	if done, exists := c.inFlight[key]; exists {
		return statusInFlight, nil, done
	}

	done := make(chan struct{})
	c.inFlight[key] = done
	return statusNew, nil, done
}

// WaitForReply blocks until an in-flight request completes, then returns
// its stored reply. A nil reply means the in-flight request failed without
// caching and the caller should process the request itself.
func (c *idempotencyCache) WaitForReply(ctx context.Context, key string, done chan struct{}) (*cachedReply, error) {
	select {
	case <-done:
		return c.get(key), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *idempotencyCache) get(key string) *cachedReply {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiry, exists := c.expiry[key]
	if !exists {
		return nil
	}
	if time.Now().After(expiry) {
		delete(c.replies, key)
		delete(c.expiry, key)
		return nil
	}
	return c.replies[key]
}

// Complete stores the reply, releases the in-flight marker and wakes any
// parked requests. Call before writing the reply to the wire.
func (c *idempotencyCache) Complete(key string, reply *cachedReply, done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.replies[key] = reply
	c.expiry[key] = time.Now().Add(c.ttl)
	delete(c.inFlight, key)
	close(done)

	c.cleanupExpiredLocked()
}

// Fail releases the in-flight marker without caching, so the request can
// be retried. Parked requests wake up and process it themselves.
func (c *idempotencyCache) Fail(key string, done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.inFlight, key)
	close(done)
}

// cleanupExpiredLocked removes expired entries. Must be called with the
// lock held.
func (c *idempotencyCache) cleanupExpiredLocked() {
	now := time.Now()
	for key, expiry := range c.expiry {
		if now.After(expiry) {
			delete(c.replies, key)
			delete(c.expiry, key)
		}
	}
}

// fingerprint derives the idempotency key for a payment request: the route
// plus the stable fields that identify one payment attempt, hashed. An
// unparseable payment header contributes its raw bytes, so malformed
// retries still collapse onto one entry.
func fingerprint(route string, req *protocol.PaymentRequest) string {
	nonce := string(req.PaymentHeader)
	if auth, err := protocol.Normalize(req.PaymentHeader); err == nil {
		nonce = auth.Nonce
	}

	parts := strings.Join([]string{
		route,
		nonce,
		req.PaymentRequirements.Resource,
		req.PaymentRequirements.PayTo,
		req.PaymentRequirements.MaxAmountRequired,
		req.PaymentRequirements.Network,
	}, "|")

	hash := sha256.Sum256([]byte(parts))
	return hex.EncodeToString(hash[:])
}
