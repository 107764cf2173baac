package gateway

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerog-labs/x402-facilitator/internal/protocol"
)

func paymentRequest(nonce, resource, payTo, amount, network string) *protocol.PaymentRequest {
	header, _ := json.Marshal(map[string]interface{}{
		"from":  payerAddr,
		"nonce": nonce,
		"v":     27,
		"r":     dummyR,
		"s":     dummyS,
	})
	return &protocol.PaymentRequest{
		X402Version:   protocol.X402Version,
		PaymentHeader: header,
		PaymentRequirements: protocol.PaymentRequirements{
			Scheme:            protocol.SchemeExact,
			Network:           network,
			Asset:             "usdc",
			PayTo:             payTo,
			MaxAmountRequired: amount,
			Resource:          resource,
		},
	}
}

func TestFingerprintIdentity(t *testing.T) {
	base := paymentRequest(testNonce, "/premium/data", merchantAddr, "1000000", "base-sepolia")
	key := fingerprint("/verify", base)
	assert.Len(t, key, 64)

	// Fields outside the identity set do not change the key.
	described := paymentRequest(testNonce, "/premium/data", merchantAddr, "1000000", "base-sepolia")
	described.PaymentRequirements.Description = "premium data access"
	described.AgentID = "agent-7"
	assert.Equal(t, key, fingerprint("/verify", described))

	variants := map[string]*protocol.PaymentRequest{
		"nonce":    paymentRequest(altNonce, "/premium/data", merchantAddr, "1000000", "base-sepolia"),
		"resource": paymentRequest(testNonce, "/other", merchantAddr, "1000000", "base-sepolia"),
		"payTo":    paymentRequest(testNonce, "/premium/data", treasuryAddr, "1000000", "base-sepolia"),
		"amount":   paymentRequest(testNonce, "/premium/data", merchantAddr, "2000000", "base-sepolia"),
		"network":  paymentRequest(testNonce, "/premium/data", merchantAddr, "1000000", "0g-testnet"),
	}
	for name, req := range variants {
		assert.NotEqual(t, key, fingerprint("/verify", req), "changing %s must change the fingerprint", name)
	}

	// The route participates too: verify and settle never share entries.
	assert.NotEqual(t, key, fingerprint("/settle", base))
}

func TestFingerprintUnparseableHeader(t *testing.T) {
	req := paymentRequest(testNonce, "/premium/data", merchantAddr, "1000000", "base-sepolia")
	req.PaymentHeader = json.RawMessage(`{"unrelated": true}`)

	// Still deterministic, so malformed retries collapse onto one entry.
	first := fingerprint("/verify", req)
	second := fingerprint("/verify", req)
	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestIdempotencyCacheLifecycle(t *testing.T) {
	cache := newIdempotencyCache(50 * time.Millisecond)

	status, cached, done := cache.CheckAndMark("k1")
	require.Equal(t, statusNew, status)
	require.Nil(t, cached)
	require.NotNil(t, done)

	reply := &cachedReply{Status: 200, Body: []byte(`{"ok":true}`)}
	cache.Complete("k1", reply, done)

	status, cached, _ = cache.CheckAndMark("k1")
	require.Equal(t, statusCached, status)
	assert.Equal(t, reply.Body, cached.Body)

	// After TTL the entry is gone and the key is processable again.
	time.Sleep(60 * time.Millisecond)
	status, cached, done = cache.CheckAndMark("k1")
	assert.Equal(t, statusNew, status)
	assert.Nil(t, cached)
	cache.Fail("k1", done)
}

func TestIdempotencyCacheInFlight(t *testing.T) {
	cache := newIdempotencyCache(time.Minute)

	status, _, done := cache.CheckAndMark("k1")
	require.Equal(t, statusNew, status)

	status, _, wait := cache.CheckAndMark("k1")
	require.Equal(t, statusInFlight, status)

	reply := &cachedReply{Status: 200, Body: []byte(`{"ok":true}`)}
	go func() {
		time.Sleep(10 * time.Millisecond)
		cache.Complete("k1", reply, done)
	}()

	got, err := cache.WaitForReply(context.Background(), "k1", wait)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, reply.Body, got.Body)
}

func TestIdempotencyCacheFailAllowsRetry(t *testing.T) {
	cache := newIdempotencyCache(time.Minute)

	status, _, done := cache.CheckAndMark("k1")
	require.Equal(t, statusNew, status)

	status, _, wait := cache.CheckAndMark("k1")
	require.Equal(t, statusInFlight, status)

	go cache.Fail("k1", done)

	got, err := cache.WaitForReply(context.Background(), "k1", wait)
	require.NoError(t, err)
	assert.Nil(t, got)

	// The slot is free again.
	status, _, done = cache.CheckAndMark("k1")
	assert.Equal(t, statusNew, status)
	cache.Fail("k1", done)
}

func TestIdempotencyCacheWaitCancellation(t *testing.T) {
	cache := newIdempotencyCache(time.Minute)

	_, _, done := cache.CheckAndMark("k1")
	status, _, wait := cache.CheckAndMark("k1")
	require.Equal(t, statusInFlight, status)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := cache.WaitForReply(ctx, "k1", wait)
	assert.ErrorIs(t, err, context.Canceled)

	cache.Fail("k1", done)
}
