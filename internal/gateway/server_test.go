package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerog-labs/x402-facilitator/internal/config"
	"github.com/zerog-labs/x402-facilitator/internal/evm"
	"github.com/zerog-labs/x402-facilitator/internal/protocol"
	"github.com/zerog-labs/x402-facilitator/internal/registry"
	"github.com/zerog-labs/x402-facilitator/internal/settle"
	"github.com/zerog-labs/x402-facilitator/internal/store"
	"github.com/zerog-labs/x402-facilitator/internal/verify"
)

const (
	facilitatorKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	payerAddr      = "0x2222222222222222222222222222222222222222"
	merchantAddr   = "0x3333333333333333333333333333333333333333"
	treasuryAddr   = "0x4444444444444444444444444444444444444444"
	testNonce      = "0x1234567890abcdef1234567890abcdef1234567890abcdef1234567890abcdef"
	altNonce       = "0xfedcba0987654321fedcba0987654321fedcba0987654321fedcba0987654321"
	dummyR         = "0x5555555555555555555555555555555555555555555555555555555555555555"
	dummyS         = "0x6666666666666666666666666666666666666666666666666666666666666666"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// fakeChain backs both the read and the write surface of every network,
// so one instance can fill all registry slots. Write hashes are keyed by
// recipient to keep the relayer's concurrent legs distinguishable.
type fakeChain struct {
	mu        sync.Mutex
	head      uint64
	blockErr  error
	balances  map[string]*big.Int
	nonceUsed bool
	allowance *big.Int

	hashByTo   map[string]string
	errByTo    map[string]error
	receipts   map[string]*evm.Receipt
	depths     map[string]uint64
	waitErrs   map[string]error
	writeDelay time.Duration
	writes     int
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		head:      100,
		balances:  make(map[string]*big.Int),
		allowance: big.NewInt(0),
		hashByTo:  make(map[string]string),
		errByTo:   make(map[string]error),
		receipts:  make(map[string]*evm.Receipt),
		depths:    make(map[string]uint64),
		waitErrs:  make(map[string]error),
	}
}

func (f *fakeChain) BlockNumber(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.blockErr != nil {
		return 0, f.blockErr
	}
	return f.head, nil
}

func (f *fakeChain) TransactionReceipt(ctx context.Context, txHash string) (*evm.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if receipt, ok := f.receipts[txHash]; ok {
		return receipt, nil
	}
	return nil, errors.New("not found")
}

func (f *fakeChain) ReadContract(ctx context.Context, contractAddress string, abiJSON []byte, method string, args ...interface{}) (interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch method {
	case "authorizationState":
		return f.nonceUsed, nil
	case "allowance":
		return f.allowance, nil
	case "decimals":
		return uint8(6), nil
	}
	return nil, errors.New("unexpected method " + method)
}

func (f *fakeChain) GetBalance(ctx context.Context, address, tokenAddress string) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if balance, ok := f.balances[strings.ToLower(address)]; ok {
		return balance, nil
	}
	return big.NewInt(0), nil
}

func (f *fakeChain) Address() string { return "0xFac1111111111111111111111111111111111111" }

func (f *fakeChain) WriteContract(ctx context.Context, contractAddress string, abiJSON []byte, method string, args ...interface{}) (string, error) {
	f.mu.Lock()
	delay := f.writeDelay
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	to := strings.ToLower(args[1].(common.Address).Hex())
	if err, ok := f.errByTo[to]; ok {
		return "", err
	}
	hash, ok := f.hashByTo[to]
	if !ok {
		return "", errors.New("no hash configured for recipient " + to)
	}
	return hash, nil
}

func (f *fakeChain) WaitForReceipt(ctx context.Context, txHash string, confirmations uint64) (*evm.Receipt, uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.receipts[txHash], f.depths[txHash], f.waitErrs[txHash]
}

func (f *fakeChain) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

func testConfig() *config.Config {
	return &config.Config{
		Port:            8402,
		Mode:            config.ModeManaged,
		DefaultChain:    "base-sepolia",
		PrivateKey:      facilitatorKey,
		TreasuryAddress: treasuryAddr,
		RPCURLs:         map[string]string{},
		IdempotencyTTL:  5 * time.Minute,
		RateLimitMax:    60,
		RateLimitWindow: time.Minute,
	}
}

func newTestServer(t *testing.T, cfg *config.Config, chain *fakeChain) *Server {
	t.Helper()
	reg, err := registry.New(cfg)
	require.NoError(t, err)
	for _, network := range reg.SupportedNetworks() {
		reg.SetReader(network, chain)
		reg.SetWriter(network, chain)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	verifier := verify.New(reg, logger)
	settler := settle.New(reg, store.NewMemoryStore(), cfg.TreasuryAddress, nil, logger)
	return New(cfg, reg, verifier, settler, logger)
}

func doPost(s *Server, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func doGet(s *Server, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func jsonBody(t *testing.T, v interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

// paymentRequestBody builds a base-sepolia USDC request for 1 USDC. The
// header omits the recipient, so settlement falls back to payTo.
func paymentRequestBody(validBefore int64, nonce string) map[string]interface{} {
	return map[string]interface{}{
		"x402Version": 1,
		"paymentHeader": map[string]interface{}{
			"from":        payerAddr,
			"value":       "1000000",
			"validBefore": strconv.FormatInt(validBefore, 10),
			"nonce":       nonce,
			"v":           27,
			"r":           dummyR,
			"s":           dummyS,
		},
		"paymentRequirements": map[string]interface{}{
			"scheme":            "exact",
			"network":           "base-sepolia",
			"asset":             "usdc",
			"payTo":             merchantAddr,
			"maxAmountRequired": "1000000",
			"resource":          "/premium/data",
		},
	}
}

func relayerRequestBody(nonce string) map[string]interface{} {
	return map[string]interface{}{
		"x402Version": 1,
		"paymentHeader": map[string]interface{}{
			"sender": payerAddr,
			"nonce":  nonce,
			"v":      27,
			"r":      dummyR,
			"s":      dummyS,
		},
		"paymentRequirements": map[string]interface{}{
			"scheme":            "exact",
			"network":           "0g-mainnet",
			"asset":             "w0g",
			"payTo":             merchantAddr,
			"maxAmountRequired": "1000000000000000000",
			"resource":          "/premium/data",
		},
	}
}

func TestVerifyHappyEIP3009(t *testing.T) {
	chain := newFakeChain()
	chain.balances[payerAddr] = big.NewInt(5000000)
	s := newTestServer(t, testConfig(), chain)

	w := doPost(s, "/verify", jsonBody(t, paymentRequestBody(time.Now().Unix()+3600, testNonce)), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp verifyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.IsValid)
	assert.Nil(t, resp.InvalidReason)
	require.NotNil(t, resp.ConsensusProof)
	assert.Len(t, *resp.ConsensusProof, 64)
	assert.True(t, strings.HasPrefix(resp.ReportID, "req_"))
	assert.NotEmpty(t, resp.Timestamp)

	assert.Equal(t, "1", resp.Amount.Human)
	assert.Equal(t, "0.01", resp.Fee.Human)
	assert.Equal(t, "0.99", resp.Net.Human)
	assert.Equal(t, "1000000", resp.Amount.Base)
	assert.Equal(t, "10000", resp.Fee.Base)
	assert.Equal(t, "990000", resp.Net.Base)
	assert.Equal(t, "USDC", resp.Amount.Symbol)
}

func TestVerifyExpiredAuthorization(t *testing.T) {
	chain := newFakeChain()
	chain.balances[payerAddr] = big.NewInt(5000000)
	s := newTestServer(t, testConfig(), chain)

	w := doPost(s, "/verify", jsonBody(t, paymentRequestBody(time.Now().Unix()-1, testNonce)), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp verifyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.IsValid)
	require.NotNil(t, resp.InvalidReason)
	assert.Contains(t, *resp.InvalidReason, "expired")
	assert.Nil(t, resp.ConsensusProof)
	// Breakdown is populated even for invalid outcomes.
	assert.Equal(t, "1", resp.Amount.Human)
	assert.Equal(t, "0.01", resp.Fee.Human)
}

func TestVerifyConsumedNonce(t *testing.T) {
	chain := newFakeChain()
	chain.balances[payerAddr] = big.NewInt(5000000)
	cfg := testConfig()
	// Let cached verdicts expire immediately so the second request is
	// re-derived against chain state.
	cfg.IdempotencyTTL = time.Nanosecond
	s := newTestServer(t, cfg, chain)

	body := jsonBody(t, paymentRequestBody(time.Now().Unix()+3600, testNonce))
	w := doPost(s, "/verify", body, nil)
	var first verifyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	require.True(t, first.IsValid)

	chain.mu.Lock()
	chain.nonceUsed = true
	chain.mu.Unlock()

	w = doPost(s, "/verify", body, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var second verifyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))
	assert.False(t, second.IsValid)
	require.NotNil(t, second.InvalidReason)
	assert.Contains(t, *second.InvalidReason, "already used")
}

func TestVerifyIdempotentReplay(t *testing.T) {
	chain := newFakeChain()
	chain.balances[payerAddr] = big.NewInt(5000000)
	s := newTestServer(t, testConfig(), chain)

	body := jsonBody(t, paymentRequestBody(time.Now().Unix()+3600, testNonce))
	w1 := doPost(s, "/verify", body, nil)
	w2 := doPost(s, "/verify", body, nil)
	require.Equal(t, http.StatusOK, w1.Code)
	require.Equal(t, http.StatusOK, w2.Code)
	// Byte-identical replay, report id and timestamp included.
	assert.Equal(t, w1.Body.Bytes(), w2.Body.Bytes())
}

func TestVerifyXPaymentHeaderFallback(t *testing.T) {
	chain := newFakeChain()
	chain.balances[payerAddr] = big.NewInt(5000000)
	s := newTestServer(t, testConfig(), chain)

	body := paymentRequestBody(time.Now().Unix()+3600, testNonce)
	header := body["paymentHeader"]
	delete(body, "paymentHeader")
	raw, err := json.Marshal(header)
	require.NoError(t, err)
	encoded := base64.StdEncoding.EncodeToString(raw)

	w := doPost(s, "/verify", jsonBody(t, body), map[string]string{"X-PAYMENT": encoded})
	require.Equal(t, http.StatusOK, w.Code)

	var resp verifyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.IsValid)
}

func TestVerifyRequestValidation(t *testing.T) {
	s := newTestServer(t, testConfig(), newFakeChain())

	tests := []struct {
		name string
		body []byte
	}{
		{"malformed json", []byte(`{not json`)},
		{"missing requirements", []byte(`{"x402Version":1}`)},
		{"incomplete requirements", []byte(`{"paymentRequirements":{"network":"base-sepolia"}}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doPost(s, "/verify", tt.body, nil)
			require.Equal(t, http.StatusBadRequest, w.Code)

			var resp struct {
				Error   string   `json:"error"`
				Code    string   `json:"code"`
				Details []string `json:"details"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, protocol.ErrCodeVerification, resp.Code)
			assert.NotEmpty(t, resp.Error)
			assert.NotEmpty(t, resp.Details)
		})
	}
}

func TestSettleRequestValidation(t *testing.T) {
	s := newTestServer(t, testConfig(), newFakeChain())

	w := doPost(s, "/settle", []byte(`{"x402Version":1}`), nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, protocol.ErrCodeSettlement, resp.Code)
}

func TestSettleIdempotentRetry(t *testing.T) {
	chain := newFakeChain()
	chain.balances[payerAddr] = big.NewInt(5000000)
	chain.hashByTo[merchantAddr] = "0xaaa"
	chain.receipts["0xaaa"] = &evm.Receipt{TxHash: "0xaaa", Status: evm.TxStatusSuccess, BlockNumber: 100}
	chain.depths["0xaaa"] = 1
	s := newTestServer(t, testConfig(), chain)

	body := jsonBody(t, paymentRequestBody(time.Now().Unix()+3600, testNonce))
	w1 := doPost(s, "/settle", body, nil)
	require.Equal(t, http.StatusOK, w1.Code)
	w2 := doPost(s, "/settle", body, nil)
	require.Equal(t, http.StatusOK, w2.Code)

	// One on-chain transaction, two byte-identical replies.
	assert.Equal(t, 1, chain.writeCount())
	assert.Equal(t, w1.Body.Bytes(), w2.Body.Bytes())

	var resp settleResponse
	require.NoError(t, json.Unmarshal(w1.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Error)
	require.NotNil(t, resp.TxHash)
	assert.Equal(t, "0xaaa", *resp.TxHash)
	assert.Empty(t, resp.TxHashFee)
	assert.Equal(t, uint64(84532), resp.NetworkID)
	assert.Equal(t, "confirmed", resp.Status)
	require.NotNil(t, resp.ConsensusProof)
	assert.Len(t, *resp.ConsensusProof, 64)
	assert.Equal(t, "1", resp.Amount.Human)
	assert.Equal(t, "0.01", resp.Fee.Human)
	assert.Equal(t, "0.99", resp.Net.Human)
}

func TestSettleConcurrentDuplicates(t *testing.T) {
	chain := newFakeChain()
	chain.balances[payerAddr] = big.NewInt(5000000)
	chain.hashByTo[merchantAddr] = "0xaaa"
	chain.receipts["0xaaa"] = &evm.Receipt{TxHash: "0xaaa", Status: evm.TxStatusSuccess, BlockNumber: 100}
	chain.depths["0xaaa"] = 1
	chain.writeDelay = 50 * time.Millisecond
	s := newTestServer(t, testConfig(), chain)

	body := jsonBody(t, paymentRequestBody(time.Now().Unix()+3600, testNonce))

	var wg sync.WaitGroup
	codes := make([]int, 2)
	bodies := make([][]byte, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w := doPost(s, "/settle", body, nil)
			codes[i] = w.Code
			bodies[i] = w.Body.Bytes()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, http.StatusOK, codes[0])
	assert.Equal(t, http.StatusOK, codes[1])
	assert.Equal(t, bodies[0], bodies[1])
	assert.Equal(t, 1, chain.writeCount())
}

func TestSettleRelayerPartialSettlement(t *testing.T) {
	oneToken := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	chain := newFakeChain()
	chain.balances[payerAddr] = new(big.Int).Mul(oneToken, big.NewInt(2))
	chain.allowance = new(big.Int).Mul(oneToken, big.NewInt(2))
	chain.hashByTo[merchantAddr] = "0xaaa"
	chain.hashByTo[treasuryAddr] = "0xbbb"
	chain.receipts["0xaaa"] = &evm.Receipt{TxHash: "0xaaa", Status: evm.TxStatusSuccess, BlockNumber: 100}
	chain.receipts["0xbbb"] = &evm.Receipt{TxHash: "0xbbb", Status: evm.TxStatusFailed, BlockNumber: 100}
	chain.depths["0xaaa"] = 2
	chain.depths["0xbbb"] = 2
	s := newTestServer(t, testConfig(), chain)

	w := doPost(s, "/settle", jsonBody(t, relayerRequestBody(testNonce)), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp settleResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "partial_settlement", resp.Status)
	require.NotNil(t, resp.TxHash)
	assert.Equal(t, "0xaaa", *resp.TxHash)
	assert.Equal(t, "0xbbb", resp.TxHashFee)
	assert.Equal(t, uint64(16661), resp.NetworkID)
	require.NotNil(t, resp.Error)
	assert.Contains(t, *resp.Error, "Fee transfer failed")
	assert.Nil(t, resp.ConsensusProof)
	assert.Equal(t, "1", resp.Amount.Human)
	assert.Equal(t, "0.01", resp.Fee.Human)
	assert.Equal(t, "W0G", resp.Amount.Symbol)
}

func TestSettleVerificationFailure(t *testing.T) {
	chain := newFakeChain()
	chain.balances[payerAddr] = big.NewInt(5000000)
	s := newTestServer(t, testConfig(), chain)

	w := doPost(s, "/settle", jsonBody(t, paymentRequestBody(time.Now().Unix()-1, testNonce)), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp settleResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Contains(t, *resp.Error, "expired")
	assert.Nil(t, resp.TxHash)
	assert.Equal(t, "failed", resp.Status)
	assert.Equal(t, uint64(84532), resp.NetworkID)
	assert.Equal(t, "1", resp.Amount.Human)
	assert.Equal(t, 0, chain.writeCount())
}

func TestSettleUnsupportedNetwork(t *testing.T) {
	s := newTestServer(t, testConfig(), newFakeChain())

	body := paymentRequestBody(time.Now().Unix()+3600, testNonce)
	body["paymentRequirements"].(map[string]interface{})["network"] = "polygon"

	w := doPost(s, "/settle", jsonBody(t, body), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp settleResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "Unsupported network: polygon", *resp.Error)
	assert.Equal(t, uint64(0), resp.NetworkID)
	assert.Equal(t, "usdc", resp.Amount.Symbol)
}

func TestSettleDecentralizedMode(t *testing.T) {
	chain := newFakeChain()
	chain.balances[payerAddr] = big.NewInt(5000000)
	cfg := testConfig()
	cfg.Mode = config.ModeDecentralized
	s := newTestServer(t, cfg, chain)

	w := doPost(s, "/settle", jsonBody(t, paymentRequestBody(time.Now().Unix()+3600, testNonce)), nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp settleResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Contains(t, *resp.Error, "managed mode")
	assert.Equal(t, 0, chain.writeCount())
}

func TestIdempotencyKeyOverride(t *testing.T) {
	chain := newFakeChain()
	chain.balances[payerAddr] = big.NewInt(5000000)
	s := newTestServer(t, testConfig(), chain)

	headers := map[string]string{"Idempotency-Key": "client-key-1"}
	first := doPost(s, "/verify", jsonBody(t, paymentRequestBody(time.Now().Unix()+3600, testNonce)), headers)
	require.Equal(t, http.StatusOK, first.Code)

	// Different nonce under the same client key replays the first reply.
	second := doPost(s, "/verify", jsonBody(t, paymentRequestBody(time.Now().Unix()+3600, altNonce)), headers)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, first.Body.Bytes(), second.Body.Bytes())
}

func TestRateLimitExceeded(t *testing.T) {
	chain := newFakeChain()
	chain.balances[payerAddr] = big.NewInt(5000000)
	cfg := testConfig()
	cfg.RateLimitMax = 2
	s := newTestServer(t, cfg, chain)

	body := jsonBody(t, paymentRequestBody(time.Now().Unix()+3600, testNonce))
	for i := 0; i < 2; i++ {
		w := doPost(s, "/verify", body, nil)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := doPost(s, "/verify", body, nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	var resp struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, protocol.ErrCodeRateLimited, resp.Code)
	assert.NotEmpty(t, resp.Error)

	// A caller-provided token gets its own window.
	w = doPost(s, "/verify", body, map[string]string{"X-Client-Token": "other-client"})
	assert.Equal(t, http.StatusOK, w.Code)

	// Metadata routes are unthrottled.
	w = doGet(s, "/supported")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthReport(t *testing.T) {
	s := newTestServer(t, testConfig(), newFakeChain())

	w := doGet(s, "/health")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Healthy         bool                     `json:"healthy"`
		FacilitatorMode string                   `json:"facilitatorMode"`
		Networks        map[string]networkHealth `json:"networks"`
		Timestamp       string                   `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Healthy)
	assert.Equal(t, config.ModeManaged, resp.FacilitatorMode)
	require.Len(t, resp.Networks, 7)

	base := resp.Networks["base-sepolia"]
	assert.True(t, base.RPCHealthy)
	assert.Equal(t, "USDC", base.Token)
	assert.Equal(t, "connected", base.Status)
	assert.Empty(t, base.Error)

	zg := resp.Networks["0g-mainnet"]
	assert.Equal(t, "W0G", zg.Token)
	assert.NotEmpty(t, resp.Timestamp)
}

func TestHealthDefaultChainDown(t *testing.T) {
	chain := newFakeChain()
	chain.blockErr = errors.New("connection refused")
	s := newTestServer(t, testConfig(), chain)

	w := doGet(s, "/health")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp struct {
		Healthy  bool                     `json:"healthy"`
		Networks map[string]networkHealth `json:"networks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Healthy)

	base := resp.Networks["base-sepolia"]
	assert.False(t, base.RPCHealthy)
	assert.Equal(t, "error", base.Status)
	assert.Contains(t, base.Error, "connection refused")
}

func TestSupportedKinds(t *testing.T) {
	s := newTestServer(t, testConfig(), newFakeChain())

	w := doGet(s, "/supported")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Kinds []struct {
			X402Version int    `json:"x402Version"`
			Scheme      string `json:"scheme"`
			Network     string `json:"network"`
		} `json:"kinds"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Kinds, 7)
	assert.Equal(t, 1, resp.Kinds[0].X402Version)
	assert.Equal(t, "exact", resp.Kinds[0].Scheme)
	assert.Equal(t, "base-sepolia", resp.Kinds[0].Network)
}

func TestInfoMetadata(t *testing.T) {
	s := newTestServer(t, testConfig(), newFakeChain())

	w := doGet(s, "/api/info")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Service         string            `json:"service"`
		Version         string            `json:"version"`
		FacilitatorMode string            `json:"facilitatorMode"`
		DefaultChain    string            `json:"defaultChain"`
		FeeBps          int64             `json:"feeBps"`
		Networks        []string          `json:"networks"`
		Endpoints       map[string]string `json:"endpoints"`
		Timestamp       string            `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "x402-facilitator", resp.Service)
	assert.NotEmpty(t, resp.Version)
	assert.Equal(t, config.ModeManaged, resp.FacilitatorMode)
	assert.Equal(t, "base-sepolia", resp.DefaultChain)
	assert.Equal(t, int64(100), resp.FeeBps)
	assert.Contains(t, resp.Networks, "0g-mainnet")
	assert.Equal(t, "/settle", resp.Endpoints["settle"])
	assert.NotEmpty(t, resp.Timestamp)
}
