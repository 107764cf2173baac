package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zerog-labs/x402-facilitator/internal/config"
	"github.com/zerog-labs/x402-facilitator/internal/protocol"
	"github.com/zerog-labs/x402-facilitator/internal/store"
	"github.com/zerog-labs/x402-facilitator/internal/verify"
)

// healthProbeTimeout bounds each per-network block number probe.
const healthProbeTimeout = 2 * time.Second

func (s *Server) handleInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":         serviceName,
		"version":         serviceVersion,
		"facilitatorMode": s.cfg.Mode,
		"defaultChain":    s.cfg.DefaultChain,
		"feeBps":          s.fees.Bps(),
		"networks":        s.registry.SupportedNetworks(),
		"endpoints": gin.H{
			"info":      "/api/info",
			"health":    "/health",
			"supported": "/supported",
			"verify":    "/verify",
			"settle":    "/settle",
		},
		"timestamp": s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleSupported(c *gin.Context) {
	networks := s.registry.SupportedNetworks()
	kinds := make([]gin.H, 0, len(networks))
	for _, network := range networks {
		kinds = append(kinds, gin.H{
			"x402Version": protocol.X402Version,
			"scheme":      protocol.SchemeExact,
			"network":     network,
		})
	}
	c.JSON(http.StatusOK, gin.H{"kinds": kinds})
}

// networkHealth is one network's entry in the /health report.
type networkHealth struct {
	RPCHealthy bool   `json:"rpcHealthy"`
	Token      string `json:"token"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

// handleHealth probes every supported network concurrently. Overall
// health follows the default chain: 503 when its RPC is down.
func (s *Server) handleHealth(c *gin.Context) {
	networks := s.registry.SupportedNetworks()
	report := make(map[string]networkHealth, len(networks))

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, network := range networks {
		wg.Add(1)
		go func(network string) {
			defer wg.Done()
			probe := s.probeNetwork(c.Request.Context(), network)
			mu.Lock()
			report[network] = probe
			mu.Unlock()
		}(network)
	}
	wg.Wait()

	healthy := report[s.cfg.DefaultChain].RPCHealthy
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"healthy":         healthy,
		"facilitatorMode": s.cfg.Mode,
		"networks":        report,
		"timestamp":       s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) probeNetwork(ctx context.Context, network string) networkHealth {
	record, err := s.registry.ChainOf(network)
	if err != nil {
		return networkHealth{Status: "error", Error: err.Error()}
	}
	probe := networkHealth{Token: strings.ToUpper(record.DefaultToken)}

	ctx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	reader, err := s.registry.Reader(network)
	if err == nil {
		_, err = reader.BlockNumber(ctx)
	}
	if err != nil {
		probe.Status = "error"
		probe.Error = err.Error()
		return probe
	}
	probe.RPCHealthy = true
	probe.Status = "connected"
	return probe
}

func (s *Server) handleVerify(c *gin.Context) {
	req, ok := s.readPaymentRequest(c, protocol.ErrCodeVerification, "Invalid verify request")
	if !ok {
		return
	}
	key := s.idempotencyKey(c, "/verify", req)
	s.withIdempotency(c, key, func(done chan struct{}) {
		s.processVerify(c, req, key, done)
	})
}

func (s *Server) processVerify(c *gin.Context, req *protocol.VerifyRequest, key string, done chan struct{}) {
	ctx, cancel := requestContext(c, req)
	defer cancel()

	now := s.now().UTC()
	result := s.verifier.Verify(ctx, req)

	reportID := newReportID(now)
	breakdown := s.breakdown(req, result.Decimals, result.Symbol)
	resp := &verifyResponse{
		IsValid:   result.IsValid,
		ReportID:  reportID,
		Timestamp: now.Format(time.RFC3339),
		Amount:    breakdown.Amount,
		Fee:       breakdown.Fee,
		Net:       breakdown.Net,
	}
	if result.IsValid {
		proof := deriveConsensusProof(reportID, req)
		resp.ConsensusProof = &proof
	} else {
		resp.InvalidReason = optional(result.InvalidReason)
	}

	s.reply(c, key, done, http.StatusOK, resp)
}

func (s *Server) handleSettle(c *gin.Context) {
	req, ok := s.readPaymentRequest(c, protocol.ErrCodeSettlement, "Invalid settle request")
	if !ok {
		return
	}
	key := s.idempotencyKey(c, "/settle", req)
	s.withIdempotency(c, key, func(done chan struct{}) {
		s.processSettle(c, req, key, done)
	})
}

// processSettle verifies first, then dispatches the settlement. On-chain
// outcomes reply 200 whatever their status; facilitator errors reply 400
// in the same shape so clients always get a fee breakdown.
func (s *Server) processSettle(c *gin.Context, req *protocol.SettleRequest, key string, done chan struct{}) {
	ctx, cancel := requestContext(c, req)
	defer cancel()

	now := s.now().UTC()
	result := s.verifier.Verify(ctx, req)
	resp := s.settleBase(req, result, now)

	if !result.IsValid {
		resp.Error = optional(result.InvalidReason)
		s.reply(c, key, done, http.StatusOK, resp)
		return
	}

	if s.cfg.Mode == config.ModeDecentralized {
		resp.Error = optional("Decentralized settlement requires the external consensus workflow; run in managed mode to settle directly")
		s.reply(c, key, done, http.StatusBadRequest, resp)
		return
	}

	amount, ok := new(big.Int).SetString(req.PaymentRequirements.MaxAmountRequired, 10)
	if !ok || amount.Sign() < 0 {
		amount = big.NewInt(0)
	}
	feeAmount, netAmount := s.fees.Split(amount)

	outcome, err := s.settler.Settle(ctx, req, feeAmount, netAmount)
	if err != nil {
		var perr *protocol.Error
		if errors.As(err, &perr) {
			resp.Error = optional(perr.Message)
			s.reply(c, key, done, http.StatusBadRequest, resp)
			return
		}
		s.idem.Fail(key, done)
		s.log.Error("settlement failed", "network", req.PaymentRequirements.Network, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Internal server error",
			"code":  protocol.ErrCodeInternal,
		})
		return
	}

	resp.Success = outcome.Status == store.StatusConfirmed || outcome.Status == store.StatusPending
	resp.Error = settleErrorMessage(outcome.Status)
	resp.TxHash = optional(outcome.TxHash)
	resp.TxHashFee = outcome.TxHashFee
	resp.NetworkID = outcome.NetworkID
	resp.Status = string(outcome.Status)
	resp.EvidenceHash = outcome.EvidenceHash
	resp.ProofOfAgency = outcome.ProofOfAgency
	if resp.Success {
		proof := deriveConsensusProof(outcome.TxHash, req)
		resp.ConsensusProof = &proof
	}

	s.reply(c, key, done, http.StatusOK, resp)
}

// settleBase fills the fields every settle reply carries, with a
// best-effort network id for failures that never reached dispatch.
func (s *Server) settleBase(req *protocol.SettleRequest, result verify.Result, now time.Time) *settleResponse {
	breakdown := s.breakdown(req, result.Decimals, result.Symbol)
	id, _ := s.registry.ChainIDOf(req.PaymentRequirements.Network)
	return &settleResponse{
		NetworkID: id,
		Timestamp: now.Format(time.RFC3339),
		Amount:    breakdown.Amount,
		Fee:       breakdown.Fee,
		Net:       breakdown.Net,
		Status:    string(store.StatusFailed),
	}
}

// readPaymentRequest reads and schema-validates a payment request body,
// then applies the X-PAYMENT header fallback. On failure it writes the
// 400 itself and reports false.
func (s *Server) readPaymentRequest(c *gin.Context, errCode, errMsg string) (*protocol.PaymentRequest, bool) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errMsg, "code": errCode, "details": []string{err.Error()}})
		return nil, false
	}
	if details := validateBody(body); details != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errMsg, "code": errCode, "details": details})
		return nil, false
	}

	var req protocol.PaymentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errMsg, "code": errCode, "details": []string{err.Error()}})
		return nil, false
	}

	if len(req.PaymentHeader) == 0 || string(req.PaymentHeader) == "null" {
		if header := c.GetHeader("X-PAYMENT"); header != "" {
			raw, _ := json.Marshal(header)
			req.PaymentHeader = raw
		}
	}
	return &req, true
}

// idempotencyKey derives the request fingerprint. A client-supplied
// Idempotency-Key overrides it; the route prefix keeps verify and settle
// caches distinct under the same key.
func (s *Server) idempotencyKey(c *gin.Context, route string, req *protocol.PaymentRequest) string {
	if key := c.GetHeader("Idempotency-Key"); key != "" {
		return route + "|" + key
	}
	return fingerprint(route, req)
}

// withIdempotency runs process under the request fingerprint: cached
// replies are replayed byte for byte, concurrent duplicates park until
// the owning request completes, and an owner that failed without caching
// hands the slot to the next waiter.
func (s *Server) withIdempotency(c *gin.Context, key string, process func(done chan struct{})) {
	for {
		status, cached, done := s.idem.CheckAndMark(key)
		switch status {
		case statusCached:
			replay(c, cached)
			return
		case statusInFlight:
			cached, err := s.idem.WaitForReply(c.Request.Context(), key, done)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "Internal server error",
					"code":  protocol.ErrCodeInternal,
				})
				return
			}
			if cached != nil {
				replay(c, cached)
				return
			}
			continue
		default:
			process(done)
			return
		}
	}
}

// reply stores 200 responses under the fingerprint before writing them,
// so retries replay identical bytes. Error statuses release the in-flight
// marker instead, keeping them retryable.
func (s *Server) reply(c *gin.Context, key string, done chan struct{}, status int, body interface{}) {
	raw, err := json.Marshal(body)
	if err != nil {
		s.idem.Fail(key, done)
		s.log.Error("response marshal failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Internal server error",
			"code":  protocol.ErrCodeInternal,
		})
		return
	}
	if status == http.StatusOK {
		s.idem.Complete(key, &cachedReply{Status: status, Body: raw}, done)
	} else {
		s.idem.Fail(key, done)
	}
	c.Data(status, "application/json; charset=utf-8", raw)
}

func replay(c *gin.Context, cached *cachedReply) {
	c.Data(cached.Status, "application/json; charset=utf-8", cached.Body)
}

// requestContext applies the client-advertised timeout when present.
func requestContext(c *gin.Context, req *protocol.PaymentRequest) (context.Context, context.CancelFunc) {
	ctx := c.Request.Context()
	if t := req.PaymentRequirements.MaxTimeoutSeconds; t > 0 {
		return context.WithTimeout(ctx, time.Duration(t)*time.Second)
	}
	return ctx, func() {}
}
