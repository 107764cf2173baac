package gateway

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zerog-labs/x402-facilitator/internal/fees"
	"github.com/zerog-labs/x402-facilitator/internal/protocol"
	"github.com/zerog-labs/x402-facilitator/internal/store"
)

// verifyResponse is the body of POST /verify. The fee breakdown is
// populated for every outcome, valid or not.
type verifyResponse struct {
	IsValid        bool        `json:"isValid"`
	InvalidReason  *string     `json:"invalidReason"`
	ConsensusProof *string     `json:"consensusProof"`
	ReportID       string      `json:"reportId"`
	Timestamp      string      `json:"timestamp"`
	Amount         fees.Amount `json:"amount"`
	Fee            fees.Amount `json:"fee"`
	Net            fees.Amount `json:"net"`
}

// settleResponse is the body of POST /settle. Success tracks the
// settlement status: confirmed and pending count as success, partial
// settlements and failures do not.
type settleResponse struct {
	Success        bool        `json:"success"`
	Error          *string     `json:"error"`
	TxHash         *string     `json:"txHash"`
	TxHashFee      string      `json:"txHashFee,omitempty"`
	NetworkID      uint64      `json:"networkId"`
	ConsensusProof *string     `json:"consensusProof"`
	Timestamp      string      `json:"timestamp"`
	Amount         fees.Amount `json:"amount"`
	Fee            fees.Amount `json:"fee"`
	Net            fees.Amount `json:"net"`
	Status         string      `json:"status"`
	EvidenceHash   string      `json:"evidenceHash,omitempty"`
	ProofOfAgency  string      `json:"proofOfAgency,omitempty"`
}

// newReportID builds a report identifier of the form
// req_<unix-millis>_<9 random chars>.
func newReportID(now time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("req_%d_%s", now.UnixMilli(), random)
}

// deriveConsensusProof computes the 64-hex identifier attached to valid
// outcomes, binding the payment identity to this report.
func deriveConsensusProof(reportID string, req *protocol.PaymentRequest) string {
	seed := strings.Join([]string{
		reportID,
		string(req.PaymentHeader),
		req.PaymentRequirements.PayTo,
		req.PaymentRequirements.Network,
	}, "|")
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}

// optional maps an empty string to a JSON null.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// settleErrorMessage renders the error field for a settled but
// unsuccessful outcome.
func settleErrorMessage(status store.Status) *string {
	switch status {
	case store.StatusPartialSettlement:
		return optional("Fee transfer failed; merchant transfer settled")
	case store.StatusFailed:
		return optional("Transaction reverted on-chain")
	}
	return nil
}

// breakdown renders the fee split for a request. Unresolvable amounts
// degrade to zero and unresolved assets keep the requested string, so
// failure responses still carry a complete breakdown.
func (s *Server) breakdown(req *protocol.PaymentRequest, decimals uint8, symbol string) fees.Breakdown {
	amount, ok := new(big.Int).SetString(req.PaymentRequirements.MaxAmountRequired, 10)
	if !ok || amount.Sign() < 0 {
		amount = big.NewInt(0)
	}
	if symbol == "" {
		symbol = req.PaymentRequirements.Asset
	} else {
		symbol = strings.ToUpper(symbol)
	}
	return s.fees.Breakdown(amount, decimals, symbol)
}
