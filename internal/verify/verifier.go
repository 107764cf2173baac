// Package verify implements the read-only checks that precede settlement:
// header well-formedness, validity window, payer balance, nonce freshness
// for EIP-3009 tokens, and allowance cover for relayer tokens.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/zerog-labs/x402-facilitator/internal/evm"
	"github.com/zerog-labs/x402-facilitator/internal/fees"
	"github.com/zerog-labs/x402-facilitator/internal/protocol"
	"github.com/zerog-labs/x402-facilitator/internal/registry"
)

// Result is the outcome of a verification. Decimals and Symbol are
// populated whenever the asset resolves, so callers can render a fee
// breakdown even for invalid payments.
type Result struct {
	IsValid       bool
	InvalidReason string
	Payer         string
	Decimals      uint8
	Symbol        string
}

// Verifier checks payment authorizations against live chain state.
// It never returns an error: every failure, including RPC failures,
// becomes an invalid result with a human-readable reason.
type Verifier struct {
	registry *registry.Registry
	log      *slog.Logger

	now func() time.Time // test seam
}

// New creates a verifier over the given registry.
func New(reg *registry.Registry, log *slog.Logger) *Verifier {
	return &Verifier{registry: reg, log: log, now: time.Now}
}

// Verify runs the sequential checks over a payment request and reports
// the first failure, if any.
func (v *Verifier) Verify(ctx context.Context, req *protocol.PaymentRequest) Result {
	requirements := req.PaymentRequirements

	token, deployment, err := v.registry.ResolveAsset(requirements.Network, requirements.Asset)
	if err != nil {
		return Result{InvalidReason: reason(err)}
	}
	result := Result{Decimals: token.Decimals, Symbol: token.Symbol}

	auth, err := protocol.Normalize(req.PaymentHeader)
	if err != nil {
		result.InvalidReason = reason(err)
		return result
	}
	result.Payer = auth.From

	decimals, err := v.resolveDecimals(ctx, requirements.Network, token, deployment)
	if err != nil {
		result.InvalidReason = reason(err)
		return result
	}
	result.Decimals = decimals

	amount, ok := new(big.Int).SetString(requirements.MaxAmountRequired, 10)
	if !ok || amount.Sign() < 0 {
		result.InvalidReason = fmt.Sprintf("invalid required amount: %s", requirements.MaxAmountRequired)
		return result
	}

	now := v.now().Unix()
	if auth.ValidAfter != "" {
		validAfter, err := strconv.ParseInt(auth.ValidAfter, 10, 64)
		if err != nil {
			result.InvalidReason = fmt.Sprintf("invalid validAfter: %s", auth.ValidAfter)
			return result
		}
		if now < validAfter {
			result.InvalidReason = fmt.Sprintf("Authorization not yet valid (validAfter: %d, now: %d)", validAfter, now)
			return result
		}
	}
	if auth.ValidBefore != "" {
		validBefore, err := strconv.ParseInt(auth.ValidBefore, 10, 64)
		if err != nil {
			result.InvalidReason = fmt.Sprintf("invalid validBefore: %s", auth.ValidBefore)
			return result
		}
		if now > validBefore {
			result.InvalidReason = fmt.Sprintf("Authorization expired (validBefore: %d, now: %d)", validBefore, now)
			return result
		}
	}

	reader, err := v.registry.Reader(requirements.Network)
	if err != nil {
		result.InvalidReason = reason(err)
		return result
	}

	balance, err := reader.GetBalance(ctx, auth.From, deployment.Address)
	if err != nil {
		result.InvalidReason = reason(err)
		return result
	}
	if balance.Cmp(amount) < 0 {
		result.InvalidReason = fmt.Sprintf("Insufficient %s balance. Required: %s, Available: %s",
			strings.ToUpper(token.Symbol), fees.FormatUnits(amount, decimals), fees.FormatUnits(balance, decimals))
		return result
	}

	if token.SupportsEIP3009 {
		used, err := evm.AuthorizationState(ctx, reader, deployment.Address, auth.From, auth.Nonce)
		if err != nil {
			result.InvalidReason = reason(err)
			return result
		}
		if used {
			result.InvalidReason = fmt.Sprintf("Authorization already used (nonce: %s)", auth.Nonce)
			return result
		}

		if mismatch := v.checkSignature(requirements.Network, token, deployment, auth); mismatch != "" {
			result.InvalidReason = mismatch
			return result
		}
	} else {
		facilitator := v.registry.WalletAddress()
		if facilitator == "" {
			result.InvalidReason = "facilitator signing key is not configured"
			return result
		}
		allowance, err := evm.Allowance(ctx, reader, deployment.Address, auth.From, facilitator)
		if err != nil {
			result.InvalidReason = reason(err)
			return result
		}
		if allowance.Cmp(amount) < 0 {
			result.InvalidReason = fmt.Sprintf("Insufficient allowance. Required: %s, Approved: %s (approve facilitator %s)",
				fees.FormatUnits(amount, decimals), fees.FormatUnits(allowance, decimals), facilitator)
			return result
		}
	}

	result.IsValid = true
	return result
}

// resolveDecimals prefers the configured decimals and falls back to an
// RPC read for tokens registered without them.
func (v *Verifier) resolveDecimals(ctx context.Context, network string, token registry.TokenRecord, deployment registry.TokenDeployment) (uint8, error) {
	if token.Decimals > 0 {
		return token.Decimals, nil
	}
	reader, err := v.registry.Reader(network)
	if err != nil {
		return 0, err
	}
	return evm.TokenDecimals(ctx, reader, deployment.Address)
}

// checkSignature recovers the EIP-712 signer and compares it to the
// declared payer. The check only runs when the header carried the full
// signed tuple; partial headers are left for the chain to reject.
func (v *Verifier) checkSignature(network string, token registry.TokenRecord, deployment registry.TokenDeployment, auth *protocol.Authorization) string {
	if auth.To == "" || auth.Value == "" || auth.ValidAfter == "" || auth.ValidBefore == "" {
		return ""
	}

	domain, err := v.registry.EIP712Domain(network, deployment)
	if err != nil {
		return reason(err)
	}
	signer, err := evm.RecoverAuthorizationSigner(domain, evm.TransferAuthorizationMessage{
		From:        auth.From,
		To:          auth.To,
		Value:       auth.Value,
		ValidAfter:  auth.ValidAfter,
		ValidBefore: auth.ValidBefore,
		Nonce:       auth.Nonce,
	}, auth.V, auth.R, auth.S)
	if err != nil {
		return fmt.Sprintf("invalid signature: %v", err)
	}
	if !strings.EqualFold(signer, auth.From) {
		v.log.Debug("signature recovery mismatch", "network", network, "token", token.Symbol, "payer", auth.From, "signer", signer)
		return "Signature does not match authorization signer"
	}
	return ""
}

// reason extracts the human-readable message from a facilitator error,
// falling back to the raw error text.
func reason(err error) string {
	var perr *protocol.Error
	if errors.As(err, &perr) {
		return perr.Message
	}
	return err.Error()
}
