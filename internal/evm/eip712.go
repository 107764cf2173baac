package evm

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// TypedDataDomain identifies the EIP-712 signing domain of a token
// contract. Name and Version come from token configuration, ChainID and
// VerifyingContract from the network the payment targets.
type TypedDataDomain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract string
}

// TransferAuthorizationMessage is the EIP-3009 struct that the payer
// signed. All numeric fields are decimal strings, the nonce is 32-byte hex.
type TransferAuthorizationMessage struct {
	From        string
	To          string
	Value       string
	ValidAfter  string
	ValidBefore string
	Nonce       string
}

// transferWithAuthorizationTypes is the typed-data layout of EIP-3009.
// Field order must match the token contract.
var transferWithAuthorizationTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"TransferWithAuthorization": {
		{Name: "from", Type: "address"},
		{Name: "to", Type: "address"},
		{Name: "value", Type: "uint256"},
		{Name: "validAfter", Type: "uint256"},
		{Name: "validBefore", Type: "uint256"},
		{Name: "nonce", Type: "bytes32"},
	},
}

// TransferAuthorizationDigest computes the EIP-712 digest
// keccak256(0x19 0x01 || domainSeparator || structHash) for an EIP-3009
// transfer authorization.
func TransferAuthorizationDigest(domain TypedDataDomain, msg TransferAuthorizationMessage) ([]byte, error) {
	typedData := apitypes.TypedData{
		Types:       transferWithAuthorizationTypes,
		PrimaryType: "TransferWithAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:              domain.Name,
			Version:           domain.Version,
			ChainId:           (*math.HexOrDecimal256)(domain.ChainID),
			VerifyingContract: domain.VerifyingContract,
		},
		Message: apitypes.TypedDataMessage{
			"from":        msg.From,
			"to":          msg.To,
			"value":       msg.Value,
			"validAfter":  msg.ValidAfter,
			"validBefore": msg.ValidBefore,
			"nonce":       msg.Nonce,
		},
	}

	structHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash struct: %w", err)
	}

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}

	rawData := []byte{0x19, 0x01}
	rawData = append(rawData, domainSeparator...)
	rawData = append(rawData, structHash...)
	return crypto.Keccak256(rawData), nil
}

// RecoverAuthorizationSigner recovers the address that signed an EIP-3009
// authorization from its split (v, r, s) signature.
func RecoverAuthorizationSigner(domain TypedDataDomain, msg TransferAuthorizationMessage, v uint8, r, s string) (string, error) {
	digest, err := TransferAuthorizationDigest(domain, msg)
	if err != nil {
		return "", err
	}

	sig, err := joinSignature(v, r, s)
	if err != nil {
		return "", err
	}

	pubKey, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return "", fmt.Errorf("failed to recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pubKey).Hex(), nil
}

// joinSignature rebuilds the 65-byte form with the recovery id go-ethereum
// expects (0/1 rather than 27/28).
func joinSignature(v uint8, r, s string) ([]byte, error) {
	rBytes, err := HexTo32(r)
	if err != nil {
		return nil, fmt.Errorf("invalid r: %w", err)
	}
	sBytes, err := HexTo32(s)
	if err != nil {
		return nil, fmt.Errorf("invalid s: %w", err)
	}

	sig := make([]byte, 65)
	copy(sig[0:32], rBytes[:])
	copy(sig[32:64], sBytes[:])
	if v >= 27 {
		v -= 27
	}
	sig[64] = v
	return sig, nil
}

// HexTo32 decodes a 0x-prefixed hex string into a fixed 32-byte array, the
// form bytes32 contract arguments take.
func HexTo32(s string) ([32]byte, error) {
	var out [32]byte
	cleaned := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	decoded, err := hex.DecodeString(cleaned)
	if err != nil {
		return out, fmt.Errorf("failed to decode hex: %w", err)
	}
	if len(decoded) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(decoded))
	}
	copy(out[:], decoded)
	return out, nil
}
