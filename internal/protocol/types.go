package protocol

import "encoding/json"

// Protocol constants.
const (
	// X402Version is the protocol version this facilitator speaks.
	X402Version = 1

	// SchemeExact is the only payment scheme currently supported.
	SchemeExact = "exact"
)

// PaymentRequirements are the merchant-stated terms of a payment, echoed
// back by the client alongside the signed payment header.
type PaymentRequirements struct {
	Scheme            string `json:"scheme"`
	Network           string `json:"network"`
	Asset             string `json:"asset"`             // token symbol or contract address
	PayTo             string `json:"payTo"`             // merchant address (hex)
	MaxAmountRequired string `json:"maxAmountRequired"` // base units, decimal string
	Resource          string `json:"resource,omitempty"`
	Description       string `json:"description,omitempty"`
	MimeType          string `json:"mimeType,omitempty"`
	MaxTimeoutSeconds int    `json:"maxTimeoutSeconds,omitempty"`
}

// PaymentRequest is the body of POST /verify and POST /settle.
// PaymentHeader is either a base64-encoded JSON string or a structured
// object in any of the shapes accepted by Normalize.
type PaymentRequest struct {
	X402Version         int                 `json:"x402Version"`
	PaymentHeader       json.RawMessage     `json:"paymentHeader,omitempty"`
	PaymentRequirements PaymentRequirements `json:"paymentRequirements"`
	AgentID             string              `json:"agentId,omitempty"`
}

// VerifyRequest and SettleRequest share one wire shape.
type (
	VerifyRequest = PaymentRequest
	SettleRequest = PaymentRequest
)

// Authorization is the canonical payment authorization produced by the
// header normalizer: one flat record with the signature already split.
type Authorization struct {
	From        string `json:"from"`                  // payer address (hex)
	To          string `json:"to,omitempty"`          // recipient address (hex)
	Value       string `json:"value,omitempty"`       // base units, decimal string
	ValidAfter  string `json:"validAfter,omitempty"`  // unix seconds, decimal string
	ValidBefore string `json:"validBefore,omitempty"` // unix seconds, decimal string
	Nonce       string `json:"nonce"`                 // 32-byte hex, 0x-prefixed
	V           uint8  `json:"v"`
	R           string `json:"r"` // 32-byte hex, 0x-prefixed
	S           string `json:"s"` // 32-byte hex, 0x-prefixed
}
