package protocol

import (
	"encoding/base64"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// base64Regex matches standard base64 with optional padding.
var base64Regex = regexp.MustCompile(`^[A-Za-z0-9+/]+={0,2}$`)

// Normalize turns a raw paymentHeader field, either a base64-encoded JSON
// string or a structured object, into the canonical Authorization.
//
// Recognized object shapes, in order:
//  1. wrapped: {"payload": {"authorization": {...}, "signature": "0x..."}}
//  2. flat EIP-3009: {"from": ..., "nonce": ..., ...}
//  3. sender variant: {"sender": ..., "nonce": ...} (sender renamed to from)
func Normalize(raw json.RawMessage) (*Authorization, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, InvalidHeaderf("Missing payment header")
	}

	switch trimmed[0] {
	case '"':
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return nil, InvalidHeaderf("Invalid payment header: %v", err)
		}
		return NormalizeString(encoded)
	case '{':
		var obj map[string]interface{}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, InvalidHeaderf("Invalid payment header: not valid JSON - %v", err)
		}
		return normalizeObject(obj)
	default:
		return nil, InvalidHeaderf("Invalid payment header: expected string or object")
	}
}

// NormalizeString decodes a base64-encoded JSON payment header, the
// X-PAYMENT wire form, and normalizes the result.
func NormalizeString(header string) (*Authorization, error) {
	if header == "" {
		return nil, InvalidHeaderf("Missing payment header")
	}
	if !base64Regex.MatchString(header) {
		return nil, InvalidHeaderf("Invalid payment header format: not valid base64")
	}

	decoded, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, InvalidHeaderf("Invalid payment header format: base64 decoding failed - %v", err)
	}

	var obj map[string]interface{}
	if err := json.Unmarshal(decoded, &obj); err != nil {
		return nil, InvalidHeaderf("Invalid payment header format: not valid JSON - %v", err)
	}
	return normalizeObject(obj)
}

func normalizeObject(obj map[string]interface{}) (*Authorization, error) {
	if payload, ok := obj["payload"].(map[string]interface{}); ok {
		if auth, ok := payload["authorization"].(map[string]interface{}); ok {
			return buildAuthorization(auth, payload, obj)
		}
	}
	if hasField(obj, "from") && hasField(obj, "nonce") {
		return buildAuthorization(obj, obj)
	}
	if hasField(obj, "sender") && hasField(obj, "nonce") {
		flat := make(map[string]interface{}, len(obj))
		for k, v := range obj {
			flat[k] = v
		}
		flat["from"] = flat["sender"]
		delete(flat, "sender")
		return buildAuthorization(flat, flat)
	}
	return nil, InvalidHeaderf("Unrecognized payment header shape")
}

// buildAuthorization copies the authorization fields out of auth and
// resolves the signature by scanning the given maps outermost-last: split
// (v, r, s) components win when present and non-zero, otherwise a combined
// 65-byte signature string is decomposed.
func buildAuthorization(auth map[string]interface{}, scopes ...map[string]interface{}) (*Authorization, error) {
	out := &Authorization{
		From:        stringField(auth, "from"),
		To:          stringField(auth, "to"),
		Value:       stringField(auth, "value"),
		ValidAfter:  stringField(auth, "validAfter"),
		ValidBefore: stringField(auth, "validBefore"),
	}

	if out.From == "" {
		return nil, InvalidHeaderf("Missing payer address")
	}

	nonce, err := canonicalNonce(stringField(auth, "nonce"))
	if err != nil {
		return nil, err
	}
	out.Nonce = nonce

	for _, m := range scopes {
		v, r, s := splitComponents(m)
		if v != 0 && r != "" && s != "" {
			out.V, out.R, out.S = v, r, s
			return out, nil
		}
	}

	for _, m := range scopes {
		if sig := stringField(m, "signature"); sig != "" {
			v, r, s, err := SplitSignature(sig)
			if err != nil {
				return nil, InvalidHeaderf("Invalid signature: %v", err)
			}
			out.V, out.R, out.S = v, r, s
			return out, nil
		}
	}
	return nil, InvalidHeaderf("Missing signature")
}

func canonicalNonce(nonce string) (string, error) {
	if nonce == "" {
		return "", InvalidHeaderf("Missing authorization nonce")
	}
	if !strings.HasPrefix(nonce, "0x") && !strings.HasPrefix(nonce, "0X") {
		nonce = "0x" + nonce
	}
	if len(nonce) != 66 {
		return "", InvalidHeaderf("Invalid nonce: expected 32-byte hex, got %d characters", len(nonce))
	}
	return nonce, nil
}

func splitComponents(m map[string]interface{}) (v uint8, r, s string) {
	switch raw := m["v"].(type) {
	case float64:
		v = uint8(raw)
	case string:
		base := 10
		if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
			raw, base = raw[2:], 16
		}
		if n, err := strconv.ParseUint(raw, base, 8); err == nil {
			v = uint8(n)
		}
	}
	r = stringField(m, "r")
	s = stringField(m, "s")
	return v, r, s
}

func hasField(m map[string]interface{}, key string) bool {
	val, ok := m[key]
	return ok && val != nil
}

// stringField reads a field that may arrive as a JSON string or number.
func stringField(m map[string]interface{}, key string) string {
	switch val := m[key].(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return ""
	}
}
