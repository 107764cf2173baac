package protocol

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// SplitSignature decomposes a combined 65-byte signature into its (v, r, s)
// components. The input may carry a 0x prefix or not. The recovery id is
// normalized to the Ethereum convention (27/28).
func SplitSignature(signature string) (v uint8, r, s string, err error) {
	sigBytes := common.FromHex(signature)
	if len(sigBytes) != 65 {
		return 0, "", "", fmt.Errorf("invalid signature length: expected 65 bytes, got %d", len(sigBytes))
	}

	r = hexutil.Encode(sigBytes[0:32])
	s = hexutil.Encode(sigBytes[32:64])
	v = sigBytes[64]
	if v < 27 {
		v += 27
	}
	return v, r, s, nil
}

// CombineSignature reassembles (v, r, s) into the combined 65-byte hex form.
func CombineSignature(v uint8, r, s string) (string, error) {
	rBytes := common.FromHex(r)
	sBytes := common.FromHex(s)
	if len(rBytes) != 32 || len(sBytes) != 32 {
		return "", fmt.Errorf("invalid signature components: r and s must be 32 bytes each")
	}

	sig := make([]byte, 65)
	copy(sig[0:32], rBytes)
	copy(sig[32:64], sBytes)
	sig[64] = v
	return hexutil.Encode(sig), nil
}
