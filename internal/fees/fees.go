// Package fees computes the facilitator fee split over base-unit integers.
package fees

import (
	"math/big"
	"strings"
)

// DefaultFeeBps is the facilitator fee in basis points (1%).
const DefaultFeeBps = 100

// bpsDenominator converts basis points to a fraction.
var bpsDenominator = big.NewInt(10000)

// Amount is one leg of a fee breakdown in both representations.
type Amount struct {
	Human  string `json:"human"`
	Base   string `json:"base"`
	Symbol string `json:"symbol"`
}

// Breakdown decomposes a gross payment amount into fee and net.
// Invariant: Fee.Base + Net.Base == Amount.Base, with
// fee = floor(amount * feeBps / 10000).
type Breakdown struct {
	Amount Amount `json:"amount"`
	Fee    Amount `json:"fee"`
	Net    Amount `json:"net"`
}

// Engine performs the fee computation at a fixed basis-point rate.
type Engine struct {
	feeBps *big.Int
}

// NewEngine creates a fee engine. Pass DefaultFeeBps outside of tests.
func NewEngine(feeBps int64) *Engine {
	return &Engine{feeBps: big.NewInt(feeBps)}
}

// Bps returns the configured fee rate in basis points.
func (e *Engine) Bps() int64 {
	return e.feeBps.Int64()
}

// Split returns (fee, net) for a gross base-unit amount.
func (e *Engine) Split(amount *big.Int) (fee, net *big.Int) {
	fee = new(big.Int).Mul(amount, e.feeBps)
	fee.Quo(fee, bpsDenominator)
	net = new(big.Int).Sub(amount, fee)
	return fee, net
}

// Breakdown renders the full three-way decomposition for a response.
func (e *Engine) Breakdown(amount *big.Int, decimals uint8, symbol string) Breakdown {
	fee, net := e.Split(amount)
	return Breakdown{
		Amount: Amount{Human: FormatUnits(amount, decimals), Base: amount.String(), Symbol: symbol},
		Fee:    Amount{Human: FormatUnits(fee, decimals), Base: fee.String(), Symbol: symbol},
		Net:    Amount{Human: FormatUnits(net, decimals), Base: net.String(), Symbol: symbol},
	}
}

// FormatUnits renders a non-negative base-unit amount as a decimal string,
// dividing by 10^decimals and trimming trailing zeros ("1.500000" -> "1.5",
// "1.000000" -> "1").
func FormatUnits(amount *big.Int, decimals uint8) string {
	if decimals == 0 {
		return amount.String()
	}

	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	quo, rem := new(big.Int).QuoRem(amount, divisor, new(big.Int))
	if rem.Sign() == 0 {
		return quo.String()
	}

	frac := rem.String()
	if pad := int(decimals) - len(frac); pad > 0 {
		frac = strings.Repeat("0", pad) + frac
	}
	frac = strings.TrimRight(frac, "0")
	return quo.String() + "." + frac
}
