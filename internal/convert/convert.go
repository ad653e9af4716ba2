// Package convert holds the conversion policies between input and output
// asset amounts.
package convert

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
)

// Policy maps deposited input units to minted output units and back.
type Policy interface {
	ToOutput(amount uint64) (uint64, error)
	ToInput(amount uint64) (uint64, error)
}

// Identity converts one input unit to one output unit.
type Identity struct{}

func (Identity) ToOutput(amount uint64) (uint64, error) { return amount, nil }
func (Identity) ToInput(amount uint64) (uint64, error)  { return amount, nil }

// Ratio mints Num output units per Den input units, rounding down in both
// directions so a round trip never returns more than was deposited.
type Ratio struct {
	num sdkmath.Int
	den sdkmath.Int
}

func NewRatio(num, den uint64) (*Ratio, error) {
	if num == 0 || den == 0 {
		return nil, fmt.Errorf("ratio %d/%d: terms must be positive", num, den)
	}
	return &Ratio{
		num: sdkmath.NewIntFromUint64(num),
		den: sdkmath.NewIntFromUint64(den),
	}, nil
}

func (r *Ratio) ToOutput(amount uint64) (uint64, error) {
	return scale(amount, r.num, r.den)
}

func (r *Ratio) ToInput(amount uint64) (uint64, error) {
	return scale(amount, r.den, r.num)
}

func (r *Ratio) String() string {
	return r.num.String() + "/" + r.den.String()
}

func scale(amount uint64, mul, quo sdkmath.Int) (uint64, error) {
	out := sdkmath.NewIntFromUint64(amount).Mul(mul).Quo(quo)
	if !out.IsUint64() {
		return 0, fmt.Errorf("converted amount %s overflows uint64", out)
	}
	return out.Uint64(), nil
}

// FromConfig builds the policy named by kind. An empty kind is identity.
func FromConfig(kind string, num, den uint64) (Policy, error) {
	switch kind {
	case "", "identity":
		return Identity{}, nil
	case "ratio":
		return NewRatio(num, den)
	default:
		return nil, fmt.Errorf("unknown conversion policy %q", kind)
	}
}
