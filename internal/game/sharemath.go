package game

import (
	"math"
	"math/big"
)

// mulDivRound returns round-half-up(a*b/denom) using a wide intermediate.
// Results that do not fit in 64 bits saturate.
func mulDivRound(a, b, denom uint64) uint64 {
	if denom == 0 {
		return 0
	}
	v := new(big.Int).Mul(new(big.Int).SetUint64(a), new(big.Int).SetUint64(b))
	v.Add(v, new(big.Int).SetUint64(denom/2))
	v.Quo(v, new(big.Int).SetUint64(denom))
	if !v.IsUint64() {
		return math.MaxUint64
	}
	return v.Uint64()
}

// ShareToValue converts shares into pool value at the current share price.
func ShareToValue(o *Ocean, shares uint64) uint64 {
	if o.TotalShares == 0 {
		return 0
	}
	return mulDivRound(shares, o.Balance, o.TotalShares)
}

// NewShares returns the shares minted for value that has already been added
// to o.Balance. An empty ocean mints 1:1.
func NewShares(o *Ocean, value uint64) uint64 {
	if o.TotalShares == 0 {
		return value
	}
	denom := satSub(o.Balance, value)
	if denom == 0 {
		return 0
	}
	return mulDivRound(value, o.TotalShares, denom)
}

// QuoteNewShares previews NewShares for a deposit that is not yet in the ocean.
func QuoteNewShares(o Ocean, value uint64) uint64 {
	o.Balance = satAdd(o.Balance, value)
	return NewShares(&o, value)
}

// BaseFeedingRequirement is the raw feeding cost of share at the current
// feeding rate, ignoring hunt credit and the minimum.
func BaseFeedingRequirement(o *Ocean, share uint64) uint64 {
	return satMul(ShareToValue(o, share), uint64(o.FeedingBps)) / BasisPoints
}

// MinFeedingAmount is what the owner must spend to feed f right now.
func MinFeedingAmount(o *Ocean, f *Fish) uint64 {
	return max(satSub(BaseFeedingRequirement(o, f.Share), f.ReceivedFromHuntValue), MinFeed)
}

func satAdd(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}

func satSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

func satMul(a, b uint64) uint64 {
	if a == 0 || b == 0 {
		return 0
	}
	if a > math.MaxUint64/b {
		return math.MaxUint64
	}
	return a * b
}

func checkedSub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrMathOverflow
	}
	return a - b, nil
}

func checkedAdd(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, ErrMathOverflow
	}
	return a + b, nil
}
