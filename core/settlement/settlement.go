// Package settlement exposes the delivered-flex-power reconciliation
// formula consumed by the settlement coordinators. All arithmetic is
// exact; power values are integers in watts.
package settlement

import "math/big"

// DeliveredFlexPower computes how much of the ordered flex power was
// actually delivered, given the prognosis baseline and the allocated
// (metered) power. The sign of the order selects the direction:
// reductions are ordered as negative power.
func DeliveredFlexPower(ordered, prognosis, allocated *big.Int) *big.Int {
	actual := new(big.Int).Sub(allocated, prognosis)
	zero := new(big.Int)

	if ordered.Sign() >= 0 {
		if actual.Cmp(ordered) >= 0 {
			return min(actual, ordered)
		}
		return max(zero, actual)
	}
	if actual.Cmp(ordered) <= 0 {
		return new(big.Int).Abs(max(actual, ordered))
	}
	return new(big.Int).Abs(min(zero, actual))
}

func min(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

func max(a, b *big.Int) *big.Int {
	if a.Cmp(b) >= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
