// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package billing

import (
	"github.com/shopspring/decimal"
)

// SplitEvenly divides totalCents into n shares that sum exactly to the total.
// Leftover cents go to the first shares, so shares differ by at most one cent.
func SplitEvenly(totalCents int64, n int) []int64 {
	if n <= 0 || totalCents <= 0 {
		return []int64{}
	}

	total := decimal.NewFromInt(totalCents)
	base := total.Div(decimal.NewFromInt(int64(n))).Floor().IntPart()
	remainder := totalCents - base*int64(n)

	shares := make([]int64, n)
	for i := range shares {
		shares[i] = base
		if int64(i) < remainder {
			shares[i]++
		}
	}
	return shares
}

// TipFromPercent returns pct percent of amountCents, rounded half-up to a cent.
func TipFromPercent(amountCents int64, pct float64) int64 {
	if amountCents <= 0 || pct <= 0 {
		return 0
	}
	tip := decimal.NewFromInt(amountCents).
		Mul(decimal.NewFromFloat(pct)).
		Div(decimal.NewFromInt(100)).
		Round(0)
	return tip.IntPart()
}

// ResolveTip picks an explicit tip over a percentage
func ResolveTip(amountCents, tipCents int64, tipPercent float64) int64 {
	if tipCents > 0 {
		return tipCents
	}
	return TipFromPercent(amountCents, tipPercent)
}
