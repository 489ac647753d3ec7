package discount

import "github.com/shopspring/decimal"

// moneyPlaces is the currency precision every computed amount is rounded to.
const moneyPlaces = 2

var (
	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero
)

// lineTotal returns unit price * quantity for a single line.
func lineTotal(l CartLine) decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// subtotal returns the sum of unit price * quantity across lines.
func subtotal(lines []CartLine) decimal.Decimal {
	sum := zero
	for _, l := range lines {
		sum = sum.Add(lineTotal(l))
	}
	return sum
}

// units returns the sum of quantities across lines.
func units(lines []CartLine) int {
	total := 0
	for _, l := range lines {
		total += l.Quantity
	}
	return total
}

// percentOf returns base * pct / 100 using banker's rounding at currency precision.
func percentOf(base, pct decimal.Decimal) decimal.Decimal {
	return base.Mul(pct).Div(hundred).RoundBank(moneyPlaces)
}

// clampAmount bounds d to [0, ceiling].
func clampAmount(d, ceiling decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return zero
	}
	if d.GreaterThan(ceiling) {
		return ceiling
	}
	return d
}

// floorAtZero clamps negative values to zero.
func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return zero
	}
	return d
}
