package discount

// giftSource ties calculator-produced gift lines to the rule that produced them.
type giftSource struct {
	rule  *Rule
	lines []CartLine
}

// resolveGifts merges gift lines per product in first-seen order. When
// maxUnits is positive the total number of gift units is capped; the rule
// whose gifts get trimmed is reported with ErrGiftLimitReached.
func resolveGifts(sources []giftSource, maxUnits int, rej *rejections) []CartLine {
	var (
		out   []CartLine
		index = make(map[string]int)
		given int
	)
	for _, src := range sources {
		trimmed := false
		for _, g := range src.lines {
			qty := g.Quantity
			if maxUnits > 0 && given+qty > maxUnits {
				qty = maxUnits - given
				trimmed = true
			}
			if qty <= 0 {
				continue
			}
			given += qty
			if i, ok := index[g.ProductID]; ok {
				out[i].Quantity += qty
				continue
			}
			index[g.ProductID] = len(out)
			g.Quantity = qty
			g.UnitPrice = zero
			out = append(out, g)
		}
		if trimmed {
			rej.add(src.rule, ErrGiftLimitReached)
		}
	}
	return out
}
