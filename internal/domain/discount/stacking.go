package discount

// resolveStacking selects the candidates that may apply together. Stackable
// rules are always selected; the first non-stackable rule in priority order
// takes the single exclusive slot and every later non-stackable rule is
// rejected.
func resolveStacking(candidates []*Rule, rej *rejections) []*Rule {
	selected := make([]*Rule, 0, len(candidates))
	exclusiveTaken := false
	for _, r := range candidates {
		if r.Stackable {
			selected = append(selected, r)
			continue
		}
		if exclusiveTaken {
			rej.add(r, ErrExcludedByExclusive)
			continue
		}
		exclusiveTaken = true
		selected = append(selected, r)
	}
	return selected
}
