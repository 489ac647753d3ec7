package discount

import (
	"go.uber.org/zap"
)

// Config tunes engine policy. The zero value is usable.
type Config struct {
	// MinQuantityBasis decides which units count towards MinimumQuantity.
	// Defaults to MinQuantityMatchingLines.
	MinQuantityBasis MinQuantityBasis
	// MaxGiftUnits caps the gift units added to one cart. Zero means unlimited.
	MaxGiftUnits int
}

// Engine evaluates discount rules against carts. It holds only immutable
// configuration and is safe for concurrent use.
type Engine struct {
	lg               *zap.Logger
	minQuantityBasis MinQuantityBasis
	maxGiftUnits     int
}

// NewEngine creates an Engine. A nil logger disables logging.
func NewEngine(cfg Config, lg *zap.Logger) *Engine {
	if lg == nil {
		lg = zap.NewNop()
	}
	basis := cfg.MinQuantityBasis
	if !basis.Valid() {
		basis = MinQuantityMatchingLines
	}
	maxGifts := cfg.MaxGiftUnits
	if maxGifts < 0 {
		maxGifts = 0
	}
	return &Engine{
		lg:               lg,
		minQuantityBasis: basis,
		maxGiftUnits:     maxGifts,
	}
}

var defaultEngine = NewEngine(Config{}, nil)

// Calculate runs the default engine. See Engine.Calculate.
func Calculate(cart []CartLine, rules []Rule, cctx Context) Result {
	return defaultEngine.Calculate(cart, rules, cctx)
}

// Calculate decides which rules apply to cart and what they are worth.
//
// Rules are filtered for eligibility, ordered by priority, reduced to at most
// one exclusive rule plus any number of stackable ones, and then calculated
// one by one against the original line prices. Nothing is returned as an
// error: rejected rules are listed in Result.Rejections and Result.Errors.
// The cart and rules are not modified.
func (e *Engine) Calculate(cart []CartLine, rules []Rule, cctx Context) Result {
	var rej rejections

	candidates := e.filter(cart, rules, cctx, &rej)
	selected := resolveStacking(candidates, &rej)

	agg := newAggregator(e.lg, cart, cctx)
	for _, r := range selected {
		out, err := calculate(r, cart)
		if err != nil {
			agg.violation(&InvariantError{RuleID: r.ID, Detail: err.Error()})
			rej.add(r, ErrInvalidRule)
			continue
		}
		agg.add(r, out, &rej)
	}

	res := agg.finish(resolveGifts(agg.gifts, e.maxGiftUnits, &rej))
	res.Rejections = rej.items
	res.Errors = rej.messages

	for _, r := range rej.items {
		if r.Code != "" {
			continue
		}
		e.lg.Debug("Automatic discount not applied",
			zap.String("rule_id", r.RuleID),
			zap.String("reason", r.Reason.Error()),
		)
	}
	return res
}
