package main

import (
	"os"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/xenking/storefront-promotions/internal/domain/discount"
	"github.com/xenking/storefront-promotions/internal/domain/product"
)

// fixture is the seed file layout. Money is written as strings so YAML never
// turns it into a float.
type fixture struct {
	Tenant struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"tenant"`
	APIKey struct {
		ID     string   `yaml:"id"`
		Name   string   `yaml:"name"`
		Scopes []string `yaml:"scopes"`
	} `yaml:"api_key"`
	Products  []productFixture  `yaml:"products"`
	Customers []customerFixture `yaml:"customers"`
	Rules     []ruleFixture     `yaml:"rules"`
}

type productFixture struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Price    string `yaml:"price"`
	Category string `yaml:"category"`
}

type customerFixture struct {
	ID     string `yaml:"id"`
	Email  string `yaml:"email"`
	Member bool   `yaml:"member"`
}

type ruleFixture struct {
	ID                string     `yaml:"id"`
	Name              string     `yaml:"name"`
	Kind              string     `yaml:"kind"`
	Value             string     `yaml:"value"`
	Scope             string     `yaml:"scope"`
	CategoryIDs       []string   `yaml:"category_ids"`
	ProductIDs        []string   `yaml:"product_ids"`
	MinimumCartAmount string     `yaml:"minimum_cart_amount"`
	MinimumQuantity   int        `yaml:"minimum_quantity"`
	ActiveFrom        *time.Time `yaml:"active_from"`
	ActiveUntil       *time.Time `yaml:"active_until"`
	Priority          int        `yaml:"priority"`
	Stackable         bool       `yaml:"stackable"`
	UsageLimit        int        `yaml:"usage_limit"`
	Code              string     `yaml:"code"`
	Tiers             []struct {
		MinQuantity int    `yaml:"min_quantity"`
		PercentOff  string `yaml:"percent_off"`
	} `yaml:"tiers"`
	Threshold struct {
		MinimumSpend string `yaml:"minimum_spend"`
		FixedPrice   string `yaml:"fixed_price"`
	} `yaml:"threshold"`
	Bundle struct {
		X             int    `yaml:"x"`
		Y             int    `yaml:"y"`
		GiftProductID string `yaml:"gift_product_id"`
	} `yaml:"bundle"`
}

func loadFixture(path string) (*fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read fixture")
	}
	var f fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "parse fixture")
	}
	if f.Tenant.ID == "" {
		return nil, errors.New("fixture has no tenant id")
	}
	return &f, nil
}

func (f *fixture) products() ([]product.Product, error) {
	out := make([]product.Product, 0, len(f.Products))
	for _, p := range f.Products {
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			return nil, errors.Wrapf(err, "product %s price", p.ID)
		}
		out = append(out, product.Product{
			ID:         p.ID,
			TenantID:   f.Tenant.ID,
			Name:       p.Name,
			Price:      price,
			CategoryID: p.Category,
		})
	}
	return out, nil
}

func (f *fixture) rules() ([]discount.Rule, error) {
	out := make([]discount.Rule, 0, len(f.Rules))
	for _, r := range f.Rules {
		rule, err := r.rule()
		if err != nil {
			return nil, errors.Wrapf(err, "rule %s", r.ID)
		}
		out = append(out, rule)
	}
	return out, nil
}

func (r ruleFixture) rule() (discount.Rule, error) {
	rule := discount.Rule{
		ID:              r.ID,
		Name:            r.Name,
		Kind:            discount.Kind(r.Kind),
		Scope:           discount.Scope(r.Scope),
		CategoryIDs:     r.CategoryIDs,
		ProductIDs:      r.ProductIDs,
		MinimumQuantity: r.MinimumQuantity,
		ActiveFrom:      r.ActiveFrom,
		ActiveUntil:     r.ActiveUntil,
		Priority:        r.Priority,
		Stackable:       r.Stackable,
		UsageLimit:      r.UsageLimit,
		Code:            r.Code,
		Bundle: discount.Bundle{
			X:             r.Bundle.X,
			Y:             r.Bundle.Y,
			GiftProductID: r.Bundle.GiftProductID,
		},
	}

	var err error
	if rule.Value, err = optionalDecimal(r.Value); err != nil {
		return rule, errors.Wrap(err, "value")
	}
	if r.MinimumCartAmount != "" {
		v, err := decimal.NewFromString(r.MinimumCartAmount)
		if err != nil {
			return rule, errors.Wrap(err, "minimum_cart_amount")
		}
		rule.MinimumCartAmount = decimal.NewNullDecimal(v)
	}
	if rule.Threshold.MinimumSpend, err = optionalDecimal(r.Threshold.MinimumSpend); err != nil {
		return rule, errors.Wrap(err, "threshold.minimum_spend")
	}
	if rule.Threshold.FixedPrice, err = optionalDecimal(r.Threshold.FixedPrice); err != nil {
		return rule, errors.Wrap(err, "threshold.fixed_price")
	}
	for _, t := range r.Tiers {
		pct, err := decimal.NewFromString(t.PercentOff)
		if err != nil {
			return rule, errors.Wrap(err, "tier percent_off")
		}
		rule.Tiers = append(rule.Tiers, discount.Tier{MinQuantity: t.MinQuantity, PercentOff: pct})
	}

	if err := rule.Validate(); err != nil {
		return rule, err
	}
	return rule, nil
}

func optionalDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
