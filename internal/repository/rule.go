package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront-promotions/internal/domain/discount"
	"github.com/xenking/storefront-promotions/internal/domain/promotion"
)

// ErrRuleExists is returned when a rule ID or coupon code is already taken.
var ErrRuleExists = errors.New("discount rule already exists")

const (
	ruleColumns = `id, name, kind, value, params, scope, category_ids, product_ids,
		minimum_cart_amount, minimum_quantity, active_from, active_until,
		priority, stackable, usage_limit, usage_count, code`

	// Expired rules are skipped here; rules that start later are kept so a
	// cached list stays valid once they become active.
	listAutomaticRulesSQL = `SELECT ` + ruleColumns + `
		FROM discount_rules
		WHERE tenant_id = $1 AND code IS NULL AND enabled
			AND (active_until IS NULL OR active_until >= $2)
		ORDER BY priority, created_at, id`

	getRuleByCodeSQL = `SELECT ` + ruleColumns + `
		FROM discount_rules
		WHERE tenant_id = $1 AND UPPER(code) = UPPER($2) AND enabled`

	consumeRuleUsageSQL = `UPDATE discount_rules SET usage_count = usage_count + 1
		WHERE tenant_id = $1 AND id = $2 AND (usage_limit = 0 OR usage_count < usage_limit)`

	insertRuleSQL = `INSERT INTO discount_rules (tenant_id, id, name, kind, value, params, scope,
		category_ids, product_ids, minimum_cart_amount, minimum_quantity, active_from, active_until,
		priority, stackable, usage_limit, usage_count, code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	insertRuleIgnoreConflictSQL = insertRuleSQL + ` ON CONFLICT DO NOTHING`
)

var _ promotion.RuleRepository = (*RuleRepository)(nil)

// RuleRepository implements promotion.RuleRepository backed by PostgreSQL.
type RuleRepository struct {
	db *Store
}

// NewRuleRepository returns a RuleRepository that uses the given store.
func NewRuleRepository(db *Store) *RuleRepository {
	return &RuleRepository{db: db}
}

// ListAutomatic returns enabled rules without a code that have not expired at
// now, ordered by priority.
func (r *RuleRepository) ListAutomatic(ctx context.Context, tenantID string, now time.Time) ([]discount.Rule, error) {
	rows, err := r.db.conn(ctx).Query(ctx, listAutomaticRulesSQL, tenantID, now)
	if err != nil {
		return nil, fmt.Errorf("listing automatic rules: %w", err)
	}
	rules, err := pgx.CollectRows(rows, scanRule)
	if err != nil {
		return nil, fmt.Errorf("listing automatic rules: %w", err)
	}
	return rules, nil
}

// FindByCode looks up an enabled coupon by its code (case-insensitive).
// Returns promotion.ErrCouponNotFound when there is none.
func (r *RuleRepository) FindByCode(ctx context.Context, tenantID, code string) (*discount.Rule, error) {
	rows, err := r.db.conn(ctx).Query(ctx, getRuleByCodeSQL, tenantID, strings.TrimSpace(code))
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	rule, err := pgx.CollectExactlyOneRow(rows, scanRule)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promotion.ErrCouponNotFound
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &rule, nil
}

// ConsumeUsage increments the usage counter in a single guarded UPDATE, so
// concurrent commits can never push it past the limit. Returns
// promotion.ErrUsageExhausted when the guard rejects the update.
func (r *RuleRepository) ConsumeUsage(ctx context.Context, tenantID, ruleID string) error {
	tag, err := r.db.conn(ctx).Exec(ctx, consumeRuleUsageSQL, tenantID, ruleID)
	if err != nil {
		return fmt.Errorf("consuming usage of rule %q: %w", ruleID, err)
	}
	if tag.RowsAffected() == 0 {
		return promotion.ErrUsageExhausted
	}
	return nil
}

// Create inserts a rule. Returns ErrRuleExists when its ID or code is taken.
func (r *RuleRepository) Create(ctx context.Context, tenantID string, rule *discount.Rule) error {
	if err := rule.Validate(); err != nil {
		return errors.Wrapf(err, "rule %q", rule.ID)
	}
	_, err := r.db.conn(ctx).Exec(ctx, insertRuleSQL, ruleArgs(tenantID, rule)...)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Wrapf(ErrRuleExists, "rule %q", rule.ID)
		}
		return fmt.Errorf("creating rule %q: %w", rule.ID, err)
	}
	return nil
}

// CreateCoupons inserts one single-use clone of template per code in a
// batch. Codes that already exist are skipped. It returns the number of
// coupons inserted.
func (r *RuleRepository) CreateCoupons(ctx context.Context, tenantID string, template *discount.Rule, codes []string) (int, error) {
	if err := template.Validate(); err != nil {
		return 0, errors.Wrap(err, "template")
	}

	batch := &pgx.Batch{}
	for _, code := range codes {
		clone := *template
		clone.ID = template.ID + "-" + strings.ToLower(code)
		clone.Code = strings.ToUpper(code)
		clone.UsageLimit = 1
		clone.UsageCount = 0
		batch.Queue(insertRuleIgnoreConflictSQL, ruleArgs(tenantID, &clone)...)
	}

	results := r.db.conn(ctx).SendBatch(ctx, batch)
	inserted := 0
	for range codes {
		tag, err := results.Exec()
		if err != nil {
			_ = results.Close()
			return inserted, fmt.Errorf("inserting coupons: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := results.Close(); err != nil {
		return inserted, fmt.Errorf("inserting coupons: %w", err)
	}
	return inserted, nil
}

func ruleArgs(tenantID string, rule *discount.Rule) []any {
	var code *string
	if rule.Code != "" {
		c := strings.ToUpper(strings.TrimSpace(rule.Code))
		code = &c
	}
	categoryIDs := rule.CategoryIDs
	if categoryIDs == nil {
		categoryIDs = []string{}
	}
	productIDs := rule.ProductIDs
	if productIDs == nil {
		productIDs = []string{}
	}
	return []any{
		tenantID, rule.ID, rule.Name, string(rule.Kind), rule.Value,
		discount.EncodeParams(rule), string(rule.Scope), categoryIDs, productIDs,
		rule.MinimumCartAmount, rule.MinimumQuantity, rule.ActiveFrom, rule.ActiveUntil,
		rule.Priority, rule.Stackable, rule.UsageLimit, rule.UsageCount, code,
	}
}

func scanRule(row pgx.CollectableRow) (discount.Rule, error) {
	var (
		rule   discount.Rule
		kind   string
		scope  string
		params []byte
		code   *string
	)
	err := row.Scan(
		&rule.ID, &rule.Name, &kind, &rule.Value, &params, &scope,
		&rule.CategoryIDs, &rule.ProductIDs, &rule.MinimumCartAmount, &rule.MinimumQuantity,
		&rule.ActiveFrom, &rule.ActiveUntil, &rule.Priority, &rule.Stackable,
		&rule.UsageLimit, &rule.UsageCount, &code,
	)
	if err != nil {
		return rule, err
	}
	rule.Kind = discount.Kind(kind)
	rule.Scope = discount.Scope(scope)
	if code != nil {
		rule.Code = *code
	}
	if err := discount.DecodeParams(params, &rule); err != nil {
		return rule, errors.Wrapf(err, "rule %q", rule.ID)
	}
	return rule, nil
}
