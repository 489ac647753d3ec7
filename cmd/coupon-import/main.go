// Command coupon-import loads single-use coupons for a tenant from gzip files
// of codes, one code per line.
//
//	coupon-import -tenant shop -template spring -kind percentage -value 15 batch1.gz batch2.gz
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront-promotions/internal/domain/discount"
	"github.com/xenking/storefront-promotions/internal/repository"
)

type options struct {
	databaseURL string
	tenantID    string
	templateID  string
	name        string
	kind        string
	value       string
	expires     string
	capacity    uint
	files       []string
}

func main() {
	var opts options
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.tenantID, "tenant", "", "tenant the coupons belong to")
	flag.StringVar(&opts.templateID, "template", "", "rule ID prefix of the imported coupons")
	flag.StringVar(&opts.name, "name", "", "display name of the coupons")
	flag.StringVar(&opts.kind, "kind", string(discount.KindPercentage), "discount kind: percentage, fixed_amount or free_shipping")
	flag.StringVar(&opts.value, "value", "10", "discount value")
	flag.StringVar(&opts.expires, "expires", "", "optional RFC 3339 expiry of the coupons")
	flag.UintVar(&opts.capacity, "capacity", 10_000_000, "expected codes per file")
	flag.Parse()
	opts.files = flag.Args()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}

	lg, err := zap.NewProduction()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "create logger:", err)
		os.Exit(1)
	}
	defer func() { _ = lg.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, opts); err != nil {
		lg.Error("Coupon import failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, lg *zap.Logger, opts options) error {
	template, err := opts.template()
	if err != nil {
		return err
	}
	if opts.databaseURL == "" {
		return errors.New("database URL is required: set -database-url or DATABASE_URL")
	}
	if opts.tenantID == "" {
		return errors.New("-tenant is required")
	}
	if len(opts.files) == 0 {
		return errors.New("no input files")
	}
	for _, f := range opts.files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	pool, err := repository.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	w := &ruleWriter{
		rules:    repository.NewRuleRepository(repository.NewStore(pool)),
		tenantID: opts.tenantID,
		template: template,
	}
	im := NewImporter(lg, w)
	im.Capacity = opts.capacity

	start := time.Now()
	stats, err := im.Run(ctx, opts.files)
	if err != nil {
		return err
	}
	lg.Info("Coupon import completed",
		zap.String("tenant_id", opts.tenantID),
		zap.Uint64("scanned", stats.Scanned),
		zap.Int("collisions", stats.Collisions),
		zap.Int("inserted", stats.Inserted),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}

func (o options) template() (*discount.Rule, error) {
	if o.templateID == "" {
		return nil, errors.New("-template is required")
	}
	value, err := decimal.NewFromString(o.value)
	if err != nil {
		return nil, errors.Wrap(err, "parse -value")
	}
	kind := discount.Kind(o.kind)
	switch kind {
	case discount.KindPercentage, discount.KindFixedAmount, discount.KindFreeShipping:
	default:
		return nil, errors.Errorf("unsupported -kind %q", o.kind)
	}

	rule := &discount.Rule{
		ID:    o.templateID,
		Name:  o.name,
		Kind:  kind,
		Scope: discount.ScopeAll,
		Value: value,
	}
	if o.expires != "" {
		until, err := time.Parse(time.RFC3339, o.expires)
		if err != nil {
			return nil, errors.Wrap(err, "parse -expires")
		}
		rule.ActiveUntil = &until
	}
	if err := rule.Validate(); err != nil {
		return nil, errors.Wrap(err, "template")
	}
	return rule, nil
}

type ruleWriter struct {
	rules    *repository.RuleRepository
	tenantID string
	template *discount.Rule
}

func (w *ruleWriter) WriteCodes(ctx context.Context, codes []string) (int, error) {
	return w.rules.CreateCoupons(ctx, w.tenantID, w.template, codes)
}
