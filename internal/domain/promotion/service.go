package promotion

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront-promotions/internal/domain/discount"
)

// Options configures Service. Zero values fall back to defaults.
type Options struct {
	Logger         *zap.Logger
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
	// Now is the clock used for rule windows.
	Now func() time.Time
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.MeterProvider == nil {
		o.MeterProvider = metricnoop.NewMeterProvider()
	}
	if o.TracerProvider == nil {
		o.TracerProvider = tracenoop.NewTracerProvider()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Service prices carts with the discount engine.
type Service struct {
	rules   RuleRepository
	members MemberResolver
	engine  *discount.Engine

	lg     *zap.Logger
	now    func() time.Time
	tracer trace.Tracer

	quotes     metric.Int64Counter
	rejections metric.Int64Counter
	commits    metric.Int64Counter
	discounted metric.Float64Counter
}

// NewService creates a Service.
func NewService(rules RuleRepository, members MemberResolver, engine *discount.Engine, opts Options) (*Service, error) {
	opts.setDefaults()

	meter := opts.MeterProvider.Meter("promotion")
	s := &Service{
		rules:   rules,
		members: members,
		engine:  engine,
		lg:      opts.Logger,
		now:     opts.Now,
		tracer:  opts.TracerProvider.Tracer("promotion"),
	}

	var err error
	if s.quotes, err = meter.Int64Counter("promotion.quotes",
		metric.WithDescription("Number of priced carts"),
	); err != nil {
		return nil, errors.Wrap(err, "quotes counter")
	}
	if s.rejections, err = meter.Int64Counter("promotion.rejections",
		metric.WithDescription("Number of rules rejected while pricing carts"),
	); err != nil {
		return nil, errors.Wrap(err, "rejections counter")
	}
	if s.commits, err = meter.Int64Counter("promotion.coupon_commits",
		metric.WithDescription("Number of coupon usage commits"),
	); err != nil {
		return nil, errors.Wrap(err, "commits counter")
	}
	if s.discounted, err = meter.Float64Counter("promotion.discount_total",
		metric.WithDescription("Sum of discounts granted in quotes"),
	); err != nil {
		return nil, errors.Wrap(err, "discount counter")
	}
	return s, nil
}

// Quote prices the cart at the current time. Automatic rules, the coupon and
// membership are loaded concurrently. Quote has no side effects.
func (s *Service) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	ctx, span := s.tracer.Start(ctx, "promotion.Quote",
		trace.WithAttributes(
			attribute.String("tenant_id", req.TenantID),
			attribute.Int("lines", len(req.Lines)),
			attribute.Bool("coupon", req.CouponCode != ""),
		),
	)
	defer span.End()

	now := s.now()
	var (
		automatic []discount.Rule
		coupon    *discount.Rule
		member    bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rules, err := s.rules.ListAutomatic(gctx, req.TenantID, now)
		if err != nil {
			return errors.Wrap(err, "list automatic rules")
		}
		automatic = rules
		return nil
	})
	if req.CouponCode != "" {
		g.Go(func() error {
			r, err := s.rules.FindByCode(gctx, req.TenantID, req.CouponCode)
			switch {
			case errors.Is(err, ErrCouponNotFound):
				// The engine reports the unknown code.
				return nil
			case err != nil:
				return errors.Wrap(err, "find coupon")
			}
			coupon = r
			return nil
		})
	}
	if req.CustomerID != "" {
		g.Go(func() error {
			ok, err := s.members.IsMember(gctx, req.TenantID, req.CustomerID)
			if err != nil {
				return errors.Wrap(err, "resolve membership")
			}
			member = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	rules := automatic
	if coupon != nil {
		rules = append(rules[:len(rules):len(rules)], *coupon)
	}
	res := s.engine.Calculate(req.Lines, rules, discount.Context{
		IsMember:       member,
		ShippingAmount: req.ShippingAmount,
		Now:            now,
		CouponCode:     req.CouponCode,
	})

	_, couponApplied := res.CouponApplied()
	attrs := metric.WithAttributes(
		attribute.String("tenant_id", req.TenantID),
		attribute.Bool("coupon_applied", couponApplied),
	)
	s.quotes.Add(ctx, 1, attrs)
	if n := len(res.Rejections); n > 0 {
		s.rejections.Add(ctx, int64(n), attrs)
	}
	s.discounted.Add(ctx, res.DiscountTotal.InexactFloat64(), attrs)
	span.SetAttributes(
		attribute.Int("applied_rules", len(res.AppliedRules)),
		attribute.String("discount_total", res.DiscountTotal.String()),
	)

	if err := res.CouponError(); err != nil {
		s.lg.Debug("Coupon rejected",
			zap.String("tenant_id", req.TenantID),
			zap.String("code", req.CouponCode),
			zap.Error(err),
		)
	}

	return &Quote{Request: req, At: now, Result: res}, nil
}

// Commit consumes one use of the coupon applied by q, if any. It must run in
// the same transaction that persists the order. A coupon that was exhausted
// since q was computed yields ErrCouponUnavailable.
func (s *Service) Commit(ctx context.Context, q *Quote) error {
	coupon, ok := q.Result.CouponApplied()
	if !ok {
		return nil
	}

	ctx, span := s.tracer.Start(ctx, "promotion.Commit",
		trace.WithAttributes(
			attribute.String("tenant_id", q.Request.TenantID),
			attribute.String("rule_id", coupon.RuleID),
		),
	)
	defer span.End()

	err := s.rules.ConsumeUsage(ctx, q.Request.TenantID, coupon.RuleID)
	switch {
	case errors.Is(err, ErrUsageExhausted):
		s.commits.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "exhausted")))
		s.lg.Info("Coupon exhausted at commit",
			zap.String("tenant_id", q.Request.TenantID),
			zap.String("rule_id", coupon.RuleID),
			zap.String("code", coupon.Code),
		)
		return errors.Wrapf(ErrCouponUnavailable, "coupon %s", coupon.Code)
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return errors.Wrap(err, "consume coupon usage")
	}
	s.commits.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "ok")))
	return nil
}

// Requote prices the request of q again, typically after Commit failed, so
// the caller can present the current outcome.
func (s *Service) Requote(ctx context.Context, q *Quote) (*Quote, error) {
	return s.Quote(ctx, q.Request)
}
