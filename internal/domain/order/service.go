package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront-promotions/internal/domain/discount"
	"github.com/xenking/storefront-promotions/internal/domain/product"
	"github.com/xenking/storefront-promotions/internal/domain/promotion"
)

// Sentinel errors for order validation.
var (
	ErrEmptyItems      = errors.New("items required")
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
)

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

func (e *InvalidQuantityError) Unwrap() error {
	return ErrInvalidQuantity
}

// CouponUnavailableError is returned by PlaceOrder when the quoted coupon was
// used up before the order could be committed. Quote holds the cart priced
// again without it.
type CouponUnavailableError struct {
	Code  string
	Quote *promotion.Quote
}

func (e *CouponUnavailableError) Error() string {
	return fmt.Sprintf("coupon %s is no longer available", e.Code)
}

func (e *CouponUnavailableError) Unwrap() error {
	return promotion.ErrCouponUnavailable
}

// Promotions prices carts and commits coupon usage.
type Promotions interface {
	Quote(ctx context.Context, req promotion.QuoteRequest) (*promotion.Quote, error)
	Commit(ctx context.Context, q *promotion.Quote) error
	Requote(ctx context.Context, q *promotion.Quote) (*promotion.Quote, error)
}

// PlaceOrderRequest holds the input for quoting a cart or placing an order.
type PlaceOrderRequest struct {
	TenantID       string
	CustomerID     string
	Items          []OrderItem
	CouponCode     string
	ShippingAmount decimal.Decimal
}

// QuoteResult is a priced cart with the products it refers to, in item order.
type QuoteResult struct {
	Quote    *promotion.Quote
	Products []product.Product
}

// PlaceOrderResult holds the output of a successfully placed order.
type PlaceOrderResult struct {
	Order    *Order
	Quote    *promotion.Quote
	Products []product.Product
}

// Service encapsulates cart pricing and order placement.
type Service struct {
	products   product.Repository
	promotions Promotions
	orders     Repository
	tx         Transactor
	now        func() time.Time
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	products product.Repository,
	promotions Promotions,
	orders Repository,
	tx Transactor,
) *Service {
	return &Service{
		products:   products,
		promotions: promotions,
		orders:     orders,
		tx:         tx,
		now:        time.Now,
	}
}

// Quote validates items, fetches products in a single batch and prices the
// cart. Nothing is persisted.
func (s *Service) Quote(ctx context.Context, req PlaceOrderRequest) (*QuoteResult, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	ids := make([]string, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
		ids[i] = item.ProductID
	}

	fetched, err := s.products.GetByIDs(ctx, req.TenantID, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	products := make([]product.Product, 0, len(req.Items))
	lines := make([]discount.CartLine, 0, len(req.Items))
	for _, item := range req.Items {
		p, ok := byID[item.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: item.ProductID}
		}
		products = append(products, p)
		lines = append(lines, discount.CartLine{
			ProductID:  p.ID,
			CategoryID: p.CategoryID,
			UnitPrice:  p.Price,
			Quantity:   item.Quantity,
		})
	}

	q, err := s.promotions.Quote(ctx, promotion.QuoteRequest{
		TenantID:       req.TenantID,
		CustomerID:     req.CustomerID,
		Lines:          lines,
		CouponCode:     req.CouponCode,
		ShippingAmount: req.ShippingAmount,
	})
	if err != nil {
		return nil, errors.Wrap(err, "quote")
	}
	return &QuoteResult{Quote: q, Products: products}, nil
}

// PlaceOrder prices the cart, then consumes the coupon and persists the order
// in one transaction. If the coupon ran out in between, nothing is persisted
// and a *CouponUnavailableError carrying a fresh quote is returned.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	priced, err := s.Quote(ctx, req)
	if err != nil {
		return nil, err
	}
	q := priced.Quote

	o := s.newOrder(req, q)
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.promotions.Commit(ctx, q); err != nil {
			return err
		}
		if err := s.orders.Create(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}
		return nil
	})
	if errors.Is(err, promotion.ErrCouponUnavailable) {
		fresh, qerr := s.promotions.Requote(ctx, q)
		if qerr != nil {
			return nil, errors.Wrap(qerr, "requote")
		}
		return nil, &CouponUnavailableError{Code: req.CouponCode, Quote: fresh}
	}
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Order placed",
		zap.String("order_id", o.ID),
		zap.String("tenant_id", o.TenantID),
		zap.String("total", o.Total.String()),
		zap.Strings("applied_rules", o.AppliedRules),
	)
	return &PlaceOrderResult{
		Order:    o,
		Quote:    q,
		Products: priced.Products,
	}, nil
}

func (s *Service) newOrder(req PlaceOrderRequest, q *promotion.Quote) *Order {
	res := q.Result
	o := &Order{
		ID:         uuid.New().String(),
		TenantID:   req.TenantID,
		CustomerID: req.CustomerID,
		Items:      req.Items,
		Subtotal:   res.OriginalTotal,
		Discounts:  res.DiscountTotal,
		Shipping:   res.ShippingTotal,
		Total:      res.FinalTotal.Add(res.ShippingTotal),
		CreatedAt:  s.now(),
	}
	for _, g := range res.GiftLines {
		o.GiftItems = append(o.GiftItems, OrderItem{ProductID: g.ProductID, Quantity: g.Quantity})
	}
	for _, a := range res.AppliedRules {
		o.AppliedRules = append(o.AppliedRules, a.RuleID)
	}
	if coupon, ok := res.CouponApplied(); ok {
		o.CouponCode = coupon.Code
	}
	return o
}
