package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-promotions/internal/domain/order"
	"github.com/xenking/storefront-promotions/internal/domain/product"
	"github.com/xenking/storefront-promotions/internal/domain/promotion"
)

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	// Quote is the cart priced again after a coupon ran out.
	Quote *quoteResponse `json:"quote,omitempty"`
}

type productResponse struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Category string          `json:"category,omitempty"`
}

type itemResponse struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type appliedRuleResponse struct {
	RuleID string          `json:"ruleId"`
	Name   string          `json:"name,omitempty"`
	Code   string          `json:"code,omitempty"`
	Kind   string          `json:"kind"`
	Amount decimal.Decimal `json:"amount"`
}

type quoteResponse struct {
	Items        []itemResponse        `json:"items"`
	Gifts        []itemResponse        `json:"gifts"`
	Products     []productResponse     `json:"products,omitempty"`
	Subtotal     decimal.Decimal       `json:"subtotal"`
	Discounts    decimal.Decimal       `json:"discounts"`
	Shipping     decimal.Decimal       `json:"shipping"`
	FreeShipping bool                  `json:"freeShipping"`
	Total        decimal.Decimal       `json:"total"`
	AppliedRules []appliedRuleResponse `json:"appliedRules"`
	CouponCode   string                `json:"couponCode,omitempty"`
	// CouponError explains why the supplied coupon was not applied.
	CouponError string `json:"couponError,omitempty"`
}

type orderResponse struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	quoteResponse
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Code: status, Message: message})
}

func (h *Handler) productResponse(p product.Product) productResponse {
	return productResponse{
		ID:       p.ID,
		Name:     h.text.Sanitize(p.Name),
		Price:    p.Price,
		Category: p.CategoryID,
	}
}

func (h *Handler) quoteResponse(q *promotion.Quote, products []product.Product) *quoteResponse {
	res := q.Result
	out := &quoteResponse{
		Items:        make([]itemResponse, 0, len(q.Request.Lines)),
		Gifts:        make([]itemResponse, 0, len(res.GiftLines)),
		Subtotal:     res.OriginalTotal,
		Discounts:    res.DiscountTotal,
		Shipping:     res.ShippingTotal,
		FreeShipping: res.FreeShipping,
		Total:        res.FinalTotal.Add(res.ShippingTotal),
		AppliedRules: make([]appliedRuleResponse, 0, len(res.AppliedRules)),
	}
	for _, l := range q.Request.Lines {
		out.Items = append(out.Items, itemResponse{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	for _, g := range res.GiftLines {
		out.Gifts = append(out.Gifts, itemResponse{ProductID: g.ProductID, Quantity: g.Quantity})
	}
	for _, p := range products {
		out.Products = append(out.Products, h.productResponse(p))
	}
	for _, a := range res.AppliedRules {
		out.AppliedRules = append(out.AppliedRules, appliedRuleResponse{
			RuleID: a.RuleID,
			Name:   h.text.Sanitize(a.Name),
			Code:   a.Code,
			Kind:   string(a.Kind),
			Amount: a.Amount,
		})
	}
	if coupon, ok := res.CouponApplied(); ok {
		out.CouponCode = coupon.Code
	}
	if err := res.CouponError(); err != nil {
		out.CouponError = err.Error()
	}
	return out
}

func (h *Handler) orderResponse(res *order.PlaceOrderResult) orderResponse {
	return orderResponse{
		ID:            res.Order.ID,
		CreatedAt:     res.Order.CreatedAt,
		quoteResponse: *h.quoteResponse(res.Quote, res.Products),
	}
}
