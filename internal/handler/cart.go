package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-promotions/internal/domain/order"
)

const maxBodyBytes = 1 << 20

type cartItemRequest struct {
	ProductID string `json:"productId" validate:"required,max=128"`
	Quantity  int    `json:"quantity" validate:"gt=0,lte=10000"`
}

type cartRequest struct {
	CustomerID     string            `json:"customerId" validate:"max=128"`
	CouponCode     string            `json:"couponCode" validate:"max=64"`
	ShippingAmount *decimal.Decimal  `json:"shippingAmount"`
	Items          []cartItemRequest `json:"items" validate:"required,min=1,max=500,dive"`
}

// QuoteCart serves POST /cart/quote. It prices the cart without consuming
// the coupon.
func (h *Handler) QuoteCart(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCart(w, r)
	if !ok {
		return
	}

	res, err := h.orders.Quote(r.Context(), req)
	if err != nil {
		h.orderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.quoteResponse(res.Quote, res.Products))
}

// PlaceOrder serves POST /order.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCart(w, r)
	if !ok {
		return
	}

	res, err := h.orders.PlaceOrder(r.Context(), req)
	if err != nil {
		h.orderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.orderResponse(res))
}

func (h *Handler) decodeCart(w http.ResponseWriter, r *http.Request) (order.PlaceOrderRequest, bool) {
	var body cartRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return order.PlaceOrderRequest{}, false
	}
	if err := h.validate.Struct(body); err != nil {
		writeError(w, http.StatusUnprocessableEntity, validationMessage(err))
		return order.PlaceOrderRequest{}, false
	}

	shipping := h.defaultShipping
	if body.ShippingAmount != nil {
		if body.ShippingAmount.IsNegative() {
			writeError(w, http.StatusUnprocessableEntity, "shippingAmount must not be negative")
			return order.PlaceOrderRequest{}, false
		}
		shipping = *body.ShippingAmount
	}

	req := order.PlaceOrderRequest{
		TenantID:       tenantID(r),
		CustomerID:     strings.TrimSpace(body.CustomerID),
		CouponCode:     strings.TrimSpace(body.CouponCode),
		ShippingAmount: shipping,
		Items:          make([]order.OrderItem, len(body.Items)),
	}
	for i, item := range body.Items {
		req.Items[i] = order.OrderItem{ProductID: item.ProductID, Quantity: item.Quantity}
	}
	return req, true
}

func (h *Handler) orderError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		unavailable *order.CouponUnavailableError
		notFound    *order.ProductNotFoundError
	)
	switch {
	case errors.As(err, &unavailable):
		writeJSON(w, http.StatusConflict, errorResponse{
			Code:    http.StatusConflict,
			Message: unavailable.Error(),
			Quote:   h.quoteResponse(unavailable.Quote, nil),
		})
	case errors.As(err, &notFound),
		errors.Is(err, order.ErrEmptyItems),
		errors.Is(err, order.ErrInvalidQuantity):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.internalError(w, r, err)
	}
}

func validationMessage(err error) string {
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) || len(fields) == 0 {
		return "invalid request"
	}
	f := fields[0]
	_, field, _ := strings.Cut(f.Namespace(), ".")
	return "invalid field " + field + ": failed " + f.Tag()
}
