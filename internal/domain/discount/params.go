package discount

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// DecodeParams reads the kind-specific parameters of r from their stored JSON
// form into r's typed fields. r.Kind must be set. Decimal values may be JSON
// strings or numbers; an empty or null document leaves r untouched.
//
//	quantity_tiered:         {"tiers":[{"min_quantity":3,"percent_off":"10"}]}
//	spend_threshold:         {"minimum_spend":"100","fixed_price":"79"}
//	buy_x_pay_y/buy_x_get_y: {"x":3,"y":1,"gift_product_id":"p9"}
func DecodeParams(data []byte, r *Rule) error {
	if len(data) == 0 {
		return nil
	}
	d := jx.DecodeBytes(data)
	if d.Next() == jx.Null {
		return nil
	}

	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "tiers":
			return d.Arr(func(d *jx.Decoder) error {
				t, err := decodeTier(d)
				if err != nil {
					return err
				}
				r.Tiers = append(r.Tiers, t)
				return nil
			})
		case "minimum_spend":
			v, err := decodeDecimal(d)
			r.Threshold.MinimumSpend = v
			return err
		case "fixed_price":
			v, err := decodeDecimal(d)
			r.Threshold.FixedPrice = v
			return err
		case "x":
			v, err := d.Int()
			r.Bundle.X = v
			return err
		case "y":
			v, err := d.Int()
			r.Bundle.Y = v
			return err
		case "gift_product_id":
			v, err := d.Str()
			r.Bundle.GiftProductID = v
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return errors.Wrapf(err, "decode %s params", r.Kind)
	}
	return nil
}

func decodeTier(d *jx.Decoder) (Tier, error) {
	var t Tier
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "min_quantity":
			v, err := d.Int()
			t.MinQuantity = v
			return err
		case "percent_off":
			v, err := decodeDecimal(d)
			t.PercentOff = v
			return err
		default:
			return d.Skip()
		}
	})
	return t, err
}

func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(n.String())
	default:
		return decimal.Zero, errors.Errorf("expected decimal, got %s", d.Next())
	}
}

// EncodeParams renders r's kind-specific parameters in the form DecodeParams
// reads. Kinds configured only through Value encode as an empty object.
// Decimals are written as strings so no precision is lost.
func EncodeParams(r *Rule) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		switch r.Kind {
		case KindQuantityTiered:
			e.Field("tiers", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, t := range r.Tiers {
						e.Obj(func(e *jx.Encoder) {
							e.Field("min_quantity", func(e *jx.Encoder) { e.Int(t.MinQuantity) })
							e.Field("percent_off", func(e *jx.Encoder) { e.Str(t.PercentOff.String()) })
						})
					}
				})
			})
		case KindSpendThreshold:
			e.Field("minimum_spend", func(e *jx.Encoder) { e.Str(r.Threshold.MinimumSpend.String()) })
			e.Field("fixed_price", func(e *jx.Encoder) { e.Str(r.Threshold.FixedPrice.String()) })
		case KindBuyXPayY, KindBuyXGetY:
			e.Field("x", func(e *jx.Encoder) { e.Int(r.Bundle.X) })
			e.Field("y", func(e *jx.Encoder) { e.Int(r.Bundle.Y) })
			if r.Bundle.GiftProductID != "" {
				e.Field("gift_product_id", func(e *jx.Encoder) { e.Str(r.Bundle.GiftProductID) })
			}
		}
	})
	return e.Bytes()
}
