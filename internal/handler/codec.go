package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/voltcart-checkout/internal/domain/order"
)

// readBody reads at most h.maxBody bytes of the request body.
func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &apiError{
				Status:  http.StatusRequestEntityTooLarge,
				Kind:    KindInvalidRequest,
				Message: "Request body too large",
			}
		}
		return nil, invalidRequest("Unable to read request body")
	}
	return data, nil
}

// checkoutRequest mirrors the JSON body of POST /api/checkout/orders.
type checkoutRequest struct {
	Items           []order.CartLine
	ShippingAddress order.ShippingAddress
	Totals          order.Totals
}

func decodeCheckoutRequest(data []byte) (checkoutRequest, error) {
	var req checkoutRequest
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "items":
			if d.Next() == jx.Null {
				return d.Null()
			}
			return d.Arr(func(d *jx.Decoder) error {
				line, err := decodeCartLine(d)
				if err != nil {
					return errors.Wrapf(err, "item %d", len(req.Items))
				}
				req.Items = append(req.Items, line)
				return nil
			})
		case "shippingAddress":
			a, err := decodeAddress(d)
			req.ShippingAddress = a
			return errors.Wrap(err, key)
		case "subtotal":
			return decimalField(d, key, &req.Totals.Subtotal)
		case "shipping":
			return decimalField(d, key, &req.Totals.Shipping)
		case "tax":
			return decimalField(d, key, &req.Totals.Tax)
		case "total":
			return decimalField(d, key, &req.Totals.Total)
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return checkoutRequest{}, invalidRequest("Malformed request body: " + err.Error())
	}
	return req, nil
}

func decodeCartLine(d *jx.Decoder) (order.CartLine, error) {
	var l order.CartLine
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productId":
			l.ProductID, err = optStr(d)
		case "productName":
			l.ProductName, err = optStr(d)
		case "productImage":
			l.ProductImage, err = optStr(d)
		case "quantity":
			l.Quantity, err = d.Int()
		case "unitPrice":
			return decimalField(d, key, &l.UnitPrice)
		case "selectedColor":
			l.SelectedColor, err = optStr(d)
		case "selectedVariant":
			l.SelectedVariant, err = optStr(d)
		default:
			return d.Skip()
		}
		return errors.Wrap(err, key)
	})
	return l, err
}

func decodeAddress(d *jx.Decoder) (order.ShippingAddress, error) {
	var a order.ShippingAddress
	if d.Next() == jx.Null {
		return a, d.Null()
	}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			a.Name, err = optStr(d)
		case "phone":
			a.Phone, err = optStr(d)
		case "addressLine1":
			a.AddressLine1, err = optStr(d)
		case "addressLine2":
			a.AddressLine2, err = optStr(d)
		case "city":
			a.City, err = optStr(d)
		case "state":
			a.State, err = optStr(d)
		case "pincode":
			a.Pincode, err = optStr(d)
		case "country":
			a.Country, err = optStr(d)
		default:
			return d.Skip()
		}
		return errors.Wrap(err, key)
	})
	return a, err
}

// verifyRequest mirrors the JSON body of POST /api/checkout/verify.
type verifyRequest struct {
	OrderID           string
	RazorpayOrderID   string
	RazorpayPaymentID string
	RazorpaySignature string
}

func decodeVerifyRequest(data []byte) (verifyRequest, error) {
	var req verifyRequest
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "orderId":
			req.OrderID, err = optStr(d)
		case "razorpayOrderId":
			req.RazorpayOrderID, err = optStr(d)
		case "razorpayPaymentId":
			req.RazorpayPaymentID, err = optStr(d)
		case "razorpaySignature":
			req.RazorpaySignature, err = optStr(d)
		default:
			return d.Skip()
		}
		return errors.Wrap(err, key)
	})
	if err != nil {
		return verifyRequest{}, invalidRequest("Malformed request body: " + err.Error())
	}
	return req, nil
}

// decimalField accepts a JSON number and stores it without float rounding.
func decimalField(d *jx.Decoder, key string, dst *decimal.Decimal) error {
	if d.Next() != jx.Number {
		return errors.Errorf("%s: expected number", key)
	}
	n, err := d.Num()
	if err != nil {
		return errors.Wrap(err, key)
	}
	v, err := decimal.NewFromString(n.String())
	if err != nil {
		return errors.Wrap(err, key)
	}
	*dst = v
	return nil
}

func optStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

func encodeCheckoutResponse(res *order.CreateResult) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("orderId")
	e.Str(res.Order.ID)
	e.FieldStart("orderNumber")
	e.Str(res.Order.OrderNumber)
	e.FieldStart("razorpayOrderId")
	e.Str(res.GatewayOrder.ID)
	e.FieldStart("razorpayKeyId")
	e.Str(res.KeyID)
	e.FieldStart("amount")
	e.Int64(res.GatewayOrder.Amount)
	e.FieldStart("currency")
	e.Str(res.GatewayOrder.Currency)
	e.ObjEnd()
	return e.Bytes()
}

func encodeVerifyResponse(o *order.Order) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("success")
	e.Bool(true)
	e.FieldStart("orderNumber")
	e.Str(o.OrderNumber)
	e.FieldStart("orderId")
	e.Str(o.ID)
	e.ObjEnd()
	return e.Bytes()
}

func encodeOrderResponse(o *order.Order) []byte {
	var e jx.Encoder
	encodeOrder(&e, o, true)
	return e.Bytes()
}

func encodeOrderList(orders []order.Order) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("orders")
	e.ArrStart()
	for i := range orders {
		encodeOrder(&e, &orders[i], false)
	}
	e.ArrEnd()
	e.ObjEnd()
	return e.Bytes()
}

func encodeOrder(e *jx.Encoder, o *order.Order, withItems bool) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("orderNumber")
	e.Str(o.OrderNumber)
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("paymentStatus")
	e.Str(string(o.PaymentStatus))
	e.FieldStart("paymentMethod")
	e.Str(o.PaymentMethod)
	money(e, "subtotal", o.Subtotal)
	money(e, "shipping", o.Shipping)
	money(e, "tax", o.Tax)
	money(e, "total", o.Total)

	a := o.ShippingAddress
	e.FieldStart("shippingAddress")
	e.ObjStart()
	for _, f := range []struct{ name, value string }{
		{"name", a.Name},
		{"phone", a.Phone},
		{"addressLine1", a.AddressLine1},
		{"addressLine2", a.AddressLine2},
		{"city", a.City},
		{"state", a.State},
		{"pincode", a.Pincode},
		{"country", a.Country},
	} {
		optField(e, f.name, f.value)
	}
	e.ObjEnd()

	e.FieldStart("razorpayOrderId")
	e.Str(o.RazorpayOrderID)
	optField(e, "razorpayPaymentId", o.RazorpayPaymentID)
	e.FieldStart("createdAt")
	e.Str(o.CreatedAt.UTC().Format(time.RFC3339))
	e.FieldStart("updatedAt")
	e.Str(o.UpdatedAt.UTC().Format(time.RFC3339))

	if withItems {
		e.FieldStart("items")
		e.ArrStart()
		for _, it := range o.Items {
			e.ObjStart()
			e.FieldStart("id")
			e.Str(it.ID)
			e.FieldStart("productId")
			e.Str(it.ProductID)
			e.FieldStart("productName")
			e.Str(it.ProductName)
			optField(e, "productImage", it.ProductImage)
			e.FieldStart("quantity")
			e.Int(it.Quantity)
			money(e, "unitPrice", it.UnitPrice)
			money(e, "totalPrice", it.TotalPrice)
			optField(e, "selectedColor", it.SelectedColor)
			optField(e, "selectedVariant", it.SelectedVariant)
			e.ObjEnd()
		}
		e.ArrEnd()
	}
	e.ObjEnd()
}

// money writes a decimal as a JSON number with paise precision.
func money(e *jx.Encoder, name string, v decimal.Decimal) {
	e.FieldStart(name)
	e.Num(jx.Num(v.StringFixed(2)))
}

// optField writes null for empty strings.
func optField(e *jx.Encoder, name, v string) {
	e.FieldStart(name)
	if v == "" {
		e.Null()
		return
	}
	e.Str(v)
}
