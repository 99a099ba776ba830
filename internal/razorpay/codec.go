package razorpay

import (
	"slices"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/voltcart-checkout/internal/domain/payment"
)

func encodeOrderRequest(req payment.OrderRequest) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("amount")
	e.Int64(req.Amount)
	e.FieldStart("currency")
	e.Str(req.Currency)
	e.FieldStart("receipt")
	e.Str(req.Receipt)
	if len(req.Notes) > 0 {
		keys := make([]string, 0, len(req.Notes))
		for k := range req.Notes {
			keys = append(keys, k)
		}
		slices.Sort(keys)

		e.FieldStart("notes")
		e.ObjStart()
		for _, k := range keys {
			e.FieldStart(k)
			e.Str(req.Notes[k])
		}
		e.ObjEnd()
	}
	e.ObjEnd()
	return e.Bytes()
}

func decodeOrder(data []byte) (*payment.GatewayOrder, error) {
	var o payment.GatewayOrder
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			o.ID, err = d.Str()
		case "amount":
			o.Amount, err = d.Int64()
		case "amount_paid":
			o.AmountPaid, err = d.Int64()
		case "currency":
			o.Currency, err = d.Str()
		case "receipt":
			o.Receipt, err = optStr(d)
		case "status":
			o.Status, err = d.Str()
		default:
			return d.Skip()
		}
		return errors.Wrap(err, key)
	})
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// decodeAPIError reads Razorpay's {"error":{"code","description"}} envelope.
// Unparseable bodies still produce an APIError carrying the status.
func decodeAPIError(status int, data []byte) error {
	apiErr := &APIError{StatusCode: status}
	_ = jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		if key != "error" {
			return d.Skip()
		}
		return d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "code":
				apiErr.Code, err = optStr(d)
			case "description":
				apiErr.Description, err = optStr(d)
			default:
				return d.Skip()
			}
			return err
		})
	})
	return apiErr
}

func optStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}
