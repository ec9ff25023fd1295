package cart

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// Encode serializes the cart lines into the stored JSON document:
//
//	{"items":[{"productId":1,"quantity":2,"productVariantId":"v","options":"o"}],"updatedAt":"..."}
func Encode(c *Cart) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("items", func(e *jx.Encoder) {
			e.ArrStart()
			for _, l := range c.Lines {
				e.Obj(func(e *jx.Encoder) {
					e.Field("productId", func(e *jx.Encoder) { e.Int64(l.ProductID) })
					e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
					if l.VariantID != "" {
						e.Field("productVariantId", func(e *jx.Encoder) { e.Str(l.VariantID) })
					}
					if l.Options != "" {
						e.Field("options", func(e *jx.Encoder) { e.Str(l.Options) })
					}
				})
			}
			e.ArrEnd()
		})
		if !c.UpdatedAt.IsZero() {
			e.Field("updatedAt", func(e *jx.Encoder) { e.Str(c.UpdatedAt.UTC().Format(time.RFC3339Nano)) })
		}
	})
	return e.Bytes()
}

// Decode parses a stored cart document. A document without "items" is an
// empty cart. Anything structurally wrong, including a line with a
// non-positive product id or quantity or a product listed twice, yields a
// *CorruptError.
func Decode(userID string, data []byte) (*Cart, error) {
	c := &Cart{UserID: userID}
	if err := decodeCart(jx.DecodeBytes(data), c); err != nil {
		return nil, &CorruptError{UserID: userID, Err: err}
	}
	return c, nil
}

func decodeCart(d *jx.Decoder, c *Cart) error {
	if d.Next() != jx.Object {
		return errors.New("document is not an object")
	}
	return d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "items":
			if d.Next() == jx.Null {
				return d.Null()
			}
			return d.Arr(func(d *jx.Decoder) error {
				l, err := decodeLine(d)
				if err != nil {
					return errors.Wrapf(err, "item %d", len(c.Lines))
				}
				if c.index(l.ProductID) >= 0 {
					return errors.Errorf("item %d: product %d listed twice", len(c.Lines), l.ProductID)
				}
				c.Lines = append(c.Lines, l)
				return nil
			})
		case "updatedAt":
			s, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "updatedAt")
			}
			t, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return errors.Wrap(err, "updatedAt")
			}
			c.UpdatedAt = t
			return nil
		default:
			return d.Skip()
		}
	})
}

func decodeLine(d *jx.Decoder) (Line, error) {
	var (
		l       Line
		seenID  bool
		seenQty bool
	)
	if d.Next() != jx.Object {
		return l, errors.New("item is not an object")
	}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "productId":
			v, err := d.Int64()
			if err != nil {
				return errors.Wrap(err, "productId")
			}
			l.ProductID, seenID = v, true
		case "quantity":
			v, err := d.Int()
			if err != nil {
				return errors.Wrap(err, "quantity")
			}
			l.Quantity, seenQty = v, true
		case "productVariantId":
			s, err := optStr(d)
			if err != nil {
				return errors.Wrap(err, "productVariantId")
			}
			l.VariantID = s
		case "options":
			s, err := optStr(d)
			if err != nil {
				return errors.Wrap(err, "options")
			}
			l.Options = s
		default:
			return d.Skip()
		}
		return nil
	})
	if err != nil {
		return l, err
	}
	switch {
	case !seenID || l.ProductID <= 0:
		return l, errors.New("productId must be a positive integer")
	case !seenQty || l.Quantity <= 0:
		return l, errors.Errorf("quantity of product %d must be positive", l.ProductID)
	}
	return l, nil
}

func optStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}
