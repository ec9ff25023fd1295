// Package notify turns stored orders into confirmation events and delivers
// them to customers.
package notify

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/order"
)

// EventOrderPlaced is the type of the event written when an order is stored.
const EventOrderPlaced = "order.placed"

// Envelope is an event ready to be written to the outbox.
type Envelope struct {
	ID      string
	Type    string
	Key     string
	Payload []byte
}

// PlacedLine is an order line as carried by OrderPlaced.
type PlacedLine struct {
	ProductID int64
	Name      string
	Qty       int
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
}

// OrderPlaced announces a newly stored order.
type OrderPlaced struct {
	OrderID      string
	CustomerID   string
	Email        string
	FirstName    string
	LastName     string
	SubTotal     decimal.Decimal
	ShippingCost decimal.Decimal
	Discount     decimal.Decimal
	Total        decimal.Decimal
	Currency     string
	Lines        []PlacedLine
	CreatedAt    time.Time
}

// NewOrderPlaced builds the event for o.
func NewOrderPlaced(o *order.Order) OrderPlaced {
	e := OrderPlaced{
		OrderID:      o.ID,
		CustomerID:   o.CustomerID,
		Email:        o.Customer.Email,
		FirstName:    o.Customer.FirstName,
		LastName:     o.Customer.LastName,
		SubTotal:     o.SubTotal,
		ShippingCost: o.ShippingCost,
		Discount:     o.Discount,
		Total:        o.Total,
		Currency:     o.Currency,
		CreatedAt:    o.CreatedAt,
	}
	for _, l := range o.Lines {
		e.Lines = append(e.Lines, PlacedLine{
			ProductID: l.ProductID,
			Name:      l.Name,
			Qty:       l.Qty,
			UnitPrice: l.UnitPrice,
			LineTotal: l.LineTotal,
		})
	}
	return e
}

// Envelope encodes the event keyed by order id.
func (e OrderPlaced) Envelope() Envelope {
	return Envelope{
		ID:      uuid.New().String(),
		Type:    EventOrderPlaced,
		Key:     e.OrderID,
		Payload: e.Encode(),
	}
}

// Encode serializes the event. Money is written as decimal strings.
func (e OrderPlaced) Encode() []byte {
	var w jx.Encoder
	w.Obj(func(w *jx.Encoder) {
		w.Field("orderId", func(w *jx.Encoder) { w.Str(e.OrderID) })
		w.Field("customerId", func(w *jx.Encoder) { w.Str(e.CustomerID) })
		w.Field("email", func(w *jx.Encoder) { w.Str(e.Email) })
		w.Field("firstName", func(w *jx.Encoder) { w.Str(e.FirstName) })
		w.Field("lastName", func(w *jx.Encoder) { w.Str(e.LastName) })
		w.Field("subTotal", func(w *jx.Encoder) { w.Str(e.SubTotal.StringFixed(2)) })
		w.Field("shippingCost", func(w *jx.Encoder) { w.Str(e.ShippingCost.StringFixed(2)) })
		w.Field("discount", func(w *jx.Encoder) { w.Str(e.Discount.StringFixed(2)) })
		w.Field("total", func(w *jx.Encoder) { w.Str(e.Total.StringFixed(2)) })
		w.Field("currency", func(w *jx.Encoder) { w.Str(e.Currency) })
		w.Field("createdAt", func(w *jx.Encoder) { w.Str(e.CreatedAt.UTC().Format(time.RFC3339Nano)) })
		w.Field("lines", func(w *jx.Encoder) {
			w.ArrStart()
			for _, l := range e.Lines {
				w.Obj(func(w *jx.Encoder) {
					w.Field("productId", func(w *jx.Encoder) { w.Int64(l.ProductID) })
					w.Field("name", func(w *jx.Encoder) { w.Str(l.Name) })
					w.Field("qty", func(w *jx.Encoder) { w.Int(l.Qty) })
					w.Field("unitPrice", func(w *jx.Encoder) { w.Str(l.UnitPrice.StringFixed(2)) })
					w.Field("lineTotal", func(w *jx.Encoder) { w.Str(l.LineTotal.StringFixed(2)) })
				})
			}
			w.ArrEnd()
		})
	})
	return w.Bytes()
}

// DecodeOrderPlaced parses an event produced by Encode.
func DecodeOrderPlaced(data []byte) (*OrderPlaced, error) {
	var e OrderPlaced
	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "orderId":
			e.OrderID, err = d.Str()
		case "customerId":
			e.CustomerID, err = d.Str()
		case "email":
			e.Email, err = d.Str()
		case "firstName":
			e.FirstName, err = d.Str()
		case "lastName":
			e.LastName, err = d.Str()
		case "subTotal":
			e.SubTotal, err = decodeMoney(d)
		case "shippingCost":
			e.ShippingCost, err = decodeMoney(d)
		case "discount":
			e.Discount, err = decodeMoney(d)
		case "total":
			e.Total, err = decodeMoney(d)
		case "currency":
			e.Currency, err = d.Str()
		case "createdAt":
			var s string
			if s, err = d.Str(); err == nil {
				e.CreatedAt, err = time.Parse(time.RFC3339Nano, s)
			}
		case "lines":
			err = d.Arr(func(d *jx.Decoder) error {
				l, err := decodePlacedLine(d)
				if err != nil {
					return err
				}
				e.Lines = append(e.Lines, l)
				return nil
			})
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode order placed")
	}
	if e.OrderID == "" {
		return nil, errors.New("decode order placed: missing orderId")
	}
	return &e, nil
}

func decodePlacedLine(d *jx.Decoder) (PlacedLine, error) {
	var l PlacedLine
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productId":
			l.ProductID, err = d.Int64()
		case "name":
			l.Name, err = d.Str()
		case "qty":
			l.Qty, err = d.Int()
		case "unitPrice":
			l.UnitPrice, err = decodeMoney(d)
		case "lineTotal":
			l.LineTotal, err = decodeMoney(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	return l, err
}

func decodeMoney(d *jx.Decoder) (decimal.Decimal, error) {
	s, err := d.Str()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(s)
}
