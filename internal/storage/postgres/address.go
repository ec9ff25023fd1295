package postgres

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/order"
)

// encodeAddress renders an address snapshot for a JSONB column.
func encodeAddress(a order.Address) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		field := func(name, v string) {
			if v != "" {
				e.Field(name, func(e *jx.Encoder) { e.Str(v) })
			}
		}
		field("firstName", a.FirstName)
		field("lastName", a.LastName)
		field("line1", a.Line1)
		field("line2", a.Line2)
		field("city", a.City)
		field("state", a.State)
		field("zip", a.Zip)
		field("country", a.Country)
	})
	return e.Bytes()
}

func decodeAddress(data []byte) (order.Address, error) {
	var a order.Address
	if len(data) == 0 {
		return a, nil
	}
	fields := map[string]*string{
		"firstName": &a.FirstName,
		"lastName":  &a.LastName,
		"line1":     &a.Line1,
		"line2":     &a.Line2,
		"city":      &a.City,
		"state":     &a.State,
		"zip":       &a.Zip,
		"country":   &a.Country,
	}
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		dst, ok := fields[key]
		if !ok {
			return d.Skip()
		}
		v, err := d.Str()
		if err != nil {
			return errors.Wrap(err, key)
		}
		*dst = v
		return nil
	})
	if err != nil {
		return order.Address{}, errors.Wrap(err, "decode address")
	}
	return a, nil
}
