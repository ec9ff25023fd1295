package cart

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name      string
		data      string
		wantLines []Line
		wantErr   bool
	}{
		{
			name: "two lines",
			data: `{"items":[{"productId":1,"quantity":2},{"productId":7,"quantity":1,"productVariantId":"red","options":"gift"}]}`,
			wantLines: []Line{
				{ProductID: 1, Quantity: 2},
				{ProductID: 7, Quantity: 1, VariantID: "red", Options: "gift"},
			},
		},
		{
			name: "missing items is empty",
			data: `{}`,
		},
		{
			name: "null items is empty",
			data: `{"items":null}`,
		},
		{
			name:      "unknown fields skipped",
			data:      `{"items":[{"productId":3,"quantity":4,"addedAt":"x"}],"version":2}`,
			wantLines: []Line{{ProductID: 3, Quantity: 4}},
		},
		{
			name:      "null optional strings",
			data:      `{"items":[{"productId":3,"quantity":1,"productVariantId":null,"options":null}]}`,
			wantLines: []Line{{ProductID: 3, Quantity: 1}},
		},
		{name: "not json", data: `not json`, wantErr: true},
		{name: "array document", data: `[]`, wantErr: true},
		{name: "zero quantity", data: `{"items":[{"productId":1,"quantity":0}]}`, wantErr: true},
		{name: "negative quantity", data: `{"items":[{"productId":1,"quantity":-2}]}`, wantErr: true},
		{name: "fractional quantity", data: `{"items":[{"productId":1,"quantity":1.5}]}`, wantErr: true},
		{name: "missing product id", data: `{"items":[{"quantity":1}]}`, wantErr: true},
		{name: "string product id", data: `{"items":[{"productId":"1","quantity":1}]}`, wantErr: true},
		{name: "item not object", data: `{"items":[1]}`, wantErr: true},
		{name: "duplicate product", data: `{"items":[{"productId":1,"quantity":2},{"productId":1,"quantity":2}]}`, wantErr: true},
		{name: "truncated", data: `{"items":[{"productId":1,`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode("u1", []byte(tt.data))
			if tt.wantErr {
				require.ErrorIs(t, err, ErrCorrupt)
				var ce *CorruptError
				require.ErrorAs(t, err, &ce)
				assert.Equal(t, "u1", ce.UserID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "u1", got.UserID)
			assert.Equal(t, tt.wantLines, got.Lines)
		})
	}
}

func TestEncodeDecode_PreservesLines(t *testing.T) {
	in := &Cart{
		UserID: "u1",
		Lines: []Line{
			{ProductID: 1, Quantity: 2},
			{ProductID: 9, Quantity: 5, VariantID: "xl", Options: `{"engrave":"hi"}`},
		},
		UpdatedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}

	out, err := Decode("u1", Encode(in))
	require.NoError(t, err)
	assert.Equal(t, in.Lines, out.Lines)
	assert.True(t, in.UpdatedAt.Equal(out.UpdatedAt))
}
