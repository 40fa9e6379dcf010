// Package money bridges shopspring decimals and Mongo's Decimal128 so that
// monetary amounts never pass through binary floating point.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Places is the scale used for all stored monetary values.
const Places = 2

// ToDecimal128 converts a decimal amount to its Mongo representation,
// rounded half-up to two decimal places.
func ToDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	return primitive.ParseDecimal128(d.Round(Places).StringFixed(Places))
}

// MustDecimal128 is ToDecimal128 for amounts already produced by the pricing
// layer, where a parse failure is a programming error.
func MustDecimal128(d decimal.Decimal) primitive.Decimal128 {
	out, err := ToDecimal128(d)
	if err != nil {
		panic(fmt.Sprintf("money: cannot represent %s as Decimal128: %v", d, err))
	}
	return out
}

// FromDecimal128 converts a stored amount back to a decimal.
func FromDecimal128(d primitive.Decimal128) (decimal.Decimal, error) {
	out, err := decimal.NewFromString(d.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("money: invalid stored amount %q: %w", d.String(), err)
	}
	return out, nil
}
