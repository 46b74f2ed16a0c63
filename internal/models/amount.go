package models

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Amount is an exact decimal money value. It is never backed by a float:
// JSON carries it as a decimal string and MongoDB stores it as Decimal128.
type Amount struct {
	decimal.Decimal
}

func NewAmount(value string) (Amount, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return Amount{}, fmt.Errorf("invalid amount %q: %v", value, err)
	}
	return Amount{d}, nil
}

// MustAmount panics on malformed input. Intended for constants and tests.
func MustAmount(value string) Amount {
	a, err := NewAmount(value)
	if err != nil {
		panic(err)
	}
	return a
}

func AmountFromDecimal(d decimal.Decimal) Amount { return Amount{d} }

func (a Amount) Neg() Amount { return Amount{a.Decimal.Neg()} }

func (a Amount) IsPositive() bool { return a.Decimal.Sign() > 0 }

// Less reports whether a < b.
func (a Amount) Less(b Amount) bool { return a.Decimal.Cmp(b.Decimal) < 0 }

func (a Amount) Equal(b Amount) bool { return a.Decimal.Cmp(b.Decimal) == 0 }

func (a Amount) MarshalBSONValue() (bsontype.Type, []byte, error) {
	d128, err := primitive.ParseDecimal128(a.String())
	if err != nil {
		return 0, nil, fmt.Errorf("amount %s not representable as decimal128: %v", a.String(), err)
	}
	return bson.MarshalValue(d128)
}

// UnmarshalBSONValue accepts decimal128 along with the numeric and string
// forms older documents may carry, mirroring the coercion applied on the
// JSON side.
func (a *Amount) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	rv := bson.RawValue{Type: t, Value: data}
	switch t {
	case bsontype.Decimal128:
		d128, ok := rv.Decimal128OK()
		if !ok {
			return fmt.Errorf("malformed decimal128 amount")
		}
		d, err := decimal.NewFromString(d128.String())
		if err != nil {
			return fmt.Errorf("invalid decimal128 amount %s: %v", d128.String(), err)
		}
		a.Decimal = d
	case bsontype.Double:
		a.Decimal = decimal.NewFromFloat(rv.Double())
	case bsontype.Int32:
		a.Decimal = decimal.NewFromInt(int64(rv.Int32()))
	case bsontype.Int64:
		a.Decimal = decimal.NewFromInt(rv.Int64())
	case bsontype.String:
		d, err := decimal.NewFromString(rv.StringValue())
		if err != nil {
			return fmt.Errorf("invalid amount %q: %v", rv.StringValue(), err)
		}
		a.Decimal = d
	case bsontype.Null:
		a.Decimal = decimal.Decimal{}
	default:
		return fmt.Errorf("cannot decode %s into an amount", t)
	}
	return nil
}
