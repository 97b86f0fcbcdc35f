package domain

import (
	"github.com/shopspring/decimal"
)

// ValueKind describes how firm a deal value is.
type ValueKind string

const (
	ValueBinding         ValueKind = "binding"
	ValueNonBindingRange ValueKind = "non_binding_range"
	ValueUnknown         ValueKind = "unknown"
)

func (k ValueKind) Valid() bool {
	switch k {
	case ValueBinding, ValueNonBindingRange, ValueUnknown:
		return true
	default:
		return false
	}
}

// DealValue is either an exact quoted amount, a rough low/high range, or unknown.
type DealValue struct {
	Kind      ValueKind
	Amount    decimal.NullDecimal
	RangeLow  decimal.NullDecimal
	RangeHigh decimal.NullDecimal
}

// BindingValue returns a committed amount.
func BindingValue(amount decimal.Decimal) DealValue {
	return DealValue{
		Kind:   ValueBinding,
		Amount: decimal.NewNullDecimal(amount),
	}
}

// RangeValue returns a non-binding low/high estimate.
func RangeValue(low, high decimal.Decimal) DealValue {
	return DealValue{
		Kind:      ValueNonBindingRange,
		RangeLow:  decimal.NewNullDecimal(low),
		RangeHigh: decimal.NewNullDecimal(high),
	}
}

// UnknownValue returns the empty value.
func UnknownValue() DealValue {
	return DealValue{Kind: ValueUnknown}
}

// Check reports a reason when the value is internally inconsistent.
func (v DealValue) Check() string {
	switch v.Kind {
	case ValueBinding:
		if !v.Amount.Valid {
			return "binding value requires an amount"
		}
		if v.Amount.Decimal.IsNegative() {
			return "binding amount must not be negative"
		}
	case ValueNonBindingRange:
		if !v.RangeLow.Valid || !v.RangeHigh.Valid {
			return "non-binding value requires rangeLow and rangeHigh"
		}
		if v.RangeLow.Decimal.IsNegative() {
			return "rangeLow must not be negative"
		}
		if v.RangeHigh.Decimal.LessThan(v.RangeLow.Decimal) {
			return "rangeHigh must be >= rangeLow"
		}
	case ValueUnknown, "":
	default:
		return "unknown value kind " + string(v.Kind)
	}
	return ""
}

// Estimate is the amount used for ranking: the binding amount, else the
// range midpoint, else zero.
func (v DealValue) Estimate() decimal.Decimal {
	if v.Kind == ValueBinding && v.Amount.Valid {
		return v.Amount.Decimal
	}
	if v.RangeLow.Valid && v.RangeHigh.Valid {
		return v.RangeLow.Decimal.Add(v.RangeHigh.Decimal).Div(decimal.NewFromInt(2))
	}
	return decimal.Zero
}

// Equal compares kind and amounts numerically.
func (v DealValue) Equal(other DealValue) bool {
	return v.normalizedKind() == other.normalizedKind() &&
		nullEqual(v.Amount, other.Amount) &&
		nullEqual(v.RangeLow, other.RangeLow) &&
		nullEqual(v.RangeHigh, other.RangeHigh)
}

func (v DealValue) normalizedKind() ValueKind {
	if v.Kind == "" {
		return ValueUnknown
	}
	return v.Kind
}

func nullEqual(a, b decimal.NullDecimal) bool {
	if a.Valid != b.Valid {
		return false
	}
	return !a.Valid || a.Decimal.Equal(b.Decimal)
}

// ApplyValuePrecedence merges an incoming revision value into the current one.
// A binding value always wins. A range only lands on a deal whose value is
// unknown or itself a range. Returns the resulting value and whether it changed.
func ApplyValuePrecedence(current, incoming DealValue) (DealValue, bool) {
	switch incoming.Kind {
	case ValueBinding:
		next := DealValue{Kind: ValueBinding, Amount: incoming.Amount}
		return next, !current.Equal(next)
	case ValueNonBindingRange:
		if current.normalizedKind() == ValueBinding {
			return current, false
		}
		next := DealValue{Kind: ValueNonBindingRange, RangeLow: incoming.RangeLow, RangeHigh: incoming.RangeHigh}
		return next, !current.Equal(next)
	default:
		return current, false
	}
}
