package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestApplyValuePrecedence(t *testing.T) {
	cases := []struct {
		name        string
		current     DealValue
		incoming    DealValue
		want        DealValue
		wantChanged bool
	}{
		{"binding overwrites unknown", UnknownValue(), BindingValue(dec(1000)), BindingValue(dec(1000)), true},
		{"binding overwrites range", RangeValue(dec(800), dec(1200)), BindingValue(dec(1000)), BindingValue(dec(1000)), true},
		{"binding overwrites binding", BindingValue(dec(1000)), BindingValue(dec(1100)), BindingValue(dec(1100)), true},
		{"same binding is unchanged", BindingValue(dec(1000)), BindingValue(dec(1000)), BindingValue(dec(1000)), false},
		{"range never overwrites binding", BindingValue(dec(1000)), RangeValue(dec(800), dec(1200)), BindingValue(dec(1000)), false},
		{"range sets unknown", UnknownValue(), RangeValue(dec(800), dec(1200)), RangeValue(dec(800), dec(1200)), true},
		{"range replaces range", RangeValue(dec(1), dec(2)), RangeValue(dec(800), dec(1200)), RangeValue(dec(800), dec(1200)), true},
		{"unknown is ignored", BindingValue(dec(1000)), UnknownValue(), BindingValue(dec(1000)), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, changed := ApplyValuePrecedence(tc.current, tc.incoming)
			if !got.Equal(tc.want) || changed != tc.wantChanged {
				t.Fatalf("got %+v changed=%v, want %+v changed=%v", got, changed, tc.want, tc.wantChanged)
			}
		})
	}
}

func TestDealValueEstimateAndCheck(t *testing.T) {
	if got := RangeValue(dec(40000), dec(60000)).Estimate(); !got.Equal(dec(50000)) {
		t.Fatalf("expected midpoint 50000, got %s", got)
	}
	if got := BindingValue(dec(1000)).Estimate(); !got.Equal(dec(1000)) {
		t.Fatalf("expected binding amount, got %s", got)
	}
	if got := UnknownValue().Estimate(); !got.IsZero() {
		t.Fatalf("expected zero for unknown, got %s", got)
	}
	if reason := RangeValue(dec(10), dec(5)).Check(); reason == "" {
		t.Fatalf("expected inverted range to be rejected")
	}
	if reason := (DealValue{Kind: ValueBinding}).Check(); reason == "" {
		t.Fatalf("expected binding without amount to be rejected")
	}
}
