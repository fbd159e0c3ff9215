package orders

import (
	"testing"

	"github.com/shopspring/decimal"
)

var five = decimal.NewFromInt(5)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"R$ 1.234,56", "1234.56"},
		{"r$1.234,56", "1234.56"},
		{" 1 234,5 ", "1234.5"},
		{"1234", "1234"},
		{"10,00", "10"},
		{"", "0"},
		{"abc", "0"},
		{"R$", "0"},
	}
	for _, tc := range cases {
		got := ParseAmount(tc.in)
		if !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Errorf("ParseAmount(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestComputeCommission(t *testing.T) {
	items := []Item{{ID: "p1", Price: TextAmount("1.234,56"), Quantity: NumberAmount(2)}}

	t.Run("fallback rate", func(t *testing.T) {
		got := ComputeCommission(items, nil, five)
		if !got.Equal(decimal.RequireFromString("123.456")) {
			t.Fatalf("expected 123.456, got %s", got)
		}
	})

	t.Run("fixed per unit", func(t *testing.T) {
		configs := map[string]CommissionConfig{"p1": {Type: CommissionFixed, Value: decimal.NewFromInt(10)}}
		got := ComputeCommission(items, configs, five)
		if !got.Equal(decimal.NewFromInt(20)) {
			t.Fatalf("expected 20, got %s", got)
		}
	})

	t.Run("explicit percentage", func(t *testing.T) {
		configs := map[string]CommissionConfig{"p1": {Value: decimal.NewFromInt(10)}}
		got := ComputeCommission(items, configs, five)
		if !got.Equal(decimal.RequireFromString("246.912")) {
			t.Fatalf("expected 246.912, got %s", got)
		}
	})

	t.Run("non positive config uses fallback", func(t *testing.T) {
		configs := map[string]CommissionConfig{"p1": {Type: CommissionFixed, Value: decimal.Zero}}
		got := ComputeCommission(items, configs, five)
		if !got.Equal(decimal.RequireFromString("123.456")) {
			t.Fatalf("expected fallback 123.456, got %s", got)
		}
	})

	t.Run("unparseable values contribute zero", func(t *testing.T) {
		bad := []Item{
			{ID: "x", Price: TextAmount("n/a"), Quantity: NumberAmount(3)},
			{ID: "y", Price: NumberAmount(100), Quantity: TextAmount("")},
		}
		if got := ComputeCommission(bad, nil, five); !got.IsZero() {
			t.Fatalf("expected 0, got %s", got)
		}
	})

	t.Run("never negative", func(t *testing.T) {
		neg := []Item{{ID: "p1", Price: NumberAmount(-100), Quantity: NumberAmount(1)}}
		if got := ComputeCommission(neg, nil, five); !got.IsZero() {
			t.Fatalf("expected 0, got %s", got)
		}
	})

	t.Run("order independent", func(t *testing.T) {
		mixed := []Item{
			{ID: "a", Price: NumberAmount(10), Quantity: NumberAmount(1)},
			{ID: "b", Price: TextAmount("R$ 20,00"), Quantity: NumberAmount(2)},
		}
		configs := map[string]CommissionConfig{"b": {Type: CommissionFixed, Value: decimal.NewFromInt(3)}}
		forward := ComputeCommission(mixed, configs, five)
		backward := ComputeCommission([]Item{mixed[1], mixed[0]}, configs, five)
		if !forward.Equal(backward) || !forward.Equal(decimal.RequireFromString("6.5")) {
			t.Fatalf("expected 6.5 both ways, got %s and %s", forward, backward)
		}
	})
}

func TestDeriveInstallmentStatus(t *testing.T) {
	cases := []struct {
		amount, paid float64
		want         InstallmentStatus
	}{
		{100, 0, InstallmentPending},
		{100, 40, InstallmentPartial},
		{100, 100, InstallmentPaid},
		{100, 120, InstallmentPaid},
	}
	for _, tc := range cases {
		if got := DeriveInstallmentStatus(tc.amount, tc.paid); got != tc.want {
			t.Errorf("DeriveInstallmentStatus(%v, %v) = %s, want %s", tc.amount, tc.paid, got, tc.want)
		}
	}
}
