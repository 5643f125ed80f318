package orders

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestApplyBuyLot_OpensPosition(t *testing.T) {
	qty, avg, err := ApplyBuyLot(0, decimal.Zero, 10, dec("170.25"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if qty != 10 {
		t.Errorf("expected quantity 10, got %d", qty)
	}
	if !avg.Equal(dec("170.25")) {
		t.Errorf("expected average 170.25, got %s", avg)
	}
}

func TestApplyBuyLot_WeightedAverage(t *testing.T) {
	// 10 @ 100 then 10 @ 200 averages to 150
	qty, avg, err := ApplyBuyLot(10, dec("100"), 10, dec("200"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if qty != 20 {
		t.Errorf("expected quantity 20, got %d", qty)
	}
	if !avg.Equal(dec("150")) {
		t.Errorf("expected average 150, got %s", avg)
	}
}

func TestApplyBuyLot_UnevenLots(t *testing.T) {
	// 3 @ 10.00 then 1 @ 20.00: (30 + 20) / 4 = 12.50
	qty, avg, err := ApplyBuyLot(3, dec("10.00"), 1, dec("20.00"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if qty != 4 {
		t.Errorf("expected quantity 4, got %d", qty)
	}
	if !avg.Equal(dec("12.5")) {
		t.Errorf("expected average 12.5, got %s", avg)
	}
}

func TestApplyBuyLot_OrderOfLotsDoesNotMatter(t *testing.T) {
	// Applying (q1, p1) then (q2, p2) sequentially must equal
	// (q1*p1 + q2*p2) / (q1 + q2) regardless of the order.
	lots := []struct {
		qty   int64
		price decimal.Decimal
	}{
		{7, dec("170.25")},
		{13, dec("180.10")},
		{5, dec("99.99")},
	}

	forward := applyAll(t, lots)

	reversed := make([]struct {
		qty   int64
		price decimal.Decimal
	}, len(lots))
	for i := range lots {
		reversed[i] = lots[len(lots)-1-i]
	}
	backward := applyAll(t, reversed)

	if !forward.Sub(backward).Abs().LessThan(dec("0.0001")) {
		t.Errorf("average depends on lot order: %s vs %s", forward, backward)
	}

	var totalValue decimal.Decimal
	var totalQty int64
	for _, lot := range lots {
		totalValue = totalValue.Add(lot.price.Mul(decimal.NewFromInt(lot.qty)))
		totalQty += lot.qty
	}
	expected := totalValue.Div(decimal.NewFromInt(totalQty))
	if !forward.Sub(expected).Abs().LessThan(dec("0.0001")) {
		t.Errorf("expected average %s, got %s", expected, forward)
	}
}

func applyAll(t *testing.T, lots []struct {
	qty   int64
	price decimal.Decimal
}) decimal.Decimal {
	t.Helper()
	var qty int64
	avg := decimal.Zero
	for _, lot := range lots {
		var err error
		qty, avg, err = ApplyBuyLot(qty, avg, lot.qty, lot.price)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	return avg
}

func TestApplyBuyLot_RejectsNonPositiveLot(t *testing.T) {
	for _, lotQty := range []int64{0, -5} {
		if _, _, err := ApplyBuyLot(10, dec("100"), lotQty, dec("50")); err != ErrNonPositiveLot {
			t.Errorf("lot quantity %d: expected ErrNonPositiveLot, got %v", lotQty, err)
		}
	}
}

func TestApplyBuyLot_RejectsInvalidPosition(t *testing.T) {
	// A zero quantity with a nonzero average price is an invariant
	// violation, not a normal input.
	if _, _, err := ApplyBuyLot(0, dec("55.00"), 1, dec("50")); err != ErrInvalidPosition {
		t.Errorf("expected ErrInvalidPosition, got %v", err)
	}
	if _, _, err := ApplyBuyLot(-1, decimal.Zero, 1, dec("50")); err != ErrInvalidPosition {
		t.Errorf("expected ErrInvalidPosition for negative quantity, got %v", err)
	}
}
