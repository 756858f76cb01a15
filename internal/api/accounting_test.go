package api

import (
	"math"
	"testing"
	"time"
)

func TestComputeBatchFinancials(t *testing.T) {
	cases := []struct {
		name        string
		costPerBird float64
		transport   float64
		equipment   float64
		paid        float64
		quantity    int
		wantTotal   float64
		wantBalance float64
		wantStatus  string
	}{
		{
			name:        "fully paid",
			costPerBird: 100, transport: 500, equipment: 250, paid: 10750, quantity: 100,
			wantTotal: 10750, wantBalance: 0, wantStatus: "paid",
		},
		{
			name:        "overpaid still paid",
			costPerBird: 100, transport: 0, equipment: 0, paid: 20000, quantity: 100,
			wantTotal: 10000, wantBalance: -10000, wantStatus: "paid",
		},
		{
			name:        "partial payment",
			costPerBird: 100, transport: 0, equipment: 0, paid: 5000, quantity: 100,
			wantTotal: 10000, wantBalance: 5000, wantStatus: "partial",
		},
		{
			name:        "nothing paid",
			costPerBird: 100, transport: 0, equipment: 0, paid: 0, quantity: 100,
			wantTotal: 10000, wantBalance: 10000, wantStatus: "pending",
		},
		{
			name:        "zero cost zero paid is pending",
			costPerBird: 0, transport: 0, equipment: 0, paid: 0, quantity: 50,
			wantTotal: 0, wantBalance: 0, wantStatus: "pending",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := computeBatchFinancials(tc.costPerBird, tc.transport, tc.equipment, tc.paid, tc.quantity)
			if got.TotalInitialCost != tc.wantTotal {
				t.Errorf("total = %v, want %v", got.TotalInitialCost, tc.wantTotal)
			}
			if got.BalanceDue != tc.wantBalance {
				t.Errorf("balance = %v, want %v", got.BalanceDue, tc.wantBalance)
			}
			if got.PaymentStatus != tc.wantStatus {
				t.Errorf("status = %q, want %q", got.PaymentStatus, tc.wantStatus)
			}
		})
	}
}

func TestBatchSlug(t *testing.T) {
	arrival := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	if got := batchSlug("Layers", arrival, 1); got != "batch_layers_20250101" {
		t.Errorf("first attempt = %q, want batch_layers_20250101", got)
	}
	if got := batchSlug("Layers", arrival, 2); got != "batch_layers_20250101_2" {
		t.Errorf("second attempt = %q, want batch_layers_20250101_2", got)
	}
	if got := batchSlug("  Kenbro  ", arrival, 1); got != "batch_kenbro_20250101" {
		t.Errorf("trimmed breed = %q, want batch_kenbro_20250101", got)
	}
}

func TestWellFormedAllocations(t *testing.T) {
	in := []allocationInput{
		{CoopID: "coop-a", AllocatedQuantity: 50},
		{CoopID: "", AllocatedQuantity: 30},
		{CoopID: "coop-b", AllocatedQuantity: 0},
		{CoopID: "coop-c", AllocatedQuantity: -5},
		{CoopID: "  coop-d  ", AllocatedQuantity: 20, InitialMortality: -3},
	}

	out := wellFormedAllocations(in)
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	if out[0].CoopID != "coop-a" || out[0].AllocatedQuantity != 50 {
		t.Errorf("first allocation = %+v", out[0])
	}
	if out[1].CoopID != "coop-d" {
		t.Errorf("second coop = %q, want coop-d", out[1].CoopID)
	}
	if out[1].InitialMortality != 0 {
		t.Errorf("negative initial mortality should clamp to 0, got %d", out[1].InitialMortality)
	}

	if got := allocationTotal(out); got != 70 {
		t.Errorf("allocationTotal = %d, want 70", got)
	}
}

func TestFeedQuantities(t *testing.T) {
	bags, kg := feedQuantities("bags", 2, 0)
	if bags != 2 || kg != 100 {
		t.Errorf("bags mode: got (%v, %v), want (2, 100)", bags, kg)
	}

	bags, kg = feedQuantities("kg", 0, 100)
	if bags != 2 || kg != 100 {
		t.Errorf("kg mode: got (%v, %v), want (2, 100)", bags, kg)
	}

	// Mode is authoritative: a stale value in the other unit is discarded.
	bags, kg = feedQuantities("bags", 3, 999)
	if bags != 3 || kg != 150 {
		t.Errorf("bags mode with stale kg: got (%v, %v), want (3, 150)", bags, kg)
	}

	// Fractional kg entries derive sub-hundredth bag quantities; the bags
	// column carries four decimals so the pair survives storage intact.
	bags, kg = feedQuantities("kg", 0, 0.3)
	if math.Abs(bags-0.006) > 1e-12 || kg != 0.3 {
		t.Errorf("fractional kg: got (%v, %v), want (0.006, 0.3)", bags, kg)
	}
}

func TestValidators(t *testing.T) {
	for _, breed := range []string{"Layers", "Broilers", "Kenbro"} {
		if !isValidBreed(breed) {
			t.Errorf("isValidBreed(%q) = false", breed)
		}
	}
	if isValidBreed("layers") || isValidBreed("Ducks") {
		t.Error("unexpected breed accepted")
	}

	if !isValidFeedType("Starters Mash") || !isValidFeedType("Other") {
		t.Error("known feed type rejected")
	}
	if isValidFeedType("Premium Mash") {
		t.Error("unknown feed type accepted")
	}

	if !isValidFeedInputMode("bags") || !isValidFeedInputMode("kg") {
		t.Error("known input mode rejected")
	}
	if isValidFeedInputMode("tonnes") {
		t.Error("unknown input mode accepted")
	}
}
