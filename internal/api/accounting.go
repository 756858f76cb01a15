package api

import (
	"fmt"
	"strings"
	"time"
)

// Feed is bought and logged in 50 kg bags; all bag/kg conversion in the
// system assumes this ratio.
const kgPerBag = 50.0

const maxSlugAttempts = 5

var validBreeds = map[string]struct{}{
	"Layers":   {},
	"Broilers": {},
	"Kenbro":   {},
}

var validFeedTypes = map[string]struct{}{
	"Starters Mash": {},
	"Growers Mash":  {},
	"Layers Mash":   {},
	"Finisher Mash": {},
	"Other":         {},
}

func isValidBreed(v string) bool {
	_, ok := validBreeds[v]
	return ok
}

func isValidFeedType(v string) bool {
	_, ok := validFeedTypes[v]
	return ok
}

func isValidFeedInputMode(v string) bool {
	return v == "bags" || v == "kg"
}

type batchFinancials struct {
	TotalInitialCost  float64
	AmountPaidUpfront float64
	BalanceDue        float64
	PaymentStatus     string
}

// computeBatchFinancials derives a batch's money fields from its authoritative
// cost inputs. Client-supplied totals are never trusted: the total is always
// cost_per_bird * quantity + transport + equipment, and balance and payment
// status follow from it.
func computeBatchFinancials(costPerBird, transportCost, equipmentCost, amountPaid float64, initialQuantity int) batchFinancials {
	total := costPerBird*float64(initialQuantity) + transportCost + equipmentCost
	return batchFinancials{
		TotalInitialCost:  total,
		AmountPaidUpfront: amountPaid,
		BalanceDue:        total - amountPaid,
		PaymentStatus:     derivePaymentStatus(total, amountPaid),
	}
}

func derivePaymentStatus(totalCost, amountPaid float64) string {
	switch {
	case totalCost > 0 && amountPaid >= totalCost:
		return "paid"
	case amountPaid > 0:
		return "partial"
	default:
		return "pending"
	}
}

// batchSlug builds the human-readable batch identifier. Two batches of the
// same breed arriving the same day would collide on the base form, so
// attempts past the first get a numeric suffix.
func batchSlug(breed string, arrivalDate time.Time, attempt int) string {
	slug := fmt.Sprintf("batch_%s_%s", strings.ToLower(strings.TrimSpace(breed)), arrivalDate.Format("20060102"))
	if attempt > 1 {
		slug = fmt.Sprintf("%s_%d", slug, attempt)
	}
	return slug
}

type allocationInput struct {
	CoopID            string `json:"coop_id"`
	AllocatedQuantity int    `json:"allocated_quantity"`
	PlacementDate     string `json:"placement_date"`
	InitialMortality  int    `json:"initial_mortality"`
	Notes             string `json:"notes"`
}

// wellFormedAllocations drops entries without a coop identifier or a positive
// quantity. Malformed rows are skipped silently rather than failing the whole
// request.
func wellFormedAllocations(in []allocationInput) []allocationInput {
	out := make([]allocationInput, 0, len(in))
	for _, alloc := range in {
		alloc.CoopID = strings.TrimSpace(alloc.CoopID)
		if alloc.CoopID == "" || alloc.AllocatedQuantity <= 0 {
			continue
		}
		if alloc.InitialMortality < 0 {
			alloc.InitialMortality = 0
		}
		out = append(out, alloc)
	}
	return out
}

func allocationTotal(in []allocationInput) int {
	total := 0
	for _, alloc := range in {
		total += alloc.AllocatedQuantity
	}
	return total
}

// feedQuantities resolves the bag/kg pair from whichever unit the caller
// entered, per the input mode. The other unit is always derived, never taken
// from the payload, so the pair can't drift apart.
func feedQuantities(mode string, bags, kg float64) (float64, float64) {
	switch mode {
	case "bags":
		return bags, bags * kgPerBag
	case "kg":
		return kg / kgPerBag, kg
	}
	return bags, kg
}
