package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Subtotal returns the parts total plus labor of a single iteration. A missing
// breakdown, parts list or labor amount contributes zero.
func (it Iteration) Subtotal() decimal.Decimal {
	if it.Cost == nil {
		return decimal.Zero
	}
	total := it.Cost.Labor
	for _, p := range it.Cost.Parts {
		total = total.Add(p.Price.Mul(p.Quantity))
	}
	return total
}

// TotalCost sums the cost of every iteration
func TotalCost(iterations []Iteration) decimal.Decimal {
	total := decimal.Zero
	for _, it := range iterations {
		total = total.Add(it.Subtotal())
	}
	return total
}

// RecomputeTotal overwrites TotalCost from the iterations. It runs before
// every persist so a client-supplied total never survives.
func (r *RepairRequest) RecomputeTotal() {
	r.TotalCost = TotalCost(r.Iterations)
}

// checkStorable rejects amounts that cannot be persisted exactly
func checkStorable(field string, d decimal.Decimal) error {
	if _, err := ToDecimal128(d); err != nil {
		return ValidationError("%s is out of range", field)
	}
	return nil
}

// validateCost checks every amount of it, and the request total it would
// produce on top of current, against the stored representation
func validateCost(it Iteration, current decimal.Decimal) error {
	if it.Cost == nil {
		return nil
	}
	for i, p := range it.Cost.Parts {
		if err := checkStorable(fmt.Sprintf("parts[%d].price", i), p.Price); err != nil {
			return err
		}
		if err := checkStorable(fmt.Sprintf("parts[%d].quantity", i), p.Quantity); err != nil {
			return err
		}
		if err := checkStorable(fmt.Sprintf("parts[%d] subtotal", i), p.Price.Mul(p.Quantity)); err != nil {
			return err
		}
	}
	if err := checkStorable("labor", it.Cost.Labor); err != nil {
		return err
	}
	subtotal := it.Subtotal()
	if err := checkStorable("iteration cost", subtotal); err != nil {
		return err
	}
	return checkStorable("total cost", current.Add(subtotal))
}
