package expense

import (
	"fmt"
	"math"

	"github.com/kilianp07/ndf/core/model"
)

// CostInput is the client-provided part of a cost item.
type CostInput struct {
	// ID keeps an existing cost item (and its attachments) across updates.
	ID          string       `json:"id,omitempty"`
	FormCostID  string       `json:"form_cost_id"`
	Date        model.Date   `json:"date"`
	Description string       `json:"description,omitempty"`
	Distance    float64      `json:"distance,omitempty"`
	Steps       []model.Step `json:"steps,omitempty"`
	Quantity    float64      `json:"quantity,omitempty"`
	Amount      float64      `json:"amount,omitempty"`
}

// ActiveRate returns the rate effective on day. When several rates cover the
// day the one starting last wins.
func ActiveRate(rates []model.Rate, day model.Date) (model.Rate, error) {
	var (
		best  model.Rate
		found bool
	)
	for _, r := range rates {
		if !r.Covers(day) {
			continue
		}
		if !found || r.StartDate.After(best.StartDate) {
			best = r
			found = true
		}
	}
	if !found {
		return model.Rate{}, fmt.Errorf("%w on %s", model.ErrNoActiveRate, day)
	}
	return best, nil
}

// ComputeCost validates in against fc and returns the priced cost item.
func ComputeCost(fc model.FormCost, in CostInput) (model.SheetCost, error) {
	if in.Date.IsZero() {
		return model.SheetCost{}, model.Invalidf("cost %q: date is required", fc.Name)
	}
	if !in.Date.Within(fc.ValidFrom, fc.ValidTo) {
		return model.SheetCost{}, model.Invalidf("cost %q: date %s outside the allowed period", fc.Name, in.Date)
	}
	rate, err := ActiveRate(fc.Rates, in.Date)
	if err != nil {
		return model.SheetCost{}, fmt.Errorf("cost %q: %w", fc.Name, err)
	}

	c := model.SheetCost{
		ID:          in.ID,
		FormCostID:  fc.ID,
		Type:        fc.Type,
		Date:        in.Date,
		Description: in.Description,
		RateID:      rate.ID,
		RateValue:   rate.Value,
	}
	switch fc.Type {
	case model.CostKm:
		dist := in.Distance
		if len(in.Steps) > 0 {
			dist = 0
			for i, s := range in.Steps {
				if s.DistanceKm <= 0 {
					return model.SheetCost{}, model.Invalidf("cost %q: step %d has no distance", fc.Name, i+1)
				}
				dist += s.DistanceKm
			}
			c.Steps = append([]model.Step(nil), in.Steps...)
		}
		if dist <= 0 {
			return model.SheetCost{}, model.Invalidf("cost %q: distance must be positive", fc.Name)
		}
		c.Distance = dist
		c.Total = RoundCents(dist * rate.Value)
	case model.CostFixed:
		q := in.Quantity
		if q == 0 {
			q = 1
		}
		if q < 1 {
			return model.SheetCost{}, model.Invalidf("cost %q: quantity must be at least 1", fc.Name)
		}
		c.Quantity = q
		c.Total = RoundCents(q * rate.Value)
	case model.CostPercentage:
		if in.Amount <= 0 {
			return model.SheetCost{}, model.Invalidf("cost %q: amount must be positive", fc.Name)
		}
		c.Amount = in.Amount
		c.Total = RoundCents(in.Amount * rate.Value / 100)
	default:
		return model.SheetCost{}, model.Invalidf("cost %q: unknown type %q", fc.Name, fc.Type)
	}
	return c, nil
}

// RoundCents rounds half away from zero to two decimals.
func RoundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// SheetTotal sums the already rounded cost totals.
func SheetTotal(costs []model.SheetCost) float64 {
	total := 0.0
	for _, c := range costs {
		total += c.Total
	}
	return RoundCents(total)
}
