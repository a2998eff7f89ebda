package pricing

// Calculator 成本计算器：把预测的用电量换算成费用
type Calculator struct {
	dist         Distribution
	avgUnitPrice float64
}

// NewCalculator creates a calculator. avgUnitPrice is used when the
// distribution is empty.
func NewCalculator(dist Distribution, avgUnitPrice float64) *Calculator {
	return &Calculator{dist: dist, avgUnitPrice: avgUnitPrice}
}

// Cost converts a consumption quantity to money using the tariff mix:
// Σ consumption × share × unit price over categories.
func (c *Calculator) Cost(consumption float64) float64 {
	if c.dist.Empty() {
		return consumption * c.avgUnitPrice
	}
	var cost float64
	for _, s := range c.dist.Shares {
		cost += consumption * s.Ratio * s.UnitPrice
	}
	return cost
}

// EffectiveUnitPrice is the price per unit Cost applies.
func (c *Calculator) EffectiveUnitPrice() float64 {
	return c.Cost(1)
}

// BlendedUnitPrice returns cost / consumption, or fallback when consumption
// is not positive.
func BlendedUnitPrice(cost, consumption, fallback float64) float64 {
	if consumption <= 0 {
		return fallback
	}
	return cost / consumption
}
