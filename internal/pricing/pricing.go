// Package pricing 提供分类价格分布和成本计算
package pricing

import (
	"sort"

	"github.com/samber/lo"

	"github.com/awsl-project/billcast/internal/domain"
)

// Distribution is the historical tariff mix: per category, its share of
// consumption and its cost-weighted unit price.
type Distribution struct {
	Shares           []domain.CategoryShare `json:"shares"`
	TotalConsumption float64                `json:"totalConsumption"`
}

// BuildDistribution computes the distribution from fact rows with a
// category, consumption > 0 and 0 < unit_price <= maxUnitPrice. Costs are
// the fee-level amounts, not the term rollups. A fee repeated by its
// consumption sub-lines counts once.
func BuildDistribution(rows []domain.FactRow, maxUnitPrice float64) Distribution {
	type acc struct {
		share domain.CategoryShare
	}
	byCode := make(map[string]*acc)

	fees := distinctFees(rows)
	var total float64
	for i := range fees {
		r := &fees[i]
		if !qualifies(r, maxUnitPrice) {
			continue
		}
		code := *r.FeePrefix
		a, ok := byCode[code]
		if !ok {
			a = &acc{share: domain.CategoryShare{Code: code, Name: code}}
			if r.Category != nil {
				a.share.Name = r.Category.Name
				a.share.Known = r.Category.Known
			}
			byCode[code] = a
		}
		a.share.Consumption += *r.Consumption
		a.share.Cost += r.Amount
		total += *r.Consumption
	}

	d := Distribution{TotalConsumption: total}
	for _, a := range byCode {
		s := a.share
		s.UnitPrice = safeDiv(s.Cost, s.Consumption)
		s.Ratio = safeDiv(s.Consumption, total)
		d.Shares = append(d.Shares, s)
	}
	sort.Slice(d.Shares, func(i, j int) bool { return d.Shares[i].Code < d.Shares[j].Code })
	return d
}

// distinctFees keeps the first row of every fee.
func distinctFees(rows []domain.FactRow) []domain.FactRow {
	return lo.UniqBy(rows, func(r domain.FactRow) string { return r.FeeID })
}

func qualifies(r *domain.FactRow, maxUnitPrice float64) bool {
	if r.FeePrefix == nil || r.Consumption == nil || r.UnitPrice == nil {
		return false
	}
	up := *r.UnitPrice
	return *r.Consumption > 0 && up > 0 && up <= maxUnitPrice
}

// Empty reports whether no category qualified.
func (d Distribution) Empty() bool {
	return len(d.Shares) == 0
}

// RatioSum is 1 for any non-empty distribution, up to rounding.
func (d Distribution) RatioSum() float64 {
	var sum float64
	for _, s := range d.Shares {
		sum += s.Ratio
	}
	return sum
}

// UnknownCodes lists the categories outside the category table.
func (d Distribution) UnknownCodes() []string {
	var out []string
	for _, s := range d.Shares {
		if !s.Known {
			out = append(out, s.Code)
		}
	}
	return out
}

// safeDiv returns 0 when the denominator is 0.
func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
