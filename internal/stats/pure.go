// Package stats provides pure functions for fact row deduplication, monthly
// aggregation and rollup. They are kept apart from the forecasting and report
// packages so the aggregation rules can be tested on their own.
package stats

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/awsl-project/billcast/internal/domain"
)

// Granularity is the time bucket of an aggregate.
type Granularity string

const (
	GranularityMonth   Granularity = "month"
	GranularityQuarter Granularity = "quarter"
	GranularityYear    Granularity = "year"
)

// TruncateToGranularity truncates a time to the start of its bucket.
func TruncateToGranularity(t time.Time, g Granularity) time.Time {
	switch g {
	case GranularityYear:
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
	case GranularityQuarter:
		m := time.Month((int(t.Month())-1)/3*3 + 1)
		return time.Date(t.Year(), m, 1, 0, 0, 0, 0, t.Location())
	default:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	}
}

// ParseGranularity accepts "month", "quarter" or "year".
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(s); g {
	case GranularityMonth, GranularityQuarter, GranularityYear:
		return g, nil
	}
	return "", fmt.Errorf("unknown granularity %q", s)
}

// Label formats the bucket start t: "2024-03", "2024-Q1" or "2024".
func (g Granularity) Label(t time.Time) string {
	switch g {
	case GranularityYear:
		return fmt.Sprintf("%d", t.Year())
	case GranularityQuarter:
		return fmt.Sprintf("%d-Q%d", t.Year(), (int(t.Month())-1)/3+1)
	default:
		return t.Format("2006-01")
	}
}

// DedupeByTerm keeps the first row of every term. Term rollups are repeated
// on each row of a term, so any sum over them must go through here first.
func DedupeByTerm(rows []domain.FactRow) []domain.FactRow {
	return lo.UniqBy(rows, func(r domain.FactRow) string { return r.TermID })
}

// CostSource selects the cost column of a rollup.
type CostSource int

const (
	CostTermTotal CostSource = iota
	CostAmount
)

// CostSourceFor prefers term_total_cost and falls back to amount when the run
// could not produce it.
func CostSourceFor(schema domain.FactSchema) CostSource {
	if schema.TermTotalCost {
		return CostTermTotal
	}
	return CostAmount
}

func (c CostSource) Of(r *domain.FactRow) float64 {
	if c == CostAmount {
		return r.Amount
	}
	return r.TermTotalCost
}

// AggregateMonthly sums term-deduplicated rows per (year, month). Rows
// without a period are skipped. The result is sorted by period.
func AggregateMonthly(deduped []domain.FactRow, cost CostSource) []domain.MonthlyAggregate {
	if len(deduped) == 0 {
		return nil
	}

	type aggKey struct {
		year  int
		month int
	}
	aggMap := make(map[aggKey]*domain.MonthlyAggregate)

	for i := range deduped {
		r := &deduped[i]
		if !r.HasPeriod() {
			continue
		}
		key := aggKey{year: *r.Year, month: *r.Month}
		if a, ok := aggMap[key]; ok {
			a.Consumption += r.TotalConsumption
			a.Cost += cost.Of(r)
			a.Terms++
		} else {
			aggMap[key] = &domain.MonthlyAggregate{
				Year:        key.year,
				Month:       key.month,
				Consumption: r.TotalConsumption,
				Cost:        cost.Of(r),
				Terms:       1,
			}
		}
	}

	result := make([]domain.MonthlyAggregate, 0, len(aggMap))
	for _, a := range aggMap {
		result = append(result, *a)
	}
	SortByPeriod(result)
	return result
}

// SortByPeriod orders aggregates chronologically.
func SortByPeriod(aggs []domain.MonthlyAggregate) {
	sort.Slice(aggs, func(i, j int) bool {
		if aggs[i].Year != aggs[j].Year {
			return aggs[i].Year < aggs[j].Year
		}
		return aggs[i].Month < aggs[j].Month
	})
}

// YearTotal is one calendar year of monthly aggregates.
type YearTotal struct {
	Year        int     `json:"year"`
	Consumption float64 `json:"consumption"`
	Cost        float64 `json:"cost"`
	Months      int     `json:"months"`
	Terms       int     `json:"terms"`
}

// RollUpYearly folds monthly aggregates into calendar years, oldest first.
func RollUpYearly(monthly []domain.MonthlyAggregate) []YearTotal {
	byYear := lo.GroupBy(monthly, func(a domain.MonthlyAggregate) int { return a.Year })
	years := lo.Keys(byYear)
	sort.Ints(years)

	out := make([]YearTotal, 0, len(years))
	for _, y := range years {
		ms := byYear[y]
		out = append(out, YearTotal{
			Year:        y,
			Consumption: lo.SumBy(ms, func(a domain.MonthlyAggregate) float64 { return a.Consumption }),
			Cost:        lo.SumBy(ms, func(a domain.MonthlyAggregate) float64 { return a.Cost }),
			Months:      len(ms),
			Terms:       lo.SumBy(ms, func(a domain.MonthlyAggregate) int { return a.Terms }),
		})
	}
	return out
}

// PeriodTotal is one bucket of monthly aggregates.
type PeriodTotal struct {
	Period      string    `json:"period"`
	Start       time.Time `json:"start"`
	Consumption float64   `json:"consumption"`
	Cost        float64   `json:"cost"`
	Months      int       `json:"months"`
	Terms       int       `json:"terms"`
}

// RollUp folds monthly aggregates into buckets of g, oldest first.
func RollUp(monthly []domain.MonthlyAggregate, g Granularity) []PeriodTotal {
	byStart := lo.GroupBy(monthly, func(a domain.MonthlyAggregate) time.Time {
		return TruncateToGranularity(time.Date(a.Year, time.Month(a.Month), 1, 0, 0, 0, 0, time.UTC), g)
	})
	starts := lo.Keys(byStart)
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })

	out := make([]PeriodTotal, 0, len(starts))
	for _, start := range starts {
		ms := byStart[start]
		out = append(out, PeriodTotal{
			Period:      g.Label(start),
			Start:       start,
			Consumption: lo.SumBy(ms, func(a domain.MonthlyAggregate) float64 { return a.Consumption }),
			Cost:        lo.SumBy(ms, func(a domain.MonthlyAggregate) float64 { return a.Cost }),
			Months:      len(ms),
			Terms:       lo.SumBy(ms, func(a domain.MonthlyAggregate) int { return a.Terms }),
		})
	}
	return out
}

// SumTerms returns total consumption and cost over term-deduplicated rows.
func SumTerms(deduped []domain.FactRow, cost CostSource) (consumption, totalCost float64) {
	for i := range deduped {
		consumption += deduped[i].TotalConsumption
		totalCost += cost.Of(&deduped[i])
	}
	return consumption, totalCost
}

// Quantile returns the p-quantile of sorted values, interpolating linearly
// between the order statistics around (n-1)·p.
func Quantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}
	h := float64(n-1) * p
	floor := math.Floor(h)
	i := int(floor)
	if i+1 >= n {
		return sorted[n-1]
	}
	return sorted[i] + (h-floor)*(sorted[i+1]-sorted[i])
}

// IQRBounds returns [Q1 - k·IQR, Q3 + k·IQR] of values.
func IQRBounds(values []float64, k float64) (lower, upper float64) {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	q1 := Quantile(sorted, 0.25)
	q3 := Quantile(sorted, 0.75)
	iqr := q3 - q1
	return q1 - k*iqr, q3 + k*iqr
}

// FilterOutlierMonths drops months whose consumption falls outside the IQR
// fence. Bounds are inclusive.
func FilterOutlierMonths(monthly []domain.MonthlyAggregate, k float64) (kept, dropped []domain.MonthlyAggregate) {
	if len(monthly) == 0 {
		return nil, nil
	}
	values := lo.Map(monthly, func(a domain.MonthlyAggregate, _ int) float64 { return a.Consumption })
	lower, upper := IQRBounds(values, k)
	for _, a := range monthly {
		if a.Consumption < lower || a.Consumption > upper {
			dropped = append(dropped, a)
			continue
		}
		kept = append(kept, a)
	}
	return kept, dropped
}
