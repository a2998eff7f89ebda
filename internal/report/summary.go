// Package report computes the descriptive views of a fact table: totals,
// monthly extremes, yearly and seasonal breakdowns and the tariff category
// analysis. Money is rounded to cents with decimal arithmetic.
package report

import (
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/awsl-project/billcast/internal/domain"
	"github.com/awsl-project/billcast/internal/stats"
)

// MoneyPlaces is the number of decimals money is rounded to.
const MoneyPlaces = 2

// Money sums float amounts exactly and rounds the total to cents.
func Money(values ...float64) decimal.Decimal {
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(decimal.NewFromFloat(v))
	}
	return sum.Round(MoneyPlaces)
}

type DateRange struct {
	Start *time.Time `json:"start"`
	End   *time.Time `json:"end"`
}

// Summary 数据概览，金额和用电量按 term 去重后累加
type Summary struct {
	TotalRecords     int             `json:"total_records"`
	TotalConsumption float64         `json:"total_consumption"`
	TotalCost        decimal.Decimal `json:"total_cost"`
	DateRange        DateRange       `json:"date_range"`
	UniqueAccruals   int             `json:"unique_accruals"`
	UniquePrefixes   int             `json:"unique_prefixes"`
}

func Summarize(table *domain.FactTable) Summary {
	if table.Len() == 0 {
		return Summary{TotalCost: decimal.Zero}
	}
	deduped := stats.DedupeByTerm(table.Rows)
	cost := stats.CostSourceFor(table.Schema)

	s := Summary{
		TotalRecords:     len(table.Rows),
		TotalConsumption: lo.SumBy(deduped, func(r domain.FactRow) float64 { return r.TotalConsumption }),
		TotalCost:        Money(lo.Map(deduped, func(r domain.FactRow, _ int) float64 { return cost.Of(&r) })...),
	}

	accruals := make(map[string]struct{})
	prefixes := make(map[string]struct{})
	for i := range table.Rows {
		r := &table.Rows[i]
		if r.AccrualID != "" {
			accruals[r.AccrualID] = struct{}{}
		}
		if r.FeePrefix != nil {
			prefixes[*r.FeePrefix] = struct{}{}
		}
		if r.TermDate == nil {
			continue
		}
		if s.DateRange.Start == nil || r.TermDate.Before(*s.DateRange.Start) {
			s.DateRange.Start = r.TermDate
		}
		if s.DateRange.End == nil || r.TermDate.After(*s.DateRange.End) {
			s.DateRange.End = r.TermDate
		}
	}
	s.UniqueAccruals = len(accruals)
	s.UniquePrefixes = len(prefixes)
	return s
}

// MonthValue is one month's consumption.
type MonthValue struct {
	Month       string  `json:"month"`
	Consumption float64 `json:"consumption"`
}

// SummaryMetrics are the headline monthly figures.
type SummaryMetrics struct {
	TotalConsumption      float64         `json:"total_consumption"`
	TotalCost             decimal.Decimal `json:"total_cost"`
	AvgMonthlyConsumption float64         `json:"avg_monthly_consumption"`
	AvgMonthlyCost        decimal.Decimal `json:"avg_monthly_cost"`
	Months                int             `json:"months"`
	MaxConsumptionMonth   *MonthValue     `json:"max_consumption_month,omitempty"`
	MinConsumptionMonth   *MonthValue     `json:"min_consumption_month,omitempty"`
}

// Metrics divides the term totals by the number of months with consumption
// and finds the extreme months.
func Metrics(table *domain.FactTable) SummaryMetrics {
	m := SummaryMetrics{TotalCost: decimal.Zero, AvgMonthlyCost: decimal.Zero}
	if table.Len() == 0 {
		return m
	}
	deduped := stats.DedupeByTerm(table.Rows)
	cost := stats.CostSourceFor(table.Schema)
	consumption, totalCost := stats.SumTerms(deduped, cost)
	m.TotalConsumption = consumption
	m.TotalCost = Money(totalCost)

	monthly := lo.Filter(stats.AggregateMonthly(deduped, cost), func(a domain.MonthlyAggregate, _ int) bool {
		return a.Consumption > 0
	})
	m.Months = len(monthly)
	if m.Months == 0 {
		return m
	}
	m.AvgMonthlyConsumption = consumption / float64(m.Months)
	m.AvgMonthlyCost = decimal.NewFromFloat(totalCost).Div(decimal.NewFromInt(int64(m.Months))).Round(MoneyPlaces)

	maxM := lo.MaxBy(monthly, func(a, b domain.MonthlyAggregate) bool { return a.Consumption > b.Consumption })
	minM := lo.MinBy(monthly, func(a, b domain.MonthlyAggregate) bool { return a.Consumption < b.Consumption })
	m.MaxConsumptionMonth = &MonthValue{Month: period(maxM.Year, maxM.Month), Consumption: maxM.Consumption}
	m.MinConsumptionMonth = &MonthValue{Month: period(minM.Year, minM.Month), Consumption: minM.Consumption}
	return m
}

func period(year, month int) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}
