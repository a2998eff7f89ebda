package report

import (
	"sort"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/awsl-project/billcast/internal/domain"
	"github.com/awsl-project/billcast/internal/pricing"
	"github.com/awsl-project/billcast/internal/stats"
)

// YearRow is one calendar year of term totals.
type YearRow struct {
	Year        int             `json:"year"`
	Consumption float64         `json:"consumption"`
	Cost        decimal.Decimal `json:"cost"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Months      int             `json:"months"`
}

// YearlyBreakdown rolls term totals up to years. The unit price is 0 for a
// year without consumption.
func YearlyBreakdown(table *domain.FactTable) []YearRow {
	if table.Len() == 0 {
		return nil
	}
	monthly := stats.AggregateMonthly(stats.DedupeByTerm(table.Rows), stats.CostSourceFor(table.Schema))
	years := stats.RollUpYearly(monthly)

	out := make([]YearRow, 0, len(years))
	for _, y := range years {
		out = append(out, YearRow{
			Year:        y.Year,
			Consumption: y.Consumption,
			Cost:        Money(y.Cost),
			UnitPrice:   decimal.NewFromFloat(pricing.BlendedUnitPrice(y.Cost, y.Consumption, 0)).Round(MoneyPlaces),
			Months:      y.Months,
		})
	}
	return out
}

// PeriodRow is one month, quarter or year of term totals.
type PeriodRow struct {
	Period      string          `json:"period"`
	Consumption float64         `json:"consumption"`
	Cost        decimal.Decimal `json:"cost"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Months      int             `json:"months"`
	Terms       int             `json:"terms"`
}

// PeriodBreakdown rolls term totals up to buckets of g.
func PeriodBreakdown(table *domain.FactTable, g stats.Granularity) []PeriodRow {
	if table.Len() == 0 {
		return nil
	}
	monthly := stats.AggregateMonthly(stats.DedupeByTerm(table.Rows), stats.CostSourceFor(table.Schema))
	return lo.Map(stats.RollUp(monthly, g), func(p stats.PeriodTotal, _ int) PeriodRow {
		return PeriodRow{
			Period:      p.Period,
			Consumption: p.Consumption,
			Cost:        Money(p.Cost),
			UnitPrice:   decimal.NewFromFloat(pricing.BlendedUnitPrice(p.Cost, p.Consumption, 0)).Round(MoneyPlaces),
			Months:      p.Months,
			Terms:       p.Terms,
		}
	})
}

// UnitPriceStats summarizes fee unit prices of one year.
type UnitPriceStats struct {
	Year  int     `json:"year"`
	Mean  float64 `json:"mean"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
}

// distinctFees keeps the first row of every fee; a fee with several
// consumption sub-lines appears once per sub-line in the fact table.
func distinctFees(rows []domain.FactRow) []domain.FactRow {
	return lo.UniqBy(rows, func(r domain.FactRow) string { return r.FeeID })
}

// UnitPriceByYear describes the unit prices of fees with consumption and a
// unit price in (0, maxUnitPrice].
func UnitPriceByYear(table *domain.FactTable, maxUnitPrice float64) []UnitPriceStats {
	if table.Len() == 0 {
		return nil
	}
	byYear := make(map[int][]float64)
	for _, r := range distinctFees(table.Rows) {
		if r.Year == nil || r.UnitPrice == nil || domain.Float(r.Consumption) <= 0 {
			continue
		}
		up := *r.UnitPrice
		if up <= 0 || up > maxUnitPrice {
			continue
		}
		byYear[*r.Year] = append(byYear[*r.Year], up)
	}

	years := lo.Keys(byYear)
	sort.Ints(years)
	out := make([]UnitPriceStats, 0, len(years))
	for _, y := range years {
		prices := byYear[y]
		out = append(out, UnitPriceStats{
			Year:  y,
			Mean:  lo.Sum(prices) / float64(len(prices)),
			Min:   lo.Min(prices),
			Max:   lo.Max(prices),
			Count: len(prices),
		})
	}
	return out
}

// CategoryRow is the fee totals of one tariff category.
type CategoryRow struct {
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	Known         bool            `json:"known"`
	Cost          decimal.Decimal `json:"cost"`
	MeanUnitPrice float64         `json:"mean_unit_price"`
	Consumption   float64         `json:"consumption"`
	Fees          int             `json:"fees"`
}

// CategoryAnalysis groups distinct fees by category, most expensive first.
func CategoryAnalysis(table *domain.FactTable) []CategoryRow {
	if table.Len() == 0 {
		return nil
	}
	type acc struct {
		row       CategoryRow
		cost      []float64
		priceSum  float64
		priceSeen int
	}
	byCode := make(map[string]*acc)
	for _, r := range distinctFees(table.Rows) {
		if r.FeePrefix == nil {
			continue
		}
		a, ok := byCode[*r.FeePrefix]
		if !ok {
			a = &acc{row: CategoryRow{Code: *r.FeePrefix, Name: *r.FeePrefix}}
			if r.Category != nil {
				a.row.Name, a.row.Known = r.Category.Name, r.Category.Known
			}
			byCode[*r.FeePrefix] = a
		}
		a.cost = append(a.cost, r.Amount)
		a.row.Consumption += domain.Float(r.Consumption)
		a.row.Fees++
		if r.UnitPrice != nil {
			a.priceSum += *r.UnitPrice
			a.priceSeen++
		}
	}

	out := make([]CategoryRow, 0, len(byCode))
	for _, a := range byCode {
		row := a.row
		row.Cost = Money(a.cost...)
		if a.priceSeen > 0 {
			row.MeanUnitPrice = a.priceSum / float64(a.priceSeen)
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Cost.Cmp(out[j].Cost); c != 0 {
			return c > 0
		}
		return out[i].Code < out[j].Code
	})
	return out
}

// Display seasons start from winter. The forecasting model numbers seasons
// from spring; the two numberings are kept apart.
const (
	DisplayWinter = 1
	DisplaySpring = 2
	DisplaySummer = 3
	DisplayAutumn = 4
)

var displaySeasonNames = map[int]string{
	DisplayWinter: "Winter",
	DisplaySpring: "Spring",
	DisplaySummer: "Summer",
	DisplayAutumn: "Autumn",
}

// DisplaySeason maps a month to its display season number.
func DisplaySeason(month time.Month) int {
	switch month {
	case time.December, time.January, time.February:
		return DisplayWinter
	case time.March, time.April, time.May:
		return DisplaySpring
	case time.June, time.July, time.August:
		return DisplaySummer
	default:
		return DisplayAutumn
	}
}

func DisplaySeasonName(season int) string {
	return displaySeasonNames[season]
}

// SeasonRow aggregates the terms billed in one season.
type SeasonRow struct {
	Season           int             `json:"season"`
	Name             string          `json:"name"`
	AvgConsumption   float64         `json:"avg_consumption"`
	TotalConsumption float64         `json:"total_consumption"`
	AvgCost          decimal.Decimal `json:"avg_cost"`
	TotalCost        decimal.Decimal `json:"total_cost"`
	Count            int             `json:"count"`
}

// SeasonalAnalysis groups terms with consumption by display season, winter
// first. Count is the number of terms.
func SeasonalAnalysis(table *domain.FactTable) []SeasonRow {
	if table.Len() == 0 {
		return nil
	}
	cost := stats.CostSourceFor(table.Schema)
	terms := lo.Filter(stats.DedupeByTerm(table.Rows), func(r domain.FactRow, _ int) bool {
		return r.Month != nil && r.TotalConsumption > 0
	})
	bySeason := lo.GroupBy(terms, func(r domain.FactRow) int { return DisplaySeason(time.Month(*r.Month)) })

	var out []SeasonRow
	for season := DisplayWinter; season <= DisplayAutumn; season++ {
		rows, ok := bySeason[season]
		if !ok {
			continue
		}
		n := len(rows)
		consumption := lo.SumBy(rows, func(r domain.FactRow) float64 { return r.TotalConsumption })
		costs := lo.Map(rows, func(r domain.FactRow, _ int) float64 { return cost.Of(&r) })
		total := Money(costs...)
		out = append(out, SeasonRow{
			Season:           season,
			Name:             DisplaySeasonName(season),
			AvgConsumption:   consumption / float64(n),
			TotalConsumption: consumption,
			AvgCost:          total.Div(decimal.NewFromInt(int64(n))).Round(MoneyPlaces),
			TotalCost:        total,
			Count:            n,
		})
	}
	return out
}
