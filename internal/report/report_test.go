package report

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awsl-project/billcast/internal/domain"
	"github.com/awsl-project/billcast/internal/stats"
)

func almostEqual(a, b, epsilon float64) bool {
	return math.Abs(a-b) < epsilon
}

type fee struct {
	id, code    string
	unitPrice   float64
	consumption float64
	amount      float64
}

type term struct {
	id, accrual  string
	date         time.Time
	consumption  float64
	cost         float64
	fees         []fee
	subLinesFor0 int
}

// build expands terms into fact rows. The first fee of a term gets
// subLinesFor0 extra rows, as a fee with several consumption sub-lines does.
func build(terms ...term) *domain.FactTable {
	cats := domain.DefaultCategoryTable()
	t := &domain.FactTable{Schema: domain.FullFactSchema()}
	for _, tm := range terms {
		date := tm.date
		year, month := date.Year(), int(date.Month())
		for i, f := range tm.fees {
			code := f.code
			prefix := domain.CategoryCode(code)
			cat := cats.Resolve(prefix)
			up, c := f.unitPrice, f.consumption
			row := domain.FactRow{
				AccrualID:        tm.accrual,
				TermID:           tm.id,
				TermDate:         &date,
				Year:             &year,
				Month:            &month,
				FeeID:            f.id,
				FeeCode:          &code,
				FeePrefix:        &prefix,
				Category:         &cat,
				UnitPrice:        &up,
				Consumption:      &c,
				Amount:           f.amount,
				TotalConsumption: tm.consumption,
				TermTotalCost:    tm.cost,
			}
			copies := 1
			if i == 0 {
				copies += tm.subLinesFor0
			}
			for k := 0; k < copies; k++ {
				t.Rows = append(t.Rows, row)
			}
		}
	}
	return t
}

func day(y int, m time.Month) time.Time {
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

func fixture() *domain.FactTable {
	return build(
		term{id: "t1", accrual: "a1", date: day(2023, time.January), consumption: 100, cost: 200.10, subLinesFor0: 2,
			fees: []fee{{id: "f1", code: "4AG_T1", unitPrice: 2.0, consumption: 100, amount: 200.10}}},
		term{id: "t2", accrual: "a1", date: day(2023, time.July), consumption: 300, cost: 600.20,
			fees: []fee{
				{id: "f2", code: "4AG_T1", unitPrice: 2.0, consumption: 250, amount: 500.00},
				{id: "f3", code: "URT_X", unitPrice: 2.0, consumption: 50, amount: 100.20},
				{id: "f4", code: "4OG_T1", unitPrice: 7.5, consumption: 10, amount: 75},
			}},
		term{id: "t3", accrual: "a2", date: day(2024, time.December), consumption: 50, cost: 100.005,
			fees: []fee{{id: "f5", code: "ZZZ_1", unitPrice: 3.0, consumption: 50, amount: 100.005}}},
	)
}

func TestSummarize(t *testing.T) {
	s := Summarize(fixture())
	assert.Equal(t, 7, s.TotalRecords)
	assert.Equal(t, 450.0, s.TotalConsumption)
	assert.True(t, s.TotalCost.Equal(decimal.RequireFromString("900.31")), s.TotalCost.String())
	require.NotNil(t, s.DateRange.Start)
	assert.Equal(t, day(2023, time.January), *s.DateRange.Start)
	assert.Equal(t, day(2024, time.December), *s.DateRange.End)
	assert.Equal(t, 2, s.UniqueAccruals)
	assert.Equal(t, 4, s.UniquePrefixes)

	empty := Summarize(&domain.FactTable{})
	assert.Equal(t, 0, empty.TotalRecords)
	assert.True(t, empty.TotalCost.IsZero())
}

func TestMetrics(t *testing.T) {
	m := Metrics(fixture())
	assert.Equal(t, 3, m.Months)
	assert.Equal(t, 150.0, m.AvgMonthlyConsumption)
	assert.Equal(t, "300.10", m.AvgMonthlyCost.StringFixed(2))
	require.NotNil(t, m.MaxConsumptionMonth)
	assert.Equal(t, "2023-07", m.MaxConsumptionMonth.Month)
	assert.Equal(t, "2024-12", m.MinConsumptionMonth.Month)
}

func TestYearlyBreakdown(t *testing.T) {
	rows := YearlyBreakdown(fixture())
	require.Len(t, rows, 2)
	assert.Equal(t, 2023, rows[0].Year)
	assert.Equal(t, 400.0, rows[0].Consumption)
	assert.Equal(t, "800.30", rows[0].Cost.StringFixed(2))
	assert.Equal(t, "2.00", rows[0].UnitPrice.StringFixed(2))
	assert.Equal(t, 2, rows[0].Months)
	assert.Equal(t, 2024, rows[1].Year)
}

func TestPeriodBreakdown(t *testing.T) {
	rows := PeriodBreakdown(fixture(), stats.GranularityQuarter)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"2023-Q1", "2023-Q3", "2024-Q4"}, []string{rows[0].Period, rows[1].Period, rows[2].Period})
	assert.Equal(t, 100.0, rows[0].Consumption)
	assert.Equal(t, "600.20", rows[1].Cost.StringFixed(2))
	assert.Equal(t, "2.00", rows[1].UnitPrice.StringFixed(2))
	assert.Equal(t, 1, rows[2].Terms)

	years := PeriodBreakdown(fixture(), stats.GranularityYear)
	require.Len(t, years, 2)
	assert.Equal(t, "800.30", years[0].Cost.StringFixed(2))
	assert.Equal(t, 2, years[0].Months)

	assert.Empty(t, PeriodBreakdown(&domain.FactTable{}, stats.GranularityMonth))
}

func TestUnitPriceByYear(t *testing.T) {
	rows := UnitPriceByYear(fixture(), 5.0)
	require.Len(t, rows, 2)
	// f4 at 7.5 is excluded; f1 counts once despite its sub-lines
	assert.Equal(t, UnitPriceStats{Year: 2023, Mean: 2.0, Min: 2.0, Max: 2.0, Count: 3}, rows[0])
	assert.Equal(t, UnitPriceStats{Year: 2024, Mean: 3.0, Min: 3.0, Max: 3.0, Count: 1}, rows[1])
}

func TestCategoryAnalysis(t *testing.T) {
	rows := CategoryAnalysis(fixture())
	require.Len(t, rows, 4)

	codes := []string{rows[0].Code, rows[1].Code, rows[2].Code, rows[3].Code}
	assert.Equal(t, []string{"4AG", "URT", "ZZZ", "4OG"}, codes)

	assert.Equal(t, "700.10", rows[0].Cost.StringFixed(2))
	assert.Equal(t, 350.0, rows[0].Consumption)
	assert.Equal(t, 2, rows[0].Fees)
	assert.True(t, rows[0].Known)
	assert.True(t, almostEqual(rows[0].MeanUnitPrice, 2.0, 1e-12))

	assert.False(t, rows[2].Known)
	assert.Equal(t, "ZZZ", rows[2].Name)
}

func TestDisplaySeason(t *testing.T) {
	tests := []struct {
		month time.Month
		want  string
	}{
		{time.December, "Winter"},
		{time.February, "Winter"},
		{time.March, "Spring"},
		{time.August, "Summer"},
		{time.November, "Autumn"},
	}
	for _, tt := range tests {
		t.Run(tt.month.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, DisplaySeasonName(DisplaySeason(tt.month)))
		})
	}
	assert.Equal(t, 1, DisplaySeason(time.January))
}

func TestSeasonalAnalysis(t *testing.T) {
	rows := SeasonalAnalysis(fixture())
	require.Len(t, rows, 2)

	winter := rows[0]
	assert.Equal(t, "Winter", winter.Name)
	assert.Equal(t, 2, winter.Count)
	assert.Equal(t, 150.0, winter.TotalConsumption)
	assert.Equal(t, 75.0, winter.AvgConsumption)

	summer := rows[1]
	assert.Equal(t, "Summer", summer.Name)
	assert.Equal(t, 1, summer.Count)
	assert.Equal(t, "600.20", summer.TotalCost.StringFixed(2))
}

func TestMoney(t *testing.T) {
	assert.Equal(t, "0.30", Money(0.1, 0.2).StringFixed(2))
	assert.Equal(t, "1.01", Money(1.005).StringFixed(2))
	assert.True(t, Money().IsZero())
}
