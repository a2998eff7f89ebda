package stats

import (
	"math"
	"testing"
	"time"

	"github.com/awsl-project/billcast/internal/domain"
)

func almostEqual(a, b, epsilon float64) bool {
	return math.Abs(a-b) < epsilon
}

func intp(v int) *int { return &v }

func factRow(termID string, year, month int, total, termCost, amount float64) domain.FactRow {
	return domain.FactRow{
		TermID:           termID,
		Year:             intp(year),
		Month:            intp(month),
		TotalConsumption: total,
		TermTotalCost:    termCost,
		Amount:           amount,
	}
}

func TestTruncateToGranularity(t *testing.T) {
	testTime := time.Date(2024, 8, 17, 14, 35, 42, 0, time.UTC)

	tests := []struct {
		name        string
		granularity Granularity
		expected    time.Time
	}{
		{name: "month", granularity: GranularityMonth, expected: time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)},
		{name: "quarter", granularity: GranularityQuarter, expected: time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)},
		{name: "year", granularity: GranularityYear, expected: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{name: "unknown granularity defaults to month", granularity: Granularity("week"), expected: time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := TruncateToGranularity(testTime, tt.granularity)
			if !result.Equal(tt.expected) {
				t.Errorf("TruncateToGranularity(%v, %v) = %v, want %v", testTime, tt.granularity, result, tt.expected)
			}
		})
	}
}

func TestDedupeByTerm(t *testing.T) {
	rows := []domain.FactRow{
		factRow("t1", 2024, 1, 100, 10, 5),
		factRow("t1", 2024, 1, 100, 10, 5),
		factRow("t2", 2024, 1, 50, 4, 4),
		factRow("t1", 2024, 1, 100, 10, 1),
	}

	deduped := DedupeByTerm(rows)
	if len(deduped) != 2 {
		t.Fatalf("DedupeByTerm() returned %d rows, want 2", len(deduped))
	}
	if deduped[0].TermID != "t1" || deduped[1].TermID != "t2" {
		t.Errorf("DedupeByTerm() order = [%s %s], want [t1 t2]", deduped[0].TermID, deduped[1].TermID)
	}
	if deduped[0].Amount != 5 {
		t.Errorf("DedupeByTerm() kept amount %v, want the first row's 5", deduped[0].Amount)
	}

	consumption, cost := SumTerms(deduped, CostTermTotal)
	if consumption != 150 || cost != 14 {
		t.Errorf("SumTerms() = (%v, %v), want (150, 14)", consumption, cost)
	}
}

func TestAggregateMonthly(t *testing.T) {
	rows := []domain.FactRow{
		factRow("t3", 2024, 2, 300, 30, 1),
		factRow("t1", 2024, 1, 100, 10, 2),
		factRow("t2", 2024, 1, 50, 5, 3),
		factRow("t4", 2023, 12, 70, 7, 4),
		{TermID: "t5", TotalConsumption: 999},
	}

	tests := []struct {
		name     string
		cost     CostSource
		expected []domain.MonthlyAggregate
	}{
		{
			name: "term total cost",
			cost: CostTermTotal,
			expected: []domain.MonthlyAggregate{
				{Year: 2023, Month: 12, Consumption: 70, Cost: 7, Terms: 1},
				{Year: 2024, Month: 1, Consumption: 150, Cost: 15, Terms: 2},
				{Year: 2024, Month: 2, Consumption: 300, Cost: 30, Terms: 1},
			},
		},
		{
			name: "amount fallback",
			cost: CostAmount,
			expected: []domain.MonthlyAggregate{
				{Year: 2023, Month: 12, Consumption: 70, Cost: 4, Terms: 1},
				{Year: 2024, Month: 1, Consumption: 150, Cost: 5, Terms: 2},
				{Year: 2024, Month: 2, Consumption: 300, Cost: 1, Terms: 1},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := AggregateMonthly(rows, tt.cost)
			if len(result) != len(tt.expected) {
				t.Fatalf("AggregateMonthly() returned %d rows, want %d", len(result), len(tt.expected))
			}
			for i := range result {
				if result[i] != tt.expected[i] {
					t.Errorf("AggregateMonthly()[%d] = %+v, want %+v", i, result[i], tt.expected[i])
				}
			}
		})
	}
}

func TestCostSourceFor(t *testing.T) {
	if got := CostSourceFor(domain.FullFactSchema()); got != CostTermTotal {
		t.Errorf("CostSourceFor(full) = %v, want CostTermTotal", got)
	}
	if got := CostSourceFor(domain.FactSchema{}); got != CostAmount {
		t.Errorf("CostSourceFor(empty) = %v, want CostAmount", got)
	}
}

func TestRollUpYearly(t *testing.T) {
	monthly := []domain.MonthlyAggregate{
		{Year: 2024, Month: 1, Consumption: 10, Cost: 1, Terms: 1},
		{Year: 2023, Month: 5, Consumption: 20, Cost: 2, Terms: 2},
		{Year: 2024, Month: 2, Consumption: 30, Cost: 3, Terms: 1},
	}
	years := RollUpYearly(monthly)
	want := []YearTotal{
		{Year: 2023, Consumption: 20, Cost: 2, Months: 1, Terms: 2},
		{Year: 2024, Consumption: 40, Cost: 4, Months: 2, Terms: 2},
	}
	if len(years) != len(want) {
		t.Fatalf("RollUpYearly() returned %d years, want %d", len(years), len(want))
	}
	for i := range want {
		if years[i] != want[i] {
			t.Errorf("RollUpYearly()[%d] = %+v, want %+v", i, years[i], want[i])
		}
	}
}

func TestRollUp(t *testing.T) {
	monthly := []domain.MonthlyAggregate{
		{Year: 2024, Month: 1, Consumption: 10, Cost: 1, Terms: 1},
		{Year: 2023, Month: 11, Consumption: 20, Cost: 2, Terms: 2},
		{Year: 2024, Month: 3, Consumption: 30, Cost: 3, Terms: 1},
		{Year: 2024, Month: 4, Consumption: 5, Cost: 1, Terms: 1},
	}

	tests := []struct {
		granularity Granularity
		periods     []string
		months      []int
		consumption []float64
	}{
		{GranularityMonth, []string{"2023-11", "2024-01", "2024-03", "2024-04"}, []int{1, 1, 1, 1}, []float64{20, 10, 30, 5}},
		{GranularityQuarter, []string{"2023-Q4", "2024-Q1", "2024-Q2"}, []int{1, 2, 1}, []float64{20, 40, 5}},
		{GranularityYear, []string{"2023", "2024"}, []int{1, 3}, []float64{20, 45}},
	}
	for _, tt := range tests {
		t.Run(string(tt.granularity), func(t *testing.T) {
			got := RollUp(monthly, tt.granularity)
			if len(got) != len(tt.periods) {
				t.Fatalf("RollUp() returned %d periods, want %d: %+v", len(got), len(tt.periods), got)
			}
			for i, p := range got {
				if p.Period != tt.periods[i] || p.Months != tt.months[i] || p.Consumption != tt.consumption[i] {
					t.Errorf("RollUp()[%d] = %+v, want %s with %d months and %v", i, p, tt.periods[i], tt.months[i], tt.consumption[i])
				}
			}
		})
	}

	if got := RollUp(nil, GranularityYear); len(got) != 0 {
		t.Errorf("RollUp(nil) = %+v, want empty", got)
	}
}

func TestParseGranularity(t *testing.T) {
	for _, s := range []string{"month", "quarter", "year"} {
		if g, err := ParseGranularity(s); err != nil || string(g) != s {
			t.Errorf("ParseGranularity(%q) = (%q, %v)", s, g, err)
		}
	}
	if _, err := ParseGranularity("week"); err == nil {
		t.Error("ParseGranularity(week) returned no error")
	}
}

func TestQuantile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4}
	tests := []struct {
		p        float64
		expected float64
	}{
		{0, 1},
		{0.25, 1.75},
		{0.5, 2.5},
		{0.75, 3.25},
		{1, 4},
	}
	for _, tt := range tests {
		if got := Quantile(sorted, tt.p); !almostEqual(got, tt.expected, 1e-12) {
			t.Errorf("Quantile(%v, %v) = %v, want %v", sorted, tt.p, got, tt.expected)
		}
	}
	if got := Quantile(nil, 0.5); !math.IsNaN(got) {
		t.Errorf("Quantile(nil) = %v, want NaN", got)
	}
	if got := Quantile([]float64{7}, 0.25); got != 7 {
		t.Errorf("Quantile([7], 0.25) = %v, want 7", got)
	}
}

func TestFilterOutlierMonths(t *testing.T) {
	monthly := make([]domain.MonthlyAggregate, 0, 12)
	for m := 1; m <= 11; m++ {
		monthly = append(monthly, domain.MonthlyAggregate{Year: 2024, Month: m, Consumption: 1000 + float64(m*10)})
	}
	// far outside five IQRs
	monthly = append(monthly, domain.MonthlyAggregate{Year: 2024, Month: 12, Consumption: 100000})

	kept, dropped := FilterOutlierMonths(monthly, 5)
	if len(dropped) != 1 || dropped[0].Month != 12 {
		t.Fatalf("FilterOutlierMonths() dropped %+v, want only month 12", dropped)
	}
	if len(kept) != 11 {
		t.Errorf("FilterOutlierMonths() kept %d, want 11", len(kept))
	}

	// ordinary seasonal swings survive the permissive fence
	seasonal := []domain.MonthlyAggregate{
		{Month: 1, Consumption: 1500}, {Month: 2, Consumption: 1400}, {Month: 3, Consumption: 1000},
		{Month: 4, Consumption: 800}, {Month: 5, Consumption: 700}, {Month: 6, Consumption: 1200},
	}
	if kept, dropped := FilterOutlierMonths(seasonal, 5); len(kept) != 6 || len(dropped) != 0 {
		t.Errorf("FilterOutlierMonths(seasonal) = %d kept, %d dropped, want 6, 0", len(kept), len(dropped))
	}
}
