package domain

import "time"

// UnknownTimeFrame fills missing channel keys.
const UnknownTimeFrame = "UNKNOWN"

// FactRow 对账后的事实行：Accrual × Term × Fee × Consumption
type FactRow struct {
	// Accrual
	AccrualID        string     `json:"accrualId"`
	AccrualDate      *time.Time `json:"accrualDate"`
	AccrualStartDate *time.Time `json:"accrualStartDate"`
	AccrualEndDate   *time.Time `json:"accrualEndDate"`

	// Term
	TermID        string     `json:"termId"`
	TermDate      *time.Time `json:"termDate"`
	Year          *int       `json:"year"`
	Month         *int       `json:"month"`
	TermStartDate *time.Time `json:"termStartDate"`
	TermEndDate   *time.Time `json:"termEndDate"`

	// Fee
	FeeID       string    `json:"feeId"`
	FeeCode     *string   `json:"feeCode"`
	FeePrefix   *string   `json:"feePrefix"`
	Category    *Category `json:"category,omitempty"`
	UnitPrice   *float64  `json:"unitPrice"`
	Consumption *float64  `json:"consumption"`
	Amount      float64   `json:"amount"`

	// Consumption, nil when the fee has no sub-lines
	ConsumptionID       *string  `json:"consumptionId"`
	ChannelKey          *string  `json:"channelKey"`
	BillableConsumption *float64 `json:"billableConsumption"`

	// Derived
	ConsumptionValue float64 `json:"consumptionValue"`
	TimeFrame        string  `json:"timeFrame"`
	TotalConsumption float64 `json:"totalConsumption"`
	TermTotalCost    float64 `json:"termTotalCost"`

	// Extra holds source columns outside the contract. Names colliding with an
	// earlier table get a _term, _fee or _consumption suffix.
	Extra map[string]string `json:"extra,omitempty"`
}

// HasPeriod reports whether year and month were derived.
func (r *FactRow) HasPeriod() bool {
	return r.Year != nil && r.Month != nil
}

// FactTable is one reconciliation result. It is never mutated after it is
// built; a refresh replaces it.
type FactTable struct {
	Rows        []FactRow  `json:"rows"`
	Schema      FactSchema `json:"schema"`
	Fingerprint string     `json:"fingerprint"`
	BuiltAt     time.Time  `json:"builtAt"`
}

func (t *FactTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// MonthlyAggregate is one calendar month of deduplicated term totals.
type MonthlyAggregate struct {
	Year        int     `json:"year"`
	Month       int     `json:"month"`
	Consumption float64 `json:"consumption"`
	Cost        float64 `json:"cost"`
	Terms       int     `json:"terms"`
}

// Float returns the value behind a nullable number, or 0.
func Float(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

// String returns the value behind a nullable string, or "".
func String(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
