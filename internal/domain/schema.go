package domain

// Raw column names shared by every source.
const (
	ColID                  = "id"
	ColAccrualID           = "accrual_id"
	ColTermID              = "accrual_term_id"
	ColFeeID               = "accrual_fee_id"
	ColAccrualDate         = "accrual_date"
	ColAccrualStartDate    = "accrual_start_date"
	ColAccrualEndDate      = "accrual_end_date"
	ColTermDate            = "term_date"
	ColStartDate           = "start_date"
	ColEndDate             = "end_date"
	ColFeeCode             = "fee_code"
	ColUnitPrice           = "unit_price"
	ColConsumption         = "consumption"
	ColAmount              = "amount"
	ColChannelKey          = "channel_key"
	ColBillableConsumption = "billable_channel_consumption"
)

// TableSchema separates the columns a table must carry from the ones the
// pipeline uses when present.
type TableSchema struct {
	Required []string
	Optional []string
}

// Known reports whether a column belongs to the contract of the table.
func (s TableSchema) Known(col string) bool {
	for _, c := range s.Required {
		if c == col {
			return true
		}
	}
	for _, c := range s.Optional {
		if c == col {
			return true
		}
	}
	return false
}

// RawSchemas returns the column contract per raw table. Required columns are
// the join keys of the inner joins; losing one makes the table unusable.
func RawSchemas() map[TableKind]TableSchema {
	return map[TableKind]TableSchema{
		TableAccruals: {
			Required: []string{ColID},
			Optional: []string{ColAccrualDate, ColAccrualStartDate, ColAccrualEndDate},
		},
		TableTerms: {
			Required: []string{ColID, ColAccrualID},
			Optional: []string{ColTermDate, ColStartDate, ColEndDate},
		},
		TableFees: {
			Required: []string{ColID, ColTermID},
			Optional: []string{ColFeeCode, ColUnitPrice, ColConsumption, ColAmount},
		},
		TableConsumptions: {
			Optional: []string{ColID, ColFeeID, ColChannelKey, ColBillableConsumption},
		},
	}
}

// Derived fact columns.
const (
	DerivedPeriod           = "year_month"
	DerivedFeePrefix        = "fee_prefix"
	DerivedTotalConsumption = "total_consumption"
	DerivedTermTotalCost    = "term_total_cost"
	DerivedConsumptionValue = "consumption_value"
	DerivedTimeFrame        = "time_frame"
	DerivedConsumptionJoin  = "consumption_join"
)

// FactSchema records which derived columns a reconciliation run produced.
// Identity columns, amount and the null-defaulted rollups are always present;
// the flags below are best-effort and are false when their inputs were missing.
type FactSchema struct {
	Period           bool `json:"period"`
	FeePrefix        bool `json:"feePrefix"`
	TotalConsumption bool `json:"totalConsumption"`
	TermTotalCost    bool `json:"termTotalCost"`
	ConsumptionValue bool `json:"consumptionValue"`
	TimeFrame        bool `json:"timeFrame"`
	ConsumptionJoin  bool `json:"consumptionJoin"`
}

// FullFactSchema is the schema of a run with every input column available.
func FullFactSchema() FactSchema {
	return FactSchema{
		Period:           true,
		FeePrefix:        true,
		TotalConsumption: true,
		TermTotalCost:    true,
		ConsumptionValue: true,
		TimeFrame:        true,
		ConsumptionJoin:  true,
	}
}

// Skipped lists the derived columns that were not produced.
func (s FactSchema) Skipped() []string {
	var out []string
	add := func(ok bool, name string) {
		if !ok {
			out = append(out, name)
		}
	}
	add(s.Period, DerivedPeriod)
	add(s.FeePrefix, DerivedFeePrefix)
	add(s.TotalConsumption, DerivedTotalConsumption)
	add(s.TermTotalCost, DerivedTermTotalCost)
	add(s.ConsumptionValue, DerivedConsumptionValue)
	add(s.TimeFrame, DerivedTimeFrame)
	add(s.ConsumptionJoin, DerivedConsumptionJoin)
	return out
}
