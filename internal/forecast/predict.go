package forecast

import (
	"fmt"
	"time"

	"github.com/awsl-project/billcast/internal/domain"
	"github.com/awsl-project/billcast/internal/features"
	"github.com/awsl-project/billcast/internal/ml"
	"github.com/awsl-project/billcast/internal/pricing"
	"github.com/awsl-project/billcast/internal/stats"
)

// Horizon is the accepted forecast length in months.
type Horizon struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Model is a trained forecaster. It is built by Train or decoded from a
// snapshot and never modified afterwards.
type Model struct {
	RunID             string               `json:"runId"`
	TrainedAt         time.Time            `json:"trainedAt"`
	Name              string               `json:"name"`
	Forest            *ml.RandomForest     `json:"forest"`
	Scaler            *ml.StandardScaler   `json:"scaler"`
	Features          []string             `json:"features"`
	Anchor            features.Anchor      `json:"anchor"`
	AvgUnitPrice      float64              `json:"avgUnitPrice"`
	Distribution      pricing.Distribution `json:"distribution"`
	UnknownCategories []string             `json:"unknownCategories,omitempty"`
	Metrics           Metrics              `json:"metrics"`
	TrainingSamples   int                  `json:"trainingSamples"`
	FactFingerprint   string               `json:"factFingerprint"`
	Horizon           Horizon              `json:"horizon"`
}

// Prediction is one forecast month.
type Prediction struct {
	Date        string  `json:"date"`
	Consumption float64 `json:"predicted_consumption_kWh"`
	Cost        float64 `json:"predicted_cost"`
}

// MonthForecast is the next-month forecast with calendar labels.
type MonthForecast struct {
	Prediction
	MonthName string `json:"month_name"`
	Season    string `json:"season"`
}

// Validate checks a decoded model is usable.
func (m *Model) Validate() error {
	if m == nil || m.Forest == nil || m.Scaler == nil || len(m.Forest.Trees) == 0 {
		return domain.ErrNotTrained
	}
	if len(m.Scaler.Mean) != len(features.Names) || len(m.Scaler.Scale) != len(features.Names) {
		return fmt.Errorf("forecast: scaler has %d columns, want %d", len(m.Scaler.Mean), len(features.Names))
	}
	if m.Anchor.IsZero() {
		return fmt.Errorf("forecast: model has no anchor month")
	}
	if m.Horizon.Min < 1 || m.Horizon.Max < m.Horizon.Min {
		return fmt.Errorf("forecast: invalid horizon [%d, %d]", m.Horizon.Min, m.Horizon.Max)
	}
	return nil
}

func (m *Model) calculator() *pricing.Calculator {
	return pricing.NewCalculator(m.Distribution, m.AvgUnitPrice)
}

// EffectiveUnitPrice is the price per kWh applied to forecast consumption.
func (m *Model) EffectiveUnitPrice() float64 {
	return m.calculator().EffectiveUnitPrice()
}

// predictMonth returns the consumption forecast of one month. Features are
// scaled with the scaler fitted at training time.
func (m *Model) predictMonth(year int, month time.Month) float64 {
	x := m.Anchor.DeriveMonth(year, month).Vector()
	return m.Forest.Predict(m.Scaler.TransformRow(x))
}

func (m *Model) predictAt(t time.Time, calc *pricing.Calculator) Prediction {
	c := m.predictMonth(t.Year(), t.Month())
	return Prediction{
		Date:        t.Format("2006-01"),
		Consumption: c,
		Cost:        calc.Cost(c),
	}
}

// Predict forecasts the months after now's month, starting on the first of
// the next month.
func (m *Model) Predict(now time.Time, months int) ([]Prediction, error) {
	if m == nil || m.Forest == nil || m.Scaler == nil {
		return nil, domain.ErrNotTrained
	}
	if months < m.Horizon.Min || months > m.Horizon.Max {
		return nil, &domain.HorizonError{Months: months, Min: m.Horizon.Min, Max: m.Horizon.Max}
	}
	calc := m.calculator()
	out := make([]Prediction, months)
	for i := range out {
		out[i] = m.predictAt(features.MonthStart(now, i+1), calc)
	}
	return out, nil
}

// NextMonth forecasts the month after now's month.
func (m *Model) NextMonth(now time.Time) (*MonthForecast, error) {
	if m == nil || m.Forest == nil || m.Scaler == nil {
		return nil, domain.ErrNotTrained
	}
	t := features.MonthStart(now, 1)
	return &MonthForecast{
		Prediction: m.predictAt(t, m.calculator()),
		MonthName:  t.Month().String(),
		Season:     features.SeasonName(features.Season(t.Month())),
	}, nil
}

// Yearly forecasts January to December of year.
func (m *Model) Yearly(year int) ([]Prediction, error) {
	if m == nil || m.Forest == nil || m.Scaler == nil {
		return nil, domain.ErrNotTrained
	}
	calc := m.calculator()
	out := make([]Prediction, 12)
	for i := range out {
		out[i] = m.predictAt(time.Date(year, time.Month(i+1), 1, 0, 0, 0, 0, time.UTC), calc)
	}
	return out, nil
}

// BacktestRow compares one historical month with its prediction. Errors are
// actual minus predicted.
type BacktestRow struct {
	Date                 string  `json:"date"`
	ActualConsumption    float64 `json:"actual_consumption"`
	PredictedConsumption float64 `json:"predicted_consumption"`
	ConsumptionError     float64 `json:"consumption_error"`
	ActualCost           float64 `json:"actual_cost"`
	PredictedCost        float64 `json:"predicted_cost"`
	CostError            float64 `json:"cost_error"`
}

type Backtest struct {
	Rows           []BacktestRow `json:"rows"`
	ConsumptionMAE float64       `json:"consumption_mae"`
	CostMAE        float64       `json:"cost_mae"`
}

// Backtest replays the model over the monthly history of table.
func (m *Model) Backtest(table *domain.FactTable) (*Backtest, error) {
	if m == nil || m.Forest == nil || m.Scaler == nil {
		return nil, domain.ErrNotTrained
	}
	bt := &Backtest{}
	if table == nil {
		return bt, nil
	}
	monthly := stats.AggregateMonthly(stats.DedupeByTerm(table.Rows), stats.CostSourceFor(table.Schema))
	calc := m.calculator()

	var actualC, predC, actualCost, predCost []float64
	for _, a := range monthly {
		c := m.predictMonth(a.Year, time.Month(a.Month))
		cost := calc.Cost(c)
		bt.Rows = append(bt.Rows, BacktestRow{
			Date:                 fmt.Sprintf("%04d-%02d", a.Year, a.Month),
			ActualConsumption:    a.Consumption,
			PredictedConsumption: c,
			ConsumptionError:     a.Consumption - c,
			ActualCost:           a.Cost,
			PredictedCost:        cost,
			CostError:            a.Cost - cost,
		})
		actualC = append(actualC, a.Consumption)
		predC = append(predC, c)
		actualCost = append(actualCost, a.Cost)
		predCost = append(predCost, cost)
	}
	bt.ConsumptionMAE = ml.MAE(actualC, predC)
	bt.CostMAE = ml.MAE(actualCost, predCost)
	return bt, nil
}
