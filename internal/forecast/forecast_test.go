package forecast

import (
	"errors"
	"fmt"
	"io"
	"math"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awsl-project/billcast/internal/domain"
	"github.com/awsl-project/billcast/internal/reconcile"
)

func almostEqual(a, b, epsilon float64) bool {
	return math.Abs(a-b) < epsilon
}

func quietLogger() log.FieldLogger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Trees = 20
	cfg.Logger = quietLogger()
	cfg.Now = func() time.Time { return time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC) }
	return cfg
}

// monthlyTable builds one term with one 4AG fee per month from January 2023.
func monthlyTable(months int) *domain.FactTable {
	cat := domain.DefaultCategoryTable().Resolve("4AG")
	prefix := "4AG"
	code := "4AG_T1"
	price := 2.0

	t := &domain.FactTable{Schema: domain.FullFactSchema(), Fingerprint: fmt.Sprintf("fp-%d", months)}
	for i := 0; i < months; i++ {
		date := time.Date(2023, time.Month(1+i), 1, 0, 0, 0, 0, time.UTC)
		year, month := date.Year(), int(date.Month())
		consumption := 1000 + 25*float64(i%6)
		t.Rows = append(t.Rows, domain.FactRow{
			AccrualID:        "1",
			TermID:           fmt.Sprintf("t%d", i),
			TermDate:         &date,
			Year:             &year,
			Month:            &month,
			FeeID:            fmt.Sprintf("f%d", i),
			FeeCode:          &code,
			FeePrefix:        &prefix,
			Category:         &cat,
			UnitPrice:        &price,
			Consumption:      &consumption,
			Amount:           consumption * price,
			ConsumptionValue: consumption,
			TimeFrame:        domain.UnknownTimeFrame,
			TotalConsumption: consumption,
			TermTotalCost:    consumption * price,
		})
	}
	return t
}

func TestTrain_SampleBoundary(t *testing.T) {
	cfg := testConfig()

	res, err := Train(monthlyTable(9), cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInsufficientData))
	var ide *domain.InsufficientDataError
	require.ErrorAs(t, err, &ide)
	assert.Equal(t, 9, ide.Samples)
	assert.Equal(t, 10, ide.Required)

	require.NotNil(t, res)
	assert.Nil(t, res.Model)
	assert.Equal(t, 9, res.TrainingSamples)
	assert.Equal(t, 6.34, res.AvgUnitPrice)
	assert.Equal(t, 6.34, res.EffectiveUnitPrice)
	assert.Equal(t, Metrics{}, res.Metrics)
	assert.NotEmpty(t, res.Error)

	res, err = Train(monthlyTable(10), cfg)
	require.NoError(t, err)
	require.NotNil(t, res.Model)
	assert.Equal(t, 10, res.TrainingSamples)
	assert.Equal(t, 1, res.TestSamples)
	assert.Equal(t, "Random Forest", res.ModelName)
	assert.NotEmpty(t, res.RunID)
	assert.True(t, almostEqual(res.AvgUnitPrice, 2.0, 1e-12))
	assert.True(t, almostEqual(res.EffectiveUnitPrice, 2.0, 1e-12))
	// single test row has no defined R²
	assert.Equal(t, 0.0, res.Metrics.R2)
}

func TestTrain_ModelContents(t *testing.T) {
	cfg := testConfig()
	res, err := Train(monthlyTable(14), cfg)
	require.NoError(t, err)
	m := res.Model

	require.NoError(t, m.Validate())
	assert.Equal(t, Horizon{Min: 1, Max: 12}, m.Horizon)
	assert.Equal(t, 2023, m.Anchor.Year)
	assert.Equal(t, time.January, m.Anchor.Month)
	assert.Equal(t, []string{"year", "month", "months_from_start", "season", "quarter", "is_summer", "is_winter"}, m.Features)
	assert.Len(t, m.Forest.Trees, 20)
	assert.Equal(t, cfg.Now().UTC(), m.TrainedAt)
	assert.Equal(t, "fp-14", m.FactFingerprint)
	require.Len(t, m.Distribution.Shares, 1)
	assert.Equal(t, "4AG", m.Distribution.Shares[0].Code)
	assert.Empty(t, m.UnknownCategories)

	run := res.TrainingRun("csv:data", m.FactFingerprint, cfg.Now())
	assert.Equal(t, m.RunID, run.ID)
	assert.Equal(t, 14, run.TrainingSamples)
	assert.Len(t, run.Categories, 1)
}

func TestTrain_Deterministic(t *testing.T) {
	cfg := testConfig()
	now := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)

	a, err := Train(monthlyTable(18), cfg)
	require.NoError(t, err)
	cfg.Workers = 1
	b, err := Train(monthlyTable(18), cfg)
	require.NoError(t, err)

	pa, err := a.Model.Predict(now, 6)
	require.NoError(t, err)
	pb, err := b.Model.Predict(now, 6)
	require.NoError(t, err)
	assert.Equal(t, pa, pb)
	assert.Equal(t, a.Metrics, b.Metrics)
}

func TestPredict_Horizon(t *testing.T) {
	res, err := Train(monthlyTable(12), testConfig())
	require.NoError(t, err)
	m := res.Model

	for _, months := range []int{0, 13, -1} {
		_, err := m.Predict(time.Now(), months)
		assert.True(t, errors.Is(err, domain.ErrHorizonOutOfRange), "months=%d", months)
	}

	now := time.Date(2024, time.January, 31, 18, 0, 0, 0, time.UTC)
	preds, err := m.Predict(now, 6)
	require.NoError(t, err)
	require.Len(t, preds, 6)
	want := []string{"2024-02", "2024-03", "2024-04", "2024-05", "2024-06", "2024-07"}
	for i, p := range preds {
		assert.Equal(t, want[i], p.Date)
		assert.True(t, almostEqual(p.Cost, p.Consumption*2.0, 1e-6))
	}

	preds, err = m.Predict(time.Date(2024, time.December, 15, 0, 0, 0, 0, time.UTC), 1)
	require.NoError(t, err)
	assert.Equal(t, "2025-01", preds[0].Date)
}

func TestPredict_NotTrained(t *testing.T) {
	var m *Model
	_, err := m.Predict(time.Now(), 6)
	assert.ErrorIs(t, err, domain.ErrNotTrained)
	_, err = m.NextMonth(time.Now())
	assert.ErrorIs(t, err, domain.ErrNotTrained)
	_, err = m.Yearly(2024)
	assert.ErrorIs(t, err, domain.ErrNotTrained)
	_, err = m.Backtest(nil)
	assert.ErrorIs(t, err, domain.ErrNotTrained)
	assert.ErrorIs(t, (&Model{}).Validate(), domain.ErrNotTrained)
}

func TestValidate_Horizon(t *testing.T) {
	res, err := Train(monthlyTable(12), testConfig())
	require.NoError(t, err)

	for _, h := range []Horizon{{}, {Min: 0, Max: 12}, {Min: 6, Max: 3}} {
		m := *res.Model
		m.Horizon = h
		assert.ErrorContains(t, m.Validate(), "invalid horizon", "%+v", h)
	}
}

func TestNextMonthAndYearly(t *testing.T) {
	res, err := Train(monthlyTable(12), testConfig())
	require.NoError(t, err)
	m := res.Model

	next, err := m.NextMonth(time.Date(2024, time.May, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "2024-06", next.Date)
	assert.Equal(t, "June", next.MonthName)
	assert.Equal(t, "Summer", next.Season)

	next, err = m.NextMonth(time.Date(2024, time.February, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "Spring", next.Season)

	year, err := m.Yearly(2025)
	require.NoError(t, err)
	require.Len(t, year, 12)
	assert.Equal(t, "2025-01", year[0].Date)
	assert.Equal(t, "2025-12", year[11].Date)
}

func TestBacktest(t *testing.T) {
	table := monthlyTable(12)
	res, err := Train(table, testConfig())
	require.NoError(t, err)

	bt, err := res.Model.Backtest(table)
	require.NoError(t, err)
	require.Len(t, bt.Rows, 12)
	assert.Equal(t, "2023-01", bt.Rows[0].Date)
	for _, r := range bt.Rows {
		assert.True(t, almostEqual(r.ConsumptionError, r.ActualConsumption-r.PredictedConsumption, 1e-9))
		assert.True(t, almostEqual(r.CostError, r.ActualCost-r.PredictedCost, 1e-9))
	}
	// a forest replaying its own training months stays close
	assert.Less(t, bt.ConsumptionMAE, 100.0)
}

func TestCompare(t *testing.T) {
	cmp, err := Compare(monthlyTable(24), testConfig())
	require.NoError(t, err)
	require.Len(t, cmp.Models, 3)
	assert.Equal(t, "Linear Regression", cmp.Models[0].Name)
	assert.Equal(t, "Random Forest", cmp.Models[1].Name)
	assert.Equal(t, "Gradient Boosting", cmp.Models[2].Name)
	assert.NotEmpty(t, cmp.Best)
	assert.Equal(t, 3, cmp.TestSamples)

	_, err = Compare(monthlyTable(4), testConfig())
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
}

// Fee f0 is repeated by three consumption sub-lines; the tariff mix still
// weighs it once against the 4OG fee of the same term.
func TestTrain_FeeSubLinesWeighOnce(t *testing.T) {
	table := monthlyTable(12)
	first := table.Rows[0]
	table.Rows = append(table.Rows, first, first)

	prefix, code, price, consumption := "4OG", "4OG_T1", 6.0, 1000.0
	cat := domain.DefaultCategoryTable().Resolve(prefix)
	og := first
	og.FeeID = "og"
	og.FeeCode = &code
	og.FeePrefix = &prefix
	og.Category = &cat
	og.UnitPrice = &price
	og.Consumption = &consumption
	og.Amount = consumption * price
	table.Rows = append(table.Rows, og)

	res, err := Train(table, testConfig())
	require.NoError(t, err)

	total := res.Distribution.TotalConsumption
	assert.True(t, almostEqual(total, 12*1000+25*(0+1+2+3+4+5)*2+1000, 1e-9), "total %v", total)
	for _, s := range res.Distribution.Shares {
		if s.Code == "4OG" {
			assert.True(t, almostEqual(s.Ratio, 1000/total, 1e-12))
		}
	}
	want := (res.Distribution.Shares[0].Cost + res.Distribution.Shares[1].Cost) / total
	assert.True(t, almostEqual(res.Model.EffectiveUnitPrice(), want, 1e-12))
}

func TestTrain_OutlierMonthDropped(t *testing.T) {
	table := monthlyTable(12)
	table.Rows[5].TotalConsumption = 1e9
	table.Rows[5].TermTotalCost = 2e9

	cfg := testConfig()
	cfg.MinTrainingSamples = 5
	res, err := Train(table, cfg)
	require.NoError(t, err)
	assert.Equal(t, 11, res.TrainingSamples)
	require.Len(t, res.Outliers, 1)
	assert.Equal(t, 6, res.Outliers[0].Month)
}

// Three terms, a single 4AG category at 2.0: every forecast cost is twice
// its consumption.
func TestEndToEnd_SingleCategory(t *testing.T) {
	mk := func(name string, cols []string, rows ...[]string) *domain.RawTable {
		tb := domain.NewRawTable(name, cols)
		for _, r := range rows {
			tb.Append(r)
		}
		return tb
	}
	raw := &domain.RawTables{
		Accruals: mk("bi_accruals", []string{"id", "accrual_date"},
			[]string{"1", "20240401000000"},
		),
		Terms: mk("bi_accrual_terms", []string{"id", "accrual_id", "term_date"},
			[]string{"10", "1", "20240101000000"},
			[]string{"11", "1", "20240201000000"},
			[]string{"12", "1", "20240301000000"},
		),
		Fees: mk("bi_accrual_fees", []string{"id", "accrual_term_id", "fee_code", "unit_price", "consumption", "amount"},
			[]string{"100", "10", "4AG_T1", "2.0", "100", "200"},
			[]string{"101", "11", "4AG_T1", "2.0", "150", "300"},
			[]string{"102", "12", "4AG_T1", "2.0", "120", "240"},
		),
		Consumptions: mk("bi_accrual_fee_consumptions", []string{"id", "accrual_fee_id", "channel_key", "billable_channel_consumption"}),
	}
	opts := reconcile.DefaultOptions()
	opts.Logger = quietLogger()
	table, _, err := reconcile.Run(raw, opts)
	require.NoError(t, err)
	require.Len(t, table.Rows, 3)

	cfg := testConfig()
	cfg.MinTrainingSamples = 3
	res, err := Train(table, cfg)
	require.NoError(t, err)
	assert.True(t, almostEqual(res.AvgUnitPrice, 2.0, 1e-12))

	preds, err := res.Model.Predict(time.Date(2024, time.March, 20, 0, 0, 0, 0, time.UTC), 6)
	require.NoError(t, err)
	require.Len(t, preds, 6)
	for _, p := range preds {
		assert.True(t, almostEqual(p.Cost, p.Consumption*2.0, 1e-9), "%s: %v vs %v", p.Date, p.Cost, p.Consumption)
		assert.Greater(t, p.Consumption, 0.0)
	}
}
