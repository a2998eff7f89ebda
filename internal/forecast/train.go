package forecast

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/awsl-project/billcast/internal/domain"
	"github.com/awsl-project/billcast/internal/features"
	"github.com/awsl-project/billcast/internal/logging"
	"github.com/awsl-project/billcast/internal/ml"
	"github.com/awsl-project/billcast/internal/pricing"
	"github.com/awsl-project/billcast/internal/stats"
)

// Metrics are the held-out scores of a trained model.
type Metrics struct {
	MAE float64 `json:"mae"`
	R2  float64 `json:"r2"`
}

// Result 训练结果。数据不足时 Model 为 nil，Error 说明原因
type Result struct {
	Model              *Model                    `json:"-"`
	RunID              string                    `json:"runId,omitempty"`
	ModelName          string                    `json:"modelName"`
	TrainingSamples    int                       `json:"trainingSamples"`
	TestSamples        int                       `json:"testSamples"`
	Metrics            Metrics                   `json:"metrics"`
	AvgUnitPrice       float64                   `json:"avgUnitPrice"`
	EffectiveUnitPrice float64                   `json:"effectiveUnitPrice"`
	Distribution       pricing.Distribution      `json:"categoryDistribution"`
	Outliers           []domain.MonthlyAggregate `json:"outliers,omitempty"`
	Error              string                    `json:"error,omitempty"`
}

// dataset is the monthly training frame.
type dataset struct {
	monthly  []domain.MonthlyAggregate
	outliers []domain.MonthlyAggregate
	anchor   features.Anchor
	X        [][]float64
	y        []float64
}

// prepare dedupes, aggregates, drops outlier months and attaches features.
func prepare(table *domain.FactTable, cfg Config, logger log.FieldLogger) *dataset {
	deduped := stats.DedupeByTerm(table.Rows)
	monthly := stats.AggregateMonthly(deduped, stats.CostSourceFor(table.Schema))
	kept, dropped := stats.FilterOutlierMonths(monthly, cfg.OutlierIQRMultiplier)
	if len(dropped) > 0 {
		logger.WithField("months", len(dropped)).Info("dropped outlier months")
	}

	ds := &dataset{monthly: kept, outliers: dropped}
	anchor, ok := earliestTermMonth(deduped)
	if !ok {
		return ds
	}
	ds.anchor = anchor
	ds.X = make([][]float64, len(kept))
	ds.y = make([]float64, len(kept))
	for i, m := range kept {
		ds.X[i] = anchor.DeriveMonth(m.Year, time.Month(m.Month)).Vector()
		ds.y[i] = m.Consumption
	}
	return ds
}

func earliestTermMonth(rows []domain.FactRow) (features.Anchor, bool) {
	var dates []time.Time
	for i := range rows {
		if rows[i].TermDate != nil {
			dates = append(dates, *rows[i].TermDate)
		}
	}
	return features.EarliestAnchor(dates)
}

// Train fits the forecasting model. With too few monthly rows it returns a
// Result describing the shortfall together with an InsufficientDataError.
func Train(table *domain.FactTable, cfg Config) (*Result, error) {
	cfg.fill()
	logger := logging.Stage(cfg.Logger, "train")
	if table == nil {
		table = &domain.FactTable{}
	}

	ds := prepare(table, cfg, logger)
	n := len(ds.X)
	res := &Result{
		ModelName:       ModelName,
		TrainingSamples: n,
		Outliers:        ds.outliers,
	}
	if n < cfg.MinTrainingSamples {
		err := &domain.InsufficientDataError{Samples: n, Required: cfg.MinTrainingSamples}
		res.AvgUnitPrice = cfg.InitialUnitPrice
		res.EffectiveUnitPrice = cfg.InitialUnitPrice
		res.Error = err.Error()
		logger.WithFields(log.Fields{"samples": n, "required": cfg.MinTrainingSamples}).Warn("not enough monthly data to train")
		return res, err
	}

	trainIdx, testIdx, err := ml.TrainTestSplit(n, cfg.TestSplitRatio, cfg.Seed)
	if err != nil {
		return res, fmt.Errorf("forecast: %w", err)
	}
	xTrain, yTrain := ml.Take(ds.X, ds.y, trainIdx)
	xTest, yTest := ml.Take(ds.X, ds.y, testIdx)

	scaler, err := ml.FitScaler(xTrain)
	if err != nil {
		return res, fmt.Errorf("forecast: %w", err)
	}
	forest := ml.NewRandomForest(ml.ForestParams{
		Trees:      cfg.Trees,
		Seed:       cfg.Seed,
		TreeParams: ml.TreeParams{MaxDepth: cfg.MaxDepth},
		Workers:    cfg.Workers,
	})
	if err := forest.Fit(scaler.Transform(xTrain), yTrain); err != nil {
		return res, fmt.Errorf("forecast: fit %s: %w", forest.Name(), err)
	}

	pred := ml.PredictAll(forest, scaler.Transform(xTest))
	metrics := Metrics{MAE: ml.MAE(yTest, pred), R2: ml.R2(yTest, pred)}

	deduped := stats.DedupeByTerm(table.Rows)
	consumption, cost := stats.SumTerms(deduped, stats.CostSourceFor(table.Schema))
	avg := pricing.BlendedUnitPrice(cost, consumption, cfg.FallbackUnitPrice)

	dist := pricing.BuildDistribution(table.Rows, cfg.CategoryMaxUnitPrice)
	unknown := dist.UnknownCodes()
	if len(unknown) > 0 {
		logger.WithField("codes", unknown).Warn("categories outside the category table")
	}

	model := &Model{
		RunID:             uuid.NewString(),
		TrainedAt:         cfg.Now().UTC(),
		Name:              ModelName,
		Forest:            forest,
		Scaler:            scaler,
		Features:          append([]string(nil), features.Names...),
		Anchor:            ds.anchor,
		AvgUnitPrice:      avg,
		Distribution:      dist,
		UnknownCategories: unknown,
		Metrics:           metrics,
		TrainingSamples:   n,
		FactFingerprint:   table.Fingerprint,
		Horizon:           Horizon{Min: cfg.HorizonMin, Max: cfg.HorizonMax},
	}

	res.Model = model
	res.RunID = model.RunID
	res.TestSamples = len(testIdx)
	res.Metrics = metrics
	res.AvgUnitPrice = avg
	res.EffectiveUnitPrice = model.EffectiveUnitPrice()
	res.Distribution = dist

	logger.WithFields(log.Fields{
		"samples":  n,
		"mae":      metrics.MAE,
		"r2":       metrics.R2,
		"avgPrice": avg,
		"anchor":   ds.anchor.String(),
	}).Info("model trained")
	return res, nil
}

// TrainingRun converts a result into its history record.
func (r *Result) TrainingRun(source, fingerprint string, at time.Time) *domain.TrainingRun {
	run := &domain.TrainingRun{
		ID:              r.RunID,
		CreatedAt:       at,
		Source:          source,
		FactFingerprint: fingerprint,
		ModelName:       r.ModelName,
		TrainingSamples: r.TrainingSamples,
		MAE:             r.Metrics.MAE,
		R2:              r.Metrics.R2,
		AvgUnitPrice:    r.AvgUnitPrice,
		Categories:      r.Distribution.Shares,
		Error:           r.Error,
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	return run
}
