package forecast

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/awsl-project/billcast/internal/domain"
	"github.com/awsl-project/billcast/internal/logging"
	"github.com/awsl-project/billcast/internal/ml"
)

// Comparison is the held-out evaluation of the candidate models on the same
// split.
type Comparison struct {
	TrainingSamples int             `json:"trainingSamples"`
	TestSamples     int             `json:"testSamples"`
	Models          []ml.Evaluation `json:"models"`
	Best            string          `json:"best"`
}

// Candidates returns the models Compare evaluates.
func Candidates(cfg Config) []ml.Candidate {
	tree := ml.TreeParams{MaxDepth: cfg.MaxDepth}
	return []ml.Candidate{
		{Name: "Linear Regression", New: func() ml.Regressor { return ml.NewLinearRegression() }},
		{Name: ModelName, New: func() ml.Regressor {
			return ml.NewRandomForest(ml.ForestParams{Trees: cfg.Trees, Seed: cfg.Seed, TreeParams: tree, Workers: cfg.Workers})
		}},
		{Name: "Gradient Boosting", New: func() ml.Regressor {
			return ml.NewGradientBoosting(ml.BoostingParams{Stages: 100, LearningRate: 0.1, Subsample: 0.8, Seed: cfg.Seed})
		}},
	}
}

// Compare trains every candidate on the training split Train would use and
// picks the one with the best R².
func Compare(table *domain.FactTable, cfg Config) (*Comparison, error) {
	cfg.fill()
	logger := logging.Stage(cfg.Logger, "compare")
	if table == nil {
		table = &domain.FactTable{}
	}

	ds := prepare(table, cfg, logger)
	n := len(ds.X)
	if n < cfg.MinTrainingSamples {
		return nil, &domain.InsufficientDataError{Samples: n, Required: cfg.MinTrainingSamples}
	}
	trainIdx, testIdx, err := ml.TrainTestSplit(n, cfg.TestSplitRatio, cfg.Seed)
	if err != nil {
		return nil, fmt.Errorf("forecast: %w", err)
	}
	xTrain, yTrain := ml.Take(ds.X, ds.y, trainIdx)
	xTest, yTest := ml.Take(ds.X, ds.y, testIdx)
	scaler, err := ml.FitScaler(xTrain)
	if err != nil {
		return nil, fmt.Errorf("forecast: %w", err)
	}

	evals, best := ml.Compare(Candidates(cfg), scaler.Transform(xTrain), yTrain, scaler.Transform(xTest), yTest)
	cmp := &Comparison{TrainingSamples: n, TestSamples: len(testIdx), Models: evals}
	if best >= 0 {
		cmp.Best = evals[best].Name
	}
	for _, e := range evals {
		logger.WithFields(log.Fields{"model": e.Name, "r2": e.R2, "mae": e.MAE}).Debug("candidate evaluated")
	}
	return cmp, nil
}
