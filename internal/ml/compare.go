package ml

// Candidate builds a fresh regressor for comparison.
type Candidate struct {
	Name string
	New  func() Regressor
}

// Evaluation is the held-out score of one candidate.
type Evaluation struct {
	Name  string  `json:"name"`
	MAE   float64 `json:"mae"`
	RMSE  float64 `json:"rmse"`
	R2    float64 `json:"r2"`
	MAPE  float64 `json:"mape"`
	Error string  `json:"error,omitempty"`
}

// Compare fits every candidate on the training rows and scores it on the
// test rows. The best candidate is the one with the highest R²; ties keep the
// earlier candidate. A candidate that fails to fit is reported and skipped.
func Compare(candidates []Candidate, xTrain [][]float64, yTrain []float64, xTest [][]float64, yTest []float64) ([]Evaluation, int) {
	evals := make([]Evaluation, len(candidates))
	best := -1
	for i, c := range candidates {
		r := c.New()
		evals[i].Name = c.Name
		if err := r.Fit(xTrain, yTrain); err != nil {
			evals[i].Error = err.Error()
			continue
		}
		pred := PredictAll(r, xTest)
		evals[i].MAE = MAE(yTest, pred)
		evals[i].RMSE = RMSE(yTest, pred)
		evals[i].R2 = R2(yTest, pred)
		evals[i].MAPE = MAPE(yTest, pred)
		if best < 0 || evals[i].R2 > evals[best].R2 {
			best = i
		}
	}
	return evals, best
}
