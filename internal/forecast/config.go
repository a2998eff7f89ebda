// Package forecast trains the monthly consumption model on a fact table and
// turns its predictions into costs with the historical tariff mix.
package forecast

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/awsl-project/billcast/internal/config"
)

// ModelName is the name of the production model.
const ModelName = "Random Forest"

type Config struct {
	MinTrainingSamples   int
	TestSplitRatio       float64
	Seed                 int64
	OutlierIQRMultiplier float64
	Trees                int
	MaxDepth             int
	// Fees above this unit price stay out of the category distribution.
	CategoryMaxUnitPrice float64
	FallbackUnitPrice    float64
	// InitialUnitPrice is reported when no model could be trained.
	InitialUnitPrice float64
	HorizonMin       int
	HorizonMax       int
	// Workers caps concurrent tree fits; 0 means GOMAXPROCS.
	Workers int

	Logger log.FieldLogger
	Now    func() time.Time
}

func DefaultConfig() Config {
	return FromSettings(config.Default().Forecast)
}

// FromSettings converts the forecast section of the configuration file.
func FromSettings(s config.Forecast) Config {
	return Config{
		MinTrainingSamples:   s.MinTrainingSamples,
		TestSplitRatio:       s.TestSplitRatio,
		Seed:                 s.RandomSeed,
		OutlierIQRMultiplier: s.OutlierIQRMultiplier,
		Trees:                s.Trees,
		MaxDepth:             s.MaxDepth,
		CategoryMaxUnitPrice: s.CategoryMaxUnitPrice,
		FallbackUnitPrice:    s.FallbackUnitPrice,
		InitialUnitPrice:     s.InitialUnitPrice,
		HorizonMin:           s.Horizon.Min,
		HorizonMax:           s.Horizon.Max,
	}
}

func (c *Config) fill() {
	if c.MinTrainingSamples < 2 {
		c.MinTrainingSamples = 2
	}
	if c.TestSplitRatio <= 0 || c.TestSplitRatio >= 1 {
		c.TestSplitRatio = 0.1
	}
	if c.OutlierIQRMultiplier <= 0 {
		c.OutlierIQRMultiplier = 5
	}
	if c.CategoryMaxUnitPrice <= 0 {
		c.CategoryMaxUnitPrice = 10
	}
	if c.HorizonMin <= 0 {
		c.HorizonMin = 1
	}
	if c.HorizonMax < c.HorizonMin {
		c.HorizonMax = 12
	}
	if c.Logger == nil {
		c.Logger = log.StandardLogger()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Key identifies the settings that change a trained model.
func (c Config) Key() string {
	return fmt.Sprintf("min=%d split=%g seed=%d iqr=%g trees=%d depth=%d cat=%g fb=%g init=%g h=%d-%d",
		c.MinTrainingSamples, c.TestSplitRatio, c.Seed, c.OutlierIQRMultiplier, c.Trees, c.MaxDepth,
		c.CategoryMaxUnitPrice, c.FallbackUnitPrice, c.InitialUnitPrice, c.HorizonMin, c.HorizonMax)
}
