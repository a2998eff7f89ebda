package gormdb

// TrainingRun 训练记录表
type TrainingRun struct {
	ID              string `gorm:"primaryKey;size:36"`
	CreatedAt       int64  `gorm:"index"`
	Source          string `gorm:"size:512"`
	FactFingerprint string `gorm:"size:64;index"`
	ModelName       string `gorm:"size:64"`
	TrainingSamples int
	MAE             float64
	R2              float64
	AvgUnitPrice    float64
	Categories      LongText
	Error           string `gorm:"size:512"`
}

func (TrainingRun) TableName() string { return "forecast_training_runs" }

// AllModels returns the models migrated by Migrate.
func AllModels() []any {
	return []any{
		&TrainingRun{},
	}
}
