package domain

import "time"

// TrainingRun 一次训练的记录
type TrainingRun struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`

	// 数据来源描述（DSN 去掉密码或 CSV 目录）
	Source          string `json:"source"`
	FactFingerprint string `json:"factFingerprint"`

	ModelName       string  `json:"modelName"`
	TrainingSamples int     `json:"trainingSamples"`
	MAE             float64 `json:"mae"`
	R2              float64 `json:"r2"`
	AvgUnitPrice    float64 `json:"avgUnitPrice"`

	// 分类分布快照
	Categories []CategoryShare `json:"categories"`

	// 数据不足时的错误信息
	Error string `json:"error,omitempty"`
}

// CategoryShare is one entry of a category distribution.
type CategoryShare struct {
	Code        string  `json:"code"`
	Name        string  `json:"name"`
	Known       bool    `json:"known"`
	Consumption float64 `json:"consumption"`
	Cost        float64 `json:"cost"`
	UnitPrice   float64 `json:"unitPrice"`
	Ratio       float64 `json:"ratio"`
}
