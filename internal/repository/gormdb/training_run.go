package gormdb

import (
	"errors"

	"github.com/awsl-project/billcast/internal/domain"
	"gorm.io/gorm"
)

type TrainingRunRepository struct {
	db *DB
}

func NewTrainingRunRepository(d *DB) *TrainingRunRepository {
	return &TrainingRunRepository{db: d}
}

func (r *TrainingRunRepository) Create(run *domain.TrainingRun) error {
	model := r.toModel(run)
	return r.db.gorm.Create(model).Error
}

func (r *TrainingRunRepository) GetByID(id string) (*domain.TrainingRun, error) {
	var model TrainingRun
	if err := r.db.gorm.Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.toDomain(&model), nil
}

func (r *TrainingRunRepository) List(limit int) ([]*domain.TrainingRun, error) {
	q := r.db.gorm.Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var models []TrainingRun
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	runs := make([]*domain.TrainingRun, len(models))
	for i := range models {
		runs[i] = r.toDomain(&models[i])
	}
	return runs, nil
}

func (r *TrainingRunRepository) toModel(run *domain.TrainingRun) *TrainingRun {
	return &TrainingRun{
		ID:              run.ID,
		CreatedAt:       toTimestamp(run.CreatedAt),
		Source:          run.Source,
		FactFingerprint: run.FactFingerprint,
		ModelName:       run.ModelName,
		TrainingSamples: run.TrainingSamples,
		MAE:             run.MAE,
		R2:              run.R2,
		AvgUnitPrice:    run.AvgUnitPrice,
		Categories:      toJSON(run.Categories),
		Error:           run.Error,
	}
}

func (r *TrainingRunRepository) toDomain(m *TrainingRun) *domain.TrainingRun {
	return &domain.TrainingRun{
		ID:              m.ID,
		CreatedAt:       fromTimestamp(m.CreatedAt),
		Source:          m.Source,
		FactFingerprint: m.FactFingerprint,
		ModelName:       m.ModelName,
		TrainingSamples: m.TrainingSamples,
		MAE:             m.MAE,
		R2:              m.R2,
		AvgUnitPrice:    m.AvgUnitPrice,
		Categories:      fromJSON[[]domain.CategoryShare](m.Categories),
		Error:           m.Error,
	}
}
