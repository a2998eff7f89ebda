package cached

import (
	"context"
	"sync"

	"github.com/awsl-project/billcast/internal/domain"
	"github.com/awsl-project/billcast/internal/forecast"
	"github.com/awsl-project/billcast/internal/reconcile"
	"github.com/awsl-project/billcast/internal/repository"
)

// Session 缓存对账结果和训练好的模型
// fact table 以数据源描述为 key，模型以 fingerprint + 预测配置为 key；
// 只有 Refresh 会清空缓存
type Session struct {
	source repository.RawSource
	opts   reconcile.Options
	cfg    forecast.Config

	mu       sync.RWMutex
	factKey  string
	fact     *domain.FactTable
	report   *reconcile.Report
	modelKey string
	result   *forecast.Result
}

func NewSession(source repository.RawSource, opts reconcile.Options, cfg forecast.Config) *Session {
	return &Session{
		source: source,
		opts:   opts,
		cfg:    cfg,
	}
}

// FactTable loads and reconciles the source on first use.
func (s *Session) FactTable(ctx context.Context) (*domain.FactTable, *reconcile.Report, error) {
	key := s.source.Describe()

	s.mu.RLock()
	if s.fact != nil && s.factKey == key {
		fact, report := s.fact, s.report
		s.mu.RUnlock()
		return fact, report, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	// double check
	if s.fact != nil && s.factKey == key {
		return s.fact, s.report, nil
	}

	raw, err := s.source.LoadRawTables(ctx)
	if err != nil {
		return nil, nil, err
	}
	fact, report, err := reconcile.Run(raw, s.opts)
	if err != nil {
		return nil, nil, err
	}
	s.factKey, s.fact, s.report = key, fact, report
	return fact, report, nil
}

// Train returns the training result for the current fact table. Failed runs
// are not cached.
func (s *Session) Train(ctx context.Context) (*forecast.Result, error) {
	fact, _, err := s.FactTable(ctx)
	if err != nil {
		return nil, err
	}
	key := fact.Fingerprint + "|" + s.cfg.Key()

	s.mu.RLock()
	if s.result != nil && s.modelKey == key {
		res := s.result
		s.mu.RUnlock()
		return res, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result != nil && s.modelKey == key {
		return s.result, nil
	}
	res, err := forecast.Train(fact, s.cfg)
	if err != nil {
		return res, err
	}
	s.modelKey, s.result = key, res
	return res, nil
}

// Model returns the trained model, training it on first use.
func (s *Session) Model(ctx context.Context) (*forecast.Model, error) {
	res, err := s.Train(ctx)
	if err != nil {
		return nil, err
	}
	return res.Model, nil
}

// Refresh drops the cached fact table and model.
func (s *Session) Refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.factKey, s.fact, s.report = "", nil, nil
	s.modelKey, s.result = "", nil
}
