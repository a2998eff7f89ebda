package cached

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awsl-project/billcast/internal/domain"
	"github.com/awsl-project/billcast/internal/forecast"
	"github.com/awsl-project/billcast/internal/reconcile"
)

type fakeSource struct {
	mu     sync.Mutex
	loads  int
	months int
	err    error
}

func (f *fakeSource) Describe() string { return "fake" }
func (f *fakeSource) Close() error     { return nil }

func (f *fakeSource) LoadRawTables(ctx context.Context) (*domain.RawTables, error) {
	f.mu.Lock()
	f.loads++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}

	raw := &domain.RawTables{
		Accruals:     domain.NewRawTable("bi_accruals", []string{"id"}),
		Terms:        domain.NewRawTable("bi_accrual_terms", []string{"id", "accrual_id", "term_date"}),
		Fees:         domain.NewRawTable("bi_accrual_fees", []string{"id", "accrual_term_id", "fee_code", "unit_price", "consumption", "amount"}),
		Consumptions: domain.NewRawTable("bi_accrual_fee_consumptions", []string{"id", "accrual_fee_id", "billable_channel_consumption"}),
	}
	raw.Accruals.Append([]string{"1"})
	for i := 0; i < f.months; i++ {
		term := fmt.Sprintf("%d", 10+i)
		raw.Terms.Append([]string{term, "1", fmt.Sprintf("%04d%02d01000000", 2023+i/12, i%12+1)})
		c := 400 + 20*(i%5)
		raw.Fees.Append([]string{fmt.Sprintf("%d", 100+i), term, "4AG_T1", "2.5", fmt.Sprint(c), fmt.Sprint(float64(c) * 2.5)})
	}
	return raw, nil
}

func newSession(src *fakeSource) *Session {
	logger := log.New()
	logger.SetOutput(io.Discard)
	opts := reconcile.DefaultOptions()
	opts.Logger = logger
	cfg := forecast.DefaultConfig()
	cfg.Trees = 5
	cfg.Logger = logger
	return NewSession(src, opts, cfg)
}

func TestSession_CachesUntilRefresh(t *testing.T) {
	src := &fakeSource{months: 12}
	s := newSession(src)
	ctx := context.Background()

	fact, report, err := s.FactTable(ctx)
	require.NoError(t, err)
	assert.Equal(t, 12, fact.Len())
	assert.Equal(t, 12, report.FactRows)

	again, _, err := s.FactTable(ctx)
	require.NoError(t, err)
	assert.Same(t, fact, again)

	m1, err := s.Model(ctx)
	require.NoError(t, err)
	m2, err := s.Model(ctx)
	require.NoError(t, err)
	assert.Same(t, m1, m2)
	assert.Equal(t, 1, src.loads)

	s.Refresh()
	m3, err := s.Model(ctx)
	require.NoError(t, err)
	assert.NotSame(t, m1, m3)
	assert.Equal(t, 2, src.loads)
}

func TestSession_Concurrent(t *testing.T) {
	src := &fakeSource{months: 12}
	s := newSession(src)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Model(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, src.loads)
}

func TestSession_ErrorsAreNotCached(t *testing.T) {
	boom := errors.New("boom")
	src := &fakeSource{months: 12, err: boom}
	s := newSession(src)

	_, _, err := s.FactTable(context.Background())
	assert.ErrorIs(t, err, boom)

	src.err = nil
	_, _, err = s.FactTable(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 2, src.loads)
}

func TestSession_InsufficientData(t *testing.T) {
	s := newSession(&fakeSource{months: 4})
	res, err := s.Train(context.Background())
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
	require.NotNil(t, res)
	assert.Equal(t, 4, res.TrainingSamples)

	_, err = s.Model(context.Background())
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
}
