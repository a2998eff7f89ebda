package gormdb

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awsl-project/billcast/internal/domain"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "billing.db")
	d, err := Open(context.Background(), "sqlite://"+path, Options{Schema: "public"})
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	require.NoError(t, d.Migrate())
	return d
}

func sampleRawTables() *domain.RawTables {
	acc := domain.NewRawTable("bi_accruals", []string{"id", "accrual_date"})
	acc.Append([]string{"1", "20240105000000"})

	terms := domain.NewRawTable("bi_accrual_terms", []string{"id", "accrual_id", "term_date"})
	terms.Append([]string{"10", "1", "20240101000000"})

	fees := domain.NewRawTable("bi_accrual_fees", []string{"id", "accrual_term_id", "fee_code", "unit_price", "consumption", "amount"})
	fees.Append([]string{"100", "10", "4AG_T1", "2.5", "40", "100"})
	fees.Append([]string{"101", "10", "", "", "", ""})

	cons := domain.NewRawTable("bi_accrual_fee_consumptions", []string{"id", "accrual_fee_id", "channel_key", "billable_channel_consumption"})
	cons.Append([]string{"1000", "100", "T1", "40"})

	return &domain.RawTables{Accruals: acc, Terms: terms, Fees: fees, Consumptions: cons}
}

func TestOpen_UnsupportedDSN(t *testing.T) {
	_, err := Open(context.Background(), "redis://localhost", Options{})
	assert.Error(t, err)
}

func TestLoadRawTables_MissingTables(t *testing.T) {
	d := openTestDB(t)

	_, err := d.LoadRawTables(context.Background())
	var loadErr *domain.LoadError
	require.True(t, errors.As(err, &loadErr))

	var missing *domain.MissingTablesError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"bi_accruals", "bi_accrual_terms", "bi_accrual_fees", "bi_accrual_fee_consumptions"}, missing.Tables)
}

func TestImportThenLoad(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	raw := sampleRawTables()

	require.NoError(t, d.EnsureRawTables(ctx, raw))
	require.NoError(t, d.ImportRawTables(ctx, raw))
	assert.Empty(t, d.MissingTables())

	loaded, err := d.LoadRawTables(ctx)
	require.NoError(t, err)

	assert.Equal(t, raw.Fees.Columns, loaded.Fees.Columns)
	require.Equal(t, 2, loaded.Fees.Len())
	assert.Equal(t, "4AG_T1", loaded.Fees.Value(0, "fee_code"))
	// empty cells round-trip as NULL and come back empty
	assert.Equal(t, "", loaded.Fees.Value(1, "unit_price"))
	assert.Equal(t, "20240101000000", loaded.Terms.Value(0, "term_date"))
	assert.Equal(t, 1, loaded.Consumptions.Len())
}

func TestCellString(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{[]byte("abc"), "abc"},
		{int64(20240101000000), "20240101000000"},
		{float64(2.5), "2.5"},
		{time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC), "20240301123000"},
		{true, "true"},
	}
	for _, tt := range tests {
		if got := cellString(tt.in); got != tt.want {
			t.Errorf("cellString(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTrainingRunRepository(t *testing.T) {
	d := openTestDB(t)
	repo := NewTrainingRunRepository(d)

	older := &domain.TrainingRun{
		ID:        "run-1",
		CreatedAt: time.UnixMilli(1_700_000_000_000),
		ModelName: "Random Forest",
		R2:        0.8,
		Categories: []domain.CategoryShare{
			{Code: "4AG", Consumption: 100, Cost: 200, UnitPrice: 2, Ratio: 1, Known: true},
		},
	}
	newer := &domain.TrainingRun{
		ID:        "run-2",
		CreatedAt: time.UnixMilli(1_700_000_100_000),
		Error:     "insufficient training data",
	}
	require.NoError(t, repo.Create(older))
	require.NoError(t, repo.Create(newer))

	runs, err := repo.List(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)

	got, err := repo.GetByID("run-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, older.Categories, got.Categories)
	assert.True(t, got.CreatedAt.Equal(older.CreatedAt))

	none, err := repo.GetByID("nope")
	require.NoError(t, err)
	assert.Nil(t, none)
}
