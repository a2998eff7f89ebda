package gormdb

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/awsl-project/billcast/internal/config"
	"github.com/awsl-project/billcast/internal/domain"
)

const importBatchSize = 500

// Describe identifies the database without credentials.
func (d *DB) Describe() string {
	return d.dialector + ":" + config.RedactedDSN(d.dsn)
}

// MissingTables returns the raw tables the database does not have.
func (d *DB) MissingTables() []string {
	var missing []string
	for _, kind := range domain.AllTables() {
		name := d.tableName(kind)
		if !d.gorm.Migrator().HasTable(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// LoadRawTables reads the four raw tables in full. The tables are read
// concurrently; any failure aborts the whole load.
func (d *DB) LoadRawTables(ctx context.Context) (*domain.RawTables, error) {
	if missing := d.MissingTables(); len(missing) > 0 {
		return nil, &domain.LoadError{Source: d.Describe(), Err: &domain.MissingTablesError{Tables: missing}}
	}

	var (
		out domain.RawTables
		mu  sync.Mutex
		g   errgroup.Group
	)
	for _, kind := range domain.AllTables() {
		g.Go(func() error {
			t, err := d.readTable(ctx, d.tableName(kind))
			if err != nil {
				return &domain.LoadError{Source: d.Describe(), Table: d.tableName(kind), Err: err}
			}
			mu.Lock()
			out.Set(kind, t)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"accruals":     out.Accruals.Len(),
		"terms":        out.Terms.Len(),
		"fees":         out.Fees.Len(),
		"consumptions": out.Consumptions.Len(),
	}).Info("gormdb: raw tables loaded")
	return &out, nil
}

// readTable runs SELECT * so columns added upstream flow through as extras.
func (d *DB) readTable(ctx context.Context, name string) (*domain.RawTable, error) {
	q := d.gorm.WithContext(ctx).Table(name)
	if d.gorm.Migrator().HasColumn(name, domain.ColID) {
		q = q.Order(d.quote(domain.ColID))
	}
	rows, err := q.Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRawTable(name, rows)
}

func scanRawTable(name string, rows *sql.Rows) (*domain.RawTable, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	t := domain.NewRawTable(name, cols)

	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		record := make([]string, len(cols))
		for i, v := range vals {
			record[i] = cellString(v)
		}
		t.Append(record)
	}
	return t, rows.Err()
}

// cellString renders a driver value the way a flat-file export would.
func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format("20060102150405")
	default:
		return fmt.Sprint(x)
	}
}

// EnsureRawTables creates missing raw tables with a TEXT column per header
// column. Existing tables are left untouched.
func (d *DB) EnsureRawTables(ctx context.Context, tables *domain.RawTables) error {
	for _, kind := range domain.AllTables() {
		t := tables.Get(kind)
		if t == nil {
			continue
		}
		name := d.tableName(kind)
		if d.gorm.Migrator().HasTable(name) {
			continue
		}
		cols := lo.Map(t.Columns, func(c string, _ int) string {
			return d.quote(c) + " TEXT"
		})
		stmt := fmt.Sprintf("CREATE TABLE %s (%s)", d.quote(name), strings.Join(cols, ", "))
		if err := d.gorm.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("gormdb: create %s: %w", name, err)
		}
		log.WithField("table", name).Info("gormdb: raw table created")
	}
	return nil
}

// ImportRawTables appends the rows of every given table in one transaction.
// Empty cells are stored as NULL.
func (d *DB) ImportRawTables(ctx context.Context, tables *domain.RawTables) error {
	return d.gorm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, kind := range domain.AllTables() {
			t := tables.Get(kind)
			if t.Len() == 0 {
				continue
			}
			name := d.tableName(kind)
			records := make([]map[string]any, len(t.Rows))
			for i, row := range t.Rows {
				rec := make(map[string]any, len(t.Columns))
				for j, c := range t.Columns {
					if row[j] == "" {
						rec[c] = nil
					} else {
						rec[c] = row[j]
					}
				}
				records[i] = rec
			}
			for _, batch := range lo.Chunk(records, importBatchSize) {
				if err := tx.Table(name).Create(batch).Error; err != nil {
					return fmt.Errorf("gormdb: import %s: %w", name, err)
				}
			}
			log.WithFields(log.Fields{"table": name, "rows": len(records)}).Info("gormdb: raw table imported")
		}
		return nil
	})
}
