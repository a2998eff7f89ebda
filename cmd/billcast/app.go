package main

import (
	"context"
	"fmt"
	"io"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/awsl-project/billcast/internal/config"
	"github.com/awsl-project/billcast/internal/domain"
	"github.com/awsl-project/billcast/internal/forecast"
	"github.com/awsl-project/billcast/internal/logging"
	"github.com/awsl-project/billcast/internal/reconcile"
	"github.com/awsl-project/billcast/internal/repository"
	"github.com/awsl-project/billcast/internal/repository/cached"
	"github.com/awsl-project/billcast/internal/repository/csvfile"
	"github.com/awsl-project/billcast/internal/repository/filestore"
	"github.com/awsl-project/billcast/internal/repository/gormdb"
)

// app holds what one command invocation opened. Everything is closed by
// Close in reverse order.
type app struct {
	cfg     *config.Config
	out     io.Writer
	closers []io.Closer
	session *cached.Session
}

func newApp(c *cli.Context) (*app, error) {
	cfg, err := config.Load(c.String("config"), func(cfg *config.Config) {
		if v := c.String("source"); v != "" {
			cfg.Source.Kind = v
		}
		if v := c.String("dsn"); v != "" {
			cfg.Source.DSN = v
		}
		if v := c.String("data"); v != "" {
			cfg.Source.DataDir = v
		}
		if v := c.String("log-level"); v != "" {
			cfg.Logging.Level = v
		}
	})
	if err != nil {
		return nil, err
	}
	logs, err := logging.Setup(cfg.Logging)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, out: c.App.Writer, closers: []io.Closer{logs}}, nil
}

func (a *app) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// run wraps a command body with app setup and teardown.
func run(fn func(c *cli.Context, a *app) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		a, err := newApp(c)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(c, a)
	}
}

func (a *app) dbOptions() gormdb.Options {
	p := a.cfg.Source.Pool
	return gormdb.Options{
		Schema:          a.cfg.Source.Schema,
		Tables:          a.cfg.Source.Tables,
		MaxIdleConns:    p.Size,
		MaxOpenConns:    p.Size + p.MaxOverflow,
		ConnMaxLifetime: p.Recycle,
		ConnectTimeout:  p.Timeout,
	}
}

func (a *app) openSource(ctx context.Context) (repository.RawSource, error) {
	switch a.cfg.Source.Kind {
	case config.SourceCSV:
		return csvfile.Open(a.cfg.Source.DataDir, csvfile.WithTables(a.cfg.Source.Tables))
	default:
		return gormdb.Open(ctx, a.cfg.Source.DSN, a.dbOptions())
	}
}

func (a *app) reconcileOptions() reconcile.Options {
	opts := reconcile.DefaultOptions()
	opts.DateLayout = a.cfg.Reconcile.DateLayout
	opts.TermCostMaxUnitPrice = a.cfg.Reconcile.TermCostMaxUnitPrice
	opts.Logger = log.StandardLogger()
	return opts
}

func (a *app) forecastConfig() forecast.Config {
	cfg := forecast.FromSettings(a.cfg.Forecast)
	cfg.Logger = log.StandardLogger()
	return cfg
}

// Session opens the configured source on first use.
func (a *app) Session(ctx context.Context) (*cached.Session, error) {
	if a.session != nil {
		return a.session, nil
	}
	src, err := a.openSource(ctx)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, src)
	log.WithField("source", src.Describe()).Info("source opened")
	a.session = cached.NewSession(src, a.reconcileOptions(), a.forecastConfig())
	return a.session, nil
}

func (a *app) factTable(ctx context.Context) (*domain.FactTable, *reconcile.Report, error) {
	s, err := a.Session(ctx)
	if err != nil {
		return nil, nil, err
	}
	return s.FactTable(ctx)
}

// model loads a snapshot when path is set and trains on the source otherwise.
func (a *app) model(ctx context.Context, path string) (*forecast.Model, error) {
	if path != "" {
		m, err := filestore.Load(path)
		if err != nil {
			return nil, err
		}
		log.WithFields(log.Fields{"path": path, "runId": m.RunID}).Info("model snapshot loaded")
		return m, nil
	}
	s, err := a.Session(ctx)
	if err != nil {
		return nil, err
	}
	return s.Model(ctx)
}

// runs opens the training-run history, or returns nil when no database is
// configured for it.
func (a *app) runs(ctx context.Context) (*gormdb.TrainingRunRepository, error) {
	dsn := a.cfg.Storage.RunsDSN
	if dsn == "" && a.cfg.Source.Kind == config.SourceDatabase {
		dsn = a.cfg.Source.DSN
	}
	if dsn == "" {
		return nil, nil
	}
	db, err := gormdb.Open(ctx, dsn, gormdb.Options{})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, db)
	if err := db.Migrate(); err != nil {
		return nil, err
	}
	return gormdb.NewTrainingRunRepository(db), nil
}

func (a *app) describeSource() string {
	if a.cfg.Source.Kind == config.SourceCSV {
		return "csv:" + a.cfg.Source.DataDir
	}
	return config.RedactedDSN(a.cfg.Source.DSN)
}

func (a *app) writeJSON(v any) error {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	data = append(data, '\n')
	_, err = a.out.Write(data)
	return err
}
