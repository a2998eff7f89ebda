package main

import (
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/awsl-project/billcast/internal/domain"
	"github.com/awsl-project/billcast/internal/forecast"
	"github.com/awsl-project/billcast/internal/pricing"
	"github.com/awsl-project/billcast/internal/report"
	"github.com/awsl-project/billcast/internal/repository/csvfile"
	"github.com/awsl-project/billcast/internal/repository/filestore"
	"github.com/awsl-project/billcast/internal/repository/gormdb"
	"github.com/awsl-project/billcast/internal/stats"
	"github.com/awsl-project/billcast/internal/version"
)

var modelFlag = &cli.StringFlag{
	Name:    "model",
	Aliases: []string{"m"},
	Usage:   "Load a saved model snapshot instead of training on the source",
}

// =============================================================================
// DATA COMMANDS
// =============================================================================

func reconcileCommand() *cli.Command {
	return &cli.Command{
		Name:  "reconcile",
		Usage: "Join the raw tables and print summary statistics",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "rows", Usage: "Include every fact row in the output"},
		},
		Action: run(func(c *cli.Context, a *app) error {
			fact, rep, err := a.factTable(c.Context)
			if err != nil {
				return err
			}
			out := map[string]any{
				"summary": report.Summarize(fact),
				"report":  rep,
				"schema":  fact.Schema,
			}
			if c.Bool("rows") {
				out["rows"] = fact.Rows
			}
			return a.writeJSON(out)
		}),
	}
}

func summaryCommand() *cli.Command {
	return &cli.Command{
		Name:  "summary",
		Usage: "Print monthly metrics, the yearly breakdown and per-period totals",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "granularity", Aliases: []string{"g"}, Value: string(stats.GranularityQuarter), Usage: "Period of the breakdown: month, quarter or year"},
		},
		Action: run(func(c *cli.Context, a *app) error {
			g, err := stats.ParseGranularity(c.String("granularity"))
			if err != nil {
				return err
			}
			fact, _, err := a.factTable(c.Context)
			if err != nil {
				return err
			}
			return a.writeJSON(map[string]any{
				"metrics": report.Metrics(fact),
				"yearly":  report.YearlyBreakdown(fact),
				"periods": report.PeriodBreakdown(fact, g),
			})
		}),
	}
}

func categoriesCommand() *cli.Command {
	return &cli.Command{
		Name:  "categories",
		Usage: "Print the tariff category analysis and distribution",
		Action: run(func(c *cli.Context, a *app) error {
			fact, _, err := a.factTable(c.Context)
			if err != nil {
				return err
			}
			return a.writeJSON(map[string]any{
				"categories":   report.CategoryAnalysis(fact),
				"distribution": pricing.BuildDistribution(fact.Rows, a.cfg.Forecast.CategoryMaxUnitPrice),
			})
		}),
	}
}

func seasonsCommand() *cli.Command {
	return &cli.Command{
		Name:  "seasons",
		Usage: "Print consumption and cost by season",
		Action: run(func(c *cli.Context, a *app) error {
			fact, _, err := a.factTable(c.Context)
			if err != nil {
				return err
			}
			return a.writeJSON(report.SeasonalAnalysis(fact))
		}),
	}
}

func pricesCommand() *cli.Command {
	return &cli.Command{
		Name:  "prices",
		Usage: "Print fee unit price statistics per year",
		Action: run(func(c *cli.Context, a *app) error {
			fact, _, err := a.factTable(c.Context)
			if err != nil {
				return err
			}
			return a.writeJSON(report.UnitPriceByYear(fact, a.cfg.Reconcile.TermCostMaxUnitPrice))
		}),
	}
}

// =============================================================================
// MODEL COMMANDS
// =============================================================================

func trainCommand() *cli.Command {
	return &cli.Command{
		Name:  "train",
		Usage: "Train the forecasting model and record the run",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "save",
				Usage: "Write the trained model to this path (.zst compresses)",
			},
		},
		Action: run(func(c *cli.Context, a *app) error {
			s, err := a.Session(c.Context)
			if err != nil {
				return err
			}
			fact, _, err := s.FactTable(c.Context)
			if err != nil {
				return err
			}
			res, trainErr := s.Train(c.Context)
			if res == nil {
				return trainErr
			}

			runs, err := a.runs(c.Context)
			if err != nil {
				log.WithError(err).Warn("training run history unavailable")
			} else if runs != nil {
				rec := res.TrainingRun(a.describeSource(), fact.Fingerprint, time.Now().UTC())
				if err := runs.Create(rec); err != nil {
					log.WithError(err).Warn("failed to record training run")
				}
			}

			if trainErr == nil {
				if path := c.String("save"); path != "" {
					if err := filestore.Save(path, res.Model); err != nil {
						return err
					}
					log.WithField("path", path).Info("model snapshot saved")
				}
			}
			if err := a.writeJSON(res); err != nil {
				return err
			}
			return trainErr
		}),
	}
}

func forecastCommand() *cli.Command {
	return &cli.Command{
		Name:  "forecast",
		Usage: "Forecast consumption and cost for the coming months",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "months", Aliases: []string{"n"}, Usage: "Forecast horizon in months (default from config)"},
			modelFlag,
		},
		Action: run(func(c *cli.Context, a *app) error {
			months := a.cfg.Forecast.Horizon.Default
			if c.IsSet("months") {
				months = c.Int("months")
			}
			m, err := a.model(c.Context, c.String("model"))
			if err != nil {
				return err
			}
			preds, err := m.Predict(time.Now(), months)
			if err != nil {
				return err
			}
			return a.writeJSON(map[string]any{
				"runId":              m.RunID,
				"currency":           a.cfg.Forecast.Currency,
				"effectiveUnitPrice": m.EffectiveUnitPrice(),
				"predictions":        preds,
			})
		}),
	}
}

func nextMonthCommand() *cli.Command {
	return &cli.Command{
		Name:  "next-month",
		Usage: "Forecast next month",
		Flags: []cli.Flag{modelFlag},
		Action: run(func(c *cli.Context, a *app) error {
			m, err := a.model(c.Context, c.String("model"))
			if err != nil {
				return err
			}
			next, err := m.NextMonth(time.Now())
			if err != nil {
				return err
			}
			return a.writeJSON(next)
		}),
	}
}

func yearlyCommand() *cli.Command {
	return &cli.Command{
		Name:  "yearly",
		Usage: "Forecast every month of a calendar year",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "year", Aliases: []string{"y"}, Usage: "Calendar year (default: current year)"},
			modelFlag,
		},
		Action: run(func(c *cli.Context, a *app) error {
			year := c.Int("year")
			if year == 0 {
				year = time.Now().Year()
			}
			m, err := a.model(c.Context, c.String("model"))
			if err != nil {
				return err
			}
			preds, err := m.Yearly(year)
			if err != nil {
				return err
			}
			var consumption, cost float64
			for _, p := range preds {
				consumption += p.Consumption
				cost += p.Cost
			}
			return a.writeJSON(map[string]any{
				"year":              year,
				"predictions":       preds,
				"total_consumption": consumption,
				"total_cost":        report.Money(cost),
			})
		}),
	}
}

func backtestCommand() *cli.Command {
	return &cli.Command{
		Name:  "backtest",
		Usage: "Compare model predictions with the historical months",
		Flags: []cli.Flag{modelFlag},
		Action: run(func(c *cli.Context, a *app) error {
			m, err := a.model(c.Context, c.String("model"))
			if err != nil {
				return err
			}
			fact, _, err := a.factTable(c.Context)
			if err != nil {
				return err
			}
			bt, err := m.Backtest(fact)
			if err != nil {
				return err
			}
			return a.writeJSON(bt)
		}),
	}
}

func compareCommand() *cli.Command {
	return &cli.Command{
		Name:  "compare",
		Usage: "Evaluate the candidate regression models on a held-out split",
		Action: run(func(c *cli.Context, a *app) error {
			fact, _, err := a.factTable(c.Context)
			if err != nil {
				return err
			}
			cmp, err := forecast.Compare(fact, a.forecastConfig())
			if err != nil {
				return err
			}
			return a.writeJSON(cmp)
		}),
	}
}

// =============================================================================
// STORAGE COMMANDS
// =============================================================================

func importCommand() *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Load CSV exports into the billing database",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "from", Usage: "Directory of <table>.csv exports", Required: true},
		},
		Action: run(func(c *cli.Context, a *app) error {
			if a.cfg.Source.DSN == "" {
				return errors.New("import needs a database DSN (--dsn or BILLCAST_DSN)")
			}
			src, err := csvfile.Open(c.String("from"), csvfile.WithTables(a.cfg.Source.Tables))
			if err != nil {
				return err
			}
			raw, err := src.LoadRawTables(c.Context)
			if err != nil {
				return err
			}

			db, err := gormdb.Open(c.Context, a.cfg.Source.DSN, a.dbOptions())
			if err != nil {
				return err
			}
			a.closers = append(a.closers, db)
			if err := db.EnsureRawTables(c.Context, raw); err != nil {
				return err
			}
			if err := db.ImportRawTables(c.Context, raw); err != nil {
				return err
			}

			counts := make(map[string]int)
			for _, kind := range domain.AllTables() {
				if t := raw.Get(kind); t != nil {
					counts[t.Name] = t.Len()
				}
			}
			return a.writeJSON(map[string]any{"imported": counts})
		}),
	}
}

func runsCommand() *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "List recorded training runs, newest first",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Value: 20, Usage: "Maximum number of runs"},
		},
		Action: run(func(c *cli.Context, a *app) error {
			runs, err := a.runs(c.Context)
			if err != nil {
				return err
			}
			if runs == nil {
				return errors.New("no database configured for training runs (storage.runs_dsn or a database source)")
			}
			list, err := runs.List(c.Int("limit"))
			if err != nil {
				return err
			}
			return a.writeJSON(list)
		}),
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print build information",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "Print as JSON"},
		},
		Action: func(c *cli.Context) error {
			if c.Bool("json") {
				a := &app{out: c.App.Writer}
				return a.writeJSON(version.Get())
			}
			fmt.Fprintln(c.App.Writer, "billcast", version.Full())
			return nil
		},
	}
}
