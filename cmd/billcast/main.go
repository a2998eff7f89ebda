// billcast reconciles utility billing tables and forecasts consumption and
// cost.
//
// Usage:
//
//	billcast --source csv --data ./exports summary
//	billcast --dsn "host=db user=bi dbname=billing" train --save models/latest.json.zst
//	billcast forecast --months 6 --model models/latest.json.zst
package main

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"github.com/awsl-project/billcast/internal/version"
)

func main() {
	// money is printed as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true

	if err := newCLI().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newCLI() *cli.App {
	return &cli.App{
		Name:    "billcast",
		Usage:   "Utility billing reconciliation and consumption forecasting",
		Version: version.Full(),

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML config file",
				EnvVars: []string{"BILLCAST_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "source",
				Usage: "Raw data source (database, csv)",
			},
			&cli.StringFlag{
				Name:  "dsn",
				Usage: "Billing database DSN (sqlite path, mysql://..., or libpq key=value)",
			},
			&cli.StringFlag{
				Name:  "data",
				Usage: "Directory of <table>.csv exports for the csv source",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
			},
		},

		Commands: []*cli.Command{
			reconcileCommand(),
			summaryCommand(),
			categoriesCommand(),
			seasonsCommand(),
			pricesCommand(),
			trainCommand(),
			forecastCommand(),
			nextMonthCommand(),
			yearlyCommand(),
			backtestCommand(),
			compareCommand(),
			importCommand(),
			runsCommand(),
			versionCommand(),
		},
	}
}
