// Package reconcile joins the four raw billing tables into the fact table:
// one row per term × fee × consumption sub-line, carrying per-term
// consumption and cost rollups.
package reconcile

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"github.com/awsl-project/billcast/internal/domain"
	"github.com/awsl-project/billcast/internal/logging"
)

type Options struct {
	// DateLayout is the Go layout of every date column.
	DateLayout string
	// TermCostMaxUnitPrice caps the unit price of fees counted in term_total_cost.
	TermCostMaxUnitPrice float64
	Categories           *domain.CategoryTable
	Logger               log.FieldLogger
	Now                  func() time.Time
}

func DefaultOptions() Options {
	return Options{
		DateLayout:           "20060102150405",
		TermCostMaxUnitPrice: 5.0,
		Categories:           domain.DefaultCategoryTable(),
	}
}

func (o *Options) fill() {
	d := DefaultOptions()
	if o.DateLayout == "" {
		o.DateLayout = d.DateLayout
	}
	if o.TermCostMaxUnitPrice <= 0 {
		o.TermCostMaxUnitPrice = d.TermCostMaxUnitPrice
	}
	if o.Categories == nil {
		o.Categories = d.Categories
	}
	if o.Logger == nil {
		o.Logger = log.StandardLogger()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Report describes what a run joined, dropped and skipped.
type Report struct {
	Accruals     int `json:"accruals"`
	Terms        int `json:"terms"`
	Fees         int `json:"fees"`
	Consumptions int `json:"consumptions"`

	AccrualTermRows int `json:"accrualTermRows"`
	FeeRows         int `json:"feeRows"`
	FactRows        int `json:"factRows"`

	// Rows that found no partner in an inner join.
	OrphanTerms         int `json:"orphanTerms"`
	TermsWithoutFees    int `json:"termsWithoutFees"`
	OrphanConsumptions  int `json:"orphanConsumptions"`
	FeesWithoutSubLines int `json:"feesWithoutSubLines"`

	UnparsedDates     map[string]int `json:"unparsedDates,omitempty"`
	UnparsedNumbers   map[string]int `json:"unparsedNumbers,omitempty"`
	UnknownCategories []string       `json:"unknownCategories,omitempty"`
	Skipped           []string       `json:"skipped,omitempty"`
}

// Run reconciles the raw tables. It fails only when a table is absent or
// lacks an inner-join key; missing optional columns skip their derived
// columns, and bad cells become nil.
func Run(raw *domain.RawTables, opts Options) (*domain.FactTable, *Report, error) {
	opts.fill()
	logger := logging.Stage(opts.Logger, "reconcile")

	if raw == nil {
		return nil, nil, &domain.LoadError{Source: "reconcile", Err: fmt.Errorf("no raw tables")}
	}
	schemas := domain.RawSchemas()
	for _, kind := range domain.AllTables() {
		t := raw.Get(kind)
		if t == nil {
			return nil, nil, &domain.LoadError{Source: "reconcile", Table: string(kind), Err: fmt.Errorf("table not loaded")}
		}
		if missing := t.Missing(schemas[kind].Required...); len(missing) > 0 {
			return nil, nil, &domain.SchemaError{Table: t.Name, Missing: missing}
		}
	}

	schema := domain.FactSchema{
		Period:           raw.Terms.Has(domain.ColTermDate),
		FeePrefix:        raw.Fees.Has(domain.ColFeeCode),
		TotalConsumption: raw.Fees.Has(domain.ColConsumption),
		TermTotalCost:    raw.Fees.Has(domain.ColConsumption, domain.ColUnitPrice, domain.ColAmount),
		ConsumptionJoin:  raw.Consumptions.Has(domain.ColFeeID),
	}
	schema.ConsumptionValue = schema.ConsumptionJoin && raw.Consumptions.Has(domain.ColBillableConsumption)
	schema.TimeFrame = schema.ConsumptionJoin && raw.Consumptions.Has(domain.ColChannelKey)
	for _, s := range schema.Skipped() {
		logger.WithField("column", s).Warn("derived column skipped, input columns missing")
	}

	seen := make(map[string]bool)
	accExtra := extraColumns(raw.Accruals, schemas[domain.TableAccruals], seen, "")
	termExtra := extraColumns(raw.Terms, schemas[domain.TableTerms], seen, "_term")
	feeExtra := extraColumns(raw.Fees, schemas[domain.TableFees], seen, "_fee")
	consExtra := extraColumns(raw.Consumptions, schemas[domain.TableConsumptions], seen, "_consumption")

	p := newParser(opts.DateLayout)
	accruals := p.accruals(raw.Accruals, accExtra)
	terms := p.terms(raw.Terms, termExtra)
	fees := p.fees(raw.Fees, feeExtra)
	var consumptions []consumptionRec
	if schema.ConsumptionJoin {
		consumptions = p.consumptions(raw.Consumptions, consExtra)
	}

	report := &Report{
		Accruals:     len(accruals),
		Terms:        len(terms),
		Fees:         len(fees),
		Consumptions: raw.Consumptions.Len(),
	}

	// Accrual ⋈ Term (inner)
	termsByAccrual := indexBy(terms, func(t termRec) string { return t.accrualID })
	type accrualTerm struct {
		acc  *accrualRec
		term *termRec
	}
	var atRows []accrualTerm
	joinedTerms := make(map[int]bool)
	for i := range accruals {
		for _, ti := range termsByAccrual[accruals[i].id] {
			atRows = append(atRows, accrualTerm{acc: &accruals[i], term: &terms[ti]})
			joinedTerms[ti] = true
		}
	}
	report.OrphanTerms = len(terms) - len(joinedTerms)
	report.AccrualTermRows = len(atRows)

	// ⋈ Fee (inner)
	feesByTerm := indexBy(fees, func(f feeRec) string { return f.termID })
	type feeRow struct {
		at  accrualTerm
		fee *feeRec
	}
	var feeRows []feeRow
	for _, at := range atRows {
		idx := feesByTerm[at.term.id]
		if len(idx) == 0 {
			report.TermsWithoutFees++
			continue
		}
		for _, fi := range idx {
			feeRows = append(feeRows, feeRow{at: at, fee: &fees[fi]})
		}
	}
	report.FeeRows = len(feeRows)

	// 按 term 汇总：每个 fee 只计一次，不受 consumption 子行影响
	totalConsumption := make(map[string]float64)
	termCost := make(map[string]float64)
	for _, fr := range feeRows {
		f := fr.fee
		if f.consumption != nil {
			totalConsumption[fr.at.term.id] += *f.consumption
		}
		if schema.TermTotalCost && qualifiesForTermCost(f, opts.TermCostMaxUnitPrice) {
			termCost[fr.at.term.id] += *f.amount
		}
	}

	// ⋈ Consumption (left)
	consByFee := indexBy(consumptions, func(c consumptionRec) string { return c.feeID })
	joinedFees := make(map[string]bool)
	unknown := make(map[string]bool)
	rows := make([]domain.FactRow, 0, len(feeRows))
	for _, fr := range feeRows {
		base := buildRow(fr.at.acc, fr.at.term, fr.fee, opts.Categories, unknown)
		base.TotalConsumption = totalConsumption[fr.at.term.id]
		base.TermTotalCost = termCost[fr.at.term.id]

		idx := consByFee[fr.fee.id]
		if len(idx) == 0 {
			report.FeesWithoutSubLines++
			base.TimeFrame = domain.UnknownTimeFrame
			base.Extra = mergeExtras(fr.at.acc.extra, fr.at.term.extra, fr.fee.extra, nil)
			rows = append(rows, base)
			continue
		}
		joinedFees[fr.fee.id] = true
		for _, ci := range idx {
			c := &consumptions[ci]
			row := base
			row.ConsumptionID = c.id
			row.ChannelKey = c.channelKey
			row.BillableConsumption = c.billable
			row.ConsumptionValue = domain.Float(c.billable)
			row.TimeFrame = domain.UnknownTimeFrame
			if c.channelKey != nil {
				row.TimeFrame = *c.channelKey
			}
			row.Extra = mergeExtras(fr.at.acc.extra, fr.at.term.extra, fr.fee.extra, c.extra)
			rows = append(rows, row)
		}
	}
	for _, c := range consumptions {
		if !joinedFees[c.feeID] {
			report.OrphanConsumptions++
		}
	}
	report.FactRows = len(rows)

	report.UnparsedDates = nonEmpty(p.badDates)
	report.UnparsedNumbers = nonEmpty(p.badNums)
	report.Skipped = schema.Skipped()
	if len(unknown) > 0 {
		report.UnknownCategories = lo.Keys(unknown)
		sort.Strings(report.UnknownCategories)
		logger.WithField("codes", report.UnknownCategories).Warn("fee codes outside the category table")
	}

	table := &domain.FactTable{
		Rows:        rows,
		Schema:      schema,
		Fingerprint: Fingerprint(raw),
		BuiltAt:     opts.Now(),
	}
	logger.WithFields(log.Fields{
		"accrual_terms": report.AccrualTermRows,
		"fee_rows":      report.FeeRows,
		"rows":          report.FactRows,
		"orphan_terms":  report.OrphanTerms,
	}).Info("fact table built")
	return table, report, nil
}

// qualifiesForTermCost is the unit price anomaly guard of the cost rollup.
func qualifiesForTermCost(f *feeRec, maxUnitPrice float64) bool {
	if f.consumption == nil || f.unitPrice == nil || f.amount == nil {
		return false
	}
	up := *f.unitPrice
	return *f.consumption > 0 && up > 0 && up <= maxUnitPrice
}

func buildRow(a *accrualRec, t *termRec, f *feeRec, categories *domain.CategoryTable, unknown map[string]bool) domain.FactRow {
	row := domain.FactRow{
		AccrualID:        a.id,
		AccrualDate:      a.date,
		AccrualStartDate: a.start,
		AccrualEndDate:   a.end,

		TermID:        t.id,
		TermDate:      t.date,
		Year:          t.year,
		Month:         t.month,
		TermStartDate: t.start,
		TermEndDate:   t.end,

		FeeID:       f.id,
		FeeCode:     f.code,
		UnitPrice:   f.unitPrice,
		Consumption: f.consumption,
		Amount:      domain.Float(f.amount),
	}
	if f.code != nil {
		code := domain.CategoryCode(*f.code)
		cat := categories.Resolve(code)
		row.FeePrefix = &code
		row.Category = &cat
		if !cat.Known {
			unknown[code] = true
		}
	}
	return row
}

// indexBy groups record positions by key, keeping input order. Empty keys
// never join.
func indexBy[T any](recs []T, key func(T) string) map[string][]int {
	idx := make(map[string][]int)
	for i, r := range recs {
		k := key(r)
		if k == "" {
			continue
		}
		idx[k] = append(idx[k], i)
	}
	return idx
}

func mergeExtras(parts ...map[string]string) map[string]string {
	var out map[string]string
	for _, p := range parts {
		if len(p) == 0 {
			continue
		}
		if out == nil {
			out = make(map[string]string)
		}
		for k, v := range p {
			out[k] = v
		}
	}
	return out
}

func nonEmpty(m map[string]int) map[string]int {
	if len(m) == 0 {
		return nil
	}
	return m
}

// Fingerprint hashes the raw tables so caches can tell inputs apart.
func Fingerprint(raw *domain.RawTables) string {
	h := sha256.New()
	for _, kind := range domain.AllTables() {
		t := raw.Get(kind)
		h.Write([]byte(kind))
		h.Write([]byte{0x1d})
		if t == nil {
			continue
		}
		for _, c := range t.Columns {
			h.Write([]byte(c))
			h.Write([]byte{0x1f})
		}
		for _, row := range t.Rows {
			h.Write([]byte{0x1e})
			for _, v := range row {
				h.Write([]byte(v))
				h.Write([]byte{0x1f})
			}
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
