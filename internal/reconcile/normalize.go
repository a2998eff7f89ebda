package reconcile

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/awsl-project/billcast/internal/domain"
)

// parser converts raw cells and counts the values it had to null out.
type parser struct {
	layout   string
	badDates map[string]int
	badNums  map[string]int
}

func newParser(layout string) *parser {
	return &parser{
		layout:   layout,
		badDates: make(map[string]int),
		badNums:  make(map[string]int),
	}
}

// date parses a fixed-layout timestamp. Exports that went through a float
// column carry a trailing ".0", which is tolerated.
func (p *parser) date(col, raw string) *time.Time {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	s = strings.TrimSuffix(s, ".0")
	t, err := time.ParseInLocation(p.layout, s, time.UTC)
	if err != nil {
		p.badDates[col]++
		return nil
	}
	return &t
}

// number parses a decimal value. NaN and infinities count as missing.
func (p *parser) number(col, raw string) *float64 {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		p.badNums[col]++
		return nil
	}
	return &v
}

// text returns nil for empty cells.
func text(raw string) *string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	return &s
}

// normalizeID trims an identity and folds integral floats ("12.0") to
// integers so ids exported through float columns still join.
func normalizeID(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" || !strings.ContainsAny(s, ".eE") {
		return s
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v != math.Trunc(v) || math.Abs(v) > 1<<53 {
		return s
	}
	return strconv.FormatInt(int64(v), 10)
}

type column struct {
	name  string
	index int
}

// extraColumns returns the columns outside the table's contract, each with
// its output name. Names already used by an earlier table get the suffix.
func extraColumns(t *domain.RawTable, schema domain.TableSchema, seen map[string]bool, suffix string) []column {
	var out []column
	for i, c := range t.Columns {
		if schema.Known(c) {
			continue
		}
		name := c
		if seen[name] {
			name += suffix
		}
		out = append(out, column{name: name, index: i})
	}
	for _, c := range t.Columns {
		seen[c] = true
	}
	return out
}

func readExtras(row []string, cols []column, into map[string]string) map[string]string {
	for _, c := range cols {
		if row[c.index] == "" {
			continue
		}
		if into == nil {
			into = make(map[string]string, len(cols))
		}
		into[c.name] = row[c.index]
	}
	return into
}

type accrualRec struct {
	id         string
	date       *time.Time
	start, end *time.Time
	extra      map[string]string
}

type termRec struct {
	id, accrualID string
	date          *time.Time
	year, month   *int
	start, end    *time.Time
	extra         map[string]string
}

type feeRec struct {
	id, termID  string
	code        *string
	unitPrice   *float64
	consumption *float64
	amount      *float64
	extra       map[string]string
}

type consumptionRec struct {
	id         *string
	feeID      string
	channelKey *string
	billable   *float64
	extra      map[string]string
}

func (p *parser) accruals(t *domain.RawTable, extras []column) []accrualRec {
	out := make([]accrualRec, t.Len())
	for i, row := range t.Rows {
		out[i] = accrualRec{
			id:    normalizeID(t.Value(i, domain.ColID)),
			date:  p.date(domain.ColAccrualDate, t.Value(i, domain.ColAccrualDate)),
			start: p.date(domain.ColAccrualStartDate, t.Value(i, domain.ColAccrualStartDate)),
			end:   p.date(domain.ColAccrualEndDate, t.Value(i, domain.ColAccrualEndDate)),
			extra: readExtras(row, extras, nil),
		}
	}
	return out
}

func (p *parser) terms(t *domain.RawTable, extras []column) []termRec {
	out := make([]termRec, t.Len())
	for i, row := range t.Rows {
		r := termRec{
			id:        normalizeID(t.Value(i, domain.ColID)),
			accrualID: normalizeID(t.Value(i, domain.ColAccrualID)),
			date:      p.date(domain.ColTermDate, t.Value(i, domain.ColTermDate)),
			start:     p.date(domain.ColStartDate, t.Value(i, domain.ColStartDate)),
			end:       p.date(domain.ColEndDate, t.Value(i, domain.ColEndDate)),
			extra:     readExtras(row, extras, nil),
		}
		if r.date != nil {
			y, m := r.date.Year(), int(r.date.Month())
			r.year, r.month = &y, &m
		}
		out[i] = r
	}
	return out
}

func (p *parser) fees(t *domain.RawTable, extras []column) []feeRec {
	out := make([]feeRec, t.Len())
	for i, row := range t.Rows {
		out[i] = feeRec{
			id:          normalizeID(t.Value(i, domain.ColID)),
			termID:      normalizeID(t.Value(i, domain.ColTermID)),
			code:        text(t.Value(i, domain.ColFeeCode)),
			unitPrice:   p.number(domain.ColUnitPrice, t.Value(i, domain.ColUnitPrice)),
			consumption: p.number(domain.ColConsumption, t.Value(i, domain.ColConsumption)),
			amount:      p.number(domain.ColAmount, t.Value(i, domain.ColAmount)),
			extra:       readExtras(row, extras, nil),
		}
	}
	return out
}

func (p *parser) consumptions(t *domain.RawTable, extras []column) []consumptionRec {
	out := make([]consumptionRec, t.Len())
	for i, row := range t.Rows {
		var id *string
		if v := normalizeID(t.Value(i, domain.ColID)); v != "" {
			id = &v
		}
		out[i] = consumptionRec{
			id:         id,
			feeID:      normalizeID(t.Value(i, domain.ColFeeID)),
			channelKey: text(t.Value(i, domain.ColChannelKey)),
			billable:   p.number(domain.ColBillableConsumption, t.Value(i, domain.ColBillableConsumption)),
			extra:      readExtras(row, extras, nil),
		}
	}
	return out
}
