package domain

import "strings"

// 四张原始账单表
type TableKind string

var (
	TableAccruals     TableKind = "accruals"
	TableTerms        TableKind = "terms"
	TableFees         TableKind = "fees"
	TableConsumptions TableKind = "consumptions"
)

// AllTables lists the raw tables in join order.
func AllTables() []TableKind {
	return []TableKind{TableAccruals, TableTerms, TableFees, TableConsumptions}
}

// RawTable is one loaded record set with named columns. Values are kept as the
// source delivered them as text; typing happens during reconciliation.
type RawTable struct {
	Name    string
	Columns []string
	Rows    [][]string

	index map[string]int
}

func NewRawTable(name string, columns []string) *RawTable {
	t := &RawTable{Name: name, Columns: make([]string, len(columns))}
	for i, c := range columns {
		t.Columns[i] = strings.TrimSpace(c)
	}
	t.buildIndex()
	return t
}

func (t *RawTable) buildIndex() {
	t.index = make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		if _, dup := t.index[c]; !dup {
			t.index[c] = i
		}
	}
}

// Append adds a row. Short rows are padded with empty values.
func (t *RawTable) Append(row []string) {
	if len(row) < len(t.Columns) {
		padded := make([]string, len(t.Columns))
		copy(padded, row)
		row = padded
	}
	t.Rows = append(t.Rows, row[:len(t.Columns)])
}

// Col returns the position of a column.
func (t *RawTable) Col(name string) (int, bool) {
	if t.index == nil {
		t.buildIndex()
	}
	i, ok := t.index[name]
	return i, ok
}

// Has reports whether every named column is present.
func (t *RawTable) Has(names ...string) bool {
	for _, n := range names {
		if _, ok := t.Col(n); !ok {
			return false
		}
	}
	return true
}

// Missing returns the named columns that are absent, in argument order.
func (t *RawTable) Missing(names ...string) []string {
	var out []string
	for _, n := range names {
		if _, ok := t.Col(n); !ok {
			out = append(out, n)
		}
	}
	return out
}

// Value returns the cell at (row, column) or "" when the column is absent.
func (t *RawTable) Value(row int, name string) string {
	i, ok := t.Col(name)
	if !ok {
		return ""
	}
	return t.Rows[row][i]
}

func (t *RawTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// RawTables groups the four record sets handed to the reconciliation pipeline.
type RawTables struct {
	Accruals     *RawTable
	Terms        *RawTable
	Fees         *RawTable
	Consumptions *RawTable
}

// Get returns the table for a kind.
func (r *RawTables) Get(kind TableKind) *RawTable {
	switch kind {
	case TableAccruals:
		return r.Accruals
	case TableTerms:
		return r.Terms
	case TableFees:
		return r.Fees
	case TableConsumptions:
		return r.Consumptions
	}
	return nil
}

// Set stores the table for a kind.
func (r *RawTables) Set(kind TableKind, t *RawTable) {
	switch kind {
	case TableAccruals:
		r.Accruals = t
	case TableTerms:
		r.Terms = t
	case TableFees:
		r.Fees = t
	case TableConsumptions:
		r.Consumptions = t
	}
}

// TableNames maps each raw table kind to its physical name.
type TableNames struct {
	Accruals     string `yaml:"accruals"`
	Terms        string `yaml:"terms"`
	Fees         string `yaml:"fees"`
	Consumptions string `yaml:"consumptions"`
}

// DefaultTableNames are the billing warehouse table names.
func DefaultTableNames() TableNames {
	return TableNames{
		Accruals:     "bi_accruals",
		Terms:        "bi_accrual_terms",
		Fees:         "bi_accrual_fees",
		Consumptions: "bi_accrual_fee_consumptions",
	}
}

func (n TableNames) For(kind TableKind) string {
	switch kind {
	case TableAccruals:
		return n.Accruals
	case TableTerms:
		return n.Terms
	case TableFees:
		return n.Fees
	case TableConsumptions:
		return n.Consumptions
	}
	return ""
}
