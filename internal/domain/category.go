package domain

import (
	"sort"
	"strings"
)

// VoltageLevel 电压等级
type VoltageLevel string

var (
	VoltageLow     VoltageLevel = "low"
	VoltageMedium  VoltageLevel = "medium"
	VoltageUnknown VoltageLevel = "unknown"
)

// CategoryClass groups tariff categories by who or what is billed.
type CategoryClass string

var (
	ClassResidential CategoryClass = "residential"
	ClassIndustrial  CategoryClass = "industrial"
	ClassPublic      CategoryClass = "public"
	ClassGeneration  CategoryClass = "generation"
	ClassGeneral     CategoryClass = "general"
	ClassAdjustment  CategoryClass = "adjustment"
	ClassUnknown     CategoryClass = "unknown"
)

// Category is the metadata behind a fee code prefix.
type Category struct {
	Code    string        `json:"code"`
	Name    string        `json:"name"`
	Voltage VoltageLevel  `json:"voltage"`
	Class   CategoryClass `json:"class"`
	// Known is false for codes outside the lookup table. They keep their own
	// bucket under the raw code.
	Known bool `json:"known"`
}

// CategoryTable resolves fee code prefixes to tariff categories.
type CategoryTable struct {
	byCode map[string]Category
}

func NewCategoryTable(categories ...Category) *CategoryTable {
	t := &CategoryTable{byCode: make(map[string]Category, len(categories))}
	for _, c := range categories {
		t.Add(c)
	}
	return t
}

// Add registers or replaces a category.
func (t *CategoryTable) Add(c Category) {
	c.Code = strings.TrimSpace(c.Code)
	c.Known = true
	t.byCode[c.Code] = c
}

// Resolve returns the category for a code. Unknown codes come back with
// Known=false and the code as their name.
func (t *CategoryTable) Resolve(code string) Category {
	if c, ok := t.byCode[code]; ok {
		return c
	}
	return Category{
		Code:    code,
		Name:    code,
		Voltage: VoltageUnknown,
		Class:   ClassUnknown,
	}
}

// Codes returns the registered codes sorted.
func (t *CategoryTable) Codes() []string {
	codes := make([]string, 0, len(t.byCode))
	for code := range t.byCode {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// DefaultCategoryTable is the tariff taxonomy used by the distribution
// company's billing system.
func DefaultCategoryTable() *CategoryTable {
	return NewCategoryTable(
		Category{Code: "4AG", Name: "Residential/Commercial LV", Voltage: VoltageLow, Class: ClassResidential},
		Category{Code: "4OG", Name: "Industrial MV", Voltage: VoltageMedium, Class: ClassIndustrial},
		Category{Code: "URT", Name: "Generation", Voltage: VoltageUnknown, Class: ClassGeneration},
		Category{Code: "KAG", Name: "Public LV", Voltage: VoltageLow, Class: ClassPublic},
		Category{Code: "KOG", Name: "Public MV", Voltage: VoltageMedium, Class: ClassPublic},
		Category{Code: "AG", Name: "Low Voltage", Voltage: VoltageLow, Class: ClassGeneral},
		Category{Code: "OG", Name: "Medium Voltage", Voltage: VoltageMedium, Class: ClassGeneral},
		Category{Code: "KCK", Name: "Interruption", Voltage: VoltageUnknown, Class: ClassAdjustment},
		Category{Code: "YLL", Name: "Annual", Voltage: VoltageUnknown, Class: ClassAdjustment},
	)
}

// CategoryCode extracts the tariff category code from a fee code: the text
// before the first underscore, or the whole code when there is none.
func CategoryCode(feeCode string) string {
	if i := strings.IndexByte(feeCode, '_'); i >= 0 {
		return feeCode[:i]
	}
	return feeCode
}
