// Package features turns billing months into the calendar feature vector
// used by the forecasting model.
package features

import (
	"fmt"
	"time"
)

// Names is the column order of Vector.
var Names = []string{
	"year",
	"month",
	"months_from_start",
	"season",
	"quarter",
	"is_summer",
	"is_winter",
}

// Model seasons. Spring is 1; the report package labels seasons starting
// from winter and the two must not be mixed.
const (
	SeasonSpring = 1
	SeasonSummer = 2
	SeasonAutumn = 3
	SeasonWinter = 4
)

// Season maps a month to the model season number.
func Season(month time.Month) int {
	switch month {
	case time.March, time.April, time.May:
		return SeasonSpring
	case time.June, time.July, time.August:
		return SeasonSummer
	case time.September, time.October, time.November:
		return SeasonAutumn
	default:
		return SeasonWinter
	}
}

// SeasonName returns the English label of a model season number.
func SeasonName(season int) string {
	switch season {
	case SeasonSpring:
		return "Spring"
	case SeasonSummer:
		return "Summer"
	case SeasonAutumn:
		return "Autumn"
	case SeasonWinter:
		return "Winter"
	}
	return ""
}

func Quarter(month time.Month) int {
	return (int(month)-1)/3 + 1
}

// Anchor is the reference month elapsed-time features count from. It is
// fixed when a model is trained and travels with it.
type Anchor struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
}

func NewAnchor(t time.Time) Anchor {
	return Anchor{Year: t.Year(), Month: t.Month()}
}

// EarliestAnchor returns the anchor of the earliest time, or false for none.
func EarliestAnchor(times []time.Time) (Anchor, bool) {
	if len(times) == 0 {
		return Anchor{}, false
	}
	earliest := times[0]
	for _, t := range times[1:] {
		if t.Before(earliest) {
			earliest = t
		}
	}
	return NewAnchor(earliest), true
}

func (a Anchor) IsZero() bool {
	return a.Year == 0 && a.Month == 0
}

// MonthsFrom counts whole calendar months from the anchor to (year, month).
func (a Anchor) MonthsFrom(year int, month time.Month) int {
	return (year-a.Year)*12 + int(month) - int(a.Month)
}

func (a Anchor) String() string {
	return fmt.Sprintf("%04d-%02d", a.Year, int(a.Month))
}

// Calendar is the feature set of one month.
type Calendar struct {
	Year                int `json:"year"`
	Month               int `json:"month"`
	Quarter             int `json:"quarter"`
	Season              int `json:"season"`
	IsSummer            int `json:"isSummer"`
	IsWinter            int `json:"isWinter"`
	MonthsFromReference int `json:"monthsFromReference"`
}

// Derive computes the features of the month containing t.
func (a Anchor) Derive(t time.Time) Calendar {
	return a.DeriveMonth(t.Year(), t.Month())
}

// DeriveMonth computes the features of (year, month).
func (a Anchor) DeriveMonth(year int, month time.Month) Calendar {
	c := Calendar{
		Year:                year,
		Month:               int(month),
		Quarter:             Quarter(month),
		Season:              Season(month),
		MonthsFromReference: a.MonthsFrom(year, month),
	}
	switch month {
	case time.June, time.July, time.August:
		c.IsSummer = 1
	case time.December, time.January, time.February:
		c.IsWinter = 1
	}
	return c
}

// Vector returns the features in Names order.
func (c Calendar) Vector() []float64 {
	return []float64{
		float64(c.Year),
		float64(c.Month),
		float64(c.MonthsFromReference),
		float64(c.Season),
		float64(c.Quarter),
		float64(c.IsSummer),
		float64(c.IsWinter),
	}
}

// MonthStart returns the first instant of the month offset months after t's
// month. Working on the first of the month keeps the 31st from rolling over.
func MonthStart(t time.Time, offset int) time.Time {
	return time.Date(t.Year(), t.Month()+time.Month(offset), 1, 0, 0, 0, 0, t.Location())
}
