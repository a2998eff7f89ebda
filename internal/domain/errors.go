package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInsufficientData  = errors.New("insufficient training data")
	ErrNotTrained        = errors.New("model is not trained")
	ErrHorizonOutOfRange = errors.New("forecast horizon out of range")
)

// LoadError means a raw table could not be read at all.
type LoadError struct {
	Source string
	Table  string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("load %s: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("load %s table %s: %v", e.Source, e.Table, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// MissingTablesError lists raw tables a source does not have.
type MissingTablesError struct {
	Tables []string
}

func (e *MissingTablesError) Error() string {
	return "missing tables: " + strings.Join(e.Tables, ", ")
}

// SchemaError means a raw table lacks a join key.
type SchemaError struct {
	Table   string
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("table %s is missing required columns: %s", e.Table, strings.Join(e.Missing, ", "))
}

// InsufficientDataError reports how many monthly rows survived cleaning.
type InsufficientDataError struct {
	Samples  int
	Required int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient training data: %d monthly rows, need at least %d", e.Samples, e.Required)
}

func (e *InsufficientDataError) Is(target error) bool {
	return target == ErrInsufficientData
}

// HorizonError reports a forecast length outside the allowed range.
type HorizonError struct {
	Months int
	Min    int
	Max    int
}

func (e *HorizonError) Error() string {
	return fmt.Sprintf("forecast horizon %d out of range [%d, %d]", e.Months, e.Min, e.Max)
}

func (e *HorizonError) Is(target error) bool {
	return target == ErrHorizonOutOfRange
}

// ConfigError collects invalid configuration fields.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}
