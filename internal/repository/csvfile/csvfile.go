// Package csvfile reads the raw billing tables from flat-file exports. Each
// table is a header-first CSV named after the table, optionally compressed
// (.csv.gz, .csv.zst or .csv.br).
package csvfile

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	log "github.com/sirupsen/logrus"

	"github.com/awsl-project/billcast/internal/domain"
)

// extensions are tried in order for every table.
var extensions = []string{".csv", ".csv.gz", ".csv.zst", ".csv.br"}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Source is a directory of raw table exports.
type Source struct {
	dir    string
	tables domain.TableNames
	comma  rune
}

type Option func(*Source)

// WithComma sets the field delimiter (default ',').
func WithComma(r rune) Option {
	return func(s *Source) { s.comma = r }
}

// WithTables overrides the table file names.
func WithTables(n domain.TableNames) Option {
	return func(s *Source) { s.tables = n }
}

// Open checks that the directory exists. Files are read on LoadRawTables.
func Open(dir string, opts ...Option) (*Source, error) {
	fi, err := os.Stat(dir)
	if err != nil {
		return nil, &domain.LoadError{Source: dir, Err: err}
	}
	if !fi.IsDir() {
		return nil, &domain.LoadError{Source: dir, Err: fmt.Errorf("csvfile: %s is not a directory", dir)}
	}
	s := &Source{dir: dir, tables: domain.DefaultTableNames(), comma: ','}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *Source) Describe() string {
	return "csv:" + s.dir
}

func (s *Source) Close() error { return nil }

// MissingFiles returns the tables with no export file.
func (s *Source) MissingFiles() []string {
	var missing []string
	for _, kind := range domain.AllTables() {
		if _, ok := s.locate(s.tables.For(kind)); !ok {
			missing = append(missing, s.tables.For(kind)+".csv")
		}
	}
	return missing
}

func (s *Source) locate(table string) (string, bool) {
	for _, ext := range extensions {
		p := filepath.Join(s.dir, table+ext)
		if _, err := os.Stat(p); err == nil {
			return p, true
		}
	}
	return "", false
}

func (s *Source) LoadRawTables(ctx context.Context) (*domain.RawTables, error) {
	if missing := s.MissingFiles(); len(missing) > 0 {
		return nil, &domain.LoadError{Source: s.Describe(), Err: &domain.MissingTablesError{Tables: missing}}
	}

	var out domain.RawTables
	for _, kind := range domain.AllTables() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := s.tables.For(kind)
		path, _ := s.locate(name)
		t, err := s.readFile(name, path)
		if err != nil {
			return nil, &domain.LoadError{Source: s.Describe(), Table: name, Err: err}
		}
		out.Set(kind, t)
		log.WithFields(log.Fields{"table": name, "rows": t.Len(), "file": filepath.Base(path)}).Debug("csvfile: table read")
	}
	return &out, nil
}

func (s *Source) readFile(name, path string) (*domain.RawTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, closeFn, err := decompress(path, f)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	return Read(name, r, s.comma)
}

// decompress wraps r according to the file extension.
func decompress(path string, r io.Reader) (io.Reader, func(), error) {
	switch {
	case strings.HasSuffix(path, ".gz"):
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("csvfile: gzip: %w", err)
		}
		return zr, func() { zr.Close() }, nil
	case strings.HasSuffix(path, ".zst"):
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("csvfile: zstd: %w", err)
		}
		return zr, zr.Close, nil
	case strings.HasSuffix(path, ".br"):
		return brotli.NewReader(r), func() {}, nil
	}
	return r, func() {}, nil
}

// Read parses one header-first CSV stream into a raw table. A leading UTF-8
// BOM is ignored. An empty stream is an error.
func Read(name string, r io.Reader, comma rune) (*domain.RawTable, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("csvfile: %s has no header", name)
	}
	if err != nil {
		return nil, fmt.Errorf("csvfile: %s header: %w", name, err)
	}
	t := domain.NewRawTable(name, header)

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csvfile: %s: %w", name, err)
		}
		t.Append(rec)
	}
	return t, nil
}
