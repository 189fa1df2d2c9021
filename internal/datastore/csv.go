package datastore

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"analysis-engine/internal/common/errors"
	"analysis-engine/internal/pipeline/core"
)

const utf8BOM = "\uFEFF"

// CSVOptions tune how CSV files are read
type CSVOptions struct {
	// Comma is the field delimiter; ',' when zero
	Comma rune
	// TrimSpace trims the spaces around every field
	TrimSpace bool
	// EmptyAsNull reads empty fields as nil
	EmptyAsNull bool
}

// CSV serves every *.csv file of a directory as a table named after the
// file, or a single file when path points to one. The first record of a
// file is its header.
type CSV struct {
	name   string
	files  map[string]string // table -> path
	tables []string
	opts   CSVOptions
}

// NewCSV scans path for CSV files
func NewCSV(name, path string, opts CSVOptions) (*CSV, error) {
	if path == "" {
		return nil, errors.ConfigError("csv datastore needs a file or directory")
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.DataSourceError("cannot read csv location", err)
	}

	var paths []string
	if info.IsDir() {
		paths, err = filepath.Glob(filepath.Join(path, "*.csv"))
		if err != nil {
			return nil, errors.DataSourceError("cannot list csv files", err)
		}
	} else {
		paths = []string{path}
	}

	if opts.Comma == 0 {
		opts.Comma = ','
	}
	if name == "" {
		name = TypeCSV
	}
	s := &CSV{name: name, files: make(map[string]string, len(paths)), opts: opts}
	for _, p := range paths {
		table := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
		s.files[table] = p
		s.tables = append(s.tables, table)
	}
	sort.Strings(s.tables)
	return s, nil
}

// Tables returns the table names found, sorted
func (s *CSV) Tables() []string { return s.tables }

func (s *CSV) Name() string { return s.name }

func (s *CSV) reader(table string) (*os.File, *csv.Reader, []string, error) {
	path, ok := s.files[table]
	if !ok {
		return nil, nil, nil, errors.NotFoundError(fmt.Sprintf("table '%s'", table))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, errors.DataSourceError("cannot open csv file", err).WithContext("table", table)
	}

	r := csv.NewReader(f)
	r.Comma = s.opts.Comma
	r.FieldsPerRecord = -1
	r.ReuseRecord = true
	r.TrimLeadingSpace = s.opts.TrimSpace

	header, err := r.Read()
	if err == io.EOF {
		return f, r, nil, nil
	}
	if err != nil {
		f.Close()
		return nil, nil, nil, errors.DataSourceError("cannot read csv header", err).WithContext("table", table)
	}
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = strings.TrimSpace(h)
	}
	if len(columns) > 0 {
		columns[0] = strings.TrimPrefix(columns[0], utf8BOM)
	}
	return f, r, columns, nil
}

func (s *CSV) Columns(_ context.Context, table string) ([]string, error) {
	f, _, columns, err := s.reader(table)
	if err != nil {
		return nil, err
	}
	f.Close()
	return columns, nil
}

// ExpectedRows is unknown; counting would read the whole file
func (s *CSV) ExpectedRows(context.Context, string) (int64, error) {
	return core.UnknownRowCount, nil
}

func (s *CSV) Open(_ context.Context, table string, columns []string) (core.RowIterator, error) {
	f, r, available, err := s.reader(table)
	if err != nil {
		return nil, err
	}
	return &csvIterator{
		file:  f,
		r:     r,
		table: table,
		idx:   columnIndex(available, columns),
		cur:   make([]interface{}, len(columns)),
		opts:  s.opts,
	}, nil
}

func (s *CSV) Close() error { return nil }

type csvIterator struct {
	file  *os.File
	r     *csv.Reader
	table string
	idx   []int
	cur   []interface{}
	opts  CSVOptions
	err   error
}

func (it *csvIterator) Next(ctx context.Context) bool {
	if it.err != nil || ctx.Err() != nil {
		return false
	}
	record, err := it.r.Read()
	if err == io.EOF {
		return false
	}
	if err != nil {
		it.err = fmt.Errorf("reading table '%s': %w", it.table, err)
		return false
	}
	for i, j := range it.idx {
		if j < 0 || j >= len(record) {
			it.cur[i] = nil
			continue
		}
		v := record[j]
		if it.opts.TrimSpace {
			v = strings.TrimSpace(v)
		}
		if v == "" && it.opts.EmptyAsNull {
			it.cur[i] = nil
		} else {
			it.cur[i] = v
		}
	}
	return true
}

func (it *csvIterator) Values() []interface{} { return it.cur }
func (it *csvIterator) Err() error            { return it.err }
func (it *csvIterator) Close() error          { return it.file.Close() }
