// Package institutions reads the table of institutions a coverage run
// starts from.
package institutions

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/openaire-nl/nl-stats/model"
	"github.com/openaire-nl/nl-stats/util"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

// Columns names the input columns mapped onto model.Institution.
type Columns struct {
	ID         string
	Name       string
	Acronym    string
	AcronymAgg string
	Group      string
}

// DefaultColumns returns the column names of the institutions table.
func DefaultColumns() Columns {
	return Columns{
		ID:         "ROR_LINK",
		Name:       "full_name_in_English",
		Acronym:    "acronym_EN",
		AcronymAgg: "acronym_AGG",
		Group:      "main_grouping",
	}
}

// Options controls how a table is read.
type Options struct {
	Columns Columns
	// Dedupe drops rows whose identifier was already seen, keeping the first.
	Dedupe bool
	// Delimiter is the field separator. Zero means sniff it from the header
	// line (comma unless the header only contains semicolons or tabs).
	Delimiter rune
}

// Table is the result of loading an institutions file.
type Table struct {
	Institutions []model.Institution
	// Duplicates is the number of rows dropped by deduplication.
	Duplicates int
	// MissingColumns lists expected columns absent from the header.
	MissingColumns []string
	// DedupeSkipped is set when deduplication was requested but the
	// identifier column is missing.
	DedupeSkipped bool
}

// ErrEmpty is returned for input without a header line.
var ErrEmpty = errors.New("institutions table is empty")

// Loader reads institution tables.
type Loader struct {
	opts   Options
	logger *zap.Logger
}

// NewLoader creates a loader. Empty column names in opts fall back to
// DefaultColumns.
func NewLoader(opts Options, logger *zap.Logger) *Loader {
	def := DefaultColumns()
	opts.Columns.ID = util.FirstNonEmpty(opts.Columns.ID, def.ID)
	opts.Columns.Name = util.FirstNonEmpty(opts.Columns.Name, def.Name)
	opts.Columns.Acronym = util.FirstNonEmpty(opts.Columns.Acronym, def.Acronym)
	opts.Columns.AcronymAgg = util.FirstNonEmpty(opts.Columns.AcronymAgg, def.AcronymAgg)
	opts.Columns.Group = util.FirstNonEmpty(opts.Columns.Group, def.Group)
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{opts: opts, logger: logger}
}

// LoadFile reads the table at path.
func (l *Loader) LoadFile(path string) (*Table, error) {
	l.logger.Info("Loading institutions", zap.String("file", path))

	f, err := os.Open(path) // #nosec G304 -- path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("open institutions file: %w", err)
	}
	defer f.Close()

	table, err := l.Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return table, nil
}

// Load reads a table from r. A missing identifier column is not an error:
// it is reported in the returned Table and deduplication is skipped.
func (l *Loader) Load(r io.Reader) (*Table, error) {
	br := bufio.NewReader(r)
	skipBOM(br)

	delim := l.opts.Delimiter
	if delim == 0 {
		delim = sniffDelimiter(br)
	}

	cr := csv.NewReader(br)
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		h = clean(h)
		if _, dup := index[h]; !dup {
			index[h] = i
		}
	}

	cols := l.opts.Columns
	table := &Table{}
	for _, name := range []string{cols.ID, cols.Name} {
		if _, ok := index[name]; !ok {
			table.MissingColumns = append(table.MissingColumns, name)
		}
	}

	_, hasID := index[cols.ID]
	if !hasID {
		l.logger.Warn("Identifier column not found in institutions table", zap.String("column", cols.ID))
	}
	dedupe := l.opts.Dedupe && hasID
	if l.opts.Dedupe && !hasID {
		table.DedupeSkipped = true
		l.logger.Warn("Deduplication skipped", zap.String("column", cols.ID))
	}

	seen := make(map[string]bool)
	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}
		if blank(record) {
			continue
		}

		field := func(name string) string {
			i, ok := index[name]
			if !ok || i >= len(record) {
				return ""
			}
			return clean(record[i])
		}

		inst := model.Institution{
			ID:         util.NormalizePID(field(cols.ID)),
			Name:       field(cols.Name),
			Acronym:    field(cols.Acronym),
			AcronymAgg: field(cols.AcronymAgg),
			Group:      field(cols.Group),
			Line:       line,
		}

		if dedupe {
			if seen[inst.ID] {
				table.Duplicates++
				continue
			}
			seen[inst.ID] = true
		}

		table.Institutions = append(table.Institutions, inst)
	}

	if dedupe {
		l.logger.Info("Duplicates removed", zap.String("column", cols.ID), zap.Int("removed", table.Duplicates))
	}
	l.logger.Info("Institutions loaded", zap.Int("count", len(table.Institutions)))

	return table, nil
}

func clean(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func blank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func skipBOM(br *bufio.Reader) {
	if b, err := br.Peek(3); err == nil && bytes.Equal(b, []byte{0xEF, 0xBB, 0xBF}) {
		_, _ = br.Discard(3)
	}
}

func sniffDelimiter(br *bufio.Reader) rune {
	peek, _ := br.Peek(4096)
	if i := bytes.IndexByte(peek, '\n'); i >= 0 {
		peek = peek[:i]
	}
	header := string(peek)

	if strings.Contains(header, ",") {
		return ','
	}
	if strings.Contains(header, ";") {
		return ';'
	}
	if strings.Contains(header, "\t") {
		return '\t'
	}
	return ','
}
