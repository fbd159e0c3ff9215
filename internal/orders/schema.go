package orders

import (
	"context"
	"strings"
	"sync"
	"unicode"
)

// Style is the column naming convention of the live orders table.
type Style int

const (
	StyleCompact   Style = iota // downPayment
	StyleSegmented              // down_payment
)

func (s Style) String() string {
	if s == StyleSegmented {
		return "segmented"
	}
	return "compact"
}

// Column names the field called compact, e.g. "installmentValue", under s.
func (s Style) Column(compact string) string {
	if n, ok := neutralColumns[compact]; ok {
		return n
	}
	if s == StyleSegmented {
		return segmentedName(compact)
	}
	return compact
}

func segmentedName(compact string) string {
	var b strings.Builder
	for i, r := range compact {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Columns is the set of column names present in the live schema.
type Columns map[string]struct{}

func ColumnsOf(row Row) Columns {
	if len(row) == 0 {
		return nil
	}
	cols := make(Columns, len(row))
	for k := range row {
		cols[k] = struct{}{}
	}
	return cols
}

func (c Columns) Has(name string) bool {
	_, ok := c[name]
	return ok
}

type RowSampler interface {
	// SampleRow returns any single row of the orders table, or nil when empty.
	SampleRow(ctx context.Context) (Row, error)
}

// Bookkeeping columns are snake_case under both conventions, so they say
// nothing about the style.
var neutralColumns = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
}

func isNeutralColumn(name string) bool {
	for _, n := range neutralColumns {
		if n == name {
			return true
		}
	}
	return false
}

// StyleDetector decides the naming convention once per process.
type StyleDetector struct {
	sampler RowSampler

	mu       sync.Mutex
	detected bool
	style    Style
	columns  Columns
}

func NewStyleDetector(sampler RowSampler) *StyleDetector {
	return &StyleDetector{sampler: sampler}
}

// Detect samples one row on first use. An empty table is compact. Sampling
// errors are returned and not memoized.
func (d *StyleDetector) Detect(ctx context.Context) (Style, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.detected {
		return d.style, nil
	}
	row, err := d.sampler.SampleRow(ctx)
	if err != nil {
		return StyleCompact, err
	}
	d.style = StyleOf(row)
	d.columns = ColumnsOf(row)
	d.detected = true
	return d.style, nil
}

// KnownColumns is the column set seen by the detection sample; nil before
// Detect succeeds or when the table was empty.
func (d *StyleDetector) KnownColumns() Columns {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.columns
}

// StyleOf classifies a sampled row.
func StyleOf(row Row) Style {
	for k := range row {
		if isNeutralColumn(k) {
			continue
		}
		if strings.Contains(k, "_") {
			return StyleSegmented
		}
	}
	return StyleCompact
}

// Columns samples the live schema. It returns nil when the sample fails or
// the table is empty, which leaves payloads unfiltered.
func (d *StyleDetector) Columns(ctx context.Context) Columns {
	row, err := d.sampler.SampleRow(ctx)
	if err != nil {
		return nil
	}
	return ColumnsOf(row)
}
