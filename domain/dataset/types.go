package dataset

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// ColumnKind describes how a column's cells were typed at ingestion
type ColumnKind string

const (
	KindNumeric     ColumnKind = "numeric"
	KindBoolean     ColumnKind = "boolean"
	KindCategorical ColumnKind = "categorical"
)

// IsNumeric reports whether the column is stored as float64 values
func (k ColumnKind) IsNumeric() bool {
	return k == KindNumeric || k == KindBoolean
}

// Column is a single named, typed column. Numeric and boolean columns use
// Values (NaN marks a missing cell), categorical columns use Labels ("" is missing).
type Column struct {
	Name   string
	Kind   ColumnKind
	Values []float64
	Labels []string
}

// Len returns the number of cells in the column
func (c *Column) Len() int {
	if c.Kind.IsNumeric() {
		return len(c.Values)
	}
	return len(c.Labels)
}

// IsMissing reports whether row i holds no value
func (c *Column) IsMissing(i int) bool {
	if c.Kind.IsNumeric() {
		return math.IsNaN(c.Values[i])
	}
	return c.Labels[i] == ""
}

// Label returns row i rendered as a category label
func (c *Column) Label(i int) string {
	if !c.Kind.IsNumeric() {
		return c.Labels[i]
	}
	v := c.Values[i]
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Levels returns the distinct non-missing labels in sorted order. Numeric
// columns are ordered by value, categorical ones lexicographically.
func (c *Column) Levels() []string {
	if c.Kind.IsNumeric() {
		seen := make(map[float64]struct{})
		var vals []float64
		for _, v := range c.Values {
			if math.IsNaN(v) {
				continue
			}
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			vals = append(vals, v)
		}
		sort.Float64s(vals)
		out := make([]string, len(vals))
		for i, v := range vals {
			out[i] = strconv.FormatFloat(v, 'f', -1, 64)
		}
		return out
	}

	seen := make(map[string]struct{})
	var out []string
	for _, l := range c.Labels {
		if l == "" {
			continue
		}
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Dataset is a read-only table of named columns with a shared row count
type Dataset struct {
	Name    string
	columns []*Column
	index   map[string]int
	rows    int
}

// New assembles a dataset from columns. All columns must have the same length
// and unique, non-empty names.
func New(name string, columns ...*Column) (*Dataset, error) {
	ds := &Dataset{
		Name:    name,
		columns: make([]*Column, 0, len(columns)),
		index:   make(map[string]int, len(columns)),
	}
	for i, col := range columns {
		if col == nil {
			return nil, fmt.Errorf("column %d is nil", i)
		}
		if strings.TrimSpace(col.Name) == "" {
			return nil, fmt.Errorf("column %d has an empty name", i)
		}
		if _, dup := ds.index[col.Name]; dup {
			return nil, fmt.Errorf("duplicate column name %q", col.Name)
		}
		if i == 0 {
			ds.rows = col.Len()
		} else if col.Len() != ds.rows {
			return nil, fmt.Errorf("column %q has %d rows, expected %d", col.Name, col.Len(), ds.rows)
		}
		ds.index[col.Name] = len(ds.columns)
		ds.columns = append(ds.columns, col)
	}
	return ds, nil
}

// NumericColumn is a convenience constructor for numeric columns
func NumericColumn(name string, values []float64) *Column {
	return &Column{Name: name, Kind: KindNumeric, Values: values}
}

// BooleanColumn builds a 0/1 column
func BooleanColumn(name string, values []bool) *Column {
	out := make([]float64, len(values))
	for i, v := range values {
		if v {
			out[i] = 1
		}
	}
	return &Column{Name: name, Kind: KindBoolean, Values: out}
}

// CategoricalColumn is a convenience constructor for categorical columns
func CategoricalColumn(name string, labels []string) *Column {
	return &Column{Name: name, Kind: KindCategorical, Labels: labels}
}

// Rows returns the number of rows
func (d *Dataset) Rows() int { return d.rows }

// ColumnNames returns column names in file order
func (d *Dataset) ColumnNames() []string {
	out := make([]string, len(d.columns))
	for i, c := range d.columns {
		out[i] = c.Name
	}
	return out
}

// ColumnSet returns the column names as a membership set
func (d *Dataset) ColumnSet() map[string]struct{} {
	out := make(map[string]struct{}, len(d.columns))
	for _, c := range d.columns {
		out[c.Name] = struct{}{}
	}
	return out
}

// Column looks up a column by exact name
func (d *Dataset) Column(name string) (*Column, bool) {
	i, ok := d.index[name]
	if !ok {
		return nil, false
	}
	return d.columns[i], true
}

// ColumnIndex returns the position of a column by exact name
func (d *Dataset) ColumnIndex(name string) (int, bool) {
	i, ok := d.index[name]
	return i, ok
}

// Has reports whether the dataset holds a column with this exact name
func (d *Dataset) Has(name string) bool {
	_, ok := d.index[name]
	return ok
}

// WithColumn returns a new dataset with col appended (or replacing a column of
// the same name). The receiver is left untouched.
func (d *Dataset) WithColumn(col *Column) (*Dataset, error) {
	cols := make([]*Column, 0, len(d.columns)+1)
	replaced := false
	for _, c := range d.columns {
		if c.Name == col.Name {
			cols = append(cols, col)
			replaced = true
			continue
		}
		cols = append(cols, c)
	}
	if !replaced {
		cols = append(cols, col)
	}
	return New(d.Name, cols...)
}

// SelectRows returns a new dataset restricted to the given row indices, in order
func (d *Dataset) SelectRows(rows []int) *Dataset {
	cols := make([]*Column, len(d.columns))
	for ci, c := range d.columns {
		nc := &Column{Name: c.Name, Kind: c.Kind}
		if c.Kind.IsNumeric() {
			nc.Values = make([]float64, len(rows))
			for i, r := range rows {
				nc.Values[i] = c.Values[r]
			}
		} else {
			nc.Labels = make([]string, len(rows))
			for i, r := range rows {
				nc.Labels[i] = c.Labels[r]
			}
		}
		cols[ci] = nc
	}
	out := &Dataset{
		Name:    d.Name,
		columns: cols,
		index:   make(map[string]int, len(cols)),
		rows:    len(rows),
	}
	for i, c := range cols {
		out.index[c.Name] = i
	}
	return out
}

// CompleteRows returns the indices of rows with no missing value in any of the named columns
func (d *Dataset) CompleteRows(names ...string) ([]int, error) {
	cols := make([]*Column, 0, len(names))
	for _, n := range names {
		c, ok := d.Column(n)
		if !ok {
			return nil, fmt.Errorf("column %q not found", n)
		}
		cols = append(cols, c)
	}
	out := make([]int, 0, d.rows)
	for i := 0; i < d.rows; i++ {
		complete := true
		for _, c := range cols {
			if c.IsMissing(i) {
				complete = false
				break
			}
		}
		if complete {
			out = append(out, i)
		}
	}
	return out, nil
}
