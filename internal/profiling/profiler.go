package profiling

import (
	"fmt"
	"sort"
	"strings"

	"github.com/AllenThomasDev/causal-webapp/domain/dataset"
)

// ColumnProfile summarises one column for the profile command and the role prompt
type ColumnProfile struct {
	Name      string             `json:"name"`
	Kind      dataset.ColumnKind `json:"kind"`
	Rows      int                `json:"rows"`
	Missing   int                `json:"missing"`
	Distinct  int                `json:"distinct"`
	Summary   *NumericSummary    `json:"summary,omitempty"`
	TopLevels []LevelCount       `json:"top_levels,omitempty"`
}

// LevelCount is the frequency of one category label
type LevelCount struct {
	Level string `json:"level"`
	Count int    `json:"count"`
}

// IsBinary reports whether the column holds exactly two distinct values
func (p ColumnProfile) IsBinary() bool { return p.Distinct == 2 }

// Describe renders a one-line description such as "age (numeric, 43 distinct, mean 25.37)"
func (p ColumnProfile) Describe() string {
	parts := []string{string(p.Kind), fmt.Sprintf("%d distinct", p.Distinct)}
	if p.Summary != nil && p.Distinct > 2 {
		parts = append(parts, fmt.Sprintf("mean %.4g", p.Summary.Mean))
	}
	if p.Missing > 0 {
		parts = append(parts, fmt.Sprintf("%d missing", p.Missing))
	}
	return fmt.Sprintf("%s (%s)", p.Name, strings.Join(parts, ", "))
}

// DataProfiler computes column profiles
type DataProfiler struct {
	maxLevels int
}

// NewDataProfiler creates a profiler reporting up to five top levels per categorical column
func NewDataProfiler() *DataProfiler {
	return &DataProfiler{maxLevels: 5}
}

// ProfileColumn computes the profile of a single column
func (dp *DataProfiler) ProfileColumn(col *dataset.Column) ColumnProfile {
	profile := ColumnProfile{Name: col.Name, Kind: col.Kind, Rows: col.Len()}

	counts := make(map[string]int)
	present := make([]float64, 0, col.Len())
	for i := 0; i < col.Len(); i++ {
		if col.IsMissing(i) {
			profile.Missing++
			continue
		}
		counts[col.Label(i)]++
		if col.Kind.IsNumeric() {
			present = append(present, col.Values[i])
		}
	}
	profile.Distinct = len(counts)

	if col.Kind.IsNumeric() {
		if summary, err := Summarize(present); err == nil {
			profile.Summary = &summary
		}
	}
	if col.Kind != dataset.KindNumeric || profile.Distinct <= dp.maxLevels {
		profile.TopLevels = topLevels(counts, dp.maxLevels)
	}
	return profile
}

// ProfileDataset analyzes all columns in file order
func (dp *DataProfiler) ProfileDataset(ds *dataset.Dataset) []ColumnProfile {
	names := ds.ColumnNames()
	results := make([]ColumnProfile, 0, len(names))
	for _, name := range names {
		col, _ := ds.Column(name)
		results = append(results, dp.ProfileColumn(col))
	}
	return results
}

func topLevels(counts map[string]int, limit int) []LevelCount {
	out := make([]LevelCount, 0, len(counts))
	for level, n := range counts {
		out = append(out, LevelCount{Level: level, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Level < out[j].Level
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
