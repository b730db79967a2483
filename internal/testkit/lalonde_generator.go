package testkit

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"math/rand"

	"github.com/AllenThomasDev/causal-webapp/domain/dataset"
)

// LalondeColumns lists the generated columns in file order
var LalondeColumns = []string{"treat", "age", "educ", "black", "hispan", "married", "nodegree", "re74", "re75", "re78"}

// LalondeConfounders are the pre-treatment covariates
var LalondeConfounders = []string{"age", "educ", "black", "hispan", "married", "nodegree", "re74", "re75"}

// LalondeGeneratorConfig configures the job-training data generator
type LalondeGeneratorConfig struct {
	Rows int `json:"rows"`
	// Effect is the true average treatment effect on re78, in dollars
	Effect float64 `json:"effect"`
	// MissingRate blanks that share of re75 cells
	MissingRate float64 `json:"missing_rate"`
	Seed        int64   `json:"seed"`
}

// DefaultLalondeConfig mirrors the size of the classic NSW/PSID sample
func DefaultLalondeConfig() LalondeGeneratorConfig {
	return LalondeGeneratorConfig{
		Rows:   614,
		Effect: 1500,
		Seed:   42,
	}
}

// LalondeDataGenerator generates a job-training evaluation sample with confounded assignment
type LalondeDataGenerator struct {
	config LalondeGeneratorConfig
	rng    *rand.Rand
}

// NewLalondeDataGenerator creates a new generator
func NewLalondeDataGenerator(config LalondeGeneratorConfig) *LalondeDataGenerator {
	return &LalondeDataGenerator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
}

// Generate builds the dataset. The same config always yields the same table.
func (g *LalondeDataGenerator) Generate() (*dataset.Dataset, error) {
	n := g.config.Rows
	cols := make(map[string][]float64, len(LalondeColumns))
	for _, c := range LalondeColumns {
		cols[c] = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		age := float64(17 + g.rng.Intn(38))
		educ := math.Max(3, math.Min(17, math.Round(10+2.5*g.rng.NormFloat64())))
		black := g.bernoulli(0.4)
		hispan := 0.0
		if black == 0 {
			hispan = g.bernoulli(0.15)
		}
		married := g.bernoulli(0.2 + 0.01*(age-17))
		nodegree := 0.0
		if educ < 12 {
			nodegree = 1
		}
		re74 := g.earnings(0.45, 2000+150*(educ-10))
		re75 := g.earnings(0.4, 0.6*re74+1500)

		// assignment leans on race, marital status and prior earnings
		logit := -1.3 + 1.6*black - 0.9*married - 0.00008*re74 + 0.02*(age-27)
		treat := g.bernoulli(1 / (1 + math.Exp(-logit)))

		re78 := 3000 + 0.7*re75 + 180*(educ-10) - 900*married + g.config.Effect*treat + 3500*g.rng.NormFloat64()
		re78 = math.Max(0, re78)

		cols["treat"][i] = treat
		cols["age"][i] = age
		cols["educ"][i] = educ
		cols["black"][i] = black
		cols["hispan"][i] = hispan
		cols["married"][i] = married
		cols["nodegree"][i] = nodegree
		cols["re74"][i] = round2(re74)
		cols["re75"][i] = round2(re75)
		cols["re78"][i] = round2(re78)
	}

	if g.config.MissingRate > 0 {
		for i := 0; i < n; i++ {
			if g.rng.Float64() < g.config.MissingRate {
				cols["re75"][i] = math.NaN()
			}
		}
	}

	columns := make([]*dataset.Column, len(LalondeColumns))
	for j, c := range LalondeColumns {
		columns[j] = dataset.NumericColumn(c, cols[c])
	}
	return dataset.New("lalonde", columns...)
}

// WriteCSV writes ds as comma-separated text with a header row. Missing cells are left empty.
func WriteCSV(w io.Writer, ds *dataset.Dataset) error {
	cw := csv.NewWriter(w)
	names := ds.ColumnNames()
	if err := cw.Write(names); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	record := make([]string, len(names))
	for i := 0; i < ds.Rows(); i++ {
		for j, name := range names {
			col, _ := ds.Column(name)
			record[j] = col.Label(i)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func (g *LalondeDataGenerator) bernoulli(p float64) float64 {
	if g.rng.Float64() < p {
		return 1
	}
	return 0
}

// earnings is zero with probability pZero, otherwise a skewed positive draw around mean
func (g *LalondeDataGenerator) earnings(pZero, mean float64) float64 {
	if g.rng.Float64() < pZero {
		return 0
	}
	return math.Max(0, mean*g.rng.ExpFloat64())
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
