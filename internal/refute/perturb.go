package refute

import (
	"fmt"
	"sort"

	"github.com/AllenThomasDev/causal-webapp/domain/dataset"
	"github.com/AllenThomasDev/causal-webapp/internal/estimation"
)

// randSource is the subset of *rand.Rand the perturbations draw from
type randSource interface {
	NormFloat64() float64
	Perm(n int) []int
}

func addRandomCommonCause(rng randSource, ident estimation.IdentificationResult, ds *dataset.Dataset) (estimation.IdentificationResult, *dataset.Dataset, error) {
	name := RandomCommonCauseColumn
	for i := 1; ds.Has(name); i++ {
		name = fmt.Sprintf("%s_%d", RandomCommonCauseColumn, i)
	}

	values := make([]float64, ds.Rows())
	for i := range values {
		values[i] = rng.NormFloat64()
	}
	out, err := ds.WithColumn(dataset.NumericColumn(name, values))
	if err != nil {
		return ident, nil, err
	}
	return ident.WithAdjustment(name), out, nil
}

func permuteTreatment(rng randSource, ident estimation.IdentificationResult, ds *dataset.Dataset) (estimation.IdentificationResult, *dataset.Dataset, error) {
	col, ok := ds.Column(ident.Treatment)
	if !ok {
		return ident, nil, fmt.Errorf("treatment column %q not found", ident.Treatment)
	}

	perm := rng.Perm(ds.Rows())
	placebo := &dataset.Column{Name: col.Name, Kind: col.Kind}
	if col.Kind.IsNumeric() {
		placebo.Values = make([]float64, len(perm))
		for i, j := range perm {
			placebo.Values[i] = col.Values[j]
		}
	} else {
		placebo.Labels = make([]string, len(perm))
		for i, j := range perm {
			placebo.Labels[i] = col.Labels[j]
		}
	}
	out, err := ds.WithColumn(placebo)
	if err != nil {
		return ident, nil, err
	}
	return ident, out, nil
}

func subsetRows(fraction float64) simulation {
	return func(rng randSource, ident estimation.IdentificationResult, ds *dataset.Dataset) (estimation.IdentificationResult, *dataset.Dataset, error) {
		size := int(fraction * float64(ds.Rows()))
		rows := rng.Perm(ds.Rows())[:size]
		sort.Ints(rows)
		return ident, ds.SelectRows(rows), nil
	}
}
