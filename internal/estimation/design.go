package estimation

import (
	"fmt"
	"math"

	"github.com/AllenThomasDev/causal-webapp/domain/core"
	"github.com/AllenThomasDev/causal-webapp/domain/dataset"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// designData is the complete-case view of a dataset prepared for weighting
type designData struct {
	rows         []int
	dropped      int
	treated      []float64
	outcome      []float64
	treatedLevel string
	controlLevel string
	x            *mat.Dense
	features     []string
	droppedCols  []string
	warnings     []string
}

// prepareDesign applies listwise deletion, encodes the treatment and builds the
// propensity design matrix: intercept, standardized numerics and one-hot categoricals.
func prepareDesign(ds *dataset.Dataset, treatment, outcome string, adjustment []string) (*designData, error) {
	used := append([]string{treatment, outcome}, adjustment...)
	var missing []string
	for _, name := range used {
		if !ds.Has(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, core.NewUnknownColumnError(missing)
	}

	rows, err := ds.CompleteRows(used...)
	if err != nil {
		return nil, err
	}
	d := &designData{rows: rows, dropped: ds.Rows() - len(rows)}
	if d.dropped > 0 {
		d.warnings = append(d.warnings, fmt.Sprintf("dropped %d of %d rows with missing values", d.dropped, ds.Rows()))
	}
	if len(rows) == 0 {
		return nil, core.NewDegenerateWeightsError("no complete rows remain after removing missing values")
	}

	tcol, _ := ds.Column(treatment)
	if err := d.encodeTreatment(tcol); err != nil {
		return nil, err
	}

	ycol, _ := ds.Column(outcome)
	if !ycol.Kind.IsNumeric() {
		return nil, core.NewTypeMismatchError(outcome, "numeric outcome", string(ycol.Kind))
	}
	d.outcome = make([]float64, len(rows))
	for i, r := range rows {
		d.outcome[i] = ycol.Values[r]
	}

	var feats [][]float64
	for _, name := range adjustment {
		col, _ := ds.Column(name)
		names, values := d.encodeFeature(col)
		d.features = append(d.features, names...)
		feats = append(feats, values...)
	}

	n, k := len(rows), len(feats)+1
	d.x = mat.NewDense(n, k, nil)
	for i := 0; i < n; i++ {
		d.x.Set(i, 0, 1)
		for j, f := range feats {
			d.x.Set(i, j+1, f[i])
		}
	}
	return d, nil
}

func (d *designData) encodeTreatment(col *dataset.Column) error {
	sub := selectColumn(col, d.rows)
	levels := sub.Levels()
	switch {
	case len(levels) > 2:
		return fmt.Errorf("%w: %q has %d levels, expected a binary column", core.ErrUnsupportedTreatment, col.Name, len(levels))
	case len(levels) < 2:
		return core.NewDegenerateWeightsError(fmt.Sprintf("treatment %q has a single level, one arm is empty", col.Name))
	}
	d.controlLevel, d.treatedLevel = levels[0], levels[1]

	d.treated = make([]float64, len(d.rows))
	for i := range d.rows {
		if sub.Label(i) == d.treatedLevel {
			d.treated[i] = 1
		}
	}
	return nil
}

func (d *designData) encodeFeature(col *dataset.Column) ([]string, [][]float64) {
	sub := selectColumn(col, d.rows)

	if col.Kind.IsNumeric() {
		mean, std := stat.MeanStdDev(sub.Values, nil)
		if !(std > 0) || math.IsNaN(std) {
			d.dropConstant(col.Name)
			return nil, nil
		}
		out := make([]float64, len(sub.Values))
		for i, v := range sub.Values {
			out[i] = (v - mean) / std
		}
		return []string{col.Name}, [][]float64{out}
	}

	levels := sub.Levels()
	if len(levels) < 2 {
		d.dropConstant(col.Name)
		return nil, nil
	}
	names := make([]string, 0, len(levels)-1)
	values := make([][]float64, 0, len(levels)-1)
	for _, level := range levels[1:] {
		dummy := make([]float64, len(sub.Labels))
		for i, l := range sub.Labels {
			if l == level {
				dummy[i] = 1
			}
		}
		names = append(names, col.Name+"="+level)
		values = append(values, dummy)
	}
	return names, values
}

func (d *designData) dropConstant(name string) {
	d.droppedCols = append(d.droppedCols, name)
	d.warnings = append(d.warnings, fmt.Sprintf("confounder %s is constant on the complete rows and was left out of the propensity model", name))
}

func selectColumn(col *dataset.Column, rows []int) *dataset.Column {
	out := &dataset.Column{Name: col.Name, Kind: col.Kind}
	if col.Kind.IsNumeric() {
		out.Values = make([]float64, len(rows))
		for i, r := range rows {
			out.Values[i] = col.Values[r]
		}
		return out
	}
	out.Labels = make([]string, len(rows))
	for i, r := range rows {
		out.Labels[i] = col.Labels[r]
	}
	return out
}
