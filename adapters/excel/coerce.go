package excel

import (
	"math"
	"strconv"
	"strings"

	"github.com/AllenThomasDev/causal-webapp/domain/dataset"
)

// missingTokens are cell spellings read as an empty cell
var missingTokens = map[string]struct{}{
	"": {}, "na": {}, "n/a": {}, "nan": {}, "null": {}, "none": {}, "-": {},
}

// IsMissingToken reports whether a raw cell should be treated as missing
func IsMissingToken(cell string) bool {
	_, ok := missingTokens[strings.ToLower(strings.TrimSpace(cell))]
	return ok
}

// CoerceColumn types a raw column. A column is numeric when every present cell
// parses as a finite number, boolean when every present cell is true/false or
// yes/no, and categorical otherwise.
func CoerceColumn(name string, cells []string) *dataset.Column {
	present := 0
	numeric, boolean := true, true
	for _, cell := range cells {
		if IsMissingToken(cell) {
			continue
		}
		present++
		if numeric {
			if _, ok := parseNumeric(cell); !ok {
				numeric = false
			}
		}
		if boolean {
			if _, ok := parseBoolean(cell); !ok {
				boolean = false
			}
		}
	}

	switch {
	case present > 0 && numeric:
		values := make([]float64, len(cells))
		for i, cell := range cells {
			values[i] = math.NaN()
			if !IsMissingToken(cell) {
				values[i], _ = parseNumeric(cell)
			}
		}
		return dataset.NumericColumn(name, values)
	case present > 0 && boolean:
		values := make([]float64, len(cells))
		for i, cell := range cells {
			values[i] = math.NaN()
			if !IsMissingToken(cell) {
				if b, _ := parseBoolean(cell); b {
					values[i] = 1
				} else {
					values[i] = 0
				}
			}
		}
		return &dataset.Column{Name: name, Kind: dataset.KindBoolean, Values: values}
	default:
		labels := make([]string, len(cells))
		for i, cell := range cells {
			if !IsMissingToken(cell) {
				labels[i] = strings.TrimSpace(cell)
			}
		}
		return dataset.CategoricalColumn(name, labels)
	}
}

// parseNumeric accepts plain and scientific notation plus common accounting
// spellings: currency prefixes, thousands commas, trailing % and (123) negatives.
func parseNumeric(cell string) (float64, bool) {
	clean := strings.TrimSpace(cell)
	if clean == "" {
		return 0, false
	}

	negative := false
	if strings.HasPrefix(clean, "(") && strings.HasSuffix(clean, ")") {
		clean = strings.TrimSuffix(strings.TrimPrefix(clean, "("), ")")
		negative = true
	}
	for _, symbol := range []string{"$", "€", "£", "¥"} {
		clean = strings.TrimPrefix(clean, symbol)
	}
	clean = strings.TrimSuffix(clean, "%")
	if strings.Contains(clean, ",") && strings.Contains(clean, ".") {
		clean = strings.ReplaceAll(clean, ",", "")
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(clean), 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	if negative {
		v = -v
	}
	return v, true
}

func parseBoolean(cell string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(cell)) {
	case "true", "yes":
		return true, true
	case "false", "no":
		return false, true
	}
	return false, false
}
