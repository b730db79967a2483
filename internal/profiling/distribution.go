package profiling

import (
	"math"

	"github.com/montanaflynn/stats"
)

// NumericSummary holds summary statistics of the present values of a numeric column
type NumericSummary struct {
	Mean     float64 `json:"mean"`
	StdDev   float64 `json:"std_dev"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Median   float64 `json:"median"`
	Q25      float64 `json:"q25"`
	Q75      float64 `json:"q75"`
	Skewness float64 `json:"skewness"`
	Kurtosis float64 `json:"kurtosis"`
	Outliers int     `json:"outliers"`
}

// Range returns Max - Min
func (s NumericSummary) Range() float64 { return s.Max - s.Min }

// Summarize computes summary statistics; data must be non-empty and free of NaN
func Summarize(data []float64) (NumericSummary, error) {
	var summary NumericSummary

	mean, err := stats.Mean(data)
	if err != nil {
		return summary, err
	}

	stdDev, err := stats.StandardDeviationSample(data)
	if err != nil || math.IsNaN(stdDev) {
		stdDev = 0
	}

	min, err := stats.Min(data)
	if err != nil {
		return summary, err
	}

	max, err := stats.Max(data)
	if err != nil {
		return summary, err
	}

	median, err := stats.Median(data)
	if err != nil {
		return summary, err
	}

	// Quartiles for IQR-based outlier detection
	q25, q75 := median, median
	if len(data) > 1 {
		quartiles, err := stats.Quartile(data)
		if err != nil {
			return summary, err
		}
		q25, q75 = quartiles.Q1, quartiles.Q3
	}

	summary = NumericSummary{
		Mean:     mean,
		StdDev:   stdDev,
		Min:      min,
		Max:      max,
		Median:   median,
		Q25:      q25,
		Q75:      q75,
		Skewness: calculateSkewness(data, mean, stdDev),
		Kurtosis: calculateKurtosis(data, mean, stdDev),
		Outliers: detectOutliers(data, q25, q75),
	}
	return summary, nil
}

// calculateSkewness computes sample skewness using the adjusted Fisher-Pearson coefficient
func calculateSkewness(data []float64, mean, stdDev float64) float64 {
	if len(data) < 3 || stdDev == 0 {
		return 0
	}

	n := float64(len(data))
	sumCubedDeviations := 0.0
	for _, x := range data {
		deviation := (x - mean) / stdDev
		sumCubedDeviations += deviation * deviation * deviation
	}

	skewness := sumCubedDeviations / n
	return skewness * math.Sqrt(n*(n-1)) / (n - 2)
}

// calculateKurtosis computes sample excess kurtosis
func calculateKurtosis(data []float64, mean, stdDev float64) float64 {
	if len(data) < 4 || stdDev == 0 {
		return 0
	}

	n := float64(len(data))
	sumFourthDeviations := 0.0
	for _, x := range data {
		deviation := (x - mean) / stdDev
		sumFourthDeviations += deviation * deviation * deviation * deviation
	}

	excess := sumFourthDeviations/n - 3
	correction := (n - 1) / ((n - 2) * (n - 3))
	return excess*correction + 6/(n+1)
}

// detectOutliers counts values outside the 1.5 IQR fences
func detectOutliers(data []float64, q25, q75 float64) int {
	iqr := q75 - q25
	lowerBound := q25 - 1.5*iqr
	upperBound := q75 + 1.5*iqr

	outlierCount := 0
	for _, x := range data {
		if x < lowerBound || x > upperBound {
			outlierCount++
		}
	}
	return outlierCount
}
