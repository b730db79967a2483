package estimation

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Coefficient is one row of a regression table
type Coefficient struct {
	Name    string  `json:"name"`
	Value   float64 `json:"value"`
	StdErr  float64 `json:"std_err"`
	TStat   float64 `json:"t"`
	PValue  float64 `json:"p_value"`
	CILower float64 `json:"ci_lower"`
	CIUpper float64 `json:"ci_upper"`
}

// RegressionSummary is the weighted least squares fit of the outcome on [1, T]
type RegressionSummary struct {
	Outcome      string        `json:"outcome"`
	Scheme       string        `json:"scheme"`
	Observations int           `json:"observations"`
	DFResidual   int           `json:"df_residual"`
	RSquared     float64       `json:"r_squared"`
	Coefficients []Coefficient `json:"coefficients"`
}

// Effect returns the treatment coefficient
func (s RegressionSummary) Effect() Coefficient {
	if len(s.Coefficients) < 2 {
		return Coefficient{}
	}
	return s.Coefficients[1]
}

// Text renders the summary as a fixed-width table
func (s RegressionSummary) Text() string {
	rule := strings.Repeat("=", 78)
	thin := strings.Repeat("-", 78)

	var b strings.Builder
	b.WriteString("                            WLS Regression Results\n")
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "%-20s %-20s %-20s %14.4f\n", "Dep. Variable:", s.Outcome, "R-squared:", s.RSquared)
	fmt.Fprintf(&b, "%-20s %-20s %-20s %14d\n", "Model:", "WLS", "No. Observations:", s.Observations)
	fmt.Fprintf(&b, "%-20s %-20s %-20s %14d\n", "Weights:", s.Scheme, "Df Residuals:", s.DFResidual)
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "%-14s %10s %10s %9s %9s %11s %11s\n", "", "coef", "std err", "t", "P>|t|", "[0.025", "0.975]")
	b.WriteString(thin + "\n")
	for _, c := range s.Coefficients {
		fmt.Fprintf(&b, "%-14s %10.4f %10.4f %9.3f %9.3f %11.3f %11.3f\n",
			truncate(c.Name, 14), c.Value, c.StdErr, c.TStat, c.PValue, c.CILower, c.CIUpper)
	}
	b.WriteString(rule + "\n")
	return b.String()
}

// fitWLS regresses y on [1, t] with weights w
func fitWLS(outcome, treatment, scheme string, y, t, w []float64) (RegressionSummary, error) {
	n := len(y)
	const k = 2
	if n <= k {
		return RegressionSummary{}, fmt.Errorf("need more than %d observations, got %d", k, n)
	}

	// normal equations X'WX b = X'Wy
	xtwx := mat.NewSymDense(k, nil)
	xtwy := mat.NewVecDense(k, nil)
	var s0, s1, sy, sty float64
	for i := 0; i < n; i++ {
		s0 += w[i]
		s1 += w[i] * t[i]
		sy += w[i] * y[i]
		sty += w[i] * t[i] * y[i]
	}
	// t is 0/1 so sum w*t*t equals sum w*t
	xtwx.SetSym(0, 0, s0)
	xtwx.SetSym(0, 1, s1)
	xtwx.SetSym(1, 1, s1)
	xtwy.SetVec(0, sy)
	xtwy.SetVec(1, sty)

	var chol mat.Cholesky
	if ok := chol.Factorize(xtwx); !ok {
		return RegressionSummary{}, fmt.Errorf("weighted design is singular")
	}
	beta := mat.NewVecDense(k, nil)
	if err := chol.SolveVecTo(beta, xtwy); err != nil && !isCondition(err) {
		return RegressionSummary{}, fmt.Errorf("solve weighted normal equations: %w", err)
	}
	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil && !isCondition(err) {
		return RegressionSummary{}, fmt.Errorf("invert weighted normal equations: %w", err)
	}

	b0, b1 := beta.AtVec(0), beta.AtVec(1)
	meanY := sy / s0
	var ssr, sst float64
	for i := 0; i < n; i++ {
		r := y[i] - b0 - b1*t[i]
		ssr += w[i] * r * r
		d := y[i] - meanY
		sst += w[i] * d * d
	}

	df := n - k
	sigma2 := ssr / float64(df)
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(df)}
	crit := dist.Quantile(0.975)

	summary := RegressionSummary{
		Outcome:      outcome,
		Scheme:       scheme,
		Observations: n,
		DFResidual:   df,
	}
	if sst > 0 {
		summary.RSquared = 1 - ssr/sst
	}
	for j, name := range []string{"Intercept", treatment} {
		value := beta.AtVec(j)
		se := math.Sqrt(sigma2 * inv.At(j, j))
		c := Coefficient{Name: name, Value: value, StdErr: se}
		if se > 0 {
			c.TStat = value / se
			c.PValue = 2 * dist.Survival(math.Abs(c.TStat))
		} else {
			c.PValue = math.NaN()
		}
		c.CILower = value - crit*se
		c.CIUpper = value + crit*se
		summary.Coefficients = append(summary.Coefficients, c)
	}
	return summary, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
