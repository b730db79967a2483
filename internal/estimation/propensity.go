package estimation

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

var errSingularHessian = errors.New("propensity model Hessian is not positive definite")

// logitFit is a fitted logistic regression
type logitFit struct {
	coef       []float64
	iterations int
	converged  bool
}

// fitLogit runs Newton-Raphson (IRLS) for a logistic regression of y on x with an
// L2 penalty on every coefficient except the intercept in column 0.
func fitLogit(x *mat.Dense, y []float64, ridge float64, maxIter int, tol float64) (*logitFit, error) {
	n, k := x.Dims()
	beta := mat.NewVecDense(k, nil)
	eta := mat.NewVecDense(n, nil)
	grad := mat.NewVecDense(k, nil)
	step := mat.NewVecDense(k, nil)
	hess := mat.NewSymDense(k, nil)
	mu := make([]float64, n)

	fit := &logitFit{}
	for iter := 1; iter <= maxIter; iter++ {
		fit.iterations = iter
		eta.MulVec(x, beta)

		for i := 0; i < n; i++ {
			mu[i] = clamp(sigmoid(eta.AtVec(i)), 1e-10, 1-1e-10)
		}

		for a := 0; a < k; a++ {
			g := 0.0
			for i := 0; i < n; i++ {
				g += x.At(i, a) * (y[i] - mu[i])
			}
			if a > 0 {
				g -= ridge * beta.AtVec(a)
			}
			grad.SetVec(a, g)

			for b := a; b < k; b++ {
				h := 0.0
				for i := 0; i < n; i++ {
					h += x.At(i, a) * mu[i] * (1 - mu[i]) * x.At(i, b)
				}
				if a == b && a > 0 {
					h += ridge
				}
				hess.SetSym(a, b, h)
			}
		}

		var chol mat.Cholesky
		if ok := chol.Factorize(hess); !ok {
			return nil, errSingularHessian
		}
		if err := chol.SolveVecTo(step, grad); err != nil {
			// near-singular systems still yield a usable step
			if !isCondition(err) {
				return nil, errSingularHessian
			}
		}
		// step halving keeps the penalized likelihood from decreasing
		current := penalizedLogLik(x, y, beta, ridge)
		trial := mat.NewVecDense(k, nil)
		for h := 0; h < 30; h++ {
			trial.AddVec(beta, step)
			if penalizedLogLik(x, y, trial, ridge) >= current {
				break
			}
			step.ScaleVec(0.5, step)
		}
		beta.AddVec(beta, step)

		if maxAbs(step) < tol {
			fit.converged = true
			break
		}
	}

	fit.coef = make([]float64, k)
	for j := range fit.coef {
		fit.coef[j] = beta.AtVec(j)
	}
	return fit, nil
}

// predict returns the raw (unclipped) probabilities for each row of x
func (f *logitFit) predict(x *mat.Dense) []float64 {
	n, k := x.Dims()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		eta := 0.0
		for j := 0; j < k; j++ {
			eta += x.At(i, j) * f.coef[j]
		}
		out[i] = sigmoid(eta)
	}
	return out
}

func penalizedLogLik(x *mat.Dense, y []float64, beta *mat.VecDense, ridge float64) float64 {
	n, k := x.Dims()
	ll := 0.0
	for i := 0; i < n; i++ {
		eta := 0.0
		for j := 0; j < k; j++ {
			eta += x.At(i, j) * beta.AtVec(j)
		}
		// log(1+exp(eta)) without overflow
		ll += y[i]*eta - (math.Max(eta, 0) + math.Log1p(math.Exp(-math.Abs(eta))))
	}
	for j := 1; j < k; j++ {
		ll -= 0.5 * ridge * beta.AtVec(j) * beta.AtVec(j)
	}
	return ll
}

func isCondition(err error) bool {
	var cond mat.Condition
	return errors.As(err, &cond)
}

func maxAbs(v *mat.VecDense) float64 {
	m := 0.0
	for i := 0; i < v.Len(); i++ {
		m = math.Max(m, math.Abs(v.AtVec(i)))
	}
	return m
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
