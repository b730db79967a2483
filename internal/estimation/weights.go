package estimation

import (
	"fmt"

	"github.com/AllenThomasDev/causal-webapp/domain/causal"
)

// computeWeights forms inverse propensity weights under scheme. scores must already be clipped.
func computeWeights(scheme causal.WeightingScheme, treated, scores []float64) ([]float64, error) {
	n := len(treated)
	w := make([]float64, n)

	pTreated := 0.0
	for _, t := range treated {
		pTreated += t
	}
	pTreated /= float64(n)

	switch scheme {
	case causal.SchemeIPS, causal.SchemeIPSNormalized:
		for i := range w {
			if treated[i] == 1 {
				w[i] = 1 / scores[i]
			} else {
				w[i] = 1 / (1 - scores[i])
			}
		}
	case causal.SchemeIPSStabilized:
		for i := range w {
			if treated[i] == 1 {
				w[i] = pTreated / scores[i]
			} else {
				w[i] = (1 - pTreated) / (1 - scores[i])
			}
		}
	default:
		return nil, fmt.Errorf("unknown weighting scheme %q", scheme)
	}

	if scheme == causal.SchemeIPSNormalized {
		var sumT, sumC float64
		for i := range w {
			if treated[i] == 1 {
				sumT += w[i]
			} else {
				sumC += w[i]
			}
		}
		for i := range w {
			if treated[i] == 1 {
				w[i] /= sumT
			} else {
				w[i] /= sumC
			}
		}
	}
	return w, nil
}

// kishESS returns the Kish effective sample size of the weights in one arm
func kishESS(w, treated []float64, arm float64) float64 {
	var sum, sumSq float64
	for i := range w {
		if treated[i] != arm {
			continue
		}
		sum += w[i]
		sumSq += w[i] * w[i]
	}
	if sumSq == 0 {
		return 0
	}
	return sum * sum / sumSq
}
