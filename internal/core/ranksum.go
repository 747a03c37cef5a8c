package core

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"

	"immunocore/pkg/domain"
)

// exactRankSumLimit is the largest smaller-sample size for which the exact
// null distribution of U is used when there are no ties.
const exactRankSumLimit = 8

var errEmptyRankSample = errors.New("rank-sum: both samples must be non-empty")

// MannWhitneyU runs a two-sided Mann-Whitney U (Wilcoxon rank-sum) test of x
// against y. U is reported for x. Without ties and with the smaller sample
// at most exactRankSumLimit the exact null distribution is used; otherwise a
// normal approximation with tie and continuity correction.
func MannWhitneyU(x, y []float64) (domain.RankSumResult, error) {
	n1, n2 := len(x), len(y)
	if n1 == 0 || n2 == 0 {
		return domain.RankSumResult{}, errEmptyRankSample
	}
	ranks, tieTerm, err := midRanks(x, y)
	if err != nil {
		return domain.RankSumResult{}, err
	}
	var r1 float64
	for _, r := range ranks[:n1] {
		r1 += r
	}
	fn1, fn2 := float64(n1), float64(n2)
	u1 := r1 - fn1*(fn1+1)/2
	u2 := fn1*fn2 - u1
	big := math.Max(u1, u2)

	if tieTerm == 0 && (n1 <= exactRankSumLimit || n2 <= exactRankSumLimit) {
		p := 2 * exactUpperTail(n1, n2, int(math.Round(big)))
		return domain.RankSumResult{U: u1, PValue: clampUnit(p), Method: domain.RankSumExact}, nil
	}

	n := fn1 + fn2
	sigma := math.Sqrt(fn1 * fn2 / 12 * ((n + 1) - tieTerm/(n*(n-1))))
	if sigma == 0 {
		return domain.RankSumResult{U: u1, PValue: 1, Method: domain.RankSumAsymptotic}, nil
	}
	z := (big - fn1*fn2/2 - 0.5) / sigma
	p := 2 * distuv.UnitNormal.Survival(z)
	return domain.RankSumResult{U: u1, PValue: clampUnit(p), Method: domain.RankSumAsymptotic}, nil
}

// midRanks ranks the pooled samples (x first, then y), assigning tied values
// the mean of their positions. tieTerm is the sum of t^3-t over tie groups.
func midRanks(x, y []float64) (ranks []float64, tieTerm float64, err error) {
	type entry struct {
		value float64
		idx   int
	}
	pooled := make([]entry, 0, len(x)+len(y))
	for i, v := range x {
		pooled = append(pooled, entry{value: v, idx: i})
	}
	for i, v := range y {
		pooled = append(pooled, entry{value: v, idx: len(x) + i})
	}
	for _, e := range pooled {
		if math.IsNaN(e.value) {
			return nil, 0, errors.New("rank-sum: NaN observation")
		}
	}
	sort.SliceStable(pooled, func(i, j int) bool { return pooled[i].value < pooled[j].value })

	ranks = make([]float64, len(pooled))
	for i := 0; i < len(pooled); {
		j := i
		for j < len(pooled) && pooled[j].value == pooled[i].value {
			j++
		}
		avg := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			ranks[pooled[k].idx] = avg
		}
		if t := float64(j - i); t > 1 {
			tieTerm += t*t*t - t
		}
		i = j
	}
	return ranks, tieTerm, nil
}

// exactUpperTail returns P(U >= k) under the null hypothesis for sample
// sizes n1 and n2 without ties.
func exactUpperTail(n1, n2, k int) float64 {
	freq := rankSumFrequencies(n1, n2)
	var total, tail float64
	for u, c := range freq {
		total += c
		if u >= k {
			tail += c
		}
	}
	return tail / total
}

// rankSumFrequencies counts the arrangements yielding each value of U. The
// counts are the coefficients of the Gaussian binomial [n1+n2 choose m]_q
// with m the smaller size, built one factor at a time.
func rankSumFrequencies(n1, n2 int) []float64 {
	m, n := n1, n2
	if m > n {
		m, n = n, m
	}
	poly := []float64{1}
	for i := 1; i <= m; i++ {
		shift := n + i
		next := make([]float64, len(poly)+shift)
		for k, c := range poly {
			next[k] += c
			next[k+shift] -= c
		}
		for k := i; k < len(next); k++ {
			next[k] += next[k-i]
		}
		poly = next[:i*n+1]
	}
	return poly
}

func clampUnit(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	default:
		return p
	}
}
