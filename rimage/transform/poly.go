package transform

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// poly is a real polynomial with coefficients ordered from the constant term up.
type poly []float64

func (p poly) mul(q poly) poly {
	if len(p) == 0 || len(q) == 0 {
		return poly{}
	}
	out := make(poly, len(p)+len(q)-1)
	for i, a := range p {
		for j, b := range q {
			out[i+j] += a * b
		}
	}
	return out
}

func (p poly) add(q poly) poly {
	n := max(len(p), len(q))
	out := make(poly, n)
	copy(out, p)
	for i, b := range q {
		out[i] += b
	}
	return out
}

func (p poly) scale(s float64) poly {
	out := make(poly, len(p))
	for i, a := range p {
		out[i] = a * s
	}
	return out
}

func (p poly) sub(q poly) poly {
	return p.add(q.scale(-1))
}

// trim drops leading coefficients that are negligible relative to the largest one.
func (p poly) trim() poly {
	largest := 0.0
	for _, a := range p {
		largest = math.Max(largest, math.Abs(a))
	}
	n := len(p)
	for n > 0 && math.Abs(p[n-1]) <= polyTrimTolerance*largest {
		n--
	}
	return p[:n]
}

// realParts returns the real parts of the polynomial's roots, computed as the eigenvalues of its
// companion matrix.
func (p poly) realParts() []float64 {
	p = p.trim()
	degree := len(p) - 1
	switch {
	case degree < 1:
		return nil
	case degree == 1:
		return []float64{-p[0] / p[1]}
	}

	companion := mat.NewDense(degree, degree, nil)
	for i := 1; i < degree; i++ {
		companion.Set(i, i-1, 1)
	}
	lead := p[degree]
	for i := 0; i < degree; i++ {
		companion.Set(i, degree-1, -p[i]/lead)
	}

	var eig mat.Eigen
	if ok := eig.Factorize(companion, mat.EigenNone); !ok {
		return nil
	}
	values := eig.Values(nil)
	roots := make([]float64, 0, len(values))
	for _, v := range values {
		if re := real(v); !math.IsNaN(re) && !math.IsInf(re, 0) {
			roots = append(roots, re)
		}
	}
	return roots
}
