package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// leading polynomial coefficients below this fraction of the largest one are treated as zero.
const polyTrimTolerance = 1e-10

// CorrectMatches moves every correspondence (left[i], right[i]) to the closest pair of points,
// in the sense of summed squared image distance, that satisfies right[i]ᵀ F left[i] = 0 exactly.
// It implements the optimal triangulation correction of Hartley and Sturm (Multiple View
// Geometry, Alg 12.1). Degenerate pairs are returned unchanged.
func CorrectMatches(fundamental mat.Matrix, left, right []r2.Point) ([]r2.Point, []r2.Point, error) {
	if len(left) != len(right) {
		return nil, nil, NewInvalidGeometryError("cannot correct %d left points against %d right points", len(left), len(right))
	}
	if r, c := fundamental.Dims(); r != 3 || c != 3 {
		return nil, nil, NewInvalidGeometryError("fundamental matrix must be 3x3, got %dx%d", r, c)
	}
	outLeft := make([]r2.Point, len(left))
	outRight := make([]r2.Point, len(right))
	for i := range left {
		outLeft[i], outRight[i] = correctMatch(fundamental, left[i], right[i])
	}
	return outLeft, outRight, nil
}

func correctMatch(fundamental mat.Matrix, p1, p2 r2.Point) (r2.Point, r2.Point) {
	// move both points to the origin: F' = T2^-T F T1^-1
	t1Inv := translation2D(p1)
	t2Inv := translation2D(p2)
	var fShifted mat.Dense
	fShifted.Mul(t2Inv.T(), fundamental)
	fShifted.Mul(&fShifted, t1Inv)

	svd := performSVD(&fShifted)
	if svd == nil {
		return p1, p2
	}
	e1, ok1 := unitEpipole(svd.V.ColView(2))
	e2, ok2 := unitEpipole(svd.U.ColView(2))
	if !ok1 || !ok2 {
		return p1, p2
	}

	// rotate so that the epipoles lie on the x axis: F'' = R2 F' R1ᵀ
	r1 := epipoleRotation(e1)
	r2m := epipoleRotation(e2)
	var fRot mat.Dense
	fRot.Mul(r2m, &fShifted)
	fRot.Mul(&fRot, r1.T())

	f1, f2 := e1.Z, e2.Z
	a, b := fRot.At(1, 1), fRot.At(1, 2)
	c, d := fRot.At(2, 1), fRot.At(2, 2)

	t, ok := minimizeEpipolarCost(f1, f2, a, b, c, d)
	if !ok {
		return p1, p2
	}

	var l1, l2 r3.Vector
	if math.IsInf(t, 0) {
		l1 = r3.Vector{X: f1, Y: 0, Z: -1}
		l2 = r3.Vector{X: -f2 * c, Y: a, Z: c}
	} else {
		l1 = r3.Vector{X: t * f1, Y: 1, Z: -t}
		l2 = r3.Vector{X: -f2 * (c*t + d), Y: a*t + b, Z: c*t + d}
	}

	x1, ok1 := undoCorrectionFrame(closestPointToOrigin(l1), r1, t1Inv)
	x2, ok2 := undoCorrectionFrame(closestPointToOrigin(l2), r2m, t2Inv)
	if !ok1 || !ok2 {
		return p1, p2
	}
	return x1, x2
}

// minimizeEpipolarCost returns the epipolar line parameter t minimizing the squared distances of
// the origin to the two epipolar lines. t may be ±Inf.
func minimizeEpipolarCost(f1, f2, a, b, c, d float64) (float64, bool) {
	cost := func(t float64) float64 {
		ctd := c*t + d
		atb := a*t + b
		den := atb*atb + f2*f2*ctd*ctd
		if den == 0 {
			return math.Inf(1)
		}
		return t*t/(1+f1*f1*t*t) + ctd*ctd/den
	}

	// g(t) = t((at+b)² + f2²(ct+d)²)² - (ad-bc)(1+f1²t²)²(at+b)(ct+d)
	atb := poly{b, a}
	ctd := poly{d, c}
	sq := atb.mul(atb).add(ctd.mul(ctd).scale(f2 * f2))
	onePlus := poly{1, 0, f1 * f1}
	g := poly{0, 1}.mul(sq).mul(sq).sub(onePlus.mul(onePlus).mul(atb).mul(ctd).scale(a*d - b*c))

	bestT, bestCost := 0.0, math.Inf(1)
	found := false
	for _, root := range g.realParts() {
		if s := cost(root); s < bestCost {
			bestT, bestCost, found = root, s, true
		}
	}
	if f1 != 0 {
		den := a*a + f2*f2*c*c
		if den != 0 {
			if s := 1/(f1*f1) + c*c/den; s < bestCost {
				bestT, bestCost, found = math.Inf(1), s, true
			}
		}
	}
	return bestT, found
}

// translation2D returns the homogeneous matrix translating the origin to p.
func translation2D(p r2.Point) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		1, 0, p.X,
		0, 1, p.Y,
		0, 0, 1,
	})
}

// unitEpipole scales a homogeneous epipole so that ex² + ey² = 1.
func unitEpipole(v mat.Vector) (r3.Vector, bool) {
	e := r3.Vector{X: v.AtVec(0), Y: v.AtVec(1), Z: v.AtVec(2)}
	n := math.Hypot(e.X, e.Y)
	if n < 1e-12 {
		return r3.Vector{}, false
	}
	return e.Mul(1 / n), true
}

func epipoleRotation(e r3.Vector) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		e.X, e.Y, 0,
		-e.Y, e.X, 0,
		0, 0, 1,
	})
}

// closestPointToOrigin returns the homogeneous point of line l closest to the origin.
func closestPointToOrigin(l r3.Vector) r3.Vector {
	return r3.Vector{X: -l.X * l.Z, Y: -l.Y * l.Z, Z: l.X*l.X + l.Y*l.Y}
}

// undoCorrectionFrame maps x back to pixels with T^-1 Rᵀ x.
func undoCorrectionFrame(x r3.Vector, rot, tInv *mat.Dense) (r2.Point, bool) {
	var rotated, shifted mat.VecDense
	rotated.MulVec(rot.T(), mat.NewVecDense(3, []float64{x.X, x.Y, x.Z}))
	shifted.MulVec(tInv, &rotated)
	w := shifted.AtVec(2)
	if w == 0 {
		return r2.Point{}, false
	}
	return r2.Point{X: shifted.AtVec(0) / w, Y: shifted.AtVec(1) / w}, true
}
