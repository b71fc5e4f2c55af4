package transform

import (
	"errors"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// FundamentalFromExtrinsics returns F = kRight^-T [t]x rot kLeft^-1, such that
// p_rightᵀ F p_left = 0 for corresponding pixels.
func FundamentalFromExtrinsics(kLeft, kRight, rot *mat.Dense, t r3.Vector) (*mat.Dense, error) {
	var kLeftInv, kRightInv mat.Dense
	if err := kLeftInv.Inverse(kLeft); err != nil {
		return nil, NewInvalidGeometryError("left camera matrix is not invertible: %v", err)
	}
	if err := kRightInv.Inverse(kRight); err != nil {
		return nil, NewInvalidGeometryError("right camera matrix is not invertible: %v", err)
	}
	var essential, tmp, fundamental mat.Dense
	essential.Mul(getCrossProductMatFromPoint(t), rot)
	tmp.Mul(kRightInv.T(), &essential)
	fundamental.Mul(&tmp, &kLeftInv)
	return &fundamental, nil
}

// ProjectionMatrix returns the 3x4 matrix K [R|t].
func ProjectionMatrix(k, rot *mat.Dense, t r3.Vector) *mat.Dense {
	extrinsics := mat.NewDense(3, 4, nil)
	extrinsics.Slice(0, 3, 0, 3).(*mat.Dense).Copy(rot)
	extrinsics.Set(0, 3, t.X)
	extrinsics.Set(1, 3, t.Y)
	extrinsics.Set(2, 3, t.Z)
	var proj mat.Dense
	proj.Mul(k, extrinsics)
	return &proj
}

// EpipolarResidual returns the algebraic epipolar error p2ᵀ F p1 of a left point p1 and a right
// point p2 in homogeneous pixel coordinates.
func EpipolarResidual(fundamental mat.Matrix, p1, p2 r2.Point) float64 {
	h1 := mat.NewVecDense(3, []float64{p1.X, p1.Y, 1})
	h2 := mat.NewVecDense(3, []float64{p2.X, p2.Y, 1})
	var fp1 mat.VecDense
	fp1.MulVec(fundamental, h1)
	return mat.Dot(h2, &fp1)
}

// ComputeFundamentalMatrixAllPoints estimates the fundamental matrix from at least 8
// correspondences with the (normalized) 8-point algorithm. The result is scaled so F[2][2] = 1
// when that entry is not zero.
func ComputeFundamentalMatrixAllPoints(pts1, pts2 []r2.Point, normalize bool) (*mat.Dense, error) {
	if len(pts1) != len(pts2) {
		return nil, errors.New("sets of points pts1 and pts2 must have the same number of elements")
	}
	if len(pts1) < 8 {
		return nil, errors.New("sets of points must have at least 8 elements")
	}
	nPoints := len(pts1)

	points1, T1 := pts1, eye(3)
	points2, T2 := pts2, eye(3)
	if normalize {
		points1, T1 = normalizePoints(pts1)
		points2, T2 = normalizePoints(pts2)
	}

	m := mat.NewDense(nPoints, 9, nil)
	for i := range points1 {
		v1 := points1[i]
		v2 := points2[i]
		m.SetRow(i, []float64{
			v2.X * v1.X, v2.X * v1.Y, v2.X,
			v2.Y * v1.X, v2.Y * v1.Y, v2.Y,
			v1.X, v1.Y, 1,
		})
	}

	mats1 := performSVD(m)
	if mats1 == nil {
		return nil, errors.New("svd of the design matrix failed")
	}
	lastColV := mats1.V.ColView(8)
	data := make([]float64, 9)
	for i := range data {
		data[i] = lastColV.AtVec(i)
	}
	F := mat.NewDense(3, 3, data)

	// enforce rank 2 of F
	mats2 := performSVD(F)
	if mats2 == nil {
		return nil, errors.New("svd of the fundamental matrix failed")
	}
	mats2.S.Set(2, 2, 0)
	F.Mul(mats2.U, mats2.S)
	F.Mul(F, mats2.VT)

	// denormalize: T2ᵀ F T1
	F.Mul(T2.T(), F)
	F.Mul(F, T1)

	if f22 := F.At(2, 2); math.Abs(f22) > 1e-12 {
		F.Scale(1/f22, F)
	}
	return F, nil
}

// normalizePoints normalizes points as described in Multiple View Geometry, Alg 11.1.
func normalizePoints(pts []r2.Point) ([]r2.Point, *mat.Dense) {
	nPoints := len(pts)
	mu := r2.Point{}
	for _, pt := range pts {
		mu = mu.Add(pt)
	}
	mu = mu.Mul(1. / float64(nPoints))
	d := 0.0
	for _, pt := range pts {
		d += pt.Sub(mu).Norm() / float64(nPoints)
	}
	scale := math.Sqrt(2) / d
	T := mat.NewDense(3, 3, []float64{
		scale, 0, -scale * mu.X,
		0, scale, -scale * mu.Y,
		0, 0, 1,
	})
	pointsTransformed := make([]r2.Point, nPoints)
	for i := range pointsTransformed {
		pointsTransformed[i] = pts[i].Sub(mu).Mul(scale)
	}
	return pointsTransformed, T
}

// getCrossProductMatFromPoint returns the skew symmetric matrix [t]x such that [t]x v = t × v.
func getCrossProductMatFromPoint(t r3.Vector) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		0, -t.Z, t.Y,
		t.Z, 0, -t.X,
		-t.Y, t.X, 0,
	})
}

// eye create an identity matrix of size nxn.
func eye(n int) *mat.Dense {
	if n <= 0 {
		return nil
	}
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// matsSVD stores the matrices from SVD decomposition.
type matsSVD struct {
	U  *mat.Dense
	V  *mat.Dense
	VT *mat.Dense
	S  *mat.Dense
}

// performSVD performs SVD on inputMatrix and returns matrices U, Sigma and V from the decomposition.
// It returns nil if the factorization fails.
func performSVD(inputMatrix mat.Matrix) *matsSVD {
	var svd mat.SVD
	if ok := svd.Factorize(inputMatrix, mat.SVDFull); !ok {
		return nil
	}

	u, v, sigma, vt := &mat.Dense{}, &mat.Dense{}, &mat.Dense{}, &mat.Dense{}
	svd.UTo(u)
	svd.VTo(v)
	vt.CloneFrom(v.T())
	sigma.CloneFrom(mat.NewDiagDense(len(svd.Values(nil)), svd.Values(nil)))

	return &matsSVD{u, v, vt, sigma}
}
