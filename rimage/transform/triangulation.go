package transform

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// TriangulatePoints triangulates every correspondence with the direct linear transform and
// returns the 4xN matrix of homogeneous points, one column per correspondence.
func TriangulatePoints(projLeft, projRight mat.Matrix, left, right []r2.Point) (*mat.Dense, error) {
	if len(left) != len(right) {
		return nil, NewInvalidGeometryError("cannot triangulate %d left points against %d right points", len(left), len(right))
	}
	if r, c := projLeft.Dims(); r != 3 || c != 4 {
		return nil, NewInvalidGeometryError("left projection matrix must be 3x4, got %dx%d", r, c)
	}
	if r, c := projRight.Dims(); r != 3 || c != 4 {
		return nil, NewInvalidGeometryError("right projection matrix must be 3x4, got %dx%d", r, c)
	}
	if len(left) == 0 {
		return &mat.Dense{}, nil
	}

	points4D := mat.NewDense(4, len(left), nil)
	a := mat.NewDense(4, 4, nil)
	for i := range left {
		setDLTRows(a, 0, projLeft, left[i])
		setDLTRows(a, 2, projRight, right[i])
		svd := performSVD(a)
		if svd == nil {
			// leaves the column at zero, which dehomogenizes to the origin
			continue
		}
		points4D.SetCol(i, mat.Col(nil, 3, svd.V))
	}
	return points4D, nil
}

// setDLTRows writes the two equations x*P3 - P1 and y*P3 - P2 of one view at row offset.
func setDLTRows(a *mat.Dense, offset int, proj mat.Matrix, pt r2.Point) {
	for j := 0; j < 4; j++ {
		p3 := proj.At(2, j)
		a.Set(offset, j, pt.X*p3-proj.At(0, j))
		a.Set(offset+1, j, pt.Y*p3-proj.At(1, j))
	}
}

// DehomogenizePoints divides each column of a 4xN homogeneous matrix by its last row. Columns
// with w == 0 cannot be represented and map to the origin.
func DehomogenizePoints(points4D *mat.Dense) []r3.Vector {
	if points4D.IsEmpty() {
		return []r3.Vector{}
	}
	_, n := points4D.Dims()
	out := make([]r3.Vector, n)
	for i := 0; i < n; i++ {
		w := points4D.At(3, i)
		if w == 0 {
			continue
		}
		out[i] = r3.Vector{X: points4D.At(0, i) / w, Y: points4D.At(1, i) / w, Z: points4D.At(2, i) / w}
	}
	return out
}

// Triangulate triangulates and dehomogenizes correspondences in one step.
func Triangulate(projLeft, projRight mat.Matrix, left, right []r2.Point) ([]r3.Vector, error) {
	points4D, err := TriangulatePoints(projLeft, projRight, left, right)
	if err != nil {
		return nil, err
	}
	return DehomogenizePoints(points4D), nil
}
