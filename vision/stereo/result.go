package stereo

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/montanaflynn/stats"
	"github.com/samber/lo"

	"go.viam.com/sparsestereo/rimage/transform"
	"go.viam.com/sparsestereo/vision/keypoints"
)

// Points are triangulated points with the corrected pixels they come from. Index i of every
// slice describes the same correspondence.
type Points struct {
	Points3D []r3.Vector
	Left     []r2.Point
	Right    []r2.Point
}

// Len returns the number of correspondences.
func (p *Points) Len() int {
	return len(p.Points3D)
}

// String prints a table with one row per correspondence.
func (p *Points) String() string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"#", "Left", "Right", "Disparity", "X", "Y", "Z"})
	for i, pt := range p.Points3D {
		t.AppendRow(table.Row{
			i,
			fmt.Sprintf("%.2f, %.2f", p.Left[i].X, p.Left[i].Y),
			fmt.Sprintf("%.2f, %.2f", p.Right[i].X, p.Right[i].Y),
			fmt.Sprintf("%.2f", p.Left[i].X-p.Right[i].X),
			fmt.Sprintf("%.4f", pt.X),
			fmt.Sprintf("%.4f", pt.Y),
			fmt.Sprintf("%.4f", pt.Z),
		})
	}
	return t.Render()
}

// MatchResult is the output of MatchFull. On top of Points it holds the matched keypoints,
// with their locations replaced by the corrected pixels, their descriptor rows and the
// epipolar residual of every corrected pair.
type MatchResult struct {
	Points
	LeftKeyPoints    keypoints.KeyPoints
	RightKeyPoints   keypoints.KeyPoints
	LeftDescriptors  *keypoints.Descriptors
	RightDescriptors *keypoints.Descriptors
	Residuals        []float64
}

// checkAligned verifies that every sequence of the result has the same length.
func (r *MatchResult) checkAligned() error {
	n := len(r.Points3D)
	for name, l := range map[string]int{
		"left points":       len(r.Left),
		"right points":      len(r.Right),
		"left keypoints":    len(r.LeftKeyPoints),
		"right keypoints":   len(r.RightKeyPoints),
		"left descriptors":  r.LeftDescriptors.Rows(),
		"right descriptors": r.RightDescriptors.Rows(),
		"residuals":         len(r.Residuals),
	} {
		if l != n {
			return transform.NewInvalidGeometryError("%d %s for %d points", l, name, n)
		}
	}
	return nil
}

// ResidualStats summarizes the absolute epipolar residuals of a result.
type ResidualStats struct {
	Mean   float64
	Median float64
	Max    float64
}

// ResidualStats returns the mean, median and maximum absolute residual. It fails on an
// empty result.
func (r *MatchResult) ResidualStats() (ResidualStats, error) {
	abs := stats.Float64Data(lo.Map(r.Residuals, func(v float64, _ int) float64 { return math.Abs(v) }))
	mean, err := abs.Mean()
	if err != nil {
		return ResidualStats{}, err
	}
	median, err := abs.Median()
	if err != nil {
		return ResidualStats{}, err
	}
	maxResidual, err := abs.Max()
	if err != nil {
		return ResidualStats{}, err
	}
	return ResidualStats{Mean: mean, Median: median, Max: maxResidual}, nil
}
