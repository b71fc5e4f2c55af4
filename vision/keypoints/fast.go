package keypoints

import (
	"encoding/json"
	"image"
	"os"
	"path/filepath"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/sparsestereo/rimage"
)

// FASTConfig holds the parameters of the FAST corner detector.
type FASTConfig struct {
	// NMatchesCircle is the number of contiguous circle pixels that must all be brighter or all
	// darker than the center.
	NMatchesCircle int `json:"n_matches"`
	// NMSWinSize is the side of the non maximum suppression window. 1 disables suppression.
	NMSWinSize int `json:"nms_win_size"`
	// Threshold is the intensity difference, in gray levels, above which a circle pixel counts.
	Threshold float64 `json:"threshold"`
	Oriented  bool    `json:"oriented"`
}

// LoadFASTConfiguration loads a FASTConfig from a json file.
func LoadFASTConfiguration(file string) (*FASTConfig, error) {
	var config FASTConfig
	configFile, err := os.Open(filepath.Clean(file))
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(configFile.Close)
	if err := json.NewDecoder(configFile).Decode(&config); err != nil {
		return nil, errors.Wrapf(err, "cannot decode FAST configuration %q", file)
	}
	if err := config.Validate(file); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate ensures all parts of the FASTConfig are valid.
func (config *FASTConfig) Validate(path string) error {
	if config.NMatchesCircle < 1 || config.NMatchesCircle > len(CircleIdx) {
		return utils.NewConfigValidationError(path, errors.Errorf("n_matches should be in [1, %d]", len(CircleIdx)))
	}
	if config.NMSWinSize < 1 {
		return utils.NewConfigValidationError(path, errors.New("nms_win_size should be >= 1"))
	}
	if config.Threshold < 0 {
		return utils.NewConfigValidationError(path, errors.New("threshold should be >= 0"))
	}
	return nil
}

type (
	// PixelOffset is an offset from a center pixel.
	PixelOffset image.Point
	// NeighborhoodIdx is an ordered set of offsets around a pixel.
	NeighborhoodIdx []PixelOffset
)

var (
	// CrossIdx are the 4 circle pixels at the compass points, used for the quick rejection test.
	CrossIdx = NeighborhoodIdx{{0, 3}, {3, 0}, {0, -3}, {-3, 0}}
	// CircleIdx is the Bresenham circle of radius 3, clockwise from the top.
	CircleIdx = NeighborhoodIdx{
		{0, -3}, {1, -3}, {2, -2}, {3, -1},
		{3, 0}, {3, 1}, {2, 2}, {1, 3},
		{0, 3}, {-1, 3}, {-2, 2}, {-3, 1},
		{-3, 0}, {-3, -1}, {-2, -2}, {-1, -3},
	}
)

const fastBorder = 3

// GetPointValuesInNeighborhood returns the gray values at the offsets around pt.
func GetPointValuesInNeighborhood(img *image.Gray, pt image.Point, neighborhood NeighborhoodIdx) []float64 {
	vals := make([]float64, len(neighborhood))
	for i, off := range neighborhood {
		vals[i] = float64(img.GrayAt(pt.X+off.X, pt.Y+off.Y).Y)
	}
	return vals
}

// isValidSliceVals reports whether the 0/1 slice, seen as a circle, contains at least n
// contiguous ones.
func isValidSliceVals(vals []float64, n int) bool {
	if n <= 0 {
		return true
	}
	run := 0
	for i := 0; i < 2*len(vals); i++ {
		if vals[i%len(vals)] > 0 {
			run++
			if run >= n {
				return true
			}
		} else {
			run = 0
		}
	}
	return false
}

func sumOfPositiveValuesSlice(s []float64) float64 {
	sum := 0.
	for _, v := range s {
		if v > 0 {
			sum += v
		}
	}
	return sum
}

func sumOfNegativeValuesSlice(s []float64) float64 {
	sum := 0.
	for _, v := range s {
		if v < 0 {
			sum += v
		}
	}
	return sum
}

// getBrighterValues returns 1 where s is strictly above t.
func getBrighterValues(s []float64, t float64) []float64 {
	out := make([]float64, len(s))
	for i, v := range s {
		if v > t {
			out[i] = 1
		}
	}
	return out
}

// getDarkerValues returns 1 where s is strictly below t.
func getDarkerValues(s []float64, t float64) []float64 {
	out := make([]float64, len(s))
	for i, v := range s {
		if v < t {
			out[i] = 1
		}
	}
	return out
}

func countOnes(s []float64) int {
	n := 0
	for _, v := range s {
		if v > 0 {
			n++
		}
	}
	return n
}

// fastScore tests pt and returns its corner response, or false when it is not a corner.
func fastScore(img *image.Gray, pt image.Point, cfg *FASTConfig) (float64, bool) {
	center := float64(img.GrayAt(pt.X, pt.Y).Y)
	high := center + cfg.Threshold
	low := center - cfg.Threshold

	// an arc of n contiguous pixels covers at least n/4 compass points
	cross := GetPointValuesInNeighborhood(img, pt, CrossIdx)
	minCross := cfg.NMatchesCircle / 4
	brighterCross := countOnes(getBrighterValues(cross, high))
	darkerCross := countOnes(getDarkerValues(cross, low))
	if brighterCross < minCross && darkerCross < minCross {
		return 0, false
	}

	circle := GetPointValuesInNeighborhood(img, pt, CircleIdx)
	isBright := isValidSliceVals(getBrighterValues(circle, high), cfg.NMatchesCircle)
	isDark := isValidSliceVals(getDarkerValues(circle, low), cfg.NMatchesCircle)
	if !isBright && !isDark {
		return 0, false
	}

	// sum of absolute differences beyond the threshold, over the winning side
	aboveHigh := make([]float64, len(circle))
	belowLow := make([]float64, len(circle))
	for i, v := range circle {
		aboveHigh[i] = v - high
		belowLow[i] = v - low
	}
	return max(sumOfPositiveValuesSlice(aboveHigh), -sumOfNegativeValuesSlice(belowLow)), true
}

// ComputeFAST detects FAST corners in img, in raster order. Corners closer than 3 pixels to the
// border are not tested.
func ComputeFAST(img *image.Gray, cfg *FASTConfig) KeyPoints {
	img = rimage.MakeGray(img)
	size := img.Bounds().Size()
	scores := make([]float64, size.X*size.Y)
	candidates := make([]image.Point, 0)
	for y := fastBorder; y < size.Y-fastBorder; y++ {
		for x := fastBorder; x < size.X-fastBorder; x++ {
			pt := image.Point{x, y}
			if score, ok := fastScore(img, pt, cfg); ok {
				scores[y*size.X+x] = score
				candidates = append(candidates, pt)
			}
		}
	}

	half := cfg.NMSWinSize / 2
	kps := make(KeyPoints, 0, len(candidates))
	for _, pt := range candidates {
		if half > 0 && !isLocalMaximum(scores, size, pt, half) {
			continue
		}
		kps = append(kps, KeyPoint{
			Pt:       r2.Point{X: float64(pt.X), Y: float64(pt.Y)},
			Size:     2*fastBorder + 1,
			Response: scores[pt.Y*size.X+pt.X],
		})
	}
	return kps
}

// isLocalMaximum reports whether no other candidate in the window beats pt. Equal scores are
// won by the candidate that comes first in raster order.
func isLocalMaximum(scores []float64, size, pt image.Point, half int) bool {
	idx := pt.Y*size.X + pt.X
	score := scores[idx]
	for y := max(0, pt.Y-half); y <= min(size.Y-1, pt.Y+half); y++ {
		for x := max(0, pt.X-half); x <= min(size.X-1, pt.X+half); x++ {
			other := y*size.X + x
			if other == idx {
				continue
			}
			if scores[other] > score || (scores[other] == score && scores[other] > 0 && other < idx) {
				return false
			}
		}
	}
	return true
}

// NewFASTKeypointsFromImage detects FAST corners and, when the config asks for it, orients them.
func NewFASTKeypointsFromImage(img *image.Gray, cfg *FASTConfig) (KeyPoints, error) {
	kps := ComputeFAST(img, cfg)
	if !cfg.Oriented || len(kps) == 0 {
		return kps, nil
	}
	return OrientKeyPoints(rimage.MakeGray(img), kps)
}
