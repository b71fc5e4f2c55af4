package keypoints

import (
	"encoding/json"
	"image"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	uts "go.viam.com/utils"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/sparsestereo/rimage"
	"go.viam.com/sparsestereo/utils"
)

// SamplingType selects the distribution of BRIEF sample positions.
type SamplingType int

const (
	uniform SamplingType = iota // 0
	normal                      // 1
)

// SamplePairs are N pairs of points used to create the BRIEF Descriptors of a patch.
type SamplePairs struct {
	P0 []image.Point
	P1 []image.Point
	N  int
}

// GenerateSamplePairs generates n samples for a patch size with the chosen Sampling Type. The
// same src state always yields the same pairs, which is what makes two images comparable.
func GenerateSamplePairs(dist SamplingType, n, patchSize int, src rand.Source) *SamplePairs {
	xs0 := sampleIntegers(patchSize, n, dist, src)
	ys0 := sampleIntegers(patchSize, n, dist, src)
	xs1 := sampleIntegers(patchSize, n, dist, src)
	ys1 := sampleIntegers(patchSize, n, dist, src)
	p0 := make([]image.Point, 0, n)
	p1 := make([]image.Point, 0, n)
	for i := 0; i < n; i++ {
		p0 = append(p0, image.Point{X: xs0[i], Y: ys0[i]})
		p1 = append(p1, image.Point{X: xs1[i], Y: ys1[i]})
	}
	return &SamplePairs{P0: p0, P1: p1, N: n}
}

func sampleIntegers(patchSize, n int, sampling SamplingType, src rand.Source) []int {
	vMin := math.Round(-(float64(patchSize) - 2) / 2.)
	vMax := math.Round(float64(patchSize) / 2.)
	if sampling == normal {
		return utils.SampleNIntegersNormal(n, vMin, vMax, src)
	}
	return utils.SampleNIntegersUniform(n, vMin, vMax, src)
}

// BRIEFConfig stores the parameters.
type BRIEFConfig struct {
	N              int          `json:"n"` // number of samples taken
	Sampling       SamplingType `json:"sampling"`
	UseOrientation bool         `json:"use_orientation"`
	PatchSize      int          `json:"patch_size"`
	Seed           uint64       `json:"seed"`
}

// LoadBRIEFConfiguration loads a BRIEFConfig from a json file.
func LoadBRIEFConfiguration(file string) (*BRIEFConfig, error) {
	var config BRIEFConfig
	configFile, err := os.Open(filepath.Clean(file))
	if err != nil {
		return nil, err
	}
	defer uts.UncheckedErrorFunc(configFile.Close)
	if err := json.NewDecoder(configFile).Decode(&config); err != nil {
		return nil, errors.Wrapf(err, "cannot decode BRIEF configuration %q", file)
	}
	if err := config.Validate(file); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate ensures all parts of the BRIEFConfig are valid.
func (config *BRIEFConfig) Validate(path string) error {
	if config.N < 1 {
		return uts.NewConfigValidationError(path, errors.New("n should be >= 1"))
	}
	if config.PatchSize < 5 {
		return uts.NewConfigValidationError(path, errors.New("patch_size should be >= 5"))
	}
	if config.Sampling != uniform && config.Sampling != normal {
		return uts.NewConfigValidationError(path, errors.Errorf("unknown sampling %d", config.Sampling))
	}
	return nil
}

// NewSamplePairs generates the sample pairs described by the config from its seed.
func (config *BRIEFConfig) NewSamplePairs() *SamplePairs {
	return GenerateSamplePairs(config.Sampling, config.N, config.PatchSize, rand.NewPCG(config.Seed, config.Seed^0x9e3779b97f4a7c15))
}

// ComputeBRIEFDescriptors computes BRIEF descriptors on image img at keypoints kps. Keypoints
// whose patch does not fit in the image are dropped; the returned keypoints are aligned with the
// descriptor rows. Each descriptor component is 0 or 1.
func ComputeBRIEFDescriptors(img *image.Gray, sp *SamplePairs, kps KeyPoints, cfg *BRIEFConfig) (KeyPoints, *Descriptors, error) {
	img = rimage.MakeGray(img)
	// blur image
	kernel := rimage.GetGaussian5()
	normalized := kernel.Normalize()
	blurred, err := rimage.ConvolveGray(img, normalized, image.Point{2, 2}, rimage.BorderReflect)
	if err != nil {
		return nil, nil, err
	}

	bnd := blurred.Bounds()
	halfSize := cfg.PatchSize / 2
	kept := make(KeyPoints, 0, len(kps))
	rows := make([]float64, 0, len(kps)*sp.N)
	for _, kp := range kps {
		center := image.Point{int(math.Round(kp.Pt.X)), int(math.Round(kp.Pt.Y))}
		patch := image.Rect(center.X-halfSize, center.Y-halfSize, center.X+halfSize+1, center.Y+halfSize+1)
		if !patch.In(bnd) {
			continue
		}
		cosTheta, sinTheta := 1.0, 0.0
		if cfg.UseOrientation {
			sinTheta, cosTheta = math.Sincos(kp.Angle)
		}
		descriptor := make([]float64, sp.N)
		for i := 0; i < sp.N; i++ {
			x0, y0 := float64(sp.P0[i].X), float64(sp.P0[i].Y)
			x1, y1 := float64(sp.P1[i].X), float64(sp.P1[i].Y)
			// rotate the sampled offsets (identity without orientation)
			outx0 := int(math.Round(cosTheta*x0 - sinTheta*y0))
			outy0 := int(math.Round(sinTheta*x0 + cosTheta*y0))
			outx1 := int(math.Round(cosTheta*x1 - sinTheta*y1))
			outy1 := int(math.Round(sinTheta*x1 + cosTheta*y1))
			p0Val := blurred.GrayAt(center.X+outx0, center.Y+outy0).Y
			p1Val := blurred.GrayAt(center.X+outx1, center.Y+outy1).Y
			if p0Val > p1Val {
				descriptor[i] = 1
			}
		}
		kept = append(kept, kp)
		rows = append(rows, descriptor...)
	}
	if len(kept) == 0 {
		return kept, &Descriptors{}, nil
	}
	return kept, NewDescriptorsFromDense(mat.NewDense(len(kept), sp.N, rows)), nil
}
