package transform

import "github.com/pkg/errors"

const (
	undistortMaxIterations = 100
	undistortTolerance     = 1e-14
)

// BrownConrady is the OpenCV lens model: radial terms k1..k3, tangential terms p1, p2 and the
// rational denominator terms k4..k6. Parameters are ordered as OpenCV orders them:
// (k1, k2, p1, p2, k3, k4, k5, k6).
type BrownConrady struct {
	RadialK1     float64 `json:"rk1"`
	RadialK2     float64 `json:"rk2"`
	TangentialP1 float64 `json:"tp1"`
	TangentialP2 float64 `json:"tp2"`
	RadialK3     float64 `json:"rk3"`
	RationalK4   float64 `json:"rk4,omitempty"`
	RationalK5   float64 `json:"rk5,omitempty"`
	RationalK6   float64 `json:"rk6,omitempty"`
}

// NewBrownConrady takes in a slice of floats that will be passed into the struct in order.
// Missing trailing coefficients are zero.
func NewBrownConrady(inp []float64) (*BrownConrady, error) {
	const maxParams = 8
	if len(inp) > maxParams {
		return nil, errors.Errorf("list of parameters too long, expected max %d, got %d", maxParams, len(inp))
	}
	params := make([]float64, maxParams)
	copy(params, inp)
	return &BrownConrady{params[0], params[1], params[2], params[3], params[4], params[5], params[6], params[7]}, nil
}

// CheckValid checks if the fields for BrownConrady have valid inputs.
func (bc *BrownConrady) CheckValid() error {
	if bc == nil {
		return InvalidDistortionError("BrownConrady shaped distortion_parameters not provided")
	}
	return nil
}

// ModelType returns the type of distortion model.
func (bc *BrownConrady) ModelType() DistortionType {
	return BrownConradyDistortionType
}

// Parameters returns the coefficients in OpenCV order.
func (bc *BrownConrady) Parameters() []float64 {
	if bc == nil {
		return []float64{}
	}
	return []float64{
		bc.RadialK1, bc.RadialK2, bc.TangentialP1, bc.TangentialP2,
		bc.RadialK3, bc.RationalK4, bc.RationalK5, bc.RationalK6,
	}
}

// IsZero reports whether the model is the identity.
func (bc *BrownConrady) IsZero() bool {
	if bc == nil {
		return true
	}
	return *bc == BrownConrady{}
}

func (bc *BrownConrady) radialFactors(r2 float64) (float64, float64) {
	r4 := r2 * r2
	r6 := r4 * r2
	num := 1 + bc.RadialK1*r2 + bc.RadialK2*r4 + bc.RadialK3*r6
	den := 1 + bc.RationalK4*r2 + bc.RationalK5*r4 + bc.RationalK6*r6
	return num, den
}

func (bc *BrownConrady) tangential(x, y, r2 float64) (float64, float64) {
	dx := 2*bc.TangentialP1*x*y + bc.TangentialP2*(r2+2*x*x)
	dy := bc.TangentialP1*(r2+2*y*y) + 2*bc.TangentialP2*x*y
	return dx, dy
}

// Transform distorts ideal normalized coordinates:
//
//	x_d = x * (1 + k1*r² + k2*r⁴ + k3*r⁶) / (1 + k4*r² + k5*r⁴ + k6*r⁶) + 2*p1*x*y + p2*(r² + 2*x²)
//	y_d = y * (1 + k1*r² + k2*r⁴ + k3*r⁶) / (1 + k4*r² + k5*r⁴ + k6*r⁶) + p1*(r² + 2*y²) + 2*p2*x*y
func (bc *BrownConrady) Transform(x, y float64) (float64, float64) {
	if bc == nil {
		return x, y
	}
	r2 := x*x + y*y
	num, den := bc.radialFactors(r2)
	dx, dy := bc.tangential(x, y, r2)
	return x*num/den + dx, y*num/den + dy
}

// Undistort inverts Transform with the fixed point iteration OpenCV uses in undistortPoints,
// iterating until the update is below tolerance.
func (bc *BrownConrady) Undistort(xd, yd float64) (float64, float64) {
	if bc.IsZero() {
		return xd, yd
	}
	x, y := xd, yd
	for i := 0; i < undistortMaxIterations; i++ {
		r2 := x*x + y*y
		num, den := bc.radialFactors(r2)
		if num == 0 {
			break
		}
		kInv := den / num
		dx, dy := bc.tangential(x, y, r2)
		prevX, prevY := x, y
		x = (xd - dx) * kInv
		y = (yd - dy) * kInv
		if (prevX-x)*(prevX-x)+(prevY-y)*(prevY-y) < undistortTolerance*undistortTolerance {
			break
		}
	}
	return x, y
}
