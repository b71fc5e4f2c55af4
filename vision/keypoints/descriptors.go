package keypoints

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Descriptors is an ordered set of fixed width descriptors stored row-major, one row per
// keypoint. The zero value and nil are the empty set.
type Descriptors struct {
	data *mat.Dense
}

// NewDescriptors copies rows into a descriptor matrix. All rows must have the same, non-zero
// width.
func NewDescriptors(rows [][]float64) (*Descriptors, error) {
	if len(rows) == 0 {
		return &Descriptors{}, nil
	}
	width := len(rows[0])
	if width == 0 {
		return nil, errors.New("descriptors must have at least one column")
	}
	data := mat.NewDense(len(rows), width, nil)
	for i, row := range rows {
		if len(row) != width {
			return nil, errors.Errorf("descriptor %d has %d columns, expected %d", i, len(row), width)
		}
		data.SetRow(i, row)
	}
	return &Descriptors{data: data}, nil
}

// NewDescriptorsFromDense wraps m without copying it.
func NewDescriptorsFromDense(m *mat.Dense) *Descriptors {
	if m == nil || m.IsEmpty() {
		return &Descriptors{}
	}
	return &Descriptors{data: m}
}

// Rows returns the number of descriptors.
func (d *Descriptors) Rows() int {
	if d == nil || d.data == nil {
		return 0
	}
	r, _ := d.data.Dims()
	return r
}

// Cols returns the descriptor width.
func (d *Descriptors) Cols() int {
	if d == nil || d.data == nil {
		return 0
	}
	_, c := d.data.Dims()
	return c
}

// RawRow returns descriptor i. The slice aliases the underlying storage.
func (d *Descriptors) RawRow(i int) []float64 {
	return d.data.RawRowView(i)
}

// Dense returns the underlying matrix, or nil for an empty set.
func (d *Descriptors) Dense() *mat.Dense {
	if d == nil {
		return nil
	}
	return d.data
}

// SelectRows returns a copy holding the descriptors at indices, in order.
func (d *Descriptors) SelectRows(indices []int) *Descriptors {
	if len(indices) == 0 {
		return &Descriptors{}
	}
	out := mat.NewDense(len(indices), d.Cols(), nil)
	for i, idx := range indices {
		out.SetRow(i, d.RawRow(idx))
	}
	return &Descriptors{data: out}
}

// Truncate returns the first n descriptors, or d itself when it holds no more than n.
func (d *Descriptors) Truncate(n int) *Descriptors {
	if n >= d.Rows() {
		return d
	}
	if n <= 0 {
		return &Descriptors{}
	}
	return &Descriptors{data: d.data.Slice(0, n, 0, d.Cols()).(*mat.Dense)}
}

// AsFloat32 returns a copy with every component rounded to float32 precision, matching
// extractors that produce single precision descriptors.
func (d *Descriptors) AsFloat32() *Descriptors {
	if d.Rows() == 0 {
		return &Descriptors{}
	}
	out := mat.DenseCopyOf(d.data)
	raw := out.RawMatrix()
	for i := 0; i < raw.Rows; i++ {
		row := raw.Data[i*raw.Stride : i*raw.Stride+raw.Cols]
		for j, v := range row {
			row[j] = float64(float32(v))
		}
	}
	return &Descriptors{data: out}
}
