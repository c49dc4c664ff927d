package thinning

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"sidewalkd/model"
)

var (
	ErrInvalidSamplingDegree = errors.New("sampling degree must be in (0, 1)")
	ErrInvalidZoomLevels     = errors.New("zoom levels must be at least 1")
	ErrZoomOutOfRange        = errors.New("zoom level out of range")
	ErrNegativeCount         = errors.New("label count must not be negative")
)

// Budget is the visibility budget table: for each zoom level and label type,
// the highest severity rank that is still shown. Rows are zoom levels (0 is
// the most zoomed out), columns are label types in model.LabelTypes order.
type Budget struct {
	degree float64
	m      *mat.Dense
}

// NewBudget seeds the finest zoom level with totals and decays every coarser
// level by degree, so budget[z] = total * degree^(finest-z).
func NewBudget(totals map[model.LabelType]int, levels int, degree float64) (*Budget, error) {
	if levels < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidZoomLevels, levels)
	}
	if !(degree > 0 && degree < 1) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSamplingDegree, degree)
	}

	m := mat.NewDense(levels, len(model.LabelTypes), nil)
	finest := m.RawRowView(levels - 1)
	for t, n := range totals {
		col, err := t.Index()
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, fmt.Errorf("%w: %s has %d", ErrNegativeCount, t, n)
		}
		finest[col] = float64(n)
	}
	for z := levels - 2; z >= 0; z-- {
		floats.ScaleTo(m.RawRowView(z), degree, m.RawRowView(z+1))
	}
	return &Budget{degree: degree, m: m}, nil
}

// Levels returns the number of zoom levels.
func (b *Budget) Levels() int {
	r, _ := b.m.Dims()
	return r
}

// Finest returns the most zoomed-in level.
func (b *Budget) Finest() int {
	return b.Levels() - 1
}

func (b *Budget) Degree() float64 {
	return b.degree
}

// At returns the untruncated budget for zoomLevel and labelType.
func (b *Budget) At(zoomLevel int, labelType model.LabelType) (float64, error) {
	col, err := labelType.Index()
	if err != nil {
		return 0, err
	}
	if zoomLevel < 0 || zoomLevel >= b.Levels() {
		return 0, fmt.Errorf("%w: %d not in [0, %d]", ErrZoomOutOfRange, zoomLevel, b.Finest())
	}
	return b.m.At(zoomLevel, col), nil
}

// Rank returns the budget truncated toward zero, i.e. the largest 0-based
// rank visible at zoomLevel.
func (b *Budget) Rank(zoomLevel int, labelType model.LabelType) (int, error) {
	v, err := b.At(zoomLevel, labelType)
	if err != nil {
		return 0, err
	}
	return int(math.Trunc(v)), nil
}

// MinZoom returns the coarsest zoom level at which the label with the given
// 0-based severity rank is visible. ok is false when no level covers rank.
func (b *Budget) MinZoom(labelType model.LabelType, rank int) (zoom int, ok bool, err error) {
	for z := 0; z < b.Levels(); z++ {
		limit, err := b.Rank(z, labelType)
		if err != nil {
			return 0, false, err
		}
		if rank <= limit {
			return z, true, nil
		}
	}
	return 0, false, nil
}
