package audit

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// AddPoint appends a clicked coordinate as the next 1-based point.
// A click landing within the dedup box of an existing point (strictly
// less than DedupRadius on BOTH axes, per-axis, not Euclidean) is
// rejected with ErrDuplicatePoint. Click capture needs the plan image.
func (p *Plan) AddPoint(x, y float64) (int, error) {
	if p.Image == nil {
		return 0, ErrNoImage
	}
	if math.IsNaN(x) || math.IsInf(x, 0) || math.IsNaN(y) || math.IsInf(y, 0) {
		return 0, fmt.Errorf("click (%v, %v): %w", x, y, ErrInvalidMeasurement)
	}

	r := p.DedupRadius
	if r <= 0 {
		r = DefaultDedupRadius
	}
	for _, q := range p.Points {
		if math.Abs(q[0]-x) < r && math.Abs(q[1]-y) < r {
			return 0, ErrDuplicatePoint
		}
	}

	p.Points = append(p.Points, orb.Point{x, y})
	return len(p.Points), nil
}

// RemoveLastPoint pops the highest-index point and its record and
// photo, if present. Returns false when there are no points.
func (p *Plan) RemoveLastPoint() bool {
	n := len(p.Points)
	if n == 0 {
		return false
	}
	p.Points = p.Points[:n-1]
	delete(p.Records, n)
	delete(p.Photos, n)
	return true
}

// RemovePointAt removes the point at the given 1-based index. Records
// and photos above it shift down by one so that stored indices keep
// matching the now-dense point positions 1..N.
func (p *Plan) RemovePointAt(index int) error {
	n := len(p.Points)
	if index < 1 || index > n {
		return fmt.Errorf("index %d of %d points: %w", index, n, ErrUnknownPoint)
	}

	p.Points = append(p.Points[:index-1], p.Points[index:]...)

	delete(p.Records, index)
	delete(p.Photos, index)
	for i := index + 1; i <= n; i++ {
		if rec, ok := p.Records[i]; ok {
			rec.Index = i - 1
			p.Records[i-1] = rec
			delete(p.Records, i)
		}
		if photo, ok := p.Photos[i]; ok {
			p.Photos[i-1] = photo
			delete(p.Photos, i)
		}
	}
	return nil
}

// ClearPoints empties the plan's points, records, and photos.
func (p *Plan) ClearPoints() {
	p.Points = nil
	p.Records = make(map[int]*MeasurementRecord)
	p.Photos = make(map[int][]byte)
}

// Bound returns the bounding box of the plan's points. Useful for
// sanity checks against the image dimensions.
func (p *Plan) Bound() (orb.Bound, bool) {
	if len(p.Points) == 0 {
		return orb.Bound{}, false
	}
	b := orb.MultiPoint(p.Points).Bound()
	return b, true
}
