package audit

import (
	"fmt"
	"image"
	"sort"

	"github.com/paulmach/orb"
)

// DefaultDedupRadius is the per-axis click deduplication threshold in
// plan-image pixels.
const DefaultDedupRadius = 12

// NewPlan creates an empty plan. The image is attached separately via
// SetImage once the upload has been decoded.
func NewPlan(name string) *Plan {
	return &Plan{
		Name:        name,
		Records:     make(map[int]*MeasurementRecord),
		Photos:      make(map[int][]byte),
		DedupRadius: DefaultDedupRadius,
	}
}

// SetImage attaches a decoded, normalized plan image.
func (p *Plan) SetImage(img *image.RGBA) {
	p.Image = img
}

// HasImage reports whether a usable plan image is loaded.
func (p *Plan) HasImage() bool { return p.Image != nil }

// PointCount returns the number of marked points.
func (p *Plan) PointCount() int { return len(p.Points) }

// SetMeasurements evaluates the four readings for the point at the
// given 1-based index and creates or fully replaces its record. When
// the readings are incomplete under the rule the call is a no-op and
// returns (nil, false, nil): the point simply has no record yet.
func (p *Plan) SetMeasurements(index int, readings [4]float64, note string, entry ReferenceEntry, rule MeasurementRule) (*MeasurementRecord, bool, error) {
	if index < 1 || index > len(p.Points) {
		return nil, false, fmt.Errorf("index %d of %d points: %w", index, len(p.Points), ErrUnknownPoint)
	}

	if !rule.Complete(readings) {
		return nil, false, nil
	}

	avg, verdict, err := Evaluate(readings, entry.Em)
	if err != nil {
		return nil, false, err
	}

	_, hasPhoto := p.Photos[index]
	rec := &MeasurementRecord{
		Index:      index,
		Coord:      p.Points[index-1],
		Category:   entry.Category,
		EmRequired: entry.Em,
		UoMin:      entry.Uo,
		Readings:   readings,
		Average:    avg,
		Verdict:    verdict,
		Note:       note,
		HasPhoto:   hasPhoto,
	}
	p.Records[index] = rec
	return rec, true, nil
}

// SetPhoto stores the raw photo bytes for the point at the given
// 1-based index and flags its record, if one exists.
func (p *Plan) SetPhoto(index int, data []byte) error {
	if index < 1 || index > len(p.Points) {
		return fmt.Errorf("index %d of %d points: %w", index, len(p.Points), ErrUnknownPoint)
	}
	p.Photos[index] = data
	if rec, ok := p.Records[index]; ok {
		rec.HasPhoto = true
	}
	return nil
}

// Photo returns the stored photo bytes for a point, if any.
func (p *Plan) Photo(index int) ([]byte, bool) {
	data, ok := p.Photos[index]
	return data, ok
}

// RecordsInOrder returns the plan's records sorted by ascending point
// index. Report rows and overlay markers both consume this ordering.
func (p *Plan) RecordsInOrder() []*MeasurementRecord {
	out := make([]*MeasurementRecord, 0, len(p.Records))
	for _, rec := range p.Records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// PointAt returns the coordinates of the 1-based point index.
func (p *Plan) PointAt(index int) (orb.Point, bool) {
	if index < 1 || index > len(p.Points) {
		return orb.Point{}, false
	}
	return p.Points[index-1], true
}
