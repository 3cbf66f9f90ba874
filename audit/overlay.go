package audit

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strconv"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// MarkerStyle controls how measurement markers are drawn onto a plan
// image. Label colors are chosen per verdict fill for contrast: black
// on the green pass marker, white on the red fail marker.
type MarkerStyle struct {
	Radius       int
	OutlineWidth int
	Outline      color.RGBA
	Conforme     color.RGBA
	NoConforme   color.RGBA
	LabelPass    color.RGBA
	LabelFail    color.RGBA
}

// DefaultMarkerStyle matches the field tool's markers: radius 18,
// 3px black outline, green/red fills.
func DefaultMarkerStyle() MarkerStyle {
	return MarkerStyle{
		Radius:       18,
		OutlineWidth: 3,
		Outline:      color.RGBA{0, 0, 0, 255},
		Conforme:     color.RGBA{0, 128, 0, 255},
		NoConforme:   color.RGBA{255, 0, 0, 255},
		LabelPass:    color.RGBA{0, 0, 0, 255},
		LabelFail:    color.RGBA{255, 255, 255, 255},
	}
}

// OverlayRenderer draws numbered, verdict-colored markers onto a copy
// of a plan image. Rendering is deterministic: the same image and
// records always produce a pixel-identical result, and the input image
// is never mutated.
type OverlayRenderer struct {
	Style MarkerStyle
}

// NewOverlayRenderer creates a renderer with the default style.
func NewOverlayRenderer() *OverlayRenderer {
	return &OverlayRenderer{Style: DefaultMarkerStyle()}
}

// Render returns a new image with one marker per record. Records with
// unusable coordinates are skipped; one bad record never aborts the
// whole overlay.
func (r *OverlayRenderer) Render(src image.Image, records []*MeasurementRecord) (*image.RGBA, error) {
	if src == nil {
		return nil, ErrNoImage
	}

	bounds := src.Bounds()
	img := image.NewRGBA(bounds)
	draw.Draw(img, bounds, src, bounds.Min, draw.Src)

	for _, rec := range records {
		cx, cy, ok := markerCenter(rec)
		if !ok {
			continue
		}

		fill := r.Style.Conforme
		label := r.Style.LabelPass
		if rec.Verdict != VerdictConforme {
			fill = r.Style.NoConforme
			label = r.Style.LabelFail
		}

		drawDisc(img, cx, cy, r.Style.Radius, r.Style.OutlineWidth, fill, r.Style.Outline)
		drawLabel(img, cx, cy, strconv.Itoa(rec.Index), label)
	}

	return img, nil
}

// RenderPlan is a convenience wrapper rendering a plan's records in
// ascending point-index order.
func (r *OverlayRenderer) RenderPlan(p *Plan) (*image.RGBA, error) {
	if p.Image == nil {
		return nil, fmt.Errorf("plan %q: %w", p.Name, ErrNoImage)
	}
	return r.Render(p.Image, p.RecordsInOrder())
}

// markerCenter converts a record's coordinates to integer pixels,
// rejecting non-finite values.
func markerCenter(rec *MeasurementRecord) (int, int, bool) {
	x, y := rec.Coord[0], rec.Coord[1]
	if math.IsNaN(x) || math.IsInf(x, 0) || math.IsNaN(y) || math.IsInf(y, 0) {
		return 0, 0, false
	}
	return int(x), int(y), true
}

// drawDisc draws a filled circle with an outline ring. Pixels outside
// the image bounds are clipped.
func drawDisc(img *image.RGBA, cx, cy, radius, outlineWidth int, fill, outline color.RGBA) {
	inner := radius - outlineWidth
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			d2 := dx*dx + dy*dy
			if d2 > radius*radius {
				continue
			}
			x, y := cx+dx, cy+dy
			if x < img.Bounds().Min.X || x >= img.Bounds().Max.X || y < img.Bounds().Min.Y || y >= img.Bounds().Max.Y {
				continue
			}
			if d2 > inner*inner {
				img.Set(x, y, outline)
			} else {
				img.Set(x, y, fill)
			}
		}
	}
}

// drawLabel renders the index text centered on the marker.
func drawLabel(img *image.RGBA, cx, cy int, text string, c color.RGBA) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Round()

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(cx-width/2, cy+face.Ascent/2-1),
	}
	d.DrawString(text)
}
