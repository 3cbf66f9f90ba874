package audit

import (
	"image"
	"io"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/svg"
)

// RenderSVG writes a vector overlay preview to w: the plan raster
// embedded once, with verdict-colored marker circles drawn over it as
// vector shapes. Marker index labels are left to the raster path,
// which already burns them in; vector text would require shipping a
// font family.
func (r *OverlayRenderer) RenderSVG(w io.Writer, src image.Image, records []*MeasurementRecord) error {
	if src == nil {
		return ErrNoImage
	}

	bounds := src.Bounds()
	width := float64(bounds.Dx())
	height := float64(bounds.Dy())

	svgRenderer := svg.New(w, width, height, nil)

	svgRenderer.RenderImage(src, canvas.Identity)

	for _, rec := range records {
		cx, cy, ok := markerCenter(rec)
		if !ok {
			continue
		}

		fill := r.Style.Conforme
		if rec.Verdict != VerdictConforme {
			fill = r.Style.NoConforme
		}

		style := canvas.DefaultStyle
		style.Fill = canvas.Paint{Color: fill}
		style.Stroke = canvas.Paint{Color: r.Style.Outline}
		style.StrokeWidth = float64(r.Style.OutlineWidth)

		// Canvas Y axis points up; image Y points down.
		marker := canvas.Circle(float64(r.Style.Radius))
		marker = marker.Translate(float64(cx), height-float64(cy))
		svgRenderer.RenderPath(marker, style, canvas.Identity)
	}

	return svgRenderer.Close()
}
