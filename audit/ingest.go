package audit

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"

	xdraw "golang.org/x/image/draw"
)

// DefaultMaxImageWidth bounds the stored plan image width. Uploads are
// downscaled at ingest to keep the in-memory and persisted footprint
// of base64-embedded plans manageable.
const DefaultMaxImageWidth = 1600

// PageRasterizer turns the first page of a paginated document (PDF
// upload) into a raster image. Rasterization itself is an external
// collaborator; the ingester only calls it.
type PageRasterizer func(data []byte) (image.Image, error)

// Ingester decodes uploads into normalized RGB plan images.
type Ingester struct {
	MaxWidth   int
	Rasterizer PageRasterizer
}

// NewIngester creates an ingester with the default maximum width and
// no document rasterizer.
func NewIngester() *Ingester {
	return &Ingester{MaxWidth: DefaultMaxImageWidth}
}

// Decode turns upload bytes into a normalized, width-bounded RGBA
// image. contentType selects the document path ("application/pdf");
// everything else is treated as a raster image. A decode failure
// aborts plan creation: no partial plan is ever produced.
func (ing *Ingester) Decode(data []byte, contentType string) (*image.RGBA, error) {
	var (
		img image.Image
		err error
	)

	if contentType == "application/pdf" {
		if ing.Rasterizer == nil {
			return nil, ErrNoRasterizer
		}
		img, err = ing.Rasterizer(data)
		if err != nil {
			return nil, fmt.Errorf("rasterizing document: %w", err)
		}
	} else {
		img, _, err = image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding image: %w", err)
		}
	}

	return ing.normalize(img), nil
}

// normalize converts to RGBA and downscales to MaxWidth, preserving
// aspect ratio.
func (ing *Ingester) normalize(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	maxWidth := ing.MaxWidth
	if maxWidth <= 0 {
		maxWidth = DefaultMaxImageWidth
	}

	if w <= maxWidth {
		rgba := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
		return rgba
	}

	scaled := image.NewRGBA(image.Rect(0, 0, maxWidth, h*maxWidth/w))
	xdraw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), img, bounds, xdraw.Src, nil)
	return scaled
}
