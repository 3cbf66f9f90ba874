package audit

import (
	"bytes"
	"fmt"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"os"

	"codeberg.org/go-pdf/fpdf"
	qrcode "github.com/skip2/go-qrcode"
)

// PDFReport renders audit projects into printable reports. One report
// per project, or a batch document with every project appended.
type PDFReport struct {
	Title    string
	LogoPath string

	// BaseURL, when set, adds a QR code on each cover page linking to
	// the project's report endpoint.
	BaseURL string

	Renderer *OverlayRenderer
}

// NewPDFReport builds a report generator from config.
func NewPDFReport(cfg ReportConfig, renderer *OverlayRenderer) *PDFReport {
	if renderer == nil {
		renderer = NewOverlayRenderer()
	}
	return &PDFReport{
		Title:    cfg.Title,
		LogoPath: cfg.LogoPath,
		BaseURL:  cfg.BaseURL,
		Renderer: renderer,
	}
}

// WriteProject writes a full report for one project.
func (r *PDFReport) WriteProject(w io.Writer, pr *Project) error {
	pdf := r.newDoc()
	if err := r.addProject(pdf, pr); err != nil {
		return err
	}
	return pdf.Output(w)
}

// WriteAll writes a single document covering every project in order.
func (r *PDFReport) WriteAll(w io.Writer, projects []*Project) error {
	pdf := r.newDoc()
	for _, pr := range projects {
		if err := r.addProject(pdf, pr); err != nil {
			return err
		}
	}
	return pdf.Output(w)
}

func (r *PDFReport) newDoc() *fpdf.Fpdf {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, 15)
	return pdf
}

func (r *PDFReport) addProject(pdf *fpdf.Fpdf, pr *Project) error {
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	r.addCover(pdf, tr, pr)

	for _, plan := range pr.Plans() {
		if err := r.addPlan(pdf, tr, pr.Name, plan); err != nil {
			return fmt.Errorf("plan %q: %w", plan.Name, err)
		}
	}
	return pdf.Error()
}

func (r *PDFReport) addCover(pdf *fpdf.Fpdf, tr func(string) string, pr *Project) {
	pdf.AddPage()

	if r.LogoPath != "" {
		if _, err := os.Stat(r.LogoPath); err == nil {
			pdf.ImageOptions(r.LogoPath, 80, 12, 50, 0, false, fpdf.ImageOptions{}, 0, "")
			pdf.SetY(45)
		}
	}

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 12, tr(r.Title), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 10, tr(pr.Name), "", 1, "C", false, 0, "")
	pdf.Ln(6)

	coverRow := func(label, value string) {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(60, 8, tr(label), "1", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.CellFormat(130, 8, tr(value), "1", 1, "L", false, 0, "")
	}

	g := pr.General
	coverRow("Número de orden", g.OrderNumber)
	coverRow("Empresa", g.Client)
	coverRow("Sistema de iluminación", g.System)
	coverRow("Estructura y entorno", g.Environment)
	coverRow("Fecha", g.Date)
	coverRow("Tipo de área por defecto", g.DefaultCategory)
	pdf.Ln(8)

	sum := Summarize(pr)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 8, tr("Resumen de conformidad"), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 7, tr(fmt.Sprintf("Puntos evaluados: %d", sum.TotalPoints)), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 7, tr(fmt.Sprintf("Conformes: %d", sum.Conformes)), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 7, tr(fmt.Sprintf("No conformes: %d", sum.NoConformes)), "", 1, "L", false, 0, "")
	if sum.PctConforme != nil {
		pdf.CellFormat(0, 7, tr(fmt.Sprintf("Conformidad: %.1f%%", *sum.PctConforme)), "", 1, "L", false, 0, "")
	}

	if r.BaseURL != "" {
		r.addQR(pdf, tr, pr.Name)
	}
}

// addQR draws a QR code in the lower right of the cover linking to the
// project's online report.
func (r *PDFReport) addQR(pdf *fpdf.Fpdf, tr func(string) string, project string) {
	link := fmt.Sprintf("%s/api/projects/%s/report.pdf", r.BaseURL, url.PathEscape(project))

	data, err := qrcode.Encode(link, qrcode.Medium, 256)
	if err != nil {
		return
	}

	name := "qr-" + project
	opts := fpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))
	pdf.ImageOptions(name, 160, 240, 35, 35, false, opts, 0, "")

	pdf.SetY(276)
	pdf.SetX(150)
	pdf.SetFont("Helvetica", "", 8)
	pdf.CellFormat(55, 4, tr("Reporte en línea"), "", 1, "C", false, 0, "")
}

func (r *PDFReport) addPlan(pdf *fpdf.Fpdf, tr func(string) string, project string, plan *Plan) error {
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 10, tr("Plano: "+plan.Name), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	if plan.HasImage() {
		if err := r.addOverlay(pdf, project, plan); err != nil {
			return err
		}
	}

	records := plan.RecordsInOrder()
	if len(records) > 0 {
		r.addResultsTable(pdf, tr, records)
		r.addNotes(pdf, tr, project, plan, records)
	}
	return nil
}

// addOverlay composites the annotated floor plan into the page, scaled
// to fit the printable area while keeping its aspect ratio.
func (r *PDFReport) addOverlay(pdf *fpdf.Fpdf, project string, plan *Plan) error {
	img, err := r.Renderer.RenderPlan(plan)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("encoding overlay: %w", err)
	}

	const maxW, maxH = 190.0, 150.0
	b := img.Bounds()
	w := maxW
	h := w * float64(b.Dy()) / float64(b.Dx())
	if h > maxH {
		h = maxH
		w = h * float64(b.Dx()) / float64(b.Dy())
	}

	name := fmt.Sprintf("overlay-%s-%s", project, plan.Name)
	opts := fpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader(name, opts, &buf)
	x := (210 - w) / 2
	pdf.ImageOptions(name, x, pdf.GetY(), w, h, true, opts, 0, "")
	pdf.Ln(4)
	return nil
}

func (r *PDFReport) addResultsTable(pdf *fpdf.Fpdf, tr func(string) string, records []*MeasurementRecord) {
	widths := []float64{12, 26, 30, 12, 11, 12, 12, 12, 12, 16, 25}
	headers := []string{"Punto", "Coordenadas", "Tipo de área", "Em", "Uo", "Med 1", "Med 2", "Med 3", "Med 4", "Prom.", "Resultado"}

	pdf.SetFont("Helvetica", "B", 8)
	pdf.SetFillColor(220, 220, 220)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, tr(h), "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 8)
	for _, rec := range records {
		cells := []string{
			fmt.Sprintf("%d", rec.Index),
			formatCoord(rec.Coord),
			rec.Category,
			trimFloat(rec.EmRequired),
			trimFloat(rec.UoMin),
			trimFloat(rec.Readings[0]),
			trimFloat(rec.Readings[1]),
			trimFloat(rec.Readings[2]),
			trimFloat(rec.Readings[3]),
			fmt.Sprintf("%.1f", rec.Average),
		}
		for i, c := range cells {
			pdf.CellFormat(widths[i], 6, tr(c), "1", 0, "C", false, 0, "")
		}

		if rec.Verdict == VerdictNoConforme {
			pdf.SetTextColor(255, 0, 0)
		} else {
			pdf.SetTextColor(0, 128, 0)
		}
		pdf.CellFormat(widths[len(widths)-1], 6, tr(string(rec.Verdict)), "1", 0, "C", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
		pdf.Ln(-1)
	}
	pdf.Ln(4)
}

// addNotes appends the evidence section: per-point notes and attached
// photos.
func (r *PDFReport) addNotes(pdf *fpdf.Fpdf, tr func(string) string, project string, plan *Plan, records []*MeasurementRecord) {
	wrote := false
	for _, rec := range records {
		photo, hasPhoto := plan.Photo(rec.Index)
		if rec.Note == "" && !hasPhoto {
			continue
		}

		if !wrote {
			pdf.SetFont("Helvetica", "B", 12)
			pdf.CellFormat(0, 8, tr("Observaciones y evidencia"), "", 1, "L", false, 0, "")
			wrote = true
		}

		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(0, 7, tr(fmt.Sprintf("Punto %d", rec.Index)), "", 1, "L", false, 0, "")
		if rec.Note != "" {
			pdf.SetFont("Helvetica", "", 10)
			pdf.MultiCell(0, 5, tr(rec.Note), "", "L", false)
		}
		if hasPhoto {
			imageType := sniffImageType(photo)
			if imageType != "" {
				name := fmt.Sprintf("photo-%s-%s-%d", project, plan.Name, rec.Index)
				opts := fpdf.ImageOptions{ImageType: imageType}
				pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(photo))
				pdf.ImageOptions(name, pdf.GetX(), pdf.GetY(), 70, 0, true, opts, 0, "")
			}
		}
		pdf.Ln(3)
	}
}

// sniffImageType maps content sniffing to fpdf image type names.
// Unsupported formats return "" and the photo is skipped.
func sniffImageType(data []byte) string {
	switch http.DetectContentType(data) {
	case "image/png":
		return "PNG"
	case "image/jpeg":
		return "JPG"
	case "image/gif":
		return "GIF"
	default:
		return ""
	}
}

func trimFloat(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	for len(s) > 0 && s[len(s)-1] == '0' {
		s = s[:len(s)-1]
	}
	if len(s) > 0 && s[len(s)-1] == '.' {
		s = s[:len(s)-1]
	}
	return s
}
