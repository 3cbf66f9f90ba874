package audit

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"sort"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// The persisted document keeps the external JSON shape of the original
// field tool so existing project files keep loading:
//
//	{name: {general: {...}, planos: {plan: {puntos: [[x,y],...],
//	  data: [row...], fotos: {"1": b64}, img_base64: b64PNG}}}}
//
// Images are re-encoded as base64 PNG. The row's "Coordenadas" string
// form is written for compatibility but never used internally; the
// structured puntos list is authoritative.

type projectDocument struct {
	General GeneralInfo              `json:"general"`
	Planos  map[string]*planDocument `json:"planos"`

	// PlanOrder preserves plan insertion order across reloads. Older
	// documents lack it; those fall back to sorted plan names.
	PlanOrder []string `json:"plano_orden,omitempty"`
}

type planDocument struct {
	Puntos    []orb.Point       `json:"puntos"`
	Data      []rowDocument     `json:"data"`
	Fotos     map[string]string `json:"fotos,omitempty"`
	ImgBase64 string            `json:"img_base64,omitempty"`
}

type rowDocument struct {
	Numero      int     `json:"Número"`
	Coordenadas string  `json:"Coordenadas"`
	TipoArea    string  `json:"TipoArea,omitempty"`
	Em          float64 `json:"Em,omitempty"`
	Uo          float64 `json:"Uo,omitempty"`
	Med1        float64 `json:"Med1"`
	Med2        float64 `json:"Med2"`
	Med3        float64 `json:"Med3"`
	Med4        float64 `json:"Med4"`
	Promedio    float64 `json:"Promedio"`
	Resultado   string  `json:"Resultado"`
	Color       string  `json:"Color"`
	Nota        string  `json:"Nota"`
	Foto        bool    `json:"Foto"`
}

// EncodeProjects serializes all projects to the persisted JSON shape.
func EncodeProjects(projects map[string]*Project) ([]byte, error) {
	docs := make(map[string]*projectDocument, len(projects))
	for name, pr := range projects {
		doc, err := encodeProject(pr)
		if err != nil {
			return nil, fmt.Errorf("encoding project %q: %w", name, err)
		}
		docs[name] = doc
	}
	return json.MarshalIndent(docs, "", "  ")
}

// DecodeProjects parses the persisted JSON shape back into projects.
// A plan whose image fails to decode is kept with a nil image rather
// than dropped: the caller prompts for re-upload.
func DecodeProjects(data []byte, table *ReferenceTable) (map[string]*Project, error) {
	var docs map[string]*projectDocument
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("parsing projects JSON: %w", err)
	}

	projects := make(map[string]*Project, len(docs))
	for name, doc := range docs {
		projects[name] = decodeProject(name, doc, table)
	}
	return projects, nil
}

func encodeProject(pr *Project) (*projectDocument, error) {
	doc := &projectDocument{
		General:   pr.General,
		Planos:    make(map[string]*planDocument),
		PlanOrder: pr.PlanNames(),
	}

	for _, plan := range pr.Plans() {
		pd := &planDocument{
			Puntos: plan.Points,
			Data:   make([]rowDocument, 0, len(plan.Records)),
		}

		if plan.Image != nil {
			b64, err := encodeImageBase64(plan.Image)
			if err != nil {
				return nil, fmt.Errorf("plan %q image: %w", plan.Name, err)
			}
			pd.ImgBase64 = b64
		}

		for _, rec := range plan.RecordsInOrder() {
			colorName := "green"
			if rec.Verdict != VerdictConforme {
				colorName = "red"
			}
			pd.Data = append(pd.Data, rowDocument{
				Numero:      rec.Index,
				Coordenadas: formatCoord(rec.Coord),
				TipoArea:    rec.Category,
				Em:          rec.EmRequired,
				Uo:          rec.UoMin,
				Med1:        rec.Readings[0],
				Med2:        rec.Readings[1],
				Med3:        rec.Readings[2],
				Med4:        rec.Readings[3],
				Promedio:    rec.Average,
				Resultado:   string(rec.Verdict),
				Color:       colorName,
				Nota:        rec.Note,
				Foto:        rec.HasPhoto,
			})
		}

		if len(plan.Photos) > 0 {
			pd.Fotos = make(map[string]string, len(plan.Photos))
			for idx, raw := range plan.Photos {
				pd.Fotos[strconv.Itoa(idx)] = base64.StdEncoding.EncodeToString(raw)
			}
		}

		doc.Planos[plan.Name] = pd
	}

	return doc, nil
}

func decodeProject(name string, doc *projectDocument, table *ReferenceTable) *Project {
	pr := NewProject(name, doc.General)

	for _, planName := range planOrder(doc) {
		pd, ok := doc.Planos[planName]
		if !ok {
			continue
		}

		plan := NewPlan(planName)
		plan.Points = append(plan.Points, pd.Puntos...)

		if pd.ImgBase64 != "" {
			if img, err := decodeImageBase64(pd.ImgBase64); err == nil {
				plan.Image = img
			}
			// Decode failure leaves a nil image; the plan survives and
			// the user is asked to re-upload.
		}

		for _, row := range pd.Data {
			rec := decodeRow(row, plan, table)
			if rec == nil {
				continue
			}
			plan.Records[rec.Index] = rec
		}

		for key, b64 := range pd.Fotos {
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 1 {
				continue
			}
			raw, err := base64.StdEncoding.DecodeString(b64)
			if err != nil {
				continue
			}
			plan.Photos[idx] = raw
		}

		// AddPlan cannot fail here: names come from a map's keys.
		_ = pr.AddPlan(plan)
	}

	return pr
}

// decodeRow rebuilds a record from a persisted row. Coordinates come
// from the structured point list when the index matches; the legacy
// "(x, y)" string is only a fallback, and a row with neither is
// dropped rather than failing the whole load.
func decodeRow(row rowDocument, plan *Plan, table *ReferenceTable) *MeasurementRecord {
	if row.Numero < 1 {
		return nil
	}

	var coord orb.Point
	if row.Numero <= len(plan.Points) {
		coord = plan.Points[row.Numero-1]
	} else if c, err := parseCoord(row.Coordenadas); err == nil {
		coord = c
	} else {
		return nil
	}

	em, uo := row.Em, row.Uo
	if em <= 0 {
		entry := table.Lookup(row.TipoArea)
		em, uo = entry.Em, entry.Uo
	}

	category := row.TipoArea
	if category == "" {
		category = table.Lookup("").Category
	}

	verdict := Verdict(row.Resultado)
	if verdict != VerdictConforme && verdict != VerdictNoConforme {
		verdict = VerdictNoConforme
		if row.Promedio >= em {
			verdict = VerdictConforme
		}
	}

	return &MeasurementRecord{
		Index:      row.Numero,
		Coord:      coord,
		Category:   category,
		EmRequired: em,
		UoMin:      uo,
		Readings:   [4]float64{row.Med1, row.Med2, row.Med3, row.Med4},
		Average:    row.Promedio,
		Verdict:    verdict,
		Note:       row.Nota,
		HasPhoto:   row.Foto,
	}
}

func planOrder(doc *projectDocument) []string {
	if len(doc.PlanOrder) > 0 {
		return doc.PlanOrder
	}
	names := make([]string, 0, len(doc.Planos))
	for name := range doc.Planos {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// formatCoord renders the legacy "(x, y)" form with truncated integer
// pixels, as the original tool stored it.
func formatCoord(p orb.Point) string {
	return fmt.Sprintf("(%d, %d)", int(p[0]), int(p[1]))
}

// parseCoord parses the legacy "(x, y)" form. Only used when loading
// old documents whose point list is out of sync with the rows.
func parseCoord(s string) (orb.Point, error) {
	trimmed := strings.TrimSpace(s)
	trimmed = strings.TrimPrefix(trimmed, "(")
	trimmed = strings.TrimSuffix(trimmed, ")")
	parts := strings.Split(trimmed, ",")
	if len(parts) != 2 {
		return orb.Point{}, fmt.Errorf("malformed coordinate %q", s)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return orb.Point{}, fmt.Errorf("malformed coordinate %q: %w", s, err)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return orb.Point{}, fmt.Errorf("malformed coordinate %q: %w", s, err)
	}
	return orb.Point{x, y}, nil
}

// encodeImageBase64 re-encodes an image as base64 PNG. PNG encoding is
// deterministic, which keeps save/load round-trips pixel-identical.
func encodeImageBase64(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encoding PNG: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// decodeImageBase64 decodes a stored base64 PNG back to RGBA.
func decodeImageBase64(b64 string) (*image.RGBA, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("decoding base64 image: %w", err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decoding PNG: %w", err)
	}
	rgba, ok := img.(*image.RGBA)
	if !ok {
		rgba = image.NewRGBA(img.Bounds())
		draw.Draw(rgba, img.Bounds(), img, img.Bounds().Min, draw.Src)
	}
	return rgba, nil
}
