package audit

import (
	"image"

	"github.com/paulmach/orb"
)

// Verdict is the pass/fail outcome of comparing a point's average
// illuminance against its category's Em target.
type Verdict string

const (
	VerdictConforme   Verdict = "Conforme"
	VerdictNoConforme Verdict = "No conforme"
)

// ReferenceEntry maps an area category to its regulatory targets:
// Em is maintained average illuminance in lux, Uo the minimum
// uniformity ratio (carried for reporting only).
type ReferenceEntry struct {
	Category string  `yaml:"category" json:"category"`
	Em       float64 `yaml:"em" json:"em"`
	Uo       float64 `yaml:"uo" json:"uo"`
}

// MeasurementRecord holds the four readings taken at a marked point
// together with the derived average, the verdict, and a snapshot of
// the reference targets used for evaluation. A record only exists once
// all four readings pass the measurement rule.
type MeasurementRecord struct {
	Index      int          `json:"index"`
	Coord      orb.Point    `json:"coord"`
	Category   string       `json:"category"`
	EmRequired float64      `json:"emRequired"`
	UoMin      float64      `json:"uoMin"`
	Readings   [4]float64   `json:"readings"`
	Average    float64      `json:"average"`
	Verdict    Verdict      `json:"verdict"`
	Note       string       `json:"note"`
	HasPhoto   bool         `json:"hasPhoto"`
}

// Plan is one uploaded floor-plan image plus the points and
// measurements placed on it. Image is nil when the stored document had
// no usable image; operations that need it must refuse.
// Invariant: record keys are a subset of 1..len(Points).
type Plan struct {
	Name        string
	Image       *image.RGBA
	Points      []orb.Point
	Records     map[int]*MeasurementRecord
	Photos      map[int][]byte
	DedupRadius float64
}

// GeneralInfo is the shared project metadata entered on creation.
type GeneralInfo struct {
	OrderNumber     string `json:"numero_orden"`
	Client          string `json:"nombre_empresa"`
	System          string `json:"caracteristicas_sistema"`
	Environment     string `json:"estructura_entorno"`
	Date            string `json:"fecha,omitempty"`
	DefaultCategory string `json:"tipo_area"`
}

// Project is a named audit job: shared metadata plus its plans in
// insertion order. The name doubles as the storage key.
type Project struct {
	Name    string
	General GeneralInfo

	planNames []string
	plans     map[string]*Plan
}
