package audit

import "fmt"

// ReferenceTable is the ordered, read-only lookup of regulatory
// targets per area category. Order matters: the first entry is the
// fallback for unknown categories (data recorded before a table
// change must keep loading).
type ReferenceTable struct {
	entries []ReferenceEntry
	index   map[string]int
}

// NewReferenceTable builds a table from the given entries, preserving
// their order. Categories must be unique and targets positive.
func NewReferenceTable(entries []ReferenceEntry) (*ReferenceTable, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("reference table must have at least one entry")
	}

	index := make(map[string]int, len(entries))
	for i, e := range entries {
		if e.Category == "" {
			return nil, fmt.Errorf("reference entry %d: category is required", i)
		}
		if _, dup := index[e.Category]; dup {
			return nil, fmt.Errorf("reference entry %d: duplicate category %q", i, e.Category)
		}
		if e.Em <= 0 {
			return nil, fmt.Errorf("reference entry %q: em must be > 0", e.Category)
		}
		if e.Uo < 0 || e.Uo > 1 {
			return nil, fmt.Errorf("reference entry %q: uo must be in [0,1]", e.Category)
		}
		index[e.Category] = i
	}

	return &ReferenceTable{entries: entries, index: index}, nil
}

// Lookup returns the entry for the category, falling back to the first
// table entry when the category is unknown.
func (t *ReferenceTable) Lookup(category string) ReferenceEntry {
	if i, ok := t.index[category]; ok {
		return t.entries[i]
	}
	return t.entries[0]
}

// Has reports whether the category exists in the table.
func (t *ReferenceTable) Has(category string) bool {
	_, ok := t.index[category]
	return ok
}

// Categories returns the category labels in table order.
func (t *ReferenceTable) Categories() []string {
	out := make([]string, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.Category
	}
	return out
}

// Entries returns a copy of the table entries in order.
func (t *ReferenceTable) Entries() []ReferenceEntry {
	out := make([]ReferenceEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of entries.
func (t *ReferenceTable) Len() int { return len(t.entries) }

// DefaultReferenceTable returns the built-in RETILAP table.
func DefaultReferenceTable() *ReferenceTable {
	t, err := NewReferenceTable(retilapEntries())
	if err != nil {
		// The built-in table is validated by tests; this cannot happen
		// at runtime.
		panic(err)
	}
	return t
}

func retilapEntries() []ReferenceEntry {
	return []ReferenceEntry{
		{Category: "Oficinas - Escritura y lectura detallada", Em: 500, Uo: 0.60},
		{Category: "Oficinas - Trabajo administrativo general", Em: 300, Uo: 0.40},
		{Category: "Oficinas - Recepción y áreas de espera", Em: 200, Uo: 0.40},
		{Category: "Educación - Aulas y laboratorios", Em: 500, Uo: 0.60},
		{Category: "Educación - Bibliotecas y salas de lectura", Em: 500, Uo: 0.60},
		{Category: "Educación - Pasillos y escaleras", Em: 100, Uo: 0.40},
		{Category: "Comercio - Ventas y exhibición general", Em: 300, Uo: 0.40},
		{Category: "Comercio - Cajas y áreas de pago", Em: 500, Uo: 0.60},
		{Category: "Salud - Consultorios y habitaciones pacientes", Em: 300, Uo: 0.60},
		{Category: "Salud - Quirófanos y salas de cirugía", Em: 1000, Uo: 0.70},
		{Category: "Salud - Pasillos hospitales", Em: 100, Uo: 0.40},
		{Category: "Industria - Tareas de precisión alta", Em: 1500, Uo: 0.70},
		{Category: "Industria - Montaje e inspección fina", Em: 750, Uo: 0.60},
		{Category: "Industria - Trabajo ordinario", Em: 300, Uo: 0.40},
		{Category: "Almacenes y depósitos", Em: 200, Uo: 0.40},
		{Category: "Restaurantes y cafeterías - Áreas de mesas", Em: 200, Uo: 0.40},
		{Category: "Restaurantes - Cocinas", Em: 500, Uo: 0.60},
		{Category: "Hoteles - Habitaciones", Em: 200, Uo: 0.40},
		{Category: "Hoteles - Pasillos y escaleras", Em: 100, Uo: 0.40},
		{Category: "Vías M1 - Alta velocidad / tránsito pesado", Em: 50, Uo: 0.40},
		{Category: "Vías M2 - Velocidad media / tránsito mixto", Em: 30, Uo: 0.35},
		{Category: "Vías M3 - Velocidad moderada / zonas urbanas", Em: 20, Uo: 0.35},
		{Category: "Vías M4 - Zonas residenciales / colectoras", Em: 10, Uo: 0.30},
		{Category: "Vías M5 - Peatonal / ciclorrutas principales", Em: 7.5, Uo: 0.25},
		{Category: "Vías M6 - Peatonal secundaria / andenes", Em: 5, Uo: 0.20},
		{Category: "Estacionamientos exteriores", Em: 30, Uo: 0.30},
		{Category: "Parques y plazas públicas", Em: 2, Uo: 0.20},
		{Category: "Áreas deportivas - Fútbol / canchas grandes", Em: 100, Uo: 0.40},
		{Category: "Áreas deportivas - Tenis / básquet", Em: 200, Uo: 0.50},
		{Category: "Estaciones de servicio", Em: 50, Uo: 0.40},
		{Category: "Túneles - Zona de acceso (noche)", Em: 30, Uo: 0.40},
		{Category: "Túneles - Zona interior", Em: 5, Uo: 0.40},
	}
}
