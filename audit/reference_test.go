package audit

import "testing"

func TestDefaultReferenceTable(t *testing.T) {
	table := DefaultReferenceTable()
	if table.Len() == 0 {
		t.Fatal("built-in table is empty")
	}

	entry := table.Lookup("Oficinas: escritura y lectura")
	if entry.Em != 500 {
		t.Errorf("Em = %v, want 500", entry.Em)
	}
	if entry.Uo != 0.6 {
		t.Errorf("Uo = %v, want 0.6", entry.Uo)
	}
}

func TestLookupFallsBackToFirstEntry(t *testing.T) {
	table, err := NewReferenceTable([]ReferenceEntry{
		{Category: "Pasillos", Em: 100, Uo: 0.4},
		{Category: "Oficinas", Em: 500, Uo: 0.6},
	})
	if err != nil {
		t.Fatalf("NewReferenceTable: %v", err)
	}

	got := table.Lookup("no existe")
	if got.Category != "Pasillos" {
		t.Errorf("fallback category = %q, want %q", got.Category, "Pasillos")
	}
	if table.Has("no existe") {
		t.Error("Has should be false for unknown category")
	}
	if !table.Has("Oficinas") {
		t.Error("Has should be true for known category")
	}
}

func TestNewReferenceTableValidation(t *testing.T) {
	tests := []struct {
		name    string
		entries []ReferenceEntry
	}{
		{"empty", nil},
		{"duplicate category", []ReferenceEntry{
			{Category: "Oficinas", Em: 500, Uo: 0.6},
			{Category: "Oficinas", Em: 300, Uo: 0.6},
		}},
		{"non-positive Em", []ReferenceEntry{{Category: "Oficinas", Em: 0, Uo: 0.6}}},
		{"Uo out of range", []ReferenceEntry{{Category: "Oficinas", Em: 500, Uo: 1.5}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewReferenceTable(tt.entries); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestCategoriesPreserveOrder(t *testing.T) {
	table, err := NewReferenceTable([]ReferenceEntry{
		{Category: "B", Em: 100, Uo: 0.4},
		{Category: "A", Em: 200, Uo: 0.4},
	})
	if err != nil {
		t.Fatalf("NewReferenceTable: %v", err)
	}
	cats := table.Categories()
	if len(cats) != 2 || cats[0] != "B" || cats[1] != "A" {
		t.Errorf("Categories = %v, want [B A]", cats)
	}
}
