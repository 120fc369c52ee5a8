package export

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/ashureev/schema-quest/internal/domain"
)

func samplePackage(t *testing.T) *domain.FinalPackage {
	t.Helper()
	// Decode the schema through JSON so numbers and nested values have the
	// same dynamic types any decoder would produce.
	var schema map[string]any
	raw := `{"table":"gold.assets","fields":[{"name":"vin","type":"STRING","mode":"REQUIRED"},{"name":"gvwr_lbs","type":"NUMERIC"}]}`
	if err := json.Unmarshal([]byte(raw), &schema); err != nil {
		t.Fatalf("schema fixture: %v", err)
	}
	return &domain.FinalPackage{
		Schema: schema,
		DDL:    "CREATE TABLE gold.assets (\n  vin STRING NOT NULL,\n  gvwr_lbs NUMERIC\n)\nPARTITION BY DATE(_ingested_at);",
		FieldDocs: map[string]domain.FieldDoc{
			"vin":      {Description: "Vehicle identification number", SourceMapping: "VIN", Tier: domain.TierBronze},
			"gvwr_lbs": {Description: "Gross vehicle weight rating", SourceMapping: "GVWR (kg) * 2.2046", Tier: domain.TierSilver},
		},
		Glossary: map[string]string{
			"GVWR": "Gross Vehicle Weight Rating",
			"BEV":  "Battery Electric Vehicle",
		},
		TransformationNotes: "Weights normalized to pounds.",
		Limitations:         "Charging data not present in source.",
	}
}

func TestJSONRoundTrip(t *testing.T) {
	t.Parallel()

	pkg := samplePackage(t)
	data, err := Marshal(pkg, FormatJSON)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal(data, FormatJSON)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !reflect.DeepEqual(got, pkg) {
		t.Fatalf("round trip mismatch:\n got %#v\nwant %#v", got, pkg)
	}
}

func TestYAMLRoundTripPreservesFields(t *testing.T) {
	t.Parallel()

	pkg := samplePackage(t)
	data, err := Marshal(pkg, FormatYAML)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal(data, FormatYAML)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if got.DDL != pkg.DDL || got.TransformationNotes != pkg.TransformationNotes || got.Limitations != pkg.Limitations {
		t.Fatalf("text fields differ: %#v", got)
	}
	if !reflect.DeepEqual(got.FieldDocs, pkg.FieldDocs) {
		t.Fatalf("field docs differ: %#v", got.FieldDocs)
	}
	if !reflect.DeepEqual(got.Glossary, pkg.Glossary) {
		t.Fatalf("glossary differs: %#v", got.Glossary)
	}
	// YAML decodes nested sequences and maps with its own dynamic types,
	// so compare the schema by its JSON form.
	want, _ := json.Marshal(pkg.Schema)
	have, _ := json.Marshal(got.Schema)
	if string(want) != string(have) {
		t.Fatalf("schema differs:\n got %s\nwant %s", have, want)
	}
}

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{"": FormatJSON, "JSON": FormatJSON, "yml": FormatYAML, "yaml": FormatYAML}
	for in, want := range tests {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Fatalf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Fatal("expected error for xml")
	}
}

func TestMarshalNilPackage(t *testing.T) {
	if _, err := Marshal(nil, FormatJSON); err == nil {
		t.Fatal("expected error for nil package")
	}
}
