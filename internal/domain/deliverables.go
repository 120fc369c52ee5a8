package domain

// FieldDoc is one data dictionary entry of the final package.
type FieldDoc struct {
	Description   string `json:"description" yaml:"description"`
	SourceMapping string `json:"source_mapping" yaml:"source_mapping"`
	Tier          Tier   `json:"tier" yaml:"tier"`
}

// FinalPackage is the set of artifacts synthesized once all decisions are made.
type FinalPackage struct {
	Schema              map[string]any      `json:"schema" yaml:"schema"`
	DDL                 string              `json:"ddl" yaml:"ddl"`
	FieldDocs           map[string]FieldDoc `json:"field_docs" yaml:"field_docs"`
	Glossary            map[string]string   `json:"glossary" yaml:"glossary"`
	TransformationNotes string              `json:"transformation_notes" yaml:"transformation_notes"`
	Limitations         string              `json:"limitations" yaml:"limitations"`
}
