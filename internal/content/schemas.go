package content

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ashureev/schema-quest/internal/domain"
)

// Schema is the subset of the OpenAPI schema object the content service
// accepts as responseSchema.
type Schema struct {
	Type       string             `json:"type"`
	Properties map[string]*Schema `json:"properties,omitempty"`
	Items      *Schema            `json:"items,omitempty"`
	Enum       []string           `json:"enum,omitempty"`
	Required   []string           `json:"required,omitempty"`
}

func str() *Schema { return &Schema{Type: "STRING"} }

func object(required []string, props map[string]*Schema) *Schema {
	return &Schema{Type: "OBJECT", Properties: props, Required: required}
}

func array(items *Schema) *Schema { return &Schema{Type: "ARRAY", Items: items} }

var confidenceEnum = &Schema{Type: "STRING", Enum: []string{"High", "Medium", "Low"}}

var fieldsSchema = array(object(
	[]string{"name", "type", "confidence"},
	map[string]*Schema{
		"name":         str(),
		"originalName": str(),
		"type":         str(),
		"confidence":   confidenceEnum,
		"description":  str(),
	},
))

var questionSchema = object(
	[]string{"field", "observation", "ambiguity", "options"},
	map[string]*Schema{
		"field":       str(),
		"observation": str(),
		"ambiguity":   str(),
		"options": array(object(
			[]string{"text", "value", "tradeoff", "suggestedRationale"},
			map[string]*Schema{
				"text":               str(),
				"value":              str(),
				"tradeoff":           str(),
				"suggestedRationale": str(),
			},
		)),
		"recommendedIndex":         {Type: "INTEGER"},
		"recommendationConfidence": confidenceEnum,
	},
)

var cardSchema = object(
	[]string{"technicalNote", "chefReaction"},
	map[string]*Schema{
		"technicalNote": str(),
		"chefReaction":  str(),
	},
)

var packageSchema = object(
	[]string{"schemaJson", "ddl", "fieldDocs", "glossary", "transformationNotes", "limitations"},
	map[string]*Schema{
		"schemaJson": str(),
		"ddl":        str(),
		"fieldDocs": array(object(
			[]string{"field", "description"},
			map[string]*Schema{
				"field":         str(),
				"description":   str(),
				"sourceMapping": str(),
				"tier":          str(),
			},
		)),
		"glossary": array(object(
			[]string{"term", "definition"},
			map[string]*Schema{
				"term":       str(),
				"definition": str(),
			},
		)),
		"transformationNotes": str(),
		"limitations":         str(),
	},
)

type fieldWire struct {
	Name         string `json:"name"`
	OriginalName string `json:"originalName"`
	Type         string `json:"type"`
	Confidence   string `json:"confidence"`
	Description  string `json:"description"`
}

type optionWire struct {
	Text               string `json:"text"`
	Value              string `json:"value"`
	Tradeoff           string `json:"tradeoff"`
	SuggestedRationale string `json:"suggestedRationale"`
}

type questionWire struct {
	Field                    string       `json:"field"`
	Observation              string       `json:"observation"`
	Ambiguity                string       `json:"ambiguity"`
	Options                  []optionWire `json:"options"`
	RecommendedIndex         *int         `json:"recommendedIndex"`
	RecommendationConfidence string       `json:"recommendationConfidence"`
}

type cardWire struct {
	TechnicalNote string `json:"technicalNote"`
	ChefReaction  string `json:"chefReaction"`
}

type fieldDocWire struct {
	Field         string `json:"field"`
	Description   string `json:"description"`
	SourceMapping string `json:"sourceMapping"`
	Tier          string `json:"tier"`
}

type glossaryWire struct {
	Term       string `json:"term"`
	Definition string `json:"definition"`
}

type packageWire struct {
	SchemaJSON          string         `json:"schemaJson"`
	DDL                 string         `json:"ddl"`
	FieldDocs           []fieldDocWire `json:"fieldDocs"`
	Glossary            []glossaryWire `json:"glossary"`
	TransformationNotes string         `json:"transformationNotes"`
	Limitations         string         `json:"limitations"`
}

func fieldsFromWire(wire []fieldWire) ([]domain.Field, error) {
	out := make([]domain.Field, 0, len(wire))
	for _, w := range wire {
		name := strings.TrimSpace(w.Name)
		if name == "" {
			continue
		}
		conf := domain.Confidence(w.Confidence)
		if !conf.Valid() {
			conf = domain.ConfidenceLow
		}
		orig := w.OriginalName
		if orig == "" {
			orig = name
		}
		out = append(out, domain.Field{
			Name:         name,
			OriginalName: orig,
			Type:         w.Type,
			Confidence:   conf,
			Description:  w.Description,
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no fields extracted", ErrMalformedResponse)
	}
	return out, nil
}

func questionFromWire(w questionWire, tier domain.Tier) (*domain.PendingQuestion, error) {
	if strings.TrimSpace(w.Field) == "" {
		return nil, fmt.Errorf("%w: question has no field", ErrMalformedResponse)
	}
	q := &domain.PendingQuestion{
		FieldID:     w.Field,
		Observation: w.Observation,
		Ambiguity:   w.Ambiguity,
		Tier:        tier,
	}
	for _, o := range w.Options {
		value := o.Value
		if value == "" {
			value = o.Text
		}
		if value == "" {
			continue
		}
		q.Options = append(q.Options, domain.Option{
			Label:              o.Text,
			Value:              value,
			Tradeoff:           o.Tradeoff,
			SuggestedRationale: o.SuggestedRationale,
		})
	}
	if len(q.Options) == 0 {
		return nil, fmt.Errorf("%w: question has no options", ErrMalformedResponse)
	}
	if w.RecommendedIndex != nil && *w.RecommendedIndex >= 0 && *w.RecommendedIndex < len(q.Options) {
		idx := *w.RecommendedIndex
		q.RecommendedIndex = &idx
		if conf := domain.Confidence(w.RecommendationConfidence); conf.Valid() {
			q.RecommendationConfidence = &conf
		}
	}
	return q, nil
}

func cardFromWire(w cardWire, field, decision, rationale string, tier domain.Tier) *domain.DecisionAnnotation {
	return &domain.DecisionAnnotation{
		FieldName:      field,
		Tier:           tier,
		Decision:       decision,
		Rationale:      rationale,
		TechnicalNote:  w.TechnicalNote,
		FlavorReaction: w.ChefReaction,
	}
}

func packageFromWire(w packageWire) (*domain.FinalPackage, error) {
	pkg := &domain.FinalPackage{
		Schema:              map[string]any{},
		DDL:                 w.DDL,
		FieldDocs:           make(map[string]domain.FieldDoc, len(w.FieldDocs)),
		Glossary:            make(map[string]string, len(w.Glossary)),
		TransformationNotes: w.TransformationNotes,
		Limitations:         w.Limitations,
	}
	if s := strings.TrimSpace(w.SchemaJSON); s != "" {
		if err := json.Unmarshal([]byte(s), &pkg.Schema); err != nil {
			return nil, fmt.Errorf("%w: schema is not a JSON object: %v", ErrMalformedResponse, err)
		}
	}
	if strings.TrimSpace(pkg.DDL) == "" {
		return nil, fmt.Errorf("%w: package has no DDL", ErrMalformedResponse)
	}
	for _, d := range w.FieldDocs {
		if d.Field == "" {
			continue
		}
		pkg.FieldDocs[d.Field] = domain.FieldDoc{
			Description:   d.Description,
			SourceMapping: d.SourceMapping,
			Tier:          domain.Tier(d.Tier),
		}
	}
	for _, g := range w.Glossary {
		if g.Term == "" {
			continue
		}
		pkg.Glossary[g.Term] = g.Definition
	}
	return pkg, nil
}
