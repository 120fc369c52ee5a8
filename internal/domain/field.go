package domain

// Field describes one column discovered in an uploaded source.
type Field struct {
	Name         string     `json:"name"`
	OriginalName string     `json:"original_name"`
	Type         string     `json:"type"`
	Confidence   Confidence `json:"confidence"`
	Description  string     `json:"description"`
}

// Option is one answer to a pending question.
type Option struct {
	Label              string `json:"label"`
	Value              string `json:"value"`
	Tradeoff           string `json:"tradeoff"`
	SuggestedRationale string `json:"suggested_rationale"`
}

// PendingQuestion is the content service's current challenge.
type PendingQuestion struct {
	FieldID                  string      `json:"field"`
	Observation              string      `json:"observation"`
	Ambiguity                string      `json:"ambiguity"`
	Options                  []Option    `json:"options"`
	RecommendedIndex         *int        `json:"recommended_index,omitempty"`
	RecommendationConfidence *Confidence `json:"recommendation_confidence,omitempty"`
	Tier                     Tier        `json:"tier"`
}

// Option returns the option whose value matches, if any.
func (q *PendingQuestion) Option(value string) (Option, bool) {
	if q == nil {
		return Option{}, false
	}
	for _, o := range q.Options {
		if o.Value == value {
			return o, true
		}
	}
	return Option{}, false
}

// Recommended returns the machine-recommended option when the index is in range.
func (q *PendingQuestion) Recommended() (Option, bool) {
	if q == nil || q.RecommendedIndex == nil {
		return Option{}, false
	}
	i := *q.RecommendedIndex
	if i < 0 || i >= len(q.Options) {
		return Option{}, false
	}
	return q.Options[i], true
}

// DecisionAnnotation is what the content service returns for a submitted rationale.
type DecisionAnnotation struct {
	FieldName      string `json:"field_name"`
	Tier           Tier   `json:"tier"`
	Decision       string `json:"decision"`
	Rationale      string `json:"rationale"`
	TechnicalNote  string `json:"technical_note"`
	FlavorReaction string `json:"flavor_reaction"`
}

// DecisionRecord is one immutable user choice for one field.
type DecisionRecord struct {
	ID             int    `json:"id"`
	FieldID        string `json:"field"`
	Value          string `json:"value"`
	Rationale      string `json:"rationale"`
	Tier           Tier   `json:"tier"`
	TechnicalNote  string `json:"technical_note"`
	FlavorReaction string `json:"flavor_reaction"`
}
