package domain

// Tier is one of the ordered classification stages a decision belongs to.
type Tier string

const (
	TierBronze Tier = "Bronze"
	TierSilver Tier = "Silver"
	TierGold   Tier = "Gold"
	// TierBonus is never reached by normal progression.
	TierBonus Tier = "Bonus"
)

// Rank orders tiers for monotonicity checks. Unknown tiers rank below Bronze.
func (t Tier) Rank() int {
	switch t {
	case TierBronze:
		return 1
	case TierSilver:
		return 2
	case TierGold:
		return 3
	case TierBonus:
		return 4
	default:
		return 0
	}
}

// CourseInfo is the menu presentation of a tier.
type CourseInfo struct {
	Tier        Tier   `json:"tier"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

// Courses lists the presentation metadata for every tier in order.
var Courses = []CourseInfo{
	{Tier: TierBronze, Title: "Appetizer (Bronze Layer)", Description: "Raw Ingestion: Data types, nullability, and naming.", Icon: "🥉"},
	{Tier: TierSilver, Title: "Entrée (Silver Layer)", Description: "Cleansed & Conformed: Standardization and business rules.", Icon: "🥈"},
	{Tier: TierGold, Title: "Dessert (Gold Layer)", Description: "Business-Ready: Derived fields and reporting dimensions.", Icon: "🥇"},
	{Tier: TierBonus, Title: "Chef's Special (Bonus)", Description: "Confidence Boost: Revisit tricky ingredients.", Icon: "⭐"},
}

// Course returns the presentation metadata for t.
func (t Tier) Course() CourseInfo {
	for _, c := range Courses {
		if c.Tier == t {
			return c
		}
	}
	return CourseInfo{Tier: t, Title: string(t)}
}

// StatusLevel is the four-step kitchen label derived from cumulative score.
type StatusLevel string

const (
	StatusDumpsterFire StatusLevel = "DUMPSTER_FIRE"
	StatusFunctional   StatusLevel = "FUNCTIONAL"
	StatusProfessional StatusLevel = "PROFESSIONAL"
	StatusMichelinStar StatusLevel = "MICHELIN_STAR"
)

// Rank orders status levels from worst (1) to best (4).
func (s StatusLevel) Rank() int {
	switch s {
	case StatusDumpsterFire:
		return 1
	case StatusFunctional:
		return 2
	case StatusProfessional:
		return 3
	case StatusMichelinStar:
		return 4
	default:
		return 0
	}
}

// Label returns the display string shown in the kitchen meter.
func (s StatusLevel) Label() string {
	switch s {
	case StatusFunctional:
		return "🍳 Functional"
	case StatusProfessional:
		return "👨‍🍳 Professional"
	case StatusMichelinStar:
		return "⭐ Michelin Star"
	default:
		return "🗑️ Dumpster Fire"
	}
}

// Confidence grades a field extraction or a recommendation.
type Confidence string

const (
	ConfidenceHigh   Confidence = "High"
	ConfidenceMedium Confidence = "Medium"
	ConfidenceLow    Confidence = "Low"
)

// Valid reports whether c is one of the three known grades.
func (c Confidence) Valid() bool {
	return c == ConfidenceHigh || c == ConfidenceMedium || c == ConfidenceLow
}
