package mapping

import (
	"math"
	"strings"

	"golang.org/x/text/language"

	"github.com/sells-group/import-engine/internal/coords"
	"github.com/sells-group/import-engine/internal/model"
	"github.com/sells-group/import-engine/internal/schema"
)

// rolePriority is the order in which roles claim columns; a column assigned
// to an earlier role is no longer a candidate for later ones. Coordinate
// roles go first because their content evidence is the strongest.
var rolePriority = []model.Role{
	model.RoleLatitude,
	model.RoleLongitude,
	model.RoleCombined,
	model.RoleDate,
	model.RoleTitle,
	model.RoleLocation,
	model.RoleDescription,
}

// minScore is the floor below which a candidate is not reported at all.
const minScore = 0.5

// Detect resolves logical roles to physical columns from accumulated field
// statistics and the dataset's detected language. Overrides always win for
// the logical slot they name; detection fills the remaining roles.
func Detect(fields []*schema.FieldStats, lang language.Tag, overrides map[model.Role]model.Mapping) map[model.Role]model.Mapping {
	out := make(map[model.Role]model.Mapping)
	claimed := make(map[string]bool)

	for role, m := range overrides {
		m.Source = model.MappingSourceOverride
		out[role] = m
		claimed[m.Column] = true
	}

	tables := lexiconsFor(lang)

	for _, role := range rolePriority {
		if _, done := out[role]; done {
			continue
		}

		var bestField *schema.FieldStats
		bestScore := 0.0
		for _, f := range fields {
			if claimed[f.Name] {
				continue
			}
			score := scoreField(f, role, tables)
			if score > bestScore {
				bestField, bestScore = f, score
			}
		}

		if bestField == nil || bestScore < minScore {
			continue
		}
		out[role] = model.Mapping{
			Column:     bestField.Name,
			Source:     model.MappingSourceDetected,
			Confidence: math.Min(bestScore, 1.0),
		}
		claimed[bestField.Name] = true
	}

	return out
}

// scoreField combines lexical name evidence with content statistics.
func scoreField(f *schema.FieldStats, role model.Role, tables []lexicon) float64 {
	score := nameScore(f.Name, role, tables)
	if score == 0 && !contentOnlyRole(role) {
		return 0
	}
	return score + contentScore(f, role)
}

// contentOnlyRole marks roles whose data signature alone is decisive enough
// to assign a column with no name evidence.
func contentOnlyRole(role model.Role) bool {
	return role == model.RoleCombined
}

func nameScore(name string, role model.Role, tables []lexicon) float64 {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, table := range tables {
		for _, fragment := range table[role] {
			if n == fragment {
				return 0.9
			}
		}
	}
	for _, table := range tables {
		for _, fragment := range table[role] {
			if len(fragment) >= 3 && strings.Contains(n, fragment) {
				return 0.6
			}
		}
	}
	return 0
}

func contentScore(f *schema.FieldStats, role model.Role) float64 {
	if f.Count == 0 {
		return 0
	}
	numericShare := float64(f.TypeVotes[schema.TypeInteger]+f.TypeVotes[schema.TypeFloat]) / float64(f.Count)
	dateShare := float64(f.TypeVotes[schema.TypeDate]) / float64(f.Count)
	stringShare := float64(f.TypeVotes[schema.TypeString]) / float64(f.Count)

	switch role {
	case model.RoleLatitude:
		if numericShare > 0.9 && boundedBy(f, 90) {
			return 0.3
		}
		if numericShare < 0.5 {
			return -0.5
		}
	case model.RoleLongitude:
		if numericShare > 0.9 && boundedBy(f, 180) {
			return 0.3
		}
		if numericShare < 0.5 {
			return -0.5
		}
	case model.RoleDate:
		if dateShare > 0.8 {
			return 0.3
		}
		if dateShare == 0 && numericShare > 0.9 {
			return -0.5
		}
	case model.RoleTitle, model.RoleDescription, model.RoleLocation:
		if stringShare > 0.8 {
			return 0.1
		}
		if numericShare > 0.9 {
			return -0.5
		}
	case model.RoleCombined:
		return combinedContentScore(f)
	}
	return 0
}

// combinedContentScore samples the field's values and scores how many parse
// as a combined coordinate cell.
func combinedContentScore(f *schema.FieldStats) float64 {
	if len(f.Samples) == 0 {
		return 0
	}
	parsed := 0
	for _, s := range f.Samples {
		if ex, err := coords.ExtractFromCombined(s, coords.FormatUnknown); err == nil && ex.IsValid {
			parsed++
		}
	}
	share := float64(parsed) / float64(len(f.Samples))
	if share > 0.7 {
		return 0.6
	}
	return 0
}

func boundedBy(f *schema.FieldStats, limit float64) bool {
	if f.MinNumber == nil || f.MaxNumber == nil {
		return false
	}
	return math.Abs(*f.MinNumber) <= limit && math.Abs(*f.MaxNumber) <= limit
}
