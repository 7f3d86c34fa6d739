package profiles

import "strings"

const (
	weightInterests   = 0.4
	weightPersonality = 0.2
	weightDietary     = 0.2
	weightCooking     = 0.2
	maxCookingRank    = 3
)

// Compatibility scores a pair of profiles in [0, 1]. It is a reporting aid only;
// circle composition is decided by pool order, never by this score.
func Compatibility(a, b Profile) float64 {
	score := weightInterests * interestOverlap(a.InterestList(), b.InterestList())
	score += weightPersonality * personalityFit(a.PersonalityType, b.PersonalityType)
	score += weightDietary * dietaryFit(a.DietaryRestriction, b.DietaryRestriction)
	score += weightCooking * cookingCloseness(a.CookingExperience, b.CookingExperience)
	return score
}

// AverageCompatibility returns the mean pairwise score for a group, or 0 for fewer than two members.
func AverageCompatibility(group []Profile) float64 {
	if len(group) < 2 {
		return 0
	}
	total := 0.0
	pairs := 0
	for i := 0; i < len(group); i++ {
		for j := i + 1; j < len(group); j++ {
			total += Compatibility(group[i], group[j])
			pairs++
		}
	}
	return total / float64(pairs)
}

// interestOverlap is the Jaccard index over case-folded interests.
func interestOverlap(left, right []string) float64 {
	leftSet := foldSet(left)
	rightSet := foldSet(right)
	if len(leftSet) == 0 || len(rightSet) == 0 {
		return 0
	}
	shared := 0
	for value := range leftSet {
		if _, ok := rightSet[value]; ok {
			shared++
		}
	}
	union := len(leftSet) + len(rightSet) - shared
	return float64(shared) / float64(union)
}

// personalityFit favours complementary types over identical ones.
func personalityFit(left, right string) float64 {
	l := fold(left)
	r := fold(right)
	if l == "" || r == "" {
		return 0
	}
	if l == r {
		return 0.5
	}
	return 1
}

func dietaryFit(left, right string) float64 {
	l := fold(left)
	r := fold(right)
	if l == "" || r == "" || l == "none" || r == "none" || l == r {
		return 1
	}
	return 0
}

func cookingCloseness(left, right CookingExperience) float64 {
	diff := left.Rank() - right.Rank()
	if diff < 0 {
		diff = -diff
	}
	return 1 - float64(diff)/maxCookingRank
}

func foldSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, value := range values {
		if folded := fold(value); folded != "" {
			set[folded] = struct{}{}
		}
	}
	return set
}

func fold(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
