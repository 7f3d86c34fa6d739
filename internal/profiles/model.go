package profiles

import (
	"encoding/json"
	"strings"

	"gorm.io/datatypes"
)

// CookingExperience captures a self-reported cooking level.
type CookingExperience string

const (
	CookingUnspecified  CookingExperience = ""
	CookingBeginner     CookingExperience = "beginner"
	CookingIntermediate CookingExperience = "intermediate"
	CookingAdvanced     CookingExperience = "advanced"
)

// Rank orders cooking levels; unknown values rank as unspecified.
func (c CookingExperience) Rank() int {
	switch CookingExperience(strings.ToLower(strings.TrimSpace(string(c)))) {
	case CookingAdvanced:
		return 3
	case CookingIntermediate:
		return 2
	case CookingBeginner:
		return 1
	default:
		return 0
	}
}

// Profile holds the attributes consulted during matching.
type Profile struct {
	UserID             string            `gorm:"column:user_id;primaryKey;size:190;not null"`
	DisplayName        string            `gorm:"column:display_name;size:320"`
	Interests          datatypes.JSON    `gorm:"column:interests"`
	PersonalityType    string            `gorm:"column:personality_type;size:64"`
	CookingExperience  CookingExperience `gorm:"column:cooking_experience;size:32"`
	DietaryRestriction string            `gorm:"column:dietary_restriction;size:64"`
	SocialPreferences  datatypes.JSON    `gorm:"column:social_preferences"`
}

// TableName provides the explicit table binding for GORM.
func (Profile) TableName() string {
	return "user_profiles"
}

// InterestList decodes the stored interests; malformed payloads decode as empty.
func (p Profile) InterestList() []string {
	return decodeStrings(p.Interests)
}

// SocialPreferenceList decodes the stored social preferences.
func (p Profile) SocialPreferenceList() []string {
	return decodeStrings(p.SocialPreferences)
}

// EncodeStrings converts a string list into a JSON column value.
func EncodeStrings(values []string) datatypes.JSON {
	if len(values) == 0 {
		return datatypes.JSON("[]")
	}
	payload, err := json.Marshal(values)
	if err != nil {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(payload)
}

func decodeStrings(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var values []string
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil
	}
	return values
}
