// Package profile provides PostgreSQL-backed storage for user profiles.
// A profile holds the attributes used for match eligibility (gender, age,
// region, looking_for) plus the premium and banned moderation flags.
package profile

// Gender tokens stored in the gender and looking_for columns.
const (
	GenderMale   = "M"
	GenderFemale = "F"

	// LookingForAny matches either gender.
	LookingForAny = "any"
)

// Age bounds accepted during registration.
const (
	MinAge = 14
	MaxAge = 120
)

// MinRegionLen is the minimum length of a region answer.
const MinRegionLen = 2

// Profile is a user's stored attributes. Zero-valued fields mean the user
// has not answered that registration question yet.
type Profile struct {
	UserID     int64
	Username   string
	Gender     string // "M" | "F", empty if unset
	Age        int    // 0 if unset
	Region     string
	LookingFor string // "M" | "F" | "any", empty if unset
	Premium    bool
	Banned     bool
}

// Complete reports whether all four fields required for matching are
// populated. Incomplete profiles are rejected by the search entry point.
func (p *Profile) Complete() bool {
	return p.Gender != "" && p.Age != 0 && p.Region != "" && p.LookingFor != ""
}

// ValidGender reports whether s is an accepted gender token.
func ValidGender(s string) bool {
	return s == GenderMale || s == GenderFemale
}

// ValidLookingFor reports whether s is an accepted partner preference token.
func ValidLookingFor(s string) bool {
	return s == GenderMale || s == GenderFemale || s == LookingForAny
}

// ValidAge reports whether n is inside the accepted age range.
func ValidAge(n int) bool {
	return n >= MinAge && n <= MaxAge
}
