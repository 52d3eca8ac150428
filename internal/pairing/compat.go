package pairing

import "github.com/pairwise/anonchat/internal/profile"

// Compatible decides whether two profiles may be paired. Both directions are
// checked explicitly: u's preference against c's gender and c's preference
// against u's gender. A banned candidate is never compatible.
func Compatible(u, c *profile.Profile) bool {
	if c.Banned {
		return false
	}
	uWantsC := u.LookingFor == profile.LookingForAny || u.LookingFor == c.Gender
	cWantsU := c.LookingFor == profile.LookingForAny || c.LookingFor == u.Gender
	return uWantsC && cWantsU
}
