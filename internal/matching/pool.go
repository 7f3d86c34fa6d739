package matching

import (
	"context"

	"github.com/MarcoPoloResearchLab/tablemates/backend/internal/events"
	"github.com/MarcoPoloResearchLab/tablemates/backend/internal/profiles"
)

// ProfileReader resolves matching attributes for many users at once.
type ProfileReader interface {
	GetProfiles(ctx context.Context, userIDs []string) (map[string]profiles.Profile, error)
}

// PoolEntry is one opt-in enriched with the profiles consulted by the builders.
type PoolEntry struct {
	OptIn          events.OptIn
	Profile        profiles.Profile
	PartnerProfile *profiles.Profile
	// PartnerOptedIn reports whether the named partner has an opt-in for the same event.
	PartnerOptedIn bool
	// PartnerLinkAsymmetric is set when the partner's opt-in does not point back at this user.
	PartnerLinkAsymmetric bool
}

// UserID returns the opted-in user.
func (e PoolEntry) UserID() string {
	return e.OptIn.UserID
}

// PartnerID returns the linked partner or an empty string.
func (e PoolEntry) PartnerID() string {
	return e.OptIn.Partner()
}

// HasPartner reports whether the entry is partnered.
func (e PoolEntry) HasPartner() bool {
	return e.OptIn.HasPartner()
}

// CookingRank exposes the cooking-experience rank used for host selection.
func (e PoolEntry) CookingRank() int {
	return e.Profile.CookingExperience.Rank()
}

// buildPool joins opt-ins with their profiles, preserving opt-in order.
func buildPool(optIns []events.OptIn, profileByUser map[string]profiles.Profile) []PoolEntry {
	optInByUser := make(map[string]events.OptIn, len(optIns))
	for _, optIn := range optIns {
		optInByUser[optIn.UserID] = optIn
	}

	pool := make([]PoolEntry, 0, len(optIns))
	for _, optIn := range optIns {
		entry := PoolEntry{
			OptIn:   optIn,
			Profile: profileByUser[optIn.UserID],
		}
		if entry.Profile.UserID == "" {
			entry.Profile.UserID = optIn.UserID
		}
		if optIn.HasPartner() {
			partnerID := optIn.Partner()
			if partnerProfile, ok := profileByUser[partnerID]; ok {
				copied := partnerProfile
				entry.PartnerProfile = &copied
			}
			partnerOptIn, ok := optInByUser[partnerID]
			entry.PartnerOptedIn = ok
			entry.PartnerLinkAsymmetric = !ok || partnerOptIn.Partner() != optIn.UserID
		}
		pool = append(pool, entry)
	}
	return pool
}

// poolUserIDs lists every user and partner id whose profile the pool needs.
func poolUserIDs(optIns []events.OptIn) []string {
	ids := make([]string, 0, len(optIns)*2)
	for _, optIn := range optIns {
		ids = append(ids, optIn.UserID)
		if optIn.HasPartner() {
			ids = append(ids, optIn.Partner())
		}
	}
	return ids
}
