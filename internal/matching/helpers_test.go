package matching

import (
	"fmt"

	"github.com/MarcoPoloResearchLab/tablemates/backend/internal/events"
	"github.com/MarcoPoloResearchLab/tablemates/backend/internal/profiles"
)

type entryOption func(*PoolEntry)

func withPartner(partnerID string) entryOption {
	return func(entry *PoolEntry) {
		partner := partnerID
		entry.OptIn.PartnerID = &partner
	}
}

func willingToHost() entryOption {
	return func(entry *PoolEntry) {
		entry.OptIn.HostingAvailable = true
	}
}

func cooking(level profiles.CookingExperience) entryOption {
	return func(entry *PoolEntry) {
		entry.Profile.CookingExperience = level
	}
}

func poolEntry(userID string, options ...entryOption) PoolEntry {
	entry := PoolEntry{
		OptIn:   events.OptIn{EventID: "event-1", UserID: userID},
		Profile: profiles.Profile{UserID: userID},
	}
	for _, option := range options {
		option(&entry)
	}
	return entry
}

func singles(prefix string, count int) []PoolEntry {
	entries := make([]PoolEntry, 0, count)
	for index := 1; index <= count; index++ {
		entries = append(entries, poolEntry(fmt.Sprintf("%s-%d", prefix, index)))
	}
	return entries
}

func couple(first, second string) []PoolEntry {
	return []PoolEntry{
		poolEntry(first, withPartner(second)),
		poolEntry(second, withPartner(first)),
	}
}

func memberIDs(circle PlannedCircle) []string {
	ids := make([]string, 0, len(circle.Members))
	for _, member := range circle.Members {
		ids = append(ids, member.UserID)
	}
	return ids
}

func entryIDs(entries []PoolEntry) []string {
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.UserID())
	}
	return ids
}
