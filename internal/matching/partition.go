package matching

// Partition splits the pool into partnered and single entries, keeping pool order in both.
func Partition(pool []PoolEntry) (partnered, single []PoolEntry) {
	partnered = make([]PoolEntry, 0, len(pool))
	single = make([]PoolEntry, 0, len(pool))
	for _, entry := range pool {
		if entry.HasPartner() {
			partnered = append(partnered, entry)
			continue
		}
		single = append(single, entry)
	}
	return partnered, single
}

// usedSet tracks users consumed by earlier builder stages.
type usedSet map[string]struct{}

func (u usedSet) mark(userID string) {
	if userID == "" {
		return
	}
	u[userID] = struct{}{}
}

func (u usedSet) has(userID string) bool {
	_, ok := u[userID]
	return ok
}

// available returns the entries not yet consumed, in their original order.
func (u usedSet) available(entries []PoolEntry) []PoolEntry {
	remaining := make([]PoolEntry, 0, len(entries))
	for _, entry := range entries {
		if !u.has(entry.UserID()) {
			remaining = append(remaining, entry)
		}
	}
	return remaining
}
