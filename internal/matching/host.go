package matching

import "sort"

// SelectHost returns the index of the batch member who should host.
//
// Only members willing to host are eligible unless nobody is, in which case the
// whole batch is. Eligible members whose partner sits in the same batch come
// first, then higher cooking experience. Remaining ties keep batch order.
func SelectHost(batch []PoolEntry) int {
	if len(batch) == 0 {
		return -1
	}

	candidates := make([]int, 0, len(batch))
	for index, entry := range batch {
		if entry.OptIn.HostingAvailable {
			candidates = append(candidates, index)
		}
	}
	if len(candidates) == 0 {
		for index := range batch {
			candidates = append(candidates, index)
		}
	}

	inBatch := make(map[string]struct{}, len(batch))
	for _, entry := range batch {
		inBatch[entry.UserID()] = struct{}{}
	}
	partnerPresent := func(entry PoolEntry) bool {
		if !entry.HasPartner() {
			return false
		}
		_, ok := inBatch[entry.PartnerID()]
		return ok
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		left := batch[candidates[i]]
		right := batch[candidates[j]]
		leftPaired := partnerPresent(left)
		rightPaired := partnerPresent(right)
		if leftPaired != rightPaired {
			return leftPaired
		}
		return left.CookingRank() > right.CookingRank()
	})
	return candidates[0]
}
