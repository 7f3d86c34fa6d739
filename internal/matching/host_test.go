package matching

import (
	"fmt"
	"testing"

	"github.com/MarcoPoloResearchLab/tablemates/backend/internal/profiles"
	"github.com/stretchr/testify/require"
)

func TestSelectHostPicksOnlyWillingMemberAtAnyPosition(t *testing.T) {
	for position := 0; position < 6; position++ {
		t.Run(fmt.Sprintf("position_%d", position), func(t *testing.T) {
			batch := singles("u", 6)
			batch[position].OptIn.HostingAvailable = true
			for index := range batch {
				if index != position {
					batch[index].Profile.CookingExperience = profiles.CookingAdvanced
				}
			}

			require.Equal(t, position, SelectHost(batch))
		})
	}
}

func TestSelectHost(t *testing.T) {
	testCases := []struct {
		name  string
		batch []PoolEntry
		want  int
	}{
		{
			name:  "empty batch",
			batch: nil,
			want:  -1,
		},
		{
			name:  "nobody willing falls back to cooking experience",
			batch: []PoolEntry{poolEntry("a"), poolEntry("b", cooking(profiles.CookingIntermediate)), poolEntry("c", cooking(profiles.CookingAdvanced))},
			want:  2,
		},
		{
			name: "partner in batch beats cooking experience",
			batch: []PoolEntry{
				poolEntry("a", willingToHost(), cooking(profiles.CookingAdvanced)),
				poolEntry("b", willingToHost(), withPartner("c"), cooking(profiles.CookingBeginner)),
				poolEntry("c", withPartner("b")),
			},
			want: 1,
		},
		{
			name: "partner outside batch does not count",
			batch: []PoolEntry{
				poolEntry("a", willingToHost(), withPartner("z"), cooking(profiles.CookingBeginner)),
				poolEntry("b", willingToHost(), cooking(profiles.CookingIntermediate)),
			},
			want: 1,
		},
		{
			name: "ties keep batch order",
			batch: []PoolEntry{
				poolEntry("a"),
				poolEntry("b", willingToHost(), cooking(profiles.CookingIntermediate)),
				poolEntry("c", willingToHost(), cooking(profiles.CookingIntermediate)),
			},
			want: 1,
		},
		{
			name: "unknown cooking level ranks lowest",
			batch: []PoolEntry{
				poolEntry("a", cooking("chef")),
				poolEntry("b", cooking(profiles.CookingBeginner)),
			},
			want: 1,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			require.Equal(t, testCase.want, SelectHost(testCase.batch))
		})
	}
}
