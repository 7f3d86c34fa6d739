package matching

import (
	"fmt"
	"testing"

	"github.com/MarcoPoloResearchLab/tablemates/backend/internal/circles"
	"github.com/stretchr/testify/require"
)

func TestBuildPlanThreeCouplesFormOneRotatingCircle(t *testing.T) {
	pool := append(append(couple("a1", "a2"), couple("b1", "b2")...), couple("c1", "c2")...)

	plan := BuildPlan(pool, PlanConfig{})

	require.Len(t, plan.Circles, 1)
	circle := plan.Circles[0]
	require.Equal(t, circles.FormatRotating, circle.Format)
	require.False(t, circle.Overflow)
	require.Equal(t, entryIDs(pool), memberIDs(circle))

	roles := make([]circles.Role, 0, len(circle.Members))
	counts := map[circles.Role]int{}
	for _, member := range circle.Members {
		roles = append(roles, member.Role)
		counts[member.Role]++
	}
	require.Equal(t, []circles.Role{
		circles.RoleStarter, circles.RoleMain, circles.RoleDessert,
		circles.RoleStarter, circles.RoleMain, circles.RoleDessert,
	}, roles)
	require.Equal(t, map[circles.Role]int{circles.RoleStarter: 2, circles.RoleMain: 2, circles.RoleDessert: 2}, counts)
	require.Empty(t, plan.Unassigned)
}

func TestBuildPlanPartneredBelowTargetFallThroughToHosted(t *testing.T) {
	var pool []PoolEntry
	pool = append(pool, couple("p1", "p2")...)
	pool = append(pool, singles("s", 4)...)
	pool = append(pool, couple("p3", "p4")...)
	pool = append(pool, singles("t", 4)...)

	plan := BuildPlan(pool, PlanConfig{})

	require.Equal(t, 0, plan.Count(circles.FormatRotating))
	require.Equal(t, 2, plan.Count(circles.FormatHosted))
	require.Equal(t, entryIDs(pool[:6]), memberIDs(plan.Circles[0]))
	require.Equal(t, entryIDs(pool[6:]), memberIDs(plan.Circles[1]))
	require.Empty(t, plan.Unassigned)
}

func TestBuildPlanSevenSinglesLeavesOneUnassigned(t *testing.T) {
	pool := singles("u", 7)

	plan := BuildPlan(pool, PlanConfig{})

	require.Len(t, plan.Circles, 1)
	require.Equal(t, circles.FormatHosted, plan.Circles[0].Format)
	require.Len(t, plan.Circles[0].Members, 6)
	require.False(t, plan.Overflow())
	require.Equal(t, []string{"u-7"}, plan.Unassigned)
}

func TestBuildPlanFormsOverflowCircleAtFloor(t *testing.T) {
	pool := singles("u", 10)

	plan := BuildPlan(pool, PlanConfig{TargetSize: 6, Floor: 4})

	require.Len(t, plan.Circles, 2)
	require.False(t, plan.Circles[0].Overflow)
	overflow := plan.Circles[1]
	require.True(t, overflow.Overflow)
	require.Equal(t, circles.FormatHosted, overflow.Format)
	require.Equal(t, []string{"u-7", "u-8", "u-9", "u-10"}, memberIDs(overflow))
	require.True(t, plan.Overflow())
	require.Empty(t, plan.Unassigned)
}

func TestBuildPlanRemainderBelowFloorStaysUnassigned(t *testing.T) {
	pool := singles("u", 9)

	plan := BuildPlan(pool, PlanConfig{TargetSize: 6, Floor: 4})

	require.Len(t, plan.Circles, 1)
	require.Equal(t, []string{"u-7", "u-8", "u-9"}, plan.Unassigned)
}

func TestBuildPlanStrandsPartnerOfLastRotatingBatchMember(t *testing.T) {
	var pool []PoolEntry
	pool = append(pool, couple("a1", "a2")...)
	pool = append(pool, couple("b1", "b2")...)
	pool = append(pool, poolEntry("c1", withPartner("absent")))
	pool = append(pool, couple("d1", "d2")...)

	plan := BuildPlan(pool, PlanConfig{})

	require.Len(t, plan.Circles, 1)
	require.Equal(t, circles.FormatRotating, plan.Circles[0].Format)
	require.Equal(t, []string{"a1", "a2", "b1", "b2", "c1", "d1"}, memberIDs(plan.Circles[0]))
	require.Equal(t, []string{"d2"}, plan.Unassigned)
}

func TestBuildPlanRotatingThenHostedFromRemainder(t *testing.T) {
	var pool []PoolEntry
	pool = append(pool, singles("s", 3)...)
	pool = append(pool, couple("a1", "a2")...)
	pool = append(pool, couple("b1", "b2")...)
	pool = append(pool, couple("c1", "c2")...)
	pool = append(pool, singles("t", 3)...)

	plan := BuildPlan(pool, PlanConfig{})

	require.Len(t, plan.Circles, 2)
	require.Equal(t, circles.FormatRotating, plan.Circles[0].Format)
	require.Equal(t, []string{"a1", "a2", "b1", "b2", "c1", "c2"}, memberIDs(plan.Circles[0]))
	require.Equal(t, circles.FormatHosted, plan.Circles[1].Format)
	require.Equal(t, []string{"s-1", "s-2", "s-3", "t-1", "t-2", "t-3"}, memberIDs(plan.Circles[1]))
}

func TestAbsorbLeftoversTopsUpInCreationOrder(t *testing.T) {
	pool := singles("u", 4)
	planned := []PlannedCircle{
		{Format: circles.FormatRotating, Members: []PlannedMember{
			{UserID: "r1", Role: circles.RoleStarter},
			{UserID: "r2", Role: circles.RoleMain},
			{UserID: "r3", Role: circles.RoleDessert},
			{UserID: "r4", Role: circles.RoleStarter},
		}},
		{Format: circles.FormatHosted, Members: []PlannedMember{
			{UserID: "h1", Role: circles.RoleHost},
			{UserID: "h2", Role: circles.RoleParticipant},
			{UserID: "h3", Role: circles.RoleParticipant},
			{UserID: "h4", Role: circles.RoleParticipant},
			{UserID: "h5", Role: circles.RoleParticipant},
		}},
	}
	used := usedSet{}

	result := absorbLeftovers(planned, pool, used, PlanConfig{TargetSize: 6, Floor: 4})

	require.Len(t, result, 2)
	rotating := result[0]
	require.Len(t, rotating.Members, 6)
	require.Equal(t, PlannedMember{UserID: "u-1", Role: circles.RoleMain}, rotating.Members[4])
	require.Equal(t, PlannedMember{UserID: "u-2", Role: circles.RoleDessert}, rotating.Members[5])
	hosted := result[1]
	require.Len(t, hosted.Members, 6)
	require.Equal(t, PlannedMember{UserID: "u-3", Role: circles.RoleParticipant}, hosted.Members[5])
	require.True(t, used.has("u-3"))
	require.False(t, used.has("u-4"))
}

func TestAbsorbLeftoversFormsSingleOverflowCircle(t *testing.T) {
	pool := []PoolEntry{
		poolEntry("u-1"),
		poolEntry("u-2", cooking("advanced")),
		poolEntry("u-3"),
		poolEntry("u-4"),
		poolEntry("u-5"),
	}
	used := usedSet{}

	result := absorbLeftovers(nil, pool, used, PlanConfig{TargetSize: 6, Floor: 4})

	require.Len(t, result, 1)
	require.True(t, result[0].Overflow)
	require.Len(t, result[0].Members, 5)
	require.Equal(t, circles.RoleHost, result[0].Members[1].Role)
	require.Empty(t, used.available(pool))
}

func TestBuildPlanInvariants(t *testing.T) {
	for size := 6; size <= 40; size++ {
		for _, partnerEvery := range []int{0, 2, 3, 5} {
			t.Run(fmt.Sprintf("size_%d_partner_every_%d", size, partnerEvery), func(t *testing.T) {
				pool := make([]PoolEntry, 0, size)
				for index := 0; index < size; index++ {
					userID := fmt.Sprintf("u-%d", index)
					switch {
					case partnerEvery > 0 && index%partnerEvery == 0 && index+1 < size:
						pool = append(pool, poolEntry(userID, withPartner(fmt.Sprintf("u-%d", index+1))))
					case partnerEvery > 0 && index%partnerEvery == 1:
						pool = append(pool, poolEntry(userID, withPartner(fmt.Sprintf("u-%d", index-1))))
					default:
						pool = append(pool, poolEntry(userID, willingToHostWhen(index%4 == 0)))
					}
				}

				plan := BuildPlan(pool, PlanConfig{TargetSize: 6, Floor: 4})

				seen := map[string]struct{}{}
				overflowCount := 0
				for _, circle := range plan.Circles {
					if circle.Overflow {
						overflowCount++
						require.GreaterOrEqual(t, len(circle.Members), 4)
						require.LessOrEqual(t, len(circle.Members), 6)
					} else {
						require.Len(t, circle.Members, 6)
					}
					hosts := 0
					roleCounts := map[circles.Role]int{}
					for _, member := range circle.Members {
						_, duplicate := seen[member.UserID]
						require.False(t, duplicate, "user %s placed twice", member.UserID)
						seen[member.UserID] = struct{}{}
						roleCounts[member.Role]++
						if member.Role == circles.RoleHost {
							hosts++
						}
					}
					if circle.Format == circles.FormatHosted {
						require.Equal(t, 1, hosts)
						require.Equal(t, len(circle.Members)-1, roleCounts[circles.RoleParticipant])
					} else {
						require.Equal(t, 2, roleCounts[circles.RoleStarter])
						require.Equal(t, 2, roleCounts[circles.RoleMain])
						require.Equal(t, 2, roleCounts[circles.RoleDessert])
					}
				}
				require.LessOrEqual(t, overflowCount, 1)
				require.Equal(t, size, len(seen)+len(plan.Unassigned))
				for _, userID := range plan.Unassigned {
					_, placed := seen[userID]
					require.False(t, placed)
				}
			})
		}
	}
}

func willingToHostWhen(condition bool) entryOption {
	return func(entry *PoolEntry) {
		entry.OptIn.HostingAvailable = condition
	}
}

func TestPlanConfigNormalized(t *testing.T) {
	testCases := []struct {
		name string
		in   PlanConfig
		want PlanConfig
	}{
		{name: "defaults", in: PlanConfig{}, want: PlanConfig{TargetSize: DefaultTargetSize, Floor: DefaultFloor}},
		{name: "custom", in: PlanConfig{TargetSize: 8, Floor: 5}, want: PlanConfig{TargetSize: 8, Floor: 5}},
		{name: "floor above target", in: PlanConfig{TargetSize: 6, Floor: 9}, want: PlanConfig{TargetSize: 6, Floor: DefaultFloor}},
		{name: "small target clamps floor", in: PlanConfig{TargetSize: 3, Floor: 0}, want: PlanConfig{TargetSize: 3, Floor: 3}},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			require.Equal(t, testCase.want, testCase.in.normalized())
		})
	}
}
