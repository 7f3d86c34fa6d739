package matching

import (
	"fmt"

	"github.com/MarcoPoloResearchLab/tablemates/backend/internal/circles"
)

const (
	// DefaultTargetSize is the member count of every regular circle.
	DefaultTargetSize = 6
	// DefaultFloor is the smallest overflow circle that may be formed.
	DefaultFloor = 4
)

// PlanConfig sizes the circles built by a plan.
type PlanConfig struct {
	TargetSize int
	Floor      int
}

func (c PlanConfig) normalized() PlanConfig {
	if c.TargetSize <= 0 {
		c.TargetSize = DefaultTargetSize
	}
	if c.Floor <= 0 || c.Floor > c.TargetSize {
		c.Floor = DefaultFloor
		if c.Floor > c.TargetSize {
			c.Floor = c.TargetSize
		}
	}
	return c
}

// PlannedMember is a user placed into a planned circle.
type PlannedMember struct {
	UserID string
	Role   circles.Role
}

// PlannedCircle is a circle decided in memory but not yet stored.
type PlannedCircle struct {
	Format   circles.Format
	Overflow bool
	Members  []PlannedMember
}

// Plan is the complete outcome of one matching pass.
type Plan struct {
	Circles []PlannedCircle
	// Unassigned lists pool users left out of every circle, in pool order.
	Unassigned []string
}

// Count returns the number of circles of the given format.
func (p Plan) Count(format circles.Format) int {
	count := 0
	for _, circle := range p.Circles {
		if circle.Format == format {
			count++
		}
	}
	return count
}

// Overflow reports whether the plan contains an undersized leftover circle.
func (p Plan) Overflow() bool {
	for _, circle := range p.Circles {
		if circle.Overflow {
			return true
		}
	}
	return false
}

// BuildPlan runs the builders in order: rotating circles from partnered users,
// hosted circles from everyone still available, then the leftover pass.
// Consumption is greedy and FIFO over pool order; no batch is reconsidered.
func BuildPlan(pool []PoolEntry, cfg PlanConfig) Plan {
	cfg = cfg.normalized()
	used := usedSet{}

	partnered, _ := Partition(pool)
	planned := buildRotatingCircles(partnered, used, cfg.TargetSize)
	planned = append(planned, buildHostedCircles(pool, used, cfg.TargetSize)...)
	planned = absorbLeftovers(planned, pool, used, cfg)

	placed := make(map[string]struct{}, len(pool))
	for _, circle := range planned {
		for _, member := range circle.Members {
			placed[member.UserID] = struct{}{}
		}
	}
	unassigned := make([]string, 0)
	for _, entry := range pool {
		if _, ok := placed[entry.UserID()]; !ok {
			unassigned = append(unassigned, entry.UserID())
		}
	}

	return Plan{Circles: planned, Unassigned: unassigned}
}

// buildRotatingCircles consumes partnered users in batches of targetSize.
// Partners of batch members are marked used even when they were not dequeued,
// which can strand them; this mirrors the greedy behaviour callers rely on.
func buildRotatingCircles(partnered []PoolEntry, used usedSet, targetSize int) []PlannedCircle {
	var planned []PlannedCircle
	for {
		available := used.available(partnered)
		if len(available) < targetSize {
			return planned
		}
		batch := available[:targetSize]
		members := make([]PlannedMember, 0, targetSize)
		for index, entry := range batch {
			members = append(members, PlannedMember{UserID: entry.UserID(), Role: circles.CourseRoleAt(index)})
		}
		for _, entry := range batch {
			used.mark(entry.UserID())
			if entry.HasPartner() {
				used.mark(entry.PartnerID())
			}
		}
		planned = append(planned, PlannedCircle{Format: circles.FormatRotating, Members: members})
	}
}

// buildHostedCircles consumes every remaining user in batches of targetSize.
func buildHostedCircles(pool []PoolEntry, used usedSet, targetSize int) []PlannedCircle {
	var planned []PlannedCircle
	for {
		available := used.available(pool)
		if len(available) < targetSize {
			return planned
		}
		batch := available[:targetSize]
		planned = append(planned, hostedCircle(batch, false))
		for _, entry := range batch {
			used.mark(entry.UserID())
		}
	}
}

// absorbLeftovers tops up circles below target size, then forms at most one
// overflow circle when at least cfg.Floor users remain.
func absorbLeftovers(planned []PlannedCircle, pool []PoolEntry, used usedSet, cfg PlanConfig) []PlannedCircle {
	remaining := used.available(pool)

	for index := range planned {
		if len(remaining) == 0 {
			break
		}
		circle := &planned[index]
		capacity := cfg.TargetSize - len(circle.Members)
		if capacity <= 0 {
			continue
		}
		if capacity > len(remaining) {
			capacity = len(remaining)
		}
		for _, entry := range remaining[:capacity] {
			role := circles.RoleParticipant
			if circle.Format == circles.FormatRotating {
				role = circles.CourseRoleAt(len(circle.Members))
			}
			circle.Members = append(circle.Members, PlannedMember{UserID: entry.UserID(), Role: role})
			used.mark(entry.UserID())
		}
		remaining = remaining[capacity:]
	}

	if len(remaining) > 0 && len(remaining) >= cfg.Floor {
		planned = append(planned, hostedCircle(remaining, true))
		for _, entry := range remaining {
			used.mark(entry.UserID())
		}
	}
	return planned
}

func hostedCircle(batch []PoolEntry, overflow bool) PlannedCircle {
	hostIndex := SelectHost(batch)
	members := make([]PlannedMember, 0, len(batch))
	for index, entry := range batch {
		role := circles.RoleParticipant
		if index == hostIndex {
			role = circles.RoleHost
		}
		members = append(members, PlannedMember{UserID: entry.UserID(), Role: role})
	}
	return PlannedCircle{Format: circles.FormatHosted, Overflow: overflow, Members: members}
}

func circleName(position int) string {
	return fmt.Sprintf("Circle %d", position+1)
}
