package circles

import "time"

// Format distinguishes the two dinner formats.
type Format string

const (
	// FormatRotating moves the circle between three homes, one course each.
	FormatRotating Format = "rotating"
	// FormatHosted seats the whole circle at the host's home.
	FormatHosted Format = "hosted"
)

// Role is the part a member plays in a circle.
type Role string

const (
	RoleHost        Role = "host"
	RoleParticipant Role = "participant"
	RoleStarter     Role = "starter"
	RoleMain        Role = "main"
	RoleDessert     Role = "dessert"
)

// CourseRoles is the round-robin order used by rotating circles.
var CourseRoles = [...]Role{RoleStarter, RoleMain, RoleDessert}

// CourseRoleAt returns the course role for the member at the given position.
func CourseRoleAt(position int) Role {
	return CourseRoles[position%len(CourseRoles)]
}

// Circle is one group formed for an event.
type Circle struct {
	CircleID  string    `gorm:"column:circle_id;primaryKey;size:190;not null"`
	EventID   string    `gorm:"column:event_id;size:190;not null;index:idx_circles_event_position,priority:1"`
	Name      string    `gorm:"column:name;size:190;not null"`
	Format    Format    `gorm:"column:format;size:16;not null"`
	Position  int       `gorm:"column:position;not null;index:idx_circles_event_position,priority:2"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Circle) TableName() string {
	return "circles"
}

// CircleMember assigns a user and role within a circle. The unique
// (event_id, user_id) index keeps a user in at most one circle per event.
type CircleMember struct {
	CircleID string `gorm:"column:circle_id;primaryKey;size:190;not null;index:idx_circle_members_circle_position,priority:1"`
	UserID   string `gorm:"column:user_id;primaryKey;size:190;not null;uniqueIndex:idx_circle_members_event_user,priority:2"`
	EventID  string `gorm:"column:event_id;size:190;not null;uniqueIndex:idx_circle_members_event_user,priority:1"`
	Role     Role   `gorm:"column:role;size:16;not null"`
	Position int    `gorm:"column:position;not null;index:idx_circle_members_circle_position,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (CircleMember) TableName() string {
	return "circle_members"
}

// MatchingRun records the single completed matching run of an event.
type MatchingRun struct {
	EventID         string    `gorm:"column:event_id;primaryKey;size:190;not null"`
	RunID           string    `gorm:"column:run_id;size:190;not null"`
	CircleCount     int       `gorm:"column:circle_count;not null"`
	UnassignedCount int       `gorm:"column:unassigned_count;not null"`
	CompletedAt     time.Time `gorm:"column:completed_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (MatchingRun) TableName() string {
	return "matching_runs"
}

// CircleWithMembers is a circle with its resolved member list in position order.
type CircleWithMembers struct {
	Circle  Circle
	Members []CircleMember
}

// MemberIDs returns the member user ids in position order.
func (c CircleWithMembers) MemberIDs() []string {
	ids := make([]string, 0, len(c.Members))
	for _, member := range c.Members {
		ids = append(ids, member.UserID)
	}
	return ids
}

// Host returns the host member of a hosted circle.
func (c CircleWithMembers) Host() (CircleMember, bool) {
	for _, member := range c.Members {
		if member.Role == RoleHost {
			return member, true
		}
	}
	return CircleMember{}, false
}
