package events

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status enumerates the matching state of an event.
type Status string

const (
	// StatusOpen accepts opt-ins and has not been matched yet.
	StatusOpen Status = "open"
	// StatusClosed marks an event whose circles have been assigned.
	StatusClosed Status = "closed"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidEventID indicates that an event identifier is empty or exceeds storage bounds.
	ErrInvalidEventID = errors.New("events: invalid event id")
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("events: invalid user id")
	// ErrInvalidPartner indicates that a user named themselves as partner.
	ErrInvalidPartner = errors.New("events: invalid partner")
)

// EventID represents a validated event identifier.
type EventID string

// NewEventID validates raw input and returns an EventID.
func NewEventID(rawInput string) (EventID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidEventID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidEventID, maxIdentifierLength)
	}
	return EventID(trimmed), nil
}

// String returns the underlying string identifier.
func (id EventID) String() string {
	return string(id)
}

// UserID represents a validated user identifier.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	return UserID(trimmed), nil
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// Event is the dinner event users opt in to.
type Event struct {
	EventID             string     `gorm:"column:event_id;primaryKey;size:190;not null"`
	Name                string     `gorm:"column:name;size:320;not null"`
	Status              Status     `gorm:"column:status;size:16;not null;default:'open'"`
	MatchingCompletedAt *time.Time `gorm:"column:matching_completed_at"`
	CreatedAt           time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Event) TableName() string {
	return "events"
}

// OptIn registers one user into the matching pool of one event.
// PartnerID is stored per side; symmetry is expected but not enforced here.
type OptIn struct {
	OptInID          int64     `gorm:"column:opt_in_id;primaryKey;autoIncrement"`
	EventID          string    `gorm:"column:event_id;size:190;not null;uniqueIndex:idx_opt_ins_event_user,priority:1;index:idx_opt_ins_event_created,priority:1"`
	UserID           string    `gorm:"column:user_id;size:190;not null;uniqueIndex:idx_opt_ins_event_user,priority:2"`
	PartnerID        *string   `gorm:"column:partner_id;size:190"`
	HostingAvailable bool      `gorm:"column:hosting_available;not null;default:false"`
	MatchAddress     *string   `gorm:"column:match_address;size:512"`
	CreatedAt        time.Time `gorm:"column:created_at;not null;index:idx_opt_ins_event_created,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (OptIn) TableName() string {
	return "event_opt_ins"
}

// HasPartner reports whether the opt-in names a partner.
func (o OptIn) HasPartner() bool {
	return o.PartnerID != nil && *o.PartnerID != ""
}

// Partner returns the partner identifier or an empty string.
func (o OptIn) Partner() string {
	if o.PartnerID == nil {
		return ""
	}
	return *o.PartnerID
}

// OptInRequest describes a user's registration into an event pool.
type OptInRequest struct {
	EventID          EventID
	UserID           UserID
	PartnerID        *UserID
	HostingAvailable bool
	MatchAddress     string
}
