package circles

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

const (
	queryEventID      = "event_id = ?"
	queryCircleID     = "circle_id = ?"
	queryCircleIDIn   = "circle_id IN ?"
	queryEventUser    = "event_id = ? AND user_id = ?"
	orderPositionAsc  = "position ASC"
	orderMembersOrder = "circle_id ASC, position ASC"
)

var (
	// ErrCircleNotFound indicates no circle matched the lookup.
	ErrCircleNotFound = errors.New("circles: circle not found")
	// ErrRunExists indicates the event already has a recorded matching run.
	ErrRunExists = errors.New("circles: matching run already recorded")

	errMissingDatabase = errors.New("circles: database handle is required")
)

// Repository persists circles, members and matching runs.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a Repository bound to the provided gorm handle.
func NewRepository(db *gorm.DB) (*Repository, error) {
	if db == nil {
		return nil, errMissingDatabase
	}
	return &Repository{db: db}, nil
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// CountByEvent returns how many circles exist for the event.
func (r *Repository) CountByEvent(ctx context.Context, eventID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&Circle{}).Where(queryEventID, eventID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("circles: count for event %s: %w", eventID, err)
	}
	return count, nil
}

// CreateCircle stores a circle row.
func (r *Repository) CreateCircle(ctx context.Context, circle *Circle) error {
	if err := r.db.WithContext(ctx).Create(circle).Error; err != nil {
		return fmt.Errorf("circles: create circle %s: %w", circle.CircleID, err)
	}
	return nil
}

// CreateMember stores one member row.
func (r *Repository) CreateMember(ctx context.Context, member *CircleMember) error {
	if err := r.db.WithContext(ctx).Create(member).Error; err != nil {
		return fmt.Errorf("circles: add member %s to %s: %w", member.UserID, member.CircleID, err)
	}
	return nil
}

// RecordRun stores the matching run marker; a second run for the same event is refused.
func (r *Repository) RecordRun(ctx context.Context, run *MatchingRun) error {
	var existing int64
	if err := r.db.WithContext(ctx).Model(&MatchingRun{}).Where(queryEventID, run.EventID).Count(&existing).Error; err != nil {
		return fmt.Errorf("circles: check run for event %s: %w", run.EventID, err)
	}
	if existing > 0 {
		return ErrRunExists
	}
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("circles: record run for event %s: %w", run.EventID, err)
	}
	return nil
}

// ListByEvent reassembles every circle of an event with its members, in creation order.
func (r *Repository) ListByEvent(ctx context.Context, eventID string) ([]CircleWithMembers, error) {
	var rows []Circle
	if err := r.db.WithContext(ctx).Where(queryEventID, eventID).Order(orderPositionAsc).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("circles: list for event %s: %w", eventID, err)
	}
	return r.attachMembers(ctx, rows)
}

// GetByID loads a single circle with its members.
func (r *Repository) GetByID(ctx context.Context, circleID string) (CircleWithMembers, error) {
	var circle Circle
	err := r.db.WithContext(ctx).Where(queryCircleID, circleID).Take(&circle).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return CircleWithMembers{}, ErrCircleNotFound
	}
	if err != nil {
		return CircleWithMembers{}, fmt.Errorf("circles: load circle %s: %w", circleID, err)
	}
	assembled, err := r.attachMembers(ctx, []Circle{circle})
	if err != nil {
		return CircleWithMembers{}, err
	}
	return assembled[0], nil
}

// FindByUser returns the circle holding the user for the event.
func (r *Repository) FindByUser(ctx context.Context, eventID, userID string) (CircleWithMembers, error) {
	var member CircleMember
	err := r.db.WithContext(ctx).Where(queryEventUser, eventID, userID).Take(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return CircleWithMembers{}, ErrCircleNotFound
	}
	if err != nil {
		return CircleWithMembers{}, fmt.Errorf("circles: find circle of %s in %s: %w", userID, eventID, err)
	}
	return r.GetByID(ctx, member.CircleID)
}

func (r *Repository) attachMembers(ctx context.Context, rows []Circle) ([]CircleWithMembers, error) {
	if len(rows) == 0 {
		return []CircleWithMembers{}, nil
	}
	circleIDs := make([]string, 0, len(rows))
	for _, row := range rows {
		circleIDs = append(circleIDs, row.CircleID)
	}

	var members []CircleMember
	if err := r.db.WithContext(ctx).Where(queryCircleIDIn, circleIDs).Order(orderMembersOrder).Find(&members).Error; err != nil {
		return nil, fmt.Errorf("circles: load members: %w", err)
	}
	byCircle := make(map[string][]CircleMember, len(rows))
	for _, member := range members {
		byCircle[member.CircleID] = append(byCircle[member.CircleID], member)
	}

	assembled := make([]CircleWithMembers, 0, len(rows))
	for _, row := range rows {
		assembled = append(assembled, CircleWithMembers{
			Circle:  row,
			Members: byCircle[row.CircleID],
		})
	}
	return assembled, nil
}
