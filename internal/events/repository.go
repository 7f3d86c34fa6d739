package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

const (
	queryEventID      = "event_id = ?"
	queryEventUser    = "event_id = ? AND user_id = ?"
	queryEventPartner = "event_id = ? AND partner_id = ?"
	orderOptInsFIFO   = "created_at ASC, opt_in_id ASC"
)

var (
	// ErrEventNotFound indicates the event row does not exist.
	ErrEventNotFound = errors.New("events: event not found")
	// ErrOptInNotFound indicates the user has no opt-in for the event.
	ErrOptInNotFound = errors.New("events: opt-in not found")
	// ErrAlreadyOptedIn indicates a second opt-in for the same (event, user) pair.
	ErrAlreadyOptedIn = errors.New("events: user already opted in")
	// ErrEventClosed indicates the event no longer accepts pool changes.
	ErrEventClosed = errors.New("events: event is closed")

	errMissingDatabase = errors.New("events: database handle is required")
)

// Repository persists events and their opt-in pools.
type Repository struct {
	db    *gorm.DB
	clock func() time.Time
}

// NewRepository constructs a Repository backed by the provided gorm handle.
func NewRepository(db *gorm.DB, clock func() time.Time) (*Repository, error) {
	if db == nil {
		return nil, errMissingDatabase
	}
	if clock == nil {
		clock = time.Now
	}
	return &Repository{db: db, clock: clock}, nil
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx, clock: r.clock}
}

// CreateEvent stores a new open event.
func (r *Repository) CreateEvent(ctx context.Context, eventID EventID, name string) (Event, error) {
	event := Event{
		EventID: eventID.String(),
		Name:    strings.TrimSpace(name),
		Status:  StatusOpen,
	}
	if err := r.db.WithContext(ctx).Create(&event).Error; err != nil {
		return Event{}, fmt.Errorf("events: create event %s: %w", eventID, err)
	}
	return event, nil
}

// GetEvent loads a single event.
func (r *Repository) GetEvent(ctx context.Context, eventID EventID) (Event, error) {
	var event Event
	err := r.db.WithContext(ctx).Where(queryEventID, eventID.String()).Take(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Event{}, ErrEventNotFound
	}
	if err != nil {
		return Event{}, fmt.Errorf("events: load event %s: %w", eventID, err)
	}
	return event, nil
}

// MarkClosed flips the event to closed and stamps the matching completion time.
func (r *Repository) MarkClosed(ctx context.Context, eventID EventID, completedAt time.Time) error {
	completed := completedAt.UTC()
	result := r.db.WithContext(ctx).
		Model(&Event{}).
		Where(queryEventID, eventID.String()).
		Updates(map[string]interface{}{
			"status":                StatusClosed,
			"matching_completed_at": completed,
		})
	if result.Error != nil {
		return fmt.Errorf("events: close event %s: %w", eventID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrEventNotFound
	}
	return nil
}

// ListOptIns returns the event pool oldest first; this order drives every builder.
func (r *Repository) ListOptIns(ctx context.Context, eventID EventID) ([]OptIn, error) {
	var optIns []OptIn
	if err := r.db.WithContext(ctx).
		Where(queryEventID, eventID.String()).
		Order(orderOptInsFIFO).
		Find(&optIns).Error; err != nil {
		return nil, fmt.Errorf("events: list opt-ins for %s: %w", eventID, err)
	}
	return optIns, nil
}

// GetOptIn loads the opt-in of one user for one event.
func (r *Repository) GetOptIn(ctx context.Context, eventID EventID, userID UserID) (OptIn, error) {
	var optIn OptIn
	err := r.db.WithContext(ctx).Where(queryEventUser, eventID.String(), userID.String()).Take(&optIn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return OptIn{}, ErrOptInNotFound
	}
	if err != nil {
		return OptIn{}, fmt.Errorf("events: load opt-in %s/%s: %w", eventID, userID, err)
	}
	return optIn, nil
}

// HasOptIn reports whether the user is in the event pool.
func (r *Repository) HasOptIn(ctx context.Context, eventID EventID, userID UserID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&OptIn{}).
		Where(queryEventUser, eventID.String(), userID.String()).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("events: check opt-in %s/%s: %w", eventID, userID, err)
	}
	return count > 0, nil
}

// CreateOptIn registers the user into an open event. When a partner is named and
// the partner's own opt-in has no partner yet, the link is completed on that side too.
func (r *Repository) CreateOptIn(ctx context.Context, request OptInRequest) (OptIn, error) {
	if request.PartnerID != nil && *request.PartnerID == request.UserID {
		return OptIn{}, ErrInvalidPartner
	}

	var created OptIn
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var event Event
		err := tx.Where(queryEventID, request.EventID.String()).Take(&event).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrEventNotFound
		}
		if err != nil {
			return err
		}
		if event.Status != StatusOpen {
			return ErrEventClosed
		}

		var existing int64
		if err := tx.Model(&OptIn{}).
			Where(queryEventUser, request.EventID.String(), request.UserID.String()).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrAlreadyOptedIn
		}

		created = OptIn{
			EventID:          request.EventID.String(),
			UserID:           request.UserID.String(),
			HostingAvailable: request.HostingAvailable,
			CreatedAt:        r.clock().UTC(),
		}
		if request.PartnerID != nil {
			partner := request.PartnerID.String()
			created.PartnerID = &partner
		}
		if address := strings.TrimSpace(request.MatchAddress); address != "" {
			created.MatchAddress = &address
		}
		if err := tx.Create(&created).Error; err != nil {
			return err
		}

		if created.PartnerID == nil {
			return nil
		}
		return tx.Model(&OptIn{}).
			Where(queryEventUser+" AND partner_id IS NULL", request.EventID.String(), *created.PartnerID).
			Update("partner_id", request.UserID.String()).Error
	})
	if err != nil {
		if errors.Is(err, ErrEventNotFound) || errors.Is(err, ErrEventClosed) || errors.Is(err, ErrAlreadyOptedIn) {
			return OptIn{}, err
		}
		return OptIn{}, fmt.Errorf("events: create opt-in %s/%s: %w", request.EventID, request.UserID, err)
	}
	return created, nil
}

// DeleteOptIn removes the user from an open event pool and severs any partner
// link that points at them.
func (r *Repository) DeleteOptIn(ctx context.Context, eventID EventID, userID UserID) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var event Event
		err := tx.Where(queryEventID, eventID.String()).Take(&event).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrEventNotFound
		}
		if err != nil {
			return err
		}
		if event.Status != StatusOpen {
			return ErrEventClosed
		}

		result := tx.
			Where(queryEventUser, eventID.String(), userID.String()).
			Delete(&OptIn{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrOptInNotFound
		}
		return tx.Model(&OptIn{}).
			Where(queryEventPartner, eventID.String(), userID.String()).
			Update("partner_id", nil).Error
	})
	if err != nil {
		if errors.Is(err, ErrEventNotFound) || errors.Is(err, ErrEventClosed) || errors.Is(err, ErrOptInNotFound) {
			return err
		}
		return fmt.Errorf("events: delete opt-in %s/%s: %w", eventID, userID, err)
	}
	return nil
}

// SetPartner replaces the partner link stored on the user's opt-in. A nil partner clears it.
func (r *Repository) SetPartner(ctx context.Context, eventID EventID, userID UserID, partnerID *UserID) error {
	var value interface{}
	if partnerID != nil {
		if *partnerID == userID {
			return ErrInvalidPartner
		}
		value = partnerID.String()
	}
	result := r.db.WithContext(ctx).
		Model(&OptIn{}).
		Where(queryEventUser, eventID.String(), userID.String()).
		Update("partner_id", value)
	if result.Error != nil {
		return fmt.Errorf("events: set partner %s/%s: %w", eventID, userID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrOptInNotFound
	}
	return nil
}
