package matching

import (
	"errors"
	"fmt"
)

var (
	// ErrEventNotFound indicates the event does not exist.
	ErrEventNotFound = errors.New("matching: event not found")
	// ErrAlreadyMatched indicates circles already exist for the event; matching is not repeated.
	ErrAlreadyMatched = errors.New("matching: event already matched")
	// ErrInsufficientPool indicates fewer opt-ins than one full circle.
	ErrInsufficientPool = errors.New("matching: insufficient opt-in pool")
	// ErrMissingEventName indicates an event was created without a name.
	ErrMissingEventName = errors.New("matching: event name is required")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
)

// ServiceError carries a stable `<operation>.<reason>` code and unwraps to its cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew     = "matching.service.new"
	opTrigger        = "matching.trigger"
	opResults        = "matching.results"
	opUserCircle     = "matching.user_circle"
	opIsOptedIn      = "matching.is_opted_in"
	opPool           = "matching.pool"
	opCreateEvent    = "matching.create_event"
	opOptIn          = "matching.opt_in"
	opOptOut         = "matching.opt_out"
	opUpdatePartner  = "matching.update_partner"
	opSaveProfile    = "matching.save_profile"
	reasonMissingDB  = "missing_database"
	reasonMissingIDs = "missing_id_provider"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}
