package matching

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/tablemates/backend/internal/circles"
	"github.com/MarcoPoloResearchLab/tablemates/backend/internal/events"
	"github.com/MarcoPoloResearchLab/tablemates/backend/internal/profiles"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var noOpLogger = zap.NewNop()

// Notifier is told about circles once a matching run has committed.
type Notifier interface {
	CirclesAssigned(eventID string, assigned []circles.CircleWithMembers)
}

// ServiceConfig describes the dependencies of the matching service.
type ServiceConfig struct {
	Database   *gorm.DB
	Profiles   ProfileReader
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
	Notifier   Notifier
	TargetSize int
	Floor      int
}

// Service assigns opted-in users to circles and serves the results.
type Service struct {
	db         *gorm.DB
	events     *events.Repository
	circles    *circles.Repository
	profiles   ProfileReader
	store      *profiles.Store
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
	notifier   Notifier
	plan       PlanConfig
}

// NewService validates dependencies and builds the repositories it needs.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, reasonMissingDB, errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, reasonMissingIDs, errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	eventRepo, err := events.NewRepository(cfg.Database, clock)
	if err != nil {
		return nil, newServiceError(opServiceNew, "events_repository_failed", err)
	}
	circleRepo, err := circles.NewRepository(cfg.Database)
	if err != nil {
		return nil, newServiceError(opServiceNew, "circles_repository_failed", err)
	}
	store, err := profiles.NewStore(cfg.Database)
	if err != nil {
		return nil, newServiceError(opServiceNew, "profiles_store_failed", err)
	}
	var profileReader ProfileReader = store
	if cfg.Profiles != nil {
		profileReader = cfg.Profiles
	}

	return &Service{
		db:         cfg.Database,
		events:     eventRepo,
		circles:    circleRepo,
		profiles:   profileReader,
		store:      store,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
		notifier:   cfg.Notifier,
		plan:       PlanConfig{TargetSize: cfg.TargetSize, Floor: cfg.Floor}.normalized(),
	}, nil
}

// CircleResult is a stored circle with its members and a reporting-only compatibility score.
type CircleResult struct {
	circles.CircleWithMembers
	AverageCompatibility float64
}

// TriggerResult describes a completed matching run.
type TriggerResult struct {
	RunID      string
	Circles    []CircleResult
	Unassigned []string
}

// TriggerMatching partitions the event pool into circles, stores them together with
// the closed event status in one transaction, and returns the stored circles.
func (s *Service) TriggerMatching(ctx context.Context, eventID events.EventID) (TriggerResult, error) {
	started := time.Now()
	result, outcome, err := s.triggerMatching(ctx, eventID)
	recordRun(outcome, time.Since(started))
	return result, err
}

func (s *Service) triggerMatching(ctx context.Context, eventID events.EventID) (TriggerResult, string, error) {
	if s.db == nil || s.events == nil || s.circles == nil {
		s.logError(opTrigger, reasonMissingDB, errMissingDatabase)
		return TriggerResult{}, outcomeError, newServiceError(opTrigger, reasonMissingDB, errMissingDatabase)
	}
	eventField := zap.String("event_id", eventID.String())

	if _, err := s.events.GetEvent(ctx, eventID); err != nil {
		if errors.Is(err, events.ErrEventNotFound) {
			s.loggerOrDefault().Info("matching refused", eventField, zap.String("reason", outcomeEventNotFound))
			return TriggerResult{}, outcomeEventNotFound, newServiceError(opTrigger, outcomeEventNotFound, ErrEventNotFound)
		}
		s.logError(opTrigger, "event_lookup_failed", err, eventField)
		return TriggerResult{}, outcomeError, newServiceError(opTrigger, "event_lookup_failed", err)
	}

	existing, err := s.circles.CountByEvent(ctx, eventID.String())
	if err != nil {
		s.logError(opTrigger, "circle_count_failed", err, eventField)
		return TriggerResult{}, outcomeError, newServiceError(opTrigger, "circle_count_failed", err)
	}
	if existing > 0 {
		s.loggerOrDefault().Info("matching refused", eventField, zap.String("reason", outcomeAlreadyMatched))
		return TriggerResult{}, outcomeAlreadyMatched, newServiceError(opTrigger, outcomeAlreadyMatched, ErrAlreadyMatched)
	}

	pool, err := s.loadPool(ctx, eventID)
	if err != nil {
		s.logError(opTrigger, "pool_load_failed", err, eventField)
		return TriggerResult{}, outcomeError, newServiceError(opTrigger, "pool_load_failed", err)
	}
	if len(pool) < s.plan.TargetSize {
		s.loggerOrDefault().Info("matching refused", eventField,
			zap.String("reason", outcomeInsufficientPool),
			zap.Int("pool_size", len(pool)),
			zap.Int("target_size", s.plan.TargetSize))
		return TriggerResult{}, outcomeInsufficientPool, newServiceError(opTrigger, outcomeInsufficientPool, ErrInsufficientPool)
	}

	plan := BuildPlan(pool, s.plan)

	runID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opTrigger, "id_generation_failed", err, eventField)
		return TriggerResult{}, outcomeError, newServiceError(opTrigger, "id_generation_failed", err)
	}

	if err := s.persistPlan(ctx, eventID, runID, plan); err != nil {
		if errors.Is(err, ErrAlreadyMatched) {
			return TriggerResult{}, outcomeAlreadyMatched, err
		}
		return TriggerResult{}, outcomeError, err
	}

	assembled, err := s.circles.ListByEvent(ctx, eventID.String())
	if err != nil {
		s.logError(opTrigger, "result_load_failed", err, eventField)
		return TriggerResult{}, outcomeError, newServiceError(opTrigger, "result_load_failed", err)
	}
	results, err := s.withCompatibility(ctx, assembled)
	if err != nil {
		s.logError(opTrigger, "profile_load_failed", err, eventField)
		return TriggerResult{}, outcomeError, newServiceError(opTrigger, "profile_load_failed", err)
	}

	recordPlan(plan)
	if s.notifier != nil {
		s.notifier.CirclesAssigned(eventID.String(), assembled)
	}
	s.loggerOrDefault().Info("matching completed",
		eventField,
		zap.String("run_id", runID),
		zap.Int("pool_size", len(pool)),
		zap.Int("rotating_circles", plan.Count(circles.FormatRotating)),
		zap.Int("hosted_circles", plan.Count(circles.FormatHosted)),
		zap.Bool("overflow_circle", plan.Overflow()),
		zap.Int("unassigned", len(plan.Unassigned)))

	return TriggerResult{RunID: runID, Circles: results, Unassigned: plan.Unassigned}, outcomeSuccess, nil
}

// persistPlan writes the run marker, every circle and member, and the closed
// status in a single transaction so a failure leaves the event untouched.
func (s *Service) persistPlan(ctx context.Context, eventID events.EventID, runID string, plan Plan) error {
	eventField := zap.String("event_id", eventID.String())
	completedAt := s.clock().UTC()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		circleRepo := s.circles.WithTx(tx)
		eventRepo := s.events.WithTx(tx)

		run := &circles.MatchingRun{
			EventID:         eventID.String(),
			RunID:           runID,
			CircleCount:     len(plan.Circles),
			UnassignedCount: len(plan.Unassigned),
			CompletedAt:     completedAt,
		}
		if err := circleRepo.RecordRun(ctx, run); err != nil {
			if errors.Is(err, circles.ErrRunExists) {
				s.loggerOrDefault().Info("matching refused", eventField, zap.String("reason", outcomeAlreadyMatched))
				return newServiceError(opTrigger, outcomeAlreadyMatched, ErrAlreadyMatched)
			}
			s.logError(opTrigger, "run_insert_failed", err, eventField)
			return newServiceError(opTrigger, "run_insert_failed", err)
		}

		for position, planned := range plan.Circles {
			if err := ctx.Err(); err != nil {
				s.logError(opTrigger, "canceled", err, eventField)
				return newServiceError(opTrigger, "canceled", err)
			}
			circleID, err := s.idProvider.NewID()
			if err != nil {
				s.logError(opTrigger, "id_generation_failed", err, eventField)
				return newServiceError(opTrigger, "id_generation_failed", err)
			}
			circle := &circles.Circle{
				CircleID:  circleID,
				EventID:   eventID.String(),
				Name:      circleName(position),
				Format:    planned.Format,
				Position:  position,
				CreatedAt: completedAt,
			}
			if err := circleRepo.CreateCircle(ctx, circle); err != nil {
				s.logError(opTrigger, "circle_insert_failed", err, eventField)
				return newServiceError(opTrigger, "circle_insert_failed", err)
			}
			for memberPosition, member := range planned.Members {
				row := &circles.CircleMember{
					CircleID: circleID,
					UserID:   member.UserID,
					EventID:  eventID.String(),
					Role:     member.Role,
					Position: memberPosition,
				}
				if err := circleRepo.CreateMember(ctx, row); err != nil {
					s.logError(opTrigger, "member_insert_failed", err, eventField, zap.String("user_id", member.UserID))
					return newServiceError(opTrigger, "member_insert_failed", err)
				}
			}
		}

		if err := eventRepo.MarkClosed(ctx, eventID, completedAt); err != nil {
			s.logError(opTrigger, "event_close_failed", err, eventField)
			return newServiceError(opTrigger, "event_close_failed", err)
		}
		return nil
	})
}

// GetMatchingResults returns the stored circles of an event; an event without circles yields an empty list.
func (s *Service) GetMatchingResults(ctx context.Context, eventID events.EventID) ([]CircleResult, error) {
	if s.db == nil || s.events == nil || s.circles == nil {
		s.logError(opResults, reasonMissingDB, errMissingDatabase)
		return nil, newServiceError(opResults, reasonMissingDB, errMissingDatabase)
	}
	if err := s.requireEvent(ctx, opResults, eventID); err != nil {
		return nil, err
	}
	assembled, err := s.circles.ListByEvent(ctx, eventID.String())
	if err != nil {
		s.logError(opResults, "query_failed", err, zap.String("event_id", eventID.String()))
		return nil, newServiceError(opResults, "query_failed", err)
	}
	results, err := s.withCompatibility(ctx, assembled)
	if err != nil {
		s.logError(opResults, "profile_load_failed", err, zap.String("event_id", eventID.String()))
		return nil, newServiceError(opResults, "profile_load_failed", err)
	}
	return results, nil
}

// GetUserCircle returns the circle containing the user. The boolean is false when
// the user is unmatched or matching has not run.
func (s *Service) GetUserCircle(ctx context.Context, eventID events.EventID, userID events.UserID) (CircleResult, bool, error) {
	if s.db == nil || s.circles == nil {
		s.logError(opUserCircle, reasonMissingDB, errMissingDatabase)
		return CircleResult{}, false, newServiceError(opUserCircle, reasonMissingDB, errMissingDatabase)
	}
	circle, err := s.circles.FindByUser(ctx, eventID.String(), userID.String())
	if errors.Is(err, circles.ErrCircleNotFound) {
		return CircleResult{}, false, nil
	}
	if err != nil {
		s.logError(opUserCircle, "query_failed", err,
			zap.String("event_id", eventID.String()),
			zap.String("user_id", userID.String()))
		return CircleResult{}, false, newServiceError(opUserCircle, "query_failed", err)
	}
	results, err := s.withCompatibility(ctx, []circles.CircleWithMembers{circle})
	if err != nil {
		s.logError(opUserCircle, "profile_load_failed", err, zap.String("event_id", eventID.String()))
		return CircleResult{}, false, newServiceError(opUserCircle, "profile_load_failed", err)
	}
	return results[0], true, nil
}

// IsUserOptedIn reports whether the user has an opt-in for the event.
func (s *Service) IsUserOptedIn(ctx context.Context, eventID events.EventID, userID events.UserID) (bool, error) {
	if s.events == nil {
		s.logError(opIsOptedIn, reasonMissingDB, errMissingDatabase)
		return false, newServiceError(opIsOptedIn, reasonMissingDB, errMissingDatabase)
	}
	optedIn, err := s.events.HasOptIn(ctx, eventID, userID)
	if err != nil {
		s.logError(opIsOptedIn, "query_failed", err,
			zap.String("event_id", eventID.String()),
			zap.String("user_id", userID.String()))
		return false, newServiceError(opIsOptedIn, "query_failed", err)
	}
	return optedIn, nil
}

// GetMatchingPool returns the enriched opt-in pool in matching order.
func (s *Service) GetMatchingPool(ctx context.Context, eventID events.EventID) ([]PoolEntry, error) {
	if s.events == nil {
		s.logError(opPool, reasonMissingDB, errMissingDatabase)
		return nil, newServiceError(opPool, reasonMissingDB, errMissingDatabase)
	}
	if err := s.requireEvent(ctx, opPool, eventID); err != nil {
		return nil, err
	}
	pool, err := s.loadPool(ctx, eventID)
	if err != nil {
		s.logError(opPool, "pool_load_failed", err, zap.String("event_id", eventID.String()))
		return nil, newServiceError(opPool, "pool_load_failed", err)
	}
	return pool, nil
}

// CreateEvent opens a new event for opt-ins.
func (s *Service) CreateEvent(ctx context.Context, name string) (events.Event, error) {
	if s.events == nil {
		s.logError(opCreateEvent, reasonMissingDB, errMissingDatabase)
		return events.Event{}, newServiceError(opCreateEvent, reasonMissingDB, errMissingDatabase)
	}
	if strings.TrimSpace(name) == "" {
		return events.Event{}, newServiceError(opCreateEvent, "missing_name", ErrMissingEventName)
	}
	rawID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateEvent, "id_generation_failed", err)
		return events.Event{}, newServiceError(opCreateEvent, "id_generation_failed", err)
	}
	eventID, err := events.NewEventID(rawID)
	if err != nil {
		return events.Event{}, newServiceError(opCreateEvent, "invalid_event_id", err)
	}
	event, err := s.events.CreateEvent(ctx, eventID, name)
	if err != nil {
		s.logError(opCreateEvent, "insert_failed", err)
		return events.Event{}, newServiceError(opCreateEvent, "insert_failed", err)
	}
	return event, nil
}

// OptIn registers a user into an open event pool.
func (s *Service) OptIn(ctx context.Context, request events.OptInRequest) (events.OptIn, error) {
	if s.events == nil {
		s.logError(opOptIn, reasonMissingDB, errMissingDatabase)
		return events.OptIn{}, newServiceError(opOptIn, reasonMissingDB, errMissingDatabase)
	}
	optIn, err := s.events.CreateOptIn(ctx, request)
	if err != nil {
		return events.OptIn{}, s.mapPoolError(opOptIn, err, request.EventID, request.UserID)
	}
	return optIn, nil
}

// OptOut removes a user from an open event pool and severs their partner link.
func (s *Service) OptOut(ctx context.Context, eventID events.EventID, userID events.UserID) error {
	if s.events == nil {
		s.logError(opOptOut, reasonMissingDB, errMissingDatabase)
		return newServiceError(opOptOut, reasonMissingDB, errMissingDatabase)
	}
	if err := s.events.DeleteOptIn(ctx, eventID, userID); err != nil {
		return s.mapPoolError(opOptOut, err, eventID, userID)
	}
	return nil
}

// UpdatePartner replaces the partner link on the user's opt-in while the event is
// still open. A nil partner clears the link.
func (s *Service) UpdatePartner(ctx context.Context, eventID events.EventID, userID events.UserID, partnerID *events.UserID) (events.OptIn, error) {
	if s.events == nil {
		s.logError(opUpdatePartner, reasonMissingDB, errMissingDatabase)
		return events.OptIn{}, newServiceError(opUpdatePartner, reasonMissingDB, errMissingDatabase)
	}
	event, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return events.OptIn{}, s.mapPoolError(opUpdatePartner, err, eventID, userID)
	}
	if event.Status != events.StatusOpen {
		return events.OptIn{}, s.mapPoolError(opUpdatePartner, events.ErrEventClosed, eventID, userID)
	}
	if err := s.events.SetPartner(ctx, eventID, userID, partnerID); err != nil {
		return events.OptIn{}, s.mapPoolError(opUpdatePartner, err, eventID, userID)
	}
	optIn, err := s.events.GetOptIn(ctx, eventID, userID)
	if err != nil {
		return events.OptIn{}, s.mapPoolError(opUpdatePartner, err, eventID, userID)
	}
	return optIn, nil
}

// SaveProfile stores the matching attributes of a user.
func (s *Service) SaveProfile(ctx context.Context, userID events.UserID, profile profiles.Profile) (profiles.Profile, error) {
	if s.store == nil {
		s.logError(opSaveProfile, reasonMissingDB, errMissingDatabase)
		return profiles.Profile{}, newServiceError(opSaveProfile, reasonMissingDB, errMissingDatabase)
	}
	profile.UserID = userID.String()
	profile.DisplayName = strings.TrimSpace(profile.DisplayName)
	profile.PersonalityType = strings.TrimSpace(profile.PersonalityType)
	profile.DietaryRestriction = strings.TrimSpace(profile.DietaryRestriction)
	profile.CookingExperience = profiles.CookingExperience(strings.ToLower(strings.TrimSpace(string(profile.CookingExperience))))
	if err := s.store.Upsert(ctx, profile); err != nil {
		s.logError(opSaveProfile, "upsert_failed", err, zap.String("user_id", userID.String()))
		return profiles.Profile{}, newServiceError(opSaveProfile, "upsert_failed", err)
	}
	return profile, nil
}

func (s *Service) mapPoolError(operation string, err error, eventID events.EventID, userID events.UserID) error {
	switch {
	case errors.Is(err, events.ErrEventNotFound):
		return newServiceError(operation, outcomeEventNotFound, ErrEventNotFound)
	case errors.Is(err, events.ErrEventClosed):
		return newServiceError(operation, "event_closed", err)
	case errors.Is(err, events.ErrAlreadyOptedIn):
		return newServiceError(operation, "already_opted_in", err)
	case errors.Is(err, events.ErrOptInNotFound):
		return newServiceError(operation, "opt_in_not_found", err)
	case errors.Is(err, events.ErrInvalidPartner):
		return newServiceError(operation, "invalid_partner", err)
	default:
		s.logError(operation, "write_failed", err,
			zap.String("event_id", eventID.String()),
			zap.String("user_id", userID.String()))
		return newServiceError(operation, "write_failed", err)
	}
}

func (s *Service) requireEvent(ctx context.Context, operation string, eventID events.EventID) error {
	if _, err := s.events.GetEvent(ctx, eventID); err != nil {
		if errors.Is(err, events.ErrEventNotFound) {
			return newServiceError(operation, outcomeEventNotFound, ErrEventNotFound)
		}
		s.logError(operation, "event_lookup_failed", err, zap.String("event_id", eventID.String()))
		return newServiceError(operation, "event_lookup_failed", err)
	}
	return nil
}

// loadPool reads the opt-ins oldest first and resolves every profile, partners
// included, in a single batch read.
func (s *Service) loadPool(ctx context.Context, eventID events.EventID) ([]PoolEntry, error) {
	optIns, err := s.events.ListOptIns(ctx, eventID)
	if err != nil {
		return nil, err
	}
	profileByUser, err := s.profiles.GetProfiles(ctx, poolUserIDs(optIns))
	if err != nil {
		return nil, err
	}
	pool := buildPool(optIns, profileByUser)
	for _, entry := range pool {
		if entry.PartnerLinkAsymmetric {
			s.loggerOrDefault().Warn("asymmetric partner link",
				zap.String("event_id", eventID.String()),
				zap.String("user_id", entry.UserID()),
				zap.String("partner_id", entry.PartnerID()),
				zap.Bool("partner_opted_in", entry.PartnerOptedIn))
		}
	}
	return pool, nil
}

func (s *Service) withCompatibility(ctx context.Context, assembled []circles.CircleWithMembers) ([]CircleResult, error) {
	results := make([]CircleResult, 0, len(assembled))
	if len(assembled) == 0 {
		return results, nil
	}
	userIDs := make([]string, 0, len(assembled)*s.plan.TargetSize)
	for _, circle := range assembled {
		userIDs = append(userIDs, circle.MemberIDs()...)
	}
	profileByUser, err := s.profiles.GetProfiles(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	for _, circle := range assembled {
		group := make([]profiles.Profile, 0, len(circle.Members))
		for _, member := range circle.Members {
			profile, ok := profileByUser[member.UserID]
			if !ok {
				profile = profiles.Profile{UserID: member.UserID}
			}
			group = append(group, profile)
		}
		results = append(results, CircleResult{
			CircleWithMembers:    circle,
			AverageCompatibility: profiles.AverageCompatibility(group),
		})
	}
	return results, nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("matching service error", attrs...)
}
