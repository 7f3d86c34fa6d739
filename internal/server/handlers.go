package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/tablemates/backend/internal/circles"
	"github.com/MarcoPoloResearchLab/tablemates/backend/internal/events"
	"github.com/MarcoPoloResearchLab/tablemates/backend/internal/matching"
	"github.com/MarcoPoloResearchLab/tablemates/backend/internal/profiles"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type eventPayload struct {
	EventID             string     `json:"event_id"`
	Name                string     `json:"name"`
	Status              string     `json:"status"`
	MatchingCompletedAt *time.Time `json:"matching_completed_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

type createEventRequestPayload struct {
	Name string `json:"name"`
}

type circleMemberPayload struct {
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
	Position int    `json:"position"`
}

type circlePayload struct {
	CircleID             string                `json:"circle_id"`
	EventID              string                `json:"event_id"`
	Name                 string                `json:"name"`
	Format               string                `json:"format"`
	Position             int                   `json:"position"`
	HostID               string                `json:"host_id,omitempty"`
	Members              []circleMemberPayload `json:"members"`
	AverageCompatibility *float64              `json:"average_compatibility,omitempty"`
}

type circlesResponsePayload struct {
	EventID string          `json:"event_id"`
	Circles []circlePayload `json:"circles"`
}

type triggerResponsePayload struct {
	EventID    string          `json:"event_id"`
	RunID      string          `json:"run_id"`
	Circles    []circlePayload `json:"circles"`
	Unassigned []string        `json:"unassigned"`
}

type poolEntryPayload struct {
	UserID                string    `json:"user_id"`
	PartnerID             string    `json:"partner_id,omitempty"`
	PartnerOptedIn        bool      `json:"partner_opted_in"`
	PartnerLinkAsymmetric bool      `json:"partner_link_asymmetric"`
	HostingAvailable      bool      `json:"hosting_available"`
	CookingExperience     string    `json:"cooking_experience,omitempty"`
	OptedInAt             time.Time `json:"opted_in_at"`
}

type poolResponsePayload struct {
	EventID string             `json:"event_id"`
	Pool    []poolEntryPayload `json:"pool"`
}

type optInRequestPayload struct {
	PartnerID        string `json:"partner_id"`
	HostingAvailable bool   `json:"hosting_available"`
	MatchAddress     string `json:"match_address"`
}

type optInResponsePayload struct {
	EventID          string `json:"event_id"`
	UserID           string `json:"user_id"`
	OptedIn          bool   `json:"opted_in"`
	PartnerID        string `json:"partner_id,omitempty"`
	HostingAvailable bool   `json:"hosting_available"`
}

type partnerRequestPayload struct {
	PartnerID string `json:"partner_id"`
}

type profilePayload struct {
	UserID             string   `json:"user_id"`
	DisplayName        string   `json:"display_name"`
	Interests          []string `json:"interests"`
	PersonalityType    string   `json:"personality_type"`
	CookingExperience  string   `json:"cooking_experience"`
	DietaryRestriction string   `json:"dietary_restriction"`
	SocialPreferences  []string `json:"social_preferences"`
}

func (h *httpHandler) handleCreateEvent(c *gin.Context) {
	var request createEventRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	event, err := h.matching.CreateEvent(c.Request.Context(), request.Name)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	h.logger.Info("event created",
		zap.String("event_id", event.EventID),
		zap.String("user_id", c.GetString(userIDContextKey)))
	c.JSON(http.StatusCreated, newEventPayload(event))
}

func (h *httpHandler) handleTriggerMatching(c *gin.Context) {
	eventID, ok := h.eventIDParam(c)
	if !ok {
		return
	}
	result, err := h.matching.TriggerMatching(c.Request.Context(), eventID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	response := triggerResponsePayload{
		EventID:    eventID.String(),
		RunID:      result.RunID,
		Circles:    make([]circlePayload, 0, len(result.Circles)),
		Unassigned: append([]string{}, result.Unassigned...),
	}
	for _, circle := range result.Circles {
		response.Circles = append(response.Circles, newCirclePayload(circle, true))
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleMatchingPool(c *gin.Context) {
	eventID, ok := h.eventIDParam(c)
	if !ok {
		return
	}
	pool, err := h.matching.GetMatchingPool(c.Request.Context(), eventID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	response := poolResponsePayload{EventID: eventID.String(), Pool: make([]poolEntryPayload, 0, len(pool))}
	for _, entry := range pool {
		response.Pool = append(response.Pool, poolEntryPayload{
			UserID:                entry.UserID(),
			PartnerID:             entry.PartnerID(),
			PartnerOptedIn:        entry.PartnerOptedIn,
			PartnerLinkAsymmetric: entry.PartnerLinkAsymmetric,
			HostingAvailable:      entry.OptIn.HostingAvailable,
			CookingExperience:     string(entry.Profile.CookingExperience),
			OptedInAt:             entry.OptIn.CreatedAt.UTC(),
		})
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleListCircles(c *gin.Context) {
	eventID, ok := h.eventIDParam(c)
	if !ok {
		return
	}
	results, err := h.matching.GetMatchingResults(c.Request.Context(), eventID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	response := circlesResponsePayload{EventID: eventID.String(), Circles: make([]circlePayload, 0, len(results))}
	for _, circle := range results {
		response.Circles = append(response.Circles, newCirclePayload(circle, false))
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleUserCircle(c *gin.Context) {
	eventID, ok := h.eventIDParam(c)
	if !ok {
		return
	}
	userID, ok := h.sessionUserID(c)
	if !ok {
		return
	}
	circle, found, err := h.matching.GetUserCircle(c.Request.Context(), eventID, userID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_matched"})
		return
	}
	c.JSON(http.StatusOK, newCirclePayload(circle, false))
}

func (h *httpHandler) handleOptInStatus(c *gin.Context) {
	eventID, ok := h.eventIDParam(c)
	if !ok {
		return
	}
	userID, ok := h.sessionUserID(c)
	if !ok {
		return
	}
	optedIn, err := h.matching.IsUserOptedIn(c.Request.Context(), eventID, userID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, optInResponsePayload{EventID: eventID.String(), UserID: userID.String(), OptedIn: optedIn})
}

func (h *httpHandler) handleOptIn(c *gin.Context) {
	eventID, ok := h.eventIDParam(c)
	if !ok {
		return
	}
	userID, ok := h.sessionUserID(c)
	if !ok {
		return
	}
	var request optInRequestPayload
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		}
	}
	optInRequest := events.OptInRequest{
		EventID:          eventID,
		UserID:           userID,
		HostingAvailable: request.HostingAvailable,
		MatchAddress:     strings.TrimSpace(request.MatchAddress),
	}
	if strings.TrimSpace(request.PartnerID) != "" {
		partnerID, err := events.NewUserID(request.PartnerID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_partner"})
			return
		}
		optInRequest.PartnerID = &partnerID
	}

	optIn, err := h.matching.OptIn(c.Request.Context(), optInRequest)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, optInResponsePayload{
		EventID:          optIn.EventID,
		UserID:           optIn.UserID,
		OptedIn:          true,
		PartnerID:        optIn.Partner(),
		HostingAvailable: optIn.HostingAvailable,
	})
}

func (h *httpHandler) handleOptOut(c *gin.Context) {
	eventID, ok := h.eventIDParam(c)
	if !ok {
		return
	}
	userID, ok := h.sessionUserID(c)
	if !ok {
		return
	}
	if err := h.matching.OptOut(c.Request.Context(), eventID, userID); err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleUpdatePartner(c *gin.Context) {
	eventID, ok := h.eventIDParam(c)
	if !ok {
		return
	}
	userID, ok := h.sessionUserID(c)
	if !ok {
		return
	}
	var request partnerRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	var partnerID *events.UserID
	if strings.TrimSpace(request.PartnerID) != "" {
		parsed, err := events.NewUserID(request.PartnerID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_partner"})
			return
		}
		partnerID = &parsed
	}
	optIn, err := h.matching.UpdatePartner(c.Request.Context(), eventID, userID, partnerID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, optInResponsePayload{
		EventID:          optIn.EventID,
		UserID:           optIn.UserID,
		OptedIn:          true,
		PartnerID:        optIn.Partner(),
		HostingAvailable: optIn.HostingAvailable,
	})
}

func (h *httpHandler) handleSaveProfile(c *gin.Context) {
	userID, ok := h.sessionUserID(c)
	if !ok {
		return
	}
	var request profilePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	saved, err := h.matching.SaveProfile(c.Request.Context(), userID, profiles.Profile{
		DisplayName:        request.DisplayName,
		Interests:          profiles.EncodeStrings(request.Interests),
		PersonalityType:    request.PersonalityType,
		CookingExperience:  profiles.CookingExperience(request.CookingExperience),
		DietaryRestriction: request.DietaryRestriction,
		SocialPreferences:  profiles.EncodeStrings(request.SocialPreferences),
	})
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, profilePayload{
		UserID:             saved.UserID,
		DisplayName:        saved.DisplayName,
		Interests:          nonNilStrings(saved.InterestList()),
		PersonalityType:    saved.PersonalityType,
		CookingExperience:  string(saved.CookingExperience),
		DietaryRestriction: saved.DietaryRestriction,
		SocialPreferences:  nonNilStrings(saved.SocialPreferenceList()),
	})
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func newEventPayload(event events.Event) eventPayload {
	return eventPayload{
		EventID:             event.EventID,
		Name:                event.Name,
		Status:              string(event.Status),
		MatchingCompletedAt: event.MatchingCompletedAt,
		CreatedAt:           event.CreatedAt.UTC(),
	}
}

func newCirclePayload(result matching.CircleResult, withCompatibility bool) circlePayload {
	payload := circlePayload{
		CircleID: result.Circle.CircleID,
		EventID:  result.Circle.EventID,
		Name:     result.Circle.Name,
		Format:   string(result.Circle.Format),
		Position: result.Circle.Position,
		Members:  make([]circleMemberPayload, 0, len(result.Members)),
	}
	if result.Circle.Format == circles.FormatHosted {
		if host, ok := result.Host(); ok {
			payload.HostID = host.UserID
		}
	}
	for _, member := range result.Members {
		payload.Members = append(payload.Members, circleMemberPayload{
			UserID:   member.UserID,
			Role:     string(member.Role),
			Position: member.Position,
		})
	}
	if withCompatibility {
		score := result.AverageCompatibility
		payload.AverageCompatibility = &score
	}
	return payload
}
