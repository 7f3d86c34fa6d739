package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/tablemates/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/tablemates/backend/internal/events"
	"github.com/MarcoPoloResearchLab/tablemates/backend/internal/matching"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	userIDContextKey = "tablemates_user_id"
	claimsContextKey = "tablemates_session_claims"
	defaultAdminRole = "admin"
)

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingMatchingService  = errors.New("matching service dependency required")
)

// SessionValidator authenticates incoming requests.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

// Dependencies wires the HTTP surface to its collaborators.
type Dependencies struct {
	SessionValidator SessionValidator
	MatchingService  *matching.Service
	Realtime         *RealtimeDispatcher
	AdminRole        string
	AllowedOrigins   []string
	Logger           *zap.Logger
}

// NewHTTPHandler builds the gin engine serving the event, matching and realtime routes.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.SessionValidator == nil {
		return nil, errMissingSessionValidator
	}
	if deps.MatchingService == nil {
		return nil, errMissingMatchingService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}
	adminRole := strings.TrimSpace(deps.AdminRole)
	if adminRole == "" {
		adminRole = defaultAdminRole
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins...))

	handler := &httpHandler{
		sessions:  deps.SessionValidator,
		matching:  deps.MatchingService,
		realtime:  realtime,
		adminRole: adminRole,
		logger:    logger,
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/events/:eventID/circles", handler.handleListCircles)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/events/:eventID/circles/me", handler.handleUserCircle)
	protected.GET("/events/:eventID/opt-in", handler.handleOptInStatus)
	protected.POST("/events/:eventID/opt-in", handler.handleOptIn)
	protected.DELETE("/events/:eventID/opt-in", handler.handleOptOut)
	protected.PUT("/events/:eventID/opt-in/partner", handler.handleUpdatePartner)
	protected.PUT("/profile", handler.handleSaveProfile)
	protected.GET("/events/:eventID/stream", handler.handleRealtimeStream)

	admin := router.Group("/admin")
	admin.Use(handler.authorizeRequest, handler.requireAdmin)
	admin.POST("/events", handler.handleCreateEvent)
	admin.POST("/events/:eventID/matching", handler.handleTriggerMatching)
	admin.GET("/events/:eventID/pool", handler.handleMatchingPool)

	return router, nil
}

func corsMiddleware(allowedOrigins ...string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-TAuth-Tenant"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	origins := make([]string, 0, len(allowedOrigins))
	wildcard := false
	for _, origin := range allowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			wildcard = true
			continue
		}
		origins = append(origins, trimmed)
	}
	if wildcard || len(origins) == 0 {
		config.AllowOriginFunc = func(string) bool { return true }
	} else {
		config.AllowOrigins = origins
	}
	return cors.New(config)
}

type httpHandler struct {
	sessions  SessionValidator
	matching  *matching.Service
	realtime  *RealtimeDispatcher
	adminRole string
	logger    *zap.Logger
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredSessionToken) {
			h.logger.Info("session validation failed", zap.Error(err))
		} else {
			h.logger.Warn("session validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, claims.UserID)
	c.Set(claimsContextKey, claims)
	c.Next()
}

func (h *httpHandler) requireAdmin(c *gin.Context) {
	value, exists := c.Get(claimsContextKey)
	claims, ok := value.(auth.SessionClaims)
	if !exists || !ok || !claims.HasRole(h.adminRole) {
		h.logger.Warn("admin access denied",
			zap.String("user_id", c.GetString(userIDContextKey)),
			zap.String("path", c.FullPath()))
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	c.Next()
}

func (h *httpHandler) eventIDParam(c *gin.Context) (events.EventID, bool) {
	eventID, err := events.NewEventID(c.Param("eventID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_event_id"})
		return "", false
	}
	return eventID, true
}

func (h *httpHandler) sessionUserID(c *gin.Context) (events.UserID, bool) {
	userID, err := events.NewUserID(c.GetString(userIDContextKey))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return "", false
	}
	return userID, true
}

// respondServiceError maps service failures onto HTTP statuses and carries the
// service code so clients and logs can correlate.
func (h *httpHandler) respondServiceError(c *gin.Context, err error) {
	status, label := classifyServiceError(err)
	code := ""
	var serviceErr *matching.ServiceError
	if errors.As(err, &serviceErr) {
		code = serviceErr.Code()
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("code", code),
			zap.Error(err))
	}
	payload := gin.H{"error": label}
	if code != "" {
		payload["code"] = code
	}
	c.JSON(status, payload)
}

func classifyServiceError(err error) (int, string) {
	switch {
	case errors.Is(err, matching.ErrEventNotFound):
		return http.StatusNotFound, "event_not_found"
	case errors.Is(err, matching.ErrAlreadyMatched):
		return http.StatusConflict, "already_matched"
	case errors.Is(err, matching.ErrInsufficientPool):
		return http.StatusUnprocessableEntity, "insufficient_pool"
	case errors.Is(err, events.ErrEventClosed):
		return http.StatusConflict, "event_closed"
	case errors.Is(err, events.ErrAlreadyOptedIn):
		return http.StatusConflict, "already_opted_in"
	case errors.Is(err, events.ErrOptInNotFound):
		return http.StatusNotFound, "opt_in_not_found"
	case errors.Is(err, events.ErrInvalidPartner):
		return http.StatusBadRequest, "invalid_partner"
	case errors.Is(err, events.ErrInvalidEventID), errors.Is(err, events.ErrInvalidUserID):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, matching.ErrMissingEventName):
		return http.StatusBadRequest, "invalid_request"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
