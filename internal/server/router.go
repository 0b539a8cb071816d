package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dinnervote/backend/internal/session"
	"github.com/dinnervote/backend/internal/voting"
)

const (
	deviceClaimsContextKey   = "dinnervote_device_claims"
	defaultHeartbeatInterval = 25 * time.Second
)

var (
	errMissingVotingService = errors.New("voting service dependency required")
	errMissingSessions      = errors.New("session manager dependency required")
)

type Dependencies struct {
	VotingService     *voting.Service
	Sessions          *session.Manager
	Realtime          *RealtimeDispatcher
	Logger            *zap.Logger
	AllowedOrigins    []string
	HeartbeatInterval time.Duration
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.VotingService == nil {
		return nil, errMissingVotingService
	}
	if deps.Sessions == nil {
		return nil, errMissingSessions
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		votingService: deps.VotingService,
		sessions:      deps.Sessions,
		realtime:      realtime,
		logger:        logger,
		heartbeat:     heartbeat,
	}

	router.GET("/healthz", handler.handleHealth)

	groups := router.Group("/groups")
	groups.Use(handler.resolveDevice)
	groups.POST("", handler.handleCreateGroup)
	groups.GET("/:code", handler.handlePollView)
	groups.POST("/:code/candidates", handler.handleAddCandidate)
	groups.GET("/:code/candidates", handler.handleListCandidates)
	groups.DELETE("/:code/candidates/:candidateID", handler.handleRemoveCandidate)
	groups.POST("/:code/votes/:candidateID", handler.handleCastVote)
	groups.PUT("/:code/nickname", handler.handleSetNickname)
	groups.GET("/:code/stream", handler.handleStream)

	return router, nil
}

type httpHandler struct {
	votingService *voting.Service
	sessions      *session.Manager
	realtime      *RealtimeDispatcher
	logger        *zap.Logger
	heartbeat     time.Duration
}

// An empty origin list reflects the caller's origin so the device cookie works cross-site.
func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "Last-Event-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		config.AllowOriginFunc = func(string) bool { return true }
	} else {
		config.AllowOrigins = allowedOrigins
	}
	return cors.New(config)
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// resolveDevice attaches the device claims, issuing a cookie to first-time visitors.
func (h *httpHandler) resolveDevice(c *gin.Context) {
	claims, fresh, err := h.sessions.Resolve(c.Request)
	if err != nil {
		h.logger.Error("failed to resolve device session", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session_unavailable"})
		return
	}
	if fresh {
		if err := h.writeSession(c, claims); err != nil {
			h.logger.Error("failed to issue device session", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session_unavailable"})
			return
		}
	}
	c.Set(deviceClaimsContextKey, claims)
	c.Next()
}

func (h *httpHandler) writeSession(c *gin.Context, claims session.Claims) error {
	token, expiresAt, err := h.sessions.Issue(claims)
	if err != nil {
		return err
	}
	http.SetCookie(c.Writer, h.sessions.Cookie(token, expiresAt))
	return nil
}

func deviceClaims(c *gin.Context) (session.Claims, bool) {
	value, ok := c.Get(deviceClaimsContextKey)
	if !ok {
		return session.Claims{}, false
	}
	claims, ok := value.(session.Claims)
	return claims, ok
}
