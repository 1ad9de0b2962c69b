package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/daybook/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/daybook/backend/internal/days"
	"github.com/MarcoPoloResearchLab/daybook/backend/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	userIDContextKey = "daybook_user_id"
	dateParam        = "date"
	bearerPrefix     = "Bearer "
	corsMaxAge       = 12 * time.Hour
)

var (
	errMissingAccounts     = errors.New("account service dependency required")
	errMissingTokenManager = errors.New("token manager dependency required")
	errMissingDaysService  = errors.New("days service dependency required")
)

// AccountService registers and verifies username/password accounts.
type AccountService interface {
	Register(ctx context.Context, username, password string) (string, error)
	Authenticate(ctx context.Context, username, password string) (string, error)
	Exists(ctx context.Context, userID string) (bool, error)
}

// TokenManager issues bearer tokens at login and resolves them to user ids.
type TokenManager interface {
	IssueToken(ctx context.Context, subject string) (string, int64, error)
	ValidateToken(token string) (string, error)
}

type Dependencies struct {
	Accounts       AccountService
	Tokens         TokenManager
	DaysService    *days.Service
	Logger         *zap.Logger
	AllowedOrigins []string
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Accounts == nil {
		return nil, errMissingAccounts
	}
	if deps.Tokens == nil {
		return nil, errMissingTokenManager
	}
	if deps.DaysService == nil {
		return nil, errMissingDaysService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		accounts:    deps.Accounts,
		tokens:      deps.Tokens,
		daysService: deps.DaysService,
		logger:      logger,
	}

	router.POST("/register", handler.handleRegister)
	router.POST("/login", handler.handleLogin)

	protected := router.Group("/sync")
	protected.Use(handler.authorizeRequest)
	protected.GET("/days", handler.handleListDays)
	protected.GET("/days/:date", handler.handlePullDay)
	protected.PUT("/days/:date", handler.handlePushDay)
	protected.POST("/days/:date/check", handler.handleCheckDay)

	return router, nil
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       corsMaxAge,
	}
	origins := make([]string, 0, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "*" {
			config.AllowAllOrigins = true
			return cors.New(config)
		}
		if trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if len(origins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
	}
	return cors.New(config)
}

type httpHandler struct {
	accounts    AccountService
	tokens      TokenManager
	daysService *days.Service
	logger      *zap.Logger
}

type credentialsPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponsePayload struct {
	Status    string `json:"status"`
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
	TokenType string `json:"token_type"`
}

type checkRequestPayload struct {
	Hash string `json:"hash"`
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request credentialsPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	userID, err := h.accounts.Register(c.Request.Context(), request.Username, request.Password)
	switch {
	case errors.Is(err, users.ErrUserExists):
		c.JSON(http.StatusConflict, gin.H{"status": "failed", "error": "user_exists"})
		return
	case errors.Is(err, users.ErrInvalidUsername):
		c.JSON(http.StatusBadRequest, gin.H{"status": "failed", "error": "invalid_username"})
		return
	case errors.Is(err, users.ErrInvalidPassword):
		c.JSON(http.StatusBadRequest, gin.H{"status": "failed", "error": "invalid_password"})
		return
	case err != nil:
		h.logger.Error("failed to register account", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "failed", "error": "registration_failed"})
		return
	}

	h.logger.Info("account registered", zap.String("user_id", userID))
	c.JSON(http.StatusCreated, gin.H{"status": "success"})
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request credentialsPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	userID, err := h.accounts.Authenticate(c.Request.Context(), request.Username, request.Password)
	if errors.Is(err, users.ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, gin.H{"status": "failed", "error": "invalid_credentials"})
		return
	}
	if err != nil {
		h.logger.Error("failed to authenticate account", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "failed", "error": "login_failed"})
		return
	}

	token, expiresIn, err := h.tokens.IssueToken(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("failed to issue backend token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "failed", "error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, loginResponsePayload{
		Status:    "success",
		Token:     token,
		ExpiresIn: expiresIn,
		TokenType: "Bearer",
	})
}

func (h *httpHandler) handleListDays(c *gin.Context) {
	userID, ok := h.requestUser(c)
	if !ok {
		return
	}

	listing, err := h.daysService.ListDays(c.Request.Context(), userID)
	if err != nil {
		h.respondSyncError(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

func (h *httpHandler) handlePullDay(c *gin.Context) {
	userID, ok := h.requestUser(c)
	if !ok {
		return
	}
	day, ok := requestDay(c)
	if !ok {
		return
	}

	content, err := h.daysService.Pull(c.Request.Context(), userID, day)
	if err != nil {
		h.respondSyncError(c, err)
		return
	}
	c.JSON(http.StatusOK, content)
}

func (h *httpHandler) handlePushDay(c *gin.Context) {
	userID, ok := h.requestUser(c)
	if !ok {
		return
	}
	day, ok := requestDay(c)
	if !ok {
		return
	}

	var content days.SyncContent
	if err := c.ShouldBindJSON(&content); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	clientTime, err := days.NewUnixMillis(content.Time)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_timestamp"})
		return
	}

	err = h.daysService.Push(c.Request.Context(), userID, days.PushRequest{
		Day:        day,
		ClientTime: clientTime,
		Tasks:      content.Tasks,
		Notes:      content.Notes,
		TaskTags:   content.TaskTags,
		NoteTags:   content.NoteTags,
	})
	if err != nil {
		h.respondSyncError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *httpHandler) handleCheckDay(c *gin.Context) {
	userID, ok := h.requestUser(c)
	if !ok {
		return
	}
	day, ok := requestDay(c)
	if !ok {
		return
	}

	var request checkRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Hash) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	needSync, err := h.daysService.NeedsSync(c.Request.Context(), userID, day, request.Hash)
	if err != nil {
		h.respondSyncError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"need_sync": needSync})
}

func (h *httpHandler) requestUser(c *gin.Context) (days.UserID, bool) {
	userID, err := days.NewUserID(c.GetString(userIDContextKey))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return "", false
	}
	return userID, true
}

func requestDay(c *gin.Context) (days.DayKey, bool) {
	day, err := days.NewDayKey(c.Param(dateParam))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_date"})
		return "", false
	}
	return day, true
}

func (h *httpHandler) respondSyncError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, days.ErrInvalidDate):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_date"})
	case errors.Is(err, days.ErrInvalidTimestamp):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_timestamp"})
	case errors.Is(err, days.ErrInvalidRecord):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_record"})
	case errors.Is(err, days.ErrStaleTimestamp):
		c.JSON(http.StatusConflict, gin.H{"error": "stale_timestamp"})
	default:
		var serviceErr *days.ServiceError
		if errors.As(err, &serviceErr) {
			h.logger.Error("day sync failed", zap.String("code", serviceErr.Code()), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "sync_failed", "code": serviceErr.Code()})
			return
		}
		h.logger.Error("day sync failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sync_failed"})
	}
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, bearerPrefix) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, jwt.ErrTokenExpired) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	exists, err := h.accounts.Exists(c.Request.Context(), subject)
	if err != nil {
		h.logger.Error("failed to resolve token subject", zap.String("user_id", subject), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "authorization_failed"})
		return
	}
	if !exists {
		h.logger.Warn("token subject has no account", zap.String("user_id", subject))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	c.Set(userIDContextKey, subject)
	c.Next()
}
