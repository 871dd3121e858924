package users

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rd-prediction-backend/internal/shared/auth"
	"rd-prediction-backend/internal/shared/server/middleware"
	"rd-prediction-backend/internal/shared/server/respond"
)

type Handler struct {
	Svc    *Service
	Tokens *auth.TokenIssuer
}

func NewHandler(svc *Service, tokens *auth.TokenIssuer) *Handler {
	return &Handler{Svc: svc, Tokens: tokens}
}

// RegisterRoutes mounts the public sign-up and sign-in routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/register", h.register)
	rg.POST("/login", h.login)
}

// RegisterProtectedRoutes mounts routes that need an authenticated caller.
func (h *Handler) RegisterProtectedRoutes(rg *gin.RouterGroup) {
	rg.GET("/auth/me", h.me)
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	user, err := h.Svc.Register(c.Request.Context(), RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.writeAuth(c, http.StatusCreated, user)
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	user, err := h.Svc.Login(c.Request.Context(), req.identifier(), req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.writeAuth(c, http.StatusOK, user)
}

func (h *Handler) me(c *gin.Context) {
	if h.Svc == nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "service unavailable", nil)
		return
	}
	user, err := h.Svc.GetByID(c.Request.Context(), middleware.UserIDFromContext(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	respond.Data(c, http.StatusOK, gin.H{"user": toUserResponse(user)})
}

func (h *Handler) writeAuth(c *gin.Context, status int, user User) {
	token, err := h.Tokens.Issue(auth.Identity{UserID: user.ID, Username: user.Username, Role: user.Role})
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to issue token", nil)
		return
	}
	respond.Data(c, status, authResponse{Token: token, User: toUserResponse(user)})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		fields := make([]respond.FieldError, 0, len(verr.Fields))
		for _, f := range verr.Fields {
			fields = append(fields, respond.FieldError{Field: f.Field, Message: f.Message})
		}
		respond.Error(c, http.StatusBadRequest, "validation_error", "validation failed", fields)
	case errors.Is(err, ErrEmailExists), errors.Is(err, ErrUsernameExists):
		respond.Error(c, http.StatusConflict, "conflict", err.Error(), nil)
	case errors.Is(err, ErrInvalidCredentials):
		respond.Error(c, http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil)
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "user not found", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", "request failed", nil)
	}
}

func toUserResponse(u User) userResponse {
	resp := userResponse{
		ID:              u.ID,
		Username:        u.Username,
		Email:           u.Email,
		Role:            u.Role,
		PredictionCount: u.PredictionCount,
		CreatedAt:       u.CreatedAt.UTC().Format(time.RFC3339),
	}
	if u.LastLoginAt != nil {
		resp.LastLoginAt = u.LastLoginAt.UTC().Format(time.RFC3339)
	}
	return resp
}
