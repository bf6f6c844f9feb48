package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	iauth "github.com/playcohq/playco/internal/auth"
	"github.com/playcohq/playco/internal/middleware"
	"github.com/playcohq/playco/internal/models"
	"github.com/playcohq/playco/pkg/crypto"
	"github.com/playcohq/playco/pkg/errors"
	"github.com/playcohq/playco/pkg/response"
)

// AuthHandler manages authentication flows (login/me).
type AuthHandler struct {
	db  *gorm.DB
	jwt *iauth.JWTService
}

func NewAuthHandler(db *gorm.DB, jwt *iauth.JWTService) *AuthHandler {
	return &AuthHandler{db: db, jwt: jwt}
}

type loginRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}
	req.Identifier = strings.TrimSpace(req.Identifier)

	var user models.User
	err := h.db.WithContext(c.Request.Context()).
		Where("username = ? OR email = ?", req.Identifier, req.Identifier).
		First(&user).Error
	if err != nil || !user.IsActive || !crypto.VerifyPassword(user.Password, req.Password) {
		// Normalise all login failures to 401
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	token, err := h.jwt.GenerateAccessToken(iauth.AccessTokenInput{UserID: user.ID})
	if err != nil {
		response.Error(c, errors.ErrInternalServer)
		return
	}

	now := time.Now()
	user.LastLoginAt = &now
	if err := h.db.WithContext(c.Request.Context()).Model(&user).UpdateColumn("last_login_at", now).Error; err != nil {
		response.Error(c, errors.ErrInternalServer)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"access_token": token,
		"user": gin.H{
			"id":       user.ID,
			"username": user.Username,
			"nickname": user.Nickname,
			"email":    user.Email,
		},
	})
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var user models.User
	err := h.db.WithContext(c.Request.Context()).First(&user, "id = ?", userID).Error
	if err != nil {
		response.Error(c, errors.ErrNotFound.WithMessage("User not found"))
		return
	}

	response.Success(c, http.StatusOK, user)
}
