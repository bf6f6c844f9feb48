package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	iauth "github.com/playcohq/playco/internal/auth"
	"github.com/playcohq/playco/internal/middleware"
	"github.com/playcohq/playco/internal/models"
	"github.com/playcohq/playco/pkg/errors"
	"github.com/playcohq/playco/pkg/response"
)

// ChannelTokenHandler mints connection-bound tokens for the event channel.
// Clients first open a websocket, learn their connection id from the hello
// event, then call this endpoint to get a token only that connection can use.
type ChannelTokenHandler struct {
	db  *gorm.DB
	jwt *iauth.JWTService
}

func NewChannelTokenHandler(db *gorm.DB, jwt *iauth.JWTService) *ChannelTokenHandler {
	return &ChannelTokenHandler{db: db, jwt: jwt}
}

type channelTokenRequest struct {
	ConnectionID string `json:"connection_id" validate:"required"`
}

// POST /api/station/token
func (h *ChannelTokenHandler) Mint(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req channelTokenRequest
	if !bindAndValidate(c, &req) {
		return
	}

	var user models.User
	if err := h.db.WithContext(c.Request.Context()).First(&user, "id = ?", userID).Error; err != nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	token, err := h.jwt.GenerateChannelToken(iauth.ChannelTokenInput{
		UserID:       user.ID,
		ConnectionID: req.ConnectionID,
		Nickname:     user.Nickname,
	})
	if err != nil {
		response.Error(c, errors.ErrInternalServer)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"token": token})
}
