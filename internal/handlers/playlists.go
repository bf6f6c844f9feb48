package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/playcohq/playco/internal/middleware"
	"github.com/playcohq/playco/internal/models"
	"github.com/playcohq/playco/internal/playlist"
	"github.com/playcohq/playco/internal/station"
	apperrors "github.com/playcohq/playco/pkg/errors"
	"github.com/playcohq/playco/pkg/response"
)

// RoomNotifier lets HTTP handlers tell the event channel that durable playlist
// state changed, so live rooms can re-fingerprint and notify participants.
type RoomNotifier interface {
	PlaylistModified(ctx context.Context, playlistID string)
}

// PlaylistHandler manages playlist lifecycle and metadata endpoints.
type PlaylistHandler struct {
	playlists *playlist.Service
	store     *playlist.Store
	rooms     *station.RoomRegistry
	notifier  RoomNotifier
}

func NewPlaylistHandler(playlists *playlist.Service, store *playlist.Store, rooms *station.RoomRegistry, notifier RoomNotifier) *PlaylistHandler {
	return &PlaylistHandler{playlists: playlists, store: store, rooms: rooms, notifier: notifier}
}

type createPlaylistRequest struct {
	Name                 string `json:"name" validate:"required,max=100"`
	Description          string `json:"description" validate:"max=1000"`
	AllowDuplicate       bool   `json:"allow_duplicate"`
	PublicAccessible     bool   `json:"public_accessible"`
	PublicModifiable     bool   `json:"public_modifiable"`
	PublicItemAppendable bool   `json:"public_item_appendable"`
	PublicItemOrderable  bool   `json:"public_item_orderable"`
	PublicItemDeletable  bool   `json:"public_item_deletable"`
}

type updatePlaylistRequest struct {
	Name                 *string `json:"name" validate:"omitempty,max=100"`
	Description          *string `json:"description" validate:"omitempty,max=1000"`
	AllowDuplicate       *bool   `json:"allow_duplicate"`
	PublicAccessible     *bool   `json:"public_accessible"`
	PublicModifiable     *bool   `json:"public_modifiable"`
	PublicItemAppendable *bool   `json:"public_item_appendable"`
	PublicItemOrderable  *bool   `json:"public_item_orderable"`
	PublicItemDeletable  *bool   `json:"public_item_deletable"`
}

// GET /api/playlists
func (h *PlaylistHandler) List(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	ctx := c.Request.Context()
	playlists, err := h.playlists.ListByOwner(ctx, userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	ids := make([]string, 0, len(playlists))
	for _, p := range playlists {
		ids = append(ids, p.ID)
	}
	counts, err := h.rooms.ParticipantCounts(ctx, ids)
	if err != nil {
		response.Error(c, err)
		return
	}

	entries := make([]gin.H, 0, len(playlists))
	for i := range playlists {
		entries = append(entries, gin.H{
			"playlist":     playlists[i],
			"participants": counts[playlists[i].ID],
		})
	}

	response.Success(c, http.StatusOK, gin.H{"playlists": entries})
}

// POST /api/playlists
func (h *PlaylistHandler) Create(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	var req createPlaylistRequest
	if !bindAndValidate(c, &req) {
		return
	}

	p, err := h.playlists.Create(c.Request.Context(), userID, playlist.CreatePlaylistInput{
		Name:                 req.Name,
		Description:          req.Description,
		AllowDuplicate:       req.AllowDuplicate,
		PublicAccessible:     req.PublicAccessible,
		PublicModifiable:     req.PublicModifiable,
		PublicItemAppendable: req.PublicItemAppendable,
		PublicItemOrderable:  req.PublicItemOrderable,
		PublicItemDeletable:  req.PublicItemDeletable,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithETag(c, http.StatusCreated, playlist.Fingerprint(p, nil), p)
}

// GET /api/playlists/:id
func (h *PlaylistHandler) Get(c *gin.Context) {
	p, items, ok := h.load(c)
	if !ok {
		return
	}

	response.SuccessWithETag(c, http.StatusOK, playlist.Fingerprint(p, items), gin.H{
		"playlist": p,
		"items":    items,
	})
}

// HEAD /api/playlists/:id
//
// Lets clients poll the fingerprint without transferring the playlist body.
func (h *PlaylistHandler) Head(c *gin.Context) {
	p, items, ok := h.load(c)
	if !ok {
		return
	}

	c.Header("ETag", playlist.Fingerprint(p, items))
	c.Status(http.StatusOK)
}

// PATCH /api/playlists/:id
func (h *PlaylistHandler) Update(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	p, items, ok := h.load(c)
	if !ok {
		return
	}
	if p.OwnerUserID != userID && !p.PublicModifiable {
		response.Error(c, apperrors.ErrForbidden)
		return
	}
	if !verifyMatch(c, p, items) {
		return
	}

	var req updatePlaylistRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := c.Request.Context()
	err := h.playlists.UpdateMeta(ctx, p, playlist.UpdatePlaylistInput{
		Name:                 req.Name,
		Description:          req.Description,
		AllowDuplicate:       req.AllowDuplicate,
		PublicAccessible:     req.PublicAccessible,
		PublicModifiable:     req.PublicModifiable,
		PublicItemAppendable: req.PublicItemAppendable,
		PublicItemOrderable:  req.PublicItemOrderable,
		PublicItemDeletable:  req.PublicItemDeletable,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	h.notifier.PlaylistModified(ctx, p.ID)
	response.SuccessWithETag(c, http.StatusOK, playlist.Fingerprint(p, items), p)
}

// DELETE /api/playlists/:id
//
// A playlist with a live room cannot be deleted; participants would be left
// watching a ghost.
func (h *PlaylistHandler) Delete(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	ctx := c.Request.Context()

	p, err := h.playlists.GetForViewer(ctx, c.Param("id"), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if p.OwnerUserID != userID {
		response.Error(c, apperrors.ErrForbidden)
		return
	}

	// Blocked playlists stay deletable by their owner; their fingerprint
	// already excludes the hidden items.
	var items []models.PlaylistItem
	if !p.Blocked() {
		items, err = h.store.All(ctx, p.ID)
		if err != nil {
			response.Error(c, err)
			return
		}
	}
	if !verifyMatch(c, p, items) {
		return
	}

	room, err := h.rooms.Get(ctx, p.ID)
	if err != nil && !errors.Is(err, station.ErrRoomNotFound) {
		response.Error(c, err)
		return
	}
	if room != nil && len(room.Participants) > 0 {
		response.Error(c, apperrors.NewConflict(apperrors.ReasonRoomOccupied,
			"Playlist has a live room, ask participants to leave first"))
		return
	}

	if err := h.playlists.Delete(ctx, p); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// load fetches the playlist for the authenticated viewer and rejects blocked
// playlists. Items are omitted for blocked playlists on every surface.
func (h *PlaylistHandler) load(c *gin.Context) (*models.Playlist, []models.PlaylistItem, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return nil, nil, false
	}

	ctx := c.Request.Context()
	p, err := h.playlists.GetForViewer(ctx, c.Param("id"), userID)
	if err != nil {
		response.Error(c, err)
		return nil, nil, false
	}
	if p.Blocked() {
		response.Error(c, blockedError(p))
		return nil, nil, false
	}

	items, err := h.store.All(ctx, p.ID)
	if err != nil {
		response.Error(c, err)
		return nil, nil, false
	}
	return p, items, true
}

func blockedError(p *models.Playlist) error {
	message := "Playlist is blocked"
	if p.BlockedReason != "" {
		message += ": " + p.BlockedReason
	}
	return apperrors.ErrForbidden.WithMessage(message)
}

// verifyMatch checks the If-Match fingerprint against the current snapshot.
func verifyMatch(c *gin.Context, p *models.Playlist, items []models.PlaylistItem) bool {
	if err := playlist.VerifyFingerprint(p, items, c.GetHeader("If-Match")); err != nil {
		response.Error(c, err)
		return false
	}
	return true
}
