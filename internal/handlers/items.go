package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/playcohq/playco/internal/middleware"
	"github.com/playcohq/playco/internal/models"
	"github.com/playcohq/playco/internal/playlist"
	"github.com/playcohq/playco/internal/station"
	apperrors "github.com/playcohq/playco/pkg/errors"
	"github.com/playcohq/playco/pkg/response"
)

// ItemHandler manages the ordered items of a playlist. Every mutation demands
// the full playlist fingerprint via If-Match and hands back the successor
// fingerprint via ETag.
type ItemHandler struct {
	playlists *playlist.Service
	store     *playlist.Store
	rooms     *station.RoomRegistry
	notifier  RoomNotifier
}

func NewItemHandler(playlists *playlist.Service, store *playlist.Store, rooms *station.RoomRegistry, notifier RoomNotifier) *ItemHandler {
	return &ItemHandler{playlists: playlists, store: store, rooms: rooms, notifier: notifier}
}

type insertItemRequest struct {
	Link     string `json:"link" validate:"required,url"`
	Position *int   `json:"position"`
}

type moveItemRequest struct {
	Link string `json:"link" validate:"required"`
}

// GET /api/playlists/:id/items
//
// Supports start/count query parameters for windowed reads; the ETag always
// covers the full sequence.
func (h *ItemHandler) List(c *gin.Context) {
	p, items, ok := h.load(c)
	if !ok {
		return
	}

	window := items
	if c.Query("start") != "" || c.Query("count") != "" {
		start := parseIntQuery(c, "start", 0)
		count := parseIntQuery(c, "count", len(items))

		var err error
		window, err = h.store.Slice(c.Request.Context(), p.ID, start, count)
		if err != nil {
			response.Error(c, err)
			return
		}
	}

	response.SuccessWithETag(c, http.StatusOK, playlist.Fingerprint(p, items), gin.H{
		"items": window,
		"count": len(items),
	})
}

// GET /api/playlists/:id/items/:pos
func (h *ItemHandler) GetAt(c *gin.Context) {
	p, _, ok := h.load(c)
	if !ok {
		return
	}
	pos, ok := parsePosParam(c)
	if !ok {
		return
	}

	item, err := h.store.At(c.Request.Context(), p.ID, pos)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, item)
}

// POST /api/playlists/:id/items
func (h *ItemHandler) Insert(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	p, items, ok := h.load(c)
	if !ok {
		return
	}
	if p.OwnerUserID != userID && !p.PublicItemAppendable {
		response.Error(c, apperrors.ErrForbidden)
		return
	}

	var req insertItemRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if !verifyMatch(c, p, items) {
		return
	}

	pos := -1
	if req.Position != nil {
		pos = *req.Position
	}

	ctx := c.Request.Context()
	item, err := h.store.Insert(ctx, p, pos, req.Link, userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.notifier.PlaylistModified(ctx, p.ID)
	h.respondWithSnapshot(c, http.StatusCreated, p, gin.H{"item": item})
}

// PATCH /api/playlists/:id/items/:pos
//
// Moves the item identified by link in the request body to position pos.
func (h *ItemHandler) Move(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	p, items, ok := h.load(c)
	if !ok {
		return
	}
	if p.OwnerUserID != userID && !p.PublicItemOrderable {
		response.Error(c, apperrors.ErrForbidden)
		return
	}
	pos, ok := parsePosParam(c)
	if !ok {
		return
	}

	var req moveItemRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if !verifyMatch(c, p, items) {
		return
	}

	ctx := c.Request.Context()
	item, err := h.store.Move(ctx, p, pos, req.Link)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.notifier.PlaylistModified(ctx, p.ID)
	h.respondWithSnapshot(c, http.StatusOK, p, gin.H{"item": item})
}

// DELETE /api/playlists/:id/items/:pos
func (h *ItemHandler) Delete(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	p, items, ok := h.load(c)
	if !ok {
		return
	}
	if p.OwnerUserID != userID && !p.PublicItemDeletable {
		response.Error(c, apperrors.ErrForbidden)
		return
	}
	pos, ok := parsePosParam(c)
	if !ok {
		return
	}
	if !verifyMatch(c, p, items) {
		return
	}

	// Room cursors shift against display positions, so normalise tail
	// addressing before the item count changes.
	displayPos := pos
	if displayPos < 0 {
		displayPos += len(items)
	}

	ctx := c.Request.Context()
	item, err := h.store.Delete(ctx, p, pos)
	if err != nil {
		response.Error(c, err)
		return
	}

	if _, err := h.rooms.ShiftCursors(ctx, p.ID, displayPos); err != nil {
		response.Error(c, err)
		return
	}

	h.notifier.PlaylistModified(ctx, p.ID)
	h.respondWithSnapshot(c, http.StatusOK, p, gin.H{"deleted": item})
}

// respondWithSnapshot reloads the item sequence so the ETag covers the state
// the mutation produced.
func (h *ItemHandler) respondWithSnapshot(c *gin.Context, status int, p *models.Playlist, data gin.H) {
	items, err := h.store.All(c.Request.Context(), p.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithETag(c, status, playlist.Fingerprint(p, items), data)
}

func (h *ItemHandler) load(c *gin.Context) (*models.Playlist, []models.PlaylistItem, bool) {
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
