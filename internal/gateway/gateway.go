package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/playcohq/playco/internal/auth"
	"github.com/playcohq/playco/internal/station"
	apperrors "github.com/playcohq/playco/pkg/errors"
	"github.com/playcohq/playco/pkg/logger"
)

const eventTimeout = 10 * time.Second

// Gateway drives the event channel: it validates payloads, applies registry
// operations and fans results out to rooms. Every registry call re-checks
// session and room existence, so a connection that died mid-flight degrades
// to a not-found error instead of corrupting shared state.
type Gateway struct {
	hub      *Hub
	sessions *station.SessionRegistry
	rooms    *station.RoomRegistry
	tokens   *auth.JWTService
	log      *zap.Logger
}

// New wires a Gateway to the hub and registries.
func New(hub *Hub, sessions *station.SessionRegistry, rooms *station.RoomRegistry, tokens *auth.JWTService) (*Gateway, error) {
	if hub == nil {
		return nil, errors.New("gateway: hub is required")
	}
	if sessions == nil {
		return nil, errors.New("gateway: session registry is required")
	}
	if rooms == nil {
		return nil, errors.New("gateway: room registry is required")
	}
	if tokens == nil {
		return nil, errors.New("gateway: token service is required")
	}

	g := &Gateway{
		hub:      hub,
		sessions: sessions,
		rooms:    rooms,
		tokens:   tokens,
		log:      logger.WithModule("gateway"),
	}
	hub.SetHandler(g)
	return g, nil
}

// HandleEvent dispatches one raw client message.
func (g *Gateway) HandleEvent(connID string, raw []byte) {
	var event ClientEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		g.hub.Send(connID, ServerEvent{
			Event: EventResponse,
			Error: &EventError{Code: "PAYLOAD_MALFORMED", Message: "Event envelope could not be decoded"},
		})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	switch event.Event {
	case EventIdentify:
		g.handleIdentify(ctx, connID, event)
	case EventRoomEnter:
		g.handleRoomEnter(ctx, connID, event)
	case EventRoomLeave:
		g.handleRoomLeave(ctx, connID, event)
	case EventRoomSetStatus:
		g.handleRoomSetStatus(ctx, connID, event)
	default:
		g.respondError(connID, event.RequestID, &EventError{
			Code:    "UNKNOWN_EVENT",
			Message: "Unknown event type",
		})
	}
}

// HandleDisconnect tears down everything a vanished connection left behind:
// best-effort room exits with participant.left broadcasts, then the session.
func (g *Gateway) HandleDisconnect(connID string) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	session, err := g.sessions.Get(ctx, connID)
	if err != nil {
		// Connection never identified; nothing to clean.
		return
	}

	for _, playlistID := range session.EnteredRooms {
		room, err := g.rooms.Exit(ctx, playlistID, connID, true)
		if err != nil {
			g.log.Warn("room exit failed on disconnect",
				zap.String("conn_id", connID),
				zap.String("playlist_id", playlistID),
				zap.Error(err))
			continue
		}
		g.broadcastParticipantLeft(room, session.Nickname)
	}

	if err := g.sessions.Destroy(ctx, connID, nil); err != nil {
		g.log.Error("session teardown failed", zap.String("conn_id", connID), zap.Error(err))
	}
}

func (g *Gateway) handleIdentify(ctx context.Context, connID string, event ClientEvent) {
	var payload identifyPayload
	if errPayload := decodePayload(event.Payload, &payload); errPayload != nil {
		g.respondError(connID, event.RequestID, errPayload)
		return
	}
	if payload.Token == "" {
		g.respondError(connID, event.RequestID, incompleteError("token"))
		return
	}

	session, err := g.sessions.Create(ctx, connID, payload.Token)
	if err != nil {
		g.respondError(connID, event.RequestID, eventError(err))
		if apperrors.FromError(err).Code == apperrors.ErrCapacityExceeded.Code {
			// The response is queued first so the client learns why it
			// is being dropped.
			g.hub.Disconnect(connID)
		}
		return
	}

	g.respond(connID, event.RequestID, map[string]any{
		"connection_id": connID,
		"nickname":      session.Nickname,
	})
}

func (g *Gateway) handleRoomEnter(ctx context.Context, connID string, event ClientEvent) {
	var payload roomEnterPayload
	if errPayload := decodePayload(event.Payload, &payload); errPayload != nil {
		g.respondError(connID, event.RequestID, errPayload)
		return
	}
	if field, ok := missingRoomFields(payload.Token, payload.PlaylistID); !ok {
		g.respondError(connID, event.RequestID, incompleteError(field))
		return
	}
	if !g.verifyToken(connID, event.RequestID, payload.Token) {
		return
	}

	cursor := 0
	if payload.CurrentlyPlaying != nil {
		cursor = *payload.CurrentlyPlaying
	}

	room, err := g.rooms.Enter(ctx, payload.PlaylistID, connID, cursor)
	if err != nil {
		g.respondError(connID, event.RequestID, eventError(err))
		if errors.Is(err, station.ErrSessionNotFound) {
			// Room operations without a session mean the client skipped
			// identify; the connection is not salvageable.
			g.hub.Disconnect(connID)
		}
		return
	}

	view := station.PublicView(room)
	g.hub.Broadcast(participantConns(room), ServerEvent{
		Event: EventParticipantJoined,
		Data: map[string]any{
			"room":   view,
			"joined": room.Participants[connID].Nickname,
		},
	})
	g.respond(connID, event.RequestID, map[string]any{"room": view})
}

func (g *Gateway) handleRoomLeave(ctx context.Context, connID string, event ClientEvent) {
	var payload roomLeavePayload
	if errPayload := decodePayload(event.Payload, &payload); errPayload != nil {
		g.respondError(connID, event.RequestID, errPayload)
		return
	}
	if field, ok := missingRoomFields(payload.Token, payload.PlaylistID); !ok {
		g.respondError(connID, event.RequestID, incompleteError(field))
		return
	}
	if !g.verifyToken(connID, event.RequestID, payload.Token) {
		return
	}

	session, err := g.sessions.Get(ctx, connID)
	if err != nil {
		g.respondError(connID, event.RequestID, eventError(err))
		g.hub.Disconnect(connID)
		return
	}

	room, err := g.rooms.Exit(ctx, payload.PlaylistID, connID, false)
	if err != nil {
		g.respondError(connID, event.RequestID, eventError(err))
		return
	}

	if room == nil {
		g.hub.Send(connID, ServerEvent{
			Event: EventRoomClosed,
			Data:  map[string]any{"playlist_id": payload.PlaylistID},
		})
		g.respond(connID, event.RequestID, map[string]any{"closed": true})
		return
	}

	g.broadcastParticipantLeft(room, session.Nickname)
	g.respond(connID, event.RequestID, map[string]any{"room": station.PublicView(room)})
}

func (g *Gateway) handleRoomSetStatus(ctx context.Context, connID string, event ClientEvent) {
	var payload roomSetStatusPayload
	if errPayload := decodePayload(event.Payload, &payload); errPayload != nil {
		g.respondError(connID, event.RequestID, errPayload)
		return
	}
	if field, ok := missingRoomFields(payload.Token, payload.PlaylistID); !ok {
		g.respondError(connID, event.RequestID, incompleteError(field))
		return
	}
	if payload.CurrentlyPlaying == nil {
		g.respondError(connID, event.RequestID, incompleteError("currently_playing"))
		return
	}
	if !g.verifyToken(connID, event.RequestID, payload.Token) {
		return
	}

	_, err := g.rooms.SetStatus(ctx, payload.PlaylistID, connID, station.Status{
		CurrentlyPlaying: *payload.CurrentlyPlaying,
	})
	if err != nil {
		g.respondError(connID, event.RequestID, eventError(err))
		return
	}

	// Re-fetch after the write: the durable playlist may have changed
	// underneath the room while the status update was in flight.
	room, dbModified, err := g.rooms.RefreshFingerprint(ctx, payload.PlaylistID)
	if err != nil {
		g.respondError(connID, event.RequestID, eventError(err))
		return
	}

	view := station.PublicView(room)
	g.hub.Broadcast(participantConns(room), ServerEvent{
		Event: EventRoomModified,
		Data: map[string]any{
			"room":        view,
			"db_modified": dbModified,
		},
	})
	g.respond(connID, event.RequestID, map[string]any{"room": view, "db_modified": dbModified})
}

// PlaylistModified is called by the HTTP layer after a durable playlist
// mutation. It refreshes the room fingerprint and notifies participants;
// playlists without a live room need nothing.
func (g *Gateway) PlaylistModified(ctx context.Context, playlistID string) {
	room, changed, err := g.rooms.RefreshFingerprint(ctx, playlistID)
	if err != nil {
		if !errors.Is(err, station.ErrRoomNotFound) {
			g.log.Warn("fingerprint refresh failed", zap.String("playlist_id", playlistID), zap.Error(err))
		}
		return
	}

	g.hub.Broadcast(participantConns(room), ServerEvent{
		Event: EventRoomModified,
		Data: map[string]any{
			"room":        station.PublicView(room),
			"db_modified": changed,
		},
	})
}

// Announce broadcasts an operator announcement to every connection.
func (g *Gateway) Announce(data any) {
	g.hub.Announce(ServerEvent{Event: EventAnnouncement, Data: data})
}

// verifyToken guards room-scoped operations. A bad token there means the
// connection's identity can no longer be trusted, so it is dropped after the
// correlated response.
func (g *Gateway) verifyToken(connID, requestID, token string) bool {
	if _, err := g.tokens.ValidateChannelToken(token, connID); err != nil {
		g.respondError(connID, requestID, eventError(apperrors.ErrUnauthorized.WithInternal(err)))
		g.hub.Disconnect(connID)
		return false
	}
	return true
}

func (g *Gateway) broadcastParticipantLeft(room *station.RoomRecord, nickname string) {
	if room == nil {
		return
	}
	g.hub.Broadcast(participantConns(room), ServerEvent{
		Event: EventParticipantLeft,
		Data: map[string]any{
			"room": station.PublicView(room),
			"left": nickname,
		},
	})
}

func (g *Gateway) respond(connID, requestID string, data any) {
	g.hub.Send(connID, ServerEvent{Event: EventResponse, RequestID: requestID, Data: data})
}

func (g *Gateway) respondError(connID, requestID string, errEvent *EventError) {
	g.hub.Send(connID, ServerEvent{Event: EventResponse, RequestID: requestID, Error: errEvent})
}

func missingRoomFields(token, playlistID string) (string, bool) {
	if token == "" {
		return "token", false
	}
	if playlistID == "" {
		return "playlist_id", false
	}
	return "", true
}

func participantConns(room *station.RoomRecord) []string {
	if room == nil {
		return nil
	}
	conns := make([]string, 0, len(room.Participants))
	for connID := range room.Participants {
		conns = append(conns, connID)
	}
	return conns
}
