package station

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/playcohq/playco/internal/models"
	"github.com/playcohq/playco/internal/playlist"
	apperrors "github.com/playcohq/playco/pkg/errors"
	"github.com/playcohq/playco/pkg/logger"
)

// RoomRegistry manages per-playlist rooms in the shared store. A room exists
// exactly while it has participants; the first Enter creates it and the last
// Exit deletes it.
type RoomRegistry struct {
	rdb       *redis.Client
	playlists *playlist.Service
	store     *playlist.Store
	log       *zap.Logger
}

// NewRoomRegistry builds a RoomRegistry.
func NewRoomRegistry(rdb *redis.Client, playlists *playlist.Service, store *playlist.Store) (*RoomRegistry, error) {
	if rdb == nil {
		return nil, errors.New("station: redis client is required")
	}
	if playlists == nil {
		return nil, errors.New("station: playlist service is required")
	}
	if store == nil {
		return nil, errors.New("station: playlist store is required")
	}
	return &RoomRegistry{
		rdb:       rdb,
		playlists: playlists,
		store:     store,
		log:       logger.WithModule("station.rooms"),
	}, nil
}

// Get returns the room for playlistID, or a not-found error.
func (r *RoomRegistry) Get(ctx context.Context, playlistID string) (*RoomRecord, error) {
	var room RoomRecord
	found, err := readRecord(ctx, r.rdb, roomKey(playlistID), &room)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrRoomNotFound
	}
	return &room, nil
}

// Enter adds connID to the playlist's room, creating the room on first entry.
// The session must already exist; the playlist must exist in durable storage.
func (r *RoomRegistry) Enter(ctx context.Context, playlistID, connID string, cursor int) (*RoomRecord, error) {
	var session SessionRecord
	found, err := readRecord(ctx, r.rdb, sessionKey(connID), &session)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrSessionNotFound
	}

	room := &RoomRecord{}
	found, err = readRecord(ctx, r.rdb, roomKey(playlistID), room)
	if err != nil {
		return nil, err
	}
	if !found {
		hash, err := r.currentFingerprint(ctx, playlistID)
		if err != nil {
			return nil, err
		}
		room = &RoomRecord{
			SchemaVersion: SchemaVersion,
			PlaylistID:    playlistID,
			PlaylistHash:  hash,
			Participants:  map[string]Participant{},
		}
	}

	if cursor < 0 {
		cursor = 0
	}
	room.Participants[connID] = Participant{
		Status:   Status{CurrentlyPlaying: cursor},
		Nickname: session.Nickname,
		Data:     map[string]any{},
	}

	if !containsRoom(session.EnteredRooms, playlistID) {
		session.EnteredRooms = append(session.EnteredRooms, playlistID)
	}

	if err := writeRecord(ctx, r.rdb, roomKey(playlistID), room); err != nil {
		r.log.Error("room write failed on enter", zap.String("playlist_id", playlistID), zap.Error(err))
		return nil, apperrors.ErrStoreCommit.WithInternal(err)
	}
	if err := writeRecord(ctx, r.rdb, sessionKey(connID), &session); err != nil {
		r.log.Error("session write failed on enter", zap.String("conn_id", connID), zap.Error(err))
		return nil, apperrors.ErrStoreCommit.WithInternal(err)
	}

	return room, nil
}

// Exit removes connID from the room. The emptied room is deleted and a nil
// record returned. With force set, a missing session is tolerated so that
// teardown of half-dead connections can still clean the room.
func (r *RoomRegistry) Exit(ctx context.Context, playlistID, connID string, force bool) (*RoomRecord, error) {
	var session SessionRecord
	sessionFound, err := readRecord(ctx, r.rdb, sessionKey(connID), &session)
	if err != nil {
		return nil, err
	}
	if !sessionFound && !force {
		return nil, ErrSessionNotFound
	}

	room, err := r.Get(ctx, playlistID)
	if err != nil {
		return nil, err
	}

	delete(room.Participants, connID)
	if room.DriverConnID == connID {
		room.DriverConnID = ""
	}

	if sessionFound {
		session.EnteredRooms = removeRoom(session.EnteredRooms, playlistID)
		if err := writeRecord(ctx, r.rdb, sessionKey(connID), &session); err != nil {
			r.log.Error("session write failed on exit", zap.String("conn_id", connID), zap.Error(err))
			return nil, apperrors.ErrStoreCommit.WithInternal(err)
		}
	}

	if len(room.Participants) == 0 {
		if err := r.rdb.Del(ctx, roomKey(playlistID)).Err(); err != nil {
			r.log.Error("room delete failed on exit", zap.String("playlist_id", playlistID), zap.Error(err))
			return nil, apperrors.ErrStoreCommit.WithInternal(err)
		}
		return nil, nil
	}

	if err := writeRecord(ctx, r.rdb, roomKey(playlistID), room); err != nil {
		r.log.Error("room write failed on exit", zap.String("playlist_id", playlistID), zap.Error(err))
		return nil, apperrors.ErrStoreCommit.WithInternal(err)
	}
	return room, nil
}

// SetStatus replaces the participant's playback status.
func (r *RoomRegistry) SetStatus(ctx context.Context, playlistID, connID string, status Status) (*RoomRecord, error) {
	if status.CurrentlyPlaying < 0 {
		return nil, apperrors.NewValidation("currently_playing")
	}

	room, err := r.Get(ctx, playlistID)
	if err != nil {
		return nil, err
	}

	participant, ok := room.Participants[connID]
	if !ok {
		return nil, ErrNotInRoom
	}
	participant.Status = status
	room.Participants[connID] = participant

	if err := writeRecord(ctx, r.rdb, roomKey(playlistID), room); err != nil {
		r.log.Error("room write failed on status update", zap.String("playlist_id", playlistID), zap.Error(err))
		return nil, apperrors.ErrStoreCommit.WithInternal(err)
	}
	return room, nil
}

// RefreshFingerprint recomputes the playlist fingerprint against durable
// storage and persists it on the room when it drifted. The bool reports
// whether the stored hash changed.
func (r *RoomRegistry) RefreshFingerprint(ctx context.Context, playlistID string) (*RoomRecord, bool, error) {
	room, err := r.Get(ctx, playlistID)
	if err != nil {
		return nil, false, err
	}

	hash, err := r.currentFingerprint(ctx, playlistID)
	if err != nil {
		return nil, false, err
	}
	if room.PlaylistHash == hash {
		return room, false, nil
	}

	room.PlaylistHash = hash
	if err := writeRecord(ctx, r.rdb, roomKey(playlistID), room); err != nil {
		r.log.Error("room write failed on fingerprint refresh", zap.String("playlist_id", playlistID), zap.Error(err))
		return nil, false, apperrors.ErrStoreCommit.WithInternal(err)
	}
	return room, true, nil
}

// ShiftCursors adjusts participant cursors after the item at deletedPos was
// removed: every cursor at or beyond it moves one step back, clamped at zero.
// A missing room is not an error; there is simply nothing to shift.
func (r *RoomRegistry) ShiftCursors(ctx context.Context, playlistID string, deletedPos int) (*RoomRecord, error) {
	var room RoomRecord
	found, err := readRecord(ctx, r.rdb, roomKey(playlistID), &room)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	changed := false
	for connID, participant := range room.Participants {
		cursor := participant.Status.CurrentlyPlaying
		if cursor >= deletedPos && cursor > 0 {
			participant.Status.CurrentlyPlaying = cursor - 1
			room.Participants[connID] = participant
			changed = true
		}
	}
	if !changed {
		return &room, nil
	}

	if err := writeRecord(ctx, r.rdb, roomKey(playlistID), &room); err != nil {
		r.log.Error("room write failed on cursor shift", zap.String("playlist_id", playlistID), zap.Error(err))
		return nil, apperrors.ErrStoreCommit.WithInternal(err)
	}
	return &room, nil
}

// ParticipantCounts returns the number of participants per live room for the
// supplied playlists. Playlists without a room are absent from the result.
func (r *RoomRegistry) ParticipantCounts(ctx context.Context, playlistIDs []string) (map[string]int, error) {
	if len(playlistIDs) == 0 {
		return map[string]int{}, nil
	}

	keys := make([]string, 0, len(playlistIDs))
	for _, id := range playlistIDs {
		keys = append(keys, roomKey(id))
	}

	values, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		var room RoomRecord
		if err := decodeRoom(raw, &room); err != nil {
			r.log.Warn("skipping undecodable room record", zap.String("playlist_id", playlistIDs[i]), zap.Error(err))
			continue
		}
		counts[room.PlaylistID] = len(room.Participants)
	}
	return counts, nil
}

// PublicState is the client-safe projection of a room: participants are keyed
// by nickname and connection ids never leave the server.
type PublicState struct {
	PlaylistID        string                 `json:"playlist_id"`
	PlaylistHash      string                 `json:"playlist_hash"`
	Participants      map[string]Participant `json:"participants"`
	CurrentPlayTarget string                 `json:"current_play_target,omitempty"`
}

// PublicView projects a room for broadcast. A nil room (just-closed) yields
// a nil view.
func PublicView(room *RoomRecord) *PublicState {
	if room == nil {
		return nil
	}

	view := &PublicState{
		PlaylistID:   room.PlaylistID,
		PlaylistHash: room.PlaylistHash,
		Participants: make(map[string]Participant, len(room.Participants)),
	}
	for connID, participant := range room.Participants {
		view.Participants[participant.Nickname] = participant
		if connID == room.DriverConnID {
			view.CurrentPlayTarget = participant.Nickname
		}
	}
	return view
}

func (r *RoomRegistry) currentFingerprint(ctx context.Context, playlistID string) (string, error) {
	p, err := r.playlists.Get(ctx, playlistID)
	if err != nil {
		return "", err
	}
	var items []models.PlaylistItem
	if !p.Blocked() {
		items, err = r.store.All(ctx, playlistID)
		if err != nil {
			return "", err
		}
	}
	return playlist.Fingerprint(p, items), nil
}

func containsRoom(rooms []string, playlistID string) bool {
	for _, id := range rooms {
		if id == playlistID {
			return true
		}
	}
	return false
}

func removeRoom(rooms []string, playlistID string) []string {
	out := rooms[:0]
	for _, id := range rooms {
		if id != playlistID {
			out = append(out, id)
		}
	}
	return out
}
