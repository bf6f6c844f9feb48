package station

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/playcohq/playco/pkg/errors"
)

// SchemaVersion tags every record written to the shared store. Reads reject
// records from other versions instead of guessing at their layout.
const SchemaVersion = 1

// Sentinel lookups. Callers that must react differently to a missing session
// versus a missing room match these with errors.Is.
var (
	ErrSessionNotFound = apperrors.ErrNotFound.WithMessage("Session does not exist")
	ErrRoomNotFound    = apperrors.ErrNotFound.WithMessage("Room does not exist")
	ErrUserNotFound    = apperrors.ErrNotFound.WithMessage("User not found")
	ErrNotInRoom       = apperrors.ErrNotFound.WithMessage("Session is not in this room")
)

const (
	sessionKeyPrefix = "playco:sessions:"
	userKeyPrefix    = "playco:users:"
	roomKeyPrefix    = "playco:rooms:"
)

func sessionKey(connID string) string  { return sessionKeyPrefix + connID }
func userKey(userID string) string     { return userKeyPrefix + userID }
func roomKey(playlistID string) string { return roomKeyPrefix + playlistID }

// Status is the per-participant playback state shared with the room.
type Status struct {
	CurrentlyPlaying int `json:"currently_playing"`
}

// Participant is one connection's presence inside a room.
type Participant struct {
	Status   Status         `json:"status"`
	Nickname string         `json:"nickname"`
	Data     map[string]any `json:"data"`
}

// SessionRecord tracks one live connection: who it belongs to, the nickname
// it presents, and the rooms it has entered.
type SessionRecord struct {
	SchemaVersion int      `json:"schema_version"`
	UserID        string   `json:"user_id"`
	Nickname      string   `json:"nickname"`
	EnteredRooms  []string `json:"entered_rooms"`
}

func (r *SessionRecord) validate() error {
	if r.SchemaVersion != SchemaVersion {
		return fmt.Errorf("station: session record schema version %d not supported", r.SchemaVersion)
	}
	if r.UserID == "" || r.Nickname == "" {
		return errors.New("station: session record missing required fields")
	}
	return nil
}

// ConnRef pairs a connection id with the nickname number it was assigned.
type ConnRef struct {
	ConnID string `json:"conn_id"`
	Number int    `json:"number"`
}

// UserRecord indexes the live connections of one user and allocates nickname
// numbers. The counter only grows, so numbers are never reused while the
// record lives.
type UserRecord struct {
	SchemaVersion   int       `json:"schema_version"`
	Nickname        string    `json:"nickname"`
	NicknameCounter int       `json:"nickname_counter"`
	Conns           []ConnRef `json:"conns"`
}

func (r *UserRecord) validate() error {
	if r.SchemaVersion != SchemaVersion {
		return fmt.Errorf("station: user record schema version %d not supported", r.SchemaVersion)
	}
	if r.Nickname == "" {
		return errors.New("station: user record missing required fields")
	}
	return nil
}

// RoomRecord is the live view of one playlist's room: participants keyed by
// connection id, the playlist fingerprint the room last saw, and the optional
// playback-driver connection.
type RoomRecord struct {
	SchemaVersion int                    `json:"schema_version"`
	PlaylistID    string                 `json:"playlist_id"`
	PlaylistHash  string                 `json:"playlist_hash"`
	DriverConnID  string                 `json:"driver_conn_id,omitempty"`
	Participants  map[string]Participant `json:"participants"`
}

func (r *RoomRecord) validate() error {
	if r.SchemaVersion != SchemaVersion {
		return fmt.Errorf("station: room record schema version %d not supported", r.SchemaVersion)
	}
	if r.PlaylistID == "" || r.Participants == nil {
		return errors.New("station: room record missing required fields")
	}
	return nil
}

type validatable interface {
	validate() error
}

// readRecord loads and validates a JSON record. The bool reports presence.
func readRecord(ctx context.Context, rdb *redis.Client, key string, dst validatable) (bool, error) {
	raw, err := rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := decodeStrict(raw, dst); err != nil {
		return false, fmt.Errorf("station: decode record %s: %w", key, err)
	}
	if err := dst.validate(); err != nil {
		return false, err
	}
	return true, nil
}

func decodeRoom(raw string, dst *RoomRecord) error {
	if err := decodeStrict([]byte(raw), dst); err != nil {
		return err
	}
	return dst.validate()
}

// decodeStrict rejects fields the current schema does not know about. A record
// with extra fields was written by a newer process and must not be rewritten
// through this one, which would silently drop them.
func decodeStrict(raw []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeRecord(ctx context.Context, rdb *redis.Client, key string, rec validatable) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("station: encode record %s: %w", key, err)
	}
	return rdb.Set(ctx, key, raw, 0).Err()
}
