package gateway

import (
	"encoding/json"

	apperrors "github.com/playcohq/playco/pkg/errors"
)

// Client-initiated events.
const (
	EventIdentify      = "identify"
	EventRoomEnter     = "room.enter"
	EventRoomLeave     = "room.leave"
	EventRoomSetStatus = "room.setStatus"
)

// Server-initiated events.
const (
	EventHello             = "hello"
	EventResponse          = "response"
	EventParticipantJoined = "participant.joined"
	EventParticipantLeft   = "participant.left"
	EventRoomModified      = "room.modified"
	EventRoomClosed        = "room.closed"
	EventAnnouncement      = "announcement"
)

// ClientEvent is the envelope every client message arrives in. RequestID is
// an opaque correlation id echoed back on the matching response.
type ClientEvent struct {
	Event     string          `json:"event"`
	RequestID string          `json:"request_id"`
	Payload   json.RawMessage `json:"payload"`
}

// EventError mirrors the HTTP error envelope for the event channel.
type EventError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Reason  apperrors.Reason  `json:"reason,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// ServerEvent is the envelope every server message leaves in.
type ServerEvent struct {
	Event     string      `json:"event"`
	RequestID string      `json:"request_id,omitempty"`
	Data      any         `json:"data,omitempty"`
	Error     *EventError `json:"error,omitempty"`
}

type identifyPayload struct {
	Token string `json:"token"`
}

type roomEnterPayload struct {
	Token            string `json:"token"`
	PlaylistID       string `json:"playlist_id"`
	CurrentlyPlaying *int   `json:"currently_playing"`
}

type roomLeavePayload struct {
	Token      string `json:"token"`
	PlaylistID string `json:"playlist_id"`
}

type roomSetStatusPayload struct {
	Token            string `json:"token"`
	PlaylistID       string `json:"playlist_id"`
	CurrentlyPlaying *int   `json:"currently_playing"`
}

// incompleteError builds the payload-incomplete response for a missing field.
// Payload validation always happens before any side effect.
func incompleteError(field string) *EventError {
	return &EventError{
		Code:    "PAYLOAD_INCOMPLETE",
		Message: "Required payload field is missing",
		Details: map[string]string{"field": field},
	}
}

func decodePayload(raw json.RawMessage, dst any) *EventError {
	if len(raw) == 0 {
		return &EventError{Code: "PAYLOAD_INCOMPLETE", Message: "Event payload is missing"}
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &EventError{Code: "PAYLOAD_MALFORMED", Message: "Event payload could not be decoded"}
	}
	return nil
}

// eventError converts a taxonomy error for the wire.
func eventError(err error) *EventError {
	appErr := apperrors.FromError(err)
	return &EventError{
		Code:    appErr.Code,
		Message: appErr.Message,
		Reason:  appErr.Reason,
	}
}
