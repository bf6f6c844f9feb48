package station

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/playcohq/playco/internal/auth"
	"github.com/playcohq/playco/internal/models"
	apperrors "github.com/playcohq/playco/pkg/errors"
	"github.com/playcohq/playco/pkg/logger"
)

// DefaultMaxConnectionsPerUser caps concurrent connections per account.
const DefaultMaxConnectionsPerUser = 5

// RoomExitFunc force-removes a connection from a room during session teardown.
type RoomExitFunc func(ctx context.Context, playlistID, connID string) error

// SessionRegistry manages connection sessions in the shared store. All state
// lives in Redis as whole-record read-modify-write, so the registry is safe
// for concurrent use without in-process locks.
type SessionRegistry struct {
	rdb      *redis.Client
	db       *gorm.DB
	tokens   *auth.JWTService
	maxConns int
	log      *zap.Logger
}

// NewSessionRegistry builds a SessionRegistry.
func NewSessionRegistry(rdb *redis.Client, db *gorm.DB, tokens *auth.JWTService, maxConns int) (*SessionRegistry, error) {
	if rdb == nil {
		return nil, errors.New("station: redis client is required")
	}
	if db == nil {
		return nil, errors.New("station: database handle is required")
	}
	if tokens == nil {
		return nil, errors.New("station: token service is required")
	}
	if maxConns <= 0 {
		maxConns = DefaultMaxConnectionsPerUser
	}
	return &SessionRegistry{
		rdb:      rdb,
		db:       db,
		tokens:   tokens,
		maxConns: maxConns,
		log:      logger.WithModule("station.sessions"),
	}, nil
}

// Create verifies the channel token and registers a session for connID.
// The nickname is the user's display name suffixed with a per-user counter,
// so two tabs of the same account stay distinguishable.
func (r *SessionRegistry) Create(ctx context.Context, connID, token string) (*SessionRecord, error) {
	claims, err := r.tokens.ValidateChannelToken(token, connID)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.ErrTokenExpired.WithInternal(err)
		}
		return nil, apperrors.ErrUnauthorized.WithInternal(err)
	}

	var existing SessionRecord
	found, err := readRecord(ctx, r.rdb, sessionKey(connID), &existing)
	if err != nil {
		return nil, err
	}
	if found {
		return nil, apperrors.NewConflict(apperrors.ReasonSessionExists, "Session already exists for this connection")
	}

	nickname, number, err := r.addConnToUserRecord(ctx, claims.UserID, connID)
	if err != nil {
		return nil, err
	}

	session := &SessionRecord{
		SchemaVersion: SchemaVersion,
		UserID:        claims.UserID,
		Nickname:      fmt.Sprintf("%s#%d", nickname, number),
		EnteredRooms:  []string{},
	}
	if err := writeRecord(ctx, r.rdb, sessionKey(connID), session); err != nil {
		// The user record already names this connection; a half-created
		// session is worse than a failed one.
		r.log.Error("session write failed after user record update",
			zap.String("conn_id", connID), zap.Error(err))
		return nil, apperrors.ErrStoreCommit.WithInternal(err)
	}

	return session, nil
}

// Get returns the session for connID.
func (r *SessionRegistry) Get(ctx context.Context, connID string) (*SessionRecord, error) {
	var session SessionRecord
	found, err := readRecord(ctx, r.rdb, sessionKey(connID), &session)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrSessionNotFound
	}
	return &session, nil
}

// Destroy removes the session and its user-record entry. When exitRoom is
// non-nil every entered room is force-exited first; per-room failures are
// logged and cleanup continues, since a dead connection must never keep a
// room entry alive. A user-record failure is reported after the remaining
// cleanup ran, so callers learn the user still holds a stale capacity slot.
func (r *SessionRegistry) Destroy(ctx context.Context, connID string, exitRoom RoomExitFunc) error {
	session, err := r.Get(ctx, connID)
	if err != nil {
		if apperrors.FromError(err).Code == "NOT_FOUND" {
			return nil
		}
		return err
	}

	userRecordErr := r.removeConnFromUserRecord(ctx, session.UserID, connID)

	if exitRoom != nil {
		for _, playlistID := range session.EnteredRooms {
			if err := exitRoom(ctx, playlistID, connID); err != nil {
				r.log.Warn("room exit failed during session teardown",
					zap.String("conn_id", connID),
					zap.String("playlist_id", playlistID),
					zap.Error(err))
			}
		}
	}

	if err := r.rdb.Del(ctx, sessionKey(connID)).Err(); err != nil {
		r.log.Error("session delete failed", zap.String("conn_id", connID), zap.Error(err))
		return apperrors.ErrStoreCommit.WithInternal(err)
	}
	if userRecordErr != nil {
		// The session is gone but the user record still names this
		// connection, eating one capacity slot until the record expires.
		return apperrors.ErrStoreCommit.WithInternal(userRecordErr)
	}
	return nil
}

func (r *SessionRegistry) addConnToUserRecord(ctx context.Context, userID, connID string) (string, int, error) {
	var rec UserRecord
	found, err := readRecord(ctx, r.rdb, userKey(userID), &rec)
	if err != nil {
		return "", 0, err
	}
	if !found {
		var user models.User
		err := r.db.WithContext(ctx).First(&user, "id = ?", userID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", 0, ErrUserNotFound
		}
		if err != nil {
			return "", 0, err
		}
		rec = UserRecord{
			SchemaVersion: SchemaVersion,
			Nickname:      user.Nickname,
			Conns:         []ConnRef{},
		}
	}

	for _, conn := range rec.Conns {
		if conn.ConnID == connID {
			return rec.Nickname, conn.Number, nil
		}
	}

	if len(rec.Conns) >= r.maxConns {
		return "", 0, apperrors.ErrCapacityExceeded
	}

	rec.NicknameCounter++
	rec.Conns = append(rec.Conns, ConnRef{ConnID: connID, Number: rec.NicknameCounter})

	if err := writeRecord(ctx, r.rdb, userKey(userID), &rec); err != nil {
		r.log.Error("user record write failed", zap.String("user_id", userID), zap.Error(err))
		return "", 0, apperrors.ErrStoreCommit.WithInternal(err)
	}
	return rec.Nickname, rec.NicknameCounter, nil
}

func (r *SessionRegistry) removeConnFromUserRecord(ctx context.Context, userID, connID string) error {
	var rec UserRecord
	found, err := readRecord(ctx, r.rdb, userKey(userID), &rec)
	if err != nil {
		r.log.Error("user record read failed", zap.String("user_id", userID), zap.Error(err))
		return err
	}
	if !found {
		return nil
	}

	conns := rec.Conns[:0]
	for _, conn := range rec.Conns {
		if conn.ConnID != connID {
			conns = append(conns, conn)
		}
	}
	rec.Conns = conns

	if len(rec.Conns) == 0 {
		if err := r.rdb.Del(ctx, userKey(userID)).Err(); err != nil {
			r.log.Error("user record delete failed", zap.String("user_id", userID), zap.Error(err))
			return err
		}
		return nil
	}
	if err := writeRecord(ctx, r.rdb, userKey(userID), &rec); err != nil {
		r.log.Error("user record write failed", zap.String("user_id", userID), zap.Error(err))
		return err
	}
	return nil
}
