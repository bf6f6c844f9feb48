package station

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/playcohq/playco/internal/auth"
	"github.com/playcohq/playco/internal/database/testutil"
	"github.com/playcohq/playco/internal/models"
	"github.com/playcohq/playco/internal/playlist"
	apperrors "github.com/playcohq/playco/pkg/errors"
)

type stationHarness struct {
	rdb      *redis.Client
	db       *gorm.DB
	tokens   *auth.JWTService
	sessions *SessionRegistry
	rooms    *RoomRegistry
	user     *models.User
}

type harnessResolver struct{}

func (harnessResolver) Resolve(_ context.Context, link string) (*playlist.ResolvedLink, error) {
	return &playlist.ResolvedLink{
		Link:         link,
		LinkType:     models.LinkTypeYouTube,
		LinkID:       link,
		OriginalLink: link,
	}, nil
}

func newStationHarness(t *testing.T, maxConns int) *stationHarness {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	user := &models.User{
		Username: "ada",
		Nickname: "ada",
		Email:    "ada@example.com",
		Password: "hash",
	}
	require.NoError(t, db.Create(user).Error)

	tokens, err := auth.NewJWTService(auth.JWTConfig{Secret: "test-secret", Issuer: "playco"})
	require.NoError(t, err)

	sessions, err := NewSessionRegistry(rdb, db, tokens, maxConns)
	require.NoError(t, err)

	svc, err := playlist.NewService(db, 0)
	require.NoError(t, err)
	store, err := playlist.NewStore(db, harnessResolver{})
	require.NoError(t, err)
	rooms, err := NewRoomRegistry(rdb, svc, store)
	require.NoError(t, err)

	return &stationHarness{
		rdb:      rdb,
		db:       db,
		tokens:   tokens,
		sessions: sessions,
		rooms:    rooms,
		user:     user,
	}
}

func (h *stationHarness) channelToken(t *testing.T, userID, connID string) string {
	t.Helper()
	token, err := h.tokens.GenerateChannelToken(auth.ChannelTokenInput{
		UserID:       userID,
		ConnectionID: connID,
	})
	require.NoError(t, err)
	return token
}

func (h *stationHarness) createSession(t *testing.T, connID string) *SessionRecord {
	t.Helper()
	session, err := h.sessions.Create(context.Background(), connID, h.channelToken(t, h.user.ID, connID))
	require.NoError(t, err)
	return session
}

func (h *stationHarness) createPlaylist(t *testing.T) *models.Playlist {
	t.Helper()
	p := &models.Playlist{OwnerUserID: h.user.ID, Name: "road trip"}
	require.NoError(t, h.db.Create(p).Error)
	return p
}

func TestCreateSessionAssignsNumberedNicknames(t *testing.T) {
	h := newStationHarness(t, 0)

	first := h.createSession(t, "conn-1")
	require.Equal(t, h.user.ID, first.UserID)
	require.Equal(t, "ada#1", first.Nickname)
	require.Empty(t, first.EnteredRooms)

	second := h.createSession(t, "conn-2")
	require.Equal(t, "ada#2", second.Nickname)
}

func TestCreateSessionRejectsForeignToken(t *testing.T) {
	h := newStationHarness(t, 0)

	// Token minted for conn-1 presented by conn-2.
	token := h.channelToken(t, h.user.ID, "conn-1")
	_, err := h.sessions.Create(context.Background(), "conn-2", token)
	require.Error(t, err)
	require.Equal(t, "UNAUTHORIZED", apperrors.FromError(err).Code)
}

func TestCreateSessionTwiceConflicts(t *testing.T) {
	h := newStationHarness(t, 0)
	h.createSession(t, "conn-1")

	_, err := h.sessions.Create(context.Background(), "conn-1", h.channelToken(t, h.user.ID, "conn-1"))
	require.Error(t, err)
	require.True(t, apperrors.IsConflict(err, apperrors.ReasonSessionExists))
}

func TestCreateSessionEnforcesConnectionCap(t *testing.T) {
	h := newStationHarness(t, 2)
	h.createSession(t, "conn-1")
	h.createSession(t, "conn-2")

	_, err := h.sessions.Create(context.Background(), "conn-3", h.channelToken(t, h.user.ID, "conn-3"))
	require.Error(t, err)
	require.Equal(t, "CAPACITY_EXCEEDED", apperrors.FromError(err).Code)
}

func TestCreateSessionUnknownUser(t *testing.T) {
	h := newStationHarness(t, 0)

	token := h.channelToken(t, "no-such-user", "conn-1")
	_, err := h.sessions.Create(context.Background(), "conn-1", token)
	require.Error(t, err)
	require.Equal(t, "NOT_FOUND", apperrors.FromError(err).Code)
}

func TestNicknameCounterNeverReusesNumbers(t *testing.T) {
	h := newStationHarness(t, 0)
	ctx := context.Background()

	h.createSession(t, "conn-1")
	h.createSession(t, "conn-2")
	require.NoError(t, h.sessions.Destroy(ctx, "conn-1", nil))

	// conn-2 still holds the user record, so the counter keeps counting up.
	third := h.createSession(t, "conn-3")
	require.Equal(t, "ada#3", third.Nickname)
}

func TestDestroySessionCascadesRoomExits(t *testing.T) {
	h := newStationHarness(t, 0)
	ctx := context.Background()
	p := h.createPlaylist(t)

	h.createSession(t, "conn-1")
	_, err := h.rooms.Enter(ctx, p.ID, "conn-1", 0)
	require.NoError(t, err)

	exit := func(ctx context.Context, playlistID, connID string) error {
		_, err := h.rooms.Exit(ctx, playlistID, connID, true)
		return err
	}
	require.NoError(t, h.sessions.Destroy(ctx, "conn-1", exit))

	_, err = h.sessions.Get(ctx, "conn-1")
	require.Error(t, err)
	_, err = h.rooms.Get(ctx, p.ID)
	require.Error(t, err)

	// User record is gone too, so a fresh connection starts the counter over.
	fresh := h.createSession(t, "conn-9")
	require.Equal(t, "ada#1", fresh.Nickname)
}

func TestDestroyMissingSessionIsNoop(t *testing.T) {
	h := newStationHarness(t, 0)
	require.NoError(t, h.sessions.Destroy(context.Background(), "ghost", nil))
}

func TestGetSessionNotFound(t *testing.T) {
	h := newStationHarness(t, 0)
	_, err := h.sessions.Get(context.Background(), "ghost")
	require.Error(t, err)
	require.Equal(t, "NOT_FOUND", apperrors.FromError(err).Code)
}

func TestDestroySurfacesUserRecordFailure(t *testing.T) {
	h := newStationHarness(t, 0)
	ctx := context.Background()
	h.createSession(t, "conn-1")

	// A user record this process cannot decode means the conn entry cannot
	// be released; Destroy must say so instead of pretending cleanup worked.
	require.NoError(t, h.rdb.Set(ctx, userKey(h.user.ID), "{not json", 0).Err())

	err := h.sessions.Destroy(ctx, "conn-1", nil)
	require.Error(t, err)
	require.Equal(t, "STORE_COMMIT_FAILED", apperrors.FromError(err).Code)

	// The session itself still went away.
	_, err = h.sessions.Get(ctx, "conn-1")
	require.Error(t, err)
}

func TestRejectsRecordsFromOtherSchemaVersions(t *testing.T) {
	h := newStationHarness(t, 0)
	ctx := context.Background()

	require.NoError(t, h.rdb.Set(ctx, sessionKey("conn-1"),
		fmt.Sprintf(`{"schema_version":%d,"user_id":"u","nickname":"n","entered_rooms":[]}`, SchemaVersion+1), 0).Err())

	_, err := h.sessions.Get(ctx, "conn-1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "schema version")
}

func TestRejectsRecordsWithUnknownFields(t *testing.T) {
	h := newStationHarness(t, 0)
	ctx := context.Background()

	// A field this schema does not know about means a newer process wrote
	// the record; rewriting it through this one would drop the field.
	require.NoError(t, h.rdb.Set(ctx, sessionKey("conn-1"),
		fmt.Sprintf(`{"schema_version":%d,"user_id":"u","nickname":"n","entered_rooms":[],"transfer_state":{}}`, SchemaVersion), 0).Err())

	_, err := h.sessions.Get(ctx, "conn-1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "transfer_state")
}
