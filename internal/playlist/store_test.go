package playlist

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/playcohq/playco/internal/database/testutil"
	"github.com/playcohq/playco/internal/models"
	apperrors "github.com/playcohq/playco/pkg/errors"
)

type stubResolver struct{}

func (stubResolver) Resolve(_ context.Context, link string) (*ResolvedLink, error) {
	return &ResolvedLink{
		Link:         link,
		LinkType:     models.LinkTypeYouTube,
		LinkID:       link,
		OriginalLink: link,
		Title:        "title for " + link,
	}, nil
}

func newTestStore(t *testing.T) (*Store, *gorm.DB) {
	t.Helper()
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store, err := NewStore(db, stubResolver{})
	require.NoError(t, err)
	return store, db
}

func createOwner(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	user := &models.User{
		Username: "ada",
		Nickname: "ada",
		Email:    "ada@example.com",
		Password: "hash",
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func createPlaylist(t *testing.T, db *gorm.DB, ownerID string, allowDuplicate bool) *models.Playlist {
	t.Helper()
	p := &models.Playlist{
		OwnerUserID:    ownerID,
		Name:           "road trip",
		AllowDuplicate: allowDuplicate,
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

func links(t *testing.T, store *Store, playlistID string) []string {
	t.Helper()
	items, err := store.All(context.Background(), playlistID)
	require.NoError(t, err)
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.Link)
	}
	return out
}

func TestInsertIntoEmptyPlaylistUsesIndexZero(t *testing.T) {
	store, db := newTestStore(t)
	owner := createOwner(t, db)
	p := createPlaylist(t, db, owner.ID, false)

	item, err := store.Insert(context.Background(), p, -1, "link-a", owner.ID)
	require.NoError(t, err)
	require.Equal(t, 0, item.Index)
}

func TestAppendAndPrependExtendIndexRange(t *testing.T) {
	store, db := newTestStore(t)
	owner := createOwner(t, db)
	p := createPlaylist(t, db, owner.ID, false)
	ctx := context.Background()

	for _, link := range []string{"link-a", "link-b", "link-c"} {
		_, err := store.Insert(ctx, p, -1, link, owner.ID)
		require.NoError(t, err)
	}

	last, err := store.At(ctx, p.ID, -1)
	require.NoError(t, err)
	require.Equal(t, 2, last.Index)

	prepended, err := store.Insert(ctx, p, 0, "link-d", owner.ID)
	require.NoError(t, err)
	require.Equal(t, -1, prepended.Index)

	require.Equal(t, []string{"link-d", "link-a", "link-b", "link-c"}, links(t, store, p.ID))
}

func TestInteriorInsertAbsorbsExistingGap(t *testing.T) {
	store, db := newTestStore(t)
	owner := createOwner(t, db)
	p := createPlaylist(t, db, owner.ID, false)
	ctx := context.Background()

	// Seed a sparse sequence directly: indexes 0 and 5.
	for _, seed := range []struct {
		link  string
		index int
	}{{"link-a", 0}, {"link-b", 5}} {
		require.NoError(t, db.Create(&models.PlaylistItem{
			PlaylistID:   p.ID,
			Index:        seed.index,
			Link:         seed.link,
			LinkType:     models.LinkTypeYouTube,
			LinkID:       seed.link,
			OriginalLink: seed.link,
			AddedByID:    owner.ID,
		}).Error)
	}

	inserted, err := store.Insert(ctx, p, 1, "link-c", owner.ID)
	require.NoError(t, err)
	require.Equal(t, 4, inserted.Index)

	// Neighbours were not touched.
	require.Equal(t, []string{"link-a", "link-c", "link-b"}, links(t, store, p.ID))
	first, err := store.At(ctx, p.ID, 0)
	require.NoError(t, err)
	require.Equal(t, 0, first.Index)
}

func TestInteriorInsertShiftsSmallerSide(t *testing.T) {
	store, db := newTestStore(t)
	owner := createOwner(t, db)
	p := createPlaylist(t, db, owner.ID, false)
	ctx := context.Background()

	for _, link := range []string{"link-a", "link-b", "link-c", "link-d"} {
		_, err := store.Insert(ctx, p, -1, link, owner.ID)
		require.NoError(t, err)
	}
	// Contiguous indexes 0..3; inserting at position 1 shifts only the
	// one-item prefix down instead of the three-item suffix up.
	inserted, err := store.Insert(ctx, p, 1, "link-e", owner.ID)
	require.NoError(t, err)

	require.Equal(t, []string{"link-a", "link-e", "link-b", "link-c", "link-d"}, links(t, store, p.ID))

	items, err := store.All(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, -1, items[0].Index)
	require.Equal(t, 0, inserted.Index)
	require.Equal(t, 1, items[2].Index)

	// Indexes remain strictly increasing.
	for i := 1; i < len(items); i++ {
		require.Greater(t, items[i].Index, items[i-1].Index)
	}
}

func TestNegativeInteriorInsertShiftsSmallerSide(t *testing.T) {
	store, db := newTestStore(t)
	owner := createOwner(t, db)
	p := createPlaylist(t, db, owner.ID, false)
	ctx := context.Background()

	for _, link := range []string{"link-a", "link-b", "link-c", "link-d", "link-e"} {
		_, err := store.Insert(ctx, p, -1, link, owner.ID)
		require.NoError(t, err)
	}

	// Position -2 of five items is display position 3: a three-item prefix
	// against a two-item suffix, so the suffix slides up.
	inserted, err := store.Insert(ctx, p, -2, "link-f", owner.ID)
	require.NoError(t, err)

	require.Equal(t, []string{"link-a", "link-b", "link-c", "link-f", "link-d", "link-e"}, links(t, store, p.ID))

	items, err := store.All(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, 2, items[2].Index)
	require.Equal(t, 3, inserted.Index)
	require.Equal(t, 4, items[4].Index)
	require.Equal(t, 5, items[5].Index)
}

func TestInsertRejectsDuplicateLink(t *testing.T) {
	store, db := newTestStore(t)
	owner := createOwner(t, db)
	p := createPlaylist(t, db, owner.ID, false)
	ctx := context.Background()

	_, err := store.Insert(ctx, p, -1, "link-a", owner.ID)
	require.NoError(t, err)

	_, err = store.Insert(ctx, p, -1, "link-a", owner.ID)
	require.Error(t, err)
	require.True(t, apperrors.IsConflict(err, apperrors.ReasonAlreadyIncluded))
}

func TestInsertAllowsDuplicateWhenEnabled(t *testing.T) {
	store, db := newTestStore(t)
	owner := createOwner(t, db)
	p := createPlaylist(t, db, owner.ID, true)
	ctx := context.Background()

	_, err := store.Insert(ctx, p, -1, "link-a", owner.ID)
	require.NoError(t, err)
	_, err = store.Insert(ctx, p, -1, "link-a", owner.ID)
	require.NoError(t, err)

	count, err := store.Count(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestInsertRotatesCommitMarker(t *testing.T) {
	store, db := newTestStore(t)
	owner := createOwner(t, db)
	p := createPlaylist(t, db, owner.ID, false)
	before := p.CommitID

	_, err := store.Insert(context.Background(), p, -1, "link-a", owner.ID)
	require.NoError(t, err)
	require.NotEqual(t, before, p.CommitID)

	var persisted models.Playlist
	require.NoError(t, db.First(&persisted, "id = ?", p.ID).Error)
	require.Equal(t, p.CommitID, persisted.CommitID)
}

func TestDeleteReturnsRemovedItem(t *testing.T) {
	store, db := newTestStore(t)
	owner := createOwner(t, db)
	p := createPlaylist(t, db, owner.ID, false)
	ctx := context.Background()

	for _, link := range []string{"link-a", "link-b", "link-c"} {
		_, err := store.Insert(ctx, p, -1, link, owner.ID)
		require.NoError(t, err)
	}

	deleted, err := store.Delete(ctx, p, 1)
	require.NoError(t, err)
	require.Equal(t, "link-b", deleted.Link)

	require.Equal(t, []string{"link-a", "link-c"}, links(t, store, p.ID))

	_, err = store.Delete(ctx, p, 5)
	require.Error(t, err)
}

func TestMoveRelocatesExistingItem(t *testing.T) {
	store, db := newTestStore(t)
	owner := createOwner(t, db)
	p := createPlaylist(t, db, owner.ID, false)
	ctx := context.Background()

	for _, link := range []string{"link-a", "link-b", "link-c"} {
		_, err := store.Insert(ctx, p, -1, link, owner.ID)
		require.NoError(t, err)
	}

	moved, err := store.Move(ctx, p, 0, "link-c")
	require.NoError(t, err)
	require.Equal(t, "link-c", moved.Link)
	require.Equal(t, []string{"link-c", "link-a", "link-b"}, links(t, store, p.ID))
}

func TestMoveToOwnPositionConflicts(t *testing.T) {
	store, db := newTestStore(t)
	owner := createOwner(t, db)
	p := createPlaylist(t, db, owner.ID, false)
	ctx := context.Background()

	for _, link := range []string{"link-a", "link-b"} {
		_, err := store.Insert(ctx, p, -1, link, owner.ID)
		require.NoError(t, err)
	}

	_, err := store.Move(ctx, p, 1, "link-b")
	require.Error(t, err)
	require.True(t, apperrors.IsConflict(err, apperrors.ReasonAlreadyOnPosition))
}

func TestMoveUnknownLinkNotFound(t *testing.T) {
	store, db := newTestStore(t)
	owner := createOwner(t, db)
	p := createPlaylist(t, db, owner.ID, false)
	ctx := context.Background()

	_, err := store.Insert(ctx, p, -1, "link-a", owner.ID)
	require.NoError(t, err)

	_, err = store.Move(ctx, p, 0, "link-z")
	require.Error(t, err)
	require.Equal(t, "NOT_FOUND", apperrors.FromError(err).Code)
}

func TestSequenceAccessors(t *testing.T) {
	store, db := newTestStore(t)
	owner := createOwner(t, db)
	p := createPlaylist(t, db, owner.ID, false)
	ctx := context.Background()

	for _, link := range []string{"link-a", "link-b", "link-c", "link-d"} {
		_, err := store.Insert(ctx, p, -1, link, owner.ID)
		require.NoError(t, err)
	}

	first, err := store.At(ctx, p.ID, 0)
	require.NoError(t, err)
	require.Equal(t, "link-a", first.Link)

	last, err := store.At(ctx, p.ID, -1)
	require.NoError(t, err)
	require.Equal(t, "link-d", last.Link)

	_, err = store.At(ctx, p.ID, 9)
	require.Error(t, err)

	firstTwo, err := store.FirstN(ctx, p.ID, 2)
	require.NoError(t, err)
	require.Len(t, firstTwo, 2)
	require.Equal(t, "link-a", firstTwo[0].Link)

	lastTwo, err := store.LastN(ctx, p.ID, 2)
	require.NoError(t, err)
	require.Len(t, lastTwo, 2)
	require.Equal(t, "link-d", lastTwo[1].Link)

	middle, err := store.Slice(ctx, p.ID, 1, 2)
	require.NoError(t, err)
	require.Equal(t, "link-b", middle[0].Link)
	require.Equal(t, "link-c", middle[1].Link)

	byLink, err := store.ByLink(ctx, p.ID, "link-c")
	require.NoError(t, err)
	require.Len(t, byLink, 1)
}
