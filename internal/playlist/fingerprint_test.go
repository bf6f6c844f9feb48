package playlist

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/playcohq/playco/internal/models"
	apperrors "github.com/playcohq/playco/pkg/errors"
)

func testPlaylist() *models.Playlist {
	return &models.Playlist{
		ID:       "pl-1",
		Name:     "road trip",
		CommitID: "commit-1",
	}
}

func testItems() []models.PlaylistItem {
	return []models.PlaylistItem{
		{ID: "item-1", Index: 0, Link: "link-a", Title: "A"},
		{ID: "item-2", Index: 1, Link: "link-b", Title: "B"},
	}
}

func TestFingerprintStartsWithCommitMarker(t *testing.T) {
	fp := Fingerprint(testPlaylist(), testItems())
	require.Regexp(t, `^commit-1:[0-9a-f]{32}$`, fp)
}

func TestFingerprintChangesWithVisibleState(t *testing.T) {
	p := testPlaylist()
	items := testItems()
	base := Fingerprint(p, items)

	renamed := testPlaylist()
	renamed.Name = "beach day"
	require.NotEqual(t, base, Fingerprint(renamed, items))

	require.NotEqual(t, base, Fingerprint(p, items[:1]))

	rotated := testPlaylist()
	rotated.CommitID = "commit-2"
	require.NotEqual(t, base, Fingerprint(rotated, items))
}

func TestFingerprintIsStable(t *testing.T) {
	require.Equal(t, Fingerprint(testPlaylist(), testItems()), Fingerprint(testPlaylist(), testItems()))
}

func TestBlockedPlaylistHidesItemsFromFingerprint(t *testing.T) {
	blockedAt := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	blocked := testPlaylist()
	blocked.BlockedAt = &blockedAt
	blocked.BlockedReason = "copyright"
	blocked.Description = "secret"

	// Item changes must not affect the fingerprint of a blocked playlist.
	require.Equal(t, Fingerprint(blocked, testItems()), Fingerprint(blocked, nil))

	// Blocking itself changes the visible state.
	require.NotEqual(t, Fingerprint(testPlaylist(), testItems()), Fingerprint(blocked, testItems()))
}

func TestVerifyFingerprint(t *testing.T) {
	p := testPlaylist()
	items := testItems()

	require.NoError(t, VerifyFingerprint(p, items, Fingerprint(p, items)))

	err := VerifyFingerprint(p, items, "commit-0:ffffffffffffffffffffffffffffffff")
	require.Error(t, err)
	appErr := apperrors.FromError(err)
	require.Equal(t, "PREDICTION_FAILED", appErr.Code)
	require.Equal(t, apperrors.ReasonPlaylistOutdated, appErr.Reason)

	require.Error(t, VerifyFingerprint(p, items, ""))
}
