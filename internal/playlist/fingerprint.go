package playlist

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/playcohq/playco/internal/models"
	apperrors "github.com/playcohq/playco/pkg/errors"
)

// visibleState is the client-visible playlist snapshot that the fingerprint
// digests. Blocked playlists hide their description and items, so the digest
// covers only what a client could actually have seen.
type visibleState struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	AllowDuplicate       bool `json:"allow_duplicate"`
	PublicAccessible     bool `json:"public_accessible"`
	PublicModifiable     bool `json:"public_modifiable"`
	PublicItemAppendable bool `json:"public_item_appendable"`
	PublicItemOrderable  bool `json:"public_item_orderable"`
	PublicItemDeletable  bool `json:"public_item_deletable"`

	BlockedAt     *time.Time `json:"blocked_at,omitempty"`
	BlockedReason string     `json:"blocked_reason,omitempty"`

	Items     []visibleItem `json:"items,omitempty"`
	ItemCount int           `json:"item_count"`
}

type visibleItem struct {
	ID    string `json:"id"`
	Index int    `json:"index"`
	Link  string `json:"link"`
	Title string `json:"title"`
}

// Fingerprint derives the optimistic-concurrency tag for a playlist snapshot:
// the commit marker joined with an md5 digest of the visible state. Clients
// echo it back via If-Match; any committed mutation rotates the marker and
// invalidates every previously issued fingerprint.
func Fingerprint(p *models.Playlist, items []models.PlaylistItem) string {
	state := visibleState{
		ID:                   p.ID,
		Name:                 p.Name,
		AllowDuplicate:       p.AllowDuplicate,
		PublicAccessible:     p.PublicAccessible,
		PublicModifiable:     p.PublicModifiable,
		PublicItemAppendable: p.PublicItemAppendable,
		PublicItemOrderable:  p.PublicItemOrderable,
		PublicItemDeletable:  p.PublicItemDeletable,
		BlockedAt:            p.BlockedAt,
		BlockedReason:        p.BlockedReason,
	}

	if !p.Blocked() {
		state.Description = p.Description
		state.Items = make([]visibleItem, 0, len(items))
		for _, item := range items {
			state.Items = append(state.Items, visibleItem{
				ID:    item.ID,
				Index: item.Index,
				Link:  item.Link,
				Title: item.Title,
			})
		}
		state.ItemCount = len(items)
	}

	encoded, err := json.Marshal(state)
	if err != nil {
		// Marshalling a value of plain fields cannot fail; guard anyway.
		encoded = []byte(p.ID)
	}

	digest := md5.Sum(encoded)
	return p.CommitID + ":" + hex.EncodeToString(digest[:])
}

// VerifyFingerprint compares a client-presented fingerprint against the
// current snapshot. There is no locking: the caller simply loses if someone
// else committed first.
func VerifyFingerprint(p *models.Playlist, items []models.PlaylistItem, presented string) error {
	if presented == "" || presented != Fingerprint(p, items) {
		return apperrors.NewPredictionFailed(apperrors.ReasonPlaylistOutdated,
			"Playlist data that the client holds is outdated, re-sync and retry")
	}
	return nil
}
