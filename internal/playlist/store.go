package playlist

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/playcohq/playco/internal/models"
	apperrors "github.com/playcohq/playco/pkg/errors"
)

// Store provides ordered access and mutation for playlist items. Items carry
// sparse integer indexes; every mutation runs in a single transaction and
// rotates the playlist commit marker so fingerprints held by clients expire.
type Store struct {
	db       *gorm.DB
	resolver LinkResolver
}

// NewStore builds a Store over the given database handle.
func NewStore(db *gorm.DB, resolver LinkResolver) (*Store, error) {
	if db == nil {
		return nil, errors.New("playlist: database handle is required")
	}
	if resolver == nil {
		return nil, errors.New("playlist: link resolver is required")
	}
	return &Store{db: db, resolver: resolver}, nil
}

// Insert resolves link and places the new item at display position pos.
// pos == -1 appends; pos == 0 prepends; out-of-range positions append.
func (s *Store) Insert(ctx context.Context, p *models.Playlist, pos int, link, addedByID string) (*models.PlaylistItem, error) {
	// Metadata lookup performs HTTP; keep it outside the transaction.
	resolved, err := s.resolver.Resolve(ctx, link)
	if err != nil {
		return nil, err
	}

	var item *models.PlaylistItem
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err = insertResolved(tx, p, pos, resolved, addedByID)
		if err != nil {
			return err
		}
		return rotateCommit(tx, p)
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// Delete removes the item at display position pos and returns it so callers
// can shift room cursors that pointed at or beyond it.
func (s *Store) Delete(ctx context.Context, p *models.Playlist, pos int) (*models.PlaylistItem, error) {
	var deleted *models.PlaylistItem
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := itemAt(tx, p.ID, pos)
		if err != nil {
			return err
		}
		if err := tx.Delete(&models.PlaylistItem{}, "id = ?", item.ID).Error; err != nil {
			return err
		}
		deleted = item
		return rotateCommit(tx, p)
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// Move relocates the existing item identified by link to display position pos.
// The item keeps its resolved metadata; only its order changes.
func (s *Store) Move(ctx context.Context, p *models.Playlist, pos int, link string) (*models.PlaylistItem, error) {
	var moved *models.PlaylistItem
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		occupant, err := itemAt(tx, p.ID, pos)
		if err != nil {
			return err
		}
		if occupant.Link == link || occupant.OriginalLink == link {
			return apperrors.NewConflict(apperrors.ReasonAlreadyOnPosition, "Item already on the requested position")
		}

		var existing models.PlaylistItem
		err = tx.
			Where("playlist_id = ?", p.ID).
			Where("link = ? OR original_link = ?", link, link).
			First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrNotFound.WithMessage("Playlist item not found")
		}
		if err != nil {
			return err
		}

		if err := tx.Delete(&models.PlaylistItem{}, "id = ?", existing.ID).Error; err != nil {
			return err
		}

		resolved := &ResolvedLink{
			Link:         existing.Link,
			LinkType:     existing.LinkType,
			LinkID:       existing.LinkID,
			OriginalLink: existing.OriginalLink,
			Title:        existing.Title,
			ThumbnailURL: existing.ThumbnailURL,
			RawData:      existing.RawData,
		}
		moved, err = insertResolved(tx, p, pos, resolved, existing.AddedByID)
		if err != nil {
			return err
		}
		return rotateCommit(tx, p)
	})
	if err != nil {
		return nil, err
	}
	return moved, nil
}

// insertResolved places already-resolved metadata into the sequence. Interior
// inserts absorb an existing index gap when one is available; otherwise the
// smaller of the two sides is shifted by one to open a slot.
func insertResolved(tx *gorm.DB, p *models.Playlist, pos int, resolved *ResolvedLink, addedByID string) (*models.PlaylistItem, error) {
	if !p.AllowDuplicate {
		var count int64
		err := tx.Model(&models.PlaylistItem{}).
			Where("playlist_id = ?", p.ID).
			Where("link = ? OR original_link = ? OR (link_type = ? AND link_id = ?)",
				resolved.Link, resolved.OriginalLink, resolved.LinkType, resolved.LinkID).
			Count(&count).Error
		if err != nil {
			return nil, err
		}
		if count > 0 {
			return nil, apperrors.NewConflict(apperrors.ReasonAlreadyIncluded, "Link already included in this playlist")
		}
	}

	var total int64
	if err := tx.Model(&models.PlaylistItem{}).Where("playlist_id = ?", p.ID).Count(&total).Error; err != nil {
		return nil, err
	}
	n := int(total)

	index, err := chooseIndex(tx, p.ID, pos, n)
	if err != nil {
		return nil, err
	}

	item := &models.PlaylistItem{
		PlaylistID:   p.ID,
		Index:        index,
		Link:         resolved.Link,
		LinkType:     resolved.LinkType,
		LinkID:       resolved.LinkID,
		OriginalLink: resolved.OriginalLink,
		Title:        resolved.Title,
		ThumbnailURL: resolved.ThumbnailURL,
		RawData:      resolved.RawData,
		AddedByID:    addedByID,
	}
	if item.AddedByID == "" {
		item.AddedByID = p.OwnerUserID
	}

	if err := tx.Create(item).Error; err != nil {
		return nil, err
	}
	return item, nil
}

func chooseIndex(tx *gorm.DB, playlistID string, pos, n int) (int, error) {
	switch {
	case n == 0:
		return 0, nil
	case pos == -1 || pos >= n:
		last, err := itemAtCount(tx, playlistID, n-1, n)
		if err != nil {
			return 0, err
		}
		return last.Index + 1, nil
	}

	// Negative positions below -1 count from the tail. Normalize to the
	// display position now so the smaller-side choice below sees the real
	// prefix and suffix lengths.
	if pos < 0 {
		pos += n
		if pos < 0 {
			return 0, ErrIndexOutOfRange
		}
	}
	if pos == 0 {
		first, err := itemAtCount(tx, playlistID, 0, n)
		if err != nil {
			return 0, err
		}
		return first.Index - 1, nil
	}

	prev, err := itemAtCount(tx, playlistID, pos-1, n)
	if err != nil {
		return 0, err
	}
	next, err := itemAtCount(tx, playlistID, pos, n)
	if err != nil {
		return 0, err
	}

	if next.Index-prev.Index > 1 {
		// An unused index exists between the neighbours; no shifting needed.
		return next.Index - 1, nil
	}

	if pos <= n-pos {
		// Prefix is the smaller side: slide it down and take the freed slot.
		err = tx.Model(&models.PlaylistItem{}).
			Where("playlist_id = ? AND item_index <= ?", playlistID, prev.Index).
			UpdateColumn("item_index", gorm.Expr("item_index - 1")).Error
		if err != nil {
			return 0, err
		}
		return prev.Index, nil
	}

	err = tx.Model(&models.PlaylistItem{}).
		Where("playlist_id = ? AND item_index >= ?", playlistID, next.Index).
		UpdateColumn("item_index", gorm.Expr("item_index + 1")).Error
	if err != nil {
		return 0, err
	}
	return next.Index, nil
}

func itemAt(tx *gorm.DB, playlistID string, pos int) (*models.PlaylistItem, error) {
	var total int64
	if err := tx.Model(&models.PlaylistItem{}).Where("playlist_id = ?", playlistID).Count(&total).Error; err != nil {
		return nil, err
	}
	return itemAtCount(tx, playlistID, pos, int(total))
}

func itemAtCount(tx *gorm.DB, playlistID string, pos, n int) (*models.PlaylistItem, error) {
	if pos < 0 {
		pos += n
	}
	if pos < 0 || pos >= n {
		return nil, ErrIndexOutOfRange
	}

	var item models.PlaylistItem
	err := tx.
		Where("playlist_id = ?", playlistID).
		Order("item_index").
		Offset(pos).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrIndexOutOfRange
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func rotateCommit(tx *gorm.DB, p *models.Playlist) error {
	p.RotateCommit()
	return tx.Model(&models.Playlist{}).
		Where("id = ?", p.ID).
		UpdateColumn("commit_id", p.CommitID).Error
}
