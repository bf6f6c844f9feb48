package playlist

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/playcohq/playco/internal/models"
	apperrors "github.com/playcohq/playco/pkg/errors"
)

// ErrIndexOutOfRange is returned by positional accessors when the requested
// position does not exist in the sequence.
var ErrIndexOutOfRange = apperrors.ErrNotFound.WithMessage("Playlist item not found")

// Count returns the number of items in the playlist.
func (s *Store) Count(ctx context.Context, playlistID string) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.PlaylistItem{}).
		Where("playlist_id = ?", playlistID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// At returns the item at the given position in display order. Negative
// positions count from the end, so At(-1) is the last item.
func (s *Store) At(ctx context.Context, playlistID string, pos int) (*models.PlaylistItem, error) {
	n, err := s.Count(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	if pos < 0 {
		pos += n
	}
	if pos < 0 || pos >= n {
		return nil, ErrIndexOutOfRange
	}

	var item models.PlaylistItem
	err = s.db.WithContext(ctx).
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

// Slice returns up to n items starting at display position start.
func (s *Store) Slice(ctx context.Context, playlistID string, start, n int) ([]models.PlaylistItem, error) {
	if start < 0 || n <= 0 {
		return nil, ErrIndexOutOfRange
	}

	var items []models.PlaylistItem
	err := s.db.WithContext(ctx).
		Where("playlist_id = ?", playlistID).
		Order("item_index").
		Offset(start).
		Limit(n).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// FirstN returns the first n items in display order.
func (s *Store) FirstN(ctx context.Context, playlistID string, n int) ([]models.PlaylistItem, error) {
	return s.Slice(ctx, playlistID, 0, n)
}

// LastN returns the last n items in display order.
func (s *Store) LastN(ctx context.Context, playlistID string, n int) ([]models.PlaylistItem, error) {
	count, err := s.Count(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	start := count - n
	if start < 0 {
		start = 0
		n = count
	}
	if n == 0 {
		return nil, nil
	}
	return s.Slice(ctx, playlistID, start, n)
}

// All returns every item in display order.
func (s *Store) All(ctx context.Context, playlistID string) ([]models.PlaylistItem, error) {
	var items []models.PlaylistItem
	err := s.db.WithContext(ctx).
		Where("playlist_id = ?", playlistID).
		Order("item_index").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// ByLink returns the items whose canonical or originally submitted link
// matches the supplied one.
func (s *Store) ByLink(ctx context.Context, playlistID, link string) ([]models.PlaylistItem, error) {
	var items []models.PlaylistItem
	err := s.db.WithContext(ctx).
		Where("playlist_id = ?", playlistID).
		Where("link = ? OR original_link = ?", link, link).
		Order("item_index").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
