package playlist

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/playcohq/playco/internal/models"
	apperrors "github.com/playcohq/playco/pkg/errors"
)

// DefaultMaxPlaylistsPerUser caps how many playlists one account may own.
const DefaultMaxPlaylistsPerUser = 5

// Service manages playlist lifecycle: creation, visibility, metadata updates
// and deletion. Item-level ordering lives on Store.
type Service struct {
	db         *gorm.DB
	maxPerUser int
}

// NewService builds a playlist Service.
func NewService(db *gorm.DB, maxPerUser int) (*Service, error) {
	if db == nil {
		return nil, errors.New("playlist: database handle is required")
	}
	if maxPerUser <= 0 {
		maxPerUser = DefaultMaxPlaylistsPerUser
	}
	return &Service{db: db, maxPerUser: maxPerUser}, nil
}

// CreatePlaylistInput holds the caller-supplied playlist attributes.
type CreatePlaylistInput struct {
	Name                 string
	Description          string
	AllowDuplicate       bool
	PublicAccessible     bool
	PublicModifiable     bool
	PublicItemAppendable bool
	PublicItemOrderable  bool
	PublicItemDeletable  bool
}

// Create persists a new playlist owned by ownerID, enforcing the per-user cap.
func (s *Service) Create(ctx context.Context, ownerID string, input CreatePlaylistInput) (*models.Playlist, error) {
	var owned int64
	err := s.db.WithContext(ctx).
		Model(&models.Playlist{}).
		Where("owner_user_id = ?", ownerID).
		Count(&owned).Error
	if err != nil {
		return nil, err
	}
	if owned >= int64(s.maxPerUser) {
		return nil, apperrors.ErrCapacityExceeded.WithMessage("Playlist limit for this user reached")
	}

	p := &models.Playlist{
		OwnerUserID:          ownerID,
		Name:                 input.Name,
		Description:          input.Description,
		AllowDuplicate:       input.AllowDuplicate,
		PublicAccessible:     input.PublicAccessible,
		PublicModifiable:     input.PublicModifiable,
		PublicItemAppendable: input.PublicItemAppendable,
		PublicItemOrderable:  input.PublicItemOrderable,
		PublicItemDeletable:  input.PublicItemDeletable,
	}
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

// ListByOwner returns the playlists owned by the given user.
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]models.Playlist, error) {
	var playlists []models.Playlist
	err := s.db.WithContext(ctx).
		Where("owner_user_id = ?", ownerID).
		Order("created_at").
		Find(&playlists).Error
	if err != nil {
		return nil, err
	}
	return playlists, nil
}

// Get returns a playlist by id regardless of visibility.
func (s *Service) Get(ctx context.Context, id string) (*models.Playlist, error) {
	var p models.Playlist
	err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound.WithMessage("Playlist not found")
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetForViewer returns a playlist visible to viewerID. Private playlists are
// reported as not found to non-owners so their existence cannot be probed.
func (s *Service) GetForViewer(ctx context.Context, id, viewerID string) (*models.Playlist, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.PublicAccessible && p.OwnerUserID != viewerID {
		return nil, apperrors.ErrNotFound.WithMessage("Playlist not found")
	}
	return p, nil
}

// UpdatePlaylistInput carries a partial metadata update. Nil fields are left
// unchanged.
type UpdatePlaylistInput struct {
	Name                 *string
	Description          *string
	AllowDuplicate       *bool
	PublicAccessible     *bool
	PublicModifiable     *bool
	PublicItemAppendable *bool
	PublicItemOrderable  *bool
	PublicItemDeletable  *bool
}

// UpdateMeta applies the partial update and rotates the commit marker.
func (s *Service) UpdateMeta(ctx context.Context, p *models.Playlist, input UpdatePlaylistInput) error {
	if input.Name != nil {
		p.Name = *input.Name
	}
	if input.Description != nil {
		p.Description = *input.Description
	}
	if input.AllowDuplicate != nil {
		p.AllowDuplicate = *input.AllowDuplicate
	}
	if input.PublicAccessible != nil {
		p.PublicAccessible = *input.PublicAccessible
	}
	if input.PublicModifiable != nil {
		p.PublicModifiable = *input.PublicModifiable
	}
	if input.PublicItemAppendable != nil {
		p.PublicItemAppendable = *input.PublicItemAppendable
	}
	if input.PublicItemOrderable != nil {
		p.PublicItemOrderable = *input.PublicItemOrderable
	}
	if input.PublicItemDeletable != nil {
		p.PublicItemDeletable = *input.PublicItemDeletable
	}
	p.RotateCommit()

	return s.db.WithContext(ctx).Save(p).Error
}

// Delete removes the playlist and, via the schema cascade, its items.
// Callers must first confirm that no live room is attached.
func (s *Service) Delete(ctx context.Context, p *models.Playlist) error {
	return s.db.WithContext(ctx).
		Select("Items").
		Delete(&models.Playlist{ID: p.ID}).Error
}
