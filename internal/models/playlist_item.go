package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// LinkType identifies the provider a playlist item was resolved against.
type LinkType string

const (
	LinkTypeYouTube LinkType = "youtube"
)

// PlaylistItem is a single entry in a playlist. Ordering is carried by the
// sparse integer Index; items are always read sorted by it. Index values may
// be negative and are not required to be contiguous.
type PlaylistItem struct {
	ID         string `gorm:"primaryKey;type:uuid" json:"id"`
	PlaylistID string `gorm:"index:idx_playlist_order,priority:1;not null" json:"playlist_id"`
	Index      int    `gorm:"column:item_index;index:idx_playlist_order,priority:2;not null" json:"index"`

	Link         string   `gorm:"not null" json:"link"`
	LinkType     LinkType `gorm:"not null" json:"link_type"`
	LinkID       string   `gorm:"not null" json:"link_id"`
	OriginalLink string   `gorm:"not null" json:"original_link"`

	Title        string `json:"title"`
	ThumbnailURL string `json:"thumbnail_url"`

	RawData datatypes.JSON `json:"raw_data,omitempty"`

	AddedByID string `gorm:"index" json:"added_by_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (i *PlaylistItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	return nil
}
