package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Playlist is an ordered collection of media links owned by a single user.
// CommitID changes on every successful mutation and forms the first half of
// the concurrency fingerprint served to clients.
type Playlist struct {
	ID          string `gorm:"primaryKey;type:uuid" json:"id"`
	OwnerUserID string `gorm:"index;not null" json:"owner_user_id"`
	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`

	AllowDuplicate       bool `gorm:"default:false" json:"allow_duplicate"`
	PublicAccessible     bool `gorm:"default:false" json:"public_accessible"`
	PublicModifiable     bool `gorm:"default:false" json:"public_modifiable"`
	PublicItemAppendable bool `gorm:"default:false" json:"public_item_appendable"`
	PublicItemOrderable  bool `gorm:"default:false" json:"public_item_orderable"`
	PublicItemDeletable  bool `gorm:"default:false" json:"public_item_deletable"`

	BlockedAt     *time.Time `json:"blocked_at,omitempty"`
	BlockedReason string     `json:"blocked_reason,omitempty"`

	CommitID string `gorm:"not null" json:"-"`

	Items []PlaylistItem `gorm:"foreignKey:PlaylistID;constraint:OnDelete:CASCADE" json:"items,omitempty"`

	Owner *User `gorm:"foreignKey:OwnerUserID" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Blocked reports whether the playlist has been administratively blocked.
// Blocked playlists hide their items and description from every surface.
func (p *Playlist) Blocked() bool {
	return p.BlockedAt != nil
}

// RotateCommit assigns a fresh commit marker. Callers persist the playlist
// inside the same transaction as the mutation that invalidated it.
func (p *Playlist) RotateCommit() {
	p.CommitID = uuid.NewString()
}

// BeforeCreate generates the id and the initial commit marker.
func (p *Playlist) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CommitID == "" {
		p.RotateCommit()
	}
	return nil
}
