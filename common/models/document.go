package models

import (
	"time"

	"github.com/google/uuid"
)

// Document is a groupware file with a monotonically increasing Version
type Document struct {
	ID        uuid.UUID      `db:"id" json:"id"`
	OwnerID   string         `db:"owner_id" json:"ownerId"`
	Title     string         `db:"title" json:"title"`
	Filename  string         `db:"filename" json:"filename"`
	Content   string         `db:"content" json:"content,omitempty"`
	MimeType  string         `db:"mime_type" json:"mimeType"`
	Size      int64          `db:"size" json:"size"`
	Version   int            `db:"version" json:"version"`
	Metadata  map[string]any `db:"metadata" json:"metadata,omitempty"`
	CreatedAt time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time      `db:"updated_at" json:"updatedAt"`
}

// Version change types
const (
	ChangeContentUpdated  = "content_updated"
	ChangeMetadataUpdated = "metadata_updated"
	ChangeRenamed         = "renamed"
	ChangeMoved           = "moved"
	ChangeRestored        = "restored"
)

// DocumentVersion is a snapshot. Exactly one per document is current.
type DocumentVersion struct {
	ID               uuid.UUID `db:"id" json:"id"`
	DocumentID       uuid.UUID `db:"document_id" json:"documentId"`
	VersionNumber    int       `db:"version_number" json:"versionNumber"`
	Filename         string    `db:"filename" json:"filename"`
	Title            string    `db:"title" json:"title"`
	Content          string    `db:"content" json:"content,omitempty"`
	MimeType         string    `db:"mime_type" json:"mimeType"`
	Size             int64     `db:"size" json:"size"`
	Checksum         string    `db:"checksum" json:"checksum"`
	ChangeType       string    `db:"change_type" json:"changeType"`
	ChangeSummary    string    `db:"change_summary" json:"changeSummary,omitempty"`
	IsCurrentVersion bool      `db:"is_current_version" json:"isCurrentVersion"`
	CreatedBy        string    `db:"created_by" json:"createdBy"`
	CreatedAt        time.Time `db:"created_at" json:"createdAt"`
}

// Annotation lives in a document's metadata.annotations array
type Annotation struct {
	ID        uuid.UUID      `json:"id"`
	Type      string         `json:"type"`
	Content   string         `json:"content"`
	UserID    string         `json:"userId"`
	Position  map[string]any `json:"position,omitempty"`
	Color     string         `json:"color,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}
