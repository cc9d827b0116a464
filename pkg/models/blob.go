package models

import "time"

// BlobType is a coarse classification of an attachment payload.
type BlobType string

const (
	BlobCode  BlobType = "code"
	BlobDoc   BlobType = "doc"
	BlobImage BlobType = "image"
	BlobData  BlobType = "data"
)

// BlobTTL is the retention window for uploaded blobs.
const BlobTTL = 24 * time.Hour

// Blob is the metadata for a stored attachment. The payload lives in a
// separate file so metadata queries never load content.
type Blob struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      BlobType  `json:"type"`
	MimeType  string    `json:"mimeType,omitempty"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}
