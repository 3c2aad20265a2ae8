package models

import "time"

// MediaDescriptor describes one attached file: metadata only, no payload.
type MediaDescriptor struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

// Record is one user submission. Synced flips to true only when every
// queue item referencing it has synced (see DB.ReconcileRecord).
type Record struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Media       []MediaDescriptor `json:"media"`
	Synced      bool              `json:"synced"`
	CreatedAt   time.Time         `json:"created_at"`
}
