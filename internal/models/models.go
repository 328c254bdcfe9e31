package models

import (
	"time"
)

// MetadataRecord is the catalog projection of one object-store key.
// The object store owns the bytes; this record exists for fast listing
// and audit attribution and is rebuilt by the reconcile sweep when the
// two diverge.
type MetadataRecord struct {
	FilePath  string    `json:"file_path"`
	FileName  string    `json:"file_name"`
	Size      int64     `json:"size"`
	IsFolder  bool      `json:"is_folder"`
	OwnerID   string    `json:"owner_id,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ActivityEntry is one append-only audit record. Entries are never
// updated or deleted by normal operation.
type ActivityEntry struct {
	ID        int64     `json:"id"`
	Action    string    `json:"action"`
	FilePath  string    `json:"file_path"`
	FileName  string    `json:"file_name"`
	Details   string    `json:"details,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Activity actions.
const (
	ActionUpload       = "upload"
	ActionFolderCreate = "folder_create"
	ActionCopy         = "copy"
	ActionDelete       = "delete"
	ActionFolderDelete = "folder_delete"
)

// Session is an opaque server-side token minted at login and consulted
// on every request until it expires or the user logs out.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// User is the identity resolved from a verified login token.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}
