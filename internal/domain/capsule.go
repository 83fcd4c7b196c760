package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Capsule is a user-authored record whose content stays sealed until UnlockAt.
//
// Lock state is never stored here: it is always derived through IsLocked at
// read time. Notified is owned by the unlock sweep and only moves false -> true.
type Capsule struct {
	// ─────────────────────────────
	// Identity
	// ─────────────────────────────

	ID      uuid.UUID `json:"id"`
	OwnerID uuid.UUID `json:"user_id"`

	// ─────────────────────────────
	// Content (hidden while locked)
	// ─────────────────────────────

	Title       string   `json:"title"`
	Description string   `json:"description"`
	Notes       string   `json:"notes"`
	Tags        []string `json:"tags"`

	// ─────────────────────────────
	// Unlock & sharing
	// ─────────────────────────────

	UnlockAt time.Time `json:"unlock_at"`
	IsShared bool      `json:"is_shared"`

	// Notified is set by the sweep once an unlock notification was handled.
	Notified   bool       `json:"notified"`
	NotifiedAt *time.Time `json:"notified_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// ─────────────────────────────
	// Owned rows (loaded on demand)
	// ─────────────────────────────

	Media         []MediaItem    `json:"media,omitempty"`
	Collaborators []Collaborator `json:"collaborators,omitempty"`
}

// Collaborator is a non-owner recipient of a shared capsule.
type Collaborator struct {
	ID        uuid.UUID `json:"id"`
	CapsuleID uuid.UUID `json:"capsule_id"`
	Email     string    `json:"email"`
	CanEdit   bool      `json:"can_edit"`
	CreatedAt time.Time `json:"created_at"`
}

// Profile is the locally known part of an authenticated user.
type Profile struct {
	UserID      uuid.UUID `json:"user_id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasCollaborator reports whether email is listed as a collaborator.
// Addresses compare case-insensitively.
func (c *Capsule) HasCollaborator(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" {
		return false
	}
	for _, collab := range c.Collaborators {
		if strings.EqualFold(collab.Email, email) {
			return true
		}
	}
	return false
}

// CollaboratorEmails returns collaborator addresses in stored order.
func (c *Capsule) CollaboratorEmails() []string {
	out := make([]string, 0, len(c.Collaborators))
	for _, collab := range c.Collaborators {
		out = append(out, collab.Email)
	}
	return out
}
