package domain

import "time"

// Conversation is a locally cached conversation thread. The ID is assigned by
// the GAIA backend; there is at most one record per ID in the local store.
type Conversation struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	Starred           bool      `json:"starred"`
	IsSystemGenerated bool      `json:"is_system_generated"`
	SystemPurpose     string    `json:"system_purpose,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// EffectiveUpdatedAt falls back to CreatedAt when the conversation has never
// been updated. Staleness detection compares these values, not raw UpdatedAt.
func (c Conversation) EffectiveUpdatedAt() time.Time {
	if c.UpdatedAt.IsZero() {
		return c.CreatedAt
	}
	return c.UpdatedAt
}
