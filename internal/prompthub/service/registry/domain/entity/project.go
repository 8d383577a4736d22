package entity

import "time"

// Project owns prompts and scenes. The core only needs its identity; the
// wider project metadata lives here because the store persists it anyway.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description,omitempty"`
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// User is an authenticated caller identity, keyed by API key.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	APIKey    string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}
