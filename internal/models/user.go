package models

import (
	"time"
)

// User is a principal. The pipeline reads only the ID and the optional
// personal instructions.
type User struct {
	ID                   string    `json:"id"`
	PersonalInstructions string    `json:"personal_instructions,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// APIToken maps a bearer token to a user
type APIToken struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// APITokenDTO represents the API view of a token
type APITokenDTO struct {
	Token     string `json:"token"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at"`
}

// ToDTO converts APIToken to DTO
func (t *APIToken) ToDTO() APITokenDTO {
	return APITokenDTO{
		Token:     t.Token,
		Name:      t.Name,
		CreatedAt: t.CreatedAt.Format(time.RFC3339),
	}
}

// TokenPrefix is the fixed prefix of every issued API token.
const TokenPrefix = "easyform_"
