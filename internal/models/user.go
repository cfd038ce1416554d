package models

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Roles carried in access tokens
const (
	RoleCustomer        = "customer"
	RolePartner         = "partner"
	RoleBusinessPartner = "business_partner"
	RoleAdmin           = "admin"
	RoleSuperAdmin      = "super_admin"
)

// NullString wraps sql.NullString to provide proper JSON marshaling
type NullString struct {
	sql.NullString
}

// MarshalJSON implements json.Marshaler
func (ns NullString) MarshalJSON() ([]byte, error) {
	if ns.Valid {
		return json.Marshal(ns.String)
	}
	return json.Marshal(nil)
}

// UnmarshalJSON implements json.Unmarshaler
func (ns *NullString) UnmarshalJSON(data []byte) error {
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s != nil {
		ns.Valid = true
		ns.String = *s
	} else {
		ns.Valid = false
	}
	return nil
}

// User is an account known to the booking engine. Identity is managed upstream.
type User struct {
	ID        uuid.UUID      `json:"id" db:"id"`
	Phone     string         `json:"phone" db:"phone"`
	Email     NullString     `json:"email,omitempty" db:"email"`
	FirstName NullString     `json:"first_name,omitempty" db:"first_name"`
	LastName  NullString     `json:"last_name,omitempty" db:"last_name"`
	Roles     pq.StringArray `json:"roles" db:"roles"`
	Status    string         `json:"status" db:"status"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" db:"updated_at"`
}

// Actor is the authenticated caller of an operation
type Actor struct {
	UserID uuid.UUID
	Roles  []string
}

// HasRole reports whether the actor carries role
func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the actor has platform-wide authority
func (a Actor) IsAdmin() bool {
	return a.HasRole(RoleAdmin) || a.HasRole(RoleSuperAdmin)
}

// SystemActor is used for transitions driven by background jobs
func SystemActor() Actor {
	return Actor{UserID: uuid.Nil, Roles: []string{RoleSuperAdmin}}
}

// IsSystem reports whether the actor is the background job actor
func (a Actor) IsSystem() bool {
	return a.UserID == uuid.Nil
}
