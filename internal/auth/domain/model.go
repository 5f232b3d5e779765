// Package domain contains core types for administrator authentication.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	RoleSuperAdmin = "super_admin"
	RoleAdmin      = "admin"
)

// Admin is an operator account; donors authenticate through identity tokens instead.
type Admin struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	Email        string       `gorm:"column:email;not null;uniqueIndex" json:"email"`
	Name         string       `gorm:"column:name" json:"name"`
	PasswordHash string       `gorm:"column:password_hash;type:text;not null" json:"-"`
	Role         string       `gorm:"column:role;not null" json:"role"`
	LastLoginAt  *time.Time   `gorm:"column:last_login_at" json:"last_login_at,omitempty"`
	CreatedAt    time.Time    `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"column:updated_at;not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Admin) TableName() string { return "admins" }

// Session represents a persisted admin login session.
type Session struct {
	ID               snowflake.ID `gorm:"primaryKey"`
	AdminID          snowflake.ID `gorm:"column:admin_id;not null;index"`
	SessionTokenHash string       `gorm:"column:session_token_hash;type:text;not null;uniqueIndex"`
	UserAgent        string       `gorm:"column:user_agent;type:text"`
	IPAddress        string       `gorm:"column:ip_address;type:text"`
	ExpiresAt        time.Time    `gorm:"column:expires_at;not null;index"`
	RevokedAt        *time.Time   `gorm:"column:revoked_at"`
	CreatedAt        time.Time    `gorm:"column:created_at;not null"`
	LastSeenAt       time.Time    `gorm:"column:last_seen_at;not null"`
}

// TableName sets the database table name.
func (Session) TableName() string { return "admin_sessions" }
