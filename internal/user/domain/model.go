package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const RoleDonor = "donor"

type User struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	UID         string       `gorm:"column:uid;not null;uniqueIndex" json:"uid"`
	Role        string       `gorm:"column:role;not null" json:"role"`
	Name        string       `gorm:"column:name" json:"name,omitempty"`
	Email       string       `gorm:"column:email" json:"email,omitempty"`
	Phone       string       `gorm:"column:phone" json:"phone,omitempty"`
	Address     string       `gorm:"column:address" json:"address,omitempty"`
	FCMToken    string       `gorm:"column:fcm_token" json:"-"`
	Registered  bool         `gorm:"column:registered;not null;default:false" json:"registered"`
	LastLoginAt *time.Time   `gorm:"column:last_login_at" json:"last_login_at,omitempty"`
	CreatedAt   time.Time    `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (User) TableName() string { return "users" }
