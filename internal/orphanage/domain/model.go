package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Orphanage struct {
	ID          snowflake.ID   `gorm:"primaryKey" json:"id"`
	Name        string         `gorm:"column:name;not null" json:"name"`
	Slug        string         `gorm:"column:slug;not null;uniqueIndex" json:"slug"`
	Description string         `gorm:"column:description" json:"description,omitempty"`
	Address     string         `gorm:"column:address" json:"address,omitempty"`
	City        string         `gorm:"column:city" json:"city,omitempty"`
	State       string         `gorm:"column:state" json:"state,omitempty"`
	Phone       string         `gorm:"column:phone" json:"phone,omitempty"`
	Email       string         `gorm:"column:email" json:"email,omitempty"`
	ImageURL    string         `gorm:"column:image_url" json:"image_url,omitempty"`
	UPIID       string         `gorm:"column:upi_id" json:"upi_id,omitempty"`
	Verified    bool           `gorm:"column:verified;not null;default:false" json:"verified"`
	VerifiedAt  *time.Time     `gorm:"column:verified_at" json:"verified_at,omitempty"`
	CreatedAt   time.Time      `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"column:updated_at;not null" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (Orphanage) TableName() string { return "orphanages" }
