package models

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog captures notable authentication and administrative events.
// Entries are append-only; the user reference is nulled if the actor is
// deleted so the trail survives account removal.
type AuditLog struct {
	ID         uint           `gorm:"primaryKey;autoIncrement"`
	UserID     *uint          `gorm:"index"`
	Action     string         `gorm:"type:text;not null"`
	EntityType string         `gorm:"type:text;not null"`
	EntityID   *uint          `gorm:"default:null"`
	Metadata   datatypes.JSON `gorm:"type:jsonb;default:'{}'::jsonb"`
	Timestamp  time.Time      `gorm:"not null;index"`

	User *User `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL;foreignKey:UserID;references:ID"`
}

func (AuditLog) TableName() string { return "audit_logs" }
