package models

import "time"

// Scene is a user-contributed training sample: an image plus its label map,
// both uploaded straight to the datasets bucket via presigned URLs.
type Scene struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	UserID     uint      `gorm:"not null;index"`
	Name       string    `gorm:"type:text;not null"`
	ImageURL   string    `gorm:"type:text;not null"`
	MapURL     string    `gorm:"type:text;not null"`
	UploadedOn time.Time `gorm:"not null"`

	User User `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID"`
}

func (Scene) TableName() string { return "scenes" }
