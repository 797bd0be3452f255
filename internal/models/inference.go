package models

import "time"

// Inference records a single inference run: the uploaded source image, the
// generated result image, and the optional detection metadata document, all
// referenced by object-store URL.
type Inference struct {
	ID                uint      `gorm:"primaryKey;autoIncrement"`
	UserID            uint      `gorm:"not null;index"`
	ModelID           *uint     `gorm:"index"`
	Name              string    `gorm:"type:text;not null"`
	BaseImageURL      string    `gorm:"type:text;not null"`
	GeneratedImageURL string    `gorm:"type:text"`
	MetadataURL       string    `gorm:"type:text"`
	CreatedOn         time.Time `gorm:"not null;index"`

	User  User   `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID"`
	Model *Model `gorm:"constraint:OnDelete:SET NULL;foreignKey:ModelID;references:ID"`
}

func (Inference) TableName() string { return "inferences" }
