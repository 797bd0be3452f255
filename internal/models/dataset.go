package models

import "time"

// Dataset tracks a training dataset backed by an object in the datasets
// bucket. Active is a soft-delete marker toggled by the startup sync when
// the backing object disappears or reappears; dataset rows are never hard
// deleted by the sync.
type Dataset struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"`
	Name        string    `gorm:"type:text;uniqueIndex;not null"`
	Description string    `gorm:"type:text"`
	DatasetType string    `gorm:"type:text;not null"`
	S3Path      string    `gorm:"type:text"`
	CreatedBy   uint      `gorm:"not null"`
	CreatedOn   time.Time `gorm:"not null"`
	Active      bool      `gorm:"not null;default:true"`

	Creator User `gorm:"constraint:OnDelete:CASCADE;foreignKey:CreatedBy;references:ID"`
}

func (Dataset) TableName() string { return "datasets" }

// DatasetResponse is the JSON shape handlers return for a dataset.
type DatasetResponse struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	DatasetType string `json:"datasetType"`
	S3Path      string `json:"s3Path"`
	CreatedBy   uint   `json:"createdBy"`
	CreatedOn   string `json:"createdOn"`
	Active      bool   `json:"active"`
}

func (d Dataset) ToResponse() DatasetResponse {
	return DatasetResponse{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		DatasetType: d.DatasetType,
		S3Path:      d.S3Path,
		CreatedBy:   d.CreatedBy,
		CreatedOn:   d.CreatedOn.UTC().Format(time.RFC3339),
		Active:      d.Active,
	}
}
