package models

import "time"

// Model is a neural-network model known to the platform. Rows are kept in
// step with the external inference service by the startup model sync.
type Model struct {
	ID          uint       `gorm:"primaryKey;autoIncrement"`
	Name        string     `gorm:"type:text;uniqueIndex;not null"`
	Version     string     `gorm:"type:text;not null"`
	Description string     `gorm:"type:text"`
	ModelType   string     `gorm:"type:text;not null"`
	CreatedOn   time.Time  `gorm:"not null"`
	UpdatedOn   *time.Time `gorm:"default:null"`
}

func (Model) TableName() string { return "models" }

// ModelResponse is the JSON shape handlers return for a model.
type ModelResponse struct {
	ID          uint    `json:"id"`
	Name        string  `json:"name"`
	Version     string  `json:"version"`
	Description string  `json:"description"`
	ModelType   string  `json:"modelType"`
	CreatedOn   string  `json:"createdOn"`
	UpdatedOn   *string `json:"updatedOn"`
}

func (m Model) ToResponse() ModelResponse {
	resp := ModelResponse{
		ID:          m.ID,
		Name:        m.Name,
		Version:     m.Version,
		Description: m.Description,
		ModelType:   m.ModelType,
		CreatedOn:   m.CreatedOn.UTC().Format(time.RFC3339),
	}
	if m.UpdatedOn != nil {
		updated := m.UpdatedOn.UTC().Format(time.RFC3339)
		resp.UpdatedOn = &updated
	}
	return resp
}
