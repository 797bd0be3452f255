package models

// User represents an account holder on the platform.
type User struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	Name         string `gorm:"type:text;not null"`
	LastName     string `gorm:"type:text;not null"`
	Email        string `gorm:"type:text;uniqueIndex;not null"`
	PasswordHash string `gorm:"type:text;not null"`
	RoleID       uint   `gorm:"not null;index"`

	Role       Role          `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;foreignKey:RoleID;references:ID"`
	Sessions   []UserSession `gorm:"constraint:OnDelete:CASCADE"`
	Inferences []Inference   `gorm:"constraint:OnDelete:CASCADE"`
	Scenes     []Scene       `gorm:"constraint:OnDelete:CASCADE"`
	AuditLogs  []AuditLog    `gorm:"foreignKey:UserID"`
}

func (User) TableName() string { return "users" }

// PublicUser is the JSON shape exposed to clients. The password hash never
// leaves the server.
type PublicUser struct {
	ID       uint   `json:"id"`
	Name     string `json:"name"`
	LastName string `json:"lastName"`
	Email    string `json:"email"`
	Role     string `json:"role,omitempty"`
}

func (u User) ToPublic() PublicUser {
	return PublicUser{
		ID:       u.ID,
		Name:     u.Name,
		LastName: u.LastName,
		Email:    u.Email,
		Role:     string(u.Role.Name),
	}
}
