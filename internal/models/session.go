package models

import "time"

// UserSession records one login/logout cycle. A null LogoutAt marks the
// session as still active. Writers close sessions with
// GREATEST(login_at, now) so LogoutAt never precedes LoginAt even under
// clock skew.
type UserSession struct {
	ID        uint       `gorm:"primaryKey;autoIncrement"`
	UserID    uint       `gorm:"not null;index"`
	LoginAt   time.Time  `gorm:"not null"`
	LogoutAt  *time.Time `gorm:"default:null"`
	IPAddress string     `gorm:"type:text"`
	UserAgent string     `gorm:"type:text"`

	User User `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID"`
}

func (UserSession) TableName() string { return "user_sessions" }

// Active reports whether the session has not been closed yet.
func (s UserSession) Active() bool { return s.LogoutAt == nil }
