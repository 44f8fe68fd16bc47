package api

import (
	"time"

	"github.com/google/uuid"
)

type userModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Email        string    `gorm:"type:text;uniqueIndex;not null"`
	PasswordHash string    `gorm:"type:text;not null"`
	CreatedAt    time.Time `gorm:"not null;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"not null;autoUpdateTime"`
	DeletedAt    *time.Time
}

func (userModel) TableName() string { return "users" }

func (m userModel) toAPI() User {
	return User{ID: m.ID, Email: m.Email, CreatedAt: m.CreatedAt}
}

type authSessionModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID       uuid.UUID `gorm:"type:uuid;not null;index"`
	RefreshToken string    `gorm:"type:text;uniqueIndex;not null"`
	ExpiresAt    time.Time `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null;autoCreateTime"`
	RevokedAt    *time.Time
}

func (authSessionModel) TableName() string { return "auth_sessions" }

func (m authSessionModel) active(now time.Time) bool {
	return m.RevokedAt == nil && now.Before(m.ExpiresAt)
}
