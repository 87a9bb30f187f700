package authorization

import "time"

// Role codes used across the route guards. Every account holds USER; SUPPORT
// unlocks the helpdesk tooling and ADMIN the management surface.
const (
	RoleAdmin   = "ADMIN"
	RoleSupport = "SUPPORT"
	RoleUser    = "USER"
)

// User represents an application account.
type User struct {
	ID           uint64  `gorm:"primaryKey"`
	Username     string  `gorm:"uniqueIndex;size:64;not null"`
	PasswordHash string  `gorm:"size:255;not null"`
	DisplayName  string  `gorm:"size:128;not null;default:''"`
	AvatarURL    *string `gorm:"size:255"`
	Bio          *string `gorm:"type:text"`
	Status       string  `gorm:"size:32;default:'active'"`
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Role is an assignable permission group.
type Role struct {
	ID        uint64 `gorm:"primaryKey"`
	Name      string `gorm:"uniqueIndex;size:64;not null"`
	Code      string `gorm:"uniqueIndex;size:64;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserRole associates users with roles.
type UserRole struct {
	ID        uint64 `gorm:"primaryKey"`
	UserID    uint64 `gorm:"uniqueIndex:idx_user_role;not null"`
	RoleID    uint64 `gorm:"uniqueIndex:idx_user_role;not null"`
	CreatedAt time.Time
}
