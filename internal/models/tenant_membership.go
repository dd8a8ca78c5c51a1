package models

import (
	"time"

	"github.com/google/uuid"
)

// Membership roles, in descending order of privilege.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// TenantMembership links a platform user to a tenant with a role. The API
// token is the bearer credential for back-office endpoints such as replay.
type TenantMembership struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	TenantID  uuid.UUID `gorm:"type:uuid;not null;index" json:"tenant_id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null" json:"user_id"`
	Role      string    `gorm:"not null;default:'member'" json:"role"`
	APIToken  string    `gorm:"uniqueIndex" json:"-"`
	CreatedAt time.Time `gorm:"default:now()" json:"created_at"`
}

func (TenantMembership) TableName() string {
	return "tenant_memberships"
}

// CanReplay reports whether the role may invoke the replay recovery tool.
func CanReplay(role string) bool {
	return role == RoleOwner || role == RoleAdmin
}
