// Package auth gates the back-office endpoints: bearer tokens map to tenant
// memberships, and the membership role decides what the caller may do.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/comandocentral/edge-svc/internal/models"
)

// ErrUnknownToken means the bearer token matches no membership for the
// tenant.
var ErrUnknownToken = errors.New("unknown token")

// MembershipStore resolves a bearer token to a role within a tenant.
type MembershipStore interface {
	RoleForToken(ctx context.Context, token string, tenantID uuid.UUID) (string, error)
}

// GormStore is the database-backed MembershipStore.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) RoleForToken(ctx context.Context, token string, tenantID uuid.UUID) (string, error) {
	var membership models.TenantMembership
	err := s.db.WithContext(ctx).
		Where("api_token = ? AND tenant_id = ?", token, tenantID).
		First(&membership).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrUnknownToken
		}
		return "", fmt.Errorf("failed to look up membership: %w", err)
	}
	return membership.Role, nil
}

// Authorizer answers role questions for handlers.
type Authorizer struct {
	store MembershipStore
}

func NewAuthorizer(store MembershipStore) *Authorizer {
	return &Authorizer{store: store}
}

// CanReplay reports whether the token holds an owner or admin role for the
// tenant. An unknown token is a plain "no", not an error.
func (a *Authorizer) CanReplay(ctx context.Context, token string, tenantID uuid.UUID) (bool, error) {
	role, err := a.store.RoleForToken(ctx, token, tenantID)
	if err != nil {
		if errors.Is(err, ErrUnknownToken) {
			return false, nil
		}
		return false, err
	}
	return models.CanReplay(role), nil
}

// TokenFromHeader extracts the token from an Authorization header.
func TokenFromHeader(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
