package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/agency-backoffice-api/internal/models"
	appErrors "github.com/noah-isme/agency-backoffice-api/pkg/errors"
)

func actorFor(role models.UserRole, tenant string) *models.JWTClaims {
	return &models.JWTClaims{UserID: "user-" + string(role), CompanyID: tenant, Role: role}
}

func TestAuthorizeRequiresSession(t *testing.T) {
	guard := NewAccessGuard(nil)

	assert.ErrorIs(t, guard.Authorize(nil, "tenant-a", CapApplicationsRead), appErrors.ErrUnauthorized)
	assert.ErrorIs(t, guard.Authorize(&models.JWTClaims{CompanyID: "tenant-a"}, "tenant-a", CapApplicationsRead), appErrors.ErrUnauthorized)
	assert.ErrorIs(t, guard.Authorize(&models.JWTClaims{UserID: "u"}, "tenant-a", CapApplicationsRead), appErrors.ErrUnauthorized)
}

func TestAuthorizeCrossTenantLooksLikeMiss(t *testing.T) {
	guard := NewAccessGuard(nil)

	err := guard.Authorize(actorFor(models.RoleSuperAdmin, "tenant-a"), "tenant-b", CapApplicationsRead)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
	assert.Equal(t, appErrors.ErrNotFound.Message, appErr.Message)
	assert.Equal(t, appErrors.ErrNotFound.Status, appErr.Status)

	// Lacking the capability does not reveal anything extra across tenants.
	err = guard.Authorize(actorFor(models.RoleStaff, "tenant-a"), "tenant-b", CapFinanceRead)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestAuthorizeDefaultCapabilities(t *testing.T) {
	guard := NewAccessGuard(nil)

	cases := []struct {
		role    models.UserRole
		action  Capability
		allowed bool
	}{
		{models.RoleSuperAdmin, CapSettlementOverride, true},
		{models.RoleSuperAdmin, CapFinanceWrite, true},
		{models.RoleAdmin, CapApplicationsTransition, true},
		{models.RoleAdmin, CapReportsGenerate, true},
		{models.RoleAdmin, CapFinanceRead, false},
		{models.RoleAdmin, CapSettlementOverride, false},
		{models.RoleStaff, CapDocumentsWrite, true},
		{models.RoleStaff, CapApplicationsWrite, false},
		{models.RoleStaff, CapSettingsRead, false},
		{models.UserRole("GUEST"), CapApplicationsRead, false},
	}
	for _, tc := range cases {
		err := guard.Authorize(actorFor(tc.role, "tenant-a"), "tenant-a", tc.action)
		if tc.allowed {
			assert.NoError(t, err, "%s %s", tc.role, tc.action)
		} else {
			assert.ErrorIs(t, err, appErrors.ErrForbidden, "%s %s", tc.role, tc.action)
		}
	}
}

func TestAccessGuardOverrides(t *testing.T) {
	guard := NewAccessGuard(map[string][]string{
		"admin": {"finance:read", "unknown:thing"},
	})

	assert.Equal(t, []Capability{CapFinanceRead}, guard.Capabilities(models.RoleAdmin))
	assert.NoError(t, guard.Require(actorFor(models.RoleAdmin, "t"), CapFinanceRead))
	assert.ErrorIs(t, guard.Require(actorFor(models.RoleAdmin, "t"), CapApplicationsRead), appErrors.ErrForbidden)

	guard.SetCapabilities(nil)
	assert.NoError(t, guard.Require(actorFor(models.RoleAdmin, "t"), CapApplicationsRead))
}
