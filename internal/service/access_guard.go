package service

import (
	"sort"
	"strings"
	"sync"

	"github.com/noah-isme/agency-backoffice-api/internal/models"
	appErrors "github.com/noah-isme/agency-backoffice-api/pkg/errors"
)

// Capability names an action an actor may perform.
type Capability string

const (
	CapApplicationsRead       Capability = "applications:read"
	CapApplicationsWrite      Capability = "applications:write"
	CapApplicationsTransition Capability = "applications:transition"
	CapDocumentsRead          Capability = "documents:read"
	CapDocumentsWrite         Capability = "documents:write"
	CapFinanceRead            Capability = "finance:read"
	CapFinanceWrite           Capability = "finance:write"
	CapSettingsRead           Capability = "settings:read"
	CapSettingsWrite          Capability = "settings:write"
	CapSettlementOverride     Capability = "settlement:override"
	CapReportsGenerate        Capability = "reports:generate"
)

// AllCapabilities lists every capability known to the guard.
var AllCapabilities = []Capability{
	CapApplicationsRead,
	CapApplicationsWrite,
	CapApplicationsTransition,
	CapDocumentsRead,
	CapDocumentsWrite,
	CapFinanceRead,
	CapFinanceWrite,
	CapSettingsRead,
	CapSettingsWrite,
	CapSettlementOverride,
	CapReportsGenerate,
}

// DefaultCapabilities is the role table used when no override is configured.
var DefaultCapabilities = map[models.UserRole][]Capability{
	models.RoleSuperAdmin: AllCapabilities,
	models.RoleAdmin: {
		CapApplicationsRead,
		CapApplicationsWrite,
		CapApplicationsTransition,
		CapDocumentsRead,
		CapDocumentsWrite,
		CapReportsGenerate,
	},
	models.RoleStaff: {
		CapApplicationsRead,
		CapDocumentsRead,
		CapDocumentsWrite,
	},
}

// AccessGuard authorizes actors against tenant ownership and role capabilities.
type AccessGuard struct {
	mu    sync.RWMutex
	table map[models.UserRole]map[Capability]struct{}
}

// NewAccessGuard builds a guard from DefaultCapabilities with per-role overrides applied.
// An override replaces the role's whole capability set.
func NewAccessGuard(overrides map[string][]string) *AccessGuard {
	g := &AccessGuard{}
	g.SetCapabilities(overrides)
	return g
}

// SetCapabilities rebuilds the capability table. Unknown capability names are ignored.
func (g *AccessGuard) SetCapabilities(overrides map[string][]string) {
	table := make(map[models.UserRole]map[Capability]struct{}, len(DefaultCapabilities))
	for role, caps := range DefaultCapabilities {
		table[role] = capabilitySet(caps)
	}
	for rawRole, names := range overrides {
		role := models.UserRole(strings.ToUpper(strings.TrimSpace(rawRole)))
		caps := make([]Capability, 0, len(names))
		for _, name := range names {
			if capability := Capability(strings.TrimSpace(name)); isKnownCapability(capability) {
				caps = append(caps, capability)
			}
		}
		table[role] = capabilitySet(caps)
	}

	g.mu.Lock()
	g.table = table
	g.mu.Unlock()
}

// Capabilities returns the sorted capability list for role.
func (g *AccessGuard) Capabilities(role models.UserRole) []Capability {
	g.mu.RLock()
	defer g.mu.RUnlock()
	caps := make([]Capability, 0, len(g.table[role]))
	for capability := range g.table[role] {
		caps = append(caps, capability)
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
	return caps
}

// Authorize checks that actor holds a session in resourceTenantID and may perform action.
// A resource in another tenant yields the same NotFound as a missing resource.
func (g *AccessGuard) Authorize(actor *models.JWTClaims, resourceTenantID string, action Capability) error {
	if err := requireSession(actor); err != nil {
		return err
	}
	if actor.CompanyID != resourceTenantID {
		return appErrors.ErrNotFound
	}
	return g.Require(actor, action)
}

// Require checks session and capability for operations scoped to the actor's own tenant.
func (g *AccessGuard) Require(actor *models.JWTClaims, action Capability) error {
	if err := requireSession(actor); err != nil {
		return err
	}
	g.mu.RLock()
	_, ok := g.table[actor.Role][action]
	g.mu.RUnlock()
	if !ok {
		return appErrors.ErrForbidden
	}
	return nil
}

func requireSession(actor *models.JWTClaims) error {
	if actor == nil || strings.TrimSpace(actor.UserID) == "" || strings.TrimSpace(actor.CompanyID) == "" {
		return appErrors.ErrUnauthorized
	}
	return nil
}

func isKnownCapability(capability Capability) bool {
	for _, known := range AllCapabilities {
		if known == capability {
			return true
		}
	}
	return false
}

func capabilitySet(caps []Capability) map[Capability]struct{} {
	set := make(map[Capability]struct{}, len(caps))
	for _, capability := range caps {
		set[capability] = struct{}{}
	}
	return set
}
