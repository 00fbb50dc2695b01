package sessions

import "slices"

// Payload is the JSON body returned by every auth exchange (login, register,
// refresh_token, switch_company).
type Payload struct {
	AccessToken    string             `json:"access_token"`
	RefreshToken   string             `json:"refresh_token,omitempty"` // Ignored, the refresh credential travels in a cookie
	Message        string             `json:"message,omitempty"`
	Email          string             `json:"email"`
	FirstName      string             `json:"firstName"`
	LastName       string             `json:"lastName"`
	Username       string             `json:"username"`
	Roles          []string           `json:"roles"`
	Companies      []string           `json:"companies"`
	CompanyIDs     []int64            `json:"companyIds,omitempty"`
	DefaultCompany string             `json:"defaultCompany,omitempty"`
	Modules        []ModulePermission `json:"modules,omitempty"`
}

// Profile identifies the signed-in user.
type Profile struct {
	Email     string   `json:"email"`
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	Roles     []string `json:"roles"`
	Username  string   `json:"username"`
}

func (p Profile) HasRole(role string) bool {
	return slices.Contains(p.Roles, role)
}

// TenantMembership is a company the user may act as.
type TenantMembership struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type EntityPermission struct {
	EntityID    string   `json:"entityId"`
	EntityName  string   `json:"entityName,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

type ModulePermission struct {
	ModuleID   string             `json:"moduleId"`
	ModuleName string             `json:"moduleName"`
	Entities   []EntityPermission `json:"entities"`
}

// Session is the decoded authentication state. It is a snapshot: the store
// may change between reading it and acting on it.
type Session struct {
	AccessToken    string
	Profile        Profile
	Tenants        []TenantMembership
	ActiveTenantID *int64
	DefaultCompany string
	Modules        []ModulePermission
}

// FromPayload builds a Session from an exchange response. Memberships pair
// companyIds with companies by position; surplus entries on either side are
// dropped.
func FromPayload(p *Payload) *Session {
	n := min(len(p.CompanyIDs), len(p.Companies))
	tenants := make([]TenantMembership, 0, n)
	for i := 0; i < n; i++ {
		tenants = append(tenants, TenantMembership{ID: p.CompanyIDs[i], Name: p.Companies[i]})
	}
	return &Session{
		AccessToken: p.AccessToken,
		Profile: Profile{
			Email:     p.Email,
			FirstName: p.FirstName,
			LastName:  p.LastName,
			Roles:     slices.Clone(p.Roles),
			Username:  p.Username,
		},
		Tenants:        tenants,
		DefaultCompany: p.DefaultCompany,
		Modules:        slices.Clone(p.Modules),
	}
}

func (s *Session) HasTenant(tenantID int64) bool {
	_, ok := s.Tenant(tenantID)
	return ok
}

func (s *Session) Tenant(tenantID int64) (TenantMembership, bool) {
	for _, t := range s.Tenants {
		if t.ID == tenantID {
			return t, true
		}
	}
	return TenantMembership{}, false
}

// FirstTenant returns the first membership, the tenant a fresh login acts as.
func (s *Session) FirstTenant() (TenantMembership, bool) {
	if len(s.Tenants) == 0 {
		return TenantMembership{}, false
	}
	return s.Tenants[0], true
}

func (s *Session) Module(moduleID string) (ModulePermission, bool) {
	for _, m := range s.Modules {
		if m.ModuleID == moduleID {
			return m, true
		}
	}
	return ModulePermission{}, false
}

// ModuleIDs returns the module identifiers in server order.
func (s *Session) ModuleIDs() []string {
	ids := make([]string, 0, len(s.Modules))
	for _, m := range s.Modules {
		ids = append(ids, m.ModuleID)
	}
	return ids
}
