package mockapi

import (
	"fmt"

	"github.com/jrsteele09/go-session-client/tenants"
	"github.com/jrsteele09/go-session-client/users"
)

// Seeded accounts.
const (
	SeedAdminUsername = "admin"
	SeedAdminPassword = "Admin123"
	SeedUserUsername  = "jdoe"
	SeedUserPassword  = "Password1"
)

// Seeded company identifiers.
const (
	SeedCompanyAcme    int64 = 1
	SeedCompanyGlobex  int64 = 2
	SeedCompanyInitech int64 = 3
)

var crud = []string{"CREATE", "READ", "UPDATE", "DELETE"}

func seedModules() []tenants.Module {
	return []tenants.Module{
		{
			ID:   "inventory",
			Name: "Inventory",
			Entities: []tenants.Entity{
				{ID: "inventory-item", Name: "Inventory Item", Permissions: crud},
				{ID: "item-category", Name: "Item Category", Permissions: crud},
			},
		},
		{
			ID:   "admin",
			Name: "Administration",
			Entities: []tenants.Entity{
				{ID: "company", Name: "Company", Permissions: crud},
				{ID: "country", Name: "Country", Permissions: crud},
			},
		},
	}
}

// Seed loads three companies, an admin who belongs to all of them and a
// regular user who belongs to the first two.
func (s *Server) Seed() error {
	companies := []*tenants.Tenant{
		{ID: SeedCompanyAcme, Name: "Acme", Country: "US", Modules: seedModules()},
		{ID: SeedCompanyGlobex, Name: "Globex", Country: "DE", Modules: seedModules()},
		{ID: SeedCompanyInitech, Name: "Initech", Country: "GB", Modules: seedModules()[:1]},
	}
	for _, c := range companies {
		if err := s.repos.Tenants.Upsert(c); err != nil {
			return fmt.Errorf("upsert company %d: %w", c.ID, err)
		}
	}

	accounts := []struct {
		user     *users.User
		password string
	}{
		{
			user: &users.User{
				Username:   SeedAdminUsername,
				Email:      "admin@example.com",
				FirstName:  "Ada",
				LastName:   "Admin",
				Roles:      []string{users.RoleAdmin},
				CompanyIDs: []int64{SeedCompanyAcme, SeedCompanyGlobex, SeedCompanyInitech},
			},
			password: SeedAdminPassword,
		},
		{
			user: &users.User{
				Username:   SeedUserUsername,
				Email:      "john.doe@example.com",
				FirstName:  "John",
				LastName:   "Doe",
				Roles:      []string{users.RoleUser},
				CompanyIDs: []int64{SeedCompanyAcme, SeedCompanyGlobex},
			},
			password: SeedUserPassword,
		},
	}
	for _, a := range accounts {
		hash, err := users.HashPassword(a.password)
		if err != nil {
			return fmt.Errorf("hash password for %s: %w", a.user.Username, err)
		}
		a.user.PasswordHash = hash
		a.user.DateJoined = NowTimeFunc()
		if err := s.repos.Users.Upsert(a.user); err != nil {
			return fmt.Errorf("upsert user %s: %w", a.user.Username, err)
		}
	}
	return nil
}
