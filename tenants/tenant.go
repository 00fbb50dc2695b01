// Package tenants models the companies a user can act as.
package tenants

import "errors"

var ErrNotFound = errors.New("not found")

// Tenant is a company. Modules lists the application modules it has licensed.
type Tenant struct {
	ID      int64    `json:"id"`
	Name    string   `json:"name"`
	Country string   `json:"country,omitempty"`
	Modules []Module `json:"modules,omitempty"`
}

type Entity struct {
	ID          string   `json:"entityId"`
	Name        string   `json:"entityName"`
	Permissions []string `json:"permissions"`
}

type Module struct {
	ID       string   `json:"moduleId"`
	Name     string   `json:"moduleName"`
	Entities []Entity `json:"entities"`
}
