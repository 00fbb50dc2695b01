package tenantrepofakes

import (
	"sort"
	"sync"

	"github.com/jrsteele09/go-session-client/tenants"
)

var _ tenants.Repo = (*FakeTenantRepo)(nil)

type FakeTenantRepo struct {
	tenants map[int64]*tenants.Tenant
	nextID  int64
	lock    sync.RWMutex
}

func NewFakeTenantRepo() tenants.Repo {
	return &FakeTenantRepo{
		tenants: make(map[int64]*tenants.Tenant),
		nextID:  1,
	}
}

// Upsert stores tenant. A zero ID is assigned the next free identifier.
func (tr *FakeTenantRepo) Upsert(tenant *tenants.Tenant) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	if tenant.ID == 0 {
		tenant.ID = tr.nextID
	}
	if tenant.ID >= tr.nextID {
		tr.nextID = tenant.ID + 1
	}
	tr.tenants[tenant.ID] = tenant
	return nil
}

func (tr *FakeTenantRepo) Delete(tenantID int64) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	if _, ok := tr.tenants[tenantID]; !ok {
		return tenants.ErrNotFound
	}
	delete(tr.tenants, tenantID)
	return nil
}

func (tr *FakeTenantRepo) Get(tenantID int64) (*tenants.Tenant, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()

	tenant, ok := tr.tenants[tenantID]
	if !ok {
		return nil, tenants.ErrNotFound
	}
	return tenant, nil
}

func (tr *FakeTenantRepo) List(offset, limit int) ([]*tenants.Tenant, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()

	list := make([]*tenants.Tenant, 0, len(tr.tenants))
	for _, v := range tr.tenants {
		list = append(list, v)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].ID < list[j].ID
	})

	if offset >= len(list) {
		return nil, nil
	}
	end := min(offset+limit, len(list))
	return list[offset:end], nil
}
