package tenants

type Repo interface {
	Upsert(tenant *Tenant) error
	Delete(tenantID int64) error
	Get(tenantID int64) (*Tenant, error)
	List(offset, limit int) ([]*Tenant, error)
}
