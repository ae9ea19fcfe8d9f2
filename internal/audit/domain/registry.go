package domain

import "sort"

// Child is an owned collection reached through ForeignKey on the child's table.
type Child struct {
	Kind       string
	ForeignKey string
}

// Entity is the relation metadata of one soft-deletable table. Rows matching Protected,
// an SQL predicate, are never soft deleted.
type Entity struct {
	Kind      string
	Table     string
	Children  []Child
	Protected string
}

type Registry struct {
	entities map[string]Entity
}

func NewRegistry(entities ...Entity) *Registry {
	r := &Registry{entities: map[string]Entity{}}
	for _, e := range entities {
		r.Register(e)
	}
	return r
}

func (r *Registry) Register(e Entity) {
	r.entities[e.Kind] = e
}

func (r *Registry) Lookup(kind string) (Entity, bool) {
	e, ok := r.entities[kind]
	return e, ok
}

func (r *Registry) Kinds() []string {
	out := make([]string, 0, len(r.entities))
	for k := range r.entities {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

const (
	KindLease                = "lease"
	KindRent                 = "rent"
	KindContractRent         = "contract_rent"
	KindFixedInitialYearRent = "fixed_initial_year_rent"
	KindRentAdjustment       = "rent_adjustment"
	KindTenant               = "tenant"
	KindTenantContact        = "tenant_contact"
	KindLeaseBasisOfRent     = "lease_basis_of_rent"
)

// DefaultRegistry lists the lease aggregate's ownership tree.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Entity{
			Kind:  KindLease,
			Table: "leases",
			Children: []Child{
				{Kind: KindRent, ForeignKey: "lease_id"},
				{Kind: KindTenant, ForeignKey: "lease_id"},
				{Kind: KindLeaseBasisOfRent, ForeignKey: "lease_id"},
			},
		},
		Entity{
			Kind:  KindRent,
			Table: "rents",
			Children: []Child{
				{Kind: KindContractRent, ForeignKey: "rent_id"},
				{Kind: KindFixedInitialYearRent, ForeignKey: "rent_id"},
				{Kind: KindRentAdjustment, ForeignKey: "rent_id"},
			},
		},
		Entity{Kind: KindContractRent, Table: "contract_rents"},
		Entity{Kind: KindFixedInitialYearRent, Table: "fixed_initial_year_rents"},
		Entity{Kind: KindRentAdjustment, Table: "rent_adjustments"},
		Entity{
			Kind:     KindTenant,
			Table:    "tenants",
			Children: []Child{{Kind: KindTenantContact, ForeignKey: "tenant_id"}},
		},
		Entity{Kind: KindTenantContact, Table: "tenant_contacts"},
		Entity{Kind: KindLeaseBasisOfRent, Table: "lease_basis_of_rents", Protected: "locked_at IS NOT NULL"},
	)
}
