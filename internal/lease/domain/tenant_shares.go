package domain

import (
	"sort"

	"github.com/bwmarrin/snowflake"
	"github.com/cityofhelsinki/mvj/internal/calendar"
)

// TenantShares maps every invoice recipient to the tenants and date ranges it is billed
// for. A BILLING contact takes over the part of the period it covers, the rest goes to
// the TENANT contact. Output is ordered by contact, tenant and range start.
func TenantShares(tenants []Tenant, period calendar.DateRange) []RecipientShare {
	recipients := map[snowflake.ID]*RecipientShare{}
	add := func(contact Contact, tenant Tenant, ranges []calendar.DateRange) {
		if len(ranges) == 0 {
			return
		}
		rs, ok := recipients[contact.ID]
		if !ok {
			rs = &RecipientShare{Contact: contact}
			recipients[contact.ID] = rs
		}
		for i := range rs.Tenants {
			if rs.Tenants[i].Tenant.ID == tenant.ID {
				rs.Tenants[i].Ranges = append(rs.Tenants[i].Ranges, ranges...)
				return
			}
		}
		rs.Tenants = append(rs.Tenants, TenantShare{Tenant: tenant, Ranges: ranges})
	}

	for _, tenant := range tenants {
		tenantContacts := contactsOfType(tenant, TenantContactTenant, period)
		billingContacts := contactsOfType(tenant, TenantContactBilling, period)

		for _, tc := range tenantContacts {
			tenantRange, _ := tc.Span().Clamp(period)

			var billed []calendar.DateRange
			for _, bc := range billingContacts {
				overlap, ok := bc.Span().Clamp(tenantRange)
				if !ok {
					continue
				}
				add(bc.Contact, tenant, []calendar.DateRange{overlap})
				billed = append(billed, overlap)
			}
			add(tc.Contact, tenant, calendar.SubtractRangesFromRanges([]calendar.DateRange{tenantRange}, billed))
		}
	}

	out := make([]RecipientShare, 0, len(recipients))
	for _, rs := range recipients {
		sort.Slice(rs.Tenants, func(i, j int) bool { return rs.Tenants[i].Tenant.ID < rs.Tenants[j].Tenant.ID })
		for _, ts := range rs.Tenants {
			sort.Slice(ts.Ranges, func(i, j int) bool { return ts.Ranges[i].Start.Before(ts.Ranges[j].Start) })
		}
		out = append(out, *rs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Contact.ID < out[j].Contact.ID })
	return out
}

func contactsOfType(tenant Tenant, t TenantContactType, period calendar.DateRange) []TenantContact {
	var out []TenantContact
	for _, tc := range tenant.Contacts {
		if tc.Type == t && tc.Span().Overlaps(period) {
			out = append(out, tc)
		}
	}
	return out
}

// ActiveContactsForPeriod lists the contact ids that may receive invoices of the lease
// for period.
func ActiveContactsForPeriod(lease *Lease, period calendar.DateRange) map[snowflake.ID]struct{} {
	out := map[snowflake.ID]struct{}{}
	for _, tenant := range lease.Tenants {
		for _, tc := range tenant.Contacts {
			if tc.Type == TenantContactContact || !tc.Span().Overlaps(period) {
				continue
			}
			out[tc.ContactID] = struct{}{}
		}
	}
	return out
}

// BillingRecipient returns the contact invoices of the tenant are sent to for period:
// the first active BILLING contact, else the first active TENANT contact.
func (t Tenant) BillingRecipient(period calendar.DateRange) (Contact, bool) {
	if billing := contactsOfType(t, TenantContactBilling, period); len(billing) > 0 {
		return billing[0].Contact, true
	}
	if tenant := contactsOfType(t, TenantContactTenant, period); len(tenant) > 0 {
		return tenant[0].Contact, true
	}
	return Contact{}, false
}
