package models

// MetaBranch is an inventory organization as returned by the meta system
type MetaBranch struct {
	OrganizationCode string `json:"organization_code"`
	OrganizationName string `json:"organization_name"`
	OrganizationID   int64  `json:"organization_id"`
	OrgName          string `json:"org_name"`
	OrgID            string `json:"org_id"`
	OrganizationType string `json:"organization_type"`
	RegionCode       string `json:"region_code"`
	Address          string `json:"address"`
	LocationID       *int64 `json:"location_id"`
	ValidFrom        string `json:"valid_from"`
	ValidTo          string `json:"valid_to"`
	LastUpdateDate   string `json:"last_update_date"`
}

func (b MetaBranch) Table() string { return "branches" }

func (b MetaBranch) NaturalKey() map[string]any {
	return map[string]any{
		"organization_id": b.OrganizationID,
		"org_id":          b.OrgID,
	}
}

func (b MetaBranch) EnrichmentFields() map[string]any {
	return map[string]any{
		"organization_code": b.OrganizationCode,
		"organization_name": b.OrganizationName,
		"org_name":          b.OrgName,
		"organization_type": b.OrganizationType,
		"region_code":       b.RegionCode,
		"address":           b.Address,
		"location_id":       nullable(b.LocationID),
		"valid_from":        nullableString(b.ValidFrom),
		"valid_to":          nullableString(b.ValidTo),
		"meta_updated_at":   nullableString(b.LastUpdateDate),
	}
}

func (b MetaBranch) IdentityFields() map[string]any {
	return map[string]any{
		"is_active": true,
	}
}
