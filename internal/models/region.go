package models

type MetaRegion struct {
	RegionCode     string `json:"region_code"`
	RegionName     string `json:"region_name"`
	LastUpdateDate string `json:"last_update_date"`
}

func (r MetaRegion) Table() string { return "regions" }

func (r MetaRegion) NaturalKey() map[string]any {
	return map[string]any{"region_code": r.RegionCode}
}

func (r MetaRegion) EnrichmentFields() map[string]any {
	return map[string]any{
		"region_name":     r.RegionName,
		"meta_updated_at": nullableString(r.LastUpdateDate),
	}
}

func (r MetaRegion) IdentityFields() map[string]any {
	return map[string]any{"is_active": true}
}
