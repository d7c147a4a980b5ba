package models

// MetaCustomer is a customer bill-to site as returned by the meta system
type MetaCustomer struct {
	CustomerNumber      string   `json:"customer_number"`
	BillToSiteUseID     int64    `json:"bill_to_site_use_id"`
	CustomerName        string   `json:"customer_name"`
	CustAccountID       *int64   `json:"cust_account_id"`
	Address1            string   `json:"address1"`
	BillToLocation      string   `json:"bill_to_location"`
	ShipToLocation      string   `json:"ship_to_location"`
	ShipToSiteUseID     *int64   `json:"ship_to_site_use_id"`
	Channel             string   `json:"channel"`
	CreditChecking      string   `json:"credit_checking"`
	CreditExposure      *float64 `json:"credit_exposure"`
	OverallCreditLimit  *float64 `json:"overall_credit_limit"`
	TrxCreditLimit      *float64 `json:"trx_credit_limit"`
	Provinsi            string   `json:"provinsi"`
	KabKodya            string   `json:"kab_kodya"`
	Kecamatan           string   `json:"kecamatan"`
	Kelurahan           string   `json:"kelurahan"`
	OrderTypeID         string   `json:"order_type_id"`
	OrderTypeName       string   `json:"order_type_name"`
	ReturnOrderTypeID   string   `json:"return_order_type_id"`
	ReturnOrderTypeName string   `json:"return_order_type_name"`
	OrgID               string   `json:"org_id"`
	OrgName             string   `json:"org_name"`
	OrganizationCode    string   `json:"organization_code"`
	OrganizationID      *int64   `json:"organization_id"`
	OrganizationName    string   `json:"organization_name"`
	PriceListID         *int64   `json:"price_list_id"`
	PriceListName       string   `json:"price_list_name"`
	SiteType            string   `json:"site_type"`
	Status              string   `json:"status"`
	TermDay             *int64   `json:"term_day"`
	TermID              *int64   `json:"term_id"`
	TermName            string   `json:"term_name"`
	LastUpdateDate      string   `json:"last_update_date"`
}

func (c MetaCustomer) Table() string { return "customers" }

func (c MetaCustomer) NaturalKey() map[string]any {
	return map[string]any{
		"customer_number":     c.CustomerNumber,
		"bill_to_site_use_id": c.BillToSiteUseID,
	}
}

func (c MetaCustomer) EnrichmentFields() map[string]any {
	return map[string]any{
		"customer_name":          c.CustomerName,
		"cust_account_id":        nullable(c.CustAccountID),
		"address1":               c.Address1,
		"bill_to_location":       c.BillToLocation,
		"ship_to_location":       c.ShipToLocation,
		"ship_to_site_use_id":    nullable(c.ShipToSiteUseID),
		"channel":                c.Channel,
		"credit_checking":        c.CreditChecking,
		"credit_exposure":        nullable(c.CreditExposure),
		"overall_credit_limit":   nullable(c.OverallCreditLimit),
		"trx_credit_limit":       nullable(c.TrxCreditLimit),
		"provinsi":               c.Provinsi,
		"kab_kodya":              c.KabKodya,
		"kecamatan":              c.Kecamatan,
		"kelurahan":              c.Kelurahan,
		"order_type_id":          c.OrderTypeID,
		"order_type_name":        c.OrderTypeName,
		"return_order_type_id":   c.ReturnOrderTypeID,
		"return_order_type_name": c.ReturnOrderTypeName,
		"org_id":                 c.OrgID,
		"org_name":               c.OrgName,
		"organization_code":      c.OrganizationCode,
		"organization_id":        nullable(c.OrganizationID),
		"organization_name":      c.OrganizationName,
		"price_list_id":          nullable(c.PriceListID),
		"price_list_name":        c.PriceListName,
		"site_type":              c.SiteType,
		"meta_status":            c.Status,
		"term_day":               nullable(c.TermDay),
		"term_id":                nullable(c.TermID),
		"term_name":              c.TermName,
		"meta_updated_at":        nullableString(c.LastUpdateDate),
	}
}

// IdentityFields seeds the user-owned columns of a brand new customer row. The display
// name starts as the meta name; afterwards only back-office users change it
func (c MetaCustomer) IdentityFields() map[string]any {
	return map[string]any{
		"name":      c.CustomerName,
		"is_active": true,
	}
}
