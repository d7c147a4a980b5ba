package models

import "testing"

func TestKeyStringIsDeterministic(t *testing.T) {
	b := MetaBranch{OrganizationID: 7, OrgID: "123"}

	want := "org_id=123,organization_id=7"
	for i := 0; i < 5; i++ {
		if got := KeyString(b.NaturalKey()); got != want {
			t.Fatalf("got %q, want %q", got, want)
		}
	}
}

func TestEnvelopeNormalize(t *testing.T) {
	var e Envelope[MetaRegion]
	n := e.Normalize()

	if n.Data == nil || len(n.Data) != 0 {
		t.Fatal("expected empty non-nil data")
	}
	if n.Status || n.Count != 0 || n.Message == "" {
		t.Fatalf("unexpected defaults: %+v", n)
	}

	f := FailedEnvelope[MetaBranch]("boom")
	if f.Status || f.Message != "boom" || f.Data == nil {
		t.Fatalf("unexpected failed envelope: %+v", f)
	}
}

func TestEnrichmentExcludesNaturalKeyAndIdentity(t *testing.T) {
	records := []MetaRecord{MetaBranch{}, MetaCustomer{}, MetaRegion{}}

	for _, r := range records {
		enrich := r.EnrichmentFields()
		for k := range r.NaturalKey() {
			if _, ok := enrich[k]; ok {
				t.Fatalf("%s: natural key column %s must not be an enrichment field", r.Table(), k)
			}
		}
		for k := range r.IdentityFields() {
			if _, ok := enrich[k]; ok {
				t.Fatalf("%s: identity column %s must not be an enrichment field", r.Table(), k)
			}
		}
	}
}

func TestNullableHelpers(t *testing.T) {
	id := int64(42)
	c := MetaCustomer{CustAccountID: &id}
	f := c.EnrichmentFields()

	if f["cust_account_id"] != int64(42) {
		t.Fatalf("expected dereferenced value, got %#v", f["cust_account_id"])
	}
	if f["term_id"] != nil {
		t.Fatalf("expected nil for absent pointer, got %#v", f["term_id"])
	}
	if f["meta_updated_at"] != nil {
		t.Fatalf("expected NULL for empty date, got %#v", f["meta_updated_at"])
	}
}

func TestRequestValidation(t *testing.T) {
	one, zero := 1, 0
	id, badID := int64(4), int64(0)

	cases := []struct {
		name    string
		req     interface{ Validate() error }
		wantErr bool
	}{
		{"date ok", SyncDate("2024-06-01"), false},
		{"date wrong layout", SyncDate("01/06/2024"), true},
		{"date empty", SyncDate(""), true},
		{"paging absent", PaginationParams{}, false},
		{"paging ok", PaginationParams{Page: &one, Limit: &one}, false},
		{"page zero", PaginationParams{Page: &zero}, true},
		{"limit zero", PaginationParams{Limit: &zero}, true},
		{"id ok", ByIDParams{ID: 1}, false},
		{"id zero", ByIDParams{}, true},
		{"invalidate all", InvalidateParams{}, false},
		{"invalidate one", InvalidateParams{ID: &id}, false},
		{"invalidate bad id", InvalidateParams{ID: &badID}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.req.Validate(); (err != nil) != tc.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
