package models

import (
	"fmt"
	"sort"
	"strings"
)

// SystemActor stamps rows written by reconciliation
const SystemActor = "system"

// MetaRecord is the remote view of an entity. Reconciliation only ever writes the
// columns returned by EnrichmentFields on existing rows; IdentityFields seed new rows
type MetaRecord interface {
	Table() string
	NaturalKey() map[string]any
	EnrichmentFields() map[string]any
	IdentityFields() map[string]any
}

// KeyString renders a natural key deterministically, e.g. "org_id=123,organization_id=7"
func KeyString(key map[string]any) string {
	cols := make([]string, 0, len(key))
	for k := range key {
		cols = append(cols, k)
	}
	sort.Strings(cols)

	parts := make([]string, 0, len(cols))
	for _, c := range cols {
		parts = append(parts, fmt.Sprintf("%s=%v", c, key[c]))
	}
	return strings.Join(parts, ",")
}

// MergeAction is the result of a single upsert
type MergeAction string

const (
	ActionCreated MergeAction = "created"
	ActionUpdated MergeAction = "updated"
)

func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
