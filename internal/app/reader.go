package app

import (
	"context"
	"fmt"

	"github.com/Guizzs26/go-meta-sync/internal/integration"
	"github.com/Guizzs26/go-meta-sync/internal/models"
)

// Reader is the type-erased view of a domain client used by the admin CLI
type Reader interface {
	List(ctx context.Context, params models.PaginationParams) any
	ByID(ctx context.Context, id int64) any
	InvalidateCache(ctx context.Context, id *int64) models.Ack
}

type reader[R any] struct {
	client *integration.Client[R]
}

func (r reader[R]) List(ctx context.Context, params models.PaginationParams) any {
	return r.client.List(ctx, params)
}

func (r reader[R]) ByID(ctx context.Context, id int64) any {
	return r.client.ByID(ctx, id)
}

func (r reader[R]) InvalidateCache(ctx context.Context, id *int64) models.Ack {
	return r.client.InvalidateCache(ctx, id)
}

func (rt *Runtime) Reader(domain string) (Reader, error) {
	switch domain {
	case "branch":
		return reader[models.MetaBranch]{rt.Branch.Client}, nil
	case "customer":
		return reader[models.MetaCustomer]{rt.Customer.Client}, nil
	case "region":
		return reader[models.MetaRegion]{rt.Region.Client}, nil
	default:
		return nil, fmt.Errorf("unknown domain %q (expected one of %v)", domain, rt.DomainNames())
	}
}
