package httpapi

import (
	"context"

	"github.com/haukened/navguard/internal/guard/domain"
)

// ListEditor is the list-editing surface exposed over HTTP.
type ListEditor interface {
	List(ctx context.Context, key domain.ListKey) (domain.List, error)
	Add(ctx context.Context, key domain.ListKey, site string) (domain.List, error)
	Remove(ctx context.Context, key domain.ListKey, index int) (domain.List, error)
	RequestWhitelist(ctx context.Context, site string) (domain.List, error)
}

// HealthFunc reports whether the daemon can serve decisions.
type HealthFunc func(ctx context.Context) error
