// Package graphutils builds a graph.Backend from configuration.
package graphutils

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/papercomputeco/sensei/pkg/memory/graph"
	"github.com/papercomputeco/sensei/pkg/memory/graph/inmemory"
	"github.com/papercomputeco/sensei/pkg/memory/graph/postgres"
)

type NewBackendOpts struct {
	ProviderType string

	// Pool is required by the postgres provider and is shared with the
	// storage driver.
	Pool *pgxpool.Pool
}

func NewBackend(o *NewBackendOpts) (graph.Backend, error) {
	switch o.ProviderType {
	case "", "inmemory":
		return inmemory.NewBackend(), nil
	case "postgres":
		if o.Pool == nil {
			return nil, errors.New("postgres graph backend requires the postgres storage driver")
		}
		return postgres.NewBackend(o.Pool), nil
	default:
		return nil, fmt.Errorf("unsupported graph provider: %s", o.ProviderType)
	}
}
