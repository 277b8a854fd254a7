// Package vectorutils builds a vector.VectorDriver from configuration.
package vectorutils

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/papercomputeco/sensei/pkg/vector"
	"github.com/papercomputeco/sensei/pkg/vector/inmemory"
	"github.com/papercomputeco/sensei/pkg/vector/qdrant"
	"github.com/papercomputeco/sensei/pkg/vector/sqlitevec"
)

type NewVectorDriverOpts struct {
	ProviderType string
	TargetURL    string
	Collection   string
	Dimensions   uint
	APIKey       string
	Logger       *zap.Logger
}

func NewVectorDriver(ctx context.Context, o *NewVectorDriverOpts) (vector.VectorDriver, error) {
	switch o.ProviderType {
	case "sqlite":
		return sqlitevec.NewSQLiteVecDriver(sqlitevec.Config{
			DBPath:     o.TargetURL,
			Dimensions: o.Dimensions,
		}, o.Logger)
	case "qdrant":
		return qdrant.NewQdrantDriver(ctx, qdrant.Config{
			Target:         o.TargetURL,
			CollectionName: o.Collection,
			Dimensions:     o.Dimensions,
			APIKey:         o.APIKey,
		}, o.Logger)
	case "inmemory":
		return inmemory.NewDriver(), nil
	default:
		return nil, fmt.Errorf("unsupported vector store provider: %s", o.ProviderType)
	}
}
