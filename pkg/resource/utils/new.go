// Package resourceutils builds a resource.Driver from configuration.
package resourceutils

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/papercomputeco/sensei/pkg/resource"
	"github.com/papercomputeco/sensei/pkg/resource/bleve"
	"github.com/papercomputeco/sensei/pkg/resource/inmemory"
)

type NewDriverOpts struct {
	ProviderType string
	IndexPath    string
	Logger       *zap.Logger
}

func NewDriver(o *NewDriverOpts) (resource.Driver, error) {
	switch o.ProviderType {
	case "bleve":
		return bleve.NewDriver(bleve.Config{IndexPath: o.IndexPath}, o.Logger)
	case "inmemory":
		return inmemory.NewDriver(), nil
	default:
		return nil, fmt.Errorf("unsupported resource provider: %s", o.ProviderType)
	}
}
