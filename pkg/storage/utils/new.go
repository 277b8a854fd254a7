// Package storageutils builds a storage.Driver from configuration.
package storageutils

import (
	"context"
	"fmt"

	"github.com/papercomputeco/sensei/pkg/storage"
	"github.com/papercomputeco/sensei/pkg/storage/inmemory"
	"github.com/papercomputeco/sensei/pkg/storage/postgres"
	"github.com/papercomputeco/sensei/pkg/storage/sqlite"
)

type NewDriverOpts struct {
	Driver      string
	SQLitePath  string
	PostgresDSN string
}

func NewDriver(ctx context.Context, o *NewDriverOpts) (storage.Driver, error) {
	switch o.Driver {
	case "sqlite":
		if o.SQLitePath == "" {
			return nil, fmt.Errorf("storage.sqlite_path is required for the sqlite driver")
		}
		return sqlite.NewSQLiteDriver(o.SQLitePath)
	case "postgres":
		if o.PostgresDSN == "" {
			return nil, fmt.Errorf("storage.postgres_dsn is required for the postgres driver")
		}
		return postgres.NewDriver(ctx, o.PostgresDSN)
	case "inmemory":
		return inmemory.NewDriver(), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", o.Driver)
	}
}
