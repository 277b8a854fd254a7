// Package migratecmder applies the relational schema migrations.
package migratecmder

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/sensei/pkg/config"
	"github.com/papercomputeco/sensei/pkg/dotdir"
	"github.com/papercomputeco/sensei/pkg/storage/migrations"
	"github.com/papercomputeco/sensei/pkg/storage/sqlite"
)

const migrateLongDesc string = `Apply database schema migrations.

PostgreSQL migrations can be stepped up or down. SQLite databases are
always migrated to the latest schema, which also happens when serve opens
them.

Examples:
  sensei migrate --storage-driver postgres --postgres $DSN
  sensei migrate --storage-driver postgres --postgres $DSN --down --steps 1`

const migrateShortDesc string = "Apply database schema migrations"

type migrateCommander struct {
	storageDriver string
	sqlitePath    string
	postgresDSN   string
	down          bool
	steps         int
}

func NewMigrateCmd() *cobra.Command {
	cmder := &migrateCommander{}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: migrateShortDesc,
		Long:  migrateLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.ServeFlags, []string{config.FlagStorageDriver, config.FlagSQLite, config.FlagPostgres})
			return cmder.run(cmd, config.FromViper(v).Storage, configDir)
		},
	}

	config.AddStringFlag(cmd, config.ServeFlags, config.FlagStorageDriver, &cmder.storageDriver)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagPostgres, &cmder.postgresDSN)
	cmd.Flags().BoolVar(&cmder.down, "down", false, "Roll migrations back instead of forward (postgres only)")
	cmd.Flags().IntVar(&cmder.steps, "steps", 0, "Number of migrations to apply; 0 applies all")

	return cmd
}

func (c *migrateCommander) run(cmd *cobra.Command, s config.StorageConfig, configDir string) error {
	switch s.Driver {
	case "postgres":
		if s.PostgresDSN == "" {
			return errors.New("storage.postgres_dsn is required for the postgres driver")
		}
		direction := migrations.Up
		if c.down {
			direction = migrations.Down
		}
		if err := migrations.Postgres(s.PostgresDSN, direction, c.steps); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "postgres migrated %s\n", direction)
		return nil

	case "sqlite":
		if c.down || c.steps != 0 {
			return errors.New("--down and --steps are only supported for postgres")
		}
		path := s.SQLitePath
		if path == "" {
			p, err := dotdir.NewManager().Path(configDir, "sensei.db")
			if err != nil {
				return err
			}
			path = p
		}
		// Opening the driver applies every pending migration.
		driver, err := sqlite.NewSQLiteDriver(path)
		if err != nil {
			return err
		}
		if err := driver.Close(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sqlite migrated: %s\n", path)
		return nil

	default:
		return fmt.Errorf("storage driver %q has no schema to migrate", s.Driver)
	}
}
