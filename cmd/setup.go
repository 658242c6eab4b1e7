package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/iasync/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupDatabase initializes the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	r.logger.Info("initializing database", "path", r.config.Database.Path)

	if err := r.init(ctx); err != nil {
		return err
	}

	versions, err := shared.AppliedVersions(r.db)
	if err != nil {
		return fmt.Errorf("failed to read migration versions: %w", err)
	}

	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)
	return r.writePlain("✓ Database ready at %s (%d migration(s) applied)\n", r.config.Database.Path, len(versions))
}

// SetupConfig writes the example configuration file.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("output")
	if path == "" {
		path = r.configPath
	}
	if path == "" {
		path = "config.toml"
	}

	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}

	r.logger.Info("config file created", "path", path)
	r.writePlain("✓ Config written to %s\n", path)
	r.writePlainln("Next steps:")
	r.writePlain("1. Set archive.access_key and archive.secret_key (or ARCHIVE_ACCESS_KEY / ARCHIVE_SECRET_KEY in .env)\n")
	r.writePlain("2. Run 'iasync setup database'\n")
	return nil
}
