package main

import (
	"errors"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tunehub/authcore/internal/migrations"
)

func migrateCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	dsn := func() (string, *zap.Logger, error) {
		cfg, logger, err := setup(*configPath)
		if err != nil {
			return "", nil, err
		}
		if cfg.Database.URL == "" {
			return "", nil, errors.New("database.url is not set")
		}
		return cfg.Database.URL, logger, nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			url, logger, err := dsn()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			if err := migrations.Up(url); err != nil {
				return err
			}
			logger.Info("migrations applied")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back the given number of migrations (default 1)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n <= 0 {
					return errors.New("steps must be a positive integer")
				}
				steps = n
			}
			url, logger, err := dsn()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			if err := migrations.Down(url, steps); err != nil {
				return err
			}
			logger.Info("migrations rolled back", zap.Int("steps", steps))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			url, _, err := dsn()
			if err != nil {
				return err
			}
			v, dirty, err := migrations.Version(url)
			if err != nil {
				return err
			}
			cmd.Printf("version=%d dirty=%t\n", v, dirty)
			return nil
		},
	})

	return cmd
}
