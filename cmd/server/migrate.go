package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the certificate tables for the configured SQL backend",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			log, err := commonRun(cfg)
			if err != nil {
				return err
			}
			// Kafka is not needed to migrate.
			cfg.Kafka.Brokers = nil
			b, err := openBackend(cmd.Context(), cfg, log, prometheus.NewRegistry())
			if err != nil {
				return fmt.Errorf("open %s backend: %w", cfg.Store.Backend, err)
			}
			defer b.Close()

			if b.migrator == nil {
				log.Info("backend has no schema to migrate", "backend", cfg.Store.Backend)
				return nil
			}
			if err := b.migrator.Migrate(cmd.Context()); err != nil {
				return err
			}
			log.Info("schema migrated", "backend", cfg.Store.Backend)
			return nil
		},
	}
}
