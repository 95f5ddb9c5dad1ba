package main

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/azzy787/task-board-mvp/config"
	"github.com/azzy787/task-board-mvp/storage"
)

func initCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the tables, queue or indexes of the configured backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			switch cfg.Backend {
			case config.BackendTables:
				if err := storage.CreateTables(ctx, cfg.StorageConnStr, cfg.TasksTable, cfg.MetaTable); err != nil {
					return fmt.Errorf("create tables: %w", err)
				}
				if cfg.ChangeQueue != "" {
					if err := storage.CreateQueue(ctx, cfg.StorageConnStr, cfg.ChangeQueue); err != nil {
						return fmt.Errorf("create queue: %w", err)
					}
				}
			case config.BackendMongo:
				m, err := storage.NewMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.BoardID, nil)
				if err != nil {
					return err
				}
				defer m.Close(ctx)
				if err := m.EnsureIndexes(ctx); err != nil {
					return fmt.Errorf("ensure indexes: %w", err)
				}
			default:
				log.Info("memory backend needs no provisioning")
				return nil
			}
			log.WithField("backend", cfg.Backend).Info("storage init complete")
			return nil
		},
	}
}
