// Command boardctl provisions board storage, imports users and runs board
// maintenance from the shell. It reads the same environment as the service.
package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/azzy787/task-board-mvp/config"
)

func main() {
	var envFiles []string
	rootCmd := &cobra.Command{
		Use:           "boardctl",
		Short:         "Task board administration",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env", nil, "env files to load before reading configuration")
	load := func() (config.Config, error) {
		cfg, err := config.Load(envFiles...)
		if err != nil {
			return cfg, err
		}
		if cfg.Debug {
			log.SetLevel(log.DebugLevel)
		}
		return cfg, nil
	}

	rootCmd.AddCommand(initCmd(load))
	rootCmd.AddCommand(usersCmd(load))
	rootCmd.AddCommand(refreshCmd(load))
	rootCmd.AddCommand(showCmd(load))
	rootCmd.AddCommand(tokenCmd(load))
	rootCmd.AddCommand(streamLoadCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type loader func() (config.Config, error)
