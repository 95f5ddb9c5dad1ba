package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/azzy787/task-board-mvp/config"
	"github.com/azzy787/task-board-mvp/identity"
)

// usersFile is the import format:
//
//	users:
//	  - email: ana@example.com
//	    name: Ana
//	    password: s3cret
//	    disabled: false
type usersFile struct {
	Users []identity.Account `yaml:"users"`
}

func readAccounts(r io.Reader) ([]identity.Account, error) {
	var f usersFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("parse users file: %w", err)
	}
	for i, a := range f.Users {
		if a.Email == "" || a.Password == "" {
			return nil, fmt.Errorf("user %d: email and password are required", i+1)
		}
	}
	return f.Users, nil
}

func usersCmd(load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage local sign-in accounts",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "import [file.yaml]",
		Short: "Create or update accounts from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			accounts, err := readAccounts(f)
			if err != nil {
				return err
			}

			opts, err := config.RedisOptions(cfg.RedisConnStr)
			if err != nil {
				return err
			}
			client := redis.NewClient(opts)
			defer client.Close()
			return importAccounts(cmd, identity.NewLocal(client, identity.Config{}), accounts)
		},
	})
	return cmd
}

func importAccounts(cmd *cobra.Command, local *identity.Local, accounts []identity.Account) error {
	for _, a := range accounts {
		u, err := local.PutUser(cmd.Context(), a)
		if err != nil {
			return fmt.Errorf("import %s: %w", a.Email, err)
		}
		state := "active"
		if a.Disabled {
			state = "disabled"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", u.ID, u.Email, state)
	}
	return nil
}
