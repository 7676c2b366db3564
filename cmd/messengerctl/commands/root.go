// Package commands implements the messengerctl inspection CLI. It opens
// the database read-only and never touches message contents.
package commands

import (
	"github.com/dgraph-io/badger/v4"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"
)

type ctlConfig struct {
	BadgerFilepath string `envconfig:"BADGER_FILEPATH" required:"true"`
}

var (
	config ctlConfig
	db     *badger.DB
)

func Execute() error {
	root := &cobra.Command{
		Use:   "messengerctl",
		Short: "Inspect a messenger core database",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := envconfig.Process("", &config); err != nil {
				return err
			}
			opts := badger.DefaultOptions(config.BadgerFilepath).
				WithReadOnly(true).
				WithLoggingLevel(badger.ERROR)
			var err error
			db, err = badger.Open(opts)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if db != nil {
				return db.Close()
			}
			return nil
		},
	}

	root.AddCommand(statsCmd())
	return root.Execute()
}
