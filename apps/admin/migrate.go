package main

import (
	"errors"

	"github.com/trezcool/kipindi/storage/database"
)

var migrateFunc = database.Migrate // mockable

var errNoDatabase = errors.New("migrations need a postgres database (dbInMemory is set)")

func (cli *commandLine) migrate(args []string) error {
	if cli.db == nil {
		return errNoDatabase
	}
	return migrateFunc(cli.db, args[0], args[1:]...)
}
